package cvxkerb

// Situation is the discrete flight situation reported by the telemetry source.
type Situation uint8

const (
	// SituationFlying means the vehicle is airborne.
	SituationFlying Situation = iota + 1
	// SituationLanded means the vehicle is at rest on the surface.
	SituationLanded
)

func (s Situation) String() string {
	switch s {
	case SituationFlying:
		return "flying"
	case SituationLanded:
		return "landed"
	}
	panic("cannot stringify unknown situation")
}

// VehicleState is an immutable snapshot of the vehicle, expressed in the
// target-aligned guidance frame (z up along the pad's local vertical).
type VehicleState struct {
	Position  []float64 // m
	Velocity  []float64 // m/s
	Mass      float64   // kg
	MaxThrust float64   // N
	Situation Situation
}

// LandingTarget is the fixed touchdown point, in the same frame as the
// vehicle state. Conventionally the origin with altitude along z.
type LandingTarget struct {
	Position []float64 // m
}

// Altitude returns the target's z coordinate.
func (t LandingTarget) Altitude() float64 {
	return t.Position[2]
}

// TelemetrySource provides vehicle state snapshots on demand. Implementations
// connect to a live vehicle or a simulation; the guidance loop samples it
// exactly once per tick.
type TelemetrySource interface {
	State() (VehicleState, error)
}

// ActuationSink accepts throttle and attitude commands. The attitude target
// is pitch and heading in degrees relative to the guidance frame.
type ActuationSink interface {
	SetThrottle(level float64) error
	TargetPitchAndHeading(pitch, heading float64) error
	Engage() error
}

// VisualizationSink consumes planning artifacts for operator debugging. It is
// entirely non-authoritative: implementations must not influence guidance.
type VisualizationSink interface {
	PlannedTrajectory(positions [][]float64)
	ThrustVector(f []float64)
	AutopilotDirection(dir []float64)
}
