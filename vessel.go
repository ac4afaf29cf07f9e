package cvxkerb

import (
	"math"
	"time"

	"github.com/ChristopherRabotin/ode"
)

// g0 is standard gravity, used for Isp mass flow.
const g0 = 9.80665

// SimVessel is a point-mass vehicle standing in for a live vessel: it is both
// the TelemetrySource and the ActuationSink of a lock-step simulation. Each
// telemetry poll advances the dynamics by the declared sample interval under
// the last issued actuation, so the guidance loop sees exactly the cadence it
// would get from a real vehicle.
//
// Single goroutine only: the guidance loop is the sole caller by design.
type SimVessel struct {
	engine  Engine
	gravity float64
	padZ    float64
	sample  time.Duration

	pos, vel       []float64
	dryMass        float64
	fuelMass       float64
	throttle       float64
	dir            []float64
	engaged        bool
	landed         bool
	primed         bool
	span           float64 // integration span of the current advance
	stepSize       float64
	elapsed        float64
	touchdownSpeed float64
}

// NewSimVessel places a vessel at the given state in the guidance frame.
// padAltitude is the ground contact plane; sample is the simulated time
// advanced per telemetry poll.
func NewSimVessel(position, velocity []float64, dryMass, fuelMass float64, engine Engine, gravity, padAltitude float64, sample time.Duration) *SimVessel {
	return &SimVessel{
		engine:   engine,
		gravity:  gravity,
		padZ:     padAltitude,
		sample:   sample,
		pos:      append([]float64(nil), position...),
		vel:      append([]float64(nil), velocity...),
		dryMass:  dryMass,
		fuelMass: fuelMass,
		dir:      []float64{0, 0, 1},
	}
}

// State implements TelemetrySource. Every call after the first advances the
// simulation by the sample interval before reporting.
func (v *SimVessel) State() (VehicleState, error) {
	if v.primed && !v.landed {
		v.advance(v.sample.Seconds())
	}
	v.primed = true
	sit := SituationFlying
	if v.landed {
		sit = SituationLanded
	}
	return VehicleState{
		Position:  append([]float64(nil), v.pos...),
		Velocity:  append([]float64(nil), v.vel...),
		Mass:      v.dryMass + v.fuelMass,
		MaxThrust: v.availableThrust(),
		Situation: sit,
	}, nil
}

// SetThrottle implements ActuationSink.
func (v *SimVessel) SetThrottle(level float64) error {
	v.throttle = clamp(level, 0, 1)
	return nil
}

// TargetPitchAndHeading implements ActuationSink. Attitude tracking is
// instantaneous: the commanded direction is applied for the whole next sample.
func (v *SimVessel) TargetPitchAndHeading(pitch, heading float64) error {
	v.dir = AttitudeDirection(pitch, heading)
	return nil
}

// Engage implements ActuationSink.
func (v *SimVessel) Engage() error {
	v.engaged = true
	return nil
}

// FuelMass returns the remaining fuel in kg.
func (v *SimVessel) FuelMass() float64 { return v.fuelMass }

// TouchdownSpeed returns the speed at ground contact, zero before touchdown.
func (v *SimVessel) TouchdownSpeed() float64 { return v.touchdownSpeed }

// Landed reports whether the vessel has touched down.
func (v *SimVessel) Landed() bool { return v.landed }

func (v *SimVessel) availableThrust() float64 {
	if v.fuelMass <= 0 {
		return 0
	}
	return v.engine.MaxThrust()
}

// advance integrates the dynamics over dt seconds.
func (v *SimVessel) advance(dt float64) {
	v.span = dt
	v.stepSize = dt / 10
	v.elapsed = 0
	ode.NewRK4(0, v.stepSize, v).Solve() // Blocking.
}

// GetState implements the ode.Integrable interface.
func (v *SimVessel) GetState() []float64 {
	return []float64{v.pos[0], v.pos[1], v.pos[2], v.vel[0], v.vel[1], v.vel[2], v.fuelMass}
}

// SetState implements the ode.Integrable interface, clamping at ground
// contact.
func (v *SimVessel) SetState(t float64, s []float64) {
	v.pos = []float64{s[0], s[1], s[2]}
	v.vel = []float64{s[3], s[4], s[5]}
	v.fuelMass = math.Max(s[6], 0)
	if !v.landed && v.pos[2] <= v.padZ && v.vel[2] <= 0 {
		v.landed = true
		v.touchdownSpeed = norm(v.vel)
		v.pos[2] = v.padZ
		v.vel = []float64{0, 0, 0}
		v.throttle = 0
	}
}

// Stop implements the ode.Integrable interface. The elapsed span is tracked
// internally, one step per call.
func (v *SimVessel) Stop(t float64) bool {
	if v.landed || v.elapsed >= v.span-1e-9 {
		return true
	}
	v.elapsed += v.stepSize
	return false
}

// Func implements the ode.Integrable interface: point-mass dynamics under
// commanded thrust, uniform gravity and Isp mass flow.
func (v *SimVessel) Func(t float64, f []float64) []float64 {
	fDot := make([]float64, 7)
	thrust := 0.0
	if f[6] > 0 {
		thrust = v.throttle * v.engine.MaxThrust()
	}
	m := v.dryMass + math.Max(f[6], 0)
	// d(position)/dt
	fDot[0] = f[3]
	fDot[1] = f[4]
	fDot[2] = f[5]
	// d(velocity)/dt
	fDot[3] = thrust / m * v.dir[0]
	fDot[4] = thrust / m * v.dir[1]
	fDot[5] = thrust/m*v.dir[2] - v.gravity
	// d(fuel)/dt
	fDot[6] = -thrust / (v.engine.Isp() * g0)
	return fDot
}
