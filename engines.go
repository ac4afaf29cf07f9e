package cvxkerb

// Engine defines the propulsion interface of the simulated vessel.
type Engine interface {
	// MaxThrust returns the maximum thrust in Newtons.
	MaxThrust() float64
	// Isp returns the specific impulse in seconds.
	Isp() float64
}

/* Available engines */

// LVT45 is a 215 kN gimballed first-stage engine.
type LVT45 struct{}

// MaxThrust implements the Engine interface.
func (e LVT45) MaxThrust() float64 { return 215000 }

// Isp implements the Engine interface.
func (e LVT45) Isp() float64 { return 320 }

// GenericEngine is an engine with caller-provided characteristics.
type GenericEngine struct {
	thrust float64
	isp    float64
}

// MaxThrust implements the Engine interface.
func (e GenericEngine) MaxThrust() float64 { return e.thrust }

// Isp implements the Engine interface.
func (e GenericEngine) Isp() float64 { return e.isp }

// NewGenericEngine returns an engine with the given max thrust (N) and
// specific impulse (s).
func NewGenericEngine(thrust, isp float64) GenericEngine {
	return GenericEngine{thrust, isp}
}
