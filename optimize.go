package cvxkerb

import (
	"fmt"
	"math"

	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/mat"

	"github.com/cvxpy/cvxkerb/socp"
)

const (
	// DefaultGlideSteepness scales the line of sight to the pad when the
	// glide-slope half-angle is recomputed, so the cone is always slightly
	// steeper than the vehicle's current displacement and the penalty pulls
	// the trajectory toward the vertical.
	DefaultGlideSteepness = 1.05

	// maxGlideAngle bounds the half-angle so tan(alpha) stays finite when the
	// vehicle is directly above the pad.
	maxGlideAngle = 1.52 // rad
)

// RegularizationWeights are the soft-penalty weights of the descent program.
// They are configuration defaults with no normative tuning rationale.
type RegularizationWeights struct {
	Height  float64 // altitude deviation from the pad
	Lateral float64 // horizontal deviation from the pad
	Glide   float64 // one-sided glide-slope violation
}

// DefaultWeights returns the stock weights: the glide penalty dominates the
// other two by three orders of magnitude.
func DefaultWeights() RegularizationWeights {
	return RegularizationWeights{Height: 1, Lateral: 1, Glide: 1000}
}

// HorizonParameters describe the discretization of one descent program. The
// glide angle is recomputed by the caller every tick; the rest is usually
// constant for a mission.
type HorizonParameters struct {
	Steps        int     // K, number of thrust intervals (>= 2)
	StepDuration float64 // h, seconds per interval
	GlideAngle   float64 // alpha, radians
	FuelFactor   float64 // gamma, converts impulse to fuel units
	Gravity      float64 // m/s^2
	Weights      RegularizationWeights
}

// DefaultHorizonParameters returns a 50 step, one second horizon under
// standard gravity.
func DefaultHorizonParameters() HorizonParameters {
	return HorizonParameters{
		Steps:        50,
		StepDuration: 1,
		GlideAngle:   maxGlideAngle,
		FuelFactor:   1,
		Gravity:      9.81,
		Weights:      DefaultWeights(),
	}
}

// TrajectoryPlan is a dynamically consistent descent trajectory: K+1 states
// and the K thrust vectors that connect them. Read-only once produced.
type TrajectoryPlan struct {
	Positions  [][]float64 // length K+1
	Velocities [][]float64 // length K+1
	Thrusts    [][]float64 // length K
	Fuel       float64     // gamma * sum of thrust norms
}

// OptimizationStatus tags the outcome of a descent solve.
type OptimizationStatus uint8

const (
	// OptimizationSolved means a plan satisfying every hard constraint was found.
	OptimizationSolved OptimizationStatus = iota + 1
	// OptimizationInfeasible means no trajectory satisfies the hard
	// constraints from the current state (for example, not enough thrust to
	// arrest the descent in time).
	OptimizationInfeasible
	// OptimizationSolverError means the numerical solve itself failed.
	OptimizationSolverError
)

func (s OptimizationStatus) String() string {
	switch s {
	case OptimizationSolved:
		return "solved"
	case OptimizationInfeasible:
		return "infeasible"
	case OptimizationSolverError:
		return "solver error"
	}
	panic("cannot stringify unknown optimization status")
}

// OptimizationResult is the tagged outcome of one solve. Plan is non-nil if
// and only if Status is OptimizationSolved; it is never partially populated.
type OptimizationResult struct {
	Status OptimizationStatus
	Plan   *TrajectoryPlan
	Reason string // diagnostic detail for the two failure variants
}

// GlideAngle recomputes the glide-slope half-angle from the vehicle's current
// displacement relative to the target: atan of the altitude (scaled by the
// steepness factor) over the lateral offset. Adapting the cone every tick
// keeps it from blocking a vehicle already above the pad while still reining
// in lateral drift far away.
func GlideAngle(position []float64, target LandingTarget, steepness float64) float64 {
	rel := sub(position, target.Position)
	if rel[2] <= 0 {
		return 0
	}
	return clamp(math.Atan2(steepness*rel[2], lateralNorm(rel)), 0, maxGlideAngle)
}

// GlideViolation returns how far a point sticks out of the glide cone of
// half-angle alpha above the target, zero when inside. This is the hinge the
// optimizer penalizes.
func GlideViolation(position []float64, target LandingTarget, alpha float64) float64 {
	rel := sub(position, target.Position)
	return math.Max(0, math.Tan(alpha)*lateralNorm(rel)-rel[2])
}

// Optimizer formulates the fuel-minimizing descent program and solves it
// through the conic solver. It is stateless between calls: every Solve is a
// pure function of its inputs.
type Optimizer struct {
	settings socp.Settings
	logger   kitlog.Logger
}

// NewOptimizer returns an Optimizer using the provided solver settings.
func NewOptimizer(settings socp.Settings, logger kitlog.Logger) *Optimizer {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &Optimizer{settings: settings, logger: logger}
}

// Solve computes a fuel-minimizing trajectory from state to target. It never
// panics past this boundary and never returns a silent default trajectory:
// the outcome is always one of the three tagged variants.
func (o *Optimizer) Solve(state VehicleState, target LandingTarget, params HorizonParameters) OptimizationResult {
	if err := checkInputs(state, target, params); err != nil {
		return OptimizationResult{Status: OptimizationSolverError, Reason: err.Error()}
	}

	prob, lay := buildDescentProgram(state, target, params)
	res, err := socp.Solve(prob, o.settings)
	if err != nil {
		return OptimizationResult{Status: OptimizationSolverError, Reason: err.Error()}
	}
	o.logger.Log("level", "debug", "subsys", "opt", "status", res.Status, "iters", res.Iterations, "pri", res.PriRes, "dua", res.DuaRes)

	switch res.Status {
	case socp.Solved, socp.SolvedInaccurate:
		plan := lay.extract(res.X, params)
		if err := validatePlan(plan, state, target, params); err != nil {
			return OptimizationResult{Status: OptimizationSolverError, Reason: err.Error()}
		}
		return OptimizationResult{Status: OptimizationSolved, Plan: plan}
	case socp.PrimalInfeasible:
		return OptimizationResult{Status: OptimizationInfeasible, Reason: "no trajectory satisfies the hard constraints"}
	case socp.DualInfeasible:
		return OptimizationResult{Status: OptimizationSolverError, Reason: "descent program is unbounded"}
	default:
		return OptimizationResult{Status: OptimizationSolverError,
			Reason: fmt.Sprintf("solver stopped after %d iterations (primal %.2e, dual %.2e)", res.Iterations, res.PriRes, res.DuaRes)}
	}
}

func checkInputs(state VehicleState, target LandingTarget, params HorizonParameters) error {
	switch {
	case len(state.Position) != 3 || len(state.Velocity) != 3:
		return fmt.Errorf("state vectors must have three components")
	case len(target.Position) != 3:
		return fmt.Errorf("target must have three components")
	case state.Mass <= 0:
		return fmt.Errorf("non-positive mass %f", state.Mass)
	case state.MaxThrust <= 0:
		return fmt.Errorf("non-positive max thrust %f", state.MaxThrust)
	case params.Steps < 2:
		return fmt.Errorf("horizon needs at least 2 steps, got %d", params.Steps)
	case params.StepDuration <= 0:
		return fmt.Errorf("non-positive step duration %f", params.StepDuration)
	case params.Gravity <= 0:
		return fmt.Errorf("non-positive gravity %f", params.Gravity)
	}
	return nil
}

// layout maps the descent program's decision variables into the flat solver
// vector: positions, velocities and thrusts first, then the epigraph
// variables of the objective (thrust norms, lateral radii for the glide
// cones, and the height, lateral and glide penalty bounds).
type layout struct {
	k, np                         int
	pOff, vOff, fOff, tfOff, wOff int
	hOff, xyOff, gOff             int
	n                             int
}

func newLayout(k int) layout {
	np := k + 1
	l := layout{k: k, np: np}
	l.pOff = 0
	l.vOff = 3 * np
	l.fOff = 6 * np
	l.tfOff = l.fOff + 3*k
	l.wOff = l.tfOff + k
	l.hOff = l.wOff + np
	l.xyOff = l.hOff + np
	l.gOff = l.xyOff + 2*np
	l.n = l.gOff + np
	return l
}

func (l layout) p(i, c int) int   { return l.pOff + 3*i + c }
func (l layout) v(i, c int) int   { return l.vOff + 3*i + c }
func (l layout) f(k, c int) int   { return l.fOff + 3*k + c }
func (l layout) tf(k int) int     { return l.tfOff + k }
func (l layout) w(i int) int      { return l.wOff + i }
func (l layout) th(i int) int     { return l.hOff + i }
func (l layout) txy(i, c int) int { return l.xyOff + 2*i + c }
func (l layout) tg(i int) int     { return l.gOff + i }

// buildDescentProgram assembles the conic descent program: double-integrator
// dynamics with trapezoidal position updates, boundary conditions, altitude
// floor, monotonic descent, thrust second-order cones and the three soft
// penalties in epigraph form.
func buildDescentProgram(state VehicleState, target LandingTarget, params HorizonParameters) (socp.Problem, layout) {
	k := params.Steps
	l := newLayout(k)
	h := params.StepDuration
	m := state.Mass
	zT := target.Altitude()
	tanAlpha := math.Tan(clamp(params.GlideAngle, 0, maxGlideAngle))

	zeroRows := 12 + 6*k
	nonnegRows := 10*l.np + 2*k
	socRows := 4*k + 3*l.np
	rows := zeroRows + nonnegRows + socRows

	a := mat.NewDense(rows, l.n, nil)
	b := make([]float64, rows)
	c := make([]float64, l.n)

	for i := 0; i < k; i++ {
		c[l.tf(i)] = params.FuelFactor
	}
	for i := 0; i < l.np; i++ {
		c[l.th(i)] = params.Weights.Height
		c[l.txy(i, 0)] = params.Weights.Lateral
		c[l.txy(i, 1)] = params.Weights.Lateral
		c[l.tg(i)] = params.Weights.Glide
	}

	r := 0
	// Boundary conditions: match the sampled state, land at the target at rest.
	for cix := 0; cix < 3; cix++ {
		a.Set(r, l.p(0, cix), 1)
		b[r] = state.Position[cix]
		r++
	}
	for cix := 0; cix < 3; cix++ {
		a.Set(r, l.v(0, cix), 1)
		b[r] = state.Velocity[cix]
		r++
	}
	for cix := 0; cix < 3; cix++ {
		a.Set(r, l.p(k, cix), 1)
		b[r] = target.Position[cix]
		r++
	}
	for cix := 0; cix < 3; cix++ {
		a.Set(r, l.v(k, cix), 1)
		b[r] = 0
		r++
	}
	// Velocity dynamics: thrust over mass, gravity on the vertical axis.
	for i := 0; i < k; i++ {
		for cix := 0; cix < 3; cix++ {
			a.Set(r, l.v(i+1, cix), 1)
			a.Set(r, l.v(i, cix), -1)
			a.Set(r, l.f(i, cix), -h/m)
			if cix == 2 {
				b[r] = -h * params.Gravity
			}
			r++
		}
	}
	// Position dynamics: trapezoidal integration of consecutive velocities.
	for i := 0; i < k; i++ {
		for cix := 0; cix < 3; cix++ {
			a.Set(r, l.p(i+1, cix), 1)
			a.Set(r, l.p(i, cix), -1)
			a.Set(r, l.v(i, cix), -h/2)
			a.Set(r, l.v(i+1, cix), -h/2)
			r++
		}
	}

	// Nonnegative rows, written as a*x <= b.
	for i := 0; i < l.np; i++ { // altitude floor
		a.Set(r, l.p(i, 2), -1)
		b[r] = -zT
		r++
	}
	for i := 0; i < k; i++ { // vertical thrust component
		a.Set(r, l.f(i, 2), -1)
		r++
	}
	for i := 0; i < l.np; i++ { // monotonic descent
		a.Set(r, l.v(i, 2), 1)
		r++
	}
	for i := 0; i < k; i++ { // thrust cap on the norm bound
		a.Set(r, l.tf(i), 1)
		b[r] = state.MaxThrust
		r++
	}
	for i := 0; i < l.np; i++ { // height penalty epigraph
		a.Set(r, l.p(i, 2), 1)
		a.Set(r, l.th(i), -1)
		b[r] = zT
		r++
		a.Set(r, l.p(i, 2), -1)
		a.Set(r, l.th(i), -1)
		b[r] = -zT
		r++
	}
	for i := 0; i < l.np; i++ { // lateral penalty epigraph, per axis
		for cix := 0; cix < 2; cix++ {
			a.Set(r, l.p(i, cix), 1)
			a.Set(r, l.txy(i, cix), -1)
			b[r] = target.Position[cix]
			r++
			a.Set(r, l.p(i, cix), -1)
			a.Set(r, l.txy(i, cix), -1)
			b[r] = -target.Position[cix]
			r++
		}
	}
	for i := 0; i < l.np; i++ { // glide hinge: nonnegative...
		a.Set(r, l.tg(i), -1)
		r++
	}
	for i := 0; i < l.np; i++ { // ...and above the cone violation
		a.Set(r, l.w(i), tanAlpha)
		a.Set(r, l.p(i, 2), -1)
		a.Set(r, l.tg(i), -1)
		b[r] = -zT
		r++
	}

	// Second-order cones. Thrust: |F_i| <= tf_i (with tf_i <= Fmax above);
	// this is the genuine norm bound, not a linearization.
	socDims := make([]int, 0, k+l.np)
	for i := 0; i < k; i++ {
		a.Set(r, l.tf(i), -1)
		r++
		for cix := 0; cix < 3; cix++ {
			a.Set(r, l.f(i, cix), -1)
			r++
		}
		socDims = append(socDims, 4)
	}
	// Glide radii: w_i >= |P_xy,i - target_xy|.
	for i := 0; i < l.np; i++ {
		a.Set(r, l.w(i), -1)
		r++
		for cix := 0; cix < 2; cix++ {
			a.Set(r, l.p(i, cix), -1)
			b[r] = -target.Position[cix]
			r++
		}
		socDims = append(socDims, 3)
	}

	return socp.Problem{
		A: a,
		B: b,
		C: c,
		K: socp.Cone{Zero: zeroRows, Nonneg: nonnegRows, SOC: socDims},
	}, l
}

// extract copies the state and thrust trajectories out of the solver vector.
func (l layout) extract(x []float64, params HorizonParameters) *TrajectoryPlan {
	plan := &TrajectoryPlan{
		Positions:  make([][]float64, l.np),
		Velocities: make([][]float64, l.np),
		Thrusts:    make([][]float64, l.k),
	}
	for i := 0; i < l.np; i++ {
		plan.Positions[i] = []float64{x[l.p(i, 0)], x[l.p(i, 1)], x[l.p(i, 2)]}
		plan.Velocities[i] = []float64{x[l.v(i, 0)], x[l.v(i, 1)], x[l.v(i, 2)]}
	}
	for i := 0; i < l.k; i++ {
		plan.Thrusts[i] = []float64{x[l.f(i, 0)], x[l.f(i, 1)], x[l.f(i, 2)]}
		plan.Fuel += params.FuelFactor * norm(plan.Thrusts[i])
	}
	return plan
}

// validatePlan rejects solver output that drifted outside the hard
// constraints, so a Solved result always honors the plan invariants.
func validatePlan(plan *TrajectoryPlan, state VehicleState, target LandingTarget, params HorizonParameters) error {
	k := params.Steps
	posTol := 2.0
	velTol := 0.5
	thrustTol := math.Max(1, 1e-3*state.MaxThrust)

	for cix := 0; cix < 3; cix++ {
		if math.Abs(plan.Positions[0][cix]-state.Position[cix]) > posTol {
			return fmt.Errorf("initial position mismatch on axis %d", cix)
		}
		if math.Abs(plan.Velocities[0][cix]-state.Velocity[cix]) > velTol {
			return fmt.Errorf("initial velocity mismatch on axis %d", cix)
		}
		if math.Abs(plan.Positions[k][cix]-target.Position[cix]) > posTol {
			return fmt.Errorf("terminal position misses the target on axis %d", cix)
		}
		if math.Abs(plan.Velocities[k][cix]) > velTol {
			return fmt.Errorf("terminal velocity is not zero on axis %d", cix)
		}
	}
	for i, f := range plan.Thrusts {
		if norm(f) > state.MaxThrust+thrustTol {
			return fmt.Errorf("thrust bound violated at step %d", i)
		}
		if f[2] < -thrustTol {
			return fmt.Errorf("negative vertical thrust at step %d", i)
		}
	}
	for i, p := range plan.Positions {
		if p[2] < target.Altitude()-posTol {
			return fmt.Errorf("altitude floor violated at step %d", i)
		}
		if plan.Velocities[i][2] > velTol {
			return fmt.Errorf("ascending vertical velocity at step %d", i)
		}
	}
	return nil
}
