package cvxkerb

import (
	"context"
	"fmt"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

// Phase is the guidance state machine's current state.
type Phase uint8

const (
	// PhaseAscent runs the scripted, open-loop launch sequence.
	PhaseAscent Phase = iota + 1
	// PhaseDescentGuidance is active closed-loop descent: re-solve every tick,
	// apply the first thrust of each new plan.
	PhaseDescentGuidance
	// PhaseLanded is terminal: throttle forced to zero, loop ended.
	PhaseLanded
)

// maxVizPositions caps how many plan points are fed to the visualization sink
// each tick.
const maxVizPositions = 10

func (p Phase) String() string {
	switch p {
	case PhaseAscent:
		return "ascent"
	case PhaseDescentGuidance:
		return "descent guidance"
	case PhaseLanded:
		return "landed"
	}
	panic("cannot stringify unknown guidance phase")
}

// AscentStep is one entry of the scripted launch sequence.
type AscentStep struct {
	Throttle float64       `mapstructure:"throttle"`
	Pitch    float64       `mapstructure:"pitch"`
	Heading  float64       `mapstructure:"heading"`
	Duration time.Duration `mapstructure:"duration"`
}

// TrajectoryOptimizer is the planning capability the loop re-invokes every
// tick. *Optimizer implements it; tests substitute scripted fakes.
type TrajectoryOptimizer interface {
	Solve(state VehicleState, target LandingTarget, params HorizonParameters) OptimizationResult
}

// GuidanceConfig carries everything the loop needs at construction. The
// landing target is explicit configuration, not ambient state, so missions
// and tests can aim anywhere.
type GuidanceConfig struct {
	Target LandingTarget
	// TickPeriod is the control period. Zero runs the loop accelerated: no
	// waiting between ticks, for lock-step simulations.
	TickPeriod     time.Duration
	Horizon        HorizonParameters
	GlideSteepness float64
	Deadband       float64
	Ascent         []AscentStep
	// MaxTicks aborts a descent that never reports touchdown. Zero means
	// unbounded.
	MaxTicks int
}

// GuidanceLoop is the receding-horizon controller. Single logical thread:
// every tick samples telemetry, re-solves the descent program and issues the
// next command synchronously. At most one solve is ever in flight and the
// command of tick n always derives from the state sampled in tick n; the only
// state carried across ticks is the previous command, kept as the fallback
// default.
type GuidanceLoop struct {
	cfg    GuidanceConfig
	src    TelemetrySource
	sink   ActuationSink
	opt    TrajectoryOptimizer
	viz    VisualizationSink
	logger kitlog.Logger
	hist   chan<- GuidanceState

	phase    Phase
	prevCmd  Command
	ticks    int
	failures int
}

// NewGuidanceLoop builds a loop in the Ascent phase. Zero-valued config
// fields fall back to the stock horizon, glide steepness and deadband.
func NewGuidanceLoop(cfg GuidanceConfig, src TelemetrySource, sink ActuationSink, opt TrajectoryOptimizer, logger kitlog.Logger) *GuidanceLoop {
	if cfg.Horizon.Steps == 0 {
		cfg.Horizon = DefaultHorizonParameters()
	}
	if cfg.GlideSteepness == 0 {
		cfg.GlideSteepness = DefaultGlideSteepness
	}
	if cfg.Deadband == 0 {
		cfg.Deadband = DefaultDeadband
	}
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &GuidanceLoop{
		cfg:     cfg,
		src:     src,
		sink:    sink,
		opt:     opt,
		logger:  logger,
		phase:   PhaseAscent,
		prevCmd: Command{Throttle: 0, Direction: []float64{0, 0, 1}, Pitch: 90},
	}
}

// SetVisualization attaches an optional, non-authoritative visualization sink.
func (l *GuidanceLoop) SetVisualization(v VisualizationSink) { l.viz = v }

// SetHistory attaches a channel receiving one GuidanceState per tick. Run
// closes it on exit.
func (l *GuidanceLoop) SetHistory(ch chan<- GuidanceState) { l.hist = ch }

// Phase returns the state machine's current state.
func (l *GuidanceLoop) Phase() Phase { return l.phase }

// Ticks returns how many descent ticks have run.
func (l *GuidanceLoop) Ticks() int { return l.ticks }

// Failures returns how many ticks fell back because of a failed solve.
func (l *GuidanceLoop) Failures() int { return l.failures }

// Run drives the state machine to touchdown: the scripted ascent, then the
// fixed-rate descent loop. It returns when the telemetry source reports the
// landed situation, the context is canceled, or a collaborator fails.
//
// A solve that overruns the period is never aborted; it simply delays the
// next tick, and the overrun is logged with its measured duration. The solver
// iteration cap is the only bound on solve time.
func (l *GuidanceLoop) Run(ctx context.Context) error {
	if l.hist != nil {
		defer close(l.hist)
	}
	if err := l.runAscent(ctx); err != nil {
		return err
	}
	l.phase = PhaseDescentGuidance
	l.logger.Log("level", "info", "subsys", "guidance", "phase", l.phase, "period", l.cfg.TickPeriod)

	var tick <-chan time.Time
	if l.cfg.TickPeriod > 0 {
		ticker := time.NewTicker(l.cfg.TickPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		landed, err := l.Tick(start)
		if err != nil {
			return err
		}
		if landed {
			return nil
		}
		if l.cfg.TickPeriod > 0 {
			if overrun := time.Since(start) - l.cfg.TickPeriod; overrun > 0 {
				l.logger.Log("level", "warning", "subsys", "guidance", "overrun", overrun)
			}
		}
		if l.cfg.MaxTicks > 0 && l.ticks >= l.cfg.MaxTicks {
			return fmt.Errorf("guidance: tick cap %d reached before touchdown", l.cfg.MaxTicks)
		}
	}
}

// runAscent plays the open-loop launch script, then hands over to descent
// guidance unconditionally. In accelerated mode the step durations are not
// waited out.
func (l *GuidanceLoop) runAscent(ctx context.Context) error {
	if len(l.cfg.Ascent) == 0 {
		return nil
	}
	if err := l.sink.Engage(); err != nil {
		return err
	}
	for i, step := range l.cfg.Ascent {
		l.logger.Log("level", "info", "subsys", "guidance", "ascent step", i, "throttle", step.Throttle, "pitch", step.Pitch, "heading", step.Heading)
		if err := l.sink.TargetPitchAndHeading(step.Pitch, step.Heading); err != nil {
			return err
		}
		if err := l.sink.SetThrottle(step.Throttle); err != nil {
			return err
		}
		if l.cfg.TickPeriod == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step.Duration):
		}
	}
	return nil
}

// Tick runs one descent guidance cycle against the state sampled now. It
// reports landed=true when the telemetry source says the vehicle is down,
// after forcing the throttle to zero.
func (l *GuidanceLoop) Tick(now time.Time) (landed bool, err error) {
	l.ticks++
	state, err := l.src.State()
	if err != nil {
		l.logger.Log("level", "critical", "subsys", "guidance", "telemetry", err)
		return false, err
	}
	if state.Situation == SituationLanded {
		if err := l.sink.SetThrottle(0); err != nil {
			return false, err
		}
		l.phase = PhaseLanded
		l.prevCmd = Command{Throttle: 0, Direction: []float64{0, 0, 1}, Pitch: 90}
		l.record(now, state)
		l.logger.Log("level", "notice", "subsys", "guidance", "status", "landed", "ticks", l.ticks, "failed solves", l.failures)
		return true, nil
	}

	params := l.cfg.Horizon
	params.GlideAngle = GlideAngle(state.Position, l.cfg.Target, l.cfg.GlideSteepness)

	res := l.opt.Solve(state, l.cfg.Target, params)
	switch res.Status {
	case OptimizationSolved:
		// Receding horizon: only the first thrust of the fresh plan is ever
		// applied; the rest is discarded and recomputed next tick.
		cmd := MapThrust(res.Plan.Thrusts[0], state.MaxThrust, l.cfg.Deadband)
		if err := l.issue(cmd); err != nil {
			return false, err
		}
		l.prevCmd = cmd
		if l.viz != nil {
			// Only the first few plan points are worth drawing: the tail is
			// recomputed every tick anyway.
			traj := res.Plan.Positions
			if len(traj) > maxVizPositions {
				traj = traj[:maxVizPositions]
			}
			l.viz.PlannedTrajectory(traj)
			l.viz.ThrustVector(res.Plan.Thrusts[0])
			l.viz.AutopilotDirection(cmd.Direction)
		}
	default:
		// A single bad tick must not halt guidance: the next tick's state may
		// again be feasible.
		l.failures++
		l.logger.Log("level", "warning", "subsys", "guidance", "solve", res.Status, "reason", res.Reason)
		if state.Velocity[2] > 0 {
			if err := l.sink.SetThrottle(0); err != nil {
				return false, err
			}
			l.prevCmd.Throttle = 0
		}
		// Otherwise the previous command stays in effect, unchanged.
	}
	l.record(now, state)
	return false, nil
}

func (l *GuidanceLoop) issue(cmd Command) error {
	if err := l.sink.TargetPitchAndHeading(cmd.Pitch, cmd.Heading); err != nil {
		return err
	}
	if err := l.sink.Engage(); err != nil {
		return err
	}
	return l.sink.SetThrottle(cmd.Throttle)
}

func (l *GuidanceLoop) record(now time.Time, state VehicleState) {
	if l.hist == nil {
		return
	}
	l.hist <- GuidanceState{DT: now, Vehicle: state, Cmd: l.prevCmd, Phase: l.phase}
}
