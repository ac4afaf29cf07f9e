package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"
	"time"

	kitlog "github.com/go-kit/kit/log"

	"github.com/cvxpy/cvxkerb"
	"github.com/cvxpy/cvxkerb/socp"
)

// This command reads a mission file and flies it to touchdown in simulation.

const defaultMission = "~~unset~~"

var (
	mission  string
	planPlot string
	verbose  bool
)

func init() {
	// Read flags
	flag.StringVar(&mission, "mission", defaultMission, "mission TOML file")
	flag.StringVar(&planPlot, "plot", "", "save the initial descent plan to this image file")
	flag.BoolVar(&verbose, "verbose", false, "really verbose (incl. per-solve diagnostics)")
}

func main() {
	flag.Parse()
	if mission == defaultMission {
		log.Fatal("no mission provided")
	}
	conf, err := cvxkerb.LoadMissionConfig(mission)
	if err != nil {
		log.Fatalf("%s", err)
	}

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "mission", conf.Name)
	optLogger := kitlog.Logger(kitlog.NewNopLogger())
	if verbose {
		optLogger = logger
	}

	sample := conf.TickPeriod
	if sample == 0 {
		sample = time.Duration(conf.Horizon.StepDuration * float64(time.Second))
	}
	vessel := cvxkerb.NewSimVessel(conf.Position, conf.Velocity, conf.DryMass, conf.FuelMass,
		conf.Engine, conf.Gravity, conf.PadAltitude, sample)
	opt := cvxkerb.NewOptimizer(socp.DefaultSettings(), optLogger)

	if planPlot != "" {
		state, err := vessel.State()
		if err != nil {
			log.Fatalf("%s", err)
		}
		params := conf.Horizon
		params.GlideAngle = cvxkerb.GlideAngle(state.Position, conf.Target, conf.GlideSteepness)
		res := opt.Solve(state, conf.Target, params)
		if res.Status != cvxkerb.OptimizationSolved {
			log.Fatalf("initial plan %s: %s", res.Status, res.Reason)
		}
		if err := cvxkerb.SavePlanPlot(res.Plan, conf.Target, planPlot); err != nil {
			log.Fatalf("%s", err)
		}
		logger.Log("level", "info", "subsys", "main", "plot", planPlot, "fuel", res.Plan.Fuel)
	}

	loop := cvxkerb.NewGuidanceLoop(cvxkerb.GuidanceConfig{
		Target:         conf.Target,
		TickPeriod:     conf.TickPeriod,
		Horizon:        conf.Horizon,
		GlideSteepness: conf.GlideSteepness,
		Deadband:       conf.Deadband,
		Ascent:         conf.Ascent,
		MaxTicks:       conf.MaxTicks,
	}, vessel, vessel, opt, logger)

	var wg sync.WaitGroup
	if !conf.Export.IsUseless() {
		histChan := make(chan cvxkerb.GuidanceState, 10)
		loop.SetHistory(histChan)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cvxkerb.StreamStates(conf.Export, histChan)
		}()
	}

	if err := loop.Run(context.Background()); err != nil {
		log.Fatalf("%s", err)
	}
	wg.Wait()
	logger.Log("level", "notice", "subsys", "main", "status", "landed",
		"ticks", loop.Ticks(), "failed solves", loop.Failures(),
		"fuel remaining", vessel.FuelMass(), "touchdown speed", vessel.TouchdownSpeed())
}
