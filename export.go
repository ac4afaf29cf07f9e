package cvxkerb

import (
	"fmt"
	"os"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// GuidanceState is one tick's record of the closed loop: the sampled vehicle
// state and the command in effect after this tick.
type GuidanceState struct {
	DT      time.Time
	Vehicle VehicleState
	Cmd     Command
	Phase   Phase
}

// ExportConfig configures the exporting of the guidance history.
type ExportConfig struct {
	Filename  string
	AsCSV     bool
	Timestamp bool
	OutputDir string
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV
}

// createFlightCSVFile returns a file which requires a defer close statement!
func createFlightCSVFile(conf ExportConfig, stateDT time.Time) *os.File {
	filename := conf.Filename
	if conf.Timestamp {
		t := time.Now()
		filename = fmt.Sprintf("%s/flight-%s-%d-%02d-%02dT%02d.%02d.%02d.csv", conf.OutputDir, filename, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	} else {
		filename = fmt.Sprintf("%s/flight-%s.csv", conf.OutputDir, filename)
	}
	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	// Header
	f.WriteString(fmt.Sprintf(`# Creation date (UTC): %s
# Time is a UTC Julian date. Positions in m, velocities in m/s, mass in kg.
# Pitch and heading in degrees.
#   Simulation time start (UTC): %s
time,jd,x,y,z,vx,vy,vz,mass,throttle,pitch,heading,phase`, time.Now(), stateDT.UTC()))
	return f
}

// StreamStates streams the output of the channel to the configured file. It
// returns when the channel closes, so it is meant to run as its own goroutine
// alongside the guidance loop.
func StreamStates(conf ExportConfig, stateChan <-chan GuidanceState) {
	if conf.IsUseless() {
		for range stateChan {
		}
		return
	}
	var f *os.File
	var prevDT time.Time
	for state := range stateChan {
		if f == nil {
			f = createFlightCSVFile(conf, state.DT)
			defer f.Close()
		}
		prevDT = state.DT
		v := state.Vehicle
		asTxt := fmt.Sprintf("%s,%.8f,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%s",
			state.DT.UTC().Format("2006-01-02 15:04:05"), julian.TimeToJD(state.DT),
			v.Position[0], v.Position[1], v.Position[2],
			v.Velocity[0], v.Velocity[1], v.Velocity[2],
			v.Mass, state.Cmd.Throttle, state.Cmd.Pitch, state.Cmd.Heading, state.Phase)
		if _, err := f.WriteString("\n" + asTxt); err != nil {
			panic(err)
		}
	}
	if f != nil {
		f.WriteString(fmt.Sprintf("\n# Simulation time end (UTC): %s\n", prevDT.UTC()))
	}
}
