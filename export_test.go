package cvxkerb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExportConfigIsUseless(t *testing.T) {
	if !(ExportConfig{Filename: "x"}).IsUseless() {
		t.Fatal("a config without CSV output is useless")
	}
	if (ExportConfig{Filename: "x", AsCSV: true}).IsUseless() {
		t.Fatal("a CSV config is not useless")
	}
}

func TestStreamStates(t *testing.T) {
	dir := t.TempDir()
	conf := ExportConfig{Filename: "test", AsCSV: true, OutputDir: dir}
	ch := make(chan GuidanceState, 3)
	dt := time.Date(2017, 3, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ch <- GuidanceState{
			DT: dt.Add(time.Duration(i) * time.Second),
			Vehicle: VehicleState{
				Position:  []float64{10, 0, 100 - float64(i)},
				Velocity:  []float64{0, 0, -1},
				Mass:      1000,
				MaxThrust: 20000,
				Situation: SituationFlying,
			},
			Cmd:   Command{Throttle: 0.5, Direction: []float64{0, 0, 1}, Pitch: 90},
			Phase: PhaseDescentGuidance,
		}
	}
	close(ch)
	StreamStates(conf, ch)

	raw, err := os.ReadFile(filepath.Join(dir, "flight-test.csv"))
	if err != nil {
		t.Fatalf("%s", err)
	}
	content := string(raw)
	if !strings.Contains(content, "time,jd,x,y,z,vx,vy,vz,mass,throttle,pitch,heading,phase") {
		t.Fatal("missing CSV header")
	}
	if !strings.Contains(content, "2017-03-15 12:00:02") {
		t.Fatal("missing last record timestamp")
	}
	// 2017-03-15 12:00 UTC is JD 2457828.0.
	if !strings.Contains(content, "2457828.0") {
		t.Fatal("missing Julian date column")
	}
	if !strings.Contains(content, "Simulation time end") {
		t.Fatal("missing end-of-simulation marker")
	}
	var dataLines int
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "2017-") {
			dataLines++
		}
	}
	if dataLines != 3 {
		t.Fatalf("expected 3 records, got %d", dataLines)
	}
}

func TestStreamStatesUseless(t *testing.T) {
	ch := make(chan GuidanceState, 1)
	ch <- GuidanceState{DT: time.Now(), Vehicle: VehicleState{Position: []float64{0, 0, 0}, Velocity: []float64{0, 0, 0}}}
	close(ch)
	// Must drain the channel without writing anything.
	StreamStates(ExportConfig{Filename: "x"}, ch)
}
