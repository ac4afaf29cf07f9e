package cvxkerb

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testMissionTOML = `
[mission]
name = "pad39"

[vehicle]
position = [10.0, 0.0, 500.0]
velocity = [0.0, 0.0, -20.0]
dry_mass = 900.0
fuel_mass = 100.0
max_thrust = 20000.0
isp = 300.0

[environment]
gravity = 9.81
pad_altitude = 0.0

[guidance]
target = [0.0, 0.0, 0.0]
horizon_steps = 30
step_duration = 0.5
max_ticks = 200

[[ascent]]
throttle = 1.0
pitch = 90.0
heading = 90.0
duration = "2s"

[[ascent]]
throttle = 0.6
pitch = 60.0
heading = 90.0
duration = "3s"

[export]
csv = true
output_path = "."
`

func TestLoadMissionConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pad39.toml")
	if err := os.WriteFile(path, []byte(testMissionTOML), 0644); err != nil {
		t.Fatalf("%s", err)
	}
	conf, err := LoadMissionConfig(path)
	if err != nil {
		t.Fatalf("%s", err)
	}
	if conf.Name != "pad39" {
		t.Fatalf("unexpected name %s", conf.Name)
	}
	if !vectorsEqual(conf.Position, []float64{10, 0, 500}) || !vectorsEqual(conf.Velocity, []float64{0, 0, -20}) {
		t.Fatal("vehicle state mismatch")
	}
	if conf.DryMass != 900 || conf.FuelMass != 100 {
		t.Fatal("vehicle masses mismatch")
	}
	if conf.Engine.MaxThrust() != 20000 || conf.Engine.Isp() != 300 {
		t.Fatal("engine mismatch")
	}
	if conf.Horizon.Steps != 30 || conf.Horizon.StepDuration != 0.5 {
		t.Fatalf("horizon mismatch: %+v", conf.Horizon)
	}
	if conf.MaxTicks != 200 {
		t.Fatalf("expected 200 max ticks, got %d", conf.MaxTicks)
	}
	// Keys not in the file fall back to the stock values.
	if conf.GlideSteepness != DefaultGlideSteepness || conf.Deadband != DefaultDeadband {
		t.Fatal("guidance defaults mismatch")
	}
	if conf.Horizon.Weights != DefaultWeights() {
		t.Fatalf("weight defaults mismatch: %+v", conf.Horizon.Weights)
	}
	if len(conf.Ascent) != 2 {
		t.Fatalf("expected 2 ascent steps, got %d", len(conf.Ascent))
	}
	if conf.Ascent[0].Throttle != 1 || conf.Ascent[0].Duration != 2*time.Second {
		t.Fatalf("ascent step mismatch: %+v", conf.Ascent[0])
	}
	if conf.Ascent[1].Pitch != 60 || conf.Ascent[1].Duration != 3*time.Second {
		t.Fatalf("ascent step mismatch: %+v", conf.Ascent[1])
	}
	if !conf.Export.AsCSV || conf.Export.Filename != "pad39" {
		t.Fatalf("export mismatch: %+v", conf.Export)
	}
}

func TestLoadMissionConfigErrors(t *testing.T) {
	if _, err := LoadMissionConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("missing file must be an error")
	}
	path := filepath.Join(t.TempDir(), "dryless.toml")
	if err := os.WriteFile(path, []byte("[mission]\nname = \"x\"\n"), 0644); err != nil {
		t.Fatalf("%s", err)
	}
	if _, err := LoadMissionConfig(path); err == nil {
		t.Fatal("a mission without a dry mass must be rejected")
	}
}
