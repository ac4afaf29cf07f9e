package cvxkerb

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

func testVessel(position, velocity []float64, fuel float64) *SimVessel {
	return NewSimVessel(position, velocity, 900, fuel, NewGenericEngine(20000, 300), 9.81, 0, time.Second)
}

func TestSimVesselFirstSampleIsInitial(t *testing.T) {
	v := testVessel([]float64{10, 0, 1000}, []float64{0, 0, -5}, 100)
	state, err := v.State()
	if err != nil {
		t.Fatalf("%s", err)
	}
	if !vectorsEqual(state.Position, []float64{10, 0, 1000}) || !vectorsEqual(state.Velocity, []float64{0, 0, -5}) {
		t.Fatal("first sample must report the initial state unchanged")
	}
	if state.Mass != 1000 {
		t.Fatalf("expected 1000 kg, got %f", state.Mass)
	}
	if state.MaxThrust != 20000 {
		t.Fatalf("expected 20 kN available, got %f", state.MaxThrust)
	}
}

func TestSimVesselFreeFall(t *testing.T) {
	v := testVessel([]float64{0, 0, 1000}, []float64{0, 0, 0}, 100)
	v.State()
	state, _ := v.State()
	if !scalar.EqualWithinAbs(state.Velocity[2], -9.81, 1e-9) {
		t.Fatalf("free fall velocity after 1s: got %f", state.Velocity[2])
	}
	if !scalar.EqualWithinAbs(state.Position[2], 1000-9.81/2, 1e-9) {
		t.Fatalf("free fall altitude after 1s: got %f", state.Position[2])
	}
	if state.Mass != 1000 {
		t.Fatal("free fall must not burn fuel")
	}
}

func TestSimVesselThrustDecelerates(t *testing.T) {
	v := testVessel([]float64{0, 0, 1000}, []float64{0, 0, -50}, 100)
	if err := v.Engage(); err != nil {
		t.Fatalf("%s", err)
	}
	if err := v.TargetPitchAndHeading(90, 0); err != nil {
		t.Fatalf("%s", err)
	}
	if err := v.SetThrottle(1); err != nil {
		t.Fatalf("%s", err)
	}
	v.State()
	state, _ := v.State()
	// The vessel lightens as it burns, so the one-second delta-v is the
	// rocket equation against gravity: Isp*g0*ln(m0/m1) - g.
	mdot := 20000 / (300 * g0)
	wantV := -50 + 300*g0*math.Log(1000/(1000-mdot)) - 9.81
	if !scalar.EqualWithinAbs(state.Velocity[2], wantV, 1e-4) {
		t.Fatalf("expected %f m/s, got %f", wantV, state.Velocity[2])
	}
	wantFuel := 100 - mdot
	if !scalar.EqualWithinAbs(v.FuelMass(), wantFuel, 1e-9) {
		t.Fatalf("expected %f kg of fuel, got %f", wantFuel, v.FuelMass())
	}
}

func TestSimVesselTouchdown(t *testing.T) {
	v := testVessel([]float64{0, 0, 5}, []float64{0, 0, -10}, 100)
	v.State()
	state, _ := v.State()
	if state.Situation != SituationLanded {
		t.Fatalf("expected a landed situation, got %s", state.Situation)
	}
	if state.Position[2] != 0 || !vectorsEqual(state.Velocity, []float64{0, 0, 0}) {
		t.Fatal("touchdown must clamp to the pad at rest")
	}
	if v.TouchdownSpeed() < 10 {
		t.Fatalf("touchdown speed must be at least the entry speed, got %f", v.TouchdownSpeed())
	}
	if !v.Landed() {
		t.Fatal("vessel must report landed")
	}
	// Further samples no longer advance the simulation.
	again, _ := v.State()
	if again.Position[2] != 0 || again.Situation != SituationLanded {
		t.Fatal("landed state must be stable")
	}
}

func TestSimVesselFuelDepletion(t *testing.T) {
	v := testVessel([]float64{0, 0, 1000}, []float64{0, 0, 0}, 0.1)
	v.SetThrottle(1)
	v.State()
	state, _ := v.State()
	if v.FuelMass() != 0 {
		t.Fatalf("fuel must deplete to exactly zero, got %f", v.FuelMass())
	}
	if state.MaxThrust != 0 {
		t.Fatalf("a dry vessel has no thrust available, got %f", state.MaxThrust)
	}
}

func TestEngines(t *testing.T) {
	if (LVT45{}).MaxThrust() != 215000 || (LVT45{}).Isp() != 320 {
		t.Fatal("LVT45 characteristics mismatch")
	}
	e := NewGenericEngine(1000, 250)
	if e.MaxThrust() != 1000 || e.Isp() != 250 {
		t.Fatal("generic engine mismatch")
	}
}
