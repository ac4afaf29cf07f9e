package socp

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func TestConeDim(t *testing.T) {
	k := Cone{Zero: 2, Nonneg: 3, SOC: []int{3, 4}}
	if k.Dim() != 12 {
		t.Fatalf("cone dim %d != 12", k.Dim())
	}
}

func TestProjectSOC(t *testing.T) {
	// Inside the cone: unchanged.
	z := make([]float64, 3)
	projectSOC([]float64{5, 3, 4}, z)
	if !floats.EqualApprox(z, []float64{5, 3, 4}, 1e-14) {
		t.Fatal("interior point should project to itself")
	}
	// Inside the polar cone: zero.
	projectSOC([]float64{-5, 3, 4}, z)
	if !floats.EqualApprox(z, []float64{0, 0, 0}, 1e-14) {
		t.Fatal("polar point should project to the origin")
	}
	// Outside both: onto the boundary.
	projectSOC([]float64{0, 3, 4}, z)
	if !scalar.EqualWithinAbs(z[0], 2.5, 1e-12) {
		t.Fatalf("boundary projection head %f != 2.5", z[0])
	}
	if !scalar.EqualWithinAbs(math.Hypot(z[1], z[2]), z[0], 1e-12) {
		t.Fatal("projection must land on the cone boundary")
	}
}

func TestSolveBoundLP(t *testing.T) {
	// minimize x subject to x >= 1, as the nonneg row -x <= -1.
	prob := Problem{
		A: mat.NewDense(1, 1, []float64{-1}),
		B: []float64{-1},
		C: []float64{1},
		K: Cone{Nonneg: 1},
	}
	res, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Solved {
		t.Fatalf("status %s", res.Status)
	}
	if !scalar.EqualWithinAbs(res.X[0], 1, 1e-3) {
		t.Fatalf("x = %f, expected 1", res.X[0])
	}
}

func TestSolveEqualityLP(t *testing.T) {
	// minimize x + 2y subject to x + y = 1, x >= 0, y >= 0.
	prob := Problem{
		A: mat.NewDense(3, 2, []float64{
			1, 1,
			-1, 0,
			0, -1,
		}),
		B: []float64{1, 0, 0},
		C: []float64{1, 2},
		K: Cone{Zero: 1, Nonneg: 2},
	}
	res, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Solved {
		t.Fatalf("status %s", res.Status)
	}
	if !scalar.EqualWithinAbs(res.X[0], 1, 1e-3) || !scalar.EqualWithinAbs(res.X[1], 0, 1e-3) {
		t.Fatalf("x = %v, expected (1, 0)", res.X)
	}
	if !scalar.EqualWithinAbs(res.Objective, 1, 1e-3) {
		t.Fatalf("objective %f != 1", res.Objective)
	}
}

func TestSolveSOC(t *testing.T) {
	// minimize -x - y subject to |(x, y)| <= 1. Optimum at x = y = sqrt(2)/2.
	prob := Problem{
		A: mat.NewDense(3, 2, []float64{
			0, 0,
			-1, 0,
			0, -1,
		}),
		B: []float64{1, 0, 0},
		C: []float64{-1, -1},
		K: Cone{SOC: []int{3}},
	}
	res, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Solved {
		t.Fatalf("status %s", res.Status)
	}
	exp := math.Sqrt2 / 2
	if !scalar.EqualWithinAbs(res.X[0], exp, 1e-3) || !scalar.EqualWithinAbs(res.X[1], exp, 1e-3) {
		t.Fatalf("x = %v, expected (%f, %f)", res.X, exp, exp)
	}
	if !scalar.EqualWithinAbs(res.Objective, -math.Sqrt2, 1e-3) {
		t.Fatalf("objective %f != %f", res.Objective, -math.Sqrt2)
	}
}

func TestSolveSOCEpigraph(t *testing.T) {
	// minimize t subject to |(x-3, y-4)| <= t. Optimum t = 0 at (3, 4).
	prob := Problem{
		A: mat.NewDense(3, 3, []float64{
			-1, 0, 0,
			0, -1, 0,
			0, 0, -1,
		}),
		B: []float64{0, -3, -4},
		C: []float64{1, 0, 0},
		K: Cone{SOC: []int{3}},
	}
	res, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Solved {
		t.Fatalf("status %s", res.Status)
	}
	if !scalar.EqualWithinAbs(res.X[0], 0, 1e-3) {
		t.Fatalf("t = %f, expected 0", res.X[0])
	}
	if !scalar.EqualWithinAbs(res.X[1], 3, 1e-2) || !scalar.EqualWithinAbs(res.X[2], 4, 1e-2) {
		t.Fatalf("(x, y) = (%f, %f), expected (3, 4)", res.X[1], res.X[2])
	}
}

func TestSolvePrimalInfeasible(t *testing.T) {
	// x >= 1 and x <= 0 cannot both hold.
	prob := Problem{
		A: mat.NewDense(2, 1, []float64{
			-1,
			1,
		}),
		B: []float64{-1, 0},
		C: []float64{0},
		K: Cone{Nonneg: 2},
	}
	res, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != PrimalInfeasible {
		t.Fatalf("status %s, expected primal infeasible", res.Status)
	}
}

func TestSolveDualInfeasible(t *testing.T) {
	// minimize -x subject to x >= 0 is unbounded below.
	prob := Problem{
		A: mat.NewDense(1, 1, []float64{-1}),
		B: []float64{0},
		C: []float64{-1},
		K: Cone{Nonneg: 1},
	}
	res, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != DualInfeasible {
		t.Fatalf("status %s, expected dual infeasible", res.Status)
	}
}

func TestSolveMixedMagnitudes(t *testing.T) {
	// minimize 1000*t subject to x + y = 5000, x >= 0, y >= 0 and
	// |(x-3000, y-1000)| <= t. The closest point on the line to (3000, 1000)
	// is (3500, 1500), so t = 500*sqrt(2). Mixing a heavy cost coefficient
	// with right-hand sides in the thousands must still converge to the
	// optimum, not trip an unboundedness certificate on the way there.
	prob := Problem{
		A: mat.NewDense(6, 3, []float64{
			1, 1, 0,
			-1, 0, 0,
			0, -1, 0,
			0, 0, -1,
			-1, 0, 0,
			0, -1, 0,
		}),
		B: []float64{5000, 0, 0, 0, -3000, -1000},
		C: []float64{0, 0, 1000},
		K: Cone{Zero: 1, Nonneg: 2, SOC: []int{3}},
	}
	res, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Solved {
		t.Fatalf("status %s after %d iterations (primal %e, dual %e)",
			res.Status, res.Iterations, res.PriRes, res.DuaRes)
	}
	want := 500 * math.Sqrt2
	if !scalar.EqualWithinAbs(res.X[2], want, 1) {
		t.Fatalf("t = %f, expected %f", res.X[2], want)
	}
	if !scalar.EqualWithinAbs(res.X[0], 3500, 2) || !scalar.EqualWithinAbs(res.X[1], 1500, 2) {
		t.Fatalf("(x, y) = (%f, %f), expected (3500, 1500)", res.X[0], res.X[1])
	}
}

func TestSolveDeterministic(t *testing.T) {
	prob := Problem{
		A: mat.NewDense(3, 2, []float64{
			1, 1,
			-1, 0,
			0, -1,
		}),
		B: []float64{1, 0, 0},
		C: []float64{1, 3},
		K: Cone{Zero: 1, Nonneg: 2},
	}
	first, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	second, err := Solve(prob, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if first.Iterations != second.Iterations {
		t.Fatalf("iteration counts differ: %d vs %d", first.Iterations, second.Iterations)
	}
	if !floats.EqualApprox(first.X, second.X, 1e-12) {
		t.Fatal("repeated solves must yield identical iterates")
	}
}

func TestSolveRejectsMalformedInput(t *testing.T) {
	if _, err := Solve(Problem{}, DefaultSettings()); err == nil {
		t.Fatal("nil matrix must be rejected")
	}
	prob := Problem{
		A: mat.NewDense(1, 1, []float64{1}),
		B: []float64{1, 2},
		C: []float64{1},
		K: Cone{Nonneg: 1},
	}
	if _, err := Solve(prob, DefaultSettings()); err == nil {
		t.Fatal("dimension mismatch must be rejected")
	}
	prob.B = []float64{1}
	prob.K = Cone{Nonneg: 2}
	if _, err := Solve(prob, DefaultSettings()); err == nil {
		t.Fatal("cone dimension mismatch must be rejected")
	}
}
