// Package socp solves dense conic programs of the form
//
//	minimize    cᵀx
//	subject to  Ax + s = b,  s ∈ K
//
// where K is the Cartesian product of a zero cone, a nonnegative orthant and
// any number of second-order cones, in that row order. The method is
// over-relaxed ADMM on the conic splitting: a cached Cholesky factorization of
// the regularized normal equations provides the x update, and per-cone
// Euclidean projections provide the s update. Ruiz equilibration of the
// constraint matrix, cost scaling and adaptive penalty selection keep the
// iteration well conditioned; primal and dual infeasibility are certified from
// the successive-difference sequences of the iterates.
//
// The solver is deterministic: identical inputs yield identical iterates.
package socp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Status describes the outcome of a solve.
type Status uint8

const (
	// Solved means both primal and dual residuals met the tolerances.
	Solved Status = iota + 1
	// SolvedInaccurate means the iteration limit was hit with residuals
	// within ten times the tolerances.
	SolvedInaccurate
	// PrimalInfeasible means a certificate of primal infeasibility was found.
	PrimalInfeasible
	// DualInfeasible means a certificate of dual infeasibility (an unbounded
	// primal direction) was found.
	DualInfeasible
	// MaxIterationsReached means the iteration limit was hit far from
	// convergence.
	MaxIterationsReached
)

func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case SolvedInaccurate:
		return "solved (inaccurate)"
	case PrimalInfeasible:
		return "primal infeasible"
	case DualInfeasible:
		return "dual infeasible"
	case MaxIterationsReached:
		return "maximum iterations reached"
	}
	panic("cannot stringify unknown solver status")
}

// Cone describes the product cone K. Rows of A must be ordered as Zero
// equality rows, then Nonneg rows, then the second-order cone blocks.
type Cone struct {
	Zero   int   // number of zero-cone (equality) rows
	Nonneg int   // number of nonnegative rows
	SOC    []int // dimensions of each second-order cone block
}

// Dim returns the total number of rows the cone spans.
func (k Cone) Dim() int {
	d := k.Zero + k.Nonneg
	for _, q := range k.SOC {
		d += q
	}
	return d
}

// Problem is a conic program in standard form.
type Problem struct {
	A *mat.Dense // m x n constraint matrix
	B []float64  // m right-hand side
	C []float64  // n cost vector
	K Cone
}

// Settings enumerates the recognized solver options.
type Settings struct {
	Rho        float64 // initial ADMM penalty
	RhoEq      float64 // penalty multiplier applied to zero-cone rows
	Sigma      float64 // proximal regularization on the x update
	Alpha      float64 // over-relaxation parameter in (0, 2)
	EpsAbs     float64 // absolute convergence tolerance
	EpsRel     float64 // relative convergence tolerance
	EpsInfeas  float64 // infeasibility certificate tolerance
	MaxIters   int     // iteration cap
	CheckEvery int     // termination check period, in iterations
	AdaptRho   bool    // rebalance the penalty from the residual ratio
}

// DefaultSettings returns the settings used when the caller has no opinion.
func DefaultSettings() Settings {
	return Settings{
		Rho:        0.1,
		RhoEq:      1e3,
		Sigma:      1e-6,
		Alpha:      1.6,
		EpsAbs:     1e-4,
		EpsRel:     1e-5,
		EpsInfeas:  1e-4,
		MaxIters:   100000,
		CheckEvery: 50,
		AdaptRho:   true,
	}
}

// Result holds the final iterates of a solve. X, Y and S are in the original
// (unequilibrated) problem space.
type Result struct {
	Status     Status
	X          []float64 // primal solution
	Y          []float64 // dual solution (one multiplier per row)
	S          []float64 // slack, b - Ax at the solution
	Objective  float64   // cᵀx
	Iterations int
	PriRes     float64 // final unscaled primal residual, infinity norm
	DuaRes     float64 // final unscaled dual residual, infinity norm
}

const (
	ruizIters = 10
	scaleMin  = 1e-4
	scaleMax  = 1e4
	rhoMin    = 1e-6
	rhoMax    = 1e6
)

type solver struct {
	m, n int
	set  Settings
	k    Cone

	ah     *mat.Dense // equilibrated A
	bh, ch []float64  // equilibrated b and c
	b, c   []float64  // original b and c
	d, e   []float64  // row and column scales
	cs     float64    // cost scale
	aNorm  float64    // largest entry of the original A, in magnitude

	rhoBase float64
	rho     []float64
	chol    mat.Cholesky

	x, z, u []float64
	ax      []float64 // ah * x

	// Iterates at the previous termination check, unscaled, for the
	// infeasibility certificates.
	xPrev, yPrev []float64

	// Relative residuals at the latest termination check, driving the
	// penalty adaptation.
	relPri, relDua float64

	// Certificate detected at the previous check, pending confirmation.
	candidate Status
}

// Solve runs the ADMM iteration on prob. An error is returned only for
// malformed input or a numerical fault in the factorization; infeasibility is
// reported through Result.Status.
func Solve(prob Problem, set Settings) (Result, error) {
	if prob.A == nil {
		return Result{}, fmt.Errorf("socp: nil constraint matrix")
	}
	m, n := prob.A.Dims()
	if m == 0 || n == 0 {
		return Result{}, fmt.Errorf("socp: empty problem (%d x %d)", m, n)
	}
	if len(prob.B) != m || len(prob.C) != n {
		return Result{}, fmt.Errorf("socp: dimension mismatch: A is %dx%d, b has %d, c has %d", m, n, len(prob.B), len(prob.C))
	}
	if prob.K.Dim() != m {
		return Result{}, fmt.Errorf("socp: cone spans %d rows but A has %d", prob.K.Dim(), m)
	}
	for _, q := range prob.K.SOC {
		if q < 2 {
			return Result{}, fmt.Errorf("socp: second-order cone of dimension %d", q)
		}
	}
	if set.MaxIters < 1 || set.CheckEvery < 1 || set.Alpha <= 0 || set.Alpha >= 2 || set.Rho <= 0 {
		return Result{}, fmt.Errorf("socp: invalid settings %+v", set)
	}

	s := &solver{m: m, n: n, set: set, k: prob.K}
	s.equilibrate(prob)
	s.rhoBase = set.Rho
	s.rho = make([]float64, m)
	s.setRho()
	if err := s.factorize(); err != nil {
		return Result{}, err
	}

	s.x = make([]float64, n)
	s.z = make([]float64, m)
	s.u = make([]float64, m)
	s.ax = make([]float64, m)
	s.xPrev = make([]float64, n)
	s.yPrev = make([]float64, m)

	v := make([]float64, m)
	w := make([]float64, m)

	for iter := 1; iter <= set.MaxIters; iter++ {
		if err := s.updateX(); err != nil {
			return Result{}, err
		}
		for i := 0; i < m; i++ {
			v[i] = set.Alpha*s.ax[i] + (1-set.Alpha)*(s.bh[i]-s.z[i])
			w[i] = s.bh[i] - v[i] - s.u[i]
		}
		projectCone(w, s.z, s.k)
		for i := 0; i < m; i++ {
			s.u[i] = s.z[i] - w[i]
		}

		if iter%set.CheckEvery != 0 && iter != set.MaxIters {
			continue
		}
		res, done := s.checkTermination(iter, iter == set.MaxIters)
		if done {
			return res, nil
		}
		if set.AdaptRho {
			if err := s.adaptRho(); err != nil {
				return Result{}, err
			}
		}
	}
	// Unreachable: the final iteration always terminates.
	panic("socp: termination check did not conclude")
}

// equilibrate performs modified Ruiz equilibration on A, keeping one scale per
// second-order cone block so the scaled cone is the same cone, then scales the
// cost so its infinity norm is about one.
func (s *solver) equilibrate(prob Problem) {
	m, n := s.m, s.n
	s.ah = mat.DenseCopyOf(prob.A)
	s.b = append([]float64(nil), prob.B...)
	s.c = append([]float64(nil), prob.C...)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if a := math.Abs(prob.A.At(i, j)); a > s.aNorm {
				s.aNorm = a
			}
		}
	}
	s.d = make([]float64, m)
	s.e = make([]float64, n)
	for i := range s.d {
		s.d[i] = 1
	}
	for j := range s.e {
		s.e[j] = 1
	}

	rowNorm := make([]float64, m)
	colNorm := make([]float64, n)
	for it := 0; it < ruizIters; it++ {
		for i := range rowNorm {
			rowNorm[i] = 0
		}
		for j := range colNorm {
			colNorm[j] = 0
		}
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				a := math.Abs(s.ah.At(i, j))
				if a > rowNorm[i] {
					rowNorm[i] = a
				}
				if a > colNorm[j] {
					colNorm[j] = a
				}
			}
		}
		// Rows of a second-order cone block share one scale.
		off := s.k.Zero + s.k.Nonneg
		for _, q := range s.k.SOC {
			blockMax := 0.0
			for i := off; i < off+q; i++ {
				if rowNorm[i] > blockMax {
					blockMax = rowNorm[i]
				}
			}
			for i := off; i < off+q; i++ {
				rowNorm[i] = blockMax
			}
			off += q
		}
		for i := 0; i < m; i++ {
			dd := scaleFactor(rowNorm[i])
			s.d[i] *= dd
			for j := 0; j < n; j++ {
				s.ah.Set(i, j, s.ah.At(i, j)*dd)
			}
		}
		for j := 0; j < n; j++ {
			ee := scaleFactor(colNorm[j])
			s.e[j] *= ee
			for i := 0; i < m; i++ {
				s.ah.Set(i, j, s.ah.At(i, j)*ee)
			}
		}
	}

	s.bh = make([]float64, m)
	for i := 0; i < m; i++ {
		s.bh[i] = s.d[i] * s.b[i]
	}
	s.ch = make([]float64, n)
	cMax := 0.0
	for j := 0; j < n; j++ {
		s.ch[j] = s.e[j] * s.c[j]
		if a := math.Abs(s.ch[j]); a > cMax {
			cMax = a
		}
	}
	s.cs = 1 / math.Max(cMax, 1e-6)
	if s.cs > scaleMax {
		s.cs = scaleMax
	}
	for j := 0; j < n; j++ {
		s.ch[j] *= s.cs
	}
}

func scaleFactor(nrm float64) float64 {
	if nrm < 1e-10 {
		return 1
	}
	return clampScale(1 / math.Sqrt(nrm))
}

func clampScale(v float64) float64 {
	if v < scaleMin {
		return scaleMin
	}
	if v > scaleMax {
		return scaleMax
	}
	return v
}

// setRho fills the per-row penalties from the scalar base, weighting equality
// rows more heavily so they converge faster.
func (s *solver) setRho() {
	for i := 0; i < s.m; i++ {
		if i < s.k.Zero {
			s.rho[i] = math.Min(s.rhoBase*s.set.RhoEq, rhoMax)
		} else {
			s.rho[i] = s.rhoBase
		}
	}
}

// factorize caches the Cholesky decomposition of sigma*I + AᵀRA.
func (s *solver) factorize() error {
	ra := mat.NewDense(s.m, s.n, nil)
	for i := 0; i < s.m; i++ {
		for j := 0; j < s.n; j++ {
			ra.Set(i, j, s.rho[i]*s.ah.At(i, j))
		}
	}
	var gram mat.Dense
	gram.Mul(s.ah.T(), ra)
	sym := mat.NewSymDense(s.n, nil)
	for i := 0; i < s.n; i++ {
		for j := i; j < s.n; j++ {
			v := 0.5 * (gram.At(i, j) + gram.At(j, i))
			if i == j {
				v += s.set.Sigma
			}
			sym.SetSym(i, j, v)
		}
	}
	if ok := s.chol.Factorize(sym); !ok {
		return fmt.Errorf("socp: normal equations are not positive definite")
	}
	return nil
}

// updateX solves (sigma*I + AᵀRA) x = sigma*x - c + AᵀR(b - z - u).
func (s *solver) updateX() error {
	w := make([]float64, s.m)
	for i := 0; i < s.m; i++ {
		w[i] = s.rho[i] * (s.bh[i] - s.z[i] - s.u[i])
	}
	var rhs mat.VecDense
	rhs.MulVec(s.ah.T(), mat.NewVecDense(s.m, w))
	for j := 0; j < s.n; j++ {
		rhs.SetVec(j, rhs.AtVec(j)+s.set.Sigma*s.x[j]-s.ch[j])
	}
	xNew := mat.NewVecDense(s.n, s.x)
	if err := s.chol.SolveVecTo(xNew, &rhs); err != nil {
		return fmt.Errorf("socp: x update failed: %v", err)
	}
	var axv mat.VecDense
	axv.MulVec(s.ah, xNew)
	copy(s.ax, axv.RawVector().Data)
	return nil
}

// projectCone writes the Euclidean projection of w onto K into z.
func projectCone(w, z []float64, k Cone) {
	for i := 0; i < k.Zero; i++ {
		z[i] = 0
	}
	for i := k.Zero; i < k.Zero+k.Nonneg; i++ {
		z[i] = math.Max(0, w[i])
	}
	off := k.Zero + k.Nonneg
	for _, q := range k.SOC {
		projectSOC(w[off:off+q], z[off:off+q])
		off += q
	}
}

// projectSOC projects onto {(t, v) : |v| <= t}.
func projectSOC(w, z []float64) {
	t := w[0]
	nv := 0.0
	for _, v := range w[1:] {
		nv += v * v
	}
	nv = math.Sqrt(nv)
	switch {
	case nv <= t:
		copy(z, w)
	case nv <= -t:
		for i := range z {
			z[i] = 0
		}
	default:
		tau := (t + nv) / 2
		z[0] = tau
		scale := tau / nv
		for i, v := range w[1:] {
			z[i+1] = scale * v
		}
	}
}

// unscaledX returns x in the original problem space.
func (s *solver) unscaledX() []float64 {
	xu := make([]float64, s.n)
	for j := 0; j < s.n; j++ {
		xu[j] = s.e[j] * s.x[j]
	}
	return xu
}

// unscaledY returns the dual y = R*u mapped back to the original space.
func (s *solver) unscaledY() []float64 {
	yu := make([]float64, s.m)
	for i := 0; i < s.m; i++ {
		yu[i] = s.d[i] * s.rho[i] * s.u[i] / s.cs
	}
	return yu
}

// aMul computes A*x for a vector in the original space.
func (s *solver) aMul(x []float64) []float64 {
	xs := make([]float64, s.n)
	for j := 0; j < s.n; j++ {
		xs[j] = x[j] / s.e[j]
	}
	var r mat.VecDense
	r.MulVec(s.ah, mat.NewVecDense(s.n, xs))
	out := make([]float64, s.m)
	for i := 0; i < s.m; i++ {
		out[i] = r.AtVec(i) / s.d[i]
	}
	return out
}

// atMul computes Aᵀ*y for a vector in the original space.
func (s *solver) atMul(y []float64) []float64 {
	ys := make([]float64, s.m)
	for i := 0; i < s.m; i++ {
		ys[i] = y[i] / s.d[i]
	}
	var r mat.VecDense
	r.MulVec(s.ah.T(), mat.NewVecDense(s.m, ys))
	out := make([]float64, s.n)
	for j := 0; j < s.n; j++ {
		out[j] = r.AtVec(j) / s.e[j]
	}
	return out
}

func infNorm(v []float64) float64 {
	nrm := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > nrm {
			nrm = a
		}
	}
	return nrm
}

// checkTermination evaluates the unscaled residuals and the infeasibility
// certificates. It returns a final Result when the solve should stop.
func (s *solver) checkTermination(iter int, last bool) (Result, bool) {
	xu := s.unscaledX()
	yu := s.unscaledY()

	axu := make([]float64, s.m)
	zu := make([]float64, s.m)
	rp := make([]float64, s.m)
	for i := 0; i < s.m; i++ {
		axu[i] = s.ax[i] / s.d[i]
		zu[i] = s.z[i] / s.d[i]
		rp[i] = (s.ax[i] + s.z[i] - s.bh[i]) / s.d[i]
	}
	aty := s.atMul(yu)
	rd := make([]float64, s.n)
	for j := 0; j < s.n; j++ {
		rd[j] = s.c[j] + aty[j]
	}

	priRes := infNorm(rp)
	duaRes := infNorm(rd)
	priScale := math.Max(infNorm(axu), math.Max(infNorm(zu), infNorm(s.b)))
	duaScale := math.Max(infNorm(s.c), infNorm(aty))

	obj := 0.0
	for j := 0; j < s.n; j++ {
		obj += s.c[j] * xu[j]
	}

	res := Result{
		X: xu, Y: yu, S: zu,
		Objective:  obj,
		Iterations: iter,
		PriRes:     priRes,
		DuaRes:     duaRes,
	}

	s.relPri = priRes / math.Max(priScale, 1e-12)
	s.relDua = duaRes / math.Max(duaScale, 1e-12)

	epsPri := s.set.EpsAbs + s.set.EpsRel*priScale
	epsDua := s.set.EpsAbs + s.set.EpsRel*duaScale
	if priRes <= epsPri && duaRes <= epsDua {
		res.Status = Solved
		return res, true
	}

	if st, ok := s.certifyInfeasibility(xu, yu); ok {
		res.Status = st
		return res, true
	}
	copy(s.xPrev, xu)
	copy(s.yPrev, yu)

	if last {
		if priRes <= 10*epsPri && duaRes <= 10*epsDua {
			res.Status = SolvedInaccurate
		} else {
			res.Status = MaxIterationsReached
		}
		return res, true
	}
	return res, false
}

// certifyInfeasibility tests the successive-difference sequences of the
// unscaled iterates against the standard conic certificates. A certificate
// must hold on two consecutive checks before it is accepted, so a transient
// direction taken by a non-converged iterate cannot end the solve.
func (s *solver) certifyInfeasibility(xu, yu []float64) (Status, bool) {
	detected := s.detectCertificate(xu, yu)
	if detected == 0 {
		s.candidate = 0
		return 0, false
	}
	if detected == s.candidate {
		return detected, true
	}
	s.candidate = detected
	return 0, false
}

func (s *solver) detectCertificate(xu, yu []float64) Status {
	eps := s.set.EpsInfeas

	// Primal infeasibility: Aᵀdy = 0, dy in the dual cone, bᵀdy < 0. Every
	// tolerance is relative to the magnitude of dy itself.
	dy := make([]float64, s.m)
	for i := range dy {
		dy[i] = yu[i] - s.yPrev[i]
	}
	if ndy := infNorm(dy); ndy > 1e-12 {
		bdy := 0.0
		for i := 0; i < s.m; i++ {
			bdy += s.b[i] * dy[i]
		}
		if bdy < -eps*ndy*math.Max(infNorm(s.b), 1) &&
			infNorm(s.atMul(dy)) <= eps*math.Max(s.aNorm, 1)*ndy &&
			inDualCone(dy, s.k, eps*ndy) {
			return PrimalInfeasible
		}
	}

	// Dual infeasibility: cᵀdx < 0 with -A*dx in the cone (a recession
	// direction of the feasible set).
	dx := make([]float64, s.n)
	for j := range dx {
		dx[j] = xu[j] - s.xPrev[j]
	}
	if ndx := infNorm(dx); ndx > 1e-12 {
		cdx := 0.0
		for j := 0; j < s.n; j++ {
			cdx += s.c[j] * dx[j]
		}
		if cdx < -eps*ndx*math.Max(infNorm(s.c), 1) &&
			coneViolation(s.aMul(dx), s.k) <= eps*math.Max(s.aNorm, 1)*ndx {
			return DualInfeasible
		}
	}
	return 0
}

// inDualCone reports whether y lies in K* within tol. Zero-cone duals are
// free, nonnegative rows must be nonnegative and second-order cones are
// self-dual.
func inDualCone(y []float64, k Cone, tol float64) bool {
	for i := k.Zero; i < k.Zero+k.Nonneg; i++ {
		if y[i] < -tol {
			return false
		}
	}
	off := k.Zero + k.Nonneg
	for _, q := range k.SOC {
		nv := 0.0
		for i := off + 1; i < off+q; i++ {
			nv += y[i] * y[i]
		}
		if math.Sqrt(nv) > y[off]+tol {
			return false
		}
		off += q
	}
	return true
}

// coneViolation measures how far -adx is from K: the worst violation across
// the zero rows, the nonnegative rows and the second-order cone blocks.
func coneViolation(adx []float64, k Cone) float64 {
	worst := 0.0
	for i := 0; i < k.Zero; i++ {
		if a := math.Abs(adx[i]); a > worst {
			worst = a
		}
	}
	for i := k.Zero; i < k.Zero+k.Nonneg; i++ {
		if adx[i] > worst {
			worst = adx[i]
		}
	}
	off := k.Zero + k.Nonneg
	for _, q := range k.SOC {
		nv := 0.0
		for i := off + 1; i < off+q; i++ {
			nv += adx[i] * adx[i]
		}
		if v := math.Sqrt(nv) + adx[off]; v > worst {
			worst = v
		}
		off += q
	}
	return worst
}

// adaptRho rebalances the penalty from the ratio of the relative primal and
// dual residuals and refactorizes when the change is significant. The relative
// form matters: the raw residuals live on the scales of b and c, which can sit
// orders of magnitude apart. The scaled duals are rescaled row by row so the
// underlying multipliers are preserved.
func (s *solver) adaptRho() error {
	ratio := math.Sqrt((s.relPri + 1e-12) / (s.relDua + 1e-12))
	newBase := clampRho(s.rhoBase * ratio)
	if newBase < 5*s.rhoBase && newBase > s.rhoBase/5 {
		return nil
	}
	old := append([]float64(nil), s.rho...)
	s.rhoBase = newBase
	s.setRho()
	for i := 0; i < s.m; i++ {
		s.u[i] *= old[i] / s.rho[i]
	}
	return s.factorize()
}

func clampRho(v float64) float64 {
	if v < rhoMin {
		return rhoMin
	}
	if v > rhoMax {
		return rhoMax
	}
	return v
}
