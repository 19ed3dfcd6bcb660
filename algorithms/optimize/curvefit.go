package optimize

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrMaxEvaluations is returned when the evaluation budget runs out before convergence
	ErrMaxEvaluations = errors.New("optimal parameters not found: maximum number of function evaluations exceeded")

	// ErrSingular is returned when the damped normal equations cannot be factorized
	ErrSingular = errors.New("singular system: parameters are not identifiable from the data")

	// ErrStalled is returned when no trial step lowers the cost while the
	// projected gradient is still far from zero
	ErrStalled = errors.New("optimal parameters not found: no step reduces the cost")

	// ErrTooFewPoints is returned when there are fewer data points than parameters
	ErrTooFewPoints = errors.New("number of data points is smaller than the number of parameters")

	// ErrNonFinite is returned when the model produces NaN or Inf at the starting point
	ErrNonFinite = errors.New("residuals are not finite at the initial point")

	// ErrDimensionMismatch is returned for inconsistent input lengths
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidBounds is returned when a lower bound is not strictly below its upper bound
	ErrInvalidBounds = errors.New("each lower bound must be strictly less than each upper bound")
)

// ModelFunc evaluates a model at every x for the given parameters
type ModelFunc func(x, params []float64) []float64

// JacobianFunc returns the len(x) by len(params) matrix of partial derivatives
type JacobianFunc func(x, params []float64) *mat.Dense

// Problem describes a curve fitting problem: find params minimising
// sum((Func(X, params) - Y)^2).
type Problem struct {
	X    []float64
	Y    []float64
	Func ModelFunc

	// Jac is optional. When nil a forward-difference approximation is used.
	Jac JacobianFunc
}

// Settings controls solver termination
type Settings struct {
	// MaxEvaluations bounds the number of model evaluations used for residuals.
	// Finite-difference Jacobian evaluations are not counted.
	MaxEvaluations int

	FTol float64 // relative reduction of the cost
	XTol float64 // relative change of the parameters
	GTol float64 // infinity norm of the projected gradient
}

// DefaultSettings returns tolerances that mirror common least-squares defaults
func DefaultSettings() Settings {
	return Settings{
		MaxEvaluations: 5000,
		FTol:           1e-8,
		XTol:           1e-8,
		GTol:           1e-8,
	}
}

// Result holds the solution of a curve fit
type Result struct {
	Params      []float64
	Cost        float64 // half the residual sum of squares
	Evaluations int
	Iterations  int
}

const (
	lambdaInit = 1e-3
	lambdaUp   = 10.0
	lambdaDown = 10.0
	lambdaMin  = 1e-15
	lambdaMax  = 1e16

	// relative floor on the damping term, keeps near-zero diagonals factorizable
	dampFloor = 1e-12
)

// Unbounded returns lower/upper bound slices of length n set to -Inf/+Inf
func Unbounded(n int) (lower, upper []float64) {
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := range n {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return lower, upper
}

// CurveFit solves a box-constrained nonlinear least-squares problem with a
// projected Levenberg-Marquardt iteration.
//
// The starting point is clipped into [lower, upper]. At each iteration the
// parameters sitting on a bound whose gradient points outward are frozen, the
// remaining ones take a damped Gauss-Newton step and the trial point is
// projected back onto the box. Damping follows Marquardt's diagonal scaling
// with a floor. A parameter whose Jacobian column is entirely zero does not
// affect the model and keeps its current value.
func CurveFit(p Problem, guess, lower, upper []float64, s Settings) (*Result, error) {
	n := len(guess)
	m := len(p.X)

	if p.Func == nil {
		return nil, fmt.Errorf("%w: nil model function", ErrDimensionMismatch)
	}
	if len(p.Y) != m {
		return nil, fmt.Errorf("%w: %d x values, %d y values", ErrDimensionMismatch, m, len(p.Y))
	}
	if len(lower) != n || len(upper) != n {
		return nil, fmt.Errorf("%w: %d parameters, bounds of length %d and %d", ErrDimensionMismatch, n, len(lower), len(upper))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no parameters", ErrDimensionMismatch)
	}
	if m < n {
		return nil, fmt.Errorf("%w (%d < %d)", ErrTooFewPoints, m, n)
	}
	for i := range n {
		if !(lower[i] < upper[i]) {
			return nil, fmt.Errorf("%w: parameter %d has [%g, %g]", ErrInvalidBounds, i, lower[i], upper[i])
		}
	}
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = DefaultSettings().MaxEvaluations
	}

	x := make([]float64, n)
	for i := range n {
		x[i] = clip(guess[i], lower[i], upper[i])
	}

	residuals := func(params []float64) ([]float64, bool) {
		model := p.Func(p.X, params)
		if len(model) != m {
			return nil, false
		}
		r := make([]float64, m)
		floats.SubTo(r, model, p.Y)
		for _, v := range r {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return r, false
			}
		}
		return r, true
	}

	r, ok := residuals(x)
	if !ok {
		return nil, ErrNonFinite
	}
	evals := 1
	cost := 0.5 * floats.Dot(r, r)

	jacobian := p.Jac
	if jacobian == nil {
		jacobian = forwardDifference(p.Func, upper)
	}

	lambda := 0.0
	xTrial := make([]float64, n)

	for iter := 0; ; iter++ {
		J := jacobian(p.X, x)
		if rows, cols := J.Dims(); rows != m || cols != n {
			return nil, fmt.Errorf("%w: jacobian is %dx%d, want %dx%d", ErrDimensionMismatch, rows, cols, m, n)
		}
		if !denseFinite(J) {
			return nil, fmt.Errorf("%w: jacobian contains NaN or Inf", ErrSingular)
		}

		var g mat.VecDense
		g.MulVec(J.T(), mat.NewVecDense(m, r))
		var A mat.SymDense
		A.SymOuterK(1, J.T())

		free := freeParams(x, g.RawVector().Data, lower, upper)
		for i := range free {
			if A.At(i, i) == 0 {
				free[i] = false
			}
		}
		gradNorm := projectedGradNorm(g.RawVector().Data, free)
		if gradNorm <= s.GTol {
			return &Result{Params: x, Cost: cost, Evaluations: evals, Iterations: iter}, nil
		}

		if lambda == 0 {
			lambda = lambdaInit
		}

		for {
			if evals >= s.MaxEvaluations {
				return nil, fmt.Errorf("%w (%d)", ErrMaxEvaluations, s.MaxEvaluations)
			}

			step, solved := dampedStep(&A, g.RawVector().Data, free, lambda)
			if !solved {
				lambda *= lambdaUp
				if lambda > lambdaMax {
					return nil, ErrSingular
				}
				continue
			}

			for i := range n {
				xTrial[i] = clip(x[i]+step[i], lower[i], upper[i])
			}

			rTrial, finite := residuals(xTrial)
			evals++
			if finite {
				costTrial := 0.5 * floats.Dot(rTrial, rTrial)
				if costTrial < cost {
					reduction := cost - costTrial
					stepNorm := floats.Distance(xTrial, x, 2)

					prevCost := cost
					copy(x, xTrial)
					r = rTrial
					cost = costTrial
					lambda = math.Max(lambda/lambdaDown, lambdaMin)

					if reduction <= s.FTol*prevCost || stepNorm <= s.XTol*(s.XTol+floats.Norm(x, 2)) {
						return &Result{Params: x, Cost: cost, Evaluations: evals, Iterations: iter + 1}, nil
					}
					break
				}
			}

			lambda *= lambdaUp
			if lambda > lambdaMax {
				// no step helps at any damping; only a flat gradient counts as converged
				if gradNorm <= math.Sqrt(s.GTol)*math.Max(1, floats.Norm(r, 2)) {
					return &Result{Params: x, Cost: cost, Evaluations: evals, Iterations: iter + 1}, nil
				}
				return nil, fmt.Errorf("%w (projected gradient %g)", ErrStalled, gradNorm)
			}
		}
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// freeParams marks parameters that are allowed to move this iteration.
// g is the gradient of the cost, so descent is along -g.
func freeParams(x, g, lower, upper []float64) []bool {
	free := make([]bool, len(x))
	for i := range x {
		atLower := x[i] <= lower[i] && g[i] > 0
		atUpper := x[i] >= upper[i] && g[i] < 0
		free[i] = !atLower && !atUpper
	}
	return free
}

func projectedGradNorm(g []float64, free []bool) float64 {
	norm := 0.0
	for i, v := range g {
		if free[i] {
			norm = math.Max(norm, math.Abs(v))
		}
	}
	return norm
}

// dampedStep solves (A_ff + lambda*D_ff) dx_f = -g_f over the free set, where
// D_ii = max(A_ii, dampFloor*max_j A_jj)
func dampedStep(A *mat.SymDense, g []float64, free []bool, lambda float64) ([]float64, bool) {
	idx := make([]int, 0, len(free))
	for i, f := range free {
		if f {
			idx = append(idx, i)
		}
	}
	step := make([]float64, len(free))
	if len(idx) == 0 {
		return step, true
	}

	floor := 0.0
	for _, i := range idx {
		floor = math.Max(floor, A.At(i, i))
	}
	floor *= dampFloor

	k := len(idx)
	reduced := mat.NewSymDense(k, nil)
	rhs := mat.NewVecDense(k, nil)
	for a, i := range idx {
		for b := a; b < k; b++ {
			reduced.SetSym(a, b, A.At(i, idx[b]))
		}
		d := A.At(i, i)
		reduced.SetSym(a, a, d+lambda*math.Max(d, floor))
		rhs.SetVec(a, -g[i])
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(reduced); !ok {
		return nil, false
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rhs); err != nil {
		return nil, false
	}
	for a, i := range idx {
		v := sol.AtVec(a)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		step[i] = v
	}
	return step, true
}

// forwardDifference builds a finite-difference Jacobian. Steps are taken
// towards the interior when a parameter sits on its upper bound.
func forwardDifference(f ModelFunc, upper []float64) JacobianFunc {
	return func(x, params []float64) *mat.Dense {
		n := len(params)
		base := f(x, params)
		J := mat.NewDense(len(x), n, nil)
		shifted := make([]float64, n)
		eps := math.Sqrt(2.220446049250313e-16)
		for j := range n {
			copy(shifted, params)
			h := eps * math.Max(1, math.Abs(params[j]))
			if params[j]+h > upper[j] {
				h = -h
			}
			shifted[j] = params[j] + h
			h = shifted[j] - params[j]
			moved := f(x, shifted)
			for i := range x {
				J.Set(i, j, (moved[i]-base[i])/h)
			}
		}
		return J
	}
}

func denseFinite(d *mat.Dense) bool {
	rows, cols := d.Dims()
	for i := range rows {
		for j := range cols {
			v := d.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
