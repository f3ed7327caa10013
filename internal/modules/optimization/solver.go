package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// sumTolerance is how far Σw may drift from 1 before weights are renormalized.
	sumTolerance = 1e-12
	// boundTolerance snaps weights within this distance onto their bound.
	boundTolerance = 1e-12
	// FeasibilityTolerance is the guarantee given to callers on bounds and Σw = 1.
	FeasibilityTolerance = 1e-6
)

// Status is the terminal state of a solve.
type Status int

const (
	StatusConverged Status = iota
	StatusIterationLimit
	StatusNumericalFailure
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusNumericalFailure:
		return "numerical_failure"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Problem is a minimization over the polytope {Σw = 1, Lower ≤ w ≤ Upper}.
// When Quadratic is set the objective is wᵀQw and Objective/Gradient may be nil.
type Problem struct {
	Quadratic *mat.SymDense
	Objective func(w []float64) float64
	Gradient  func(grad, w []float64)
	Lower     []float64
	Upper     []float64
}

// Dim returns the number of decision variables.
func (p Problem) Dim() int {
	return len(p.Lower)
}

func (p Problem) validate() error {
	n := len(p.Lower)
	if n == 0 {
		return fmt.Errorf("empty problem")
	}
	if len(p.Upper) != n {
		return fmt.Errorf("bounds length mismatch: lower=%d upper=%d", n, len(p.Upper))
	}
	if p.Quadratic != nil {
		if p.Quadratic.SymmetricDim() != n {
			return fmt.Errorf("quadratic term is %dx%d, expected %d", p.Quadratic.SymmetricDim(), p.Quadratic.SymmetricDim(), n)
		}
	} else if p.Objective == nil || p.Gradient == nil {
		return fmt.Errorf("problem needs either a quadratic term or objective and gradient")
	}
	if err := checkBounds(p.Lower, p.Upper); err != nil {
		return err
	}
	return nil
}

func (p Problem) value(w []float64) float64 {
	if p.Quadratic != nil {
		return quadForm(p.Quadratic, w)
	}
	return p.Objective(w)
}

func (p Problem) gradient(grad, w []float64) {
	if p.Quadratic != nil {
		symMulVec(grad, p.Quadratic, w)
		for i := range grad {
			grad[i] *= 2
		}
		return
	}
	p.Gradient(grad, w)
}

// Solution is the best point a solver found. Weights are feasible even when
// Status is not StatusConverged.
type Solution struct {
	Weights    []float64
	Objective  float64
	Iterations int
	Status     Status
}

// Converged reports whether the solve reached its optimality criterion.
func (s Solution) Converged() bool {
	return s.Status == StatusConverged
}

// Solver minimizes a Problem starting from a (possibly infeasible) point.
// An error is returned for malformed problems and context cancellation;
// non-convergence is reported through Solution.Status.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p Problem, start []float64) (Solution, error)
}

func checkBounds(lower, upper []float64) error {
	var sumLower, sumUpper float64
	for i := range lower {
		if lower[i] > upper[i] {
			return &InfeasibleConstraintError{Bound: BoundAsset, Ticker: fmt.Sprintf("#%d", i), Lower: lower[i], Upper: upper[i]}
		}
		sumLower += lower[i]
		sumUpper += upper[i]
	}
	if sumLower > 1+sumTolerance {
		return &InfeasibleConstraintError{Bound: BoundSumLower, Value: sumLower, Limit: 1}
	}
	if sumUpper < 1-sumTolerance {
		return &InfeasibleConstraintError{Bound: BoundSumUpper, Value: sumUpper, Limit: 1}
	}
	return nil
}

// projectFeasible writes into out the Euclidean projection of v onto
// {Σw = 1, lower ≤ w ≤ upper}. The projection is w_i = clip(v_i − τ) where τ
// is found by bisection on the monotone map τ ↦ Σ clip(v_i − τ).
func projectFeasible(out, v, lower, upper []float64) {
	n := len(v)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		lo = math.Min(lo, v[i]-upper[i])
		hi = math.Max(hi, v[i]-lower[i])
	}
	clipped := func(tau float64) float64 {
		var s float64
		for i := 0; i < n; i++ {
			s += clip(v[i]-tau, lower[i], upper[i])
		}
		return s
	}
	for iter := 0; iter < 200 && hi-lo > 1e-16*(1+math.Abs(lo)+math.Abs(hi)); iter++ {
		mid := lo + (hi-lo)/2
		if clipped(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	tau := lo + (hi-lo)/2
	for i := 0; i < n; i++ {
		out[i] = clip(v[i]-tau, lower[i], upper[i])
	}
	redistribute(out, lower, upper)
}

// redistribute moves the residual 1 − Σw onto assets that still have slack in
// the residual's direction, proportionally to that slack. It reports false when
// the available slack cannot absorb the residual.
func redistribute(w, lower, upper []float64) bool {
	for pass := 0; pass < 8; pass++ {
		residual := 1 - sum(w)
		if math.Abs(residual) <= sumTolerance {
			return true
		}
		var total float64
		slack := make([]float64, len(w))
		for i := range w {
			if residual > 0 {
				slack[i] = math.Max(upper[i]-w[i], 0)
			} else {
				slack[i] = math.Max(w[i]-lower[i], 0)
			}
			total += slack[i]
		}
		if total <= 0 || total < math.Abs(residual)-sumTolerance {
			return false
		}
		for i := range w {
			if slack[i] == 0 {
				continue
			}
			w[i] = clip(w[i]+residual*slack[i]/total, lower[i], upper[i])
		}
	}
	return math.Abs(1-sum(w)) <= FeasibilityTolerance
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func maxAbs(x []float64) float64 {
	var m float64
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// symMulVec computes dst = A·x.
func symMulVec(dst []float64, a *mat.SymDense, x []float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += a.At(i, j) * x[j]
		}
		dst[i] = s
	}
}

// quadForm computes xᵀAx.
func quadForm(a *mat.SymDense, x []float64) float64 {
	xv := mat.NewVecDense(len(x), x)
	return mat.Inner(xv, a, xv)
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
