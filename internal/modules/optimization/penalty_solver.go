package optimization

import (
	"context"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// PenaltySolver minimizes over the bound box with the budget constraint folded in
// as a quadratic penalty, using gonum's BFGS and falling back to Nelder-Mead.
// The final point is projected onto the feasible polytope. Projection can undo
// the progress made on the box, so the projected start is returned instead when
// it scores better, and the solve is then not reported as converged.
//
// gonum's optimizer does not observe the context, so cancellation is only
// checked before and between the two methods.
type PenaltySolver struct {
	MaxIterations int
	PenaltyWeight float64
}

// NewPenaltySolver returns the penalty backend. A non-positive penalty weight means 1000.
func NewPenaltySolver(maxIterations int, penaltyWeight float64) *PenaltySolver {
	if penaltyWeight <= 0 {
		penaltyWeight = 1000
	}
	return &PenaltySolver{MaxIterations: maxIterations, PenaltyWeight: penaltyWeight}
}

func (s *PenaltySolver) Name() string {
	return "penalty_bfgs"
}

// Solve runs BFGS and, when it does not report convergence, Nelder-Mead.
func (s *PenaltySolver) Solve(ctx context.Context, p Problem, start []float64) (Solution, error) {
	if err := p.validate(); err != nil {
		return Solution{}, err
	}
	n := p.Dim()
	lower, upper := p.Lower, p.Upper

	boxed := func(dst, x []float64) {
		for i := range x {
			dst[i] = clip(x[i], lower[i], upper[i])
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := make([]float64, n)
			boxed(w, x)
			residual := sum(w) - 1
			return p.value(w) + s.PenaltyWeight*residual*residual
		},
		Grad: func(grad, x []float64) {
			w := make([]float64, n)
			boxed(w, x)
			p.gradient(grad, w)
			residual := sum(w) - 1
			for i := range grad {
				grad[i] += 2 * s.PenaltyWeight * residual
			}
		},
	}

	initial := make([]float64, n)
	projectFeasible(initial, start, lower, upper)

	settings := &optimize.Settings{}
	if s.MaxIterations > 0 {
		settings.MajorIterations = s.MaxIterations
	}

	if err := ctx.Err(); err != nil {
		return Solution{Weights: initial, Objective: p.value(initial), Status: StatusCancelled}, err
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	iterations := 0
	if result != nil {
		iterations = result.MajorIterations
	}
	if err != nil || result == nil || !penaltyConverged(result.Status) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Solution{Weights: initial, Objective: p.value(initial), Iterations: iterations, Status: StatusCancelled}, ctxErr
		}
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if result != nil {
			iterations += result.MajorIterations
		}
	}

	if result == nil {
		return Solution{Weights: initial, Objective: p.value(initial), Iterations: iterations, Status: StatusNumericalFailure}, nil
	}

	w := make([]float64, n)
	boxed(w, result.X)
	projectFeasible(w, w, lower, upper)

	status := StatusConverged
	switch {
	case err != nil:
		status = StatusNumericalFailure
	case !penaltyConverged(result.Status):
		status = StatusIterationLimit
	}

	value := p.value(w)
	if startValue := p.value(initial); startValue < value-1e-12*(1+math.Abs(value)) || math.IsNaN(value) {
		if status == StatusConverged {
			status = StatusNumericalFailure
		}
		return Solution{Weights: initial, Objective: startValue, Iterations: iterations, Status: status}, nil
	}
	return Solution{Weights: w, Objective: value, Iterations: iterations, Status: status}, nil
}

func penaltyConverged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}
