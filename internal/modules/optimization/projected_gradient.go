package optimization

import (
	"context"
	"math"
)

// ProjectedGradient minimizes a smooth objective over the feasible polytope with
// Barzilai-Borwein steps, Armijo backtracking and exact projection.
type ProjectedGradient struct {
	MaxIterations int
	// Tolerance bounds ‖w − P(w − ∇f(w))‖∞ at a stationary point.
	Tolerance float64
}

// NewProjectedGradient returns the gradient backend.
// Non-positive arguments select 5000 iterations and a 1e-9 tolerance.
func NewProjectedGradient(maxIterations int, tolerance float64) *ProjectedGradient {
	if maxIterations <= 0 {
		maxIterations = 5000
	}
	if tolerance <= 0 {
		tolerance = 1e-9
	}
	return &ProjectedGradient{MaxIterations: maxIterations, Tolerance: tolerance}
}

func (s *ProjectedGradient) Name() string {
	return "projected_gradient"
}

const (
	armijoFactor  = 1e-4
	maxBacktracks = 60
	minStep       = 1e-12
	maxStep       = 1e12
)

// Solve iterates from the projection of start until the projected gradient vanishes.
func (s *ProjectedGradient) Solve(ctx context.Context, p Problem, start []float64) (Solution, error) {
	if err := p.validate(); err != nil {
		return Solution{}, err
	}
	n := p.Dim()
	lower, upper := p.Lower, p.Upper

	x := make([]float64, n)
	projectFeasible(x, start, lower, upper)
	f := p.value(x)
	g := make([]float64, n)
	p.gradient(g, x)

	trial := make([]float64, n)
	dir := make([]float64, n)
	xNew := make([]float64, n)
	gNew := make([]float64, n)

	alpha := 1.0
	if gmax := maxAbs(g); gmax > 0 {
		alpha = 1 / gmax
	}

	for iter := 0; iter < s.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Solution{Weights: x, Objective: f, Iterations: iter, Status: StatusCancelled}, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Solution{Weights: x, Objective: f, Iterations: iter, Status: StatusNumericalFailure}, nil
		}

		if s.stationary(x, g, trial, lower, upper) {
			return Solution{Weights: x, Objective: f, Iterations: iter, Status: StatusConverged}, nil
		}

		for i := 0; i < n; i++ {
			trial[i] = x[i] - alpha*g[i]
		}
		projectFeasible(trial, trial, lower, upper)
		for i := 0; i < n; i++ {
			dir[i] = trial[i] - x[i]
		}
		slope := dot(g, dir)
		if slope >= 0 || maxAbs(dir) <= 1e-15 {
			// No descent left along the projected arc.
			return Solution{Weights: x, Objective: f, Iterations: iter + 1, Status: StatusConverged}, nil
		}

		t := 1.0
		var fNew float64
		accepted := false
		for k := 0; k < maxBacktracks; k++ {
			for i := 0; i < n; i++ {
				xNew[i] = x[i] + t*dir[i]
			}
			fNew = p.value(xNew)
			if fNew <= f+armijoFactor*t*slope {
				accepted = true
				break
			}
			t /= 2
		}
		if !accepted {
			return Solution{Weights: x, Objective: f, Iterations: iter + 1, Status: StatusNumericalFailure}, nil
		}
		p.gradient(gNew, xNew)

		var ss, sy float64
		for i := 0; i < n; i++ {
			si := xNew[i] - x[i]
			yi := gNew[i] - g[i]
			ss += si * si
			sy += si * yi
		}
		if sy > 0 {
			alpha = math.Min(math.Max(ss/sy, minStep), maxStep)
		} else {
			alpha = math.Min(alpha*2, maxStep)
		}

		copy(x, xNew)
		copy(g, gNew)
		f = fNew
	}

	if s.stationary(x, g, trial, lower, upper) {
		return Solution{Weights: x, Objective: f, Iterations: s.MaxIterations, Status: StatusConverged}, nil
	}
	return Solution{Weights: x, Objective: f, Iterations: s.MaxIterations, Status: StatusIterationLimit}, nil
}

func (s *ProjectedGradient) stationary(x, g, scratch, lower, upper []float64) bool {
	for i := range x {
		scratch[i] = x[i] - g[i]
	}
	projectFeasible(scratch, scratch, lower, upper)
	var residual float64
	for i := range x {
		residual = math.Max(residual, math.Abs(x[i]-scratch[i]))
	}
	return residual <= s.Tolerance
}
