package optimization

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ActiveSetQP is a primal active-set method for min wᵀQw subject to Σw = 1 and
// box bounds. Q must be positive definite on the feasible directions, which
// the estimator's regularization guarantees.
type ActiveSetQP struct {
	MaxIterations int
}

// NewActiveSetQP returns the QP backend with an iteration budget.
// A non-positive budget means 50·n + 100 iterations.
func NewActiveSetQP(maxIterations int) *ActiveSetQP {
	return &ActiveSetQP{MaxIterations: maxIterations}
}

func (s *ActiveSetQP) Name() string {
	return "active_set_qp"
}

type boundState int8

const (
	stateFree boundState = iota
	stateLower
	stateUpper
	stateFixed
)

// Solve runs the active-set iteration from the projection of start.
func (s *ActiveSetQP) Solve(ctx context.Context, p Problem, start []float64) (Solution, error) {
	if err := p.validate(); err != nil {
		return Solution{}, err
	}
	if p.Quadratic == nil {
		return Solution{}, errors.New("active set solver requires a quadratic objective")
	}

	n := p.Dim()
	q := p.Quadratic
	lower, upper := p.Lower, p.Upper
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 50*n + 100
	}

	x := make([]float64, n)
	projectFeasible(x, start, lower, upper)

	state := make([]boundState, n)
	for i := 0; i < n; i++ {
		switch {
		case upper[i]-lower[i] <= boundTolerance:
			state[i] = stateFixed
			x[i] = lower[i]
		case x[i]-lower[i] <= boundTolerance:
			state[i] = stateLower
			x[i] = lower[i]
		case upper[i]-x[i] <= boundTolerance:
			state[i] = stateUpper
			x[i] = upper[i]
		}
	}
	// Snapping may have moved the sum; free variables absorb it.
	redistribute(x, lower, upper)

	g := make([]float64, n)
	step := make([]float64, n)
	free := make([]int, 0, n)

	finish := func(iter int, status Status) Solution {
		return Solution{Weights: x, Objective: quadForm(q, x), Iterations: iter, Status: status}
	}

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			sol := finish(iter, StatusCancelled)
			return sol, err
		}

		p.gradient(g, x)

		free = free[:0]
		for i := 0; i < n; i++ {
			if state[i] == stateFree {
				free = append(free, i)
			}
		}

		var nu float64
		for i := range step {
			step[i] = 0
		}
		if len(free) > 0 {
			var ok bool
			nu, ok = solveEqualityQP(q, g, free, step)
			if !ok {
				return finish(iter, StatusNumericalFailure), nil
			}
		} else {
			nu = vertexMultiplier(g, state)
		}

		if maxAbs(step) <= 1e-14 {
			// Stationary on the current face: check the sign of the bound multipliers.
			tol := 1e-12 + 1e-9*maxAbs(g)
			release, worst := -1, tol
			for i := 0; i < n; i++ {
				z := g[i] + nu
				switch state[i] {
				case stateLower:
					if -z > worst {
						release, worst = i, -z
					}
				case stateUpper:
					if z > worst {
						release, worst = i, z
					}
				}
			}
			if release < 0 {
				return finish(iter+1, StatusConverged), nil
			}
			state[release] = stateFree
			continue
		}

		alpha, blocking, blockState := 1.0, -1, stateFree
		for _, i := range free {
			switch {
			case step[i] < 0:
				if a := (lower[i] - x[i]) / step[i]; a < alpha {
					alpha, blocking, blockState = a, i, stateLower
				}
			case step[i] > 0:
				if a := (upper[i] - x[i]) / step[i]; a < alpha {
					alpha, blocking, blockState = a, i, stateUpper
				}
			}
		}
		alpha = math.Max(alpha, 0)
		for _, i := range free {
			x[i] = clip(x[i]+alpha*step[i], lower[i], upper[i])
		}
		if blocking >= 0 {
			state[blocking] = blockState
			if blockState == stateLower {
				x[blocking] = lower[blocking]
			} else {
				x[blocking] = upper[blocking]
			}
		}
	}

	return finish(maxIter, StatusIterationLimit), nil
}

// solveEqualityQP solves the KKT system of the equality-constrained subproblem
// on the free variables:
//
//	[2Q_FF  1] [p_F]   [-g_F]
//	[1ᵀ     0] [ν  ] = [ 0  ]
//
// writing p_F into step and returning ν.
func solveEqualityQP(q *mat.SymDense, g []float64, free []int, step []float64) (float64, bool) {
	m := len(free)
	kkt := mat.NewDense(m+1, m+1, nil)
	rhs := mat.NewVecDense(m+1, nil)
	for a, i := range free {
		for b, j := range free {
			kkt.Set(a, b, 2*q.At(i, j))
		}
		kkt.Set(a, m, 1)
		kkt.Set(m, a, 1)
		rhs.SetVec(a, -g[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return 0, false
		}
	}
	for a, i := range free {
		v := sol.AtVec(a)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		step[i] = v
	}
	return sol.AtVec(m), true
}

// vertexMultiplier picks the budget multiplier at a vertex, where every
// variable sits on a bound. Feasible multipliers lie in [max_L(−g), min_U(−g)];
// the midpoint is used so the most violated bound is released first.
func vertexMultiplier(g []float64, state []boundState) float64 {
	lo, hi := math.Inf(-1), math.Inf(1)
	for i, st := range state {
		switch st {
		case stateLower:
			lo = math.Max(lo, -g[i])
		case stateUpper:
			hi = math.Min(hi, -g[i])
		}
	}
	switch {
	case math.IsInf(lo, -1) && math.IsInf(hi, 1):
		return 0
	case math.IsInf(lo, -1):
		return hi
	case math.IsInf(hi, 1):
		return lo
	default:
		return (lo + hi) / 2
	}
}
