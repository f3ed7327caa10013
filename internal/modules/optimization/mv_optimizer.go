package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"
)

// Optimizer defaults
const (
	DefaultRiskFreeRate = 0.01
	DefaultRestarts     = 5
	DefaultRestartSeed  = 42
)

// Max Sharpe solver backends. Minimum variance always uses the active-set QP.
const (
	BackendProjectedGradient = "projected_gradient"
	BackendPenalty           = "penalty"
)

// ValidateBackend reports whether name is a known max Sharpe backend. Empty means the default.
func ValidateBackend(name string) error {
	switch name {
	case "", BackendProjectedGradient, BackendPenalty:
		return nil
	default:
		return fmt.Errorf("unknown solver backend %q (want %s or %s)", name, BackendProjectedGradient, BackendPenalty)
	}
}

// OptimizerOptions configures the strategies.
type OptimizerOptions struct {
	RiskFreeRate  float64 // annual, in the same units as expected returns
	Restarts      int     // random restarts for max Sharpe, on top of the fixed starts
	RestartSeed   int64
	MaxIterations int    // per-solve budget, 0 lets each solver choose
	Backend       string // max Sharpe backend, empty for projected gradient
}

// DefaultOptimizerOptions returns the defaults.
func DefaultOptimizerOptions() OptimizerOptions {
	return OptimizerOptions{
		RiskFreeRate: DefaultRiskFreeRate,
		Restarts:     DefaultRestarts,
		RestartSeed:  DefaultRestartSeed,
	}
}

// MVOptimizer runs the allocation strategies over return statistics.
type MVOptimizer struct {
	opts      OptimizerOptions
	quadratic Solver
	nonlinear Solver
	log       zerolog.Logger
}

// NewMVOptimizer creates an optimizer with the active-set QP for minimum
// variance and, unless opts.Backend selects the penalty solver, projected
// gradient for maximum Sharpe.
func NewMVOptimizer(opts OptimizerOptions, log zerolog.Logger) *MVOptimizer {
	if opts.Restarts < 0 {
		opts.Restarts = 0
	}
	var nonlinear Solver = NewProjectedGradient(opts.MaxIterations, 0)
	if opts.Backend == BackendPenalty {
		nonlinear = NewPenaltySolver(opts.MaxIterations, 0)
	}
	return &MVOptimizer{
		opts:      opts,
		quadratic: NewActiveSetQP(opts.MaxIterations),
		nonlinear: nonlinear,
		log:       log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// WithSolvers returns a copy of the optimizer using the given backends.
// A nil solver keeps the current one.
func (mvo *MVOptimizer) WithSolvers(quadratic, nonlinear Solver) *MVOptimizer {
	c := *mvo
	if quadratic != nil {
		c.quadratic = quadratic
	}
	if nonlinear != nil {
		c.nonlinear = nonlinear
	}
	return &c
}

// RiskFreeRate returns the rate used for Sharpe ratios.
func (mvo *MVOptimizer) RiskFreeRate() float64 {
	return mvo.opts.RiskFreeRate
}

// SolverNames returns the names of the minimum variance and max Sharpe backends.
func (mvo *MVOptimizer) SolverNames() (quadratic, nonlinear string) {
	return mvo.quadratic.Name(), mvo.nonlinear.Name()
}

// Optimize runs one strategy. The ConstraintSet must follow the statistics' ticker order.
func (mvo *MVOptimizer) Optimize(ctx context.Context, strategy Strategy, stats *ReturnStatistics, cs *ConstraintSet) (Portfolio, error) {
	if stats == nil || cs == nil {
		return Portfolio{}, errors.New("statistics and constraints are required")
	}
	if err := cs.alignedTo(stats); err != nil {
		return Portfolio{}, err
	}

	switch strategy {
	case MinimumVariance:
		return mvo.minimumVariance(ctx, stats, cs)
	case MaximumSharpe:
		return mvo.maximumSharpe(ctx, stats, cs)
	case EqualWeight:
		return mvo.equalWeight(stats, cs)
	default:
		return Portfolio{}, fmt.Errorf("unknown strategy: %s", strategy)
	}
}

// minimumVariance minimizes wᵀΣw.
func (mvo *MVOptimizer) minimumVariance(ctx context.Context, stats *ReturnStatistics, cs *ConstraintSet) (Portfolio, error) {
	sol, err := mvo.solveMinVariance(ctx, stats, cs)
	if err != nil {
		return Portfolio{}, err
	}
	weights, err := finalizeWeights(sol.Weights, cs.lower, cs.upper)
	if err != nil {
		return Portfolio{}, err
	}
	info := SolverInfo{Solver: mvo.quadratic.Name(), Iterations: sol.Iterations, Objective: sol.Objective}
	return newPortfolio(MinimumVariance, stats, weights, info, mvo.opts.RiskFreeRate), nil
}

func (mvo *MVOptimizer) solveMinVariance(ctx context.Context, stats *ReturnStatistics, cs *ConstraintSet) (Solution, error) {
	problem := Problem{Quadratic: stats.cov, Lower: cs.lower, Upper: cs.upper}
	sol, err := mvo.quadratic.Solve(ctx, problem, equalWeights(stats.Len()))
	if err != nil {
		return Solution{}, err
	}
	if !sol.Converged() {
		return Solution{}, &SolverDidNotConvergeError{
			Strategy:   MinimumVariance,
			Solver:     mvo.quadratic.Name(),
			Iterations: sol.Iterations,
			Status:     sol.Status,
		}
	}
	return sol, nil
}

// maximumSharpe maximizes (μᵀw − r_f)/sqrt(wᵀΣw) by minimizing its negative
// from several feasible starts: equal weight, the minimum-variance solution,
// then seeded random points. At least one restart must converge. The best point
// seen, starts included, wins; ties keep the earlier one.
func (mvo *MVOptimizer) maximumSharpe(ctx context.Context, stats *ReturnStatistics, cs *ConstraintSet) (Portfolio, error) {
	n := stats.Len()
	mu := stats.expected
	cov := stats.cov
	rf := mvo.opts.RiskFreeRate

	sigmaW := make([]float64, n)
	problem := Problem{
		Objective: func(w []float64) float64 {
			excess := dot(mu, w) - rf
			vol := math.Sqrt(math.Max(quadForm(cov, w), 1e-20))
			return -excess / vol
		},
		Gradient: func(grad, w []float64) {
			symMulVec(sigmaW, cov, w)
			excess := dot(mu, w) - rf
			variance := math.Max(dot(w, sigmaW), 1e-20)
			vol := math.Sqrt(variance)
			for i := range grad {
				grad[i] = -mu[i]/vol + excess*sigmaW[i]/(variance*vol)
			}
		},
		Lower: cs.lower,
		Upper: cs.upper,
	}

	first, err := equalWeightAllocation(cs.lower, cs.upper)
	if err != nil {
		first = equalWeights(n)
	}
	starts := [][]float64{first}
	if mv, err := mvo.solveMinVariance(ctx, stats, cs); err == nil {
		starts = append(starts, mv.Weights)
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		return Portfolio{}, ctxErr
	} else {
		mvo.log.Debug().Err(err).Msg("Minimum variance start unavailable for max Sharpe")
	}
	starts = append(starts, randomStarts(n, mvo.opts.Restarts, mvo.opts.RestartSeed)...)

	var best Solution
	found := false
	consider := func(w []float64, objective float64) {
		if math.IsNaN(objective) {
			return
		}
		if !found || objective < best.Objective-1e-12*(1+math.Abs(best.Objective)) {
			best = Solution{Weights: append([]float64(nil), w...), Objective: objective}
			found = true
		}
	}

	feasible := make([]float64, n)
	converged := 0
	totalIterations := 0
	lastStatus := StatusConverged
	for k, start := range starts {
		// A start is itself a candidate, so the result never scores below it.
		projectFeasible(feasible, start, cs.lower, cs.upper)
		consider(feasible, problem.value(feasible))

		sol, err := mvo.nonlinear.Solve(ctx, problem, start)
		if err != nil {
			return Portfolio{}, err
		}
		totalIterations += sol.Iterations
		if !sol.Converged() {
			lastStatus = sol.Status
			mvo.log.Debug().
				Int("start", k).
				Str("status", sol.Status.String()).
				Int("iterations", sol.Iterations).
				Msg("Max Sharpe restart did not converge")
			continue
		}
		converged++
		consider(sol.Weights, sol.Objective)
	}

	if converged == 0 || !found {
		return Portfolio{}, &SolverDidNotConvergeError{
			Strategy:   MaximumSharpe,
			Solver:     mvo.nonlinear.Name(),
			Iterations: totalIterations,
			Restarts:   len(starts),
			Status:     lastStatus,
		}
	}

	weights, err := finalizeWeights(best.Weights, cs.lower, cs.upper)
	if err != nil {
		return Portfolio{}, err
	}
	info := SolverInfo{
		Solver:     mvo.nonlinear.Name(),
		Iterations: totalIterations,
		Restarts:   len(starts),
		Objective:  -best.Objective,
	}
	return newPortfolio(MaximumSharpe, stats, weights, info, rf), nil
}

// equalWeight assigns 1/n, redistributing around bounds.
func (mvo *MVOptimizer) equalWeight(stats *ReturnStatistics, cs *ConstraintSet) (Portfolio, error) {
	weights, err := equalWeightAllocation(cs.lower, cs.upper)
	if err != nil {
		return Portfolio{}, err
	}
	return newPortfolio(EqualWeight, stats, weights, SolverInfo{Solver: "closed_form"}, mvo.opts.RiskFreeRate), nil
}

// randomStarts draws count points uniformly from the simplex (normalized
// exponential variates). Solvers project them onto the bounds.
func randomStarts(n, count int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	starts := make([][]float64, count)
	for k := range starts {
		w := make([]float64, n)
		var total float64
		for i := range w {
			w[i] = rng.ExpFloat64()
			total += w[i]
		}
		for i := range w {
			w[i] /= total
		}
		starts[k] = w
	}
	return starts
}
