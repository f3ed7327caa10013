package optimization

import (
	"math"
)

// finalizeWeights clamps w into its bounds, snaps values within tolerance of a
// bound onto it, and moves any residual 1 − Σw onto assets with slack.
// The result satisfies bounds and Σw = 1 within FeasibilityTolerance.
func finalizeWeights(w, lower, upper []float64) ([]float64, error) {
	out := make([]float64, len(w))
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = lower[i]
		}
		v = clip(v, lower[i], upper[i])
		if v-lower[i] <= boundTolerance {
			v = lower[i]
		} else if upper[i]-v <= boundTolerance {
			v = upper[i]
		}
		out[i] = v
	}
	if !redistribute(out, lower, upper) {
		return nil, infeasibleSum(lower, upper)
	}
	return out, nil
}

// equalWeightAllocation assigns 1/n to every asset, clips to bounds and moves the
// residual onto assets with slack, proportionally to that slack.
func equalWeightAllocation(lower, upper []float64) ([]float64, error) {
	n := len(lower)
	w := equalWeights(n)
	for i := range w {
		w[i] = clip(w[i], lower[i], upper[i])
	}
	if !redistribute(w, lower, upper) {
		return nil, infeasibleSum(lower, upper)
	}
	return w, nil
}

func infeasibleSum(lower, upper []float64) error {
	if sl := sum(lower); sl > 1 {
		return &InfeasibleConstraintError{Bound: BoundSumLower, Value: sl, Limit: 1}
	}
	return &InfeasibleConstraintError{Bound: BoundSumUpper, Value: sum(upper), Limit: 1}
}

// newPortfolio derives the portfolio metrics from weights.
func newPortfolio(strategy Strategy, stats *ReturnStatistics, weights []float64, info SolverInfo, riskFreeRate float64) Portfolio {
	ret := stats.portfolioReturn(weights)
	vol := math.Sqrt(stats.portfolioVariance(weights))
	return Portfolio{
		Strategy:       strategy,
		Tickers:        stats.Tickers(),
		Weights:        append([]float64(nil), weights...),
		ExpectedReturn: ret,
		Volatility:     vol,
		SharpeRatio:    sharpeRatio(ret, vol, riskFreeRate),
		Solver:         info,
	}
}

// minVolatility is the volatility below which the Sharpe ratio is undefined.
const minVolatility = 1e-12

func sharpeRatio(ret, vol, riskFreeRate float64) Metric {
	if vol < minVolatility {
		return Undefined
	}
	return DefinedMetric((ret - riskFreeRate) / vol)
}
