package analytics

import (
	"math"
	"testing"

	"github.com/aristath/allocator/internal/modules/optimization"
	testingpkg "github.com/aristath/allocator/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func estimate(t *testing.T) *optimization.ReturnStatistics {
	t.Helper()
	rb := optimization.NewRiskModelBuilder(optimization.DefaultEstimatorOptions(), zerolog.Nop())
	stats, err := rb.Estimate([]optimization.Asset{
		testingpkg.RandomWalkAsset("AAA", "", 60, 0.0005, 0.01, 1),
		testingpkg.RandomWalkAsset("BBB", "", 60, 0.0005, 0.01, 2),
	})
	require.NoError(t, err)
	return stats
}

func TestSummarize_KnownSeries(t *testing.T) {
	a := NewAnalyzer(0, zerolog.Nop())
	returns := []float64{0.02, -0.01, 0.02, -0.01}

	perf, err := a.Summarize(returns, 252, nil)
	require.NoError(t, err)

	sd := math.Sqrt(0.0003)
	assert.Equal(t, 4, perf.Observations)
	assert.InDelta(t, 1.02*0.99*1.02*0.99-1, perf.CumulativeReturn, 1e-12)
	assert.InDelta(t, 0.005, perf.ExpectedDailyReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.005, 21)-1, perf.ExpectedMonthlyReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.005, 252)-1, perf.ExpectedYearlyReturn, 1e-9)
	assert.InDelta(t, sd*math.Sqrt(252), perf.Volatility, 1e-12)
	assert.InDelta(t, -0.01, perf.MaxDrawdown, 1e-12)

	sharpe, ok := perf.SharpeRatio.Value()
	require.True(t, ok)
	assert.InDelta(t, 0.005*252/(sd*math.Sqrt(252)), sharpe, 1e-9)

	sortino, ok := perf.SortinoRatio.Value()
	require.True(t, ok)
	assert.InDelta(t, 0.005*252/(0.01*math.Sqrt(252)), sortino, 1e-9)

	assert.False(t, perf.Beta.IsDefined())
}

func TestSummarize_Degenerate(t *testing.T) {
	a := NewAnalyzer(0.01, zerolog.Nop())
	returns := make([]float64, 10)
	for i := range returns {
		returns[i] = 0.001
	}

	perf, err := a.Summarize(returns, 0, returns)
	require.NoError(t, err)
	assert.False(t, perf.SharpeRatio.IsDefined())
	assert.False(t, perf.SortinoRatio.IsDefined())
	assert.False(t, perf.Beta.IsDefined())
	assert.InDelta(t, math.Pow(1.001, 10)-1, perf.CumulativeReturn, 1e-12)
	assert.Equal(t, 0.0, perf.MaxDrawdown)
}

func TestSummarize_Beta(t *testing.T) {
	a := NewAnalyzer(0, zerolog.Nop())
	returns := []float64{0.02, -0.01, 0.03, -0.02, 0.01}
	doubled := make([]float64, len(returns))
	for i, r := range returns {
		doubled[i] = 2 * r
	}

	perf, err := a.Summarize(returns, 252, returns)
	require.NoError(t, err)
	beta, ok := perf.Beta.Value()
	require.True(t, ok)
	assert.InDelta(t, 1.0, beta, 1e-12)

	perf, err = a.Summarize(returns, 252, doubled)
	require.NoError(t, err)
	beta, _ = perf.Beta.Value()
	assert.InDelta(t, 0.5, beta, 1e-12)
}

func TestSummarize_Errors(t *testing.T) {
	a := NewAnalyzer(0, zerolog.Nop())

	_, err := a.Summarize([]float64{0.01}, 252, nil)
	assert.Error(t, err)

	_, err = a.Summarize([]float64{0.01, 0.02, 0.03}, 252, []float64{0.01})
	assert.ErrorContains(t, err, "benchmark has 1 returns")
}

func TestPortfolioReturns(t *testing.T) {
	stats := estimate(t)
	returns := stats.Returns()

	series, err := PortfolioReturns(stats, []float64{1, 0})
	require.NoError(t, err)
	require.Len(t, series, stats.Observations())
	for i, r := range series {
		assert.InDelta(t, returns.At(i, 0), r, 1e-15)
	}

	series, err = PortfolioReturns(stats, []float64{0.25, 0.75})
	require.NoError(t, err)
	assert.InDelta(t, 0.25*returns.At(3, 0)+0.75*returns.At(3, 1), series[3], 1e-15)

	_, err = PortfolioReturns(stats, []float64{1})
	assert.Error(t, err)

	moments, err := optimization.NewReturnStatistics(
		[]string{"A", "B"},
		[]float64{0.05, 0.07},
		[][]float64{{0.04, 0}, {0, 0.09}},
	)
	require.NoError(t, err)
	_, err = PortfolioReturns(moments, []float64{0.5, 0.5})
	assert.ErrorContains(t, err, "no return history")
}

func TestEvaluateReport(t *testing.T) {
	stats := estimate(t)
	agg := optimization.NewResultAggregator(zerolog.Nop())
	report := agg.Aggregate(stats, []optimization.StrategyOutcome{
		{Strategy: optimization.EqualWeight, Portfolio: optimization.Portfolio{Weights: []float64{0.5, 0.5}}},
		{Strategy: optimization.MinimumVariance, Portfolio: optimization.Portfolio{Weights: []float64{0.3, 0.7}}},
	}, 0.01)

	perfs, err := NewAnalyzer(0.01, zerolog.Nop()).EvaluateReport(report, nil)
	require.NoError(t, err)
	require.Len(t, perfs, 2)
	for i, p := range perfs {
		assert.Equal(t, report.Portfolios[i].Strategy, p.Strategy)
		assert.Equal(t, stats.Observations(), p.Observations)
		assert.True(t, p.SharpeRatio.IsDefined())
	}

	_, err = NewAnalyzer(0, zerolog.Nop()).EvaluateReport(&optimization.Report{}, nil)
	assert.Error(t, err)
}
