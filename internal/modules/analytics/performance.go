// Package analytics computes realized performance statistics of allocations
// over their historical return window.
package analytics

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

const (
	// Periods per month when compounding the expected periodic return
	monthsPerYear = 12
	minDeviation  = 1e-12
)

// Performance is the realized behaviour of one weight vector over the window.
type Performance struct {
	Strategy              optimization.Strategy `json:"strategy"`
	Observations          int                   `json:"observations"`
	CumulativeReturn      float64               `json:"cumulative_return"`
	CAGR                  float64               `json:"cagr"`
	ExpectedDailyReturn   float64               `json:"expected_daily_return"`
	ExpectedMonthlyReturn float64               `json:"expected_monthly_return"`
	ExpectedYearlyReturn  float64               `json:"expected_yearly_return"`
	Volatility            float64               `json:"volatility"`
	SharpeRatio           optimization.Metric   `json:"sharpe_ratio"`
	SortinoRatio          optimization.Metric   `json:"sortino_ratio"`
	MaxDrawdown           float64               `json:"max_drawdown"`
	Skewness              float64               `json:"skewness"`
	ExcessKurtosis        float64               `json:"excess_kurtosis"`
	Beta                  optimization.Metric   `json:"beta"`
}

// Analyzer evaluates portfolios against the return history they were fit on.
type Analyzer struct {
	riskFreeRate float64
	log          zerolog.Logger
}

// NewAnalyzer creates an analyzer using an annual risk-free rate.
func NewAnalyzer(riskFreeRate float64, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "analytics").Logger(),
	}
}

// PortfolioReturns returns the periodic returns of a weight vector over the
// aligned return matrix of stats.
func PortfolioReturns(stats *optimization.ReturnStatistics, weights []float64) ([]float64, error) {
	returns := stats.Returns()
	if returns == nil {
		return nil, fmt.Errorf("return statistics carry no return history")
	}
	rows, cols := returns.Dims()
	if len(weights) != cols {
		return nil, fmt.Errorf("got %d weights for %d assets", len(weights), cols)
	}

	series := mat.NewVecDense(rows, nil)
	series.MulVec(returns, mat.NewVecDense(cols, append([]float64(nil), weights...)))
	return series.RawVector().Data, nil
}

// Summarize computes performance statistics of a periodic return series.
// benchmark may be nil; when present it must have the same length as returns.
func (a *Analyzer) Summarize(returns []float64, periodsPerYear int, benchmark []float64) (Performance, error) {
	if len(returns) < 2 {
		return Performance{}, fmt.Errorf("need at least 2 returns, got %d", len(returns))
	}
	if benchmark != nil && len(benchmark) != len(returns) {
		return Performance{}, fmt.Errorf("benchmark has %d returns, portfolio has %d", len(benchmark), len(returns))
	}
	if periodsPerYear <= 0 {
		periodsPerYear = formulas.TradingDaysPerYear
	}
	ppy := float64(periodsPerYear)

	mean := formulas.Mean(returns)
	volatility := formulas.AnnualizedVolatility(returns, ppy)
	excess := mean*ppy - a.riskFreeRate

	perf := Performance{
		Observations:          len(returns),
		CumulativeReturn:      formulas.CumulativeReturn(returns),
		CAGR:                  formulas.CAGR(returns, ppy),
		ExpectedDailyReturn:   mean,
		ExpectedMonthlyReturn: math.Pow(1+mean, ppy/monthsPerYear) - 1,
		ExpectedYearlyReturn:  math.Pow(1+mean, ppy) - 1,
		Volatility:            volatility,
		SharpeRatio:           optimization.Undefined,
		SortinoRatio:          optimization.Undefined,
		MaxDrawdown:           formulas.MaxDrawdown(returns),
		Skewness:              formulas.Skewness(returns),
		ExcessKurtosis:        formulas.ExcessKurtosis(returns),
		Beta:                  optimization.Undefined,
	}

	if volatility >= minDeviation {
		perf.SharpeRatio = optimization.DefinedMetric(excess / volatility)
	}
	if downside := formulas.DownsideDeviation(returns, ppy); downside >= minDeviation {
		perf.SortinoRatio = optimization.DefinedMetric(excess / downside)
	}
	if benchmark != nil && formulas.StdDev(benchmark) >= minDeviation {
		perf.Beta = optimization.DefinedMetric(formulas.Beta(returns, benchmark))
	}
	return perf, nil
}

// EvaluateReport summarizes every portfolio of a report over the report's
// return window. Reports built from precomputed moments yield an error.
func (a *Analyzer) EvaluateReport(report *optimization.Report, benchmark []float64) ([]Performance, error) {
	stats := report.ReturnStatistics()
	if stats == nil {
		return nil, fmt.Errorf("report carries no return statistics")
	}

	out := make([]Performance, 0, len(report.Portfolios))
	for _, p := range report.Portfolios {
		series, err := PortfolioReturns(stats, p.Weights)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Strategy, err)
		}
		perf, err := a.Summarize(series, stats.PeriodsPerYear(), benchmark)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Strategy, err)
		}
		perf.Strategy = p.Strategy
		out = append(out, perf)
	}

	a.log.Debug().Str("run_id", report.RunID).Int("portfolios", len(out)).Msg("Evaluated report performance")
	return out, nil
}
