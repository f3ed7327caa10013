// Package formulas provides small statistical helpers over return series.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the conventional annualization factor for daily data.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// SimpleReturns converts prices to percentage returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// LogReturns converts prices to continuously compounded returns.
// Non-positive prices yield a zero return for that period.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns[i-1] = math.Log(prices[i] / prices[i-1])
		}
	}
	return returns
}

// AnnualizedVolatility scales the standard deviation of periodic returns by sqrt(periodsPerYear).
func AnnualizedVolatility(returns []float64, periodsPerYear float64) float64 {
	return StdDev(returns) * math.Sqrt(periodsPerYear)
}

// CumulativeReturn compounds periodic returns: (1+r1)*(1+r2)*...*(1+rN) - 1
func CumulativeReturn(returns []float64) float64 {
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	return cumulative - 1
}

// CAGR annualizes the compounded return of a periodic series.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
//
// Series shorter than 3 periods return the plain cumulative return to avoid
// extreme annualization.
func CAGR(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	growth := 1 + CumulativeReturn(returns)
	if len(returns) < 3 || periodsPerYear <= 0 {
		return growth - 1
	}
	if growth <= 0 {
		return -1
	}

	years := float64(len(returns)) / periodsPerYear
	return math.Pow(growth, 1/years) - 1
}

// DownsideDeviation is the root mean square of the negative returns, annualized.
func DownsideDeviation(returns []float64, periodsPerYear float64) float64 {
	var sumSq float64
	count := 0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSq/float64(count)) * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns the deepest peak-to-trough decline of the compounded series
// as a non-positive fraction (e.g. -0.25 for a 25% drawdown).
func MaxDrawdown(returns []float64) float64 {
	value := 1.0
	peak := 1.0
	worst := 0.0
	for _, r := range returns {
		value *= 1 + r
		if value > peak {
			peak = value
		}
		if dd := value/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

// degenerateStdDev is the dispersion below which higher moments are reported as 0.
const degenerateStdDev = 1e-15

// Skewness returns the sample skewness, or 0 for degenerate series.
func Skewness(data []float64) float64 {
	if len(data) < 3 || StdDev(data) < degenerateStdDev {
		return 0
	}
	return stat.Skew(data, nil)
}

// ExcessKurtosis returns the sample excess kurtosis, or 0 for degenerate series.
func ExcessKurtosis(data []float64) float64 {
	if len(data) < 4 || StdDev(data) < degenerateStdDev {
		return 0
	}
	return stat.ExKurtosis(data, nil)
}

// Beta is cov(asset, market) / var(market); 0 when the market series has no variance.
func Beta(asset, market []float64) float64 {
	if len(asset) != len(market) {
		return 0
	}
	marketVar := Variance(market)
	if marketVar < degenerateStdDev*degenerateStdDev {
		return 0
	}
	return Covariance(asset, market) / marketVar
}
