package optimization

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// syntheticAsset generates a deterministic geometric random walk of days+1 prices.
func syntheticAsset(ticker, sector string, days int, drift, vol float64, seed int64) Asset {
	rng := rand.New(rand.NewSource(seed))
	prices := make([]PricePoint, days+1)
	price := 100.0
	for i := range prices {
		if i > 0 {
			price *= 1 + drift + vol*rng.NormFloat64()
		}
		prices[i] = PricePoint{Date: testStart.AddDate(0, 0, i), Close: price}
	}
	return Asset{Ticker: ticker, Sector: sector, Prices: prices}
}

// withoutDays removes the observations at the given offsets.
func withoutDays(a Asset, offsets ...int) Asset {
	skip := make(map[int]bool, len(offsets))
	for _, o := range offsets {
		skip[o] = true
	}
	out := a
	out.Prices = nil
	for i, p := range a.Prices {
		if !skip[i] {
			out.Prices = append(out.Prices, p)
		}
	}
	return out
}

func diagStats(t *testing.T) *ReturnStatistics {
	t.Helper()
	stats, err := NewReturnStatistics(
		[]string{"A", "B", "C"},
		[]float64{0.08, 0.05, 0.12},
		[][]float64{
			{0.04, 0, 0},
			{0, 0.01, 0},
			{0, 0, 0.09},
		},
	)
	require.NoError(t, err)
	return stats
}

func unitBounds(t *testing.T, tickers []string, maxWeight float64) *ConstraintSet {
	t.Helper()
	cm := NewConstraintsManager(1, testLogger())
	cs, err := cm.BuildConstraints(Preferences{MaxWeight: maxWeight}, tickers)
	require.NoError(t, err)
	return cs
}

func assertFeasible(t *testing.T, w []float64, cs *ConstraintSet) {
	t.Helper()
	require.Len(t, w, cs.Len())
	var total float64
	for i, v := range w {
		require.GreaterOrEqual(t, v, cs.lower[i]-FeasibilityTolerance, "weight %d below lower bound", i)
		require.LessOrEqual(t, v, cs.upper[i]+FeasibilityTolerance, "weight %d above upper bound", i)
		total += v
	}
	require.InDelta(t, 1.0, total, FeasibilityTolerance)
}
