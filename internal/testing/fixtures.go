package testing

import (
	"math/rand"
	"time"

	"github.com/aristath/allocator/internal/modules/optimization"
)

// FixtureStart is the first price date of generated fixtures
var FixtureStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// RandomWalkAsset generates a deterministic geometric random walk of days+1
// daily closes starting at 50.
func RandomWalkAsset(ticker, sector string, days int, drift, vol float64, seed int64) optimization.Asset {
	rng := rand.New(rand.NewSource(seed))
	prices := make([]optimization.PricePoint, days+1)
	price := 50.0
	for i := range prices {
		if i > 0 {
			price *= 1 + drift + vol*rng.NormFloat64()
		}
		prices[i] = optimization.PricePoint{Date: FixtureStart.AddDate(0, 0, i), Close: price}
	}
	return optimization.Asset{Ticker: ticker, Sector: sector, Prices: prices}
}

// NewUniverseFixtures returns three uncorrelated assets in distinct sectors
// with 120 daily returns each.
func NewUniverseFixtures() []optimization.Asset {
	return []optimization.Asset{
		RandomWalkAsset("AAA", "Technology", 120, 0.0005, 0.012, 1),
		RandomWalkAsset("BBB", "Energy", 120, 0.0005, 0.012, 2),
		RandomWalkAsset("CCC", "Utilities", 120, 0.0005, 0.012, 3),
	}
}
