package universe

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

const (
	// Validation thresholds
	maxPriceMultiplier    = 10.0   // Price > 10x average is abnormal
	minPriceMultiplier    = 0.1    // Price < 0.1x average is abnormal
	maxPriceChangePercent = 1000.0 // >1000% change is a spike
	minPriceChangePercent = -90.0  // <-90% change is a crash
	contextWindowDays     = 30     // Use last 30 accepted closes for context
)

// Rejection records a price that was dropped during cleaning
type Rejection struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
	Reason string  `json:"reason"`
}

// PriceValidator screens imported closes for data errors. Rejected closes are
// dropped rather than repaired; the estimator forward-fills short gaps.
type PriceValidator struct {
	log zerolog.Logger
}

// NewPriceValidator creates a new price validator
func NewPriceValidator(log zerolog.Logger) *PriceValidator {
	return &PriceValidator{
		log: log.With().Str("component", "price_validator").Logger(),
	}
}

// ValidatePrice checks a close against the most recent accepted closes
// (context[0] is the latest). Returns (isValid, reason).
func (v *PriceValidator) ValidatePrice(price DailyPrice, context []DailyPrice) (bool, string) {
	if math.IsNaN(price.Close) || math.IsInf(price.Close, 0) {
		return false, "not_finite"
	}
	if price.Close <= 0 {
		return false, "non_positive"
	}
	if len(context) == 0 {
		return true, ""
	}

	// Day-over-day change takes priority over the average checks
	prevClose := context[0].Close
	changePercent := ((price.Close - prevClose) / prevClose) * 100.0
	if changePercent > maxPriceChangePercent {
		return false, "spike_detected"
	}
	if changePercent < minPriceChangePercent {
		return false, "crash_detected"
	}

	window := context
	if len(window) > contextWindowDays {
		window = window[:contextWindowDays]
	}
	var total float64
	for _, p := range window {
		total += p.Close
	}
	avgPrice := total / float64(len(window))

	if price.Close > avgPrice*maxPriceMultiplier {
		return false, "price_too_high"
	}
	if price.Close < avgPrice*minPriceMultiplier {
		return false, "price_too_low"
	}
	return true, ""
}

// Clean sorts prices by date, keeps the last entry for duplicate dates and
// drops closes that fail validation. The input slice is not modified.
func (v *PriceValidator) Clean(symbol string, prices []DailyPrice) ([]DailyPrice, []Rejection) {
	sorted := make([]DailyPrice, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	deduped := sorted[:0]
	for _, p := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Date == p.Date {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	var (
		accepted []DailyPrice
		rejected []Rejection
		// newest first
		context = make([]DailyPrice, 0, contextWindowDays)
	)
	for _, p := range deduped {
		ok, reason := v.ValidatePrice(p, context)
		if !ok {
			rejected = append(rejected, Rejection{Symbol: symbol, Date: p.Date, Close: p.Close, Reason: reason})
			v.log.Debug().
				Str("symbol", symbol).
				Str("date", p.Date).
				Float64("close", p.Close).
				Str("reason", reason).
				Msg("Rejected abnormal price")
			continue
		}
		accepted = append(accepted, p)
		if len(context) < contextWindowDays {
			context = append(context, DailyPrice{})
		}
		copy(context[1:], context[:len(context)-1])
		context[0] = p
	}

	if len(rejected) > 0 {
		v.log.Info().
			Str("symbol", symbol).
			Int("rejected", len(rejected)).
			Int("accepted", len(accepted)).
			Msg("Price series cleaned")
	}
	return accepted, rejected
}
