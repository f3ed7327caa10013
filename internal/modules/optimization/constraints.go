package optimization

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ConstraintSet holds per-asset weight bounds aligned with a ticker order.
// Built once per run and never modified.
type ConstraintSet struct {
	tickers         []string
	lower           []float64
	upper           []float64
	excludedSectors []string
	forceInclude    []string
	allowShort      bool
}

// Len returns the number of assets.
func (cs *ConstraintSet) Len() int { return len(cs.tickers) }

// Tickers returns the asset order of the bounds.
func (cs *ConstraintSet) Tickers() []string { return append([]string(nil), cs.tickers...) }

// Lower returns the lower bounds.
func (cs *ConstraintSet) Lower() []float64 { return append([]float64(nil), cs.lower...) }

// Upper returns the upper bounds.
func (cs *ConstraintSet) Upper() []float64 { return append([]float64(nil), cs.upper...) }

// Bounds returns the bounds of one ticker.
func (cs *ConstraintSet) Bounds(ticker string) (Bounds, bool) {
	for i, t := range cs.tickers {
		if t == ticker {
			return Bounds{Lower: cs.lower[i], Upper: cs.upper[i]}, true
		}
	}
	return Bounds{}, false
}

// ExcludedSectors returns the sectors removed from the universe.
func (cs *ConstraintSet) ExcludedSectors() []string {
	return append([]string(nil), cs.excludedSectors...)
}

// ForceIncluded returns the tickers that bypass sector and risk filters.
func (cs *ConstraintSet) ForceIncluded() []string { return append([]string(nil), cs.forceInclude...) }

// AllowShort reports whether negative lower bounds are permitted.
func (cs *ConstraintSet) AllowShort() bool { return cs.allowShort }

// alignedTo checks that the bounds follow the statistics' asset order.
func (cs *ConstraintSet) alignedTo(stats *ReturnStatistics) error {
	if len(cs.tickers) != len(stats.tickers) {
		return fmt.Errorf("constraint set has %d assets, statistics have %d", len(cs.tickers), len(stats.tickers))
	}
	for i := range cs.tickers {
		if cs.tickers[i] != stats.tickers[i] {
			return fmt.Errorf("constraint set ticker %s at position %d doesn't match statistics ticker %s",
				cs.tickers[i], i, stats.tickers[i])
		}
	}
	return nil
}

// ConstraintSummary provides an overview of a constraint set.
type ConstraintSummary struct {
	Assets          int      `json:"assets"`
	BoundedAssets   int      `json:"bounded_assets"`
	SumLower        float64  `json:"sum_lower"`
	SumUpper        float64  `json:"sum_upper"`
	ExcludedSectors []string `json:"excluded_sectors,omitempty"`
	ForceIncluded   []string `json:"force_included,omitempty"`
	AllowShort      bool     `json:"allow_short"`
}

// ConstraintsManager translates user preferences into filters and bounds.
type ConstraintsManager struct {
	defaultMaxWeight float64
	log              zerolog.Logger
}

// NewConstraintsManager creates a constraints manager. defaultMaxWeight caps
// each asset when preferences do not; values outside (0, 1] mean 1.
func NewConstraintsManager(defaultMaxWeight float64, log zerolog.Logger) *ConstraintsManager {
	if defaultMaxWeight <= 0 || defaultMaxWeight > 1 {
		defaultMaxWeight = 1
	}
	return &ConstraintsManager{
		defaultMaxWeight: defaultMaxWeight,
		log:              log.With().Str("component", "constraints_manager").Logger(),
	}
}

// FilterUniverse removes assets in excluded sectors and assets riskier than the
// tolerance. Force-included tickers bypass both filters.
func (cm *ConstraintsManager) FilterUniverse(assets []Asset, prefs Preferences) ([]Asset, []DroppedAsset) {
	excluded := make(map[string]bool, len(prefs.ExcludedSectors))
	for _, s := range prefs.ExcludedSectors {
		excluded[normalizeSector(s)] = true
	}
	forced := make(map[string]bool, len(prefs.ForceInclude))
	for _, t := range prefs.ForceInclude {
		forced[t] = true
	}

	kept := make([]Asset, 0, len(assets))
	var dropped []DroppedAsset
	found := make(map[string]bool, len(forced))
	for _, a := range assets {
		if forced[a.Ticker] {
			found[a.Ticker] = true
			kept = append(kept, a)
			continue
		}
		if excluded[normalizeSector(a.Sector)] {
			dropped = append(dropped, DroppedAsset{Ticker: a.Ticker, Reason: DropExcludedSector})
			continue
		}
		if prefs.RiskTolerance > 0 && a.RiskScore > prefs.RiskTolerance {
			dropped = append(dropped, DroppedAsset{Ticker: a.Ticker, Reason: DropRiskTolerance})
			continue
		}
		kept = append(kept, a)
	}

	for t := range forced {
		if !found[t] {
			cm.log.Warn().Str("ticker", t).Msg("Force-included ticker not in universe")
		}
	}

	cm.log.Debug().
		Int("universe", len(assets)).
		Int("kept", len(kept)).
		Int("dropped", len(dropped)).
		Msg("Filtered universe")

	return kept, dropped
}

// BuildConstraints produces bounds for tickers: the uniform [MinWeight, MaxWeight]
// default plus per-ticker overrides. It returns an InfeasibleConstraintError
// naming the violated bound when no weight vector can satisfy the result.
func (cm *ConstraintsManager) BuildConstraints(prefs Preferences, tickers []string) (*ConstraintSet, error) {
	n := len(tickers)
	if n == 0 {
		return nil, &InsufficientDataError{RequiredAssets: 1, Reason: "no assets to constrain"}
	}

	maxWeight := prefs.MaxWeight
	if maxWeight == 0 {
		maxWeight = cm.defaultMaxWeight
	}

	cs := &ConstraintSet{
		tickers:         append([]string(nil), tickers...),
		lower:           make([]float64, n),
		upper:           make([]float64, n),
		excludedSectors: sortedCopy(prefs.ExcludedSectors),
		forceInclude:    sortedCopy(prefs.ForceInclude),
		allowShort:      prefs.AllowShort,
	}

	index := make(map[string]int, n)
	for i, t := range tickers {
		index[t] = i
		cs.lower[i] = prefs.MinWeight
		cs.upper[i] = maxWeight
	}
	for t, b := range prefs.Overrides {
		i, ok := index[t]
		if !ok {
			cm.log.Warn().Str("ticker", t).Msg("Ignoring bound override for ticker outside universe")
			continue
		}
		cs.lower[i] = b.Lower
		cs.upper[i] = b.Upper
	}

	var sumLower, sumUpper float64
	for i, t := range tickers {
		lo, hi := cs.lower[i], cs.upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi || hi > 1 {
			return nil, &InfeasibleConstraintError{Bound: BoundAsset, Ticker: t, Lower: lo, Upper: hi}
		}
		if lo < 0 && !prefs.AllowShort {
			return nil, &InfeasibleConstraintError{Bound: BoundShort, Ticker: t, Lower: lo, Upper: hi}
		}
		sumLower += lo
		sumUpper += hi
	}
	if sumLower > 1+sumTolerance {
		return nil, &InfeasibleConstraintError{Bound: BoundSumLower, Value: sumLower, Limit: 1}
	}
	if sumUpper < 1-sumTolerance {
		return nil, &InfeasibleConstraintError{Bound: BoundSumUpper, Value: sumUpper, Limit: 1}
	}

	cm.log.Debug().
		Int("assets", n).
		Float64("sum_lower", sumLower).
		Float64("sum_upper", sumUpper).
		Msg("Built constraints")

	return cs, nil
}

// Summary returns diagnostics for a constraint set.
func (cm *ConstraintsManager) Summary(cs *ConstraintSet) ConstraintSummary {
	s := ConstraintSummary{
		Assets:          cs.Len(),
		ExcludedSectors: cs.ExcludedSectors(),
		ForceIncluded:   cs.ForceIncluded(),
		AllowShort:      cs.allowShort,
	}
	for i := range cs.tickers {
		s.SumLower += cs.lower[i]
		s.SumUpper += cs.upper[i]
		if cs.lower[i] > 0 || cs.upper[i] < 1 {
			s.BoundedAssets++
		}
	}
	return s
}

func normalizeSector(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortedCopy(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
