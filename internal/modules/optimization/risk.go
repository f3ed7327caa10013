package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/allocator/pkg/formulas"
)

// Estimator defaults
const (
	DefaultMinObservations    = 30
	DefaultMaxGapRun          = 3
	DefaultPeriodsPerYear     = formulas.TradingDaysPerYear
	DefaultConditionThreshold = 1e8
	DefaultShrinkageIntensity = 1e-6
)

// dateLayout keys observations by calendar day.
const dateLayout = "2006-01-02"

// ReturnKind selects how prices become returns.
type ReturnKind int

const (
	SimpleReturns ReturnKind = iota
	LogReturns
)

func (k ReturnKind) String() string {
	if k == LogReturns {
		return "log"
	}
	return "simple"
}

// ParseReturnKind accepts "simple" or "log".
func ParseReturnKind(s string) (ReturnKind, error) {
	switch s {
	case "", "simple":
		return SimpleReturns, nil
	case "log":
		return LogReturns, nil
	default:
		return SimpleReturns, fmt.Errorf("unknown return kind: %q", s)
	}
}

// EstimatorOptions configures RiskModelBuilder.
type EstimatorOptions struct {
	MinObservations    int        // minimum aligned returns per asset
	MaxGapRun          int        // longest forward-fillable run of missing observations
	ReturnKind         ReturnKind // simple or log returns
	PeriodsPerYear     int        // annualization factor, 0 keeps periodic units
	ConditionThreshold float64    // λmax/λmin above which Σ is regularized
	ShrinkageIntensity float64    // initial δ for the ε·I shift
}

// DefaultEstimatorOptions returns daily-data defaults.
func DefaultEstimatorOptions() EstimatorOptions {
	return EstimatorOptions{
		MinObservations:    DefaultMinObservations,
		MaxGapRun:          DefaultMaxGapRun,
		ReturnKind:         SimpleReturns,
		PeriodsPerYear:     DefaultPeriodsPerYear,
		ConditionThreshold: DefaultConditionThreshold,
		ShrinkageIntensity: DefaultShrinkageIntensity,
	}
}

// RiskModelBuilder turns price histories into ReturnStatistics.
type RiskModelBuilder struct {
	opts EstimatorOptions
	log  zerolog.Logger
}

// NewRiskModelBuilder creates an estimator. Out-of-range options fall back to defaults.
func NewRiskModelBuilder(opts EstimatorOptions, log zerolog.Logger) *RiskModelBuilder {
	if opts.MinObservations <= 0 {
		opts.MinObservations = DefaultMinObservations
	}
	if opts.MaxGapRun < 0 {
		opts.MaxGapRun = 0
	}
	if opts.PeriodsPerYear < 0 {
		opts.PeriodsPerYear = 0
	}
	if opts.ConditionThreshold <= 1 {
		opts.ConditionThreshold = DefaultConditionThreshold
	}
	if opts.ShrinkageIntensity <= 0 {
		opts.ShrinkageIntensity = DefaultShrinkageIntensity
	}
	return &RiskModelBuilder{
		opts: opts,
		log:  log.With().Str("component", "risk_model").Logger(),
	}
}

// Options returns the effective estimator options.
func (rb *RiskModelBuilder) Options() EstimatorOptions {
	return rb.opts
}

// series is one asset's validated, day-keyed history.
type series struct {
	asset  Asset
	days   []string
	closes []float64
}

// Estimate aligns the price histories and computes expected returns and a
// regularized covariance matrix. Assets with too little history or with a gap
// longer than MaxGapRun are dropped and reported; fewer than two survivors is
// an InsufficientDataError.
func (rb *RiskModelBuilder) Estimate(assets []Asset) (*ReturnStatistics, error) {
	var dropped []DroppedAsset
	var candidates []series

	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		if seen[a.Ticker] {
			return nil, fmt.Errorf("%w: duplicate ticker %s", ErrInvalidPriceSeries, a.Ticker)
		}
		seen[a.Ticker] = true

		s, err := validateSeries(a)
		if err != nil {
			return nil, err
		}
		if len(s.days) < rb.opts.MinObservations+1 {
			rb.log.Debug().
				Str("ticker", a.Ticker).
				Int("prices", len(s.days)).
				Msg("Dropping asset with insufficient history")
			dropped = append(dropped, DroppedAsset{Ticker: a.Ticker, Reason: DropInsufficientHistory})
			continue
		}
		candidates = append(candidates, s)
	}

	if len(candidates) < 2 {
		return nil, &InsufficientDataError{
			Assets:               len(candidates),
			RequiredAssets:       2,
			RequiredObservations: rb.opts.MinObservations,
			Reason:               "fewer than two assets with enough history",
		}
	}

	start, end := candidates[0].days[0], candidates[0].days[len(candidates[0].days)-1]
	for _, s := range candidates[1:] {
		if first := s.days[0]; first > start {
			start = first
		}
		if last := s.days[len(s.days)-1]; last < end {
			end = last
		}
	}
	if start > end {
		return nil, &InsufficientDataError{
			Assets:               len(candidates),
			RequiredAssets:       2,
			RequiredObservations: rb.opts.MinObservations,
			Reason:               fmt.Sprintf("price histories do not overlap (window %s..%s)", start, end),
		}
	}

	index := unionIndex(candidates, start, end)
	if len(index)-1 < rb.opts.MinObservations {
		return nil, &InsufficientDataError{
			Assets:               len(candidates),
			RequiredAssets:       2,
			Observations:         len(index) - 1,
			RequiredObservations: rb.opts.MinObservations,
			Reason:               fmt.Sprintf("common window %s..%s is too short", start, end),
		}
	}

	var survivors []series
	var aligned [][]float64
	for _, s := range candidates {
		closes, longestGap := alignSeries(s, index)
		if longestGap > rb.opts.MaxGapRun {
			rb.log.Debug().
				Str("ticker", s.asset.Ticker).
				Int("gap", longestGap).
				Int("max_gap", rb.opts.MaxGapRun).
				Msg("Dropping asset with price gap")
			dropped = append(dropped, DroppedAsset{Ticker: s.asset.Ticker, Reason: DropPriceGap})
			continue
		}
		survivors = append(survivors, s)
		aligned = append(aligned, closes)
	}

	if len(survivors) < 2 {
		return nil, &InsufficientDataError{
			Assets:               len(survivors),
			RequiredAssets:       2,
			Observations:         len(index) - 1,
			RequiredObservations: rb.opts.MinObservations,
			Reason:               "fewer than two assets without long price gaps",
		}
	}

	n := len(survivors)
	t := len(index) - 1
	returns := mat.NewDense(t, n, nil)
	for j, closes := range aligned {
		var r []float64
		if rb.opts.ReturnKind == LogReturns {
			r = formulas.LogReturns(closes)
		} else {
			r = formulas.SimpleReturns(closes)
		}
		returns.SetCol(j, r)
	}

	scale := 1.0
	if rb.opts.PeriodsPerYear > 0 {
		scale = float64(rb.opts.PeriodsPerYear)
	}

	expected := make([]float64, n)
	col := make([]float64, t)
	for j := 0; j < n; j++ {
		mat.Col(col, j, returns)
		expected[j] = stat.Mean(col, nil) * scale
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, returns, nil)
	cov.ScaleSym(scale, cov)

	shrinkage, condition, err := regularizeCovariance(cov, rb.opts.ConditionThreshold, rb.opts.ShrinkageIntensity)
	if err != nil {
		return nil, err
	}
	if shrinkage > 0 {
		rb.log.Info().
			Float64("shrinkage", shrinkage).
			Float64("condition_number", condition).
			Msg("Regularized ill-conditioned covariance matrix")
	}

	tickers := make([]string, n)
	sectors := make([]string, n)
	for j, s := range survivors {
		tickers[j] = s.asset.Ticker
		sectors[j] = s.asset.Sector
	}

	rb.log.Debug().
		Int("assets", n).
		Int("dropped", len(dropped)).
		Int("observations", t).
		Str("start", index[1]).
		Str("end", index[t]).
		Msg("Estimated return statistics")

	return &ReturnStatistics{
		tickers:        tickers,
		sectors:        sectors,
		expected:       expected,
		cov:            cov,
		returns:        returns,
		dates:          append([]string(nil), index[1:]...),
		periodsPerYear: rb.opts.PeriodsPerYear,
		regularized:    shrinkage > 0,
		shrinkage:      shrinkage,
		condition:      condition,
		dropped:        dropped,
	}, nil
}

func validateSeries(a Asset) (series, error) {
	s := series{
		asset:  a,
		days:   make([]string, len(a.Prices)),
		closes: make([]float64, len(a.Prices)),
	}
	for i, p := range a.Prices {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			return series{}, fmt.Errorf("%w: %s has non-positive close %v on %s",
				ErrInvalidPriceSeries, a.Ticker, p.Close, p.Date.Format(dateLayout))
		}
		day := p.Date.UTC().Format(dateLayout)
		if i > 0 && day <= s.days[i-1] {
			return series{}, fmt.Errorf("%w: %s prices are not strictly increasing at %s",
				ErrInvalidPriceSeries, a.Ticker, day)
		}
		s.days[i] = day
		s.closes[i] = p.Close
	}
	return s, nil
}

// unionIndex returns every observation day of any series within [start, end].
func unionIndex(all []series, start, end string) []string {
	set := make(map[string]struct{})
	for _, s := range all {
		lo := sort.SearchStrings(s.days, start)
		for _, d := range s.days[lo:] {
			if d > end {
				break
			}
			set[d] = struct{}{}
		}
	}
	index := make([]string, 0, len(set))
	for d := range set {
		index = append(index, d)
	}
	sort.Strings(index)
	return index
}

// alignSeries forward-fills s onto index and returns the aligned closes with
// the longest run of consecutive filled observations. Every series starts on or
// before index[0], so a prior close always exists.
func alignSeries(s series, index []string) ([]float64, int) {
	closes := make([]float64, len(index))
	pos, run, longest := 0, 0, 0
	last := math.NaN()
	for k, day := range index {
		for pos < len(s.days) && s.days[pos] <= day {
			last = s.closes[pos]
			pos++
		}
		if pos > 0 && s.days[pos-1] == day {
			run = 0
		} else {
			run++
			if run > longest {
				longest = run
			}
		}
		closes[k] = last
	}
	return closes, longest
}
