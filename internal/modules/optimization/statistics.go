package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ReturnStatistics is the estimator output consumed by every strategy.
// It is immutable; accessors return copies.
type ReturnStatistics struct {
	tickers        []string
	sectors        []string
	expected       []float64
	cov            *mat.SymDense
	returns        *mat.Dense
	dates          []string
	periodsPerYear int
	regularized    bool
	shrinkage      float64
	condition      float64
	dropped        []DroppedAsset
}

// NewReturnStatistics builds statistics from precomputed moments, applying the
// same covariance regularization as the estimator with the default threshold.
func NewReturnStatistics(tickers []string, expected []float64, covariance [][]float64) (*ReturnStatistics, error) {
	n := len(tickers)
	if n < 2 {
		return nil, &InsufficientDataError{Assets: n, RequiredAssets: 2, Reason: "at least two assets are required"}
	}
	if len(expected) != n {
		return nil, fmt.Errorf("expected returns length %d doesn't match tickers count %d", len(expected), n)
	}
	if len(covariance) != n {
		return nil, fmt.Errorf("covariance matrix size %d doesn't match tickers count %d", len(covariance), n)
	}
	seen := make(map[string]bool, n)
	for _, t := range tickers {
		if seen[t] {
			return nil, fmt.Errorf("duplicate ticker %s", t)
		}
		seen[t] = true
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(covariance[i]) != n {
			return nil, fmt.Errorf("covariance matrix row %d has size %d, expected %d", i, len(covariance[i]), n)
		}
		for j := i; j < n; j++ {
			a, b := covariance[i][j], covariance[j][i]
			if math.Abs(a-b) > 1e-10*(1+math.Abs(a)) {
				return nil, fmt.Errorf("covariance matrix is not symmetric at (%d,%d)", i, j)
			}
			cov.SetSym(i, j, a)
		}
	}

	shrinkage, condition, err := regularizeCovariance(cov, DefaultConditionThreshold, DefaultShrinkageIntensity)
	if err != nil {
		return nil, err
	}

	return &ReturnStatistics{
		tickers:     append([]string(nil), tickers...),
		sectors:     make([]string, n),
		expected:    append([]float64(nil), expected...),
		cov:         cov,
		regularized: shrinkage > 0,
		shrinkage:   shrinkage,
		condition:   condition,
	}, nil
}

// Len returns the number of assets.
func (rs *ReturnStatistics) Len() int { return len(rs.tickers) }

// Tickers returns the asset order shared by every vector and matrix.
func (rs *ReturnStatistics) Tickers() []string { return append([]string(nil), rs.tickers...) }

// Sectors returns sectors aligned with Tickers (empty when unknown).
func (rs *ReturnStatistics) Sectors() []string { return append([]string(nil), rs.sectors...) }

// ExpectedReturns returns μ, annualized when the estimator was configured to.
func (rs *ReturnStatistics) ExpectedReturns() []float64 {
	return append([]float64(nil), rs.expected...)
}

// Covariance returns a copy of Σ.
func (rs *ReturnStatistics) Covariance() *mat.SymDense {
	c := mat.NewSymDense(rs.cov.SymmetricDim(), nil)
	c.CopySym(rs.cov)
	return c
}

// Returns returns the aligned periodic return matrix (observations × assets),
// or nil when the statistics were built from precomputed moments.
func (rs *ReturnStatistics) Returns() *mat.Dense {
	if rs.returns == nil {
		return nil
	}
	return mat.DenseCopyOf(rs.returns)
}

// Dates returns the date of each return row.
func (rs *ReturnStatistics) Dates() []string { return append([]string(nil), rs.dates...) }

// Observations returns the number of return rows used.
func (rs *ReturnStatistics) Observations() int { return len(rs.dates) }

// PeriodsPerYear is the annualization factor (0 when not annualized).
func (rs *ReturnStatistics) PeriodsPerYear() int { return rs.periodsPerYear }

// Regularized reports whether a diagonal shift was added to Σ.
func (rs *ReturnStatistics) Regularized() bool { return rs.regularized }

// Shrinkage returns the diagonal shift ε added to Σ.
func (rs *ReturnStatistics) Shrinkage() float64 { return rs.shrinkage }

// ConditionNumber returns λmax/λmin of the final Σ.
func (rs *ReturnStatistics) ConditionNumber() float64 { return rs.condition }

// Dropped returns the assets excluded during estimation.
func (rs *ReturnStatistics) Dropped() []DroppedAsset {
	return append([]DroppedAsset(nil), rs.dropped...)
}

func (rs *ReturnStatistics) portfolioReturn(w []float64) float64 {
	return dot(rs.expected, w)
}

func (rs *ReturnStatistics) portfolioVariance(w []float64) float64 {
	return math.Max(quadForm(rs.cov, w), 0)
}

// StatisticsSummary is the serializable digest of ReturnStatistics.
type StatisticsSummary struct {
	Tickers         []string       `json:"tickers" msgpack:"tickers"`
	Observations    int            `json:"observations" msgpack:"observations"`
	PeriodsPerYear  int            `json:"periods_per_year" msgpack:"periods_per_year"`
	StartDate       string         `json:"start_date,omitempty" msgpack:"start_date,omitempty"`
	EndDate         string         `json:"end_date,omitempty" msgpack:"end_date,omitempty"`
	Regularized     bool           `json:"regularized" msgpack:"regularized"`
	Shrinkage       float64        `json:"shrinkage" msgpack:"shrinkage"`
	ConditionNumber float64        `json:"condition_number" msgpack:"condition_number"`
	Dropped         []DroppedAsset `json:"dropped,omitempty" msgpack:"dropped,omitempty"`
}

// Summary returns the digest used in reports.
func (rs *ReturnStatistics) Summary() StatisticsSummary {
	s := StatisticsSummary{
		Tickers:         rs.Tickers(),
		Observations:    rs.Observations(),
		PeriodsPerYear:  rs.periodsPerYear,
		Regularized:     rs.regularized,
		Shrinkage:       rs.shrinkage,
		ConditionNumber: rs.condition,
		Dropped:         rs.Dropped(),
	}
	if len(rs.dates) > 0 {
		s.StartDate = rs.dates[0]
		s.EndDate = rs.dates[len(rs.dates)-1]
	}
	return s
}

// regularizeCovariance adds ε·I to cov in place when it is not positive definite
// or its condition number exceeds threshold. ε = δ·trace/n, with δ starting at
// intensity and doubling until the shifted condition number is acceptable.
// It returns ε and the resulting condition number.
func regularizeCovariance(cov *mat.SymDense, threshold, intensity float64) (float64, float64, error) {
	n := cov.SymmetricDim()
	var trace float64
	for i := 0; i < n; i++ {
		if d := cov.At(i, i); math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, 0, fmt.Errorf("covariance matrix has non-finite diagonal at %d", i)
		}
		trace += cov.At(i, i)
	}
	if trace <= 0 {
		return 0, 0, &InsufficientDataError{Assets: n, RequiredAssets: 2, Reason: "returns have zero variance"}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, false); !ok {
		return 0, 0, fmt.Errorf("eigendecomposition of covariance matrix failed")
	}
	values := eig.Values(nil)
	minEig, maxEig := values[0], values[len(values)-1]

	condition := func(shift float64) float64 {
		if minEig+shift <= 0 {
			return math.Inf(1)
		}
		return (maxEig + shift) / (minEig + shift)
	}

	if minEig > 0 && condition(0) <= threshold {
		return 0, condition(0), nil
	}

	scale := trace / float64(n)
	delta := intensity
	shift := delta * scale
	for k := 0; k < 128 && condition(shift) > threshold; k++ {
		delta *= 2
		shift = delta * scale
	}
	for i := 0; i < n; i++ {
		cov.SetSym(i, i, cov.At(i, i)+shift)
	}
	return shift, condition(shift), nil
}
