package optimization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Failure kinds
const (
	FailureNotConverged = "solver_did_not_converge"
	FailureInfeasible   = "infeasible_constraints"
	FailureCancelled    = "cancelled"
	FailureError        = "error"
)

// StrategyOutcome is one strategy's result as handed to the aggregator.
type StrategyOutcome struct {
	Strategy  Strategy
	Portfolio Portfolio
	Err       error
}

// StrategyFailure is a per-strategy warning; it never fails the run.
type StrategyFailure struct {
	Strategy Strategy `json:"strategy" msgpack:"strategy"`
	Kind     string   `json:"kind" msgpack:"kind"`
	Message  string   `json:"message" msgpack:"message"`
}

// Report is the ranked result of one optimization run.
type Report struct {
	RunID        string            `json:"run_id" msgpack:"run_id"`
	CreatedAt    time.Time         `json:"created_at" msgpack:"created_at"`
	RiskFreeRate float64           `json:"risk_free_rate" msgpack:"risk_free_rate"`
	Statistics   StatisticsSummary `json:"statistics" msgpack:"statistics"`
	Constraints  ConstraintSummary `json:"constraints" msgpack:"constraints"`
	Sectors      map[string]string `json:"sectors,omitempty" msgpack:"sectors,omitempty"`
	Portfolios   []Portfolio       `json:"portfolios" msgpack:"portfolios"`
	Failures     []StrategyFailure `json:"failures,omitempty" msgpack:"failures,omitempty"`
	Dropped      []DroppedAsset    `json:"dropped,omitempty" msgpack:"dropped,omitempty"`

	stats *ReturnStatistics
}

// ReturnStatistics returns the statistics the report was computed from.
func (r *Report) ReturnStatistics() *ReturnStatistics {
	return r.stats
}

// Best returns the top-ranked portfolio.
func (r *Report) Best() (Portfolio, bool) {
	if len(r.Portfolios) == 0 {
		return Portfolio{}, false
	}
	return r.Portfolios[0], true
}

// ResultAggregator packages strategy outcomes into a ranked Report.
type ResultAggregator struct {
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// NewResultAggregator creates an aggregator stamping reports with a random UUID and the current time.
func NewResultAggregator(log zerolog.Logger) *ResultAggregator {
	return &ResultAggregator{
		now:   time.Now,
		newID: uuid.NewString,
		log:   log.With().Str("component", "result_aggregator").Logger(),
	}
}

// Aggregate recomputes each portfolio's metrics from its weights, ranks by
// Sharpe ratio (undefined last, ties by strategy name) and turns errors into
// failures. Outcomes are not modified.
func (ra *ResultAggregator) Aggregate(stats *ReturnStatistics, outcomes []StrategyOutcome, riskFreeRate float64) *Report {
	report := &Report{
		RunID:        ra.newID(),
		CreatedAt:    ra.now().UTC(),
		RiskFreeRate: riskFreeRate,
		Statistics:   stats.Summary(),
		Sectors:      make(map[string]string, stats.Len()),
		Portfolios:   make([]Portfolio, 0, len(outcomes)),
		stats:        stats,
	}
	for i, t := range stats.tickers {
		if stats.sectors[i] != "" {
			report.Sectors[t] = stats.sectors[i]
		}
	}

	for _, o := range outcomes {
		if o.Err != nil {
			report.Failures = append(report.Failures, newFailure(o.Strategy, o.Err))
			ra.log.Warn().
				Err(o.Err).
				Str("strategy", o.Strategy.String()).
				Msg("Strategy failed")
			continue
		}
		if len(o.Portfolio.Weights) != stats.Len() {
			err := fmt.Errorf("portfolio has %d weights, expected %d", len(o.Portfolio.Weights), stats.Len())
			report.Failures = append(report.Failures, newFailure(o.Strategy, err))
			continue
		}
		report.Portfolios = append(report.Portfolios,
			newPortfolio(o.Strategy, stats, o.Portfolio.Weights, o.Portfolio.Solver, riskFreeRate))
	}

	RankPortfolios(report.Portfolios)
	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].Strategy.String() < report.Failures[j].Strategy.String()
	})
	return report
}

// RankPortfolios sorts in place by Sharpe ratio descending. Undefined ratios
// rank last; ties are broken by strategy name.
func RankPortfolios(portfolios []Portfolio) {
	sort.SliceStable(portfolios, func(i, j int) bool {
		a, aok := portfolios[i].SharpeRatio.Value()
		b, bok := portfolios[j].SharpeRatio.Value()
		switch {
		case aok && !bok:
			return true
		case !aok && bok:
			return false
		case aok && bok && a != b:
			return a > b
		default:
			return portfolios[i].Strategy.String() < portfolios[j].Strategy.String()
		}
	})
}

func newFailure(strategy Strategy, err error) StrategyFailure {
	kind := FailureError
	switch {
	case errors.Is(err, ErrSolverDidNotConverge):
		kind = FailureNotConverged
	case errors.Is(err, ErrInfeasibleConstraints):
		kind = FailureInfeasible
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = FailureCancelled
	}
	return StrategyFailure{Strategy: strategy, Kind: kind, Message: err.Error()}
}
