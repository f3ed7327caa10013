package optimization

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/allocator/internal/utils"
)

// RunRequest selects the strategies and preferences of one run.
type RunRequest struct {
	Strategies  []Strategy  `json:"strategies"` // empty means all
	Preferences Preferences `json:"preferences"`
}

// OptimizerService orchestrates a full run: filter, estimate, constrain,
// optimize every strategy concurrently, aggregate.
type OptimizerService struct {
	constraints *ConstraintsManager
	estimator   *RiskModelBuilder
	optimizer   *MVOptimizer
	aggregator  *ResultAggregator
	log         zerolog.Logger
}

// NewOptimizerService wires the run pipeline.
func NewOptimizerService(
	constraints *ConstraintsManager,
	estimator *RiskModelBuilder,
	optimizer *MVOptimizer,
	aggregator *ResultAggregator,
	log zerolog.Logger,
) *OptimizerService {
	return &OptimizerService{
		constraints: constraints,
		estimator:   estimator,
		optimizer:   optimizer,
		aggregator:  aggregator,
		log:         log.With().Str("component", "optimizer_service").Logger(),
	}
}

// Run executes one optimization over a read-only asset snapshot.
//
// Estimation and constraint errors abort the run. Strategy errors become
// report failures. If ctx is cancelled mid-run, the report holds the
// strategies that finished and is returned together with ctx.Err().
func (s *OptimizerService) Run(ctx context.Context, assets []Asset, req RunRequest) (*Report, error) {
	strategies, err := normalizeStrategies(req.Strategies)
	if err != nil {
		return nil, err
	}

	universe, filtered := s.constraints.FilterUniverse(assets, req.Preferences)

	doneEstimate := utils.OperationTimer("estimate", s.log)
	stats, err := s.estimator.Estimate(universe)
	doneEstimate()
	if err != nil {
		return nil, fmt.Errorf("failed to estimate return statistics: %w", err)
	}

	cs, err := s.constraints.BuildConstraints(req.Preferences, stats.tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to build constraints: %w", err)
	}

	s.log.Info().
		Int("universe", len(assets)).
		Int("assets", stats.Len()).
		Int("observations", stats.Observations()).
		Int("strategies", len(strategies)).
		Msg("Starting optimization run")

	outcomes := make([]StrategyOutcome, len(strategies))
	var g errgroup.Group
	for i, strategy := range strategies {
		i, strategy := i, strategy
		g.Go(func() error {
			defer utils.OperationTimer("optimize_"+strategy.String(), s.log)()
			portfolio, err := s.optimizer.Optimize(ctx, strategy, stats, cs)
			outcomes[i] = StrategyOutcome{Strategy: strategy, Portfolio: portfolio, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := s.aggregator.Aggregate(stats, outcomes, s.optimizer.RiskFreeRate())
	report.Constraints = s.constraints.Summary(cs)
	report.Dropped = append(append([]DroppedAsset(nil), filtered...), stats.Dropped()...)

	if err := ctx.Err(); err != nil {
		s.log.Warn().
			Err(err).
			Int("completed", len(report.Portfolios)).
			Msg("Optimization run cancelled")
		return report, err
	}

	s.log.Info().
		Str("run_id", report.RunID).
		Int("portfolios", len(report.Portfolios)).
		Int("failures", len(report.Failures)).
		Msg("Optimization run complete")

	return report, nil
}

func normalizeStrategies(requested []Strategy) ([]Strategy, error) {
	if len(requested) == 0 {
		return append([]Strategy(nil), AllStrategies...), nil
	}
	seen := make(map[Strategy]bool, len(requested))
	out := make([]Strategy, 0, len(requested))
	for _, s := range requested {
		if !s.Valid() {
			return nil, fmt.Errorf("unknown strategy: %s", s)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}
