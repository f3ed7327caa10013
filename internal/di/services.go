// Package di provides dependency injection for services.
package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/universe"
	"github.com/rs/zerolog"
)

// InitializeServices creates the repositories and services on top of the
// container's databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.SnapshotDB == nil {
		return fmt.Errorf("container has no snapshot database")
	}

	container.HistoryDB = universe.NewHistoryDB(container.SnapshotDB.Conn(), log)
	container.PriceValidator = universe.NewPriceValidator(log)
	container.Importer = universe.NewImporter(container.HistoryDB, container.PriceValidator, log)

	container.ConstraintsManager = optimization.NewConstraintsManager(cfg.Optimizer.DefaultMaxWeight, log)
	container.RiskModelBuilder = optimization.NewRiskModelBuilder(cfg.EstimatorOptions(), log)
	container.MVOptimizer = optimization.NewMVOptimizer(cfg.OptimizerOptions(), log)
	container.ResultAggregator = optimization.NewResultAggregator(log)
	container.OptimizerService = optimization.NewOptimizerService(
		container.ConstraintsManager,
		container.RiskModelBuilder,
		container.MVOptimizer,
		container.ResultAggregator,
		log,
	)
	container.Analyzer = analytics.NewAnalyzer(cfg.Optimizer.RiskFreeRate, log)

	log.Debug().Msg("Services initialized")
	return nil
}
