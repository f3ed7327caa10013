// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/universe"
)

// Container holds all dependencies for the application.
// It is created by Wire and shared by the HTTP server and the CLI.
type Container struct {
	// Databases
	SnapshotDB *database.DB

	// Repositories
	HistoryDB *universe.HistoryDB

	// Services
	PriceValidator     *universe.PriceValidator
	Importer           *universe.Importer
	ConstraintsManager *optimization.ConstraintsManager
	RiskModelBuilder   *optimization.RiskModelBuilder
	MVOptimizer        *optimization.MVOptimizer
	ResultAggregator   *optimization.ResultAggregator
	OptimizerService   *optimization.OptimizerService
	Analyzer           *analytics.Analyzer
}

// Close releases the container's database connections
func (c *Container) Close() error {
	if c.SnapshotDB == nil {
		return nil
	}
	return c.SnapshotDB.Close()
}
