// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/allocator/internal/modules/optimization"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the snapshot database (always absolute)
	SnapshotPath string // SQLite price/sector snapshot, defaults to DataDir/snapshot.db
	LogLevel     string
	Port         int
	DevMode      bool
	LookbackDays int // Price history loaded per run, 0 loads everything

	Estimator EstimatorConfig
	Optimizer OptimizerConfig
}

// EstimatorConfig holds return statistics settings
type EstimatorConfig struct {
	MinObservations int
	MaxGapRun       int
	PeriodsPerYear  int
	ReturnKind      string // "simple" or "log"
}

// OptimizerConfig holds strategy and solver settings
type OptimizerConfig struct {
	RiskFreeRate     float64
	MaxIterations    int
	Restarts         int
	RestartSeed      int64
	DefaultMaxWeight float64
	SolverBackend    string // "projected_gradient" or "penalty"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ALLOCATOR_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		SnapshotPath: getEnv("SNAPSHOT_DB", filepath.Join(absDataDir, "snapshot.db")),
		Port:         getEnvAsInt("GO_PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LookbackDays: getEnvAsInt("LOOKBACK_DAYS", 365),
		Estimator: EstimatorConfig{
			MinObservations: getEnvAsInt("MIN_OBSERVATIONS", optimization.DefaultMinObservations),
			MaxGapRun:       getEnvAsInt("MAX_GAP_RUN", optimization.DefaultMaxGapRun),
			PeriodsPerYear:  getEnvAsInt("PERIODS_PER_YEAR", optimization.DefaultPeriodsPerYear),
			ReturnKind:      getEnv("RETURN_KIND", "simple"),
		},
		Optimizer: OptimizerConfig{
			RiskFreeRate:     getEnvAsFloat("RISK_FREE_RATE", optimization.DefaultRiskFreeRate),
			MaxIterations:    getEnvAsInt("SOLVER_MAX_ITERATIONS", 0),
			Restarts:         getEnvAsInt("SHARPE_RESTARTS", optimization.DefaultRestarts),
			RestartSeed:      int64(getEnvAsInt("RESTART_SEED", optimization.DefaultRestartSeed)),
			DefaultMaxWeight: getEnvAsFloat("DEFAULT_MAX_WEIGHT", 1),
			SolverBackend:    getEnv("SOLVER_BACKEND", optimization.BackendProjectedGradient),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are in range
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("LOOKBACK_DAYS must not be negative, got %d", c.LookbackDays)
	}
	if c.Estimator.MinObservations < 2 {
		return fmt.Errorf("MIN_OBSERVATIONS must be at least 2, got %d", c.Estimator.MinObservations)
	}
	if c.Estimator.MaxGapRun < 0 {
		return fmt.Errorf("MAX_GAP_RUN must not be negative, got %d", c.Estimator.MaxGapRun)
	}
	if c.Estimator.PeriodsPerYear < 0 {
		return fmt.Errorf("PERIODS_PER_YEAR must not be negative, got %d", c.Estimator.PeriodsPerYear)
	}
	if _, err := optimization.ParseReturnKind(c.Estimator.ReturnKind); err != nil {
		return fmt.Errorf("RETURN_KIND: %w", err)
	}
	if c.Optimizer.MaxIterations < 0 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must not be negative, got %d", c.Optimizer.MaxIterations)
	}
	if c.Optimizer.Restarts < 0 {
		return fmt.Errorf("SHARPE_RESTARTS must not be negative, got %d", c.Optimizer.Restarts)
	}
	if c.Optimizer.DefaultMaxWeight <= 0 || c.Optimizer.DefaultMaxWeight > 1 {
		return fmt.Errorf("DEFAULT_MAX_WEIGHT must be in (0, 1], got %g", c.Optimizer.DefaultMaxWeight)
	}
	if err := optimization.ValidateBackend(c.Optimizer.SolverBackend); err != nil {
		return fmt.Errorf("SOLVER_BACKEND: %w", err)
	}
	return nil
}

// EstimatorOptions converts the estimator settings for RiskModelBuilder
func (c *Config) EstimatorOptions() optimization.EstimatorOptions {
	opts := optimization.DefaultEstimatorOptions()
	opts.MinObservations = c.Estimator.MinObservations
	opts.MaxGapRun = c.Estimator.MaxGapRun
	opts.PeriodsPerYear = c.Estimator.PeriodsPerYear
	// Validated in Load
	opts.ReturnKind, _ = optimization.ParseReturnKind(c.Estimator.ReturnKind)
	return opts
}

// OptimizerOptions converts the optimizer settings for MVOptimizer
func (c *Config) OptimizerOptions() optimization.OptimizerOptions {
	return optimization.OptimizerOptions{
		RiskFreeRate:  c.Optimizer.RiskFreeRate,
		Restarts:      c.Optimizer.Restarts,
		RestartSeed:   c.Optimizer.RestartSeed,
		MaxIterations: c.Optimizer.MaxIterations,
		Backend:       c.Optimizer.SolverBackend,
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
