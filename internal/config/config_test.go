package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/optimization"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALLOCATOR_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "snapshot.db"), cfg.SnapshotPath)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 365, cfg.LookbackDays)
	assert.Equal(t, optimization.DefaultEstimatorOptions(), cfg.EstimatorOptions())

	opts := cfg.OptimizerOptions()
	assert.Equal(t, optimization.DefaultRiskFreeRate, opts.RiskFreeRate)
	assert.Equal(t, optimization.DefaultRestarts, opts.Restarts)
	assert.Equal(t, int64(optimization.DefaultRestartSeed), opts.RestartSeed)
	assert.Equal(t, 1.0, cfg.Optimizer.DefaultMaxWeight)
	assert.Equal(t, optimization.BackendProjectedGradient, opts.Backend)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("RISK_FREE_RATE", "0.03")
	t.Setenv("MIN_OBSERVATIONS", "60")
	t.Setenv("MAX_GAP_RUN", "5")
	t.Setenv("PERIODS_PER_YEAR", "12")
	t.Setenv("RETURN_KIND", "log")
	t.Setenv("SHARPE_RESTARTS", "10")
	t.Setenv("RESTART_SEED", "7")
	t.Setenv("SOLVER_MAX_ITERATIONS", "250")
	t.Setenv("DEFAULT_MAX_WEIGHT", "0.25")
	t.Setenv("SOLVER_BACKEND", "penalty")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 0.25, cfg.Optimizer.DefaultMaxWeight)

	est := cfg.EstimatorOptions()
	assert.Equal(t, 60, est.MinObservations)
	assert.Equal(t, 5, est.MaxGapRun)
	assert.Equal(t, 12, est.PeriodsPerYear)
	assert.Equal(t, optimization.LogReturns, est.ReturnKind)

	assert.Equal(t, optimization.OptimizerOptions{
		RiskFreeRate:  0.03,
		Restarts:      10,
		RestartSeed:   7,
		MaxIterations: 250,
		Backend:       optimization.BackendPenalty,
	}, cfg.OptimizerOptions())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{key: "GO_PORT", value: "70000", want: "GO_PORT"},
		{key: "MIN_OBSERVATIONS", value: "1", want: "MIN_OBSERVATIONS"},
		{key: "RETURN_KIND", value: "geometric", want: "RETURN_KIND"},
		{key: "DEFAULT_MAX_WEIGHT", value: "1.5", want: "DEFAULT_MAX_WEIGHT"},
		{key: "SHARPE_RESTARTS", value: "-1", want: "SHARPE_RESTARTS"},
		{key: "SOLVER_BACKEND", value: "simplex", want: "SOLVER_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetEnvHelpers_FallBackOnParseError(t *testing.T) {
	t.Setenv("ALLOCATOR_TEST_INT", "abc")
	t.Setenv("ALLOCATOR_TEST_FLOAT", "abc")
	t.Setenv("ALLOCATOR_TEST_BOOL", "maybe")

	assert.Equal(t, 3, getEnvAsInt("ALLOCATOR_TEST_INT", 3))
	assert.Equal(t, 0.5, getEnvAsFloat("ALLOCATOR_TEST_FLOAT", 0.5))
	assert.True(t, getEnvAsBool("ALLOCATOR_TEST_BOOL", true))
	assert.Equal(t, "fallback", getEnv("ALLOCATOR_TEST_MISSING", "fallback"))
}
