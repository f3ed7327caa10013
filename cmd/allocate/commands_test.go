package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/optimization"
)

func TestStrategiesCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := &strategiesCmd{stdout: &out}

	status := cmd.Execute(context.Background(), flag.NewFlagSet("strategies", flag.ContinueOnError))
	assert.Equal(t, subcommands.ExitSuccess, status)
	assert.Equal(t, "min_variance\nmax_sharpe\nequal_weight\n", out.String())
}

func TestRunCmd_Request(t *testing.T) {
	cmd := &runCmd{
		strategies:     "max_sharpe, equal_weight",
		excludeSectors: "Energy,,Utilities",
		forceInclude:   "AAA",
		minWeight:      0.01,
		maxWeight:      0.4,
		riskTolerance:  0.5,
	}

	req, err := cmd.request()
	require.NoError(t, err)
	assert.Equal(t, []optimization.Strategy{optimization.MaximumSharpe, optimization.EqualWeight}, req.Strategies)
	assert.Equal(t, []string{"Energy", "Utilities"}, req.Preferences.ExcludedSectors)
	assert.Equal(t, []string{"AAA"}, req.Preferences.ForceInclude)
	assert.Equal(t, 0.01, req.Preferences.MinWeight)
	assert.Equal(t, 0.4, req.Preferences.MaxWeight)
	assert.Equal(t, 0.5, req.Preferences.RiskTolerance)

	cmd.strategies = "risk_parity"
	_, err = cmd.request()
	assert.Error(t, err)
}

func writeFixtures(t *testing.T, dir string) (string, string) {
	t.Helper()
	securities := filepath.Join(dir, "securities.csv")
	require.NoError(t, os.WriteFile(securities, []byte(
		"symbol,name,sector,risk_score\nAAA,Alpha,Technology,0.3\nBBB,Beta,Energy,0.5\nCCC,Gamma,Utilities,0.2\n",
	), 0644))

	var b strings.Builder
	b.WriteString("symbol,date,close\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, symbol := range []string{"AAA", "BBB", "CCC"} {
		rng := rand.New(rand.NewSource(int64(i + 10)))
		price := 100.0
		for d := 0; d < 90; d++ {
			price *= 1 + 0.0003*float64(i+1) + 0.012*rng.NormFloat64()
			fmt.Fprintf(&b, "%s,%s,%.4f\n", symbol, start.AddDate(0, 0, d).Format("2006-01-02"), price)
		}
	}
	prices := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(prices, []byte(b.String()), 0644))
	return securities, prices
}

func TestImportAndRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALLOCATOR_DATA_DIR", dir)
	t.Setenv("LOG_LEVEL", "disabled")
	securities, prices := writeFixtures(t, dir)
	ctx := context.Background()

	var out bytes.Buffer
	imp := &importCmd{stdout: &out, securities: securities, prices: prices}
	require.Equal(t, subcommands.ExitSuccess, imp.Execute(ctx, nil))
	assert.Contains(t, out.String(), "Imported 3 securities")
	assert.Contains(t, out.String(), "Imported 270 closes for 3 symbols")

	out.Reset()
	run := &runCmd{stdout: &out, format: "csv", lookback: -1, maxWeight: 0.5}
	require.Equal(t, subcommands.ExitSuccess, run.Execute(ctx, nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "rank,strategy,ticker,sector,weight_pct,expected_return_pct,volatility_pct,sharpe_ratio", lines[0])
	assert.Greater(t, len(lines), 3)

	out.Reset()
	run = &runCmd{stdout: &out, format: "json", lookback: 60, strategies: "equal_weight", withPerformance: true}
	require.Equal(t, subcommands.ExitSuccess, run.Execute(ctx, nil))

	var body struct {
		Report      optimization.Report `json:"report"`
		Performance []json.RawMessage   `json:"performance"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	require.Len(t, body.Report.Portfolios, 1)
	assert.Equal(t, optimization.EqualWeight, body.Report.Portfolios[0].Strategy)
	assert.Len(t, body.Performance, 1)
	assert.LessOrEqual(t, body.Report.Statistics.Observations, 60)
}

func TestRunCmd_UsageErrors(t *testing.T) {
	ctx := context.Background()

	run := &runCmd{stdout: &bytes.Buffer{}, format: "xml"}
	assert.Equal(t, subcommands.ExitUsageError, run.Execute(ctx, nil))

	run = &runCmd{stdout: &bytes.Buffer{}, format: "csv", strategies: "nope"}
	assert.Equal(t, subcommands.ExitUsageError, run.Execute(ctx, nil))

	imp := &importCmd{stdout: &bytes.Buffer{}}
	assert.Equal(t, subcommands.ExitUsageError, imp.Execute(ctx, nil))
}
