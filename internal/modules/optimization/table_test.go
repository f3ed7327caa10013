package optimization

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableReport() *Report {
	return &Report{
		Sectors: map[string]string{"AAA": "Technology", "BBB": "Energy"},
		Portfolios: []Portfolio{
			{
				Strategy:       MaximumSharpe,
				Tickers:        []string{"CCC", "AAA", "DDD", "BBB"},
				Weights:        []float64{0.19999, 0.5, 0.00001, 0.30001},
				ExpectedReturn: 0.1234,
				Volatility:     0.2,
				SharpeRatio:    DefinedMetric(0.567),
			},
			{
				Strategy:       EqualWeight,
				Tickers:        []string{"CCC", "AAA", "DDD", "BBB"},
				Weights:        []float64{0.25, 0.25, 0.25, 0.25},
				ExpectedReturn: 0.1,
				Volatility:     0,
				SharpeRatio:    Undefined,
			},
		},
	}
}

func TestBuildTable(t *testing.T) {
	table := BuildTable(tableReport())

	require.Len(t, table.Summary, 2)
	assert.Equal(t, 1, table.Summary[0].Rank)
	assert.Equal(t, "12.34", table.Summary[0].ExpectedReturnPct.StringFixed(2))
	assert.Equal(t, "20.00", table.Summary[0].VolatilityPct.StringFixed(2))

	require.Len(t, table.Allocations, 7)
	first := table.Allocations[:3]
	assert.Equal(t, "AAA", first[0].Ticker)
	assert.Equal(t, "50.00", first[0].WeightPct.StringFixed(2))
	assert.Equal(t, "Technology", first[0].Sector)
	assert.Equal(t, "BBB", first[1].Ticker)
	assert.Equal(t, "CCC", first[2].Ticker)
	assert.Equal(t, "20.00", first[2].WeightPct.StringFixed(2))

	// Equal weights tie and fall back to ticker order.
	var tied []string
	for _, row := range table.Allocations[3:] {
		tied = append(tied, row.Ticker)
		assert.Equal(t, 2, row.Rank)
	}
	assert.Equal(t, []string{"AAA", "BBB", "CCC", "DDD"}, tied)
}

func TestWriteCSV(t *testing.T) {
	report := tableReport()
	report.Portfolios = report.Portfolios[:1]

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))

	expected := "rank,strategy,ticker,sector,weight_pct,expected_return_pct,volatility_pct,sharpe_ratio\n" +
		"1,max_sharpe,AAA,Technology,50.00,12.34,20.00,0.5670\n" +
		"1,max_sharpe,BBB,Energy,30.00,12.34,20.00,0.5670\n" +
		"1,max_sharpe,CCC,,20.00,12.34,20.00,0.5670\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteCSV_UndefinedSharpe(t *testing.T) {
	report := tableReport()
	report.Portfolios = report.Portfolios[1:]

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))
	assert.Contains(t, buf.String(), "1,equal_weight,AAA,Technology,25.00,10.00,0.00,undefined\n")
}
