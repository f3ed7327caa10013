package optimization

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
)

// SummaryRow is one ranked strategy in the export table.
type SummaryRow struct {
	Rank              int             `json:"rank"`
	Strategy          Strategy        `json:"strategy"`
	ExpectedReturnPct decimal.Decimal `json:"expected_return_pct"`
	VolatilityPct     decimal.Decimal `json:"volatility_pct"`
	SharpeRatio       Metric          `json:"sharpe_ratio"`
}

// AllocationRow is one non-zero holding of a ranked strategy.
type AllocationRow struct {
	Rank      int             `json:"rank"`
	Strategy  Strategy        `json:"strategy"`
	Ticker    string          `json:"ticker"`
	Sector    string          `json:"sector"`
	WeightPct decimal.Decimal `json:"weight_pct"`
}

// Table is the tabular form of a report for dashboards and CSV export.
type Table struct {
	Summary     []SummaryRow    `json:"summary"`
	Allocations []AllocationRow `json:"allocations"`
}

// percentPlaces is the rounding applied to every percentage.
const percentPlaces = 2

func percent(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Shift(2).Round(percentPlaces)
}

// BuildTable converts a report into rows. Weights are percentages rounded to
// two decimals; holdings that round to zero are omitted and the rest are
// sorted by weight descending, then ticker.
func BuildTable(report *Report) Table {
	t := Table{
		Summary:     make([]SummaryRow, 0, len(report.Portfolios)),
		Allocations: []AllocationRow{},
	}
	for i, p := range report.Portfolios {
		rank := i + 1
		t.Summary = append(t.Summary, SummaryRow{
			Rank:              rank,
			Strategy:          p.Strategy,
			ExpectedReturnPct: percent(p.ExpectedReturn),
			VolatilityPct:     percent(p.Volatility),
			SharpeRatio:       p.SharpeRatio,
		})

		rows := make([]AllocationRow, 0, len(p.Tickers))
		for j, ticker := range p.Tickers {
			w := percent(p.Weights[j])
			if w.IsZero() {
				continue
			}
			rows = append(rows, AllocationRow{
				Rank:      rank,
				Strategy:  p.Strategy,
				Ticker:    ticker,
				Sector:    report.Sectors[ticker],
				WeightPct: w,
			})
		}
		sort.SliceStable(rows, func(a, b int) bool {
			if c := rows[a].WeightPct.Cmp(rows[b].WeightPct); c != 0 {
				return c > 0
			}
			return rows[a].Ticker < rows[b].Ticker
		})
		t.Allocations = append(t.Allocations, rows...)
	}
	return t
}

var csvHeader = []string{
	"rank", "strategy", "ticker", "sector", "weight_pct",
	"expected_return_pct", "volatility_pct", "sharpe_ratio",
}

// WriteCSV writes one line per holding, with the strategy metrics repeated on each line.
func WriteCSV(w io.Writer, report *Report) error {
	table := BuildTable(report)
	summaries := make(map[int]SummaryRow, len(table.Summary))
	for _, s := range table.Summary {
		summaries[s.Rank] = s
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range table.Allocations {
		s := summaries[row.Rank]
		record := []string{
			fmt.Sprint(row.Rank),
			row.Strategy.String(),
			row.Ticker,
			row.Sector,
			row.WeightPct.StringFixed(percentPlaces),
			s.ExpectedReturnPct.StringFixed(percentPlaces),
			s.VolatilityPct.StringFixed(percentPlaces),
			s.SharpeRatio.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
