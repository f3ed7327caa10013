package universe

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ImportResult summarizes a price import
type ImportResult struct {
	Symbols  int         `json:"symbols"`
	Rows     int         `json:"rows"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Importer loads CSV snapshots into the history database
type Importer struct {
	history   *HistoryDB
	validator *PriceValidator
	log       zerolog.Logger
}

// NewImporter creates a new CSV importer
func NewImporter(history *HistoryDB, validator *PriceValidator, log zerolog.Logger) *Importer {
	return &Importer{
		history:   history,
		validator: validator,
		log:       log.With().Str("component", "importer").Logger(),
	}
}

// ImportSecurities reads rows of symbol,name,sector,risk_score[,active].
// The header row is required; columns are matched by name.
func (i *Importer) ImportSecurities(ctx context.Context, r io.Reader) (int, error) {
	records, cols, err := readCSV(r, "symbol", "sector")
	if err != nil {
		return 0, err
	}

	count := 0
	for line, rec := range records {
		sec := Security{
			Symbol: field(rec, cols, "symbol"),
			Name:   field(rec, cols, "name"),
			Sector: field(rec, cols, "sector"),
			Active: true,
		}
		if v := field(rec, cols, "risk_score"); v != "" {
			score, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return count, fmt.Errorf("line %d: invalid risk_score %q: %w", line+2, v, err)
			}
			sec.RiskScore = score
		}
		if v := field(rec, cols, "active"); v != "" {
			active, err := strconv.ParseBool(v)
			if err != nil {
				return count, fmt.Errorf("line %d: invalid active %q: %w", line+2, v, err)
			}
			sec.Active = active
		}
		if err := i.history.UpsertSecurity(ctx, sec); err != nil {
			return count, fmt.Errorf("line %d: %w", line+2, err)
		}
		count++
	}

	i.log.Info().Int("securities", count).Msg("Imported securities")
	return count, nil
}

// ImportPrices reads rows of symbol,date,close, cleans each symbol's series
// and stores the accepted closes. Symbols must already exist.
func (i *Importer) ImportPrices(ctx context.Context, r io.Reader) (ImportResult, error) {
	records, cols, err := readCSV(r, "symbol", "date", "close")
	if err != nil {
		return ImportResult{}, err
	}

	bySymbol := make(map[string][]DailyPrice)
	for line, rec := range records {
		symbol := field(rec, cols, "symbol")
		date := field(rec, cols, "date")
		if _, err := dayUnix(date); err != nil {
			return ImportResult{}, fmt.Errorf("line %d: invalid date %q: %w", line+2, date, err)
		}
		closeVal, err := strconv.ParseFloat(field(rec, cols, "close"), 64)
		if err != nil {
			return ImportResult{}, fmt.Errorf("line %d: invalid close: %w", line+2, err)
		}
		bySymbol[symbol] = append(bySymbol[symbol], DailyPrice{Date: date, Close: closeVal})
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var result ImportResult
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		accepted, rejected := i.validator.Clean(symbol, bySymbol[symbol])
		n, err := i.history.UpsertDailyPrices(ctx, symbol, accepted)
		if err != nil {
			return result, err
		}
		result.Symbols++
		result.Rows += n
		result.Rejected = append(result.Rejected, rejected...)
	}

	i.log.Info().
		Int("symbols", result.Symbols).
		Int("rows", result.Rows).
		Int("rejected", len(result.Rejected)).
		Msg("Imported daily prices")
	return result, nil
}

func readCSV(r io.Reader, required ...string) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("empty CSV input")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("CSV header missing column %q", name)
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return records, cols, nil
}

func field(rec []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}
