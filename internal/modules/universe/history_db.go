package universe

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
)

const secondsPerDay = 24 * 60 * 60

// HistoryDB provides access to the security universe and its daily closes
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// UpsertSecurity inserts or updates a security row
func (h *HistoryDB) UpsertSecurity(ctx context.Context, sec Security) error {
	if sec.Symbol == "" {
		return fmt.Errorf("security symbol is required")
	}

	query := `
		INSERT INTO securities (symbol, name, sector, risk_score, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			risk_score = excluded.risk_score,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	active := 0
	if sec.Active {
		active = 1
	}
	_, err := h.db.ExecContext(ctx, query, sec.Symbol, sec.Name, sec.Sector, sec.RiskScore, active, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", sec.Symbol, err)
	}
	return nil
}

// GetSecurities returns all active securities ordered by symbol
func (h *HistoryDB) GetSecurities(ctx context.Context) ([]Security, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT symbol, name, sector, risk_score
		FROM securities
		WHERE active = 1
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var securities []Security
	for rows.Next() {
		sec := Security{Active: true}
		if err := rows.Scan(&sec.Symbol, &sec.Name, &sec.Sector, &sec.RiskScore); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}
	return securities, nil
}

// UpsertDailyPrices writes closes for one symbol in a single transaction.
// Returns the number of rows written.
func (h *HistoryDB) UpsertDailyPrices(ctx context.Context, symbol string, prices []DailyPrice) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	written := 0
	err := database.WithTransaction(ctx, h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (symbol, date, close)
			VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			ts, err := dayUnix(p.Date)
			if err != nil {
				return fmt.Errorf("invalid date %q for %s: %w", p.Date, symbol, err)
			}
			if _, err := stmt.ExecContext(ctx, symbol, ts, p.Close); err != nil {
				return fmt.Errorf("failed to insert price %s %s: %w", symbol, p.Date, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	h.log.Debug().Str("symbol", symbol).Int("rows", written).Msg("Stored daily prices")
	return written, nil
}

// GetDailyPrices returns closes for a symbol on or after since, oldest first.
// An empty since returns the full history.
func (h *HistoryDB) GetDailyPrices(ctx context.Context, symbol string, since string) ([]DailyPrice, error) {
	cutoff := int64(math.MinInt64)
	if since != "" {
		ts, err := dayUnix(since)
		if err != nil {
			return nil, fmt.Errorf("invalid since date %q: %w", since, err)
		}
		cutoff = ts
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT date, close
		FROM daily_prices
		WHERE symbol = ? AND date >= ?
		ORDER BY date ASC
	`, symbol, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var dateUnix int64
		var p DailyPrice
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = unixDay(dateUnix)
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return prices, nil
}

// LatestDate returns the most recent price date in the snapshot, or ""
// when no prices are stored.
func (h *HistoryDB) LatestDate(ctx context.Context) (string, error) {
	var latest sql.NullInt64
	if err := h.db.QueryRowContext(ctx, `SELECT MAX(date) FROM daily_prices`).Scan(&latest); err != nil {
		return "", fmt.Errorf("failed to query latest price date: %w", err)
	}
	if !latest.Valid {
		return "", nil
	}
	return unixDay(latest.Int64), nil
}

// LoadUniverse materializes the active securities and their closes as
// optimization assets. The lookback window is anchored at the latest stored
// date so repeated runs over the same snapshot see the same data; a
// non-positive lookback loads the full history.
func (h *HistoryDB) LoadUniverse(ctx context.Context, lookbackDays int) ([]optimization.Asset, error) {
	securities, err := h.GetSecurities(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := int64(math.MinInt64)
	if lookbackDays > 0 {
		var latest sql.NullInt64
		if err := h.db.QueryRowContext(ctx, `SELECT MAX(date) FROM daily_prices`).Scan(&latest); err != nil {
			return nil, fmt.Errorf("failed to query latest price date: %w", err)
		}
		if latest.Valid {
			cutoff = latest.Int64 - int64(lookbackDays)*secondsPerDay
		}
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT p.symbol, p.date, p.close
		FROM daily_prices p
		JOIN securities s ON s.symbol = p.symbol
		WHERE s.active = 1 AND p.date >= ?
		ORDER BY p.symbol, p.date ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string][]optimization.PricePoint, len(securities))
	for rows.Next() {
		var (
			symbol   string
			dateUnix int64
			closeVal float64
		)
		if err := rows.Scan(&symbol, &dateUnix, &closeVal); err != nil {
			return nil, fmt.Errorf("failed to scan universe price: %w", err)
		}
		prices[symbol] = append(prices[symbol], optimization.PricePoint{
			Date:  time.Unix(dateUnix, 0).UTC(),
			Close: closeVal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating universe prices: %w", err)
	}

	assets := make([]optimization.Asset, 0, len(securities))
	for _, sec := range securities {
		assets = append(assets, optimization.Asset{
			Ticker:    sec.Symbol,
			Sector:    sec.Sector,
			RiskScore: sec.RiskScore,
			Prices:    prices[sec.Symbol],
		})
	}

	h.log.Info().
		Int("securities", len(assets)).
		Int("lookback_days", lookbackDays).
		Msg("Loaded universe snapshot")
	return assets, nil
}
