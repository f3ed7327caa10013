package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/universe"
	testingpkg "github.com/aristath/allocator/internal/testing"
)

func seedSnapshot(t *testing.T, history *universe.HistoryDB) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, sec := range []universe.Security{
		{Symbol: "AAA", Sector: "Technology", Active: true},
		{Symbol: "BBB", Sector: "Energy", Active: true},
		{Symbol: "CCC", Sector: "Utilities", Active: true},
	} {
		require.NoError(t, history.UpsertSecurity(ctx, sec))

		rng := rand.New(rand.NewSource(int64(i + 1)))
		price := 50.0
		prices := make([]universe.DailyPrice, 0, 120)
		for d := 0; d < 120; d++ {
			price *= 1 + 0.0004*float64(i+1) + 0.01*rng.NormFloat64()
			prices = append(prices, universe.DailyPrice{Date: start.AddDate(0, 0, d).Format("2006-01-02"), Close: price})
		}
		_, err := history.UpsertDailyPrices(ctx, sec.Symbol, prices)
		require.NoError(t, err)
	}
}

func newTestServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	log := zerolog.Nop()

	db := testingpkg.NewTestDB(t)

	history := universe.NewHistoryDB(db.Conn(), log)
	seedSnapshot(t, history)

	service := optimization.NewOptimizerService(
		optimization.NewConstraintsManager(1, log),
		optimization.NewRiskModelBuilder(optimization.DefaultEstimatorOptions(), log),
		optimization.NewMVOptimizer(optimization.DefaultOptimizerOptions(), log),
		optimization.NewResultAggregator(log),
		log,
	)

	srv := New(Config{
		Log:          log,
		SnapshotDB:   db,
		Service:      service,
		Source:       history,
		Analyzer:     analytics.NewAnalyzer(optimization.DefaultRiskFreeRate, log),
		LookbackDays: 365,
		Port:         0,
		DevMode:      true,
	})
	return srv, db
}

func TestHealth(t *testing.T) {
	srv, db := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "ok", body["database"])
	}

	require.NoError(t, db.Close())
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunAgainstSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"strategies":["min_variance","max_sharpe","equal_weight"],"preferences":{"max_weight":0.6}}`
	req := httptest.NewRequest(http.MethodPost, "/api/optimizer/run", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data optimization.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Portfolios, 3)
	assert.Empty(t, resp.Data.Failures)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, resp.Data.Statistics.Tickers)

	for _, p := range resp.Data.Portfolios {
		var total float64
		for _, w := range p.Weights {
			assert.LessOrEqual(t, w, 0.6+1e-6)
			assert.GreaterOrEqual(t, w, -1e-6)
			total += w
		}
		assert.InDelta(t, 1.0, total, 1e-6)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/optimizer/run", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
