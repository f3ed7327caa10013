// Package handlers provides HTTP handlers for optimization runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/optimization"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
	contentTypeCSV     = "text/csv"

	maxRequestBytes = 1 << 20
)

// Handler handles optimizer HTTP requests
type Handler struct {
	service      *optimization.OptimizerService
	source       optimization.AssetSource
	analyzer     *analytics.Analyzer
	lookbackDays int
	log          zerolog.Logger
}

// NewHandler creates a new optimizer handler
func NewHandler(
	service *optimization.OptimizerService,
	source optimization.AssetSource,
	analyzer *analytics.Analyzer,
	lookbackDays int,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:      service,
		source:       source,
		analyzer:     analyzer,
		lookbackDays: lookbackDays,
		log:          log.With().Str("handler", "optimizer").Logger(),
	}
}

// runRequest is the wire form of optimization.RunRequest with strategy names.
type runRequest struct {
	Strategies   []string                 `json:"strategies"`
	Preferences  optimization.Preferences `json:"preferences"`
	LookbackDays int                      `json:"lookback_days"`
}

// HandleGetStrategies handles GET /api/optimizer/strategies
func (h *Handler) HandleGetStrategies(w http.ResponseWriter, r *http.Request) {
	names := make([]string, len(optimization.AllStrategies))
	for i, s := range optimization.AllStrategies {
		names[i] = s.String()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"strategies": names,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRun handles POST /api/optimizer/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	req := optimization.RunRequest{Preferences: body.Preferences}
	for _, name := range body.Strategies {
		s, err := optimization.ParseStrategy(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Strategies = append(req.Strategies, s)
	}

	lookback := h.lookbackDays
	if body.LookbackDays > 0 {
		lookback = body.LookbackDays
	}

	assets, err := h.source.LoadUniverse(r.Context(), lookback)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load universe")
		http.Error(w, "Failed to load universe", http.StatusInternalServerError)
		return
	}

	report, err := h.service.Run(r.Context(), assets, req)
	if err != nil {
		h.writeRunError(w, err, report)
		return
	}

	switch {
	case strings.EqualFold(r.URL.Query().Get("format"), "csv"):
		w.Header().Set("Content-Type", contentTypeCSV)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="portfolio-%s.csv"`, report.RunID))
		w.WriteHeader(http.StatusOK)
		if err := optimization.WriteCSV(w, report); err != nil {
			h.log.Error().Err(err).Msg("Failed to write CSV response")
		}
	case strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack):
		h.writeMsgpack(w, http.StatusOK, report)
	default:
		response := map[string]interface{}{
			"data": report,
			"metadata": map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
			},
		}
		if h.analyzer != nil && r.URL.Query().Get("performance") == "true" {
			perfs, err := h.analyzer.EvaluateReport(report, nil)
			if err != nil {
				h.log.Warn().Err(err).Msg("Failed to evaluate portfolio performance")
			} else {
				response["performance"] = perfs
			}
		}
		h.writeJSON(w, http.StatusOK, response)
	}
}

// writeRunError maps run errors to status codes. A partial report from a
// cancelled run is returned alongside the error.
func (h *Handler) writeRunError(w http.ResponseWriter, err error, partial *optimization.Report) {
	var status int
	switch {
	case errors.Is(err, optimization.ErrInsufficientData),
		errors.Is(err, optimization.ErrInfeasibleConstraints):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, optimization.ErrInvalidPriceSeries):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Optimization run failed")
	} else {
		h.log.Warn().Err(err).Msg("Optimization run rejected")
	}
	response := map[string]interface{}{"error": err.Error()}
	if partial != nil {
		response["data"] = partial
	}
	h.writeJSON(w, status, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeMsgpack(w http.ResponseWriter, status int, data interface{}) {
	payload, err := msgpack.Marshal(data)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode msgpack response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to write msgpack response")
	}
}
