package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abrennan/tv-schedule-service/internal/lifecycle"
	"github.com/abrennan/tv-schedule-service/internal/models"
	"github.com/abrennan/tv-schedule-service/internal/service"
	"github.com/abrennan/tv-schedule-service/internal/validation"
	"github.com/abrennan/tv-schedule-service/internal/window"
)

const defaultOccurrenceLimit = 10

// HealthConfig holds the thresholds and counters for the health handler.
type HealthConfig struct {
	// Window and ErrorPct define the degraded condition: provider-backed
	// requests within Window failing at or above ErrorPct percent.
	Window   time.Duration
	ErrorPct int

	Errors    *window.Counter
	Successes *window.Counter
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	schedule         *service.ScheduleService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(schedule *service.ScheduleService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		schedule:     schedule,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetAggregatedByTvShow handles GET /api/shows/aggregatedbytvshow?date=yyyy-MM-dd.
func (h *Handler) GetAggregatedByTvShow(w http.ResponseWriter, r *http.Request) {
	day, err := validation.ValidateDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}

	shows, err := h.schedule.GetRawData(r.Context(), day)
	if err != nil {
		h.recordOutcome(err)
		writeServiceError(w, r, err)
		return
	}
	h.recordOutcome(nil)
	writeJSON(w, http.StatusOK, toShowDTOs(shows))
}

// GetOrderedByOccurrences handles GET /api/shows/orderedbyoccurrences.
// startDate is required; endDate is optional and defaults to startDate;
// order defaults to asc; limit defaults to 10.
func (h *Handler) GetOrderedByOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := validation.ValidateDate(q.Get("startDate"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", "startDate: "+err.Error())
		return
	}
	var end *models.Day
	if raw := q.Get("endDate"); raw != "" {
		parsed, err := validation.ValidateDate(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_DATE", "endDate: "+err.Error())
			return
		}
		end = &parsed
	}
	order := q.Get("order")
	if order == "" {
		order = service.OrderAsc
	}
	limit := defaultOccurrenceLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer")
			return
		}
		limit = parsed
	}

	occurrences, err := h.schedule.GetOrderedByOccurrences(r.Context(), start, end, order, limit)
	if err != nil {
		h.recordOutcome(err)
		writeServiceError(w, r, err)
		return
	}
	h.recordOutcome(nil)
	writeJSON(w, http.StatusOK, toOccurrenceDTOs(occurrences))
}

// recordOutcome feeds the health error-rate window. Validation failures
// never reach here; only provider-backed request outcomes count.
func (h *Handler) recordOutcome(err error) {
	if h.healthConfig == nil {
		return
	}
	switch {
	case err == nil, service.KindOf(err) == service.KindNotFound, service.KindOf(err) == service.KindInvalidArgument:
		if h.healthConfig.Successes != nil {
			h.healthConfig.Successes.Record()
		}
	default:
		if h.healthConfig.Errors != nil {
			h.healthConfig.Errors.Record()
		}
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"epgProvider": "healthy"}
	if result.status == "degraded" {
		checks["epgProvider"] = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "tv-schedule-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > provider error-rate breach > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.Window > 0 && h.healthConfig.ErrorPct > 0 &&
		h.healthConfig.Errors != nil && h.healthConfig.Successes != nil {
		errs, total := window.ErrorRate(h.healthConfig.Errors, h.healthConfig.Successes, h.healthConfig.Window)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.ErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) when available.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps the closed error-kind set onto HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger, _ := r.Context().Value("logger").(*zap.Logger)

	switch service.KindOf(err) {
	case service.KindNotFound:
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No data found for the requested date")
		if logger != nil {
			logger.Debug("no data for request", zap.Error(err))
		}
	case service.KindInvalidArgument:
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case service.KindUpstreamUnavailable:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "EPG provider is not available")
		if logger != nil {
			logger.Warn("provider unavailable", zap.Error(err))
		}
	case service.KindUpstreamProtocol:
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_PROTOCOL", "EPG provider returned an unusable response")
		if logger != nil {
			logger.Error("provider protocol error", zap.Error(err))
		}
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "An unexpected error occurred")
		if logger != nil {
			logger.Error("internal error", zap.Error(err))
		}
	}
}
