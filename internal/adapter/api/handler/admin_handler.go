package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
	"github.com/rudipoppes/GenHook/internal/usecase"
)

// AdminHandler serves the configuration-management surface consumed by the
// external admin UI: list/create/edit/delete configurations, analyse a
// sample payload, dry-run a candidate configuration, mint a token, and
// inspect recent webhook log entries.
type AdminHandler struct {
	uc      *usecase.AdminUseCase
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAdminHandler wires the admin surface. m is optional: pass nil to skip
// Prometheus instrumentation (e.g. in tests).
func NewAdminHandler(uc *usecase.AdminUseCase, logger *slog.Logger, m *metrics.Metrics) *AdminHandler {
	return &AdminHandler{uc: uc, metrics: m, logger: logger.With("component", "admin_handler")}
}

func (h *AdminHandler) recordOp(endpoint, outcome string) {
	if h.metrics != nil {
		h.metrics.AdminOpsTotal.WithLabelValues(endpoint, outcome).Inc()
	}
}

// ListConfigs handles GET /api/configs.
func (h *AdminHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	records, err := h.uc.ListConfigs()
	if err != nil {
		h.logger.Error("failed to list configs", "error", err)
		h.recordOp("list_configs", "error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.recordOp("list_configs", "success")
	h.respondWithJSON(w, http.StatusOK, records)
}

// GetConfig handles GET /api/config/{service}/{token}.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	token := r.PathValue("token")

	rec, err := h.uc.GetConfig(service, token)
	if err != nil {
		h.recordOp("get_config", "error")
		h.respondWithError(w, err)
		return
	}
	h.recordOp("get_config", "success")
	h.respondWithJSON(w, http.StatusOK, rec)
}

// saveConfigRequest mirrors spec.md §4.8's save-config contract exactly:
// alignment is a single string ("org:5", "device:24", or "" for none), the
// same wire form the config-file store parses, not a kind/id pair — the UI
// is implemented independently against this shape.
type saveConfigRequest struct {
	Service   string `json:"service"`
	Token     string `json:"token"`
	Fields    string `json:"fields"`
	Template  string `json:"template"`
	Alignment string `json:"alignment"`
}

// SaveConfig handles POST /api/save-config. An empty token mints a new one
// and creates the record; a non-empty token updates the existing record.
func (h *AdminHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req saveConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	alignment, err := domain.ParseAlignment(req.Alignment)
	if err != nil {
		h.recordOp("save_config", "error")
		h.respondWithError(w, err)
		return
	}

	rec, err := h.uc.SaveConfig(usecase.SaveConfigInput{
		Service:   req.Service,
		Token:     req.Token,
		Fields:    req.Fields,
		Template:  req.Template,
		Alignment: alignment,
	})
	if err != nil {
		h.recordOp("save_config", "error")
		h.respondWithError(w, err)
		return
	}
	h.recordOp("save_config", "success")
	h.respondWithJSON(w, http.StatusOK, rec)
}

// DeleteConfig handles DELETE /api/config/{service}/{token}.
func (h *AdminHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	token := r.PathValue("token")

	if err := h.uc.DeleteConfig(service, token); err != nil {
		h.recordOp("delete_config", "error")
		h.respondWithError(w, err)
		return
	}
	h.recordOp("delete_config", "success")
	w.WriteHeader(http.StatusNoContent)
}

type analyzePayloadRequest struct {
	Payload  json.RawMessage `json:"payload"`
	MaxDepth int             `json:"max_depth,omitempty"`
}

// AnalyzePayload handles POST /api/analyze-payload.
func (h *AdminHandler) AnalyzePayload(w http.ResponseWriter, r *http.Request) {
	var req analyzePayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	leaves, err := h.uc.AnalyzePayload(req.Payload, req.MaxDepth)
	if err != nil {
		h.recordOp("analyze_payload", "error")
		http.Error(w, "payload is not valid JSON", http.StatusBadRequest)
		return
	}
	h.recordOp("analyze_payload", "success")
	h.respondWithJSON(w, http.StatusOK, leaves)
}

type testConfigRequest struct {
	Fields   string          `json:"fields"`
	Template string          `json:"template"`
	Payload  json.RawMessage `json:"payload"`
}

// TestConfig handles POST /api/test-config, a dry run that touches no state.
func (h *AdminHandler) TestConfig(w http.ResponseWriter, r *http.Request) {
	var req testConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.uc.TestConfig(req.Fields, req.Template, req.Payload)
	if err != nil {
		h.recordOp("test_config", "error")
		h.respondWithError(w, err)
		return
	}
	h.recordOp("test_config", "success")
	h.respondWithJSON(w, http.StatusOK, result)
}

// GenerateToken handles GET /api/generate-token.
func (h *AdminHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.uc.GenerateToken()
	if err != nil {
		h.logger.Error("failed to mint token", "error", err)
		h.recordOp("generate_token", "error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.recordOp("generate_token", "success")
	h.respondWithJSON(w, http.StatusOK, map[string]string{"token": tok})
}

// WebhookLogTypes handles GET /api/webhook-logs/types.
func (h *AdminHandler) WebhookLogTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.uc.WebhookLogTypes()
	if err != nil {
		h.logger.Error("failed to list webhook log types", "error", err)
		h.recordOp("webhook_log_types", "error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.recordOp("webhook_log_types", "success")
	h.respondWithJSON(w, http.StatusOK, types)
}

const defaultRecentLogLimit = 50

// RecentWebhookLogs handles GET /api/webhook-logs/{service}/recent?limit=N.
func (h *AdminHandler) RecentWebhookLogs(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")

	limit := defaultRecentLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.uc.RecentWebhookLogs(service, limit)
	if err != nil {
		h.logger.Error("failed to read webhook logs", "service", service, "error", err)
		h.recordOp("recent_webhook_logs", "error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.recordOp("recent_webhook_logs", "success")
	h.respondWithJSON(w, http.StatusOK, records)
}

// respondWithError maps a domain error to an HTTP status with a static
// message — never err.Error() — so a lower layer that happens to format a
// token into its error text (now or after a future change) can never reach
// the response body. spec.md §7: no error message ever echoes a token.
func (h *AdminHandler) respondWithError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrTokenCollision):
		h.logger.Warn("admin operation rejected", "reason", "token collision")
		http.Error(w, "token collision", http.StatusConflict)
	case errors.Is(err, domain.ErrBadPattern):
		h.logger.Debug("admin operation rejected", "error", err)
		http.Error(w, "bad field pattern", http.StatusBadRequest)
	case errors.Is(err, domain.ErrBadTemplate):
		h.logger.Debug("admin operation rejected", "error", err)
		http.Error(w, "bad template", http.StatusBadRequest)
	case errors.Is(err, domain.ErrBadConfig):
		h.logger.Debug("admin operation rejected", "error", err)
		http.Error(w, "invalid configuration", http.StatusBadRequest)
	default:
		h.logger.Error("admin operation failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
