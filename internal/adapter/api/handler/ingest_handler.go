package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
	"github.com/rudipoppes/GenHook/internal/usecase"
)

const (
	maxWebhookBodyBytes  = 5 * 1024 * 1024
	defaultRequestBudget = 30 * time.Second
)

// IngestHandler handles POST /webhook/{service}/{token}, the heart of
// spec.md §4.7's HTTP front.
type IngestHandler struct {
	useCase       *usecase.IngestUseCase
	logger        *slog.Logger
	metrics       *metrics.Metrics
	requestBudget time.Duration
}

// NewIngestHandler wires the ingest HTTP front. requestBudget bounds the
// entire resolve->extract->render->log->send pipeline per spec.md §5's
// inbound processing budget; a zero value falls back to the 30s default.
func NewIngestHandler(uc *usecase.IngestUseCase, logger *slog.Logger, m *metrics.Metrics, requestBudget time.Duration) *IngestHandler {
	if requestBudget <= 0 {
		requestBudget = defaultRequestBudget
	}
	return &IngestHandler{useCase: uc, logger: logger.With("component", "ingest_handler"), metrics: m, requestBudget: requestBudget}
}

type ingestResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	GeneratedMessage string `json:"generated_message,omitempty"`
	ServiceToken     string `json:"service_token,omitempty"`
}

// ServeHTTP implements the state machine described in spec.md §4.7:
// RECEIVED -> RESOLVED -> RENDERED -> COMPLETED, with 404 reserved for an
// unknown (service, token) and every pipeline failure folded into a 200
// response so the upstream webhook source never retries. A body that cannot
// be read is answered before lookup: 413 when it exceeds the size cap, 400
// otherwise.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// spec.md §4.7: "The path components are lowercased before lookup" —
	// both {service} and {token} are lowered before resolving the record.
	service := strings.ToLower(r.PathValue("service"))
	token := strings.ToLower(r.PathValue("token"))

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookBytesTotal.Add(float64(len(rawBody)))
	}

	// spec.md §5: the entire resolve->extract->render->log->send pipeline
	// carries one overall processing budget, distinct from the sink
	// client's own per-attempt timeout — exceeding it still returns 200
	// with a timeout note rather than reflecting the failure upstream.
	ctx, cancel := context.WithTimeout(r.Context(), h.requestBudget)
	defer cancel()

	result, err := h.useCase.Handle(ctx, service, token, rawBody, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.recordOutcome(service, "not_found")
			h.writeJSON(w, http.StatusNotFound, ingestResponse{Status: "not_found", Message: "unknown webhook endpoint"})
			return
		}
		h.logger.Error("unexpected ingest error", "service", service, "error", err)
		h.recordOutcome(service, "failure")
		h.writeJSON(w, http.StatusOK, ingestResponse{Status: "failure", Message: "internal error, recorded"})
		return
	}

	h.recordOutcome(service, result.Status)
	h.writeJSON(w, http.StatusOK, ingestResponse{
		Status:           result.Status,
		Message:          result.Message,
		GeneratedMessage: result.GeneratedMessage,
		ServiceToken:     result.ServiceToken,
	})
}

func (h *IngestHandler) recordOutcome(service, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhooksTotal.WithLabelValues(service, outcome).Inc()
	}
}

func (h *IngestHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
