package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rudipoppes/GenHook/internal/usecase"
)

// genhookVersion is reported by GET /health. Bump it alongside release tags.
const genhookVersion = "1.0.0"

// HealthHandler serves GET /health, a side-effect-free introspection
// endpoint reporting the configured webhook types (spec.md §6).
type HealthHandler struct {
	uc     *usecase.AdminUseCase
	logger *slog.Logger
}

func NewHealthHandler(uc *usecase.AdminUseCase, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{uc: uc, logger: logger.With("component", "health_handler")}
}

type healthResponse struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	WebhookTypes []string  `json:"webhook_types"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types, err := h.uc.WebhookTypes()
	if err != nil {
		h.logger.Error("failed to list webhook types for health check", "error", err)
		types = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{
		Status:       "ok",
		Version:      genhookVersion,
		WebhookTypes: types,
		Timestamp:    time.Now().UTC(),
	})
}
