package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rudipoppes/GenHook/internal/adapter/api/handler"
	"github.com/rudipoppes/GenHook/internal/adapter/api/middleware"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
	"github.com/rudipoppes/GenHook/internal/usecase"
)

// NewRouter builds the public-facing mux: the webhook ingestion endpoint,
// the admin configuration surface, and a liveness probe. It is deliberately
// separate from the metrics mux built in cmd/server, which is bound to a
// different address. requestBudget is the ingest pipeline's overall
// processing budget (spec.md §5); zero falls back to the handler's default.
func NewRouter(
	logger *slog.Logger,
	m *metrics.Metrics,
	ingestUseCase *usecase.IngestUseCase,
	adminUseCase *usecase.AdminUseCase,
	requestBudget time.Duration,
) http.Handler {
	mux := http.NewServeMux()

	ingestHandler := handler.NewIngestHandler(ingestUseCase, logger, m, requestBudget)
	adminHandler := handler.NewAdminHandler(adminUseCase, logger, m)
	healthHandler := handler.NewHealthHandler(adminUseCase, logger)

	mux.Handle("POST /webhook/{service}/{token}", ingestHandler)

	mux.HandleFunc("GET /api/configs", adminHandler.ListConfigs)
	mux.HandleFunc("GET /api/config/{service}/{token}", adminHandler.GetConfig)
	mux.HandleFunc("POST /api/save-config", adminHandler.SaveConfig)
	mux.HandleFunc("DELETE /api/config/{service}/{token}", adminHandler.DeleteConfig)
	mux.HandleFunc("POST /api/analyze-payload", adminHandler.AnalyzePayload)
	mux.HandleFunc("POST /api/test-config", adminHandler.TestConfig)
	mux.HandleFunc("GET /api/generate-token", adminHandler.GenerateToken)
	mux.HandleFunc("GET /api/webhook-logs/types", adminHandler.WebhookLogTypes)
	mux.HandleFunc("GET /api/webhook-logs/{service}/recent", adminHandler.RecentWebhookLogs)

	mux.Handle("GET /health", healthHandler)

	return middleware.Recovery(logger)(middleware.Logging(logger)(mux))
}
