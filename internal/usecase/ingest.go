// Package usecase orchestrates the core components (configstore, extract,
// render, payloadlog, sink) into the two flows the HTTP front exposes: the
// webhook ingestion pipeline and the administrative operations, following
// the same thin-usecase-over-domain-ports shape as the teacher's
// internal/usecase package.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rudipoppes/GenHook/internal/configstore"
	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/extract"
	"github.com/rudipoppes/GenHook/internal/payloadlog"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
	"github.com/rudipoppes/GenHook/internal/render"
	"github.com/rudipoppes/GenHook/internal/sink"
)

// IngestResult is the outcome of one webhook delivery attempt, carrying the
// fields the HTTP front copies into its JSON response per spec.md §6's wire
// protocol. It is always returned alongside a nil error except when the
// configuration lookup fails.
type IngestResult struct {
	Status           string
	Message          string
	GeneratedMessage string
	ServiceToken     string
}

const (
	statusSuccess      = "success"
	statusFailure      = "failure"
	statusEmptyPayload = "empty_payload"
	statusInvalidJSON  = "invalid_json"
	statusTimeout      = "timeout"
)

// IngestUseCase runs the resolve -> extract -> render -> log -> send
// pipeline for one inbound webhook.
type IngestUseCase struct {
	store      *configstore.Store
	payloadLog *payloadlog.Logger
	sinkClient *sink.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewIngestUseCase wires the pipeline. m is optional: pass nil to skip
// Prometheus instrumentation (e.g. in tests).
func NewIngestUseCase(store *configstore.Store, payloadLog *payloadlog.Logger, sinkClient *sink.Client, logger *slog.Logger, m *metrics.Metrics) *IngestUseCase {
	return &IngestUseCase{
		store:      store,
		payloadLog: payloadLog,
		sinkClient: sinkClient,
		metrics:    m,
		logger:     logger.With("component", "ingest_usecase"),
	}
}

// Handle resolves (service, token), and — unless the body is empty or not
// JSON — extracts, renders, logs, and forwards the result. It returns an
// error only when the configuration lookup fails (domain.ErrNotFound for an
// unknown pair, domain.ErrBadConfig when the store cannot be read); every
// other failure is folded into IngestResult.Status per spec.md §7's propagation
// policy of accepting the webhook and recording the failure instead of
// reflecting it.
func (uc *IngestUseCase) Handle(ctx context.Context, service, token string, rawBody []byte, sourceIP, userAgent string) (IngestResult, error) {
	rec, err := uc.store.Resolve(service, token)
	if err != nil {
		return IngestResult{}, err
	}
	serviceToken := rec.Service + "_" + rec.Token

	if len(rawBody) == 0 {
		return IngestResult{Status: statusEmptyPayload, Message: "empty payload accepted", ServiceToken: serviceToken}, nil
	}

	var payload any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return IngestResult{Status: statusInvalidJSON, Message: "non-JSON body accepted, no action taken", ServiceToken: serviceToken}, nil
	}

	extractStart := time.Now()
	forest, err := extract.Parse(rec.Fields)
	if err != nil {
		return uc.recordFailure(service, rawBody, sourceIP, userAgent, serviceToken, fmt.Sprintf("field pattern: %v", err)), nil
	}
	values := extract.ExtractWithForest(payload, forest)

	rendered, err := render.Render(rec.Template, values)
	if uc.metrics != nil {
		uc.metrics.ExtractDuration.Observe(time.Since(extractStart).Seconds())
	}
	if err != nil {
		return uc.recordFailure(service, rawBody, sourceIP, userAgent, serviceToken, fmt.Sprintf("template: %v", err)), nil
	}

	message := fmt.Sprintf("%s:%s:%s", rec.Service, rec.Token, rendered)
	sinkErr := uc.sinkClient.Send(ctx, domain.SinkMessage{
		Message:         message,
		AlignedResource: rec.Alignment.AlignedResource(),
	})

	status := domain.StatusSuccess
	failureReason := ""
	resultStatus := statusSuccess
	resultMessage := "delivered"
	if sinkErr != nil {
		status = domain.StatusFailure
		failureReason = sinkErr.Error()
		resultStatus = statusFailure
		resultMessage = failureReason
		// The overall processing budget (spec.md §5) ran out somewhere in
		// resolve -> extract -> render -> send. ctx.Err() distinguishes
		// that from an ordinary sink rejection/exhaustion, which leaves
		// ctx untouched.
		if ctx.Err() != nil {
			resultStatus = statusTimeout
			failureReason = fmt.Sprintf("processing budget exceeded: %v", sinkErr)
			resultMessage = "processing budget exceeded, recorded"
		}
	}

	if err := uc.payloadLog.Append(service, domain.PayloadRecord{
		Timestamp:        time.Now().UTC(),
		WebhookType:      service,
		Payload:          json.RawMessage(rawBody),
		SourceIP:         sourceIP,
		UserAgent:        userAgent,
		ProcessingStatus: status,
		GeneratedMessage: rendered,
		ContentLength:    int64(len(rawBody)),
		FailureReason:    failureReason,
	}); err != nil {
		uc.logger.Error("failed to append payload log entry", "service", service, "error", err)
	}

	return IngestResult{Status: resultStatus, Message: resultMessage, GeneratedMessage: rendered, ServiceToken: serviceToken}, nil
}

func (uc *IngestUseCase) recordFailure(service string, rawBody []byte, sourceIP, userAgent, serviceToken, reason string) IngestResult {
	if err := uc.payloadLog.Append(service, domain.PayloadRecord{
		Timestamp:        time.Now().UTC(),
		WebhookType:      service,
		Payload:          json.RawMessage(rawBody),
		SourceIP:         sourceIP,
		UserAgent:        userAgent,
		ProcessingStatus: domain.StatusFailure,
		ContentLength:    int64(len(rawBody)),
		FailureReason:    reason,
	}); err != nil {
		uc.logger.Error("failed to append payload log entry", "service", service, "error", err)
	}
	return IngestResult{Status: statusFailure, Message: reason, ServiceToken: serviceToken}
}
