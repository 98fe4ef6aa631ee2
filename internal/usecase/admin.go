package usecase

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rudipoppes/GenHook/internal/configstore"
	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/extract"
	"github.com/rudipoppes/GenHook/internal/payloadlog"
	"github.com/rudipoppes/GenHook/internal/render"
	"github.com/rudipoppes/GenHook/internal/token"
)

const defaultAnalyzeDepth = 3

// AdminUseCase implements the administrative operations consumed by the
// external configuration UI (spec.md §4.8): list/create/edit/delete
// configurations, analyse a sample payload, dry-run a configuration, and
// enumerate recent payloads per service.
type AdminUseCase struct {
	store      *configstore.Store
	payloadLog *payloadlog.Logger
}

func NewAdminUseCase(store *configstore.Store, payloadLog *payloadlog.Logger) *AdminUseCase {
	return &AdminUseCase{store: store, payloadLog: payloadLog}
}

func (uc *AdminUseCase) ListConfigs() ([]domain.Record, error) {
	return uc.store.List()
}

func (uc *AdminUseCase) GetConfig(service, token string) (domain.Record, error) {
	return uc.store.Resolve(service, token)
}

// SaveConfigInput mirrors the body of POST /api/save-config.
type SaveConfigInput struct {
	Service   string
	Token     string // empty means "create"
	Fields    string
	Template  string
	Alignment domain.Alignment
}

// SaveConfig creates a new record (minting a token) when input.Token is
// empty, or updates the existing record otherwise, preserving its token.
func (uc *AdminUseCase) SaveConfig(input SaveConfigInput) (domain.Record, error) {
	if input.Token != "" {
		return uc.store.Update(input.Service, input.Token, input.Fields, input.Template, input.Alignment)
	}

	tok, err := token.Mint(uc.store)
	if err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{
		Service:   input.Service,
		Token:     tok,
		Alignment: input.Alignment,
		Fields:    input.Fields,
		Template:  input.Template,
	}
	if err := uc.store.Create(rec); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

// DeleteConfig deletes (service, token), cascade-deleting the service's
// payload-log directory when it was the last record bound to that service
// (spec.md §3's lifecycle rule).
func (uc *AdminUseCase) DeleteConfig(service, token string) error {
	lastForService, err := uc.store.Delete(service, token)
	if err != nil {
		return err
	}
	if lastForService {
		return uc.payloadLog.RemoveService(service)
	}
	return nil
}

// AnalyzePayload returns every extractable leaf path (up to maxDepth levels,
// 0 meaning the spec.md default of 3) found in a sample payload, purely
// advisory — it mutates no state.
func (uc *AdminUseCase) AnalyzePayload(rawPayload json.RawMessage, maxDepth int) ([]extract.LeafInfo, error) {
	if maxDepth <= 0 {
		maxDepth = defaultAnalyzeDepth
	}
	var payload any
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, err
	}
	return extract.AnalyzeLeafPaths(payload, maxDepth), nil
}

// TestConfigResult is the outcome of a dry run against a candidate
// configuration, with no persistence.
type TestConfigResult struct {
	ExtractedValues  map[string]any `json:"extracted_values"`
	RenderedMessage  string         `json:"rendered_message"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// TestConfig runs extraction and rendering for a candidate fields/template
// pair against a sample payload, without touching the store.
func (uc *AdminUseCase) TestConfig(fields, tmpl string, rawPayload json.RawMessage) (TestConfigResult, error) {
	start := time.Now()

	var payload any
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return TestConfigResult{}, err
	}

	values, err := extract.Extract(payload, fields)
	if err != nil {
		return TestConfigResult{}, err
	}

	rendered, err := render.Render(tmpl, values)
	if err != nil {
		return TestConfigResult{}, err
	}

	return TestConfigResult{
		ExtractedValues:  values,
		RenderedMessage:  rendered,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// GenerateToken mints a token validated for uniqueness against the store
// but not yet bound to any record.
func (uc *AdminUseCase) GenerateToken() (string, error) {
	return token.Mint(uc.store)
}

func (uc *AdminUseCase) WebhookLogTypes() ([]string, error) {
	return uc.payloadLog.Types()
}

// WebhookTypes returns the distinct service names currently configured in
// the store, sorted, for GET /health's introspection payload.
func (uc *AdminUseCase) WebhookTypes() ([]string, error) {
	records, err := uc.store.List()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var types []string
	for _, rec := range records {
		if _, ok := seen[rec.Service]; ok {
			continue
		}
		seen[rec.Service] = struct{}{}
		types = append(types, rec.Service)
	}
	sort.Strings(types)
	return types, nil
}

func (uc *AdminUseCase) RecentWebhookLogs(service string, limit int) ([]domain.PayloadRecord, error) {
	return uc.payloadLog.Recent(service, limit)
}
