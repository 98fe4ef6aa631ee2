package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rudipoppes/GenHook/internal/configstore"
	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/payloadlog"
	"github.com/rudipoppes/GenHook/internal/usecase"
)

func newTestAdminHandler(t *testing.T) (*AdminHandler, *configstore.Store) {
	t.Helper()
	dir := t.TempDir()

	store := configstore.New(filepath.Join(dir, "webhook-config.ini"), testLogger())
	plog := payloadlog.New(payloadlog.Config{
		BaseDirectory: filepath.Join(dir, "logs"),
		MaxBytes:      1024 * 1024,
		BackupCount:   2,
	}, testLogger(), sharedMetrics)

	uc := usecase.NewAdminUseCase(store, plog)
	return NewAdminHandler(uc, testLogger(), sharedMetrics), store
}

func TestAdminHandler_SaveConfigMintsTokenWhenEmpty(t *testing.T) {
	h, _ := newTestAdminHandler(t)

	reqBody, _ := json.Marshal(saveConfigRequest{Service: "github", Fields: "action", Template: "$action$"})
	req := httptest.NewRequest(http.MethodPost, "/api/save-config", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	h.SaveConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Token == "" {
		t.Fatalf("expected a minted token, got %+v", got)
	}
}

func TestAdminHandler_GetConfigUnknownReturns404(t *testing.T) {
	h, _ := newTestAdminHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config/github/nosuch", nil)
	req.SetPathValue("service", "github")
	req.SetPathValue("token", "nosuch")
	rec := httptest.NewRecorder()

	h.GetConfig(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminHandler_DeleteConfigRemovesRecord(t *testing.T) {
	h, store := newTestAdminHandler(t)
	if err := store.Create(domain.Record{Service: "github", Token: "abc123", Fields: "action", Template: "$action$"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/config/github/abc123", nil)
	req.SetPathValue("service", "github")
	req.SetPathValue("token", "abc123")
	rec := httptest.NewRecorder()

	h.DeleteConfig(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := store.Resolve("github", "abc123"); err == nil {
		t.Fatalf("expected record to be gone after delete")
	}
}

func TestAdminHandler_AnalyzePayloadReturnsLeafPaths(t *testing.T) {
	h, _ := newTestAdminHandler(t)

	reqBody, _ := json.Marshal(analyzePayloadRequest{Payload: json.RawMessage(`{"action":"opened","pull_request":{"title":"x"}}`)})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-payload", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	h.AnalyzePayload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var leaves []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &leaves); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(leaves) == 0 {
		t.Fatalf("expected at least one leaf path")
	}
}

func TestAdminHandler_TestConfigRendersWithoutPersisting(t *testing.T) {
	h, store := newTestAdminHandler(t)

	reqBody, _ := json.Marshal(testConfigRequest{
		Fields:   "action",
		Template: "$action$",
		Payload:  json.RawMessage(`{"action":"opened"}`),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/test-config", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	h.TestConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result usecase.TestConfigResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.RenderedMessage != "opened" {
		t.Fatalf("unexpected rendered message: %+v", result)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected test-config to persist nothing, found %d records", len(records))
	}
}

func TestAdminHandler_GenerateTokenReturnsNonEmptyToken(t *testing.T) {
	h, _ := newTestAdminHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/generate-token", nil)
	rec := httptest.NewRecorder()

	h.GenerateToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["token"] == "" {
		t.Fatalf("expected a non-empty token")
	}
}
