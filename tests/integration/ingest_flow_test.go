// Package integration exercises the webhook gateway end-to-end through its
// HTTP surface, wiring real configstore/payloadlog/sink components against
// temporary directories and an in-process sink server rather than any
// external dependency.
package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rudipoppes/GenHook/internal/adapter/api"
	"github.com/rudipoppes/GenHook/internal/configstore"
	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/payloadlog"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
	"github.com/rudipoppes/GenHook/internal/sink"
	"github.com/rudipoppes/GenHook/internal/usecase"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// sharedMetrics is constructed once: promauto registers into the default
// Prometheus registry, so a second metrics.New() call from a later test
// would panic on a duplicate registration.
var sharedMetrics = metrics.New()

type testGateway struct {
	router     http.Handler
	store      *configstore.Store
	payloadLog *payloadlog.Logger
	adminUC    *usecase.AdminUseCase
	sinkCalls  []domain.SinkMessage
	sinkServer *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	dir := t.TempDir()

	gw := &testGateway{}
	gw.sinkServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg domain.SinkMessage
		json.NewDecoder(r.Body).Decode(&msg)
		gw.sinkCalls = append(gw.sinkCalls, msg)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gw.sinkServer.Close)

	gw.store = configstore.New(filepath.Join(dir, "webhook-config.ini"), testLogger())
	gw.payloadLog = payloadlog.New(payloadlog.Config{
		BaseDirectory: filepath.Join(dir, "logs"),
		MaxBytes:      1024 * 1024,
		BackupCount:   2,
	}, testLogger(), sharedMetrics)

	cfg := sink.DefaultConfig()
	cfg.URL = gw.sinkServer.URL
	cfg.Username, cfg.Password = "u", "p"
	cfg.RetryAttempts = 1
	cfg.RateLimit = 0
	sinkClient := sink.New(cfg, nil, nil, testLogger())

	ingestUC := usecase.NewIngestUseCase(gw.store, gw.payloadLog, sinkClient, testLogger(), sharedMetrics)
	gw.adminUC = usecase.NewAdminUseCase(gw.store, gw.payloadLog)
	gw.router = api.NewRouter(testLogger(), sharedMetrics, ingestUC, gw.adminUC, 0)

	return gw
}

func (gw *testGateway) post(t *testing.T, service, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+service+"/"+token, strings.NewReader(body))
	req.SetPathValue("service", service)
	req.SetPathValue("token", token)
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		GeneratedMessage string `json:"generated_message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body.GeneratedMessage
}

func TestSourceControlPullRequestScenario(t *testing.T) {
	gw := newTestGateway(t)
	if err := gw.store.Create(domain.Record{
		Service:  "github",
		Token:    "TOK",
		Fields:   `action,pull_request{title,user{login}},repository{name}`,
		Template: `PR $action$ on $repository.name$: "$pull_request.title$" by $pull_request.user.login$`,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	body := `{"action":"opened","pull_request":{"title":"T","user":{"login":"u"}},"repository":{"name":"R"}}`
	rec := gw.post(t, "github", "TOK", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	want := `PR opened on R: "T" by u`
	if got := decodeMessage(t, rec); got != want {
		t.Fatalf("expected generated message %q, got %q", want, got)
	}
	if len(gw.sinkCalls) != 1 || gw.sinkCalls[0].Message != "github:TOK:"+want {
		t.Fatalf("unexpected sink calls: %+v", gw.sinkCalls)
	}
}

func TestArrayFanOutScenario(t *testing.T) {
	gw := newTestGateway(t)
	if err := gw.store.Create(domain.Record{
		Service:  "svc",
		Token:    "TOK",
		Fields:   `locations{search_id,asset_type}`,
		Template: `IDs: $locations.search_id$ | Types: $locations.asset_type$`,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	body := `{"locations":[{"search_id":"a","asset_type":"cpe"},{"search_id":"b","asset_type":"node"}]}`
	rec := gw.post(t, "svc", "TOK", body)

	want := "IDs: a, b | Types: cpe, node"
	if got := decodeMessage(t, rec); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPartialArrayScenario(t *testing.T) {
	gw := newTestGateway(t)
	if err := gw.store.Create(domain.Record{
		Service:  "svc",
		Token:    "TOK",
		Fields:   `locations{search_id,asset_type}`,
		Template: `IDs: $locations.search_id$ | Types: $locations.asset_type$`,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	body := `{"locations":[{"search_id":"a"},{"asset_type":"node"}]}`
	rec := gw.post(t, "svc", "TOK", body)

	want := "IDs: a | Types: node"
	if got := decodeMessage(t, rec); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestIndexedAccessScenario(t *testing.T) {
	gw := newTestGateway(t)
	if err := gw.store.Create(domain.Record{
		Service:  "svc",
		Token:    "TOK",
		Fields:   `locations{search_id,asset_type}`,
		Template: `First: $locations.asset_type[0]$ Second: $locations.asset_type[1]$`,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	body := `{"locations":[{"search_id":"a","asset_type":"cpe"},{"search_id":"b","asset_type":"node"}]}`
	rec := gw.post(t, "svc", "TOK", body)

	want := "First: cpe Second: node"
	if got := decodeMessage(t, rec); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAlignmentScenario(t *testing.T) {
	gw := newTestGateway(t)
	if err := gw.store.Create(domain.Record{
		Service:   "svc",
		Token:     "DEVTOK",
		Fields:    `action`,
		Template:  `$action$`,
		Alignment: domain.Alignment{Kind: "device", ID: 24},
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := gw.store.Create(domain.Record{
		Service:  "svc",
		Token:    "ORGTOK",
		Fields:   `action`,
		Template: `$action$`,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	gw.post(t, "svc", "DEVTOK", `{"action":"x"}`)
	gw.post(t, "svc", "ORGTOK", `{"action":"x"}`)

	if len(gw.sinkCalls) != 2 {
		t.Fatalf("expected 2 sink calls, got %d", len(gw.sinkCalls))
	}
	if gw.sinkCalls[0].AlignedResource != "/api/device/24" {
		t.Fatalf("expected device alignment, got %q", gw.sinkCalls[0].AlignedResource)
	}
	if gw.sinkCalls[1].AlignedResource != "/api/organization/0" {
		t.Fatalf("expected default organization alignment, got %q", gw.sinkCalls[1].AlignedResource)
	}
}

func TestUnknownTokenScenario(t *testing.T) {
	gw := newTestGateway(t)

	rec := gw.post(t, "github", "DOESNOTEXIST", `{"action":"opened"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(gw.sinkCalls) != 0 {
		t.Fatalf("expected no sink calls for an unknown token, got %d", len(gw.sinkCalls))
	}

	types, err := gw.adminUC.WebhookLogTypes()
	if err != nil {
		t.Fatalf("unexpected error listing log types: %v", err)
	}
	if len(types) != 0 {
		t.Fatalf("expected no payload-log directories for an unknown token, got %v", types)
	}

	records, err := gw.adminUC.RecentWebhookLogs("github", 10)
	if err != nil {
		t.Fatalf("unexpected error reading recent logs: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no payload-log entries for an unknown token, got %d", len(records))
	}
}
