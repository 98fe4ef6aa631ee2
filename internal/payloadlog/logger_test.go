package payloadlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rudipoppes/GenHook/internal/domain"
)

func newTestLogger(t *testing.T, maxBytes int64, backupCount int) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{BaseDirectory: dir, MaxBytes: maxBytes, BackupCount: backupCount}
	return New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)), nil), dir
}

func record(msg string) domain.PayloadRecord {
	return domain.PayloadRecord{
		Timestamp:        time.Now().UTC(),
		WebhookType:      "github",
		Payload:          json.RawMessage(`{"a":1}`),
		ProcessingStatus: domain.StatusSuccess,
		GeneratedMessage: msg,
	}
}

func TestAppend_CreatesDirectoryAndFile(t *testing.T) {
	logger, dir := newTestLogger(t, DefaultConfig().MaxBytes, 5)
	if err := logger.Append("github", record("hello")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	active := filepath.Join(dir, "github", activeFileName)
	if _, err := os.Stat(active); err != nil {
		t.Fatalf("expected active log file to exist: %v", err)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultConfig().MaxBytes, 5)
	for _, m := range []string{"one", "two", "three"} {
		if err := logger.Append("github", record(m)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	recs, err := logger.Recent("github", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].GeneratedMessage != "three" || recs[2].GeneratedMessage != "one" {
		t.Fatalf("unexpected order: %+v", recs)
	}
}

func TestRecent_RespectsLimit(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultConfig().MaxBytes, 5)
	for i := 0; i < 5; i++ {
		if err := logger.Append("github", record("m")); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	recs, err := logger.Recent("github", 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
}

func TestRecent_MissingDirectoryReturnsEmpty(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultConfig().MaxBytes, 5)
	recs, err := logger.Recent("nope", 10)
	if err != nil {
		t.Fatalf("expected no error for missing service, got %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func TestAppend_RotatesAtThreshold(t *testing.T) {
	// Each record is well over 100 bytes; use a tiny threshold so the second
	// write forces rotation (B5: the Nth write triggers rotation, the
	// N+1st write opens a fresh active file).
	logger, dir := newTestLogger(t, 80, 5)

	if err := logger.Append("github", record("first")); err != nil {
		t.Fatalf("append 1 failed: %v", err)
	}
	if err := logger.Append("github", record("second")); err != nil {
		t.Fatalf("append 2 failed: %v", err)
	}

	rotated := filepath.Join(dir, "github", activeFileName+".1")
	if _, err := os.Stat(rotated); err != nil {
		t.Fatalf("expected rotated file to exist after threshold exceeded: %v", err)
	}
	active := filepath.Join(dir, "github", activeFileName)
	info, err := os.Stat(active)
	if err != nil {
		t.Fatalf("expected fresh active file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected the triggering write to have landed in the fresh active file")
	}
}

func TestAppend_RotationBoundedByBackupCount(t *testing.T) {
	logger, dir := newTestLogger(t, 40, 2)
	for i := 0; i < 10; i++ {
		if err := logger.Append("github", record("x")); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "github", activeFileName+".3")); !os.IsNotExist(err) {
		t.Fatalf("expected no payload.log.3 with backupCount=2, stat err=%v", err)
	}
}

func TestRemoveService_DeletesDirectory(t *testing.T) {
	logger, dir := newTestLogger(t, DefaultConfig().MaxBytes, 5)
	if err := logger.Append("github", record("hello")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := logger.RemoveService("github"); err != nil {
		t.Fatalf("remove service failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "github")); !os.IsNotExist(err) {
		t.Fatalf("expected service directory to be gone, stat err=%v", err)
	}
}

func TestAppend_DisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Disabled: true, BaseDirectory: dir, MaxBytes: DefaultConfig().MaxBytes, BackupCount: 5}
	logger := New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)), nil)

	if err := logger.Append("github", record("hello")); err != nil {
		t.Fatalf("append on a disabled logger should not error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "github")); !os.IsNotExist(err) {
		t.Fatalf("expected no directory to be created while disabled, stat err=%v", err)
	}
	recs, err := logger.Recent("github", 10)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected an empty recent list while disabled, got %v, err=%v", recs, err)
	}
}

func TestTypes_ListsServiceDirectories(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultConfig().MaxBytes, 5)
	logger.Append("github", record("a"))
	logger.Append("stripe", record("b"))
	types, err := logger.Types()
	if err != nil {
		t.Fatalf("types failed: %v", err)
	}
	if len(types) != 2 || types[0] != "github" || types[1] != "stripe" {
		t.Fatalf("unexpected types: %v", types)
	}
}
