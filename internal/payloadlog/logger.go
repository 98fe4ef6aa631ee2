// Package payloadlog implements the payload logger (C5): a rotating,
// per-service log of received webhook payloads, grounded on the same
// create-directory-lazily, rotate-on-size-threshold shape as the teacher's
// write-ahead log (internal/adapter/repository/wal).
package payloadlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
)

const activeFileName = "payload.log"

// Logger manages rotating payload-log files under baseDir/<service>/.
// Failures to create or write a log must never fail the webhook request
// that triggered them (spec.md §4.5) — every public method here reports
// errors so the caller can log them, but the HTTP front never treats a
// Logger error as a pipeline failure.
type Logger struct {
	disabled    bool
	baseDir     string
	maxBytes    int64
	backupCount int
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu         sync.Mutex // guards services; a finer per-service lock is taken from within
	services   map[string]*serviceLog
}

type serviceLog struct {
	mu   sync.Mutex
	dir  string
	size int64
}

// Config holds the tunables from spec.md §6's webhook_logging section. The
// zero value logs (Disabled defaults false), matching webhook_logging.enabled
// defaulting to true.
type Config struct {
	Disabled      bool
	BaseDirectory string
	MaxBytes      int64
	BackupCount   int
}

func DefaultConfig() Config {
	return Config{
		BaseDirectory: "logs/webhooks",
		MaxBytes:      10 * 1024 * 1024,
		BackupCount:   5,
	}
}

// New constructs a Logger. The base directory is created lazily, on first
// write, not here. When cfg.Disabled is true, Append is a silent no-op
// (spec.md §6's webhook_logging.enabled toggle) and Recent/Types report an
// empty log, as if nothing had ever been recorded. m is optional: pass nil
// to skip Prometheus instrumentation (e.g. in tests).
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Logger {
	return &Logger{
		disabled:    cfg.Disabled,
		baseDir:     cfg.BaseDirectory,
		maxBytes:    cfg.MaxBytes,
		backupCount: cfg.BackupCount,
		metrics:     m,
		logger:      logger.With("component", "payloadlog"),
		services:    make(map[string]*serviceLog),
	}
}

// Append writes one payload record to the active log file for service,
// rotating first if the active file is non-empty and appending this record
// would take it past the size threshold. A failure here is always non-fatal to the caller: it is
// logged and returned as domain.ErrLogIOFailure so the caller can decide
// whether to surface it (spec.md never fails a webhook request over it).
func (l *Logger) Append(service string, rec domain.PayloadRecord) error {
	if l.disabled {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	sl, err := l.serviceLog(service)
	if err != nil {
		l.logger.Error("failed to prepare log directory", "service", service, "error", err)
		l.recordIOError(service)
		return fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		l.logger.Error("failed to marshal payload record", "service", service, "error", err)
		l.recordIOError(service)
		return fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
	}
	data = append(data, '\n')

	sl.mu.Lock()
	defer sl.mu.Unlock()

	activePath := filepath.Join(sl.dir, activeFileName)
	if sl.size == 0 {
		if info, statErr := os.Stat(activePath); statErr == nil {
			sl.size = info.Size()
		}
	}
	if sl.size > 0 && sl.size+int64(len(data)) > l.maxBytes {
		if err := l.rotate(service, sl); err != nil {
			l.logger.Error("failed to rotate payload log", "service", service, "error", err)
			l.recordIOError(service)
			return fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
		}
	}

	f, err := os.OpenFile(activePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("failed to open active payload log", "service", service, "error", err)
		l.recordIOError(service)
		return fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		l.logger.Error("failed to write payload log entry", "service", service, "error", err)
		l.recordIOError(service)
		return fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
	}
	sl.size += int64(n)
	return nil
}

func (l *Logger) recordIOError(service string) {
	if l.metrics != nil {
		l.metrics.PayloadLogErrors.WithLabelValues(service).Inc()
	}
}

// rotate shifts payload.log.N to payload.log.N+1 up to l.backupCount,
// discarding the oldest, then clears the active file slot. Caller holds
// sl.mu.
func (l *Logger) rotate(service string, sl *serviceLog) error {
	if l.metrics != nil {
		l.metrics.PayloadLogRotations.WithLabelValues(service).Inc()
	}
	// Shift highest-numbered first so no rename clobbers a file still
	// waiting to be shifted. payload.log.backupCount, if present, is the
	// oldest and is simply overwritten out of existence by this loop.
	for n := l.backupCount - 1; n >= 1; n-- {
		src := filepath.Join(sl.dir, fmt.Sprintf("%s.%d", activeFileName, n))
		dst := filepath.Join(sl.dir, fmt.Sprintf("%s.%d", activeFileName, n+1))
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	active := filepath.Join(sl.dir, activeFileName)
	if l.backupCount > 0 {
		rotated := filepath.Join(sl.dir, fmt.Sprintf("%s.1", activeFileName))
		if _, err := os.Stat(active); err == nil {
			if err := os.Rename(active, rotated); err != nil {
				return err
			}
		}
	} else {
		os.Remove(active)
	}
	sl.size = 0
	return nil
}

// serviceLog returns (creating if needed) the per-service bookkeeping
// struct, lazily creating its log directory.
func (l *Logger) serviceLog(service string) (*serviceLog, error) {
	l.mu.Lock()
	sl, ok := l.services[service]
	l.mu.Unlock()
	if ok {
		return sl, nil
	}

	dir := filepath.Join(l.baseDir, service)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if sl, ok = l.services[service]; ok {
		return sl, nil
	}
	sl = &serviceLog{dir: dir}
	l.services[service] = sl
	return sl, nil
}

// Recent returns up to limit payload records for service, newest first,
// drawn from the active file plus rotated siblings.
func (l *Logger) Recent(service string, limit int) ([]domain.PayloadRecord, error) {
	if l.disabled {
		return nil, nil
	}
	dir := filepath.Join(l.baseDir, service)
	paths, err := orderedLogFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
	}

	var records []domain.PayloadRecord
	for _, p := range paths {
		lines, err := readLines(p)
		if err != nil {
			l.logger.Warn("failed to read payload log file", "path", p, "error", err)
			continue
		}
		for i := len(lines) - 1; i >= 0; i-- {
			var rec domain.PayloadRecord
			if err := json.Unmarshal([]byte(lines[i]), &rec); err != nil {
				continue
			}
			records = append(records, rec)
			if len(records) >= limit {
				return records, nil
			}
		}
	}
	return records, nil
}

// orderedLogFiles returns the active file followed by rotated files in
// newest-to-oldest order (payload.log, payload.log.1, payload.log.2, ...).
func orderedLogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	active := ""
	rotated := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == activeFileName {
			active = filepath.Join(dir, name)
			continue
		}
		if strings.HasPrefix(name, activeFileName+".") {
			suffix := strings.TrimPrefix(name, activeFileName+".")
			if n, err := strconv.Atoi(suffix); err == nil {
				rotated[n] = filepath.Join(dir, name)
			}
		}
	}

	var ns []int
	for n := range rotated {
		ns = append(ns, n)
	}
	sort.Ints(ns)

	var out []string
	if active != "" {
		out = append(out, active)
	}
	for _, n := range ns {
		out = append(out, rotated[n])
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// Types lists service names that currently have a log directory.
func (l *Logger) Types() ([]string, error) {
	if l.disabled {
		return nil, nil
	}
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
	}
	var types []string
	for _, e := range entries {
		if e.IsDir() {
			types = append(types, e.Name())
		}
	}
	sort.Strings(types)
	return types, nil
}

// RemoveService deletes the entire log directory for service. Called by
// the admin surface when the last configuration record for service is
// deleted (spec.md §3's lifecycle rule).
func (l *Logger) RemoveService(service string) error {
	l.mu.Lock()
	delete(l.services, service)
	l.mu.Unlock()

	dir := filepath.Join(l.baseDir, service)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLogIOFailure, err)
	}
	return nil
}
