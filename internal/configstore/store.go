// Package configstore implements the configuration store (C3): loading,
// validating, atomically rewriting, and backing up the webhook
// configuration file, and serving (service, token) lookups against it.
//
// Per spec.md §4.3 and §9's design notes, the store never caches parsed
// records across requests — it re-reads the file on every resolve call —
// and owns the file exclusively; no other component holds a reference into
// it.
package configstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rudipoppes/GenHook/internal/domain"
)

const sectionHeader = "[webhooks]"

// Store is the configuration store. Its zero value is not usable; construct
// with New.
type Store struct {
	path      string
	backupDir string
	logger    *slog.Logger

	// mu serialises writers only. Readers re-open the file directly: the
	// atomic tempfile-then-rename write discipline guarantees any single
	// read observes either the pre-image or the post-image, never a torn
	// file, so reads need no lock (spec.md §4.3, invariant I8).
	mu sync.Mutex
}

// New constructs a Store rooted at path, with timestamped backups written
// to a "backups" directory next to it.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:      path,
		backupDir: filepath.Join(filepath.Dir(path), "backups"),
		logger:    logger.With("component", "configstore"),
	}
}

// Resolve returns the full record for (service, token), or
// domain.ErrNotFound. Token comparison is case-insensitive because
// spec.md §4.7 lowercases both path components of the inbound webhook URL
// before lookup; token uniqueness is enforced case-insensitively at write
// time (see validate) so this can never resolve ambiguously.
func (s *Store) Resolve(service, token string) (domain.Record, error) {
	records, err := s.loadAll()
	if err != nil {
		return domain.Record{}, err
	}
	for _, r := range records {
		if r.Service == service && strings.EqualFold(r.Token, token) {
			return r, nil
		}
	}
	return domain.Record{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, service, token)
}

// List returns every record in a deterministic order (service, then token).
func (s *Store) List() ([]domain.Record, error) {
	records, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Service != records[j].Service {
			return records[i].Service < records[j].Service
		}
		return records[i].Token < records[j].Token
	})
	return records, nil
}

// Tokens returns every token currently bound in the store, lower-cased, for
// use by the token mint's uniqueness check. Lower-casing here matches the
// case-insensitive comparison Resolve uses, so a minted token can never
// collide with an existing one once the inbound URL folds both to
// lower-case (spec.md §4.7).
func (s *Store) Tokens() (map[string]struct{}, error) {
	records, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[strings.ToLower(r.Token)] = struct{}{}
	}
	return set, nil
}

// Create inserts a new record. It fails domain.ErrTokenCollision if the
// token is already bound anywhere in the store, and domain.ErrBadConfig if
// the record fails validation.
func (s *Store) Create(r domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadAllLocked()
	if err != nil {
		return err
	}
	for _, existing := range records {
		if existing.Service == r.Service && strings.EqualFold(existing.Token, r.Token) {
			return fmt.Errorf("%w: a record for service %q already binds this token", domain.ErrTokenCollision, r.Service)
		}
	}
	if err := s.validateAgainst(r, records); err != nil {
		return err
	}

	records = append(records, r)
	return s.rewrite(records)
}

// Update replaces the mutable parts of a record, preserving its token. It
// fails domain.ErrNotFound if (service, token) does not exist.
func (s *Store) Update(service, token, fields, template string, alignment domain.Alignment) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadAllLocked()
	if err != nil {
		return domain.Record{}, err
	}

	idx := -1
	for i, r := range records {
		if r.Service == service && r.Token == token {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.Record{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, service, token)
	}

	updated := domain.Record{Service: service, Token: token, Alignment: alignment, Fields: fields, Template: template}
	others := make([]domain.Record, 0, len(records)-1)
	for i, r := range records {
		if i != idx {
			others = append(others, r)
		}
	}
	if err := s.validateAgainst(updated, others); err != nil {
		return domain.Record{}, err
	}

	records[idx] = updated
	if err := s.rewrite(records); err != nil {
		return domain.Record{}, err
	}
	return updated, nil
}

// Delete removes (service, token). It reports whether this was the last
// remaining record for service — the caller (the admin surface) uses that
// to cascade-delete the service's payload-log directory, per spec.md §3's
// lifecycle rule and §9's "no inverted index needed" design note.
func (s *Store) Delete(service, token string) (lastForService bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadAllLocked()
	if err != nil {
		return false, err
	}

	idx := -1
	remainingForService := 0
	for i, r := range records {
		if r.Service == service && r.Token == token {
			idx = i
			continue
		}
		if r.Service == service {
			remainingForService++
		}
	}
	if idx == -1 {
		return false, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, service, token)
	}

	records = append(records[:idx], records[idx+1:]...)
	if err := s.rewrite(records); err != nil {
		return false, err
	}
	return remainingForService == 0, nil
}

func (s *Store) validateAgainst(r domain.Record, others []domain.Record) error {
	tokenCount := 1
	for _, o := range others {
		if strings.EqualFold(o.Token, r.Token) {
			tokenCount++
		}
	}
	return validate(r, tokenCount)
}

// loadAll is the unlocked entry point used by readers.
func (s *Store) loadAll() ([]domain.Record, error) {
	return s.readFile()
}

// loadAllLocked is used by writers, which already hold s.mu.
func (s *Store) loadAllLocked() ([]domain.Record, error) {
	return s.readFile()
}

func (s *Store) readFile() ([]domain.Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", domain.ErrBadConfig, err)
	}

	var records []domain.Record
	seenLegacyNoToken := make(map[string]bool)

	for lineNo, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			continue
		}

		r, err := parseLine(trimmed)
		if err != nil {
			s.logger.Warn("skipping invalid config line", "line_number", lineNo+1, "error", err)
			continue
		}

		if r.Token == legacyToken {
			if seenLegacyNoToken[r.Service] {
				return nil, fmt.Errorf("%w: duplicate unauthenticated legacy record for service %q", domain.ErrBadConfig, r.Service)
			}
			seenLegacyNoToken[r.Service] = true
		}

		records = append(records, r)
	}
	return records, nil
}

// rewrite renders the full record set, backs up the current file, writes a
// sibling temp file, and atomically renames it into place. Callers must
// hold s.mu.
func (s *Store) rewrite(records []domain.Record) error {
	if err := s.backupCurrent(); err != nil {
		s.logger.Error("failed to back up config file before write", "error", err)
		return fmt.Errorf("%w: backup failed: %v", domain.ErrBadConfig, err)
	}

	var sb strings.Builder
	sb.WriteString(sectionHeader)
	sb.WriteString("\n")
	for _, r := range records {
		sb.WriteString(formatRecord(r))
		sb.WriteString("\n")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating config directory: %v", domain.ErrBadConfig, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(s.path), uuid.NewString()))
	if err := os.WriteFile(tmpPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("%w: writing temp config file: %v", domain.ErrBadConfig, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: renaming temp config file into place: %v", domain.ErrBadConfig, err)
	}
	return nil
}

// backupCurrent copies the current file into a timestamped, gzip-compressed
// backup under s.backupDir. Backups are never read back programmatically —
// they exist purely for operator disaster recovery — so compressing them
// costs nothing and bounds the backup directory's growth, per SPEC_FULL's
// domain-stack wiring of klauspost/compress.
func (s *Store) backupCurrent() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil // nothing to back up yet
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return err
	}

	name := fmt.Sprintf("%s-%s.gz", filepath.Base(s.path), time.Now().UTC().Format("20060102T150405.000000000"))
	f, err := os.OpenFile(filepath.Join(s.backupDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}
