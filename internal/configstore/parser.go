package configstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rudipoppes/GenHook/internal/domain"
	"github.com/rudipoppes/GenHook/internal/extract"
	"github.com/rudipoppes/GenHook/internal/render"
)

const legacyToken = "legacy"

var serviceRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// parseKey splits a stored record key into (service, token). Tokens never
// contain '_' (they're drawn from an alphanumeric alphabet), so the last
// underscore in the key is always the service/token boundary — a key with
// no underscore at all is the legacy, unauthenticated form bound to the
// synthetic token "legacy" (spec.md §4.3, §9's resolution of the legacy
// token open question).
func parseKey(key string) (service, token string) {
	if i := strings.LastIndex(key, "_"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, legacyToken
}

// parseLine parses one non-empty, non-comment, non-section-header line of
// the webhook configuration file. It recognises the current pipe format and
// the two legacy forms described in spec.md §6.
func parseLine(line string) (domain.Record, error) {
	line = strings.TrimSpace(line)

	if strings.Contains(line, "|") {
		return parsePipeForm(line)
	}
	return parseLegacyForm(line)
}

func parsePipeForm(line string) (domain.Record, error) {
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return domain.Record{}, fmt.Errorf("%w: malformed record line %q", domain.ErrBadConfig, line)
	}
	service, token := parseKey(strings.TrimSpace(parts[0]))
	alignment, err := domain.ParseAlignment(parts[1])
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{
		Service:   service,
		Token:     token,
		Alignment: alignment,
		Fields:    strings.TrimSpace(parts[2]),
		Template:  parts[3],
	}, nil
}

// parseLegacyForm parses "<key> = <fields>::<template>", where <key> is
// either "<service>_<token>" or a bare "<service>" (the unauthenticated
// legacy form bound to token "legacy").
func parseLegacyForm(line string) (domain.Record, error) {
	kv := strings.SplitN(line, "=", 2)
	if len(kv) != 2 {
		return domain.Record{}, fmt.Errorf("%w: malformed legacy record line %q", domain.ErrBadConfig, line)
	}
	key := strings.TrimSpace(kv[0])
	value := strings.TrimSpace(kv[1])

	ft := strings.SplitN(value, "::", 2)
	if len(ft) != 2 {
		return domain.Record{}, fmt.Errorf("%w: legacy record %q missing '::' separator", domain.ErrBadConfig, key)
	}

	service, token := parseKey(key)
	return domain.Record{
		Service:  service,
		Token:    token,
		Fields:   strings.TrimSpace(ft[0]),
		Template: ft[1],
	}, nil
}

// formatRecord renders a record in the current, canonical pipe format.
// Every write re-serialises every record this way — including records that
// were loaded in a legacy form — per spec.md §4.3's normalisation rule.
func formatRecord(r domain.Record) string {
	return fmt.Sprintf("%s_%s|%s|%s|%s", r.Service, r.Token, r.Alignment.String(), r.Fields, r.Template)
}

// validate checks the invariants spec.md §4.3 requires at write time.
// tokenCount is the number of records, r itself included, whose token equals
// r's token case-insensitively; anything above 1 is a collision.
func validate(r domain.Record, tokenCount int) error {
	if !serviceRe.MatchString(r.Service) {
		return fmt.Errorf("%w: service %q must match %s", domain.ErrBadConfig, r.Service, serviceRe.String())
	}
	if tokenCount > 1 {
		return fmt.Errorf("%w: token for service %q is not unique", domain.ErrTokenCollision, r.Service)
	}
	if _, err := extract.Parse(r.Fields); err != nil {
		return fmt.Errorf("%w: fields %q: %v", domain.ErrBadConfig, r.Fields, err)
	}
	if _, err := render.Render(r.Template, nil); err != nil {
		return fmt.Errorf("%w: template: %v", domain.ErrBadConfig, err)
	}
	return nil
}
