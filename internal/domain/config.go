package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Alignment is a downstream routing hint rendered into the sink message's
// aligned_resource path. The zero value is the empty alignment.
type Alignment struct {
	Kind string // "", "org", or "device"
	ID   int64
}

var alignmentRe = regexp.MustCompile(`^(org|device):(\d+)$`)

// ParseAlignment parses the single-string wire/on-disk form ("org:5",
// "device:24", or "" for none) used by both the config-file store and the
// admin HTTP boundary, per spec.md §4.8's alignment contract.
func ParseAlignment(s string) (Alignment, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Alignment{}, nil
	}
	m := alignmentRe.FindStringSubmatch(s)
	if m == nil {
		return Alignment{}, fmt.Errorf("%w: invalid alignment %q", ErrBadConfig, s)
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Alignment{}, fmt.Errorf("%w: invalid alignment id in %q", ErrBadConfig, s)
	}
	return Alignment{Kind: m[1], ID: id}, nil
}

// Empty reports whether the alignment carries no routing hint.
func (a Alignment) Empty() bool {
	return a.Kind == ""
}

// String renders the alignment back into its single-string wire/on-disk
// form, the inverse of ParseAlignment.
func (a Alignment) String() string {
	if a.Empty() {
		return ""
	}
	return fmt.Sprintf("%s:%d", a.Kind, a.ID)
}

// MarshalJSON serialises an Alignment as the single string clients send and
// receive ("org:5", "device:24", or "" for none) rather than as a nested
// {kind, id} object, so GET /api/configs and GET /api/config/{service}/{token}
// round-trip the same shape POST /api/save-config accepts.
func (a Alignment) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Alignment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAlignment(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AlignedResource renders the alignment into the sink's aligned_resource
// path, per spec.md §3: empty alignment maps to the organization root.
func (a Alignment) AlignedResource() string {
	switch a.Kind {
	case "org":
		return "/api/organization/" + strconv.FormatInt(a.ID, 10)
	case "device":
		return "/api/device/" + strconv.FormatInt(a.ID, 10)
	default:
		return "/api/organization/0"
	}
}

// Record is a configuration record, the tuple described in spec.md §3.
// (service, token) uniquely identifies it; token is unique across the
// entire store regardless of service.
type Record struct {
	Service   string    `json:"service"`
	Token     string    `json:"token"`
	Alignment Alignment `json:"alignment"`
	Fields    string    `json:"fields"`   // field-pattern expression, string form
	Template  string    `json:"template"` // message template
}

// Key returns the on-disk record key, service + "_" + token.
func (r Record) Key() string {
	return r.Service + "_" + r.Token
}
