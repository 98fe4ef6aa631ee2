// Package render implements the message template renderer (C2): single-pass,
// non-recursive substitution of $dotted.path$ and $dotted.path[i]$
// placeholders against the value map produced by package extract, per
// spec.md §4.2.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rudipoppes/GenHook/internal/domain"
)

// Render substitutes every variable reference in tmpl using values, and
// returns the result. It fails with domain.ErrBadTemplate only when tmpl
// contains an odd number of '$' delimiters. Unknown variables render as the
// empty string; anything between two '$' that is not a valid variable
// reference is emitted verbatim, delimiters included. Output is never
// re-scanned.
func Render(tmpl string, values map[string]any) (string, error) {
	if strings.Count(tmpl, "$")%2 != 0 {
		return "", fmt.Errorf("%w: odd number of '$' delimiters", domain.ErrBadTemplate)
	}

	var sb strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '$' {
			sb.WriteByte(tmpl[i])
			i++
			continue
		}

		rel := strings.IndexByte(tmpl[i+1:], '$')
		if rel == -1 {
			// Unreachable given the even-count check above, but keeps this
			// loop total if that invariant is ever violated upstream.
			sb.WriteByte(tmpl[i])
			i++
			continue
		}
		closeIdx := i + 1 + rel
		inner := tmpl[i+1 : closeIdx]

		if ref, ok := parseVarRef(inner); ok {
			sb.WriteString(renderRef(ref, values))
		} else {
			sb.WriteString(tmpl[i : closeIdx+1])
		}
		i = closeIdx + 1
	}
	return sb.String(), nil
}

type varRef struct {
	path     string
	index    int
	hasIndex bool
}

// parseVarRef matches IDENT(\.IDENT)*(\[INT\])? against inner, using the
// same identifier charset as the field-pattern grammar (anything but
// structural delimiters and whitespace).
func parseVarRef(inner string) (varRef, bool) {
	if inner == "" {
		return varRef{}, false
	}

	base := inner
	index := 0
	hasIndex := false

	if strings.HasSuffix(inner, "]") {
		open := strings.LastIndexByte(inner, '[')
		if open == -1 {
			return varRef{}, false
		}
		idxStr := inner[open+1 : len(inner)-1]
		if idxStr == "" {
			return varRef{}, false
		}
		n, err := strconv.Atoi(idxStr)
		if err != nil || n < 0 {
			return varRef{}, false
		}
		base = inner[:open]
		index = n
		hasIndex = true
	}

	if base == "" {
		return varRef{}, false
	}
	for _, part := range strings.Split(base, ".") {
		if part == "" || !isValidIdent(part) {
			return varRef{}, false
		}
	}

	return varRef{path: base, index: index, hasIndex: hasIndex}, true
}

func isValidIdent(s string) bool {
	for _, r := range s {
		switch r {
		case '{', '}', ',', '.', '[', ']', '$':
			return false
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return false
		}
	}
	return true
}

func renderRef(ref varRef, values map[string]any) string {
	v, ok := values[ref.path]
	if !ok {
		return ""
	}

	if list, isList := v.([]any); isList {
		if ref.hasIndex {
			if ref.index < 0 || ref.index >= len(list) {
				return ""
			}
			return scalarString(list[ref.index])
		}
		parts := make([]string, len(list))
		for i, elem := range list {
			parts[i] = scalarString(elem)
		}
		return strings.Join(parts, ", ")
	}

	if ref.hasIndex {
		if ref.index != 0 {
			return ""
		}
		return scalarString(v)
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
