package extract

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/rudipoppes/GenHook/internal/domain"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("failed to decode fixture JSON: %v", err)
	}
	return v
}

func TestParse_Grammar(t *testing.T) {
	cases := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"simple", "action", false},
		{"nested", "pull_request{title,user{login}}", false},
		{"multi-root", "a,b,c{d}", false},
		{"successive groups conjunction", "a{b}{c}", false},
		{"empty", "", true},
		{"unterminated group", "a{b", true},
		{"stray close", "a}", true},
		{"trailing comma", "a,", true},
		{"empty group", "a{}", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.expr)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q, got nil", tc.expr)
			}
			if tc.wantErr && !errors.Is(err, domain.ErrBadPattern) {
				t.Fatalf("expected ErrBadPattern for %q, got %v", tc.expr, err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.expr, err)
			}
		})
	}
}

func TestParse_ConjunctionOfSuccessiveGroups(t *testing.T) {
	forest, err := Parse("pull_request{title}{user{login}}")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(forest) != 1 || forest[0].Name != "pull_request" {
		t.Fatalf("unexpected forest: %+v", forest)
	}
	names := map[string]bool{}
	for _, c := range forest[0].Children {
		names[c.Name] = true
	}
	if !names["title"] || !names["user"] {
		t.Fatalf("expected title and user children, got %+v", forest[0].Children)
	}
}

func TestExtract_SourceControlPR(t *testing.T) {
	payload := decode(t, `{"action":"opened","pull_request":{"title":"T","user":{"login":"u"}},"repository":{"name":"R"}}`)
	got, err := Extract(payload, "action,pull_request{title,user{login}},repository{name}")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	want := map[string]any{
		"action":                   "opened",
		"pull_request.title":       "T",
		"pull_request.user.login":  "u",
		"repository.name":          "R",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestExtract_ArrayFanOut(t *testing.T) {
	payload := decode(t, `{"locations":[{"search_id":"a","asset_type":"cpe"},{"search_id":"b","asset_type":"node"}]}`)
	got, err := Extract(payload, "locations{search_id,asset_type}")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	want := map[string]any{
		"locations.search_id":  []any{"a", "b"},
		"locations.asset_type": []any{"cpe", "node"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestExtract_PartialArray(t *testing.T) {
	payload := decode(t, `{"locations":[{"search_id":"a"},{"asset_type":"node"}]}`)
	got, err := Extract(payload, "locations{search_id,asset_type}")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	want := map[string]any{
		"locations.search_id":  "a",
		"locations.asset_type": "node",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestExtract_MissingRootContributesNothing(t *testing.T) {
	payload := decode(t, `{"other":1}`)
	got, err := Extract(payload, "action,pull_request{title}")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %#v", got)
	}
}

func TestExtract_NullRetainedInternally(t *testing.T) {
	payload := decode(t, `{"action":null}`)
	got, err := Extract(payload, "action")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if v, ok := got["action"]; !ok || v != nil {
		t.Fatalf("expected action to be present and nil, got %#v (ok=%v)", v, ok)
	}
}

func TestExtract_DeeplyNestedArraysFanOutTransitively(t *testing.T) {
	payload := decode(t, `{"items":[[{"sub":1},{"sub":2}],[{"sub":3}]]}`)
	got, err := Extract(payload, "items{sub}")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	want := map[string]any{"items.sub": []any{1.0, 2.0, 3.0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestExtract_TypeMismatchSilentlyDropped(t *testing.T) {
	payload := decode(t, `{"action":"opened"}`)
	// "action" is a scalar in the payload but the pattern expects a group.
	got, err := Extract(payload, "action{nested}")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map for scalar/children mismatch, got %#v", got)
	}
}

func TestExtract_IdenticalPathsFromDistinctPatternsMerge(t *testing.T) {
	payload := decode(t, `{"a":{"b":1},"c":{"b":2}}`)
	// Two different roots can't naturally produce the same dotted path
	// unless the same root is named twice; exercise that directly.
	got, err := Extract(payload, "a{b},a{b}")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	want := map[string]any{"a.b": []any{1.0, 1.0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}
