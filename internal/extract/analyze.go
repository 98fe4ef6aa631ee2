package extract

import "sort"

// LeafInfo describes one extractable path discovered by AnalyzeLeafPaths:
// its dotted path and an inferred JSON type name.
type LeafInfo struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// AnalyzeLeafPaths walks a decoded JSON value and returns every leaf path
// reachable within maxDepth object-key descents, with an inferred type —
// the advisory "what can I extract from this payload" support for the
// admin surface's payload analysis endpoint. It never fails: an
// unnavigable value simply contributes no paths.
func AnalyzeLeafPaths(payload any, maxDepth int) []LeafInfo {
	acc := map[string]string{}
	analyze(payload, "", 0, maxDepth, acc)

	paths := make([]LeafInfo, 0, len(acc))
	for path, typ := range acc {
		paths = append(paths, LeafInfo{Path: path, Type: typ})
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Path < paths[j].Path })
	return paths
}

func analyze(value any, path string, depth, maxDepth int, acc map[string]string) {
	switch v := value.(type) {
	case map[string]any:
		if depth >= maxDepth {
			return
		}
		for key, child := range v {
			analyze(child, joinPath(path, key), depth+1, maxDepth, acc)
		}
	case []any:
		// Arrays don't consume a depth level: they fan out transitively, the
		// same way extraction does.
		for _, elem := range v {
			analyze(elem, path, depth, maxDepth, acc)
		}
	default:
		if path == "" {
			return
		}
		if _, seen := acc[path]; !seen {
			acc[path] = jsonTypeName(v)
		}
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	default:
		return "unknown"
	}
}
