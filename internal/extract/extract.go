package extract

// Extract walks a decoded JSON value against a field-pattern expression and
// returns the extracted value map described in spec.md §4.1: each dotted
// path maps to a scalar when exactly one value accumulated, an ordered
// []any when two or more accumulated, and is absent when none did.
//
// Extract fails with domain.ErrBadPattern when expr is syntactically
// invalid. It never fails on missing fields in payload — those simply
// produce no entry.
func Extract(payload any, expr string) (map[string]any, error) {
	forest, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return ExtractWithForest(payload, forest), nil
}

// ExtractWithForest runs the traversal against an already-parsed forest,
// for callers that parse the pattern themselves (the ingest pipeline does so
// on every request, reporting a parse failure as its own outcome).
func ExtractWithForest(payload any, forest []*Node) map[string]any {
	acc := make(map[string][]any)
	for _, root := range forest {
		descend(payload, root, "", acc)
	}

	result := make(map[string]any, len(acc))
	for path, values := range acc {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			result[path] = values[0]
			continue
		}
		result[path] = values
	}
	return result
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// descend applies node against container, which is expected to be the JSON
// value one level above node — an object from which node.Name is looked up,
// or an array that fans out over its elements first.
func descend(container any, node *Node, path string, acc map[string][]any) {
	switch v := container.(type) {
	case []any:
		// Fan out: apply the same descent rule to every element, in order.
		// Elements that find nothing contribute nothing.
		for _, elem := range v {
			descend(elem, node, path, acc)
		}

	case map[string]any:
		child, ok := v[node.Name]
		if !ok {
			return
		}
		newPath := joinPath(path, node.Name)

		if len(node.Children) == 0 {
			recordLeaf(child, newPath, acc)
			return
		}

		for _, c := range node.Children {
			descend(child, c, newPath, acc)
		}

	default:
		// Scalar (or nil) container with a key to look up: type mismatch,
		// silently record nothing.
	}
}

// recordLeaf handles the terminal case: node has no children, so whatever
// value was found at its key is the thing to record. Arrays fan out
// transitively (array of arrays included); objects reached with no further
// selector contribute nothing.
func recordLeaf(value any, path string, acc map[string][]any) {
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			recordLeaf(elem, path, acc)
		}
	case map[string]any:
		// No selector was given for this object; nothing scalar to record.
	default:
		acc[path] = append(acc[path], v)
	}
}
