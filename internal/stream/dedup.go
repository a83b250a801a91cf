package stream

// maxToolRefs caps the number of distinct tool invocations tracked per
// turn so a backend re-announcing tools in a loop cannot grow the list
// without bound.
const maxToolRefs = 64

// MergeTools folds incoming tool references into the accumulated list and
// reports whether the list changed. Identity is the tool name alone: refs
// whose name is already present are skipped, refs with an empty name are
// dropped, and first-seen order is preserved.
func MergeTools(existing []ToolRef, incoming ...ToolRef) ([]ToolRef, bool) {
	changed := false
	for _, ref := range incoming {
		if ref.Name == "" {
			continue
		}
		if len(existing) >= maxToolRefs {
			break
		}
		if containsTool(existing, ref.Name) {
			continue
		}
		existing = append(existing, ref)
		changed = true
	}
	return existing, changed
}

func containsTool(refs []ToolRef, name string) bool {
	for _, ref := range refs {
		if ref.Name == name {
			return true
		}
	}
	return false
}
