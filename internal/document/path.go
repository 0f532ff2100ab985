package document

import (
	"strconv"
	"strings"
)

// SplitPath breaks "a.b[0].c" into ["a", "b", "0", "c"].
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	var parts []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}
	for _, r := range path {
		switch r {
		case '.', '[', ']':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return parts
}

// Get resolves path inside v. The second result is false when the path leads
// nowhere: a missing key, an out of range index, or a step into a scalar.
// An explicit null is defined.
func Get(v any, path string) (any, bool) {
	current := v
	for _, part := range SplitPath(path) {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set writes value at path inside doc, creating intermediate objects as
// needed. Intermediate maps along the path are copied so that documents
// sharing nested values with doc are left untouched.
func Set(doc Document, path string, value any) {
	parts := SplitPath(path)
	if len(parts) == 0 || doc == nil {
		return
	}
	setIn(doc, parts, value)
}

func setIn(node map[string]any, parts []string, value any) {
	key := parts[0]
	if len(parts) == 1 {
		node[key] = value
		return
	}
	switch child := node[key].(type) {
	case map[string]any:
		copied := make(map[string]any, len(child)+1)
		for k, v := range child {
			copied[k] = v
		}
		setIn(copied, parts[1:], value)
		node[key] = copied
	case []any:
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 || idx >= len(child) {
			return
		}
		copied := append([]any(nil), child...)
		if len(parts) == 2 {
			copied[idx] = value
		} else if inner, ok := copied[idx].(map[string]any); ok {
			innerCopy := make(map[string]any, len(inner)+1)
			for k, v := range inner {
				innerCopy[k] = v
			}
			setIn(innerCopy, parts[2:], value)
			copied[idx] = innerCopy
		} else {
			return
		}
		node[key] = copied
	default:
		next := make(map[string]any)
		setIn(next, parts[1:], value)
		node[key] = next
	}
}

// Unset removes the value at path from doc. Intermediate maps are copied the
// same way Set copies them.
func Unset(doc Document, path string) {
	parts := SplitPath(path)
	if len(parts) == 0 || doc == nil {
		return
	}
	unsetIn(doc, parts)
}

func unsetIn(node map[string]any, parts []string) {
	key := parts[0]
	if len(parts) == 1 {
		delete(node, key)
		return
	}
	child, ok := node[key].(map[string]any)
	if !ok {
		return
	}
	copied := make(map[string]any, len(child))
	for k, v := range child {
		copied[k] = v
	}
	unsetIn(copied, parts[1:])
	node[key] = copied
}
