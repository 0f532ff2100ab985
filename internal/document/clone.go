package document

import (
	"log/slog"

	"github.com/tiendc/go-deepcopy"
)

// Clone returns a deep copy of doc so callers can never reach stored state.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	var out map[string]any
	if err := deepcopy.Copy(&out, doc); err != nil {
		slog.Warn("Deep copy failed, falling back to manual clone", "error", err)
		return cloneValue(doc).(map[string]any)
	}
	return out
}

// CloneValue deep-copies any JSON-shaped value.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Clone(val)
	case []any:
		var out []any
		if err := deepcopy.Copy(&out, val); err != nil {
			slog.Warn("Deep copy failed, falling back to manual clone", "error", err)
			return cloneValue(val)
		}
		return out
	}
	return v
}

// CloneAll deep-copies a slice of documents. The result is never nil.
func CloneAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = Clone(doc)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
