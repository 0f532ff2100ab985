// Package query answers read-only questions about a table: filtering,
// sorting, pagination, search, counting and distinct values.
package query

import (
	"docstudio/internal/document"
)

// Filter maps field paths to the value each path must deep-equal. A nil value
// matches documents where the path is absent or null. The empty filter
// matches everything.
type Filter map[string]any

// Matches reports whether doc satisfies every entry of the filter.
func (f Filter) Matches(doc document.Document) bool {
	for path, want := range f {
		got, defined := document.Get(doc, path)
		if !document.MatchValue(got, defined, want) {
			return false
		}
	}
	return true
}

// Apply returns the documents matching f, preserving their order.
func (f Filter) Apply(docs []document.Document) []document.Document {
	if len(f) == 0 {
		return docs
	}
	out := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if f.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out
}
