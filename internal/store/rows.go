package store

import (
	"docstudio/internal/document"
	"docstudio/internal/globalconst"
)

// Rows is the working copy of a table handed to a Mutate callback. Changes
// made through it become visible, and are flushed, only if the callback
// returns nil.
type Rows struct {
	docs    []document.Document
	ids     *idIndex
	stale   bool // positions shifted, index must be rebuilt before use
	changed bool
}

func newRows(docs []document.Document, ids *idIndex) *Rows {
	working := make([]document.Document, len(docs))
	copy(working, docs)
	return &Rows{docs: working, ids: ids.clone()}
}

// Len returns the number of documents currently in the working copy.
func (r *Rows) Len() int {
	return len(r.docs)
}

// At returns the document at position i. The returned map is shared with the
// table; replace it through Set instead of editing it in place.
func (r *Rows) At(i int) document.Document {
	return r.docs[i]
}

// All returns the working documents in table order.
func (r *Rows) All() []document.Document {
	return r.docs
}

// IndexOf resolves an _id to its position.
func (r *Rows) IndexOf(id string) (int, bool) {
	return r.index().lookup(id)
}

// Append adds doc at the end of the table.
func (r *Rows) Append(doc document.Document) {
	r.docs = append(r.docs, doc)
	if id, ok := doc[globalconst.ID].(string); ok && !r.stale {
		r.ids.set(id, len(r.docs)-1)
	}
	r.changed = true
}

// Set replaces the document at position i, keeping its position.
func (r *Rows) Set(i int, doc document.Document) {
	old := r.docs[i]
	r.docs[i] = doc
	if !r.stale {
		oldID, _ := old[globalconst.ID].(string)
		newID, ok := doc[globalconst.ID].(string)
		if oldID != newID {
			r.ids.remove(oldID)
		}
		if ok {
			r.ids.set(newID, i)
		}
	}
	r.changed = true
}

// RemoveWhere deletes every document for which pred returns true and reports
// how many were removed. Remaining documents keep their relative order.
func (r *Rows) RemoveWhere(pred func(document.Document) bool) int {
	kept := make([]document.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		if !pred(doc) {
			kept = append(kept, doc)
		}
	}
	removed := len(r.docs) - len(kept)
	if removed > 0 {
		r.docs = kept
		r.stale = true
		r.changed = true
	}
	return removed
}

// Replace swaps the whole table for docs.
func (r *Rows) Replace(docs []document.Document) {
	r.docs = append(make([]document.Document, 0, len(docs)), docs...)
	r.stale = true
	r.changed = true
}

func (r *Rows) index() *idIndex {
	if r.stale {
		r.ids = buildIDIndex(r.docs)
		r.stale = false
	}
	return r.ids
}
