package store

import (
	"docstudio/internal/document"
	"docstudio/internal/globalconst"

	"github.com/google/btree"
)

const btreeDegree = 32 // Degree of the B-Tree, can be tuned for performance.

// idEntry maps a document _id to its position in the table array.
type idEntry struct {
	ID  string
	Pos int
}

func idLess(a, b idEntry) bool {
	return a.ID < b.ID
}

// idIndex is the in-memory _id lookup of one table. It is rebuilt from the
// array on load and whenever removals shift positions.
type idIndex struct {
	tree *btree.BTreeG[idEntry]
}

func newIDIndex() *idIndex {
	return &idIndex{tree: btree.NewG[idEntry](btreeDegree, idLess)}
}

func buildIDIndex(docs []document.Document) *idIndex {
	ix := newIDIndex()
	for pos, doc := range docs {
		if id, ok := doc[globalconst.ID].(string); ok {
			ix.tree.ReplaceOrInsert(idEntry{ID: id, Pos: pos})
		}
	}
	return ix
}

func (ix *idIndex) lookup(id string) (int, bool) {
	entry, found := ix.tree.Get(idEntry{ID: id})
	if !found {
		return -1, false
	}
	return entry.Pos, true
}

func (ix *idIndex) set(id string, pos int) {
	ix.tree.ReplaceOrInsert(idEntry{ID: id, Pos: pos})
}

func (ix *idIndex) remove(id string) {
	ix.tree.Delete(idEntry{ID: id})
}

// clone is copy-on-write, so taking one per mutation is cheap.
func (ix *idIndex) clone() *idIndex {
	return &idIndex{tree: ix.tree.Clone()}
}

func (ix *idIndex) len() int {
	return ix.tree.Len()
}
