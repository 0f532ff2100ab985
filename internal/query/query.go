package query

import (
	"regexp"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"
)

// Reader is any table that can hand out a private copy of its documents.
type Reader interface {
	Read() []document.Document
}

// idGetter is implemented by readers that keep an _id index.
type idGetter interface {
	Get(id string) (document.Document, bool)
}

// Options shape the result sequence of Find and Search.
type Options struct {
	Sort  SortSpec `json:"sort,omitempty"`
	Skip  int      `json:"skip,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Find returns the documents matching filter, sorted and paginated per opts.
// The result never aliases the reader's state.
func Find(r Reader, filter Filter, opts Options) []document.Document {
	return shape(filter.Apply(r.Read()), opts)
}

// FindOne returns the first matching document in table order.
func FindOne(r Reader, filter Filter) (document.Document, bool) {
	docs := Find(r, filter, Options{Limit: 1})
	if len(docs) == 0 {
		return nil, false
	}
	return docs[0], true
}

// FindByID looks a document up by _id, through the reader's index when it
// has one.
func FindByID(r Reader, id string) (document.Document, bool) {
	if g, ok := r.(idGetter); ok {
		if doc, found := g.Get(id); found {
			return doc, true
		}
	}
	return FindOne(r, Filter{globalconst.ID: id})
}

// FindByField returns every document whose value at path equals value.
func FindByField(r Reader, path string, value any) []document.Document {
	return Find(r, Filter{path: value}, Options{})
}

// Search returns documents where any of fields contains term, ignoring case.
// The term is matched literally. With no fields every top-level field is
// searched.
func Search(r Reader, term string, fields []string, opts Options) []document.Document {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))
	var out []document.Document
	for _, doc := range r.Read() {
		if searchMatches(doc, re, fields) {
			out = append(out, doc)
		}
	}
	if out == nil {
		out = []document.Document{}
	}
	return shape(out, opts)
}

func searchMatches(doc document.Document, re *regexp.Regexp, fields []string) bool {
	if len(fields) == 0 {
		for _, v := range doc {
			if v != nil && re.MatchString(document.Stringify(v)) {
				return true
			}
		}
		return false
	}
	for _, field := range fields {
		v, ok := document.Get(doc, field)
		if !ok || v == nil {
			continue
		}
		if re.MatchString(document.Stringify(v)) {
			return true
		}
	}
	return false
}

// Count returns how many documents match filter.
func Count(r Reader, filter Filter) int {
	return len(filter.Apply(r.Read()))
}

// Distinct returns the unique values at path among matching documents in
// first-seen order. Documents where the path is absent contribute nothing.
func Distinct(r Reader, path string, filter Filter) []any {
	out := []any{}
	for _, doc := range filter.Apply(r.Read()) {
		v, ok := document.Get(doc, path)
		if !ok {
			continue
		}
		if !document.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Exists reports whether at least one document matches filter.
func Exists(r Reader, filter Filter) bool {
	for _, doc := range r.Read() {
		if filter.Matches(doc) {
			return true
		}
	}
	return false
}

func shape(docs []document.Document, opts Options) []document.Document {
	Sort(docs, opts.Sort)
	return Paginate(docs, opts.Skip, opts.Limit)
}
