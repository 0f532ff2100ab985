package aggregate

import (
	"fmt"
	"log/slog"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"
	"docstudio/internal/query"
)

// Source reads the current documents of another table of the same database.
// $lookup reads through it once per stage run.
type Source interface {
	ReadTable(table string) ([]document.Document, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(table string) ([]document.Document, error)

func (f SourceFunc) ReadTable(table string) ([]document.Document, error) {
	return f(table)
}

// Run feeds docs through every stage of p in order. docs must be a private
// copy; stages may reorder and rewrite it. src may be nil when the pipeline
// has no $lookup.
func Run(src Source, docs []document.Document, p Pipeline) ([]document.Document, error) {
	if docs == nil {
		docs = []document.Document{}
	}
	for _, stage := range p {
		var err error
		switch s := stage.(type) {
		case MatchStage:
			docs = s.Filter.Apply(docs)
		case GroupStage:
			docs = runGroup(s, docs)
		case SortStage:
			query.Sort(docs, s.Spec)
		case ProjectStage:
			docs = runProject(s, docs)
		case SkipStage:
			docs = query.Paginate(docs, s.N, 0)
		case LimitStage:
			docs = query.Paginate(docs, 0, s.N)
		case UnwindStage:
			docs = runUnwind(s, docs)
		case LookupStage:
			docs, err = runLookup(src, s, docs)
		case AddFieldsStage:
			docs = runAddFields(s, docs)
		default:
			slog.Debug("Ignoring unknown aggregation stage", "stage", stage.Name())
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name(), err)
		}
	}
	return docs, nil
}

func runGroup(s GroupStage, docs []document.Document) []document.Document {
	type group struct {
		key     any
		members []document.Document
	}
	var order []*group
	groups := make(map[string]*group)

	for _, doc := range docs {
		key := groupKey(doc, s.ID)
		encoded, err := json.Marshal(key)
		if err != nil {
			slog.Warn("Skipping document with unserializable group key", "error", err)
			continue
		}
		g, ok := groups[string(encoded)]
		if !ok {
			g = &group{key: key}
			groups[string(encoded)] = g
			order = append(order, g)
		}
		g.members = append(g.members, doc)
	}

	out := make([]document.Document, 0, len(order))
	for _, g := range order {
		result := document.Document{globalconst.ID: document.CloneValue(g.key)}
		for _, acc := range s.Fields {
			if v, ok := accumulate(acc, g.members); ok {
				result[acc.Field] = v
			}
		}
		out = append(out, result)
	}
	return out
}

// groupKey evaluates the _id expression of a $group. Objects become composite
// keys with every sub-key evaluated; missing values key as null.
func groupKey(doc document.Document, spec any) any {
	if m, ok := spec.(map[string]any); ok {
		key := make(map[string]any, len(m))
		for name, sub := range m {
			v, found := evaluate(doc, sub)
			if !found {
				v = nil
			}
			key[name] = v
		}
		return key
	}
	v, found := evaluate(doc, spec)
	if !found {
		return nil
	}
	return v
}

func runProject(s ProjectStage, docs []document.Document) []document.Document {
	out := make([]document.Document, 0, len(docs))
	exclusionOnly := len(s.Include) == 0 && len(s.Computed) == 0
	for _, doc := range docs {
		if exclusionOnly {
			projected := make(document.Document, len(doc))
			for k, v := range doc {
				projected[k] = v
			}
			for _, path := range s.Exclude {
				document.Unset(projected, path)
			}
			out = append(out, projected)
			continue
		}

		projected := make(document.Document, len(s.Include)+len(s.Computed))
		for _, path := range s.Include {
			if v, ok := document.Get(doc, path); ok {
				document.Set(projected, path, v)
			}
		}
		for _, c := range s.Computed {
			if v, ok := evaluate(doc, c.Expr); ok {
				document.Set(projected, c.Field, v)
			}
		}
		out = append(out, projected)
	}
	return out
}

// runUnwind emits one document per element of the array at the path. Non-array
// values pass through; empty arrays emit nothing.
func runUnwind(s UnwindStage, docs []document.Document) []document.Document {
	out := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		v, _ := document.Get(doc, s.Path)
		items, isArray := v.([]any)
		if !isArray {
			out = append(out, doc)
			continue
		}
		for _, item := range items {
			unwound := document.Clone(doc)
			document.Set(unwound, s.Path, document.CloneValue(item))
			out = append(out, unwound)
		}
	}
	return out
}

func runLookup(src Source, s LookupStage, docs []document.Document) ([]document.Document, error) {
	if src == nil {
		return nil, fmt.Errorf("no source to read table %q from", s.From)
	}
	foreign, err := src.ReadTable(s.From)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		local, ok := document.Get(doc, s.LocalField)
		if !ok {
			local = nil
		}
		matches := []any{}
		for _, f := range foreign {
			v, defined := document.Get(f, s.ForeignField)
			if document.MatchValue(v, defined, local) {
				matches = append(matches, document.Clone(f))
			}
		}
		document.Set(doc, s.As, matches)
	}
	return docs, nil
}

func runAddFields(s AddFieldsStage, docs []document.Document) []document.Document {
	for _, doc := range docs {
		for _, c := range s.Fields {
			if v, ok := evaluate(doc, c.Expr); ok {
				document.Set(doc, c.Field, v)
			}
		}
	}
	return docs
}
