package database

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"docstudio/internal/aggregate"
	"docstudio/internal/document"
	"docstudio/internal/globalconst"
	"docstudio/internal/query"
	"docstudio/internal/schema"
	"docstudio/internal/store"

	"github.com/google/uuid"
)

// Service is the entry point for reading and writing documents. Every write
// is validated against the table schema and flushed once per call.
type Service struct {
	reg   *Registry
	now   func() time.Time
	newID func() string
}

// NewService creates a service over reg.
func NewService(reg *Registry) *Service {
	return &Service{reg: reg, now: time.Now, newID: uuid.NewString}
}

// Registry returns the registry the service resolves databases through.
func (s *Service) Registry() *Registry { return s.reg }

// SetClock replaces the time source used for metadata timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) timestamp() string {
	return document.FormatTime(s.now())
}

// table bundles what a single operation needs about one table.
type table struct {
	databaseID string
	gen        *schema.Generator
	schema     *schema.Table
	handle     *store.Handle
}

func (s *Service) resolve(databaseID, tableName string) (*table, error) {
	gen, err := s.reg.Generator(databaseID)
	if err != nil {
		return nil, err
	}
	t, ok := gen.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' in database '%s'", schema.ErrUnknownTable, tableName, databaseID)
	}
	h, err := s.reg.Handle(databaseID, tableName)
	if err != nil {
		return nil, err
	}
	return &table{databaseID: databaseID, gen: gen, schema: t, handle: h}, nil
}

// Create validates input merged over the table defaults and stores it.
func (s *Service) Create(databaseID, tableName string, input document.Document) (document.Document, error) {
	docs, err := s.CreateMany(databaseID, tableName, []document.Document{input})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// CreateMany validates every input before storing any of them; the batch is
// written with a single flush.
func (s *Service) CreateMany(databaseID, tableName string, inputs []document.Document) ([]document.Document, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, err
	}

	prepared := make([]document.Document, 0, len(inputs))
	for _, input := range inputs {
		doc, err := s.prepareCreate(t, input)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, doc)
	}

	err = t.handle.Mutate(func(rows *store.Rows) error {
		for _, doc := range prepared {
			id := doc[globalconst.ID].(string)
			if _, exists := rows.IndexOf(id); exists {
				return fmt.Errorf("%w: '%s' in table '%s'", ErrDuplicateID, id, tableName)
			}
			if err := checkUnique(t.schema, rows, doc, -1); err != nil {
				return err
			}
			rows.Append(doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Documents created", "database", databaseID, "table", tableName, "count", len(prepared))
	return document.CloneAll(prepared), nil
}

func (s *Service) prepareCreate(t *table, input document.Document) (document.Document, error) {
	merged, err := t.gen.ExtractDefaults(t.schema.Name)
	if err != nil {
		return nil, err
	}
	for k, v := range document.NormalizeDocument(input) {
		merged[k] = v
	}
	delete(merged, globalconst.DeletedAt)

	switch id := merged[globalconst.ID].(type) {
	case nil:
		merged[globalconst.ID] = s.newID()
	case string:
		if id == "" {
			merged[globalconst.ID] = s.newID()
		}
	default:
		return nil, &schema.ValidationError{
			Table:   t.schema.Name,
			Field:   globalconst.ID,
			Rule:    schema.RuleType,
			Message: fmt.Sprintf("%s must be a string", globalconst.ID),
		}
	}
	if t.schema.TimestampsEnabled() {
		now := s.timestamp()
		merged[globalconst.CreatedAt] = now
		merged[globalconst.UpdatedAt] = now
	}
	return t.gen.ValidateData(t.schema.Name, merged)
}

// Update merges patch over the document with the given _id, re-validates it
// and writes it back in place.
func (s *Service) Update(databaseID, tableName, id string, patch document.Document) (document.Document, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, err
	}
	var updated document.Document
	err = t.handle.Mutate(func(rows *store.Rows) error {
		pos, ok := rows.IndexOf(id)
		if !ok {
			return fmt.Errorf("%w: '%s' in table '%s'", ErrDocumentNotFound, id, tableName)
		}
		doc, err := s.prepareUpdate(t, rows.At(pos), patch)
		if err != nil {
			return err
		}
		if err := checkUnique(t.schema, rows, doc, pos); err != nil {
			return err
		}
		rows.Set(pos, doc)
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return document.Clone(updated), nil
}

// UpdateMany applies patch to every document matching filter and returns how
// many were updated. All updates share one flush; any failure leaves the
// table unchanged.
func (s *Service) UpdateMany(databaseID, tableName string, filter query.Filter, patch document.Document) (int, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return 0, err
	}
	count := 0
	err = t.handle.Mutate(func(rows *store.Rows) error {
		for i := 0; i < rows.Len(); i++ {
			if !filter.Matches(rows.At(i)) {
				continue
			}
			doc, err := s.prepareUpdate(t, rows.At(i), patch)
			if err != nil {
				return err
			}
			if err := checkUnique(t.schema, rows, doc, i); err != nil {
				return err
			}
			rows.Set(i, doc)
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Debug("Documents updated", "database", databaseID, "table", tableName, "count", count)
	return count, nil
}

func (s *Service) prepareUpdate(t *table, existing, patch document.Document) (document.Document, error) {
	merged := make(document.Document, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range document.NormalizeDocument(patch) {
		switch k {
		case globalconst.ID:
			if !document.Equal(v, existing[globalconst.ID]) {
				return nil, &schema.ValidationError{
					Table:   t.schema.Name,
					Field:   globalconst.ID,
					Rule:    schema.RuleReadonly,
					Message: fmt.Sprintf("%s cannot be changed", globalconst.ID),
				}
			}
			continue
		case globalconst.CreatedAt, globalconst.UpdatedAt:
			continue
		}
		if f, ok := t.schema.Field(k); ok && f.Readonly {
			old, had := existing[k]
			if had && !document.Equal(old, v) {
				return nil, schema.NewValidationError(t.schema.Name, f, k, schema.RuleReadonly, "is read-only")
			}
		}
		merged[k] = v
	}
	if t.schema.TimestampsEnabled() {
		merged[globalconst.UpdatedAt] = s.timestamp()
	}
	return t.gen.ValidateData(t.schema.Name, merged)
}

// checkUnique rejects doc when another live document already holds the same
// value in one of the table's unique fields. skip is doc's own position, or
// -1 for new documents.
func checkUnique(t *schema.Table, rows *store.Rows, doc document.Document, skip int) error {
	for i := range t.Fields {
		f := &t.Fields[i]
		if !f.Unique {
			continue
		}
		v, ok := doc[f.Name]
		if !ok || v == nil {
			continue
		}
		for pos, other := range rows.All() {
			if pos == skip || isDeleted(other) {
				continue
			}
			if document.Equal(other[f.Name], v) {
				return schema.NewValidationError(t.Name, f, f.Name, schema.RuleUnique, "must be unique, '%s' is already used", document.Stringify(v))
			}
		}
	}
	return nil
}

func isDeleted(doc document.Document) bool {
	v, ok := doc[globalconst.DeletedAt]
	return ok && v != nil
}

// Delete removes the document with the given _id, or stamps it as deleted on
// soft-delete tables. It reports false when no such document exists.
// Documents referencing it through cascading references are deleted too.
func (s *Service) Delete(databaseID, tableName, id string) (bool, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return false, err
	}
	matched, deleted, err := s.deleteWhere(t, func(doc document.Document) bool {
		return doc[globalconst.ID] == id
	})
	if err != nil {
		return false, err
	}
	if err := s.cascade(t.databaseID, t.gen, tableName, deleted, map[string]bool{}); err != nil {
		return matched > 0, err
	}
	return matched > 0, nil
}

// DeleteMany deletes every document matching filter and returns how many
// were affected. Documents already marked deleted are not counted again.
func (s *Service) DeleteMany(databaseID, tableName string, filter query.Filter) (int, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return 0, err
	}
	_, deleted, err := s.deleteWhere(t, filter.Matches)
	if err != nil {
		return 0, err
	}
	if err := s.cascade(t.databaseID, t.gen, tableName, deleted, map[string]bool{}); err != nil {
		return len(deleted), err
	}
	return len(deleted), nil
}

// deleteWhere applies the table's delete policy to documents matching pred.
// It returns how many matched and the ids of those actually deleted.
func (s *Service) deleteWhere(t *table, pred func(document.Document) bool) (int, []string, error) {
	matched := 0
	var deleted []string
	err := t.handle.Mutate(func(rows *store.Rows) error {
		if t.schema.SoftDelete {
			now := s.timestamp()
			for i := 0; i < rows.Len(); i++ {
				doc := rows.At(i)
				if !pred(doc) {
					continue
				}
				matched++
				if isDeleted(doc) {
					continue
				}
				stamped := make(document.Document, len(doc)+1)
				for k, v := range doc {
					stamped[k] = v
				}
				stamped[globalconst.DeletedAt] = now
				rows.Set(i, stamped)
				deleted = appendID(deleted, doc)
			}
			return nil
		}
		matched = rows.RemoveWhere(func(doc document.Document) bool {
			if pred(doc) {
				deleted = appendID(deleted, doc)
				return true
			}
			return false
		})
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return matched, deleted, nil
}

func appendID(ids []string, doc document.Document) []string {
	if id, ok := doc[globalconst.ID].(string); ok {
		return append(ids, id)
	}
	return ids
}

// cascade deletes documents of other tables whose cascading reference points
// at one of ids, then follows their own cascading references.
func (s *Service) cascade(databaseID string, gen *schema.Generator, parent string, ids []string, seen map[string]bool) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		seen[parent+"/"+id] = true
	}
	for _, child := range gen.Tables() {
		for i := range child.Fields {
			f := &child.Fields[i]
			if f.Type != schema.TypeReference || f.Table != parent || !f.CascadeDelete {
				continue
			}
			h, err := s.reg.Handle(databaseID, child.Name)
			if err != nil {
				return err
			}
			ct := &table{databaseID: databaseID, gen: gen, schema: child, handle: h}
			_, deleted, err := s.deleteWhere(ct, func(doc document.Document) bool {
				ref, ok := doc[f.Name].(string)
				if !ok || !slices.Contains(ids, ref) {
					return false
				}
				own, _ := doc[globalconst.ID].(string)
				return !seen[child.Name+"/"+own]
			})
			if err != nil {
				return err
			}
			if len(deleted) > 0 {
				slog.Info("Cascade delete", "database", databaseID, "table", child.Name, "parent", parent, "count", len(deleted))
			}
			if err := s.cascade(databaseID, gen, child.Name, deleted, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindOptions extend query options with reference population.
type FindOptions struct {
	query.Options
	// Populate lists reference fields whose ids are replaced by the
	// referenced documents.
	Populate []string `json:"populate,omitempty"`
}

// Find returns the documents of a table matching filter.
func (s *Service) Find(databaseID, tableName string, filter query.Filter, opts FindOptions) ([]document.Document, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, err
	}
	docs := query.Find(t.handle, filter, opts.Options)
	if err := s.populate(t, docs, opts.Populate); err != nil {
		return nil, err
	}
	return docs, nil
}

// populate swaps reference ids for the referenced documents. Ids that point
// nowhere are left as they are.
func (s *Service) populate(t *table, docs []document.Document, fields []string) error {
	for _, name := range fields {
		f, ok := t.schema.Field(name)
		if !ok {
			return fmt.Errorf("cannot populate unknown field '%s' of table '%s'", name, t.schema.Name)
		}
		target := f.Table
		many := false
		if f.Type == schema.TypeArray && f.Of != nil && f.Of.Type == schema.TypeReference {
			target, many = f.Of.Table, true
		} else if f.Type != schema.TypeReference {
			return fmt.Errorf("field '%s' of table '%s' is not a reference", name, t.schema.Name)
		}
		h, err := s.reg.Handle(t.databaseID, target)
		if err != nil {
			return err
		}
		resolve := func(v any) any {
			if id, ok := v.(string); ok {
				if doc, found := query.FindByID(h, id); found {
					return doc
				}
			}
			return v
		}
		for _, doc := range docs {
			v, present := doc[name]
			if !present {
				continue
			}
			if list, ok := v.([]any); ok && many {
				resolved := make([]any, len(list))
				for i, item := range list {
					resolved[i] = resolve(item)
				}
				doc[name] = resolved
				continue
			}
			doc[name] = resolve(v)
		}
	}
	return nil
}

// FindOne returns the first document matching filter.
func (s *Service) FindOne(databaseID, tableName string, filter query.Filter) (document.Document, bool, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, false, err
	}
	doc, ok := query.FindOne(t.handle, filter)
	return doc, ok, nil
}

// FindByID returns the document with the given _id.
func (s *Service) FindByID(databaseID, tableName, id string) (document.Document, bool, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, false, err
	}
	doc, ok := query.FindByID(t.handle, id)
	return doc, ok, nil
}

// FindByField returns the documents whose value at path equals value.
func (s *Service) FindByField(databaseID, tableName, path string, value any) ([]document.Document, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, err
	}
	return query.FindByField(t.handle, path, value), nil
}

// Search returns documents where one of fields contains term.
func (s *Service) Search(databaseID, tableName, term string, fields []string, opts query.Options) ([]document.Document, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, err
	}
	return query.Search(t.handle, term, fields, opts), nil
}

// Count returns how many documents match filter.
func (s *Service) Count(databaseID, tableName string, filter query.Filter) (int, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return 0, err
	}
	return query.Count(t.handle, filter), nil
}

// Distinct returns the unique values at path among matching documents.
func (s *Service) Distinct(databaseID, tableName, path string, filter query.Filter) ([]any, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, err
	}
	return query.Distinct(t.handle, path, filter), nil
}

// Exists reports whether any document matches filter.
func (s *Service) Exists(databaseID, tableName string, filter query.Filter) (bool, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return false, err
	}
	return query.Exists(t.handle, filter), nil
}

// Aggregate runs p over the documents of a table. $lookup stages read other
// tables of the same database.
func (s *Service) Aggregate(databaseID, tableName string, p aggregate.Pipeline) ([]document.Document, error) {
	t, err := s.resolve(databaseID, tableName)
	if err != nil {
		return nil, err
	}
	return aggregate.Run(s.reg.Source(databaseID), t.handle.Read(), p)
}
