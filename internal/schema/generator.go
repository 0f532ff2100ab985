package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"docstudio/internal/document"

	"github.com/google/uuid"
)

// ErrUnknownTable is returned for table names the generator never registered.
var ErrUnknownTable = errors.New("unknown table")

// Generator holds the table schemas of one database and turns them into
// validated documents and default values.
type Generator struct {
	mu       sync.RWMutex
	tables   map[string]*Table
	order    []string
	patterns map[string]*regexp.Regexp
	now      func() time.Time
}

// NewGenerator creates a generator and registers tables in order.
func NewGenerator(tables ...*Table) (*Generator, error) {
	g := &Generator{
		tables:   make(map[string]*Table),
		patterns: make(map[string]*regexp.Regexp),
		now:      time.Now,
	}
	for _, t := range tables {
		if err := g.RegisterTable(t); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// SetClock replaces the time source used for computed defaults.
func (g *Generator) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// RegisterTable validates t and adds it to the generator.
func (g *Generator) RegisterTable(t *Table) error {
	if t == nil {
		return errors.New("nil table schema")
	}
	if err := t.check(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tables[t.Name]; exists {
		return fmt.Errorf("table '%s' is already registered", t.Name)
	}
	g.tables[t.Name] = t
	g.order = append(g.order, t.Name)
	slog.Debug("Table schema registered", "table", t.Name, "fields", len(t.Fields))
	return nil
}

// Table returns the schema registered under name.
func (g *Generator) Table(name string) (*Table, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tables[name]
	return t, ok
}

// Tables returns every registered schema in registration order.
func (g *Generator) Tables() []*Table {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Table, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.tables[name])
	}
	return out
}

// ExtractDefaults returns the default values of a table's top-level fields.
func (g *Generator) ExtractDefaults(tableName string) (document.Document, error) {
	t, ok := g.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownTable, tableName)
	}
	g.mu.RLock()
	now := g.now
	g.mu.RUnlock()

	defaults := make(document.Document)
	for i := range t.Fields {
		f := &t.Fields[i]
		switch {
		case f.Computed == ComputedNow:
			defaults[f.Name] = document.FormatTime(now())
		case f.Computed == ComputedUUID:
			defaults[f.Name] = uuid.NewString()
		case f.Default != nil:
			defaults[f.Name] = document.CloneValue(document.Normalize(f.Default))
		}
	}
	return defaults, nil
}

func (g *Generator) pattern(expr string) (*regexp.Regexp, error) {
	g.mu.RLock()
	re, ok := g.patterns[expr]
	g.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.patterns[expr] = re
	g.mu.Unlock()
	return re, nil
}
