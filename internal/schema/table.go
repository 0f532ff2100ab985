package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"docstudio/internal/globalconst"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidName reports whether name can be used as a database or table storage key.
func ValidName(name string) bool {
	return safeName.MatchString(name)
}

// Index is a declarative index hint. Nothing enforces it.
type Index struct {
	Name   string   `json:"name,omitempty"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique,omitempty"`
}

// Table describes the shape of one table.
type Table struct {
	Name        string  `json:"name"`
	Label       string  `json:"label,omitempty"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
	// Timestamps defaults to true when omitted.
	Timestamps *bool   `json:"timestamps,omitempty"`
	SoftDelete bool    `json:"softDelete,omitempty"`
	Indexes    []Index `json:"indexes,omitempty"`
	// Strict rejects fields the schema does not declare.
	Strict bool `json:"strict,omitempty"`
}

// TimestampsEnabled reports whether created/updated timestamps are managed.
func (t *Table) TimestampsEnabled() bool {
	return t.Timestamps == nil || *t.Timestamps
}

// Field returns the top-level field named name.
func (t *Table) Field(name string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// ParseTables decodes a JSON array of table schemas.
func ParseTables(data []byte) ([]*Table, error) {
	var tables []*Table
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("invalid table schema JSON: %w", err)
	}
	return tables, nil
}

func (t *Table) check() error {
	if !ValidName(t.Name) {
		return fmt.Errorf("invalid table name '%s'", t.Name)
	}
	if err := checkFields(t.Fields); err != nil {
		return fmt.Errorf("table '%s': %w", t.Name, err)
	}
	for _, idx := range t.Indexes {
		if len(idx.Fields) == 0 {
			return fmt.Errorf("table '%s': index '%s' has no fields", t.Name, idx.Name)
		}
	}
	return nil
}

func checkFields(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.Name == "" {
			return errors.New("field without a name")
		}
		if strings.HasPrefix(f.Name, globalconst.ReservedPrefix) {
			return fmt.Errorf("field '%s' uses the reserved '%s' prefix", f.Name, globalconst.ReservedPrefix)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field '%s'", f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := checkField(f); err != nil {
			return err
		}
	}
	return nil
}

func checkField(f *Field) error {
	switch f.Computed {
	case "", ComputedNow, ComputedUUID:
	default:
		return fmt.Errorf("field '%s': unknown computed default '%s'", f.Name, f.Computed)
	}
	switch f.Type {
	case TypeString:
		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				return fmt.Errorf("field '%s': invalid pattern: %w", f.Name, err)
			}
		}
		switch f.Format {
		case "", FormatEmail, FormatURL, FormatUUID:
		default:
			return fmt.Errorf("field '%s': unsupported format '%s'", f.Name, f.Format)
		}
	case TypeNumber, TypeBoolean, TypeDate:
	case TypeEnum:
		if len(f.Options) == 0 {
			return fmt.Errorf("field '%s': enum without options", f.Name)
		}
	case TypeReference:
		if f.Table == "" {
			return fmt.Errorf("field '%s': reference without a target table", f.Name)
		}
	case TypeArray:
		if f.Of == nil {
			return fmt.Errorf("field '%s': array without an element definition", f.Name)
		}
		elem := *f.Of
		if elem.Name == "" {
			elem.Name = f.Name
		}
		return checkField(&elem)
	case TypeObject:
		return checkFields(f.Fields)
	default:
		return fmt.Errorf("field '%s': unknown type '%s'", f.Name, f.Type)
	}
	return nil
}
