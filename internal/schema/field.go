package schema

// FieldType discriminates field definitions.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeEnum      FieldType = "enum"
	TypeReference FieldType = "reference"
	TypeArray     FieldType = "array"
	TypeObject    FieldType = "object"
)

// Computed default kinds.
const (
	ComputedNow  = "now"
	ComputedUUID = "uuid"
)

// Supported string formats.
const (
	FormatEmail = "email"
	FormatURL   = "url"
	FormatUUID  = "uuid"
)

// Field describes one property of a table's documents.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Label       string    `json:"label,omitempty"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Unique      bool      `json:"unique,omitempty"`
	Hidden      bool      `json:"hidden,omitempty"`
	Readonly    bool      `json:"readonly,omitempty"`
	Default     any       `json:"default,omitempty"`
	Computed    string    `json:"computed,omitempty"`

	// string
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Format    string `json:"format,omitempty"`

	// number
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Integer  bool     `json:"integer,omitempty"`
	Positive bool     `json:"positive,omitempty"`

	// date, RFC 3339 bounds
	MinDate string `json:"minDate,omitempty"`
	MaxDate string `json:"maxDate,omitempty"`

	// enum
	Options []string `json:"options,omitempty"`

	// reference
	Table         string `json:"table,omitempty"`
	CascadeDelete bool   `json:"cascadeDelete,omitempty"`
	Populate      bool   `json:"populate,omitempty"`

	// array
	Of       *Field `json:"of,omitempty"`
	MinItems *int   `json:"minItems,omitempty"`
	MaxItems *int   `json:"maxItems,omitempty"`

	// object
	Fields []Field `json:"fields,omitempty"`
}

// DisplayName is the label used in validation messages.
func (f *Field) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// FieldOption customizes a field built by one of the factories.
type FieldOption func(*Field)

func newField(name string, typ FieldType, opts []FieldOption) Field {
	f := Field{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func String(name string, opts ...FieldOption) Field  { return newField(name, TypeString, opts) }
func Number(name string, opts ...FieldOption) Field  { return newField(name, TypeNumber, opts) }
func Boolean(name string, opts ...FieldOption) Field { return newField(name, TypeBoolean, opts) }
func Date(name string, opts ...FieldOption) Field    { return newField(name, TypeDate, opts) }

// Enum builds a field restricted to options.
func Enum(name string, options []string, opts ...FieldOption) Field {
	f := newField(name, TypeEnum, opts)
	f.Options = append([]string(nil), options...)
	return f
}

// Reference builds a field holding the _id of a document in table.
func Reference(name, table string, opts ...FieldOption) Field {
	f := newField(name, TypeReference, opts)
	f.Table = table
	return f
}

// Array builds a field whose elements are described by of.
func Array(name string, of Field, opts ...FieldOption) Field {
	f := newField(name, TypeArray, opts)
	f.Of = &of
	return f
}

// Object builds a nested object field.
func Object(name string, fields []Field, opts ...FieldOption) Field {
	f := newField(name, TypeObject, opts)
	f.Fields = fields
	return f
}

func Required() FieldOption { return func(f *Field) { f.Required = true } }
func Unique() FieldOption   { return func(f *Field) { f.Unique = true } }
func Hidden() FieldOption   { return func(f *Field) { f.Hidden = true } }
func Readonly() FieldOption { return func(f *Field) { f.Readonly = true } }
func Integer() FieldOption  { return func(f *Field) { f.Integer = true } }
func Positive() FieldOption { return func(f *Field) { f.Positive = true } }

// CascadeDelete makes deletes of the referenced document remove referencing ones.
func CascadeDelete() FieldOption { return func(f *Field) { f.CascadeDelete = true } }

func WithLabel(label string) FieldOption { return func(f *Field) { f.Label = label } }
func WithDefault(v any) FieldOption      { return func(f *Field) { f.Default = v } }
func WithComputed(kind string) FieldOption {
	return func(f *Field) { f.Computed = kind }
}
func WithFormat(format string) FieldOption   { return func(f *Field) { f.Format = format } }
func WithPattern(pattern string) FieldOption { return func(f *Field) { f.Pattern = pattern } }

func MinLength(n int) FieldOption { return func(f *Field) { f.MinLength = &n } }
func MaxLength(n int) FieldOption { return func(f *Field) { f.MaxLength = &n } }
func Min(v float64) FieldOption   { return func(f *Field) { f.Min = &v } }
func Max(v float64) FieldOption   { return func(f *Field) { f.Max = &v } }
func MinItems(n int) FieldOption  { return func(f *Field) { f.MinItems = &n } }
func MaxItems(n int) FieldOption  { return func(f *Field) { f.MaxItems = &n } }
