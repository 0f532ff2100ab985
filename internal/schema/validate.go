package schema

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"

	"github.com/go-playground/validator/v10"
)

var formatValidator = validator.New()

// Validation rules reported in ValidationError.Rule.
const (
	RuleRequired  = "required"
	RuleType      = "type"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RulePattern   = "pattern"
	RuleFormat    = "format"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleInteger   = "integer"
	RulePositive  = "positive"
	RuleEnum      = "enum"
	RuleMinItems  = "minItems"
	RuleMaxItems  = "maxItems"
	RuleUnknown   = "unknown"
	RuleUnique    = "unique"
	RuleReadonly  = "readonly"
)

// ValidationError names the offending field and the rule it broke.
type ValidationError struct {
	Table   string
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError whose message starts with the
// field's display name.
func NewValidationError(table string, f *Field, path, rule, format string, args ...any) *ValidationError {
	name := path
	if f != nil {
		name = f.DisplayName()
	}
	return &ValidationError{
		Table:   table,
		Field:   path,
		Rule:    rule,
		Message: name + " " + fmt.Sprintf(format, args...),
	}
}

// ValidateData checks candidate against the table's field definitions and
// returns the coerced document. Reserved metadata fields pass through.
func (g *Generator) ValidateData(tableName string, candidate document.Document) (document.Document, error) {
	t, ok := g.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownTable, tableName)
	}
	v := &visitor{g: g, table: t.Name, strict: t.Strict}
	return v.object("", t.Fields, document.NormalizeDocument(candidate), true)
}

type visitor struct {
	g      *Generator
	table  string
	strict bool
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (v *visitor) object(prefix string, fields []Field, in map[string]any, topLevel bool) (map[string]any, error) {
	out := make(map[string]any, len(in))
	declared := make(map[string]struct{}, len(fields))

	for i := range fields {
		f := &fields[i]
		declared[f.Name] = struct{}{}
		path := joinPath(prefix, f.Name)
		raw, present := in[f.Name]
		val, keep, err := v.field(path, f, raw, present)
		if err != nil {
			return nil, err
		}
		if keep {
			out[f.Name] = val
		}
	}

	for key, val := range in {
		if _, ok := declared[key]; ok {
			continue
		}
		if topLevel && strings.HasPrefix(key, globalconst.ReservedPrefix) {
			out[key] = val
			continue
		}
		if v.strict {
			path := joinPath(prefix, key)
			return nil, &ValidationError{
				Table:   v.table,
				Field:   path,
				Rule:    RuleUnknown,
				Message: fmt.Sprintf("Unknown field '%s'", path),
			}
		}
		out[key] = val
	}
	return out, nil
}

func (v *visitor) fail(f *Field, path, rule, format string, args ...any) error {
	return NewValidationError(v.table, f, path, rule, format, args...)
}

// field returns the coerced value and whether it belongs in the output.
func (v *visitor) field(path string, f *Field, raw any, present bool) (any, bool, error) {
	if !present || raw == nil {
		if f.Required {
			return nil, false, v.fail(f, path, RuleRequired, "is required")
		}
		return nil, present, nil
	}

	switch f.Type {
	case TypeString:
		return v.stringValue(path, f, raw)
	case TypeNumber:
		return v.numberValue(path, f, raw)
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, false, v.fail(f, path, RuleType, "must be a boolean")
		}
		return b, true, nil
	case TypeDate:
		return v.dateValue(path, f, raw)
	case TypeEnum:
		s, ok := raw.(string)
		if !ok || !slices.Contains(f.Options, s) {
			return nil, false, v.fail(f, path, RuleEnum, "must be one of: %s", strings.Join(f.Options, ", "))
		}
		return s, true, nil
	case TypeReference:
		s, ok := raw.(string)
		if !ok || s == "" {
			return nil, false, v.fail(f, path, RuleType, "must reference a document id in '%s'", f.Table)
		}
		return s, true, nil
	case TypeArray:
		return v.arrayValue(path, f, raw)
	case TypeObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, false, v.fail(f, path, RuleType, "must be an object")
		}
		out, err := v.object(path, f.Fields, m, false)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	}
	return nil, false, v.fail(f, path, RuleType, "has unknown type '%s'", f.Type)
}

func (v *visitor) stringValue(path string, f *Field, raw any) (any, bool, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, false, v.fail(f, path, RuleType, "must be a string")
	}
	if s == "" && f.Required {
		return nil, false, v.fail(f, path, RuleRequired, "is required")
	}
	length := utf8.RuneCountInString(s)
	if f.MinLength != nil && length < *f.MinLength {
		return nil, false, v.fail(f, path, RuleMinLength, "must be at least %d characters", *f.MinLength)
	}
	if f.MaxLength != nil && length > *f.MaxLength {
		return nil, false, v.fail(f, path, RuleMaxLength, "must be at most %d characters", *f.MaxLength)
	}
	if f.Pattern != "" {
		re, err := v.g.pattern(f.Pattern)
		if err != nil || !re.MatchString(s) {
			return nil, false, v.fail(f, path, RulePattern, "does not match pattern %s", f.Pattern)
		}
	}
	if f.Format != "" && s != "" {
		if err := formatValidator.Var(s, f.Format); err != nil {
			return nil, false, v.fail(f, path, RuleFormat, "must be a valid %s", f.Format)
		}
	}
	return s, true, nil
}

func (v *visitor) numberValue(path string, f *Field, raw any) (any, bool, error) {
	n, ok := document.ToFloat64(raw)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, false, v.fail(f, path, RuleType, "must be a number")
	}
	if f.Integer && n != math.Trunc(n) {
		return nil, false, v.fail(f, path, RuleInteger, "must be an integer")
	}
	if f.Positive && n <= 0 {
		return nil, false, v.fail(f, path, RulePositive, "must be positive")
	}
	if f.Min != nil && n < *f.Min {
		return nil, false, v.fail(f, path, RuleMin, "must be at least %s", formatNumber(*f.Min))
	}
	if f.Max != nil && n > *f.Max {
		return nil, false, v.fail(f, path, RuleMax, "must be at most %s", formatNumber(*f.Max))
	}
	return n, true, nil
}

func (v *visitor) dateValue(path string, f *Field, raw any) (any, bool, error) {
	var ts time.Time
	switch val := raw.(type) {
	case time.Time:
		ts = val
	case string:
		parsed, err := parseDate(val)
		if err != nil {
			return nil, false, v.fail(f, path, RuleType, "must be a valid date")
		}
		ts = parsed
	default:
		return nil, false, v.fail(f, path, RuleType, "must be a valid date")
	}
	if f.MinDate != "" {
		if lo, err := parseDate(f.MinDate); err == nil && ts.Before(lo) {
			return nil, false, v.fail(f, path, RuleMin, "must not be before %s", f.MinDate)
		}
	}
	if f.MaxDate != "" {
		if hi, err := parseDate(f.MaxDate); err == nil && ts.After(hi) {
			return nil, false, v.fail(f, path, RuleMax, "must not be after %s", f.MaxDate)
		}
	}
	return document.FormatTime(ts), true, nil
}

func (v *visitor) arrayValue(path string, f *Field, raw any) (any, bool, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, false, v.fail(f, path, RuleType, "must be a list")
	}
	if f.MinItems != nil && len(items) < *f.MinItems {
		return nil, false, v.fail(f, path, RuleMinItems, "must contain at least %d items", *f.MinItems)
	}
	if f.MaxItems != nil && len(items) > *f.MaxItems {
		return nil, false, v.fail(f, path, RuleMaxItems, "must contain at most %d items", *f.MaxItems)
	}
	elem := *f.Of
	if elem.Label == "" {
		elem.Label = f.DisplayName()
	}
	out := make([]any, len(items))
	for i, item := range items {
		val, _, err := v.field(path+"["+strconv.Itoa(i)+"]", &elem, item, true)
		if err != nil {
			return nil, false, err
		}
		out[i] = val
	}
	return out, true, nil
}

func parseDate(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Parse(time.DateOnly, s)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
