// Package document holds the value model shared by the store, query and
// aggregation layers: documents are JSON-shaped maps and every value inside
// them belongs to one of a small, closed set of kinds.
package document

import (
	"strconv"
	"time"

	"docstudio/internal/globalconst"

	jsoniter "github.com/json-iterator/go"
)

// FormatTime renders t in UTC with a fixed-width fraction.
func FormatTime(t time.Time) string {
	return t.UTC().Format(globalconst.TimestampFormat)
}

// Document is one record of a table.
type Document = map[string]any

// Kind is the tagged-variant view over a document value.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindNumber
	KindString
	KindObject
	KindArray
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// KindOf classifies v. Values that are not JSON-shaped are reported as strings
// since they are only ever compared through their textual form.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case string, time.Time:
		return KindString
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	}
	if _, ok := ToFloat64(v); ok {
		return KindNumber
	}
	return KindString
}

// ToFloat64 converts Go numeric types to float64. Numeric strings are not numbers.
func ToFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	if text, ok := jsoniter.CastJsonNumber(val); ok {
		f, err := strconv.ParseFloat(text, 64)
		return f, err == nil
	}
	return 0, false
}

// Normalize rewrites v into its canonical JSON shape: every number becomes a
// float64, times become fixed-width RFC 3339 strings and typed slices/maps become []any
// and map[string]any.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64:
		return val
	case time.Time:
		return FormatTime(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	}
	if f, ok := ToFloat64(v); ok {
		return f
	}
	if text, ok := jsoniter.CastJsonNumber(v); ok {
		return text
	}
	return v
}

// NormalizeDocument applies Normalize to every field of doc.
func NormalizeDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return Normalize(doc).(map[string]any)
}

// Stringify renders a value the way search and $concat see it.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return FormatTime(val)
	case map[string]any, []any:
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
	if f, ok := ToFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
