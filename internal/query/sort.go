package query

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SortKey orders documents by one field path.
type SortKey struct {
	Field     string
	Direction int // globalconst.SortAsc or globalconst.SortDesc
}

// SortSpec is an ordered list of sort keys; earlier keys take precedence.
type SortSpec []SortKey

// UnmarshalJSON reads {"field": 1, "other": -1} keeping the key order of the
// input, which a Go map would lose.
func (s *SortSpec) UnmarshalJSON(data []byte) error {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)

	var spec SortSpec
	var parseErr error
	iter.ReadMapCB(func(it *jsoniter.Iterator, field string) bool {
		dir, err := ParseDirection(it.Read())
		if err != nil {
			parseErr = fmt.Errorf("sort field %q: %w", field, err)
			return false
		}
		spec = append(spec, SortKey{Field: field, Direction: dir})
		return true
	})
	if parseErr != nil {
		return parseErr
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return fmt.Errorf("invalid sort specification: %w", iter.Error)
	}
	*s = spec
	return nil
}

// MarshalJSON writes the spec back as an object in key order.
func (s SortSpec) MarshalJSON() ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)
	stream.WriteObjectStart()
	for i, key := range s {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(key.Field)
		stream.WriteInt(key.Direction)
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// SortSpecFromMap builds a spec from an already decoded mapping. Go maps carry
// no order, so keys are applied alphabetically; use UnmarshalJSON on the raw
// bytes when the caller's key order matters.
func SortSpecFromMap(m map[string]any) (SortSpec, error) {
	fields := make([]string, 0, len(m))
	for field := range m {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	spec := make(SortSpec, 0, len(fields))
	for _, field := range fields {
		dir, err := ParseDirection(m[field])
		if err != nil {
			return nil, fmt.Errorf("sort field %q: %w", field, err)
		}
		spec = append(spec, SortKey{Field: field, Direction: dir})
	}
	return spec, nil
}

// ParseDirection accepts 1/-1 (any numeric type) and "asc"/"desc".
func ParseDirection(v any) (int, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending":
			return globalconst.SortAsc, nil
		case "desc", "descending":
			return globalconst.SortDesc, nil
		}
		return 0, fmt.Errorf("unknown sort direction %q", s)
	}
	f, ok := document.ToFloat64(v)
	if !ok {
		return 0, fmt.Errorf("sort direction must be 1 or -1, got %v", v)
	}
	if f < 0 {
		return globalconst.SortDesc, nil
	}
	return globalconst.SortAsc, nil
}

// CompareBy orders two documents by spec. Absent and null values go last
// whatever the direction.
func CompareBy(a, b document.Document, spec SortSpec) int {
	for _, key := range spec {
		va, okA := document.Get(a, key.Field)
		vb, okB := document.Get(b, key.Field)
		missA, missB := document.IsMissing(va, okA), document.IsMissing(vb, okB)
		switch {
		case missA && missB:
			continue
		case missA:
			return 1
		case missB:
			return -1
		}
		if c := document.Compare(va, vb); c != 0 {
			if key.Direction == globalconst.SortDesc {
				return -c
			}
			return c
		}
	}
	return 0
}

// Sort orders docs in place. The sort is stable so ties keep their input order.
func Sort(docs []document.Document, spec SortSpec) {
	if len(spec) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b document.Document) int {
		return CompareBy(a, b, spec)
	})
}

// Paginate slices docs by skip and limit. A limit of zero or less means no
// limit; a skip past the end yields an empty, non-nil slice.
func Paginate(docs []document.Document, skip, limit int) []document.Document {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(docs) {
		return []document.Document{}
	}
	docs = docs[skip:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
