package document

import (
	"strings"
	"time"
)

// Equal reports deep equality between two values. Numbers are equal when their
// float64 values are; maps and slices are compared element by element.
func Equal(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		a = Normalize(ta)
	}
	if tb, ok := b.(time.Time); ok {
		b = Normalize(tb)
	}

	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case KindNull:
		return true
	case KindNumber:
		fa, _ := ToFloat64(a)
		fb, _ := ToFloat64(b)
		return fa == fb
	case KindBool:
		return a.(bool) == b.(bool)
	case KindString:
		return Stringify(a) == Stringify(b)
	case KindArray:
		aa, ab := a.([]any), b.([]any)
		if len(aa) != len(ab) {
			return false
		}
		for i := range aa {
			if !Equal(aa[i], ab[i]) {
				return false
			}
		}
		return true
	case KindObject:
		ma, mb := a.(map[string]any), b.(map[string]any)
		if len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	}
	return false
}

// MatchValue compares a resolved document value against a wanted value. A nil
// wanted value matches both null and absent fields. Typed slices and maps on
// the wanted side are normalized first so Go callers can pass []string etc.
func MatchValue(got any, defined bool, want any) bool {
	if want == nil {
		return !defined || got == nil
	}
	if !defined {
		return false
	}
	return Equal(got, Normalize(want))
}

// Compare orders two values: numbers by value, strings case-insensitively,
// false before true, arrays and objects through their JSON text, and values
// of different kinds by kind rank.
func Compare(a, b any) int {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case KindNull:
		return 0
	case KindNumber:
		fa, _ := ToFloat64(a)
		fb, _ := ToFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case KindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	default:
		return strings.Compare(strings.ToLower(Stringify(a)), strings.ToLower(Stringify(b)))
	}
}

// IsMissing reports whether a resolved value sorts as missing.
func IsMissing(v any, defined bool) bool {
	return !defined || v == nil
}

// Contains reports whether values holds an element deep-equal to v.
func Contains(values []any, v any) bool {
	for _, existing := range values {
		if Equal(existing, v) {
			return true
		}
	}
	return false
}
