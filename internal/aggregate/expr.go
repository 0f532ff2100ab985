package aggregate

import (
	"log/slog"
	"strings"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"
)

// evaluate resolves an expression against doc. A "$path" string reads a field,
// an object with one known operator computes a value, anything else is a
// literal. The second result is false when the expression yields nothing: a
// missing field or an unrecognized operator.
func evaluate(doc document.Document, expr any) (any, bool) {
	switch e := expr.(type) {
	case string:
		if path, ok := fieldRef(e); ok {
			return document.Get(doc, path)
		}
		return e, true
	case map[string]any:
		if len(e) != 1 {
			return e, true
		}
		for op, arg := range e {
			return evaluateOperator(doc, op, arg)
		}
	}
	return expr, true
}

func evaluateOperator(doc document.Document, op string, arg any) (any, bool) {
	switch op {
	case globalconst.ExprConcat:
		var sb strings.Builder
		for _, operand := range operands(arg) {
			v, _ := evaluate(doc, operand)
			sb.WriteString(document.Stringify(v))
		}
		return sb.String(), true
	case globalconst.ExprToUpper:
		v, _ := evaluate(doc, single(arg))
		return strings.ToUpper(document.Stringify(v)), true
	case globalconst.ExprToLower:
		v, _ := evaluate(doc, single(arg))
		return strings.ToLower(document.Stringify(v)), true
	case globalconst.ExprAdd:
		return arithmetic(doc, arg, func(acc, n float64) float64 { return acc + n })
	case globalconst.ExprSubtract:
		return arithmetic(doc, arg, func(acc, n float64) float64 { return acc - n })
	case globalconst.ExprMultiply:
		return arithmetic(doc, arg, func(acc, n float64) float64 { return acc * n })
	}
	if strings.HasPrefix(op, globalconst.FieldRefPrefix) {
		slog.Debug("Ignoring unknown aggregation expression", "operator", op)
		return nil, false
	}
	return map[string]any{op: arg}, true
}

// arithmetic folds the operands left to right. Any operand that is not a
// number makes the result null.
func arithmetic(doc document.Document, arg any, fold func(acc, n float64) float64) (any, bool) {
	ops := operands(arg)
	if len(ops) == 0 {
		return nil, true
	}
	var acc float64
	for i, operand := range ops {
		v, _ := evaluate(doc, operand)
		n, ok := document.ToFloat64(v)
		if !ok {
			return nil, true
		}
		if i == 0 {
			acc = n
			continue
		}
		acc = fold(acc, n)
	}
	return acc, true
}

func fieldRef(s string) (string, bool) {
	if len(s) > 1 && strings.HasPrefix(s, globalconst.FieldRefPrefix) {
		return s[1:], true
	}
	return "", false
}

func operands(arg any) []any {
	if list, ok := arg.([]any); ok {
		return list
	}
	return []any{arg}
}

func single(arg any) any {
	if list, ok := arg.([]any); ok && len(list) > 0 {
		return list[0]
	}
	return arg
}

// accumulate computes one group output field over the group's members, in
// their pre-group order. An unknown operator yields nothing.
func accumulate(acc Accumulator, members []document.Document) (any, bool) {
	switch acc.Operator {
	case globalconst.AccCount:
		return float64(len(members)), true
	case globalconst.AccSum:
		if n, ok := document.ToFloat64(acc.Arg); ok {
			return n * float64(len(members)), true
		}
		var sum float64
		for _, doc := range members {
			v, _ := evaluate(doc, acc.Arg)
			if n, ok := document.ToFloat64(v); ok {
				sum += n
			}
		}
		return sum, true
	case globalconst.AccAvg:
		var sum float64
		var count int
		for _, doc := range members {
			v, _ := evaluate(doc, acc.Arg)
			if n, ok := document.ToFloat64(v); ok {
				sum += n
				count++
			}
		}
		if count == 0 {
			return nil, true
		}
		return sum / float64(count), true
	case globalconst.AccMin, globalconst.AccMax:
		var best any
		found := false
		for _, doc := range members {
			v, ok := evaluate(doc, acc.Arg)
			if document.IsMissing(v, ok) {
				continue
			}
			c := 0
			if found {
				c = document.Compare(v, best)
			}
			if !found || (acc.Operator == globalconst.AccMin && c < 0) || (acc.Operator == globalconst.AccMax && c > 0) {
				best, found = v, true
			}
		}
		return best, true
	case globalconst.AccPush:
		values := []any{}
		for _, doc := range members {
			if v, ok := evaluate(doc, acc.Arg); ok {
				values = append(values, v)
			}
		}
		return values, true
	case globalconst.AccAddToSet:
		values := []any{}
		for _, doc := range members {
			if v, ok := evaluate(doc, acc.Arg); ok && !document.Contains(values, v) {
				values = append(values, v)
			}
		}
		return values, true
	case globalconst.AccFirst, globalconst.AccLast:
		if len(members) == 0 {
			return nil, true
		}
		doc := members[0]
		if acc.Operator == globalconst.AccLast {
			doc = members[len(members)-1]
		}
		v, _ := evaluate(doc, acc.Arg)
		return v, true
	}
	slog.Debug("Ignoring unknown group accumulator", "field", acc.Field, "operator", acc.Operator)
	return nil, false
}
