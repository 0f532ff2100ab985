// Package aggregate runs pipelines of $match, $group, $sort, $project, $skip,
// $limit, $unwind, $lookup and $addFields stages over table documents.
package aggregate

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"docstudio/internal/document"
	"docstudio/internal/globalconst"
	"docstudio/internal/query"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stage is one step of a pipeline. The set of implementations is closed.
type Stage interface {
	Name() string
	isStage()
}

// Pipeline is an ordered list of stages; each stage feeds the next.
type Pipeline []Stage

type MatchStage struct {
	Filter query.Filter
}

// GroupStage buckets documents by ID, an expression evaluated per document,
// and computes one output field per accumulator.
type GroupStage struct {
	ID     any
	Fields []Accumulator
}

// Accumulator computes a group output field.
type Accumulator struct {
	Field    string
	Operator string
	Arg      any
}

type SortStage struct {
	Spec query.SortSpec
}

// ProjectStage reshapes documents. Included paths are copied, computed ones
// evaluated; when nothing is included or computed the stage only drops the
// excluded paths.
type ProjectStage struct {
	Include  []string
	Exclude  []string
	Computed []Computed
}

// Computed is a named expression evaluated against each document.
type Computed struct {
	Field string
	Expr  any
}

type SkipStage struct {
	N int
}

type LimitStage struct {
	N int
}

type UnwindStage struct {
	Path string
}

// LookupStage joins each document with the documents of another table whose
// ForeignField equals the document's LocalField.
type LookupStage struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

type AddFieldsStage struct {
	Fields []Computed
}

// UnknownStage keeps an operator this engine does not implement. Running it
// passes documents through untouched.
type UnknownStage struct {
	Operator string
	Arg      any
}

func (MatchStage) Name() string     { return globalconst.StageMatch }
func (GroupStage) Name() string     { return globalconst.StageGroup }
func (SortStage) Name() string      { return globalconst.StageSort }
func (ProjectStage) Name() string   { return globalconst.StageProject }
func (SkipStage) Name() string      { return globalconst.StageSkip }
func (LimitStage) Name() string     { return globalconst.StageLimit }
func (UnwindStage) Name() string    { return globalconst.StageUnwind }
func (LookupStage) Name() string    { return globalconst.StageLookup }
func (AddFieldsStage) Name() string { return globalconst.StageAddFields }
func (s UnknownStage) Name() string { return s.Operator }

func (MatchStage) isStage()     {}
func (GroupStage) isStage()     {}
func (SortStage) isStage()      {}
func (ProjectStage) isStage()   {}
func (SkipStage) isStage()      {}
func (LimitStage) isStage()     {}
func (UnwindStage) isStage()    {}
func (LookupStage) isStage()    {}
func (AddFieldsStage) isStage() {}
func (UnknownStage) isStage()   {}

// Parse builds a pipeline from decoded stage objects. Each object must hold
// exactly one operator. $sort keys from a Go map are applied alphabetically;
// use ParseJSON to keep the caller's key order.
func Parse(stages []map[string]any) (Pipeline, error) {
	p := make(Pipeline, 0, len(stages))
	for i, raw := range stages {
		op, arg, err := singleOperator(raw)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		stage, err := parseStage(op, document.Normalize(arg))
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, op, err)
		}
		p = append(p, stage)
	}
	return p, nil
}

// ParseJSON builds a pipeline from a JSON array of stage objects.
func ParseJSON(data []byte) (Pipeline, error) {
	var rawStages []map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &rawStages); err != nil {
		return nil, fmt.Errorf("pipeline must be a JSON array of stage objects: %w", err)
	}

	p := make(Pipeline, 0, len(rawStages))
	for i, raw := range rawStages {
		if len(raw) != 1 {
			return nil, fmt.Errorf("stage %d: expected exactly one operator, got %d", i, len(raw))
		}
		for op, body := range raw {
			var stage Stage
			var err error
			if op == globalconst.StageSort {
				var spec query.SortSpec
				if err = json.Unmarshal(body, &spec); err == nil {
					stage = SortStage{Spec: spec}
				}
			} else {
				var arg any
				if arg, err = decodeValue(body); err == nil {
					stage, err = parseStage(op, arg)
				}
			}
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", i, op, err)
			}
			p = append(p, stage)
		}
	}
	return p, nil
}

func decodeValue(data []byte) (any, error) {
	decoder := jsoniter.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	return document.Normalize(v), nil
}

func singleOperator(raw map[string]any) (string, any, error) {
	if len(raw) != 1 {
		return "", nil, fmt.Errorf("expected exactly one operator, got %d", len(raw))
	}
	for op, arg := range raw {
		return op, arg, nil
	}
	return "", nil, nil
}

func parseStage(op string, arg any) (Stage, error) {
	switch op {
	case globalconst.StageMatch:
		m, err := asObject(arg)
		if err != nil {
			return nil, err
		}
		return MatchStage{Filter: query.Filter(m)}, nil
	case globalconst.StageGroup:
		return parseGroup(arg)
	case globalconst.StageSort:
		m, err := asObject(arg)
		if err != nil {
			return nil, err
		}
		spec, err := query.SortSpecFromMap(m)
		if err != nil {
			return nil, err
		}
		return SortStage{Spec: spec}, nil
	case globalconst.StageProject:
		return parseProject(arg)
	case globalconst.StageSkip:
		n, err := asCount(arg)
		if err != nil {
			return nil, err
		}
		return SkipStage{N: n}, nil
	case globalconst.StageLimit:
		n, err := asCount(arg)
		if err != nil {
			return nil, err
		}
		return LimitStage{N: n}, nil
	case globalconst.StageUnwind:
		return parseUnwind(arg)
	case globalconst.StageLookup:
		return parseLookup(arg)
	case globalconst.StageAddFields:
		m, err := asObject(arg)
		if err != nil {
			return nil, err
		}
		return AddFieldsStage{Fields: computedFields(m)}, nil
	default:
		return UnknownStage{Operator: op, Arg: arg}, nil
	}
}

func parseGroup(arg any) (Stage, error) {
	m, err := asObject(arg)
	if err != nil {
		return nil, err
	}
	stage := GroupStage{ID: m[globalconst.ID]}
	for _, field := range sortedKeys(m) {
		if field == globalconst.ID {
			continue
		}
		acc := Accumulator{Field: field}
		if spec, ok := m[field].(map[string]any); ok && len(spec) == 1 {
			for op, opArg := range spec {
				acc.Operator, acc.Arg = op, opArg
			}
		}
		stage.Fields = append(stage.Fields, acc)
	}
	return stage, nil
}

func parseProject(arg any) (Stage, error) {
	m, err := asObject(arg)
	if err != nil {
		return nil, err
	}
	var stage ProjectStage
	for _, field := range sortedKeys(m) {
		switch v := m[field].(type) {
		case bool:
			if v {
				stage.Include = append(stage.Include, field)
			} else {
				stage.Exclude = append(stage.Exclude, field)
			}
		case map[string]any, string:
			stage.Computed = append(stage.Computed, Computed{Field: field, Expr: v})
		default:
			if f, ok := document.ToFloat64(v); ok {
				if f != 0 {
					stage.Include = append(stage.Include, field)
				} else {
					stage.Exclude = append(stage.Exclude, field)
				}
			}
		}
	}
	return stage, nil
}

func parseUnwind(arg any) (Stage, error) {
	path := arg
	if m, ok := arg.(map[string]any); ok {
		path = m["path"]
	}
	s, ok := path.(string)
	if !ok || strings.TrimPrefix(s, globalconst.FieldRefPrefix) == "" {
		return nil, fmt.Errorf("expected a field path, got %v", arg)
	}
	return UnwindStage{Path: strings.TrimPrefix(s, globalconst.FieldRefPrefix)}, nil
}

func parseLookup(arg any) (Stage, error) {
	m, err := asObject(arg)
	if err != nil {
		return nil, err
	}
	stage := LookupStage{}
	for key, dst := range map[string]*string{
		"from":         &stage.From,
		"localField":   &stage.LocalField,
		"foreignField": &stage.ForeignField,
		"as":           &stage.As,
	} {
		s, ok := m[key].(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%q must be a non-empty string", key)
		}
		*dst = s
	}
	return stage, nil
}

func computedFields(m map[string]any) []Computed {
	fields := make([]Computed, 0, len(m))
	for _, field := range sortedKeys(m) {
		fields = append(fields, Computed{Field: field, Expr: m[field]})
	}
	return fields
}

func asObject(arg any) (map[string]any, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", arg)
	}
	return m, nil
}

func asCount(arg any) (int, error) {
	f, ok := document.ToFloat64(arg)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %v", arg)
	}
	return int(f), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
