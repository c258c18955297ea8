// Package schema checks the shape of specification documents: headers,
// the sections allowed for a kind, and the layout of each section.
package schema

import (
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
)

// Field describes the expected shape of a value. Fields applies to mappings,
// Elem to sequence items. A mapping that is not Open rejects unknown keys.
type Field struct {
	Kind     tree.Kind
	Required bool
	Fields   map[string]*Field
	Elem     *Field
	Open     bool
}

func scalar(kind tree.Kind) *Field {
	return &Field{Kind: kind}
}

func required(f *Field) *Field {
	c := *f
	c.Required = true
	return &c
}

func seqOf(elem *Field) *Field {
	return &Field{Kind: tree.KindSequence, Elem: elem}
}

func mapping(fields map[string]*Field) *Field {
	return &Field{Kind: tree.KindMapping, Fields: fields}
}

func openMapping(fields map[string]*Field) *Field {
	return &Field{Kind: tree.KindMapping, Fields: fields, Open: true}
}

// stringOrList accepts a string or a sequence of strings.
func stringOrList() *Field {
	return &Field{Kind: tree.KindString | tree.KindSequence, Elem: scalar(tree.KindString)}
}

// Check validates v against f and records every violation found.
func (f *Field) Check(v interface{}, path tree.Path, errs *errors.List) {
	kind := tree.KindOf(v)
	if kind&f.Kind == 0 {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a %v, got %v", f.Kind, kind))
		return
	}
	switch t := v.(type) {
	case []interface{}:
		if f.Elem == nil {
			return
		}
		for i, item := range t {
			f.Elem.Check(item, path.Index(i), errs)
		}
	case map[string]interface{}:
		for _, k := range tree.SortedKeys(t) {
			sub, ok := f.Fields[k]
			if !ok {
				if !f.Open {
					errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "unknown key %q", k))
				}
				continue
			}
			if t[k] == nil && !sub.Required {
				continue
			}
			sub.Check(t[k], path.Key(k), errs)
		}
		for _, k := range sortedFieldNames(f.Fields) {
			if _, ok := t[k]; !ok && f.Fields[k].Required {
				errs.Add(errors.Newf(errors.ReasonSchema, path, "missing required key %q", k))
			}
		}
	}
}

func sortedFieldNames(fields map[string]*Field) []string {
	m := make(map[string]interface{}, len(fields))
	for k := range fields {
		m[k] = nil
	}
	return tree.SortedKeys(m)
}
