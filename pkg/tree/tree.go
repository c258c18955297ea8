// Package tree holds the generic document representation shared by every
// compiler stage: mappings are map[string]interface{}, sequences are
// []interface{}, scalars are int64, float64, string, bool or nil.
package tree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is a bit set so a field may accept several kinds at once.
type Kind uint

const (
	KindNull Kind = 1 << iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping

	KindNumber = KindInt | KindFloat
	KindScalar = KindNull | KindBool | KindNumber | KindString
	KindAny    = KindScalar | KindSequence | KindMapping
)

var kindNames = []struct {
	kind Kind
	name string
}{
	{KindNull, "null"},
	{KindBool, "bool"},
	{KindInt, "int"},
	{KindFloat, "float"},
	{KindString, "string"},
	{KindSequence, "sequence"},
	{KindMapping, "mapping"},
}

func (k Kind) String() string {
	if k == KindNumber {
		return "number"
	}
	names := make([]string, 0, 2)
	for _, n := range kindNames {
		if k&n.kind != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, " or ")
}

// KindOf returns the kind of a normalized value. Values outside the model
// report 0.
func KindOf(v interface{}) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	case []interface{}:
		return KindSequence
	case map[string]interface{}:
		return KindMapping
	}
	return 0
}

// SortedKeys returns mapping keys in lexical order.
func SortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path is a section/key breadcrumb such as model.graph.layers[2].Conv2D.
type Path []string

func (p Path) Key(k string) Path {
	return p.extend(k)
}

func (p Path) Index(i int) Path {
	if len(p) == 0 {
		return Path{"[" + strconv.Itoa(i) + "]"}
	}
	out := make(Path, len(p))
	copy(out, p)
	out[len(out)-1] = out[len(out)-1] + "[" + strconv.Itoa(i) + "]"
	return out
}

func (p Path) extend(k string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, k)
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Section returns the top level section the path belongs to.
func (p Path) Section() string {
	if len(p) == 0 {
		return ""
	}
	s := p[0]
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	return s
}

// AsInt converts integral numbers to int. Floats are accepted only when they
// carry an integral value.
func AsInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		if n == float64(int64(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// AsStrings converts a string or a sequence of strings to a slice.
func AsStrings(v interface{}) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{s}, nil
	case []interface{}:
		out := make([]string, 0, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d must be a string, got %v", i, KindOf(item))
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("must be a string or a sequence of strings, got %v", KindOf(v))
}
