// Package graph unrolls the for/if constructs of model.graph.layers into an
// ordered list of concrete layers and resolves their cross references.
package graph

import (
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

type NodeKind int

const (
	KindLayer NodeKind = iota
	KindFor
	KindIf
)

func (k NodeKind) String() string {
	switch k {
	case KindLayer:
		return "layer"
	case KindFor:
		return types.OperatorFor
	case KindIf:
		return types.OperatorIf
	}
	return "unknown"
}

// Reserved keys of a layer declaration. Everything else is a parameter.
const (
	keyName         = "name"
	keyTags         = "tags"
	keyInboundNodes = "inbound_nodes"

	keyLen    = "len"
	keyDo     = "do"
	keyCond   = "cond"
	keyElseDo = "else_do"
)

// Node is one element of a layers sequence. Exactly one of Layer, For and If
// is set, as told by Kind.
type Node struct {
	Kind  NodeKind
	Path  tree.Path
	Layer *LayerDecl
	For   *ForLoop
	If    *IfBranch
}

// LayerDecl is a layer as written in the document. Every string may still
// hold template expressions.
type LayerDecl struct {
	Type         string
	Name         string
	Tags         []string
	InboundNodes []string
	Params       map[string]interface{}
}

type ForLoop struct {
	Len interface{}
	Do  []Node
}

type IfBranch struct {
	Cond   interface{}
	Do     []Node
	ElseDo []Node
}

// Parse checks the shape of a layers sequence and builds its nodes. All shape
// violations are reported.
func Parse(layers interface{}, path tree.Path) ([]Node, *errors.List) {
	errs := errors.NewList(path.Section())
	nodes := parseSeq(layers, path, errs)
	return nodes, errs
}

func parseSeq(v interface{}, path tree.Path, errs *errors.List) []Node {
	if v == nil {
		return nil
	}
	seq, ok := v.([]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a sequence, got %v", tree.KindOf(v)))
		return nil
	}
	nodes := make([]Node, 0, len(seq))
	for i, item := range seq {
		if n, ok := parseNode(item, path.Index(i), errs); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func parseNode(v interface{}, path tree.Path, errs *errors.List) (Node, bool) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		errs.Add(errors.New(errors.ReasonSchema, path, "layer entry must be a mapping with a single key"))
		return Node{}, false
	}
	var key string
	for k := range m {
		key = k
	}
	body := m[key]
	path = path.Key(key)
	switch key {
	case types.OperatorFor:
		fields, ok := operatorFields(body, path, errs, keyLen, keyDo)
		if !ok {
			return Node{}, false
		}
		if !require(fields, path, errs, keyLen, keyDo) {
			return Node{}, false
		}
		loop := &ForLoop{Len: fields[keyLen], Do: parseSeq(fields[keyDo], path.Key(keyDo), errs)}
		return Node{Kind: KindFor, Path: path, For: loop}, true
	case types.OperatorIf:
		fields, ok := operatorFields(body, path, errs, keyCond, keyDo, keyElseDo)
		if !ok {
			return Node{}, false
		}
		if !require(fields, path, errs, keyCond, keyDo) {
			return Node{}, false
		}
		branch := &IfBranch{
			Cond:   fields[keyCond],
			Do:     parseSeq(fields[keyDo], path.Key(keyDo), errs),
			ElseDo: parseSeq(fields[keyElseDo], path.Key(keyElseDo), errs),
		}
		return Node{Kind: KindIf, Path: path, If: branch}, true
	}
	decl, ok := parseLayer(key, body, path, errs)
	if !ok {
		return Node{}, false
	}
	return Node{Kind: KindLayer, Path: path, Layer: decl}, true
}

func operatorFields(v interface{}, path tree.Path, errs *errors.List, allowed ...string) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a mapping, got %v", tree.KindOf(v)))
		return nil, false
	}
	valid := true
	for _, k := range tree.SortedKeys(m) {
		if !contains(allowed, k) {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "unknown key %q", k))
			valid = false
		}
	}
	return m, valid
}

func require(m map[string]interface{}, path tree.Path, errs *errors.List, keys ...string) bool {
	ok := true
	for _, k := range keys {
		if _, found := m[k]; !found {
			errs.Add(errors.Newf(errors.ReasonSchema, path, "missing required key %q", k))
			ok = false
		}
	}
	return ok
}

func parseLayer(typ string, body interface{}, path tree.Path, errs *errors.List) (*LayerDecl, bool) {
	decl := &LayerDecl{Type: typ}
	if body == nil {
		return decl, true
	}
	m, ok := body.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "layer parameters must be a mapping, got %v", tree.KindOf(body)))
		return nil, false
	}
	valid := true
	for _, k := range tree.SortedKeys(m) {
		v := m[k]
		switch k {
		case keyName:
			name, ok := v.(string)
			if !ok || name == "" {
				errs.Add(errors.New(errors.ReasonSchema, path.Key(k), "must be a non empty string"))
				valid = false
				continue
			}
			decl.Name = name
		case keyTags, keyInboundNodes:
			list, err := tree.AsStrings(v)
			if err != nil {
				errs.Add(errors.New(errors.ReasonSchema, path.Key(k), err.Error()))
				valid = false
				continue
			}
			if k == keyTags {
				decl.Tags = list
			} else {
				decl.InboundNodes = list
			}
		default:
			if decl.Params == nil {
				decl.Params = make(map[string]interface{}, len(m))
			}
			decl.Params[k] = v
		}
	}
	return decl, valid
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
