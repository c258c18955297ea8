package graph

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
	"github.com/zclconf/go-cty/cty"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/template"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

const tagsPrefix = "tags."

// Layer is a concrete layer of the expanded graph.
type Layer struct {
	Type         string                 `json:"type"`
	Name         string                 `json:"name"`
	Tags         []string               `json:"tags,omitempty"`
	InboundNodes []string               `json:"inbound_nodes,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
}

type expander struct {
	layers []*Layer
	inputs []string

	// Referenceable by name: explicit names and graph inputs.
	named map[string]bool
	// Every name in use, automatic ones included.
	taken    map[string]bool
	counters map[string]int
	tags     map[string][]*Layer

	errs *errors.List
}

func newExpander(inputs []string, section string) *expander {
	x := &expander{
		inputs:   inputs,
		named:    make(map[string]bool),
		taken:    make(map[string]bool),
		counters: make(map[string]int),
		tags:     make(map[string][]*Layer),
		errs:     errors.NewList(section),
	}
	for _, in := range inputs {
		x.named[in] = true
		x.taken[in] = true
	}
	return x
}

// Expand unrolls nodes against env. inputs are the graph input layers, which
// may be referenced by name from inbound_nodes. Errors of independent nodes
// are all collected; a failing loop or branch header skips its body.
func Expand(nodes []Node, env *template.Environment, inputs []string) ([]*Layer, *errors.List) {
	section := ""
	if len(nodes) > 0 {
		section = nodes[0].Path.Section()
	}
	x := newExpander(inputs, section)
	x.expand(nodes, env)
	return x.layers, x.errs
}

func (x *expander) expand(nodes []Node, env *template.Environment) {
	for _, n := range nodes {
		switch n.Kind {
		case KindLayer:
			x.layer(n.Layer, env, n.Path)
		case KindFor:
			x.loop(n.For, env, n.Path)
		case KindIf:
			x.branch(n.If, env, n.Path)
		default:
			x.errs.Add(errors.Newf(errors.ReasonSchema, n.Path, "unknown node kind %v", n.Kind))
		}
	}
}

// MaxLoopLength bounds the iterations of a single for loop.
const MaxLoopLength = 10000

func (x *expander) loop(f *ForLoop, env *template.Environment, path tree.Path) {
	lenPath := path.Key(keyLen)
	v, err := template.ResolveValue(f.Len, env, lenPath)
	if err != nil {
		x.errs.Append(errors.ReasonResolution, lenPath, err)
		return
	}
	n, ok := tree.AsInt(v)
	if !ok || n < 0 {
		x.errs.Add(errors.Newf(errors.ReasonType, lenPath,
			"loop length must be a non negative integer, got %v", v))
		return
	}
	if n > MaxLoopLength {
		x.errs.Add(errors.Newf(errors.ReasonType, lenPath,
			"loop length %d exceeds the maximum of %d", n, MaxLoopLength))
		return
	}
	logrus.Debugf("Unrolling %v: %d iterations", path, n)
	for i := 0; i < n; i++ {
		x.expand(f.Do, env.With(types.LoopIndex, int64(i)))
	}
}

func (x *expander) branch(b *IfBranch, env *template.Environment, path tree.Path) {
	cond, err := Condition(b.Cond, env, path.Key(keyCond))
	if err != nil {
		x.errs.Append(errors.ReasonResolution, path.Key(keyCond), err)
		return
	}
	if cond {
		x.expand(b.Do, env.Push(nil))
		return
	}
	x.expand(b.ElseDo, env.Push(nil))
}

// Condition evaluates an if condition. A native bool is used as is. A string
// is one expression whose "{{ }}" spans stand for their values, so both
// "32 == {{ x }}" and "{{ x == 32 }}" work.
func Condition(cond interface{}, env *template.Environment, path tree.Path) (bool, error) {
	v := cond
	if s, ok := cond.(string); ok {
		var err error
		if v, err = template.Expression(s, env, path); err != nil {
			return false, err
		}
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Newf(errors.ReasonType, path, "condition must be a bool, got %v", tree.KindOf(v))
	}
	return b, nil
}

func (x *expander) layer(decl *LayerDecl, env *template.Environment, path tree.Path) {
	before := x.errs.Len()
	layer := &Layer{Type: decl.Type}

	if decl.Params != nil {
		params, errs := template.ResolveTree(decl.Params, env, path)
		x.errs.Extend(errs)
		layer.Params = params.(map[string]interface{})
	}

	name := ""
	if decl.Name != "" {
		name = x.resolveString(decl.Name, env, path.Key(keyName))
		if name != "" && x.taken[name] {
			x.errs.Add(errors.Newf(errors.ReasonReference, path.Key(keyName), "duplicate layer name %q", name))
		}
	}

	seen := make(map[string]bool, len(decl.Tags))
	for i, raw := range decl.Tags {
		tagPath := path.Key(keyTags).Index(i)
		tag := x.resolveString(raw, env, tagPath)
		if tag == "" || seen[tag] {
			continue
		}
		if !model.LabelName(tag).IsValid() {
			x.errs.Add(errors.Newf(errors.ReasonSchema, tagPath, "invalid tag %q", tag))
			continue
		}
		seen[tag] = true
		layer.Tags = append(layer.Tags, tag)
	}

	for i, raw := range decl.InboundNodes {
		refPath := path.Key(keyInboundNodes).Index(i)
		ref := x.resolveString(raw, env, refPath)
		if ref == "" {
			continue
		}
		names, err := x.lookup(ref, refPath)
		if err != nil {
			x.errs.Add(err)
			continue
		}
		layer.InboundNodes = append(layer.InboundNodes, names...)
	}

	if x.errs.Len() > before {
		return
	}
	if name != "" {
		x.named[name] = true
	} else {
		name = x.autoName(decl.Type)
	}
	layer.Name = name
	x.taken[name] = true
	for _, tag := range layer.Tags {
		x.tags[tag] = append(x.tags[tag], layer)
	}
	x.layers = append(x.layers, layer)
}

func (x *expander) resolveString(raw string, env *template.Environment, path tree.Path) string {
	v, err := template.Resolve(raw, env, path)
	if err != nil {
		x.errs.Append(errors.ReasonResolution, path, err)
		return ""
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			x.errs.Add(errors.New(errors.ReasonSchema, path, "must not be empty"))
		}
		return s
	case int64:
		return fmt.Sprint(s)
	}
	x.errs.Add(errors.Newf(errors.ReasonType, path, "must resolve to a string, got %v", tree.KindOf(v)))
	return ""
}

func (x *expander) autoName(typ string) string {
	prefix := strings.ToLower(typ)
	for {
		x.counters[prefix]++
		name := fmt.Sprintf("%s_%d", prefix, x.counters[prefix])
		if !x.taken[name] {
			return name
		}
	}
}

// lookup resolves a reference to the names of earlier layers. A reference is
// a layer name, tags.<tag> or tags.<tag>[i].
func (x *expander) lookup(ref string, path tree.Path) ([]string, *errors.Error) {
	if !strings.HasPrefix(ref, tagsPrefix) {
		if !x.named[ref] {
			return nil, errors.Newf(errors.ReasonReference, path, "unknown or forward reference %q", ref)
		}
		return []string{ref}, nil
	}
	tr, diags := hclsyntax.ParseTraversalAbs([]byte(ref), "reference", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() || len(tr) < 2 || len(tr) > 3 {
		return nil, errors.Newf(errors.ReasonReference, path, "malformed reference %q", ref)
	}
	attr, ok := tr[1].(hcl.TraverseAttr)
	if !ok {
		return nil, errors.Newf(errors.ReasonReference, path, "malformed reference %q", ref)
	}
	tagged := x.tags[attr.Name]
	if len(tagged) == 0 {
		return nil, errors.Newf(errors.ReasonReference, path, "no earlier layer tagged %q", attr.Name)
	}
	if len(tr) == 2 {
		names := make([]string, len(tagged))
		for i, l := range tagged {
			names[i] = l.Name
		}
		return names, nil
	}
	idx, ok := tr[2].(hcl.TraverseIndex)
	if !ok || !idx.Key.Type().Equals(cty.Number) {
		return nil, errors.Newf(errors.ReasonReference, path, "malformed reference %q", ref)
	}
	bf := idx.Key.AsBigFloat()
	i, _ := bf.Int64()
	if !bf.IsInt() || i < 0 || int(i) >= len(tagged) {
		return nil, errors.Newf(errors.ReasonReference, path,
			"%q: tag %q has %d layer(s) registered so far", ref, attr.Name, len(tagged))
	}
	return []string{tagged[i].Name}, nil
}

// References resolves standalone references, such as output_layers, against
// the fully expanded graph.
func (x *expander) references(refs []string, env *template.Environment, path tree.Path) []string {
	var out []string
	for i, raw := range refs {
		p := path.Index(i)
		ref := x.resolveString(raw, env, p)
		if ref == "" {
			continue
		}
		names, err := x.lookup(ref, p)
		if err != nil {
			x.errs.Add(err)
			continue
		}
		out = append(out, names...)
	}
	return out
}

// Has reports whether name is a layer of the graph or one of its inputs.
func (g *Graph) Has(name string) bool {
	if g == nil {
		return false
	}
	for _, in := range g.InputLayers {
		if in == name {
			return true
		}
	}
	for _, l := range g.Layers {
		if l.Name == name {
			return true
		}
	}
	return false
}
