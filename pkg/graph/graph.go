package graph

import (
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/template"
	"github.com/kuberlab/mlspec/pkg/tree"
)

const (
	keyInputLayers  = "input_layers"
	keyLayers       = "layers"
	keyOutputLayers = "output_layers"
)

// Graph is the expanded model.graph section.
type Graph struct {
	InputLayers  []string `json:"input_layers,omitempty"`
	Layers       []*Layer `json:"layers"`
	OutputLayers []string `json:"output_layers,omitempty"`
}

// Build parses and expands a graph mapping: input_layers, layers and
// output_layers. Output layers are resolved once the whole graph is known.
func Build(v interface{}, env *template.Environment, path tree.Path) (*Graph, *errors.List) {
	errs := errors.NewList(path.Section())
	m, ok := v.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a mapping, got %v", tree.KindOf(v)))
		return nil, errs
	}
	for _, k := range tree.SortedKeys(m) {
		if k != keyInputLayers && k != keyLayers && k != keyOutputLayers {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "unknown key %q", k))
		}
	}

	inputs := inputLayers(m[keyInputLayers], env, path.Key(keyInputLayers), errs)
	outputs, err := tree.AsStrings(m[keyOutputLayers])
	if err != nil {
		errs.Add(errors.New(errors.ReasonSchema, path.Key(keyOutputLayers), err.Error()))
	}
	nodes, parseErrs := Parse(m[keyLayers], path.Key(keyLayers))
	errs.Extend(parseErrs)
	if errs.Len() > 0 {
		return nil, errs
	}

	x := newExpander(inputs, path.Section())
	x.expand(nodes, env)
	g := &Graph{InputLayers: inputs, Layers: x.layers}
	g.OutputLayers = x.references(outputs, env, path.Key(keyOutputLayers))
	errs.Extend(x.errs)
	if errs.Len() > 0 {
		return nil, errs
	}
	return g, errs
}

func inputLayers(v interface{}, env *template.Environment, path tree.Path, errs *errors.List) []string {
	raw, err := tree.AsStrings(v)
	if err != nil {
		errs.Add(errors.New(errors.ReasonSchema, path, err.Error()))
		return nil
	}
	var inputs []string
	seen := make(map[string]bool, len(raw))
	for i, s := range raw {
		p := path.Index(i)
		r, err := template.Resolve(s, env, p)
		if err != nil {
			errs.Append(errors.ReasonResolution, p, err)
			continue
		}
		name, ok := r.(string)
		if !ok || name == "" {
			errs.Add(errors.Newf(errors.ReasonType, p, "input layer must be a non empty string, got %v", tree.KindOf(r)))
			continue
		}
		if seen[name] {
			errs.Add(errors.Newf(errors.ReasonReference, p, "duplicate input layer %q", name))
			continue
		}
		seen[name] = true
		inputs = append(inputs, name)
	}
	return inputs
}
