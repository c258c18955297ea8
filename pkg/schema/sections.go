package schema

import (
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

// Keys of data pipelines that only accept booleans.
var PipelineFlags = []string{"shuffle", "dynamic_pad", "allow_smaller_final_batch", "smart_resize"}

// named is an opaque identifier, either a string or a single key mapping of
// the name to its parameters.
var named = &Field{Kind: tree.KindString | tree.KindMapping, Open: true}

func stage() *Field {
	return openMapping(map[string]*Field{
		"data_pipeline":                named,
		"steps":                        scalar(tree.KindInt),
		"delay_workers_by_global_step": scalar(tree.KindBool),
	})
}

// CheckFlags reports pipeline flags of params holding anything but a bool.
// Strings such as "False" are not coerced.
func CheckFlags(params map[string]interface{}, path tree.Path, errs *errors.List) {
	for _, k := range PipelineFlags {
		v, ok := params[k]
		if !ok || v == nil {
			continue
		}
		if _, isBool := v.(bool); !isBool {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "must be a bool, got %v %v", tree.KindOf(v), v))
		}
	}
}

// Sections holds the shape of every section. Shapes are checked after
// template resolution, so values are native. model.graph, replicas and
// resources get deeper checks from their own packages.
var Sections = map[string]*Field{
	types.SectionLogging: mapping(map[string]*Field{
		"level":     scalar(tree.KindString),
		"formatter": scalar(tree.KindString),
		"path":      scalar(tree.KindString),
	}),
	types.SectionTags:         stringOrList(),
	types.SectionBackend:      scalar(tree.KindString),
	types.SectionFramework:    scalar(tree.KindString),
	types.SectionDeclarations: openMapping(nil),
	types.SectionEnvironment: mapping(map[string]*Field{
		"persistence": mapping(map[string]*Field{
			"data":    stringOrList(),
			"outputs": scalar(tree.KindString),
		}),
		"secret_refs":    seqOf(scalar(tree.KindString)),
		"configmap_refs": seqOf(scalar(tree.KindString)),
		"node_selector":  openMapping(nil),
		"tolerations":    seqOf(openMapping(nil)),
		"affinity":       openMapping(nil),
		"resources":      openMapping(nil),
		"replicas":       openMapping(nil),
	}),
	types.SectionModel: openMapping(map[string]*Field{
		"graph":     openMapping(nil),
		"loss":      named,
		"optimizer": named,
		"metrics":   seqOf(named),
	}),
	types.SectionTrain: stage(),
	types.SectionEval:  stage(),
	types.SectionBuild: openMapping(map[string]*Field{
		"image":       required(scalar(tree.KindString)),
		"build_steps": seqOf(scalar(tree.KindString)),
		"env_vars":    seqOf(&Field{Kind: tree.KindSequence | tree.KindMapping}),
		"git":         scalar(tree.KindString),
	}),
	types.SectionRun: openMapping(map[string]*Field{
		"cmd": required(stringOrList()),
	}),
	types.SectionHPTuning: openMapping(map[string]*Field{
		"concurrency": scalar(tree.KindInt),
		"matrix":      openMapping(nil),
	}),
}

// CheckSection validates one section and reports every violation.
func CheckSection(name string, v interface{}) *errors.List {
	errs := errors.NewList(name)
	f, ok := Sections[name]
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{name}, "unknown section %q", name))
		return errs
	}
	f.Check(v, tree.Path{name}, errs)
	return errs
}
