package schema

import (
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

// HeaderSection is the breadcrumb of errors found in version, kind or the
// set of top level keys.
const HeaderSection = "headers"

const (
	MinVersion = 1
	MaxVersion = 1
)

// Order is the fixed allow-list of top level keys, in compilation order.
var Order = []string{
	types.SectionVersion,
	types.SectionKind,
	types.SectionLogging,
	types.SectionTags,
	types.SectionBackend,
	types.SectionFramework,
	types.SectionDeclarations,
	types.SectionEnvironment,
	types.SectionModel,
	types.SectionTrain,
	types.SectionEval,
	types.SectionBuild,
	types.SectionRun,
	types.SectionHPTuning,
}

// KindSpec lists the sections a kind may carry beyond the common ones, and
// groups of sections of which at least one must be present.
type KindSpec struct {
	Possible []string
	Required [][]string
}

var common = []string{types.SectionVersion, types.SectionKind, types.SectionLogging, types.SectionTags}

var experimentSections = []string{
	types.SectionBackend, types.SectionFramework, types.SectionEnvironment, types.SectionDeclarations,
	types.SectionModel, types.SectionTrain, types.SectionEval, types.SectionBuild, types.SectionRun,
}

var Kinds = map[types.Kind]KindSpec{
	types.KindExperiment: {
		Possible: experimentSections,
		Required: [][]string{{types.SectionRun, types.SectionModel}},
	},
	types.KindGroup: {
		Possible: append(append([]string{}, experimentSections...), types.SectionHPTuning),
		Required: [][]string{{types.SectionHPTuning}},
	},
	types.KindJob: {
		Possible: []string{types.SectionBackend, types.SectionEnvironment, types.SectionDeclarations, types.SectionBuild, types.SectionRun},
		Required: [][]string{{types.SectionRun}},
	},
	types.KindNotebook: {
		Possible: []string{types.SectionBackend, types.SectionEnvironment, types.SectionBuild},
		Required: [][]string{{types.SectionBuild}},
	},
	types.KindTensorboard: {
		Possible: []string{types.SectionBackend, types.SectionEnvironment, types.SectionBuild},
		Required: [][]string{{types.SectionBuild}},
	},
	types.KindBuild: {
		Possible: []string{types.SectionBackend, types.SectionEnvironment, types.SectionBuild},
		Required: [][]string{{types.SectionBuild}},
	},
}

type Header struct {
	Version int
	Kind    types.Kind
}

// CheckHeaders validates version and kind, rejects unknown top level keys and
// sections the kind cannot carry, and checks required sections.
func CheckHeaders(doc interface{}, minVersion, maxVersion int) (*Header, *errors.List) {
	errs := errors.NewList(HeaderSection)
	m, ok := doc.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{}, "document must be a mapping, got %v", tree.KindOf(doc)))
		return nil, errs
	}
	h := &Header{}

	if v, found := m[types.SectionVersion]; !found {
		errs.Add(errors.New(errors.ReasonSchema, tree.Path{types.SectionVersion}, "missing required key \"version\""))
	} else if n, isInt := tree.AsInt(v); !isInt {
		errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{types.SectionVersion}, "must be an integer, got %v", tree.KindOf(v)))
	} else if n < minVersion || n > maxVersion {
		errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{types.SectionVersion},
			"unsupported version %d, supported [%d,%d]", n, minVersion, maxVersion))
	} else {
		h.Version = n
	}

	var spec KindSpec
	kindOK := false
	if v, found := m[types.SectionKind]; !found {
		errs.Add(errors.New(errors.ReasonSchema, tree.Path{types.SectionKind}, "missing required key \"kind\""))
	} else if s, isString := v.(string); !isString {
		errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{types.SectionKind}, "must be a string, got %v", tree.KindOf(v)))
	} else if spec, kindOK = Kinds[types.Kind(s)]; !kindOK {
		errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{types.SectionKind}, "unknown kind %q", s))
	} else {
		h.Kind = types.Kind(s)
	}

	for _, k := range tree.SortedKeys(m) {
		switch {
		case !contains(Order, k):
			errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{k}, "unknown key %q", k))
		case kindOK && !contains(common, k) && !contains(spec.Possible, k):
			errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{k}, "section %q is not allowed for kind %s", k, h.Kind))
		}
	}
	if kindOK {
		for _, group := range spec.Required {
			if !hasAny(m, group) {
				errs.Add(errors.Newf(errors.ReasonSchema, tree.Path{}, "kind %s requires one of %v", h.Kind, group))
			}
		}
	}
	if errs.Len() > 0 {
		return nil, errs
	}
	return h, errs
}

func hasAny(m map[string]interface{}, keys []string) bool {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
