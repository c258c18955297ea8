package replica

import (
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

// Frameworks without parameter servers.
var noPS = map[string]bool{
	types.FrameworkPytorch: true,
	types.FrameworkHorovod: true,
}

// ResolveAll parses and resolves every role present in a replicas mapping.
// Roles absent from the document are absent from the result.
func ResolveAll(v interface{}, framework string, path tree.Path) (map[string][]Spec, *errors.List) {
	errs := errors.NewList(path.Section())
	if v == nil {
		return nil, errs
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a mapping, got %v", tree.KindOf(v)))
		return nil, errs
	}

	known := make(map[string]Role)
	for _, role := range Roles {
		for _, k := range role.keys() {
			known[k] = role
		}
	}
	present := make(map[string]bool)
	for _, k := range tree.SortedKeys(m) {
		role, ok := known[k]
		if !ok {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "unknown key %q", k))
			continue
		}
		if role.Name == types.RolePS && noPS[framework] {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "framework %s has no parameter servers", framework))
			continue
		}
		present[role.Name] = true
	}
	if errs.Len() > 0 {
		return nil, errs
	}

	out := make(map[string][]Spec, len(present))
	for _, role := range Roles {
		if !present[role.Name] {
			continue
		}
		g, gerrs := ParseGroup(m, role, path)
		if gerrs.Len() > 0 {
			errs.Extend(gerrs)
			continue
		}
		specs, rerrs := g.Resolve()
		if rerrs.Len() > 0 {
			errs.Extend(rerrs)
			continue
		}
		out[role.Name] = specs
	}
	if errs.Len() > 0 {
		return nil, errs
	}
	return out, errs
}
