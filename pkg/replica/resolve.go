package replica

import (
	"fmt"

	"github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
)

// Spec is the resolved configuration of a single replica.
type Spec struct {
	Role         string                 `json:"role"`
	Index        int                    `json:"index"`
	NodeSelector map[string]interface{} `json:"node_selector,omitempty"`
	Resources    *Resources             `json:"resources,omitempty"`
	Tolerations  []v1.Toleration        `json:"tolerations,omitempty"`
	Affinity     *v1.Affinity           `json:"affinity,omitempty"`

	// Fields is the merged tree the typed fields were decoded from.
	Fields map[string]interface{} `json:"-"`
}

// Resolve produces exactly Count specs in index order. Indices without an
// override get a copy of the default.
func (g *Group) Resolve() ([]Spec, *errors.List) {
	errs := errors.NewList(g.Path.Section())
	errs.Extend(CheckResources(g.Default[keyResources], g.Path.Key(g.Role.DefaultKey).Key(keyResources), errors.ReasonMerge))

	byIndex := make(map[int]*Override, len(g.Overrides))
	for i := range g.Overrides {
		o := &g.Overrides[i]
		if o.Index < 0 || o.Index >= g.Count {
			errs.Add(errors.Newf(errors.ReasonMerge, o.Path.Key(keyIndex),
				"index %d out of range [0,%d)", o.Index, g.Count))
			continue
		}
		if _, dup := byIndex[o.Index]; dup {
			errs.Add(errors.Newf(errors.ReasonMerge, o.Path.Key(keyIndex), "duplicate override for index %d", o.Index))
			continue
		}
		byIndex[o.Index] = o
	}
	if errs.Len() > 0 {
		return nil, errs
	}

	specs := make([]Spec, 0, g.Count)
	for i := 0; i < g.Count; i++ {
		fields := tree.Merge(g.Default, nil, Policy)
		path := g.Path.Key(g.Role.DefaultKey)
		if o, ok := byIndex[i]; ok {
			fields = tree.Merge(g.Default, o.Fields, Policy)
			path = o.Path
			rerrs := CheckResources(fields[keyResources], path.Key(keyResources), errors.ReasonMerge)
			if rerrs.Len() > 0 {
				errs.Extend(rerrs)
				continue
			}
			logrus.Debugf("Merged override into %s replica %d", g.Role.Name, i)
		}
		spec, err := newSpec(g.Role.Name, i, fields, path)
		if err != nil {
			errs.Add(err)
			continue
		}
		specs = append(specs, spec)
	}
	if errs.Len() > 0 {
		return nil, errs
	}
	return specs, errs
}

func newSpec(role string, index int, fields map[string]interface{}, path tree.Path) (Spec, *errors.Error) {
	spec := Spec{Role: role, Index: index, Fields: fields}
	if ns, ok := fields[keyNodeSelector].(map[string]interface{}); ok {
		spec.NodeSelector = ns
	}
	spec.Resources = resources(fields[keyResources])
	if t, ok := fields[keyTolerations]; ok && t != nil {
		if err := tree.Decode(t, &spec.Tolerations); err != nil {
			return spec, errors.Newf(errors.ReasonSchema, path.Key(keyTolerations), "invalid tolerations: %v", err)
		}
	}
	if a, ok := fields[keyAffinity]; ok && a != nil {
		spec.Affinity = &v1.Affinity{}
		if err := tree.Decode(a, spec.Affinity); err != nil {
			return spec, errors.Newf(errors.ReasonSchema, path.Key(keyAffinity), "invalid affinity: %v", err)
		}
	}
	return spec, nil
}

// resources builds the typed view of a validated resources mapping. Values
// keep their original type.
func resources(v interface{}) *Resources {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}
	r := &Resources{}
	for _, name := range resourceNames {
		pair, ok := m[name].(map[string]interface{})
		if !ok {
			continue
		}
		rng := &Range{Requests: pair[keyRequests], Limits: pair[keyLimits]}
		switch name {
		case ResourceCPU:
			r.CPU = rng
		case ResourceMemory:
			r.Memory = rng
		case ResourceGPU:
			r.GPU = rng
		}
	}
	return r
}

// ParseResources validates a standalone resources block, such as the one of
// an environment, and returns its typed view.
func ParseResources(v interface{}, path tree.Path) (*Resources, *errors.List) {
	errs := CheckResources(v, path, errors.ReasonSchema)
	if errs.Len() > 0 {
		return nil, errs
	}
	return resources(v), errs
}

func (s Spec) String() string {
	return fmt.Sprintf("%s[%d]", s.Role, s.Index)
}
