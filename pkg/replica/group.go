// Package replica turns the per role replica sections of an environment into
// one resolved spec per replica index.
package replica

import (
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

const (
	keyIndex        = "index"
	keyNodeSelector = "node_selector"
	keyResources    = "resources"
	keyTolerations  = "tolerations"
	keyAffinity     = "affinity"
)

// Role names the three document keys describing one replica role.
type Role struct {
	Name         string
	CountKey     string
	DefaultKey   string
	OverridesKey string
}

var Roles = []Role{
	{Name: types.RoleWorker, CountKey: "n_workers", DefaultKey: "default_worker", OverridesKey: "worker"},
	{Name: types.RolePS, CountKey: "n_ps", DefaultKey: "default_ps", OverridesKey: "ps"},
	{Name: types.RoleMaster, CountKey: "n_masters", DefaultKey: "default_master", OverridesKey: "master"},
}

// RoleByName returns the role with the given name.
func RoleByName(name string) (Role, bool) {
	for _, r := range Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

func (r Role) keys() []string {
	return []string{r.CountKey, r.DefaultKey, r.OverridesKey}
}

// Policy is how an override is merged on top of a default spec. Sequences
// found anywhere inside, tolerations or affinity terms, are replaced whole.
var Policy = tree.Policy{
	keyNodeSelector: tree.MergeMapping,
	keyResources:    tree.MergeMapping,
	keyAffinity:     tree.MergeMapping,
	keyTolerations:  tree.Replace,
}

var specFields = map[string]tree.Kind{
	keyNodeSelector: tree.KindMapping,
	keyResources:    tree.KindMapping,
	keyTolerations:  tree.KindSequence,
	keyAffinity:     tree.KindMapping,
}

type Override struct {
	Index  int
	Fields map[string]interface{}
	Path   tree.Path
}

type Group struct {
	Role      Role
	Count     int
	Default   map[string]interface{}
	Overrides []Override
	Path      tree.Path
}

// ParseGroup reads the count, default and overrides of one role from a
// replicas mapping. Override indices are range checked by Resolve.
func ParseGroup(replicas map[string]interface{}, role Role, path tree.Path) (*Group, *errors.List) {
	errs := errors.NewList(path.Section())
	g := &Group{Role: role, Path: path}

	if v, ok := replicas[role.CountKey]; ok && v != nil {
		n, isInt := tree.AsInt(v)
		if !isInt || n < 0 {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(role.CountKey),
				"must be a non negative integer, got %v", v))
		}
		g.Count = n
	}

	if v, ok := replicas[role.DefaultKey]; ok && v != nil {
		g.Default = checkSpec(v, path.Key(role.DefaultKey), false, errs)
	}

	if v, ok := replicas[role.OverridesKey]; ok && v != nil {
		seq, isSeq := v.([]interface{})
		if !isSeq {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(role.OverridesKey),
				"must be a sequence, got %v", tree.KindOf(v)))
			return g, errs
		}
		for i, item := range seq {
			p := path.Key(role.OverridesKey).Index(i)
			fields := checkSpec(item, p, true, errs)
			if fields == nil {
				continue
			}
			raw, found := fields[keyIndex]
			if !found {
				errs.Add(errors.New(errors.ReasonSchema, p, "missing required key \"index\""))
				continue
			}
			idx, isInt := tree.AsInt(raw)
			if !isInt {
				errs.Add(errors.Newf(errors.ReasonSchema, p.Key(keyIndex), "must be an integer, got %v", raw))
				continue
			}
			delete(fields, keyIndex)
			g.Overrides = append(g.Overrides, Override{Index: idx, Fields: fields, Path: p})
		}
	}
	return g, errs
}

// checkSpec validates a default or override spec and returns a shallow copy
// of its fields.
func checkSpec(v interface{}, path tree.Path, override bool, errs *errors.List) map[string]interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a mapping, got %v", tree.KindOf(v)))
		return nil
	}
	out := make(map[string]interface{}, len(m))
	valid := true
	for _, k := range tree.SortedKeys(m) {
		val := m[k]
		if k == keyIndex && override {
			out[k] = val
			continue
		}
		kind, known := specFields[k]
		if !known {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "unknown key %q", k))
			valid = false
			continue
		}
		if val != nil && tree.KindOf(val)&kind == 0 {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "must be a %v, got %v", kind, tree.KindOf(val)))
			valid = false
			continue
		}
		if k == keyResources {
			if rerrs := CheckResources(val, path.Key(k), errors.ReasonMerge); rerrs.Len() > 0 {
				// Only shape problems here; the ordering invariant is checked on
				// the merged spec.
				for _, e := range rerrs.Errors {
					if e.Reason == errors.ReasonSchema {
						errs.Add(e)
						valid = false
					}
				}
			}
		}
		if seq, ok := val.([]interface{}); ok && k == keyTolerations {
			for i, item := range seq {
				if tree.KindOf(item) != tree.KindMapping {
					errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k).Index(i), "must be a mapping, got %v", tree.KindOf(item)))
					valid = false
				}
			}
		}
		out[k] = val
	}
	if !valid {
		return nil
	}
	return out
}
