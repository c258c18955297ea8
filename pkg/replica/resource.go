package replica

import (
	"strconv"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
)

const (
	ResourceCPU    = "cpu"
	ResourceMemory = "memory"
	ResourceGPU    = "gpu"

	keyRequests = "requests"
	keyLimits   = "limits"
)

var resourceNames = []string{ResourceCPU, ResourceMemory, ResourceGPU}

// Range is a requests/limits pair. Values are kept as written: int, float or
// a quantity string such as "500m" or "2Gi".
type Range struct {
	Requests interface{} `json:"requests,omitempty"`
	Limits   interface{} `json:"limits,omitempty"`
}

type Resources struct {
	CPU    *Range `json:"cpu,omitempty"`
	Memory *Range `json:"memory,omitempty"`
	GPU    *Range `json:"gpu,omitempty"`
}

// Quantity returns the requests and limits of a resource (cpu, memory or
// gpu) as quantities; missing values are nil.
func (r *Resources) Quantity(name string) (*resource.Quantity, *resource.Quantity) {
	if r == nil {
		return nil, nil
	}
	switch name {
	case ResourceCPU:
		return r.CPU.quantities()
	case ResourceMemory:
		return r.Memory.quantities()
	case ResourceGPU:
		return r.GPU.quantities()
	}
	return nil, nil
}

func (r *Range) quantities() (*resource.Quantity, *resource.Quantity) {
	if r == nil {
		return nil, nil
	}
	req, _ := toQuantity(r.Requests)
	limit, _ := toQuantity(r.Limits)
	return req, limit
}

func toQuantity(v interface{}) (*resource.Quantity, bool) {
	switch n := v.(type) {
	case nil:
		return nil, true
	case int64:
		return resource.NewQuantity(n, resource.DecimalSI), true
	case float64:
		return quantityString(strconv.FormatFloat(n, 'f', -1, 64))
	case string:
		return quantityString(n)
	}
	return nil, false
}

func quantityString(v string) (*resource.Quantity, bool) {
	if v == "" {
		return nil, false
	}
	q, err := resource.ParseQuantity(v)
	if err != nil {
		return nil, false
	}
	return &q, true
}

// CheckResources validates a resources mapping: only cpu, memory and gpu
// with requests and limits, each a non negative quantity. Shape problems are
// SchemaErrors; requests above limits are reported with the given reason.
func CheckResources(v interface{}, path tree.Path, invariant errors.Reason) *errors.List {
	errs := errors.NewList(path.Section())
	if v == nil {
		return errs
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a mapping, got %v", tree.KindOf(v)))
		return errs
	}
	shapeOK := true
	for _, name := range tree.SortedKeys(m) {
		p := path.Key(name)
		if !contains(resourceNames, name) {
			errs.Add(errors.Newf(errors.ReasonSchema, p, "unknown resource %q", name))
			shapeOK = false
			continue
		}
		pair, ok := m[name].(map[string]interface{})
		if !ok {
			errs.Add(errors.Newf(errors.ReasonSchema, p, "must be a mapping of requests and limits, got %v", tree.KindOf(m[name])))
			shapeOK = false
			continue
		}
		for _, k := range tree.SortedKeys(pair) {
			if k != keyRequests && k != keyLimits {
				errs.Add(errors.Newf(errors.ReasonSchema, p.Key(k), "unknown key %q", k))
				shapeOK = false
				continue
			}
			q, ok := toQuantity(pair[k])
			if !ok || (q != nil && q.Sign() < 0) {
				errs.Add(errors.Newf(errors.ReasonSchema, p.Key(k), "invalid quantity %v", pair[k]))
				shapeOK = false
			}
		}
	}
	if !shapeOK {
		return errs
	}
	typed := resources(m)
	for _, name := range resourceNames {
		req, limit := typed.Quantity(name)
		if req != nil && limit != nil && req.Cmp(*limit) > 0 {
			errs.Add(errors.Newf(invariant, path.Key(name), "requests %s exceed limits %s",
				req.String(), limit.String()))
		}
	}
	return errs
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
