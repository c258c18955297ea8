package replica

import (
	"os"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	v1 "k8s.io/api/core/v1"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
)

func Assert(want, got interface{}, t *testing.T) {
	if !reflect.DeepEqual(want, got) {
		_, file, line, _ := runtime.Caller(1)
		splitted := strings.Split(file, string(os.PathSeparator))
		t.Fatalf("%v:%v: Failed: got %v, want %v", splitted[len(splitted)-1], line, got, want)
	}
}

var replicasPath = tree.Path{"environment"}.Key("replicas")

const replicasDoc = `
n_workers: 5
n_ps: 1
default_worker:
  node_selector:
    foo: true
    zone: a
  resources:
    cpu:
      requests: 1
      limits: 2
    memory:
      requests: 256Mi
      limits: 1Gi
  tolerations:
    - key: gpu
      operator: Exists
      effect: NoSchedule
worker:
  - index: 3
    node_selector:
      foo: false
    resources:
      cpu:
        limits: 4
    tolerations:
      - key: spot
        operator: Equal
        value: "true"
default_ps:
  resources:
    cpu:
      requests: 0.5
      limits: 1
`

func load(t *testing.T, doc string) map[string]interface{} {
	v, err := tree.Load([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return v.(map[string]interface{})
}

func workerGroup(t *testing.T, doc string) *Group {
	role, _ := RoleByName("worker")
	g, errs := ParseGroup(load(t, doc), role, replicasPath)
	if errs.Len() > 0 {
		t.Fatal(errs)
	}
	return g
}

func TestResolveWorkers(t *testing.T) {
	g := workerGroup(t, replicasDoc)
	Assert(5, g.Count, t)
	Assert(1, len(g.Overrides), t)

	specs, errs := g.Resolve()
	if errs.Len() > 0 {
		t.Fatal(errs)
	}
	Assert(5, len(specs), t)
	for i, s := range specs {
		Assert(i, s.Index, t)
		Assert("worker", s.Role, t)
		Assert(i != 3, s.NodeSelector["foo"], t)
		Assert("a", s.NodeSelector["zone"], t)
	}

	// Untouched indices equal the default byte for byte.
	want, _ := tree.Canonical(g.Default)
	for _, i := range []int{0, 1, 2, 4} {
		got, _ := tree.Canonical(specs[i].Fields)
		Assert(string(want), string(got), t)
	}

	// The override merges resources and replaces tolerations.
	s := specs[3]
	Assert(&Range{Requests: int64(1), Limits: int64(4)}, s.Resources.CPU, t)
	Assert(&Range{Requests: "256Mi", Limits: "1Gi"}, s.Resources.Memory, t)
	Assert([]v1.Toleration{{Key: "spot", Operator: v1.TolerationOpEqual, Value: "true"}}, s.Tolerations, t)
	Assert([]v1.Toleration{{Key: "gpu", Operator: v1.TolerationOpExists, Effect: v1.TaintEffectNoSchedule}}, specs[0].Tolerations, t)

	// The group itself is left as parsed.
	Assert(true, g.Default["node_selector"].(map[string]interface{})["foo"], t)
}

func TestResolveIsDeterministic(t *testing.T) {
	first, _ := workerGroup(t, replicasDoc).Resolve()
	second, _ := workerGroup(t, replicasDoc).Resolve()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("(-first +second):\n%s", diff)
	}
}

func TestZeroCount(t *testing.T) {
	g := workerGroup(t, `default_worker: {node_selector: {a: b}}`)
	specs, errs := g.Resolve()
	Assert(0, errs.Len(), t)
	Assert(0, len(specs), t)
}

func TestOverrideOutOfRange(t *testing.T) {
	g := workerGroup(t, `
n_workers: 5
worker:
  - index: 7
    node_selector: {foo: false}
`)
	_, errs := g.Resolve()
	Assert(1, errs.Len(), t)
	e := errs.Errors[0]
	Assert(errors.ReasonMerge, e.Reason, t)
	Assert("environment.replicas.worker[0].index", e.Path, t)
	if !strings.Contains(e.Message, "index 7 out of range [0,5)") {
		t.Fatalf("unexpected message: %v", e.Message)
	}
}

func TestResolveMergeErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"duplicate index", `
n_workers: 2
worker: [{index: 1}, {index: 1}]
`},
		{"negative index", `
n_workers: 2
worker: [{index: -1}]
`},
		{"requests above limits in default", `
n_workers: 1
default_worker:
  resources: {memory: {requests: 2Gi, limits: 1Gi}}
`},
		{"requests above limits after merge", `
n_workers: 2
default_worker:
  resources: {cpu: {requests: 1, limits: 2}}
worker:
  - index: 1
    resources: {cpu: {requests: 3}}
`},
		{"fractional requests", `
n_workers: 1
default_worker:
  resources: {cpu: {requests: 1.5, limits: 1000m}}
`},
	}
	for _, c := range cases {
		_, errs := workerGroup(t, c.doc).Resolve()
		if errs.Len() == 0 {
			t.Fatalf("%s: expected an error", c.name)
		}
		Assert(errors.ReasonMerge, errs.Errors[0].Reason, t)
	}
}

func TestParseGroupSchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		n    int
	}{
		{"missing index", "n_workers: 2\nworker: [{node_selector: {a: b}}]", 1},
		{"non integer index", "n_workers: 2\nworker: [{index: a}]", 1},
		{"negative count", "n_workers: -1", 1},
		{"unknown field", "default_worker: {image: x}", 1},
		{"wrong kinds", "default_worker: {node_selector: [a], tolerations: {a: b}}", 2},
		{"bad quantity", "default_worker: {resources: {cpu: {requests: lots}}}", 1},
		{"unknown resource", "default_worker: {resources: {tpu: {requests: 1}}}", 1},
		{"overrides not a sequence", "worker: {index: 1}", 1},
		{"toleration not a mapping", "default_worker: {tolerations: [gpu]}", 1},
	}
	role, _ := RoleByName("worker")
	for _, c := range cases {
		_, errs := ParseGroup(load(t, c.doc), role, replicasPath)
		if errs.Len() != c.n {
			t.Fatalf("%s: want %d error(s), got %v", c.name, c.n, errs)
		}
		for _, e := range errs.Errors {
			Assert(errors.ReasonSchema, e.Reason, t)
		}
	}
}

func TestResolveAll(t *testing.T) {
	specs, errs := ResolveAll(load(t, replicasDoc), "tensorflow", replicasPath)
	if errs.Len() > 0 {
		t.Fatal(errs)
	}
	Assert(5, len(specs["worker"]), t)
	Assert(1, len(specs["ps"]), t)
	Assert(&Range{Requests: 0.5, Limits: int64(1)}, specs["ps"][0].Resources.CPU, t)
	_, ok := specs["master"]
	Assert(false, ok, t)
}

func TestResolveAllRejectsPSForPytorch(t *testing.T) {
	_, errs := ResolveAll(load(t, replicasDoc), "pytorch", replicasPath)
	Assert(2, errs.Len(), t)
	Assert(errors.ReasonSchema, errs.Errors[0].Reason, t)
	Assert("environment.replicas.default_ps", errs.Errors[0].Path, t)

	_, errs = ResolveAll(map[string]interface{}{"n_gpus": int64(1)}, "tensorflow", replicasPath)
	Assert(1, errs.Len(), t)
}

func TestParseResources(t *testing.T) {
	r, errs := ParseResources(map[string]interface{}{
		"gpu": map[string]interface{}{"requests": int64(1), "limits": int64(1)},
	}, tree.Path{"environment", "resources"})
	Assert(0, errs.Len(), t)
	req, limit := r.Quantity(ResourceGPU)
	Assert(int64(1), req.Value(), t)
	Assert(0, req.Cmp(*limit), t)
	cpuReq, _ := r.Quantity(ResourceCPU)
	if cpuReq != nil {
		t.Fatal("cpu is not set")
	}

	_, errs = ParseResources(map[string]interface{}{
		"cpu": map[string]interface{}{"requests": "2", "limits": "500m"},
	}, tree.Path{"environment", "resources"})
	Assert(1, errs.Len(), t)
	Assert(errors.ReasonSchema, errs.Errors[0].Reason, t)
}
