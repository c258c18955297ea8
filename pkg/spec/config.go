// Package spec compiles a specification document into its resolved,
// immutable configuration.
package spec

import (
	"github.com/mitchellh/copystructure"
	v1 "k8s.io/api/core/v1"

	"github.com/kuberlab/mlspec/pkg/apputil"
	"github.com/kuberlab/mlspec/pkg/graph"
	"github.com/kuberlab/mlspec/pkg/replica"
	"github.com/kuberlab/mlspec/pkg/types"
)

// Specification is a compiled document. It shares nothing with the input
// tree nor with other compilations.
type Specification struct {
	Version      int                    `json:"version"`
	Kind         types.Kind             `json:"kind"`
	Fingerprint  string                 `json:"fingerprint"`
	UUID         string                 `json:"uuid"`
	Logging      *Logging               `json:"logging,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Backend      string                 `json:"backend,omitempty"`
	Framework    string                 `json:"framework,omitempty"`
	Declarations map[string]interface{} `json:"declarations,omitempty"`
	Environment  *Environment           `json:"environment,omitempty"`
	Model        *Model                 `json:"model,omitempty"`
	Train        *Stage                 `json:"train,omitempty"`
	Eval         *Stage                 `json:"eval,omitempty"`
	Build        *Build                 `json:"build,omitempty"`
	Run          *Run                   `json:"run,omitempty"`
	HPTuning     map[string]interface{} `json:"hptuning,omitempty"`
}

type Logging struct {
	Level     string `json:"level"`
	Formatter string `json:"formatter,omitempty"`
	Path      string `json:"path,omitempty"`
}

type Persistence struct {
	Data    []string `json:"data,omitempty"`
	Outputs string   `json:"outputs,omitempty"`
}

type Environment struct {
	Persistence   *Persistence              `json:"persistence,omitempty"`
	SecretRefs    []string                  `json:"secret_refs,omitempty"`
	ConfigmapRefs []string                  `json:"configmap_refs,omitempty"`
	NodeSelector  map[string]interface{}    `json:"node_selector,omitempty"`
	Tolerations   []v1.Toleration           `json:"tolerations,omitempty"`
	Affinity      *v1.Affinity              `json:"affinity,omitempty"`
	Resources     *replica.Resources        `json:"resources,omitempty"`
	Replicas      map[string][]replica.Spec `json:"replicas,omitempty"`
}

// Named is an opaque identifier, a loss or a pipeline class for instance,
// with its parameters.
type Named struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type Model struct {
	Graph     *graph.Graph           `json:"graph,omitempty"`
	Loss      *Named                 `json:"loss,omitempty"`
	Optimizer *Named                 `json:"optimizer,omitempty"`
	Metrics   []Named                `json:"metrics,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Stage is a train or eval section.
type Stage struct {
	DataPipeline *Named                 `json:"data_pipeline,omitempty"`
	Options      map[string]interface{} `json:"options,omitempty"`
}

type Build struct {
	Image   string                 `json:"image"`
	Git     *apputil.GitSource     `json:"git,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type Run struct {
	Cmd     []string               `json:"cmd"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// Replicas returns the resolved specs of a role, nil when the role is absent.
func (s *Specification) Replicas(role string) []replica.Spec {
	if s == nil || s.Environment == nil {
		return nil
	}
	return s.Environment.Replicas[role]
}

// DeepCopy returns a copy sharing no memory with s.
func (s *Specification) DeepCopy() *Specification {
	if s == nil {
		return nil
	}
	c, err := copystructure.Copy(s)
	if err != nil {
		panic(err)
	}
	return c.(*Specification)
}
