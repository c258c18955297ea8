package spec

import (
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/example"
	"github.com/kuberlab/mlspec/pkg/replica"
	"github.com/kuberlab/mlspec/pkg/schema"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

func Assert(want, got interface{}, t *testing.T) {
	if !reflect.DeepEqual(want, got) {
		_, file, line, _ := runtime.Caller(1)
		splitted := strings.Split(file, string(os.PathSeparator))
		t.Fatalf("%v:%v: Failed: got %v, want %v", splitted[len(splitted)-1], line, got, want)
	}
}

func mustCompile(doc string, t *testing.T) *Specification {
	s, err := CompileBytes([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func compileErr(doc string, t *testing.T) *errors.List {
	_, err := CompileBytes([]byte(doc))
	if err == nil {
		t.Fatal("expected an error")
	}
	l, ok := err.(*errors.List)
	if !ok {
		t.Fatalf("expected *errors.List, got %T", err)
	}
	return l
}

func layerNames(s *Specification) []string {
	var names []string
	for _, l := range s.Model.Graph.Layers {
		names = append(names, l.Name)
	}
	return names
}

func TestCompileExperiment(t *testing.T) {
	s := mustCompile(example.EXPERIMENT_EXAMPLE, t)

	Assert(1, s.Version, t)
	Assert(types.KindExperiment, s.Kind, t)
	Assert("info", s.Logging.Level, t)
	Assert([]string{"cnn", "mnist"}, s.Tags, t)
	Assert(types.FrameworkTensorflow, s.Framework, t)
	Assert([]interface{}{int64(64), int64(32)}, s.Declarations["cnn"].(map[string]interface{})["kernels"], t)

	Assert([]string{"image"}, s.Model.Graph.InputLayers, t)
	Assert([]string{"conv2d_1", "conv2d_2", "conv2d_3", "conv2d_4", "conv2d_5", "flat", "logits"}, layerNames(s), t)
	layers := s.Model.Graph.Layers
	Assert([]string{"image"}, layers[0].InboundNodes, t)
	Assert(int64(32), layers[2].Params["filters"], t)
	Assert([]interface{}{int64(2), int64(2)}, layers[2].Params["kernel_size"], t)
	Assert([]string{"conv2d_2"}, layers[3].InboundNodes, t)
	Assert([]string{"conv2d_4", "conv2d_5"}, layers[5].InboundNodes, t)
	Assert([]string{"logits"}, s.Model.Graph.OutputLayers, t)

	Assert("SigmoidCrossEntropy", s.Model.Loss.Name, t)
	Assert(0.001, s.Model.Optimizer.Params["learning_rate"], t)
	Assert(2, len(s.Model.Metrics), t)
	Assert("Accuracy", s.Model.Metrics[0].Name, t)
	Assert([]interface{}{"loss", "gradients"}, s.Model.Extra["summaries"], t)

	Assert("TFRecordImagePipeline", s.Train.DataPipeline.Name, t)
	Assert(int64(128), s.Train.DataPipeline.Params["batch_size"], t)
	Assert(false, s.Train.DataPipeline.Params["shuffle"], t)
	Assert(int64(1000), s.Train.Options["steps"], t)
	Assert(int64(32), s.Eval.DataPipeline.Params["batch_size"], t)

	Assert([]string{"data1"}, s.Environment.Persistence.Data, t)
	Assert([]string{"config1", "config2"}, s.Environment.ConfigmapRefs, t)
}

func TestCompileReplicas(t *testing.T) {
	s := mustCompile(example.EXPERIMENT_EXAMPLE, t)

	workers := s.Replicas("worker")
	Assert(5, len(workers), t)
	for i, w := range workers {
		Assert(i, w.Index, t)
		if i == 3 {
			continue
		}
		Assert(true, w.NodeSelector["foo"], t)
		Assert("gpu", w.Tolerations[0].Key, t)
		if diff := cmp.Diff(workers[0].Fields, w.Fields); diff != "" {
			t.Fatalf("worker %d differs from the default (-want +got):\n%s", i, diff)
		}
	}
	Assert(false, workers[3].NodeSelector["foo"], t)
	Assert(1, len(workers[3].Tolerations), t)
	Assert("spot", workers[3].Tolerations[0].Key, t)
	Assert("1Gi", workers[3].Resources.Memory.Limits, t)

	ps := s.Replicas("ps")
	Assert(1, len(ps), t)
	req, lim := ps[0].Resources.Quantity(replica.ResourceCPU)
	Assert("500m", req.String(), t)
	Assert("1", lim.String(), t)

	Assert(0, len(s.Replicas("master")), t)
}

func TestCompileJob(t *testing.T) {
	s := mustCompile(example.JOB_EXAMPLE, t)

	Assert(types.KindJob, s.Kind, t)
	Assert([]string{"video_prediction_train --num_epochs=10"}, s.Run.Cmd, t)
	Assert("my_image", s.Build.Image, t)
	Assert("https://github.com/org/repo", s.Build.Git.Repository, t)
	Assert("repo/jobs/train", s.Build.Git.Path, t)
	Assert("dev", s.Build.Git.Revision, t)
	Assert([]interface{}{"pip install -r requirements.txt"}, s.Build.Options["build_steps"], t)
	_, lim := s.Environment.Resources.Quantity(replica.ResourceGPU)
	Assert("1", lim.String(), t)
	Assert((*Model)(nil), s.Model, t)
}

func TestCompileGroupAndNotebook(t *testing.T) {
	g := mustCompile(example.GROUP_EXAMPLE, t)
	Assert(types.KindGroup, g.Kind, t)
	Assert(int64(2), g.HPTuning["concurrency"], t)
	Assert([]string{"python", "train.py"}, g.Run.Cmd, t)

	n := mustCompile(example.NOTEBOOK_EXAMPLE, t)
	Assert("jupyter/tensorflow-notebook", n.Build.Image, t)
	Assert((*Run)(nil), n.Run, t)
}

func TestCompileDeterministic(t *testing.T) {
	a := mustCompile(example.EXPERIMENT_EXAMPLE, t)
	b := mustCompile(example.EXPERIMENT_EXAMPLE, t)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("compilations differ (-a +b):\n%s", diff)
	}
}

func TestFingerprint(t *testing.T) {
	yamlDoc := mustCompile("version: 1\nkind: job\nrun:\n  cmd: train\ntags: [a]\n", t)
	jsonDoc := mustCompile(`{"tags": ["a"], "run": {"cmd": "train"}, "kind": "job", "version": 1}`, t)
	Assert(yamlDoc.Fingerprint, jsonDoc.Fingerprint, t)
	Assert(yamlDoc.UUID, jsonDoc.UUID, t)

	other := mustCompile("version: 1\nkind: job\nrun:\n  cmd: eval\n", t)
	if other.UUID == yamlDoc.UUID {
		t.Fatal("different documents share a uuid")
	}
}

func TestCompileDoesNotTouchInput(t *testing.T) {
	doc, err := tree.Load([]byte(example.EXPERIMENT_EXAMPLE))
	if err != nil {
		t.Fatal(err)
	}
	before := tree.Copy(doc)
	if _, err := Compile(doc); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, doc); diff != "" {
		t.Fatalf("input changed (-before +after):\n%s", diff)
	}
}

func TestHeaderErrors(t *testing.T) {
	cases := []struct {
		doc  string
		text string
	}{
		{"kind: job\nrun: {cmd: a}\n", `missing required key "version"`},
		{"version: 2\nkind: job\nrun: {cmd: a}\n", "unsupported version 2"},
		{"version: 1\nkind: pod\n", `unknown kind "pod"`},
		{"version: 1\nkind: job\n", "kind job requires one of [run]"},
		{"version: 1\nkind: job\nrun: {cmd: a}\nmodel: {}\n", `section "model" is not allowed for kind job`},
		{"version: 1\nkind: job\nrun: {cmd: a}\nsettings: {}\n", `unknown key "settings"`},
		{"- a\n- b\n", "document must be a mapping"},
	}
	for _, c := range cases {
		l := compileErr(c.doc, t)
		Assert(schema.HeaderSection, l.Section, t)
		Assert(errors.ReasonSchema, errors.ReasonOf(l), t)
		if !strings.Contains(l.Error(), c.text) {
			t.Fatalf("%q: expected %q in %v", c.doc, c.text, l)
		}
	}
}

func TestFailFast(t *testing.T) {
	doc := strings.Replace(example.EXPERIMENT_EXAMPLE, "- index: 3", "- index: 7", 1)
	// A broken model must not be reported: environment fails first.
	doc = strings.Replace(doc, "output_layers: logits", "output_layers: missing", 1)

	l := compileErr(doc, t)
	Assert(types.SectionEnvironment, l.Section, t)
	Assert(1, l.Len(), t)
	Assert(errors.ReasonMerge, l.Errors[0].Reason, t)
	Assert("environment.replicas.worker[0].index", l.Errors[0].Path, t)
	if !strings.Contains(l.Errors[0].Message, "index 7 out of range [0,5)") {
		t.Fatalf("unexpected message %q", l.Errors[0].Message)
	}
}

func TestSectionErrorsAreBatched(t *testing.T) {
	doc := strings.Replace(example.EXPERIMENT_EXAMPLE, "shuffle: False", "shuffle: \"False\"\n      dynamic_pad: 1", 1)

	l := compileErr(doc, t)
	Assert(types.SectionTrain, l.Section, t)
	Assert(2, l.Len(), t)
	for _, e := range l.Errors {
		Assert(errors.ReasonSchema, e.Reason, t)
	}
	Assert("train.data_pipeline.TFRecordImagePipeline.shuffle", l.Errors[0].Path, t)
	Assert("train.data_pipeline.TFRecordImagePipeline.dynamic_pad", l.Errors[1].Path, t)
}

func TestSectionErrors(t *testing.T) {
	cases := []struct {
		name    string
		old     string
		new     string
		section string
		reason  errors.Reason
	}{
		{"framework", "framework: tensorflow", "framework: caffe", types.SectionFramework, errors.ReasonSchema},
		{"log level", "level: INFO", "level: LOUD", types.SectionLogging, errors.ReasonSchema},
		{"declaration name", "batch_size: 128", "batch-size: 128", types.SectionDeclarations, errors.ReasonSchema},
		{"unknown declaration", "\"{{ batch_size }}\"", "\"{{ batch }}\"", types.SectionTrain, errors.ReasonResolution},
		{"forward reference", "inbound_nodes: flat", "inbound_nodes: later", types.SectionModel, errors.ReasonReference},
		{"loss reference", "output_layer: logits", "output_layer: dense", types.SectionModel, errors.ReasonReference},
		{"tag index", "\"tags.tag1[1]\"", "\"tags.tag1[9]\"", types.SectionModel, errors.ReasonReference},
		{"loop length", "len: \"{{ cnn.kernels|length }}\"", "len: \"{{ cnn.kernels }}\"", types.SectionModel, errors.ReasonType},
		{"unclosed template", "\"{{ learning_rate }}\"", "\"{{ learning_rate \"", types.SectionModel, errors.ReasonSyntax},
		{"requests above limits", "requests: 256Mi", "requests: 2Gi", types.SectionEnvironment, errors.ReasonMerge},
		{"ps for pytorch", "framework: tensorflow", "framework: pytorch", types.SectionEnvironment, errors.ReasonSchema},
		{"unknown environment key", "secret_refs:", "secrets:", types.SectionEnvironment, errors.ReasonSchema},
	}
	for _, c := range cases {
		doc := strings.Replace(example.EXPERIMENT_EXAMPLE, c.old, c.new, 1)
		if doc == example.EXPERIMENT_EXAMPLE {
			t.Fatalf("%s: fixture does not contain %q", c.name, c.old)
		}
		l := compileErr(doc, t)
		if l.Section != c.section || !errors.Is(l, c.reason) {
			t.Fatalf("%s: expected %s in section %s, got %v", c.name, c.reason, c.section, l)
		}
	}
}

func TestElseBranch(t *testing.T) {
	doc := strings.Replace(example.EXPERIMENT_EXAMPLE, "32 == {{ cnn.kernels[1] }}", "16 == {{ cnn.kernels[1] }}", 1)
	doc = strings.Replace(doc, "inbound_nodes: tags.tag2", "inbound_nodes: tags.tag1", 1)
	s := mustCompile(doc, t)
	Assert([]string{"conv2d_1", "conv2d_2", "conv2d_3", "maxpooling2d_1", "flat", "logits"}, layerNames(s), t)
	Assert([]string{"conv2d_1", "conv2d_2", "conv2d_3"}, s.Model.Graph.Layers[4].InboundNodes, t)
}

func TestDeepCopy(t *testing.T) {
	s := mustCompile(example.EXPERIMENT_EXAMPLE, t)
	c := s.DeepCopy()
	if diff := cmp.Diff(s, c); diff != "" {
		t.Fatalf("copy differs (-want +got):\n%s", diff)
	}
	c.Tags[0] = "changed"
	c.Model.Graph.Layers[0].Params["filters"] = int64(1)
	c.Environment.Replicas["worker"][0].NodeSelector["foo"] = "changed"
	Assert("cnn", s.Tags[0], t)
	Assert(int64(64), s.Model.Graph.Layers[0].Params["filters"], t)
	Assert(true, s.Environment.Replicas["worker"][0].NodeSelector["foo"], t)
	Assert((*Specification)(nil), (*Specification)(nil).DeepCopy(), t)
}

func TestCache(t *testing.T) {
	doc, err := tree.Load([]byte(example.EXPERIMENT_EXAMPLE))
	if err != nil {
		t.Fatal(err)
	}
	cache := NewCache(nil)

	var wg sync.WaitGroup
	results := make([]*Specification, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := cache.Compile(doc)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = s
		}(i)
	}
	wg.Wait()
	Assert(1, cache.Len(), t)
	for _, s := range results[1:] {
		if diff := cmp.Diff(results[0], s); diff != "" {
			t.Fatalf("cached results differ (-want +got):\n%s", diff)
		}
	}

	results[0].Tags[0] = "changed"
	again, err := cache.Compile(doc)
	if err != nil {
		t.Fatal(err)
	}
	Assert("cnn", again.Tags[0], t)

	cache.Forget(again.Fingerprint)
	Assert(0, cache.Len(), t)
}

func TestCacheKeepsNoFailures(t *testing.T) {
	doc, err := tree.Load([]byte("version: 1\nkind: job\n"))
	if err != nil {
		t.Fatal(err)
	}
	cache := NewCache(NewCompiler())
	for i := 0; i < 2; i++ {
		if _, err := cache.Compile(doc); !errors.Is(err, errors.ReasonSchema) {
			t.Fatalf("expected a schema error, got %v", err)
		}
	}
	Assert(0, cache.Len(), t)
}

func TestCompilerVersions(t *testing.T) {
	c := &Compiler{MinVersion: 2, MaxVersion: 3}
	doc, _ := tree.Load([]byte(example.JOB_EXAMPLE))
	_, err := c.Compile(doc)
	if !errors.Is(err, errors.ReasonSchema) || !strings.Contains(err.Error(), "supported [2,3]") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRender(t *testing.T) {
	s := mustCompile(example.EXPERIMENT_EXAMPLE, t)
	out, err := Render(s, `{{ .Kind }} {{ len .Tags }} {{ index .Model.Graph.OutputLayers 0 }} {{ .Framework | upper }}`)
	if err != nil {
		t.Fatal(err)
	}
	Assert("experiment 2 logits TENSORFLOW", out, t)

	if _, err := Render(s, "{{ .Missing }}"); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}
