package spec

import (
	"sort"

	"github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"

	"github.com/kuberlab/mlspec/pkg/apputil"
	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/graph"
	"github.com/kuberlab/mlspec/pkg/replica"
	"github.com/kuberlab/mlspec/pkg/schema"
	"github.com/kuberlab/mlspec/pkg/template"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

var frameworks = []string{
	types.FrameworkTensorflow,
	types.FrameworkPytorch,
	types.FrameworkMXNet,
	types.FrameworkHorovod,
}

func (c *compilation) logging(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	m := out.(map[string]interface{})
	l := &Logging{Level: c.spec.Logging.Level}
	if s, ok := m["level"].(string); ok {
		lvl, err := logrus.ParseLevel(s)
		if err != nil {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key("level"), "unknown log level %q", s))
			return errs
		}
		l.Level = lvl.String()
	}
	l.Formatter, _ = m["formatter"].(string)
	l.Path, _ = m["path"].(string)
	c.spec.Logging = l
	return errs
}

func (c *compilation) tags(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	list, _ := tree.AsStrings(out)
	seen := make(map[string]bool, len(list))
	for _, tag := range list {
		if !seen[tag] {
			seen[tag] = true
			c.spec.Tags = append(c.spec.Tags, tag)
		}
	}
	sort.Strings(c.spec.Tags)
	return errs
}

func (c *compilation) backend(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	c.spec.Backend = out.(string)
	return errs
}

func (c *compilation) framework(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	name := out.(string)
	if contains(frameworks, name) {
		c.spec.Framework = name
		return errs
	}
	errs.Add(errors.Newf(errors.ReasonSchema, path, "unknown framework %q, expected one of %v", name, frameworks))
	return errs
}

// Declarations are constants: they are not resolved and seed the root scope
// of every later section.
func (c *compilation) declarations(v interface{}, path tree.Path) *errors.List {
	errs := schema.CheckDeclarations(v)
	if errs.Len() > 0 {
		return errs
	}
	m := v.(map[string]interface{})
	c.spec.Declarations = tree.Copy(m).(map[string]interface{})
	c.env = template.NewEnvironment(m)
	return errs
}

func (c *compilation) environment(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	m := out.(map[string]interface{})
	env := &Environment{}

	if p, ok := m["persistence"].(map[string]interface{}); ok {
		data, _ := tree.AsStrings(p["data"])
		outputs, _ := p["outputs"].(string)
		env.Persistence = &Persistence{Data: data, Outputs: outputs}
	}
	env.SecretRefs, _ = tree.AsStrings(m["secret_refs"])
	env.ConfigmapRefs, _ = tree.AsStrings(m["configmap_refs"])
	env.NodeSelector, _ = m["node_selector"].(map[string]interface{})

	if t, ok := m["tolerations"]; ok && t != nil {
		if err := tree.Decode(t, &env.Tolerations); err != nil {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key("tolerations"), "invalid tolerations: %v", err))
		}
	}
	if a, ok := m["affinity"]; ok && a != nil {
		env.Affinity = &v1.Affinity{}
		if err := tree.Decode(a, env.Affinity); err != nil {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key("affinity"), "invalid affinity: %v", err))
		}
	}
	resources, rerrs := replica.ParseResources(m["resources"], path.Key("resources"))
	errs.Extend(rerrs)
	env.Resources = resources

	replicas, rerrs := replica.ResolveAll(m["replicas"], c.spec.Framework, path.Key("replicas"))
	errs.Extend(rerrs)
	env.Replicas = replicas

	if errs.Len() == 0 {
		c.spec.Environment = env
	}
	return errs
}

func (c *compilation) model(v interface{}, path tree.Path) *errors.List {
	errs := errors.NewList(path.Section())
	m, ok := v.(map[string]interface{})
	if !ok {
		errs.Add(errors.Newf(errors.ReasonSchema, path, "must be a mapping, got %v", tree.KindOf(v)))
		return errs
	}
	// The graph holds loop scoped expressions, it is expanded on its own.
	rest := make(map[string]interface{}, len(m))
	for k, val := range m {
		if k != "graph" {
			rest[k] = val
		}
	}
	resolved, rerrs := template.ResolveTree(rest, c.env, path)
	if rerrs.Len() > 0 {
		return rerrs
	}
	fields := resolved.(map[string]interface{})
	shape := make(map[string]interface{}, len(fields)+1)
	for k, val := range fields {
		shape[k] = val
	}
	if g, ok := m["graph"]; ok {
		shape["graph"] = g
	}
	if errs = schema.CheckSection(types.SectionModel, shape); errs.Len() > 0 {
		return errs
	}

	model := &Model{}
	if g, ok := m["graph"]; ok && g != nil {
		built, gerrs := graph.Build(g, c.env, path.Key("graph"))
		if gerrs.Len() > 0 {
			return gerrs
		}
		model.Graph = built
	}
	var err *errors.Error
	if l, ok := fields["loss"]; ok && l != nil {
		if model.Loss, err = parseNamed(l, path.Key("loss")); err != nil {
			errs.Add(err)
		}
	}
	if o, ok := fields["optimizer"]; ok && o != nil {
		if model.Optimizer, err = parseNamed(o, path.Key("optimizer")); err != nil {
			errs.Add(err)
		}
	}
	if metrics, ok := fields["metrics"].([]interface{}); ok {
		for i, item := range metrics {
			n, err := parseNamed(item, path.Key("metrics").Index(i))
			if err != nil {
				errs.Add(err)
				continue
			}
			model.Metrics = append(model.Metrics, *n)
		}
	}
	for _, k := range tree.SortedKeys(fields) {
		switch k {
		case "loss", "optimizer", "metrics":
		default:
			if model.Extra == nil {
				model.Extra = make(map[string]interface{})
			}
			model.Extra[k] = fields[k]
		}
	}
	if model.Loss != nil {
		checkLayerRefs(model.Loss, model.Graph, path.Key("loss").Key(model.Loss.Name), errs)
	}
	if errs.Len() == 0 {
		c.spec.Model = model
	}
	return errs
}

// checkLayerRefs makes sure the input_layer and output_layer parameters of a
// loss name layers of the graph. A reference is a layer name or a sequence
// starting with one.
func checkLayerRefs(n *Named, g *graph.Graph, path tree.Path, errs *errors.List) {
	for _, key := range []string{"input_layer", "output_layer"} {
		v, ok := n.Params[key]
		if !ok || v == nil {
			continue
		}
		name, isString := v.(string)
		if seq, isSeq := v.([]interface{}); isSeq && len(seq) > 0 {
			name, isString = seq[0].(string)
		}
		if !isString {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(key), "must name a layer, got %v", tree.KindOf(v)))
			continue
		}
		if !g.Has(name) {
			errs.Add(errors.Newf(errors.ReasonReference, path.Key(key), "unknown layer %q", name))
		}
	}
}

func parseNamed(v interface{}, path tree.Path) (*Named, *errors.Error) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, errors.New(errors.ReasonSchema, path, "name must not be empty")
		}
		return &Named{Name: t}, nil
	case map[string]interface{}:
		if len(t) != 1 {
			return nil, errors.New(errors.ReasonSchema, path, "must be a name or a single key mapping of a name to its parameters")
		}
		for name, p := range t {
			if p == nil {
				return &Named{Name: name}, nil
			}
			params, ok := p.(map[string]interface{})
			if !ok {
				return nil, errors.Newf(errors.ReasonSchema, path.Key(name), "parameters must be a mapping, got %v", tree.KindOf(p))
			}
			return &Named{Name: name, Params: params}, nil
		}
	}
	return nil, errors.Newf(errors.ReasonSchema, path, "must be a string or a mapping, got %v", tree.KindOf(v))
}

func (c *compilation) stage(v interface{}, path tree.Path) (*Stage, *errors.List) {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return nil, errs
	}
	m := out.(map[string]interface{})
	st := &Stage{}
	for _, k := range tree.SortedKeys(m) {
		if k == "data_pipeline" {
			continue
		}
		if st.Options == nil {
			st.Options = make(map[string]interface{})
		}
		st.Options[k] = m[k]
	}
	if p, ok := m["data_pipeline"]; ok && p != nil {
		n, err := parseNamed(p, path.Key("data_pipeline"))
		if err != nil {
			errs.Add(err)
			return nil, errs
		}
		schema.CheckFlags(n.Params, path.Key("data_pipeline").Key(n.Name), errs)
		st.DataPipeline = n
	}
	if errs.Len() > 0 {
		return nil, errs
	}
	return st, errs
}

func (c *compilation) train(v interface{}, path tree.Path) *errors.List {
	st, errs := c.stage(v, path)
	c.spec.Train = st
	return errs
}

func (c *compilation) eval(v interface{}, path tree.Path) *errors.List {
	st, errs := c.stage(v, path)
	c.spec.Eval = st
	return errs
}

func options(m map[string]interface{}, skip ...string) map[string]interface{} {
	var out map[string]interface{}
	for _, k := range tree.SortedKeys(m) {
		if contains(skip, k) {
			continue
		}
		if out == nil {
			out = make(map[string]interface{}, len(m))
		}
		out[k] = m[k]
	}
	return out
}

func (c *compilation) build(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	m := out.(map[string]interface{})
	b := &Build{Image: m["image"].(string), Options: options(m, "image", "git")}
	if g, ok := m["git"].(string); ok {
		src, err := apputil.ParseGitSource(g)
		if err != nil {
			errs.Add(errors.Smart(errors.ReasonSchema, errors.Path(path.Key("git")), err))
			return errs
		}
		b.Git = &src
	}
	c.spec.Build = b
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

func (c *compilation) run(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	m := out.(map[string]interface{})
	cmd, _ := tree.AsStrings(m["cmd"])
	if len(cmd) == 0 {
		errs.Add(errors.New(errors.ReasonSchema, path.Key("cmd"), "must not be empty"))
		return errs
	}
	c.spec.Run = &Run{Cmd: cmd, Options: options(m, "cmd")}
	return errs
}

func (c *compilation) hptuning(v interface{}, path tree.Path) *errors.List {
	out, errs := c.resolve(v, path)
	if errs.Len() > 0 {
		return errs
	}
	c.spec.HPTuning = out.(map[string]interface{})
	return errs
}
