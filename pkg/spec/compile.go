package spec

import (
	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/schema"
	"github.com/kuberlab/mlspec/pkg/template"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

// Namespace of the name based UUIDs given to compiled specifications.
var Namespace = uuid.Parse("8d6bd1a4-0f61-5e0c-9b8e-2c7d3a4f5b61")

type Compiler struct {
	MinVersion int
	MaxVersion int
}

func NewCompiler() *Compiler {
	return &Compiler{MinVersion: schema.MinVersion, MaxVersion: schema.MaxVersion}
}

// Compile compiles a document with the default supported version range.
func Compile(doc interface{}) (*Specification, error) {
	return NewCompiler().Compile(doc)
}

// CompileBytes loads YAML or JSON text and compiles it.
func CompileBytes(data []byte) (*Specification, error) {
	doc, err := tree.Load(data)
	if err != nil {
		l := errors.NewList(schema.HeaderSection)
		l.Add(errors.Smart(errors.ReasonSchema, err))
		return nil, l
	}
	return Compile(doc)
}

type compilation struct {
	spec *Specification
	doc  map[string]interface{}
	env  *template.Environment
}

type sectionFunc func(c *compilation, v interface{}, path tree.Path) *errors.List

var sections = map[string]sectionFunc{
	types.SectionLogging:      (*compilation).logging,
	types.SectionTags:         (*compilation).tags,
	types.SectionBackend:      (*compilation).backend,
	types.SectionFramework:    (*compilation).framework,
	types.SectionDeclarations: (*compilation).declarations,
	types.SectionEnvironment:  (*compilation).environment,
	types.SectionModel:        (*compilation).model,
	types.SectionTrain:        (*compilation).train,
	types.SectionEval:         (*compilation).eval,
	types.SectionBuild:        (*compilation).build,
	types.SectionRun:          (*compilation).run,
	types.SectionHPTuning:     (*compilation).hptuning,
}

// Compile validates and resolves doc section by section. Every error of a
// section is reported; the first failing section stops the compilation and
// its *errors.List is returned.
func (cc *Compiler) Compile(doc interface{}) (*Specification, error) {
	norm, err := tree.Normalize(doc)
	if err != nil {
		l := errors.NewList(schema.HeaderSection)
		l.Add(errors.Smart(errors.ReasonSchema, err))
		return nil, l
	}
	h, errs := schema.CheckHeaders(norm, cc.MinVersion, cc.MaxVersion)
	if errs.Len() > 0 {
		return nil, errs
	}
	fp, err := tree.Fingerprint(norm)
	if err != nil {
		l := errors.NewList(schema.HeaderSection)
		l.Add(errors.Smart(errors.ReasonSchema, err))
		return nil, l
	}

	c := &compilation{
		spec: &Specification{
			Version:     h.Version,
			Kind:        h.Kind,
			Fingerprint: fp,
			UUID:        uuid.NewSHA1(Namespace, []byte(fp)).String(),
			Logging:     &Logging{Level: logrus.InfoLevel.String()},
		},
		doc: norm.(map[string]interface{}),
		env: template.NewEnvironment(nil),
	}
	for _, name := range schema.Order[2:] {
		v, ok := c.doc[name]
		if !ok || v == nil {
			continue
		}
		logrus.Debugf("Compiling section %s", name)
		if errs := sections[name](c, v, tree.Path{name}); errs.Len() > 0 {
			logrus.Debugf("Section %s failed with %d error(s)", name, errs.Len())
			return nil, errs
		}
	}
	return c.spec, nil
}

// resolve evaluates the templates of a section and checks its shape.
func (c *compilation) resolve(v interface{}, path tree.Path) (interface{}, *errors.List) {
	out, errs := template.ResolveTree(v, c.env, path)
	if errs.Len() > 0 {
		return nil, errs
	}
	errs = schema.CheckSection(path.Section(), out)
	if errs.Len() > 0 {
		return nil, errs
	}
	return out, errs
}
