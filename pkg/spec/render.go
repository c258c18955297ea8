package spec

import (
	"github.com/kuberlab/mlspec/pkg/apputil"
)

// Render executes a Go template against a compiled specification. Sprig
// functions, toYaml and toJson are available.
func Render(s *Specification, tpl string) (string, error) {
	return apputil.GetTemplate(tpl, s)
}
