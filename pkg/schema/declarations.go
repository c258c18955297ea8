package schema

import (
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
	"github.com/kuberlab/mlspec/pkg/types"
)

var keywords = map[string]bool{"true": true, "false": true, "null": true}

// ValidIdentifier reports whether name can be referenced from an
// expression. HCL lexes "a-b" as one identifier but expressions here read it
// as a subtraction, so dashes are refused.
func ValidIdentifier(name string) bool {
	return hclsyntax.ValidIdentifier(name) && !strings.Contains(name, "-") && !keywords[name]
}

// CheckDeclarations checks the declarations section: a mapping whose keys
// are valid identifiers.
func CheckDeclarations(v interface{}) *errors.List {
	errs := CheckSection(types.SectionDeclarations, v)
	m, ok := v.(map[string]interface{})
	if !ok {
		return errs
	}
	path := tree.Path{types.SectionDeclarations}
	for _, k := range tree.SortedKeys(m) {
		if !ValidIdentifier(k) {
			errs.Add(errors.Newf(errors.ReasonSchema, path.Key(k), "%q is not a valid identifier", k))
		}
	}
	return errs
}
