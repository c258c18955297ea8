// Package template evaluates the "{{ expr }}" spans embedded in scalar
// strings of a specification document.
package template

import (
	"strconv"
	"strings"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

type span struct {
	start, end int // bounds of the whole "{{ ... }}" block
	expr       string
	exprStart  int
}

// IsTemplate reports whether s carries at least one expression span.
func IsTemplate(s string) bool {
	return strings.Contains(s, openDelim)
}

func scan(s string, path tree.Path) ([]span, error) {
	var spans []span
	pos := 0
	for {
		i := strings.Index(s[pos:], openDelim)
		if i < 0 {
			return spans, nil
		}
		start := pos + i
		j := strings.Index(s[start+len(openDelim):], closeDelim)
		if j < 0 {
			return nil, errors.Smart(errors.ReasonSyntax, errors.Path(path), errors.Offset(start),
				"unclosed "+openDelim+" in "+strconv.Quote(s))
		}
		exprStart := start + len(openDelim)
		end := exprStart + j + len(closeDelim)
		spans = append(spans, span{start: start, end: end, expr: s[exprStart : exprStart+j], exprStart: exprStart})
		pos = end
	}
}

// Resolve evaluates a scalar string against env. Plain strings come back
// unchanged. A string made of a single span yields the native value of the
// expression; otherwise every span is rendered as text in place.
func Resolve(s string, env *Environment, path tree.Path) (interface{}, error) {
	spans, err := scan(s, path)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return s, nil
	}
	if len(spans) == 1 {
		sp := spans[0]
		if strings.TrimSpace(s[:sp.start]) == "" && strings.TrimSpace(s[sp.end:]) == "" {
			return evaluate(sp.expr, sp.exprStart, s, env, path)
		}
	}
	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		b.WriteString(s[pos:sp.start])
		v, err := evaluate(sp.expr, sp.exprStart, s, env, path)
		if err != nil {
			return nil, err
		}
		text, err := render(v, sp.expr, path)
		if err != nil {
			return nil, err
		}
		b.WriteString(text)
		pos = sp.end
	}
	b.WriteString(s[pos:])
	return b.String(), nil
}

// Evaluate evaluates a bare expression, without delimiters.
func Evaluate(expr string, env *Environment, path tree.Path) (interface{}, error) {
	return evaluate(expr, 0, expr, env, path)
}

// Expression evaluates s as a single expression in which every "{{ expr }}"
// span stands for its value. Values are bound, never pasted back as source,
// so "'relu' == {{ act }}" compares two strings.
func Expression(s string, env *Environment, path tree.Path) (interface{}, error) {
	ev := &evaluator{env: env, path: path, src: s, spans: true}
	return ev.run(s)
}

// ResolveValue resolves v when it is a string and returns it unchanged
// otherwise.
func ResolveValue(v interface{}, env *Environment, path tree.Path) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	return Resolve(s, env, path)
}

// ResolveTree returns a resolved copy of v. Every failing string is
// reported, the walk does not stop at the first error.
func ResolveTree(v interface{}, env *Environment, path tree.Path) (interface{}, *errors.List) {
	errs := errors.NewList(path.Section())
	out := resolveTree(v, env, path, errs)
	return out, errs
}

func resolveTree(v interface{}, env *Environment, path tree.Path, errs *errors.List) interface{} {
	switch t := v.(type) {
	case string:
		if !IsTemplate(t) {
			return t
		}
		r, err := Resolve(t, env, path)
		if err != nil {
			errs.Append(errors.ReasonResolution, path, err)
			return t
		}
		return r
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = resolveTree(item, env, path.Index(i), errs)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for _, k := range tree.SortedKeys(t) {
			out[k] = resolveTree(t[k], env, path.Key(k), errs)
		}
		return out
	}
	return v
}

func render(v interface{}, expr string, path tree.Path) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	return "", errors.Newf(errors.ReasonType, path,
		"cannot concatenate %v value of %q with text", tree.KindOf(v), expr)
}
