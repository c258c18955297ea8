package template

import (
	"os"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

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

func declarations() *Environment {
	return NewEnvironment(map[string]interface{}{
		"rate": 0.5,
		"cnn": map[string]interface{}{
			"kernels": []interface{}{int64(64), int64(32)},
			"name":    "conv",
		},
		"flags": map[string]interface{}{"train": true},
	})
}

var path = tree.Path{"model"}.Key("graph")

func TestResolveNative(t *testing.T) {
	env := declarations()
	cases := []struct {
		src  string
		want interface{}
	}{
		{"plain text", "plain text"},
		{"{{ cnn.kernels[1] }}", int64(32)},
		{"  {{ cnn.kernels }}  ", []interface{}{int64(64), int64(32)}},
		{"{{ cnn.kernels|length }}", int64(2)},
		{"{{ cnn.kernels | length }}", int64(2)},
		{"{{ cnn.name|length }}", int64(4)},
		{"{{ cnn['name'] }}", "conv"},
		{"{{ rate * 2 }}", 1.0},
		{"{{ 7 / 2 }}", 3.5},
		{"{{ 6 / 3 }}", 2.0},
		{"{{ 7 % 2 }}", int64(1)},
		{"{{ cnn.kernels[0] - 4 * 2 }}", int64(56)},
		{"{{ -cnn.kernels[1] }}", int64(-32)},
		{"{{ 'a' + \"b\" }}", "ab"},
		{"{{ cnn.kernels[0] > 32 && flags.train }}", true},
		{"{{ cnn.kernels[0] < 32 || !flags.train }}", false},
		{"{{ (1 + 2) * 3 }}", int64(9)},
		{"{{ [1, 2][1] }}", int64(2)},
		{"{{ null == cnn.name }}", false},
		{"{{ 2 == 2.0 }}", true},
		{"{{ 'a|b' }}", "a|b"},
		{"{{ 'a${b}' }}", "a${b}"},
		{"{{ cnn.kernels|length - 1 }}", int64(1)},
		{"{{ cnn.kernels|length == 2 }}", true},
		{"{{ (cnn.kernels|length) * 2 }}", int64(4)},
		{"{{ cnn.kernels[0]-4 }}", int64(60)},
		{"{{ cnn.kernels[0]-cnn.kernels[1] }}", int64(32)},
		{"{{ 1e-1 }}", 0.1},
	}
	for _, c := range cases {
		got, err := Resolve(c.src, env, path)
		if err != nil {
			t.Fatalf("%s: %v", c.src, err)
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Fatalf("%s: (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestResolveText(t *testing.T) {
	env := declarations().With("index", int64(0))
	got, err := Resolve("{{ cnn.name }}_{{ index }}", env, path)
	Assert(nil, err, t)
	Assert("conv_0", got, t)

	got, err = Resolve("32 == {{ cnn.kernels[1] }}", env, path)
	Assert(nil, err, t)
	Assert("32 == 32", got, t)

	got, err = Resolve("rate={{ rate }} train={{ flags.train }}", env, path)
	Assert(nil, err, t)
	Assert("rate=0.5 train=true", got, t)
}

func TestResolveSubtractionWithoutSpaces(t *testing.T) {
	env := declarations().With("index", int64(2)).With("n_layers", int64(5))
	got, err := Resolve("{{ index-1 }}", env, path)
	Assert(nil, err, t)
	Assert(int64(1), got, t)

	got, err = Resolve("{{ n_layers-1 }}", env, path)
	Assert(nil, err, t)
	Assert(int64(4), got, t)

	got, err = Resolve("dense_{{ index-1 }}", env, path)
	Assert(nil, err, t)
	Assert("dense_1", got, t)
}

func TestExpressionBindsSpanValues(t *testing.T) {
	env := declarations().With("act", "relu").With("mode", "lr").With("lr", 0.1)
	cases := []struct {
		src  string
		want interface{}
	}{
		{"'relu' == {{ act }}", true},
		{"{{ act }} == 'relu'", true},
		{"{{ act }} == 'tanh'", false},
		{"{{ act }} == {{ act }}", true},
		{"32 == {{ cnn.kernels[1] }}", true},
		{"{{ cnn.kernels|length }} > 1 && {{ flags.train }}", true},
		{"{{ cnn.name }} == 'conv'", true},
		{"cnn.kernels[0] == 64", true},
	}
	for _, c := range cases {
		got, err := Expression(c.src, env, path)
		if err != nil {
			t.Fatalf("%s: %v", c.src, err)
		}
		Assert(c.want, got, t)
	}

	// A string value is never read back as an identifier.
	_, err := Expression("{{ mode }} == 0.1", env, path)
	Assert(errors.ReasonType, errors.ReasonOf(err), t)

	env = env.With("code", "1 + 1")
	got, err := Expression("{{ code }} == '1 + 1'", env, path)
	Assert(nil, err, t)
	Assert(true, got, t)

	_, err = Expression("{{ act }} == 'relu", env, path)
	Assert(errors.ReasonSyntax, errors.ReasonOf(err), t)
	_, err = Expression("{{ missing }} == 1", env, path)
	Assert(errors.ReasonResolution, errors.ReasonOf(err), t)
}

func TestEvaluateConditionString(t *testing.T) {
	env := declarations()
	s, err := Resolve("32 == {{ cnn.kernels[1] }}", env, path)
	Assert(nil, err, t)
	got, err := Evaluate(s.(string), env, path)
	Assert(nil, err, t)
	Assert(true, got, t)
}

func TestResolveErrors(t *testing.T) {
	env := declarations()
	cases := []struct {
		src    string
		reason errors.Reason
	}{
		{"{{ missing }}", errors.ReasonResolution},
		{"{{ cnn.filters }}", errors.ReasonResolution},
		{"{{ cnn.kernels[5] }}", errors.ReasonResolution},
		{"{{ cnn.kernels['a'] }}", errors.ReasonType},
		{"{{ rate.x }}", errors.ReasonType},
		{"{{ 1 == 'a' }}", errors.ReasonType},
		{"{{ cnn.kernels < 3 }}", errors.ReasonType},
		{"{{ 1 + 'a' }}", errors.ReasonType},
		{"{{ 1 / 0 }}", errors.ReasonType},
		{"{{ 1.5 % 2 }}", errors.ReasonType},
		{"{{ rate|length }}", errors.ReasonType},
		{"layers {{ cnn.kernels }}", errors.ReasonType},
		{"{{ 1 + }}", errors.ReasonSyntax},
		{"{{ }}", errors.ReasonSyntax},
		{"{{ upper(cnn.name) }}", errors.ReasonSyntax},
		{"{{ cnn.name|upper }}", errors.ReasonSyntax},
		{"{{ flags.train ? 1 : 2 }}", errors.ReasonSyntax},
		{"{{ 'abc }}", errors.ReasonSyntax},
		{"{{ |length }}", errors.ReasonSyntax},
		{"{{ cnn.kernels|length|length }}", errors.ReasonType},
		{"{{ filter-length(cnn.name) }}", errors.ReasonResolution},
		{"{{ cnn.name|length - 'a' }}", errors.ReasonType},
	}
	for _, c := range cases {
		_, err := Resolve(c.src, env, path)
		if err == nil {
			t.Fatalf("%s: expected an error", c.src)
		}
		if got := errors.ReasonOf(err); got != c.reason {
			t.Fatalf("%s: got %v (%v), want %v", c.src, got, err, c.reason)
		}
		Assert("model.graph", err.(*errors.Error).Path, t)
	}
}

func TestSyntaxErrorOffset(t *testing.T) {
	_, err := Resolve("abc {{ cnn.name", declarations(), path)
	e := err.(*errors.Error)
	Assert(errors.ReasonSyntax, e.Reason, t)
	Assert(4, e.Offset, t)

	_, err = Resolve("ab {{ cnn.name|upper }}", declarations(), path)
	e = err.(*errors.Error)
	Assert(errors.ReasonSyntax, e.Reason, t)
	Assert(15, e.Offset, t)
}

func TestUndefinedNamesIdentifier(t *testing.T) {
	_, err := Resolve("{{ cnn.filters|length }}", declarations(), path)
	if !strings.Contains(err.Error(), `"cnn.filters"`) {
		t.Fatalf("message should name the identifier: %v", err)
	}
	if !strings.Contains(err.Error(), "cnn.filters|length") {
		t.Fatalf("message should name the expression: %v", err)
	}
}

func TestEnvironmentScopes(t *testing.T) {
	root := NewEnvironment(map[string]interface{}{"index": int64(9), "a": "root"})
	inner := root.Push(map[string]interface{}{"index": int64(1)})
	v, ok := inner.Lookup("index")
	Assert(true, ok, t)
	Assert(int64(1), v, t)
	v, _ = inner.Lookup("a")
	Assert("root", v, t)
	Assert(2, inner.Depth(), t)

	v, _ = inner.Pop().Lookup("index")
	Assert(int64(9), v, t)
	_, ok = root.Lookup("missing")
	Assert(false, ok, t)
}

func TestResolveTreeCollectsErrors(t *testing.T) {
	env := declarations()
	in := map[string]interface{}{
		"a": "{{ cnn.kernels[0] }}",
		"b": []interface{}{"{{ missing }}", int64(3)},
		"c": map[string]interface{}{"d": "{{ 1 + }}", "e": true},
	}
	out, errs := ResolveTree(in, env, tree.Path{"train"})
	Assert(2, errs.Len(), t)
	Assert("train", errs.Section, t)
	Assert("train.b[0]", errs.Errors[0].Path, t)
	Assert(errors.ReasonResolution, errs.Errors[0].Reason, t)
	Assert(errors.ReasonSyntax, errs.Errors[1].Reason, t)

	m := out.(map[string]interface{})
	Assert(int64(64), m["a"], t)
	Assert(int64(3), m["b"].([]interface{})[1], t)
	Assert("{{ cnn.kernels[0] }}", in["a"], t)
}
