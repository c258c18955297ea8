package template

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/tree"
)

// Filters are applied as "operand|name". The parser sees them as calls to
// filterPrefix+name, a name no written identifier can produce since the
// tokenizer splits identifiers on '-'.
const filterPrefix = "filter-"

// Span values are bound to spanPrefix+n for the same reason.
const spanPrefix = "span-"

var filters = map[string]func(v interface{}) (interface{}, bool){
	"length": func(v interface{}) (interface{}, bool) {
		switch t := v.(type) {
		case []interface{}:
			return int64(len(t)), true
		case map[string]interface{}:
			return int64(len(t)), true
		case string:
			return int64(len([]rune(t))), true
		}
		return nil, false
	},
}

type evaluator struct {
	env  *Environment
	path tree.Path
	src  string // full source the expression was taken from
	base int    // offset of the expression inside src

	// spans allows "{{ expr }}" inside the expression; each one is evaluated
	// on its own and stands for its value.
	spans bool
	bound map[string]interface{}
	// code maps an offset of the parsed code back to the expression.
	code func(int) int
}

func evaluate(expr string, base int, src string, env *Environment, path tree.Path) (interface{}, error) {
	ev := &evaluator{env: env, path: path, src: src, base: base}
	return ev.run(expr)
}

func (ev *evaluator) run(expr string) (interface{}, error) {
	toks, err := ev.tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, ev.syntaxError(0, "empty expression")
	}
	code, offsets := join(toks)
	ev.code = offsets
	if len(ev.bound) > 0 {
		ev.env = ev.env.Push(ev.bound)
	}
	x, diags := hclsyntax.ParseExpression([]byte(code), "expression", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		d := diags[0]
		off := len(expr)
		if d.Subject != nil {
			off = ev.code(d.Subject.Start.Byte)
		}
		return nil, ev.syntaxError(off, d.Summary)
	}
	return ev.eval(x)
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string // as handed to the parser
	pos  int    // offset in the expression
	gap  bool   // preceded by blanks
}

var operators = []string{"==", "!=", "<=", ">=", "&&", "||"}

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// tokenize prepares an expression for the parser: identifiers stop at '-'
// so "index-1" is a subtraction, strings are double quoted, filters become
// calls and, when allowed, spans become bound variables.
func (ev *evaluator) tokenize(expr string) ([]token, error) {
	var toks []token
	gap := false
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case isBlank(c):
			gap = true
			i++
			continue
		case ev.spans && strings.HasPrefix(expr[i:], openDelim):
			name, next, err := ev.bindSpan(expr, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: i, gap: gap})
			i = next
		case isIdentStart(c):
			j := i + 1
			for j < len(expr) && (isIdentStart(expr[j]) || isDigit(expr[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: expr[i:j], pos: i, gap: gap})
			i = j
		case isDigit(c):
			j := scanNumber(expr, i)
			toks = append(toks, token{kind: tokNumber, text: expr[i:j], pos: i, gap: gap})
			i = j
		case c == '\'' || c == '"':
			text, j, ok := quoteString(expr, i)
			if !ok {
				return nil, ev.syntaxError(i, "unterminated string literal")
			}
			toks = append(toks, token{kind: tokString, text: text, pos: i, gap: gap})
			i = j
		case c == '|' && !strings.HasPrefix(expr[i:], "||"):
			var err error
			if toks, i, err = ev.filter(expr, i, toks); err != nil {
				return nil, err
			}
		default:
			n := 1
			for _, op := range operators {
				if strings.HasPrefix(expr[i:], op) {
					n = len(op)
					break
				}
			}
			toks = append(toks, token{kind: tokPunct, text: expr[i : i+n], pos: i, gap: gap})
			i += n
		}
		gap = false
	}
	return toks, nil
}

// bindSpan evaluates the span opening at i and binds its value.
func (ev *evaluator) bindSpan(expr string, i int) (string, int, error) {
	j := strings.Index(expr[i+len(openDelim):], closeDelim)
	if j < 0 {
		return "", 0, ev.syntaxError(i, "unclosed "+openDelim)
	}
	start := i + len(openDelim)
	v, err := evaluate(expr[start:start+j], ev.base+start, ev.src, ev.env, ev.path)
	if err != nil {
		return "", 0, err
	}
	if ev.bound == nil {
		ev.bound = make(map[string]interface{})
	}
	name := spanPrefix + strconv.Itoa(len(ev.bound))
	ev.bound[name] = v
	return name, start + j + len(closeDelim), nil
}

// filter turns "operand|name" into a call of filterPrefix+name. The operand
// is the postfix expression right before the pipe, so filters bind tighter
// than any operator.
func (ev *evaluator) filter(expr string, at int, toks []token) ([]token, int, error) {
	i := at + 1
	for i < len(expr) && isBlank(expr[i]) {
		i++
	}
	j := i
	for j < len(expr) && (isIdentStart(expr[j]) || isDigit(expr[j])) {
		j++
	}
	name := expr[i:j]
	if _, ok := filters[name]; !ok {
		return nil, 0, ev.syntaxError(i, fmt.Sprintf("unknown filter %q", name))
	}
	start := operandStart(toks)
	if start < 0 {
		return nil, 0, ev.syntaxError(at, fmt.Sprintf("filter %q has no operand", name))
	}
	call := []token{
		{kind: tokIdent, text: filterPrefix + name, pos: at, gap: toks[start].gap},
		{kind: tokPunct, text: "(", pos: at},
	}
	call = append(call, toks[start:]...)
	call = append(call, token{kind: tokPunct, text: ")", pos: at})
	return append(toks[:start:start], call...), j, nil
}

// operandStart returns the index of the first token of the postfix
// expression ending toks: a primary followed by attributes and indexes.
func operandStart(toks []token) int {
	i := len(toks) - 1
	for i >= 0 {
		t := toks[i]
		if t.kind == tokPunct {
			if t.text != ")" && t.text != "]" {
				return -1
			}
			open := matching(toks, i)
			if open < 0 {
				return -1
			}
			if open > 0 && postfix(toks[open-1], toks[open].text) {
				i = open - 1
				continue
			}
			return open
		}
		if i >= 2 && toks[i-1].kind == tokPunct && toks[i-1].text == "." {
			i -= 2
			continue
		}
		return i
	}
	return -1
}

func matching(toks []token, close int) int {
	depth := 0
	for i := close; i >= 0; i-- {
		if toks[i].kind != tokPunct {
			continue
		}
		switch toks[i].text {
		case ")", "]":
			depth++
		case "(", "[":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// postfix reports whether an opening bracket after prev indexes or calls it.
func postfix(prev token, open string) bool {
	switch prev.kind {
	case tokIdent:
		return true
	case tokPunct:
		return open == "[" && (prev.text == ")" || prev.text == "]")
	}
	return false
}

func scanNumber(s string, i int) int {
	j := i
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j+1 < len(s) && s[j] == '.' && isDigit(s[j+1]) {
		j++
		for j < len(s) && isDigit(s[j]) {
			j++
		}
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			j = k
		}
	}
	return j
}

// quoteString reads the literal opening at s[i] and returns it double
// quoted. Template sequences are escaped so they stay literal text.
func quoteString(s string, i int) (string, int, bool) {
	q := s[i]
	var b strings.Builder
	b.WriteByte('"')
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '\\' && j+1 < len(s):
			if q == '\'' && s[j+1] == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(s[j+1])
			}
			j++
		case c == q:
			b.WriteByte('"')
			return b.String(), j + 1, true
		case c == '"':
			b.WriteString(`\"`)
		case (c == '$' || c == '%') && j+1 < len(s) && s[j+1] == '{':
			b.WriteByte(c)
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}

// join renders tokens as parser input. The returned function maps an offset
// of that input back to the expression.
func join(toks []token) (string, func(int) int) {
	var b strings.Builder
	starts := make([]int, len(toks))
	for i, t := range toks {
		if i > 0 && (t.gap || t.text == "-" || toks[i-1].text == "-") {
			b.WriteByte(' ')
		}
		starts[i] = b.Len()
		b.WriteString(t.text)
	}
	return b.String(), func(off int) int {
		k := sort.Search(len(starts), func(i int) bool { return starts[i] > off }) - 1
		if k < 0 {
			return 0
		}
		t := toks[k]
		if off >= starts[k]+len(t.text) && k == len(toks)-1 {
			return t.pos + len(t.text)
		}
		return t.pos
	}
}

func (ev *evaluator) syntaxError(off int, msg string) error {
	return errors.Smart(errors.ReasonSyntax, errors.Path(ev.path), errors.Offset(ev.base+off),
		fmt.Sprintf("%s in %q", msg, ev.src))
}

func (ev *evaluator) typeError(format string, args ...interface{}) error {
	return errors.Newf(errors.ReasonType, ev.path, format, args...)
}

func (ev *evaluator) unsupported(x hclsyntax.Expression, what string) error {
	return ev.syntaxError(ev.code(x.Range().Start.Byte), what+" not supported")
}

func (ev *evaluator) eval(x hclsyntax.Expression) (interface{}, error) {
	switch n := x.(type) {
	case *hclsyntax.LiteralValueExpr:
		return ev.fromCty(n.Val)
	case *hclsyntax.TemplateExpr:
		var b strings.Builder
		for _, part := range n.Parts {
			lit, ok := part.(*hclsyntax.LiteralValueExpr)
			if !ok {
				return nil, ev.unsupported(part, "interpolation inside string literals is")
			}
			s, err := ev.fromCty(lit.Val)
			if err != nil {
				return nil, err
			}
			str, _ := s.(string)
			b.WriteString(str)
		}
		return b.String(), nil
	case *hclsyntax.ScopeTraversalExpr:
		return ev.traverse(nil, n.Traversal, "")
	case *hclsyntax.RelativeTraversalExpr:
		src, err := ev.eval(n.Source)
		if err != nil {
			return nil, err
		}
		return ev.traverse(src, n.Traversal, "expression")
	case *hclsyntax.IndexExpr:
		coll, err := ev.eval(n.Collection)
		if err != nil {
			return nil, err
		}
		key, err := ev.eval(n.Key)
		if err != nil {
			return nil, err
		}
		return ev.index(coll, key, "expression")
	case *hclsyntax.ParenthesesExpr:
		return ev.eval(n.Expression)
	case *hclsyntax.TupleConsExpr:
		out := make([]interface{}, 0, len(n.Exprs))
		for _, item := range n.Exprs {
			v, err := ev.eval(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *hclsyntax.UnaryOpExpr:
		v, err := ev.eval(n.Val)
		if err != nil {
			return nil, err
		}
		return ev.unary(n.Op, v)
	case *hclsyntax.BinaryOpExpr:
		return ev.binary(n)
	case *hclsyntax.FunctionCallExpr:
		return ev.call(n)
	case *hclsyntax.ConditionalExpr:
		return nil, ev.unsupported(n, "conditional expressions are")
	}
	return nil, ev.unsupported(x, "expression is")
}

// call applies a filter. Written function calls are not supported.
func (ev *evaluator) call(n *hclsyntax.FunctionCallExpr) (interface{}, error) {
	name := strings.TrimPrefix(n.Name, filterPrefix)
	apply, ok := filters[name]
	if !ok || name == n.Name || len(n.Args) != 1 || n.ExpandFinal {
		return nil, ev.unsupported(n, "function calls are")
	}
	v, err := ev.eval(n.Args[0])
	if err != nil {
		return nil, err
	}
	out, ok := apply(v)
	if !ok {
		return nil, ev.typeError("filter %q does not apply to %v", name, tree.KindOf(v))
	}
	return out, nil
}

func (ev *evaluator) fromCty(v cty.Value) (interface{}, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, ev.typeError("unknown value")
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsTupleType() || ty.IsListType():
		out := make([]interface{}, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, item := it.Element()
			n, err := ev.fromCty(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, ev.typeError("unsupported literal of type %s", ty.FriendlyName())
}

func (ev *evaluator) traverse(v interface{}, tr hcl.Traversal, label string) (interface{}, error) {
	for _, step := range tr {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			val, ok := ev.env.Lookup(s.Name)
			if !ok {
				return nil, errors.Newf(errors.ReasonResolution, ev.path,
					"undefined identifier %q in %q", s.Name, ev.src)
			}
			v, label = val, s.Name
		case hcl.TraverseAttr:
			m, ok := v.(map[string]interface{})
			if !ok {
				return nil, ev.typeError("%s is a %v, cannot read attribute %q", label, tree.KindOf(v), s.Name)
			}
			val, ok := m[s.Name]
			if !ok {
				return nil, errors.Newf(errors.ReasonResolution, ev.path,
					"undefined identifier %q in %q", label+"."+s.Name, ev.src)
			}
			v, label = val, label+"."+s.Name
		case hcl.TraverseIndex:
			key, err := ev.fromCty(s.Key)
			if err != nil {
				return nil, err
			}
			if v, err = ev.index(v, key, label); err != nil {
				return nil, err
			}
			label = fmt.Sprintf("%s[%v]", label, key)
		default:
			return nil, ev.syntaxError(ev.code(step.SourceRange().Start.Byte), "splat expressions are not supported")
		}
	}
	return v, nil
}

func (ev *evaluator) index(coll, key interface{}, label string) (interface{}, error) {
	switch c := coll.(type) {
	case []interface{}:
		i, ok := tree.AsInt(key)
		if !ok {
			return nil, ev.typeError("%s is a sequence, index must be an int, got %v", label, tree.KindOf(key))
		}
		if i < 0 || i >= len(c) {
			return nil, errors.Newf(errors.ReasonResolution, ev.path,
				"index %d out of range for %s of length %d in %q", i, label, len(c), ev.src)
		}
		return c[i], nil
	case map[string]interface{}:
		var k string
		switch kt := key.(type) {
		case string:
			k = kt
		case int64:
			k = strconv.FormatInt(kt, 10)
		default:
			return nil, ev.typeError("%s is a mapping, key must be a string, got %v", label, tree.KindOf(key))
		}
		v, ok := c[k]
		if !ok {
			return nil, errors.Newf(errors.ReasonResolution, ev.path,
				"key %q not found in %s in %q", k, label, ev.src)
		}
		return v, nil
	}
	return nil, ev.typeError("%s is a %v and cannot be indexed", label, tree.KindOf(coll))
}

func (ev *evaluator) unary(op *hclsyntax.Operation, v interface{}) (interface{}, error) {
	switch op {
	case hclsyntax.OpNegate:
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, ev.typeError("cannot negate %v", tree.KindOf(v))
	case hclsyntax.OpLogicalNot:
		b, ok := v.(bool)
		if !ok {
			return nil, ev.typeError("operand of ! must be a bool, got %v", tree.KindOf(v))
		}
		return !b, nil
	}
	return nil, ev.typeError("unsupported unary operator")
}

func (ev *evaluator) binary(n *hclsyntax.BinaryOpExpr) (interface{}, error) {
	l, err := ev.eval(n.LHS)
	if err != nil {
		return nil, err
	}
	if n.Op == hclsyntax.OpLogicalAnd || n.Op == hclsyntax.OpLogicalOr {
		lb, ok := l.(bool)
		if !ok {
			return nil, ev.typeError("operands of logical operators must be bools, got %v", tree.KindOf(l))
		}
		if (n.Op == hclsyntax.OpLogicalAnd && !lb) || (n.Op == hclsyntax.OpLogicalOr && lb) {
			return lb, nil
		}
	}
	r, err := ev.eval(n.RHS)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case hclsyntax.OpLogicalAnd, hclsyntax.OpLogicalOr:
		rb, ok := r.(bool)
		if !ok {
			return nil, ev.typeError("operands of logical operators must be bools, got %v", tree.KindOf(r))
		}
		return rb, nil
	case hclsyntax.OpEqual, hclsyntax.OpNotEqual:
		eq, err := ev.equal(l, r)
		if err != nil {
			return nil, err
		}
		return eq == (n.Op == hclsyntax.OpEqual), nil
	case hclsyntax.OpLessThan, hclsyntax.OpLessThanOrEqual,
		hclsyntax.OpGreaterThan, hclsyntax.OpGreaterThanOrEqual:
		c, err := ev.compare(l, r)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case hclsyntax.OpLessThan:
			return c < 0, nil
		case hclsyntax.OpLessThanOrEqual:
			return c <= 0, nil
		case hclsyntax.OpGreaterThan:
			return c > 0, nil
		}
		return c >= 0, nil
	}
	return ev.arith(n.Op, l, r)
}

func isNumber(v interface{}) bool {
	return tree.KindOf(v)&tree.KindNumber != 0
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func (ev *evaluator) equal(l, r interface{}) (bool, error) {
	if l == nil || r == nil {
		return l == nil && r == nil, nil
	}
	if isNumber(l) && isNumber(r) {
		return deepEqual(l, r), nil
	}
	if tree.KindOf(l) != tree.KindOf(r) {
		return false, ev.typeError("cannot compare %v with %v", tree.KindOf(l), tree.KindOf(r))
	}
	return deepEqual(l, r), nil
}

func deepEqual(l, r interface{}) bool {
	switch a := l.(type) {
	case int64:
		if b, ok := r.(int64); ok {
			return a == b
		}
		return isNumber(r) && float64(a) == toFloat(r)
	case float64:
		return isNumber(r) && a == toFloat(r)
	case []interface{}:
		b, ok := r.([]interface{})
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !deepEqual(a[i], b[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		b, ok := r.(map[string]interface{})
		if !ok || len(a) != len(b) {
			return false
		}
		for k, av := range a {
			bv, ok := b[k]
			if !ok || !deepEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return l == r
}

func (ev *evaluator) compare(l, r interface{}) (int, error) {
	if isNumber(l) && isNumber(r) {
		if a, ok := l.(int64); ok {
			if b, ok := r.(int64); ok {
				switch {
				case a < b:
					return -1, nil
				case a > b:
					return 1, nil
				}
				return 0, nil
			}
		}
		a, b := toFloat(l), toFloat(r)
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		}
		return 0, nil
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	return 0, ev.typeError("cannot order %v and %v", tree.KindOf(l), tree.KindOf(r))
}

func (ev *evaluator) arith(op *hclsyntax.Operation, l, r interface{}) (interface{}, error) {
	if op == hclsyntax.OpAdd {
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return ls + rs, nil
		}
	}
	if !isNumber(l) || !isNumber(r) {
		return nil, ev.typeError("arithmetic on %v and %v", tree.KindOf(l), tree.KindOf(r))
	}
	a, aInt := l.(int64)
	b, bInt := r.(int64)
	if aInt && bInt {
		switch op {
		case hclsyntax.OpAdd:
			return a + b, nil
		case hclsyntax.OpSubtract:
			return a - b, nil
		case hclsyntax.OpMultiply:
			return a * b, nil
		case hclsyntax.OpDivide:
			if b == 0 {
				return nil, ev.typeError("division by zero")
			}
			return float64(a) / float64(b), nil
		case hclsyntax.OpModulo:
			if b == 0 {
				return nil, ev.typeError("division by zero")
			}
			return a % b, nil
		}
		return nil, ev.typeError("unsupported operator")
	}
	x, y := toFloat(l), toFloat(r)
	switch op {
	case hclsyntax.OpAdd:
		return x + y, nil
	case hclsyntax.OpSubtract:
		return x - y, nil
	case hclsyntax.OpMultiply:
		return x * y, nil
	case hclsyntax.OpDivide:
		if y == 0 {
			return nil, ev.typeError("division by zero")
		}
		return x / y, nil
	case hclsyntax.OpModulo:
		return nil, ev.typeError("%% requires ints")
	}
	return nil, ev.typeError("unsupported operator")
}
