package parse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/pagelogic/internal/expr"
)

// ParseExpr parses a single JavaScript expression into an expr AST.
func ParseExpr(src string) (expr.Node, error) {
	return ParseExprCtx(context.Background(), src)
}

// ParseExprCtx is ParseExpr with a context for the underlying parser.
func ParseExprCtx(ctx context.Context, src string) (expr.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Msg: "empty expression"}
	}
	// The parentheses make object literals and arrows parse as expressions;
	// the newline ends a trailing line comment.
	wrapped := []byte("(" + src + "\n)")
	tree, err := parseBytes(ctx, wrapped, "javascript")
	if err != nil {
		return nil, err
	}
	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root, wrapped)
	}
	stmts := namedChildren(root)
	if len(stmts) != 1 || stmts[0].Type() != "expression_statement" {
		return nil, &SyntaxError{Msg: "expected a single expression"}
	}
	inner := namedChildren(stmts[0])
	if len(inner) != 1 || inner[0].Type() != "parenthesized_expression" ||
		inner[0].StartByte() != 0 || int(inner[0].EndByte()) != len(wrapped) {
		return nil, &SyntaxError{Msg: "expected a single expression"}
	}
	c := &converter{src: wrapped}
	n := c.expr(inner[0])
	if c.err != nil {
		return nil, c.err
	}
	return n, nil
}

// syntaxError locates the first error or missing node below n.
func syntaxError(n *sitter.Node, src []byte) error {
	var bad *sitter.Node
	var find func(*sitter.Node)
	find = func(x *sitter.Node) {
		if bad != nil {
			return
		}
		if x.IsMissing() || x.Type() == "ERROR" {
			bad = x
			return
		}
		for i := 0; i < int(x.ChildCount()); i++ {
			if c := x.Child(i); c != nil && (c.HasError() || c.IsMissing()) {
				find(c)
			}
		}
	}
	find(n)
	if bad == nil {
		return &SyntaxError{Msg: "syntax error"}
	}
	off := max(int(bad.StartByte())-1, 0)
	if bad.IsMissing() {
		return &SyntaxError{Offset: off, Msg: fmt.Sprintf("syntax error: missing %q", bad.Type())}
	}
	text := strings.TrimSpace(bad.Content(src))
	if r, size := utf8.DecodeRuneInString(text); size > 0 {
		text = string(r)
	}
	return &SyntaxError{Offset: off, Msg: fmt.Sprintf("syntax error: unexpected %q", text)}
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

// hasToken reports whether n has an anonymous child token of the given type.
func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

type converter struct {
	src []byte
	err error
}

func (c *converter) fail(n *sitter.Node, format string, args ...any) expr.Node {
	if c.err == nil {
		off := 0
		if n != nil {
			off = max(int(n.StartByte())-1, 0)
		}
		c.err = &SyntaxError{Offset: off, Msg: fmt.Sprintf(format, args...)}
	}
	return &expr.Literal{Value: expr.Undefined}
}

func (c *converter) text(n *sitter.Node) string { return n.Content(c.src) }

func (c *converter) field(n *sitter.Node, name string) expr.Node {
	f := n.ChildByFieldName(name)
	if f == nil {
		return c.fail(n, "%s: missing %s", n.Type(), name)
	}
	return c.expr(f)
}

func (c *converter) exprs(ns []*sitter.Node) []expr.Node {
	out := make([]expr.Node, 0, len(ns))
	for _, n := range ns {
		out = append(out, c.expr(n))
	}
	return out
}

var binaryOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "**": true,
	"==": true, "!=": true, "===": true, "!==": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"&&": true, "||": true, "??": true,
	"&": true, "|": true, "^": true, "<<": true, ">>": true, ">>>": true, "in": true,
}

func (c *converter) expr(n *sitter.Node) expr.Node {
	switch n.Type() {
	case "identifier":
		if c.text(n) == "undefined" {
			return &expr.Literal{Value: expr.Undefined}
		}
		return &expr.Identifier{Name: c.text(n)}
	case "undefined":
		return &expr.Literal{Value: expr.Undefined}
	case "this":
		return &expr.This{}
	case "null":
		return &expr.Literal{}
	case "true":
		return &expr.Literal{Value: true}
	case "false":
		return &expr.Literal{Value: false}
	case "number":
		f, err := parseNumber(c.text(n))
		if err != nil {
			return c.fail(n, "invalid number %s", c.text(n))
		}
		return &expr.Literal{Value: f}
	case "string":
		s := c.text(n)
		return &expr.Literal{Value: unescapeJS(s[1 : len(s)-1])}
	case "template_string":
		return c.template(n)
	case "parenthesized_expression":
		inner := namedChildren(n)
		if len(inner) != 1 {
			return c.fail(n, "expected expression")
		}
		return c.expr(inner[0])
	case "member_expression":
		if hasToken(n, "?.") || n.ChildByFieldName("optional_chain") != nil {
			return c.fail(n, "optional chaining is not supported")
		}
		prop := n.ChildByFieldName("property")
		if prop == nil || prop.Type() == "private_property_identifier" {
			return c.fail(n, "unsupported member access")
		}
		return &expr.Member{Object: c.field(n, "object"), Property: &expr.Identifier{Name: c.text(prop)}}
	case "subscript_expression":
		return &expr.Member{Object: c.field(n, "object"), Property: c.field(n, "index"), Computed: true}
	case "call_expression":
		args := n.ChildByFieldName("arguments")
		if args == nil || args.Type() != "arguments" {
			return c.fail(n, "tagged templates are not supported")
		}
		if hasToken(n, "?.") {
			return c.fail(n, "optional chaining is not supported")
		}
		for _, a := range namedChildren(args) {
			if a.Type() == "spread_element" {
				return c.fail(a, "spread arguments are not supported")
			}
		}
		return &expr.Call{Callee: c.field(n, "function"), Args: c.exprs(namedChildren(args))}
	case "unary_expression":
		op := c.operator(n)
		if op == "delete" {
			return c.fail(n, "delete is not supported")
		}
		return &expr.Unary{Op: op, Arg: c.field(n, "argument")}
	case "update_expression":
		op := c.operator(n)
		return &expr.Update{Op: op, Prefix: n.Child(0).Type() == op, Arg: c.target(n.ChildByFieldName("argument"))}
	case "binary_expression":
		op := c.operator(n)
		if !binaryOps[op] {
			return c.fail(n, "operator %s is not supported", op)
		}
		return &expr.Binary{Op: op, Left: c.field(n, "left"), Right: c.field(n, "right")}
	case "assignment_expression":
		return &expr.Assign{Op: "=", Target: c.target(n.ChildByFieldName("left")), Value: c.field(n, "right")}
	case "augmented_assignment_expression":
		return &expr.Assign{Op: c.operator(n), Target: c.target(n.ChildByFieldName("left")), Value: c.field(n, "right")}
	case "ternary_expression":
		return &expr.Conditional{Test: c.field(n, "condition"), Then: c.field(n, "consequence"), Else: c.field(n, "alternative")}
	case "sequence_expression":
		seq := &expr.Sequence{}
		for _, x := range namedChildren(n) {
			y := c.expr(x)
			if s, ok := y.(*expr.Sequence); ok {
				seq.Exprs = append(seq.Exprs, s.Exprs...)
			} else {
				seq.Exprs = append(seq.Exprs, y)
			}
		}
		return seq
	case "array":
		arr := &expr.Array{}
		for _, x := range namedChildren(n) {
			if x.Type() == "spread_element" {
				return c.fail(x, "spread elements are not supported")
			}
			arr.Elems = append(arr.Elems, c.expr(x))
		}
		return arr
	case "object":
		return c.object(n)
	case "arrow_function":
		fn := &expr.Function{Arrow: true}
		if p := n.ChildByFieldName("parameter"); p != nil {
			fn.Params = []expr.Node{c.pattern(p)}
		} else {
			fn.Params = c.params(n.ChildByFieldName("parameters"))
		}
		fn.Body = c.body(n.ChildByFieldName("body"))
		return fn
	case "function", "function_expression":
		if hasToken(n, "async") || hasToken(n, "*") {
			return c.fail(n, "async and generator functions are not supported")
		}
		fn := &expr.Function{Params: c.params(n.ChildByFieldName("parameters")), Body: c.body(n.ChildByFieldName("body"))}
		if name := n.ChildByFieldName("name"); name != nil {
			fn.Name = c.text(name)
		}
		return fn
	}
	return c.fail(n, "unsupported syntax: %s", strings.ReplaceAll(n.Type(), "_", " "))
}

func (c *converter) operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	return ""
}

func (c *converter) template(n *sitter.Node) expr.Node {
	t := &expr.Template{}
	pos := n.StartByte() + 1
	for i := 0; i < int(n.NamedChildCount()); i++ {
		sub := n.NamedChild(i)
		if sub.Type() != "template_substitution" {
			continue
		}
		inner := namedChildren(sub)
		if len(inner) != 1 {
			return c.fail(sub, "expected expression")
		}
		t.Quasis = append(t.Quasis, unescapeJS(string(c.src[pos:sub.StartByte()])))
		t.Exprs = append(t.Exprs, c.expr(inner[0]))
		pos = sub.EndByte()
	}
	t.Quasis = append(t.Quasis, unescapeJS(string(c.src[pos:n.EndByte()-1])))
	return t
}

func (c *converter) object(n *sitter.Node) expr.Node {
	obj := &expr.Object{}
	for _, p := range namedChildren(n) {
		switch p.Type() {
		case "pair":
			key, ok := c.propertyKey(p.ChildByFieldName("key"))
			if !ok {
				return c.fail(p, "computed property names are not supported")
			}
			obj.Props = append(obj.Props, &expr.Property{Key: key, Value: c.field(p, "value")})
		case "shorthand_property_identifier":
			name := c.text(p)
			obj.Props = append(obj.Props, &expr.Property{Key: name, Value: &expr.Identifier{Name: name}})
		case "method_definition":
			key, ok := c.propertyKey(p.ChildByFieldName("name"))
			if !ok || hasToken(p, "get") || hasToken(p, "set") || hasToken(p, "async") || hasToken(p, "*") {
				return c.fail(p, "unsupported method definition")
			}
			fn := &expr.Function{Params: c.params(p.ChildByFieldName("parameters")), Body: c.body(p.ChildByFieldName("body"))}
			obj.Props = append(obj.Props, &expr.Property{Key: key, Value: fn})
		default:
			return c.fail(p, "unsupported object member: %s", strings.ReplaceAll(p.Type(), "_", " "))
		}
	}
	return obj
}

func (c *converter) propertyKey(k *sitter.Node) (string, bool) {
	if k == nil {
		return "", false
	}
	switch k.Type() {
	case "property_identifier", "identifier":
		return c.text(k), true
	case "string":
		s := c.text(k)
		return unescapeJS(s[1 : len(s)-1]), true
	case "number":
		f, err := parseNumber(c.text(k))
		if err != nil {
			return "", false
		}
		return expr.ToString(f), true
	}
	return "", false
}

func (c *converter) params(n *sitter.Node) []expr.Node {
	if n == nil {
		return nil
	}
	var out []expr.Node
	for _, p := range namedChildren(n) {
		out = append(out, c.pattern(p))
	}
	return out
}

// pattern converts a binding position: a parameter, declarator name or
// catch parameter.
func (c *converter) pattern(n *sitter.Node) expr.Node {
	switch n.Type() {
	case "identifier":
		return &expr.Identifier{Name: c.text(n)}
	case "object_pattern":
		pat := &expr.ObjectPattern{}
		for _, p := range namedChildren(n) {
			switch p.Type() {
			case "shorthand_property_identifier_pattern", "shorthand_property_identifier":
				name := c.text(p)
				pat.Props = append(pat.Props, &expr.PatternProp{Key: name, Target: &expr.Identifier{Name: name}})
			case "pair_pattern":
				key, ok := c.propertyKey(p.ChildByFieldName("key"))
				if !ok {
					return c.fail(p, "computed property names are not supported")
				}
				pat.Props = append(pat.Props, &expr.PatternProp{Key: key, Target: c.pattern(p.ChildByFieldName("value"))})
			default:
				return c.fail(p, "unsupported destructuring: %s", strings.ReplaceAll(p.Type(), "_", " "))
			}
		}
		return pat
	case "array_pattern":
		pat := &expr.ArrayPattern{}
		for _, p := range namedChildren(n) {
			pat.Elems = append(pat.Elems, c.pattern(p))
		}
		return pat
	}
	return c.fail(n, "unsupported binding: %s", strings.ReplaceAll(n.Type(), "_", " "))
}

// target converts the left side of an assignment or update.
func (c *converter) target(n *sitter.Node) expr.Node {
	if n == nil {
		return c.fail(nil, "missing assignment target")
	}
	switch n.Type() {
	case "identifier", "member_expression", "subscript_expression":
		return c.expr(n)
	case "object_pattern", "array_pattern":
		return c.pattern(n)
	case "parenthesized_expression":
		inner := namedChildren(n)
		if len(inner) == 1 {
			return c.target(inner[0])
		}
	}
	return c.fail(n, "invalid assignment target")
}

func (c *converter) body(n *sitter.Node) expr.Node {
	if n == nil {
		return &expr.Block{}
	}
	if n.Type() == "statement_block" {
		return c.block(n)
	}
	return c.expr(n)
}

func (c *converter) block(n *sitter.Node) *expr.Block {
	b := &expr.Block{}
	for _, s := range namedChildren(n) {
		if st := c.stmt(s); st != nil {
			b.Body = append(b.Body, st)
		}
	}
	return b
}

func (c *converter) stmt(n *sitter.Node) expr.Node {
	switch n.Type() {
	case "statement_block":
		return c.block(n)
	case "empty_statement":
		return nil
	case "expression_statement":
		inner := namedChildren(n)
		if len(inner) != 1 {
			return c.fail(n, "expected expression")
		}
		return &expr.ExprStmt{X: c.expr(inner[0])}
	case "lexical_declaration", "variable_declaration":
		return c.varDecl(n)
	case "function_declaration":
		name := n.ChildByFieldName("name")
		if name == nil {
			return c.fail(n, "function declaration without a name")
		}
		fn := &expr.Function{Params: c.params(n.ChildByFieldName("parameters")), Body: c.body(n.ChildByFieldName("body"))}
		return &expr.VarDecl{Kind: "let", Decls: []*expr.Declarator{{Target: &expr.Identifier{Name: c.text(name)}, Init: fn}}}
	case "return_statement":
		r := &expr.Return{}
		if inner := namedChildren(n); len(inner) > 0 {
			r.Arg = c.expr(inner[0])
		}
		return r
	case "if_statement":
		s := &expr.If{Test: c.field(n, "condition"), Then: c.stmtField(n, "consequence")}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			if alt.Type() == "else_clause" {
				if inner := namedChildren(alt); len(inner) == 1 {
					s.Else = c.stmt(inner[0])
				}
			} else {
				s.Else = c.stmt(alt)
			}
		}
		return s
	case "for_statement":
		return &expr.For{
			Init:   c.forClause(n.ChildByFieldName("initializer"), true),
			Test:   c.forClause(n.ChildByFieldName("condition"), false),
			Update: c.forClause(n.ChildByFieldName("increment"), false),
			Body:   c.stmtField(n, "body"),
		}
	case "for_in_statement":
		return c.forIn(n)
	case "try_statement":
		t := &expr.Try{Block: c.block(n.ChildByFieldName("body"))}
		if h := n.ChildByFieldName("handler"); h != nil {
			if p := h.ChildByFieldName("parameter"); p != nil {
				t.Param = c.pattern(p)
			}
			t.Handler = c.block(h.ChildByFieldName("body"))
		}
		if f := n.ChildByFieldName("finalizer"); f != nil {
			t.Finally = c.block(f.ChildByFieldName("body"))
		}
		return t
	case "throw_statement":
		inner := namedChildren(n)
		if len(inner) != 1 {
			return c.fail(n, "expected expression")
		}
		return &expr.Throw{Arg: c.expr(inner[0])}
	case "break_statement", "continue_statement":
		if len(namedChildren(n)) > 0 {
			return c.fail(n, "labels are not supported")
		}
		if n.Type() == "break_statement" {
			return &expr.Break{}
		}
		return &expr.Continue{}
	}
	return c.fail(n, "unsupported statement: %s", strings.ReplaceAll(n.Type(), "_", " "))
}

func (c *converter) stmtField(n *sitter.Node, name string) expr.Node {
	f := n.ChildByFieldName(name)
	if f == nil {
		return c.fail(n, "%s: missing %s", n.Type(), name)
	}
	if s := c.stmt(f); s != nil {
		return s
	}
	return &expr.Block{}
}

// forClause unwraps the parts of a for header, which the grammar wraps in
// statements.
func (c *converter) forClause(n *sitter.Node, init bool) expr.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "empty_statement", ";":
		return nil
	case "expression_statement":
		inner := namedChildren(n)
		if len(inner) != 1 {
			return nil
		}
		return c.expr(inner[0])
	case "lexical_declaration", "variable_declaration":
		if init {
			return c.varDecl(n)
		}
	}
	return c.expr(n)
}

func (c *converter) forIn(n *sitter.Node) expr.Node {
	if hasToken(n, "await") {
		return c.fail(n, "for await is not supported")
	}
	f := &expr.ForOf{In: hasToken(n, "in"), Iter: c.field(n, "right"), Body: c.stmtField(n, "body")}
	left := n.ChildByFieldName("left")
	if left == nil {
		return c.fail(n, "for: missing binding")
	}
	kind := ""
	for _, k := range []string{"let", "const", "var"} {
		if hasToken(n, k) {
			kind = k
		}
	}
	if kind == "" {
		f.Decl = c.target(left)
		return f
	}
	f.Decl = &expr.VarDecl{Kind: kind, Decls: []*expr.Declarator{{Target: c.pattern(left)}}}
	return f
}

func (c *converter) varDecl(n *sitter.Node) expr.Node {
	d := &expr.VarDecl{Kind: n.Child(0).Type()}
	for _, v := range namedChildren(n) {
		if v.Type() != "variable_declarator" {
			continue
		}
		decl := &expr.Declarator{Target: c.pattern(v.ChildByFieldName("name"))}
		if init := v.ChildByFieldName("value"); init != nil {
			decl.Init = c.expr(init)
		}
		d.Decls = append(d.Decls, decl)
	}
	return d
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(s, "_", "")
	if strings.HasSuffix(s, "n") {
		return 0, fmt.Errorf("bigint literal %s", s)
	}
	if len(s) > 1 && s[0] == '0' && strings.ContainsAny(s[1:2], "xXoObB") {
		i, err := strconv.ParseInt(s, 0, 64)
		return float64(i), err
	}
	return strconv.ParseFloat(s, 64)
}

// unescapeJS decodes the escape sequences of a JS string or template body.
func unescapeJS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0':
			sb.WriteByte(0)
		case '\n':
		case 'x':
			if i+2 < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					sb.WriteRune(rune(v))
					i += 2
					continue
				}
			}
			sb.WriteByte(e)
		case 'u':
			hex, width := "", 0
			if i+1 < len(s) && s[i+1] == '{' {
				if end := strings.IndexByte(s[i:], '}'); end > 0 {
					hex, width = s[i+2:i+end], end
				}
			} else if i+4 < len(s) {
				hex, width = s[i+1:i+5], 4
			}
			if v, err := strconv.ParseUint(hex, 16, 32); err == nil && width > 0 {
				sb.WriteRune(rune(v))
				i += width
				continue
			}
			sb.WriteByte(e)
		default:
			sb.WriteByte(e)
		}
	}
	return sb.String()
}
