package expr

import (
	"encoding/json"
	"fmt"
)

// MarshalNode encodes n as an ESTree-like JSON object with a "type" field.
func MarshalNode(n Node) ([]byte, error) {
	return json.Marshal(toMap(n))
}

// UnmarshalNode decodes the output of MarshalNode.
func UnmarshalNode(data []byte) (Node, error) {
	var m any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("expr: decode node: %w", err)
	}
	return FromJSON(m)
}

// ToJSON converts n to its generic JSON form.
func ToJSON(n Node) map[string]any { return toMap(n) }

// FromJSON converts a decoded generic JSON value back into a node.
func FromJSON(v any) (Node, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expr: decode node: want object, got %T", v)
	}
	return fromMap(m)
}

func toMap(n Node) map[string]any {
	if n == nil {
		return nil
	}
	list := func(ns []Node) []any {
		out := make([]any, len(ns))
		for i, x := range ns {
			if x != nil {
				out[i] = toMap(x)
			}
		}
		return out
	}
	opt := func(x Node) any {
		if x == nil {
			return nil
		}
		return toMap(x)
	}
	switch t := n.(type) {
	case *Identifier:
		return map[string]any{"type": "Identifier", "name": t.Name}
	case *This:
		return map[string]any{"type": "ThisExpression"}
	case *Literal:
		if t.Value == Undefined {
			return map[string]any{"type": "Literal", "undefined": true}
		}
		return map[string]any{"type": "Literal", "value": t.Value}
	case *Template:
		qs := make([]any, len(t.Quasis))
		for i, q := range t.Quasis {
			qs[i] = q
		}
		return map[string]any{"type": "TemplateLiteral", "quasis": qs, "expressions": list(t.Exprs)}
	case *Member:
		return map[string]any{"type": "MemberExpression", "object": toMap(t.Object), "property": toMap(t.Property), "computed": t.Computed}
	case *Call:
		return map[string]any{"type": "CallExpression", "callee": toMap(t.Callee), "arguments": list(t.Args)}
	case *Unary:
		return map[string]any{"type": "UnaryExpression", "operator": t.Op, "argument": toMap(t.Arg)}
	case *Update:
		return map[string]any{"type": "UpdateExpression", "operator": t.Op, "prefix": t.Prefix, "argument": toMap(t.Arg)}
	case *Binary:
		return map[string]any{"type": "BinaryExpression", "operator": t.Op, "left": toMap(t.Left), "right": toMap(t.Right)}
	case *Assign:
		return map[string]any{"type": "AssignmentExpression", "operator": t.Op, "left": toMap(t.Target), "right": toMap(t.Value)}
	case *Conditional:
		return map[string]any{"type": "ConditionalExpression", "test": toMap(t.Test), "consequent": toMap(t.Then), "alternate": toMap(t.Else)}
	case *Sequence:
		return map[string]any{"type": "SequenceExpression", "expressions": list(t.Exprs)}
	case *Array:
		return map[string]any{"type": "ArrayExpression", "elements": list(t.Elems)}
	case *Object:
		props := make([]any, len(t.Props))
		for i, p := range t.Props {
			props[i] = map[string]any{"key": p.Key, "value": toMap(p.Value)}
		}
		return map[string]any{"type": "ObjectExpression", "properties": props}
	case *Function:
		m := map[string]any{"type": "FunctionExpression", "params": list(t.Params), "body": toMap(t.Body), "arrow": t.Arrow}
		if t.Name != "" {
			m["name"] = t.Name
		}
		return m
	case *ObjectPattern:
		props := make([]any, len(t.Props))
		for i, p := range t.Props {
			props[i] = map[string]any{"key": p.Key, "value": toMap(p.Target)}
		}
		return map[string]any{"type": "ObjectPattern", "properties": props}
	case *ArrayPattern:
		return map[string]any{"type": "ArrayPattern", "elements": list(t.Elems)}
	case *Block:
		return map[string]any{"type": "BlockStatement", "body": list(t.Body)}
	case *VarDecl:
		decls := make([]any, len(t.Decls))
		for i, d := range t.Decls {
			decls[i] = map[string]any{"id": toMap(d.Target), "init": opt(d.Init)}
		}
		return map[string]any{"type": "VariableDeclaration", "kind": t.Kind, "declarations": decls}
	case *Return:
		return map[string]any{"type": "ReturnStatement", "argument": opt(t.Arg)}
	case *If:
		return map[string]any{"type": "IfStatement", "test": toMap(t.Test), "consequent": toMap(t.Then), "alternate": opt(t.Else)}
	case *ExprStmt:
		return map[string]any{"type": "ExpressionStatement", "expression": toMap(t.X)}
	case *For:
		return map[string]any{"type": "ForStatement", "init": opt(t.Init), "test": opt(t.Test), "update": opt(t.Update), "body": toMap(t.Body)}
	case *ForOf:
		typ := "ForOfStatement"
		if t.In {
			typ = "ForInStatement"
		}
		return map[string]any{"type": typ, "left": toMap(t.Decl), "right": toMap(t.Iter), "body": toMap(t.Body)}
	case *Try:
		m := map[string]any{"type": "TryStatement", "block": toMap(t.Block), "param": opt(t.Param)}
		if t.Handler != nil {
			m["handler"] = toMap(t.Handler)
		}
		if t.Finally != nil {
			m["finalizer"] = toMap(t.Finally)
		}
		return m
	case *Throw:
		return map[string]any{"type": "ThrowStatement", "argument": toMap(t.Arg)}
	case *Break:
		return map[string]any{"type": "BreakStatement"}
	case *Continue:
		return map[string]any{"type": "ContinueStatement"}
	}
	panic(fmt.Sprintf("expr: cannot encode %T", n))
}

type decoder struct {
	m   map[string]any
	err error
}

func (d *decoder) node(key string) Node {
	if d.err != nil {
		return nil
	}
	n, err := FromJSON(d.m[key])
	if err != nil {
		d.err = err
	}
	return n
}

func (d *decoder) list(key string) []Node {
	raw, _ := d.m[key].([]any)
	if len(raw) == 0 {
		return nil
	}
	out := make([]Node, len(raw))
	for i, x := range raw {
		if d.err != nil {
			return nil
		}
		out[i], d.err = FromJSON(x)
	}
	return out
}

func (d *decoder) block(key string) *Block {
	n := d.node(key)
	if n == nil {
		return nil
	}
	b, ok := n.(*Block)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("expr: decode node: %s is %T, want block", key, n)
	}
	return b
}

func (d *decoder) str(key string) string {
	s, _ := d.m[key].(string)
	return s
}

func (d *decoder) boolean(key string) bool {
	b, _ := d.m[key].(bool)
	return b
}

func (d *decoder) pairs(key string) [][2]any {
	raw, _ := d.m[key].([]any)
	out := make([][2]any, 0, len(raw))
	for _, x := range raw {
		pm, ok := x.(map[string]any)
		if !ok {
			d.err = fmt.Errorf("expr: decode node: bad %s entry", key)
			return nil
		}
		out = append(out, [2]any{pm["key"], pm["value"]})
	}
	return out
}

func fromMap(m map[string]any) (Node, error) {
	d := &decoder{m: m}
	var n Node
	switch typ := d.str("type"); typ {
	case "Identifier":
		n = &Identifier{Name: d.str("name")}
	case "ThisExpression":
		n = &This{}
	case "Literal":
		if d.boolean("undefined") {
			n = &Literal{Value: Undefined}
		} else {
			n = &Literal{Value: Normalize(m["value"])}
		}
	case "TemplateLiteral":
		raw, _ := m["quasis"].([]any)
		qs := make([]string, len(raw))
		for i, q := range raw {
			qs[i], _ = q.(string)
		}
		n = &Template{Quasis: qs, Exprs: d.list("expressions")}
	case "MemberExpression":
		n = &Member{Object: d.node("object"), Property: d.node("property"), Computed: d.boolean("computed")}
	case "CallExpression":
		n = &Call{Callee: d.node("callee"), Args: d.list("arguments")}
	case "UnaryExpression":
		n = &Unary{Op: d.str("operator"), Arg: d.node("argument")}
	case "UpdateExpression":
		n = &Update{Op: d.str("operator"), Prefix: d.boolean("prefix"), Arg: d.node("argument")}
	case "BinaryExpression":
		n = &Binary{Op: d.str("operator"), Left: d.node("left"), Right: d.node("right")}
	case "AssignmentExpression":
		n = &Assign{Op: d.str("operator"), Target: d.node("left"), Value: d.node("right")}
	case "ConditionalExpression":
		n = &Conditional{Test: d.node("test"), Then: d.node("consequent"), Else: d.node("alternate")}
	case "SequenceExpression":
		n = &Sequence{Exprs: d.list("expressions")}
	case "ArrayExpression":
		n = &Array{Elems: d.list("elements")}
	case "ObjectExpression":
		o := &Object{}
		for _, p := range d.pairs("properties") {
			k, _ := p[0].(string)
			v, err := FromJSON(p[1])
			if err != nil {
				return nil, err
			}
			o.Props = append(o.Props, &Property{Key: k, Value: v})
		}
		n = o
	case "FunctionExpression":
		n = &Function{Name: d.str("name"), Params: d.list("params"), Body: d.node("body"), Arrow: d.boolean("arrow")}
	case "ObjectPattern":
		o := &ObjectPattern{}
		for _, p := range d.pairs("properties") {
			k, _ := p[0].(string)
			v, err := FromJSON(p[1])
			if err != nil {
				return nil, err
			}
			o.Props = append(o.Props, &PatternProp{Key: k, Target: v})
		}
		n = o
	case "ArrayPattern":
		n = &ArrayPattern{Elems: d.list("elements")}
	case "BlockStatement":
		n = &Block{Body: d.list("body")}
	case "VariableDeclaration":
		v := &VarDecl{Kind: d.str("kind")}
		raw, _ := m["declarations"].([]any)
		for _, x := range raw {
			dm, ok := x.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expr: decode node: bad declarator")
			}
			dd := &decoder{m: dm}
			decl := &Declarator{Target: dd.node("id"), Init: dd.node("init")}
			if dd.err != nil {
				return nil, dd.err
			}
			v.Decls = append(v.Decls, decl)
		}
		n = v
	case "ReturnStatement":
		n = &Return{Arg: d.node("argument")}
	case "IfStatement":
		n = &If{Test: d.node("test"), Then: d.node("consequent"), Else: d.node("alternate")}
	case "ExpressionStatement":
		n = &ExprStmt{X: d.node("expression")}
	case "ForStatement":
		n = &For{Init: d.node("init"), Test: d.node("test"), Update: d.node("update"), Body: d.node("body")}
	case "ForOfStatement", "ForInStatement":
		n = &ForOf{Decl: d.node("left"), Iter: d.node("right"), Body: d.node("body"), In: typ == "ForInStatement"}
	case "TryStatement":
		n = &Try{Block: d.block("block"), Param: d.node("param"), Handler: d.block("handler"), Finally: d.block("finalizer")}
	case "ThrowStatement":
		n = &Throw{Arg: d.node("argument")}
	case "BreakStatement":
		n = &Break{}
	case "ContinueStatement":
		n = &Continue{}
	default:
		return nil, fmt.Errorf("expr: decode node: unknown type %q", typ)
	}
	if d.err != nil {
		return nil, d.err
	}
	return n, nil
}
