package expr

import (
	"fmt"
	"math"
)

// HostObject is implemented by host values that expose named members to
// expressions, such as runtime scopes.
type HostObject interface {
	GetMember(name string) (any, error)
	SetMember(name string, v any) error
}

// Callable is any value an expression can call. this is the receiver the
// call was made on, or Undefined for plain calls.
type Callable interface {
	Call(this any, args []any) (any, error)
}

// Func adapts a Go function to Callable; the receiver is ignored.
type Func func(args ...any) (any, error)

// Call implements Callable.
func (f Func) Call(_ any, args []any) (any, error) { return f(args...) }

// ThrowError carries a value thrown by an expression, or a runtime type or
// reference error raised by the evaluator.
type ThrowError struct {
	Value any
}

func (e *ThrowError) Error() string {
	if m, ok := e.Value.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok {
			if name, ok := m["name"].(string); ok {
				return name + ": " + msg
			}
			return msg
		}
	}
	return "uncaught " + ToString(e.Value)
}

func throwf(name, format string, args ...any) error {
	return &ThrowError{Value: map[string]any{"name": name, "message": fmt.Sprintf(format, args...)}}
}

const maxLoopIterations = 1 << 20

type binding struct {
	v        any
	constant bool
}

type env struct {
	vars   map[string]*binding
	parent *env
	this   any
}

func newEnv(parent *env) *env {
	return &env{vars: map[string]*binding{}, parent: parent, this: parent.this}
}

func (e *env) lookup(name string) *binding {
	for s := e; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			return b
		}
	}
	return nil
}

type interp struct {
	globals map[string]any
}

type ctl int

const (
	ctlNone ctl = iota
	ctlReturn
	ctlBreak
	ctlContinue
)

// Eval evaluates n with this as the receiver. Free identifiers that are not
// locally bound are looked up in globals. A statement node is executed and
// the value of its return statement, if any, is returned.
func Eval(n Node, this any, globals map[string]any) (any, error) {
	in := &interp{globals: globals}
	e := &env{vars: map[string]*binding{}, this: this}
	if isStatement(n) {
		c, v, err := in.exec(n, e)
		if err != nil {
			return nil, err
		}
		if c == ctlReturn {
			return v, nil
		}
		return Undefined, nil
	}
	return in.eval(n, e)
}

// CallValue invokes fn with the given receiver, or raises a TypeError when fn is
// not callable.
func CallValue(fn any, this any, args ...any) (any, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, throwf("TypeError", "%s is not a function", ToString(fn))
	}
	return c.Call(this, args)
}

func isStatement(n Node) bool {
	switch n.(type) {
	case *Block, *VarDecl, *Return, *If, *ExprStmt, *For, *ForOf, *Try, *Throw, *Break, *Continue:
		return true
	}
	return false
}

func (in *interp) eval(n Node, e *env) (any, error) {
	switch t := n.(type) {
	case *Identifier:
		return in.ident(t.Name, e)
	case *This:
		return e.this, nil
	case *Literal:
		return t.Value, nil
	case *Template:
		s := t.Quasis[0]
		for i, x := range t.Exprs {
			v, err := in.eval(x, e)
			if err != nil {
				return nil, err
			}
			s += ToString(v)
			if i+1 < len(t.Quasis) {
				s += t.Quasis[i+1]
			}
		}
		return s, nil
	case *Member:
		obj, err := in.eval(t.Object, e)
		if err != nil {
			return nil, err
		}
		key, err := in.propertyKey(t, e)
		if err != nil {
			return nil, err
		}
		return GetMember(obj, key)
	case *Call:
		return in.call(t, e)
	case *Unary:
		return in.unary(t, e)
	case *Update:
		cur, err := in.eval(t.Arg, e)
		if err != nil {
			return nil, err
		}
		old := ToNumber(cur)
		nv := old + 1
		if t.Op == "--" {
			nv = old - 1
		}
		if err := in.assign(t.Arg, nv, e); err != nil {
			return nil, err
		}
		if t.Prefix {
			return nv, nil
		}
		return old, nil
	case *Binary:
		return in.binary(t, e)
	case *Assign:
		return in.assignExpr(t, e)
	case *Conditional:
		test, err := in.eval(t.Test, e)
		if err != nil {
			return nil, err
		}
		if Truthy(test) {
			return in.eval(t.Then, e)
		}
		return in.eval(t.Else, e)
	case *Sequence:
		var v any = Undefined
		for _, x := range t.Exprs {
			var err error
			if v, err = in.eval(x, e); err != nil {
				return nil, err
			}
		}
		return v, nil
	case *Array:
		out := make([]any, len(t.Elems))
		for i, x := range t.Elems {
			if x == nil {
				out[i] = Undefined
				continue
			}
			v, err := in.eval(x, e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *Object:
		out := make(map[string]any, len(t.Props))
		for _, p := range t.Props {
			v, err := in.eval(p.Value, e)
			if err != nil {
				return nil, err
			}
			out[p.Key] = v
		}
		return out, nil
	case *Function:
		return &closure{fn: t, env: e, in: in}, nil
	}
	return nil, fmt.Errorf("expr: cannot evaluate %T", n)
}

func (in *interp) ident(name string, e *env) (any, error) {
	if b := e.lookup(name); b != nil {
		return b.v, nil
	}
	switch name {
	case "undefined":
		return Undefined, nil
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	}
	if v, ok := in.globals[name]; ok {
		return v, nil
	}
	return nil, throwf("ReferenceError", "%s is not defined", name)
}

func (in *interp) propertyKey(m *Member, e *env) (any, error) {
	if !m.Computed {
		if id, ok := m.Property.(*Identifier); ok {
			return id.Name, nil
		}
	}
	return in.eval(m.Property, e)
}

func (in *interp) call(c *Call, e *env) (any, error) {
	var fn, this any = nil, Undefined
	if m, ok := c.Callee.(*Member); ok {
		obj, err := in.eval(m.Object, e)
		if err != nil {
			return nil, err
		}
		key, err := in.propertyKey(m, e)
		if err != nil {
			return nil, err
		}
		if fn, err = GetMember(obj, key); err != nil {
			return nil, err
		}
		this = obj
	} else {
		var err error
		if fn, err = in.eval(c.Callee, e); err != nil {
			return nil, err
		}
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := in.eval(a, e)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if _, ok := fn.(Callable); !ok {
		return nil, throwf("TypeError", "%s is not a function", Format(c.Callee))
	}
	return CallValue(fn, this, args...)
}

func (in *interp) unary(u *Unary, e *env) (any, error) {
	if u.Op == "typeof" {
		if id, ok := u.Arg.(*Identifier); ok {
			v, err := in.ident(id.Name, e)
			if err != nil {
				return "undefined", nil
			}
			return TypeOf(v), nil
		}
	}
	v, err := in.eval(u.Arg, e)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case "!":
		return !Truthy(v), nil
	case "-":
		return -ToNumber(v), nil
	case "+":
		return ToNumber(v), nil
	case "~":
		return float64(^toInt32(v)), nil
	case "typeof":
		return TypeOf(v), nil
	case "void":
		return Undefined, nil
	}
	return nil, fmt.Errorf("expr: unsupported unary operator %q", u.Op)
}

func (in *interp) binary(b *Binary, e *env) (any, error) {
	l, err := in.eval(b.Left, e)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case "&&":
		if !Truthy(l) {
			return l, nil
		}
		return in.eval(b.Right, e)
	case "||":
		if Truthy(l) {
			return l, nil
		}
		return in.eval(b.Right, e)
	case "??":
		if !IsNullish(l) {
			return l, nil
		}
		return in.eval(b.Right, e)
	}
	r, err := in.eval(b.Right, e)
	if err != nil {
		return nil, err
	}
	return BinaryOp(b.Op, l, r)
}

// BinaryOp applies a non-short-circuit binary operator.
func BinaryOp(op string, l, r any) (any, error) {
	switch op {
	case "+":
		if stringish(l) || stringish(r) {
			return ToString(l) + ToString(r), nil
		}
		return ToNumber(l) + ToNumber(r), nil
	case "-":
		return ToNumber(l) - ToNumber(r), nil
	case "*":
		return ToNumber(l) * ToNumber(r), nil
	case "/":
		return ToNumber(l) / ToNumber(r), nil
	case "%":
		return math.Mod(ToNumber(l), ToNumber(r)), nil
	case "**":
		return math.Pow(ToNumber(l), ToNumber(r)), nil
	case "==":
		return LooseEquals(l, r), nil
	case "!=":
		return !LooseEquals(l, r), nil
	case "===":
		return StrictEquals(l, r), nil
	case "!==":
		return !StrictEquals(l, r), nil
	case "<", ">", "<=", ">=":
		return compare(op, l, r), nil
	case "&":
		return float64(toInt32(l) & toInt32(r)), nil
	case "|":
		return float64(toInt32(l) | toInt32(r)), nil
	case "^":
		return float64(toInt32(l) ^ toInt32(r)), nil
	case "<<":
		return float64(toInt32(l) << (uint32(toInt32(r)) & 31)), nil
	case ">>":
		return float64(toInt32(l) >> (uint32(toInt32(r)) & 31)), nil
	case ">>>":
		return float64(uint32(toInt32(l)) >> (uint32(toInt32(r)) & 31)), nil
	case "in":
		key := ToString(l)
		switch o := r.(type) {
		case map[string]any:
			_, ok := o[key]
			return ok, nil
		case []any:
			i, ok := toIndex(l)
			return ok && i < len(o), nil
		case HostObject:
			v, err := o.GetMember(key)
			return err == nil && v != Undefined, nil
		}
		return nil, throwf("TypeError", "cannot use 'in' operator to search for '%s' in %s", key, ToString(r))
	}
	return nil, fmt.Errorf("expr: unsupported binary operator %q", op)
}

func stringish(v any) bool {
	switch v.(type) {
	case string, []any, map[string]any, HostObject:
		return true
	}
	return false
}

func compare(op string, l, r any) bool {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs
		case ">":
			return ls > rs
		case "<=":
			return ls <= rs
		}
		return ls >= rs
	}
	a, b := ToNumber(l), ToNumber(r)
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	}
	return a >= b
}

func toInt32(v any) int32 {
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(int64(f))
}

func (in *interp) assignExpr(a *Assign, e *env) (any, error) {
	if a.Op == "=" {
		v, err := in.eval(a.Value, e)
		if err != nil {
			return nil, err
		}
		return v, in.assign(a.Target, v, e)
	}
	cur, err := in.eval(a.Target, e)
	if err != nil {
		return nil, err
	}
	op := a.Op[:len(a.Op)-1]
	var v any
	switch op {
	case "&&", "||", "??":
		if (op == "&&" && !Truthy(cur)) || (op == "||" && Truthy(cur)) || (op == "??" && !IsNullish(cur)) {
			return cur, nil
		}
		if v, err = in.eval(a.Value, e); err != nil {
			return nil, err
		}
	default:
		r, err := in.eval(a.Value, e)
		if err != nil {
			return nil, err
		}
		if v, err = BinaryOp(op, cur, r); err != nil {
			return nil, err
		}
	}
	return v, in.assign(a.Target, v, e)
}

// assign stores v into an existing binding, member or destructuring pattern.
func (in *interp) assign(target Node, v any, e *env) error {
	switch t := target.(type) {
	case *Identifier:
		b := e.lookup(t.Name)
		if b == nil {
			return throwf("ReferenceError", "assignment to undeclared variable %s", t.Name)
		}
		if b.constant {
			return throwf("TypeError", "assignment to constant variable %s", t.Name)
		}
		b.v = v
		return nil
	case *Member:
		obj, err := in.eval(t.Object, e)
		if err != nil {
			return err
		}
		key, err := in.propertyKey(t, e)
		if err != nil {
			return err
		}
		return SetMember(obj, key, v)
	case *ObjectPattern, *ArrayPattern:
		return in.destructure(t, v, func(n Node, x any) error { return in.assign(n, x, e) })
	}
	return fmt.Errorf("expr: invalid assignment target %T", target)
}

// declare binds the names of target in e.
func (in *interp) declare(target Node, v any, e *env, constant bool) error {
	if id, ok := target.(*Identifier); ok {
		e.vars[id.Name] = &binding{v: v, constant: constant}
		return nil
	}
	return in.destructure(target, v, func(n Node, x any) error { return in.declare(n, x, e, constant) })
}

func (in *interp) destructure(target Node, v any, bind func(Node, any) error) error {
	switch t := target.(type) {
	case *ObjectPattern:
		for _, p := range t.Props {
			x, err := GetMember(v, p.Key)
			if err != nil {
				return err
			}
			if err := bind(p.Target, x); err != nil {
				return err
			}
		}
		return nil
	case *ArrayPattern:
		for i, el := range t.Elems {
			if el == nil {
				continue
			}
			x, err := GetMember(v, float64(i))
			if err != nil {
				return err
			}
			if err := bind(el, x); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("expr: invalid binding target %T", target)
}

func (in *interp) exec(n Node, e *env) (ctl, any, error) {
	switch t := n.(type) {
	case *Block:
		return in.execList(t.Body, newEnv(e))
	case *VarDecl:
		for _, d := range t.Decls {
			var v any = Undefined
			if d.Init != nil {
				var err error
				if v, err = in.eval(d.Init, e); err != nil {
					return ctlNone, nil, err
				}
			}
			if err := in.declare(d.Target, v, e, t.Kind == "const"); err != nil {
				return ctlNone, nil, err
			}
		}
		return ctlNone, nil, nil
	case *Return:
		if t.Arg == nil {
			return ctlReturn, Undefined, nil
		}
		v, err := in.eval(t.Arg, e)
		return ctlReturn, v, err
	case *If:
		test, err := in.eval(t.Test, e)
		if err != nil {
			return ctlNone, nil, err
		}
		if Truthy(test) {
			return in.exec(t.Then, e)
		}
		if t.Else != nil {
			return in.exec(t.Else, e)
		}
		return ctlNone, nil, nil
	case *ExprStmt:
		_, err := in.eval(t.X, e)
		return ctlNone, nil, err
	case *For:
		return in.execFor(t, e)
	case *ForOf:
		return in.execForOf(t, e)
	case *Try:
		return in.execTry(t, e)
	case *Throw:
		v, err := in.eval(t.Arg, e)
		if err != nil {
			return ctlNone, nil, err
		}
		return ctlNone, nil, &ThrowError{Value: v}
	case *Break:
		return ctlBreak, nil, nil
	case *Continue:
		return ctlContinue, nil, nil
	}
	_, err := in.eval(n, e)
	return ctlNone, nil, err
}

func (in *interp) execList(body []Node, e *env) (ctl, any, error) {
	for _, s := range body {
		c, v, err := in.exec(s, e)
		if err != nil || c != ctlNone {
			return c, v, err
		}
	}
	return ctlNone, nil, nil
}

func (in *interp) execFor(f *For, e *env) (ctl, any, error) {
	le := newEnv(e)
	if f.Init != nil {
		if _, _, err := in.exec(f.Init, le); err != nil {
			return ctlNone, nil, err
		}
	}
	for i := 0; ; i++ {
		if i >= maxLoopIterations {
			return ctlNone, nil, throwf("RangeError", "loop exceeded %d iterations", maxLoopIterations)
		}
		if f.Test != nil {
			test, err := in.eval(f.Test, le)
			if err != nil {
				return ctlNone, nil, err
			}
			if !Truthy(test) {
				break
			}
		}
		c, v, err := in.exec(f.Body, le)
		if err != nil || c == ctlReturn {
			return c, v, err
		}
		if c == ctlBreak {
			break
		}
		if f.Update != nil {
			if _, err := in.eval(f.Update, le); err != nil {
				return ctlNone, nil, err
			}
		}
	}
	return ctlNone, nil, nil
}

func (in *interp) execForOf(f *ForOf, e *env) (ctl, any, error) {
	iter, err := in.eval(f.Iter, e)
	if err != nil {
		return ctlNone, nil, err
	}
	items, err := iterate(iter, f.In)
	if err != nil {
		return ctlNone, nil, err
	}
	for _, item := range items {
		le := newEnv(e)
		if d, ok := f.Decl.(*VarDecl); ok {
			err = in.declare(d.Decls[0].Target, item, le, d.Kind == "const")
		} else {
			err = in.assign(f.Decl, item, le)
		}
		if err != nil {
			return ctlNone, nil, err
		}
		c, v, err := in.exec(f.Body, le)
		if err != nil || c == ctlReturn {
			return c, v, err
		}
		if c == ctlBreak {
			break
		}
	}
	return ctlNone, nil, nil
}

func iterate(v any, keys bool) ([]any, error) {
	switch t := v.(type) {
	case []any:
		if !keys {
			return t, nil
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = ToString(float64(i))
		}
		return out, nil
	case map[string]any:
		if !keys {
			return nil, throwf("TypeError", "object is not iterable")
		}
		ks := sortedKeys(t)
		out := make([]any, len(ks))
		for i, k := range ks {
			out[i] = k
		}
		return out, nil
	case string:
		rs := []rune(t)
		out := make([]any, len(rs))
		for i, r := range rs {
			if keys {
				out[i] = ToString(float64(i))
			} else {
				out[i] = string(r)
			}
		}
		return out, nil
	}
	if keys && IsNullish(v) {
		return nil, nil
	}
	return nil, throwf("TypeError", "%s is not iterable", ToString(v))
}

func (in *interp) execTry(t *Try, e *env) (ctl, any, error) {
	c, v, err := in.exec(t.Block, e)
	if err != nil && t.Handler != nil {
		he := newEnv(e)
		if t.Param != nil {
			if derr := in.declare(t.Param, thrownValue(err), he, false); derr != nil {
				return ctlNone, nil, derr
			}
		}
		c, v, err = in.exec(t.Handler, he)
	}
	if t.Finally != nil {
		fc, fv, ferr := in.exec(t.Finally, e)
		if ferr != nil || fc != ctlNone {
			return fc, fv, ferr
		}
	}
	return c, v, err
}

func thrownValue(err error) any {
	if te, ok := err.(*ThrowError); ok {
		return te.Value
	}
	return map[string]any{"name": "Error", "message": err.Error()}
}

type closure struct {
	fn  *Function
	env *env
	in  *interp
}

// Call implements Callable. Functions close over the receiver they were
// created with; the call-site receiver is ignored.
func (c *closure) Call(_ any, args []any) (any, error) {
	e := newEnv(c.env)
	if c.fn.Name != "" {
		e.vars[c.fn.Name] = &binding{v: c, constant: true}
	}
	for i, p := range c.fn.Params {
		var a any = Undefined
		if i < len(args) {
			a = args[i]
		}
		if err := c.in.declare(p, a, e, false); err != nil {
			return nil, err
		}
	}
	body, ok := c.fn.Body.(*Block)
	if !ok {
		return c.in.eval(c.fn.Body, e)
	}
	ct, v, err := c.in.execList(body.Body, e)
	if err != nil {
		return nil, err
	}
	if ct == ctlReturn {
		return v, nil
	}
	return Undefined, nil
}

func (c *closure) String() string { return "function" }
