package reactive

import (
	"fmt"

	"github.com/jward/pagelogic/internal/expr"
)

// Scope is a handle to one live scope. It is the receiver of every
// expression of the scope.
type Scope struct {
	ctx *Context
	idx int
}

func (s Scope) slot() *scopeSlot { return &s.ctx.scopes[s.idx] }

// ID returns the compile-time scope id.
func (s Scope) ID() int { return s.slot().id }

// Name returns the scope name, or "".
func (s Scope) Name() string { return s.slot().name }

// Isolated reports whether lookups stop at s.
func (s Scope) Isolated() bool { return s.slot().isolate }

// Context returns the context owning s.
func (s Scope) Context() *Context { return s.ctx }

// Parent returns the enclosing scope.
func (s Scope) Parent() (Scope, bool) {
	p := s.slot().parent
	if p < 0 {
		return Scope{}, false
	}
	return Scope{ctx: s.ctx, idx: p}, true
}

// Children returns the child scopes in document order.
func (s Scope) Children() []Scope {
	out := make([]Scope, len(s.slot().children))
	for i, ci := range s.slot().children {
		out[i] = Scope{ctx: s.ctx, idx: ci}
	}
	return out
}

// Keys returns the keys of the values owned by s, sorted.
func (s Scope) Keys() []string { return append([]string(nil), s.slot().keys...) }

// Value returns the value owned by s under key.
func (s Scope) Value(key string) (Value, bool) {
	id, ok := s.slot().values[key]
	if !ok {
		return Value{}, false
	}
	return Value{ctx: s.ctx, id: id}, true
}

// Values returns the values owned by s, in key order.
func (s Scope) Values() []Value {
	out := make([]Value, 0, len(s.slot().keys))
	for _, k := range s.slot().keys {
		out = append(out, Value{ctx: s.ctx, id: s.slot().values[k]})
	}
	return out
}

// binding is the result of a name lookup: a value, or a scope reached by
// name.
type binding struct {
	value int
	scope int
}

// lookup resolves name from s. At each level it tries the scope's own
// values, then its named children, then the scope's own name, and then
// continues with the parent unless the scope is isolated.
func (s Scope) lookup(name string) (binding, bool) {
	c := s.ctx
	for si := s.idx; si >= 0; {
		sc := &c.scopes[si]
		if id, ok := sc.values[name]; ok {
			return binding{value: id, scope: -1}, true
		}
		for _, ci := range sc.children {
			if c.scopes[ci].name == name {
				return binding{value: -1, scope: ci}, true
			}
		}
		if sc.name == name {
			return binding{value: -1, scope: si}, true
		}
		if sc.isolate {
			break
		}
		si = sc.parent
	}
	return binding{}, false
}

// Lookup returns the value bound to name as seen from s.
func (s Scope) Lookup(name string) (Value, bool) {
	b, ok := s.lookup(name)
	if !ok || b.value < 0 {
		return Value{}, false
	}
	return Value{ctx: s.ctx, id: b.value}, true
}

// Get returns the current result of the value bound to name, a scope
// reached by name, or expr.Undefined.
func (s Scope) Get(name string) any {
	v, _ := s.GetMember(name)
	return v
}

// Set writes x to the value bound to name.
func (s Scope) Set(name string, x any) error {
	return s.SetMember(name, x)
}

// GetMember implements expr.HostObject.
func (s Scope) GetMember(name string) (any, error) {
	switch name {
	case expr.ParentKey:
		sc := s.slot()
		if sc.parent < 0 || sc.isolate {
			return expr.Undefined, nil
		}
		return Scope{ctx: s.ctx, idx: sc.parent}, nil
	case expr.ValueKey:
		return expr.Func(func(args ...any) (any, error) {
			if len(args) == 0 {
				return expr.Undefined, nil
			}
			if v, ok := s.Lookup(expr.ToString(args[0])); ok {
				return v, nil
			}
			return expr.Undefined, nil
		}), nil
	}
	b, ok := s.lookup(name)
	switch {
	case !ok:
		return expr.Undefined, nil
	case b.value >= 0:
		return s.ctx.get(b.value), nil
	default:
		return Scope{ctx: s.ctx, idx: b.scope}, nil
	}
}

// SetMember implements expr.HostObject. Only names bound to values are
// writable.
func (s Scope) SetMember(name string, x any) error {
	v, ok := s.Lookup(name)
	if !ok {
		return &expr.ThrowError{Value: map[string]any{
			"name":    "TypeError",
			"message": fmt.Sprintf("cannot assign to %s: no value bound in scope %d", name, s.ID()),
		}}
	}
	v.Set(x)
	return nil
}

func (s Scope) String() string {
	if n := s.Name(); n != "" {
		return fmt.Sprintf("scope %d (%s)", s.ID(), n)
	}
	return fmt.Sprintf("scope %d", s.ID())
}
