package reactive

import (
	"fmt"

	"github.com/jward/pagelogic/internal/expr"
)

// Value is a handle to one live value.
type Value struct {
	ctx *Context
	id  int
}

func (v Value) slot() *valueSlot { return &v.ctx.values[v.id] }

// Key returns the value's key within its scope.
func (v Value) Key() string { return v.slot().key }

// Scope returns the owning scope.
func (v Value) Scope() Scope { return Scope{ctx: v.ctx, idx: v.slot().scope} }

// Get returns the current result, recomputing it if the value is stale.
func (v Value) Get() any { return v.ctx.get(v.id) }

// Raw returns the last computed result before the callback, without
// recomputing.
func (v Value) Raw() any { return v.slot().v1 }

// Set replaces the value's formula with the constant x and propagates when
// x differs from the previous result.
func (v Value) Set(x any) { v.ctx.set(v.id, x) }

// Err returns the error of the last failed evaluation, or nil once an
// evaluation succeeds.
func (v Value) Err() error { return v.slot().err }

// Cycle returns the cycle the value was last computed in, or -1.
func (v Value) Cycle() int { return v.slot().cycle }

// Current reports whether the value is up to date with its context.
func (v Value) Current() bool { return v.slot().cycle == v.ctx.cycle }

// SetCallback installs cb as the post-processor of raw results. cb runs
// whenever the raw result changes; its return value is what Get yields.
func (v Value) SetCallback(cb func(any) any) { v.slot().cb = cb }

// Sources returns the values v depends on.
func (v Value) Sources() []Value { return v.handles(v.slot().src) }

// Dependents returns the values that depend on v.
func (v Value) Dependents() []Value { return v.handles(v.slot().dst) }

func (v Value) handles(set map[int]struct{}) []Value {
	ids := sortedIDs(set)
	out := make([]Value, len(ids))
	for i, id := range ids {
		out[i] = Value{ctx: v.ctx, id: id}
	}
	return out
}

// GetMember implements expr.HostObject so expressions can drive a value
// obtained through $value: get(), set(x) and the value property.
func (v Value) GetMember(name string) (any, error) {
	switch name {
	case "value":
		return v.Get(), nil
	case "key":
		return v.Key(), nil
	case "get":
		return expr.Func(func(...any) (any, error) { return v.Get(), nil }), nil
	case "set":
		return expr.Func(func(args ...any) (any, error) {
			x := expr.Undefined
			if len(args) > 0 {
				x = args[0]
			}
			v.Set(x)
			return expr.Undefined, nil
		}), nil
	}
	return expr.Undefined, nil
}

// SetMember implements expr.HostObject; assigning value is the same as set.
func (v Value) SetMember(name string, x any) error {
	if name != "value" {
		return &expr.ThrowError{Value: map[string]any{"name": "TypeError", "message": "cannot assign to " + name}}
	}
	v.Set(x)
	return nil
}

func (v Value) String() string {
	return fmt.Sprintf("%s.%s", v.Scope(), v.Key())
}
