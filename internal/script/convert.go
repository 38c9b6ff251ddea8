package script

import (
	"github.com/risor-io/risor/object"

	"github.com/jward/pagelogic/internal/expr"
)

// toRisor converts an expression value to a Risor object.
func toRisor(v any) object.Object {
	switch t := v.(type) {
	case nil:
		return object.Nil
	case float64:
		if t == float64(int64(t)) {
			return object.NewInt(int64(t))
		}
		return object.NewFloat(t)
	case string:
		return object.NewString(t)
	case bool:
		return object.NewBool(t)
	case []any:
		items := make([]object.Object, len(t))
		for i, e := range t {
			items[i] = toRisor(e)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(t))
		for k, e := range t {
			m[k] = toRisor(e)
		}
		return object.NewMap(m)
	}
	if v == expr.Undefined {
		return object.Nil
	}
	return object.NewString(expr.ToString(v))
}

// fromRisor converts a Risor result to an expression value. Integers
// become float64.
func fromRisor(o object.Object) any {
	switch t := o.(type) {
	case nil, *object.NilType:
		return nil
	case *object.Int:
		return float64(t.Value())
	case *object.Float:
		return t.Value()
	case *object.String:
		return t.Value()
	case *object.Bool:
		return t.Value()
	case *object.List:
		items := t.Value()
		out := make([]any, len(items))
		for i, e := range items {
			out[i] = fromRisor(e)
		}
		return out
	case *object.Map:
		out := map[string]any{}
		for k, e := range t.Value() {
			out[k] = fromRisor(e)
		}
		return out
	}
	return expr.Normalize(o.Interface())
}
