package descriptor

import (
	"github.com/jward/pagelogic/internal/expr"
)

// InitFunc is the name of the loader call emitted by Source.
const InitFunc = "init"

// Source returns s as generated script source: a call of InitFunc with one
// object literal argument in which every exp and ref is a zero-argument
// function returning the stored expression.
func Source(s *Scope) string {
	call := &expr.Call{Callee: &expr.Identifier{Name: InitFunc}, Args: []expr.Node{Literal(s)}}
	return expr.Format(call) + ";\n"
}

// Literal returns s as an object-literal AST.
func Literal(s *Scope) *expr.Object {
	obj := &expr.Object{}
	prop := func(k string, v expr.Node) {
		obj.Props = append(obj.Props, &expr.Property{Key: k, Value: v})
	}
	prop("id", &expr.Literal{Value: float64(s.ID)})
	if s.Name != "" {
		prop("name", &expr.Literal{Value: s.Name})
	}
	if s.Isolate {
		prop("isolate", &expr.Literal{Value: true})
	}
	if len(s.Values) > 0 {
		values := &expr.Object{}
		for _, k := range s.Keys() {
			v := s.Values[k]
			entry := &expr.Object{Props: []*expr.Property{{Key: "exp", Value: thunk(v.Exp)}}}
			if len(v.Refs) > 0 {
				refs := &expr.Array{}
				for _, r := range v.Refs {
					refs.Elems = append(refs.Elems, thunk(r))
				}
				entry.Props = append(entry.Props, &expr.Property{Key: "refs", Value: refs})
			}
			values.Props = append(values.Props, &expr.Property{Key: k, Value: entry})
		}
		prop("values", values)
	}
	if len(s.Children) > 0 {
		children := &expr.Array{}
		for _, c := range s.Children {
			children.Elems = append(children.Elems, Literal(c))
		}
		prop("children", children)
	}
	return obj
}

func thunk(n expr.Node) *expr.Function {
	return &expr.Function{Body: &expr.Block{Body: []expr.Node{&expr.Return{Arg: n}}}}
}
