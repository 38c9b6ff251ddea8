package compiler

import (
	"github.com/jward/pagelogic/internal/descriptor"
	"github.com/jward/pagelogic/internal/expr"
)

// generate serializes the resolved scope tree. Expressions are cloned so the
// descriptor shares no nodes with compiler state.
func generate(s *Scope) *descriptor.Scope {
	out := &descriptor.Scope{ID: s.ID, Name: s.Name, Isolate: s.Isolate, Values: make(map[string]*descriptor.Value, len(s.Values))}
	for _, k := range s.Keys {
		v := s.Values[k]
		dv := &descriptor.Value{}
		if n := v.Expr(); n != nil {
			dv.Exp = expr.Clone(n)
		} else {
			dv.Exp = &expr.Literal{Value: v.Val}
		}
		for _, r := range v.Refs {
			dv.Refs = append(dv.Refs, expr.Clone(r))
		}
		out.Values[k] = dv
	}
	for _, c := range s.Children {
		out.Children = append(out.Children, generate(c))
	}
	return out
}
