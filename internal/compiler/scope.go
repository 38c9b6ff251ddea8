package compiler

import (
	"github.com/jward/pagelogic/internal/dom"
	"github.com/jward/pagelogic/internal/expr"
)

// Scope is the compile-time reactive namespace bound to one markup node.
type Scope struct {
	ID       int
	Name     string
	Node     *dom.Node
	Values   map[string]*Value
	Keys     []string // Values keys in declaration order
	Texts    []*Value // text interpolations in document order
	Children []*Scope
	Parent   *Scope
	Isolate  bool
}

// Value is one reactive cell of a Scope. Val is a literal (string, float64,
// bool) or an expr.Node. Refs and Targets are filled by the resolver and are
// parallel: Refs[i] evaluates to the runtime Value for Targets[i].
type Value struct {
	Key     string
	Val     any
	Refs    []expr.Node
	Targets []*Value
	Scope   *Scope
	Src     *dom.Node
	Loc     dom.Loc
}

func newScope(id int, n *dom.Node, parent *Scope) *Scope {
	s := &Scope{ID: id, Node: n, Parent: parent, Values: map[string]*Value{}}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

func (s *Scope) add(v *Value) {
	v.Scope = s
	if _, ok := s.Values[v.Key]; !ok {
		s.Keys = append(s.Keys, v.Key)
	}
	s.Values[v.Key] = v
}

// Child returns the named child scope with the given name.
func (s *Scope) Child(name string) *Scope {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Expr returns the value's expression, or nil for literals.
func (v *Value) Expr() expr.Node {
	n, _ := v.Val.(expr.Node)
	return n
}

// Walk visits s and its descendants in id order.
func Walk(s *Scope, fn func(*Scope)) {
	fn(s)
	for _, c := range s.Children {
		Walk(c, fn)
	}
}

// Values returns every value of the tree rooted at s, in id order and, within
// a scope, declaration order.
func Values(s *Scope) []*Value {
	var out []*Value
	Walk(s, func(sc *Scope) {
		for _, k := range sc.Keys {
			out = append(out, sc.Values[k])
		}
	})
	return out
}
