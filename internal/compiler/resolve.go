package compiler

import (
	"strings"

	"github.com/jward/pagelogic/internal/expr"
)

// resolver binds the qualified receiver paths of every expression value to
// the values they read, filling Value.Refs and Value.Targets.
type resolver struct {
	diags *diagnostics
}

func (r *resolver) resolve(root *Scope) {
	for _, v := range Values(root) {
		if n := v.Expr(); n != nil {
			r.value(v, n)
		}
	}
}

func (r *resolver) value(v *Value, n expr.Node) {
	seen := map[string]bool{}
	var visit func(n expr.Node, fnDepth int)
	visit = func(n expr.Node, fnDepth int) {
		if n == nil {
			return
		}
		if m, ok := n.(*expr.Member); ok {
			if chain := receiverChain(m); chain != nil {
				r.chain(v, chain, fnDepth, seen)
				for _, c := range chain {
					if c.Computed {
						visit(c.Property, fnDepth)
					}
				}
				return
			}
		}
		if _, ok := n.(*expr.Function); ok {
			fnDepth++
		}
		for _, c := range expr.Children(n) {
			visit(c, fnDepth)
		}
	}
	visit(n, 0)
}

// receiverChain returns the member accesses of m from the innermost one,
// whose object is this, outward. It returns nil when m is not rooted at this.
func receiverChain(m *expr.Member) []*expr.Member {
	var chain []*expr.Member
	var cur expr.Node = m
	for {
		switch t := cur.(type) {
		case *expr.Member:
			chain = append(chain, t)
			cur = t.Object
			continue
		case *expr.This:
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain
		}
		return nil
	}
}

// staticPath returns the leading property names of chain that are known at
// compile time. String-literal computed accesses with identifier-shaped
// keys are normalized to dot accesses.
func staticPath(chain []*expr.Member) []string {
	var path []string
	for _, m := range chain {
		name, ok := expr.PropertyName(m)
		if !ok || !expr.IsIdentifierName(name) {
			break
		}
		if m.Computed {
			m.Computed = false
			m.Property = &expr.Identifier{Name: name}
		}
		path = append(path, name)
	}
	return path
}

func (r *resolver) chain(v *Value, chain []*expr.Member, fnDepth int, seen map[string]bool) {
	path := staticPath(chain)
	cur := v.Scope
	consumed := false
	for i := 0; i < len(path); {
		seg := path[i]
		switch {
		case seg == expr.ParentKey:
			if cur.Parent == nil || cur.Isolate {
				if fnDepth == 0 && len(path) == 2 && path[1] == v.Key {
					r.diags.warnf(CodeSelfReference, v.Loc, "%s refers to itself and has no outer binding", v.Key)
					return
				}
				r.diags.errorf(CodeRefNotFound, v.Loc, "Reference not found: %s", strings.Join(path, "."))
				return
			}
			cur = cur.Parent
			i++
		case strings.HasPrefix(seg, "$"):
			return
		case cur.Values[seg] != nil:
			target := cur.Values[seg]
			if target == v {
				if fnDepth == 0 {
					r.diags.warnf(CodeSelfReference, v.Loc, "%s refers to itself", v.Key)
					return
				}
				// Inside a function the access reads the outer binding of the
				// same name; the runtime re-targets it when linking.
				if outer := outerValue(cur, seg); outer != nil {
					target = outer
				}
			}
			ref := expr.ValueAccessor(expr.Clone(chain[i].Object), seg)
			key := expr.Format(ref)
			if !seen[key] {
				seen[key] = true
				v.Refs = append(v.Refs, ref)
				v.Targets = append(v.Targets, target)
			}
			return
		case cur.Child(seg) != nil:
			cur = cur.Child(seg)
			consumed = true
			i++
		case seg == cur.Name:
			consumed = true
			i++
		case !consumed && cur.Parent != nil && !cur.Isolate:
			cur = cur.Parent
		default:
			r.diags.errorf(CodeRefNotFound, v.Loc, "Reference not found: %s", strings.Join(path[:i+1], "."))
			return
		}
	}
}

// outerValue returns the nearest value named key in the ancestors of s,
// honoring isolation.
func outerValue(s *Scope, key string) *Value {
	for !s.Isolate && s.Parent != nil {
		s = s.Parent
		if v := s.Values[key]; v != nil {
			return v
		}
		if s.Child(key) != nil || s.Name == key {
			return nil
		}
	}
	return nil
}
