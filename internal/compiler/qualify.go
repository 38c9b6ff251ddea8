package compiler

import (
	"github.com/jward/pagelogic/internal/expr"
)

// Qualify rewrites every free identifier in n into an explicit receiver
// access: x becomes this.x. Identifiers bound by enclosing function
// parameters, declarations or catch clauses, and names in globals, are left
// alone. Outside nested functions, a read of key itself (x or this.x)
// becomes this.$parent.x so that a value can refine an ancestor binding of
// the same name. Qualifying a qualified tree returns an equal tree.
func Qualify(n expr.Node, key string, globals map[string]bool) expr.Node {
	q := &qualifier{key: key, globals: globals}
	return q.rewrite(n)
}

type qualifier struct {
	key     string
	globals map[string]bool
	levels  []map[string]bool
	fnDepth int
}

func (q *qualifier) push(names []string) {
	level := make(map[string]bool, len(names))
	for _, name := range names {
		level[name] = true
	}
	q.levels = append(q.levels, level)
}

func (q *qualifier) pop() { q.levels = q.levels[:len(q.levels)-1] }

func (q *qualifier) bound(name string) bool {
	for i := len(q.levels) - 1; i >= 0; i-- {
		if q.levels[i][name] {
			return true
		}
	}
	return false
}

func (q *qualifier) selfShadow(name string) bool {
	return q.fnDepth == 0 && q.key != "" && name == q.key
}

func (q *qualifier) rewriteAll(ns []expr.Node) {
	for i, n := range ns {
		if n != nil {
			ns[i] = q.rewrite(n)
		}
	}
}

func (q *qualifier) rewrite(n expr.Node) expr.Node {
	switch t := n.(type) {
	case nil:
		return nil
	case *expr.Identifier:
		if q.bound(t.Name) || q.globals[t.Name] {
			return t
		}
		if q.selfShadow(t.Name) {
			return expr.ParentQualified(t.Name)
		}
		return expr.Qualified(t.Name)
	case *expr.Member:
		if _, ok := t.Object.(*expr.This); ok && !t.Computed {
			if name, _ := expr.PropertyName(t); q.selfShadow(name) {
				return expr.ParentQualified(name)
			}
			return t
		}
		t.Object = q.rewrite(t.Object)
		if t.Computed {
			t.Property = q.rewrite(t.Property)
		}
	case *expr.Template:
		q.rewriteAll(t.Exprs)
	case *expr.Call:
		t.Callee = q.rewrite(t.Callee)
		q.rewriteAll(t.Args)
	case *expr.Unary:
		t.Arg = q.rewrite(t.Arg)
	case *expr.Update:
		t.Arg = q.rewrite(t.Arg)
	case *expr.Binary:
		t.Left = q.rewrite(t.Left)
		t.Right = q.rewrite(t.Right)
	case *expr.Assign:
		t.Target = q.rewrite(t.Target)
		t.Value = q.rewrite(t.Value)
	case *expr.Conditional:
		t.Test = q.rewrite(t.Test)
		t.Then = q.rewrite(t.Then)
		t.Else = q.rewrite(t.Else)
	case *expr.Sequence:
		q.rewriteAll(t.Exprs)
	case *expr.Array:
		q.rewriteAll(t.Elems)
	case *expr.Object:
		for _, p := range t.Props {
			p.Value = q.rewrite(p.Value)
		}
	case *expr.ObjectPattern:
		// Destructuring assignment: the targets are references.
		for _, p := range t.Props {
			p.Target = q.rewrite(p.Target)
		}
	case *expr.ArrayPattern:
		q.rewriteAll(t.Elems)
	case *expr.Function:
		q.fnDepth++
		var names []string
		if t.Name != "" {
			names = append(names, t.Name)
		}
		for _, p := range t.Params {
			names = append(names, expr.BoundNames(p)...)
		}
		names = append(names, hoistedVars(t.Body)...)
		q.push(names)
		t.Body = q.rewrite(t.Body)
		q.pop()
		q.fnDepth--
	case *expr.Block:
		q.push(blockNames(t.Body))
		q.rewriteAll(t.Body)
		q.pop()
	case *expr.VarDecl:
		for _, d := range t.Decls {
			d.Init = q.rewrite(d.Init)
		}
	case *expr.Return:
		t.Arg = q.rewrite(t.Arg)
	case *expr.If:
		t.Test = q.rewrite(t.Test)
		t.Then = q.rewrite(t.Then)
		t.Else = q.rewrite(t.Else)
	case *expr.ExprStmt:
		t.X = q.rewrite(t.X)
	case *expr.For:
		var names []string
		if d, ok := t.Init.(*expr.VarDecl); ok {
			names = expr.BoundNames(d)
		}
		q.push(names)
		t.Init = q.rewrite(t.Init)
		t.Test = q.rewrite(t.Test)
		t.Update = q.rewrite(t.Update)
		t.Body = q.rewrite(t.Body)
		q.pop()
	case *expr.ForOf:
		t.Iter = q.rewrite(t.Iter)
		d, isDecl := t.Decl.(*expr.VarDecl)
		var names []string
		if isDecl {
			names = expr.BoundNames(d)
		} else {
			t.Decl = q.rewrite(t.Decl)
		}
		q.push(names)
		t.Body = q.rewrite(t.Body)
		q.pop()
	case *expr.Try:
		q.rewrite(t.Block)
		if t.Handler != nil {
			var names []string
			if t.Param != nil {
				names = expr.BoundNames(t.Param)
			}
			q.push(names)
			q.rewrite(t.Handler)
			q.pop()
		}
		if t.Finally != nil {
			q.rewrite(t.Finally)
		}
	case *expr.Throw:
		t.Arg = q.rewrite(t.Arg)
	}
	return n
}

// blockNames returns the names declared directly in a block.
func blockNames(body []expr.Node) []string {
	var names []string
	for _, s := range body {
		if d, ok := s.(*expr.VarDecl); ok && d.Kind != "var" {
			names = append(names, expr.BoundNames(d)...)
		}
	}
	return names
}

// hoistedVars returns the names of var declarations anywhere in a function
// body, excluding nested functions.
func hoistedVars(body expr.Node) []string {
	var names []string
	var visit func(expr.Node)
	visit = func(n expr.Node) {
		switch t := n.(type) {
		case *expr.Function:
			return
		case *expr.VarDecl:
			if t.Kind == "var" {
				names = append(names, expr.BoundNames(t)...)
			}
		}
		for _, c := range expr.Children(n) {
			visit(c)
		}
	}
	if b, ok := body.(*expr.Block); ok {
		for _, s := range b.Body {
			visit(s)
		}
	}
	return names
}
