package expr

// Inspect traverses the tree rooted at n in depth-first order, like
// go/ast.Inspect: f is called for each node, and if it returns true Inspect
// visits the node's children and then calls f(nil).
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
	f(nil)
}

// Children returns the direct child nodes of n in source order. Non-computed
// member properties and object keys are not children.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch t := n.(type) {
	case *Template:
		add(t.Exprs...)
	case *Member:
		add(t.Object)
		if t.Computed {
			add(t.Property)
		}
	case *Call:
		add(t.Callee)
		add(t.Args...)
	case *Unary:
		add(t.Arg)
	case *Update:
		add(t.Arg)
	case *Binary:
		add(t.Left, t.Right)
	case *Assign:
		add(t.Target, t.Value)
	case *Conditional:
		add(t.Test, t.Then, t.Else)
	case *Sequence:
		add(t.Exprs...)
	case *Array:
		add(t.Elems...)
	case *Object:
		for _, p := range t.Props {
			add(p.Value)
		}
	case *Function:
		add(t.Params...)
		add(t.Body)
	case *ObjectPattern:
		for _, p := range t.Props {
			add(p.Target)
		}
	case *ArrayPattern:
		add(t.Elems...)
	case *Block:
		add(t.Body...)
	case *VarDecl:
		for _, d := range t.Decls {
			add(d.Target, d.Init)
		}
	case *Return:
		add(t.Arg)
	case *If:
		add(t.Test, t.Then, t.Else)
	case *ExprStmt:
		add(t.X)
	case *For:
		add(t.Init, t.Test, t.Update, t.Body)
	case *ForOf:
		add(t.Decl, t.Iter, t.Body)
	case *Try:
		if t.Block != nil {
			add(t.Block)
		}
		add(t.Param)
		if t.Handler != nil {
			add(t.Handler)
		}
		if t.Finally != nil {
			add(t.Finally)
		}
	case *Throw:
		add(t.Arg)
	}
	return out
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	m := toMap(n)
	c, err := fromMap(m)
	if err != nil {
		// toMap output always decodes.
		panic("expr: clone: " + err.Error())
	}
	return c
}
