// Package expr implements the restricted expression language used in page
// markup: its AST, an evaluator that runs under an explicit receiver, a
// source printer and a JSON codec for portable descriptors.
package expr

// Node is any expression or statement node.
type Node interface {
	node()
}

// Reserved accessors understood by scope receivers.
const (
	ParentKey = "$parent"
	ValueKey  = "$value"
)

type (
	Identifier struct {
		Name string
	}

	// This is the explicit receiver; every qualified access starts here.
	This struct{}

	// Literal holds a string, float64, bool, nil (null) or Undefined.
	Literal struct {
		Value any
	}

	// Template is a template literal; len(Quasis) == len(Exprs)+1.
	Template struct {
		Quasis []string
		Exprs  []Node
	}

	// Member is a property access. When Computed is false Property is an
	// *Identifier naming the property.
	Member struct {
		Object   Node
		Property Node
		Computed bool
	}

	Call struct {
		Callee Node
		Args   []Node
	}

	Unary struct {
		Op  string
		Arg Node
	}

	Update struct {
		Op     string
		Prefix bool
		Arg    Node
	}

	// Binary covers arithmetic, comparison and the short-circuit operators.
	Binary struct {
		Op          string
		Left, Right Node
	}

	Assign struct {
		Op     string
		Target Node
		Value  Node
	}

	Conditional struct {
		Test, Then, Else Node
	}

	Sequence struct {
		Exprs []Node
	}

	Array struct {
		Elems []Node
	}

	Object struct {
		Props []*Property
	}

	// Function is an arrow function or a function expression. Body is a
	// *Block, or an expression for concise arrows. Name is set for named
	// function expressions and is bound inside the body.
	Function struct {
		Name   string
		Params []Node
		Body   Node
		Arrow  bool
	}

	ObjectPattern struct {
		Props []*PatternProp
	}

	ArrayPattern struct {
		Elems []Node
	}

	Block struct {
		Body []Node
	}

	VarDecl struct {
		Kind  string
		Decls []*Declarator
	}

	Return struct {
		Arg Node
	}

	If struct {
		Test, Then, Else Node
	}

	ExprStmt struct {
		X Node
	}

	For struct {
		Init, Test, Update, Body Node
	}

	// ForOf iterates values (of) or keys (in). Decl is a *VarDecl with one
	// declarator and no initializer, or an assignable expression.
	ForOf struct {
		Decl Node
		Iter Node
		Body Node
		In   bool
	}

	Try struct {
		Block   *Block
		Param   Node
		Handler *Block
		Finally *Block
	}

	Throw struct {
		Arg Node
	}

	Break    struct{}
	Continue struct{}
)

// Property is one key/value pair of an object literal.
type Property struct {
	Key   string
	Value Node
}

// PatternProp binds property Key of the destructured value to Target.
type PatternProp struct {
	Key    string
	Target Node
}

// Declarator is one binding of a variable declaration.
type Declarator struct {
	Target Node
	Init   Node
}

func (*Identifier) node()    {}
func (*This) node()          {}
func (*Literal) node()       {}
func (*Template) node()      {}
func (*Member) node()        {}
func (*Call) node()          {}
func (*Unary) node()         {}
func (*Update) node()        {}
func (*Binary) node()        {}
func (*Assign) node()        {}
func (*Conditional) node()   {}
func (*Sequence) node()      {}
func (*Array) node()         {}
func (*Object) node()        {}
func (*Function) node()      {}
func (*ObjectPattern) node() {}
func (*ArrayPattern) node()  {}
func (*Block) node()         {}
func (*VarDecl) node()       {}
func (*Return) node()        {}
func (*If) node()            {}
func (*ExprStmt) node()      {}
func (*For) node()           {}
func (*ForOf) node()         {}
func (*Try) node()           {}
func (*Throw) node()         {}
func (*Break) node()         {}
func (*Continue) node()      {}

// Qualified returns the receiver access this.name.
func Qualified(name string) *Member {
	return &Member{Object: &This{}, Property: &Identifier{Name: name}}
}

// ParentQualified returns this.$parent.name.
func ParentQualified(name string) *Member {
	return &Member{Object: Qualified(ParentKey), Property: &Identifier{Name: name}}
}

// ValueAccessor returns container.$value("name"), the expression yielding the
// Value bound to name as seen from container.
func ValueAccessor(container Node, name string) *Call {
	return &Call{
		Callee: &Member{Object: container, Property: &Identifier{Name: ValueKey}},
		Args:   []Node{&Literal{Value: name}},
	}
}

// PropertyName returns the static property name of m: the identifier of a
// dot access or the string of a computed string-literal access.
func PropertyName(m *Member) (string, bool) {
	if !m.Computed {
		id, ok := m.Property.(*Identifier)
		if !ok {
			return "", false
		}
		return id.Name, true
	}
	if lit, ok := m.Property.(*Literal); ok {
		if s, ok := lit.Value.(string); ok {
			return s, true
		}
	}
	return "", false
}

// IsIdentifierName reports whether s is a valid identifier.
func IsIdentifierName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// BoundNames returns the names a declaration target binds.
func BoundNames(target Node) []string {
	var names []string
	var collect func(Node)
	collect = func(n Node) {
		switch t := n.(type) {
		case *Identifier:
			names = append(names, t.Name)
		case *ObjectPattern:
			for _, p := range t.Props {
				collect(p.Target)
			}
		case *ArrayPattern:
			for _, e := range t.Elems {
				if e != nil {
					collect(e)
				}
			}
		case *VarDecl:
			for _, d := range t.Decls {
				collect(d.Target)
			}
		}
	}
	collect(target)
	return names
}
