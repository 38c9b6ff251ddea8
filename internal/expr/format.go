package expr

import (
	"strconv"
	"strings"
)

// Format prints n as JavaScript source.
func Format(n Node) string {
	var p printer
	p.node(n, 0)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	indent int
}

var binaryPrec = map[string]int{
	"??": 4, "||": 4, "&&": 5, "|": 6, "^": 7, "&": 8,
	"==": 9, "!=": 9, "===": 9, "!==": 9,
	"<": 10, ">": 10, "<=": 10, ">=": 10, "in": 10,
	"<<": 11, ">>": 11, ">>>": 11,
	"+": 12, "-": 12, "*": 13, "/": 13, "%": 13, "**": 14,
}

const (
	precSeq     = 1
	precAssign  = 2
	precCond    = 3
	precUnary   = 15
	precPostfix = 16
	precCall    = 17
	precPrimary = 18
)

func precedence(n Node) int {
	switch t := n.(type) {
	case *Sequence:
		return precSeq
	case *Assign, *Function:
		return precAssign
	case *Conditional:
		return precCond
	case *Binary:
		return binaryPrec[t.Op]
	case *Unary:
		return precUnary
	case *Update:
		if t.Prefix {
			return precUnary
		}
		return precPostfix
	case *Member, *Call:
		return precCall
	}
	return precPrimary
}

func (p *printer) w(s string) { p.sb.WriteString(s) }

func (p *printer) nl() {
	p.w("\n")
	p.w(strings.Repeat("  ", p.indent))
}

// node prints n, parenthesized when its precedence is below minPrec.
func (p *printer) node(n Node, minPrec int) {
	if n == nil {
		return
	}
	if isStatement(n) {
		p.stmt(n)
		return
	}
	paren := precedence(n) < minPrec
	if paren {
		p.w("(")
	}
	p.expr(n)
	if paren {
		p.w(")")
	}
}

func (p *printer) expr(n Node) {
	switch t := n.(type) {
	case *Identifier:
		p.w(t.Name)
	case *This:
		p.w("this")
	case *Literal:
		p.w(literal(t.Value))
	case *Template:
		p.w("`")
		for i, q := range t.Quasis {
			p.w(escapeTemplate(q))
			if i < len(t.Exprs) {
				p.w("${")
				p.node(t.Exprs[i], 0)
				p.w("}")
			}
		}
		p.w("`")
	case *Member:
		p.node(t.Object, precCall)
		if !t.Computed {
			name, _ := PropertyName(t)
			p.w(".")
			p.w(name)
		} else {
			p.w("[")
			p.node(t.Property, 0)
			p.w("]")
		}
	case *Call:
		p.node(t.Callee, precCall)
		p.w("(")
		p.list(t.Args)
		p.w(")")
	case *Unary:
		p.w(t.Op)
		if len(t.Op) > 1 {
			p.w(" ")
		} else if u, ok := t.Arg.(*Unary); ok && (u.Op == t.Op) {
			p.w(" ")
		}
		p.node(t.Arg, precUnary)
	case *Update:
		if t.Prefix {
			p.w(t.Op)
			p.node(t.Arg, precUnary)
		} else {
			p.node(t.Arg, precPostfix)
			p.w(t.Op)
		}
	case *Binary:
		prec := binaryPrec[t.Op]
		// ** is right-associative; the rest are left-associative.
		lmin, rmin := prec, prec+1
		if t.Op == "**" {
			lmin, rmin = prec+1, prec
		}
		p.node(t.Left, lmin)
		p.w(" " + t.Op + " ")
		p.node(t.Right, rmin)
	case *Assign:
		p.node(t.Target, precCall)
		p.w(" " + t.Op + " ")
		p.node(t.Value, precAssign)
	case *Conditional:
		p.node(t.Test, precCond+1)
		p.w(" ? ")
		p.node(t.Then, precAssign)
		p.w(" : ")
		p.node(t.Else, precAssign)
	case *Sequence:
		p.list(t.Exprs)
	case *Array:
		p.w("[")
		p.list(t.Elems)
		p.w("]")
	case *Object:
		if len(t.Props) == 0 {
			p.w("{}")
			return
		}
		p.w("{ ")
		for i, prop := range t.Props {
			if i > 0 {
				p.w(", ")
			}
			p.w(propertyKey(prop.Key))
			p.w(": ")
			p.node(prop.Value, precAssign)
		}
		p.w(" }")
	case *Function:
		if !t.Arrow {
			p.w("function ")
			p.w(t.Name)
		}
		p.w("(")
		p.list(t.Params)
		p.w(")")
		if t.Arrow {
			p.w(" =>")
		}
		p.w(" ")
		if b, ok := t.Body.(*Block); ok {
			p.stmt(b)
		} else if _, ok := t.Body.(*Object); ok {
			p.w("(")
			p.expr(t.Body)
			p.w(")")
		} else {
			p.node(t.Body, precAssign)
		}
	case *ObjectPattern:
		p.w("{ ")
		for i, prop := range t.Props {
			if i > 0 {
				p.w(", ")
			}
			if id, ok := prop.Target.(*Identifier); ok && id.Name == prop.Key {
				p.w(id.Name)
				continue
			}
			p.w(propertyKey(prop.Key))
			p.w(": ")
			p.node(prop.Target, precAssign)
		}
		p.w(" }")
	case *ArrayPattern:
		p.w("[")
		p.list(t.Elems)
		p.w("]")
	}
}

func (p *printer) list(ns []Node) {
	for i, n := range ns {
		if i > 0 {
			p.w(", ")
		}
		p.node(n, precAssign)
	}
}

func (p *printer) stmt(n Node) {
	switch t := n.(type) {
	case *Block:
		p.w("{")
		p.indent++
		for _, s := range t.Body {
			p.nl()
			p.stmt(s)
		}
		p.indent--
		if len(t.Body) > 0 {
			p.nl()
		}
		p.w("}")
	case *VarDecl:
		p.varDecl(t)
		p.w(";")
	case *Return:
		p.w("return")
		if t.Arg != nil {
			p.w(" ")
			p.node(t.Arg, 0)
		}
		p.w(";")
	case *If:
		p.w("if (")
		p.node(t.Test, 0)
		p.w(") ")
		p.stmt(t.Then)
		if t.Else != nil {
			p.w(" else ")
			p.stmt(t.Else)
		}
	case *ExprStmt:
		if _, ok := t.X.(*Object); ok {
			p.w("(")
			p.expr(t.X)
			p.w(")")
		} else {
			p.node(t.X, 0)
		}
		p.w(";")
	case *For:
		p.w("for (")
		if d, ok := t.Init.(*VarDecl); ok {
			p.varDecl(d)
		} else {
			p.node(t.Init, 0)
		}
		p.w("; ")
		p.node(t.Test, 0)
		p.w("; ")
		p.node(t.Update, 0)
		p.w(") ")
		p.stmt(t.Body)
	case *ForOf:
		p.w("for (")
		if d, ok := t.Decl.(*VarDecl); ok {
			p.varDecl(d)
		} else {
			p.node(t.Decl, precCall)
		}
		if t.In {
			p.w(" in ")
		} else {
			p.w(" of ")
		}
		p.node(t.Iter, precAssign)
		p.w(") ")
		p.stmt(t.Body)
	case *Try:
		p.w("try ")
		p.stmt(t.Block)
		if t.Handler != nil {
			p.w(" catch ")
			if t.Param != nil {
				p.w("(")
				p.node(t.Param, 0)
				p.w(") ")
			}
			p.stmt(t.Handler)
		}
		if t.Finally != nil {
			p.w(" finally ")
			p.stmt(t.Finally)
		}
	case *Throw:
		p.w("throw ")
		p.node(t.Arg, 0)
		p.w(";")
	case *Break:
		p.w("break;")
	case *Continue:
		p.w("continue;")
	default:
		p.node(n, 0)
		p.w(";")
	}
}

func (p *printer) varDecl(d *VarDecl) {
	p.w(d.Kind)
	p.w(" ")
	for i, dc := range d.Decls {
		if i > 0 {
			p.w(", ")
		}
		p.node(dc.Target, precAssign)
		if dc.Init != nil {
			p.w(" = ")
			p.node(dc.Init, precAssign)
		}
	}
}

func literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t < 0 {
			return "(" + formatNumber(t) + ")"
		}
		return formatNumber(t)
	}
	if v == Undefined {
		return "undefined"
	}
	return ToString(v)
}

func propertyKey(k string) string {
	if IsIdentifierName(k) {
		return k
	}
	return strconv.Quote(k)
}

func escapeTemplate(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`", "${", "\\${")
	return r.Replace(s)
}
