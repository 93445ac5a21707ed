package decompiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer renders decompiled code as Haxe-like source.
type Printer struct {
	// Indent is the number of spaces per nesting level; 0 means 4.
	Indent int
}

// Print renders the statements of fb, one per line.
func (pr Printer) Print(fb *FunctionBody) string {
	w := pr.writer()
	w.stmts(fb.Stmts)
	return w.String()
}

// PrintFunction renders fb with its signature.
func (pr Printer) PrintFunction(fb *FunctionBody) string {
	w := pr.writer()
	w.function("", fb)
	return w.String()
}

func (pr Printer) writer() *writer {
	n := pr.Indent
	if n <= 0 {
		n = 4
	}
	return &writer{indent: strings.Repeat(" ", n)}
}

type writer struct {
	strings.Builder
	indent string
	depth  int
}

func (w *writer) line(format string, args ...any) {
	w.WriteString(strings.Repeat(w.indent, w.depth))
	fmt.Fprintf(w, format, args...)
	w.WriteByte('\n')
}

func (w *writer) block(list []Stmt) {
	w.depth++
	w.stmts(list)
	w.depth--
}

func signature(fb *FunctionBody) string {
	params := make([]string, len(fb.Params))
	for i, p := range fb.Params {
		params[i] = p.Name + ": " + p.Type
	}
	return "(" + strings.Join(params, ", ") + "): " + fb.Ret
}

func (w *writer) function(prefix string, fb *FunctionBody) {
	w.line("%sfunction %s%s {", prefix, fb.Name, signature(fb))
	w.block(fb.Stmts)
	w.line("}")
}

func (w *writer) stmts(list []Stmt) {
	for _, s := range list {
		w.stmt(s)
	}
}

func (w *writer) stmt(s Stmt) {
	switch n := s.(type) {
	case *Assign:
		decl := ""
		if n.Declare {
			decl = "var "
		}
		w.line("%s%s = %s;", decl, w.expr(n.Target, 0), w.expr(n.Value, 0))
	case *VarDecl:
		w.line("var %s;", w.expr(n.Var, 0))
	case *ExprStmt:
		w.line("%s;", w.expr(n.X, 0))
	case *Return:
		if n.Value == nil {
			w.line("return;")
		} else {
			w.line("return %s;", w.expr(n.Value, 0))
		}
	case *If:
		w.ifStmt("", n)
	case *While:
		w.line("while (%s) {", w.expr(n.Cond, 0))
		w.block(n.Body)
		w.line("}")
	case *DoWhile:
		w.line("do {")
		w.block(n.Body)
		w.line("} while (%s);", w.expr(n.Cond, 0))
	case *Switch:
		w.line("switch (%s) {", w.expr(n.Arg, 0))
		w.depth++
		for _, c := range n.Cases {
			values := make([]string, len(c.Values))
			for i, v := range c.Values {
				values[i] = strconv.Itoa(v)
			}
			w.line("case %s:", strings.Join(values, ", "))
			w.block(c.Body)
		}
		if len(n.Default) > 0 {
			w.line("default:")
			w.block(n.Default)
		}
		w.depth--
		w.line("}")
	case *Break:
		w.line("break;")
	case *Continue:
		w.line("continue;")
	case *Throw:
		w.line("throw %s;", w.expr(n.X, 0))
	case *Try:
		w.line("try {")
		w.block(n.Body)
		exc := "e"
		if n.Exc != nil {
			exc = n.Exc.Name
		}
		w.line("} catch (%s) {", exc)
		w.block(n.Catch)
		w.line("}")
	case *Comment:
		w.line("// %s", n.Text)
	case *Goto:
		w.line("goto %d;", n.Pos)
	case *Label:
		w.line("label %d:", n.Pos)
	case *SourceLine:
	default:
		w.line("[raw: %T]", s)
	}
}

func (w *writer) ifStmt(prefix string, n *If) {
	w.line("%sif (%s) {", prefix, w.expr(n.Cond, 0))
	w.block(n.Then)
	switch {
	case len(n.Else) == 1:
		if inner, ok := n.Else[0].(*If); ok {
			w.ifStmt("} else ", inner)
			return
		}
		fallthrough
	case len(n.Else) > 0:
		w.line("} else {")
		w.block(n.Else)
	}
	w.line("}")
}

// precedence of postfix and member access, above every binary operator.
const (
	precUnary   = 11
	precPostfix = 12
)

func (w *writer) exprs(list []Expr) string {
	parts := make([]string, len(list))
	for i, x := range list {
		parts[i] = w.expr(x, 0)
	}
	return strings.Join(parts, ", ")
}

// expr renders x, parenthesized when it binds looser than prec.
func (w *writer) expr(x Expr, prec int) string {
	switch n := x.(type) {
	case nil:
		return "null"
	case *Const:
		if n.Kind == ConstString {
			return strconv.Quote(n.Value)
		}
		return n.Value
	case *Var:
		return n.Name
	case *Ident:
		return n.Name
	case *FunRef:
		return n.Qualified()
	case *Field:
		return w.expr(n.X, precPostfix) + "." + n.Name
	case *Index:
		return w.expr(n.X, precPostfix) + "[" + w.expr(n.Index, 0) + "]"
	case *Call:
		return w.expr(n.Fun, precPostfix) + "(" + w.exprs(n.Args) + ")"
	case *Binary:
		p := n.Op.precedence()
		s := w.expr(n.L, p) + " " + n.Op.String() + " " + w.expr(n.R, p+1)
		if p < prec {
			return "(" + s + ")"
		}
		return s
	case *Unary:
		switch n.Op {
		case OpNeg:
			return "-" + w.expr(n.X, precUnary)
		case OpNot:
			return "!" + w.expr(n.X, precUnary)
		case OpIncr:
			return w.expr(n.X, precPostfix) + "++"
		default:
			return w.expr(n.X, precPostfix) + "--"
		}
	case *NewExpr:
		return "new " + n.Name + "(" + w.exprs(n.Args) + ")"
	case *Anonymous:
		fields := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = f.Name + ": " + w.expr(f.Value, 0)
		}
		return "{" + strings.Join(fields, ", ") + "}"
	case *EnumConstr:
		if len(n.Args) == 0 {
			return n.Name
		}
		return n.Name + "(" + w.exprs(n.Args) + ")"
	case *Cast:
		return "cast(" + w.expr(n.X, 0) + ", " + n.Type + ")"
	case *Closure:
		return w.closure(n)
	case *IfExpr:
		return w.ifExpr(n)
	case *Unknown:
		return "[raw: " + n.Text + "]"
	}
	return fmt.Sprintf("[raw: %T]", x)
}

// nested renders statements one level deeper than the current line, for
// expressions that span lines.
func (w *writer) nested(list []Stmt) string {
	inner := &writer{indent: w.indent, depth: w.depth + 1}
	inner.stmts(list)
	return inner.String()
}

func (w *writer) closing() string {
	return strings.Repeat(w.indent, w.depth) + "}"
}

func (w *writer) closure(n *Closure) string {
	fb := n.Body
	if fb == nil {
		return "function() {}"
	}
	params := make([]string, len(fb.Params))
	for i, p := range fb.Params {
		params[i] = p.Name + ": " + p.Type
	}
	return "function(" + strings.Join(params, ", ") + ") {\n" + w.nested(fb.Stmts) + w.closing()
}

// ifExpr prints single-expression arms inline and anything longer as blocks.
func (w *writer) ifExpr(n *IfExpr) string {
	cond := w.expr(n.Cond, 0)
	t, tok := singleExpr(n.Then)
	e, eok := singleExpr(n.Else)
	if tok && eok {
		return "if (" + cond + ") " + w.expr(t, 0) + " else " + w.expr(e, 0)
	}
	return "if (" + cond + ") {\n" + w.nested(n.Then) + w.closing() + " else {\n" + w.nested(n.Else) + w.closing()
}

func singleExpr(list []Stmt) (Expr, bool) {
	var found Expr
	for _, s := range list {
		switch n := s.(type) {
		case *SourceLine:
		case *ExprStmt:
			if found != nil {
				return nil, false
			}
			found = n.X
		default:
			return nil, false
		}
	}
	return found, found != nil
}
