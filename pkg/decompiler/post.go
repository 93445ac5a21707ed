package decompiler

import (
	"fmt"
	"strings"
)

// Pass rewrites a decompiled body. Passes never modify their input and are
// idempotent: applying one twice yields the result of applying it once.
type Pass interface {
	Name() string
	Apply(fb *FunctionBody) *FunctionBody
}

// The post-processing passes, in their default order.
var (
	IfExpressions Pass = ifExpressions{}
	StringConcat  Pass = stringConcat{}
	HideToString  Pass = hideToString{}
	Trace         Pass = trace{}
	DebugComments Pass = debugComments{}
)

// DefaultPasses returns every pass in pipeline order.
func DefaultPasses() []Pass {
	return []Pass{IfExpressions, StringConcat, HideToString, Trace, DebugComments}
}

// PassByName looks a pass up by its configuration name.
func PassByName(name string) (Pass, error) {
	for _, p := range DefaultPasses() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown pass %q", name)
}

// RunPasses applies passes in order.
func RunPasses(fb *FunctionBody, passes []Pass) *FunctionBody {
	for _, p := range passes {
		fb = p.Apply(fb)
	}
	return fb
}

func withStmts(fb *FunctionBody, stmts []Stmt) *FunctionBody {
	out := *fb
	out.Stmts = stmts
	return &out
}

// ---------------------------------------------------------------------------
// Rewriter
// ---------------------------------------------------------------------------

// rewriter rebuilds a tree bottom-up. expr sees each expression after its
// children were rebuilt; list sees each statement list likewise. Closure
// bodies are left alone: they went through the passes when decompiled.
type rewriter struct {
	expr func(Expr) Expr
	list func([]Stmt) []Stmt
}

func (rw *rewriter) stmts(in []Stmt) []Stmt {
	if in == nil {
		return nil
	}
	out := make([]Stmt, len(in))
	for i, s := range in {
		out[i] = rw.stmt(s)
	}
	if rw.list != nil {
		out = rw.list(out)
	}
	return out
}

func (rw *rewriter) stmt(s Stmt) Stmt {
	switch n := s.(type) {
	case *Assign:
		return &Assign{Declare: n.Declare, Target: rw.e(n.Target), Value: rw.e(n.Value)}
	case *ExprStmt:
		return &ExprStmt{X: rw.e(n.X)}
	case *Return:
		return &Return{Value: rw.e(n.Value)}
	case *If:
		return &If{Cond: rw.e(n.Cond), Then: rw.stmts(n.Then), Else: rw.stmts(n.Else)}
	case *While:
		return &While{Cond: rw.e(n.Cond), Body: rw.stmts(n.Body)}
	case *DoWhile:
		return &DoWhile{Body: rw.stmts(n.Body), Cond: rw.e(n.Cond)}
	case *Switch:
		out := &Switch{Arg: rw.e(n.Arg), Default: rw.stmts(n.Default)}
		for _, c := range n.Cases {
			out.Cases = append(out.Cases, Case{Values: c.Values, Body: rw.stmts(c.Body)})
		}
		return out
	case *Throw:
		return &Throw{X: rw.e(n.X)}
	case *Try:
		return &Try{Body: rw.stmts(n.Body), Exc: n.Exc, Catch: rw.stmts(n.Catch)}
	}
	return s
}

func (rw *rewriter) exprs(in []Expr) []Expr {
	if in == nil {
		return nil
	}
	out := make([]Expr, len(in))
	for i, x := range in {
		out[i] = rw.e(x)
	}
	return out
}

func (rw *rewriter) e(x Expr) Expr {
	if x == nil {
		return nil
	}
	var out Expr
	switch n := x.(type) {
	case *Field:
		out = &Field{X: rw.e(n.X), Name: n.Name}
	case *Index:
		out = &Index{X: rw.e(n.X), Index: rw.e(n.Index)}
	case *Call:
		out = &Call{Fun: rw.e(n.Fun), Args: rw.exprs(n.Args)}
	case *Binary:
		out = &Binary{Op: n.Op, L: rw.e(n.L), R: rw.e(n.R), Concat: n.Concat}
	case *Unary:
		out = &Unary{Op: n.Op, X: rw.e(n.X)}
	case *NewExpr:
		out = &NewExpr{Type: n.Type, Name: n.Name, Args: rw.exprs(n.Args)}
	case *Anonymous:
		a := &Anonymous{Type: n.Type}
		for _, f := range n.Fields {
			a.Fields = append(a.Fields, FieldInit{Name: f.Name, Value: rw.e(f.Value)})
		}
		out = a
	case *EnumConstr:
		out = &EnumConstr{Type: n.Type, Name: n.Name, Args: rw.exprs(n.Args)}
	case *Cast:
		out = &Cast{X: rw.e(n.X), Type: n.Type}
	case *IfExpr:
		out = &IfExpr{Cond: rw.e(n.Cond), Then: rw.stmts(n.Then), Else: rw.stmts(n.Else)}
	default:
		out = x
	}
	if rw.expr != nil {
		out = rw.expr(out)
	}
	return out
}

// ---------------------------------------------------------------------------
// Passes
// ---------------------------------------------------------------------------

// ifExpressions turns an if/else whose arms both end by assigning the same
// variable into one assignment of an if expression.
type ifExpressions struct{}

func (ifExpressions) Name() string { return "if-expressions" }

func (ifExpressions) Apply(fb *FunctionBody) *FunctionBody {
	rw := &rewriter{list: func(list []Stmt) []Stmt {
		out := list[:0]
		for _, s := range list {
			if n, ok := s.(*If); ok {
				if a := ifAssign(n); a != nil {
					// var r; r = if ... becomes var r = if ...
					if k := len(out) - 1; k >= 0 {
						if d, ok := out[k].(*VarDecl); ok && d.Var.Reg == a.Target.(*Var).Reg {
							out = out[:k]
							a.Declare = true
						}
					}
					s = a
				}
			}
			out = append(out, s)
		}
		return out
	}}
	return withStmts(fb, rw.stmts(fb.Stmts))
}

func ifAssign(n *If) *Assign {
	if len(n.Else) == 0 {
		return nil
	}
	ts, ti := lastStmt(n.Then)
	es, ei := lastStmt(n.Else)
	ta, ok1 := ts.(*Assign)
	ea, ok2 := es.(*Assign)
	if !ok1 || !ok2 {
		return nil
	}
	tv, ok1 := ta.Target.(*Var)
	ev, ok2 := ea.Target.(*Var)
	if !ok1 || !ok2 || tv.Reg != ev.Reg {
		return nil
	}
	return &Assign{
		Declare: ta.Declare || ea.Declare,
		Target:  tv,
		Value: &IfExpr{
			Cond: n.Cond,
			Then: replaceAt(n.Then, ti, &ExprStmt{X: ta.Value}),
			Else: replaceAt(n.Else, ei, &ExprStmt{X: ea.Value}),
		},
	}
}

func replaceAt(list []Stmt, i int, s Stmt) []Stmt {
	out := append([]Stmt(nil), list...)
	out[i] = s
	return out
}

// stringConcat prints String.__add__(a, b) as a + b.
type stringConcat struct{}

func (stringConcat) Name() string { return "string-concat" }

func (stringConcat) Apply(fb *FunctionBody) *FunctionBody {
	rw := &rewriter{expr: func(x Expr) Expr {
		c, ok := x.(*Call)
		if !ok || len(c.Args) != 2 || calleeName(c) != "__add__" {
			return x
		}
		return &Binary{Op: OpAdd, L: c.Args[0], R: c.Args[1], Concat: true}
	}}
	return withStmts(fb, rw.stmts(fb.Stmts))
}

// calleeName returns the bare name of the function a call invokes.
func calleeName(c *Call) string {
	switch f := c.Fun.(type) {
	case *FunRef:
		return f.Name
	case *Ident:
		return f.Name
	case *Field:
		return f.Name
	}
	return ""
}

func calleeQualified(c *Call) string {
	if f, ok := c.Fun.(*FunRef); ok {
		return f.Qualified()
	}
	return calleeName(c)
}

// hideToString drops the number and object to-string conversions the
// compiler inserts around string concatenation operands.
type hideToString struct{}

func (hideToString) Name() string { return "hide-tostring" }

func (hideToString) Apply(fb *FunctionBody) *FunctionBody {
	rw := &rewriter{expr: func(x Expr) Expr {
		b, ok := x.(*Binary)
		if !ok || !b.Concat {
			return x
		}
		return &Binary{Op: b.Op, L: unwrapToString(b.L), R: unwrapToString(b.R), Concat: true}
	}}
	return withStmts(fb, rw.stmts(fb.Stmts))
}

func unwrapToString(x Expr) Expr {
	for {
		c, ok := x.(*Call)
		if !ok || len(c.Args) == 0 {
			return x
		}
		switch name := calleeQualified(c); {
		case name == "itos" || name == "ftos" || name == "Std.string":
			x = c.Args[0]
		case calleeName(c) == "__alloc__":
			inner, ok := c.Args[0].(*Call)
			if !ok {
				return x
			}
			if n := calleeName(inner); n != "itos" && n != "ftos" {
				return x
			}
			x = inner
		default:
			return x
		}
	}
}

// trace prints haxe.Log.trace(v, infos) as trace(v).
type trace struct{}

func (trace) Name() string { return "trace" }

func (trace) Apply(fb *FunctionBody) *FunctionBody {
	rw := &rewriter{expr: func(x Expr) Expr {
		c, ok := x.(*Call)
		if !ok || len(c.Args) == 0 {
			return x
		}
		f, ok := c.Fun.(*Field)
		if !ok || f.Name != "trace" {
			return x
		}
		if id, ok := f.X.(*Ident); !ok || !strings.HasSuffix(id.Name, "Log") {
			return x
		}
		return &Call{Fun: &Ident{Name: "trace"}, Args: c.Args[:1]}
	}}
	return withStmts(fb, rw.stmts(fb.Stmts))
}

// debugComments turns source positions into "file:line" comments, one per
// change of position.
type debugComments struct{}

func (debugComments) Name() string { return "debug-comments" }

func (debugComments) Apply(fb *FunctionBody) *FunctionBody {
	rw := &rewriter{list: func(list []Stmt) []Stmt {
		out := list[:0]
		last := ""
		for _, s := range list {
			if sl, ok := s.(*SourceLine); ok {
				text := fmt.Sprintf("%s:%d", sl.File, sl.Line)
				if text == last {
					continue
				}
				last = text
				out = append(out, &Comment{Text: text})
				continue
			}
			out = append(out, s)
		}
		return out
	}}
	return withStmts(fb, rw.stmts(fb.Stmts))
}
