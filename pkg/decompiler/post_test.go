package decompiler_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/chazu/hlbc/internal/hltest"
	"github.com/chazu/hlbc/pkg/bytecode"
	. "github.com/chazu/hlbc/pkg/decompiler"
)

func body(stmts ...Stmt) *FunctionBody { return &FunctionBody{Name: "f", Ret: "Void", Stmts: stmts} }

func call(name, owner string, args ...Expr) *Call {
	return &Call{Fun: &FunRef{Name: name, Owner: owner}, Args: args}
}

func intConst(v int) *Const { return &Const{Kind: ConstInt, Value: fmt.Sprint(v)} }

func strConst(s string) *Const { return &Const{Kind: ConstString, Value: s} }

func v(n int) *Var { return &Var{Reg: bytecode.Reg(n), Name: fmt.Sprintf("r%d", n)} }

func TestStringConcatHidesConversions(t *testing.T) {
	fb := body(&Return{Value: call("__add__", "String",
		strConst("n = "),
		call("__alloc__", "String", call("itos", "", v(0), v(1)), v(1)),
	)})
	got := Printer{}.Print(RunPasses(fb, []Pass{StringConcat, HideToString}))
	expect(t, got, `return "n = " + r0;`+"\n")
}

func TestHideToStringLeavesOtherCalls(t *testing.T) {
	fb := body(&ExprStmt{X: call("string", "Std", v(0))})
	got := Printer{}.Print(RunPasses(fb, DefaultPasses()))
	expect(t, got, "Std.string(r0);\n")
}

func TestTraceDropsPosInfos(t *testing.T) {
	trace := &Call{Fun: &Field{X: &Ident{Name: "haxe.Log"}, Name: "trace"}, Args: []Expr{strConst("hi"), v(3)}}
	got := Printer{}.Print(RunPasses(body(&ExprStmt{X: trace}), []Pass{Trace}))
	expect(t, got, `trace("hi");`+"\n")
}

func TestDebugCommentsDedupe(t *testing.T) {
	fb := body(
		&SourceLine{File: "Main.hx", Line: 3},
		&ExprStmt{X: call("a", "")},
		&SourceLine{File: "Main.hx", Line: 3},
		&ExprStmt{X: call("b", "")},
		&SourceLine{File: "Main.hx", Line: 5},
		&ExprStmt{X: call("c", "")},
	)
	got := Printer{}.Print(RunPasses(fb, []Pass{DebugComments}))
	expect(t, got, `
// Main.hx:3
a();
b();
// Main.hx:5
c();
`)
}

func TestPassesDoNotModifyInput(t *testing.T) {
	assign := &Assign{Target: v(1), Value: intConst(1)}
	fb := body(&If{Cond: v(0), Then: []Stmt{assign}, Else: []Stmt{&Assign{Target: v(1), Value: intConst(2)}}})
	before := Printer{}.Print(fb)
	RunPasses(fb, DefaultPasses())
	if after := (Printer{}).Print(fb); after != before {
		t.Errorf("input changed:\n%s\nwas:\n%s", after, before)
	}
}

func TestPassByName(t *testing.T) {
	for _, p := range DefaultPasses() {
		got, err := PassByName(p.Name())
		if err != nil || got != p {
			t.Errorf("PassByName(%q) = %v, %v", p.Name(), got, err)
		}
	}
	if _, err := PassByName("constant-folding"); err == nil {
		t.Error("unknown pass accepted")
	}
}

// randomTree builds statements mixing every shape the passes rewrite.
type randomTree struct{ r *rand.Rand }

func (g randomTree) expr(depth int) Expr {
	if depth <= 0 {
		if g.r.Intn(2) == 0 {
			return v(g.r.Intn(4))
		}
		return intConst(g.r.Intn(10))
	}
	switch g.r.Intn(7) {
	case 0:
		return call("__add__", "String", g.expr(depth-1), g.expr(depth-1))
	case 1:
		return call("itos", "", g.expr(depth-1), v(9))
	case 2:
		return call("string", "Std", g.expr(depth-1))
	case 3:
		return &Call{Fun: &Field{X: &Ident{Name: "haxe.Log"}, Name: "trace"}, Args: []Expr{g.expr(depth - 1), v(8)}}
	case 4:
		return &Binary{Op: OpAdd, L: g.expr(depth - 1), R: g.expr(depth - 1)}
	case 5:
		return call("__alloc__", "String", call("itos", "", g.expr(depth-1), v(9)), v(9))
	}
	return g.expr(0)
}

func (g randomTree) stmts(depth, n int) []Stmt {
	var out []Stmt
	for i := 0; i < n; i++ {
		out = append(out, g.stmt(depth))
	}
	return out
}

func (g randomTree) stmt(depth int) Stmt {
	if depth <= 0 {
		if g.r.Intn(3) == 0 {
			return &SourceLine{File: "A.hx", Line: g.r.Intn(3)}
		}
		return &Assign{Declare: g.r.Intn(2) == 0, Target: v(g.r.Intn(3)), Value: g.expr(2)}
	}
	switch g.r.Intn(4) {
	case 0:
		return &If{Cond: g.expr(1), Then: g.stmts(depth-1, 1+g.r.Intn(2)), Else: g.stmts(depth-1, g.r.Intn(3))}
	case 1:
		return &While{Cond: g.expr(1), Body: g.stmts(depth-1, 1+g.r.Intn(3))}
	case 2:
		return &ExprStmt{X: g.expr(3)}
	}
	return g.stmt(0)
}

func TestPipelineIsIdempotent(t *testing.T) {
	pr := Printer{}
	for seed := int64(1); seed <= 200; seed++ {
		g := randomTree{r: rand.New(rand.NewSource(seed))}
		fb := body(g.stmts(3, 4)...)
		once := RunPasses(fb, DefaultPasses())
		twice := RunPasses(once, DefaultPasses())
		if a, b := pr.Print(once), pr.Print(twice); a != b {
			t.Fatalf("seed %d: second run changed output:\n%s\n---\n%s", seed, a, b)
		}
	}
}

func TestEachPassIsIdempotent(t *testing.T) {
	pr := Printer{}
	for _, p := range DefaultPasses() {
		for seed := int64(1); seed <= 50; seed++ {
			g := randomTree{r: rand.New(rand.NewSource(seed))}
			once := p.Apply(body(g.stmts(3, 4)...))
			if a, b := pr.Print(once), pr.Print(p.Apply(once)); a != b {
				t.Fatalf("%s seed %d: not idempotent:\n%s\n---\n%s", p.Name(), seed, a, b)
			}
		}
	}
}

func TestPrinterLayout(t *testing.T) {
	fb := &FunctionBody{
		Name:   "run",
		Params: []Param{{Name: "n", Type: "Int"}},
		Ret:    "Int",
		Stmts: []Stmt{
			&If{
				Cond: &Binary{Op: OpLt, L: v(0), R: intConst(0)},
				Then: []Stmt{&Throw{X: strConst("negative")}},
				Else: []Stmt{&If{Cond: &Unary{Op: OpNot, X: &Binary{Op: OpEq, L: v(0), R: intConst(1)}}, Then: []Stmt{&Goto{Pos: 4}}}},
			},
			&DoWhile{Body: []Stmt{&Label{Pos: 4}, &Comment{Text: "body"}}, Cond: &Const{Kind: ConstBool, Value: "false"}},
			&Return{Value: &Binary{Op: OpMul, L: &Binary{Op: OpAdd, L: v(0), R: intConst(1)}, R: &Cast{X: v(1), Type: "Int"}}},
		},
	}
	got := Printer{Indent: 2}.PrintFunction(fb)
	expect(t, got, `
function run(n: Int): Int {
  if (r0 < 0) {
    throw "negative";
  } else if (!(r0 == 1)) {
    goto 4;
  }
  do {
    label 4:
    // body
  } while (false);
  return (r0 + 1) * cast(r1, Int);
}
`)
}

func TestPrintExpressions(t *testing.T) {
	cases := []struct {
		x    Expr
		want string
	}{
		{&Binary{Op: OpSub, L: v(0), R: &Binary{Op: OpSub, L: v(1), R: v(2)}}, "r0 - (r1 - r2)"},
		{&Binary{Op: OpSub, L: &Binary{Op: OpSub, L: v(0), R: v(1)}, R: v(2)}, "r0 - r1 - r2"},
		{&Unary{Op: OpNeg, X: &Binary{Op: OpAdd, L: v(0), R: v(1)}}, "-(r0 + r1)"},
		{&Unary{Op: OpIncr, X: v(0)}, "r0++"},
		{&Index{X: &Field{X: v(0), Name: "items"}, Index: intConst(2)}, "r0.items[2]"},
		{&NewExpr{Name: "Point", Args: []Expr{intConst(1), intConst(2)}}, "new Point(1, 2)"},
		{&Anonymous{Fields: []FieldInit{{Name: "a", Value: intConst(1)}, {Name: "b", Value: strConst("x")}}}, `{a: 1, b: "x"}`},
		{&EnumConstr{Name: "Some", Args: []Expr{nil}}, "Some(null)"},
		{&FunRef{Name: "max", Owner: "Math"}, "Math.max"},
		{&Unknown{Text: "RefData r0 r1"}, "[raw: RefData r0 r1]"},
		{&IfExpr{Cond: v(0), Then: []Stmt{&ExprStmt{X: intConst(1)}}, Else: []Stmt{&ExprStmt{X: intConst(2)}}}, "if (r0) 1 else 2"},
	}
	for _, c := range cases {
		got := Printer{}.Print(body(&ExprStmt{X: c.x}))
		if want := c.want + ";\n"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestPrintSwitchAndTry(t *testing.T) {
	fb := body(
		&Switch{Arg: v(0), Cases: []Case{{Values: []int{0, 1}, Body: []Stmt{&Break{}}}}, Default: []Stmt{&Continue{}}},
		&Try{Body: []Stmt{&ExprStmt{X: call("f", "")}}, Exc: v(2), Catch: []Stmt{&Throw{X: v(2)}}},
	)
	expect(t, Printer{}.Print(fb), `
switch (r0) {
    case 0, 1:
        break;
    default:
        continue;
}
try {
    f();
} catch (r2) {
    throw r2;
}
`)
}

func TestClass(t *testing.T) {
	b := hltest.New()
	point := b.Obj("Point", bytecode.NoType, hltest.Field{Name: "x", Type: hltest.I32})
	getX := b.Function(b.Fun(hltest.I32, point), []bytecode.RefType{point, hltest.I32},
		hltest.Op(bytecode.OpField, 1, 0, 0),
		hltest.Op(bytecode.OpRet, 1),
	)
	b.Proto(point, "getX", getX)
	p := b.Build(t)

	c, err := DecompileClass(p, point)
	if err != nil {
		t.Fatalf("DecompileClass: %v", err)
	}
	expect(t, Printer{}.PrintClass(c), `
class Point {
    var x: Int;

    function getX(): Int {
        return this.x;
    }
}
`)
	if _, err := DecompileClass(p, hltest.I32); err == nil {
		t.Error("DecompileClass accepted a non-object type")
	}
}

func TestClassStatics(t *testing.T) {
	b := hltest.New()
	app := b.Obj("App", bytecode.NoType)
	statics := b.Obj("$App", bytecode.NoType, hltest.Field{Name: "count", Type: hltest.I32}, hltest.Field{Name: "main", Type: b.Fun(hltest.Void)})
	g := b.Global(statics)
	b.P.Types[app].Obj.Global = g + 1
	main := b.Function(b.Fun(hltest.Void), []bytecode.RefType{hltest.Void},
		hltest.Op(bytecode.OpRet, 0),
	)
	b.Bind(statics, 1, main)
	p := b.Build(t)

	c, err := DecompileClass(p, app)
	if err != nil {
		t.Fatalf("DecompileClass: %v", err)
	}
	expect(t, Printer{}.PrintClass(c), `
class App {
    static var count: Int;

    static function main(): Void {
    }
}
`)
}
