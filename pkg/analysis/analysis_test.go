package analysis_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/chazu/hlbc/internal/hltest"
	"github.com/chazu/hlbc/pkg/analysis"
	. "github.com/chazu/hlbc/pkg/bytecode"
)

type fixture struct {
	p       *Program
	log     RefFun
	getX    RefFun
	twice   RefFun
	main    RefFun
	point   RefType
	sig     RefType
	global  RefGlobal
	hello   RefString
	missing RefFun
}

// newFixture builds a program whose main calls a static function twice, a
// native once and a method once, takes a closure, reads a string constant
// and writes then reads a global.
func newFixture(t *testing.T) fixture {
	t.Helper()
	b := hltest.New()
	var f fixture
	f.sig = b.Fun(hltest.I32, hltest.I32)
	f.log = b.Native("std", "log", b.Fun(hltest.Void, hltest.I32))
	f.point = b.Obj("Point", NoType, hltest.Field{Name: "x", Type: hltest.I32})
	f.getX = b.Function(b.Fun(hltest.I32, f.point), []RefType{f.point, hltest.I32},
		hltest.Op(OpField, 1, 0, 0),
		hltest.Op(OpRet, 1),
	)
	b.Proto(f.point, "getX", f.getX)
	f.twice = b.Function(f.sig, []RefType{hltest.I32},
		hltest.Op(OpAdd, 0, 0, 0),
		hltest.Op(OpRet, 0),
	)
	f.global = b.Global(hltest.I32)
	f.hello = b.String("hello")
	three := b.Int(3)
	f.main = b.Function(b.Fun(hltest.Void), []RefType{hltest.I32, hltest.I32, f.point, hltest.Void, f.sig, hltest.Bytes},
		hltest.Op(OpInt, 0, int32(three)),
		hltest.Op(OpCall1, 1, int32(f.twice), 0),
		hltest.Op(OpCall1, 1, int32(f.twice), 1),
		hltest.Op(OpCall1, 3, int32(f.log), 1),
		hltest.Op(OpNew, 2),
		hltest.OpList(OpCallMethod, []int32{1, 0}, 2),
		hltest.Op(OpStaticClosure, 4, int32(f.twice)),
		hltest.Op(OpString, 5, int32(f.hello)),
		hltest.Op(OpSetGlobal, int32(f.global), 0),
		hltest.Op(OpGetGlobal, 0, int32(f.global)),
		hltest.Op(OpRet, 3),
	)
	b.Entry(f.main)
	f.missing = 99
	f.p = b.Build(t)
	return f
}

func (f fixture) fn(t *testing.T, r RefFun) *Function {
	t.Helper()
	fn, err := f.p.GetFunction(r)
	if err != nil {
		t.Fatalf("GetFunction(%d): %v", r, err)
	}
	return fn
}

func TestCallTargets(t *testing.T) {
	f := newFixture(t)
	got := analysis.CallTargets(f.p, f.fn(t, f.main))
	want := []RefFun{f.twice, f.log}
	if !slices.Equal(got, want) {
		t.Errorf("CallTargets = %v, want %v", got, want)
	}
	if got := analysis.CallTargets(f.p, f.fn(t, f.twice)); len(got) != 0 {
		t.Errorf("leaf function has targets %v", got)
	}
}

func TestFunctionRefsKeepPositions(t *testing.T) {
	f := newFixture(t)
	refs := analysis.FunctionRefs(f.fn(t, f.main))
	var positions []int
	for _, r := range refs {
		positions = append(positions, r.Pos)
	}
	if want := []int{1, 2, 3, 6}; !slices.Equal(positions, want) {
		t.Fatalf("positions = %v, want %v", positions, want)
	}
	if refs[3].Op != OpStaticClosure {
		t.Errorf("last ref op = %v, want StaticClosure", refs[3].Op)
	}
}

func TestMethodTargets(t *testing.T) {
	f := newFixture(t)
	got := analysis.MethodTargets(f.p, f.fn(t, f.main))
	if want := []RefFun{f.getX}; !slices.Equal(got, want) {
		t.Errorf("MethodTargets = %v, want %v", got, want)
	}
}

func TestCallers(t *testing.T) {
	f := newFixture(t)
	if got := analysis.Callers(f.p, f.twice); !slices.Equal(got, []RefFun{f.main}) {
		t.Errorf("Callers(twice) = %v", got)
	}
	if got := analysis.Callers(f.p, f.main); len(got) != 0 {
		t.Errorf("Callers(main) = %v, want none", got)
	}
}

func TestClosureAt(t *testing.T) {
	f := newFixture(t)
	main := f.fn(t, f.main)
	if got, ok := analysis.ClosureAt(f.p, main, 4, len(main.Ops)); !ok || got != f.twice {
		t.Errorf("ClosureAt(r4) = %v, %v", got, ok)
	}
	if _, ok := analysis.ClosureAt(f.p, main, 4, 6); ok {
		t.Error("closure found before it was built")
	}
	if _, ok := analysis.ClosureAt(f.p, main, 1, len(main.Ops)); ok {
		t.Error("call result reported as closure")
	}
}

func kinds(us []analysis.Usage) []analysis.UsageKind {
	out := make([]analysis.UsageKind, len(us))
	for i, u := range us {
		out[i] = u.Kind
	}
	return out
}

func TestUsageOfFunction(t *testing.T) {
	f := newFixture(t)
	r := analysis.NewReport(f.p)

	got := r.Function(f.twice)
	want := []analysis.UsageKind{analysis.UsedByCall, analysis.UsedByCall, analysis.UsedByClosure}
	if !slices.Equal(kinds(got), want) {
		t.Fatalf("usages of twice = %v, want %v", kinds(got), want)
	}
	if got[0].Fun != f.main || got[0].Pos != 1 || got[2].Pos != 6 {
		t.Errorf("usage locations = %+v", got)
	}

	got = r.Function(f.getX)
	want = []analysis.UsageKind{analysis.UsedAsProto, analysis.UsedByMethodCall}
	if !slices.Equal(kinds(got), want) {
		t.Errorf("usages of getX = %v, want %v", kinds(got), want)
	}
	if got[0].Type != f.point {
		t.Errorf("proto owner = %d, want %d", got[0].Type, f.point)
	}
	if r.Function(f.missing) != nil {
		t.Error("out-of-range function has usages")
	}
}

func TestUsageOfString(t *testing.T) {
	f := newFixture(t)
	got := analysis.UsageOfString(f.p, f.hello)
	if len(got) != 1 || got[0].Kind != analysis.UsedAsCodeString || got[0].Pos != 7 {
		t.Errorf("usages of hello = %+v", got)
	}

	x := f.p.Types[f.point].Obj.OwnFields[0].Name
	got = analysis.UsageOfString(f.p, x)
	if len(got) != 1 || got[0].Kind != analysis.UsedAsFieldName || got[0].Type != f.point {
		t.Errorf("usages of x = %+v", got)
	}

	std := f.p.Natives[0].Lib
	got = analysis.UsageOfString(f.p, std)
	if len(got) != 1 || got[0].Kind != analysis.UsedAsNativeName || got[0].Fun != f.log {
		t.Errorf("usages of std = %+v", got)
	}
}

func TestUsageOfType(t *testing.T) {
	f := newFixture(t)
	got := analysis.UsageOfType(f.p, f.sig)
	if len(got) != 0 {
		t.Errorf("usages of sig = %+v, want none", got)
	}
	got = analysis.UsageOfType(f.p, f.point)
	want := []analysis.UsageKind{analysis.UsedAsArgument}
	if !slices.Equal(kinds(got), want) {
		t.Errorf("usages of Point = %v, want %v", kinds(got), want)
	}
	got = analysis.UsageOfType(f.p, hltest.I32)
	var fields, globals int
	for _, u := range got {
		switch u.Kind {
		case analysis.UsedAsField:
			fields++
		case analysis.UsedAsGlobalType:
			globals++
		}
	}
	if fields != 1 || globals != 1 {
		t.Errorf("I32 usages: %d fields, %d globals; want 1 and 1", fields, globals)
	}
}

func TestUsageOfGlobal(t *testing.T) {
	f := newFixture(t)
	got := analysis.UsageOfGlobal(f.p, f.global)
	want := []analysis.UsageKind{analysis.UsedByGlobalWrite, analysis.UsedByGlobalRead}
	if !slices.Equal(kinds(got), want) {
		t.Errorf("usages of global = %v, want %v", kinds(got), want)
	}
}

func TestUsageKindNames(t *testing.T) {
	if got := analysis.UsedByMethodCall.String(); got != "method call" {
		t.Errorf("String = %q", got)
	}
	if got := analysis.UsageKind(200).String(); got != "usage(200)" {
		t.Errorf("String = %q", got)
	}
	if !analysis.UsedByGlobalRead.InCode() || analysis.UsedAsProto.InCode() {
		t.Error("InCode misclassifies")
	}
}

func withDebug(t *testing.T, f fixture, files []string, lines map[RefFun][]int) {
	t.Helper()
	f.p.Debug = true
	f.p.DebugFiles = files
	for r, fs := range lines {
		fn := f.fn(t, r)
		fn.Debug = make([]DebugPos, len(fn.Ops))
		for i := range fn.Debug {
			fn.Debug[i] = DebugPos{File: fs[i], Line: i + 1}
		}
	}
}

func TestFilesInFunction(t *testing.T) {
	f := newFixture(t)
	withDebug(t, f, []string{"src/Main.hx", "std/Math.hx"}, map[RefFun][]int{
		f.main: {0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0},
	})
	got, err := analysis.FilesInFunction(f.p, f.fn(t, f.main))
	if err != nil {
		t.Fatalf("FilesInFunction: %v", err)
	}
	want := []analysis.FileRanges{
		{File: "src/Main.hx", Ranges: []analysis.Range{{Start: 0, End: 2}, {Start: 4, End: 11}}},
		{File: "std/Math.hx", Ranges: []analysis.Range{{Start: 2, End: 4}}},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].File != want[i].File || !slices.Equal(got[i].Ranges, want[i].Ranges) {
			t.Errorf("file %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := analysis.FilesInFunction(f.p, f.fn(t, f.twice)); !errors.Is(err, analysis.ErrNoDebugInfo) {
		t.Errorf("err = %v, want ErrNoDebugInfo", err)
	}
}

func TestFunctionsInFile(t *testing.T) {
	f := newFixture(t)
	if _, err := analysis.FunctionsInFile(f.p, "Main.hx"); !errors.Is(err, analysis.ErrNoDebugInfo) {
		t.Errorf("err = %v, want ErrNoDebugInfo", err)
	}
	withDebug(t, f, []string{"src/Main.hx", "std/Math.hx"}, map[RefFun][]int{
		f.main:  {0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		f.twice: {1, 1},
		f.getX:  {0, 0},
	})
	got, err := analysis.FunctionsInFile(f.p, "Main.hx")
	if err != nil {
		t.Fatal(err)
	}
	if want := []RefFun{f.getX, f.main}; !slices.Equal(got, want) {
		t.Errorf("FunctionsInFile = %v, want %v", got, want)
	}
	if file, _ := analysis.FileOf(f.p, f.fn(t, f.twice)); file != "std/Math.hx" {
		t.Errorf("FileOf(twice) = %q", file)
	}
}

func TestIsFromStd(t *testing.T) {
	f := newFixture(t)
	withDebug(t, f, []string{"src/Main.hx", "/usr/lib/haxe/std/Math.hx"}, map[RefFun][]int{
		f.main:  {0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		f.twice: {0, 1},
		f.getX:  {0, 0},
	})
	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"native std", analysis.IsFunctionFromStd(f.p, f.log), true},
		{"inlined into std", analysis.IsFunctionFromStd(f.p, f.twice), true},
		{"user function", analysis.IsFunctionFromStd(f.p, f.main), false},
		{"unknown function", analysis.IsFunctionFromStd(f.p, f.missing), false},
		{"user class", analysis.IsTypeFromStd(f.p, f.point), false},
		{"primitive", analysis.IsTypeFromStd(f.p, hltest.I32), true},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestIsTypeFromStdByName(t *testing.T) {
	b := hltest.New()
	haxe := b.Obj("haxe.ds.StringMap", NoType)
	user := b.Obj("Game", NoType)
	enum := b.Enum("Option", hltest.Construct{Name: "None"})
	p := b.Build(t)
	if !analysis.IsTypeFromStd(p, haxe) {
		t.Error("haxe.* class not std")
	}
	if analysis.IsTypeFromStd(p, user) || analysis.IsTypeFromStd(p, enum) {
		t.Error("user types reported as std")
	}
}
