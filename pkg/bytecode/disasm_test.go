package bytecode_test

import (
	"strings"
	"testing"

	"github.com/chazu/hlbc/internal/hltest"
	"github.com/chazu/hlbc/pkg/bytecode"
)

func line(mnemonic, body string) string {
	return mnemonic + strings.Repeat(" ", 12-len(mnemonic)) + body
}

// pointProgram has a Point class with a method exercising fields, objects,
// strings and jumps.
func pointProgram(t *testing.T) (*bytecode.Program, bytecode.RefFun) {
	b := hltest.New()
	point := b.Obj("Point", bytecode.NoType, hltest.Field{Name: "x", Type: hltest.I32}, hltest.Field{Name: "y", Type: hltest.I32})
	sig := b.Fun(hltest.I32, point)
	hello := b.String("hello")
	f := b.Function(sig, []bytecode.RefType{point, hltest.I32, point, hltest.Bytes},
		hltest.Op(bytecode.OpField, 1, 0, 0),
		hltest.Op(bytecode.OpGetThis, 1, 1),
		hltest.Op(bytecode.OpNew, 2),
		hltest.Op(bytecode.OpString, 3, int32(hello)),
		hltest.OpList(bytecode.OpSwitch, []int32{1, 1}, 0, 1),
		hltest.Op(bytecode.OpJAlways, -6),
		hltest.Op(bytecode.OpRet, 1),
	)
	b.Proto(point, "length", f)
	b.Entry(f)
	return b.Build(t), f
}

func TestFormatInstrResolved(t *testing.T) {
	p, f := pointProgram(t)
	fn, err := p.GetFunction(f)
	if err != nil {
		t.Fatalf("GetFunction: %v", err)
	}
	fm := bytecode.NewFormatter(p, bytecode.StyleResolved)
	want := []string{
		line("Field", "reg1 = reg0.x"),
		line("GetThis", "reg1 = this.y"),
		line("New", "reg2 = new Point"),
		line("String", `reg3 = "hello"`),
		line("Switch", "switch reg1 [5, 6] end 6"),
		line("JAlways", "jump to 0"),
		line("Ret", "reg1"),
	}
	for pos, w := range want {
		if got := fm.Instr(fn, pos); got != w {
			t.Errorf("Instr(%d) = %q, want %q", pos, got, w)
		}
	}
}

func TestFormatInstrRaw(t *testing.T) {
	p, f := pointProgram(t)
	fn, _ := p.GetFunction(f)
	fm := bytecode.NewFormatter(p, bytecode.StyleRaw)
	if got, want := fm.Instr(fn, 0), line("Field", "reg1 = reg0.field@0"); got != want {
		t.Errorf("Instr(0) = %q, want %q", got, want)
	}
	if got, want := fm.Instr(fn, 3), line("String", `reg3 = "str@3"`); got != want {
		t.Errorf("Instr(3) = %q, want %q", got, want)
	}
}

func TestFormatArithmetic(t *testing.T) {
	p := sampleBuilder().Build(t)
	fm := bytecode.NewFormatter(p, bytecode.StyleResolved)
	main := &p.Functions[0]
	if got, want := fm.Instr(main, 0), line("Int", "reg0 = 5"); got != want {
		t.Errorf("Instr(0) = %q, want %q", got, want)
	}
	if got, want := fm.Instr(main, 2), line("Add", "reg2 = reg0 + reg1"); got != want {
		t.Errorf("Instr(2) = %q, want %q", got, want)
	}
}

func TestFormatDebugStyle(t *testing.T) {
	p := sampleDebugBuilder().Build(t)
	fm := bytecode.NewFormatter(p, bytecode.StyleDebug)
	got := fm.Instr(&p.Functions[0], 3)
	if !strings.HasSuffix(got, "; Main.hx:300") {
		t.Errorf("Instr(3) = %q, want a Main.hx:300 suffix", got)
	}
}

func TestFormatFunctionListing(t *testing.T) {
	p, f := pointProgram(t)
	fn, _ := p.GetFunction(f)
	out := bytecode.NewFormatter(p, bytecode.StyleResolved).Function(fn)

	for _, want := range []string{
		"; fn Point.length@0 (Point) -> i32",
		"; 4 registers",
		"; 7 ops",
		"0: " + line("Field", "reg1 = reg0.x"),
		"6: " + line("Ret", "reg1"),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestFormatType(t *testing.T) {
	p, _ := pointProgram(t)
	fm := bytecode.NewFormatter(p, bytecode.StyleResolved)
	out := fm.Type(10)
	for _, want := range []string{"Point (obj)", "fields (2):", "  x: i32", "protos (1):", "  length: length@0"} {
		if !strings.Contains(out, want) {
			t.Errorf("Type(10) missing %q:\n%s", want, out)
		}
	}
	if got := fm.Type(999); got != "type@999" {
		t.Errorf("Type(999) = %q, want type@999", got)
	}
}

func TestFormatNativeAndInfo(t *testing.T) {
	p := sampleBuilder().Build(t)
	fm := bytecode.NewFormatter(p, bytecode.StyleResolved)
	if got, want := fm.Native(&p.Natives[0]), "fn std.log@2 fn(dynamic) -> (void)"; got != want {
		t.Errorf("Native = %q, want %q", got, want)
	}
	info := fm.Info()
	for _, want := range []string{"version: 5", "functions: 2", "natives: 1", "entrypoint: anonymous@0"} {
		if !strings.Contains(info, want) {
			t.Errorf("Info missing %q:\n%s", want, info)
		}
	}
}

func TestParseStyle(t *testing.T) {
	for name, want := range map[string]bytecode.Style{
		"raw": bytecode.StyleRaw, "Resolved": bytecode.StyleResolved, "debug": bytecode.StyleDebug,
	} {
		got, err := bytecode.ParseStyle(name)
		if err != nil || got != want {
			t.Errorf("ParseStyle(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := bytecode.ParseStyle("fancy"); err == nil {
		t.Error("ParseStyle(fancy) should fail")
	}
}
