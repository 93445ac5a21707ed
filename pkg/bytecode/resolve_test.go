package bytecode_test

import (
	"errors"
	"testing"

	"github.com/chazu/hlbc/internal/hltest"
	"github.com/chazu/hlbc/pkg/bytecode"
)

func TestResolversReportMissing(t *testing.T) {
	p := sampleBuilder().Build(t)

	checks := []struct {
		name string
		err  error
	}{
		{"GetInt", func() error { _, err := p.GetInt(7); return err }()},
		{"GetFloat", func() error { _, err := p.GetFloat(0); return err }()},
		{"GetString", func() error { _, err := p.GetString(-1); return err }()},
		{"GetBytes", func() error { _, err := p.GetBytes(0); return err }()},
		{"GetType", func() error { _, err := p.GetType(500); return err }()},
		{"GetGlobal", func() error { _, err := p.GetGlobal(0); return err }()},
		{"Fn", func() error { _, err := p.Fn(3); return err }()},
		{"GetFunction native", func() error { _, err := p.GetFunction(2); return err }()},
		{"GetNative function", func() error { _, err := p.GetNative(0); return err }()},
		{"Field", func() error { _, err := p.Field(hltest.I32, 0); return err }()},
		{"Construct", func() error { _, err := p.Construct(hltest.I32, 0); return err }()},
	}
	for _, c := range checks {
		if !errors.Is(c.err, bytecode.ErrMissingRef) {
			t.Errorf("%s error = %v, want ErrMissingRef", c.name, c.err)
		}
	}

	var mre *bytecode.MissingRefError
	_, err := p.GetType(500)
	if !errors.As(err, &mre) || mre.Pool != "type" || mre.Index != 500 || mre.Len != len(p.Types) {
		t.Errorf("GetType(500) = %#v", err)
	}
}

func TestPlaceholderNames(t *testing.T) {
	p := sampleBuilder().Build(t)
	tests := []struct {
		got, want string
	}{
		{p.StringName(99), "str@99"},
		{p.IntValue(4), "int@4"},
		{p.IntValue(0), "5"},
		{p.FloatValue(2), "float@2"},
		{p.GlobalName(3), "global@3"},
		{p.FieldName(hltest.I32, 1), "field@1"},
		{p.ConstructName(hltest.I32, 2), "construct@2"},
		{p.FunctionName(42), "fn@42"},
		{p.FunctionRef(42), "fn@42"},
		{p.FunctionRef(2), "std.log@2"},
		{p.FunctionName(1), "anonymous"},
		{p.TypeName(77), "type@77"},
		{p.TypeName(hltest.Dyn), "dynamic"},
		{p.TypeName(10), "fn() -> (i32)"},
		{p.QualifiedName(1), "anonymous"},
	}
	for i, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("case %d: got %q, want %q", i, tt.got, tt.want)
		}
	}
}

func TestFloatValueFormatting(t *testing.T) {
	b := hltest.New()
	whole := b.Float(3)
	frac := b.Float(0.25)
	p := b.Build(t)
	if got := p.FloatValue(whole); got != "3.0" {
		t.Errorf("FloatValue(3) = %q, want 3.0", got)
	}
	if got := p.FloatValue(frac); got != "0.25" {
		t.Errorf("FloatValue(0.25) = %q, want 0.25", got)
	}
}

func TestTypeNameCycleTerminates(t *testing.T) {
	b := hltest.New()
	// A ref type pointing at itself.
	self := bytecode.RefType(len(b.P.Types))
	b.Wrap(bytecode.KindRef, self)
	p := b.Build(t)
	if got := p.TypeName(self); got == "" {
		t.Error("TypeName of a self-referencing type should not be empty")
	}
}

func TestGetBytes(t *testing.T) {
	b := hltest.New()
	b.P.Bytes = []byte("abcdef")
	b.P.BytesPos = []int{0, 2, 5}
	p := b.Build(t)
	want := []string{"ab", "cde", "f"}
	for i, w := range want {
		got, err := p.GetBytes(bytecode.RefBytes(i))
		if err != nil || string(got) != w {
			t.Errorf("GetBytes(%d) = %q, %v, want %q", i, got, err, w)
		}
	}
}

// ---------------------------------------------------------------------------
// Link
// ---------------------------------------------------------------------------

func classProgram(t *testing.T) (*bytecode.Program, bytecode.RefType, bytecode.RefType) {
	b := hltest.New()
	base := b.Obj("Shape", bytecode.NoType, hltest.Field{Name: "id", Type: hltest.I32})
	circle := b.Obj("Circle", base, hltest.Field{Name: "radius", Type: hltest.F64}, hltest.Field{Name: "onDraw", Type: hltest.Dyn})
	area := b.Function(b.Fun(hltest.F64, circle), []bytecode.RefType{circle, hltest.F64},
		hltest.Op(bytecode.OpField, 1, 0, 1),
		hltest.Op(bytecode.OpRet, 1),
	)
	draw := b.Function(b.Fun(hltest.Void), []bytecode.RefType{hltest.Void}, hltest.Op(bytecode.OpRet, 0))
	b.Proto(circle, "area", area)
	b.Bind(circle, 2, draw)
	b.Entry(draw)
	return b.Build(t), base, circle
}

func TestLinkFlattensFields(t *testing.T) {
	p, _, circle := classProgram(t)
	ty, _ := p.GetType(circle)
	fields := ty.FieldList()
	if len(fields) != 3 {
		t.Fatalf("Circle has %d fields, want 3", len(fields))
	}
	for i, want := range []string{"id", "radius", "onDraw"} {
		if got := p.StringName(fields[i].Name); got != want {
			t.Errorf("field %d = %q, want %q", i, got, want)
		}
	}
	if got := p.FieldName(circle, 1); got != "radius" {
		t.Errorf("FieldName(Circle, 1) = %q, want radius", got)
	}
}

func TestLinkNamesFunctions(t *testing.T) {
	p, _, circle := classProgram(t)

	area, _ := p.GetFunction(0)
	if !area.IsMethod() || area.Parent != circle {
		t.Errorf("area: IsMethod=%t Parent=%d", area.IsMethod(), area.Parent)
	}
	if got := p.QualifiedName(0); got != "Circle.area" {
		t.Errorf("QualifiedName(0) = %q, want Circle.area", got)
	}

	draw, _ := p.GetFunction(1)
	if got := p.StringName(draw.Name); got != "onDraw" {
		t.Errorf("bound function name = %q, want onDraw", got)
	}
	if draw.IsMethod() {
		t.Error("a bound closure without a this register is not a method")
	}

	if got := p.FunctionsNamed("area"); len(got) != 1 || got[0] != 0 {
		t.Errorf("FunctionsNamed(area) = %v", got)
	}
	if got := p.FunctionsNamed("init"); len(got) != 1 || got[0] != 1 {
		t.Errorf("FunctionsNamed(init) = %v", got)
	}
}

func TestLinkRejectsDuplicateFIndex(t *testing.T) {
	b := sampleBuilder()
	b.P.Natives[0].FIndex = 0
	err := b.P.Link()
	if !errors.Is(err, bytecode.ErrInvalidReference) {
		t.Fatalf("Link error = %v, want ErrInvalidReference", err)
	}
}

func TestLinkRejectsSuperCycle(t *testing.T) {
	b := hltest.New()
	a := b.Obj("A", bytecode.NoType)
	c := b.Obj("B", a)
	b.P.Types[a].Obj.Super = c
	b.Function(b.Fun(hltest.Void), []bytecode.RefType{hltest.Void}, hltest.Op(bytecode.OpRet, 0))
	if err := b.P.Link(); !errors.Is(err, bytecode.ErrInvalidReference) {
		t.Fatalf("Link error = %v, want ErrInvalidReference", err)
	}
}
