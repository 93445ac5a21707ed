package bytecode

import (
	"regexp"
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if got := OpcodeCount(); got != 99 {
		t.Errorf("OpcodeCount() = %d, want 99", got)
	}
	if OpNop != 98 {
		t.Errorf("OpNop = %d, want wire tag 98", OpNop)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpMov, "Mov"},
		{OpCall0, "Call0"},
		{OpCallMethod, "CallMethod"},
		{OpJAlways, "JAlways"},
		{OpSwitch, "Switch"},
		{OpTrap, "Trap"},
		{OpSetEnumField, "SetEnumField"},
		{OpNop, "Nop"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	got := Opcode(0xEE).String()
	if got != "UNKNOWN(0xEE)" {
		t.Errorf("unknown opcode = %q, want UNKNOWN(0xEE)", got)
	}
}

func TestOpcodeNamesUnique(t *testing.T) {
	seen := make(map[string]Opcode)
	for _, op := range AllOpcodes() {
		name := op.String()
		if prev, ok := seen[name]; ok {
			t.Errorf("%s used by 0x%02X and 0x%02X", name, byte(prev), byte(op))
		}
		seen[name] = op
		if got, ok := LookupOpcode(name); !ok || got != op {
			t.Errorf("LookupOpcode(%q) = %v, %t", name, got, ok)
		}
	}
}

var placeholderRe = regexp.MustCompile(`\{([a-z0-9]+)(\.[a-z0-9]+)?\}`)

func TestEveryOpcodeHasTemplate(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Template == "" {
			t.Errorf("%s has no template", info.Name)
			continue
		}
		names := make(map[string]Operand)
		for _, o := range info.Operands {
			names[o.Name] = o
		}
		for _, m := range placeholderRe.FindAllStringSubmatch(info.Template, -1) {
			if _, ok := names[m[1]]; !ok {
				t.Errorf("%s template references unknown operand %q", info.Name, m[1])
			}
		}
		// Every operand must appear in the rendering.
		for _, o := range info.Operands {
			if !strings.Contains(info.Template, "{"+o.Name) {
				t.Errorf("%s template omits operand %q", info.Name, o.Name)
			}
		}
	}
}

func TestOperandShapes(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		fixed, lists := 0, 0
		for _, o := range info.Operands {
			if o.Kind.IsList() {
				lists++
			} else {
				fixed++
			}
			if (o.Kind == OperandField || o.Kind == OperandConstruct) && o.Scope != "" &&
				o.Scope != "this" && o.Scope != "args.0" {
				found := false
				for _, other := range info.Operands {
					if other.Name == o.Scope {
						found = true
					}
				}
				if !found {
					t.Errorf("%s: operand %q scoped to unknown %q", info.Name, o.Name, o.Scope)
				}
			}
		}
		if fixed > MaxOperands {
			t.Errorf("%s has %d fixed operands, max %d", info.Name, fixed, MaxOperands)
		}
		if lists > 1 {
			t.Errorf("%s has %d list operands", info.Name, lists)
		}
	}
}

func TestOpcodeFlags(t *testing.T) {
	tests := []struct {
		op                   Opcode
		jump, cond, ret, cal bool
	}{
		{OpJTrue, true, true, false, false},
		{OpJAlways, true, false, false, false},
		{OpSwitch, true, false, false, false},
		{OpRet, false, false, true, false},
		{OpThrow, false, false, true, false},
		{OpCall2, false, false, false, true},
		{OpCallClosure, false, false, false, true},
		{OpAdd, false, false, false, false},
	}
	for _, tt := range tests {
		if tt.op.IsJump() != tt.jump || tt.op.IsCondJump() != tt.cond ||
			tt.op.IsReturn() != tt.ret || tt.op.IsCall() != tt.cal {
			t.Errorf("%s flags: jump=%t cond=%t ret=%t call=%t", tt.op,
				tt.op.IsJump(), tt.op.IsCondJump(), tt.op.IsReturn(), tt.op.IsCall())
		}
	}
}

func TestInstrTargets(t *testing.T) {
	jmp := NewInstr(OpJSLt, []int32{0, 1, 3})
	if got := jmp.Targets(2); len(got) != 1 || got[0] != 6 {
		t.Errorf("JSLt targets = %v, want [6]", got)
	}
	sw := NewInstr(OpSwitch, []int32{0, 4}, 0, 2)
	got := sw.Targets(1)
	want := []int{2, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("Switch targets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Switch targets = %v, want %v", got, want)
		}
	}
	add := NewInstr(OpAdd, []int32{2, 0, 1})
	if add.Targets(0) != nil {
		t.Error("Add should have no targets")
	}
}

func TestInstrDataFlow(t *testing.T) {
	add := NewInstr(OpAdd, []int32{2, 0, 1})
	if dst, ok := add.Dst(); !ok || dst != 2 {
		t.Errorf("Add Dst() = %v, %t", dst, ok)
	}
	if reads := add.Reads(); len(reads) != 2 || reads[0] != 0 || reads[1] != 1 {
		t.Errorf("Add Reads() = %v", reads)
	}

	call := NewInstr(OpCallN, []int32{3, 7}, 0, 1, 2)
	if reads := call.Reads(); len(reads) != 3 {
		t.Errorf("CallN Reads() = %v", reads)
	}

	trap := NewInstr(OpTrap, []int32{4, 10})
	if _, ok := trap.Dst(); ok {
		t.Error("Trap should not report a destination")
	}

	incr := NewInstr(OpIncr, []int32{5})
	if dst, ok := incr.Dst(); !ok || dst != 5 {
		t.Errorf("Incr Dst() = %v, %t", dst, ok)
	}
	if reads := incr.Reads(); len(reads) != 1 || reads[0] != 5 {
		t.Errorf("Incr Reads() = %v", reads)
	}

	set := NewInstr(OpSetField, []int32{1, 0, 2})
	if _, ok := set.Dst(); ok {
		t.Error("SetField should not report a destination")
	}
}
