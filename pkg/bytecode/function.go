package bytecode

// DebugPos is the source position of one instruction.
type DebugPos struct {
	File int
	Line int
}

// Assign names a variable at an instruction position.
type Assign struct {
	Name RefString
	Pos  int32
}

// Function is a user function with a body.
type Function struct {
	Type   RefType
	FIndex RefFun
	Regs   []RefType
	Ops    []Instr
	// Debug holds one position per instruction when the program carries
	// debug info.
	Debug   []DebugPos
	Assigns []Assign

	// Name and Parent are derived by Link from object prototypes and
	// bindings. NoString and NoType when absent.
	Name   RefString
	Parent RefType
}

// Native is a host-provided function.
type Native struct {
	Lib    RefString
	Name   RefString
	Type   RefType
	FIndex RefFun
}

// Constant initializes a global with a constant built from the listed fields.
type Constant struct {
	Global RefGlobal
	Fields []int32
}

// FunPtr is the resolution of a function index: a user function or a native.
type FunPtr struct {
	Fun    RefFun
	Native bool
	// Index is the position in Program.Functions or Program.Natives.
	Index int
}

// HasName reports whether the function received a name during linking.
func (f *Function) HasName() bool { return f.Name != NoString && f.Name >= 0 }

// IsMethod reports whether the function is a method of its parent type:
// its first register has the parent's type.
func (f *Function) IsMethod() bool {
	return f.Parent != NoType && f.Parent >= 0 && len(f.Regs) > 0 && f.Regs[0] == f.Parent
}

// ArgCount returns the number of arguments in the function's signature, or
// zero when the signature cannot be resolved.
func (f *Function) ArgCount(p *Program) int {
	if sig := p.signature(f.Type); sig != nil {
		return len(sig.Args)
	}
	return 0
}

// Ret returns the return type of the function's signature.
func (f *Function) Ret(p *Program) RefType {
	if sig := p.signature(f.Type); sig != nil {
		return sig.Ret
	}
	return TypeVoid
}

// RegType returns the declared type of a register, or NoType when out of range.
func (f *Function) RegType(r Reg) RefType {
	if r < 0 || int(r) >= len(f.Regs) {
		return NoType
	}
	return f.Regs[r]
}

// ArgName returns the debug name of argument i. Argument names are the
// assigns recorded at position zero, in order.
func (f *Function) ArgName(p *Program, i int) (string, bool) {
	j := 0
	for _, a := range f.Assigns {
		if a.Pos != 0 {
			continue
		}
		if j == i {
			return p.lookupString(a.Name)
		}
		j++
	}
	return "", false
}

// VarName returns the variable name assigned by the instruction at pos.
func (f *Function) VarName(p *Program, pos int) (string, bool) {
	for _, a := range f.Assigns {
		if int(a.Pos) == pos+1 {
			return p.lookupString(a.Name)
		}
	}
	return "", false
}
