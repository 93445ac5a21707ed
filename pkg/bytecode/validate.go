package bytecode

import (
	"errors"
	"fmt"
)

// ErrInvariant reports a program that cannot be encoded faithfully.
var ErrInvariant = errors.New("program invariant violated")

// EncodeError locates an encoding failure. Kind is ErrInvalidReference,
// ErrInvariant or ErrVarIntRange.
type EncodeError struct {
	Kind  error
	Where string
	Msg   string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v: %s", e.Where, e.Kind, e.Msg)
}

func (e *EncodeError) Unwrap() error { return e.Kind }

// validator collects the first violation found while walking a Program.
type validator struct {
	p   *Program
	err error
}

func (v *validator) fail(kind error, where, format string, args ...any) {
	if v.err == nil {
		v.err = &EncodeError{Kind: kind, Where: where, Msg: fmt.Sprintf(format, args...)}
	}
}

func (v *validator) index(where string, idx, n int) {
	if idx < 0 || idx >= n {
		v.fail(ErrInvalidReference, where, "index %d outside [0, %d)", idx, n)
	}
}

func (v *validator) str(where string, r RefString)    { v.index(where, int(r), len(v.p.Strings)) }
func (v *validator) typ(where string, r RefType)      { v.index(where, int(r), len(v.p.Types)) }
func (v *validator) global(where string, r RefGlobal) { v.index(where, int(r), len(v.p.Globals)) }

func (v *validator) fun(where string, r RefFun) {
	if _, err := v.p.Fn(r); err != nil {
		v.fail(ErrInvalidReference, where, "%v", err)
	}
}

// Validate checks that every reference in the program is within bounds and
// that every value fits its wire encoding. It expects a linked program.
func (p *Program) Validate() error {
	v := &validator{p: p}
	if p.Version < MinVersion || p.Version > MaxVersion {
		v.fail(ErrInvariant, "header", "version %d not in %d..%d", p.Version, MinVersion, MaxVersion)
	}
	if p.Version < 5 && len(p.BytesPos) > 0 {
		v.fail(ErrInvariant, "bytes", "version %d cannot carry a bytes pool", p.Version)
	}
	if p.Version < 4 && len(p.Constants) > 0 {
		v.fail(ErrInvariant, "constants", "version %d cannot carry constants", p.Version)
	}
	if !p.Debug && (len(p.DebugFiles) > 0) {
		v.fail(ErrInvariant, "debug files", "debug files present without the debug flag")
	}
	if len(p.findexes) != len(p.Functions)+len(p.Natives) {
		v.fail(ErrInvariant, "functions", "program is not linked")
	}
	v.fun("entrypoint", p.Entrypoint)

	prev := 0
	for i, pos := range p.BytesPos {
		if pos < prev || pos > len(p.Bytes) {
			v.fail(ErrInvalidReference, fmt.Sprintf("bytes@%d", i), "position %d outside [%d, %d]", pos, prev, len(p.Bytes))
		}
		prev = pos
	}

	for i := range p.Types {
		v.typeDef(fmt.Sprintf("type@%d", i), &p.Types[i])
	}
	for i, g := range p.Globals {
		v.typ(fmt.Sprintf("global@%d", i), g)
	}
	for i := range p.Natives {
		n := &p.Natives[i]
		where := fmt.Sprintf("native@%d", i)
		v.str(where+" lib", n.Lib)
		v.str(where+" name", n.Name)
		v.typ(where+" type", n.Type)
	}
	for i := range p.Functions {
		v.function(&p.Functions[i])
	}
	for i, c := range p.Constants {
		v.global(fmt.Sprintf("constant@%d", i), c.Global)
		for _, f := range c.Fields {
			if f < 0 {
				v.fail(ErrInvariant, fmt.Sprintf("constant@%d", i), "negative field %d", f)
			}
		}
	}
	return v.err
}

func (v *validator) fields(where string, fields []ObjField) {
	for _, f := range fields {
		v.str(where+" field name", f.Name)
		v.typ(where+" field type", f.Type)
	}
}

func (v *validator) globalSlot(where string, g RefGlobal) {
	if g < 0 || int(g) > len(v.p.Globals) {
		v.fail(ErrInvalidReference, where, "global slot %d outside [0, %d]", g, len(v.p.Globals))
	}
}

func (v *validator) typeDef(where string, t *Type) {
	if !t.Kind.Valid() {
		v.fail(ErrInvariant, where, "unknown kind %d", t.Kind)
		return
	}
	switch t.Kind {
	case KindFun, KindMethod:
		if t.Fun == nil {
			v.fail(ErrInvariant, where, "missing signature")
			return
		}
		if len(t.Fun.Args) > 0xFF {
			v.fail(ErrInvariant, where, "%d arguments exceed 255", len(t.Fun.Args))
		}
		for _, a := range t.Fun.Args {
			v.typ(where+" argument", a)
		}
		v.typ(where+" return", t.Fun.Ret)
	case KindObj, KindStruct:
		o := t.Obj
		if o == nil {
			v.fail(ErrInvariant, where, "missing object body")
			return
		}
		v.str(where+" name", o.Name)
		if o.Super != NoType {
			v.typ(where+" super", o.Super)
		}
		v.globalSlot(where+" global", o.Global)
		v.fields(where, o.OwnFields)
		for _, proto := range o.Protos {
			v.str(where+" proto name", proto.Name)
			v.fun(where+" proto", proto.FIndex)
		}
		for _, b := range o.Bindings {
			v.index(where+" binding field", int(b.Field), len(o.Fields))
			v.fun(where+" binding", b.Fun)
		}
	case KindRef, KindNull, KindPacked:
		v.typ(where+" inner", t.Inner)
	case KindVirtual:
		v.fields(where, t.Fields)
	case KindAbstract:
		v.str(where+" name", t.Name)
	case KindEnum:
		e := t.Enum
		if e == nil {
			v.fail(ErrInvariant, where, "missing enum body")
			return
		}
		v.str(where+" name", e.Name)
		v.globalSlot(where+" global", e.Global)
		for _, c := range e.Constructs {
			v.str(where+" construct", c.Name)
			for _, param := range c.Params {
				v.typ(where+" construct param", param)
			}
		}
	}
}

// Debug line records must fit the compact line table encoding.
const (
	maxDebugFile = 1 << 15
	maxDebugLine = 1 << 21
)

func (v *validator) function(f *Function) {
	where := fmt.Sprintf("fn@%d", f.FIndex)
	v.typ(where+" type", f.Type)
	for _, r := range f.Regs {
		v.typ(where+" register", r)
	}
	for pos := range f.Ops {
		v.instr(fmt.Sprintf("%s op %d", where, pos), f, pos)
	}
	if v.p.Debug {
		if len(f.Debug) != len(f.Ops) {
			v.fail(ErrInvariant, where+" debug", "%d line records for %d ops", len(f.Debug), len(f.Ops))
		}
		for _, d := range f.Debug {
			if d.File < 0 || d.File >= len(v.p.DebugFiles) || d.File >= maxDebugFile {
				v.fail(ErrInvalidReference, where+" debug", "file %d outside [0, %d)", d.File, len(v.p.DebugFiles))
			}
			if d.Line < 0 || d.Line >= maxDebugLine {
				v.fail(ErrInvariant, where+" debug", "line %d outside [0, %d)", d.Line, maxDebugLine)
			}
		}
		for _, a := range f.Assigns {
			v.str(where+" assign", a.Name)
		}
	} else if len(f.Debug) > 0 || len(f.Assigns) > 0 {
		v.fail(ErrInvariant, where+" debug", "debug records without the debug flag")
	}
}

func (v *validator) instr(where string, f *Function, pos int) {
	ins := &f.Ops[pos]
	if !ins.Op.Valid() {
		v.fail(ErrInvariant, where, "unknown opcode %d", ins.Op)
		return
	}
	nregs := len(f.Regs)
	slot := 0
	for _, o := range opcodeInfoTable[ins.Op].Operands {
		if o.Kind.IsList() {
			if o.Kind == OperandRegs {
				if len(ins.List) > 0xFF {
					v.fail(ErrInvariant, where, "%d call arguments exceed 255", len(ins.List))
				}
				for _, r := range ins.List {
					v.index(where+" "+o.Name, int(r), nregs)
				}
			} else {
				for _, off := range ins.List {
					if off < 0 {
						v.fail(ErrInvariant, where, "negative switch offset %d", off)
					}
					v.index(where+" switch target", pos+int(off)+1, len(f.Ops))
				}
			}
			continue
		}
		a := int(ins.Args[slot])
		slot++
		name := where + " " + o.Name
		switch o.Kind {
		case OperandDst, OperandReg, OperandInOut:
			v.index(name, a, nregs)
		case OperandInt:
			v.index(name, a, len(v.p.Ints))
		case OperandFloat:
			v.index(name, a, len(v.p.Floats))
		case OperandBytes:
			v.index(name, a, len(v.p.BytesPos))
		case OperandString:
			v.index(name, a, len(v.p.Strings))
		case OperandType:
			v.index(name, a, len(v.p.Types))
		case OperandGlobal:
			v.index(name, a, len(v.p.Globals))
		case OperandFun:
			v.fun(name, RefFun(a))
		case OperandOffset:
			v.index(name+" target", pos+a+1, len(f.Ops))
		case OperandBool:
			if a != 0 && a != 1 {
				v.fail(ErrInvariant, name, "boolean operand %d", a)
			}
		}
	}
}
