package bytecode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Encoder: serializes a Program to the HashLink wire format
// ---------------------------------------------------------------------------

// encoder appends to a single buffer; the first error is sticky.
type encoder struct {
	buf   []byte
	where string
	err   error
}

// Encode validates p and serializes it. Encode(Decode(b)) reproduces b
// byte for byte for any b produced by Encode.
func Encode(p *Program) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &encoder{buf: make([]byte, 0, 1<<16)}
	e.program(p)
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// WriteTo encodes the program and writes it to w.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	data, err := Encode(p)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		return n, fmt.Errorf("failed to write bytecode: %w", err)
	}
	return n, nil
}

func (e *encoder) u8(v byte) { e.buf = append(e.buf, v) }

func (e *encoder) i32(v int32) { e.buf = AppendInt32(e.buf, v) }

func (e *encoder) f64(v float64) { e.buf = AppendFloat64(e.buf, v) }

func (e *encoder) varint(v int32) {
	if e.err != nil {
		return
	}
	var err error
	e.buf, err = AppendVarInt(e.buf, v)
	if err != nil {
		kind := error(ErrInvariant)
		if errors.Is(err, ErrVarIntRange) {
			kind = ErrVarIntRange
		}
		e.err = &EncodeError{Kind: kind, Where: e.where, Msg: err.Error()}
	}
}

func (e *encoder) count(n int) { e.varint(int32(n)) }

// ---------------------------------------------------------------------------
// Header and pools
// ---------------------------------------------------------------------------

func (e *encoder) program(p *Program) {
	e.where = "header"
	e.buf = append(e.buf, Magic[:]...)
	e.u8(p.Version)
	if p.Debug {
		e.count(FlagDebug)
	} else {
		e.count(0)
	}
	e.count(len(p.Ints))
	e.count(len(p.Floats))
	e.count(len(p.Strings))
	if p.Version >= 5 {
		e.count(len(p.BytesPos))
	}
	e.count(len(p.Types))
	e.count(len(p.Globals))
	e.count(len(p.Natives))
	e.count(len(p.Functions))
	if p.Version >= 4 {
		e.count(len(p.Constants))
	}
	e.varint(int32(p.Entrypoint))

	for _, v := range p.Ints {
		e.i32(v)
	}
	for _, v := range p.Floats {
		e.f64(v)
	}
	e.where = "strings"
	e.strings(p.Strings)
	if p.Version >= 5 {
		e.where = "bytes"
		e.i32(int32(len(p.Bytes)))
		e.buf = append(e.buf, p.Bytes...)
		for _, pos := range p.BytesPos {
			e.count(pos)
		}
	}
	if p.Debug {
		e.where = "debug files"
		e.count(len(p.DebugFiles))
		e.strings(p.DebugFiles)
	}

	for i := range p.Types {
		e.where = fmt.Sprintf("type@%d", i)
		e.typ(&p.Types[i])
	}
	e.where = "globals"
	for _, g := range p.Globals {
		e.varint(int32(g))
	}
	e.where = "natives"
	for _, n := range p.Natives {
		e.varint(int32(n.Lib))
		e.varint(int32(n.Name))
		e.varint(int32(n.Type))
		e.varint(int32(n.FIndex))
	}
	for i := range p.Functions {
		e.where = fmt.Sprintf("fn@%d", p.Functions[i].FIndex)
		e.function(&p.Functions[i], p.Debug, p.Version)
	}
	if p.Version >= 4 {
		e.where = "constants"
		for _, c := range p.Constants {
			e.varint(int32(c.Global))
			e.count(len(c.Fields))
			for _, f := range c.Fields {
				e.varint(f)
			}
		}
	}
}

// strings writes a string block: total size, NUL-terminated data, lengths.
func (e *encoder) strings(ss []string) {
	size := 0
	for _, s := range ss {
		size += len(s) + 1
	}
	e.i32(int32(size))
	for _, s := range ss {
		e.buf = append(e.buf, s...)
		e.u8(0)
	}
	for _, s := range ss {
		e.count(len(s))
	}
}

func (e *encoder) typ(t *Type) {
	e.u8(byte(t.Kind))
	switch t.Kind {
	case KindFun, KindMethod:
		e.u8(byte(len(t.Fun.Args)))
		for _, a := range t.Fun.Args {
			e.varint(int32(a))
		}
		e.varint(int32(t.Fun.Ret))
	case KindObj, KindStruct:
		o := t.Obj
		e.varint(int32(o.Name))
		e.varint(int32(o.Super))
		e.varint(int32(o.Global))
		e.count(len(o.OwnFields))
		e.count(len(o.Protos))
		e.count(len(o.Bindings))
		e.fields(o.OwnFields)
		for _, proto := range o.Protos {
			e.varint(int32(proto.Name))
			e.varint(int32(proto.FIndex))
			e.varint(proto.PIndex)
		}
		for _, b := range o.Bindings {
			e.varint(int32(b.Field))
			e.varint(int32(b.Fun))
		}
	case KindRef, KindNull, KindPacked:
		e.varint(int32(t.Inner))
	case KindVirtual:
		e.count(len(t.Fields))
		e.fields(t.Fields)
	case KindAbstract:
		e.varint(int32(t.Name))
	case KindEnum:
		en := t.Enum
		e.varint(int32(en.Name))
		e.varint(int32(en.Global))
		e.count(len(en.Constructs))
		for _, c := range en.Constructs {
			e.varint(int32(c.Name))
			e.count(len(c.Params))
			for _, param := range c.Params {
				e.varint(int32(param))
			}
		}
	}
}

func (e *encoder) fields(fields []ObjField) {
	for _, f := range fields {
		e.varint(int32(f.Name))
		e.varint(int32(f.Type))
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (e *encoder) function(f *Function, debug bool, version uint8) {
	e.varint(int32(f.Type))
	e.varint(int32(f.FIndex))
	e.count(len(f.Regs))
	e.count(len(f.Ops))
	for _, r := range f.Regs {
		e.varint(int32(r))
	}
	for i := range f.Ops {
		e.instr(&f.Ops[i])
	}
	if debug {
		e.debugInfo(f.Debug)
		if version >= 3 {
			e.count(len(f.Assigns))
			for _, a := range f.Assigns {
				e.varint(int32(a.Name))
				e.varint(a.Pos)
			}
		}
	}
}

func (e *encoder) instr(ins *Instr) {
	e.u8(byte(ins.Op))
	slot := 0
	for _, o := range opcodeInfoTable[ins.Op].Operands {
		switch o.Kind {
		case OperandRegs:
			e.u8(byte(len(ins.List)))
			for _, r := range ins.List {
				e.varint(r)
			}
		case OperandOffsets:
			e.count(len(ins.List))
			for _, off := range ins.List {
				e.varint(off)
			}
		default:
			e.varint(ins.Args[slot])
			slot++
		}
	}
}

// debugInfo writes the line table the way the Haxe compiler does: a file
// switch record, then per instruction either a repeat of the current line,
// a small positive delta or an absolute line.
func (e *encoder) debugInfo(lines []DebugPos) {
	curFile, curLine, repeat := -1, 0, 0
	flush := func(line int) {
		for repeat > 15 {
			e.u8(15<<2 | 2)
			repeat -= 15
		}
		if repeat > 0 {
			delta := line - curLine
			if delta <= 0 || delta >= 4 {
				delta = 0
			}
			e.u8(byte(delta<<6 | repeat<<2 | 2))
			repeat = 0
			curLine += delta
		}
	}
	for _, d := range lines {
		if d.File != curFile {
			flush(d.Line)
			curFile = d.File
			e.u8(byte(d.File>>7 | 1))
			e.u8(byte(d.File))
		}
		if d.Line != curLine {
			flush(d.Line)
		}
		if d.Line == curLine {
			repeat++
			continue
		}
		delta := d.Line - curLine
		if delta > 0 && delta < 32 {
			e.u8(byte(delta<<3 | 4))
		} else {
			e.u8(byte(d.Line << 3))
			e.u8(byte(d.Line >> 5))
			e.u8(byte(d.Line >> 13))
		}
		curLine = d.Line
	}
	flush(curLine)
}
