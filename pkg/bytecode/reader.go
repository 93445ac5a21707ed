package bytecode

import (
	"errors"
	"fmt"
	"io"
)

// Magic is the signature at the start of every HashLink bytecode file.
var Magic = [3]byte{'H', 'L', 'B'}

// Supported format versions.
const (
	MinVersion = 2
	MaxVersion = 5
)

// FlagDebug marks a file carrying debug files, line info and assigns.
const FlagDebug = 1 << 0

// ---------------------------------------------------------------------------
// Decode Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic       = errors.New("invalid magic: expected HLB")
	ErrUnsupportedVersion = errors.New("unsupported bytecode version")
	ErrUnexpectedEOF      = errors.New("unexpected end of bytecode")
	ErrInvalidTag         = errors.New("invalid variant tag")
	ErrCountOverflow      = errors.New("count exceeds remaining bytes")
	ErrNegativeVarUint    = errors.New("negative value for unsigned field")
	ErrMalformedString    = errors.New("malformed string table")
	ErrMalformedDebugInfo = errors.New("malformed debug line info")
	ErrInvalidReference   = errors.New("reference out of bounds")
	ErrTrailingData       = errors.New("trailing data after constants")
)

// DecodeError reports where and why decoding stopped. Kind is one of the
// sentinel errors above and is matched by errors.Is.
type DecodeError struct {
	Kind     error
	Offset   int
	What     string
	Expected string
	Found    string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s at offset %d: %v", e.What, e.Offset, e.Kind)
	if e.Expected != "" || e.Found != "" {
		msg += fmt.Sprintf(" (expected %s, found %s)", e.Expected, e.Found)
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Kind }

// ---------------------------------------------------------------------------
// Decoder
// ---------------------------------------------------------------------------

// decoder reads a fully buffered bytecode file. The first error is sticky:
// once set, every read returns zero values and decoding unwinds.
type decoder struct {
	data   []byte
	offset int
	err    error

	// Pool sizes from the header, used to bounds-check references inline.
	nstrings int
	ntypes   int
	nglobals int
	nfuns    int
}

// Decode parses and links a complete bytecode file.
func Decode(data []byte) (*Program, error) {
	d := &decoder{data: data}
	p := d.program()
	if d.err != nil {
		return nil, d.err
	}
	if err := p.link(); err != nil {
		if de, ok := err.(*DecodeError); ok && de.Offset < 0 {
			de.Offset = len(data)
		}
		return nil, err
	}
	return p, nil
}

// ReadFrom buffers r fully and decodes it.
func ReadFrom(r io.Reader) (*Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bytecode: %w", err)
	}
	return Decode(data)
}

func (d *decoder) fail(kind error, what, expected, found string) {
	if d.err == nil {
		d.err = &DecodeError{Kind: kind, Offset: d.offset, What: what, Expected: expected, Found: found}
	}
}

func (d *decoder) remaining() int { return len(d.data) - d.offset }

func (d *decoder) bytes(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.fail(ErrUnexpectedEOF, what, fmt.Sprintf("%d bytes", n), fmt.Sprintf("%d", d.remaining()))
		return nil
	}
	b := d.data[d.offset : d.offset+n]
	d.offset += n
	return b
}

func (d *decoder) u8(what string) byte {
	b := d.bytes(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) i32(what string) int32 {
	b := d.bytes(4, what)
	if b == nil {
		return 0
	}
	return ReadInt32(b)
}

func (d *decoder) f64(what string) float64 {
	b := d.bytes(8, what)
	if b == nil {
		return 0
	}
	return ReadFloat64(b)
}

func (d *decoder) vari(what string) int32 {
	if d.err != nil {
		return 0
	}
	v, n := DecodeVarInt(d.data[d.offset:])
	if n == 0 {
		d.fail(ErrUnexpectedEOF, what, "variable-length integer", fmt.Sprintf("%d bytes", d.remaining()))
		return 0
	}
	d.offset += n
	return v
}

func (d *decoder) varu(what string) int {
	start := d.offset
	v := d.vari(what)
	if v < 0 {
		d.offset = start
		d.fail(ErrNegativeVarUint, what, "non-negative", fmt.Sprintf("%d", v))
		return 0
	}
	return int(v)
}

// count reads an element count and checks that the remaining buffer can hold
// that many elements of at least minSize bytes each.
func (d *decoder) count(what string, minSize int) int {
	start := d.offset
	n := d.varu(what)
	if d.err == nil && n*minSize > d.remaining() {
		d.offset = start
		d.fail(ErrCountOverflow, what, fmt.Sprintf("at most %d", d.remaining()/minSize), fmt.Sprintf("%d", n))
		return 0
	}
	return n
}

// ref reads a pool index in [0, limit). A negative limit only requires the
// index to be non-negative.
func (d *decoder) ref(what string, limit int) int32 {
	start := d.offset
	v := d.vari(what)
	if d.err != nil {
		return 0
	}
	if v < 0 || (limit >= 0 && int(v) >= limit) {
		d.offset = start
		expected := "index >= 0"
		if limit >= 0 {
			expected = fmt.Sprintf("index < %d", limit)
		}
		d.fail(ErrInvalidReference, what, expected, fmt.Sprintf("%d", v))
		return 0
	}
	return v
}

func (d *decoder) str(what string) RefString { return RefString(d.ref(what, d.nstrings)) }

func (d *decoder) typeRef(what string) RefType { return RefType(d.ref(what, d.ntypes)) }

func (d *decoder) funRef(what string) RefFun { return RefFun(d.ref(what, d.nfuns)) }

// globalSlot reads a one-based global reference where zero means none.
func (d *decoder) globalSlot(what string) RefGlobal { return RefGlobal(d.ref(what, d.nglobals+1)) }

// ---------------------------------------------------------------------------
// Header and pools
// ---------------------------------------------------------------------------

func (d *decoder) program() *Program {
	magic := d.bytes(len(Magic), "magic")
	if d.err != nil {
		return nil
	}
	if [3]byte(magic) != Magic {
		d.offset = 0
		d.fail(ErrInvalidMagic, "magic", "HLB", fmt.Sprintf("%q", magic))
		return nil
	}

	p := &Program{}
	p.Version = d.u8("version")
	if d.err == nil && (p.Version < MinVersion || p.Version > MaxVersion) {
		d.offset--
		d.fail(ErrUnsupportedVersion, "version", fmt.Sprintf("%d..%d", MinVersion, MaxVersion), fmt.Sprintf("%d", p.Version))
		return nil
	}
	flags := d.varu("flags")
	p.Debug = flags&FlagDebug != 0

	nints := d.count("int count", 4)
	nfloats := d.count("float count", 8)
	nstrings := d.count("string count", 1)
	nbytes := 0
	if p.Version >= 5 {
		nbytes = d.count("bytes count", 1)
	}
	ntypes := d.count("type count", 1)
	nglobals := d.count("global count", 1)
	nnatives := d.count("native count", 4)
	nfunctions := d.count("function count", 4)
	nconstants := 0
	if p.Version >= 4 {
		nconstants = d.count("constant count", 2)
	}
	d.nstrings, d.ntypes, d.nglobals = nstrings, ntypes, nglobals
	d.nfuns = nfunctions + nnatives
	p.Entrypoint = d.funRef("entrypoint")
	if d.err != nil {
		return nil
	}

	p.Ints = make([]int32, nints)
	for i := range p.Ints {
		p.Ints[i] = d.i32("int")
	}
	p.Floats = make([]float64, nfloats)
	for i := range p.Floats {
		p.Floats[i] = d.f64("float")
	}
	p.Strings = d.strings(nstrings, "string")

	if p.Version >= 5 {
		size := int(d.i32("bytes size"))
		p.Bytes = append([]byte(nil), d.bytes(size, "bytes blob")...)
		p.BytesPos = make([]int, nbytes)
		for i := range p.BytesPos {
			start := d.offset
			p.BytesPos[i] = d.varu("bytes position")
			if d.err == nil && p.BytesPos[i] > size {
				d.offset = start
				d.fail(ErrInvalidReference, "bytes position", fmt.Sprintf("<= %d", size), fmt.Sprintf("%d", p.BytesPos[i]))
			}
		}
	}

	if p.Debug {
		nfiles := d.count("debug file count", 1)
		p.DebugFiles = d.strings(nfiles, "debug file")
	}
	if d.err != nil {
		return nil
	}

	p.Types = make([]Type, ntypes)
	for i := range p.Types {
		p.Types[i] = d.typ()
	}
	p.Globals = make([]RefType, nglobals)
	for i := range p.Globals {
		p.Globals[i] = d.typeRef("global type")
	}
	p.Natives = make([]Native, nnatives)
	for i := range p.Natives {
		p.Natives[i] = Native{
			Lib:    d.str("native lib"),
			Name:   d.str("native name"),
			Type:   d.typeRef("native type"),
			FIndex: d.funRef("native findex"),
		}
	}
	p.Functions = make([]Function, nfunctions)
	for i := range p.Functions {
		p.Functions[i] = d.function(p.Debug, p.Version)
		if d.err != nil {
			return nil
		}
	}
	p.Constants = make([]Constant, nconstants)
	for i := range p.Constants {
		c := Constant{Global: RefGlobal(d.ref("constant global", d.nglobals))}
		n := d.count("constant field count", 1)
		if n > 0 {
			c.Fields = make([]int32, n)
			for j := range c.Fields {
				c.Fields[j] = int32(d.varu("constant field"))
			}
		}
		p.Constants[i] = c
	}
	if d.err == nil && d.remaining() > 0 {
		d.fail(ErrTrailingData, "end of file", "0 bytes", fmt.Sprintf("%d bytes", d.remaining()))
	}
	return p
}

// strings reads a string block: a byte size, the NUL-terminated contents and
// one length per string.
func (d *decoder) strings(n int, what string) []string {
	size := int(d.i32(what + " block size"))
	if d.err != nil {
		return nil
	}
	if size < 0 {
		d.offset -= 4
		d.fail(ErrMalformedString, what+" block size", ">= 0", fmt.Sprintf("%d", size))
		return nil
	}
	data := d.bytes(size, what+" data")
	out := make([]string, n)
	pos := 0
	for i := range out {
		start := d.offset
		l := d.varu(what + " length")
		if d.err != nil {
			return nil
		}
		if pos+l >= size || data[pos+l] != 0 {
			d.offset = start
			d.fail(ErrMalformedString, what, fmt.Sprintf("NUL-terminated string within %d bytes", size),
				fmt.Sprintf("length %d at %d", l, pos))
			return nil
		}
		out[i] = string(data[pos : pos+l])
		pos += l + 1
	}
	return out
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func (d *decoder) typ() Type {
	tag := d.u8("type tag")
	kind := TypeKind(tag)
	if d.err == nil && !kind.Valid() {
		d.offset--
		d.fail(ErrInvalidTag, "type", fmt.Sprintf("0..%d", kindCount-1), fmt.Sprintf("%d", tag))
		return Type{}
	}
	t := Type{Kind: kind, Inner: NoType, Name: NoString}
	switch kind {
	case KindFun, KindMethod:
		t.Fun = d.typeFun()
	case KindObj, KindStruct:
		t.Obj = d.typeObj()
	case KindRef, KindNull, KindPacked:
		t.Inner = d.typeRef("inner type")
	case KindVirtual:
		t.Fields = d.fields(d.count("virtual field count", 2))
	case KindAbstract:
		t.Name = d.str("abstract name")
	case KindEnum:
		t.Enum = d.typeEnum()
	}
	return t
}

func (d *decoder) typeFun() *TypeFun {
	n := int(d.u8("argument count"))
	f := &TypeFun{Args: make([]RefType, n)}
	for i := range f.Args {
		f.Args[i] = d.typeRef("argument type")
	}
	f.Ret = d.typeRef("return type")
	return f
}

func (d *decoder) fields(n int) []ObjField {
	fields := make([]ObjField, n)
	for i := range fields {
		fields[i] = ObjField{Name: d.str("field name"), Type: d.typeRef("field type")}
	}
	return fields
}

func (d *decoder) typeObj() *TypeObj {
	o := &TypeObj{Name: d.str("object name"), Super: NoType}
	start := d.offset
	if super := d.vari("super type"); super >= 0 {
		if int(super) >= d.ntypes {
			d.offset = start
			d.fail(ErrInvalidReference, "super type", fmt.Sprintf("index < %d", d.ntypes), fmt.Sprintf("%d", super))
		}
		o.Super = RefType(super)
	}
	o.Global = d.globalSlot("object global")
	nfields := d.count("field count", 2)
	nprotos := d.count("proto count", 3)
	nbindings := d.count("binding count", 2)
	o.OwnFields = d.fields(nfields)
	o.Protos = make([]ObjProto, nprotos)
	for i := range o.Protos {
		o.Protos[i] = ObjProto{
			Name:   d.str("proto name"),
			FIndex: d.funRef("proto findex"),
			PIndex: d.vari("proto pindex"),
		}
	}
	o.Bindings = make([]Binding, nbindings)
	for i := range o.Bindings {
		o.Bindings[i] = Binding{Field: RefField(d.ref("binding field", -1)), Fun: d.funRef("binding function")}
	}
	return o
}

func (d *decoder) typeEnum() *TypeEnum {
	e := &TypeEnum{
		Name:   d.str("enum name"),
		Global: d.globalSlot("enum global"),
	}
	e.Constructs = make([]EnumConstruct, d.count("construct count", 2))
	for i := range e.Constructs {
		c := EnumConstruct{Name: d.str("construct name")}
		c.Params = make([]RefType, d.count("construct param count", 1))
		for j := range c.Params {
			c.Params[j] = d.typeRef("construct param")
		}
		e.Constructs[i] = c
	}
	return e
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (d *decoder) function(debug bool, version uint8) Function {
	f := Function{
		Type:   d.typeRef("function type"),
		FIndex: d.funRef("function findex"),
		Name:   NoString,
		Parent: NoType,
	}
	nregs := d.count("register count", 1)
	nops := d.count("opcode count", 1)
	f.Regs = make([]RefType, nregs)
	for i := range f.Regs {
		f.Regs[i] = d.typeRef("register type")
	}
	f.Ops = make([]Instr, nops)
	for i := range f.Ops {
		f.Ops[i] = d.instr()
		if d.err != nil {
			return f
		}
	}
	if debug {
		f.Debug = d.debugInfo(nops)
		if version >= 3 {
			n := d.count("assign count", 2)
			f.Assigns = make([]Assign, n)
			for i := range f.Assigns {
				f.Assigns[i] = Assign{Name: d.str("assign name"), Pos: d.vari("assign position")}
			}
		}
	}
	return f
}

// instr decodes one instruction using the opcode table.
func (d *decoder) instr() Instr {
	tag := d.u8("opcode")
	op := Opcode(tag)
	if d.err == nil && !op.Valid() {
		d.offset--
		d.fail(ErrInvalidTag, "opcode", fmt.Sprintf("0..%d", opcodeCount-1), fmt.Sprintf("%d", tag))
		return Instr{}
	}
	ins := Instr{Op: op}
	slot := 0
	for _, o := range opcodeInfoTable[op].Operands {
		switch o.Kind {
		case OperandRegs:
			n := int(d.u8("register list length"))
			if n > 0 {
				ins.List = make([]int32, n)
				for i := range ins.List {
					ins.List[i] = d.vari("register")
				}
			}
		case OperandOffsets:
			n := d.count("switch offset count", 1)
			if n > 0 {
				ins.List = make([]int32, n)
				for i := range ins.List {
					ins.List[i] = int32(d.varu("switch offset"))
				}
			}
		case OperandBool:
			if d.vari(o.Name) == 1 {
				ins.Args[slot] = 1
			}
			slot++
		default:
			ins.Args[slot] = d.vari(o.Name)
			slot++
		}
	}
	return ins
}

// debugInfo decodes the compact per-instruction line table.
func (d *decoder) debugInfo(nops int) []DebugPos {
	out := make([]DebugPos, 0, nops)
	file, line := -1, 0
	for len(out) < nops && d.err == nil {
		c := int(d.u8("line info"))
		switch {
		case c&1 != 0:
			file = (c>>1)<<8 | int(d.u8("line info file"))
		case c&2 != 0:
			delta := c >> 6
			count := (c >> 2) & 15
			if len(out)+count > nops {
				d.offset--
				d.fail(ErrMalformedDebugInfo, "line info", fmt.Sprintf("at most %d entries", nops-len(out)), fmt.Sprintf("%d", count))
				return nil
			}
			for ; count > 0; count-- {
				out = append(out, DebugPos{File: file, Line: line})
			}
			line += delta
		case c&4 != 0:
			line += c >> 3
			out = append(out, DebugPos{File: file, Line: line})
		default:
			b2 := int(d.u8("line info"))
			b3 := int(d.u8("line info"))
			line = c>>3 | b2<<5 | b3<<13
			out = append(out, DebugPos{File: file, Line: line})
		}
	}
	return out
}
