package bytecode

import "fmt"

// Opcode identifies an instruction variant. Its numeric value is the wire tag.
type Opcode byte

const (
	// ========================================================================
	// Constants and moves
	// ========================================================================

	OpMov Opcode = iota
	OpInt
	OpFloat
	OpBool
	OpBytes
	OpString
	OpNull

	// ========================================================================
	// Arithmetic
	// ========================================================================

	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSMod
	OpUMod
	OpShl
	OpSShr
	OpUShr
	OpAnd
	OpOr
	OpXor
	OpNeg
	OpNot
	OpIncr
	OpDecr

	// ========================================================================
	// Calls and closures
	// ========================================================================

	OpCall0
	OpCall1
	OpCall2
	OpCall3
	OpCall4
	OpCallN
	OpCallMethod
	OpCallThis
	OpCallClosure
	OpStaticClosure
	OpInstanceClosure
	OpVirtualClosure

	// ========================================================================
	// Globals and fields
	// ========================================================================

	OpGetGlobal
	OpSetGlobal
	OpField
	OpSetField
	OpGetThis
	OpSetThis
	OpDynGet
	OpDynSet

	// ========================================================================
	// Jumps
	// ========================================================================

	OpJTrue
	OpJFalse
	OpJNull
	OpJNotNull
	OpJSLt
	OpJSGte
	OpJSGt
	OpJSLte
	OpJULt
	OpJUGte
	OpJNotLt
	OpJNotGte
	OpJEq
	OpJNotEq
	OpJAlways

	// ========================================================================
	// Conversions
	// ========================================================================

	OpToDyn
	OpToSFloat
	OpToUFloat
	OpToInt
	OpSafeCast
	OpUnsafeCast
	OpToVirtual

	// ========================================================================
	// Control
	// ========================================================================

	OpLabel
	OpRet
	OpThrow
	OpRethrow
	OpSwitch
	OpNullCheck
	OpTrap
	OpEndTrap

	// ========================================================================
	// Memory
	// ========================================================================

	OpGetI8
	OpGetI16
	OpGetMem
	OpGetArray
	OpSetI8
	OpSetI16
	OpSetMem
	OpSetArray

	// ========================================================================
	// Objects, types and references
	// ========================================================================

	OpNew
	OpArraySize
	OpType
	OpGetType
	OpGetTID
	OpRef
	OpUnref
	OpSetref

	// ========================================================================
	// Enums
	// ========================================================================

	OpMakeEnum
	OpEnumAlloc
	OpEnumIndex
	OpEnumField
	OpSetEnumField

	// ========================================================================
	// Misc
	// ========================================================================

	OpAssert
	OpRefData
	OpRefOffset
	OpNop

	opcodeCount
)

// OperandKind describes how an operand is encoded and what it refers to.
type OperandKind uint8

const (
	OperandDst       OperandKind = iota // register written by the instruction
	OperandReg                          // register read by the instruction
	OperandInOut                        // register read and written
	OperandRegs                         // u8-counted list of read registers
	OperandInt                          // RefInt
	OperandFloat                        // RefFloat
	OperandBool                         // inline boolean
	OperandBytes                        // RefBytes
	OperandString                       // RefString
	OperandType                         // RefType
	OperandGlobal                       // RefGlobal
	OperandFun                          // RefFun
	OperandField                        // RefField, scoped to a register's type
	OperandConstruct                    // RefEnumConstruct, scoped to a register's type
	OperandOffset                       // relative jump offset
	OperandOffsets                      // varu-counted list of jump offsets
)

// IsList reports whether the operand is a variable-length list.
func (k OperandKind) IsList() bool {
	return k == OperandRegs || k == OperandOffsets
}

// Operand is one slot of an instruction's operand shape.
type Operand struct {
	Name string
	Kind OperandKind
	// Scope names the register operand whose type resolves a Field or
	// Construct operand. "this" means register 0, "args.0" the first list
	// element. Empty for raw indices.
	Scope string
}

// OpcodeFlags classify instructions for control-flow and data-flow analysis.
type OpcodeFlags uint16

const (
	FlagCondJump   OpcodeFlags = 1 << iota // two successors: taken, fallthrough
	FlagJump                               // unconditional jump
	FlagSwitch                             // N case successors plus default
	FlagTerminator                         // no successor (return, throw)
	FlagTrap                               // opens an exception handler region
	FlagCall                               // invokes code
	FlagEffect                             // observable side effect besides the written register
	FlagRead                               // reads memory that an effect may change
)

// MaxOperands is the largest number of fixed (non-list) operands of any opcode.
const MaxOperands = 6

// OpcodeInfo provides metadata about each opcode. The table drives the
// codec, the formatter and the control-flow builder.
type OpcodeInfo struct {
	Name     string
	Operands []Operand
	// Template is the disassembly body. {name} is replaced by the rendered
	// operand, {name.type} by the type of a register operand, {name.0} and
	// {name.rest} by the head and tail of a register list.
	Template string
	Flags    OpcodeFlags
}

var (
	oDst   = Operand{Name: "dst", Kind: OperandDst}
	oSrc   = Operand{Name: "src", Kind: OperandReg}
	oA     = Operand{Name: "a", Kind: OperandReg}
	oB     = Operand{Name: "b", Kind: OperandReg}
	oObj   = Operand{Name: "obj", Kind: OperandReg}
	oIndex = Operand{Name: "index", Kind: OperandReg}
	oArgs  = Operand{Name: "args", Kind: OperandRegs}
	oFun   = Operand{Name: "fun", Kind: OperandFun}
	oOff   = Operand{Name: "offset", Kind: OperandOffset}
)

func reg(name string) Operand { return Operand{Name: name, Kind: OperandReg} }

func ops(o ...Operand) []Operand { return o }

func binop(name, sym string) OpcodeInfo {
	return OpcodeInfo{Name: name, Operands: ops(oDst, oA, oB), Template: "{dst} = {a} " + sym + " {b}"}
}

func cast(name string) OpcodeInfo {
	return OpcodeInfo{Name: name, Operands: ops(oDst, oSrc), Template: "{dst} = cast {src}"}
}

func cmpjump(name, sym string) OpcodeInfo {
	return OpcodeInfo{
		Name:     name,
		Operands: ops(oA, oB, oOff),
		Template: "if {a} " + sym + " {b} jump to {offset}",
		Flags:    FlagCondJump,
	}
}

// opcodeInfoTable maps opcodes to their metadata, indexed by wire tag.
var opcodeInfoTable = [opcodeCount]OpcodeInfo{
	OpMov:    {Name: "Mov", Operands: ops(oDst, oSrc), Template: "{dst} = {src}"},
	OpInt:    {Name: "Int", Operands: ops(oDst, Operand{Name: "ptr", Kind: OperandInt}), Template: "{dst} = {ptr}"},
	OpFloat:  {Name: "Float", Operands: ops(oDst, Operand{Name: "ptr", Kind: OperandFloat}), Template: "{dst} = {ptr}"},
	OpBool:   {Name: "Bool", Operands: ops(oDst, Operand{Name: "value", Kind: OperandBool}), Template: "{dst} = {value}"},
	OpBytes:  {Name: "Bytes", Operands: ops(oDst, Operand{Name: "ptr", Kind: OperandBytes}), Template: "{dst} = bytes {ptr}"},
	OpString: {Name: "String", Operands: ops(oDst, Operand{Name: "ptr", Kind: OperandString}), Template: "{dst} = \"{ptr}\""},
	OpNull:   {Name: "Null", Operands: ops(oDst), Template: "{dst} = null"},

	OpAdd:  binop("Add", "+"),
	OpSub:  binop("Sub", "-"),
	OpMul:  binop("Mul", "*"),
	OpSDiv: binop("SDiv", "/"),
	OpUDiv: binop("UDiv", "/"),
	OpSMod: binop("SMod", "%"),
	OpUMod: binop("UMod", "%"),
	OpShl:  binop("Shl", "<<"),
	OpSShr: binop("SShr", ">>"),
	OpUShr: binop("UShr", ">>>"),
	OpAnd:  binop("And", "&"),
	OpOr:   binop("Or", "|"),
	OpXor:  binop("Xor", "^"),
	OpNeg:  {Name: "Neg", Operands: ops(oDst, oSrc), Template: "{dst} = -{src}"},
	OpNot:  {Name: "Not", Operands: ops(oDst, oSrc), Template: "{dst} = !{src}"},
	OpIncr: {Name: "Incr", Operands: ops(Operand{Name: "dst", Kind: OperandInOut}), Template: "{dst}++"},
	OpDecr: {Name: "Decr", Operands: ops(Operand{Name: "dst", Kind: OperandInOut}), Template: "{dst}--"},

	OpCall0: {Name: "Call0", Operands: ops(oDst, oFun), Template: "{dst} = {fun}()", Flags: FlagCall | FlagEffect},
	OpCall1: {Name: "Call1", Operands: ops(oDst, oFun, reg("arg0")), Template: "{dst} = {fun}({arg0})", Flags: FlagCall | FlagEffect},
	OpCall2: {Name: "Call2", Operands: ops(oDst, oFun, reg("arg0"), reg("arg1")),
		Template: "{dst} = {fun}({arg0}, {arg1})", Flags: FlagCall | FlagEffect},
	OpCall3: {Name: "Call3", Operands: ops(oDst, oFun, reg("arg0"), reg("arg1"), reg("arg2")),
		Template: "{dst} = {fun}({arg0}, {arg1}, {arg2})", Flags: FlagCall | FlagEffect},
	OpCall4: {Name: "Call4", Operands: ops(oDst, oFun, reg("arg0"), reg("arg1"), reg("arg2"), reg("arg3")),
		Template: "{dst} = {fun}({arg0}, {arg1}, {arg2}, {arg3})", Flags: FlagCall | FlagEffect},
	OpCallN: {Name: "CallN", Operands: ops(oDst, oFun, oArgs), Template: "{dst} = {fun}({args})", Flags: FlagCall | FlagEffect},
	OpCallMethod: {Name: "CallMethod", Operands: ops(oDst, Operand{Name: "field", Kind: OperandField, Scope: "args.0"}, oArgs),
		Template: "{dst} = {args.0}.{field}({args.rest})", Flags: FlagCall | FlagEffect},
	OpCallThis: {Name: "CallThis", Operands: ops(oDst, Operand{Name: "field", Kind: OperandField, Scope: "this"}, oArgs),
		Template: "{dst} = reg0.{field}({args})", Flags: FlagCall | FlagEffect},
	OpCallClosure: {Name: "CallClosure", Operands: ops(oDst, reg("fun"), oArgs),
		Template: "{dst} = {fun}({args})", Flags: FlagCall | FlagEffect},
	OpStaticClosure:   {Name: "StaticClosure", Operands: ops(oDst, oFun), Template: "{dst} = {fun}"},
	OpInstanceClosure: {Name: "InstanceClosure", Operands: ops(oDst, oFun, oObj), Template: "{dst} = {obj}.{fun}"},
	OpVirtualClosure:  {Name: "VirtualClosure", Operands: ops(oDst, oObj, reg("field")), Template: "{dst} = {obj}.{field}", Flags: FlagRead},

	OpGetGlobal: {Name: "GetGlobal", Operands: ops(oDst, Operand{Name: "global", Kind: OperandGlobal}),
		Template: "{dst} = {global}", Flags: FlagRead},
	OpSetGlobal: {Name: "SetGlobal", Operands: ops(Operand{Name: "global", Kind: OperandGlobal}, oSrc),
		Template: "{global} = {src}", Flags: FlagEffect},
	OpField: {Name: "Field", Operands: ops(oDst, oObj, Operand{Name: "field", Kind: OperandField, Scope: "obj"}),
		Template: "{dst} = {obj}.{field}", Flags: FlagRead},
	OpSetField: {Name: "SetField", Operands: ops(oObj, Operand{Name: "field", Kind: OperandField, Scope: "obj"}, oSrc),
		Template: "{obj}.{field} = {src}", Flags: FlagEffect},
	OpGetThis: {Name: "GetThis", Operands: ops(oDst, Operand{Name: "field", Kind: OperandField, Scope: "this"}),
		Template: "{dst} = this.{field}", Flags: FlagRead},
	OpSetThis: {Name: "SetThis", Operands: ops(Operand{Name: "field", Kind: OperandField, Scope: "this"}, oSrc),
		Template: "this.{field} = {src}", Flags: FlagEffect},
	OpDynGet: {Name: "DynGet", Operands: ops(oDst, oObj, Operand{Name: "field", Kind: OperandString}),
		Template: "{dst} = {obj}[\"{field}\"]", Flags: FlagRead},
	OpDynSet: {Name: "DynSet", Operands: ops(oObj, Operand{Name: "field", Kind: OperandString}, oSrc),
		Template: "{obj}[\"{field}\"] = {src}", Flags: FlagEffect},

	OpJTrue:    {Name: "JTrue", Operands: ops(reg("cond"), oOff), Template: "if {cond} == true jump to {offset}", Flags: FlagCondJump},
	OpJFalse:   {Name: "JFalse", Operands: ops(reg("cond"), oOff), Template: "if {cond} == false jump to {offset}", Flags: FlagCondJump},
	OpJNull:    {Name: "JNull", Operands: ops(reg("reg"), oOff), Template: "if {reg} == null jump to {offset}", Flags: FlagCondJump},
	OpJNotNull: {Name: "JNotNull", Operands: ops(reg("reg"), oOff), Template: "if {reg} != null jump to {offset}", Flags: FlagCondJump},
	OpJSLt:     cmpjump("JSLt", "<"),
	OpJSGte:    cmpjump("JSGte", ">="),
	OpJSGt:     cmpjump("JSGt", ">"),
	OpJSLte:    cmpjump("JSLte", "<="),
	OpJULt:     cmpjump("JULt", "<"),
	OpJUGte:    cmpjump("JUGte", ">="),
	OpJNotLt:   cmpjump("JNotLt", "!<"),
	OpJNotGte:  cmpjump("JNotGte", "!>="),
	OpJEq:      cmpjump("JEq", "=="),
	OpJNotEq:   cmpjump("JNotEq", "!="),
	OpJAlways:  {Name: "JAlways", Operands: ops(oOff), Template: "jump to {offset}", Flags: FlagJump},

	OpToDyn:      cast("ToDyn"),
	OpToSFloat:   cast("ToSFloat"),
	OpToUFloat:   cast("ToUFloat"),
	OpToInt:      cast("ToInt"),
	OpSafeCast:   cast("SafeCast"),
	OpUnsafeCast: cast("UnsafeCast"),
	OpToVirtual:  cast("ToVirtual"),

	OpLabel:   {Name: "Label", Template: "label"},
	OpRet:     {Name: "Ret", Operands: ops(reg("ret")), Template: "{ret}", Flags: FlagTerminator},
	OpThrow:   {Name: "Throw", Operands: ops(reg("exc")), Template: "throw {exc}", Flags: FlagTerminator | FlagEffect},
	OpRethrow: {Name: "Rethrow", Operands: ops(reg("exc")), Template: "rethrow {exc}", Flags: FlagTerminator | FlagEffect},
	OpSwitch: {Name: "Switch", Operands: ops(reg("reg"), Operand{Name: "offsets", Kind: OperandOffsets}, Operand{Name: "end", Kind: OperandOffset}),
		Template: "switch {reg} [{offsets}] end {end}", Flags: FlagSwitch},
	OpNullCheck: {Name: "NullCheck", Operands: ops(reg("reg")), Template: "if {reg} == null throw exc", Flags: FlagEffect},
	OpTrap:      {Name: "Trap", Operands: ops(Operand{Name: "exc", Kind: OperandDst}, oOff), Template: "try {exc} jump to {offset}", Flags: FlagTrap | FlagEffect},
	OpEndTrap:   {Name: "EndTrap", Operands: ops(reg("exc")), Template: "catch {exc}", Flags: FlagEffect},

	OpGetI8:    {Name: "GetI8", Operands: ops(oDst, reg("bytes"), oIndex), Template: "{dst} = i8 {bytes}[{index}]", Flags: FlagRead},
	OpGetI16:   {Name: "GetI16", Operands: ops(oDst, reg("bytes"), oIndex), Template: "{dst} = i16 {bytes}[{index}]", Flags: FlagRead},
	OpGetMem:   {Name: "GetMem", Operands: ops(oDst, reg("bytes"), oIndex), Template: "{dst} = mem {bytes}[{index}]", Flags: FlagRead},
	OpGetArray: {Name: "GetArray", Operands: ops(oDst, reg("array"), oIndex), Template: "{dst} = {array}[{index}]", Flags: FlagRead},
	OpSetI8:    {Name: "SetI8", Operands: ops(reg("bytes"), oIndex, oSrc), Template: "i8 {bytes}[{index}] = {src}", Flags: FlagEffect},
	OpSetI16:   {Name: "SetI16", Operands: ops(reg("bytes"), oIndex, oSrc), Template: "i16 {bytes}[{index}] = {src}", Flags: FlagEffect},
	OpSetMem:   {Name: "SetMem", Operands: ops(reg("bytes"), oIndex, oSrc), Template: "mem {bytes}[{index}] = {src}", Flags: FlagEffect},
	OpSetArray: {Name: "SetArray", Operands: ops(reg("array"), oIndex, oSrc), Template: "{array}[{index}] = {src}", Flags: FlagEffect},

	OpNew:       {Name: "New", Operands: ops(oDst), Template: "{dst} = new {dst.type}"},
	OpArraySize: {Name: "ArraySize", Operands: ops(oDst, reg("array")), Template: "{dst} = {array}.length", Flags: FlagRead},
	OpType:      {Name: "Type", Operands: ops(oDst, Operand{Name: "ty", Kind: OperandType}), Template: "{dst} = {ty}"},
	OpGetType:   {Name: "GetType", Operands: ops(oDst, oSrc), Template: "{dst} = typeof {src}"},
	OpGetTID:    {Name: "GetTID", Operands: ops(oDst, oSrc), Template: "{dst} = tid {src}"},
	OpRef:       {Name: "Ref", Operands: ops(oDst, oSrc), Template: "{dst} = &{src}"},
	OpUnref:     {Name: "Unref", Operands: ops(oDst, oSrc), Template: "{dst} = *{src}", Flags: FlagRead},
	OpSetref:    {Name: "Setref", Operands: ops(reg("dst"), reg("value")), Template: "*{dst} = {value}", Flags: FlagEffect},

	OpMakeEnum: {Name: "MakeEnum", Operands: ops(oDst, Operand{Name: "construct", Kind: OperandConstruct, Scope: "dst"}, oArgs),
		Template: "{dst} = variant {construct} ({args})"},
	OpEnumAlloc: {Name: "EnumAlloc", Operands: ops(oDst, Operand{Name: "construct", Kind: OperandConstruct, Scope: "dst"}),
		Template: "{dst} = new {construct}"},
	OpEnumIndex: {Name: "EnumIndex", Operands: ops(oDst, reg("value")), Template: "{dst} = variant of {value}", Flags: FlagRead},
	OpEnumField: {Name: "EnumField", Operands: ops(oDst, reg("value"), Operand{Name: "construct", Kind: OperandConstruct, Scope: "value"},
		Operand{Name: "field", Kind: OperandField}), Template: "{dst} = ({value} as {construct}).{field}", Flags: FlagRead},
	OpSetEnumField: {Name: "SetEnumField", Operands: ops(reg("value"), Operand{Name: "field", Kind: OperandField}, oSrc),
		Template: "{value}.{field} = {src}", Flags: FlagEffect},

	OpAssert:    {Name: "Assert", Template: "assert", Flags: FlagEffect},
	OpRefData:   {Name: "RefData", Operands: ops(oDst, oSrc), Template: "{dst} = data {src}"},
	OpRefOffset: {Name: "RefOffset", Operands: ops(oDst, reg("reg"), reg("offset")), Template: "{dst} = {reg} + offset {offset}"},
	OpNop:       {Name: "Nop", Template: "nop"},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if op < opcodeCount {
		return opcodeInfoTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a known wire tag.
func (op Opcode) Valid() bool { return op < opcodeCount }

// Has reports whether the opcode carries all the given flags.
func (op Opcode) Has(f OpcodeFlags) bool {
	return op < opcodeCount && opcodeInfoTable[op].Flags&f == f
}

// IsCondJump returns true for two-way conditional branches.
func (op Opcode) IsCondJump() bool { return op.Has(FlagCondJump) }

// IsJump returns true if this opcode transfers control to an offset.
func (op Opcode) IsJump() bool {
	return op.Has(FlagCondJump) || op.Has(FlagJump) || op.Has(FlagSwitch)
}

// IsReturn returns true if this opcode terminates the function.
func (op Opcode) IsReturn() bool { return op.Has(FlagTerminator) }

// IsCall returns true if this opcode invokes a function or closure.
func (op Opcode) IsCall() bool { return op.Has(FlagCall) }

// AllOpcodes returns a slice of all defined opcodes in wire order.
func AllOpcodes() []Opcode {
	all := make([]Opcode, opcodeCount)
	for i := range all {
		all[i] = Opcode(i)
	}
	return all
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return int(opcodeCount)
}

// LookupOpcode finds an opcode by mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	for i := range opcodeInfoTable {
		if opcodeInfoTable[i].Name == name {
			return Opcode(i), true
		}
	}
	return 0, false
}
