package bytecode

import "fmt"

// Typed indices. Each reference type is scoped to exactly one pool of a
// Program and is meaningless without it.

// RefInt indexes Program.Ints.
type RefInt int

// RefFloat indexes Program.Floats.
type RefFloat int

// RefString indexes Program.Strings.
type RefString int

// RefBytes indexes Program.BytesPos.
type RefBytes int

// RefType indexes Program.Types.
type RefType int

// RefGlobal indexes Program.Globals.
type RefGlobal int

// RefFun is a function index (findex). It is shared between user functions
// and natives and resolved through Program.Fn.
type RefFun int

// RefField indexes the flattened field list of an object, or the params of
// an enum construct.
type RefField int

// RefEnumConstruct indexes the constructs of an enum type.
type RefEnumConstruct int

// Reg is a register local to one function.
type Reg int

// Well-known type indices emitted by the Haxe compiler in every program.
const (
	TypeVoid RefType = 0
	TypeI32  RefType = 3
	TypeF64  RefType = 6
	TypeBool RefType = 7
)

// NoType marks an absent type reference (no super class, no parent).
const NoType RefType = -1

// NoString marks an absent string reference (anonymous function).
const NoString RefString = -1

func (r Reg) String() string {
	return fmt.Sprintf("reg%d", int(r))
}
