// Package hltest builds small HashLink programs in memory for tests.
package hltest

import (
	"testing"

	"github.com/chazu/hlbc/pkg/bytecode"
)

// Base type indices registered by New, matching the layout the Haxe
// compiler emits.
const (
	Void  = bytecode.TypeVoid
	UI8   = bytecode.RefType(1)
	UI16  = bytecode.RefType(2)
	I32   = bytecode.TypeI32
	I64   = bytecode.RefType(4)
	F32   = bytecode.RefType(5)
	F64   = bytecode.TypeF64
	Bool  = bytecode.TypeBool
	Bytes = bytecode.RefType(8)
	Dyn   = bytecode.RefType(9)
)

// Builder accumulates pools and assigns function indices in creation order.
type Builder struct {
	P *bytecode.Program

	strings map[string]bytecode.RefString
	nextFun bytecode.RefFun
}

// New returns a builder for a version 5 program with the base types
// registered.
func New() *Builder {
	b := &Builder{
		P:       &bytecode.Program{Version: 5, Entrypoint: 0},
		strings: make(map[string]bytecode.RefString),
	}
	for _, k := range []bytecode.TypeKind{
		bytecode.KindVoid, bytecode.KindUI8, bytecode.KindUI16, bytecode.KindI32, bytecode.KindI64,
		bytecode.KindF32, bytecode.KindF64, bytecode.KindBool, bytecode.KindBytes, bytecode.KindDyn,
	} {
		b.Type(bytecode.Type{Kind: k})
	}
	return b
}

// String interns s.
func (b *Builder) String(s string) bytecode.RefString {
	if r, ok := b.strings[s]; ok {
		return r
	}
	r := bytecode.RefString(len(b.P.Strings))
	b.P.Strings = append(b.P.Strings, s)
	b.strings[s] = r
	return r
}

// Int appends an integer constant.
func (b *Builder) Int(v int32) bytecode.RefInt {
	b.P.Ints = append(b.P.Ints, v)
	return bytecode.RefInt(len(b.P.Ints) - 1)
}

// Float appends a float constant.
func (b *Builder) Float(v float64) bytecode.RefFloat {
	b.P.Floats = append(b.P.Floats, v)
	return bytecode.RefFloat(len(b.P.Floats) - 1)
}

// Type appends a type definition. Inner and Name default to absent.
func (b *Builder) Type(t bytecode.Type) bytecode.RefType {
	if t.Kind != bytecode.KindRef && t.Kind != bytecode.KindNull && t.Kind != bytecode.KindPacked {
		t.Inner = bytecode.NoType
	}
	if t.Kind != bytecode.KindAbstract {
		t.Name = bytecode.NoString
	}
	b.P.Types = append(b.P.Types, t)
	return bytecode.RefType(len(b.P.Types) - 1)
}

// Fun appends a function type.
func (b *Builder) Fun(ret bytecode.RefType, args ...bytecode.RefType) bytecode.RefType {
	if args == nil {
		args = []bytecode.RefType{}
	}
	return b.Type(bytecode.Type{Kind: bytecode.KindFun, Fun: &bytecode.TypeFun{Args: args, Ret: ret}})
}

// Wrap appends a ref, null or packed type around inner.
func (b *Builder) Wrap(kind bytecode.TypeKind, inner bytecode.RefType) bytecode.RefType {
	return b.Type(bytecode.Type{Kind: kind, Inner: inner})
}

// Field describes an object field for Obj.
type Field struct {
	Name string
	Type bytecode.RefType
}

// Obj appends an object type. super may be NoType.
func (b *Builder) Obj(name string, super bytecode.RefType, fields ...Field) bytecode.RefType {
	obj := &bytecode.TypeObj{
		Name:      b.String(name),
		Super:     super,
		OwnFields: make([]bytecode.ObjField, len(fields)),
		Protos:    []bytecode.ObjProto{},
		Bindings:  []bytecode.Binding{},
	}
	for i, f := range fields {
		obj.OwnFields[i] = bytecode.ObjField{Name: b.String(f.Name), Type: f.Type}
	}
	return b.Type(bytecode.Type{Kind: bytecode.KindObj, Obj: obj})
}

// Construct describes an enum constructor for Enum.
type Construct struct {
	Name   string
	Params []bytecode.RefType
}

// Enum appends an enum type.
func (b *Builder) Enum(name string, constructs ...Construct) bytecode.RefType {
	e := &bytecode.TypeEnum{Name: b.String(name), Constructs: make([]bytecode.EnumConstruct, len(constructs))}
	for i, c := range constructs {
		params := c.Params
		if params == nil {
			params = []bytecode.RefType{}
		}
		e.Constructs[i] = bytecode.EnumConstruct{Name: b.String(c.Name), Params: params}
	}
	return b.Type(bytecode.Type{Kind: bytecode.KindEnum, Enum: e})
}

// Global appends a global slot of type t.
func (b *Builder) Global(t bytecode.RefType) bytecode.RefGlobal {
	b.P.Globals = append(b.P.Globals, t)
	return bytecode.RefGlobal(len(b.P.Globals) - 1)
}

// Native declares a native function and returns its findex.
func (b *Builder) Native(lib, name string, t bytecode.RefType) bytecode.RefFun {
	f := b.nextFun
	b.nextFun++
	b.P.Natives = append(b.P.Natives, bytecode.Native{Lib: b.String(lib), Name: b.String(name), Type: t, FIndex: f})
	return f
}

// Function appends a function body and returns its findex.
func (b *Builder) Function(t bytecode.RefType, regs []bytecode.RefType, ops ...bytecode.Instr) bytecode.RefFun {
	f := b.nextFun
	b.nextFun++
	if regs == nil {
		regs = []bytecode.RefType{}
	}
	if ops == nil {
		ops = []bytecode.Instr{}
	}
	b.P.Functions = append(b.P.Functions, bytecode.Function{
		Type: t, FIndex: f, Regs: regs, Ops: ops, Name: bytecode.NoString, Parent: bytecode.NoType,
	})
	return f
}

// Body returns the function with findex f for further editing.
func (b *Builder) Body(f bytecode.RefFun) *bytecode.Function {
	for i := range b.P.Functions {
		if b.P.Functions[i].FIndex == f {
			return &b.P.Functions[i]
		}
	}
	return nil
}

// Proto registers f as method name of object type obj.
func (b *Builder) Proto(obj bytecode.RefType, name string, f bytecode.RefFun) {
	o := b.P.Types[obj].Obj
	o.Protos = append(o.Protos, bytecode.ObjProto{Name: b.String(name), FIndex: f, PIndex: -1})
}

// Bind statically binds field of obj to f.
func (b *Builder) Bind(obj bytecode.RefType, field bytecode.RefField, f bytecode.RefFun) {
	o := b.P.Types[obj].Obj
	o.Bindings = append(o.Bindings, bytecode.Binding{Field: field, Fun: f})
}

// Entry sets the entrypoint.
func (b *Builder) Entry(f bytecode.RefFun) { b.P.Entrypoint = f }

// Build links the program and fails the test on error.
func (b *Builder) Build(tb testing.TB) *bytecode.Program {
	tb.Helper()
	if err := b.P.Link(); err != nil {
		tb.Fatalf("link: %v", err)
	}
	return b.P
}

// Op builds an instruction from fixed operands.
func Op(op bytecode.Opcode, args ...int32) bytecode.Instr {
	return bytecode.NewInstr(op, args)
}

// OpList builds an instruction with fixed operands and a list operand.
func OpList(op bytecode.Opcode, args []int32, list ...int32) bytecode.Instr {
	return bytecode.NewInstr(op, args, list...)
}
