package analysis

import (
	"fmt"

	"github.com/chazu/hlbc/pkg/bytecode"
)

// UsageKind classifies how an element is referenced.
type UsageKind uint8

const (
	// Function usages.
	UsedByCall       UsageKind = iota // direct call at Fun:Pos
	UsedByClosure                     // closure built at Fun:Pos
	UsedByMethodCall                  // dynamic method call at Fun:Pos
	UsedAsProto                       // method Index of object Type
	UsedAsBinding                     // bound to field Index of object Type

	// Type usages.
	UsedAsArgument   // argument Index of function type Type
	UsedAsReturn     // return type of function type Type
	UsedAsField      // type of field Index of Type
	UsedAsEnumParam  // param Index of construct Construct of enum Type
	UsedAsGlobalType // type of global slot Index

	// String usages.
	UsedAsTypeName      // name of Type
	UsedAsConstructName // name of construct Construct of enum Type
	UsedAsFieldName     // name of field Index of Type
	UsedAsProtoName     // name of method Index of Type
	UsedAsCodeString    // String instruction at Fun:Pos
	UsedAsDynField      // DynGet or DynSet at Fun:Pos
	UsedAsNativeName    // name or library of native Index

	// Global usages.
	UsedByGlobalRead  // GetGlobal at Fun:Pos
	UsedByGlobalWrite // SetGlobal at Fun:Pos
	UsedByConstant    // initialized by constant Index
)

var usageKindNames = [...]string{
	UsedByCall:          "call",
	UsedByClosure:       "closure",
	UsedByMethodCall:    "method call",
	UsedAsProto:         "proto",
	UsedAsBinding:       "binding",
	UsedAsArgument:      "argument",
	UsedAsReturn:        "return",
	UsedAsField:         "field",
	UsedAsEnumParam:     "enum param",
	UsedAsGlobalType:    "global type",
	UsedAsTypeName:      "type name",
	UsedAsConstructName: "construct name",
	UsedAsFieldName:     "field name",
	UsedAsProtoName:     "proto name",
	UsedAsCodeString:    "code string",
	UsedAsDynField:      "dyn field",
	UsedAsNativeName:    "native name",
	UsedByGlobalRead:    "global read",
	UsedByGlobalWrite:   "global write",
	UsedByConstant:      "constant",
}

func (k UsageKind) String() string {
	if int(k) < len(usageKindNames) {
		return usageKindNames[k]
	}
	return fmt.Sprintf("usage(%d)", uint8(k))
}

// InCode reports whether the usage is located at an instruction.
func (k UsageKind) InCode() bool {
	switch k {
	case UsedByCall, UsedByClosure, UsedByMethodCall, UsedAsCodeString, UsedAsDynField,
		UsedByGlobalRead, UsedByGlobalWrite:
		return true
	}
	return false
}

// Usage is one reference to an element. Fun and Pos locate code usages;
// Type, Construct and Index locate definition usages.
type Usage struct {
	Kind      UsageKind
	Fun       bytecode.RefFun
	Pos       int
	Type      bytecode.RefType
	Construct bytecode.RefEnumConstruct
	Index     int
}

// Describe renders the usage with resolved names.
func (u Usage) Describe(p *bytecode.Program) string {
	switch {
	case u.Kind.InCode():
		return fmt.Sprintf("%s in %s at %d", u.Kind, p.FunctionRef(u.Fun), u.Pos)
	case u.Kind == UsedAsConstructName || u.Kind == UsedAsEnumParam:
		return fmt.Sprintf("%s of %s.%s", u.Kind, p.TypeName(u.Type), p.ConstructName(u.Type, u.Construct))
	case u.Kind == UsedAsGlobalType || u.Kind == UsedByConstant:
		return fmt.Sprintf("%s %d", u.Kind, u.Index)
	case u.Kind == UsedAsNativeName:
		return fmt.Sprintf("%s of %s", u.Kind, p.FunctionRef(u.Fun))
	case u.Kind == UsedAsTypeName || u.Kind == UsedAsReturn:
		return fmt.Sprintf("%s of %s", u.Kind, p.TypeName(u.Type))
	}
	return fmt.Sprintf("%s %d of %s", u.Kind, u.Index, p.TypeName(u.Type))
}

// Report inverts the reference graph of a program: for every string, type,
// global and function index it lists the places that reference it. Build
// it once with NewReport and query it many times.
type Report struct {
	strings [][]Usage
	types   [][]Usage
	globals [][]Usage
	funs    [][]Usage
}

// NewReport scans every type definition, native, constant and instruction
// of p.
func NewReport(p *bytecode.Program) *Report {
	r := &Report{
		strings: make([][]Usage, len(p.Strings)),
		types:   make([][]Usage, len(p.Types)),
		globals: make([][]Usage, len(p.Globals)),
		funs:    make([][]Usage, p.MaxFIndex()),
	}
	p.EachType(func(t bytecode.RefType, ty *bytecode.Type) bool {
		r.typeDef(t, ty)
		return true
	})
	for i, g := range p.Globals {
		r.addType(g, Usage{Kind: UsedAsGlobalType, Index: i})
	}
	for i := range p.Natives {
		n := &p.Natives[i]
		r.addString(n.Name, Usage{Kind: UsedAsNativeName, Fun: n.FIndex, Index: i})
		r.addString(n.Lib, Usage{Kind: UsedAsNativeName, Fun: n.FIndex, Index: i})
	}
	for i := range p.Constants {
		r.addGlobal(p.Constants[i].Global, Usage{Kind: UsedByConstant, Index: i})
	}
	p.EachFunction(func(fn *bytecode.Function) bool {
		r.code(p, fn)
		return true
	})
	return r
}

func add(pool [][]Usage, idx int, u Usage) {
	if idx >= 0 && idx < len(pool) {
		pool[idx] = append(pool[idx], u)
	}
}

func (r *Report) addString(s bytecode.RefString, u Usage) { add(r.strings, int(s), u) }
func (r *Report) addType(t bytecode.RefType, u Usage)     { add(r.types, int(t), u) }
func (r *Report) addGlobal(g bytecode.RefGlobal, u Usage) { add(r.globals, int(g), u) }
func (r *Report) addFun(f bytecode.RefFun, u Usage)       { add(r.funs, int(f), u) }

func (r *Report) typeDef(t bytecode.RefType, ty *bytecode.Type) {
	switch ty.Kind {
	case bytecode.KindFun, bytecode.KindMethod:
		if ty.Fun == nil {
			return
		}
		for i, a := range ty.Fun.Args {
			r.addType(a, Usage{Kind: UsedAsArgument, Type: t, Index: i})
		}
		r.addType(ty.Fun.Ret, Usage{Kind: UsedAsReturn, Type: t})
	case bytecode.KindObj, bytecode.KindStruct:
		obj := ty.Obj
		if obj == nil {
			return
		}
		r.addString(obj.Name, Usage{Kind: UsedAsTypeName, Type: t})
		base := len(obj.Fields) - len(obj.OwnFields)
		if base < 0 {
			base = 0
		}
		for i, f := range obj.OwnFields {
			r.addString(f.Name, Usage{Kind: UsedAsFieldName, Type: t, Index: base + i})
			r.addType(f.Type, Usage{Kind: UsedAsField, Type: t, Index: base + i})
		}
		for i, proto := range obj.Protos {
			r.addString(proto.Name, Usage{Kind: UsedAsProtoName, Type: t, Index: i})
			r.addFun(proto.FIndex, Usage{Kind: UsedAsProto, Type: t, Index: i})
		}
		for _, b := range obj.Bindings {
			r.addFun(b.Fun, Usage{Kind: UsedAsBinding, Type: t, Index: int(b.Field)})
		}
	case bytecode.KindVirtual:
		for i, f := range ty.Fields {
			r.addString(f.Name, Usage{Kind: UsedAsFieldName, Type: t, Index: i})
			r.addType(f.Type, Usage{Kind: UsedAsField, Type: t, Index: i})
		}
	case bytecode.KindAbstract:
		r.addString(ty.Name, Usage{Kind: UsedAsTypeName, Type: t})
	case bytecode.KindEnum:
		e := ty.Enum
		if e == nil {
			return
		}
		r.addString(e.Name, Usage{Kind: UsedAsTypeName, Type: t})
		for i, c := range e.Constructs {
			ctor := bytecode.RefEnumConstruct(i)
			r.addString(c.Name, Usage{Kind: UsedAsConstructName, Type: t, Construct: ctor})
			for j, param := range c.Params {
				r.addType(param, Usage{Kind: UsedAsEnumParam, Type: t, Construct: ctor, Index: j})
			}
		}
	}
}

func (r *Report) code(p *bytecode.Program, fn *bytecode.Function) {
	for pos := range fn.Ops {
		ins := &fn.Ops[pos]
		at := func(kind UsageKind) Usage { return Usage{Kind: kind, Fun: fn.FIndex, Pos: pos} }
		switch ins.Op {
		case bytecode.OpCall0, bytecode.OpCall1, bytecode.OpCall2, bytecode.OpCall3, bytecode.OpCall4, bytecode.OpCallN:
			r.addFun(bytecode.RefFun(ins.Args[1]), at(UsedByCall))
		case bytecode.OpStaticClosure, bytecode.OpInstanceClosure:
			r.addFun(bytecode.RefFun(ins.Args[1]), at(UsedByClosure))
		case bytecode.OpCallMethod, bytecode.OpCallThis:
			if f, ok := methodTarget(p, fn, ins); ok {
				r.addFun(f, at(UsedByMethodCall))
			}
		case bytecode.OpString:
			r.addString(bytecode.RefString(ins.Args[1]), at(UsedAsCodeString))
		case bytecode.OpDynGet:
			r.addString(bytecode.RefString(ins.Args[2]), at(UsedAsDynField))
		case bytecode.OpDynSet:
			r.addString(bytecode.RefString(ins.Args[1]), at(UsedAsDynField))
		case bytecode.OpGetGlobal:
			r.addGlobal(bytecode.RefGlobal(ins.Args[1]), at(UsedByGlobalRead))
		case bytecode.OpSetGlobal:
			r.addGlobal(bytecode.RefGlobal(ins.Args[0]), at(UsedByGlobalWrite))
		}
	}
}

func get(pool [][]Usage, idx int) []Usage {
	if idx < 0 || idx >= len(pool) {
		return nil
	}
	return pool[idx]
}

// String returns the usages of string s.
func (r *Report) String(s bytecode.RefString) []Usage { return get(r.strings, int(s)) }

// Type returns the usages of type t.
func (r *Report) Type(t bytecode.RefType) []Usage { return get(r.types, int(t)) }

// Global returns the usages of global slot g.
func (r *Report) Global(g bytecode.RefGlobal) []Usage { return get(r.globals, int(g)) }

// Function returns the usages of function index f.
func (r *Report) Function(f bytecode.RefFun) []Usage { return get(r.funs, int(f)) }

// UsageOfString scans p for the usages of a single string.
func UsageOfString(p *bytecode.Program, s bytecode.RefString) []Usage {
	return NewReport(p).String(s)
}

// UsageOfType scans p for the usages of a single type.
func UsageOfType(p *bytecode.Program, t bytecode.RefType) []Usage {
	return NewReport(p).Type(t)
}

// UsageOfGlobal scans p for the usages of a single global slot.
func UsageOfGlobal(p *bytecode.Program, g bytecode.RefGlobal) []Usage {
	return NewReport(p).Global(g)
}

// UsageOfFunction scans p for the usages of a single function index.
func UsageOfFunction(p *bytecode.Program, f bytecode.RefFun) []Usage {
	return NewReport(p).Function(f)
}
