package bytecode

import "fmt"

// TypeKind is the wire tag of a type definition.
type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindUI8
	KindUI16
	KindI32
	KindI64
	KindF32
	KindF64
	KindBool
	KindBytes
	KindDyn
	KindFun
	KindObj
	KindArray
	KindType
	KindRef
	KindVirtual
	KindDynObj
	KindAbstract
	KindEnum
	KindNull
	KindMethod
	KindStruct
	KindPacked

	kindCount
)

var typeKindNames = [kindCount]string{
	"void", "ui8", "ui16", "i32", "i64", "f32", "f64", "bool", "bytes", "dynamic",
	"fun", "obj", "array", "type", "ref", "virtual", "dynobj", "abstract", "enum",
	"null", "method", "struct", "packed",
}

func (k TypeKind) String() string {
	if k < kindCount {
		return typeKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known wire tag.
func (k TypeKind) Valid() bool { return k < kindCount }

// Type is one entry of the type pool. Kind selects which payload is set:
//
//	Fun, Method     -> Fun
//	Obj, Struct     -> Obj
//	Ref, Null, Packed -> Inner
//	Virtual         -> Fields
//	Abstract        -> Name
//	Enum            -> Enum
type Type struct {
	Kind   TypeKind
	Fun    *TypeFun
	Obj    *TypeObj
	Enum   *TypeEnum
	Inner  RefType
	Fields []ObjField
	Name   RefString
}

// TypeFun is a function signature.
type TypeFun struct {
	Args []RefType
	Ret  RefType
}

// ObjField is a named, typed field.
type ObjField struct {
	Name RefString
	Type RefType
}

// ObjProto is a method slot of an object type.
type ObjProto struct {
	Name   RefString
	FIndex RefFun
	PIndex int32
}

// Binding statically binds a field to a function.
type Binding struct {
	Field RefField
	Fun   RefFun
}

// TypeObj describes an object or struct. Super is NoType for root classes.
// Bindings keep their wire order so encoding round-trips.
type TypeObj struct {
	Name      RefString
	Super     RefType
	Global    RefGlobal
	OwnFields []ObjField
	Protos    []ObjProto
	Bindings  []Binding

	// Fields is OwnFields prefixed with every ancestor's fields, computed by Link.
	Fields []ObjField
}

// EnumConstruct is one constructor of an enum type.
type EnumConstruct struct {
	Name   RefString
	Params []RefType
}

// TypeEnum describes an enum.
type TypeEnum struct {
	Name       RefString
	Global     RefGlobal
	Constructs []EnumConstruct
}

// IsWrapper reports whether the type wraps a single inner type.
func (t *Type) IsWrapper() bool {
	return t.Kind == KindRef || t.Kind == KindNull || t.Kind == KindPacked
}

// Signature returns the function signature of a Fun or Method type.
func (t *Type) Signature() (*TypeFun, bool) {
	if (t.Kind == KindFun || t.Kind == KindMethod) && t.Fun != nil {
		return t.Fun, true
	}
	return nil, false
}

// Object returns the object payload of an Obj or Struct type.
func (t *Type) Object() (*TypeObj, bool) {
	if (t.Kind == KindObj || t.Kind == KindStruct) && t.Obj != nil {
		return t.Obj, true
	}
	return nil, false
}

// FieldList returns the addressable fields of an object or virtual type.
func (t *Type) FieldList() []ObjField {
	if obj, ok := t.Object(); ok {
		if obj.Fields != nil {
			return obj.Fields
		}
		return obj.OwnFields
	}
	if t.Kind == KindVirtual {
		return t.Fields
	}
	return nil
}
