package bytecode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingRef is the kind of every resolution failure.
var ErrMissingRef = errors.New("missing reference")

// MissingRefError reports an index outside its pool.
type MissingRefError struct {
	Pool  string
	Index int
	Len   int
}

func (e *MissingRefError) Error() string {
	return fmt.Sprintf("%s@%d out of range (pool has %d entries)", e.Pool, e.Index, e.Len)
}

func (e *MissingRefError) Unwrap() error { return ErrMissingRef }

// lookup is the single bounds check behind every resolver method.
func lookup[T any](pool []T, idx int, name string) (*T, error) {
	if idx < 0 || idx >= len(pool) {
		return nil, &MissingRefError{Pool: name, Index: idx, Len: len(pool)}
	}
	return &pool[idx], nil
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// GetInt resolves an integer constant.
func (p *Program) GetInt(r RefInt) (int32, error) {
	v, err := lookup(p.Ints, int(r), "int")
	if err != nil {
		return 0, err
	}
	return *v, nil
}

// GetFloat resolves a float constant.
func (p *Program) GetFloat(r RefFloat) (float64, error) {
	v, err := lookup(p.Floats, int(r), "float")
	if err != nil {
		return 0, err
	}
	return *v, nil
}

// GetString resolves a string constant.
func (p *Program) GetString(r RefString) (string, error) {
	v, err := lookup(p.Strings, int(r), "str")
	if err != nil {
		return "", err
	}
	return *v, nil
}

// GetBytes resolves an embedded byte constant. The returned slice extends to
// the start of the next entry, or to the end of the blob for the last one.
func (p *Program) GetBytes(r RefBytes) ([]byte, error) {
	start, err := lookup(p.BytesPos, int(r), "bytes")
	if err != nil {
		return nil, err
	}
	end := len(p.Bytes)
	if int(r)+1 < len(p.BytesPos) {
		end = p.BytesPos[int(r)+1]
	}
	if *start < 0 || *start > end || end > len(p.Bytes) {
		return nil, &MissingRefError{Pool: "bytes", Index: int(r), Len: len(p.BytesPos)}
	}
	return p.Bytes[*start:end], nil
}

// GetType resolves a type.
func (p *Program) GetType(r RefType) (*Type, error) {
	return lookup(p.Types, int(r), "type")
}

// GetGlobal resolves the type of a global slot.
func (p *Program) GetGlobal(r RefGlobal) (RefType, error) {
	v, err := lookup(p.Globals, int(r), "global")
	if err != nil {
		return NoType, err
	}
	return *v, nil
}

// GetDebugFile resolves a debug file name.
func (p *Program) GetDebugFile(i int) (string, error) {
	v, err := lookup(p.DebugFiles, i, "file")
	if err != nil {
		return "", err
	}
	return *v, nil
}

// Fn resolves a function index to a user function or a native.
func (p *Program) Fn(r RefFun) (FunPtr, error) {
	v, err := lookup(p.findexes, int(r), "fn")
	if err != nil {
		return FunPtr{}, err
	}
	if int(r) >= len(p.hasFun) || !p.hasFun[r] {
		return FunPtr{}, &MissingRefError{Pool: "fn", Index: int(r), Len: len(p.findexes)}
	}
	return *v, nil
}

// GetFunction resolves a function index that must name a user function.
func (p *Program) GetFunction(r RefFun) (*Function, error) {
	ptr, err := p.Fn(r)
	if err != nil {
		return nil, err
	}
	if ptr.Native {
		return nil, fmt.Errorf("%w: fn@%d is a native", ErrMissingRef, int(r))
	}
	return &p.Functions[ptr.Index], nil
}

// GetNative resolves a function index that must name a native.
func (p *Program) GetNative(r RefFun) (*Native, error) {
	ptr, err := p.Fn(r)
	if err != nil {
		return nil, err
	}
	if !ptr.Native {
		return nil, fmt.Errorf("%w: fn@%d is not a native", ErrMissingRef, int(r))
	}
	return &p.Natives[ptr.Index], nil
}

// Field resolves field f of an object or virtual type.
func (p *Program) Field(t RefType, f RefField) (*ObjField, error) {
	ty, err := p.GetType(t)
	if err != nil {
		return nil, err
	}
	return lookup(ty.FieldList(), int(f), "field")
}

// Construct resolves construct c of an enum type.
func (p *Program) Construct(t RefType, c RefEnumConstruct) (*EnumConstruct, error) {
	ty, err := p.GetType(t)
	if err != nil {
		return nil, err
	}
	if ty.Kind != KindEnum || ty.Enum == nil {
		return nil, &MissingRefError{Pool: "construct", Index: int(c), Len: 0}
	}
	return lookup(ty.Enum.Constructs, int(c), "construct")
}

// Method resolves the virtual method in vtable slot of an object type,
// searching the super chain. Protos without a slot are matched by position
// within the declaring type.
func (p *Program) Method(t RefType, slot int) (*ObjProto, error) {
	for depth := 0; t != NoType && depth < len(p.Types); depth++ {
		ty, err := p.GetType(t)
		if err != nil {
			return nil, err
		}
		obj, ok := ty.Object()
		if !ok {
			break
		}
		for i := range obj.Protos {
			if int(obj.Protos[i].PIndex) == slot {
				return &obj.Protos[i], nil
			}
		}
		if slot >= 0 && slot < len(obj.Protos) && obj.Protos[slot].PIndex < 0 {
			return &obj.Protos[slot], nil
		}
		t = obj.Super
	}
	return nil, &MissingRefError{Pool: "method", Index: slot}
}

func (p *Program) lookupString(r RefString) (string, bool) {
	s, err := p.GetString(r)
	return s, err == nil
}

// ---------------------------------------------------------------------------
// Names with placeholder fallback
// ---------------------------------------------------------------------------

// StringName returns the string, or "str@N" when the index is out of range.
func (p *Program) StringName(r RefString) string {
	if s, ok := p.lookupString(r); ok {
		return s
	}
	return fmt.Sprintf("str@%d", int(r))
}

// IntValue returns the integer constant as text, or "int@N".
func (p *Program) IntValue(r RefInt) string {
	v, err := p.GetInt(r)
	if err != nil {
		return fmt.Sprintf("int@%d", int(r))
	}
	return strconv.FormatInt(int64(v), 10)
}

// FloatValue returns the float constant as text, or "float@N".
func (p *Program) FloatValue(r RefFloat) string {
	v, err := p.GetFloat(r)
	if err != nil {
		return fmt.Sprintf("float@%d", int(r))
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// GlobalName returns "global@N".
func (p *Program) GlobalName(r RefGlobal) string {
	return fmt.Sprintf("global@%d", int(r))
}

// FieldName returns the name of field f of type t, or "field@N".
func (p *Program) FieldName(t RefType, f RefField) string {
	if fld, err := p.Field(t, f); err == nil {
		if s, ok := p.lookupString(fld.Name); ok {
			return s
		}
	}
	return fmt.Sprintf("field@%d", int(f))
}

// ConstructName returns the name of construct c of enum t, or "construct@N".
func (p *Program) ConstructName(t RefType, c RefEnumConstruct) string {
	if ctor, err := p.Construct(t, c); err == nil {
		if s, ok := p.lookupString(ctor.Name); ok {
			return s
		}
	}
	return fmt.Sprintf("construct@%d", int(c))
}

// FunctionName returns the bare name of a function: its linked name, the
// native's name, "anonymous" for unnamed functions, or "fn@N" when the index
// cannot be resolved.
func (p *Program) FunctionName(r RefFun) string {
	ptr, err := p.Fn(r)
	if err != nil {
		return fmt.Sprintf("fn@%d", int(r))
	}
	if ptr.Native {
		return p.StringName(p.Natives[ptr.Index].Name)
	}
	f := &p.Functions[ptr.Index]
	if f.HasName() {
		return p.StringName(f.Name)
	}
	return "anonymous"
}

// FunctionRef returns the display reference of a function: "name@N",
// "lib.name@N" for natives, or "fn@N" when unresolved.
func (p *Program) FunctionRef(r RefFun) string {
	ptr, err := p.Fn(r)
	if err != nil {
		return fmt.Sprintf("fn@%d", int(r))
	}
	if ptr.Native {
		n := &p.Natives[ptr.Index]
		return fmt.Sprintf("%s.%s@%d", p.StringName(n.Lib), p.StringName(n.Name), int(r))
	}
	return fmt.Sprintf("%s@%d", p.FunctionName(r), int(r))
}

// QualifiedName returns "Parent.name" for methods, otherwise FunctionName.
func (p *Program) QualifiedName(r RefFun) string {
	f, err := p.GetFunction(r)
	if err != nil || f.Parent == NoType {
		return p.FunctionName(r)
	}
	return p.TypeName(f.Parent) + "." + p.FunctionName(r)
}

// TypeName returns a short display name for a type, or "type@N".
func (p *Program) TypeName(r RefType) string {
	return p.typeName(r, 0)
}

const maxTypeDepth = 8

func (p *Program) typeName(r RefType, depth int) string {
	t, err := p.GetType(r)
	if err != nil || depth > maxTypeDepth {
		return fmt.Sprintf("type@%d", int(r))
	}
	inner := func(x RefType) string { return p.typeName(x, depth+1) }
	switch t.Kind {
	case KindFun, KindMethod:
		if t.Fun == nil {
			break
		}
		args := make([]string, len(t.Fun.Args))
		for i, a := range t.Fun.Args {
			args[i] = inner(a)
		}
		prefix := "fn"
		if t.Kind == KindMethod {
			prefix = "method"
		}
		return fmt.Sprintf("%s(%s) -> (%s)", prefix, strings.Join(args, ", "), inner(t.Fun.Ret))
	case KindObj, KindStruct:
		if t.Obj != nil {
			return p.StringName(t.Obj.Name)
		}
	case KindEnum:
		if t.Enum != nil {
			return p.StringName(t.Enum.Name)
		}
	case KindAbstract:
		return p.StringName(t.Name)
	case KindRef, KindNull, KindPacked:
		return fmt.Sprintf("%s<%s>", t.Kind, inner(t.Inner))
	case KindVirtual:
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = p.StringName(f.Name) + ": " + inner(f.Type)
		}
		return "virtual<" + strings.Join(fields, ", ") + ">"
	}
	return t.Kind.String()
}
