package decompiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/hlbc/pkg/bytecode"
)

// ErrNotClass is returned when a class is requested for a type that is not
// an object.
var ErrNotClass = errors.New("not a class type")

// ClassField is one declared field.
type ClassField struct {
	Name   string
	Type   string
	Static bool
}

// Method is one decompiled method or static function.
type Method struct {
	Static bool
	Body   *FunctionBody
}

// Class is the source form of an object type: its own fields, the static
// fields of its class object and every function bound to either.
type Class struct {
	Type    bytecode.RefType
	Name    string
	Parent  string
	Fields  []ClassField
	Methods []Method
}

// DecompileClass decompiles the object type t with DefaultOptions.
func DecompileClass(p *bytecode.Program, t bytecode.RefType) (*Class, error) {
	return New(p, DefaultOptions()).Class(t)
}

// Class decompiles the object type t.
func (d *Decompiler) Class(t bytecode.RefType) (*Class, error) {
	p := d.prog
	ty, err := p.GetType(t)
	if err != nil {
		return nil, err
	}
	obj, ok := ty.Object()
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.TypeName(t), ErrNotClass)
	}
	c := &Class{Type: t, Name: className(p.TypeName(t))}
	if obj.Super != bytecode.NoType && obj.Super >= 0 {
		c.Parent = className(p.TypeName(obj.Super))
	}

	seen := make(map[bytecode.RefFun]bool)
	c.addFields(p, obj, false)
	d.addBound(c, obj, false, seen)
	for _, proto := range obj.Protos {
		d.addMethod(c, proto.FIndex, false, seen)
	}

	if g, ok := bytecode.GlobalSlot(obj.Global); ok {
		if gt, err := p.GetGlobal(g); err == nil {
			if sty, err := p.GetType(gt); err == nil {
				if sobj, ok := sty.Object(); ok {
					c.addFields(p, sobj, true)
					d.addBound(c, sobj, true, seen)
				}
			}
		}
	}
	return c, nil
}

// addFields lists the fields obj declares itself, skipping the ones bound to
// functions.
func (c *Class) addFields(p *bytecode.Program, obj *bytecode.TypeObj, static bool) {
	base := len(obj.Fields) - len(obj.OwnFields)
	if base < 0 {
		base = 0
	}
	bound := make(map[int]bool)
	for _, b := range obj.Bindings {
		bound[int(b.Field)] = true
	}
	for i, f := range obj.OwnFields {
		if bound[base+i] {
			continue
		}
		name, err := p.GetString(f.Name)
		if err != nil {
			name = p.StringName(f.Name)
		}
		c.Fields = append(c.Fields, ClassField{Name: name, Type: HaxeType(p, f.Type), Static: static})
	}
}

func (d *Decompiler) addBound(c *Class, obj *bytecode.TypeObj, static bool, seen map[bytecode.RefFun]bool) {
	for _, b := range obj.Bindings {
		d.addMethod(c, b.Fun, static, seen)
	}
}

func (d *Decompiler) addMethod(c *Class, f bytecode.RefFun, static bool, seen map[bytecode.RefFun]bool) {
	if seen[f] {
		return
	}
	seen[f] = true
	fn, err := d.prog.GetFunction(f)
	if err != nil {
		return
	}
	c.Methods = append(c.Methods, Method{Static: static, Body: d.Function(fn)})
}

// PrintClass renders c as a class declaration.
func (pr Printer) PrintClass(c *Class) string {
	w := pr.writer()
	head := "class " + c.Name
	if c.Parent != "" {
		head += " extends " + c.Parent
	}
	w.line("%s {", head)
	w.depth++
	for _, f := range c.Fields {
		w.line("%svar %s: %s;", staticPrefix(f.Static), f.Name, f.Type)
	}
	for i, m := range c.Methods {
		if i > 0 || len(c.Fields) > 0 {
			w.WriteByte('\n')
		}
		w.function(staticPrefix(m.Static), m.Body)
	}
	w.depth--
	w.line("}")
	return strings.TrimRight(w.String(), "\n") + "\n"
}

func staticPrefix(static bool) string {
	if static {
		return "static "
	}
	return ""
}
