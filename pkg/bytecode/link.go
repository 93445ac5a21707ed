package bytecode

import "fmt"

// Link rebuilds the derived tables of a Program: the function index, the
// flattened object fields, function names and parents, and the name table.
// Decode calls it; programs assembled in memory must call it before use.
// Link errors are DecodeErrors with Offset -1.
func (p *Program) Link() error {
	return p.link()
}

func linkError(what, expected, found string) error {
	return &DecodeError{Kind: ErrInvalidReference, Offset: -1, What: what, Expected: expected, Found: found}
}

func (p *Program) link() error {
	total := len(p.Functions) + len(p.Natives)
	p.findexes = make([]FunPtr, total)
	p.hasFun = make([]bool, total)

	bind := func(r RefFun, ptr FunPtr, what string) error {
		if r < 0 || int(r) >= total {
			return linkError(what, fmt.Sprintf("findex < %d", total), fmt.Sprintf("%d", r))
		}
		if p.hasFun[r] {
			return linkError(what, "unique findex", fmt.Sprintf("duplicate %d", r))
		}
		p.findexes[r] = ptr
		p.hasFun[r] = true
		return nil
	}
	for i := range p.Functions {
		f := &p.Functions[i]
		if err := bind(f.FIndex, FunPtr{Fun: f.FIndex, Index: i}, "function findex"); err != nil {
			return err
		}
		f.Name, f.Parent = NoString, NoType
	}
	for i := range p.Natives {
		n := &p.Natives[i]
		if err := bind(n.FIndex, FunPtr{Fun: n.FIndex, Native: true, Index: i}, "native findex"); err != nil {
			return err
		}
	}

	if err := p.flattenFields(); err != nil {
		return err
	}

	for i := range p.Types {
		obj, ok := p.Types[i].Object()
		if !ok {
			continue
		}
		for _, proto := range obj.Protos {
			p.nameFunction(proto.FIndex, proto.Name, RefType(i))
		}
		for _, b := range obj.Bindings {
			if b.Field < 0 || int(b.Field) >= len(obj.Fields) {
				return linkError("binding field", fmt.Sprintf("field < %d", len(obj.Fields)), fmt.Sprintf("%d", b.Field))
			}
			p.nameFunction(b.Fun, obj.Fields[b.Field].Name, RefType(i))
		}
	}

	p.fnames = make(map[string][]RefFun, len(p.Functions))
	for i := range p.Functions {
		f := &p.Functions[i]
		if f.HasName() {
			name := p.StringName(f.Name)
			p.fnames[name] = append(p.fnames[name], f.FIndex)
		}
	}
	if ptr, err := p.Fn(p.Entrypoint); err == nil && !ptr.Native {
		p.fnames["init"] = append(p.fnames["init"], p.Entrypoint)
	}
	return nil
}

func (p *Program) nameFunction(r RefFun, name RefString, parent RefType) {
	ptr, err := p.Fn(r)
	if err != nil || ptr.Native {
		return
	}
	f := &p.Functions[ptr.Index]
	f.Name = name
	f.Parent = parent
}

// flattenFields prefixes every object's own fields with its ancestors'
// fields, root first. Field references index into the flattened list.
func (p *Program) flattenFields() error {
	for i := range p.Types {
		obj, ok := p.Types[i].Object()
		if !ok {
			continue
		}
		var chain []*TypeObj
		seen := map[RefType]bool{RefType(i): true}
		for cur := obj; cur != nil; {
			chain = append(chain, cur)
			if cur.Super == NoType {
				break
			}
			if seen[cur.Super] {
				return linkError("super type", "acyclic hierarchy", fmt.Sprintf("cycle through type@%d", cur.Super))
			}
			seen[cur.Super] = true
			parent, err := p.GetType(cur.Super)
			if err != nil {
				return linkError("super type", fmt.Sprintf("type < %d", len(p.Types)), fmt.Sprintf("%d", cur.Super))
			}
			cur, _ = parent.Object()
		}
		var fields []ObjField
		for j := len(chain) - 1; j >= 0; j-- {
			fields = append(fields, chain[j].OwnFields...)
		}
		if fields == nil {
			fields = []ObjField{}
		}
		obj.Fields = fields
	}
	return nil
}

// ConstantOf returns the constant initializing a global, if any.
func (p *Program) ConstantOf(g RefGlobal) (*Constant, bool) {
	for i := range p.Constants {
		if p.Constants[i].Global == g {
			return &p.Constants[i], true
		}
	}
	return nil, false
}

// GlobalSlot converts the one-based global reference stored in object and
// enum types to a global index. ok is false when the type has no global.
func GlobalSlot(g RefGlobal) (RefGlobal, bool) {
	if g <= 0 {
		return 0, false
	}
	return g - 1, true
}
