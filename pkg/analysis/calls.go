package analysis

import (
	"slices"

	"github.com/chazu/hlbc/pkg/bytecode"
)

// Ref is one outgoing function reference of an instruction.
type Ref struct {
	Pos int
	Op  bytecode.Opcode
	Fun bytecode.RefFun
}

// FunctionRefs lists the direct function references of fn in instruction
// order: static calls and closures built from a function index.
func FunctionRefs(fn *bytecode.Function) []Ref {
	var refs []Ref
	for pos := range fn.Ops {
		ins := &fn.Ops[pos]
		switch ins.Op {
		case bytecode.OpCall0, bytecode.OpCall1, bytecode.OpCall2, bytecode.OpCall3, bytecode.OpCall4, bytecode.OpCallN,
			bytecode.OpStaticClosure, bytecode.OpInstanceClosure:
			refs = append(refs, Ref{Pos: pos, Op: ins.Op, Fun: bytecode.RefFun(ins.Args[1])})
		}
	}
	return refs
}

// CallTargets returns the functions fn references directly, deduplicated,
// in order of first reference.
func CallTargets(p *bytecode.Program, fn *bytecode.Function) []bytecode.RefFun {
	var out []bytecode.RefFun
	seen := make(map[bytecode.RefFun]bool)
	for _, r := range FunctionRefs(fn) {
		if seen[r.Fun] {
			continue
		}
		seen[r.Fun] = true
		out = append(out, r.Fun)
	}
	return out
}

// MethodTargets returns the methods fn invokes through CallMethod and
// CallThis on object receivers, deduplicated, in order of first call.
func MethodTargets(p *bytecode.Program, fn *bytecode.Function) []bytecode.RefFun {
	var out []bytecode.RefFun
	for pos := range fn.Ops {
		f, ok := methodTarget(p, fn, &fn.Ops[pos])
		if ok && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func methodTarget(p *bytecode.Program, fn *bytecode.Function, ins *bytecode.Instr) (bytecode.RefFun, bool) {
	var recv bytecode.Reg
	switch ins.Op {
	case bytecode.OpCallMethod:
		if len(ins.List) == 0 {
			return 0, false
		}
		recv = bytecode.Reg(ins.List[0])
	case bytecode.OpCallThis:
		recv = 0
	default:
		return 0, false
	}
	proto, err := p.Method(fn.RegType(recv), int(ins.Args[1]))
	if err != nil {
		return 0, false
	}
	return proto.FIndex, true
}

// Callers returns the user functions whose direct references include f, in
// pool order.
func Callers(p *bytecode.Program, f bytecode.RefFun) []bytecode.RefFun {
	var out []bytecode.RefFun
	p.EachFunction(func(fn *bytecode.Function) bool {
		for _, r := range FunctionRefs(fn) {
			if r.Fun == f {
				out = append(out, fn.FIndex)
				break
			}
		}
		return true
	})
	return out
}

// ClosureAt finds the function last stored into r before pos: a static or
// instance closure, or a field bound to a function on the source object.
func ClosureAt(p *bytecode.Program, fn *bytecode.Function, r bytecode.Reg, pos int) (bytecode.RefFun, bool) {
	if pos > len(fn.Ops) {
		pos = len(fn.Ops)
	}
	for i := pos - 1; i >= 0; i-- {
		ins := &fn.Ops[i]
		dst, ok := ins.Dst()
		if !ok || dst != r {
			continue
		}
		switch ins.Op {
		case bytecode.OpStaticClosure, bytecode.OpInstanceClosure:
			return bytecode.RefFun(ins.Args[1]), true
		case bytecode.OpField:
			ty, err := p.GetType(fn.RegType(ins.Reg(1)))
			if err != nil {
				return 0, false
			}
			obj, ok := ty.Object()
			if !ok {
				return 0, false
			}
			for _, b := range obj.Bindings {
				if int32(b.Field) == ins.Args[2] {
					return b.Fun, true
				}
			}
		}
		return 0, false
	}
	return 0, false
}
