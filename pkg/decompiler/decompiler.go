package decompiler

import (
	"fmt"
	"strings"

	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/cfg"
)

// Param is one declared argument of a decompiled function.
type Param struct {
	Name string
	Type string
}

// FunctionBody is the structured form of one function.
type FunctionBody struct {
	Fun  bytecode.RefFun
	Name string
	// Method is set when register 0 is the receiver; it is not listed in Params.
	Method bool
	Params []Param
	Ret    string
	Stmts  []Stmt
	// Warnings lists what could not be reconstructed exactly: unresolved
	// references, unstructured jumps and raw instructions.
	Warnings []string
}

// Options tunes reconstruction.
type Options struct {
	// Inline folds single-use values into the expression that reads them.
	Inline bool
	// Passes run in order over every decompiled body.
	Passes []Pass
}

// DefaultOptions inlines and runs DefaultPasses.
func DefaultOptions() Options {
	return Options{Inline: true, Passes: DefaultPasses()}
}

// Decompiler reconstructs source for the functions of one program. It holds
// no mutable state and may be shared between goroutines.
type Decompiler struct {
	prog *bytecode.Program
	opts Options
}

// New returns a Decompiler over p.
func New(p *bytecode.Program, opts Options) *Decompiler {
	return &Decompiler{prog: p, opts: opts}
}

// Function decompiles fn with DefaultOptions.
func Function(p *bytecode.Program, fn *bytecode.Function) *FunctionBody {
	return New(p, DefaultOptions()).Function(fn)
}

// Function decompiles fn and runs the configured passes.
func (d *Decompiler) Function(fn *bytecode.Function) *FunctionBody {
	fb := d.function(fn, map[bytecode.RefFun]bool{})
	return RunPasses(fb, d.opts.Passes)
}

// FunctionRef decompiles the user function with findex r.
func (d *Decompiler) FunctionRef(r bytecode.RefFun) (*FunctionBody, error) {
	fn, err := d.prog.GetFunction(r)
	if err != nil {
		return nil, err
	}
	return d.Function(fn), nil
}

// function decompiles fn without post-processing. active holds the
// functions being decompiled up the closure chain.
func (d *Decompiler) function(fn *bytecode.Function, active map[bytecode.RefFun]bool) *FunctionBody {
	active[fn.FIndex] = true
	defer delete(active, fn.FIndex)

	st := newFuncState(d, fn, active)
	fb := st.header()
	fb.Stmts = st.structure()
	fb.Warnings = st.warnings
	return fb
}

// funcState is the per-function working state of one decompilation.
type funcState struct {
	d      *Decompiler
	p      *bytecode.Program
	fn     *bytecode.Function
	g      *cfg.Graph
	df     *dataflow
	active map[bytecode.RefFun]bool

	nargs    int
	names    []string
	varNames map[int]string // instruction position -> debug name
	declared []bool

	warnings []string
	warned   map[string]bool
}

func newFuncState(d *Decompiler, fn *bytecode.Function, active map[bytecode.RefFun]bool) *funcState {
	g := cfg.Build(fn)
	st := &funcState{
		d:        d,
		p:        d.prog,
		fn:       fn,
		g:        g,
		df:       analyze(fn, g),
		active:   active,
		nargs:    fn.ArgCount(d.prog),
		declared: make([]bool, len(fn.Regs)),
		varNames: make(map[int]string),
		warned:   make(map[string]bool),
	}
	if st.nargs > len(fn.Regs) {
		st.nargs = len(fn.Regs)
	}
	st.nameRegisters()
	for i := 0; i < st.nargs; i++ {
		st.declared[i] = true
	}
	for _, pos := range g.BadTargets {
		st.warnf("jump at %d leaves the function", pos)
	}
	for _, e := range g.Irreducible() {
		st.warnf("irreducible control flow entering %d", g.Blocks[e.To].Start)
	}
	return st
}

// nameRegisters picks one display name per register: "this" for the
// receiver, debug names for arguments and assigned variables, else rN.
func (st *funcState) nameRegisters() {
	fn := st.fn
	st.names = make([]string, len(fn.Regs))
	for i := 0; i < st.nargs; i++ {
		if name, ok := fn.ArgName(st.p, i); ok {
			st.names[i] = name
		}
	}
	if fn.IsMethod() {
		st.names[0] = "this"
	}
	for _, a := range fn.Assigns {
		pos := int(a.Pos) - 1
		if pos < 0 || pos >= len(fn.Ops) {
			continue
		}
		name, err := st.p.GetString(a.Name)
		if err != nil {
			continue
		}
		st.varNames[pos] = name
		if r, has := effectiveDst(&fn.Ops[pos], len(fn.Regs)); has && st.names[r] == "" {
			st.names[r] = name
		}
	}
	for r := range st.names {
		if st.names[r] == "" {
			st.names[r] = fmt.Sprintf("r%d", r)
		}
	}
}

func (st *funcState) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !st.warned[msg] {
		st.warned[msg] = true
		st.warnings = append(st.warnings, msg)
	}
}

func (st *funcState) header() *FunctionBody {
	fn := st.fn
	fb := &FunctionBody{
		Fun:    fn.FIndex,
		Name:   st.p.FunctionName(fn.FIndex),
		Method: fn.IsMethod(),
		Ret:    HaxeType(st.p, fn.Ret(st.p)),
	}
	first := 0
	if fb.Method {
		first = 1
	}
	for i := first; i < st.nargs; i++ {
		fb.Params = append(fb.Params, Param{Name: st.names[i], Type: HaxeType(st.p, fn.Regs[i])})
	}
	return fb
}

func (st *funcState) reg(r bytecode.Reg) *Var {
	if r < 0 || int(r) >= len(st.names) {
		st.warnf("register %d out of range", int(r))
		return &Var{Reg: r, Name: fmt.Sprintf("r%d", int(r))}
	}
	return &Var{Reg: r, Name: st.names[r]}
}

func (st *funcState) regKind(r bytecode.Reg) bytecode.TypeKind {
	t, err := st.p.GetType(st.fn.RegType(r))
	if err != nil {
		return bytecode.KindDyn
	}
	return t.Kind
}

// HaxeType renders a type the way Haxe source would name it.
func HaxeType(p *bytecode.Program, r bytecode.RefType) string {
	return haxeType(p, r, 0)
}

func haxeType(p *bytecode.Program, r bytecode.RefType, depth int) string {
	t, err := p.GetType(r)
	if err != nil || depth > 8 {
		return "Dynamic"
	}
	switch t.Kind {
	case bytecode.KindVoid:
		return "Void"
	case bytecode.KindUI8, bytecode.KindUI16, bytecode.KindI32:
		return "Int"
	case bytecode.KindI64:
		return "hl.I64"
	case bytecode.KindF32, bytecode.KindF64:
		return "Float"
	case bytecode.KindBool:
		return "Bool"
	case bytecode.KindBytes:
		return "hl.Bytes"
	case bytecode.KindDyn, bytecode.KindVirtual, bytecode.KindDynObj:
		return "Dynamic"
	case bytecode.KindFun, bytecode.KindMethod:
		return "Function"
	case bytecode.KindArray:
		return "hl.NativeArray"
	case bytecode.KindType:
		return "hl.Type"
	case bytecode.KindRef:
		return "hl.Ref<" + haxeType(p, t.Inner, depth+1) + ">"
	case bytecode.KindNull:
		return "Null<" + haxeType(p, t.Inner, depth+1) + ">"
	case bytecode.KindPacked:
		return "hl.Packed<" + haxeType(p, t.Inner, depth+1) + ">"
	case bytecode.KindObj, bytecode.KindStruct, bytecode.KindEnum, bytecode.KindAbstract:
		return className(p.TypeName(r))
	}
	return "Dynamic"
}

// className strips the "$" HashLink prefixes to class-object types.
func className(name string) string {
	return strings.TrimPrefix(name, "$")
}
