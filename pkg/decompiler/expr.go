package decompiler

import (
	"fmt"
	"sort"

	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/cfg"
)

// blockEnd classifies how a basic block hands over control.
type blockEnd uint8

const (
	endNext blockEnd = iota
	endCond
	endSwitch
	endTrap
	endLeave
)

// blockResult is the reconstruction of one basic block.
type blockResult struct {
	stmts []Stmt
	end   blockEnd
	// cond is the taken condition of a conditional jump or the selector of a
	// switch.
	cond Expr
	exc  bytecode.Reg
}

type allocKind uint8

const (
	allocNone allocKind = iota
	allocObj
	allocVirtual
	allocEnum
)

// pendingValue is a definition held back so its reader can absorb it.
type pendingValue struct {
	pos    int
	reg    bytecode.Reg
	expr   Expr
	uses   int
	reads  []bytecode.Reg
	impure bool
	inline bool
	alloc  allocKind
	folded bool
}

type blockBuilder struct {
	st      *funcState
	out     []Stmt
	pending map[bytecode.Reg]*pendingValue
	res     blockResult

	// operand tracking for the instruction being translated
	reads  []bytecode.Reg
	impure bool
}

// block reconstructs the statements of b.
func (st *funcState) block(b *cfg.Block) blockResult {
	bb := &blockBuilder{st: st, pending: make(map[bytecode.Reg]*pendingValue)}
	for pos := b.Start; pos < b.End; pos++ {
		bb.reads = bb.reads[:0]
		bb.impure = false
		bb.instr(pos)
	}
	bb.flushAll()
	bb.res.stmts = bb.out
	if len(bb.out) > 0 {
		if line := st.sourceLine(b.Start); line != nil {
			bb.res.stmts = append([]Stmt{line}, bb.out...)
		}
	}
	return bb.res
}

func (st *funcState) sourceLine(pos int) *SourceLine {
	if pos >= len(st.fn.Debug) {
		return nil
	}
	d := st.fn.Debug[pos]
	file, err := st.p.GetDebugFile(d.File)
	if err != nil {
		file = fmt.Sprintf("file@%d", d.File)
	}
	return &SourceLine{File: file, Line: d.Line}
}

// ---------------------------------------------------------------------------
// Pending values
// ---------------------------------------------------------------------------

func (bb *blockBuilder) emit(s Stmt) { bb.out = append(bb.out, s) }

func (bb *blockBuilder) sortedPending() []*pendingValue {
	list := make([]*pendingValue, 0, len(bb.pending))
	for _, pv := range bb.pending {
		list = append(list, pv)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].pos < list[j].pos })
	return list
}

func (bb *blockBuilder) assign(r bytecode.Reg, e Expr) {
	st := bb.st
	decl := false
	if r >= 0 && int(r) < len(st.declared) {
		decl = !st.declared[r]
		st.declared[r] = true
	}
	bb.emit(&Assign{Declare: decl, Target: st.reg(r), Value: e})
}

// flush materializes a pending value as a statement.
func (bb *blockBuilder) flush(pv *pendingValue) {
	delete(bb.pending, pv.reg)
	_, named := bb.st.varNames[pv.pos]
	if pv.uses <= 0 && !bb.st.df.liveOut[pv.pos] && pv.impure && !named {
		bb.emit(&ExprStmt{X: pv.expr})
		return
	}
	bb.assign(pv.reg, pv.expr)
}

func (bb *blockBuilder) flushAll() {
	for _, pv := range bb.sortedPending() {
		if pv.uses > 0 || pv.alloc != allocNone || pv.impure {
			bb.flush(pv)
		} else {
			delete(bb.pending, pv.reg)
		}
	}
}

// effect materializes every pending value an effect could reorder.
func (bb *blockBuilder) effect() {
	for _, pv := range bb.sortedPending() {
		if pv.impure {
			bb.flush(pv)
		}
	}
}

// clobber materializes pending values that read r or still define it.
func (bb *blockBuilder) clobber(r bytecode.Reg) {
	for _, pv := range bb.sortedPending() {
		if pv.reg == r || containsReg(pv.reads, r) {
			bb.flush(pv)
		}
	}
}

func containsReg(regs []bytecode.Reg, r bytecode.Reg) bool {
	for _, x := range regs {
		if x == r {
			return true
		}
	}
	return false
}

// use returns the expression reading r, absorbing a pending definition.
func (bb *blockBuilder) use(r bytecode.Reg) Expr {
	pv := bb.pending[r]
	if pv == nil {
		bb.reads = append(bb.reads, r)
		return bb.st.reg(r)
	}
	if !pv.inline {
		bb.flush(pv)
		bb.reads = append(bb.reads, r)
		return bb.st.reg(r)
	}
	pv.uses--
	if pv.uses <= 0 {
		delete(bb.pending, r)
	}
	bb.reads = append(bb.reads, pv.reads...)
	bb.impure = bb.impure || pv.impure
	return pv.expr
}

func (bb *blockBuilder) useAll(regs []bytecode.Reg) []Expr {
	out := make([]Expr, len(regs))
	for i, r := range regs {
		out[i] = bb.use(r)
	}
	return out
}

func (bb *blockBuilder) canInline(pos int, uses int, e Expr) bool {
	st := bb.st
	if !st.d.opts.Inline || st.df.liveOut[pos] {
		return false
	}
	if _, named := st.varNames[pos]; named {
		return false
	}
	return uses == 1 || (uses > 1 && isLiteral(e))
}

func isLiteral(e Expr) bool {
	_, ok := e.(*Const)
	return ok
}

// def binds the value of the instruction at pos to register r.
func (bb *blockBuilder) def(pos int, r bytecode.Reg, e Expr, impure bool) {
	bb.clobber(r)
	st := bb.st
	impure = impure || bb.impure
	if st.regKind(r) == bytecode.KindVoid {
		if impure {
			bb.emit(&ExprStmt{X: e})
		}
		return
	}
	uses := st.df.uses[pos]
	if bb.canInline(pos, uses, e) {
		bb.pending[r] = &pendingValue{
			pos: pos, reg: r, expr: e, uses: uses,
			reads: append([]bytecode.Reg(nil), bb.reads...), impure: impure, inline: true,
		}
		return
	}
	_, named := st.varNames[pos]
	if uses == 0 && !st.df.liveOut[pos] && impure && !named {
		bb.emit(&ExprStmt{X: e})
		return
	}
	bb.assign(r, e)
}

// alloc holds a fresh object so the instructions initializing it can fold
// into one constructor expression.
func (bb *blockBuilder) alloc(pos int, r bytecode.Reg, e Expr, kind allocKind) {
	bb.clobber(r)
	uses := bb.st.df.uses[pos]
	bb.pending[r] = &pendingValue{
		pos: pos, reg: r, expr: e, uses: uses, alloc: kind,
		inline: bb.canInline(pos, uses, e),
	}
}

func (bb *blockBuilder) allocFor(r bytecode.Reg, kind allocKind) *pendingValue {
	if pv := bb.pending[r]; pv != nil && pv.alloc == kind && !pv.folded {
		return pv
	}
	return nil
}

// absorb records that one read of an allocation was folded into it.
func (bb *blockBuilder) absorb(pv *pendingValue) {
	pv.uses--
	pv.reads = append(pv.reads, bb.reads...)
	pv.impure = pv.impure || bb.impure
	pv.inline = bb.canInline(pv.pos, pv.uses, pv.expr)
}

// ---------------------------------------------------------------------------
// Instruction translation
// ---------------------------------------------------------------------------

var binaryOps = map[bytecode.Opcode]BinaryOp{
	bytecode.OpAdd: OpAdd, bytecode.OpSub: OpSub, bytecode.OpMul: OpMul,
	bytecode.OpSDiv: OpDiv, bytecode.OpUDiv: OpDiv, bytecode.OpSMod: OpMod, bytecode.OpUMod: OpMod,
	bytecode.OpShl: OpShl, bytecode.OpSShr: OpShr, bytecode.OpUShr: OpUShr,
	bytecode.OpAnd: OpAnd, bytecode.OpOr: OpOr, bytecode.OpXor: OpXor,
}

var condOps = map[bytecode.Opcode]BinaryOp{
	bytecode.OpJSLt: OpLt, bytecode.OpJSGte: OpGte, bytecode.OpJSGt: OpGt, bytecode.OpJSLte: OpLte,
	bytecode.OpJULt: OpLt, bytecode.OpJUGte: OpGte, bytecode.OpJNotLt: OpLt, bytecode.OpJNotGte: OpGte,
	bytecode.OpJEq: OpEq, bytecode.OpJNotEq: OpNotEq,
}

var nullConst = &Const{Kind: ConstNull, Value: "null"}

func (bb *blockBuilder) instr(pos int) {
	st := bb.st
	p := st.p
	ins := &st.fn.Ops[pos]
	r := ins.Reg
	a := ins.Arg

	if bop, ok := binaryOps[ins.Op]; ok {
		l := bb.use(r(1))
		rr := bb.use(r(2))
		bb.def(pos, r(0), &Binary{Op: bop, L: l, R: rr}, false)
		return
	}
	if cop, ok := condOps[ins.Op]; ok {
		l := bb.use(r(0))
		rr := bb.use(r(1))
		var cond Expr = &Binary{Op: cop, L: l, R: rr}
		if ins.Op == bytecode.OpJNotLt || ins.Op == bytecode.OpJNotGte {
			cond = &Unary{Op: OpNot, X: cond}
		}
		bb.res.end, bb.res.cond = endCond, cond
		return
	}

	switch ins.Op {
	case bytecode.OpMov, bytecode.OpToDyn, bytecode.OpToSFloat, bytecode.OpToUFloat, bytecode.OpToInt,
		bytecode.OpToVirtual, bytecode.OpUnsafeCast:
		bb.def(pos, r(0), bb.use(r(1)), false)
	case bytecode.OpSafeCast:
		bb.def(pos, r(0), &Cast{X: bb.use(r(1)), Type: HaxeType(p, st.fn.RegType(r(0)))}, false)

	case bytecode.OpInt:
		if _, err := p.GetInt(bytecode.RefInt(a(1))); err != nil {
			st.warnf("%v", err)
		}
		bb.def(pos, r(0), &Const{Kind: ConstInt, Value: p.IntValue(bytecode.RefInt(a(1)))}, false)
	case bytecode.OpFloat:
		if _, err := p.GetFloat(bytecode.RefFloat(a(1))); err != nil {
			st.warnf("%v", err)
		}
		bb.def(pos, r(0), &Const{Kind: ConstFloat, Value: p.FloatValue(bytecode.RefFloat(a(1)))}, false)
	case bytecode.OpBool:
		v := "false"
		if a(1) != 0 {
			v = "true"
		}
		bb.def(pos, r(0), &Const{Kind: ConstBool, Value: v}, false)
	case bytecode.OpBytes:
		bb.def(pos, r(0), &Const{Kind: ConstBytes, Value: fmt.Sprintf("bytes@%d", a(1))}, false)
	case bytecode.OpString:
		s, err := p.GetString(bytecode.RefString(a(1)))
		if err != nil {
			st.warnf("%v", err)
			s = p.StringName(bytecode.RefString(a(1)))
		}
		bb.def(pos, r(0), &Const{Kind: ConstString, Value: s}, false)
	case bytecode.OpNull:
		bb.def(pos, r(0), nullConst, false)

	case bytecode.OpNeg:
		bb.def(pos, r(0), &Unary{Op: OpNeg, X: bb.use(r(1))}, false)
	case bytecode.OpNot:
		bb.def(pos, r(0), Not(bb.use(r(1))), false)
	case bytecode.OpIncr, bytecode.OpDecr:
		bb.clobber(r(0))
		op := OpIncr
		if ins.Op == bytecode.OpDecr {
			op = OpDecr
		}
		bb.emit(&ExprStmt{X: &Unary{Op: op, X: st.reg(r(0))}})

	case bytecode.OpCall0, bytecode.OpCall1, bytecode.OpCall2, bytecode.OpCall3, bytecode.OpCall4, bytecode.OpCallN:
		bb.call(pos, ins)
	case bytecode.OpCallMethod:
		args := bb.useAll(ins.Regs())
		bb.effect()
		if len(args) == 0 {
			bb.def(pos, r(0), &Unknown{Text: st.raw(pos)}, true)
			return
		}
		name := st.methodName(st.fn.RegType(bytecode.Reg(ins.List[0])), int(a(1)))
		bb.def(pos, r(0), &Call{Fun: &Field{X: args[0], Name: name}, Args: args[1:]}, true)
	case bytecode.OpCallThis:
		args := bb.useAll(ins.Regs())
		bb.effect()
		name := st.methodName(st.fn.RegType(0), int(a(1)))
		bb.def(pos, r(0), &Call{Fun: &Field{X: st.reg(0), Name: name}, Args: args}, true)
	case bytecode.OpCallClosure:
		fun := bb.use(r(1))
		args := bb.useAll(ins.Regs())
		bb.effect()
		bb.def(pos, r(0), &Call{Fun: fun, Args: args}, true)

	case bytecode.OpStaticClosure:
		bb.def(pos, r(0), st.closure(bytecode.RefFun(a(1)), nil), false)
	case bytecode.OpInstanceClosure:
		obj := bb.use(r(2))
		bb.def(pos, r(0), st.closure(bytecode.RefFun(a(1)), obj), false)
	case bytecode.OpVirtualClosure:
		obj := bb.use(r(1))
		bb.def(pos, r(0), &Index{X: obj, Index: bb.use(r(2))}, true)

	case bytecode.OpGetGlobal:
		e, literal := st.global(bytecode.RefGlobal(a(1)))
		bb.def(pos, r(0), e, !literal)
	case bytecode.OpSetGlobal:
		src := bb.use(r(1))
		bb.effect()
		target, _ := st.global(bytecode.RefGlobal(a(0)))
		bb.emit(&Assign{Target: target, Value: src})

	case bytecode.OpField:
		obj := bb.use(r(1))
		bb.def(pos, r(0), &Field{X: obj, Name: p.FieldName(st.fn.RegType(r(1)), bytecode.RefField(a(2)))}, true)
	case bytecode.OpGetThis:
		bb.def(pos, r(0), &Field{X: st.reg(0), Name: p.FieldName(st.fn.RegType(0), bytecode.RefField(a(1)))}, true)
	case bytecode.OpDynGet:
		obj := bb.use(r(1))
		bb.def(pos, r(0), &Field{X: obj, Name: p.StringName(bytecode.RefString(a(2)))}, true)
	case bytecode.OpSetField:
		bb.setField(ins)
	case bytecode.OpSetThis:
		src := bb.use(r(1))
		bb.effect()
		name := p.FieldName(st.fn.RegType(0), bytecode.RefField(a(0)))
		bb.emit(&Assign{Target: &Field{X: st.reg(0), Name: name}, Value: src})
	case bytecode.OpDynSet:
		obj := bb.use(r(0))
		src := bb.use(r(2))
		bb.effect()
		bb.emit(&Assign{Target: &Field{X: obj, Name: p.StringName(bytecode.RefString(a(1)))}, Value: src})

	case bytecode.OpJTrue:
		bb.res.end, bb.res.cond = endCond, bb.use(r(0))
	case bytecode.OpJFalse:
		bb.res.end, bb.res.cond = endCond, Not(bb.use(r(0)))
	case bytecode.OpJNull:
		bb.res.end, bb.res.cond = endCond, &Binary{Op: OpEq, L: bb.use(r(0)), R: nullConst}
	case bytecode.OpJNotNull:
		bb.res.end, bb.res.cond = endCond, &Binary{Op: OpNotEq, L: bb.use(r(0)), R: nullConst}
	case bytecode.OpJAlways, bytecode.OpLabel, bytecode.OpNop, bytecode.OpNullCheck, bytecode.OpEndTrap:
	case bytecode.OpSwitch:
		bb.res.end, bb.res.cond = endSwitch, bb.use(r(0))
	case bytecode.OpTrap:
		bb.res.end, bb.res.exc = endTrap, r(0)

	case bytecode.OpRet:
		if st.regKind(r(0)) == bytecode.KindVoid {
			bb.effect()
			bb.emit(&Return{})
		} else {
			v := bb.use(r(0))
			bb.effect()
			bb.emit(&Return{Value: v})
		}
		bb.res.end = endLeave
	case bytecode.OpThrow, bytecode.OpRethrow:
		v := bb.use(r(0))
		bb.effect()
		bb.emit(&Throw{X: v})
		bb.res.end = endLeave

	case bytecode.OpGetI8, bytecode.OpGetI16, bytecode.OpGetMem:
		bytes := bb.use(r(1))
		idx := bb.use(r(2))
		bb.def(pos, r(0), &Call{Fun: &Field{X: bytes, Name: memAccessor("get", ins.Op, st.regKind(r(0)))}, Args: []Expr{idx}}, true)
	case bytecode.OpSetI8, bytecode.OpSetI16, bytecode.OpSetMem:
		bytes := bb.use(r(0))
		idx := bb.use(r(1))
		src := bb.use(r(2))
		bb.effect()
		name := memAccessor("set", ins.Op, st.regKind(r(2)))
		bb.emit(&ExprStmt{X: &Call{Fun: &Field{X: bytes, Name: name}, Args: []Expr{idx, src}}})
	case bytecode.OpGetArray:
		arr := bb.use(r(1))
		bb.def(pos, r(0), &Index{X: arr, Index: bb.use(r(2))}, true)
	case bytecode.OpSetArray:
		arr := bb.use(r(0))
		idx := bb.use(r(1))
		src := bb.use(r(2))
		bb.effect()
		bb.emit(&Assign{Target: &Index{X: arr, Index: idx}, Value: src})
	case bytecode.OpArraySize:
		bb.def(pos, r(0), &Field{X: bb.use(r(1)), Name: "length"}, true)

	case bytecode.OpNew:
		bb.newObject(pos, r(0))
	case bytecode.OpType:
		bb.def(pos, r(0), &Ident{Name: HaxeType(p, bytecode.RefType(a(1)))}, false)
	case bytecode.OpGetType:
		bb.def(pos, r(0), builtin("Type.typeof", bb.use(r(1))), false)
	case bytecode.OpGetTID:
		bb.def(pos, r(0), builtin("$tid", bb.use(r(1))), false)
	case bytecode.OpRef:
		bb.def(pos, r(0), builtin("$ref", bb.use(r(1))), false)
	case bytecode.OpUnref:
		bb.def(pos, r(0), builtin("$unref", bb.use(r(1))), true)
	case bytecode.OpSetref:
		ref := bb.use(r(0))
		v := bb.use(r(1))
		bb.effect()
		bb.emit(&ExprStmt{X: builtin("$setref", ref, v)})

	case bytecode.OpMakeEnum:
		t := st.fn.RegType(r(0))
		args := bb.useAll(ins.Regs())
		bb.def(pos, r(0), &EnumConstr{Type: t, Name: p.ConstructName(t, bytecode.RefEnumConstruct(a(1))), Args: args}, false)
	case bytecode.OpEnumAlloc:
		t := st.fn.RegType(r(0))
		c := bytecode.RefEnumConstruct(a(1))
		var args []Expr
		if ctor, err := p.Construct(t, c); err == nil {
			args = make([]Expr, len(ctor.Params))
		}
		bb.alloc(pos, r(0), &EnumConstr{Type: t, Name: p.ConstructName(t, c), Args: args}, allocEnum)
	case bytecode.OpEnumIndex:
		bb.def(pos, r(0), builtin("Type.enumIndex", bb.use(r(1))), true)
	case bytecode.OpEnumField:
		v := bb.use(r(1))
		name := p.ConstructName(st.fn.RegType(r(1)), bytecode.RefEnumConstruct(a(2)))
		bb.def(pos, r(0), &Index{X: &Field{X: v, Name: name}, Index: &Const{Kind: ConstInt, Value: fmt.Sprint(a(3))}}, true)
	case bytecode.OpSetEnumField:
		bb.setEnumField(ins)

	case bytecode.OpAssert:
		bb.effect()
		bb.emit(&ExprStmt{X: builtin("assert")})

	default:
		bb.unknown(pos, ins)
	}
}

// unknown keeps an instruction no rule covers as a raw node.
func (bb *blockBuilder) unknown(pos int, ins *bytecode.Instr) {
	st := bb.st
	for _, r := range effectiveReads(ins, len(st.fn.Regs)) {
		bb.use(r)
	}
	bb.effect()
	raw := &Unknown{Text: st.raw(pos)}
	st.warnf("raw instruction at %d: %s", pos, ins.Op)
	if dst, ok := effectiveDst(ins, len(st.fn.Regs)); ok {
		bb.def(pos, dst, raw, true)
		return
	}
	bb.emit(&ExprStmt{X: raw})
}

func builtin(name string, args ...Expr) Expr {
	return &Call{Fun: &Ident{Name: name}, Args: args}
}

func memAccessor(prefix string, op bytecode.Opcode, kind bytecode.TypeKind) string {
	switch op {
	case bytecode.OpGetI8, bytecode.OpSetI8:
		return prefix + "UI8"
	case bytecode.OpGetI16, bytecode.OpSetI16:
		return prefix + "UI16"
	}
	switch kind {
	case bytecode.KindI64:
		return prefix + "I64"
	case bytecode.KindF32:
		return prefix + "F32"
	case bytecode.KindF64:
		return prefix + "F64"
	}
	return prefix + "I32"
}

func (st *funcState) raw(pos int) string {
	return bytecode.NewFormatter(st.p, bytecode.StyleResolved).Instr(st.fn, pos)
}

// call translates the direct call family, folding a constructor call on a
// fresh object into a NewExpr.
func (bb *blockBuilder) call(pos int, ins *bytecode.Instr) {
	st := bb.st
	var regs []bytecode.Reg
	if ins.Op == bytecode.OpCallN {
		regs = ins.Regs()
	} else {
		n := int(ins.Op - bytecode.OpCall0)
		for i := 0; i < n; i++ {
			regs = append(regs, ins.Reg(2+i))
		}
	}
	fun := bytecode.RefFun(ins.Arg(1))
	dst := ins.Reg(0)

	if len(regs) > 0 && st.regKind(dst) == bytecode.KindVoid {
		if pv := bb.allocFor(regs[0], allocObj); pv != nil {
			args := bb.useAll(regs[1:])
			bb.effect()
			pv.expr.(*NewExpr).Args = args
			pv.folded = true
			bb.impure = true
			bb.absorb(pv)
			if !pv.inline {
				bb.flush(pv)
			}
			return
		}
	}

	args := bb.useAll(regs)
	bb.effect()
	bb.def(pos, dst, st.call(fun, args), true)
}

func (bb *blockBuilder) newObject(pos int, r bytecode.Reg) {
	st := bb.st
	t := st.fn.RegType(r)
	ty, err := st.p.GetType(t)
	if err == nil && ty.Kind == bytecode.KindVirtual {
		bb.alloc(pos, r, &Anonymous{Type: t}, allocVirtual)
		return
	}
	bb.alloc(pos, r, &NewExpr{Type: t, Name: HaxeType(st.p, t)}, allocObj)
}

func (bb *blockBuilder) setField(ins *bytecode.Instr) {
	st := bb.st
	obj := ins.Reg(0)
	name := st.p.FieldName(st.fn.RegType(obj), bytecode.RefField(ins.Arg(1)))
	if pv := bb.allocFor(obj, allocVirtual); pv != nil {
		v := bb.use(ins.Reg(2))
		an := pv.expr.(*Anonymous)
		an.Fields = append(an.Fields, FieldInit{Name: name, Value: v})
		bb.absorb(pv)
		return
	}
	target := bb.use(obj)
	src := bb.use(ins.Reg(2))
	bb.effect()
	bb.emit(&Assign{Target: &Field{X: target, Name: name}, Value: src})
}

func (bb *blockBuilder) setEnumField(ins *bytecode.Instr) {
	value := ins.Reg(0)
	field := int(ins.Arg(1))
	if pv := bb.allocFor(value, allocEnum); pv != nil {
		ec := pv.expr.(*EnumConstr)
		if field >= 0 && field < len(ec.Args) {
			ec.Args[field] = bb.use(ins.Reg(2))
			bb.absorb(pv)
			return
		}
	}
	target := bb.use(value)
	src := bb.use(ins.Reg(2))
	bb.effect()
	bb.emit(&Assign{Target: &Index{X: target, Index: &Const{Kind: ConstInt, Value: fmt.Sprint(field)}}, Value: src})
}

// ---------------------------------------------------------------------------
// References
// ---------------------------------------------------------------------------

// funRef names f, prefixed with its class when it belongs to another one.
func (st *funcState) funRef(f bytecode.RefFun) *FunRef {
	ref := &FunRef{Fun: f, Name: st.p.FunctionName(f)}
	if _, err := st.p.Fn(f); err != nil {
		st.warnf("%v", err)
		return ref
	}
	if fn, err := st.p.GetFunction(f); err == nil && fn.Parent != bytecode.NoType && fn.Parent >= 0 && fn.Parent != st.fn.Parent {
		ref.Owner = className(st.p.TypeName(fn.Parent))
	}
	return ref
}

// call builds a call to f; methods are called on their first argument.
func (st *funcState) call(f bytecode.RefFun, args []Expr) Expr {
	if fn, err := st.p.GetFunction(f); err == nil && fn.IsMethod() && len(args) > 0 {
		return &Call{Fun: &Field{X: args[0], Name: st.p.FunctionName(f)}, Args: args[1:]}
	}
	return &Call{Fun: st.funRef(f), Args: args}
}

// methodName names the method in a dynamic call. Objects dispatch through
// their vtable, virtuals through their fields.
func (st *funcState) methodName(t bytecode.RefType, slot int) string {
	if proto, err := st.p.Method(t, slot); err == nil {
		return st.p.StringName(proto.Name)
	}
	return st.p.FieldName(t, bytecode.RefField(slot))
}

// closure decompiles an anonymous function in place; named functions are
// referenced, bound to obj when given.
func (st *funcState) closure(f bytecode.RefFun, obj Expr) Expr {
	fn, err := st.p.GetFunction(f)
	if err == nil && !fn.HasName() && !st.active[f] {
		body := st.d.function(fn, st.active)
		return &Closure{Fun: f, Body: RunPasses(body, st.d.opts.Passes)}
	}
	if obj != nil {
		return &Field{X: obj, Name: st.p.FunctionName(f)}
	}
	return st.funRef(f)
}

// global reads a global slot. Globals initialized from a String constant
// read as that string literal; class objects read as their class name.
func (st *funcState) global(g bytecode.RefGlobal) (Expr, bool) {
	p := st.p
	t, err := p.GetGlobal(g)
	if err != nil {
		st.warnf("%v", err)
		return &Ident{Name: p.GlobalName(g)}, false
	}
	if c, ok := p.ConstantOf(g); ok && len(c.Fields) > 0 && p.TypeName(t) == "String" {
		if s, err := p.GetString(bytecode.RefString(c.Fields[0])); err == nil {
			return &Const{Kind: ConstString, Value: s}, true
		}
	}
	if ty, err := p.GetType(t); err == nil {
		switch ty.Kind {
		case bytecode.KindObj, bytecode.KindStruct, bytecode.KindEnum:
			return &Ident{Name: className(p.TypeName(t))}, false
		}
	}
	return &Ident{Name: p.GlobalName(g)}, false
}
