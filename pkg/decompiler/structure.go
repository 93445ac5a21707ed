package decompiler

import (
	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/cfg"
)

// loopCtx is one enclosing loop while its body is structured.
type loopCtx struct {
	header int
	cont   int // block a continue jumps to
	follow int // block after the loop, -1 if none
	loop   *cfg.Loop
	outer  *loopCtx
}

type structurer struct {
	st      *funcState
	g       *cfg.Graph
	ipdom   []int
	headers map[int]*cfg.Loop
	visited []bool
	results []*blockResult
}

// structure lays the function's blocks out as nested statements.
func (st *funcState) structure() []Stmt {
	g := st.g
	if len(g.Blocks) == 0 {
		return nil
	}
	s := &structurer{
		st:      st,
		g:       g,
		ipdom:   g.PostDominators(),
		headers: make(map[int]*cfg.Loop),
		visited: make([]bool, len(g.Blocks)),
		results: make([]*blockResult, len(g.Blocks)),
	}
	for _, l := range g.Loops() {
		s.headers[l.Header] = l
	}
	out := s.region(0, -1, nil)
	out = tidy(out)
	out = hoistDecls(out)
	out = pruneLabels(out)
	if last, i := lastStmt(out); i >= 0 {
		if r, ok := last.(*Return); ok && r.Value == nil {
			out = append(out[:i:i], out[i+1:]...)
		}
	}
	return out
}

func (s *structurer) result(b int) *blockResult {
	if s.results[b] == nil {
		res := s.st.block(s.g.Blocks[b])
		s.results[b] = &res
	}
	return s.results[b]
}

func (s *structurer) emit(b int) []Stmt {
	s.visited[b] = true
	res := s.result(b)
	out := make([]Stmt, 0, len(res.stmts)+1)
	out = append(out, &Label{Pos: s.g.Blocks[b].Start})
	return append(out, res.stmts...)
}

func (s *structurer) gotoBlock(b int) Stmt {
	pos := s.g.Blocks[b].Start
	s.st.warnf("unstructured jump to %d", pos)
	return &Goto{Pos: pos}
}

// transfer translates a jump to block next. done reports that the jump was
// fully expressed and the region ends.
func (s *structurer) transfer(next, stop int, ctx *loopCtx) (stmts []Stmt, done bool) {
	if next == stop {
		return nil, true
	}
	if t, ok := s.control(next, ctx); ok {
		return []Stmt{t}, true
	}
	if s.visited[next] {
		return []Stmt{s.gotoBlock(next)}, true
	}
	return nil, false
}

// control returns the statement jumping to a loop's continue or follow block.
func (s *structurer) control(next int, ctx *loopCtx) (Stmt, bool) {
	for c := ctx; c != nil; c = c.outer {
		switch next {
		case c.cont:
			if c == ctx {
				return &Continue{}, true
			}
			return s.gotoBlock(next), true
		case c.follow:
			if c == ctx {
				return &Break{}, true
			}
			return s.gotoBlock(next), true
		}
	}
	return nil, false
}

func (s *structurer) isControl(b int, ctx *loopCtx) bool {
	for c := ctx; c != nil; c = c.outer {
		if b == c.cont || b == c.follow || b == c.header {
			return true
		}
	}
	return false
}

func (s *structurer) inScope(b int, ctx *loopCtx) bool {
	return ctx == nil || ctx.loop.Contains(b)
}

// arm structures a branch starting at start up to join.
func (s *structurer) arm(start, join int, ctx *loopCtx) []Stmt {
	if t, done := s.transfer(start, join, ctx); done {
		return t
	}
	return s.region(start, join, ctx)
}

// reaches reports whether to is reachable from from without leaving the
// current loop or passing its header.
func (s *structurer) reaches(from, to int, ctx *loopCtx) bool {
	seen := make([]bool, len(s.g.Blocks))
	work := []int{from}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if b == to {
			return true
		}
		if seen[b] || !s.inScope(b, ctx) || (ctx != nil && b == ctx.header) {
			continue
		}
		seen[b] = true
		work = append(work, s.g.Successors(b)...)
	}
	return false
}

// join picks the block where the arms of a branch at b meet again.
func (s *structurer) join(b int, arms []int, ctx *loopCtx) int {
	j := s.ipdom[b]
	if j >= 0 && !s.isControl(j, ctx) && s.inScope(j, ctx) {
		return j
	}
	if len(arms) == 2 {
		t, f := arms[0], arms[1]
		switch {
		case s.reaches(f, t, ctx):
			return t
		case s.reaches(t, f, ctx):
			return f
		}
	}
	return -1
}

// region structures the blocks from start until stop or until control
// leaves the region.
func (s *structurer) region(start, stop int, ctx *loopCtx) []Stmt {
	var out []Stmt
	for b, first := start, true; b >= 0; first = false {
		if !first {
			if t, done := s.transfer(b, stop, ctx); done {
				return append(out, t...)
			}
		} else if b == stop {
			return out
		}
		if s.visited[b] {
			return append(out, s.gotoBlock(b))
		}
		if l := s.headers[b]; l != nil && (ctx == nil || ctx.header != b) {
			stmts, next := s.loop(l, ctx)
			out = append(out, stmts...)
			b = next
			continue
		}

		out = append(out, s.emit(b)...)
		res := s.result(b)
		blk := s.g.Blocks[b]
		switch res.end {
		case endLeave:
			return out
		case endCond:
			stmts, next := s.cond(b, res, ctx)
			out = append(out, stmts...)
			b = next
		case endSwitch:
			stmts, next := s.switchStmt(b, res, ctx)
			out = append(out, stmts...)
			b = next
		case endTrap:
			stmts, next := s.try(b, res, ctx)
			out = append(out, stmts...)
			b = next
		default:
			if len(blk.Succs) == 0 {
				return out
			}
			b = blk.Succs[0].To
		}
	}
	return out
}

func branches(blk *cfg.Block) (taken, notTaken int) {
	taken, notTaken = -1, -1
	for _, e := range blk.Succs {
		switch e.Kind {
		case cfg.EdgeTaken:
			taken = e.To
		case cfg.EdgeNotTaken:
			notTaken = e.To
		}
	}
	return taken, notTaken
}

func (s *structurer) cond(b int, res *blockResult, ctx *loopCtx) ([]Stmt, int) {
	taken, notTaken := branches(s.g.Blocks[b])
	if taken < 0 || taken == notTaken {
		return discard(res.cond), notTaken
	}
	if notTaken < 0 {
		return discard(res.cond), taken
	}
	if t, ok := s.control(taken, ctx); ok {
		return []Stmt{&If{Cond: res.cond, Then: []Stmt{t}}}, notTaken
	}
	if t, ok := s.control(notTaken, ctx); ok {
		return []Stmt{&If{Cond: Not(res.cond), Then: []Stmt{t}}}, taken
	}

	join := s.join(b, []int{taken, notTaken}, ctx)
	then := s.arm(notTaken, join, ctx)
	els := s.arm(taken, join, ctx)
	cond := Not(res.cond)
	if isEmpty(then) {
		then, els, cond = els, then, res.cond
	}
	var out []Stmt
	if isEmpty(els) {
		out = append(out, els...)
		els = nil
	}
	if isEmpty(then) {
		out = append(out, discard(res.cond)...)
		return append(out, then...), join
	}
	return append(out, &If{Cond: cond, Then: then, Else: els}), join
}

func (s *structurer) switchStmt(b int, res *blockResult, ctx *loopCtx) ([]Stmt, int) {
	blk := s.g.Blocks[b]
	join := s.join(b, nil, ctx)
	if join < 0 {
		ins := &s.st.fn.Ops[blk.Last()]
		if end, ok := s.g.BlockAt(blk.Last() + int(ins.Arg(1)) + 1); ok && s.inScope(end.ID, ctx) && !s.isControl(end.ID, ctx) {
			join = end.ID
		}
	}

	sw := &Switch{Arg: res.cond}
	index := make(map[int]int)
	var order []int
	deflt := -1
	for _, e := range blk.Succs {
		switch e.Kind {
		case cfg.EdgeCase:
			i, ok := index[e.To]
			if !ok {
				i = len(sw.Cases)
				index[e.To] = i
				order = append(order, e.To)
				sw.Cases = append(sw.Cases, Case{})
			}
			sw.Cases[i].Values = append(sw.Cases[i].Values, e.Case)
		case cfg.EdgeDefault:
			deflt = e.To
		}
	}
	for i, to := range order {
		sw.Cases[i].Body = s.arm(to, join, ctx)
	}
	if deflt >= 0 {
		if _, seen := index[deflt]; !seen {
			sw.Default = s.arm(deflt, join, ctx)
		}
	}
	return []Stmt{sw}, join
}

func (s *structurer) try(b int, res *blockResult, ctx *loopCtx) ([]Stmt, int) {
	body, handler := -1, -1
	for _, e := range s.g.Blocks[b].Succs {
		switch e.Kind {
		case cfg.EdgeTry:
			body = e.To
		case cfg.EdgeHandler:
			handler = e.To
		}
	}
	st := s.st
	if int(res.exc) >= 0 && int(res.exc) < len(st.declared) {
		st.declared[res.exc] = true
	}
	join := s.join(b, []int{handler, body}, ctx)
	t := &Try{Exc: st.reg(res.exc)}
	if body >= 0 {
		t.Body = s.arm(body, join, ctx)
	}
	if handler >= 0 {
		t.Catch = s.arm(handler, join, ctx)
	}
	return []Stmt{t}, join
}

// loop structures the natural loop l and returns the block following it.
func (s *structurer) loop(l *cfg.Loop, ctx *loopCtx) ([]Stmt, int) {
	g := s.g
	h := l.Header
	lc := &loopCtx{header: h, follow: s.follow(l), loop: l, outer: ctx}
	label := &Label{Pos: g.Blocks[h].Start}

	// while (cond): the header only evaluates the exit test.
	if res := s.result(h); res.end == endCond && len(res.stmts) == 0 {
		taken, notTaken := branches(g.Blocks[h])
		var cond Expr
		body := -1
		switch {
		case notTaken == lc.follow && l.Contains(taken):
			cond, body = res.cond, taken
		case taken == lc.follow && l.Contains(notTaken):
			cond, body = Not(res.cond), notTaken
		}
		if cond != nil {
			s.visited[h] = true
			lc.cont = h
			stmts := s.arm(body, h, lc)
			return []Stmt{label, &While{Cond: cond, Body: stripContinue(stmts)}}, lc.follow
		}
	}

	// do {} while (cond): the single latch tests the back edge.
	if len(l.Latches) == 1 {
		latch := l.Latches[0]
		if res := s.result(latch); res.end == endCond {
			taken, notTaken := branches(g.Blocks[latch])
			var cond Expr
			switch {
			case taken == h && notTaken == lc.follow:
				cond = res.cond
			case notTaken == h && taken == lc.follow:
				cond = Not(res.cond)
			}
			if cond != nil {
				lc.cont = latch
				var body []Stmt
				if latch != h {
					body = s.region(h, latch, lc)
				}
				body = append(body, s.emit(latch)...)
				return []Stmt{&DoWhile{Body: stripContinue(body), Cond: cond}}, lc.follow
			}
		}
	}

	lc.cont = h
	body := s.region(h, -1, lc)
	return []Stmt{&While{Cond: &Const{Kind: ConstBool, Value: "true"}, Body: stripContinue(body)}}, lc.follow
}

// follow picks the block control reaches after leaving l: the header's exit,
// else the latch's exit, else the earliest exit that does not end the
// function.
func (s *structurer) follow(l *cfg.Loop) int {
	exits := s.g.Exits(l)
	for _, e := range exits {
		if e.From == l.Header {
			return e.To
		}
	}
	for _, e := range exits {
		if containsBlock(l.Latches, e.From) {
			return e.To
		}
	}
	best := -1
	for _, e := range exits {
		if s.terminal(e.To) {
			continue
		}
		if best < 0 || s.g.Blocks[e.To].Start < s.g.Blocks[best].Start {
			best = e.To
		}
	}
	return best
}

func (s *structurer) terminal(b int) bool {
	blk := s.g.Blocks[b]
	return len(blk.Succs) == 0 && s.st.fn.Ops[blk.Last()].Op.Has(bytecode.FlagTerminator)
}

func containsBlock(list []int, b int) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Cleanups
// ---------------------------------------------------------------------------

// discard keeps the side effects of a condition whose branch vanished.
func discard(cond Expr) []Stmt {
	for {
		u, ok := cond.(*Unary)
		if !ok || u.Op != OpNot {
			break
		}
		cond = u.X
	}
	if cond == nil || !hasEffect(cond) {
		return nil
	}
	return []Stmt{&ExprStmt{X: cond}}
}

// hasEffect reports whether evaluating x may do more than read values.
func hasEffect(x Expr) bool {
	found := false
	rw := &rewriter{expr: func(x Expr) Expr {
		switch x.(type) {
		case *Call, *Unknown, *NewExpr:
			found = true
		}
		return x
	}}
	rw.e(x)
	return found
}

// isEmpty reports whether list holds nothing but markers.
func isEmpty(list []Stmt) bool {
	for _, s := range list {
		switch s.(type) {
		case *Label, *SourceLine:
		default:
			return false
		}
	}
	return true
}

// stripContinue drops a continue that ends a loop body.
func stripContinue(body []Stmt) []Stmt {
	last, i := lastStmt(body)
	switch n := last.(type) {
	case *Continue:
		return append(body[:i:i], body[i+1:]...)
	case *If:
		n.Then = stripContinue(n.Then)
		n.Else = stripContinue(n.Else)
	}
	return body
}

// tidy moves the else arm of an if whose then arm always leaves after it.
func tidy(list []Stmt) []Stmt {
	out := make([]Stmt, 0, len(list))
	for _, st := range list {
		switch n := st.(type) {
		case *If:
			n.Then = tidy(n.Then)
			n.Else = tidy(n.Else)
			if len(n.Else) > 0 && leaves(n.Then) {
				els := n.Else
				n.Else = nil
				out = append(out, n)
				out = append(out, els...)
				continue
			}
		case *While:
			n.Body = tidy(n.Body)
		case *DoWhile:
			n.Body = tidy(n.Body)
		case *Switch:
			for i := range n.Cases {
				n.Cases[i].Body = tidy(n.Cases[i].Body)
			}
			n.Default = tidy(n.Default)
		case *Try:
			n.Body = tidy(n.Body)
			n.Catch = tidy(n.Catch)
		}
		out = append(out, st)
	}
	return out
}

// hoistDecls moves the declaration of a register out of a nested body, in
// front of the statement holding that body, when the register is also used
// outside the body.
func hoistDecls(list []Stmt) []Stmt {
	var total map[bytecode.Reg]int
	out := make([]Stmt, 0, len(list))
	for _, st := range list {
		hoisted := make(map[bytecode.Reg]bool)
		for _, body := range nestedBodies(st) {
			var inner map[bytecode.Reg]int
			walkStmts(body, func(s Stmt) {
				a, ok := s.(*Assign)
				if !ok || !a.Declare {
					return
				}
				v, ok := a.Target.(*Var)
				if !ok {
					return
				}
				if total == nil {
					total = regRefs(list)
				}
				if inner == nil {
					inner = regRefs(body)
				}
				if total[v.Reg] == inner[v.Reg] {
					return
				}
				a.Declare = false
				if !hoisted[v.Reg] {
					hoisted[v.Reg] = true
					out = append(out, &VarDecl{Var: v})
				}
			})
		}
		switch n := st.(type) {
		case *If:
			n.Then = hoistDecls(n.Then)
			n.Else = hoistDecls(n.Else)
		case *While:
			n.Body = hoistDecls(n.Body)
		case *DoWhile:
			n.Body = hoistDecls(n.Body)
		case *Switch:
			for i := range n.Cases {
				n.Cases[i].Body = hoistDecls(n.Cases[i].Body)
			}
			n.Default = hoistDecls(n.Default)
		case *Try:
			n.Body = hoistDecls(n.Body)
			n.Catch = hoistDecls(n.Catch)
		}
		out = append(out, st)
	}
	return out
}

func nestedBodies(s Stmt) [][]Stmt {
	switch n := s.(type) {
	case *If:
		return [][]Stmt{n.Then, n.Else}
	case *While:
		return [][]Stmt{n.Body}
	case *DoWhile:
		return [][]Stmt{n.Body}
	case *Switch:
		bodies := make([][]Stmt, 0, len(n.Cases)+1)
		for _, c := range n.Cases {
			bodies = append(bodies, c.Body)
		}
		return append(bodies, n.Default)
	case *Try:
		return [][]Stmt{n.Body, n.Catch}
	}
	return nil
}

// regRefs counts the occurrences of each register in list and its nested
// bodies. Closure bodies are not entered.
func regRefs(list []Stmt) map[bytecode.Reg]int {
	counts := make(map[bytecode.Reg]int)
	rw := &rewriter{expr: func(x Expr) Expr {
		if v, ok := x.(*Var); ok {
			counts[v.Reg]++
		}
		return x
	}}
	walkStmts(list, func(s Stmt) {
		switch n := s.(type) {
		case *Assign:
			rw.e(n.Target)
			rw.e(n.Value)
		case *ExprStmt:
			rw.e(n.X)
		case *Return:
			rw.e(n.Value)
		case *If:
			rw.e(n.Cond)
		case *While:
			rw.e(n.Cond)
		case *DoWhile:
			rw.e(n.Cond)
		case *Switch:
			rw.e(n.Arg)
		case *Throw:
			rw.e(n.X)
		case *Try:
			if n.Exc != nil {
				counts[n.Exc.Reg]++
			}
		}
	})
	return counts
}

// pruneLabels removes labels no goto targets.
func pruneLabels(list []Stmt) []Stmt {
	targets := make(map[int]bool)
	walkStmts(list, func(s Stmt) {
		if g, ok := s.(*Goto); ok {
			targets[g.Pos] = true
		}
	})
	return filterLabels(list, targets)
}

func filterLabels(list []Stmt, targets map[int]bool) []Stmt {
	out := list[:0]
	for _, st := range list {
		switch n := st.(type) {
		case *Label:
			if !targets[n.Pos] {
				continue
			}
		case *If:
			n.Then = filterLabels(n.Then, targets)
			n.Else = filterLabels(n.Else, targets)
		case *While:
			n.Body = filterLabels(n.Body, targets)
		case *DoWhile:
			n.Body = filterLabels(n.Body, targets)
		case *Switch:
			for i := range n.Cases {
				n.Cases[i].Body = filterLabels(n.Cases[i].Body, targets)
			}
			n.Default = filterLabels(n.Default, targets)
		case *Try:
			n.Body = filterLabels(n.Body, targets)
			n.Catch = filterLabels(n.Catch, targets)
		}
		out = append(out, st)
	}
	return out
}

// walkStmts calls fn for every statement of list and its nested bodies,
// outer statements first.
func walkStmts(list []Stmt, fn func(Stmt)) {
	for _, st := range list {
		fn(st)
		switch n := st.(type) {
		case *If:
			walkStmts(n.Then, fn)
			walkStmts(n.Else, fn)
		case *While:
			walkStmts(n.Body, fn)
		case *DoWhile:
			walkStmts(n.Body, fn)
		case *Switch:
			for _, c := range n.Cases {
				walkStmts(c.Body, fn)
			}
			walkStmts(n.Default, fn)
		case *Try:
			walkStmts(n.Body, fn)
			walkStmts(n.Catch, fn)
		}
	}
}
