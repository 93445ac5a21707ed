package decompiler

import (
	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/chazu/hlbc/pkg/cfg"
)

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)      { b[i/64] |= 1 << (uint(i) % 64) }
func (b bitset) has(i int) bool { return b[i/64]&(1<<(uint(i)%64)) != 0 }

// union adds o to b and reports whether b changed.
func (b bitset) union(o bitset) bool {
	changed := false
	for i := range b {
		if n := b[i] | o[i]; n != b[i] {
			b[i] = n
			changed = true
		}
	}
	return changed
}

// dataflow summarizes, per instruction position, how the value it defines
// is consumed.
type dataflow struct {
	// uses counts the reads of the defined value inside its own block.
	uses []int
	// liveOut is set when the defined value is still read after its block.
	liveOut []bool
}

// effectiveReads are the register reads that reach the output. A null check
// prints nothing, so its read never keeps a value alive.
func effectiveReads(ins *bytecode.Instr, nregs int) []bytecode.Reg {
	if ins.Op == bytecode.OpNullCheck {
		return nil
	}
	regs := ins.Reads()
	out := regs[:0]
	for _, r := range regs {
		if r >= 0 && int(r) < nregs {
			out = append(out, r)
		}
	}
	return out
}

func effectiveDst(ins *bytecode.Instr, nregs int) (bytecode.Reg, bool) {
	r, ok := ins.Dst()
	if !ok || r < 0 || int(r) >= nregs {
		return 0, false
	}
	return r, true
}

func analyze(fn *bytecode.Function, g *cfg.Graph) *dataflow {
	n := len(fn.Ops)
	nregs := len(fn.Regs)
	df := &dataflow{uses: make([]int, n), liveOut: make([]bool, n)}
	if len(g.Blocks) == 0 {
		return df
	}

	gen := make([]bitset, len(g.Blocks))
	kill := make([]bitset, len(g.Blocks))
	for _, b := range g.Blocks {
		gen[b.ID], kill[b.ID] = newBitset(nregs), newBitset(nregs)
		for pos := b.Start; pos < b.End; pos++ {
			ins := &fn.Ops[pos]
			for _, r := range effectiveReads(ins, nregs) {
				if !kill[b.ID].has(int(r)) {
					gen[b.ID].set(int(r))
				}
			}
			if r, ok := effectiveDst(ins, nregs); ok {
				kill[b.ID].set(int(r))
			}
		}
	}

	liveIn := make([]bitset, len(g.Blocks))
	liveOut := make([]bitset, len(g.Blocks))
	for i := range g.Blocks {
		liveIn[i], liveOut[i] = newBitset(nregs), newBitset(nregs)
	}
	for changed := true; changed; {
		changed = false
		for i := len(g.Blocks) - 1; i >= 0; i-- {
			for _, s := range g.Successors(i) {
				liveOut[i].union(liveIn[s])
			}
			in := newBitset(nregs)
			for w := range in {
				in[w] = gen[i][w] | (liveOut[i][w] &^ kill[i][w])
			}
			if liveIn[i].union(in) {
				changed = true
			}
		}
	}

	lastDef := make([]int, nregs)
	for _, b := range g.Blocks {
		for i := range lastDef {
			lastDef[i] = -1
		}
		for pos := b.Start; pos < b.End; pos++ {
			ins := &fn.Ops[pos]
			for _, r := range effectiveReads(ins, nregs) {
				if d := lastDef[r]; d >= 0 {
					df.uses[d]++
				}
			}
			if r, ok := effectiveDst(ins, nregs); ok {
				lastDef[r] = pos
			}
		}
		for r, d := range lastDef {
			if d >= 0 && liveOut[b.ID].has(r) {
				df.liveOut[d] = true
			}
		}
	}
	return df
}
