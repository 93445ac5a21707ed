// Package cfg partitions a function's instructions into basic blocks and
// derives the edges, dominators and natural loops used to structure them.
package cfg

import (
	"fmt"
	"strings"

	"github.com/chazu/hlbc/pkg/bytecode"
)

// EdgeKind tells why control moves from one block to another.
type EdgeKind uint8

const (
	EdgeFallthrough EdgeKind = iota // next instruction
	EdgeJump                        // unconditional jump
	EdgeTaken                       // conditional jump taken
	EdgeNotTaken                    // conditional jump not taken
	EdgeCase                        // switch case, Edge.Case holds the value
	EdgeDefault                     // switch selector out of range
	EdgeTry                         // entry of a trap-protected region
	EdgeHandler                     // exception handler of a trap
)

var edgeKindNames = [...]string{"fallthrough", "jump", "taken", "not-taken", "case", "default", "try", "handler"}

func (k EdgeKind) String() string {
	if int(k) < len(edgeKindNames) {
		return edgeKindNames[k]
	}
	return fmt.Sprintf("edge(%d)", uint8(k))
}

// Edge is a directed control transfer between blocks, by block ID.
type Edge struct {
	From int
	To   int
	Kind EdgeKind
	Case int
}

// Block is a maximal straight-line run of instructions [Start, End).
type Block struct {
	ID    int
	Start int
	End   int
	// Succs is ordered: taken before not-taken, cases by value before the
	// default, try body before handler.
	Succs []Edge
	Preds []int
}

// Last returns the position of the block's final instruction.
func (b *Block) Last() int { return b.End - 1 }

// Len returns the number of instructions in the block.
func (b *Block) Len() int { return b.End - b.Start }

// Graph is the control-flow graph of one function. Block 0 is the entry.
type Graph struct {
	Fn     *bytecode.Function
	Blocks []*Block
	// BadTargets lists instruction positions whose jump target lies outside
	// the function. Their out-of-range edges are dropped.
	BadTargets []int

	blockOf []int

	idom  []int
	ipdom []int
	rpo   []int
}

// Build computes the control-flow graph of fn.
func Build(fn *bytecode.Function) *Graph {
	g := &Graph{Fn: fn}
	n := len(fn.Ops)
	if n == 0 {
		return g
	}

	leader := make([]bool, n)
	leader[0] = true
	mark := func(pos int) {
		if pos >= 0 && pos < n {
			leader[pos] = true
		}
	}
	for pos := range fn.Ops {
		ins := &fn.Ops[pos]
		if endsBlock(ins.Op) {
			mark(pos + 1)
		}
		bad := false
		for _, t := range ins.Targets(pos) {
			if t < 0 || t >= n {
				bad = true
				continue
			}
			mark(t)
		}
		if bad {
			g.BadTargets = append(g.BadTargets, pos)
		}
	}

	g.blockOf = make([]int, n)
	for pos := 0; pos < n; pos++ {
		if leader[pos] {
			g.Blocks = append(g.Blocks, &Block{ID: len(g.Blocks), Start: pos})
		}
		g.blockOf[pos] = len(g.Blocks) - 1
	}
	for i, b := range g.Blocks {
		if i+1 < len(g.Blocks) {
			b.End = g.Blocks[i+1].Start
		} else {
			b.End = n
		}
	}

	for _, b := range g.Blocks {
		g.connect(b)
	}
	return g
}

func endsBlock(op bytecode.Opcode) bool {
	return op.Has(bytecode.FlagCondJump) || op.Has(bytecode.FlagJump) || op.Has(bytecode.FlagSwitch) ||
		op.Has(bytecode.FlagTerminator) || op.Has(bytecode.FlagTrap)
}

func (g *Graph) connect(b *Block) {
	pos := b.Last()
	ins := &g.Fn.Ops[pos]
	n := len(g.Fn.Ops)
	add := func(target int, kind EdgeKind, c int) {
		if target < 0 || target >= n {
			return
		}
		to := g.blockOf[target]
		b.Succs = append(b.Succs, Edge{From: b.ID, To: to, Kind: kind, Case: c})
		pred := g.Blocks[to]
		for _, p := range pred.Preds {
			if p == b.ID {
				return
			}
		}
		pred.Preds = append(pred.Preds, b.ID)
	}

	switch op := ins.Op; {
	case op.Has(bytecode.FlagCondJump):
		add(ins.Targets(pos)[0], EdgeTaken, 0)
		add(pos+1, EdgeNotTaken, 0)
	case op.Has(bytecode.FlagJump):
		add(ins.Targets(pos)[0], EdgeJump, 0)
	case op.Has(bytecode.FlagSwitch):
		for i, off := range ins.List {
			add(pos+int(off)+1, EdgeCase, i)
		}
		add(pos+1, EdgeDefault, 0)
	case op.Has(bytecode.FlagTrap):
		add(pos+1, EdgeTry, 0)
		add(ins.Targets(pos)[0], EdgeHandler, 0)
	case op.Has(bytecode.FlagTerminator):
	default:
		add(pos+1, EdgeFallthrough, 0)
	}
}

// Edges returns every edge, grouped by source block in block order.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, b := range g.Blocks {
		edges = append(edges, b.Succs...)
	}
	return edges
}

// BlockAt returns the block starting at pos.
func (g *Graph) BlockAt(pos int) (*Block, bool) {
	if pos < 0 || pos >= len(g.blockOf) {
		return nil, false
	}
	b := g.Blocks[g.blockOf[pos]]
	return b, b.Start == pos
}

// BlockOf returns the block containing pos.
func (g *Graph) BlockOf(pos int) (*Block, bool) {
	if pos < 0 || pos >= len(g.blockOf) {
		return nil, false
	}
	return g.Blocks[g.blockOf[pos]], true
}

// Successors returns the distinct successor block IDs of b in edge order.
func (g *Graph) Successors(b int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, e := range g.Blocks[b].Succs {
		if !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	return out
}

// String renders the graph as one line per block, for debugging and tests.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, b := range g.Blocks {
		fmt.Fprintf(&sb, "b%d [%d, %d)", b.ID, b.Start, b.End)
		for _, e := range b.Succs {
			fmt.Fprintf(&sb, " -%s-> b%d", e.Kind, e.To)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
