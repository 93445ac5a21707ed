package cfg

import "sort"

// Loop is a natural loop: the header plus every block that reaches a latch
// without passing through the header.
type Loop struct {
	Header  int
	Latches []int
	// Body holds the loop's block IDs in ascending order, header included.
	Body []int
}

// Contains reports whether block b belongs to the loop.
func (l *Loop) Contains(b int) bool {
	i := sort.SearchInts(l.Body, b)
	return i < len(l.Body) && l.Body[i] == b
}

// Exits returns the edges leaving the loop, in block order.
func (g *Graph) Exits(l *Loop) []Edge {
	var out []Edge
	for _, b := range l.Body {
		for _, e := range g.Blocks[b].Succs {
			if !l.Contains(e.To) {
				out = append(out, e)
			}
		}
	}
	return out
}

// retreating returns edges found by depth-first search that point at a
// block still on the search stack.
func (g *Graph) retreating() []Edge {
	n := len(g.Blocks)
	if n == 0 {
		return nil
	}
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, n)
	var out []Edge
	type frame struct {
		node  int
		edges []Edge
	}
	stack := []frame{{0, g.Blocks[0].Succs}}
	color[0] = grey
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.edges) == 0 {
			color[top.node] = black
			stack = stack[:len(stack)-1]
			continue
		}
		e := top.edges[0]
		top.edges = top.edges[1:]
		switch color[e.To] {
		case grey:
			out = append(out, e)
		case white:
			color[e.To] = grey
			stack = append(stack, frame{e.To, g.Blocks[e.To].Succs})
		}
	}
	return out
}

// BackEdges returns the edges whose target dominates their source.
func (g *Graph) BackEdges() []Edge {
	var out []Edge
	for _, e := range g.retreating() {
		if g.Dominates(e.To, e.From) {
			out = append(out, e)
		}
	}
	return out
}

// Irreducible returns the retreating edges that are not back edges. They
// enter a cycle somewhere other than its header; a non-empty result means
// the graph is irreducible.
func (g *Graph) Irreducible() []Edge {
	var out []Edge
	for _, e := range g.retreating() {
		if !g.Dominates(e.To, e.From) {
			out = append(out, e)
		}
	}
	return out
}

// Reducible reports whether every cycle has a single entry.
func (g *Graph) Reducible() bool { return len(g.Irreducible()) == 0 }

// Loops returns the natural loops, one per header, ordered by header
// position. Back edges sharing a header are merged into one loop.
func (g *Graph) Loops() []*Loop {
	byHeader := make(map[int]*Loop)
	var headers []int
	for _, e := range g.BackEdges() {
		l, ok := byHeader[e.To]
		if !ok {
			l = &Loop{Header: e.To}
			byHeader[e.To] = l
			headers = append(headers, e.To)
		}
		if !containsInt(l.Latches, e.From) {
			l.Latches = append(l.Latches, e.From)
		}
	}
	sort.Ints(headers)

	loops := make([]*Loop, 0, len(headers))
	for _, h := range headers {
		l := byHeader[h]
		in := map[int]bool{h: true}
		work := append([]int(nil), l.Latches...)
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			if in[b] || !g.Reachable(b) {
				continue
			}
			in[b] = true
			work = append(work, g.Blocks[b].Preds...)
		}
		for b := range in {
			l.Body = append(l.Body, b)
		}
		sort.Ints(l.Body)
		sort.Ints(l.Latches)
		loops = append(loops, l)
	}
	return loops
}

// LoopOf returns the innermost loop containing block b, or nil.
func (g *Graph) LoopOf(loops []*Loop, b int) *Loop {
	var best *Loop
	for _, l := range loops {
		if l.Contains(b) && (best == nil || len(l.Body) < len(best.Body)) {
			best = l
		}
	}
	return best
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
