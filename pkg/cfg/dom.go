package cfg

// Dominator trees are computed with the iterative algorithm of Cooper,
// Harvey and Kennedy over reverse postorder.

// RPO returns the blocks reachable from the entry in reverse postorder.
func (g *Graph) RPO() []int {
	if g.rpo == nil && len(g.Blocks) > 0 {
		g.rpo = reversePostorder(len(g.Blocks), 0, g.Successors)
	}
	return g.rpo
}

// Reachable reports whether block b is reachable from the entry.
func (g *Graph) Reachable(b int) bool {
	idom := g.Dominators()
	return b >= 0 && b < len(idom) && (b == 0 || idom[b] >= 0)
}

func reversePostorder(n, root int, succs func(int) []int) []int {
	visited := make([]bool, n)
	post := make([]int, 0, n)
	type frame struct {
		node int
		next []int
	}
	stack := []frame{{root, succs(root)}}
	visited[root] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.next) == 0 {
			post = append(post, top.node)
			stack = stack[:len(stack)-1]
			continue
		}
		s := top.next[0]
		top.next = top.next[1:]
		if !visited[s] {
			visited[s] = true
			stack = append(stack, frame{s, succs(s)})
		}
	}
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// idoms computes immediate dominators for nodes reachable from order[0].
// Unreachable nodes get -1; the root dominates itself.
func idoms(n int, order []int, preds func(int) []int) []int {
	idom := make([]int, n)
	for i := range idom {
		idom[i] = -1
	}
	if len(order) == 0 {
		return idom
	}
	index := make([]int, n)
	for i := range index {
		index[i] = -1
	}
	for i, b := range order {
		index[b] = i
	}
	root := order[0]
	idom[root] = root

	intersect := func(a, b int) int {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}
			for index[b] > index[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range order[1:] {
			nd := -1
			for _, p := range preds(b) {
				if index[p] < 0 || idom[p] < 0 {
					continue
				}
				if nd < 0 {
					nd = p
				} else {
					nd = intersect(p, nd)
				}
			}
			if nd >= 0 && idom[b] != nd {
				idom[b] = nd
				changed = true
			}
		}
	}
	return idom
}

// Dominators returns the immediate dominator of every block. The entry is
// its own dominator and unreachable blocks have -1.
func (g *Graph) Dominators() []int {
	if g.idom == nil {
		g.idom = idoms(len(g.Blocks), g.RPO(), func(b int) []int { return g.Blocks[b].Preds })
	}
	return g.idom
}

// Dominates reports whether block a dominates block b.
func (g *Graph) Dominates(a, b int) bool {
	idom := g.Dominators()
	if b < 0 || b >= len(idom) || idom[b] < 0 {
		return false
	}
	for {
		if a == b {
			return true
		}
		if idom[b] == b {
			return false
		}
		b = idom[b]
	}
}

// Exit is the virtual block that post-dominates every returning block.
const Exit = -2

// PostDominators returns the immediate post-dominator of every block.
// Blocks whose only post-dominator is the function exit get Exit; blocks
// that cannot reach an exit, such as the body of an endless loop, get -1.
func (g *Graph) PostDominators() []int {
	if g.ipdom != nil {
		return g.ipdom
	}
	n := len(g.Blocks)
	exit := n
	// Reverse graph with a virtual exit node fed by every block with no
	// successors.
	rsuccs := make([][]int, n+1)
	rpreds := make([][]int, n+1)
	for _, b := range g.Blocks {
		succs := g.Successors(b.ID)
		if len(succs) == 0 {
			rsuccs[exit] = append(rsuccs[exit], b.ID)
			rpreds[b.ID] = append(rpreds[b.ID], exit)
		}
		for _, s := range succs {
			rsuccs[s] = append(rsuccs[s], b.ID)
			rpreds[b.ID] = append(rpreds[b.ID], s)
		}
	}
	order := reversePostorder(n+1, exit, func(b int) []int { return rsuccs[b] })
	raw := idoms(n+1, order, func(b int) []int { return rpreds[b] })

	g.ipdom = make([]int, n)
	for b := 0; b < n; b++ {
		switch raw[b] {
		case -1:
			g.ipdom[b] = -1
		case exit:
			g.ipdom[b] = Exit
		default:
			g.ipdom[b] = raw[b]
		}
	}
	return g.ipdom
}

// PostDominates reports whether block a post-dominates block b.
func (g *Graph) PostDominates(a, b int) bool {
	ipdom := g.PostDominators()
	for b >= 0 {
		if a == b {
			return true
		}
		b = ipdom[b]
	}
	return a == Exit && b == Exit
}
