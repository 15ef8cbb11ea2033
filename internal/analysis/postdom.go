package analysis

import (
	"slices"

	"luadec/internal/ir"
)

// Exit is the virtual node every sink of a post-dominance graph flows into.
const Exit ir.BlockID = -2

// PostDominance is the post-dominator tree of a graph given by a successor
// function. Blocks without successors flow into Exit.
type PostDominance struct {
	ipdom    map[ir.BlockID]ir.BlockID
	rpoIndex map[ir.BlockID]int
}

// ComputePostDominance runs the iterative dominator algorithm on the
// reverse of the graph spanned by nodes and succ. Nodes that cannot reach a
// sink have no post-dominator.
func ComputePostDominance(nodes []ir.BlockID, succ func(ir.BlockID) []ir.BlockID) *PostDominance {
	out := make(map[ir.BlockID][]ir.BlockID, len(nodes)+1)
	preds := make(map[ir.BlockID][]ir.BlockID, len(nodes)+1)
	for _, n := range nodes {
		ss := succ(n)
		if len(ss) == 0 {
			ss = []ir.BlockID{Exit}
		}
		out[n] = ss
		for _, s := range ss {
			preds[s] = append(preds[s], n)
		}
	}

	// Post-order of the reverse graph, walking predecessor edges from Exit.
	var order []ir.BlockID
	visited := map[ir.BlockID]bool{Exit: true}
	type frame struct {
		id   ir.BlockID
		next int
	}
	stack := []frame{{id: Exit}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		ps := preds[top.id]
		if top.next < len(ps) {
			p := ps[top.next]
			top.next++
			if !visited[p] {
				visited[p] = true
				stack = append(stack, frame{id: p})
			}
			continue
		}
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}
	slices.Reverse(order)

	pd := &PostDominance{
		ipdom:    map[ir.BlockID]ir.BlockID{Exit: Exit},
		rpoIndex: make(map[ir.BlockID]int, len(order)),
	}
	for i, id := range order {
		pd.rpoIndex[id] = i
	}
	for changed := true; changed; {
		changed = false
		for _, id := range order[1:] {
			newIdom := ir.NoBlock
			for _, s := range out[id] {
				if _, done := pd.ipdom[s]; !done {
					continue
				}
				if newIdom == ir.NoBlock {
					newIdom = s
				} else {
					newIdom = pd.intersect(s, newIdom)
				}
			}
			if newIdom != ir.NoBlock && pd.ipdom[id] != newIdom {
				pd.ipdom[id] = newIdom
				changed = true
			}
		}
	}
	return pd
}

func (pd *PostDominance) intersect(a, b ir.BlockID) ir.BlockID {
	for a != b {
		for pd.rpoIndex[a] > pd.rpoIndex[b] {
			a = pd.ipdom[a]
		}
		for pd.rpoIndex[b] > pd.rpoIndex[a] {
			b = pd.ipdom[b]
		}
	}
	return a
}

// ImmediatePostDominator returns the nearest strict post-dominator of id,
// Exit when only the virtual exit post-dominates it, or NoBlock when id
// never reaches a sink.
func (pd *PostDominance) ImmediatePostDominator(id ir.BlockID) ir.BlockID {
	p, ok := pd.ipdom[id]
	if !ok || id == Exit {
		return ir.NoBlock
	}
	return p
}

// PostDominates reports whether every path from b to the exit passes
// through a.
func (pd *PostDominance) PostDominates(a, b ir.BlockID) bool {
	if _, ok := pd.ipdom[b]; !ok {
		return false
	}
	for {
		if a == b {
			return true
		}
		if b == Exit {
			return false
		}
		b = pd.ipdom[b]
	}
}
