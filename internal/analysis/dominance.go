package analysis

import (
	"slices"

	"luadec/internal/ir"
)

// Dominance holds the dominator tree and dominance frontiers of one
// function, computed with the Cooper-Harvey-Kennedy iterative algorithm
// over reverse post-order numbers. Every slice is indexed by block id.
type Dominance struct {
	generation uint64
	entry      ir.BlockID
	rpo        []ir.BlockID
	rpoIndex   []int
	idom       []ir.BlockID
	children   [][]ir.BlockID
	frontier   [][]ir.BlockID
	pre, post  []int
}

// ComputeDominance analyzes f. Blocks unreachable from the entry have no
// dominator and dominate nothing.
func ComputeDominance(f *ir.Function) *Dominance {
	n := f.ArenaSize()
	d := &Dominance{
		generation: f.Generation(),
		entry:      f.Entry,
		rpoIndex:   make([]int, n),
		idom:       make([]ir.BlockID, n),
		children:   make([][]ir.BlockID, n),
		frontier:   make([][]ir.BlockID, n),
		pre:        make([]int, n),
		post:       make([]int, n),
	}
	for i := range n {
		d.rpoIndex[i] = -1
		d.idom[i] = ir.NoBlock
	}
	if f.Entry == ir.NoBlock {
		return d
	}

	d.rpo = ReversePostOrder(f)
	for i, id := range d.rpo {
		d.rpoIndex[id] = i
	}

	d.idom[f.Entry] = f.Entry
	for changed := true; changed; {
		changed = false
		for _, id := range d.rpo[1:] {
			newIdom := ir.NoBlock
			for _, p := range f.Block(id).Predecessors {
				if d.rpoIndex[p] < 0 || d.idom[p] == ir.NoBlock {
					continue
				}
				if newIdom == ir.NoBlock {
					newIdom = p
				} else {
					newIdom = d.intersect(p, newIdom)
				}
			}
			if newIdom != d.idom[id] {
				d.idom[id] = newIdom
				changed = true
			}
		}
	}
	d.idom[f.Entry] = ir.NoBlock

	for _, id := range d.rpo[1:] {
		if parent := d.idom[id]; parent != ir.NoBlock {
			d.children[parent] = append(d.children[parent], id)
		}
	}

	for _, id := range d.rpo {
		preds := f.Block(id).Predecessors
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			if d.rpoIndex[p] < 0 {
				continue
			}
			for runner := p; runner != ir.NoBlock && runner != d.idom[id]; runner = d.idom[runner] {
				if !slices.Contains(d.frontier[runner], id) {
					d.frontier[runner] = append(d.frontier[runner], id)
				}
			}
		}
	}
	for i := range d.frontier {
		slices.SortFunc(d.frontier[i], func(a, b ir.BlockID) int { return d.rpoIndex[a] - d.rpoIndex[b] })
	}

	clock := 0
	var number func(id ir.BlockID)
	number = func(id ir.BlockID) {
		clock++
		d.pre[id] = clock
		for _, c := range d.children[id] {
			number(c)
		}
		clock++
		d.post[id] = clock
	}
	number(f.Entry)
	return d
}

func (d *Dominance) intersect(a, b ir.BlockID) ir.BlockID {
	for a != b {
		for d.rpoIndex[a] > d.rpoIndex[b] {
			a = d.idom[a]
		}
		for d.rpoIndex[b] > d.rpoIndex[a] {
			b = d.idom[b]
		}
	}
	return a
}

// Generation is the function generation the analysis was computed at.
func (d *Dominance) Generation() uint64 { return d.generation }

// Reachable reports whether id is reachable from the entry.
func (d *Dominance) Reachable(id ir.BlockID) bool {
	return d.valid(id) && d.rpoIndex[id] >= 0
}

func (d *Dominance) valid(id ir.BlockID) bool {
	return id >= 0 && int(id) < len(d.rpoIndex)
}

// ImmediateDominator returns the parent of id in the dominator tree, or
// NoBlock for the entry and unreachable blocks.
func (d *Dominance) ImmediateDominator(id ir.BlockID) ir.BlockID {
	if !d.valid(id) {
		return ir.NoBlock
	}
	return d.idom[id]
}

// Dominates reports whether every path from the entry to b passes a.
// Every reachable block dominates itself.
func (d *Dominance) Dominates(a, b ir.BlockID) bool {
	if !d.Reachable(a) || !d.Reachable(b) {
		return false
	}
	return d.pre[a] <= d.pre[b] && d.post[b] <= d.post[a]
}

// StrictlyDominates reports whether a dominates b and a != b.
func (d *Dominance) StrictlyDominates(a, b ir.BlockID) bool {
	return a != b && d.Dominates(a, b)
}

// Dominators returns the full dominator set of id, from id up to the entry.
func (d *Dominance) Dominators(id ir.BlockID) []ir.BlockID {
	if !d.Reachable(id) {
		return nil
	}
	var out []ir.BlockID
	for b := id; b != ir.NoBlock; b = d.idom[b] {
		out = append(out, b)
	}
	return out
}

// Children returns the dominator tree children of id in reverse
// post-order.
func (d *Dominance) Children(id ir.BlockID) []ir.BlockID {
	if !d.valid(id) {
		return nil
	}
	return d.children[id]
}

// Frontier returns the dominance frontier of id in reverse post-order.
func (d *Dominance) Frontier(id ir.BlockID) []ir.BlockID {
	if !d.valid(id) {
		return nil
	}
	return d.frontier[id]
}

// IteratedFrontier returns the closure of the dominance frontier over defs,
// the blocks needing a phi for a variable defined in defs.
func (d *Dominance) IteratedFrontier(defs []ir.BlockID) []ir.BlockID {
	in := make(map[ir.BlockID]bool)
	work := slices.Clone(defs)
	var out []ir.BlockID
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, y := range d.Frontier(b) {
			if in[y] {
				continue
			}
			in[y] = true
			out = append(out, y)
			work = append(work, y)
		}
	}
	slices.SortFunc(out, func(a, b ir.BlockID) int { return d.rpoIndex[a] - d.rpoIndex[b] })
	return out
}

// ReversePostOrder returns the reachable blocks in reverse post-order.
func (d *Dominance) ReversePostOrder() []ir.BlockID { return d.rpo }

// RPOIndex returns the position of id in reverse post-order, or -1.
func (d *Dominance) RPOIndex(id ir.BlockID) int {
	if !d.valid(id) {
		return -1
	}
	return d.rpoIndex[id]
}

// PreOrder returns the dominator tree in pre-order.
func (d *Dominance) PreOrder() []ir.BlockID {
	if d.entry == ir.NoBlock || !d.valid(d.entry) {
		return nil
	}
	var out []ir.BlockID
	stack := []ir.BlockID{d.entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, b)
		kids := d.children[b]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}

// NearestCommonDominator returns the deepest block dominating both a and b.
func (d *Dominance) NearestCommonDominator(a, b ir.BlockID) ir.BlockID {
	if !d.Reachable(a) || !d.Reachable(b) {
		return ir.NoBlock
	}
	return d.intersect(a, b)
}

// ReversePostOrder walks f's successor edges from the entry. Successors
// are visited in edge order so the result depends only on the CFG shape.
func ReversePostOrder(f *ir.Function) []ir.BlockID {
	if f.Entry == ir.NoBlock {
		return nil
	}
	visited := make([]bool, f.ArenaSize())
	var post []ir.BlockID
	type frame struct {
		id   ir.BlockID
		next int
	}
	stack := []frame{{id: f.Entry}}
	visited[f.Entry] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := f.Block(top.id).Successors
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{id: s})
			}
			continue
		}
		post = append(post, top.id)
		stack = stack[:len(stack)-1]
	}
	slices.Reverse(post)
	return post
}
