package passes

import (
	"slices"

	"luadec/internal/errors"
	"luadec/internal/ir"
)

// SSATransform places phi nodes on the iterated dominance frontier of every
// register's definitions and renames each definition to a fresh version.
type SSATransform struct{}

func (SSATransform) Name() string        { return "ssa-transform" }
func (SSATransform) Description() string { return "convert registers to static single assignment form" }
func (SSATransform) Mutates() Mutation   { return MutatesInstructions }

func (SSATransform) Run(ctx *Context, f *ir.Function) (bool, error) {
	if f.IsSSA {
		return false, nil
	}
	dom := ctx.Dominance()

	var regs []ir.Identifier
	defBlocks := make(map[ir.Identifier][]ir.BlockID)
	note := func(id ir.Identifier, b ir.BlockID) {
		if !id.IsRegister() {
			return
		}
		base := id.Base()
		blocks, seen := defBlocks[base]
		if !seen {
			regs = append(regs, base)
		}
		if len(blocks) == 0 || blocks[len(blocks)-1] != b {
			defBlocks[base] = append(blocks, b)
		}
	}
	for p := range f.NumParams {
		note(ir.Register(p), f.Entry)
	}
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			for _, d := range ir.Defines(inst) {
				note(d, b.ID)
			}
		}
	}

	for _, r := range regs {
		for _, y := range dom.IteratedFrontier(defBlocks[r]) {
			blk := f.Block(y)
			meta := ir.Meta{}
			if len(blk.Instructions) > 0 {
				meta = *blk.Instructions[0].Info()
				meta.End = meta.Begin
			}
			phi := &ir.Phi{Meta: meta, Left: r}
			for _, p := range blk.Predecessors {
				phi.Operands = append(phi.Operands, ir.PhiOperand{Pred: p, Value: r})
			}
			blk.Insert(blk.FirstNonPhi(), phi)
		}
	}

	r := &renamer{
		f:       f,
		ctx:     ctx,
		counter: make(map[ir.Identifier]uint32),
		stacks:  make(map[ir.Identifier][]ir.Identifier),
	}
	f.Parameters = f.Parameters[:0]
	for p := range f.NumParams {
		base := ir.Register(p)
		v := r.fresh(base)
		r.stacks[base] = append(r.stacks[base], v)
		f.Parameters = append(f.Parameters, v)
	}
	if err := r.rename(dom.Children, f.Entry); err != nil {
		return true, err
	}
	f.IsSSA = true
	return true, nil
}

type renamer struct {
	f       *ir.Function
	ctx     *Context
	counter map[ir.Identifier]uint32
	stacks  map[ir.Identifier][]ir.Identifier
}

func (r *renamer) fresh(base ir.Identifier) ir.Identifier {
	r.counter[base]++
	return base.WithVersion(r.counter[base])
}

func (r *renamer) top(base ir.Identifier) (ir.Identifier, bool) {
	st := r.stacks[base]
	if len(st) == 0 {
		return ir.Identifier{}, false
	}
	return st[len(st)-1], true
}

// rename walks the dominator tree in pre-order, keeping one stack of
// reaching versions per register.
func (r *renamer) rename(children func(ir.BlockID) []ir.BlockID, id ir.BlockID) error {
	b := r.f.Block(id)
	var pushed []ir.Identifier
	for _, inst := range b.Instructions {
		if _, isPhi := inst.(*ir.Phi); !isPhi {
			seen := make(map[ir.Identifier]bool)
			for _, u := range ir.Uses(inst) {
				if !u.IsRegister() || u.IsVersioned() || seen[u] {
					continue
				}
				seen[u] = true
				v, ok := r.top(u)
				if !ok {
					return r.ctx.Fail(errors.ErrorMalformedControlFlow, id,
						"register %s is read before any definition reaches it", u)
				}
				ir.RenameUses(inst, u, v)
			}
		}
		for _, d := range ir.Defines(inst) {
			if !d.IsRegister() || d.IsVersioned() {
				continue
			}
			v := r.fresh(d)
			ir.RenameDefines(inst, d, v)
			r.stacks[d] = append(r.stacks[d], v)
			pushed = append(pushed, d)
		}
	}
	for _, s := range b.Successors {
		for _, phi := range r.f.Block(s).Phis() {
			v, ok := r.top(phi.Left.Base())
			if !ok {
				continue
			}
			for i := range phi.Operands {
				if phi.Operands[i].Pred == id && !phi.Operands[i].Value.IsVersioned() {
					phi.Operands[i].Value = v
				}
			}
		}
	}
	for _, c := range children(id) {
		if err := r.rename(children, c); err != nil {
			return err
		}
	}
	for _, d := range pushed {
		r.stacks[d] = r.stacks[d][:len(r.stacks[d])-1]
	}
	return nil
}

// DropSSASubscripts leaves SSA form. Versions connected through phi nodes
// collapse into one variable; unconnected versions of the same register
// become distinct locals of that register.
type DropSSASubscripts struct{}

func (DropSSASubscripts) Name() string { return "drop-ssa-subscripts" }
func (DropSSASubscripts) Description() string {
	return "remove phi nodes and merge versions back into registers"
}
func (DropSSASubscripts) Mutates() Mutation { return MutatesInstructions }

func (DropSSASubscripts) Run(_ *Context, f *ir.Function) (bool, error) {
	if !f.IsSSA {
		return false, nil
	}
	removeDeadPhis(f)

	webs := newUnionFind()
	see := func(id ir.Identifier) {
		if id.IsRegister() && id.IsVersioned() {
			webs.add(id)
		}
	}
	for _, p := range f.Parameters {
		see(p)
	}
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			for _, id := range ir.Defines(inst) {
				see(id)
			}
			for _, id := range ir.Uses(inst) {
				see(id)
			}
		}
	}
	for _, b := range f.Blocks() {
		for _, phi := range b.Phis() {
			for _, op := range phi.Operands {
				if op.Value.IsVersioned() {
					webs.union(phi.Left, op.Value)
				}
			}
		}
	}

	localOf := make(map[ir.Identifier]uint32)
	next := make(map[ir.Identifier]uint32)
	mapping := make(map[ir.Identifier]ir.Identifier, len(webs.order))
	for _, id := range webs.order {
		root := webs.find(id)
		k, ok := localOf[root]
		if !ok {
			k = next[id.Base()]
			next[id.Base()]++
			localOf[root] = k
		}
		mapping[id] = ir.Identifier{Kind: ir.IdentRegister, Index: id.Index, Local: k}
	}

	for _, b := range f.Blocks() {
		b.Instructions = slices.DeleteFunc(b.Instructions, func(inst ir.Instruction) bool {
			_, ok := inst.(*ir.Phi)
			return ok
		})
		for _, inst := range b.Instructions {
			for _, d := range ir.Defines(inst) {
				if to, ok := mapping[d]; ok {
					ir.RenameDefines(inst, d, to)
				}
			}
			done := make(map[ir.Identifier]bool)
			for _, u := range ir.Uses(inst) {
				if to, ok := mapping[u]; ok && !done[u] {
					done[u] = true
					ir.RenameUses(inst, u, to)
				}
			}
		}
	}
	for i, p := range f.Parameters {
		if to, ok := mapping[p]; ok {
			f.Parameters[i] = to
		}
	}
	for from, to := range mapping {
		renameBinding(f, from, to)
	}
	f.IsSSA = false
	return true, nil
}

// renameBinding moves closure capture bookkeeping from one identifier to
// another.
func renameBinding(f *ir.Function, from, to ir.Identifier) {
	if f.ClosureBound[from] {
		delete(f.ClosureBound, from)
		f.ClosureBound[to] = true
	}
	for _, c := range f.Closures {
		for i, id := range c.UpValueBindings {
			if id == from {
				c.UpValueBindings[i] = to
			}
		}
	}
}

// renameEverywhere rewrites every read of from in f to to.
func renameEverywhere(f *ir.Function, from, to ir.Identifier) {
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			ir.RenameUses(inst, from, to)
		}
	}
	renameBinding(f, from, to)
}

// unionFind groups identifiers, remembering first-seen order.
type unionFind struct {
	parent map[ir.Identifier]ir.Identifier
	order  []ir.Identifier
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[ir.Identifier]ir.Identifier)}
}

func (u *unionFind) add(id ir.Identifier) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
		u.order = append(u.order, id)
	}
}

func (u *unionFind) find(id ir.Identifier) ir.Identifier {
	u.add(id)
	for u.parent[id] != id {
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

func (u *unionFind) union(a, b ir.Identifier) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
