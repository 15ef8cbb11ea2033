package ir

import (
	"fmt"
	"slices"
)

// BlockID addresses a block in its function's arena. IDs are never reused.
type BlockID int

// NoBlock is the absent block reference.
const NoBlock BlockID = -1

// BasicBlock is a straight-line run of instructions.
type BasicBlock struct {
	ID           BlockID
	Instructions []Instruction
	// Predecessors and Successors are ordered. For a conditional jump the
	// branch-taken successor comes first.
	Predecessors []BlockID
	Successors   []BlockID

	// Filled in by the local variable passes.
	LocalsDefined     []Identifier
	GlobalsReferenced []string
}

// Last returns the final instruction, or nil for an empty block.
func (b *BasicBlock) Last() Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// Phis returns the phi nodes heading the block.
func (b *BasicBlock) Phis() []*Phi {
	var phis []*Phi
	for _, inst := range b.Instructions {
		phi, ok := inst.(*Phi)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	return phis
}

// FirstNonPhi returns the index of the first instruction that is not a phi.
func (b *BasicBlock) FirstNonPhi() int {
	for i, inst := range b.Instructions {
		if _, ok := inst.(*Phi); !ok {
			return i
		}
	}
	return len(b.Instructions)
}

// Remove deletes the instruction at index i.
func (b *BasicBlock) Remove(i int) {
	b.Instructions = slices.Delete(b.Instructions, i, i+1)
}

// RemoveInstruction deletes inst if present.
func (b *BasicBlock) RemoveInstruction(inst Instruction) bool {
	for i, x := range b.Instructions {
		if x == inst {
			b.Remove(i)
			return true
		}
	}
	return false
}

// Insert places inst before index i.
func (b *BasicBlock) Insert(i int, inst Instruction) {
	b.Instructions = slices.Insert(b.Instructions, i, inst)
}

// ReplaceLast swaps the final instruction for inst.
func (b *BasicBlock) ReplaceLast(inst Instruction) {
	if len(b.Instructions) == 0 {
		b.Instructions = append(b.Instructions, inst)
		return
	}
	b.Instructions[len(b.Instructions)-1] = inst
}

// DebugLocal is a debug-table entry naming register Register over the
// lifted instruction range [Begin, End).
type DebugLocal struct {
	Name     string
	Register uint32
	Begin    int
	End      int
}

// Function is one lifted function together with its nested closures.
type Function struct {
	ID           int
	NumParams    uint32
	IsVararg     bool
	UpValueCount uint32
	// UpValueBindings maps each upvalue to the parent identifier it captures.
	UpValueBindings []Identifier
	UpValueNames    []string
	Constants       []Constant
	Locals          []DebugLocal
	Parameters      []Identifier

	// Parent is nil for the main chunk. ParentBlock is the parent's block
	// that instantiates this closure.
	Parent      *Function
	ParentBlock BlockID
	Closures    []*Function

	// Instructions is the flat lifted instruction list. It is consumed by
	// CFG construction.
	Instructions []Instruction
	// LabelTargets maps each label to the lifted index it marks.
	LabelTargets map[LabelID]int

	// ClosureBound holds identifiers captured by child closures.
	ClosureBound map[Identifier]bool
	// Names maps identifiers to chosen source names.
	Names map[Identifier]string

	InsertDebugComments bool
	IsSSA               bool

	arena      []*BasicBlock
	order      []BlockID
	Entry      BlockID
	generation uint64
}

// NewFunction returns an empty function with the given id.
func NewFunction(id int) *Function {
	return &Function{
		ID:           id,
		ParentBlock:  NoBlock,
		Entry:        NoBlock,
		LabelTargets: make(map[LabelID]int),
		ClosureBound: make(map[Identifier]bool),
		Names:        make(map[Identifier]string),
	}
}

// Generation increases on every change to block linkage. Analyses record
// it to detect stale reads.
func (f *Function) Generation() uint64 { return f.generation }

func (f *Function) touch() { f.generation++ }

// NewBlock allocates a block at the end of the layout.
func (f *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{ID: BlockID(len(f.arena))}
	f.arena = append(f.arena, b)
	f.order = append(f.order, b.ID)
	if f.Entry == NoBlock {
		f.Entry = b.ID
	}
	f.touch()
	return b
}

// NewBlockAfter allocates a block placed right after id in the layout.
func (f *Function) NewBlockAfter(id BlockID) *BasicBlock {
	b := &BasicBlock{ID: BlockID(len(f.arena))}
	f.arena = append(f.arena, b)
	at := slices.Index(f.order, id)
	f.order = slices.Insert(f.order, at+1, b.ID)
	f.touch()
	return b
}

// NewBlockBefore allocates a block placed right before id in the layout.
func (f *Function) NewBlockBefore(id BlockID) *BasicBlock {
	b := &BasicBlock{ID: BlockID(len(f.arena))}
	f.arena = append(f.arena, b)
	at := max(slices.Index(f.order, id), 0)
	f.order = slices.Insert(f.order, at, b.ID)
	f.touch()
	return b
}

// SplitEdge places a new block on the edge from->to and returns it. The
// phi operands of to and the jump target of from follow the new block.
func (f *Function) SplitEdge(from, to BlockID) *BasicBlock {
	fb, tb := f.mustBlock(from), f.mustBlock(to)
	i := slices.Index(fb.Successors, to)
	if i < 0 {
		panic(fmt.Sprintf("ir: block %d is not a successor of %d", to, from))
	}
	s := f.NewBlockAfter(from)
	fb.Successors[i] = s.ID
	s.Predecessors = []BlockID{from}
	s.Successors = []BlockID{to}
	if j := slices.Index(tb.Predecessors, from); j >= 0 {
		tb.Predecessors[j] = s.ID
	}
	for _, phi := range tb.Phis() {
		for k := range phi.Operands {
			if phi.Operands[k].Pred == from {
				phi.Operands[k].Pred = s.ID
				break
			}
		}
	}
	switch x := fb.Last().(type) {
	case *Jump:
		if x.Dest == to {
			x.Dest = s.ID
		}
	case *ConditionalJump:
		if i == 0 && x.Dest == to {
			x.Dest = s.ID
		}
	}
	f.touch()
	return s
}

// MaxVersion returns the largest SSA subscript of base defined anywhere in
// f, parameters included.
func (f *Function) MaxVersion(base Identifier) uint32 {
	var v uint32
	note := func(id Identifier) {
		if id.Base() == base && id.Version > v {
			v = id.Version
		}
	}
	for _, p := range f.Parameters {
		note(p)
	}
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions {
			for _, d := range Defines(inst) {
				note(d)
			}
		}
	}
	return v
}

// Block returns the live block with the given id, or nil.
func (f *Function) Block(id BlockID) *BasicBlock {
	if id < 0 || int(id) >= len(f.arena) {
		return nil
	}
	return f.arena[id]
}

// Blocks returns the live blocks in layout order.
func (f *Function) Blocks() []*BasicBlock {
	out := make([]*BasicBlock, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.arena[id])
	}
	return out
}

// BlockCount returns the number of live blocks.
func (f *Function) BlockCount() int { return len(f.order) }

// ArenaSize returns one more than the largest block id ever allocated.
func (f *Function) ArenaSize() int { return len(f.arena) }

// LayoutIndex returns the position of id in the layout, or -1.
func (f *Function) LayoutIndex(id BlockID) int {
	return slices.Index(f.order, id)
}

// NextInLayout returns the block laid out after id, or NoBlock.
func (f *Function) NextInLayout(id BlockID) BlockID {
	i := f.LayoutIndex(id)
	if i < 0 || i+1 >= len(f.order) {
		return NoBlock
	}
	return f.order[i+1]
}

// AddEdge links from to to. Successor order is append order.
func (f *Function) AddEdge(from, to BlockID) {
	fb, tb := f.mustBlock(from), f.mustBlock(to)
	fb.Successors = append(fb.Successors, to)
	tb.Predecessors = append(tb.Predecessors, from)
	f.touch()
}

// RemoveEdge unlinks from and to and drops the matching phi operands.
func (f *Function) RemoveEdge(from, to BlockID) {
	fb, tb := f.mustBlock(from), f.mustBlock(to)
	fb.Successors = removeFirst(fb.Successors, to)
	tb.Predecessors = removeFirst(tb.Predecessors, from)
	if !slices.Contains(tb.Predecessors, from) {
		for _, phi := range tb.Phis() {
			phi.RemoveOperand(from)
		}
	}
	f.touch()
}

// RetargetEdge moves the edge from->oldTo to from->newTo, keeping its
// position among from's successors.
func (f *Function) RetargetEdge(from, oldTo, newTo BlockID) {
	fb, ob, nb := f.mustBlock(from), f.mustBlock(oldTo), f.mustBlock(newTo)
	i := slices.Index(fb.Successors, oldTo)
	if i < 0 {
		panic(fmt.Sprintf("ir: block %d is not a successor of %d", oldTo, from))
	}
	fb.Successors[i] = newTo
	ob.Predecessors = removeFirst(ob.Predecessors, from)
	if !slices.Contains(ob.Predecessors, from) {
		for _, phi := range ob.Phis() {
			phi.RemoveOperand(from)
		}
	}
	nb.Predecessors = append(nb.Predecessors, from)
	f.touch()
}

// ReplacePredecessor renames pred oldFrom to newFrom on block id, including
// phi operands. The caller keeps the successor lists consistent.
func (f *Function) ReplacePredecessor(id, oldFrom, newFrom BlockID) {
	b := f.mustBlock(id)
	if i := slices.Index(b.Predecessors, oldFrom); i >= 0 {
		b.Predecessors[i] = newFrom
	}
	for _, phi := range b.Phis() {
		for i := range phi.Operands {
			if phi.Operands[i].Pred == oldFrom {
				phi.Operands[i].Pred = newFrom
			}
		}
	}
	f.touch()
}

// RemoveBlock unlinks id from all neighbors and releases it. A removed
// block is never handed out again.
func (f *Function) RemoveBlock(id BlockID) {
	b := f.mustBlock(id)
	for _, s := range slices.Clone(b.Successors) {
		f.RemoveEdge(id, s)
	}
	for _, p := range slices.Clone(b.Predecessors) {
		f.RemoveEdge(p, id)
	}
	f.arena[id] = nil
	f.order = removeFirst(f.order, id)
	if f.Entry == id {
		f.Entry = NoBlock
		if len(f.order) > 0 {
			f.Entry = f.order[0]
		}
	}
	f.touch()
}

// InvalidateLayout records an edit to block linkage made outside the
// arena helpers.
func (f *Function) InvalidateLayout() { f.touch() }

func (f *Function) mustBlock(id BlockID) *BasicBlock {
	b := f.Block(id)
	if b == nil {
		panic(fmt.Sprintf("ir: reference to removed or unknown block %d in function %d", id, f.ID))
	}
	return b
}

// ConstantAt returns entry i of the constants table.
func (f *Function) ConstantAt(i int) (*Constant, bool) {
	if i < 0 || i >= len(f.Constants) {
		return nil, false
	}
	c := f.Constants[i]
	return &c, true
}

// Walk visits f and all nested closures depth first, parents first.
func (f *Function) Walk(visit func(*Function) bool) {
	if !visit(f) {
		return
	}
	for _, c := range f.Closures {
		c.Walk(visit)
	}
}

// LocalAt returns the debug name of register reg at lifted index pc.
func (f *Function) LocalAt(reg uint32, pc int) (string, bool) {
	for _, l := range f.Locals {
		if l.Register == reg && pc >= l.Begin && pc < l.End {
			return l.Name, true
		}
	}
	return "", false
}

func removeFirst(ids []BlockID, id BlockID) []BlockID {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
