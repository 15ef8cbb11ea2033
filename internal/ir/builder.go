package ir

// Builder appends lifted instructions to a function's flat instruction list,
// stamping each with its lifted index and resolving jump addresses into
// labels.
type Builder struct {
	fn   *Function
	pc   int
	line int
}

// NewBuilder creates a builder appending to f.
func NewBuilder(f *Function) *Builder {
	return &Builder{fn: f, pc: len(f.Instructions)}
}

// Function returns the function being built.
func (b *Builder) Function() *Function { return b.fn }

// PC returns the lifted index the next instruction will receive.
func (b *Builder) PC() int { return b.pc }

// SetPC moves the index of the next instruction. Listings may skip
// addresses.
func (b *Builder) SetPC(pc int) { b.pc = pc }

// SetLine records the listing line for subsequent instructions.
func (b *Builder) SetLine(line int) { b.line = line }

// LabelAt returns the label naming lifted index pc.
func (b *Builder) LabelAt(pc int) LabelID {
	id := LabelID(pc)
	b.fn.LabelTargets[id] = pc
	return id
}

// Emit appends inst at the current index and advances.
func (b *Builder) Emit(inst Instruction) Instruction {
	m := inst.Info()
	m.Begin, m.End, m.Line = b.pc, b.pc, b.line
	b.fn.Instructions = append(b.fn.Instructions, inst)
	b.pc++
	return inst
}

// Assign emits 'rDst = e'.
func (b *Builder) Assign(dst uint32, e Expression) *Assignment {
	a := Assign(Ref(Register(dst)), e)
	b.Emit(a)
	return a
}

// Store emits 'target = e' for an arbitrary reference.
func (b *Builder) Store(target *IdentifierReference, e Expression) *Assignment {
	a := Assign(target, e)
	b.Emit(a)
	return a
}

// Jump emits an unconditional jump to lifted index target.
func (b *Builder) Jump(target int) *Jump {
	j := &Jump{Target: b.LabelAt(target), Dest: NoBlock}
	b.Emit(j)
	return j
}

// CondJump emits a jump to target taken when cond holds.
func (b *Builder) CondJump(cond Expression, target int) *ConditionalJump {
	j := &ConditionalJump{Condition: cond, Target: b.LabelAt(target), Dest: NoBlock}
	b.Emit(j)
	return j
}

// Return emits a return of values.
func (b *Builder) Return(values ...Expression) *Return {
	r := &Return{Values: values}
	b.Emit(r)
	return r
}

// Call builds a call expression with a fixed argument list.
func Call(fn Expression, args ...Expression) *FunctionCall {
	return &FunctionCall{Function: fn, Args: args, FunctionDefIndex: -1}
}
