package passes

import (
	"luadec/internal/errors"
	"luadec/internal/ir"
)

// scope is one lexical block of the program being rebuilt: a function
// body, an arm of an if or the body of a loop.
type scope struct {
	parent *scope
	stmts  []*stmt
}

// stmt is an instruction placed in a scope. Structured instructions own
// nested scopes: the arms of an if or the body of a loop.
type stmt struct {
	block  ir.BlockID
	inst   ir.Instruction
	scopes []*scope
}

// structurer lays the blocks of a structured function out as a scope
// tree. Every block is placed at most once.
type structurer struct {
	ctx     *Context
	f       *ir.Function
	latches map[ir.BlockID]bool
	visited map[ir.BlockID]bool
}

// buildScopes returns the scope tree of f. It fails when a block is
// reached from two regions or a conditional jump survived structuring.
func buildScopes(ctx *Context, f *ir.Function) (*scope, error) {
	s := &structurer{
		ctx:     ctx,
		f:       f,
		latches: postTestLatches(f),
		visited: make(map[ir.BlockID]bool),
	}
	root, err := s.region(f.Entry, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, b := range f.Blocks() {
		if s.visited[b.ID] {
			continue
		}
		for _, inst := range b.Instructions {
			switch inst.(type) {
			case *ir.Phi, *ir.Jump, *ir.Label, *ir.Data:
				continue
			}
			return nil, ctx.Fail(errors.ErrorMalformedControlFlow, b.ID,
				"block %d is not part of any structured region", b.ID)
		}
	}
	return root, nil
}

func with(stops map[ir.BlockID]bool, ids ...ir.BlockID) map[ir.BlockID]bool {
	out := make(map[ir.BlockID]bool, len(stops)+len(ids))
	for id := range stops {
		out[id] = true
	}
	for _, id := range ids {
		if id != ir.NoBlock {
			out[id] = true
		}
	}
	return out
}

// region places the straight-line run of blocks starting at start until it
// reaches a stop block or a block that ends the path.
func (s *structurer) region(start ir.BlockID, stops map[ir.BlockID]bool, parent *scope) (*scope, error) {
	sc := &scope{parent: parent}
	for cur, first := start, true; cur != ir.NoBlock; first = false {
		if !first && stops[cur] {
			break
		}
		if s.visited[cur] {
			return nil, s.ctx.Fail(errors.ErrorMalformedControlFlow, cur,
				"block %d is reached from more than one structured region", cur)
		}
		s.visited[cur] = true
		next, err := s.place(sc, s.f.Block(cur), stops)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return sc, nil
}

// place appends the statements of b to sc and returns the block control
// continues with, or NoBlock.
func (s *structurer) place(sc *scope, b *ir.BasicBlock, stops map[ir.BlockID]bool) (ir.BlockID, error) {
	for _, inst := range b.Instructions {
		st := &stmt{block: b.ID, inst: inst}
		switch x := inst.(type) {
		case *ir.Phi, *ir.Jump, *ir.Label, *ir.Data:
			continue
		case *ir.ConditionalJump:
			return ir.NoBlock, s.ctx.Fail(errors.ErrorMalformedControlFlow, b.ID,
				"conditional jump in block %d was not structured", b.ID)
		case *ir.IfStatement:
			inner := with(stops, x.Follow)
			t, err := s.region(x.True, inner, sc)
			if err != nil {
				return ir.NoBlock, err
			}
			st.scopes = append(st.scopes, t)
			if x.False != ir.NoBlock {
				e, err := s.region(x.False, inner, sc)
				if err != nil {
					return ir.NoBlock, err
				}
				st.scopes = append(st.scopes, e)
			}
			sc.stmts = append(sc.stmts, st)
			return x.Follow, nil
		case *ir.While:
			return s.loop(sc, st, x.Body, x.Header, x.Follow, stops)
		case *ir.NumericFor:
			return s.loop(sc, st, x.Body, x.Header, x.Follow, stops)
		case *ir.GenericFor:
			return s.loop(sc, st, x.Body, x.Header, x.Follow, stops)
		case *ir.Break, *ir.Continue, *ir.Return:
			sc.stmts = append(sc.stmts, st)
			return ir.NoBlock, nil
		default:
			sc.stmts = append(sc.stmts, st)
		}
	}
	if s.latches[b.ID] {
		return ir.NoBlock, nil
	}
	switch len(b.Successors) {
	case 0:
		return ir.NoBlock, nil
	case 1:
		return b.Successors[0], nil
	}
	return ir.NoBlock, s.ctx.Fail(errors.ErrorMalformedControlFlow, b.ID,
		"block %d branches to %v without a structured terminator", b.ID, b.Successors)
}

func (s *structurer) loop(sc *scope, st *stmt, body, header, follow ir.BlockID, stops map[ir.BlockID]bool) (ir.BlockID, error) {
	inner, err := s.region(body, with(stops, header, follow), sc)
	if err != nil {
		return ir.NoBlock, err
	}
	st.scopes = []*scope{inner}
	sc.stmts = append(sc.stmts, st)
	return follow, nil
}

// frame locates a statement: statement index i of scope sc.
type frame struct {
	sc *scope
	i  int
}

// walkScopes calls fn for every statement in program order with the path
// of frames leading to it.
func walkScopes(root *scope, fn func(path []frame, st *stmt)) {
	var visit func(sc *scope, prefix []frame)
	visit = func(sc *scope, prefix []frame) {
		for i, st := range sc.stmts {
			path := append(prefix[:len(prefix):len(prefix)], frame{sc: sc, i: i})
			fn(path, st)
			for _, child := range st.scopes {
				visit(child, path)
			}
		}
	}
	visit(root, nil)
}
