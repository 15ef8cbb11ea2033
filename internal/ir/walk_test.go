package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinesAndUsesOfTableStore(t *testing.T) {
	// r0.x = r1 + r1
	store := Assign(Index(Register(0), String("x")), &BinOp{Op: OpAdd, Left: Ref(Register(1)), Right: Ref(Register(1))})
	assert.Empty(t, Defines(store))
	assert.Equal(t, []Identifier{Register(0), Register(1), Register(1)}, Uses(store))
	assert.Equal(t, 2, CountUses(store, Register(1)))

	plain := Assign(Ref(Register(2)), Ref(Register(0)))
	assert.Equal(t, []Identifier{Register(2)}, Defines(plain))
}

func TestReplaceUsesSplicesReferences(t *testing.T) {
	// r1 = r0.x
	a := Assign(Ref(Register(1)), Index(Register(0), String("x")))

	// A literal cannot stand in for a table base.
	assert.False(t, ReplaceUses(a, Register(0), Number(4)))
	assert.Equal(t, Register(0), a.Right.(*IdentifierReference).Identifier)

	// A reference can, and its own indices go first.
	require.True(t, ReplaceUses(a, Register(0), Index(Global("cfg"), String("opts"))))
	ref := a.Right.(*IdentifierReference)
	assert.Equal(t, Global("cfg"), ref.Identifier)
	require.Len(t, ref.TableIndices, 2)
	assert.Equal(t, "opts", ref.TableIndices[0].(*Constant).String)
	assert.Equal(t, "x", ref.TableIndices[1].(*Constant).String)
}

func TestReplaceUsesInsideCalls(t *testing.T) {
	// return f(r0, r0)
	ret := &Return{Values: []Expression{Call(Ref(Global("f")), Ref(Register(0)), Ref(Register(0)))}}
	require.True(t, ReplaceUses(ret, Register(0), Number(7)))
	call := ret.Values[0].(*FunctionCall)
	for _, arg := range call.Args {
		assert.Equal(t, 7.0, arg.(*Constant).Number)
	}
	assert.Zero(t, CountUses(ret, Register(0)))
}

func TestReplaceUsesRejectsPhi(t *testing.T) {
	phi := &Phi{Left: Register(0).WithVersion(3), Operands: []PhiOperand{{Pred: 0, Value: Register(0).WithVersion(1)}}}
	assert.False(t, ReplaceUses(phi, Register(0).WithVersion(1), Ref(Register(5))))
}

func TestRenameDefinesAndUses(t *testing.T) {
	from, to := Register(3), Register(3).WithVersion(2)
	a := Assign(Ref(from), &BinOp{Op: OpAdd, Left: Ref(from), Right: Number(1)})

	RenameUses(a, from, to)
	assert.Equal(t, []Identifier{to}, Uses(a))
	assert.Equal(t, []Identifier{from}, Defines(a))

	RenameDefines(a, from, to)
	assert.Equal(t, []Identifier{to}, Defines(a))
}

func TestVisitExpressionOrder(t *testing.T) {
	e := &BinOp{Op: OpAdd, Left: Ref(Register(0)), Right: &Concat{Exprs: []Expression{String("a"), Ref(Global("b"))}}}
	var kinds []string
	VisitExpression(e, func(sub Expression) {
		switch sub.(type) {
		case *BinOp:
			kinds = append(kinds, "binop")
		case *Concat:
			kinds = append(kinds, "concat")
		case *Constant:
			kinds = append(kinds, "const")
		case *IdentifierReference:
			kinds = append(kinds, "ref")
		}
	})
	assert.Equal(t, []string{"binop", "ref", "concat", "const", "ref"}, kinds)
}
