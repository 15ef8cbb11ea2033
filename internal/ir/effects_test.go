package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectBeforeFollowsEvaluationOrder(t *testing.T) {
	r0, r1 := Register(0).WithVersion(1), Register(1).WithVersion(1)
	callF := Call(Ref(Global("f")))

	tests := []struct {
		name  string
		inst  Instruction
		id    Identifier
		want  Effect
		found bool
	}{
		{
			name:  "first argument",
			inst:  &Assignment{Right: Call(Ref(Global("print")), Ref(r0), callF)},
			id:    r0,
			want:  EffectPure,
			found: true,
		},
		{
			name:  "after a call argument",
			inst:  &Assignment{Right: Call(Ref(Global("print")), callF, Ref(r0))},
			id:    r0,
			want:  EffectCall,
			found: true,
		},
		{
			name:  "after a global read",
			inst:  Assign(Ref(r1), &BinOp{Op: OpAdd, Left: Ref(Global("x")), Right: Ref(r0)}),
			id:    r0,
			want:  EffectRead,
			found: true,
		},
		{
			name:  "store target is read first",
			inst:  Assign(Index(r0, String("k")), callF),
			id:    r0,
			want:  EffectPure,
			found: true,
		},
		{
			name:  "returned after a call",
			inst:  &Return{Values: []Expression{callF, Ref(r0)}},
			id:    r0,
			want:  EffectCall,
			found: true,
		},
		{
			name: "not read",
			inst: Assign(Ref(r1), callF),
			id:   r0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff, found := EffectBefore(tt.inst, tt.id)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, eff)
			}
		})
	}
}

func TestNotAppliesDeMorgan(t *testing.T) {
	a := &BinOp{Op: OpEqual, Left: Ref(Register(0)), Right: Number(1)}
	b := &BinOp{Op: OpLessThan, Left: Ref(Register(1)), Right: Number(2)}

	got, ok := Not(&BinOp{Op: OpOr, Left: a, Right: b}).(*BinOp)
	if assert.True(t, ok) {
		assert.Equal(t, OpAnd, got.Op)
		assert.Equal(t, OpNotEqual, got.Left.(*BinOp).Op)
		assert.Equal(t, OpGreaterEqual, got.Right.(*BinOp).Op)
	}

	r := Ref(Register(2))
	got, ok = Not(&BinOp{Op: OpAnd, Left: a, Right: r}).(*BinOp)
	if assert.True(t, ok) {
		assert.Equal(t, OpOr, got.Op)
		assert.Equal(t, &UnaryOp{Op: OpNot, Expr: r}, got.Right)
	}
}
