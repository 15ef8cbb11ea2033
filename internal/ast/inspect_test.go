package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkNestedFunctions(t *testing.T) {
	grandchild := &Function{ID: 2, Body: &Block{Stmts: []Stmt{&Return{Values: []Expr{num(1)}}}}}
	child := &Function{ID: 1, Body: &Block{Stmts: []Stmt{
		&Return{Values: []Expr{&FunctionExpr{ID: 2}}},
	}}}
	root := &Function{Body: &Block{Stmts: []Stmt{
		&LocalAssign{Names: []string{"f"}, Values: []Expr{&FunctionExpr{ID: 1}}},
		&CallStmt{Call: &Call{Fn: &FunctionExpr{ID: 3}}},
	}}}
	byID := map[int]*Function{1: child, 2: grandchild}

	Link(root, func(id int) *Function { return byID[id] })

	var linked, unlinked []int
	Inspect(root, func(n Node) bool {
		if fe, ok := n.(*FunctionExpr); ok {
			if fe.Func != nil {
				linked = append(linked, fe.ID)
			} else {
				unlinked = append(unlinked, fe.ID)
			}
		}
		return true
	})
	assert.Equal(t, []int{1, 2}, linked)
	assert.Equal(t, []int{3}, unlinked)

	out := root.String()
	require.Contains(t, out, "local f = function()\n\treturn function()\n\t\treturn 1\n\tend\nend")
	assert.Contains(t, out, "--[[ function 3 ]]")
}

func TestInspectSkipsChildren(t *testing.T) {
	body := &Block{Stmts: []Stmt{
		&If{Cond: name("a"), Then: &Block{Stmts: []Stmt{&CallStmt{Call: &Call{Fn: name("inner")}}}}},
		&CallStmt{Call: &Call{Fn: name("outer")}},
	}}
	var names []string
	Inspect(body, func(n Node) bool {
		if nm, ok := n.(*Name); ok {
			names = append(names, nm.Name)
		}
		_, isIf := n.(*If)
		return !isIf
	})
	assert.Equal(t, []string{"outer"}, names)
}
