package ast

import "fmt"

// Inspect traverses the tree rooted at node in depth-first order. If fn
// returns false the children of that node are skipped. The body of a
// linked FunctionExpr is visited as a child.
func Inspect(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Function:
		if n.Body != nil {
			Inspect(n.Body, fn)
		}
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, fn)
		}
	case *LocalAssign:
		inspectList(n.Values, fn)
	case *Assign:
		inspectList(n.Targets, fn)
		inspectList(n.Values, fn)
	case *CallStmt:
		Inspect(n.Call, fn)
	case *Return:
		inspectList(n.Values, fn)
	case *If:
		Inspect(n.Cond, fn)
		inspectBlock(n.Then, fn)
		for _, ei := range n.ElseIfs {
			Inspect(ei.Cond, fn)
			inspectBlock(ei.Body, fn)
		}
		inspectBlock(n.Else, fn)
	case *While:
		Inspect(n.Cond, fn)
		inspectBlock(n.Body, fn)
	case *Repeat:
		inspectBlock(n.Body, fn)
		Inspect(n.Cond, fn)
	case *NumericFor:
		Inspect(n.Start, fn)
		Inspect(n.Limit, fn)
		if n.Step != nil {
			Inspect(n.Step, fn)
		}
		inspectBlock(n.Body, fn)
	case *GenericFor:
		inspectList(n.Values, fn)
		inspectBlock(n.Body, fn)
	case *Break, *Continue, *Comment:
	case *Nil, *Bool, *Number, *String, *Vararg, *Name:
	case *Index:
		Inspect(n.Obj, fn)
		Inspect(n.Key, fn)
	case *Call:
		Inspect(n.Fn, fn)
		inspectList(n.Args, fn)
	case *MethodCall:
		Inspect(n.Obj, fn)
		inspectList(n.Args, fn)
	case *Binary:
		Inspect(n.Left, fn)
		Inspect(n.Right, fn)
	case *Unary:
		Inspect(n.X, fn)
	case *FunctionExpr:
		if n.Func != nil {
			Inspect(n.Func, fn)
		}
	case *Table:
		for _, f := range n.Fields {
			if f.Key != nil {
				Inspect(f.Key, fn)
			}
			Inspect(f.Value, fn)
		}
	default:
		panic(fmt.Sprintf("unexpected node type %T", node))
	}
}

func inspectList(es []Expr, fn func(Node) bool) {
	for _, e := range es {
		Inspect(e, fn)
	}
}

func inspectBlock(b *Block, fn func(Node) bool) {
	if b != nil {
		Inspect(b, fn)
	}
}

// Link attaches decompiled child functions to the closures that create
// them. lookup returns nil for functions that have no output; those
// closures stay unlinked.
func Link(root *Function, lookup func(id int) *Function) {
	Inspect(root, func(n Node) bool {
		if fe, ok := n.(*FunctionExpr); ok && fe.Func == nil {
			fe.Func = lookup(fe.ID)
		}
		return true
	})
}
