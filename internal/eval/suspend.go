package eval

import "go.starlark.net/syntax"

// SuspendBuiltin is the name of the builtin whose top-level calls make an
// evaluation suspending.
const SuspendBuiltin = "wait"

// FileSuspends reports whether f calls wait() outside any def or lambda.
func FileSuspends(f *syntax.File) bool {
	return stmtsSuspend(f.Stmts)
}

// ExprSuspends reports whether e calls wait() outside any lambda.
func ExprSuspends(e syntax.Expr) bool {
	return nodeSuspends(e)
}

func stmtsSuspend(stmts []syntax.Stmt) bool {
	for _, stmt := range stmts {
		if nodeSuspends(stmt) {
			return true
		}
	}

	return false
}

// nodeSuspends walks n looking for a wait() call. syntax.Walk has no case
// for while loops and panics on them, so those are descended by hand.
func nodeSuspends(n syntax.Node) bool {
	found := false

	syntax.Walk(n, func(n syntax.Node) bool {
		if found {
			return false
		}

		switch n := n.(type) {
		case *syntax.DefStmt, *syntax.LambdaExpr:
			return false
		case *syntax.WhileStmt:
			found = nodeSuspends(n.Cond) || stmtsSuspend(n.Body)
			return false
		case *syntax.CallExpr:
			if id, ok := n.Fn.(*syntax.Ident); ok && id.Name == SuspendBuiltin {
				found = true
				return false
			}
		}

		return true
	})

	return found
}
