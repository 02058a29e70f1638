package ast

// Inspect traverses the tree rooted at n in depth-first order. It calls f(n)
// first; if f returns true, Inspect recurses into the children of n.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *ArrayLit:
		for _, e := range n.Elems {
			Inspect(e, f)
		}
	case *Binary:
		Inspect(n.X, f)
		Inspect(n.Y, f)
	case *Unary:
		Inspect(n.X, f)
	case *Index:
		Inspect(n.X, f)
		Inspect(n.Index, f)
	case *Call:
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *Let:
		Inspect(n.Value, f)
	case *Assign:
		Inspect(n.Value, f)
	case *CompoundAssign:
		Inspect(n.Value, f)
	case *If:
		Inspect(n.Cond, f)
		InspectStmts(n.Then, f)
		InspectStmts(n.Else, f)
	case *Return:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *ExprStmt:
		Inspect(n.X, f)
	case *ForRange:
		Inspect(n.Start, f)
		Inspect(n.End, f)
		if n.Step != nil {
			Inspect(n.Step, f)
		}
		InspectStmts(n.Stmts, f)
	case *While:
		Inspect(n.Cond, f)
		InspectStmts(n.Stmts, f)
	case *ForEach:
		Inspect(n.Collection, f)
		InspectStmts(n.Stmts, f)
	}
}

// InspectStmts runs Inspect over each statement of a block.
func InspectStmts(stmts []Stmt, f func(Node) bool) {
	for _, s := range stmts {
		Inspect(s, f)
	}
}

// AssignedName returns the variable written by s, if s writes one directly.
func AssignedName(s Stmt) (string, bool) {
	switch s := s.(type) {
	case *Let:
		return s.Name, true
	case *Assign:
		return s.Name, true
	case *CompoundAssign:
		return s.Name, true
	case *IncDec:
		return s.Name, true
	}
	return "", false
}

// HasCall reports whether any call expression occurs in stmts.
func HasCall(stmts []Stmt) bool {
	found := false
	InspectStmts(stmts, func(n Node) bool {
		if _, ok := n.(*Call); ok {
			found = true
		}
		return !found
	})
	return found
}

// HasNestedLoop reports whether stmts contain a loop statement at any depth.
func HasNestedLoop(stmts []Stmt) bool {
	found := false
	InspectStmts(stmts, func(n Node) bool {
		if _, ok := n.(Loop); ok {
			found = true
		}
		return !found
	})
	return found
}

// HasControlTransfer reports whether stmts contain break, continue or return
// that would leave the current iteration early.
func HasControlTransfer(stmts []Stmt) bool {
	found := false
	InspectStmts(stmts, func(n Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *Break, *Continue, *Return:
			found = true
		case Loop:
			// break and continue inside a nested loop belong to it
			found = hasReturn(n.Body())
			return false
		}
		return !found
	})
	return found
}

func hasReturn(stmts []Stmt) bool {
	found := false
	InspectStmts(stmts, func(n Node) bool {
		if _, ok := n.(*Return); ok {
			found = true
		}
		return !found
	})
	return found
}

// Reads reports whether e references name.
func Reads(e Expr, name string) bool {
	found := false
	Inspect(e, func(n Node) bool {
		if id, ok := n.(*Ident); ok && id.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// Preorder lists the nodes under n in Inspect order. Structurally identical
// trees produce lists that correspond index by index.
func Preorder(n Node) []Node {
	var out []Node
	Inspect(n, func(n Node) bool {
		out = append(out, n)
		return true
	})
	return out
}
