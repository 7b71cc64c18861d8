package script

// Inspect traverses the tree rooted at node in depth-first order, calling fn
// for each node. If fn returns false the children of that node are skipped.
func Inspect(node Node, fn func(Node) bool) {
	if node == nil || isNilNode(node) {
		return
	}
	if !fn(node) {
		return
	}
	for _, child := range children(node) {
		Inspect(child, fn)
	}
}

// InspectProgram runs Inspect over every top-level statement.
func InspectProgram(prog *Program, fn func(Node) bool) {
	if prog == nil {
		return
	}
	for _, stmt := range prog.Body {
		Inspect(stmt, fn)
	}
}

func isNilNode(n Node) bool {
	switch v := n.(type) {
	case *BlockStmt:
		return v == nil
	case *FuncLit:
		return v == nil
	case *VarDecl:
		return v == nil
	}
	return false
}

func children(node Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, n := range nodes {
			if n == nil || isNilNode(n) {
				continue
			}
			out = append(out, n)
		}
	}
	addExpr := func(e Expr) {
		if e != nil {
			out = append(out, e)
		}
	}
	addStmt := func(s Stmt) {
		if s != nil && !isNilNode(s) {
			out = append(out, s)
		}
	}

	switch n := node.(type) {
	case *VarDecl:
		for _, d := range n.Decls {
			add(d)
		}
	case *Declarator:
		addExpr(n.Init)
	case *FuncDecl:
		add(n.Func)
	case *ExprStmt:
		addExpr(n.X)
	case *BlockStmt:
		for _, s := range n.List {
			addStmt(s)
		}
	case *IfStmt:
		addExpr(n.Cond)
		addStmt(n.Then)
		addStmt(n.Else)
	case *WhileStmt:
		addExpr(n.Cond)
		addStmt(n.Body)
	case *DoWhileStmt:
		addStmt(n.Body)
		addExpr(n.Cond)
	case *ForStmt:
		addStmt(n.Init)
		addExpr(n.Cond)
		addExpr(n.Update)
		addStmt(n.Body)
	case *ForInStmt:
		addExpr(n.Iter)
		addStmt(n.Body)
	case *ReturnStmt:
		addExpr(n.Result)
	case *TemplateLit:
		for _, e := range n.Exprs {
			addExpr(e)
		}
	case *ArrayLit:
		for _, e := range n.Elems {
			addExpr(e)
		}
	case *ObjectLit:
		for _, p := range n.Props {
			add(p)
		}
	case *Property:
		addExpr(n.Computed)
		addExpr(n.Value)
	case *Param:
		addExpr(n.Default)
	case *FuncLit:
		for _, p := range n.Params {
			add(p)
		}
		if n.Body != nil {
			add(n.Body)
		}
		addExpr(n.ExprBody)
	case *UnaryExpr:
		addExpr(n.X)
	case *BinaryExpr:
		addExpr(n.X)
		addExpr(n.Y)
	case *LogicalExpr:
		addExpr(n.X)
		addExpr(n.Y)
	case *ConcatExpr:
		addExpr(n.X)
		addExpr(n.Y)
	case *ConditionalExpr:
		addExpr(n.Cond)
		addExpr(n.Then)
		addExpr(n.Else)
	case *AssignExpr:
		addExpr(n.Target)
		addExpr(n.Value)
	case *CallExpr:
		addExpr(n.Callee)
		for _, a := range n.Args {
			addExpr(a)
		}
	case *NamespacedCall:
		for _, a := range n.Args {
			addExpr(a)
		}
	case *MemberExpr:
		addExpr(n.X)
	case *IndexExpr:
		addExpr(n.X)
		addExpr(n.Index)
	case *SpreadExpr:
		addExpr(n.X)
	case *ParenExpr:
		addExpr(n.X)
	}
	return out
}

// Functions returns every function in the program in source order,
// including nested ones.
func Functions(prog *Program) []*FuncLit {
	var fns []*FuncLit
	InspectProgram(prog, func(n Node) bool {
		if fn, ok := n.(*FuncLit); ok {
			fns = append(fns, fn)
		}
		return true
	})
	return fns
}
