package graph

import (
	"sort"

	"extendaudit/internal/script"
)

// FromProgram builds the top-level reference graph of a standalone script.
// It returns the graph and the root IDs: names listed in the exports table,
// inline exported functions, and names used by top-level code that runs on
// load (plain statements and non-function initializers).
func FromProgram(prog *script.Program) (*Graph, []string) {
	g := NewGraph()
	if prog == nil {
		return g, nil
	}
	path := prog.Source.Path
	exports := prog.Exports()
	rootSet := make(map[string]bool)

	// 1. Declarations
	for _, stmt := range prog.Body {
		switch s := stmt.(type) {
		case *script.FuncDecl:
			g.AddSymbol(functionSymbol(path, s.Func.Name, s.Func, SymbolFunction))
		case *script.VarDecl:
			for _, d := range s.Decls {
				if fn, ok := unparenFunc(d.Init); ok {
					sym := functionSymbol(path, d.Name, fn, SymbolFunction)
					sym.StartLine = d.Line
					g.AddSymbol(sym)
					continue
				}
				g.AddSymbol(&Symbol{ID: d.Name, Name: d.Name, Filepath: path, Kind: SymbolVariable, StartLine: d.Line, EndLine: d.Line})
				if d.Init != nil {
					for _, name := range references(d.Init) {
						rootSet[name] = true
					}
				}
			}
		}
	}

	// 2. Exports and load-time statements
	for _, stmt := range prog.Body {
		switch s := stmt.(type) {
		case *script.FuncDecl, *script.VarDecl:
			continue
		case *script.ExprStmt:
			if exports != nil && s.X == script.Expr(exports) {
				for _, prop := range exports.Props {
					addExport(g, path, prop, rootSet)
				}
				continue
			}
		}
		for _, name := range references(stmt) {
			rootSet[name] = true
		}
	}

	g.LinkRelations()

	roots := make([]string, 0, len(rootSet))
	for name := range rootSet {
		roots = append(roots, g.Lookup(name)...)
	}
	sort.Strings(roots)
	return g, roots
}

func addExport(g *Graph, path string, prop *script.Property, rootSet map[string]bool) {
	if prop.Value == nil {
		return
	}
	switch v := script.Unparen(prop.Value).(type) {
	case *script.Ident:
		rootSet[v.Name] = true
	case *script.FuncLit:
		id := "export:" + prop.Key
		g.AddSymbol(functionSymbol(path, id, v, SymbolExport))
		rootSet[id] = true
	default:
		for _, name := range references(prop.Value) {
			rootSet[name] = true
		}
	}
}

// functionSymbol records the names fn uses. Names the function or one of
// its nested functions declares for itself hide the top-level declaration
// and are not relations.
func functionSymbol(path, name string, fn *script.FuncLit, kind SymbolKind) *Symbol {
	start, end := fn.Span()
	sym := &Symbol{ID: name, Name: name, Filepath: path, Kind: kind, StartLine: start, EndLine: end}
	seen := make(map[string]bool)
	var walk func(cur *script.FuncLit, outer map[string]bool)
	walk = func(cur *script.FuncLit, outer map[string]bool) {
		shadowed := localNames(cur, outer)
		script.Inspect(cur, func(n script.Node) bool {
			switch x := n.(type) {
			case *script.FuncLit:
				if x != cur {
					walk(x, shadowed)
					return false
				}
			case *script.CallExpr:
				if id, ok := script.Unparen(x.Callee).(*script.Ident); ok && !shadowed[id.Name] && !seen[id.Name] {
					seen[id.Name] = true
					sym.Relations = append(sym.Relations, Relation{Target: id.Name, Kind: RelationCalls, Line: x.Line})
				}
			case *script.Ident:
				if !shadowed[x.Name] && !seen[x.Name] {
					seen[x.Name] = true
					sym.Relations = append(sym.Relations, Relation{Target: x.Name, Kind: RelationReferences, Line: x.Line})
				}
			}
			return true
		})
	}
	walk(fn, nil)
	return sym
}

// localNames extends outer with what fn declares in its own scope: its name,
// parameters, var/let/const and for-in bindings, and nested function
// declarations.
func localNames(fn *script.FuncLit, outer map[string]bool) map[string]bool {
	names := make(map[string]bool, len(outer))
	for name := range outer {
		names[name] = true
	}
	if fn.Name != "" {
		names[fn.Name] = true
	}
	for _, p := range fn.Params {
		names[p.Name] = true
	}
	if fn.Body == nil {
		return names
	}
	for _, stmt := range fn.Body.List {
		script.Inspect(stmt, func(n script.Node) bool {
			switch x := n.(type) {
			case *script.VarDecl:
				for _, d := range x.Decls {
					names[d.Name] = true
				}
			case *script.FuncDecl:
				names[x.Func.Name] = true
				return false
			case *script.ForInStmt:
				if x.Decl != "" {
					names[x.Name] = true
				}
			case *script.FuncLit:
				return false
			}
			return true
		})
	}
	return names
}

func unparenFunc(e script.Expr) (*script.FuncLit, bool) {
	if e == nil {
		return nil, false
	}
	fn, ok := script.Unparen(e).(*script.FuncLit)
	return fn, ok
}

// references lists the identifier names used anywhere under node, sorted.
func references(node script.Node) []string {
	set := make(map[string]bool)
	script.Inspect(node, func(n script.Node) bool {
		if id, ok := n.(*script.Ident); ok {
			set[id.Name] = true
		}
		return true
	})
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
