package script

// SymbolKind is how a name was introduced.
type SymbolKind string

const (
	SymbolVar      SymbolKind = "var"
	SymbolLet      SymbolKind = "let"
	SymbolConst    SymbolKind = "const"
	SymbolParam    SymbolKind = "param"
	SymbolFunction SymbolKind = "function"
)

// Symbol is a declared name and every place it is read or written.
type Symbol struct {
	Name     string
	Kind     SymbolKind
	DeclLine int
	Init     Expr
	// Func is the function the name is bound to, for function declarations
	// and variables initialized with a function literal.
	Func   *FuncLit
	Scope  *Scope
	Reads  []int
	Writes []int
}

// Used reports whether the symbol is ever read.
func (s *Symbol) Used() bool { return len(s.Reads) > 0 }

// Reference is a use of a name that no scope declares.
type Reference struct {
	Name  string
	Line  int
	Read  bool
	Write bool
}

// Scope is the set of names declared directly in one function, or at the
// top level of a script when Func is nil. Declarations are function scoped.
type Scope struct {
	Parent   *Scope
	Func     *FuncLit
	Symbols  map[string]*Symbol
	Order    []*Symbol
	Children []*Scope

	// Free holds unresolved references; only the root scope collects them.
	Free []Reference

	funcs map[*FuncLit]*Scope
}

func newScope(parent *Scope, fn *FuncLit) *Scope {
	s := &Scope{Parent: parent, Func: fn, Symbols: make(map[string]*Symbol)}
	if parent == nil {
		s.funcs = make(map[*FuncLit]*Scope)
	} else {
		parent.Children = append(parent.Children, s)
		s.funcs = parent.funcs
		s.funcs[fn] = s
	}
	return s
}

// Find looks a name up through the enclosing scopes.
func (s *Scope) Find(name string) *Symbol {
	for cur := s; cur != nil; cur = cur.Parent {
		if sym, ok := cur.Symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// FuncScope returns the scope created for fn.
func (s *Scope) FuncScope(fn *FuncLit) *Scope {
	return s.funcs[fn]
}

// Root returns the top-level scope.
func (s *Scope) Root() *Scope {
	for s.Parent != nil {
		s = s.Parent
	}
	return s
}

// Walk calls fn for s and every nested scope in declaration order.
func (s *Scope) Walk(fn func(*Scope)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// FreeReads returns the names read but never declared.
func (s *Scope) FreeReads() map[string]bool {
	names := make(map[string]bool)
	for _, ref := range s.Root().Free {
		if ref.Read {
			names[ref.Name] = true
		}
	}
	return names
}

func (s *Scope) declare(name string, kind SymbolKind, line int, init Expr) *Symbol {
	if sym, ok := s.Symbols[name]; ok {
		return sym
	}
	sym := &Symbol{Name: name, Kind: kind, DeclLine: line, Init: init, Scope: s}
	if init != nil {
		if fn, ok := Unparen(init).(*FuncLit); ok {
			sym.Func = fn
		}
	}
	s.Symbols[name] = sym
	s.Order = append(s.Order, sym)
	return sym
}

func (s *Scope) reference(name string, line int, read, write bool) {
	sym := s.Find(name)
	if sym == nil {
		root := s.Root()
		root.Free = append(root.Free, Reference{Name: name, Line: line, Read: read, Write: write})
		return
	}
	if read {
		sym.Reads = append(sym.Reads, line)
	}
	if write {
		sym.Writes = append(sym.Writes, line)
	}
}

// Resolve builds the scope tree of a program and binds every identifier
// reference to its declaration. Declarations are hoisted to the top of
// their function before references are bound.
func Resolve(prog *Program) *Scope {
	root := newScope(nil, nil)
	if prog == nil {
		return root
	}
	hoist(root, prog.Body)
	for _, stmt := range prog.Body {
		visit(root, stmt)
	}
	return root
}

func hoist(s *Scope, stmts []Stmt) {
	for _, stmt := range stmts {
		Inspect(stmt, func(n Node) bool {
			switch n := n.(type) {
			case *VarDecl:
				for _, d := range n.Decls {
					s.declare(d.Name, SymbolKind(n.Kind), d.Line, d.Init)
				}
			case *FuncDecl:
				sym := s.declare(n.Func.Name, SymbolFunction, n.Line, nil)
				sym.Func = n.Func
				return false
			case *ForInStmt:
				if n.Decl != "" {
					s.declare(n.Name, SymbolKind(n.Decl), n.Line, nil)
				}
			case *FuncLit:
				return false
			}
			return true
		})
	}
}

func visit(s *Scope, node Node) {
	Inspect(node, func(n Node) bool {
		switch n := n.(type) {
		case *Ident:
			s.reference(n.Name, n.Line, true, false)
			return false
		case *AssignExpr:
			if id, ok := Unparen(n.Target).(*Ident); ok {
				s.reference(id.Name, id.Line, n.Op != "=", true)
			} else {
				visit(s, n.Target)
			}
			visit(s, n.Value)
			return false
		case *UnaryExpr:
			if n.Op == "++" || n.Op == "--" {
				if id, ok := Unparen(n.X).(*Ident); ok {
					s.reference(id.Name, id.Line, true, true)
					return false
				}
			}
		case *ForInStmt:
			if n.Decl == "" {
				s.reference(n.Name, n.Line, false, true)
			}
		case *FuncLit:
			function(s, n)
			return false
		}
		return true
	})
}

func function(parent *Scope, fn *FuncLit) {
	s := newScope(parent, fn)
	for _, p := range fn.Params {
		s.declare(p.Name, SymbolParam, p.Line, nil)
	}
	if fn.Body != nil {
		hoist(s, fn.Body.List)
	}
	for _, p := range fn.Params {
		if p.Default != nil {
			visit(s, p.Default)
		}
	}
	if fn.Body != nil {
		for _, stmt := range fn.Body.List {
			visit(s, stmt)
		}
	} else if fn.ExprBody != nil {
		visit(s, fn.ExprBody)
	}
}
