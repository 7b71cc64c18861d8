package script

// Node is any syntax tree node. Pos is the artifact line the node starts on.
type Node interface {
	Pos() int
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// DeclKind is the keyword of a variable declaration.
type DeclKind string

const (
	DeclVar   DeclKind = "var"
	DeclLet   DeclKind = "let"
	DeclConst DeclKind = "const"
)

// Program is a parsed script.
type Program struct {
	Source   Source
	Body     []Stmt
	Warnings []ParseWarning
	EndLine  int
}

// Exports returns the trailing top-level object literal of a standalone
// script, which lists the names the script makes available to pages.
func (p *Program) Exports() *ObjectLit {
	if p == nil || p.Source.Embedded || len(p.Body) == 0 {
		return nil
	}
	for i := len(p.Body) - 1; i >= 0; i-- {
		switch s := p.Body[i].(type) {
		case *EmptyStmt:
			continue
		case *ExprStmt:
			if obj, ok := s.X.(*ObjectLit); ok {
				return obj
			}
		}
		return nil
	}
	return nil
}

// Statements

type (
	VarDecl struct {
		Line  int
		Kind  DeclKind
		Decls []*Declarator
	}

	Declarator struct {
		Line int
		Name string
		Init Expr
	}

	// FuncDecl is a `function name() {}` statement.
	FuncDecl struct {
		Line int
		Func *FuncLit
	}

	ExprStmt struct {
		Line int
		X    Expr
	}

	BlockStmt struct {
		Line    int
		EndLine int
		List    []Stmt
	}

	IfStmt struct {
		Line int
		Cond Expr
		Then Stmt
		Else Stmt
	}

	WhileStmt struct {
		Line int
		Cond Expr
		Body Stmt
	}

	DoWhileStmt struct {
		Line int
		Body Stmt
		Cond Expr
	}

	ForStmt struct {
		Line   int
		Init   Stmt
		Cond   Expr
		Update Expr
		Body   Stmt
	}

	// ForInStmt covers both `for (x in obj)` and `for (x of list)`.
	ForInStmt struct {
		Line int
		Decl DeclKind
		Name string
		Of   bool
		Iter Expr
		Body Stmt
	}

	ReturnStmt struct {
		Line   int
		Result Expr
	}

	BranchStmt struct {
		Line int
		Tok  string
	}

	EmptyStmt struct {
		Line int
	}
)

func (s *VarDecl) Pos() int     { return s.Line }
func (s *Declarator) Pos() int  { return s.Line }
func (s *FuncDecl) Pos() int    { return s.Line }
func (s *ExprStmt) Pos() int    { return s.Line }
func (s *BlockStmt) Pos() int   { return s.Line }
func (s *IfStmt) Pos() int      { return s.Line }
func (s *WhileStmt) Pos() int   { return s.Line }
func (s *DoWhileStmt) Pos() int { return s.Line }
func (s *ForStmt) Pos() int     { return s.Line }
func (s *ForInStmt) Pos() int   { return s.Line }
func (s *ReturnStmt) Pos() int  { return s.Line }
func (s *BranchStmt) Pos() int  { return s.Line }
func (s *EmptyStmt) Pos() int   { return s.Line }

func (*VarDecl) stmtNode()     {}
func (*FuncDecl) stmtNode()    {}
func (*ExprStmt) stmtNode()    {}
func (*BlockStmt) stmtNode()   {}
func (*IfStmt) stmtNode()      {}
func (*WhileStmt) stmtNode()   {}
func (*DoWhileStmt) stmtNode() {}
func (*ForStmt) stmtNode()     {}
func (*ForInStmt) stmtNode()   {}
func (*ReturnStmt) stmtNode()  {}
func (*BranchStmt) stmtNode()  {}
func (*EmptyStmt) stmtNode()   {}

// Expressions

type (
	Ident struct {
		Line int
		Name string
	}

	NumberLit struct {
		Line  int
		Raw   string
		Value float64
	}

	StringLit struct {
		Line  int
		Raw   string
		Value string
	}

	// TemplateLit is a backtick literal. It is atomic: the interpolated
	// expressions are parsed only so references inside them are seen.
	TemplateLit struct {
		Line  int
		Raw   string
		Exprs []Expr
	}

	BoolLit struct {
		Line  int
		Value bool
	}

	// NullLit is `null` or `undefined`.
	NullLit struct {
		Line int
		Raw  string
	}

	ArrayLit struct {
		Line  int
		Elems []Expr
	}

	ObjectLit struct {
		Line    int
		EndLine int
		Props   []*Property
	}

	Property struct {
		Line      int
		Key       string
		Computed  Expr
		Value     Expr
		Shorthand bool
	}

	Param struct {
		Line    int
		Name    string
		Default Expr
		Rest    bool
	}

	// FuncLit is a function expression, arrow function or the function of a FuncDecl.
	FuncLit struct {
		Line     int
		EndLine  int
		Name     string
		Params   []*Param
		Body     *BlockStmt
		ExprBody Expr
		Arrow    bool
	}

	UnaryExpr struct {
		Line    int
		Op      string
		X       Expr
		Postfix bool
	}

	BinaryExpr struct {
		Line int
		Op   string
		X    Expr
		Y    Expr
	}

	// LogicalExpr is &&, || or ??.
	LogicalExpr struct {
		Line int
		Op   string
		X    Expr
		Y    Expr
	}

	// ConcatExpr is `+` where at least one operand is a string.
	ConcatExpr struct {
		Line int
		X    Expr
		Y    Expr
	}

	ConditionalExpr struct {
		Line int
		Cond Expr
		Then Expr
		Else Expr
	}

	AssignExpr struct {
		Line   int
		Op     string
		Target Expr
		Value  Expr
	}

	CallExpr struct {
		Line     int
		Callee   Expr
		Args     []Expr
		Optional bool
	}

	// NamespacedCall is the platform's `ns:fn(args)` form.
	NamespacedCall struct {
		Line      int
		Namespace string
		Name      string
		Args      []Expr
	}

	MemberExpr struct {
		Line     int
		X        Expr
		Name     string
		Optional bool
	}

	IndexExpr struct {
		Line     int
		X        Expr
		Index    Expr
		Optional bool
	}

	SpreadExpr struct {
		Line int
		X    Expr
	}

	ParenExpr struct {
		Line int
		X    Expr
	}

	BadExpr struct {
		Line int
	}
)

func (e *Ident) Pos() int           { return e.Line }
func (e *NumberLit) Pos() int       { return e.Line }
func (e *StringLit) Pos() int       { return e.Line }
func (e *TemplateLit) Pos() int     { return e.Line }
func (e *BoolLit) Pos() int         { return e.Line }
func (e *NullLit) Pos() int         { return e.Line }
func (e *ArrayLit) Pos() int        { return e.Line }
func (e *ObjectLit) Pos() int       { return e.Line }
func (e *Property) Pos() int        { return e.Line }
func (e *Param) Pos() int           { return e.Line }
func (e *FuncLit) Pos() int         { return e.Line }
func (e *UnaryExpr) Pos() int       { return e.Line }
func (e *BinaryExpr) Pos() int      { return e.Line }
func (e *LogicalExpr) Pos() int     { return e.Line }
func (e *ConcatExpr) Pos() int      { return e.Line }
func (e *ConditionalExpr) Pos() int { return e.Line }
func (e *AssignExpr) Pos() int      { return e.Line }
func (e *CallExpr) Pos() int        { return e.Line }
func (e *NamespacedCall) Pos() int  { return e.Line }
func (e *MemberExpr) Pos() int      { return e.Line }
func (e *IndexExpr) Pos() int       { return e.Line }
func (e *SpreadExpr) Pos() int      { return e.Line }
func (e *ParenExpr) Pos() int       { return e.Line }
func (e *BadExpr) Pos() int         { return e.Line }

func (*Ident) exprNode()           {}
func (*NumberLit) exprNode()       {}
func (*StringLit) exprNode()       {}
func (*TemplateLit) exprNode()     {}
func (*BoolLit) exprNode()         {}
func (*NullLit) exprNode()         {}
func (*ArrayLit) exprNode()        {}
func (*ObjectLit) exprNode()       {}
func (*FuncLit) exprNode()         {}
func (*UnaryExpr) exprNode()       {}
func (*BinaryExpr) exprNode()      {}
func (*LogicalExpr) exprNode()     {}
func (*ConcatExpr) exprNode()      {}
func (*ConditionalExpr) exprNode() {}
func (*AssignExpr) exprNode()      {}
func (*CallExpr) exprNode()        {}
func (*NamespacedCall) exprNode()  {}
func (*MemberExpr) exprNode()      {}
func (*IndexExpr) exprNode()       {}
func (*SpreadExpr) exprNode()      {}
func (*ParenExpr) exprNode()       {}
func (*BadExpr) exprNode()         {}

// Unparen strips any parentheses around e.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}

// Span returns the first and last line of a function.
func (f *FuncLit) Span() (int, int) {
	end := f.EndLine
	if end < f.Line {
		end = f.Line
	}
	return f.Line, end
}
