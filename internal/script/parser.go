package script

import (
	"fmt"
	"strconv"
	"strings"
)

// maxDepth bounds recursion on pathological input.
const maxDepth = 500

type bailout struct {
	line int
	msg  string
}

type parser struct {
	src        Source
	toks       []Token
	pos        int
	depth      int
	blockDepth int
	warnings   []ParseWarning
}

// Parse builds the syntax tree of a script. Unrecognized constructs are
// skipped and recorded as warnings on the Program; a *ParseError is
// returned only when no statement at all could be parsed.
func Parse(src Source) (*Program, error) {
	startLine := src.StartLine
	if startLine < 1 {
		startLine = 1
	}
	p := &parser{src: src, toks: src.remap(Lex(src.body(), startLine))}
	prog := &Program{Source: src, EndLine: startLine}

	parsed := 0
	for !p.atEOF() {
		stmt, ok := p.safeStatement()
		if !ok {
			continue
		}
		prog.Body = append(prog.Body, stmt)
		parsed++
	}
	prog.Warnings = p.warnings
	if n := len(p.toks); n > 1 {
		prog.EndLine = p.toks[n-2].Line
	}

	if parsed == 0 && len(p.warnings) > 0 {
		first := p.warnings[0]
		return nil, &ParseError{Source: src, Line: first.Line, Msg: first.Msg, Warnings: p.warnings}
	}
	return prog, nil
}

// Token navigation

func (p *parser) cur() Token { return p.toks[p.pos] }

func (p *parser) peek(n int) Token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) atEOF() bool { return p.cur().Kind == TokenEOF }

func (p *parser) is(text string) bool {
	t := p.cur()
	return t.Kind == TokenPunct && t.Text == text
}

func (p *parser) isKeyword(word string) bool {
	t := p.cur()
	return t.Kind == TokenIdent && t.Text == word
}

func (p *parser) got(text string) bool {
	if p.is(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) Token {
	if !p.is(text) {
		p.failf("expected %q, found %s", text, describe(p.cur()))
	}
	return p.next()
}

func (p *parser) failf(format string, args ...interface{}) {
	panic(bailout{line: p.cur().Line, msg: fmt.Sprintf(format, args...)})
}

func (p *parser) enter() {
	p.depth++
	if p.depth > maxDepth {
		p.failf("nesting too deep")
	}
}

func (p *parser) leave() { p.depth-- }

func describe(t Token) string {
	switch t.Kind {
	case TokenEOF:
		return "end of script"
	case TokenIllegal:
		return fmt.Sprintf("invalid token %q", t.Text)
	}
	return fmt.Sprintf("%q", t.Text)
}

// Statements

// safeStatement parses one statement, recovering from a bailout by skipping
// ahead to a plausible statement boundary.
func (p *parser) safeStatement() (stmt Stmt, ok bool) {
	start := p.pos
	depth := p.depth
	blockDepth := p.blockDepth
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		b, isBailout := r.(bailout)
		if !isBailout {
			panic(r)
		}
		p.depth = depth
		p.blockDepth = blockDepth
		p.warnings = append(p.warnings, ParseWarning{Line: b.line, Msg: b.msg})
		p.resync(start, p.pos)
		stmt, ok = nil, false
	}()
	return p.statement(), true
}

var statementKeywords = map[string]bool{
	"var": true, "let": true, "const": true, "if": true, "for": true, "while": true,
	"do": true, "return": true, "function": true, "break": true, "continue": true,
}

// resync rescans from the start of the failed statement and stops after the
// error position at a `;` or a newline-led statement keyword, or before a
// `}` that closes the enclosing block.
func (p *parser) resync(start, errPos int) {
	p.pos = start
	depth := 0
	for !p.atEOF() {
		t := p.cur()
		past := p.pos > errPos || (p.pos == errPos && p.pos > start)
		if t.Kind == TokenPunct {
			switch t.Text {
			case "{", "(", "[":
				depth++
			case ")", "]":
				if depth > 0 {
					depth--
				}
			case "}":
				if depth == 0 {
					if p.pos > start {
						return
					}
				} else {
					depth--
				}
			case ";":
				if depth == 0 && p.pos >= errPos {
					p.next()
					return
				}
			}
		}
		if past && depth == 0 && t.Kind == TokenIdent && t.NewlineBefore && statementKeywords[t.Text] {
			return
		}
		p.next()
	}
}

func (p *parser) statement() Stmt {
	p.enter()
	defer p.leave()

	tok := p.cur()
	if tok.Kind == TokenPunct {
		switch tok.Text {
		case "{":
			if p.objectLiteralAhead() {
				return p.exprStatement()
			}
			return p.block()
		case ";":
			p.next()
			return &EmptyStmt{Line: tok.Line}
		}
	}
	if tok.Kind == TokenIdent {
		switch tok.Text {
		case "var", "let", "const":
			decl := p.varDecl()
			p.semicolon()
			return decl
		case "function":
			if p.peek(1).Kind == TokenIdent {
				fn := p.funcLit()
				return &FuncDecl{Line: tok.Line, Func: fn}
			}
		case "if":
			return p.ifStmt()
		case "while":
			p.next()
			p.expect("(")
			cond := p.expression()
			p.expect(")")
			return &WhileStmt{Line: tok.Line, Cond: cond, Body: p.statement()}
		case "do":
			p.next()
			body := p.statement()
			if !p.isKeyword("while") {
				p.failf("expected while after do body, found %s", describe(p.cur()))
			}
			p.next()
			p.expect("(")
			cond := p.expression()
			p.expect(")")
			p.got(";")
			return &DoWhileStmt{Line: tok.Line, Body: body, Cond: cond}
		case "for":
			return p.forStmt()
		case "return":
			p.next()
			ret := &ReturnStmt{Line: tok.Line}
			if !p.endOfStatement() {
				ret.Result = p.expression()
			}
			p.semicolon()
			return ret
		case "break", "continue":
			p.next()
			if p.cur().Kind == TokenIdent && !p.cur().NewlineBefore {
				p.next()
			}
			p.semicolon()
			return &BranchStmt{Line: tok.Line, Tok: tok.Text}
		}
	}
	return p.exprStatement()
}

// objectLiteralAhead decides whether a `{` at statement start opens an
// object literal (as in the exports table of a standalone script).
func (p *parser) objectLiteralAhead() bool {
	t1, t2 := p.peek(1), p.peek(2)
	switch {
	case t1.Kind == TokenPunct && t1.Text == "}":
		return p.blockDepth == 0
	case t1.Kind == TokenPunct && t1.Text == "...":
		return true
	case t1.Kind == TokenIdent || t1.Kind == TokenString || t1.Kind == TokenNumber:
		if t2.Kind != TokenPunct {
			return false
		}
		switch t2.Text {
		case ":":
			return true
		case ",":
			return t1.Kind == TokenIdent
		case "}":
			return t1.Kind == TokenIdent && p.blockDepth == 0
		}
	}
	return false
}

func (p *parser) endOfStatement() bool {
	t := p.cur()
	return t.Kind == TokenEOF || t.NewlineBefore || (t.Kind == TokenPunct && (t.Text == ";" || t.Text == "}"))
}

// semicolon accepts an explicit `;` or an automatic one before a newline,
// a closing brace or the end of the script.
func (p *parser) semicolon() {
	if p.got(";") {
		return
	}
	if p.endOfStatement() {
		return
	}
	p.failf("expected ';', found %s", describe(p.cur()))
}

func (p *parser) exprStatement() Stmt {
	line := p.cur().Line
	x := p.expression()
	p.semicolon()
	return &ExprStmt{Line: line, X: x}
}

func (p *parser) block() *BlockStmt {
	open := p.expect("{")
	b := &BlockStmt{Line: open.Line}
	p.blockDepth++
	for !p.is("}") {
		if p.atEOF() {
			p.failf("unterminated block starting on line %d", open.Line)
		}
		if stmt, ok := p.safeStatement(); ok {
			b.List = append(b.List, stmt)
		}
	}
	p.blockDepth--
	b.EndLine = p.next().Line
	return b
}

func (p *parser) varDecl() *VarDecl {
	kw := p.next()
	d := &VarDecl{Line: kw.Line, Kind: DeclKind(kw.Text)}
	for {
		name := p.cur()
		if name.Kind != TokenIdent {
			p.failf("unsupported declaration target %s", describe(name))
		}
		p.next()
		decl := &Declarator{Line: name.Line, Name: name.Text}
		if p.got("=") {
			decl.Init = p.assignment()
		}
		d.Decls = append(d.Decls, decl)
		if !p.got(",") {
			return d
		}
	}
}

func (p *parser) ifStmt() Stmt {
	kw := p.next()
	p.expect("(")
	cond := p.expression()
	p.expect(")")
	s := &IfStmt{Line: kw.Line, Cond: cond, Then: p.statement()}
	if p.isKeyword("else") {
		p.next()
		s.Else = p.statement()
	}
	return s
}

func (p *parser) forStmt() Stmt {
	kw := p.next()
	p.expect("(")

	// for (x of xs) / for (const x in obj)
	var decl DeclKind
	look := 0
	if t := p.cur(); t.Kind == TokenIdent && (t.Text == "var" || t.Text == "let" || t.Text == "const") {
		decl = DeclKind(t.Text)
		look = 1
	}
	if name, op := p.peek(look), p.peek(look+1); name.Kind == TokenIdent && op.Kind == TokenIdent && (op.Text == "of" || op.Text == "in") {
		p.pos += look + 2
		iter := p.expression()
		p.expect(")")
		return &ForInStmt{Line: kw.Line, Decl: decl, Name: name.Text, Of: op.Text == "of", Iter: iter, Body: p.statement()}
	}

	s := &ForStmt{Line: kw.Line}
	if !p.is(";") {
		if decl != "" {
			s.Init = p.varDecl()
		} else {
			line := p.cur().Line
			s.Init = &ExprStmt{Line: line, X: p.expression()}
		}
	}
	p.expect(";")
	if !p.is(";") {
		s.Cond = p.expression()
	}
	p.expect(";")
	if !p.is(")") {
		s.Update = p.expression()
	}
	p.expect(")")
	s.Body = p.statement()
	return s
}

// Expressions

func (p *parser) expression() Expr {
	x := p.assignment()
	for p.is(",") {
		line := p.next().Line
		x = &BinaryExpr{Line: line, Op: ",", X: x, Y: p.assignment()}
	}
	return x
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"**=": true, "&&=": true, "||=": true, "??=": true,
}

func (p *parser) assignment() Expr {
	p.enter()
	defer p.leave()

	if p.arrowAhead() {
		return p.arrowFunc()
	}
	left := p.conditional()
	if t := p.cur(); t.Kind == TokenPunct && assignOps[t.Text] {
		switch Unparen(left).(type) {
		case *Ident, *MemberExpr, *IndexExpr:
		default:
			p.failf("invalid assignment target")
		}
		p.next()
		return &AssignExpr{Line: left.Pos(), Op: t.Text, Target: left, Value: p.assignment()}
	}
	return left
}

func (p *parser) conditional() Expr {
	cond := p.binary(1)
	if !p.is("?") {
		return cond
	}
	p.next()
	then := p.assignment()
	p.expect(":")
	return &ConditionalExpr{Line: cond.Pos(), Cond: cond, Then: then, Else: p.assignment()}
}

var binaryPrec = map[string]int{
	"??": 1,
	"||": 2,
	"&&": 3,
	"|":  4,
	"^":  5,
	"&":  6,
	"==": 7, "!=": 7, "===": 7, "!==": 7,
	"<": 8, ">": 8, "<=": 8, ">=": 8, "in": 8, "instanceof": 8,
	"<<": 9, ">>": 9,
	"+": 10, "-": 10,
	"*": 11, "/": 11, "%": 11,
	"**": 12,
}

func (p *parser) binaryOp() (string, int) {
	t := p.cur()
	switch t.Kind {
	case TokenPunct:
		if prec, ok := binaryPrec[t.Text]; ok {
			return t.Text, prec
		}
	case TokenIdent:
		if t.Text == "in" || t.Text == "instanceof" {
			return t.Text, binaryPrec[t.Text]
		}
	}
	return "", 0
}

func (p *parser) binary(minPrec int) Expr {
	left := p.unary()
	for {
		op, prec := p.binaryOp()
		if op == "" || prec < minPrec {
			return left
		}
		p.next()
		nextMin := prec + 1
		if op == "**" {
			nextMin = prec
		}
		right := p.binary(nextMin)
		left = makeBinary(op, left, right)
	}
}

func makeBinary(op string, x, y Expr) Expr {
	line := x.Pos()
	switch op {
	case "&&", "||", "??":
		return &LogicalExpr{Line: line, Op: op, X: x, Y: y}
	case "+":
		if isStringOperand(x) || isStringOperand(y) {
			return &ConcatExpr{Line: line, X: x, Y: y}
		}
	}
	return &BinaryExpr{Line: line, Op: op, X: x, Y: y}
}

func isStringOperand(e Expr) bool {
	switch Unparen(e).(type) {
	case *StringLit, *ConcatExpr:
		return true
	}
	return false
}

var prefixOps = map[string]bool{"!": true, "-": true, "+": true, "~": true, "++": true, "--": true}

var prefixWords = map[string]bool{"typeof": true, "void": true, "delete": true, "empty": true}

func (p *parser) unary() Expr {
	p.enter()
	defer p.leave()

	t := p.cur()
	if (t.Kind == TokenPunct && prefixOps[t.Text]) || (t.Kind == TokenIdent && prefixWords[t.Text] && p.operandFollows()) {
		p.next()
		return &UnaryExpr{Line: t.Line, Op: t.Text, X: p.unary()}
	}
	return p.postfix()
}

// operandFollows reports whether the token after a prefix word starts an
// operand on the same line, so `empty` can still be used as a name.
func (p *parser) operandFollows() bool {
	n := p.peek(1)
	if n.NewlineBefore {
		return false
	}
	switch n.Kind {
	case TokenIdent, TokenNumber, TokenString, TokenTemplate:
		return !(n.Kind == TokenIdent && (n.Text == "in" || n.Text == "instanceof"))
	case TokenPunct:
		return n.Text == "(" || n.Text == "[" || n.Text == "{" || n.Text == "!"
	}
	return false
}

func (p *parser) postfix() Expr {
	x := p.callMember()
	if t := p.cur(); t.Kind == TokenPunct && (t.Text == "++" || t.Text == "--") && !t.NewlineBefore {
		p.next()
		return &UnaryExpr{Line: x.Pos(), Op: t.Text, X: x, Postfix: true}
	}
	return x
}

func (p *parser) callMember() Expr {
	x := p.primary()
	for {
		t := p.cur()
		if t.Kind != TokenPunct {
			return x
		}
		switch t.Text {
		case ".":
			p.next()
			x = &MemberExpr{Line: x.Pos(), X: x, Name: p.propertyName()}
		case "?.":
			p.next()
			switch {
			case p.is("("):
				x = &CallExpr{Line: x.Pos(), Callee: x, Args: p.arguments(), Optional: true}
			case p.is("["):
				p.next()
				idx := p.expression()
				p.expect("]")
				x = &IndexExpr{Line: x.Pos(), X: x, Index: idx, Optional: true}
			default:
				x = &MemberExpr{Line: x.Pos(), X: x, Name: p.propertyName(), Optional: true}
			}
		case "[":
			p.next()
			idx := p.expression()
			p.expect("]")
			x = &IndexExpr{Line: x.Pos(), X: x, Index: idx}
		case "(":
			x = &CallExpr{Line: x.Pos(), Callee: x, Args: p.arguments()}
		default:
			return x
		}
	}
}

func (p *parser) propertyName() string {
	t := p.cur()
	if t.Kind != TokenIdent {
		p.failf("expected property name, found %s", describe(t))
	}
	p.next()
	return t.Text
}

func (p *parser) arguments() []Expr {
	p.expect("(")
	var args []Expr
	for !p.is(")") {
		if p.is("...") {
			line := p.next().Line
			args = append(args, &SpreadExpr{Line: line, X: p.assignment()})
		} else {
			args = append(args, p.assignment())
		}
		if !p.got(",") {
			break
		}
	}
	p.expect(")")
	return args
}

func (p *parser) primary() Expr {
	t := p.cur()
	switch t.Kind {
	case TokenNumber:
		p.next()
		return &NumberLit{Line: t.Line, Raw: t.Text, Value: parseNumber(t.Text)}
	case TokenString:
		p.next()
		return &StringLit{Line: t.Line, Raw: t.Text, Value: t.Value}
	case TokenTemplate:
		p.next()
		return p.template(t)
	case TokenIdent:
		return p.identifierExpr()
	case TokenPunct:
		switch t.Text {
		case "(":
			p.next()
			x := p.expression()
			p.expect(")")
			return &ParenExpr{Line: t.Line, X: x}
		case "[":
			return p.arrayLit()
		case "{":
			return p.objectLit()
		}
	}
	p.failf("unexpected %s", describe(t))
	return nil
}

func (p *parser) identifierExpr() Expr {
	t := p.next()
	switch t.Text {
	case "true", "false":
		return &BoolLit{Line: t.Line, Value: t.Text == "true"}
	case "null", "undefined":
		return &NullLit{Line: t.Line, Raw: t.Text}
	case "function":
		p.pos--
		return p.funcLit()
	case "new":
		return p.callMember()
	}

	// ns:fn(args) with no whitespace around the colon.
	colon, name, paren := p.cur(), p.peek(1), p.peek(2)
	if colon.Kind == TokenPunct && colon.Text == ":" && !colon.SpaceBefore &&
		name.Kind == TokenIdent && !name.SpaceBefore &&
		paren.Kind == TokenPunct && paren.Text == "(" {
		p.pos += 2
		return &NamespacedCall{Line: t.Line, Namespace: t.Text, Name: name.Text, Args: p.arguments()}
	}
	return &Ident{Line: t.Line, Name: t.Text}
}

func (p *parser) template(t Token) Expr {
	lit := &TemplateLit{Line: t.Line, Raw: t.Text}
	for _, part := range t.Parts {
		sub := &parser{src: p.src, toks: p.src.remap(Lex(part.Text, part.Line))}
		lit.Exprs = append(lit.Exprs, sub.interpolation())
		p.warnings = append(p.warnings, sub.warnings...)
	}
	return lit
}

// interpolation parses a single ${} body; failures degrade to BadExpr.
func (p *parser) interpolation() (x Expr) {
	line := p.cur().Line
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			p.warnings = append(p.warnings, ParseWarning{Line: b.line, Msg: "template interpolation: " + b.msg})
			x = &BadExpr{Line: line}
		}
	}()
	x = p.expression()
	if !p.atEOF() {
		p.failf("unexpected %s", describe(p.cur()))
	}
	return x
}

func (p *parser) arrayLit() Expr {
	open := p.expect("[")
	arr := &ArrayLit{Line: open.Line}
	for !p.is("]") {
		if p.is(",") {
			p.next()
			continue
		}
		if p.is("...") {
			line := p.next().Line
			arr.Elems = append(arr.Elems, &SpreadExpr{Line: line, X: p.assignment()})
		} else {
			arr.Elems = append(arr.Elems, p.assignment())
		}
		if !p.got(",") {
			break
		}
	}
	p.expect("]")
	return arr
}

func (p *parser) objectLit() Expr {
	open := p.expect("{")
	obj := &ObjectLit{Line: open.Line}
	for !p.is("}") {
		t := p.cur()
		prop := &Property{Line: t.Line}
		switch {
		case t.Kind == TokenPunct && t.Text == "...":
			p.next()
			prop.Key = "..."
			prop.Value = &SpreadExpr{Line: t.Line, X: p.assignment()}
		case t.Kind == TokenPunct && t.Text == "[":
			p.next()
			prop.Computed = p.assignment()
			p.expect("]")
			p.expect(":")
			prop.Value = p.assignment()
		case t.Kind == TokenIdent || t.Kind == TokenString || t.Kind == TokenNumber:
			p.next()
			prop.Key = t.Text
			if t.Kind == TokenString {
				prop.Key = t.Value
			}
			switch {
			case p.got(":"):
				prop.Value = p.assignment()
			case p.is("("):
				fn := &FuncLit{Line: t.Line, Name: prop.Key}
				fn.Params = p.params()
				fn.Body = p.block()
				fn.EndLine = fn.Body.EndLine
				prop.Value = fn
			case t.Kind == TokenIdent && (p.is(",") || p.is("}")):
				prop.Shorthand = true
				prop.Value = &Ident{Line: t.Line, Name: t.Text}
			default:
				p.failf("expected ':' after property %s", describe(t))
			}
		default:
			p.failf("unexpected %s in object literal", describe(t))
		}
		obj.Props = append(obj.Props, prop)
		if !p.got(",") {
			break
		}
	}
	obj.EndLine = p.expect("}").Line
	return obj
}

func (p *parser) funcLit() *FuncLit {
	kw := p.next()
	fn := &FuncLit{Line: kw.Line}
	if p.cur().Kind == TokenIdent {
		fn.Name = p.next().Text
	}
	fn.Params = p.params()
	fn.Body = p.block()
	fn.EndLine = fn.Body.EndLine
	return fn
}

func (p *parser) params() []*Param {
	p.expect("(")
	var params []*Param
	for !p.is(")") {
		param := &Param{Line: p.cur().Line}
		if p.got("...") {
			param.Rest = true
		}
		name := p.cur()
		if name.Kind != TokenIdent {
			p.failf("unsupported parameter %s", describe(name))
		}
		p.next()
		param.Name = name.Text
		if p.got("=") {
			param.Default = p.assignment()
		}
		params = append(params, param)
		if !p.got(",") {
			break
		}
	}
	p.expect(")")
	return params
}

// arrowAhead reports whether the tokens at the cursor start an arrow function.
func (p *parser) arrowAhead() bool {
	t := p.cur()
	if t.Kind == TokenIdent {
		n := p.peek(1)
		return n.Kind == TokenPunct && n.Text == "=>"
	}
	if t.Kind != TokenPunct || t.Text != "(" {
		return false
	}
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		tok := p.toks[i]
		if tok.Kind == TokenEOF {
			return false
		}
		if tok.Kind != TokenPunct {
			continue
		}
		switch tok.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth == 0 {
				n := p.toks[i+1]
				return n.Kind == TokenPunct && n.Text == "=>"
			}
		}
	}
	return false
}

func (p *parser) arrowFunc() Expr {
	start := p.cur()
	fn := &FuncLit{Line: start.Line, Arrow: true}
	if start.Kind == TokenIdent {
		p.next()
		fn.Params = []*Param{{Line: start.Line, Name: start.Text}}
	} else {
		fn.Params = p.params()
	}
	p.expect("=>")
	if p.is("{") {
		fn.Body = p.block()
		fn.EndLine = fn.Body.EndLine
		return fn
	}
	fn.ExprBody = p.assignment()
	fn.EndLine = p.toks[p.pos-1].Line
	return fn
}

func parseNumber(raw string) float64 {
	clean := strings.ReplaceAll(raw, "_", "")
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		n, err := strconv.ParseInt(clean[2:], 16, 64)
		if err != nil {
			return 0
		}
		return float64(n)
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return f
}
