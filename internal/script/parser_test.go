package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseStandalone(t *testing.T, text string) *Program {
	t.Helper()
	prog, err := Parse(Standalone("test.script", text))
	require.NoError(t, err)
	return prog
}

func TestLex_TracksLinesAndSpacing(t *testing.T) {
	toks := Lex("a = 1;\n  ns:fn(`x ${y}`)", 10)

	require.Len(t, toks, 11)
	assert.Equal(t, TokenIdent, toks[0].Kind)
	assert.Equal(t, 10, toks[0].Line)

	ns := toks[4]
	assert.Equal(t, "ns", ns.Text)
	assert.Equal(t, 11, ns.Line)
	assert.True(t, ns.NewlineBefore)

	colon := toks[5]
	assert.Equal(t, ":", colon.Text)
	assert.False(t, colon.SpaceBefore)

	tmpl := toks[8]
	assert.Equal(t, TokenTemplate, tmpl.Kind)
	require.Len(t, tmpl.Parts, 1)
	assert.Equal(t, "y", tmpl.Parts[0].Text)
	assert.Equal(t, 11, tmpl.Parts[0].Line)

	assert.Equal(t, TokenEOF, toks[10].Kind)
}

func TestLex_OptionalChainBeforeDigit(t *testing.T) {
	toks := Lex("a?.5:1", 1)
	texts := make([]string, 0, len(toks))
	for _, tok := range toks {
		texts = append(texts, tok.Text)
	}
	assert.Equal(t, []string{"a", "?", ".5", ":", "1", ""}, texts)
}

func TestParse_Statements(t *testing.T) {
	prog := parseStandalone(t, `var a = 1, b;
let c = a > 0 ? "x" : "y";
const f = function(p, q = 2) { return p + q; };
const g = (x) => x * 2;
const h = x => { return x; };
if (a) { b = 1; } else if (b) { b = 2; } else b = 3;
for (let i = 0; i < 10; i++) { continue; }
for (const item of items) { break; }
while (a) a--;
do { a++ } while (a < 5)
`)

	require.Len(t, prog.Body, 10)
	assert.Empty(t, prog.Warnings)

	decl, ok := prog.Body[0].(*VarDecl)
	require.True(t, ok)
	assert.Equal(t, DeclVar, decl.Kind)
	require.Len(t, decl.Decls, 2)
	assert.Nil(t, decl.Decls[1].Init)

	fDecl := prog.Body[2].(*VarDecl)
	fn, ok := fDecl.Decls[0].Init.(*FuncLit)
	require.True(t, ok)
	require.Len(t, fn.Params, 2)
	assert.NotNil(t, fn.Params[1].Default)

	arrow := prog.Body[3].(*VarDecl).Decls[0].Init.(*FuncLit)
	assert.True(t, arrow.Arrow)
	assert.NotNil(t, arrow.ExprBody)

	arrowBlock := prog.Body[4].(*VarDecl).Decls[0].Init.(*FuncLit)
	assert.True(t, arrowBlock.Arrow)
	assert.NotNil(t, arrowBlock.Body)

	ifStmt, ok := prog.Body[5].(*IfStmt)
	require.True(t, ok)
	_, elseIf := ifStmt.Else.(*IfStmt)
	assert.True(t, elseIf)

	_, ok = prog.Body[6].(*ForStmt)
	assert.True(t, ok)

	forOf, ok := prog.Body[7].(*ForInStmt)
	require.True(t, ok)
	assert.True(t, forOf.Of)
	assert.Equal(t, "item", forOf.Name)

	_, ok = prog.Body[8].(*WhileStmt)
	assert.True(t, ok)

	doWhile, ok := prog.Body[9].(*DoWhileStmt)
	require.True(t, ok)
	assert.Equal(t, 10, doWhile.Line)
}

func TestParse_Expressions(t *testing.T) {
	t.Run("Namespaced call requires adjacent colon", func(t *testing.T) {
		prog := parseStandalone(t, `x = date:now(1);`)
		assign := prog.Body[0].(*ExprStmt).X.(*AssignExpr)
		call, ok := assign.Value.(*NamespacedCall)
		require.True(t, ok)
		assert.Equal(t, "date", call.Namespace)
		assert.Equal(t, "now", call.Name)
		assert.Len(t, call.Args, 1)
	})

	t.Run("Ternary with spaced colon is not namespaced", func(t *testing.T) {
		prog := parseStandalone(t, `x = a ? b : c(1);`)
		assign := prog.Body[0].(*ExprStmt).X.(*AssignExpr)
		_, ok := assign.Value.(*ConditionalExpr)
		assert.True(t, ok)
	})

	t.Run("String concatenation", func(t *testing.T) {
		prog := parseStandalone(t, `x = "a" + b + c;`)
		assign := prog.Body[0].(*ExprStmt).X.(*AssignExpr)
		outer, ok := assign.Value.(*ConcatExpr)
		require.True(t, ok)
		_, ok = outer.X.(*ConcatExpr)
		assert.True(t, ok)
	})

	t.Run("Numeric addition stays binary", func(t *testing.T) {
		prog := parseStandalone(t, `x = a + 1;`)
		assign := prog.Body[0].(*ExprStmt).X.(*AssignExpr)
		bin, ok := assign.Value.(*BinaryExpr)
		require.True(t, ok)
		assert.Equal(t, "+", bin.Op)
	})

	t.Run("Precedence", func(t *testing.T) {
		prog := parseStandalone(t, `x = a || b && c;`)
		assign := prog.Body[0].(*ExprStmt).X.(*AssignExpr)
		or, ok := assign.Value.(*LogicalExpr)
		require.True(t, ok)
		assert.Equal(t, "||", or.Op)
		and, ok := or.Y.(*LogicalExpr)
		require.True(t, ok)
		assert.Equal(t, "&&", and.Op)
	})

	t.Run("Member, index, optional and call chains", func(t *testing.T) {
		prog := parseStandalone(t, `pageVariables.rows?.[0].name.toUpperCase();`)
		call, ok := prog.Body[0].(*ExprStmt).X.(*CallExpr)
		require.True(t, ok)
		member := call.Callee.(*MemberExpr)
		assert.Equal(t, "toUpperCase", member.Name)
	})

	t.Run("Empty operator", func(t *testing.T) {
		prog := parseStandalone(t, `if (empty rows) { x = 1; }`)
		ifStmt := prog.Body[0].(*IfStmt)
		unary, ok := ifStmt.Cond.(*UnaryExpr)
		require.True(t, ok)
		assert.Equal(t, "empty", unary.Op)
	})

	t.Run("Template interpolation is parsed", func(t *testing.T) {
		prog := parseStandalone(t, "x = `Hello ${user.name}`;")
		assign := prog.Body[0].(*ExprStmt).X.(*AssignExpr)
		tmpl, ok := assign.Value.(*TemplateLit)
		require.True(t, ok)
		require.Len(t, tmpl.Exprs, 1)
		_, ok = tmpl.Exprs[0].(*MemberExpr)
		assert.True(t, ok)
	})
}

func TestParse_ExportsTable(t *testing.T) {
	prog := parseStandalone(t, `function a() { return 1; }

{
  a: a,
  b
}
`)
	exports := prog.Exports()
	require.NotNil(t, exports)
	require.Len(t, exports.Props, 2)
	assert.Equal(t, "a", exports.Props[0].Key)
	assert.True(t, exports.Props[1].Shorthand)
	assert.Equal(t, 3, exports.Line)
	assert.Equal(t, 6, exports.EndLine)
}

func TestParse_EmbeddedLineOffset(t *testing.T) {
	src := Embedded("home.pmd", "onLoad", 12, "<%\n  var a = 1;\n  console.log(a);\n%>")
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Body, 2)

	// local line 2 -> artifact line 12 + 2 - 1
	assert.Equal(t, 13, prog.Body[0].Pos())
	assert.Equal(t, 14, prog.Body[1].Pos())
	assert.Nil(t, prog.Exports())
}

func TestParse_EmbeddedRows(t *testing.T) {
	// Text lines 1-2 sit on artifact row 12, the rest on row 13.
	text := "<%\n  var a = `x\n${a}`;\n  console.log(a);\n%>"
	src := Embedded("home.pmd", "onLoad", 12, text).WithRows([]int{12, 12, 13, 13, 13})
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Body, 2)

	assert.Equal(t, 12, prog.Body[0].Pos())
	assert.Equal(t, 13, prog.Body[1].Pos())
	assert.Equal(t, 13, prog.EndLine)

	tmpl, ok := prog.Body[0].(*VarDecl).Decls[0].Init.(*TemplateLit)
	require.True(t, ok)
	require.Len(t, tmpl.Exprs, 1)
	assert.Equal(t, 13, tmpl.Exprs[0].Pos(), "template parts are remapped too")
}

func TestSource_Row(t *testing.T) {
	src := Embedded("home.pmd", "onLoad", 4, "").WithRows([]int{4, 4, 6})
	tests := []struct {
		line int
		want int
	}{
		{4, 4},
		{5, 4},
		{6, 6},
		{9, 6},
		{1, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, src.Row(tt.line), "line %d", tt.line)
	}
	assert.Equal(t, 7, Standalone("a.script", "").Row(7))
}

func TestParse_SingleLineEmbedded(t *testing.T) {
	prog, err := Parse(Embedded("home.pmd", "value", 7, "<% pageVariables.count + 1 %>"))
	require.NoError(t, err)
	require.Len(t, prog.Body, 1)
	assert.Equal(t, 7, prog.Body[0].Pos())
}

func TestParse_ResyncsAfterBadStatement(t *testing.T) {
	prog := parseStandalone(t, `var a = 1;
var b = @@ 2;
var c = 3;
`)
	require.Len(t, prog.Body, 2)
	require.Len(t, prog.Warnings, 1)
	assert.Equal(t, 2, prog.Warnings[0].Line)
	assert.Equal(t, "a", prog.Body[0].(*VarDecl).Decls[0].Name)
	assert.Equal(t, "c", prog.Body[1].(*VarDecl).Decls[0].Name)
}

func TestParse_ResyncInsideFunction(t *testing.T) {
	prog := parseStandalone(t, `function f() {
  var a = ;
  return 1;
}
`)
	require.Len(t, prog.Body, 1)
	fn := prog.Body[0].(*FuncDecl).Func
	require.Len(t, fn.Body.List, 1)
	_, ok := fn.Body.List[0].(*ReturnStmt)
	assert.True(t, ok)
	assert.Len(t, prog.Warnings, 1)
}

func TestParse_FullyUnparsable(t *testing.T) {
	_, err := Parse(Embedded("home.pmd", "onLoad", 4, "<% ))) %>"))
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 4, perr.Line)
	assert.Equal(t, "home.pmd", perr.Source.Path)
}

func TestParse_BlankScript(t *testing.T) {
	prog, err := Parse(Embedded("home.pmd", "onLoad", 4, "<%   %>"))
	require.NoError(t, err)
	assert.Empty(t, prog.Body)
}
