package rules

import (
	"testing"

	"extendaudit/internal/ruleconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadCodeRule(t *testing.T) {
	t.Run("Unexported function", func(t *testing.T) {
		src := standalone("util.script", `function a() { return 1; }
function b() { return 2; }
{ a: a }`)
		got := runRule(t, deadCodeRule{}, nil, src)
		require.Len(t, got, 1)
		assert.Equal(t, "Function 'b' is never exported or referenced by exported code", got[0].Message)
		assert.Equal(t, 2, got[0].Line)
	})

	t.Run("Chain beyond the depth is still referenced", func(t *testing.T) {
		src := standalone("chain.script", `function a() { return b(); }
function b() { return c(); }
function c() { return 3; }
{ a: a }`)
		assert.Empty(t, runRule(t, deadCodeRule{}, nil, src))

		unbounded := ruleconfig.Layer{"ScriptDeadCodeRule": {CustomSettings: map[string]interface{}{"transitive_depth": 0}}}
		assert.Empty(t, runRule(t, deadCodeRule{}, unbounded, src))
	})

	t.Run("Only the head of a dead chain is flagged", func(t *testing.T) {
		src := standalone("orphans.script", `function a() { return 1; }
function x() { return y(); }
function y() { return 2; }
{ a: a }`)
		got := runRule(t, deadCodeRule{}, nil, src)
		assert.Equal(t, []string{"Function 'x' is never exported or referenced by exported code"}, messages(got))
	})

	t.Run("Self recursion is not a reference", func(t *testing.T) {
		src := standalone("loop.script", `function a() { return 1; }
function spin(n) { return spin(n - 1); }
{ a: a }`)
		got := runRule(t, deadCodeRule{}, nil, src)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].Line)
	})

	t.Run("Shadowing local does not keep a function alive", func(t *testing.T) {
		src := standalone("shadow.script", `function a() { var helper = 1; return helper; }
function helper() { return 2; }
{ a: a }`)
		got := runRule(t, deadCodeRule{}, nil, src)
		assert.Equal(t, []string{"Function 'helper' is never exported or referenced by exported code"}, messages(got))
		assert.Equal(t, []int{2}, lines(got))
	})

	t.Run("No exports table", func(t *testing.T) {
		src := standalone("loose.script", "function a() { return 1; }\n")
		assert.Empty(t, runRule(t, deadCodeRule{}, nil, src))
	})
}

func TestUnusedVariableRule(t *testing.T) {
	t.Run("Embedded scripts share top-level names", func(t *testing.T) {
		src := page("home.pmd", `{
  "id": "home",
  "onLoad": "<% let shared = 1; let lonely = 2; %>",
  "title": "<% shared %>"
}`)
		got := runRule(t, unusedVariableRule{}, nil, src)
		require.Len(t, got, 1)
		assert.Equal(t, "Variable 'lonely' is declared but never used", got[0].Message)
		assert.Equal(t, 3, got[0].Line)
	})

	t.Run("Function locals", func(t *testing.T) {
		src := standalone("calc.script", `function f() {
  let used = 1;
  let idle = 2;
  return used;
}
{ f: f }`)
		got := runRule(t, unusedVariableRule{}, nil, src)
		assert.Equal(t, []string{"Variable 'idle' is declared but never used"}, messages(got))
	})
}

func TestUnusedParametersRule(t *testing.T) {
	src := standalone("calc.script", "function f(a, _b, c) { return c; }\n{ f: f }")
	got := runRule(t, unusedParametersRule{}, nil, src)
	assert.Equal(t, []string{"Parameter 'a' of function 'f' is never used"}, messages(got))
}

func TestUnusedFunctionRule(t *testing.T) {
	src := standalone("calc.script", `function outer() {
  function helper() { return 1; }
  function rec(n) { return rec(n - 1); }
  return 1;
}
{ outer: outer }`)
	got := runRule(t, unusedFunctionRule{}, nil, src)
	assert.Equal(t, []string{
		"Function 'helper' is never called",
		"Function 'rec' is never called",
	}, messages(got))
	assert.Equal(t, []int{2, 3}, lines(got))
}

func TestUnusedIncludesRule(t *testing.T) {
	src := page("home.pmd", `{
  "id": "home",
  "include": ["util.script", "other.script"],
  "title": "<% util.greet() %>"
}`)
	got := runRule(t, unusedIncludesRule{}, nil, src, standalone("util.script", "function greet() { return 1; }\n{ greet: greet }"))
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "'other.script'")
	assert.Equal(t, 3, got[0].Line)
}
