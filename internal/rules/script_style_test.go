package rules

import (
	"testing"

	"extendaudit/internal/finding"
	"extendaudit/internal/ruleconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarUsageRule(t *testing.T) {
	src := standalone("vars.script", "var x = 1;\nx = 2;\nvar y = 1;\nvar z;\n")
	got := runRule(t, varUsageRule{}, nil, src)
	assert.Equal(t, []string{
		"Use 'let' instead of 'var' for 'x'",
		"Use 'const' instead of 'var' for 'y'; it is never reassigned",
		"Use 'let' instead of 'var' for 'z'",
	}, messages(got))
	assert.Equal(t, []int{1, 3, 4}, lines(got))
}

func TestMagicNumberRule(t *testing.T) {
	src := standalone("numbers.script", `let limit = 42;
if (count > 42) { count = 100 + -7; }
const ratio = 1 - 0.5;
let offset = -1;`)

	t.Run("Defaults", func(t *testing.T) {
		got := runRule(t, magicNumberRule{}, nil, src)
		assert.Equal(t, []string{
			"Magic numbers 42, 100, -7; extract to a named constant",
			"Magic number 0.5; extract to a named constant",
		}, messages(got))
		assert.Equal(t, []int{2, 3}, lines(got))
	})

	t.Run("Allowed numbers", func(t *testing.T) {
		layer := ruleconfig.Layer{"ScriptMagicNumberRule": {CustomSettings: map[string]interface{}{
			"allowed_numbers": []interface{}{0, 1, -1, 42, 100, -7, 0.5},
		}}}
		assert.Empty(t, runRule(t, magicNumberRule{}, layer, src))
	})
}

func TestConsoleLogRule(t *testing.T) {
	src := standalone("debug.script", `console.log("a");
console.warn("b");
logger.log("c");
console.table(rows);`)
	got := runRule(t, consoleLogRule{}, nil, src)
	assert.Equal(t, []int{1, 2}, lines(got))
	for _, f := range got {
		assert.Equal(t, finding.SeverityAction, f.Severity)
	}
}

func TestStringConcatRule(t *testing.T) {
	src := standalone("greet.script", `let s = "Hello " + name + "!";
let n = a + b;`)
	got := runRule(t, stringConcatRule{}, nil, src)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Line)
}

func TestVerboseBooleanRule(t *testing.T) {
	src := standalone("bool.script", `function f(a) {
  return a ? true : false;
}
function g(a) {
  if (a) { return false; } else { return true; }
}
function h(a) {
  return a ? "yes" : false;
}`)
	got := runRule(t, verboseBooleanRule{}, nil, src)
	assert.Equal(t, []int{2, 5}, lines(got))
}

func TestEmptyFunctionRule(t *testing.T) {
	src := standalone("noop.script", "function noop() {}\nvar cb = function () { return 1; };\nvar arrow = () => {};\n")
	got := runRule(t, emptyFunctionRule{}, nil, src)
	assert.Equal(t, []string{
		"Function 'noop' has an empty body",
		"Function 'arrow' has an empty body",
	}, messages(got))
}

func TestVariableNamingRule(t *testing.T) {
	src := standalone("names.script", `let Bad_name = 1;
const MAX_SIZE = 2;
const Other = 3;
function DoIt(Param) {}
let goodName = 4;`)
	got := runRule(t, variableNamingRule{}, nil, src)
	assert.Equal(t, []int{1, 3, 4}, lines(got))
	assert.Equal(t, "Variable 'Other' should be lowerCamelCase or UPPER_SNAKE_CASE", got[1].Message)
	assert.Equal(t, "Function 'DoIt' should be lowerCamelCase", got[2].Message)
}
