package rules

import (
	"sort"
	"strings"

	"extendaudit/internal/finding"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/script"
)

type varUsageRule struct{}

func (varUsageRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptVarUsageRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Declare variables with let or const instead of var.",
		AppliesTo:   allKinds,
	}
}

func (varUsageRule) Check(pass *Pass) error {
	for _, s := range pass.Scripts() {
		script.Resolve(s.Program).Walk(func(scope *script.Scope) {
			for _, sym := range scope.Order {
				if sym.Kind != script.SymbolVar {
					continue
				}
				if len(sym.Writes) == 0 && sym.Init != nil {
					pass.Reportf(sym.DeclLine, "Use 'const' instead of 'var' for '%s'; it is never reassigned", sym.Name)
					continue
				}
				pass.Reportf(sym.DeclLine, "Use 'let' instead of 'var' for '%s'", sym.Name)
			}
		})
	}
	return nil
}

type magicNumberRule struct{}

func (magicNumberRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptMagicNumberRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Numeric literals should be named constants unless they are trivially clear.",
		AppliesTo:   allKinds,
		Settings: []ruleconfig.Setting{
			{Key: "allowed_numbers", Type: ruleconfig.TypeNumberList, Default: []float64{0, 1, -1}},
		},
	}
}

func (magicNumberRule) Check(pass *Pass) error {
	var cfg struct {
		AllowedNumbers []float64 `mapstructure:"allowed_numbers"`
	}
	if err := pass.Settings(&cfg); err != nil {
		return err
	}
	allowed := make(map[float64]bool, len(cfg.AllowedNumbers))
	for _, n := range cfg.AllowedNumbers {
		allowed[n] = true
	}

	for _, s := range pass.Scripts() {
		byLine := make(map[int][]string)
		report := func(value float64, raw string, line int) {
			if allowed[value] {
				return
			}
			byLine[line] = append(byLine[line], raw)
		}
		script.InspectProgram(s.Program, func(n script.Node) bool {
			switch x := n.(type) {
			case *script.VarDecl:
				if x.Kind == script.DeclVar {
					return true
				}
				// Direct let/const initializers name the number already.
				for _, d := range x.Decls {
					if d.Init == nil {
						continue
					}
					if _, _, ok := numericLiteral(d.Init); ok {
						continue
					}
					script.Inspect(d.Init, func(n script.Node) bool { return visitNumber(n, report) })
				}
				return false
			}
			return visitNumber(n, report)
		})

		lines := make([]int, 0, len(byLine))
		for line := range byLine {
			lines = append(lines, line)
		}
		sort.Ints(lines)
		for _, line := range lines {
			nums := byLine[line]
			noun := "Magic number"
			if len(nums) > 1 {
				noun = "Magic numbers"
			}
			pass.Reportf(line, "%s %s; extract to a named constant", noun, strings.Join(nums, ", "))
		}
	}
	return nil
}

// visitNumber reports numeric literals, folding a leading minus into the
// literal. It returns false when the node was fully handled.
func visitNumber(n script.Node, report func(float64, string, int)) bool {
	e, ok := n.(script.Expr)
	if !ok {
		return true
	}
	if value, raw, ok := numericLiteral(e); ok {
		report(value, raw, e.Pos())
		return false
	}
	return true
}

func numericLiteral(e script.Expr) (float64, string, bool) {
	switch x := script.Unparen(e).(type) {
	case *script.NumberLit:
		return x.Value, x.Raw, true
	case *script.UnaryExpr:
		if x.Op != "-" || x.Postfix {
			return 0, "", false
		}
		if lit, ok := script.Unparen(x.X).(*script.NumberLit); ok {
			return -lit.Value, "-" + lit.Raw, true
		}
	}
	return 0, "", false
}

var consoleMethods = map[string]bool{"log": true, "warn": true, "error": true, "info": true, "debug": true}

type consoleLogRule struct{}

func (consoleLogRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptConsoleLogRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAction,
		Description: "Console statements must be removed before production.",
		AppliesTo:   allKinds,
	}
}

func (consoleLogRule) Check(pass *Pass) error {
	for _, s := range pass.Scripts() {
		script.InspectProgram(s.Program, func(n script.Node) bool {
			call, ok := n.(*script.CallExpr)
			if !ok {
				return true
			}
			member, ok := script.Unparen(call.Callee).(*script.MemberExpr)
			if !ok || !consoleMethods[member.Name] {
				return true
			}
			if obj, ok := script.Unparen(member.X).(*script.Ident); ok && obj.Name == "console" {
				pass.Reportf(call.Line, "Remove console.%s statement", member.Name)
			}
			return true
		})
	}
	return nil
}

type stringConcatRule struct{}

func (stringConcatRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptStringConcatRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Prefer template literals over string concatenation.",
		AppliesTo:   allKinds,
	}
}

func (stringConcatRule) Check(pass *Pass) error {
	for _, s := range pass.Scripts() {
		script.InspectProgram(s.Program, func(n script.Node) bool {
			if _, ok := n.(*script.ConcatExpr); ok {
				pass.Reportf(n.Pos(), "Use a template literal instead of string concatenation")
				return false
			}
			return true
		})
	}
	return nil
}

type verboseBooleanRule struct{}

func (verboseBooleanRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptVerboseBooleanRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Return or use a condition directly instead of mapping it to true/false.",
		AppliesTo:   allKinds,
	}
}

func (verboseBooleanRule) Check(pass *Pass) error {
	for _, s := range pass.Scripts() {
		script.InspectProgram(s.Program, func(n script.Node) bool {
			switch x := n.(type) {
			case *script.ConditionalExpr:
				if a, ok := boolLit(x.Then); ok {
					if b, ok := boolLit(x.Else); ok && a != b {
						pass.Reportf(x.Line, "Simplify 'condition ? %t : %t' to %s", a, b, negation(a))
					}
				}
			case *script.IfStmt:
				a, ok := returnsBool(x.Then)
				if !ok {
					return true
				}
				if b, ok := returnsBool(x.Else); ok && a != b {
					pass.Reportf(x.Line, "Return the condition directly instead of returning %t and %t", a, b)
				}
			}
			return true
		})
	}
	return nil
}

func negation(then bool) string {
	if then {
		return "the condition itself"
	}
	return "its negation"
}

func boolLit(e script.Expr) (bool, bool) {
	if e == nil {
		return false, false
	}
	if b, ok := script.Unparen(e).(*script.BoolLit); ok {
		return b.Value, true
	}
	return false, false
}

func returnsBool(stmt script.Stmt) (bool, bool) {
	if block, ok := stmt.(*script.BlockStmt); ok {
		if len(block.List) != 1 {
			return false, false
		}
		stmt = block.List[0]
	}
	ret, ok := stmt.(*script.ReturnStmt)
	if !ok {
		return false, false
	}
	return boolLit(ret.Result)
}

type emptyFunctionRule struct{}

func (emptyFunctionRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptEmptyFunctionRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Functions should not have an empty body.",
		AppliesTo:   allKinds,
	}
}

func (emptyFunctionRule) Check(pass *Pass) error {
	for _, s := range pass.Scripts() {
		names := functionNames(s.Program)
		for _, fn := range script.Functions(s.Program) {
			if fn.Body != nil && len(fn.Body.List) == 0 {
				pass.Reportf(fn.Line, "Function '%s' has an empty body", names[fn])
			}
		}
	}
	return nil
}

type variableNamingRule struct{}

func (variableNamingRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptVariableNamingRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Variables and functions use lowerCamelCase; constants may use UPPER_SNAKE_CASE.",
		AppliesTo:   allKinds,
	}
}

func (variableNamingRule) Check(pass *Pass) error {
	for _, s := range pass.Scripts() {
		script.Resolve(s.Program).Walk(func(scope *script.Scope) {
			for _, sym := range scope.Order {
				if sym.Kind == script.SymbolParam || isLowerCamel(sym.Name) {
					continue
				}
				if sym.Kind == script.SymbolConst && isUpperSnake(sym.Name) {
					continue
				}
				pass.Reportf(sym.DeclLine, "%s '%s' should be lowerCamelCase%s", symbolNoun(sym), sym.Name, constHint(sym))
			}
		})
	}
	return nil
}

func symbolNoun(sym *script.Symbol) string {
	if sym.Kind == script.SymbolFunction {
		return "Function"
	}
	return "Variable"
}

func constHint(sym *script.Symbol) string {
	if sym.Kind == script.SymbolConst {
		return " or UPPER_SNAKE_CASE"
	}
	return ""
}
