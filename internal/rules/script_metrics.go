package rules

import (
	"extendaudit/internal/finding"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/script"
)

// Complexity computes the cyclomatic complexity of a function body, or of
// the top-level code when fn is nil: 1, plus one per if, loop, && or || and
// conditional expression. Nested functions are measured on their own.
func Complexity(prog *script.Program, fn *script.FuncLit) int {
	complexity := 1
	inspectBody(prog, fn, func(n script.Node) bool {
		switch x := n.(type) {
		case *script.IfStmt, *script.WhileStmt, *script.DoWhileStmt, *script.ForStmt, *script.ForInStmt, *script.ConditionalExpr:
			complexity++
		case *script.LogicalExpr:
			if x.Op == "&&" || x.Op == "||" {
				complexity++
			}
		}
		return true
	})
	return complexity
}

type complexityRule struct{}

func (complexityRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptComplexityRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Functions should keep cyclomatic complexity under the configured maximum.",
		AppliesTo:   allKinds,
		Settings: []ruleconfig.Setting{
			{Key: "max_complexity", Type: ruleconfig.TypeInt, Default: 10, Min: ruleconfig.MinInt(1), Description: "highest allowed complexity"},
		},
	}
}

func (complexityRule) Check(pass *Pass) error {
	var cfg struct {
		MaxComplexity int `mapstructure:"max_complexity"`
	}
	if err := pass.Settings(&cfg); err != nil {
		return err
	}
	for _, s := range pass.Scripts() {
		prog := s.Program
		if c := Complexity(prog, nil); c > cfg.MaxComplexity && s.Source.Embedded {
			pass.Reportf(s.Source.StartLine, "Script has cyclomatic complexity %d (max %d)", c, cfg.MaxComplexity)
		}
		names := functionNames(prog)
		for _, fn := range script.Functions(prog) {
			if c := Complexity(prog, fn); c > cfg.MaxComplexity {
				pass.Reportf(fn.Line, "Function '%s' has cyclomatic complexity %d (max %d)", names[fn], c, cfg.MaxComplexity)
			}
		}
	}
	return nil
}

// maxNesting returns the deepest control-statement nesting of a body and
// the line of the statement at that depth. An else-if continues its chain
// at the same depth.
func maxNesting(prog *script.Program, fn *script.FuncLit) (depth, line int) {
	var walk func(stmt script.Stmt, level int)
	visitList := func(list []script.Stmt, level int) {
		for _, s := range list {
			walk(s, level)
		}
	}
	enter := func(s script.Stmt, level int) int {
		level++
		if level > depth {
			depth, line = level, s.Pos()
		}
		return level
	}
	walk = func(stmt script.Stmt, level int) {
		switch s := stmt.(type) {
		case *script.BlockStmt:
			visitList(s.List, level)
		case *script.IfStmt:
			inner := enter(s, level)
			walk(s.Then, inner)
			if elif, ok := s.Else.(*script.IfStmt); ok {
				walk(elif, level)
			} else if s.Else != nil {
				walk(s.Else, inner)
			}
		case *script.WhileStmt:
			walk(s.Body, enter(s, level))
		case *script.DoWhileStmt:
			walk(s.Body, enter(s, level))
		case *script.ForStmt:
			walk(s.Body, enter(s, level))
		case *script.ForInStmt:
			walk(s.Body, enter(s, level))
		}
	}
	if fn == nil {
		visitList(prog.Body, 0)
	} else if fn.Body != nil {
		visitList(fn.Body.List, 0)
	}
	return depth, line
}

type nestingRule struct{}

func (nestingRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptNestingLevelRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Control statements should not nest deeper than the configured level.",
		AppliesTo:   allKinds,
		Settings: []ruleconfig.Setting{
			{Key: "max_nesting_level", Type: ruleconfig.TypeInt, Default: 4, Min: ruleconfig.MinInt(1), Description: "deepest allowed nesting"},
		},
	}
}

func (nestingRule) Check(pass *Pass) error {
	var cfg struct {
		MaxNestingLevel int `mapstructure:"max_nesting_level"`
	}
	if err := pass.Settings(&cfg); err != nil {
		return err
	}
	for _, s := range pass.Scripts() {
		prog := s.Program
		if d, line := maxNesting(prog, nil); d > cfg.MaxNestingLevel {
			pass.Reportf(line, "Nesting depth %d exceeds the maximum of %d", d, cfg.MaxNestingLevel)
		}
		names := functionNames(prog)
		for _, fn := range script.Functions(prog) {
			if d, line := maxNesting(prog, fn); d > cfg.MaxNestingLevel {
				pass.Reportf(line, "Nesting depth %d in function '%s' exceeds the maximum of %d", d, names[fn], cfg.MaxNestingLevel)
			}
		}
	}
	return nil
}

type longFunctionRule struct{}

func (longFunctionRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptLongFunctionRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Functions should not span more than the configured number of lines.",
		AppliesTo:   allKinds,
		Settings: []ruleconfig.Setting{
			{Key: "max_lines", Type: ruleconfig.TypeInt, Default: 50, Min: ruleconfig.MinInt(1)},
		},
	}
}

func (longFunctionRule) Check(pass *Pass) error {
	var cfg struct {
		MaxLines int `mapstructure:"max_lines"`
	}
	if err := pass.Settings(&cfg); err != nil {
		return err
	}
	for _, s := range pass.Scripts() {
		names := functionNames(s.Program)
		for _, fn := range script.Functions(s.Program) {
			start, end := fn.Span()
			if n := end - start + 1; n > cfg.MaxLines {
				pass.Reportf(start, "Function '%s' is %d lines long (max %d)", names[fn], n, cfg.MaxLines)
			}
		}
	}
	return nil
}

type parameterCountRule struct{}

func (parameterCountRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptFunctionParameterCountRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Functions should not take more than the configured number of parameters.",
		AppliesTo:   allKinds,
		Settings: []ruleconfig.Setting{
			{Key: "max_parameters", Type: ruleconfig.TypeInt, Default: 4, Min: ruleconfig.MinInt(1)},
		},
	}
}

func (parameterCountRule) Check(pass *Pass) error {
	var cfg struct {
		MaxParameters int `mapstructure:"max_parameters"`
	}
	if err := pass.Settings(&cfg); err != nil {
		return err
	}
	for _, s := range pass.Scripts() {
		names := functionNames(s.Program)
		for _, fn := range script.Functions(s.Program) {
			if n := len(fn.Params); n > cfg.MaxParameters {
				pass.Reportf(fn.Line, "Function '%s' takes %d parameters (max %d)", names[fn], n, cfg.MaxParameters)
			}
		}
	}
	return nil
}
