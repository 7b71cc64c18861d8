package rules

import (
	"path"
	"strings"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/graph"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/script"
)

type deadCodeRule struct{}

func (deadCodeRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptDeadCodeRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Top-level declarations of a script file should be exported or used by exported code.",
		AppliesTo:   []artifact.Kind{artifact.KindScript},
		Settings: []ruleconfig.Setting{
			{Key: "transitive_depth", Type: ruleconfig.TypeInt, Default: 1, Min: ruleconfig.MinInt(0), Description: "hops followed from exported code; 0 follows every reference"},
		},
	}
}

func (deadCodeRule) Check(pass *Pass) error {
	var cfg struct {
		TransitiveDepth int `mapstructure:"transitive_depth"`
	}
	if err := pass.Settings(&cfg); err != nil {
		return err
	}
	for _, s := range pass.Scripts() {
		if s.Source.Embedded || s.Program.Exports() == nil {
			continue
		}
		g, roots := graph.FromProgram(s.Program)
		reached := g.Reachable(roots, cfg.TransitiveDepth)
		for _, sym := range g.Symbols() {
			if sym.Kind == graph.SymbolExport {
				continue
			}
			if _, ok := reached[sym.ID]; ok || referenced(g, sym.ID) {
				continue
			}
			what := "Variable"
			if sym.Kind == graph.SymbolFunction {
				what = "Function"
			}
			pass.Reportf(sym.StartLine, "%s '%s' is never exported or referenced by exported code", what, sym.Name)
		}
	}
	return nil
}

// referenced reports whether another declaration of the script uses id.
func referenced(g *graph.Graph, id string) bool {
	for _, n := range g.GetDependents(id) {
		if n.Symbol.ID != id {
			return true
		}
	}
	return false
}

type unusedVariableRule struct{}

func (unusedVariableRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptUnusedVariableRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Declared variables should be read at least once.",
		AppliesTo:   allKinds,
	}
}

func (unusedVariableRule) Check(pass *Pass) error {
	scopes := resolveAll(pass)
	for _, s := range pass.Scripts() {
		root := scopes[s.Program]
		var external map[string]bool
		if s.Source.Embedded {
			external = siblingFreeReads(scopes, s.Program)
		}
		root.Walk(func(scope *script.Scope) {
			topLevel := scope.Parent == nil
			if topLevel && !s.Source.Embedded {
				return
			}
			for _, sym := range scope.Order {
				if sym.Kind == script.SymbolParam || sym.Kind == script.SymbolFunction || sym.Func != nil {
					continue
				}
				if sym.Used() || (topLevel && external[sym.Name]) {
					continue
				}
				pass.Reportf(sym.DeclLine, "Variable '%s' is declared but never used", sym.Name)
			}
		})
	}
	return nil
}

type unusedParametersRule struct{}

func (unusedParametersRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptUnusedFunctionParametersRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Function parameters should be used; prefix intentionally unused ones with '_'.",
		AppliesTo:   allKinds,
	}
}

func (unusedParametersRule) Check(pass *Pass) error {
	for _, s := range pass.Scripts() {
		root := script.Resolve(s.Program)
		names := functionNames(s.Program)
		for _, fn := range script.Functions(s.Program) {
			scope := root.FuncScope(fn)
			if scope == nil {
				continue
			}
			for _, p := range fn.Params {
				sym := scope.Symbols[p.Name]
				if sym == nil || sym.Used() || strings.HasPrefix(p.Name, "_") {
					continue
				}
				pass.Reportf(p.Line, "Parameter '%s' of function '%s' is never used", p.Name, names[fn])
			}
		}
	}
	return nil
}

type unusedFunctionRule struct{}

func (unusedFunctionRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptUnusedFunctionRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Declared functions should be called or exported.",
		AppliesTo:   allKinds,
	}
}

func (unusedFunctionRule) Check(pass *Pass) error {
	scopes := resolveAll(pass)
	for _, s := range pass.Scripts() {
		root := scopes[s.Program]
		var external map[string]bool
		if s.Source.Embedded {
			external = siblingFreeReads(scopes, s.Program)
		}
		root.Walk(func(scope *script.Scope) {
			topLevel := scope.Parent == nil
			// Top-level functions of a script file are judged against its exports.
			if topLevel && !s.Source.Embedded {
				return
			}
			for _, sym := range scope.Order {
				if sym.Func == nil || sym.Kind == script.SymbolParam {
					continue
				}
				if topLevel && external[sym.Name] {
					continue
				}
				if calledOutside(sym) {
					continue
				}
				pass.Reportf(sym.DeclLine, "Function '%s' is never called", sym.Name)
			}
		})
	}
	return nil
}

// calledOutside reports whether a function symbol is read anywhere except
// inside its own body.
func calledOutside(sym *script.Symbol) bool {
	start, end := sym.Func.Span()
	for _, line := range sym.Reads {
		if line < start || line > end {
			return true
		}
	}
	return false
}

type unusedIncludesRule struct{}

func (unusedIncludesRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "ScriptUnusedScriptIncludesRule",
		Category:    CategoryScript,
		Severity:    finding.SeverityAdvice,
		Description: "Script files included by a page should be referenced by the page's scripts.",
		AppliesTo:   []artifact.Kind{artifact.KindPage},
	}
}

func (unusedIncludesRule) Check(pass *Pass) error {
	includes := pass.Project.IncludesByPage[pass.File.Path()]
	if len(includes) == 0 {
		return nil
	}
	used := make(map[string]bool)
	for _, s := range pass.Scripts() {
		for name := range script.Resolve(s.Program).FreeReads() {
			used[name] = true
		}
	}
	for _, inc := range includes {
		base := path.Base(strings.TrimSpace(inc.Name))
		stem := strings.TrimSuffix(base, path.Ext(base))
		if used[stem] {
			continue
		}
		pass.Reportf(inc.Line, "Included script '%s' is never referenced; use %s.<function>() or remove the include", inc.Name, stem)
	}
	return nil
}
