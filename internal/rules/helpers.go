package rules

import (
	"regexp"
	"strings"

	"extendaudit/internal/script"
)

var (
	lowerCamelRe = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)
	upperSnakeRe = regexp.MustCompile(`^[A-Z][A-Z0-9]*(_[A-Z0-9]+)*$`)
)

func isLowerCamel(name string) bool { return lowerCamelRe.MatchString(name) }

func isUpperSnake(name string) bool { return upperSnakeRe.MatchString(name) }

// functionNames maps each function of a program to the name it is known
// by: its own name, the variable or property it is assigned to, or
// "anonymous function".
func functionNames(prog *script.Program) map[*script.FuncLit]string {
	names := make(map[*script.FuncLit]string)
	bind := func(e script.Expr, name string) {
		if e == nil {
			return
		}
		if fn, ok := script.Unparen(e).(*script.FuncLit); ok && fn.Name == "" {
			names[fn] = name
		}
	}
	script.InspectProgram(prog, func(n script.Node) bool {
		switch x := n.(type) {
		case *script.Declarator:
			bind(x.Init, x.Name)
		case *script.Property:
			if x.Key != "" && x.Key != "..." {
				bind(x.Value, x.Key)
			}
		case *script.AssignExpr:
			bind(x.Value, targetName(x.Target))
		case *script.FuncLit:
			if x.Name != "" {
				names[x] = x.Name
			}
		}
		return true
	})
	for _, fn := range script.Functions(prog) {
		if names[fn] == "" {
			names[fn] = "anonymous function"
		}
	}
	return names
}

func targetName(e script.Expr) string {
	switch t := script.Unparen(e).(type) {
	case *script.Ident:
		return t.Name
	case *script.MemberExpr:
		return t.Name
	}
	return ""
}

// inspectBody visits the statements of a function, or of a whole program
// when fn is nil, without descending into nested functions.
func inspectBody(prog *script.Program, fn *script.FuncLit, visit func(script.Node) bool) {
	inner := func(n script.Node) bool {
		if f, ok := n.(*script.FuncLit); ok && f != fn {
			return false
		}
		return visit(n)
	}
	if fn == nil {
		script.InspectProgram(prog, inner)
		return
	}
	if fn.Body != nil {
		for _, stmt := range fn.Body.List {
			script.Inspect(stmt, inner)
		}
	}
	if fn.ExprBody != nil {
		script.Inspect(fn.ExprBody, inner)
	}
}

// firstLine returns the first line of text, trimmed, for snippets.
func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	const max = 120
	if len(text) > max {
		text = text[:max] + "..."
	}
	return text
}

// siblingFreeReads unions the undeclared names read by every other script
// of the same file. Top-level names of one embedded script may be read from
// another field of the same document.
func siblingFreeReads(scopes map[*script.Program]*script.Scope, self *script.Program) map[string]bool {
	out := make(map[string]bool)
	for prog, scope := range scopes {
		if prog == self {
			continue
		}
		for name := range scope.FreeReads() {
			out[name] = true
		}
	}
	return out
}

func resolveAll(pass *Pass) map[*script.Program]*script.Scope {
	scopes := make(map[*script.Program]*script.Scope)
	for _, s := range pass.Scripts() {
		scopes[s.Program] = script.Resolve(s.Program)
	}
	return scopes
}
