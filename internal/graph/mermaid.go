package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Mermaid renders g as a Mermaid flowchart. Nodes that no root reaches are
// drawn dashed with the `unused` class.
func Mermaid(g *Graph, roots []string) string {
	var sb strings.Builder
	sb.WriteString("```mermaid\ngraph TD\n")

	counts := g.DependentCounts()
	for _, sym := range g.Symbols() {
		label := sym.Name
		if sym.Kind == SymbolExport {
			label = "export " + sym.Name
		}
		fmt.Fprintf(&sb, "    %s[\"%s<br/>line %d, used by %d\"]\n", mermaidID(sym.ID), label, sym.StartLine, counts[sym.ID])
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if e.Kind == RelationReferences {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", mermaidID(e.From), arrow, mermaidID(e.To))
	}

	reached := g.Reachable(roots, 0)
	var unused []string
	for _, id := range g.sortedIDs() {
		if _, ok := reached[id]; !ok {
			unused = append(unused, mermaidID(id))
		}
	}
	sort.Strings(unused)
	if len(unused) > 0 {
		sb.WriteString("    classDef unused stroke-dasharray: 5 5\n")
		fmt.Fprintf(&sb, "    class %s unused\n", strings.Join(unused, ","))
	}

	sb.WriteString("```\n")
	return sb.String()
}

func mermaidID(id string) string {
	return "n_" + nonIdent.ReplaceAllString(id, "_")
}
