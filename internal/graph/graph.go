package graph

import (
	"sort"
)

// Node represents a vertex in the reference graph.
type Node struct {
	Symbol *Symbol
}

// Edge represents a directed reference between two nodes.
type Edge struct {
	From string
	To   string
	Kind RelationKind
}

// Graph manages nodes and their relationships.
type Graph struct {
	Nodes map[string]*Node
	Edges []Edge

	// Name -> []ID, used to resolve name-based relations to node IDs.
	nameIndex map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:     make(map[string]*Node),
		Edges:     []Edge{},
		nameIndex: make(map[string][]string),
	}
}

// AddSymbol adds a symbol as a node and indexes it by name.
func (g *Graph) AddSymbol(s *Symbol) {
	if s == nil {
		return
	}
	if _, exists := g.Nodes[s.ID]; !exists {
		g.nameIndex[s.Name] = append(g.nameIndex[s.Name], s.ID)
	}
	g.Nodes[s.ID] = &Node{Symbol: s}
}

// LinkRelations resolves every name-based relation to edges between nodes.
// Relations whose target is not a node (globals, platform namespaces) are dropped.
func (g *Graph) LinkRelations() {
	g.Edges = []Edge{}

	for _, sourceID := range g.sortedIDs() {
		node := g.Nodes[sourceID]
		seen := make(map[string]bool)
		for _, rel := range node.Symbol.Relations {
			for _, targetID := range g.nameIndex[rel.Target] {
				if seen[targetID] {
					continue
				}
				seen[targetID] = true
				g.Edges = append(g.Edges, Edge{From: sourceID, To: targetID, Kind: rel.Kind})
			}
		}
	}
}

// Lookup returns the node IDs registered under a name.
func (g *Graph) Lookup(name string) []string {
	return g.nameIndex[name]
}

// GetDependents returns all nodes that reference the given node.
func (g *Graph) GetDependents(id string) []*Node {
	var deps []*Node
	for _, edge := range g.Edges {
		if edge.To == id {
			if node, ok := g.Nodes[edge.From]; ok {
				deps = append(deps, node)
			}
		}
	}
	return deps
}

// Reachable walks the graph breadth-first from roots and returns the hop
// distance of every node reached. Roots are at distance 0. A maxHops of 0
// places no bound on the walk.
func (g *Graph) Reachable(roots []string, maxHops int) map[string]int {
	dist := make(map[string]int)
	var queue []string
	for _, id := range roots {
		if _, ok := g.Nodes[id]; !ok {
			continue
		}
		if _, seen := dist[id]; seen {
			continue
		}
		dist[id] = 0
		queue = append(queue, id)
	}

	adjacency := make(map[string][]string)
	for _, edge := range g.Edges {
		adjacency[edge.From] = append(adjacency[edge.From], edge.To)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		d := dist[id]
		if maxHops > 0 && d >= maxHops {
			continue
		}
		for _, next := range adjacency[id] {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = d + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// Symbols returns every node's symbol ordered by start line, then name.
func (g *Graph) Symbols() []*Symbol {
	out := make([]*Symbol, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n.Symbol)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
