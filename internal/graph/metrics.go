package graph

// DependentCounts returns how many distinct nodes reference each node.
func (g *Graph) DependentCounts() map[string]int {
	counts := make(map[string]int)
	if g == nil {
		return counts
	}
	for id := range g.Nodes {
		counts[id] = 0
	}
	for _, e := range g.Edges {
		if e.From != e.To {
			counts[e.To]++
		}
	}
	return counts
}
