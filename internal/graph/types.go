package graph

type RelationKind string

const (
	RelationCalls      RelationKind = "calls"
	RelationReferences RelationKind = "references"
)

type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolVariable SymbolKind = "variable"
	// SymbolExport stands for an inline function in the exports table.
	SymbolExport SymbolKind = "export"
)

// Symbol is the graph-domain node payload: one top-level name of a script.
type Symbol struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Filepath  string     `json:"filepath"`
	Kind      SymbolKind `json:"kind"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Relations []Relation `json:"relations,omitempty"`
}

// Relation is a name-based reference that LinkRelations resolves to an edge.
type Relation struct {
	Target string       `json:"target"`
	Kind   RelationKind `json:"kind"`
	Line   int          `json:"line,omitempty"`
}
