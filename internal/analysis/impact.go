package analysis

import (
	"sort"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/git"
	"extendaudit/internal/project"
)

// ImpactReport summarizes the artifacts affected by a set of changes.
type ImpactReport struct {
	// DirectlyAffected are changed files that are part of the run.
	DirectlyAffected []string `json:"directly_affected"`
	// IndirectlyAffected are unchanged files whose findings can move because
	// of a change elsewhere: pages including a changed script, and every file
	// checked against changed application or site metadata.
	IndirectlyAffected []string `json:"indirectly_affected"`
	// ChangedLines maps directly affected paths to their changed lines.
	ChangedLines map[string][]int `json:"changed_lines"`
}

// Analyzer performs impact analysis over a project context.
type Analyzer struct {
	pc *project.Context
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(pc *project.Context) *Analyzer {
	return &Analyzer{pc: pc}
}

// AnalyzeImpact identifies which artifacts are affected by the given changes.
func (a *Analyzer) AnalyzeImpact(changes []git.ChangedFile) *ImpactReport {
	report := &ImpactReport{ChangedLines: make(map[string][]int)}
	seenDirect := make(map[string]bool)
	seenIndirect := make(map[string]bool)
	changedScripts := make(map[string]bool)
	var metadataKinds []artifact.Kind

	// 1. Find Direct Impacts
	for _, change := range changes {
		kind, ok := artifact.Classify(change.Path)
		if !ok {
			continue
		}
		switch kind {
		case artifact.KindScript:
			changedScripts[change.Path] = true
		case artifact.KindAppMetadata, artifact.KindSiteMetadata:
			metadataKinds = append(metadataKinds, kind)
		}
		if change.Deleted || a.pc.File(change.Path) == nil {
			continue
		}
		if !seenDirect[change.Path] {
			report.DirectlyAffected = append(report.DirectlyAffected, change.Path)
			seenDirect[change.Path] = true
		}
		report.ChangedLines[change.Path] = append(report.ChangedLines[change.Path], change.ChangedLines...)
	}

	addIndirect := func(p string) {
		if !seenDirect[p] && !seenIndirect[p] {
			report.IndirectlyAffected = append(report.IndirectlyAffected, p)
			seenIndirect[p] = true
		}
	}

	// 2. Pages including a changed script
	for page, includes := range a.pc.IncludesByPage {
		for _, inc := range includes {
			if inc.Script != nil && changedScripts[inc.Script.Path()] {
				addIndirect(page)
				break
			}
		}
	}

	// 3. Metadata changes reach every file checked against them
	for _, kind := range metadataKinds {
		for _, f := range a.pc.Files {
			if dependsOn(f.Kind(), kind) {
				addIndirect(f.Path())
			}
		}
	}

	sort.Strings(report.DirectlyAffected)
	sort.Strings(report.IndirectlyAffected)
	return report
}

func dependsOn(file, metadata artifact.Kind) bool {
	switch metadata {
	case artifact.KindSiteMetadata:
		return file == artifact.KindPage
	case artifact.KindAppMetadata:
		return file == artifact.KindPage || file == artifact.KindPod || file == artifact.KindScript
	}
	return false
}

// Affected reports whether path is directly or indirectly affected.
func (r *ImpactReport) Affected(path string) bool {
	i := sort.SearchStrings(r.DirectlyAffected, path)
	if i < len(r.DirectlyAffected) && r.DirectlyAffected[i] == path {
		return true
	}
	i = sort.SearchStrings(r.IndirectlyAffected, path)
	return i < len(r.IndirectlyAffected) && r.IndirectlyAffected[i] == path
}

// Filter keeps the findings located in affected files, preserving order.
func (r *ImpactReport) Filter(findings []finding.Finding) []finding.Finding {
	out := make([]finding.Finding, 0, len(findings))
	for _, f := range findings {
		if r.Affected(f.FilePath) {
			out = append(out, f)
		}
	}
	return out
}
