package rules

import (
	"fmt"
	"strings"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/project"
	"extendaudit/internal/ruleconfig"
)

// Category groups rules by what they inspect.
type Category string

const (
	CategoryScript    Category = "Script"
	CategoryStructure Category = "Structure"
)

// SubCheck is an independently skippable part of a rule.
type SubCheck struct {
	Name     string          `json:"name"`
	Requires []artifact.Kind `json:"requires"`
}

// Descriptor is the static metadata of a rule. The dispatcher uses it to
// decide whether a rule runs fully, partially or not at all.
type Descriptor struct {
	ID          string           `json:"id"`
	Category    Category         `json:"category"`
	Severity    finding.Severity `json:"severity"`
	Description string           `json:"description"`
	// AppliesTo lists the file kinds the rule is invoked for.
	AppliesTo []artifact.Kind `json:"applies_to"`
	// Requires lists kinds that must be present in the run.
	Requires []artifact.Kind `json:"requires,omitempty"`
	// PartialExecution allows running with missing Requires kinds, skipping
	// the SubChecks that depend on them.
	PartialExecution bool                 `json:"partial_execution"`
	SubChecks        []SubCheck           `json:"sub_checks,omitempty"`
	Settings         []ruleconfig.Setting `json:"settings,omitempty"`
}

// Applies reports whether the rule visits files of kind.
func (d Descriptor) Applies(kind artifact.Kind) bool {
	for _, k := range d.AppliesTo {
		if k == kind {
			return true
		}
	}
	return false
}

// MissingKinds returns the required kinds for which has is false.
func (d Descriptor) MissingKinds(has func(artifact.Kind) bool) []artifact.Kind {
	var missing []artifact.Kind
	for _, k := range d.Requires {
		if !has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// SkippedChecks returns the sub-checks that cannot run without a missing kind.
func (d Descriptor) SkippedChecks(has func(artifact.Kind) bool) []string {
	var skipped []string
	for _, sc := range d.SubChecks {
		for _, k := range sc.Requires {
			if !has(k) {
				skipped = append(skipped, sc.Name)
				break
			}
		}
	}
	return skipped
}

// Rule is one deterministic check.
type Rule interface {
	Descriptor() Descriptor
	// Check inspects pass.File and reports findings through pass.
	Check(pass *Pass) error
}

// Pass carries everything a rule invocation may read. It is scoped to one
// (rule, file) pair.
type Pass struct {
	RuleID   string
	Project  *project.Context
	File     *project.File
	Config   ruleconfig.Effective
	Severity finding.Severity
	// Skipped names the sub-checks disabled for this run.
	Skipped map[string]bool
	Report  func(finding.Finding)
}

// Skip reports whether the named sub-check is disabled.
func (p *Pass) Skip(check string) bool {
	return p.Skipped[check]
}

// Settings decodes the rule's custom settings into out.
func (p *Pass) Settings(out interface{}) error {
	if err := p.Config.Decode(out); err != nil {
		return fmt.Errorf("%s: invalid settings: %w", p.RuleID, err)
	}
	return nil
}

// Reportf records a finding at line of the current file.
func (p *Pass) Reportf(line int, format string, args ...interface{}) {
	p.ReportSnippet(line, "", format, args...)
}

// ReportSnippet records a finding with an excerpt of the offending source.
func (p *Pass) ReportSnippet(line int, snippet string, format string, args ...interface{}) {
	if line < 1 {
		line = 1
	}
	p.Report(finding.Finding{
		RuleID:   p.RuleID,
		Severity: p.Severity,
		Message:  fmt.Sprintf(format, args...),
		FilePath: p.File.Path(),
		Line:     line,
		Snippet:  strings.TrimSpace(snippet),
	})
}

// Scripts returns the parsed scripts of the current file.
func (p *Pass) Scripts() []*project.Script {
	var out []*project.Script
	for _, s := range p.File.Scripts {
		if s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// allKinds is the AppliesTo of rules that look at scripts anywhere.
var allKinds = []artifact.Kind{
	artifact.KindPage,
	artifact.KindPod,
	artifact.KindAppMetadata,
	artifact.KindSiteMetadata,
	artifact.KindScript,
}

var structuralKinds = []artifact.Kind{
	artifact.KindPage,
	artifact.KindPod,
	artifact.KindAppMetadata,
	artifact.KindSiteMetadata,
}

var presentationKinds = []artifact.Kind{artifact.KindPage, artifact.KindPod}
