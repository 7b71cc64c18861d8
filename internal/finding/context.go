package finding

import "sort"

// SkippedRule records a rule that did not run at all.
type SkippedRule struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// PartialRule records a rule that ran with some sub-checks disabled.
type PartialRule struct {
	Rule          string   `json:"rule"`
	SkippedChecks []string `json:"skipped_checks"`
	Reason        string   `json:"reason"`
}

// AnalysisContext summarizes what a run could and could not evaluate.
// It is built once by the dispatcher and read-only afterwards.
type AnalysisContext struct {
	FilesAnalyzed          []string      `json:"files_analyzed"`
	FilesMissing           []string      `json:"files_missing"`
	RulesNotExecuted       []SkippedRule `json:"rules_not_executed"`
	RulesPartiallyExecuted []PartialRule `json:"rules_partially_executed"`
	Warnings               []string      `json:"warnings,omitempty"`
}

// IsComplete reports whether every enabled rule ran with all of its checks.
func (c AnalysisContext) IsComplete() bool {
	return len(c.RulesNotExecuted) == 0 && len(c.RulesPartiallyExecuted) == 0
}

// Normalize sorts every list so two contexts built from the same inputs compare equal.
func (c *AnalysisContext) Normalize() {
	sort.Strings(c.FilesAnalyzed)
	sort.Strings(c.FilesMissing)
	sort.SliceStable(c.RulesNotExecuted, func(i, j int) bool {
		return c.RulesNotExecuted[i].Rule < c.RulesNotExecuted[j].Rule
	})
	sort.SliceStable(c.RulesPartiallyExecuted, func(i, j int) bool {
		return c.RulesPartiallyExecuted[i].Rule < c.RulesPartiallyExecuted[j].Rule
	})
	if c.FilesAnalyzed == nil {
		c.FilesAnalyzed = []string{}
	}
	if c.FilesMissing == nil {
		c.FilesMissing = []string{}
	}
	if c.RulesNotExecuted == nil {
		c.RulesNotExecuted = []SkippedRule{}
	}
	if c.RulesPartiallyExecuted == nil {
		c.RulesPartiallyExecuted = []PartialRule{}
	}
}
