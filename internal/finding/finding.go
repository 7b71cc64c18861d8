package finding

import (
	"fmt"
	"sort"
	"strings"
)

// Severity is the two-level scheme used by every rule.
type Severity string

const (
	SeverityAction Severity = "ACTION"
	SeverityAdvice Severity = "ADVICE"
)

// ParseSeverity accepts the two severity names case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SeverityAction):
		return SeverityAction, nil
	case string(SeverityAdvice):
		return SeverityAdvice, nil
	}
	return "", fmt.Errorf("unknown severity %q (want ACTION or ADVICE)", s)
}

// Finding is one reported rule violation.
// Line is 1-based in the coordinate space of FilePath.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	FilePath string   `json:"file_path"`
	Line     int      `json:"line"`
	Column   int      `json:"column,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d [%s] %s: %s", f.FilePath, f.Line, f.Severity, f.RuleID, f.Message)
}

// Sort orders findings by rule id, then file path, then line.
// Column and message break the remaining ties so output is reproducible.
func Sort(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Message < b.Message
	})
}

// CountBySeverity returns the number of ACTION and ADVICE findings.
func CountBySeverity(findings []Finding) (action, advice int) {
	for _, f := range findings {
		switch f.Severity {
		case SeverityAction:
			action++
		case SeverityAdvice:
			advice++
		}
	}
	return action, advice
}
