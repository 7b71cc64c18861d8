package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"extendaudit/internal/finding"
)

// WriteJSON renders r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders r as one line per finding followed by a summary.
func WriteText(w io.Writer, r *Report) error {
	var b strings.Builder
	for _, f := range r.Findings {
		b.WriteString(f.String())
		b.WriteByte('\n')
		if f.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", f.Snippet)
		}
	}

	action, advice := finding.CountBySeverity(r.Findings)
	if len(r.Findings) > 0 {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Summary: %d ACTION, %d ADVICE across %d file(s)\n", action, advice, len(r.Context.FilesAnalyzed))

	actx := r.Context
	if len(actx.FilesMissing) > 0 {
		fmt.Fprintf(&b, "Missing artifacts: %s\n", strings.Join(actx.FilesMissing, ", "))
	}
	if len(actx.RulesNotExecuted) > 0 {
		b.WriteString("Not executed:\n")
		for _, s := range actx.RulesNotExecuted {
			fmt.Fprintf(&b, "  - %s: %s\n", s.Rule, s.Reason)
		}
	}
	if len(actx.RulesPartiallyExecuted) > 0 {
		b.WriteString("Partially executed:\n")
		for _, p := range actx.RulesPartiallyExecuted {
			fmt.Fprintf(&b, "  - %s (skipped: %s): %s\n", p.Rule, strings.Join(p.SkippedChecks, ", "), p.Reason)
		}
	}
	for _, warn := range actx.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", warn)
	}
	if r.Impact != nil {
		fmt.Fprintf(&b, "Changed files: %d direct, %d indirect\n", len(r.Impact.DirectlyAffected), len(r.Impact.IndirectlyAffected))
	}
	if r.TimedOut {
		b.WriteString("Analysis timed out; results are incomplete\n")
	}
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
