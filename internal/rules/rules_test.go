package rules

import (
	"context"
	"testing"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/project"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/structure"

	"github.com/stretchr/testify/require"
)

// runRule builds a project from sources and runs one rule over every file it
// applies to, the way the dispatcher would.
func runRule(t *testing.T, rule Rule, layer ruleconfig.Layer, sources ...artifact.Source) []finding.Finding {
	t.Helper()
	d := rule.Descriptor()
	specs := Specs([]Rule{rule})
	configs, warnings := ruleconfig.Resolve(specs, layer)
	require.Empty(t, warnings)
	cfg := configs[d.ID]

	pc, err := project.Build(context.Background(), sources, project.Options{
		Workers:   1,
		Structure: structure.Options{ExemptWidgetTypes: ExemptWidgetTypes(configs)},
	})
	require.NoError(t, err)

	skipped := make(map[string]bool)
	for _, name := range d.SkippedChecks(pc.Has) {
		skipped[name] = true
	}

	var out []finding.Finding
	for _, f := range pc.Files {
		if !d.Applies(f.Kind()) {
			continue
		}
		pass := &Pass{
			RuleID:   d.ID,
			Project:  pc,
			File:     f,
			Config:   cfg,
			Severity: cfg.Severity(d.Severity),
			Skipped:  skipped,
			Report:   func(fd finding.Finding) { out = append(out, fd) },
		}
		require.NoError(t, rule.Check(pass))
	}
	finding.Sort(out)
	return out
}

func standalone(path, text string) artifact.Source {
	return artifact.Source{Path: path, Kind: artifact.KindScript, Text: text}
}

func page(path, text string) artifact.Source {
	return artifact.Source{Path: path, Kind: artifact.KindPage, Text: text}
}

func messages(findings []finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Message
	}
	return out
}

func lines(findings []finding.Finding) []int {
	out := make([]int, len(findings))
	for i, f := range findings {
		out[i] = f.Line
	}
	return out
}
