package analysis

import (
	"context"
	"testing"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/git"
	"extendaudit/internal/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildProject(t *testing.T, files map[string]string) *project.Context {
	t.Helper()
	var sources []artifact.Source
	for p, text := range files {
		src, err := artifact.NewSource(p, text)
		require.NoError(t, err)
		sources = append(sources, src)
	}
	pc, err := project.Build(context.Background(), sources, project.Options{})
	require.NoError(t, err)
	return pc
}

func fixture(t *testing.T) *project.Context {
	return buildProject(t, map[string]string{
		"home.pmd":      `{"id": "home", "include": ["util.script"]}`,
		"other.pmd":     `{"id": "other"}`,
		"card.pod":      `{"podId": "card"}`,
		"util.script":   "var greet = function () { return 1; };",
		"site.smd":      `{"applicationId": "acme"}`,
		"app.amd":       `{"applicationId": "acme"}`,
		"unused.script": "var x = 1;",
	})
}

func TestAnalyzeImpact(t *testing.T) {
	pc := fixture(t)

	t.Run("Changed script reaches including pages", func(t *testing.T) {
		report := NewAnalyzer(pc).AnalyzeImpact([]git.ChangedFile{
			{Path: "util.script", ChangedLines: []int{1}},
			{Path: "README.md", ChangedLines: []int{4}},
		})
		assert.Equal(t, []string{"util.script"}, report.DirectlyAffected)
		assert.Equal(t, []string{"home.pmd"}, report.IndirectlyAffected)
		assert.Equal(t, []int{1}, report.ChangedLines["util.script"])
	})

	t.Run("Site metadata reaches every page", func(t *testing.T) {
		report := NewAnalyzer(pc).AnalyzeImpact([]git.ChangedFile{{Path: "site.smd", ChangedLines: []int{1}}})
		assert.Equal(t, []string{"site.smd"}, report.DirectlyAffected)
		assert.Equal(t, []string{"home.pmd", "other.pmd"}, report.IndirectlyAffected)
	})

	t.Run("App metadata reaches pages pods and scripts", func(t *testing.T) {
		report := NewAnalyzer(pc).AnalyzeImpact([]git.ChangedFile{{Path: "app.amd", ChangedLines: []int{1}}})
		assert.Equal(t, []string{"card.pod", "home.pmd", "other.pmd", "unused.script", "util.script"}, report.IndirectlyAffected)
	})

	t.Run("Deleted files are not direct", func(t *testing.T) {
		report := NewAnalyzer(pc).AnalyzeImpact([]git.ChangedFile{{Path: "gone.pmd", Deleted: true}})
		assert.Empty(t, report.DirectlyAffected)
		assert.Empty(t, report.IndirectlyAffected)
	})
}

func TestImpactReportFilter(t *testing.T) {
	report := NewAnalyzer(fixture(t)).AnalyzeImpact([]git.ChangedFile{{Path: "util.script", ChangedLines: []int{1}}})

	findings := []finding.Finding{
		{RuleID: "A", FilePath: "home.pmd", Line: 1},
		{RuleID: "B", FilePath: "other.pmd", Line: 1},
		{RuleID: "C", FilePath: "util.script", Line: 1},
	}
	kept := report.Filter(findings)
	require.Len(t, kept, 2)
	assert.Equal(t, "A", kept[0].RuleID)
	assert.Equal(t, "C", kept[1].RuleID)
	assert.True(t, report.Affected("home.pmd"))
	assert.False(t, report.Affected("card.pod"))
}
