package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/project"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSources(t *testing.T, paths ...string) []artifact.Source {
	t.Helper()
	var out []artifact.Source
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join("testdata", p))
		require.NoError(t, err)
		src, err := artifact.NewSource(p, string(data))
		require.NoError(t, err)
		out = append(out, src)
	}
	return out
}

func ruleIDs(findings []finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.RuleID
	}
	return out
}

func TestAnalyzeEndToEnd(t *testing.T) {
	res, err := Analyze(context.Background(), loadSources(t, "home.pmd"), nil, Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ScriptConsoleLogRule",
		"ScriptMagicNumberRule",
		"ScriptVarUsageRule",
		"WidgetIdRequiredRule",
	}, ruleIDs(res.Findings))

	action, advice := finding.CountBySeverity(res.Findings)
	assert.Equal(t, 2, action)
	assert.Equal(t, 2, advice)
	assert.Equal(t, 1, ExitCode(res))

	t.Run("Embedded script lines are absolute", func(t *testing.T) {
		for _, f := range res.Findings {
			if f.RuleID == "WidgetIdRequiredRule" {
				assert.Equal(t, 9, f.Line)
				continue
			}
			assert.Equal(t, 13, f.Line, f.RuleID)
		}
	})

	t.Run("Messages", func(t *testing.T) {
		assert.Equal(t, "Remove console.log statement", res.Findings[0].Message)
		assert.Equal(t, "Magic numbers 42, 100; extract to a named constant", res.Findings[1].Message)
		assert.Equal(t, "Use 'let' instead of 'var' for 'count'", res.Findings[2].Message)
	})
}

func TestAnalyzeContextAwareSkip(t *testing.T) {
	res, err := Analyze(context.Background(), loadSources(t, "home.pmd"), nil, Options{})
	require.NoError(t, err)
	actx := res.Context

	assert.Equal(t, []string{"home.pmd"}, actx.FilesAnalyzed)
	assert.Equal(t, []string{"AppMetadata", "SiteMetadata"}, actx.FilesMissing)
	assert.Equal(t, []finding.SkippedRule{
		{Rule: "HardcodedApplicationIdRule", Reason: "requires AppMetadata file"},
	}, actx.RulesNotExecuted)
	assert.Equal(t, []finding.PartialRule{
		{Rule: "PageSecurityDomainRule", SkippedChecks: []string{"error-page-exemption"}, Reason: "SiteMetadata file not present"},
	}, actx.RulesPartiallyExecuted)
	assert.False(t, actx.IsComplete())
}

func TestAnalyzeFullApplication(t *testing.T) {
	sources := loadSources(t, "app/app.amd", "app/site.smd", "app/forbidden.pmd", "app/home.pmd", "app/util.script")
	res, err := Analyze(context.Background(), sources, nil, Options{Workers: 4})
	require.NoError(t, err)

	assert.True(t, res.Context.IsComplete())
	assert.Empty(t, res.Context.FilesMissing)

	ids := ruleIDs(res.Findings)
	assert.Contains(t, ids, "HardcodedWorkdayDomainRule")
	assert.Contains(t, ids, "ScriptDeadCodeRule")
	assert.Contains(t, ids, "ScriptStringConcatRule")
	assert.NotContains(t, ids, "PageSecurityDomainRule", "forbidden.pmd is an error page")
	assert.NotContains(t, ids, "ScriptUnusedScriptIncludesRule")

	for _, f := range res.Findings {
		if f.RuleID == "ScriptDeadCodeRule" {
			assert.Equal(t, "app/util.script", f.FilePath)
			assert.Contains(t, f.Message, "'unused'")
		}
	}
}

func inlineSources(t *testing.T, files map[string]string) []artifact.Source {
	t.Helper()
	var out []artifact.Source
	for p, text := range files {
		src, err := artifact.NewSource(p, text)
		require.NoError(t, err)
		out = append(out, src)
	}
	return out
}

func TestAnalyzeUnparsedSiteMetadata(t *testing.T) {
	sources := inlineSources(t, map[string]string{
		"site.smd": `{
  "applicationId": "acme_hqz1",
  "errorPageConfigurations": [
    { "errorCode": "403", "pageId": "forbidden" }
  ]`,
		"forbidden.pmd": `{
  "id": "forbidden",
  "presentation": { "body": { "type": "section", "id": "errorSection", "children": [] } }
}`,
		"app.amd": `{ "applicationId": "acme_hqz1" }`,
	})
	res, err := Analyze(context.Background(), sources, nil, Options{})
	require.NoError(t, err)
	actx := res.Context

	assert.False(t, actx.IsComplete())
	assert.Equal(t, []string{"SiteMetadata"}, actx.FilesMissing)
	assert.Equal(t, []finding.PartialRule{
		{Rule: "PageSecurityDomainRule", SkippedChecks: []string{"error-page-exemption"}, Reason: "SiteMetadata file could not be parsed"},
	}, actx.RulesPartiallyExecuted)
	assert.Contains(t, ruleIDs(res.Findings), "FileParseError")
}

func TestAnalyzeEmbeddedScriptRows(t *testing.T) {
	tests := []struct {
		name string
		page string
		want int
	}{
		{
			name: "Escaped newlines stay on the field's row",
			page: `{
  "id": "p",
  "securityDomains": ["d"],
  "onLoad": "<%\n let a = 1;\n console.log(a);\n%>"
}`,
			want: 4,
		},
		{
			name: "Raw newlines inside a string",
			page: "{\n  \"id\": \"p\",\n  \"securityDomains\": [\"d\"],\n  \"onLoad\": \"<%\n let a = 1;\n console.log(a);\n%>\"\n}",
			want: 6,
		},
		{
			name: "Raw CRLF inside a string",
			page: "{\r\n  \"id\": \"p\",\r\n  \"securityDomains\": [\"d\"],\r\n  \"onLoad\": \"<%\r\n let a = 1;\r\n console.log(a);\r\n%>\"\r\n}",
			want: 6,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Analyze(context.Background(), inlineSources(t, map[string]string{"p.pmd": tc.page}), nil, Options{})
			require.NoError(t, err)

			ids := ruleIDs(res.Findings)
			assert.NotContains(t, ids, "FileParseError")
			var got []int
			for _, f := range res.Findings {
				if f.RuleID == "ScriptConsoleLogRule" {
					got = append(got, f.Line)
				}
			}
			assert.Equal(t, []int{tc.want}, got)
		})
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	sources := loadSources(t, "app/app.amd", "app/site.smd", "app/forbidden.pmd", "app/home.pmd", "app/util.script", "home.pmd")
	first, err := Analyze(context.Background(), sources, nil, Options{Workers: 8})
	require.NoError(t, err)

	reversed := make([]artifact.Source, len(sources))
	for i, s := range sources {
		reversed[len(sources)-1-i] = s
	}
	for i := 0; i < 3; i++ {
		again, err := Analyze(context.Background(), reversed, nil, Options{Workers: i + 1})
		require.NoError(t, err)
		assert.Equal(t, first.Findings, again.Findings)
		assert.Equal(t, first.Context, again.Context)
	}
}

func TestAnalyzeConfiguration(t *testing.T) {
	disabled := false
	advice := finding.SeverityAdvice
	layers := []ruleconfig.Layer{
		{"ScriptConsoleLogRule": {SeverityOverride: &advice}},
		{"WidgetIdRequiredRule": {Enabled: &disabled}},
		{"ScriptNestingLevelRule": {CustomSettings: map[string]interface{}{"max_nesting_level": 0}}},
		{"NoSuchRule": {Enabled: &disabled}},
	}
	res, err := Analyze(context.Background(), loadSources(t, "home.pmd"), layers, Options{})
	require.NoError(t, err)

	t.Run("Overrides apply", func(t *testing.T) {
		assert.NotContains(t, ruleIDs(res.Findings), "WidgetIdRequiredRule")
		assert.Equal(t, 0, ExitCode(res))
		for _, f := range res.Findings {
			assert.Equal(t, finding.SeverityAdvice, f.Severity, f.RuleID)
		}
	})

	t.Run("Disabled rules are not context gaps", func(t *testing.T) {
		for _, r := range res.Context.RulesNotExecuted {
			assert.NotEqual(t, "WidgetIdRequiredRule", r.Rule)
		}
	})

	t.Run("Clamped and unknown settings warn", func(t *testing.T) {
		require.Len(t, res.Warnings, 2)
		assert.Equal(t, "ScriptNestingLevelRule", res.Warnings[0].RuleID)
		assert.Equal(t, "max_nesting_level", res.Warnings[0].Field)
		assert.Equal(t, "NoSuchRule", res.Warnings[1].RuleID)
	})
}

func TestAnalyzeNoArtifacts(t *testing.T) {
	_, err := Analyze(context.Background(), []artifact.Source{{Path: "README.md", Text: "hi"}}, nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, project.ErrNoArtifacts))
}

type panicRule struct{}

func (panicRule) Descriptor() rules.Descriptor {
	return rules.Descriptor{
		ID:          "AAPanicRule",
		Category:    rules.CategoryStructure,
		Severity:    finding.SeverityAction,
		Description: "always panics",
		AppliesTo:   []artifact.Kind{artifact.KindPage},
	}
}

func (panicRule) Check(pass *rules.Pass) error {
	pass.Reportf(1, "reported before the panic")
	panic("boom")
}

type failingRule struct{}

func (failingRule) Descriptor() rules.Descriptor {
	d := panicRule{}.Descriptor()
	d.ID = "ABFailingRule"
	return d
}

func (failingRule) Check(pass *rules.Pass) error {
	pass.Reportf(1, "reported before the error")
	return errors.New("broken")
}

func TestDispatcherIsolatesFaults(t *testing.T) {
	console, ok := rules.Lookup(rules.Registry(), "ScriptConsoleLogRule")
	require.True(t, ok)

	rs := []rules.Rule{console, panicRule{}, failingRule{}}
	res, err := Analyze(context.Background(), loadSources(t, "home.pmd"), nil, Options{Rules: rs})
	require.NoError(t, err)

	assert.Equal(t, []string{"ScriptConsoleLogRule"}, ruleIDs(res.Findings))
	assert.True(t, res.Context.IsComplete())
}

func TestDispatcherCancellation(t *testing.T) {
	pc, err := project.Build(context.Background(), loadSources(t, "home.pmd"), project.Options{})
	require.NoError(t, err)

	rs := rules.Registry()
	configs, _ := ruleconfig.Resolve(rules.Specs(rs))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	findings, actx := NewDispatcher(rs, configs, 2, nil).Run(ctx, pc)
	assert.Empty(t, findings)
	require.NotEmpty(t, actx.RulesNotExecuted)
	for _, r := range actx.RulesNotExecuted {
		if r.Rule == "HardcodedApplicationIdRule" {
			assert.Equal(t, "requires AppMetadata file", r.Reason)
			continue
		}
		assert.Equal(t, ReasonCancelled, r.Reason, r.Rule)
	}
	assert.Empty(t, actx.RulesPartiallyExecuted)
}

func TestRequiresReason(t *testing.T) {
	assert.Equal(t, "requires AppMetadata file", requiresReason([]artifact.Kind{artifact.KindAppMetadata}))
	assert.Equal(t, "requires AppMetadata and SiteMetadata files",
		requiresReason([]artifact.Kind{artifact.KindAppMetadata, artifact.KindSiteMetadata}))
}
