package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"extendaudit/internal/finding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SaveAndLoadRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	run := &Run{
		Root:      "apps/payroll",
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		ExitCode:  1,
		Findings: []finding.Finding{
			{RuleID: "ScriptConsoleLogRule", Severity: finding.SeverityAction, Message: "Remove console.log statement", FilePath: "home.pmd", Line: 13},
			{RuleID: "ScriptVarUsageRule", Severity: finding.SeverityAdvice, Message: "Use 'let'", FilePath: "home.pmd", Line: 13, Snippet: "var count = 0"},
		},
		Context: finding.AnalysisContext{
			FilesAnalyzed:    []string{"home.pmd"},
			FilesMissing:     []string{"AppMetadata"},
			RulesNotExecuted: []finding.SkippedRule{{Rule: "HardcodedApplicationIdRule", Reason: "requires AppMetadata file"}},
		},
	}
	require.NoError(t, store.SaveRun(ctx, run))
	require.NotEmpty(t, run.ID)

	loaded, err := store.LoadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Root, loaded.Root)
	assert.True(t, started.Equal(loaded.StartedAt))
	assert.Equal(t, run.Duration, loaded.Duration)
	assert.Equal(t, 1, loaded.ExitCode)
	assert.Equal(t, run.Findings, loaded.Findings)
	assert.Equal(t, run.Context.RulesNotExecuted, loaded.Context.RulesNotExecuted)

	t.Run("Unknown run", func(t *testing.T) {
		_, err := store.LoadRun(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRunNotFound))
	})
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &Run{
			Root:      "app",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Findings: []finding.Finding{
				{RuleID: "WidgetIdRequiredRule", Severity: finding.SeverityAction, FilePath: "a.pmd", Line: i + 1},
			},
		}
		require.NoError(t, store.SaveRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	assert.Equal(t, 1, runs[0].Action)
	assert.Equal(t, 0, runs[0].Advice)
}
