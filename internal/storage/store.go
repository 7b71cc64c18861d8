package storage

import (
	"context"
	"errors"
	"time"

	"extendaudit/internal/finding"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted analysis run.
type Run struct {
	ID        string
	Root      string
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int
	Findings  []finding.Finding
	Context   finding.AnalysisContext
}

// RunSummary is a run without its findings.
type RunSummary struct {
	ID        string
	Root      string
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int
	Action    int
	Advice    int
}

// RunStore persists analysis runs.
type RunStore interface {
	// SaveRun stores a run and its findings, assigning an id when empty.
	SaveRun(ctx context.Context, run *Run) error

	// LoadRun retrieves a run with its findings in their stored order.
	LoadRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first, at most limit of them.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	Close() error
}
