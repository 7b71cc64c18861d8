package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"extendaudit/internal/analysis"
	"extendaudit/internal/artifact"
	"extendaudit/internal/config"
	"extendaudit/internal/crawler"
	"extendaudit/internal/engine"
	"extendaudit/internal/git"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/storage"

	"go.uber.org/zap"
)

// Exit statuses of a scan.
const (
	ExitClean    = 0
	ExitAction   = 1
	ExitUsage    = 2
	ExitInternal = 3
)

var (
	// ErrUsage marks failures caused by configuration or arguments.
	ErrUsage = errors.New("usage error")
	// ErrTimeout is returned with a report when the run budget ran out.
	ErrTimeout = errors.New("analysis timed out")
)

// Scan audits one application directory or file.
type Scan struct {
	Root       string
	ConfigPath string
	// RuleFiles are extra rule layers applied after the config file.
	RuleFiles []string
	// Config skips loading ConfigPath when set.
	Config       *config.Config
	DBPath       string
	NoStore      bool
	ChangedSince string
	Workers      int
	Timeout      time.Duration
	Logger       *zap.Logger
	// Progress receives the human-readable stage lines.
	Progress io.Writer

	diff func(dir, baseRef string) ([]git.ChangedFile, error)
}

// Report is the outcome of one scan.
type Report struct {
	RunID string `json:"run_id,omitempty"`
	Root  string `json:"root"`
	*engine.Result
	Skipped  []crawler.Skipped      `json:"skipped_files,omitempty"`
	Impact   *analysis.ImpactReport `json:"impact,omitempty"`
	TimedOut bool                   `json:"timed_out,omitempty"`
	ExitCode int                    `json:"exit_code"`
}

// NewScan creates a scan of root with default settings.
func NewScan(root string) *Scan {
	return &Scan{
		Root:     root,
		Progress: os.Stderr,
		diff:     git.GetChangedFiles,
	}
}

// Run executes the scan stages. A returned error wraps ErrUsage for
// configuration or input problems; ErrTimeout comes with a partial report.
func (s *Scan) Run(ctx context.Context) (*Report, error) {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Progress == nil {
		s.Progress = io.Discard
	}
	if s.diff == nil {
		s.diff = git.GetChangedFiles
	}
	started := time.Now()

	cfg, layers, err := s.configStage()
	if err != nil {
		return nil, err
	}

	crawl, err := s.crawlStage()
	if err != nil {
		return nil, err
	}

	report, err := s.analyzeStage(ctx, cfg, layers, crawl)
	if err != nil {
		return nil, err
	}

	if s.ChangedSince != "" {
		if err := s.impactStage(report); err != nil {
			return nil, err
		}
	}

	report.ExitCode = engine.ExitCode(report.Result)
	if report.TimedOut {
		report.ExitCode = ExitInternal
	}

	if !s.NoStore {
		if err := s.storeStage(ctx, cfg, report, started); err != nil {
			return nil, err
		}
	}

	if report.TimedOut {
		return report, ErrTimeout
	}
	return report, nil
}

func (s *Scan) configStage() (*config.Config, []ruleconfig.Layer, error) {
	cfg := s.Config
	if cfg == nil {
		loaded, err := config.LoadConfig(s.ConfigPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrUsage, err)
		}
		cfg = loaded
	}

	layers := cfg.Layers()
	if len(s.RuleFiles) > 0 {
		extra, err := config.LoadLayers(s.RuleFiles...)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrUsage, err)
		}
		layers = append(layers, extra...)
	}
	fmt.Fprintf(s.Progress, "⚙️  Loaded %d rule configuration layer(s).\n", len(layers))
	return cfg, layers, nil
}

type crawlResult struct {
	Sources []artifact.Source
	Skipped []crawler.Skipped
}

func (s *Scan) crawlStage() (*crawlResult, error) {
	fmt.Fprintf(s.Progress, "📂 Scanning %s...\n", s.Root)
	c := crawler.NewCrawler()
	sources, skipped, err := c.ScanProject(s.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	for _, sk := range skipped {
		s.Logger.Warn("file skipped", zap.String("path", sk.Path), zap.String("reason", sk.Reason))
	}
	fmt.Fprintf(s.Progress, "  -> %d artifact(s) found, %d skipped\n", len(sources), len(skipped))
	return &crawlResult{Sources: sources, Skipped: skipped}, nil
}

func (s *Scan) analyzeStage(ctx context.Context, cfg *config.Config, layers []ruleconfig.Layer, crawl *crawlResult) (*Report, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = cfg.Run.Timeout
	}
	workers := s.Workers
	if workers <= 0 {
		workers = cfg.Run.Workers
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fmt.Fprintln(s.Progress, "🔍 Running rules...")
	start := time.Now()
	res, err := engine.Analyze(ctx, crawl.Sources, layers, engine.Options{Workers: workers, Logger: s.Logger})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	report := &Report{Root: s.Root, Result: res, Skipped: crawl.Skipped}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		report.TimedOut = true
		s.Logger.Warn("analysis timed out", zap.Duration("timeout", timeout))
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(s.Progress, "⚠️  Config: %s\n", w)
	}
	fmt.Fprintf(s.Progress, "📊 Analysis completed in %v. Findings=%d\n", time.Since(start).Round(time.Millisecond), len(res.Findings))
	return report, nil
}

func (s *Scan) impactStage(report *Report) error {
	dir := s.Root
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	changes, err := s.diff(dir, s.ChangedSince)
	if err != nil {
		return fmt.Errorf("%w: failed to get git changes: %w", ErrUsage, err)
	}

	fmt.Fprintln(s.Progress, "🧭 Analyzing impact...")
	impact := analysis.NewAnalyzer(report.Project).AnalyzeImpact(changes)
	before := len(report.Findings)
	report.Findings = impact.Filter(report.Findings)
	report.Impact = impact
	fmt.Fprintf(s.Progress, "  -> %d file(s) directly affected\n", len(impact.DirectlyAffected))
	fmt.Fprintf(s.Progress, "  -> %d file(s) indirectly affected (includes, metadata)\n", len(impact.IndirectlyAffected))
	fmt.Fprintf(s.Progress, "  -> %d of %d finding(s) kept\n", len(report.Findings), before)
	return nil
}

func (s *Scan) storeStage(ctx context.Context, cfg *config.Config, report *Report, started time.Time) error {
	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = cfg.Storage.Path
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	run := &storage.Run{
		Root:      s.Root,
		StartedAt: started,
		Duration:  time.Since(started),
		ExitCode:  report.ExitCode,
		Findings:  report.Findings,
		Context:   report.Context,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	report.RunID = run.ID
	fmt.Fprintf(s.Progress, "💾 Saved run %s to %s\n", run.ID, dbPath)
	return nil
}

// ExitCodeFor maps a scan error to a process exit status.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitClean
	case errors.Is(err, ErrUsage):
		return ExitUsage
	default:
		return ExitInternal
	}
}
