package engine

import (
	"context"
	"fmt"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/project"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/rules"
	"extendaudit/internal/structure"

	"go.uber.org/zap"
)

// Options configures one analysis run.
type Options struct {
	// Workers bounds parsing and rule fan-out; values below 1 mean GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
	// Rules overrides the registry, mainly for tests.
	Rules []rules.Rule
}

// Result is everything a run produces.
type Result struct {
	Findings []finding.Finding       `json:"findings"`
	Context  finding.AnalysisContext `json:"analysis_context"`
	Warnings []ruleconfig.Warning    `json:"config_warnings,omitempty"`
	// Project is the assembled context the findings were computed from.
	Project *project.Context `json:"-"`
}

// Analyze resolves configuration, builds the project context and runs every
// rule. Per-file and per-rule failures end up in the result; only setup
// failures such as project.ErrNoArtifacts are returned as errors.
func Analyze(ctx context.Context, sources []artifact.Source, layers []ruleconfig.Layer, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rs := opts.Rules
	if rs == nil {
		rs = rules.Registry()
	}

	// 1. Configuration
	configs, warnings := ruleconfig.Resolve(rules.Specs(rs), layers...)
	for _, w := range warnings {
		logger.Warn("configuration adjusted", zap.String("rule", w.RuleID), zap.String("field", w.Field), zap.String("reason", w.Msg))
	}

	// 2. Project context
	pc, err := project.Build(ctx, sources, project.Options{
		Workers:   opts.Workers,
		Structure: structure.Options{ExemptWidgetTypes: rules.ExemptWidgetTypes(configs)},
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build project: %w", err)
	}

	// 3. Dispatch
	d := NewDispatcher(rs, configs, opts.Workers, logger)
	findings, actx := d.Run(ctx, pc)

	return &Result{Findings: findings, Context: actx, Warnings: warnings, Project: pc}, nil
}

// ExitCode maps a result to the process exit status: 1 when any ACTION
// finding exists, else 0.
func ExitCode(r *Result) int {
	if r == nil {
		return 0
	}
	if action, _ := finding.CountBySeverity(r.Findings); action > 0 {
		return 1
	}
	return 0
}
