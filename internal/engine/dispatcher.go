package engine

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/project"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/rules"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReasonCancelled marks rules that did not finish before the run was cancelled.
const ReasonCancelled = "cancelled"

// Dispatcher runs rules over a project context.
type Dispatcher struct {
	rules   []rules.Rule
	configs map[string]ruleconfig.Effective
	workers int
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher for rs with resolved configs. Rules
// without an entry in configs run with their defaults.
func NewDispatcher(rs []rules.Rule, configs map[string]ruleconfig.Effective, workers int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	sorted := append([]rules.Rule(nil), rs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Descriptor().ID < sorted[j].Descriptor().ID
	})
	return &Dispatcher{rules: sorted, configs: configs, workers: workers, logger: logger}
}

// plannedRule is a rule cleared to run.
type plannedRule struct {
	rule    rules.Rule
	desc    rules.Descriptor
	config  ruleconfig.Effective
	skipped map[string]bool
	partial *finding.PartialRule
}

// outcome is the result slot of one rule.
type outcome struct {
	findings  []finding.Finding
	cancelled bool
}

// Run evaluates every enabled rule and returns the sorted findings and the
// context record. Cancelling ctx stops the run between rule invocations;
// unfinished rules are reported with reason "cancelled" and contribute no
// findings.
func (d *Dispatcher) Run(ctx context.Context, pc *project.Context) ([]finding.Finding, finding.AnalysisContext) {
	actx := finding.AnalysisContext{
		FilesAnalyzed: pc.Paths(),
		Warnings:      append([]string(nil), pc.Warnings...),
	}
	for _, k := range pc.FilesMissing {
		actx.FilesMissing = append(actx.FilesMissing, string(k))
	}

	// 1. Plan
	var planned []plannedRule
	for _, r := range d.rules {
		desc := r.Descriptor()
		cfg, ok := d.configs[desc.ID]
		if !ok {
			cfg = ruleconfig.Defaults([]ruleconfig.Spec{{RuleID: desc.ID, Settings: desc.Settings}})[desc.ID]
		}
		if !cfg.Enabled {
			continue
		}

		missing := desc.MissingKinds(pc.Has)
		p := plannedRule{rule: r, desc: desc, config: cfg, skipped: make(map[string]bool)}
		if len(missing) > 0 {
			if !desc.PartialExecution {
				actx.RulesNotExecuted = append(actx.RulesNotExecuted, finding.SkippedRule{
					Rule:   desc.ID,
					Reason: gapReason(pc, missing, requiresReason),
				})
				continue
			}
			checks := desc.SkippedChecks(pc.Has)
			for _, c := range checks {
				p.skipped[c] = true
			}
			p.partial = &finding.PartialRule{
				Rule:          desc.ID,
				SkippedChecks: checks,
				Reason:        gapReason(pc, missing, missingReason),
			}
		}
		planned = append(planned, p)
	}

	// 2. Fan out into per-rule slots
	slots := make([]outcome, len(planned))
	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for i := range planned {
		i := i
		g.Go(func() error {
			slots[i] = d.runRule(ctx, pc, planned[i])
			return nil
		})
	}
	_ = g.Wait()

	// 3. Single-writer merge
	var findings []finding.Finding
	for i, p := range planned {
		if slots[i].cancelled {
			actx.RulesNotExecuted = append(actx.RulesNotExecuted, finding.SkippedRule{Rule: p.desc.ID, Reason: ReasonCancelled})
			continue
		}
		if p.partial != nil {
			actx.RulesPartiallyExecuted = append(actx.RulesPartiallyExecuted, *p.partial)
		}
		findings = append(findings, slots[i].findings...)
	}
	finding.Sort(findings)
	actx.Normalize()

	d.logger.Info("dispatch finished",
		zap.Int("rules", len(planned)),
		zap.Int("findings", len(findings)),
		zap.Int("not_executed", len(actx.RulesNotExecuted)),
		zap.Int("partial", len(actx.RulesPartiallyExecuted)))
	return findings, actx
}

func (d *Dispatcher) runRule(ctx context.Context, pc *project.Context, p plannedRule) outcome {
	if ctx.Err() != nil {
		return outcome{cancelled: true}
	}
	var out outcome
	severity := p.config.Severity(p.desc.Severity)
	for _, f := range pc.Files {
		if !p.desc.Applies(f.Kind()) {
			continue
		}
		if ctx.Err() != nil {
			return outcome{cancelled: true}
		}
		var local []finding.Finding
		pass := &rules.Pass{
			RuleID:   p.desc.ID,
			Project:  pc,
			File:     f,
			Config:   p.config,
			Severity: severity,
			Skipped:  p.skipped,
			Report:   func(fd finding.Finding) { local = append(local, fd) },
		}
		if err := invoke(p.rule, pass); err != nil {
			d.logger.Warn("rule failed; its findings for this file are dropped",
				zap.String("rule", p.desc.ID),
				zap.String("path", f.Path()),
				zap.Error(err))
			continue
		}
		out.findings = append(out.findings, local...)
	}
	return out
}

// invoke runs one (rule, file) pair, turning a panic into an error.
func invoke(r rules.Rule, pass *rules.Pass) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return r.Check(pass)
}

// gapReason explains missing kinds, telling kinds whose files failed to
// parse apart from kinds with no file at all.
func gapReason(pc *project.Context, missing []artifact.Kind, absentReason func([]artifact.Kind) string) string {
	var absent, unparsed []artifact.Kind
	for _, k := range missing {
		if pc.IsUnparsed(k) {
			unparsed = append(unparsed, k)
		} else {
			absent = append(absent, k)
		}
	}
	var parts []string
	if len(absent) > 0 {
		parts = append(parts, absentReason(absent))
	}
	if len(unparsed) > 0 {
		parts = append(parts, unparsedReason(unparsed))
	}
	return strings.Join(parts, "; ")
}

func unparsedReason(kinds []artifact.Kind) string {
	if len(kinds) == 1 {
		return fmt.Sprintf("%s file could not be parsed", kinds[0])
	}
	return fmt.Sprintf("%s files could not be parsed", joinKinds(kinds))
}

func requiresReason(missing []artifact.Kind) string {
	if len(missing) == 1 {
		return fmt.Sprintf("requires %s file", missing[0])
	}
	return fmt.Sprintf("requires %s files", joinKinds(missing))
}

func missingReason(missing []artifact.Kind) string {
	if len(missing) == 1 {
		return fmt.Sprintf("%s file not present", missing[0])
	}
	return fmt.Sprintf("%s files not present", joinKinds(missing))
}

func joinKinds(kinds []artifact.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	if len(names) <= 2 {
		return strings.Join(names, " and ")
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
