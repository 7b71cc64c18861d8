package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"extendaudit/internal/artifact"
	"extendaudit/internal/finding"
	"extendaudit/internal/ruleconfig"
	"extendaudit/internal/script"
	"extendaudit/internal/structure"
)

type widgetIDRequiredRule struct{}

func (widgetIDRequiredRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "WidgetIdRequiredRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAction,
		Description: "Every widget needs an id unless its type is excluded.",
		AppliesTo:   presentationKinds,
		Settings: []ruleconfig.Setting{
			{Key: "excluded_widget_types", Type: ruleconfig.TypeStringList, Default: structure.DefaultExemptWidgetTypes, Description: "widget types that never need an id"},
		},
	}
}

func (widgetIDRequiredRule) Check(pass *Pass) error {
	if pass.File.Model == nil {
		return nil
	}
	for _, w := range pass.File.Model.Widgets {
		if w.IDExempt {
			continue
		}
		if !w.HasID || strings.TrimSpace(w.ID) == "" {
			pass.Reportf(w.Line, "Widget of type '%s' at %s is missing an 'id'", w.Type, w.Path)
		}
	}
	return nil
}

// ExemptWidgetTypes returns the excluded_widget_types setting of the widget
// id rule, or nil when the rule has no resolved config. Model building marks
// exempt widgets from it.
func ExemptWidgetTypes(configs map[string]ruleconfig.Effective) []string {
	cfg, ok := configs[widgetIDRequiredRule{}.Descriptor().ID]
	if !ok {
		return nil
	}
	var settings struct {
		ExcludedWidgetTypes []string `mapstructure:"excluded_widget_types"`
	}
	if err := cfg.Decode(&settings); err != nil {
		return nil
	}
	return settings.ExcludedWidgetTypes
}

type widgetIDNamingRule struct{}

func (widgetIDNamingRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "WidgetIdNamingRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAdvice,
		Description: "Widget ids use lowerCamelCase.",
		AppliesTo:   presentationKinds,
	}
}

func (widgetIDNamingRule) Check(pass *Pass) error {
	if pass.File.Model == nil {
		return nil
	}
	for _, w := range pass.File.Model.Widgets {
		if w.ID == "" || isLowerCamel(w.ID) {
			continue
		}
		pass.Reportf(w.IDLine, "Widget id '%s' should be lowerCamelCase", w.ID)
	}
	return nil
}

type endpointNameRule struct{}

func (endpointNameRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "EndpointNameLowerCamelCaseRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAdvice,
		Description: "Endpoint and data provider names use lowerCamelCase.",
		AppliesTo:   []artifact.Kind{artifact.KindPage, artifact.KindPod, artifact.KindAppMetadata},
	}
}

func (endpointNameRule) Check(pass *Pass) error {
	if pass.File.Model == nil {
		return nil
	}
	for _, ep := range pass.File.Model.Endpoints {
		if ep.Name == "" || isLowerCamel(ep.Name) {
			continue
		}
		what := "Endpoint"
		if ep.DataProvider {
			what = "Data provider"
		}
		pass.Reportf(ep.NameLine, "%s name '%s' should be lowerCamelCase", what, ep.Name)
	}
	return nil
}

// requiredStatusCodes must appear in every endpoint's failOnStatusCodes.
var requiredStatusCodes = []string{"400", "403"}

type failOnStatusCodesRule struct{}

func (failOnStatusCodesRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "EndpointFailOnStatusCodesRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAction,
		Description: "Endpoints must fail on status codes 400 and 403.",
		AppliesTo:   presentationKinds,
	}
}

func (failOnStatusCodesRule) Check(pass *Pass) error {
	if pass.File.Model == nil {
		return nil
	}
	for _, ep := range pass.File.Model.Endpoints {
		if ep.DataProvider {
			continue
		}
		have := make(map[string]bool, len(ep.FailOnStatusCodes))
		for _, c := range ep.FailOnStatusCodes {
			have[strings.TrimSpace(c)] = true
		}
		var missing []string
		for _, c := range requiredStatusCodes {
			if !have[c] {
				missing = append(missing, c)
			}
		}
		if len(missing) == 0 {
			continue
		}
		name := ep.Name
		if name == "" {
			name = ep.Path
		}
		if !ep.HasFailOnStatusCodes {
			pass.Reportf(ep.Line, "Endpoint '%s' does not define failOnStatusCodes; add %s", name, strings.Join(missing, " and "))
			continue
		}
		pass.Reportf(ep.Line, "Endpoint '%s' failOnStatusCodes is missing %s", name, strings.Join(missing, " and "))
	}
	return nil
}

type workdayDomainRule struct{}

func (workdayDomainRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "HardcodedWorkdayDomainRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAction,
		Description: "Endpoint URLs must not hardcode a Workday host; use the platform's base URL.",
		AppliesTo:   []artifact.Kind{artifact.KindPage, artifact.KindPod, artifact.KindAppMetadata},
		Settings: []ruleconfig.Setting{
			{Key: "domain_suffix", Type: ruleconfig.TypeString, Default: "workday.com"},
		},
	}
}

func (workdayDomainRule) Check(pass *Pass) error {
	var cfg struct {
		DomainSuffix string `mapstructure:"domain_suffix"`
	}
	if err := pass.Settings(&cfg); err != nil {
		return err
	}
	suffix := strings.ToLower(strings.TrimSpace(cfg.DomainSuffix))
	if pass.File.Model == nil || suffix == "" {
		return nil
	}
	for _, ep := range pass.File.Model.Endpoints {
		if !strings.Contains(strings.ToLower(ep.URL), suffix) {
			continue
		}
		pass.ReportSnippet(ep.URLLine, firstLine(ep.URL), "Endpoint '%s' hardcodes a %s domain", ep.Name, suffix)
	}
	return nil
}

type applicationIDRule struct{}

func (applicationIDRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "HardcodedApplicationIdRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAdvice,
		Description: "Pages, pods and scripts should not repeat the application id literally.",
		AppliesTo:   []artifact.Kind{artifact.KindPage, artifact.KindPod, artifact.KindScript},
		Requires:    []artifact.Kind{artifact.KindAppMetadata},
	}
}

func (applicationIDRule) Check(pass *Pass) error {
	id := pass.Project.ApplicationID
	if id == "" {
		return nil
	}
	if pass.File.Model != nil {
		for _, s := range pass.File.Model.Strings {
			if structure.IsScript(s.Value) || !strings.Contains(s.Value, id) {
				continue
			}
			pass.Reportf(s.Line, "Application id '%s' is hardcoded at %s", id, s.Path)
		}
	}
	scriptStrings(pass, func(line int, value string) {
		if strings.Contains(value, id) {
			pass.Reportf(line, "Application id '%s' is hardcoded in a script", id)
		}
	})
	return nil
}

const errorPageExemption = "error-page-exemption"

type securityDomainRule struct{}

func (securityDomainRule) Descriptor() Descriptor {
	return Descriptor{
		ID:               "PageSecurityDomainRule",
		Category:         CategoryStructure,
		Severity:         finding.SeverityAction,
		Description:      "Pages must declare at least one security domain unless they are micro-conclusion or error pages.",
		AppliesTo:        []artifact.Kind{artifact.KindPage},
		Requires:         []artifact.Kind{artifact.KindSiteMetadata},
		PartialExecution: true,
		SubChecks: []SubCheck{
			{Name: errorPageExemption, Requires: []artifact.Kind{artifact.KindSiteMetadata}},
		},
	}
}

func (securityDomainRule) Check(pass *Pass) error {
	m := pass.File.Model
	if m == nil || m.MicroConclusion {
		return nil
	}
	if !pass.Skip(errorPageExemption) && m.PageID != "" && pass.Project.ErrorPageIDs[m.PageID] {
		return nil
	}
	for _, d := range m.SecurityDomains {
		if strings.TrimSpace(d) != "" {
			return nil
		}
	}
	line := m.Line("securityDomains")
	if line == 0 {
		line = m.Root.Line
	}
	name := m.PageID
	if name == "" {
		name = pass.File.Path()
	}
	pass.Reportf(line, "Page '%s' must declare at least one security domain", name)
	return nil
}

type embeddedImagesRule struct{}

func (embeddedImagesRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "EmbeddedImagesRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAdvice,
		Description: "Images should be served as files, not embedded as base64 data URIs.",
		AppliesTo:   structuralKinds,
	}
}

var dataImageRe = regexp.MustCompile(`(?i)data:image/[a-z0-9.+-]+;base64,`)

func (embeddedImagesRule) Check(pass *Pass) error {
	if pass.File.Model == nil {
		return nil
	}
	for _, s := range pass.File.Model.Strings {
		if dataImageRe.MatchString(s.Value) {
			pass.Reportf(s.Line, "Embedded base64 image at %s; reference an image file instead", s.Path)
		}
	}
	return nil
}

type stringBooleanRule struct{}

func (stringBooleanRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "StringBooleanRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAdvice,
		Description: "Boolean values should be JSON booleans, not the strings \"true\" or \"false\".",
		AppliesTo:   structuralKinds,
	}
}

func (stringBooleanRule) Check(pass *Pass) error {
	if pass.File.Model == nil {
		return nil
	}
	for _, s := range pass.File.Model.Strings {
		if s.Value == "true" || s.Value == "false" {
			pass.Reportf(s.Line, "Use the boolean %s instead of the string \"%s\" at %s", s.Value, s.Value, s.Path)
		}
	}
	return nil
}

type hardcodedWIDRule struct{}

func (hardcodedWIDRule) Descriptor() Descriptor {
	return Descriptor{
		ID:          "HardcodedWidRule",
		Category:    CategoryStructure,
		Severity:    finding.SeverityAdvice,
		Description: "Workday IDs should come from configuration or lookups, not literals.",
		AppliesTo:   allKinds,
	}
}

var widRe = regexp.MustCompile(`\b[0-9a-fA-F]{32}\b`)

func (hardcodedWIDRule) Check(pass *Pass) error {
	report := func(line int, value, where string) {
		wids := widRe.FindAllString(value, -1)
		if len(wids) == 0 {
			return
		}
		sort.Strings(wids)
		pass.ReportSnippet(line, firstLine(value), "Hardcoded Workday ID %s%s", strings.Join(dedupe(wids), ", "), where)
	}
	if pass.File.Model != nil {
		for _, s := range pass.File.Model.Strings {
			if structure.IsScript(s.Value) {
				continue
			}
			report(s.Line, s.Value, fmt.Sprintf(" at %s", s.Path))
		}
	}
	scriptStrings(pass, func(line int, value string) {
		report(line, value, " in a script")
	})
	return nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// scriptStrings calls fn for every string and template literal in the
// parsed scripts of the current file.
func scriptStrings(pass *Pass, fn func(line int, value string)) {
	for _, s := range pass.Scripts() {
		script.InspectProgram(s.Program, func(n script.Node) bool {
			switch x := n.(type) {
			case *script.StringLit:
				fn(x.Line, x.Value)
			case *script.TemplateLit:
				fn(x.Line, x.Raw)
			}
			return true
		})
	}
}
