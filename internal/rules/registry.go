package rules

import (
	"sort"

	"extendaudit/internal/ruleconfig"
)

// Registry returns every rule, ordered by id.
func Registry() []Rule {
	all := []Rule{
		// Script
		complexityRule{},
		nestingRule{},
		longFunctionRule{},
		parameterCountRule{},
		deadCodeRule{},
		unusedVariableRule{},
		unusedParametersRule{},
		unusedFunctionRule{},
		unusedIncludesRule{},
		varUsageRule{},
		magicNumberRule{},
		consoleLogRule{},
		stringConcatRule{},
		verboseBooleanRule{},
		emptyFunctionRule{},
		variableNamingRule{},
		scriptParseErrorRule{},

		// Structure
		widgetIDRequiredRule{},
		widgetIDNamingRule{},
		endpointNameRule{},
		failOnStatusCodesRule{},
		workdayDomainRule{},
		applicationIDRule{},
		securityDomainRule{},
		embeddedImagesRule{},
		stringBooleanRule{},
		hardcodedWIDRule{},
		fileParseErrorRule{},
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Descriptor().ID < all[j].Descriptor().ID
	})
	return all
}

// Lookup finds a rule by id.
func Lookup(rules []Rule, id string) (Rule, bool) {
	for _, r := range rules {
		if r.Descriptor().ID == id {
			return r, true
		}
	}
	return nil, false
}

// Specs describes the configurable surface of rules to the resolver.
func Specs(rules []Rule) []ruleconfig.Spec {
	specs := make([]ruleconfig.Spec, 0, len(rules))
	for _, r := range rules {
		d := r.Descriptor()
		specs = append(specs, ruleconfig.Spec{RuleID: d.ID, Settings: d.Settings})
	}
	return specs
}
