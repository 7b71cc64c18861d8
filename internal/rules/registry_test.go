package rules

import (
	"sort"
	"testing"

	"extendaudit/internal/artifact"
	"extendaudit/internal/ruleconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	all := Registry()
	require.Len(t, all, 28)

	ids := make([]string, len(all))
	seen := make(map[string]bool)
	for i, r := range all {
		d := r.Descriptor()
		ids[i] = d.ID
		assert.False(t, seen[d.ID], "duplicate rule id %s", d.ID)
		seen[d.ID] = true
		assert.NotEmpty(t, d.AppliesTo, d.ID)
		assert.NotEmpty(t, d.Description, d.ID)
		if len(d.SubChecks) > 0 {
			assert.True(t, d.PartialExecution, d.ID)
		}
	}
	assert.True(t, sort.StringsAreSorted(ids))

	t.Run("Defaults resolve cleanly", func(t *testing.T) {
		configs, warnings := ruleconfig.Resolve(Specs(all))
		assert.Empty(t, warnings)
		assert.Len(t, configs, len(all))
		for id, cfg := range configs {
			assert.True(t, cfg.Enabled, id)
		}
	})

	t.Run("Lookup", func(t *testing.T) {
		r, ok := Lookup(all, "PageSecurityDomainRule")
		require.True(t, ok)
		assert.Equal(t, CategoryStructure, r.Descriptor().Category)

		_, ok = Lookup(all, "NoSuchRule")
		assert.False(t, ok)
	})
}

func TestDescriptorPlanning(t *testing.T) {
	d := securityDomainRule{}.Descriptor()
	onlyPages := func(k artifact.Kind) bool { return k == artifact.KindPage }
	everything := func(artifact.Kind) bool { return true }

	assert.Equal(t, []artifact.Kind{artifact.KindSiteMetadata}, d.MissingKinds(onlyPages))
	assert.Equal(t, []string{errorPageExemption}, d.SkippedChecks(onlyPages))
	assert.Empty(t, d.MissingKinds(everything))
	assert.Empty(t, d.SkippedChecks(everything))
}
