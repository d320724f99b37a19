package discipline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/generic"
)

func TestStandardCatalog(t *testing.T) {
	catalog, err := discipline.StandardCatalog()
	require.NoError(t, err)

	assert.Len(t, catalog.Categories, 15)
	require.NoError(t, generic.ValidateThresholds(catalog.Thresholds))

	// The seeded table agrees with the frozen classifier everywhere
	for p := 0; p <= 30; p++ {
		row, ok := generic.ThresholdFor(catalog.Thresholds, p)
		require.True(t, ok)
		assert.Equal(t, generic.LevelFor(p), row.Level, "points=%d", p)
	}

	seen := map[generic.SeverityTier]bool{}
	for _, c := range catalog.Categories {
		seen[c.Severity] = true
	}
	for _, tier := range generic.AllSeverityTiers() {
		assert.True(t, seen[tier], "no category for %s", tier)
	}
}

func TestDemoRoster_Actor(t *testing.T) {
	roster := discipline.DemoRoster()

	actor, ok := roster.Actor("mgr-akim")
	require.True(t, ok)
	assert.Equal(t, generic.RoleHouseManager, actor.Role)
	assert.Equal(t, []generic.HouseID{discipline.HouseMaple}, actor.Houses)

	_, ok = roster.Actor("nobody")
	assert.False(t, ok)
}
