package discipline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/generic/store"
)

func TestSeeder_SeedsRosterAndCatalog(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	seeder := discipline.Seeder{Manager: generic.NewManager(mem), Directory: mem}

	// GIVEN: The demo roster and the standard catalog
	roster := discipline.DemoRoster()
	catalog, err := discipline.StandardCatalog()
	require.NoError(t, err)

	// WHEN: Both are seeded by an admin
	require.NoError(t, seeder.SeedRoster(ctx, roster))
	admin, ok := roster.Actor("admin-rdiaz")
	require.True(t, ok)
	effects, err := seeder.SeedCatalog(ctx, admin, catalog)
	require.NoError(t, err)

	// THEN: The directory and catalog are readable and one audit entry is due
	employees, err := mem.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, len(roster.Employees))

	categories, err := mem.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, len(catalog.Categories))

	require.Len(t, effects.Audit, 1)
	assert.Equal(t, generic.AuditCatalogSeeded, effects.Audit[0].Action)
	assert.Equal(t, admin.ID, effects.Audit[0].ActorID)
}

func TestSeeder_CatalogRequiresElevatedRole(t *testing.T) {
	mem := store.NewTxMemory()
	seeder := discipline.Seeder{Manager: generic.NewManager(mem), Directory: mem}

	catalog, err := discipline.StandardCatalog()
	require.NoError(t, err)

	manager, ok := discipline.DemoRoster().Actor("mgr-akim")
	require.True(t, ok)

	_, err = seeder.SeedCatalog(context.Background(), manager, catalog)
	assert.True(t, generic.IsPermission(err))
}
