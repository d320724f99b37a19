package discipline

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/warp/discipline-engine/factory"
	"github.com/warp/discipline-engine/generic"
)

// Seeder loads reference data and a directory into a fresh store.
type Seeder struct {
	Manager   *generic.Manager
	Directory generic.DirectoryWriter
}

// SeedCatalog stores the catalog as actor and returns the audit effects.
func (s Seeder) SeedCatalog(ctx context.Context, actor generic.Actor, catalog *factory.Catalog) (*generic.Effects, error) {
	effects, err := s.Manager.SeedCatalog(ctx, actor, catalog.Categories, catalog.Thresholds)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to seed catalog")
	}
	return effects, nil
}

// SeedRoster saves every employee and user in the roster.
func (s Seeder) SeedRoster(ctx context.Context, roster Roster) error {
	for _, e := range roster.Employees {
		if err := s.Directory.SaveEmployee(ctx, e); err != nil {
			return goerr.Wrap(err, "failed to save employee", goerr.V("employee_id", e.ID))
		}
	}
	for _, u := range roster.Users {
		if err := s.Directory.SaveUser(ctx, u); err != nil {
			return goerr.Wrap(err, "failed to save user", goerr.V("user_id", u.ID))
		}
	}
	return nil
}
