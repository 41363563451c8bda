package scheduler

import (
	"context"

	"github.com/kroleg/homelab/internal/logger"
	"github.com/kroleg/homelab/internal/sources/policyfile"
	redisstore "github.com/kroleg/homelab/internal/store/redis"
)

// PolicySeeder loads the optional policies.yaml seed file into the store
// on startup, so a fresh deployment starts with a known policy set.
type PolicySeeder struct {
	loader *policyfile.Loader
	mapper *policyfile.Mapper
	store  *redisstore.Store
	logger logger.Logger
}

// NewPolicySeeder creates a new policy seeder
func NewPolicySeeder(
	policyFile string,
	store *redisstore.Store,
	log logger.Logger,
) *PolicySeeder {
	return &PolicySeeder{
		loader: policyfile.NewLoader(policyFile),
		mapper: policyfile.NewMapper(),
		store:  store,
		logger: log,
	}
}

// Seed upserts every seed policy into the store. Policies created via
// the admin API and absent from the file are left alone.
func (ps *PolicySeeder) Seed(ctx context.Context) error {
	config, err := ps.loader.Load()
	if err != nil {
		return err
	}

	policies, err := ps.mapper.MapPolicies(config)
	if err != nil {
		return err
	}

	for _, policy := range policies {
		if _, err := ps.store.Upsert(ctx, policy); err != nil {
			return err
		}
	}

	ps.logger.Info("seeded policies from file",
		logger.Int("count", len(policies)))
	return nil
}
