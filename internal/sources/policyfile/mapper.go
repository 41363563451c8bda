package policyfile

import (
	"fmt"

	"github.com/kroleg/homelab/internal/domain"
)

// Mapper converts seed file entries to domain.ServicePolicy values
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapPolicies converts a PoliciesConfig to validated domain policies.
// A single invalid entry fails the whole seed: a partially applied seed
// file would be harder to debug than a refused one.
func (m *Mapper) MapPolicies(config *PoliciesConfig) ([]*domain.ServicePolicy, error) {
	if config == nil || len(config.Policies) == 0 {
		return nil, fmt.Errorf("no policies found in seed file")
	}

	policies := make([]*domain.ServicePolicy, 0, len(config.Policies))
	seen := make(map[string]bool, len(config.Policies))

	for _, props := range config.Policies {
		if seen[props.Name] {
			return nil, fmt.Errorf("duplicate policy %q in seed file", props.Name)
		}
		seen[props.Name] = true

		policy := &domain.ServicePolicy{
			Name:           props.Name,
			Interfaces:     props.Interfaces,
			DomainPatterns: props.Domains,
			OptimizeRoutes: props.OptimizeRoutes,
			Enabled:        !props.Disabled,
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("seed policy %q: %w", props.Name, err)
		}
		policies = append(policies, policy)
	}

	return policies, nil
}
