// Package catalog exposes read-only reference data: job profiles and whether
// a profile is AI-backed. Catalog rows are seeded from config at project init
// and owned by catalog-management flows, never mutated here.
package catalog

import (
	"context"

	"staffline/internal/config"
	"staffline/internal/domain"
	"staffline/internal/repo"
)

type Catalog struct {
	Repo   repo.Repo
	Config *config.Config
}

func (c Catalog) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return c.Repo.GetProfile(ctx, id)
}

func (c Catalog) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	return c.Repo.ListProfiles(ctx)
}

// Requirements is the capability descriptor for one profile: the profile row
// plus the vocabularies a role request for it may require.
type Requirements struct {
	Profile     domain.Profile `json:"profile"`
	Seniorities []string       `json:"seniorities"`
	Languages   []string       `json:"languages"`
	Expertise   []string       `json:"expertise"`
}

// CapabilityRequirements resolves the requirement template for a profile.
// Returns repo.ErrNotFound for unknown profiles.
func (c Catalog) CapabilityRequirements(ctx context.Context, profileID string) (Requirements, error) {
	p, err := c.Repo.GetProfile(ctx, profileID)
	if err != nil {
		return Requirements{}, err
	}
	r := Requirements{Profile: p}
	if c.Config != nil {
		r.Seniorities = c.Config.Catalog.Seniorities
		r.Languages = c.Config.Catalog.Languages
		r.Expertise = c.Config.Catalog.Expertise
	}
	return r, nil
}
