// Package directory resolves actor identities to capability sets. Actors are
// onboarded externally; this engine reads them only.
package directory

import (
	"context"

	"staffline/internal/domain"
	"staffline/internal/repo"
)

type Directory struct {
	Repo repo.Repo
}

func (d Directory) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return d.Repo.GetActor(ctx, id)
}

func (d Directory) ListActors(ctx context.Context, f repo.ActorFilters) ([]domain.Actor, error) {
	return d.Repo.ListActors(ctx, f)
}
