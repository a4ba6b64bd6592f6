// Package match computes which open role requests an actor may accept. It is
// a pure read path; bindings happen in the engine.
package match

import (
	"context"
	"fmt"

	"staffline/internal/directory"
	"staffline/internal/domain"
	"staffline/internal/repo"
)

type Matcher struct {
	Repo      repo.Repo
	Directory directory.Directory
}

// Eligible reports whether the actor may accept the request: exact profile and
// seniority match, and the actor's languages and expertise cover the required
// sets (knowing more than required is fine, less is not).
func Eligible(actor domain.Actor, req domain.RoleRequest) bool {
	ok, _ := Explain(actor, req)
	return ok
}

// Explain is Eligible with the first failing check named, for error surfaces.
// An AI-backed request is only acceptable by its own AI resource; letting a
// human bind it would leave an accepted row whose binding differs from the
// profile id.
func Explain(actor domain.Actor, req domain.RoleRequest) (bool, string) {
	if req.IsAIRequest && actor.ID != req.ProfileID {
		return false, fmt.Sprintf("request is fulfilled by AI resource %s", req.ProfileID)
	}
	if actor.ProfileID != req.ProfileID {
		return false, fmt.Sprintf("profile %s does not match required %s", actor.ProfileID, req.ProfileID)
	}
	if actor.Seniority != req.Seniority {
		return false, fmt.Sprintf("seniority %s does not match required %s", actor.Seniority, req.Seniority)
	}
	if missing := firstMissing(actor.Languages, req.RequiredLanguages); missing != "" {
		return false, fmt.Sprintf("missing required language %s", missing)
	}
	if missing := firstMissing(actor.Expertise, req.RequiredExpertise); missing != "" {
		return false, fmt.Sprintf("missing required expertise %s", missing)
	}
	return true, ""
}

func firstMissing(have, required []string) string {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, r := range required {
		if !set[r] {
			return r
		}
	}
	return ""
}

// FindOpenRequestsFor returns every searching, unbound request the actor is
// eligible to accept, in creation order. Draft requests never appear. Ordering
// carries no priority semantics: acceptance is first-accept-wins.
func (m Matcher) FindOpenRequestsFor(ctx context.Context, actorID string) ([]domain.RoleRequest, error) {
	actor, err := m.Directory.GetActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	candidates, err := m.Repo.ListOpenRequests(ctx, actor.ProfileID, actor.Seniority)
	if err != nil {
		return nil, err
	}
	var res []domain.RoleRequest
	for _, req := range candidates {
		if Eligible(actor, req) {
			res = append(res, req)
		}
	}
	return res, nil
}
