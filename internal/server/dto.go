package server

import (
	"staffline/internal/catalog"
	"staffline/internal/config"
	"staffline/internal/domain"
)

type ProjectResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type CreateProjectRequest struct {
	ID          string  `json:"id"`
	Description *string `json:"description,omitempty"`
}

type ProjectConfigResponse struct {
	ProjectID   string                  `json:"project_id"`
	Seniorities []string                `json:"seniorities"`
	Languages   []string                `json:"languages"`
	Expertise   []string                `json:"expertise"`
	Profiles    map[string]ProfileEntry `json:"profiles"`
}

type ProfileEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AI          bool   `json:"ai,omitempty"`
}

type ProfileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AIBacked    bool   `json:"ai_backed"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ProfileRequirementsResponse struct {
	Profile     ProfileResponse `json:"profile"`
	Seniorities []string        `json:"seniorities"`
	Languages   []string        `json:"languages"`
	Expertise   []string        `json:"expertise"`
}

type OnboardActorRequest struct {
	ID        *string  `json:"id,omitempty"`
	ProfileID string   `json:"profile_id"`
	Seniority string   `json:"seniority"`
	Languages []string `json:"languages,omitempty"`
	Expertise []string `json:"expertise,omitempty"`
}

type ActorResponse struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	ProfileID string   `json:"profile_id"`
	Seniority string   `json:"seniority"`
	Languages []string `json:"languages,omitempty"`
	Expertise []string `json:"expertise,omitempty"`
	CreatedAt string   `json:"created_at"`
}

type CreateRequestRequest struct {
	ID                *string  `json:"id,omitempty"`
	ProfileID         string   `json:"profile_id"`
	Seniority         string   `json:"seniority"`
	RequiredLanguages []string `json:"required_languages,omitempty"`
	RequiredExpertise []string `json:"required_expertise,omitempty"`
	Draft             bool     `json:"draft,omitempty"`
}

type RequestResponse struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"project_id"`
	ProfileID         string   `json:"profile_id"`
	Seniority         string   `json:"seniority"`
	RequiredLanguages []string `json:"required_languages,omitempty"`
	RequiredExpertise []string `json:"required_expertise,omitempty"`
	BoundActorID      *string  `json:"bound_actor_id,omitempty"`
	Status            string   `json:"status"`
	IsAIRequest       bool     `json:"is_ai_request"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

type SideEffectResponse struct {
	Kind      string `json:"kind"`
	ProjectID string `json:"project_id"`
	RequestID string `json:"request_id"`
	ActorID   string `json:"actor_id,omitempty"`
	Status    string `json:"status"`
}

// BookingResponse carries the committed request state and the delivery
// instructions the caller is responsible for.
type BookingResponse struct {
	Request     RequestResponse      `json:"request"`
	SideEffects []SideEffectResponse `json:"side_effects"`
}

type ViolationResponse struct {
	Kind         string  `json:"kind"`
	RequestID    string  `json:"request_id"`
	ProjectID    string  `json:"project_id"`
	ProfileID    string  `json:"profile_id"`
	Status       string  `json:"status"`
	BoundActorID *string `json:"bound_actor_id,omitempty"`
}

type SweepResponse struct {
	Scanned  int      `json:"scanned"`
	Repaired int      `json:"repaired"`
	Failed   []string `json:"failed,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	// Key is only populated on creation; the server stores a hash.
	Key string `json:"key,omitempty"`
}

type paginatedRequests struct {
	Items      []RequestResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{ID: p.ID, Status: p.Status, Description: p.Description, CreatedAt: p.CreatedAt}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func configResponse(cfg *config.Config) ProjectConfigResponse {
	res := ProjectConfigResponse{
		ProjectID:   cfg.Project.ID,
		Seniorities: cfg.Catalog.Seniorities,
		Languages:   cfg.Catalog.Languages,
		Expertise:   cfg.Catalog.Expertise,
		Profiles:    map[string]ProfileEntry{},
	}
	for id, p := range cfg.Catalog.Profiles {
		res.Profiles[id] = ProfileEntry{Name: p.Name, Description: p.Description, AI: p.AI}
	}
	return res
}

func profileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{ID: p.ID, Name: p.Name, AIBacked: p.AIBacked, Description: p.Description, CreatedAt: p.CreatedAt}
}

func requirementsResponse(r catalog.Requirements) ProfileRequirementsResponse {
	return ProfileRequirementsResponse{
		Profile:     profileResponse(r.Profile),
		Seniorities: r.Seniorities,
		Languages:   r.Languages,
		Expertise:   r.Expertise,
	}
}

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse{
		ID:        a.ID,
		Kind:      a.Kind,
		ProfileID: a.ProfileID,
		Seniority: a.Seniority,
		Languages: a.Languages,
		Expertise: a.Expertise,
		CreatedAt: a.CreatedAt,
	}
}

func requestResponse(r domain.RoleRequest) RequestResponse {
	return RequestResponse{
		ID:                r.ID,
		ProjectID:         r.ProjectID,
		ProfileID:         r.ProfileID,
		Seniority:         r.Seniority,
		RequiredLanguages: r.RequiredLanguages,
		RequiredExpertise: r.RequiredExpertise,
		BoundActorID:      r.BoundActorID,
		Status:            r.Status,
		IsAIRequest:       r.IsAIRequest,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func mapRequests(items []domain.RoleRequest) []RequestResponse {
	res := make([]RequestResponse, 0, len(items))
	for _, r := range items {
		res = append(res, requestResponse(r))
	}
	return res
}

func bookingResponse(req domain.RoleRequest, fx []domain.SideEffect) BookingResponse {
	res := BookingResponse{Request: requestResponse(req), SideEffects: []SideEffectResponse{}}
	for _, f := range fx {
		res.SideEffects = append(res.SideEffects, SideEffectResponse{
			Kind:      f.Kind,
			ProjectID: f.ProjectID,
			RequestID: f.RequestID,
			ActorID:   f.ActorID,
			Status:    f.Status,
		})
	}
	return res
}

func violationResponse(v domain.Violation) ViolationResponse {
	return ViolationResponse{
		Kind:         v.Kind,
		RequestID:    v.RequestID,
		ProjectID:    v.ProjectID,
		ProfileID:    v.ProfileID,
		Status:       v.Status,
		BoundActorID: v.BoundActorID,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}
