package domain

// Request statuses form a closed enum. Legacy spellings from external systems
// are translated at the boundary, never stored.
const (
	StatusDraft     = "draft"
	StatusSearching = "searching"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
)

// Actor kinds.
const (
	ActorHuman = "human"
	ActorAI    = "ai"
)

type Project struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Profile is a catalog entry for a job role. AI-backed profiles are fulfilled
// by an AI actor whose id equals the profile id.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AIBacked    bool   `json:"ai_backed"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Actor is a human candidate or an AI resource. The id namespace is shared;
// an AI actor's id is its profile id by convention.
type Actor struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind" enum:"human,ai"`
	ProfileID string   `json:"profile_id"`
	Seniority string   `json:"seniority" enum:"junior,intermediate,senior"`
	Languages []string `json:"languages,omitempty"`
	Expertise []string `json:"expertise,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// RoleRequest is a project's need for one actor matching a capability
// descriptor. Accepted implies a non-null binding; draft rows are invisible
// to matching; declined is terminal.
type RoleRequest struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"project_id"`
	ProfileID         string   `json:"profile_id"`
	Seniority         string   `json:"seniority" enum:"junior,intermediate,senior"`
	RequiredLanguages []string `json:"required_languages,omitempty"`
	RequiredExpertise []string `json:"required_expertise,omitempty"`
	BoundActorID      *string  `json:"bound_actor_id,omitempty"`
	Status            string   `json:"status" enum:"draft,searching,accepted,declined"`
	IsAIRequest       bool     `json:"is_ai_request"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

// Side effect kinds emitted by booking operations. Delivery (push, poll,
// e-mail) is the caller's concern.
const (
	EffectNotifyOwner       = "notify_owner"
	EffectNotifyCandidates  = "notify_candidates"
	EffectAssignmentChanged = "assignment_changed"
)

// SideEffect is a delivery instruction returned to the caller alongside the
// committed state change.
type SideEffect struct {
	Kind      string `json:"kind" enum:"notify_owner,notify_candidates,assignment_changed"`
	ProjectID string `json:"project_id"`
	RequestID string `json:"request_id"`
	ActorID   string `json:"actor_id,omitempty"`
	Status    string `json:"status"`
}

// Violation kinds found by the consistency auditor.
const (
	ViolationOrphanAccepted = "orphan_accepted"
	ViolationAIUnbound      = "ai_unbound"
	ViolationAIMisbound     = "ai_misbound"
)

// Violation describes one request row breaking a store invariant.
type Violation struct {
	Kind         string  `json:"kind" enum:"orphan_accepted,ai_unbound,ai_misbound"`
	RequestID    string  `json:"request_id"`
	ProjectID    string  `json:"project_id"`
	ProfileID    string  `json:"profile_id"`
	Status       string  `json:"status"`
	BoundActorID *string `json:"bound_actor_id,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
