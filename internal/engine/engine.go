package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"staffline/internal/catalog"
	"staffline/internal/config"
	"staffline/internal/directory"
	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/match"
	"staffline/internal/repo"
)

// SystemActorID attributes auto-binding and repair events not triggered by a
// specific caller.
const SystemActorID = "system"

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Catalog   catalog.Catalog
	Directory directory.Directory
	Matcher   match.Matcher
	Config    *config.Config
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:        db,
		Repo:      r,
		Events:    events.Writer{DB: db},
		Catalog:   catalog.Catalog{Repo: r, Config: cfg},
		Directory: directory.Directory{Repo: r},
		Matcher:   match.Matcher{Repo: r, Directory: directory.Directory{Repo: r}},
		Config:    cfg,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) beginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tx, nil
}

// InitProject creates a project, persists its config, and seeds the catalog:
// profile rows plus one AI actor per AI-backed profile. The AI actor id is
// the profile id; every auto-binding depends on that convention.
func (e Engine) InitProject(ctx context.Context, projectID, description, actorID string) (domain.Project, error) {
	if e.Config == nil {
		return domain.Project{}, errors.New("config not loaded")
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:          projectID,
		Status:      "active",
		Description: description,
		CreatedAt:   now,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, e.Config); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.seedCatalog(ctx, tx, now); err != nil {
		return domain.Project{}, fmt.Errorf("seed catalog: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectInit, p.ID, events.EntityProject, p.ID, actorID, events.Payload{"status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) seedCatalog(ctx context.Context, tx *sql.Tx, now string) error {
	for id, entry := range e.Config.Catalog.Profiles {
		p := domain.Profile{
			ID:          id,
			Name:        entry.Name,
			AIBacked:    entry.AI,
			Description: entry.Description,
			CreatedAt:   now,
		}
		if err := e.Repo.UpsertProfileTx(ctx, tx, p); err != nil {
			return err
		}
		if entry.AI {
			if err := e.Repo.EnsureAIActor(ctx, tx, id, e.Config.Catalog.Languages, e.Config.Catalog.Expertise, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// ActorCreateOptions are parameters for onboarding a human candidate.
type ActorCreateOptions struct {
	ID        string
	ProfileID string
	Seniority string
	Languages []string
	Expertise []string
	ActorID   string
}

func (e Engine) OnboardActor(ctx context.Context, opts ActorCreateOptions) (domain.Actor, error) {
	if e.Config == nil {
		return domain.Actor{}, errors.New("config not loaded")
	}
	if opts.ProfileID == "" {
		return domain.Actor{}, errors.New("profile is required")
	}
	if !e.Config.HasSeniority(opts.Seniority) {
		return domain.Actor{}, fmt.Errorf("unknown seniority %s", opts.Seniority)
	}
	if _, err := e.Catalog.GetProfile(ctx, opts.ProfileID); err != nil {
		return domain.Actor{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Actor{
		ID:        id,
		Kind:      domain.ActorHuman,
		ProfileID: opts.ProfileID,
		Seniority: opts.Seniority,
		Languages: opts.Languages,
		Expertise: opts.Expertise,
		CreatedAt: now,
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		return domain.Actor{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ActorOnboarded, "", events.EntityActor, a.ID, opts.ActorID, events.Payload{"profile_id": a.ProfileID, "kind": a.Kind}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// RequestCreateOptions are parameters for creating a role request.
type RequestCreateOptions struct {
	ID                string
	ProjectID         string
	ProfileID         string
	Seniority         string
	RequiredLanguages []string
	RequiredExpertise []string
	Draft             bool
	ActorID           string
}

// CreateRequest records a project's need for one actor. The AI flag is
// derived from the catalog, never supplied by the caller. New requests start
// in searching, or draft when explicitly hidden.
func (e Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (domain.RoleRequest, error) {
	if e.Config == nil {
		return domain.RoleRequest{}, errors.New("config not loaded")
	}
	if opts.ProjectID == "" {
		return domain.RoleRequest{}, errors.New("project is required")
	}
	if opts.ProfileID == "" {
		return domain.RoleRequest{}, errors.New("profile is required")
	}
	if !e.Config.HasSeniority(opts.Seniority) {
		return domain.RoleRequest{}, fmt.Errorf("unknown seniority %s", opts.Seniority)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.RoleRequest{}, err
	}
	caps, err := e.Catalog.CapabilityRequirements(ctx, opts.ProfileID)
	if err != nil {
		return domain.RoleRequest{}, err
	}
	aiBacked := caps.Profile.AIBacked
	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.New().String()
	}
	status := domain.StatusSearching
	if opts.Draft {
		status = domain.StatusDraft
	}
	req := domain.RoleRequest{
		ID:                id,
		ProjectID:         opts.ProjectID,
		ProfileID:         opts.ProfileID,
		Seniority:         opts.Seniority,
		RequiredLanguages: opts.RequiredLanguages,
		RequiredExpertise: opts.RequiredExpertise,
		Status:            status,
		IsAIRequest:       aiBacked,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.RoleRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
		return domain.RoleRequest{}, err
	}
	if err := e.Events.AppendAssignment(ctx, tx, events.AssignmentCreated, req.ProjectID, req.ID, opts.ActorID, events.Payload{
		"profile_id": req.ProfileID,
		"status":     req.Status,
		"is_ai":      req.IsAIRequest,
	}); err != nil {
		return domain.RoleRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RoleRequest{}, err
	}
	return req, nil
}

// Activate moves a draft request into searching, making it visible to the
// matcher.
func (e Engine) Activate(ctx context.Context, requestID, actorID string) (domain.RoleRequest, []domain.SideEffect, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.RoleRequest{}, nil, err
	}
	if req.Status != domain.StatusDraft {
		return req, nil, InvalidTransitionError{RequestID: requestID, From: req.Status, Op: "activate"}
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return req, nil, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.ActivateRequest(ctx, tx, requestID, now)
	if err != nil {
		return req, nil, err
	}
	if !ok {
		cur, rerr := e.Repo.GetRequestTx(ctx, tx, requestID)
		if rerr != nil {
			return req, nil, rerr
		}
		return cur, nil, InvalidTransitionError{RequestID: requestID, From: cur.Status, Op: "activate"}
	}
	if err := e.Events.AppendAssignment(ctx, tx, events.AssignmentActivated, req.ProjectID, req.ID, actorID, events.Payload{"from": req.Status, "to": domain.StatusSearching}); err != nil {
		return req, nil, err
	}
	if err := tx.Commit(); err != nil {
		return req, nil, err
	}
	req.Status = domain.StatusSearching
	req.UpdatedAt = now
	fx := []domain.SideEffect{
		effect(domain.EffectNotifyCandidates, req, ""),
		effect(domain.EffectAssignmentChanged, req, ""),
	}
	return req, fx, nil
}

// Accept binds an eligible actor to a searching request. Exactly one of any
// number of concurrent accepts commits; the rest observe AlreadyBound. The
// eligibility pre-check is advisory, the conditional update inside the
// transaction is authoritative.
func (e Engine) Accept(ctx context.Context, requestID, actorID string) (domain.RoleRequest, []domain.SideEffect, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.RoleRequest{}, nil, err
	}
	actor, err := e.Directory.GetActor(ctx, actorID)
	if err != nil {
		return req, nil, err
	}
	switch req.Status {
	case domain.StatusSearching:
	case domain.StatusAccepted, domain.StatusDeclined:
		return req, nil, AlreadyBoundError{RequestID: requestID, BoundActorID: boundOrEmpty(req)}
	default:
		return req, nil, InvalidTransitionError{RequestID: requestID, From: req.Status, Op: "accept"}
	}
	if ok, reason := match.Explain(actor, req); !ok {
		return req, nil, NotEligibleError{RequestID: requestID, ActorID: actorID, Reason: reason}
	}

	tx, err := e.beginTx(ctx)
	if err != nil {
		return req, nil, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.BindRequest(ctx, tx, requestID, actorID, now)
	if err != nil {
		return req, nil, err
	}
	if !ok {
		cur, rerr := e.Repo.GetRequestTx(ctx, tx, requestID)
		if rerr != nil {
			return req, nil, rerr
		}
		if cur.Status == domain.StatusAccepted || cur.Status == domain.StatusDeclined {
			return cur, nil, AlreadyBoundError{RequestID: requestID, BoundActorID: boundOrEmpty(cur)}
		}
		return cur, nil, InvalidTransitionError{RequestID: requestID, From: cur.Status, Op: "accept"}
	}
	if err := e.Events.AppendAssignment(ctx, tx, events.AssignmentAccepted, req.ProjectID, req.ID, actorID, events.Payload{
		"bound_actor_id": actorID,
		"actor_kind":     actor.Kind,
	}); err != nil {
		return req, nil, err
	}
	if err := tx.Commit(); err != nil {
		return req, nil, err
	}
	req.Status = domain.StatusAccepted
	req.BoundActorID = &actorID
	req.UpdatedAt = now
	fx := []domain.SideEffect{
		effect(domain.EffectNotifyOwner, req, actorID),
		effect(domain.EffectNotifyCandidates, req, actorID),
		effect(domain.EffectAssignmentChanged, req, actorID),
	}
	return req, fx, nil
}

// Decline releases an accepted binding and reopens the request. Only the
// bound actor may decline unless override is set (project-owner cancel path).
func (e Engine) Decline(ctx context.Context, requestID, actorID string, override bool) (domain.RoleRequest, []domain.SideEffect, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.RoleRequest{}, nil, err
	}
	if req.Status != domain.StatusAccepted {
		return req, nil, InvalidTransitionError{RequestID: requestID, From: req.Status, Op: "decline"}
	}
	if !override && (req.BoundActorID == nil || *req.BoundActorID != actorID) {
		return req, nil, InvalidTransitionError{RequestID: requestID, From: req.Status, Op: "decline", Reason: "actor is not the bound actor"}
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return req, nil, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	guard := actorID
	if override {
		guard = ""
	}
	ok, err := e.Repo.ReleaseRequest(ctx, tx, requestID, guard, now)
	if err != nil {
		return req, nil, err
	}
	if !ok {
		cur, rerr := e.Repo.GetRequestTx(ctx, tx, requestID)
		if rerr != nil {
			return req, nil, rerr
		}
		return cur, nil, InvalidTransitionError{RequestID: requestID, From: cur.Status, Op: "decline", Reason: "binding changed concurrently"}
	}
	if err := e.Events.AppendAssignment(ctx, tx, events.AssignmentDeclined, req.ProjectID, req.ID, actorID, events.Payload{
		"released_actor_id": boundOrEmpty(req),
		"override":          override,
	}); err != nil {
		return req, nil, err
	}
	if err := tx.Commit(); err != nil {
		return req, nil, err
	}
	req.Status = domain.StatusSearching
	req.BoundActorID = nil
	req.UpdatedAt = now
	fx := []domain.SideEffect{
		effect(domain.EffectNotifyOwner, req, actorID),
		effect(domain.EffectNotifyCandidates, req, ""),
		effect(domain.EffectAssignmentChanged, req, actorID),
	}
	return req, fx, nil
}

// Withdraw closes a request for good (project teardown). Declined is terminal;
// nothing in this engine transitions out of it.
func (e Engine) Withdraw(ctx context.Context, requestID, actorID string) (domain.RoleRequest, []domain.SideEffect, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.RoleRequest{}, nil, err
	}
	if req.Status != domain.StatusSearching && req.Status != domain.StatusAccepted {
		return req, nil, InvalidTransitionError{RequestID: requestID, From: req.Status, Op: "withdraw"}
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return req, nil, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.WithdrawRequest(ctx, tx, requestID, now)
	if err != nil {
		return req, nil, err
	}
	if !ok {
		cur, rerr := e.Repo.GetRequestTx(ctx, tx, requestID)
		if rerr != nil {
			return req, nil, rerr
		}
		return cur, nil, InvalidTransitionError{RequestID: requestID, From: cur.Status, Op: "withdraw"}
	}
	if err := e.Events.AppendAssignment(ctx, tx, events.AssignmentWithdrawn, req.ProjectID, req.ID, actorID, events.Payload{
		"from":              req.Status,
		"released_actor_id": boundOrEmpty(req),
	}); err != nil {
		return req, nil, err
	}
	if err := tx.Commit(); err != nil {
		return req, nil, err
	}
	req.Status = domain.StatusDeclined
	req.BoundActorID = nil
	req.UpdatedAt = now
	fx := []domain.SideEffect{
		effect(domain.EffectNotifyCandidates, req, ""),
		effect(domain.EffectAssignmentChanged, req, actorID),
	}
	return req, fx, nil
}

// AutoBindAI binds an AI-backed request to its own profile id. Calling it on
// a request already bound correctly is a no-op success, so the auditor can
// run it repeatedly. A wrong binding is released and rebound in the same
// transaction.
func (e Engine) AutoBindAI(ctx context.Context, requestID, actorID string) (domain.RoleRequest, []domain.SideEffect, error) {
	if actorID == "" {
		actorID = SystemActorID
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.RoleRequest{}, nil, err
	}
	if !req.IsAIRequest {
		return req, nil, NotEligibleError{RequestID: requestID, ActorID: req.ProfileID, Reason: "request is not AI-backed"}
	}
	if req.Status == domain.StatusAccepted && req.BoundActorID != nil && *req.BoundActorID == req.ProfileID {
		return req, nil, nil
	}
	if req.Status == domain.StatusDraft || req.Status == domain.StatusDeclined {
		return req, nil, InvalidTransitionError{RequestID: requestID, From: req.Status, Op: "auto-bind"}
	}

	tx, err := e.beginTx(ctx)
	if err != nil {
		return req, nil, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	released := ""
	if req.Status == domain.StatusAccepted {
		ok, err := e.Repo.ReleaseRequest(ctx, tx, requestID, "", now)
		if err != nil {
			return req, nil, err
		}
		if ok {
			released = boundOrEmpty(req)
		}
	}
	if err := e.Repo.EnsureAIActor(ctx, tx, req.ProfileID, e.catalogLanguages(), e.catalogExpertise(), now); err != nil {
		return req, nil, err
	}
	ok, err := e.Repo.BindRequest(ctx, tx, requestID, req.ProfileID, now)
	if err != nil {
		return req, nil, err
	}
	if !ok {
		cur, rerr := e.Repo.GetRequestTx(ctx, tx, requestID)
		if rerr != nil {
			return req, nil, rerr
		}
		if cur.Status == domain.StatusAccepted && cur.BoundActorID != nil && *cur.BoundActorID == cur.ProfileID {
			// lost the race to an identical auto-bind
			return cur, nil, nil
		}
		return cur, nil, AlreadyBoundError{RequestID: requestID, BoundActorID: boundOrEmpty(cur)}
	}
	if err := e.Events.AppendAssignment(ctx, tx, events.AssignmentAutobound, req.ProjectID, req.ID, actorID, events.Payload{
		"bound_actor_id":    req.ProfileID,
		"released_actor_id": released,
	}); err != nil {
		return req, nil, err
	}
	if err := tx.Commit(); err != nil {
		return req, nil, err
	}
	bound := req.ProfileID
	req.Status = domain.StatusAccepted
	req.BoundActorID = &bound
	req.UpdatedAt = now
	fx := []domain.SideEffect{
		effect(domain.EffectNotifyOwner, req, bound),
		effect(domain.EffectAssignmentChanged, req, bound),
	}
	return req, fx, nil
}

// RepairOrphan demotes an accepted request with no binding back to searching.
// A binding is never fabricated. No-op success when the violation is already
// gone; the predicate is re-checked inside the transaction.
func (e Engine) RepairOrphan(ctx context.Context, requestID, actorID string) (domain.RoleRequest, []domain.SideEffect, error) {
	if actorID == "" {
		actorID = SystemActorID
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.RoleRequest{}, nil, err
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return req, nil, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.DemoteOrphan(ctx, tx, requestID, now)
	if err != nil {
		return req, nil, err
	}
	if !ok {
		cur, rerr := e.Repo.GetRequestTx(ctx, tx, requestID)
		if rerr != nil {
			return req, nil, rerr
		}
		return cur, nil, nil
	}
	if err := e.Events.AppendAssignment(ctx, tx, events.AssignmentRepaired, req.ProjectID, req.ID, actorID, events.Payload{
		"repair": "demote_orphan",
		"from":   domain.StatusAccepted,
		"to":     domain.StatusSearching,
	}); err != nil {
		return req, nil, err
	}
	if err := tx.Commit(); err != nil {
		return req, nil, err
	}
	req.Status = domain.StatusSearching
	req.BoundActorID = nil
	req.UpdatedAt = now
	fx := []domain.SideEffect{
		effect(domain.EffectNotifyCandidates, req, ""),
		effect(domain.EffectAssignmentChanged, req, ""),
	}
	return req, fx, nil
}

func (e Engine) catalogLanguages() []string {
	if e.Config == nil {
		return nil
	}
	return e.Config.Catalog.Languages
}

func (e Engine) catalogExpertise() []string {
	if e.Config == nil {
		return nil
	}
	return e.Config.Catalog.Expertise
}

func effect(kind string, req domain.RoleRequest, actorID string) domain.SideEffect {
	return domain.SideEffect{
		Kind:      kind,
		ProjectID: req.ProjectID,
		RequestID: req.ID,
		ActorID:   actorID,
		Status:    req.Status,
	}
}

func boundOrEmpty(req domain.RoleRequest) string {
	if req.BoundActorID == nil {
		return ""
	}
	return *req.BoundActorID
}
