package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("agency-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitProject(ctx, "agency-1", "test", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) onboard(t *testing.T, id, profileID, seniority string, languages, expertise []string) domain.Actor {
	t.Helper()
	a, err := env.Engine.OnboardActor(env.Ctx, engine.ActorCreateOptions{
		ID:        id,
		ProfileID: profileID,
		Seniority: seniority,
		Languages: languages,
		Expertise: expertise,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("onboard %s: %v", id, err)
	}
	return a
}

func (env testEnv) createRequest(t *testing.T, profileID, seniority string, languages, expertise []string) domain.RoleRequest {
	t.Helper()
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ProjectID:         "agency-1",
		ProfileID:         profileID,
		Seniority:         seniority,
		RequiredLanguages: languages,
		RequiredExpertise: expertise,
		ActorID:           "tester",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func TestAcceptBindsEligibleActor(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "seo-consultant", "senior", []string{"EN", "FR"}, []string{"SEO", "Ads"})
	req := env.createRequest(t, "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})

	got, fx, err := env.Engine.Accept(env.Ctx, req.ID, "alice")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != domain.StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if got.BoundActorID == nil || *got.BoundActorID != "alice" {
		t.Fatalf("expected binding to alice, got %v", got.BoundActorID)
	}
	kinds := map[string]bool{}
	for _, f := range fx {
		kinds[f.Kind] = true
	}
	if !kinds[domain.EffectNotifyOwner] || !kinds[domain.EffectAssignmentChanged] {
		t.Fatalf("missing side effects: %v", fx)
	}
}

func TestAcceptRejectsIneligibleActor(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "bob", "seo-consultant", "intermediate", []string{"EN"}, []string{"SEO"})
	env.onboard(t, "carol", "seo-consultant", "senior", []string{"FR"}, []string{"SEO"})
	req := env.createRequest(t, "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})

	var ne engine.NotEligibleError
	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "bob"); !errors.As(err, &ne) {
		t.Fatalf("expected NotEligibleError for seniority mismatch, got %v", err)
	}
	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "carol"); !errors.As(err, &ne) {
		t.Fatalf("expected NotEligibleError for missing language, got %v", err)
	}
	cur, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusSearching || cur.BoundActorID != nil {
		t.Fatalf("request mutated by failed accepts: %+v", cur)
	}
}

func TestAcceptAlreadyBound(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "media-buyer", "senior", []string{"EN"}, []string{"Ads"})
	env.onboard(t, "dave", "media-buyer", "senior", []string{"EN"}, []string{"Ads"})
	req := env.createRequest(t, "media-buyer", "senior", []string{"EN"}, []string{"Ads"})

	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "alice"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	var ab engine.AlreadyBoundError
	_, _, err := env.Engine.Accept(env.Ctx, req.ID, "dave")
	if !errors.As(err, &ab) {
		t.Fatalf("expected AlreadyBoundError, got %v", err)
	}
	if ab.BoundActorID != "alice" {
		t.Fatalf("expected binding reported as alice, got %s", ab.BoundActorID)
	}
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	actors := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	for _, id := range actors {
		env.onboard(t, id, "data-analyst", "intermediate", []string{"EN"}, []string{"Analytics"})
	}
	req := env.createRequest(t, "data-analyst", "intermediate", []string{"EN"}, []string{"Analytics"})

	var wg sync.WaitGroup
	results := make(chan error, len(actors))
	for _, id := range actors {
		wg.Add(1)
		go func(actorID string) {
			defer wg.Done()
			_, _, err := env.Engine.Accept(env.Ctx, req.ID, actorID)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		default:
			var ab engine.AlreadyBoundError
			if !errors.As(err, &ab) {
				t.Fatalf("unexpected error under race: %v", err)
			}
			lost++
		}
	}
	if won != 1 || lost != len(actors)-1 {
		t.Fatalf("expected exactly one winner, got won=%d lost=%d", won, lost)
	}
	cur, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusAccepted || cur.BoundActorID == nil {
		t.Fatalf("binding invariant broken after race: %+v", cur)
	}
}

func TestDeclineReopensRequest(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	req := env.createRequest(t, "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})

	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, _, err := env.Engine.Decline(env.Ctx, req.ID, "alice", false)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Status != domain.StatusSearching || got.BoundActorID != nil {
		t.Fatalf("expected reopened request, got %+v", got)
	}
	open, err := env.Engine.Matcher.FindOpenRequestsFor(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range open {
		if r.ID == req.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("declined request not visible to the declining actor again")
	}
}

func TestDeclineByNonBoundActor(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	env.onboard(t, "mallory", "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	req := env.createRequest(t, "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})

	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	var it engine.InvalidTransitionError
	if _, _, err := env.Engine.Decline(env.Ctx, req.ID, "mallory", false); !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	// owner cancel path
	if _, _, err := env.Engine.Decline(env.Ctx, req.ID, "owner", true); err != nil {
		t.Fatalf("override decline: %v", err)
	}
}

func TestWithdrawIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	req := env.createRequest(t, "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})

	got, _, err := env.Engine.Withdraw(env.Ctx, req.ID, "owner")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.Status != domain.StatusDeclined {
		t.Fatalf("expected declined, got %s", got.Status)
	}
	var ab engine.AlreadyBoundError
	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "alice"); !errors.As(err, &ab) {
		t.Fatalf("expected AlreadyBoundError on closed request, got %v", err)
	}
	var it engine.InvalidTransitionError
	if _, _, err := env.Engine.Withdraw(env.Ctx, req.ID, "owner"); !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError on second withdraw, got %v", err)
	}
}

func TestDraftHiddenUntilActivated(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ProjectID: "agency-1",
		ProfileID: "seo-consultant",
		Seniority: "senior",
		Draft:     true,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	open, err := env.Engine.Matcher.FindOpenRequestsFor(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range open {
		if r.ID == req.ID {
			t.Fatalf("draft request visible to matcher")
		}
	}
	var it engine.InvalidTransitionError
	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "alice"); !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError accepting draft, got %v", err)
	}
	if _, _, err := env.Engine.Activate(env.Ctx, req.ID, "tester"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "alice"); err != nil {
		t.Fatalf("accept after activate: %v", err)
	}
}

func TestAutoBindAIIdempotent(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, "growth-assistant", "senior", []string{"EN"}, nil)
	if !req.IsAIRequest {
		t.Fatalf("expected AI-backed request")
	}
	got, fx, err := env.Engine.AutoBindAI(env.Ctx, req.ID, "")
	if err != nil {
		t.Fatalf("auto-bind: %v", err)
	}
	if got.Status != domain.StatusAccepted || got.BoundActorID == nil || *got.BoundActorID != "growth-assistant" {
		t.Fatalf("expected binding to profile id, got %+v", got)
	}
	if len(fx) == 0 {
		t.Fatalf("expected side effects on first bind")
	}
	again, fx2, err := env.Engine.AutoBindAI(env.Ctx, req.ID, "")
	if err != nil {
		t.Fatalf("second auto-bind: %v", err)
	}
	if len(fx2) != 0 {
		t.Fatalf("expected no side effects on no-op bind")
	}
	if again.BoundActorID == nil || *again.BoundActorID != "growth-assistant" {
		t.Fatalf("binding changed by no-op: %+v", again)
	}
}

func TestHumanCannotAcceptAIRequest(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "hank", "growth-assistant", "senior", []string{"EN", "FR", "DE", "ES", "IT"},
		[]string{"SEO", "Ads", "Content", "Analytics", "Social", "Branding", "Email", "CRO"})
	req := env.createRequest(t, "growth-assistant", "senior", nil, nil)
	if !req.IsAIRequest {
		t.Fatalf("expected AI-backed request")
	}

	open, err := env.Engine.Matcher.FindOpenRequestsFor(env.Ctx, "hank")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range open {
		if r.ID == req.ID {
			t.Fatalf("AI request offered to a human actor")
		}
	}

	var ne engine.NotEligibleError
	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "hank"); !errors.As(err, &ne) {
		t.Fatalf("expected NotEligibleError for human accept of AI request, got %v", err)
	}
	cur, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusSearching || cur.BoundActorID != nil {
		t.Fatalf("failed accept mutated the request: %+v", cur)
	}

	got, _, err := env.Engine.AutoBindAI(env.Ctx, req.ID, "")
	if err != nil {
		t.Fatalf("auto-bind: %v", err)
	}
	if got.BoundActorID == nil || *got.BoundActorID != "growth-assistant" {
		t.Fatalf("expected binding to profile id, got %+v", got)
	}
}

func TestAutoBindAIRejectsHumanRequest(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, "seo-consultant", "senior", nil, nil)
	var ne engine.NotEligibleError
	if _, _, err := env.Engine.AutoBindAI(env.Ctx, req.ID, ""); !errors.As(err, &ne) {
		t.Fatalf("expected NotEligibleError, got %v", err)
	}
}

func TestAcceptUnknownRequestOrActor(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	req := env.createRequest(t, "seo-consultant", "senior", nil, nil)

	if _, _, err := env.Engine.Accept(env.Ctx, "missing", "alice"); err == nil {
		t.Fatalf("expected error for unknown request")
	}
	if _, _, err := env.Engine.Accept(env.Ctx, req.ID, "missing"); err == nil {
		t.Fatalf("expected error for unknown actor")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "alice", "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	req := env.createRequest(t, "seo-consultant", "senior", []string{"EN"}, []string{"SEO"})
	_, _, _ = env.Engine.Accept(env.Ctx, req.ID, "alice")
	_, _, _ = env.Engine.Decline(env.Ctx, req.ID, "alice", false)
	_, _, _ = env.Engine.Withdraw(env.Ctx, req.ID, "owner")

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "agency-1", "", "assignment", req.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	types := map[string]bool{}
	for _, e := range evts {
		types[e.Type] = true
	}
	for _, want := range []string{"assignment.created", "assignment.accepted", "assignment.declined", "assignment.withdrawn"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}

	last, err := env.Engine.Repo.LatestEventID(env.Ctx, "agency-1")
	if err != nil {
		t.Fatalf("latest event id: %v", err)
	}
	if last != evts[0].ID {
		t.Fatalf("latest event id %d does not match newest event %d", last, evts[0].ID)
	}
}
