package match_test

import (
	"context"
	"testing"
	"time"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/match"
	"staffline/internal/migrate"
)

func TestExplain(t *testing.T) {
	req := domain.RoleRequest{
		ProfileID:         "seo-consultant",
		Seniority:         "senior",
		RequiredLanguages: []string{"EN", "FR"},
		RequiredExpertise: []string{"SEO"},
	}
	base := domain.Actor{
		ProfileID: "seo-consultant",
		Seniority: "senior",
		Languages: []string{"EN", "FR", "DE"},
		Expertise: []string{"SEO", "Ads"},
	}
	cases := []struct {
		name   string
		mutate func(a *domain.Actor)
		want   bool
	}{
		{"exact match with extras", func(a *domain.Actor) {}, true},
		{"wrong profile", func(a *domain.Actor) { a.ProfileID = "media-buyer" }, false},
		{"junior for senior slot", func(a *domain.Actor) { a.Seniority = "junior" }, false},
		{"senior for junior slot", func(a *domain.Actor) { a.Seniority = "intermediate" }, false},
		{"missing language", func(a *domain.Actor) { a.Languages = []string{"EN"} }, false},
		{"missing expertise", func(a *domain.Actor) { a.Expertise = []string{"Ads"} }, false},
		{"no declared languages", func(a *domain.Actor) { a.Languages = nil }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := base
			tc.mutate(&a)
			got, reason := match.Explain(a, req)
			if got != tc.want {
				t.Fatalf("Explain()=%v (%s), want %v", got, reason, tc.want)
			}
			if !got && reason == "" {
				t.Fatalf("ineligible result carries no reason")
			}
		})
	}
}

func TestExplainAIRequestReservedForAIResource(t *testing.T) {
	req := domain.RoleRequest{ProfileID: "growth-assistant", Seniority: "senior", IsAIRequest: true}
	human := domain.Actor{ID: "hank", Kind: domain.ActorHuman, ProfileID: "growth-assistant", Seniority: "senior"}
	if ok, reason := match.Explain(human, req); ok || reason == "" {
		t.Fatalf("human must not be eligible for an AI-backed request (ok=%v, reason=%q)", ok, reason)
	}
	ai := domain.Actor{ID: "growth-assistant", Kind: domain.ActorAI, ProfileID: "growth-assistant", Seniority: "senior"}
	if !match.Eligible(ai, req) {
		t.Fatalf("AI resource must be eligible for its own request")
	}
}

func TestEligibleEmptyRequirements(t *testing.T) {
	req := domain.RoleRequest{ProfileID: "data-analyst", Seniority: "junior"}
	a := domain.Actor{ProfileID: "data-analyst", Seniority: "junior"}
	if !match.Eligible(a, req) {
		t.Fatalf("empty required sets must match any actor of the right profile and seniority")
	}
}

func TestFindOpenRequestsFor(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("agency-1"))
	ctx := context.Background()
	if _, err := eng.InitProject(ctx, "agency-1", "", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.OnboardActor(ctx, engine.ActorCreateOptions{
		ID: "alice", ProfileID: "seo-consultant", Seniority: "senior",
		Languages: []string{"EN"}, Expertise: []string{"SEO"}, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	mkReq := func(id, profile, seniority string, langs []string, draft bool, createdAt time.Time) {
		t.Helper()
		eng.Now = func() time.Time { return createdAt }
		if _, err := eng.CreateRequest(ctx, engine.RequestCreateOptions{
			ID: id, ProjectID: "agency-1", ProfileID: profile, Seniority: seniority,
			RequiredLanguages: langs, Draft: draft, ActorID: "tester",
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mkReq("r-later", "seo-consultant", "senior", []string{"EN"}, false, t0.Add(2*time.Minute))
	mkReq("r-first", "seo-consultant", "senior", nil, false, t0)
	mkReq("r-draft", "seo-consultant", "senior", nil, true, t0.Add(time.Minute))
	mkReq("r-wrong-profile", "media-buyer", "senior", nil, false, t0)
	mkReq("r-wrong-lang", "seo-consultant", "senior", []string{"FR"}, false, t0)
	mkReq("r-taken", "seo-consultant", "senior", nil, false, t0.Add(3*time.Minute))
	if _, _, err := eng.Accept(ctx, "r-taken", "alice"); err != nil {
		t.Fatalf("accept r-taken: %v", err)
	}

	open, err := eng.Matcher.FindOpenRequestsFor(ctx, "alice")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	var ids []string
	for _, r := range open {
		ids = append(ids, r.ID)
	}
	want := []string{"r-first", "r-later"}
	if len(ids) != len(want) {
		t.Fatalf("open requests %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("open requests %v, want %v (creation order)", ids, want)
		}
	}

	if _, err := eng.Matcher.FindOpenRequestsFor(ctx, "missing"); err == nil {
		t.Fatalf("expected error for unknown actor")
	}
}
