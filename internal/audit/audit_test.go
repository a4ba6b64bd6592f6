package audit_test

import (
	"context"
	"database/sql"
	"io"
	"log"
	"testing"

	"staffline/internal/audit"
	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/migrate"
)

type fixture struct {
	Engine  engine.Engine
	Auditor *audit.Auditor
	DB      *sql.DB
	Ctx     context.Context
}

func newFixture(t *testing.T) fixture {
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
	eng := engine.New(conn, config.Default("agency-1"))
	ctx := context.Background()
	if _, err := eng.InitProject(ctx, "agency-1", "", "tester"); err != nil {
		t.Fatal(err)
	}
	a := audit.New(eng)
	a.Log = log.New(io.Discard, "", 0)
	return fixture{Engine: eng, Auditor: a, DB: conn, Ctx: ctx}
}

func (f fixture) createHumanRequest(t *testing.T, id string) domain.RoleRequest {
	t.Helper()
	req, err := f.Engine.CreateRequest(f.Ctx, engine.RequestCreateOptions{
		ID: id, ProjectID: "agency-1", ProfileID: "seo-consultant", Seniority: "senior", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func (f fixture) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	if _, err := f.DB.ExecContext(f.Ctx, query, args...); err != nil {
		t.Fatalf("exec %s: %v", query, err)
	}
}

func (f fixture) violationKinds(t *testing.T) map[string]string {
	t.Helper()
	vs, err := f.Auditor.Scan(f.Ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	kinds := map[string]string{}
	for _, v := range vs {
		kinds[v.RequestID] = v.Kind
	}
	return kinds
}

func TestScanCleanStore(t *testing.T) {
	f := newFixture(t)
	f.createHumanRequest(t, "r1")
	if kinds := f.violationKinds(t); len(kinds) != 0 {
		t.Fatalf("clean store reported violations: %v", kinds)
	}
}

func TestRepairOrphanedAccepted(t *testing.T) {
	f := newFixture(t)
	f.createHumanRequest(t, "r1")
	// simulate a direct external write that accepted without binding
	f.exec(t, `UPDATE role_requests SET status='accepted', bound_actor_id=NULL WHERE id='r1'`)

	kinds := f.violationKinds(t)
	if kinds["r1"] != domain.ViolationOrphanAccepted {
		t.Fatalf("expected orphan_accepted, got %v", kinds)
	}
	report, err := f.Auditor.Sweep(f.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Scanned != 1 || report.Repaired != 1 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	cur, err := f.Engine.Repo.GetRequest(f.Ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusSearching || cur.BoundActorID != nil {
		t.Fatalf("orphan not demoted: %+v", cur)
	}
	if kinds := f.violationKinds(t); len(kinds) != 0 {
		t.Fatalf("violations remain after repair: %v", kinds)
	}
}

func TestRepairAIUnbound(t *testing.T) {
	f := newFixture(t)
	req, err := f.Engine.CreateRequest(f.Ctx, engine.RequestCreateOptions{
		ID: "ai1", ProjectID: "agency-1", ProfileID: "growth-assistant", Seniority: "senior", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !req.IsAIRequest {
		t.Fatalf("expected AI request")
	}
	kinds := f.violationKinds(t)
	if kinds["ai1"] != domain.ViolationAIUnbound {
		t.Fatalf("expected ai_unbound, got %v", kinds)
	}
	if _, err := f.Auditor.Sweep(f.Ctx); err != nil {
		t.Fatal(err)
	}
	cur, err := f.Engine.Repo.GetRequest(f.Ctx, "ai1")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusAccepted || cur.BoundActorID == nil || *cur.BoundActorID != "growth-assistant" {
		t.Fatalf("AI request not bound to its profile: %+v", cur)
	}
}

func TestRepairAIMisbound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.Engine.CreateRequest(f.Ctx, engine.RequestCreateOptions{
		ID: "ai1", ProjectID: "agency-1", ProfileID: "copy-assistant", Seniority: "senior", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	f.exec(t, `UPDATE role_requests SET status='accepted', bound_actor_id='somebody-else' WHERE id='ai1'`)

	kinds := f.violationKinds(t)
	if kinds["ai1"] != domain.ViolationAIMisbound {
		t.Fatalf("expected ai_misbound, got %v", kinds)
	}
	if _, err := f.Auditor.Sweep(f.Ctx); err != nil {
		t.Fatal(err)
	}
	cur, err := f.Engine.Repo.GetRequest(f.Ctx, "ai1")
	if err != nil {
		t.Fatal(err)
	}
	if cur.BoundActorID == nil || *cur.BoundActorID != "copy-assistant" {
		t.Fatalf("misbound AI request not rebound: %+v", cur)
	}
}

func TestRepairIdempotent(t *testing.T) {
	f := newFixture(t)
	f.createHumanRequest(t, "r1")
	f.exec(t, `UPDATE role_requests SET status='accepted', bound_actor_id=NULL WHERE id='r1'`)

	vs, err := f.Auditor.Scan(f.Ctx)
	if err != nil || len(vs) != 1 {
		t.Fatalf("scan: %v %v", vs, err)
	}
	if err := f.Auditor.Repair(f.Ctx, vs[0]); err != nil {
		t.Fatalf("first repair: %v", err)
	}
	// second repair of the same stale violation is a no-op, not an error
	if err := f.Auditor.Repair(f.Ctx, vs[0]); err != nil {
		t.Fatalf("second repair: %v", err)
	}
	cur, err := f.Engine.Repo.GetRequest(f.Ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusSearching {
		t.Fatalf("status drifted on repeated repair: %+v", cur)
	}
}

func TestRepairSkipsWithdrawnAIRequest(t *testing.T) {
	f := newFixture(t)
	if _, err := f.Engine.CreateRequest(f.Ctx, engine.RequestCreateOptions{
		ID: "ai1", ProjectID: "agency-1", ProfileID: "growth-assistant", Seniority: "senior", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	vs, err := f.Auditor.Scan(f.Ctx)
	if err != nil || len(vs) != 1 {
		t.Fatalf("scan: %v %v", vs, err)
	}
	// request closes between scan and repair
	if _, _, err := f.Engine.Withdraw(f.Ctx, "ai1", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := f.Auditor.Repair(f.Ctx, vs[0]); err != nil {
		t.Fatalf("repair of closed request should no-op: %v", err)
	}
	cur, err := f.Engine.Repo.GetRequest(f.Ctx, "ai1")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusDeclined {
		t.Fatalf("repair reopened a closed request: %+v", cur)
	}
}
