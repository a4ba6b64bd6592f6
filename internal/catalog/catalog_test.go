package catalog_test

import (
	"context"
	"errors"
	"testing"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/engine"
	"staffline/internal/migrate"
	"staffline/internal/repo"
)

func newCatalogFixture(t *testing.T) (engine.Engine, context.Context) {
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
		t.Fatalf("init project: %v", err)
	}
	return eng, ctx
}

func TestCapabilityRequirements(t *testing.T) {
	eng, ctx := newCatalogFixture(t)

	reqs, err := eng.Catalog.CapabilityRequirements(ctx, "growth-assistant")
	if err != nil {
		t.Fatalf("capability requirements: %v", err)
	}
	if reqs.Profile.ID != "growth-assistant" || !reqs.Profile.AIBacked {
		t.Fatalf("expected AI-backed profile, got %+v", reqs.Profile)
	}
	if len(reqs.Seniorities) == 0 || len(reqs.Languages) == 0 || len(reqs.Expertise) == 0 {
		t.Fatalf("expected catalog vocabularies, got %+v", reqs)
	}

	human, err := eng.Catalog.CapabilityRequirements(ctx, "seo-consultant")
	if err != nil {
		t.Fatalf("capability requirements: %v", err)
	}
	if human.Profile.AIBacked {
		t.Fatalf("seo-consultant must not be AI-backed")
	}

	if _, err := eng.Catalog.CapabilityRequirements(ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown profile, got %v", err)
	}
}
