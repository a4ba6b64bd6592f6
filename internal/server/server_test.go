package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/engine"
	"staffline/internal/migrate"
	"staffline/internal/server"
)

type testServer struct {
	*httptest.Server
	Engine engine.Engine
}

func newTestServer(t *testing.T) testServer {
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
	handler, err := server.New(server.Config{
		Engine: eng,
		Auth:   server.AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return testServer{Server: ts, Engine: eng}
}

func (s testServer) do(t *testing.T, method, path, actorID string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, buf)
	if err != nil {
		t.Fatal(err)
	}
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &decoded)
	}
	return resp, decoded
}

func (s testServer) expect(t *testing.T, method, path, actorID string, body any, wantStatus int) map[string]any {
	t.Helper()
	resp, decoded := s.do(t, method, path, actorID, body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d (body %v)", method, path, resp.StatusCode, wantStatus, decoded)
	}
	return decoded
}

func errorCode(decoded map[string]any) string {
	errObj, _ := decoded["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestHealthNoAuth(t *testing.T) {
	s := newTestServer(t)
	resp, decoded := s.do(t, http.MethodGet, "/v0/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %v", resp.StatusCode, decoded)
	}
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	resp, decoded := s.do(t, http.MethodGet, "/v0/projects", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %v", resp.StatusCode, decoded)
	}
	if errorCode(decoded) != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %v", decoded)
	}
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	s.expect(t, http.MethodPost, "/v0/projects", "owner", map[string]any{"id": "agency-1"}, http.StatusCreated)
	s.expect(t, http.MethodPost, "/v0/actors", "owner", map[string]any{
		"id": "alice", "profile_id": "seo-consultant", "seniority": "senior",
		"languages": []string{"EN", "FR"}, "expertise": []string{"SEO"},
	}, http.StatusCreated)
	created := s.expect(t, http.MethodPost, "/v0/projects/agency-1/requests", "owner", map[string]any{
		"profile_id": "seo-consultant", "seniority": "senior",
		"required_languages": []string{"EN"}, "required_expertise": []string{"SEO"},
	}, http.StatusCreated)
	reqID, _ := created["id"].(string)
	if reqID == "" {
		t.Fatalf("no request id in %v", created)
	}

	matches := s.expect(t, http.MethodGet, "/v0/actors/alice/matches", "alice", nil, http.StatusOK)
	_ = matches

	accepted := s.expect(t, http.MethodPost, fmt.Sprintf("/v0/projects/agency-1/requests/%s/accept", reqID), "alice", nil, http.StatusOK)
	reqObj, _ := accepted["request"].(map[string]any)
	if reqObj["status"] != "accepted" || reqObj["bound_actor_id"] != "alice" {
		t.Fatalf("unexpected accept payload %v", accepted)
	}
	if fx, _ := accepted["side_effects"].([]any); len(fx) == 0 {
		t.Fatalf("expected side effects in accept response")
	}

	// second accept from another actor: conflict
	s.expect(t, http.MethodPost, "/v0/actors", "owner", map[string]any{
		"id": "bob", "profile_id": "seo-consultant", "seniority": "senior",
		"languages": []string{"EN"}, "expertise": []string{"SEO"},
	}, http.StatusCreated)
	resp, decoded := s.do(t, http.MethodPost, fmt.Sprintf("/v0/projects/agency-1/requests/%s/accept", reqID), "bob", nil)
	if resp.StatusCode != http.StatusConflict || errorCode(decoded) != "already_bound" {
		t.Fatalf("expected 409 already_bound, got %d %v", resp.StatusCode, decoded)
	}

	// decline by non-bound actor
	resp, decoded = s.do(t, http.MethodPost, fmt.Sprintf("/v0/projects/agency-1/requests/%s/decline", reqID), "bob", nil)
	if resp.StatusCode != http.StatusConflict || errorCode(decoded) != "invalid_transition" {
		t.Fatalf("expected 409 invalid_transition, got %d %v", resp.StatusCode, decoded)
	}

	declined := s.expect(t, http.MethodPost, fmt.Sprintf("/v0/projects/agency-1/requests/%s/decline", reqID), "alice", nil, http.StatusOK)
	reqObj, _ = declined["request"].(map[string]any)
	if reqObj["status"] != "searching" {
		t.Fatalf("decline did not reopen request: %v", declined)
	}

	events := s.expect(t, http.MethodGet, "/v0/events?after=0&project_id=agency-1", "owner", nil, http.StatusOK)
	_ = events
}

func TestNotEligibleMapsTo422(t *testing.T) {
	s := newTestServer(t)
	s.expect(t, http.MethodPost, "/v0/projects", "owner", map[string]any{"id": "agency-1"}, http.StatusCreated)
	s.expect(t, http.MethodPost, "/v0/actors", "owner", map[string]any{
		"id": "carol", "profile_id": "seo-consultant", "seniority": "junior",
	}, http.StatusCreated)
	created := s.expect(t, http.MethodPost, "/v0/projects/agency-1/requests", "owner", map[string]any{
		"profile_id": "seo-consultant", "seniority": "senior",
	}, http.StatusCreated)
	reqID, _ := created["id"].(string)

	resp, decoded := s.do(t, http.MethodPost, fmt.Sprintf("/v0/projects/agency-1/requests/%s/accept", reqID), "carol", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity || errorCode(decoded) != "not_eligible" {
		t.Fatalf("expected 422 not_eligible, got %d %v", resp.StatusCode, decoded)
	}
}

func TestUnknownRequestMapsTo404(t *testing.T) {
	s := newTestServer(t)
	s.expect(t, http.MethodPost, "/v0/projects", "owner", map[string]any{"id": "agency-1"}, http.StatusCreated)
	resp, decoded := s.do(t, http.MethodGet, "/v0/projects/agency-1/requests/missing", "owner", nil)
	if resp.StatusCode != http.StatusNotFound || errorCode(decoded) != "not_found" {
		t.Fatalf("expected 404 not_found, got %d %v", resp.StatusCode, decoded)
	}
}

func TestAuditEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.expect(t, http.MethodPost, "/v0/projects", "owner", map[string]any{"id": "agency-1"}, http.StatusCreated)
	created := s.expect(t, http.MethodPost, "/v0/projects/agency-1/requests", "owner", map[string]any{
		"profile_id": "growth-assistant", "seniority": "senior",
	}, http.StatusCreated)
	reqID, _ := created["id"].(string)

	violations := s.expect(t, http.MethodGet, "/v0/audit/violations", "owner", nil, http.StatusOK)
	_ = violations

	report := s.expect(t, http.MethodPost, "/v0/audit/sweep", "owner", nil, http.StatusOK)
	if report["repaired"].(float64) < 1 {
		t.Fatalf("sweep repaired nothing: %v", report)
	}
	cur := s.expect(t, http.MethodGet, fmt.Sprintf("/v0/projects/agency-1/requests/%s", reqID), "owner", nil, http.StatusOK)
	if cur["status"] != "accepted" || cur["bound_actor_id"] != "growth-assistant" {
		t.Fatalf("AI request not repaired: %v", cur)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t)
	s.expect(t, http.MethodPost, "/v0/projects", "owner", map[string]any{"id": "agency-1"}, http.StatusCreated)
	created := s.expect(t, http.MethodPost, "/v0/apikeys", "owner", map[string]any{
		"actor_id": "cron", "name": "nightly sweep",
	}, http.StatusCreated)
	rawKey, _ := created["key"].(string)
	if rawKey == "" {
		t.Fatalf("no raw key returned on creation: %v", created)
	}

	req, err := http.NewRequest(http.MethodGet, s.URL+"/v0/projects", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Api-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("api key auth failed: %d", resp.StatusCode)
	}

	req.Header.Set("X-Api-Key", "wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad api key, got %d", resp2.StatusCode)
	}
}
