package stafflinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Staffline HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// RoleRequest represents the API role request model.
type RoleRequest struct {
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

// SideEffect is a delivery instruction emitted by a booking operation.
type SideEffect struct {
	Kind      string `json:"kind"`
	ProjectID string `json:"project_id"`
	RequestID string `json:"request_id"`
	ActorID   string `json:"actor_id,omitempty"`
	Status    string `json:"status"`
}

// Booking is the committed request state plus the side effects the caller
// delivers (notifications, realtime updates).
type Booking struct {
	Request     RoleRequest  `json:"request"`
	SideEffects []SideEffect `json:"side_effects"`
}

// Actor represents a human candidate or AI resource.
type Actor struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	ProfileID string   `json:"profile_id"`
	Seniority string   `json:"seniority"`
	Languages []string `json:"languages,omitempty"`
	Expertise []string `json:"expertise,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRequest opens a role request for the project.
func (c *Client) CreateRequest(ctx context.Context, profileID, seniority string, languages, expertise []string) (RoleRequest, error) {
	body := map[string]any{
		"profile_id": profileID,
		"seniority":  seniority,
	}
	if len(languages) > 0 {
		body["required_languages"] = languages
	}
	if len(expertise) > 0 {
		body["required_expertise"] = expertise
	}
	var resp RoleRequest
	err := c.do(ctx, http.MethodPost, c.projectPath("requests"), body, &resp)
	return resp, err
}

// GetRequest fetches a role request by id.
func (c *Client) GetRequest(ctx context.Context, id string) (RoleRequest, error) {
	var resp RoleRequest
	err := c.do(ctx, http.MethodGet, c.projectPath("requests/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Accept books the authenticated actor on a request. First accept wins;
// racing accepts receive an APIError with status 409.
func (c *Client) Accept(ctx context.Context, requestID string) (Booking, error) {
	var resp Booking
	err := c.do(ctx, http.MethodPost, c.projectPath("requests/"+url.PathEscape(requestID)+"/accept"), nil, &resp)
	return resp, err
}

// Decline releases the booking and reopens the request.
func (c *Client) Decline(ctx context.Context, requestID string) (Booking, error) {
	var resp Booking
	err := c.do(ctx, http.MethodPost, c.projectPath("requests/"+url.PathEscape(requestID)+"/decline"), nil, &resp)
	return resp, err
}

// Withdraw closes the request for good.
func (c *Client) Withdraw(ctx context.Context, requestID string) (Booking, error) {
	var resp Booking
	err := c.do(ctx, http.MethodPost, c.projectPath("requests/"+url.PathEscape(requestID)+"/withdraw"), nil, &resp)
	return resp, err
}

// AutoBind binds an AI-backed request to its AI actor.
func (c *Client) AutoBind(ctx context.Context, requestID string) (Booking, error) {
	var resp Booking
	err := c.do(ctx, http.MethodPost, c.projectPath("requests/"+url.PathEscape(requestID)+"/auto-bind"), nil, &resp)
	return resp, err
}

// Matches returns the open requests an actor may accept.
func (c *Client) Matches(ctx context.Context, actorID string) ([]RoleRequest, error) {
	var resp []RoleRequest
	err := c.do(ctx, http.MethodGet, "v0/actors/"+url.PathEscape(actorID)+"/matches", nil, &resp)
	return resp, err
}

// GetActor fetches an actor by id.
func (c *Client) GetActor(ctx context.Context, actorID string) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodGet, "v0/actors/"+url.PathEscape(actorID), nil, &resp)
	return resp, err
}

// EventsAfter polls the event log for entries newer than the cursor, in
// ascending id order. Use the last returned id as the next cursor.
func (c *Client) EventsAfter(ctx context.Context, after int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/events?after=%s&project_id=%s",
		strconv.FormatInt(after, 10), url.QueryEscape(c.ProjectID))
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
