package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"staffline/internal/audit"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"already_bound"`
	Message string         `json:"message" example:"request is already bound"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"bound_actor_id\":\"alice\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Staffline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Staffline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	auditor := audit.New(cfg.Engine)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerCatalog(group, cfg.Engine)
	registerActors(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerAudit(group, auditor)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ab engine.AlreadyBoundError
	if errors.As(err, &ab) {
		return newAPIError(http.StatusConflict, "already_bound", err.Error(), map[string]any{"bound_actor_id": ab.BoundActorID})
	}
	var ne engine.NotEligibleError
	if errors.As(err, &ne) {
		return newAPIError(http.StatusUnprocessableEntity, "not_eligible", err.Error(), map[string]any{"actor_id": ne.ActorID, "reason": ne.Reason})
	}
	var it engine.InvalidTransitionError
	if errors.As(err, &it) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": it.From, "op": it.Op})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrUnavailable) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	}
	if errors.Is(err, audit.ErrSweepInProgress) {
		return newAPIError(http.StatusConflict, "sweep_in_progress", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "not_eligible"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func projectOrDefault(pathID string, e engine.Engine) string {
	if pathID == "" || pathID == "default" {
		if e.Config != nil {
			return e.Config.Project.ID
		}
	}
	return pathID
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func composeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Staffline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.InitProject(ctx, input.Body.ID, desc, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, projectOrDefault(input.ProjectID, e))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, projectOrDefault(input.ProjectID, e))
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountRequestsByStatus(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"project_id":     p.ID,
			"status":         p.Status,
			"request_counts": counts,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-config",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/config",
		Summary:     "Get project config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetProjectConfig(ctx, projectOrDefault(input.ProjectID, e))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/catalog/profiles",
		Summary:     "List job profiles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProfileResponse `json:"body"`
	}, error) {
		items, err := e.Catalog.ListProfiles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProfileResponse, 0, len(items))
		for _, p := range items {
			res = append(res, profileResponse(p))
		}
		return &struct {
			Body []ProfileResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/catalog/profiles/{id}",
		Summary:     "Get job profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		p, err := e.Catalog.GetProfile(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile-requirements",
		Method:      http.MethodGet,
		Path:        "/catalog/profiles/{id}/requirements",
		Summary:     "Capability requirements for a profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProfileRequirementsResponse `json:"body"`
	}, error) {
		reqs, err := e.Catalog.CapabilityRequirements(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileRequirementsResponse `json:"body"`
		}{Body: requirementsResponse(reqs)}, nil
	})
}

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "onboard-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Onboard actor",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body OnboardActorRequest `json:"body"`
	}) (*struct {
		Body ActorResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ProfileID == "" || input.Body.Seniority == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "profile_id and seniority are required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ActorCreateOptions{
			ProfileID: input.Body.ProfileID,
			Seniority: input.Body.Seniority,
			Languages: input.Body.Languages,
			Expertise: input.Body.Expertise,
			ActorID:   actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		a, err := e.OnboardActor(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorResponse `json:"body"`
		}{Body: actorResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors",
	}, func(ctx context.Context, input *struct {
		Kind      string `query:"kind" enum:"human,ai,"`
		ProfileID string `query:"profile_id"`
	}) (*struct {
		Body []ActorResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListActors(ctx, repo.ActorFilters{Kind: input.Kind, ProfileID: input.ProfileID})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ActorResponse, 0, len(items))
		for _, a := range items {
			res = append(res, actorResponse(a))
		}
		return &struct {
			Body []ActorResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-actor",
		Method:      http.MethodGet,
		Path:        "/actors/{id}",
		Summary:     "Get actor",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ActorResponse `json:"body"`
	}, error) {
		a, err := e.Directory.GetActor(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorResponse `json:"body"`
		}{Body: actorResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "actor-matches",
		Method:      http.MethodGet,
		Path:        "/actors/{id}/matches",
		Summary:     "Open requests the actor may accept",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []RequestResponse `json:"body"`
	}, error) {
		items, err := e.Matcher.FindOpenRequestsFor(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RequestResponse `json:"body"`
		}{Body: mapRequests(items)}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/requests",
		Summary:       "Create role request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      CreateRequestRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ProfileID == "" || input.Body.Seniority == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "profile_id and seniority are required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.RequestCreateOptions{
			ProjectID:         projectOrDefault(input.ProjectID, e),
			ProfileID:         input.Body.ProfileID,
			Seniority:         input.Body.Seniority,
			RequiredLanguages: input.Body.RequiredLanguages,
			RequiredExpertise: input.Body.RequiredExpertise,
			Draft:             input.Body.Draft,
			ActorID:           actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		req, err := e.CreateRequest(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requests",
		Summary:     "List role requests",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		Status       string `query:"status" enum:"draft,searching,accepted,declined,"`
		ProfileID    string `query:"profile_id"`
		BoundActorID string `query:"bound_actor_id"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       string `query:"cursor"`
	}) (*struct {
		Body paginatedRequests `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListRequests(ctx, repo.RequestFilters{
			ProjectID:       projectOrDefault(input.ProjectID, e),
			Status:          input.Status,
			ProfileID:       input.ProfileID,
			BoundActorID:    input.BoundActorID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedRequests{Items: []RequestResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapRequests(items)
		return &struct {
			Body paginatedRequests `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requests/{id}",
		Summary:     "Get role request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		req, err := e.Repo.GetRequest(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if pid := projectOrDefault(input.ProjectID, e); pid != "" && req.ProjectID != pid {
			return nil, newAPIError(http.StatusNotFound, "not_found", "request not found in project", nil)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	type bookingInput struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}
	type bookingOutput struct {
		Body BookingResponse `json:"body"`
	}
	bookingErrors := []int{
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusServiceUnavailable,
		http.StatusInternalServerError,
	}

	huma.Register(api, huma.Operation{
		OperationID: "activate-request",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requests/{id}/activate",
		Summary:     "Activate draft request",
		Errors:      bookingErrors,
	}, func(ctx context.Context, input *bookingInput) (*bookingOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, fx, err := e.Activate(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bookingOutput{Body: bookingResponse(req, fx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-request",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requests/{id}/accept",
		Summary:     "Accept role request",
		Description: "Binds the authenticated actor to the request. First accept wins; later accepts observe already_bound.",
		Errors:      bookingErrors,
	}, func(ctx context.Context, input *bookingInput) (*bookingOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, fx, err := e.Accept(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bookingOutput{Body: bookingResponse(req, fx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-request",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requests/{id}/decline",
		Summary:     "Decline accepted request",
		Description: "The bound actor releases the booking and the request reopens. force=true is the project-owner cancel path.",
		Errors:      bookingErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
		Force     bool   `query:"force"`
	}) (*bookingOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, fx, err := e.Decline(ctx, input.ID, actorID, input.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &bookingOutput{Body: bookingResponse(req, fx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-request",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requests/{id}/withdraw",
		Summary:     "Withdraw role request",
		Errors:      bookingErrors,
	}, func(ctx context.Context, input *bookingInput) (*bookingOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, fx, err := e.Withdraw(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bookingOutput{Body: bookingResponse(req, fx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "auto-bind-request",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requests/{id}/auto-bind",
		Summary:     "Auto-bind AI request",
		Errors:      bookingErrors,
	}, func(ctx context.Context, input *bookingInput) (*bookingOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, fx, err := e.AutoBindAI(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bookingOutput{Body: bookingResponse(req, fx)}, nil
	})
}

func registerAudit(api huma.API, a *audit.Auditor) {
	huma.Register(api, huma.Operation{
		OperationID: "audit-scan",
		Method:      http.MethodGet,
		Path:        "/audit/violations",
		Summary:     "List invariant violations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ViolationResponse `json:"body"`
	}, error) {
		items, err := a.Scan(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ViolationResponse, 0, len(items))
		for _, v := range items {
			res = append(res, violationResponse(v))
		}
		return &struct {
			Body []ViolationResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-sweep",
		Method:      http.MethodPost,
		Path:        "/audit/sweep",
		Summary:     "Scan and repair violations",
		Errors:      []int{http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepResponse `json:"body"`
	}, error) {
		report, err := a.Sweep(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SweepResponse `json:"body"`
		}{Body: SweepResponse(report)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event log",
		Description: "With after set, returns events newer than the cursor in ascending order (polling). Otherwise the newest events first.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		After     string `query:"after"`
		Type      string `query:"type"`
		EntityID  string `query:"entity_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		projectID := projectOrDefault(input.ProjectID, e)
		limit := normalizeLimit(input.Limit)
		if input.After != "" {
			cursor, perr := strconv.ParseInt(input.After, 10, 64)
			if perr != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid after cursor", map[string]any{"after": input.After})
			}
			list, lerr := e.Repo.EventsAfter(ctx, limit, cursor, projectID)
			if lerr != nil {
				return nil, handleError(lerr)
			}
			res := make([]EventResponse, 0, len(list))
			for _, ev := range list {
				res = append(res, eventResponse(ev))
			}
			return &struct {
				Body []EventResponse `json:"body"`
			}{Body: res}, nil
		}
		list, err := e.Repo.LatestEvents(ctx, limit, projectID, input.Type, "", input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(list))
		for _, ev := range list {
			res = append(res, eventResponse(ev))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		key, stored, err := issueAPIKey(ctx, e, input.Body.ActorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        stored.ID,
			ActorID:   stored.ActorID,
			Name:      stored.Name,
			CreatedAt: stored.CreatedAt,
			Key:       key,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			res = append(res, APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-apikey",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func issueAPIKey(ctx context.Context, e engine.Engine, actorID, name string) (string, domain.APIKey, error) {
	raw := uuid.New().String() + uuid.New().String()
	key := domain.APIKey{
		ID:      uuid.New().String(),
		ActorID: actorID,
		Name:    name,
		KeyHash: repo.HashAPIKey(raw),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	stored, err := e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, stored, nil
}
