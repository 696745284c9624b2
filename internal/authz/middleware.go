package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// maxSniffedBody bounds how much of a request body the guard inspects for
// resource context.
const maxSniffedBody = 1 << 20

// Evaluator is the decision contract the guard depends on.
type Evaluator interface {
	HasPermission(ctx context.Context, userID int64, module Module, action Action, resourceType *string, resource ResourceData) bool
}

// DecisionObserver counts evaluation outcomes, by module.
type DecisionObserver interface {
	ObservePermission(module string, allowed bool)
}

// Middleware wires permission checks into HTTP routes.
type Middleware struct {
	Evaluator Evaluator
	Logger    *slog.Logger
	Observer  DecisionObserver
}

// Require guards a route with a module/action permission.
func (m Middleware) Require(module Module, action Action) func(http.Handler) http.Handler {
	return m.require(Requirement{Module: module, Action: action})
}

// RequireResource guards a route with a module/action permission scoped to a
// resource type, evaluated against the request's resource context.
func (m Middleware) RequireResource(module Module, action Action, resourceType string) func(http.Handler) http.Handler {
	return m.require(Requirement{Module: module, Action: action, ResourceType: resourceType})
}

func (m Middleware) require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}

			var resourceType *string
			if req.ResourceType != "" {
				resourceType = &req.ResourceType
			}

			resource := m.extractResourceData(r)
			allowed := m.Evaluator.HasPermission(r.Context(), principal.UserID, req.Module, req.Action, resourceType, resource)
			if m.Observer != nil {
				m.Observer.ObservePermission(string(req.Module), allowed)
			}
			if allowed {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("permission denied",
					slog.Int64("user_id", principal.UserID),
					slog.String("module", string(req.Module)),
					slog.String("action", string(req.Action)),
					slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// extractResourceData pulls id, business_unit_id and owner_id out of route
// params and the JSON body. This is a heuristic projection, not a typed
// contract: only whatever the request happens to carry gets evaluated.
func (m Middleware) extractResourceData(r *http.Request) ResourceData {
	data := ResourceData{}

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			switch key {
			case "id", "assetID", "dependencyID", "ruleID", "assignmentID":
				data["id"] = rctx.URLParams.Values[i]
			case "businessUnitID":
				data["business_unit_id"] = rctx.URLParams.Values[i]
			}
		}
	}

	if r.Body != nil && bodyCarriesJSON(r) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxSniffedBody))
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(raw))
			var body map[string]any
			if json.Unmarshal(raw, &body) == nil {
				for _, key := range []string{"id", "business_unit_id", "owner_id"} {
					if v, ok := body[key]; ok {
						data[key] = v
					}
				}
			}
		}
	}

	if len(data) == 0 {
		return nil
	}
	return data
}

func bodyCarriesJSON(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}
