package authz

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aegis-grc/aegis/internal/shared"
)

type staticEvaluator struct {
	allow    bool
	lastData ResourceData
}

func (e *staticEvaluator) HasPermission(_ context.Context, _ int64, _ Module, _ Action, _ *string, resource ResourceData) bool {
	e.lastData = resource
	return e.allow
}

func withPrincipal(r *http.Request, userID int64) *http.Request {
	ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: userID})
	return r.WithContext(ctx)
}

func TestRequireWithoutPrincipal(t *testing.T) {
	guard := Middleware{Evaluator: &staticEvaluator{allow: true}, Logger: slog.Default()}
	handler := guard.Require(ModuleAssets, ActionRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/physical", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireDenied(t *testing.T) {
	guard := Middleware{Evaluator: &staticEvaluator{allow: false}, Logger: slog.Default()}
	handler := guard.Require(ModuleAssets, ActionDelete)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on deny")
	}))

	rec := httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodDelete, "/assets/physical/x", nil), 7)
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestRequireAllowed(t *testing.T) {
	eval := &staticEvaluator{allow: true}
	guard := Middleware{Evaluator: eval, Logger: slog.Default()}
	handler := guard.Require(ModuleAssets, ActionRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/assets/physical", nil), 7)
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireExtractsRouteParams(t *testing.T) {
	eval := &staticEvaluator{allow: true}
	guard := Middleware{Evaluator: eval, Logger: slog.Default()}

	r := chi.NewRouter()
	r.With(guard.Require(ModuleUsers, ActionRead)).
		Get("/business-units/{businessUnitID}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	rec := httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/business-units/0b7e2dd2-6f0d-4be5-9d0e-0f6a66b3a000", nil), 7)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0b7e2dd2-6f0d-4be5-9d0e-0f6a66b3a000", eval.lastData["business_unit_id"])
}

func TestRequireSniffsBodyAndRestoresIt(t *testing.T) {
	eval := &staticEvaluator{allow: true}
	guard := Middleware{Evaluator: eval, Logger: slog.Default()}

	var seenBody string
	handler := guard.Require(ModuleAssets, ActionCreate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seenBody = string(raw)
		w.WriteHeader(http.StatusCreated)
	}))

	body := `{"name":"rack","business_unit_id":"bu-1"}`
	req := httptest.NewRequest(http.MethodPost, "/assets/physical", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withPrincipal(req, 7))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "bu-1", eval.lastData["business_unit_id"])
	require.Equal(t, body, seenBody, "guard must hand the body back to the handler untouched")
}

type countingObserver struct {
	allows, denies int
}

func (o *countingObserver) ObservePermission(_ string, allowed bool) {
	if allowed {
		o.allows++
	} else {
		o.denies++
	}
}

func TestRequireReportsOutcome(t *testing.T) {
	obs := &countingObserver{}
	guard := Middleware{Evaluator: &staticEvaluator{allow: false}, Logger: slog.Default(), Observer: obs}
	handler := guard.Require(ModuleAssets, ActionRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/x", nil), 7))

	require.Equal(t, 1, obs.denies)
	require.Zero(t, obs.allows)
}
