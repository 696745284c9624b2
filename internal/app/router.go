package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-grc/aegis/internal/assets"
	"github.com/aegis-grc/aegis/internal/assets/dependencies"
	"github.com/aegis-grc/aegis/internal/authz"
	"github.com/aegis-grc/aegis/internal/busunits"
	"github.com/aegis-grc/aegis/internal/influencers"
	"github.com/aegis-grc/aegis/internal/observability"
	"github.com/aegis-grc/aegis/internal/shared"
	"github.com/aegis-grc/aegis/internal/users"
	"github.com/aegis-grc/aegis/internal/webhooks"
	"github.com/aegis-grc/aegis/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Tokens *shared.TokenStore

	AuthzHandler        *authz.Handler
	AssetsHandler       *assets.Handler
	DependenciesHandler *dependencies.Handler
	UsersHandler        *users.Handler
	BusinessUnitHandler *busunits.Handler
	InfluencersHandler  *influencers.Handler
	WebhooksHandler     *webhooks.Handler
	JobHandler          *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.UsersHandler.MountAuthRoutes)

	// Everything below requires a resolved principal.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(params.Tokens, params.Logger))

		r.Route("/authz", params.AuthzHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/business-units", params.BusinessUnitHandler.MountRoutes)
		r.Route("/influencers", params.InfluencersHandler.MountRoutes)
		r.Route("/webhooks", params.WebhooksHandler.MountRoutes)

		r.Route("/assets", func(r chi.Router) {
			params.AssetsHandler.MountRoutes(r)
			r.Route("/{assetType}/{assetID}/dependencies", params.DependenciesHandler.MountAssetRoutes)
		})
		r.Route("/dependencies", params.DependenciesHandler.MountRoutes)

		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
