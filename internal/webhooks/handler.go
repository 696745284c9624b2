package webhooks

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/authz"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Handler exposes webhook registration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler constructs the webhooks HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes attaches the endpoints; mounted under /webhooks.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleIntegrations, authz.ActionRead))
		r.Get("/", h.List)
		r.Get("/events", h.Events)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleIntegrations, authz.ActionManage))
		r.Post("/", h.Register)
		r.Delete("/{webhookID}", h.Remove)
	})
}

// List handles GET /webhooks.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list webhooks failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Endpoint{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

// Events handles GET /webhooks/events: the subscribable event names.
func (h *Handler) Events(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, SupportedEvents)
}

type registerForm struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1"`
}

// Register handles POST /webhooks. The response includes the signing secret
// once; it is not returned by any other endpoint.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, secret, err := h.service.Register(r.Context(), RegisterInput{URL: form.URL, Events: form.Events}, h.actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"endpoint": created, "secret": secret})
}

// Remove handles DELETE /webhooks/{webhookID}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "webhookID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid webhook ID")
		return
	}
	if err := h.service.Remove(r.Context(), id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "webhook removed"})
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
