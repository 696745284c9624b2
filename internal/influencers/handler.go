package influencers

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

// Handler exposes influencer endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler constructs the influencers HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes attaches the endpoints; mounted under /influencers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleInfluencers, authz.ActionRead))
		r.Get("/", h.List)
		r.Get("/{influencerID}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleInfluencers, authz.ActionCreate))
		r.Post("/", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleInfluencers, authz.ActionUpdate))
		r.Put("/{influencerID}", h.Update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleInfluencers, authz.ActionDelete))
		r.Delete("/{influencerID}", h.Delete)
	})
}

// List handles GET /influencers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list influencers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Influencer{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

// Show handles GET /influencers/{influencerID}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r)
	if !ok {
		return
	}
	inf, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inf)
}

type influencerForm struct {
	Category       string     `json:"category" validate:"required,oneof=external internal"`
	Name           string     `json:"name" validate:"required"`
	Description    string     `json:"description"`
	Jurisdiction   string     `json:"jurisdiction"`
	Reference      string     `json:"reference"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId"`
}

// Create handles POST /influencers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), form.toModel(uuid.Nil), h.actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// Update handles PUT /influencers/{influencerID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r)
	if !ok {
		return
	}
	form, ok := h.decode(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Update(r.Context(), form.toModel(id), h.actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /influencers/{influencerID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "influencer deleted"})
}

func (f influencerForm) toModel(id uuid.UUID) Influencer {
	return Influencer{
		ID:             id,
		Category:       Category(f.Category),
		Name:           f.Name,
		Description:    f.Description,
		Jurisdiction:   f.Jurisdiction,
		Reference:      f.Reference,
		BusinessUnitID: f.BusinessUnitID,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (influencerForm, bool) {
	var form influencerForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return form, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return form, false
	}
	return form, true
}

func (h *Handler) param(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "influencerID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid influencer ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
