package assets

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

// Handler exposes the inventory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler constructs the assets HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes attaches the inventory endpoints; mounted under /assets.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleAssets, authz.ActionRead))
		r.Get("/{assetType}", h.List)
		r.Get("/{assetType}/{assetID}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleAssets, authz.ActionCreate))
		r.Post("/{assetType}", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleAssets, authz.ActionDelete))
		r.Delete("/{assetType}/{assetID}", h.Delete)
	})
}

// List handles GET /assets/{assetType}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "assetType"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters := shared.ParseListFilters(r)
	items, total, err := h.service.List(r.Context(), kind, filters)
	if err != nil {
		h.logger.Error("list assets failed", "error", err, "kind", kind)
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Asset{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

// Show handles GET /assets/{assetType}/{assetID}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.params(w, r)
	if !ok {
		return
	}
	asset, err := h.service.Get(r.Context(), kind, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

type assetForm struct {
	Name           string     `json:"name" validate:"required"`
	Identifier     string     `json:"identifier"`
	Description    string     `json:"description"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId"`
	OwnerID        *int64     `json:"ownerId"`
}

// Create handles POST /assets/{assetType}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "assetType"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form assetForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.service.Create(r.Context(), Asset{
		Kind:           kind,
		Name:           form.Name,
		Identifier:     form.Identifier,
		Description:    form.Description,
		BusinessUnitID: form.BusinessUnitID,
		OwnerID:        form.OwnerID,
	}, h.actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// Delete handles DELETE /assets/{assetType}/{assetID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.params(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), kind, id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "asset deleted"})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (Kind, uuid.UUID, bool) {
	kind, err := ParseKind(chi.URLParam(r, "assetType"))
	if err != nil {
		httpx.RespondError(w, err)
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "assetID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset ID")
		return "", uuid.Nil, false
	}
	return kind, id, true
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
