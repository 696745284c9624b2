package busunits

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

// Handler exposes business unit endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler constructs the business units HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes attaches the endpoints; mounted under /business-units.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleUsers, authz.ActionRead))
		r.Get("/", h.List)
		r.Get("/{businessUnitID}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleUsers, authz.ActionManage))
		r.Post("/", h.Create)
		r.Delete("/{businessUnitID}", h.Delete)
	})
}

// List handles GET /business-units.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list business units failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []BusinessUnit{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

// Show handles GET /business-units/{businessUnitID}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "businessUnitID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business unit ID")
		return
	}
	bu, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bu)
}

type buForm struct {
	Name     string     `json:"name" validate:"required"`
	Code     string     `json:"code" validate:"required"`
	ParentID *uuid.UUID `json:"parentId"`
}

// Create handles POST /business-units.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form buForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.service.Create(r.Context(), BusinessUnit{
		Name:     form.Name,
		Code:     form.Code,
		ParentID: form.ParentID,
	}, h.actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// Delete handles DELETE /business-units/{businessUnitID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "businessUnitID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business unit ID")
		return
	}
	if err := h.service.Delete(r.Context(), id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "business unit deleted"})
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
