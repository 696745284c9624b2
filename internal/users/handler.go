package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/authz"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Handler exposes account and login endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	tokens   *shared.TokenStore
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler constructs the users HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, tokens *shared.TokenStore, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, tokens: tokens, guard: guard, validate: validator.New()}
}

// MountRoutes attaches the account endpoints; mounted under /users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleUsers, authz.ActionRead))
		r.Get("/", h.List)
		r.Get("/{userID}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleUsers, authz.ActionManage))
		r.Post("/", h.Create)
		r.Delete("/{userID}", h.Deactivate)
	})
}

// MountAuthRoutes attaches the unauthenticated login endpoint and the
// token-scoped logout; mounted under /auth.
func (h *Handler) MountAuthRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
}

// List handles GET /users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

// Show handles GET /users/{userID}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user ID")
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type createUserForm struct {
	Email          string     `json:"email" validate:"required,email"`
	Name           string     `json:"name" validate:"required"`
	Password       string     `json:"password" validate:"required,min=8"`
	Role           string     `json:"role" validate:"required"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId"`
}

// Create handles POST /users.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form createUserForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.service.Create(r.Context(), User{
		Email:          form.Email,
		Name:           form.Name,
		Role:           form.Role,
		BusinessUnitID: form.BusinessUnitID,
	}, form.Password, h.actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// Deactivate handles DELETE /users/{userID}.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user ID")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "user deactivated"})
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login: exchanges credentials for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	u, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, err := h.tokens.Issue(r.Context(), u.ID)
	if err != nil {
		h.logger.Error("issue token failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"token": token, "user": u})
}

// Logout handles POST /auth/logout: revokes the presented bearer token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.tokens.Revoke(r.Context(), raw); err != nil {
		h.logger.Error("revoke token failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
