package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Handler exposes rule and assignment management plus the diagnostic matrix.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    Middleware
	validate *validator.Validate
}

// NewHandler constructs the authz HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes attaches the authz endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuleUsers, ActionRead))
		r.Get("/rules", h.ListRules)
		r.Get("/users/{userID}/assignments", h.ListAssignments)
		r.Get("/users/{userID}/matrix", h.PermissionMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuleUsers, ActionManage))
		r.Post("/rules", h.CreateRule)
		r.Delete("/rules/{ruleID}", h.DeleteRule)
		r.Post("/assignments", h.AssignRole)
		r.Post("/assignments/bulk", h.BulkAssignRole)
		r.Delete("/assignments/{assignmentID}", h.RevokeAssignment)
	})
}

type ruleForm struct {
	Role         string         `json:"role" validate:"required"`
	Module       string         `json:"module" validate:"required"`
	Action       string         `json:"action" validate:"required"`
	ResourceType *string        `json:"resourceType"`
	Conditions   map[string]any `json:"conditions"`
}

// CreateRule handles POST /authz/rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var form ruleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	module, err := ParseModule(form.Module)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	action, err := ParseAction(form.Action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	rule, err := h.service.CreateRule(r.Context(), PermissionRule{
		Role:         form.Role,
		Module:       module,
		Action:       action,
		ResourceType: form.ResourceType,
		Conditions:   form.Conditions,
	}, h.actorID(r))
	if err != nil {
		h.logger.Error("create rule failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

// ListRules handles GET /authz/rules?module=...
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	var module *Module
	if raw := r.URL.Query().Get("module"); raw != "" {
		m, err := ParseModule(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		module = &m
	}
	rules, err := h.service.ListRules(r.Context(), module)
	if err != nil {
		h.logger.Error("list rules failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if rules == nil {
		rules = []PermissionRule{}
	}
	httpx.JSON(w, http.StatusOK, rules)
}

// DeleteRule handles DELETE /authz/rules/{ruleID}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid rule ID")
		return
	}
	if err := h.service.DeleteRule(r.Context(), id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "rule deleted"})
}

type assignForm struct {
	UserID         int64      `json:"userId" validate:"required"`
	Role           string     `json:"role" validate:"required"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// AssignRole handles POST /authz/assignments.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var form assignForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	assignment, err := h.service.AssignRole(r.Context(), AssignInput{
		UserID:         form.UserID,
		Role:           form.Role,
		BusinessUnitID: form.BusinessUnitID,
		ExpiresAt:      form.ExpiresAt,
		AssignedBy:     h.actorID(r),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

type bulkAssignForm struct {
	UserIDs        []int64    `json:"userIds" validate:"required,min=1"`
	Role           string     `json:"role" validate:"required"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// BulkAssignRole handles POST /authz/assignments/bulk.
func (h *Handler) BulkAssignRole(w http.ResponseWriter, r *http.Request) {
	var form bulkAssignForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	assignments, err := h.service.BulkAssignRole(r.Context(), form.UserIDs, form.Role, form.BusinessUnitID, form.ExpiresAt, h.actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignments)
}

// RevokeAssignment handles DELETE /authz/assignments/{assignmentID}.
func (h *Handler) RevokeAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid assignment ID")
		return
	}
	if err := h.service.RevokeAssignment(r.Context(), id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "assignment revoked"})
}

// ListAssignments handles GET /authz/users/{userID}/assignments.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user ID")
		return
	}
	assignments, err := h.service.ListAssignments(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if assignments == nil {
		assignments = []RoleAssignment{}
	}
	httpx.JSON(w, http.StatusOK, assignments)
}

// PermissionMatrix handles GET /authz/users/{userID}/matrix.
func (h *Handler) PermissionMatrix(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user ID")
		return
	}
	matrix, err := h.service.TestUserPermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, matrix)
}

func (h *Handler) actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
