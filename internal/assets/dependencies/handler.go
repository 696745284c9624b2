package dependencies

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/assets"
	"github.com/aegis-grc/aegis/internal/authz"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// chainDepth is the traversal bound the dashboard requests.
const chainDepth = 3

// Handler exposes the dependency graph endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	guard      authz.Middleware
	validate   *validator.Validate
	depthObsFn func(int)
}

// NewHandler constructs the dependencies HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// WithChainObserver registers a callback receiving the deepest level each
// chain traversal reached.
func (h *Handler) WithChainObserver(fn func(depth int)) *Handler {
	h.depthObsFn = fn
	return h
}

// MountAssetRoutes attaches the per-asset endpoints; mounted under
// /assets/{assetType}/{assetID}/dependencies.
func (h *Handler) MountAssetRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleAssets, authz.ActionRead))
		r.Get("/", h.FindAll)
		r.Get("/incoming", h.FindIncoming)
		r.Get("/check", h.Check)
		r.Get("/chain", h.Chain)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleAssets, authz.ActionUpdate))
		r.Post("/", h.Create)
	})
}

// MountRoutes attaches the root-level delete endpoint; mounted under
// /dependencies.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ModuleAssets, authz.ActionUpdate))
		r.Delete("/{dependencyID}", h.Remove)
	})
}

type createForm struct {
	TargetAssetType  string `json:"targetAssetType" validate:"required"`
	TargetAssetID    string `json:"targetAssetId" validate:"required,uuid"`
	RelationshipType string `json:"relationshipType" validate:"required"`
	Description      string `json:"description"`
}

// Create handles POST /assets/{assetType}/{assetID}/dependencies.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sourceKind, sourceID, ok := h.assetParams(w, r)
	if !ok {
		return
	}

	var form createForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	targetKind, err := assets.ParseKind(form.TargetAssetType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	relationship, err := ParseRelationshipType(form.RelationshipType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	targetID, err := uuid.Parse(form.TargetAssetID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid target asset ID")
		return
	}

	edge, err := h.service.Create(r.Context(), sourceKind, sourceID, CreateInput{
		TargetKind:   targetKind,
		TargetID:     targetID,
		Relationship: relationship,
		Description:  form.Description,
	}, h.actorID(r))
	if err != nil {
		h.logger.Error("create dependency failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, edge)
}

// FindAll handles GET /assets/{assetType}/{assetID}/dependencies.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.assetParams(w, r)
	if !ok {
		return
	}
	edges, err := h.service.FindAll(r.Context(), kind, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if edges == nil {
		edges = []Edge{}
	}
	httpx.JSON(w, http.StatusOK, edges)
}

// FindIncoming handles GET /assets/{assetType}/{assetID}/dependencies/incoming.
func (h *Handler) FindIncoming(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.assetParams(w, r)
	if !ok {
		return
	}
	edges, err := h.service.FindIncoming(r.Context(), kind, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if edges == nil {
		edges = []Edge{}
	}
	httpx.JSON(w, http.StatusOK, edges)
}

// Check handles GET /assets/{assetType}/{assetID}/dependencies/check.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.assetParams(w, r)
	if !ok {
		return
	}
	result, err := h.service.Check(r.Context(), kind, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// Chain handles GET /assets/{assetType}/{assetID}/dependencies/chain.
func (h *Handler) Chain(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.assetParams(w, r)
	if !ok {
		return
	}
	result, err := h.service.Chain(r.Context(), kind, id, chainDepth, DirectionOutgoing)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.depthObsFn != nil {
		h.depthObsFn(result.MaxDepthReached)
	}
	httpx.JSON(w, http.StatusOK, result)
}

// Remove handles DELETE /dependencies/{dependencyID}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "dependencyID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid dependency ID")
		return
	}
	if err := h.service.Remove(r.Context(), id, h.actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "dependency deleted"})
}

func (h *Handler) assetParams(w http.ResponseWriter, r *http.Request) (assets.Kind, uuid.UUID, bool) {
	kind, err := assets.ParseKind(chi.URLParam(r, "assetType"))
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
