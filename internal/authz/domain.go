// Package authz implements the platform's permission model: static roles
// unioned with time-limited dynamic role assignments, permission rules with
// optional row-level-security conditions, and the request guard that
// enforces them.
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
)

// Module enumerates the platform areas a permission rule can target.
type Module string

const (
	ModuleInfluencers  Module = "influencers"
	ModuleObligations  Module = "obligations"
	ModuleControls     Module = "controls"
	ModuleAssets       Module = "assets"
	ModuleRisks        Module = "risks"
	ModuleEvidence     Module = "evidence"
	ModulePolicies     Module = "policies"
	ModuleUsers        Module = "users"
	ModuleReports      Module = "reports"
	ModuleIntegrations Module = "integrations"
)

// Modules lists every module in a stable order.
func Modules() []Module {
	return []Module{
		ModuleInfluencers, ModuleObligations, ModuleControls, ModuleAssets,
		ModuleRisks, ModuleEvidence, ModulePolicies, ModuleUsers,
		ModuleReports, ModuleIntegrations,
	}
}

// ParseModule validates a raw module string.
func ParseModule(raw string) (Module, error) {
	for _, m := range Modules() {
		if Module(raw) == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("authz: unknown module %q: %w", raw, httpx.ErrValidation)
}

// Action enumerates the operations a permission rule can grant.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
	ActionAssign  Action = "assign"
	ActionManage  Action = "manage"
)

// Actions lists every action in a stable order.
func Actions() []Action {
	return []Action{
		ActionCreate, ActionRead, ActionUpdate, ActionDelete,
		ActionApprove, ActionExport, ActionImport, ActionAssign, ActionManage,
	}
}

// ParseAction validates a raw action string.
func ParseAction(raw string) (Action, error) {
	for _, a := range Actions() {
		if Action(raw) == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("authz: unknown action %q: %w", raw, httpx.ErrValidation)
}

// PermissionRule grants (never denies) an action on a module to a role.
// Multiple rules may share the same (role, module, action, resource_type)
// tuple; each rule's conditions are an alternative grant path. Rules are
// immutable once created: administrators create and delete, never update.
type PermissionRule struct {
	ID           int64          `json:"id"`
	Role         string         `json:"role"`
	Module       Module         `json:"module"`
	Action       Action         `json:"action"`
	ResourceType *string        `json:"resourceType,omitempty"`
	Conditions   map[string]any `json:"conditions,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// RoleAssignment layers a dynamically granted role on top of a user's static
// role, optionally scoped to a business unit and optionally time-limited.
// Expired assignments are excluded by query filter; a scheduled sweep reaps
// rows past the audit retention window.
type RoleAssignment struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"userId"`
	Role           string     `json:"role"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId,omitempty"`
	AssignedBy     int64      `json:"assignedBy"`
	AssignedAt     time.Time  `json:"assignedAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// Active reports whether the assignment contributes to evaluation at now.
func (a RoleAssignment) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// Requirement is the declarative permission attached to a route.
type Requirement struct {
	Module       Module
	Action       Action
	ResourceType string
}

// ResourceData is the heuristic projection of the inbound request the guard
// hands to the evaluator. The evaluator treats it opaquely; only
// business_unit_id is structurally significant today.
type ResourceData map[string]any

// BusinessUnit returns the resource's business unit id as a string, empty
// when absent.
func (d ResourceData) BusinessUnit() string {
	if d == nil {
		return ""
	}
	switch v := d["business_unit_id"].(type) {
	case string:
		return v
	case uuid.UUID:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// UserInfo is what the evaluator needs to know about the acting user.
type UserInfo struct {
	ID             int64
	Role           string
	BusinessUnitID *uuid.UUID
}

// UserDirectory looks up acting users. Implemented by the users service.
type UserDirectory interface {
	Lookup(ctx context.Context, userID int64) (UserInfo, error)
}
