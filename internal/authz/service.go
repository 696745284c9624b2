package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Service evaluates permissions and manages rules and role assignments.
type Service struct {
	repo   Repository
	users  UserDirectory
	audit  shared.Recorder
	events shared.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, users UserDirectory, audit shared.Recorder, events shared.Publisher, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopRecorder{}
	}
	if events == nil {
		events = shared.NopPublisher{}
	}
	return &Service{repo: repo, users: users, audit: audit, events: events, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// HasPermission decides allow/deny for a user attempting an action on a
// module, optionally against a concrete resource. The model is grant-only:
// no rule ever denies, absence of a grant is the only deny path. Every
// evaluation failure resolves to deny, never to an error.
func (s *Service) HasPermission(ctx context.Context, userID int64, module Module, action Action, resourceType *string, resource ResourceData) bool {
	user, err := s.users.Lookup(ctx, userID)
	if err != nil {
		if !errors.Is(err, httpx.ErrNotFound) {
			s.logError("lookup user", err)
		}
		return false
	}

	roles, err := s.candidateRoles(ctx, user)
	if err != nil {
		s.logError("collect roles", err)
		return false
	}

	rules, err := s.repo.RulesMatching(ctx, roles, module, action, resourceType)
	if err != nil {
		s.logError("match rules", err)
		return false
	}

	for _, rule := range rules {
		if len(rule.Conditions) == 0 {
			return true
		}
		if s.evaluateConditions(ctx, user, rule.Conditions, resource) {
			return true
		}
	}
	return false
}

// candidateRoles unions the static role with every unexpired assignment role.
func (s *Service) candidateRoles(ctx context.Context, user UserInfo) ([]string, error) {
	assignments, err := s.repo.ActiveAssignments(ctx, user.ID, s.now())
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	roles := make([]string, 0, len(assignments)+1)
	if r := strings.TrimSpace(user.Role); r != "" {
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	for _, a := range assignments {
		if _, ok := seen[a.Role]; ok {
			continue
		}
		seen[a.Role] = struct{}{}
		roles = append(roles, a.Role)
	}
	return roles, nil
}

// CreateRule persists a new permission rule. Rules are immutable afterwards.
func (s *Service) CreateRule(ctx context.Context, rule PermissionRule, actorID int64) (PermissionRule, error) {
	rule.Role = strings.TrimSpace(rule.Role)
	if rule.Role == "" {
		return PermissionRule{}, fmt.Errorf("authz: rule role required: %w", httpx.ErrValidation)
	}
	created, err := s.repo.CreateRule(ctx, rule)
	if err != nil {
		return PermissionRule{}, err
	}
	s.recordAudit(ctx, actorID, "permission_rule.created", "permission_rule", strconv.FormatInt(created.ID, 10), map[string]any{
		"role": created.Role, "module": created.Module, "action": created.Action,
	})
	return created, nil
}

// DeleteRule removes a rule by id.
func (s *Service) DeleteRule(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "permission_rule.deleted", "permission_rule", strconv.FormatInt(id, 10), nil)
	return nil
}

// ListRules returns rules, optionally filtered by module.
func (s *Service) ListRules(ctx context.Context, module *Module) ([]PermissionRule, error) {
	return s.repo.ListRules(ctx, module)
}

// AssignInput describes a role assignment request.
type AssignInput struct {
	UserID         int64
	Role           string
	BusinessUnitID *uuid.UUID
	ExpiresAt      *time.Time
	AssignedBy     int64
}

// AssignRole grants a dynamic role to one user. The single-user path is
// idempotent by lookup: an identical unexpired assignment is returned
// unchanged instead of inserting a duplicate.
func (s *Service) AssignRole(ctx context.Context, input AssignInput) (RoleAssignment, error) {
	input.Role = strings.TrimSpace(input.Role)
	if input.Role == "" {
		return RoleAssignment{}, fmt.Errorf("authz: role required: %w", httpx.ErrValidation)
	}
	if _, err := s.users.Lookup(ctx, input.UserID); err != nil {
		return RoleAssignment{}, err
	}

	existing, err := s.repo.FindActiveAssignment(ctx, input.UserID, input.Role, input.BusinessUnitID, s.now())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, httpx.ErrNotFound) {
		return RoleAssignment{}, err
	}

	created, err := s.repo.InsertAssignment(ctx, RoleAssignment{
		UserID:         input.UserID,
		Role:           input.Role,
		BusinessUnitID: input.BusinessUnitID,
		AssignedBy:     input.AssignedBy,
		ExpiresAt:      input.ExpiresAt,
	})
	if err != nil {
		return RoleAssignment{}, err
	}
	s.recordAudit(ctx, input.AssignedBy, "role_assignment.created", "role_assignment", strconv.FormatInt(created.ID, 10), map[string]any{
		"user_id": created.UserID, "role": created.Role,
	})
	s.publish(ctx, shared.EventAssignmentCreated, created)
	return created, nil
}

// BulkAssignRole grants a role to many users at once. Unlike AssignRole it
// performs no duplicate lookup, so re-running a bulk grant creates duplicate
// assignments. Kept as-is pending a product decision; see DESIGN.md.
func (s *Service) BulkAssignRole(ctx context.Context, userIDs []int64, role string, businessUnitID *uuid.UUID, expiresAt *time.Time, assignedBy int64) ([]RoleAssignment, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("authz: role required: %w", httpx.ErrValidation)
	}
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("authz: at least one user required: %w", httpx.ErrValidation)
	}

	created := make([]RoleAssignment, 0, len(userIDs))
	for _, userID := range userIDs {
		if _, err := s.users.Lookup(ctx, userID); err != nil {
			return nil, err
		}
		assignment, err := s.repo.InsertAssignment(ctx, RoleAssignment{
			UserID:         userID,
			Role:           role,
			BusinessUnitID: businessUnitID,
			AssignedBy:     assignedBy,
			ExpiresAt:      expiresAt,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, assignment)
	}
	s.recordAudit(ctx, assignedBy, "role_assignment.bulk_created", "role_assignment", "bulk", map[string]any{
		"role": role, "count": len(created),
	})
	for _, assignment := range created {
		s.publish(ctx, shared.EventAssignmentCreated, assignment)
	}
	return created, nil
}

// RevokeAssignment deletes an assignment by id.
func (s *Service) RevokeAssignment(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role_assignment.revoked", "role_assignment", strconv.FormatInt(id, 10), nil)
	s.publish(ctx, shared.EventAssignmentRevoked, map[string]any{"assignmentId": id})
	return nil
}

// ListAssignments returns all assignments of a user, expired included.
func (s *Service) ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	if _, err := s.users.Lookup(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, userID)
}

// PermissionMatrix is the diagnostic result of TestUserPermissions.
type PermissionMatrix struct {
	UserID int64                      `json:"userId"`
	Roles  []string                   `json:"roles"`
	Matrix map[Module]map[Action]bool `json:"matrix"`
}

// TestUserPermissions evaluates every (module, action) pair for a user and
// returns the full matrix plus the resolved role set. No resource data is
// passed, so only unconditional rules are exercised; the admin UI uses this
// for "what can this user do" inspection.
func (s *Service) TestUserPermissions(ctx context.Context, userID int64) (PermissionMatrix, error) {
	user, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return PermissionMatrix{}, err
	}
	roles, err := s.candidateRoles(ctx, user)
	if err != nil {
		return PermissionMatrix{}, err
	}

	matrix := make(map[Module]map[Action]bool, len(Modules()))
	for _, module := range Modules() {
		row := make(map[Action]bool, len(Actions()))
		for _, action := range Actions() {
			row[action] = s.HasPermission(ctx, userID, module, action, nil, nil)
		}
		matrix[module] = row
	}
	return PermissionMatrix{UserID: userID, Roles: roles, Matrix: matrix}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logError("record audit", err)
	}
}

func (s *Service) publish(ctx context.Context, event string, payload any) {
	if err := s.events.Publish(ctx, event, payload); err != nil {
		s.logError("publish "+event, err)
	}
}

func (s *Service) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error("authz "+msg, slog.Any("error", err))
	}
}
