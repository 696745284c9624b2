package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
)

// Repository is the persistence contract of the evaluator and the rule and
// assignment management operations.
type Repository interface {
	RulesMatching(ctx context.Context, roles []string, module Module, action Action, resourceType *string) ([]PermissionRule, error)
	ListRules(ctx context.Context, module *Module) ([]PermissionRule, error)
	CreateRule(ctx context.Context, rule PermissionRule) (PermissionRule, error)
	DeleteRule(ctx context.Context, id int64) error

	ActiveAssignments(ctx context.Context, userID int64, now time.Time) ([]RoleAssignment, error)
	ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error)
	FindActiveAssignment(ctx context.Context, userID int64, role string, businessUnitID *uuid.UUID, now time.Time) (RoleAssignment, error)
	HasAssignmentScopedTo(ctx context.Context, userID int64, businessUnitID uuid.UUID, now time.Time) (bool, error)
	InsertAssignment(ctx context.Context, assignment RoleAssignment) (RoleAssignment, error)
	DeleteAssignment(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const ruleColumns = `id, role, module, action, resource_type, conditions, created_at`

// RulesMatching fetches rules for any of the candidate roles. resource_type
// is matched by exact equality including NULL: a rule without a resource
// type only matches requests that carry none.
func (r *repository) RulesMatching(ctx context.Context, roles []string, module Module, action Action, resourceType *string) ([]PermissionRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM permission_rules
		WHERE role = ANY($1) AND module = $2 AND action = $3 AND resource_type IS NOT DISTINCT FROM $4`,
		roles, module, action, resourceType)
	if err != nil {
		return nil, fmt.Errorf("authz: rules matching: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *repository) ListRules(ctx context.Context, module *Module) ([]PermissionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM permission_rules`
	args := []any{}
	if module != nil {
		query += ` WHERE module = $1`
		args = append(args, *module)
	}
	query += ` ORDER BY role, module, action, id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("authz: list rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *repository) CreateRule(ctx context.Context, rule PermissionRule) (PermissionRule, error) {
	var conditions []byte
	if rule.Conditions != nil {
		var err error
		conditions, err = json.Marshal(rule.Conditions)
		if err != nil {
			return PermissionRule{}, fmt.Errorf("authz: encode conditions: %w", err)
		}
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO permission_rules (role, module, action, resource_type, conditions, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
		rule.Role, rule.Module, rule.Action, rule.ResourceType, conditions).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return PermissionRule{}, fmt.Errorf("authz: create rule: %w", err)
	}
	return rule, nil
}

func (r *repository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permission_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("authz: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("authz: rule %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

const assignmentColumns = `id, user_id, role, business_unit_id, assigned_by, assigned_at, expires_at`

// ActiveAssignments returns the user's unexpired assignments. Expiry is a
// query filter; expired rows stay in the table.
func (r *repository) ActiveAssignments(ctx context.Context, userID int64, now time.Time) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM role_assignments
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("authz: active assignments: %w", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (r *repository) ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM role_assignments
		WHERE user_id = $1 ORDER BY assigned_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: list assignments: %w", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (r *repository) FindActiveAssignment(ctx context.Context, userID int64, role string, businessUnitID *uuid.UUID, now time.Time) (RoleAssignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM role_assignments
		WHERE user_id = $1 AND role = $2 AND business_unit_id IS NOT DISTINCT FROM $3
		AND (expires_at IS NULL OR expires_at > $4) LIMIT 1`, userID, role, businessUnitID, now)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleAssignment{}, fmt.Errorf("authz: assignment: %w", httpx.ErrNotFound)
		}
		return RoleAssignment{}, fmt.Errorf("authz: find assignment: %w", err)
	}
	return assignment, nil
}

func (r *repository) HasAssignmentScopedTo(ctx context.Context, userID int64, businessUnitID uuid.UUID, now time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM role_assignments
		WHERE user_id = $1 AND business_unit_id = $2 AND (expires_at IS NULL OR expires_at > $3))`,
		userID, businessUnitID, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("authz: assignment scope check: %w", err)
	}
	return exists, nil
}

func (r *repository) InsertAssignment(ctx context.Context, assignment RoleAssignment) (RoleAssignment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO role_assignments (user_id, role, business_unit_id, assigned_by, assigned_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), $5) RETURNING id, assigned_at`,
		assignment.UserID, assignment.Role, assignment.BusinessUnitID, assignment.AssignedBy, assignment.ExpiresAt).
		Scan(&assignment.ID, &assignment.AssignedAt)
	if err != nil {
		return RoleAssignment{}, fmt.Errorf("authz: insert assignment: %w", err)
	}
	return assignment, nil
}

func (r *repository) DeleteAssignment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("authz: delete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("authz: assignment %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]PermissionRule, error) {
	var rules []PermissionRule
	for rows.Next() {
		var rule PermissionRule
		var conditions []byte
		if err := rows.Scan(&rule.ID, &rule.Role, &rule.Module, &rule.Action, &rule.ResourceType, &conditions, &rule.CreatedAt); err != nil {
			return nil, err
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
				return nil, fmt.Errorf("authz: decode conditions for rule %d: %w", rule.ID, err)
			}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanAssignments(rows pgx.Rows) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.Role, &a.BusinessUnitID, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func scanAssignment(row pgx.Row) (RoleAssignment, error) {
	var a RoleAssignment
	err := row.Scan(&a.ID, &a.UserID, &a.Role, &a.BusinessUnitID, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt)
	return a, err
}
