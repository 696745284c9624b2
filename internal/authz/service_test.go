package authz

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// fakeRepo is an in-memory Repository for evaluator tests.
type fakeRepo struct {
	rules       []PermissionRule
	assignments []RoleAssignment
	nextID      int64
}

func (f *fakeRepo) RulesMatching(_ context.Context, roles []string, module Module, action Action, resourceType *string) ([]PermissionRule, error) {
	roleSet := map[string]struct{}{}
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}
	var out []PermissionRule
	for _, rule := range f.rules {
		if _, ok := roleSet[rule.Role]; !ok {
			continue
		}
		if rule.Module != module || rule.Action != action {
			continue
		}
		if !sameResourceType(rule.ResourceType, resourceType) {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func sameResourceType(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeRepo) ListRules(_ context.Context, module *Module) ([]PermissionRule, error) {
	if module == nil {
		return f.rules, nil
	}
	var out []PermissionRule
	for _, rule := range f.rules {
		if rule.Module == *module {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateRule(_ context.Context, rule PermissionRule) (PermissionRule, error) {
	f.nextID++
	rule.ID = f.nextID
	rule.CreatedAt = time.Now()
	f.rules = append(f.rules, rule)
	return rule, nil
}

func (f *fakeRepo) DeleteRule(_ context.Context, id int64) error {
	for i, rule := range f.rules {
		if rule.ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %d: %w", id, httpx.ErrNotFound)
}

func (f *fakeRepo) ActiveAssignments(_ context.Context, userID int64, now time.Time) ([]RoleAssignment, error) {
	var out []RoleAssignment
	for _, a := range f.assignments {
		if a.UserID == userID && a.Active(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAssignments(_ context.Context, userID int64) ([]RoleAssignment, error) {
	var out []RoleAssignment
	for _, a := range f.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindActiveAssignment(_ context.Context, userID int64, role string, businessUnitID *uuid.UUID, now time.Time) (RoleAssignment, error) {
	for _, a := range f.assignments {
		if a.UserID == userID && a.Role == role && sameUnit(a.BusinessUnitID, businessUnitID) && a.Active(now) {
			return a, nil
		}
	}
	return RoleAssignment{}, fmt.Errorf("assignment: %w", httpx.ErrNotFound)
}

func sameUnit(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeRepo) HasAssignmentScopedTo(_ context.Context, userID int64, businessUnitID uuid.UUID, now time.Time) (bool, error) {
	for _, a := range f.assignments {
		if a.UserID == userID && a.BusinessUnitID != nil && *a.BusinessUnitID == businessUnitID && a.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) InsertAssignment(_ context.Context, assignment RoleAssignment) (RoleAssignment, error) {
	f.nextID++
	assignment.ID = f.nextID
	assignment.AssignedAt = time.Now()
	f.assignments = append(f.assignments, assignment)
	return assignment, nil
}

func (f *fakeRepo) DeleteAssignment(_ context.Context, id int64) error {
	for i, a := range f.assignments {
		if a.ID == id {
			f.assignments = append(f.assignments[:i], f.assignments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("assignment %d: %w", id, httpx.ErrNotFound)
}

// fakeDirectory serves UserInfo from a map.
type fakeDirectory map[int64]UserInfo

func (d fakeDirectory) Lookup(_ context.Context, userID int64) (UserInfo, error) {
	if u, ok := d[userID]; ok {
		return u, nil
	}
	return UserInfo{}, fmt.Errorf("user %d: %w", userID, httpx.ErrNotFound)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, event string, _ any) error {
	p.events = append(p.events, event)
	return nil
}

func newAuthzService(repo *fakeRepo, dir fakeDirectory) *Service {
	return NewService(repo, dir, shared.NopRecorder{}, nil, slog.Default())
}

func strPtr(s string) *string { return &s }

func TestHasPermissionUnconditionalRule(t *testing.T) {
	repo := &fakeRepo{rules: []PermissionRule{
		{ID: 1, Role: "auditor", Module: ModuleEvidence, Action: ActionRead},
	}}
	dir := fakeDirectory{7: {ID: 7, Role: "auditor"}}
	svc := newAuthzService(repo, dir)

	require.True(t, svc.HasPermission(context.Background(), 7, ModuleEvidence, ActionRead, nil, nil))
	require.False(t, svc.HasPermission(context.Background(), 7, ModuleEvidence, ActionUpdate, nil, nil))
	require.False(t, svc.HasPermission(context.Background(), 7, ModuleRisks, ActionRead, nil, nil))
}

func TestHasPermissionUnknownUserDenies(t *testing.T) {
	svc := newAuthzService(&fakeRepo{}, fakeDirectory{})

	require.False(t, svc.HasPermission(context.Background(), 99, ModuleAssets, ActionRead, nil, nil))
}

func TestHasPermissionResourceTypeMatchesExactly(t *testing.T) {
	repo := &fakeRepo{rules: []PermissionRule{
		{ID: 1, Role: "analyst", Module: ModuleAssets, Action: ActionRead, ResourceType: strPtr("physical")},
	}}
	dir := fakeDirectory{3: {ID: 3, Role: "analyst"}}
	svc := newAuthzService(repo, dir)

	require.True(t, svc.HasPermission(context.Background(), 3, ModuleAssets, ActionRead, strPtr("physical"), nil))
	// a typed rule does not answer an untyped check, and vice versa
	require.False(t, svc.HasPermission(context.Background(), 3, ModuleAssets, ActionRead, nil, nil))
	require.False(t, svc.HasPermission(context.Background(), 3, ModuleAssets, ActionRead, strPtr("software"), nil))
}

func TestHasPermissionAssignmentRoles(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	repo := &fakeRepo{
		rules: []PermissionRule{
			{ID: 1, Role: "risk_manager", Module: ModuleRisks, Action: ActionManage},
		},
		assignments: []RoleAssignment{
			{ID: 10, UserID: 5, Role: "risk_manager", ExpiresAt: &future},
			{ID: 11, UserID: 6, Role: "risk_manager", ExpiresAt: &past},
		},
	}
	dir := fakeDirectory{
		5: {ID: 5, Role: "analyst"},
		6: {ID: 6, Role: "analyst"},
	}
	svc := newAuthzService(repo, dir)
	svc.WithNow(func() time.Time { return now })

	require.True(t, svc.HasPermission(context.Background(), 5, ModuleRisks, ActionManage, nil, nil),
		"unexpired assignment role must be unioned in")
	require.False(t, svc.HasPermission(context.Background(), 6, ModuleRisks, ActionManage, nil, nil),
		"expired assignment must not contribute")
}

func TestHasPermissionUnknownConditionKeyGrants(t *testing.T) {
	// Unrecognized condition keys pass instead of denying. Known gap in the
	// grant model; this pins the behavior so a change to it is deliberate.
	repo := &fakeRepo{rules: []PermissionRule{
		{ID: 1, Role: "analyst", Module: ModuleReports, Action: ActionExport,
			Conditions: map[string]any{"department": "finance"}},
	}}
	dir := fakeDirectory{4: {ID: 4, Role: "analyst"}}
	svc := newAuthzService(repo, dir)

	require.True(t, svc.HasPermission(context.Background(), 4, ModuleReports, ActionExport, nil, nil))
}

func TestHasPermissionAnyRuleGrants(t *testing.T) {
	unit := uuid.New()
	repo := &fakeRepo{rules: []PermissionRule{
		{ID: 1, Role: "analyst", Module: ModuleAssets, Action: ActionUpdate,
			Conditions: map[string]any{"business_unit_id": "user.business_unit_id"}},
		{ID: 2, Role: "analyst", Module: ModuleAssets, Action: ActionUpdate},
	}}
	dir := fakeDirectory{4: {ID: 4, Role: "analyst", BusinessUnitID: &unit}}
	svc := newAuthzService(repo, dir)

	// first rule's condition fails (no resource data) but the second,
	// unconditional rule still grants
	require.True(t, svc.HasPermission(context.Background(), 4, ModuleAssets, ActionUpdate, nil, nil))
}

func TestAssignRoleIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	repo := &fakeRepo{
		nextID: 50,
		assignments: []RoleAssignment{
			{ID: 42, UserID: 5, Role: "risk_manager", ExpiresAt: &future},
		},
	}
	dir := fakeDirectory{5: {ID: 5, Role: "analyst"}}
	svc := newAuthzService(repo, dir)
	svc.WithNow(func() time.Time { return now })

	got, err := svc.AssignRole(context.Background(), AssignInput{UserID: 5, Role: "risk_manager", AssignedBy: 1})
	require.NoError(t, err)
	require.Equal(t, int64(42), got.ID, "existing active assignment must be returned, not duplicated")
	require.Len(t, repo.assignments, 1)
}

func TestAssignRoleUnknownUser(t *testing.T) {
	svc := newAuthzService(&fakeRepo{}, fakeDirectory{})

	_, err := svc.AssignRole(context.Background(), AssignInput{UserID: 9, Role: "auditor", AssignedBy: 1})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestAssignRolePublishesEvent(t *testing.T) {
	repo := &fakeRepo{}
	dir := fakeDirectory{5: {ID: 5, Role: "analyst"}}
	pub := &recordingPublisher{}
	svc := NewService(repo, dir, shared.NopRecorder{}, pub, slog.Default())

	_, err := svc.AssignRole(context.Background(), AssignInput{UserID: 5, Role: "auditor", AssignedBy: 1})
	require.NoError(t, err)
	require.Equal(t, []string{shared.EventAssignmentCreated}, pub.events)
}

func TestBulkAssignRoleSkipsDuplicateLookup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	repo := &fakeRepo{
		nextID: 10,
		assignments: []RoleAssignment{
			{ID: 9, UserID: 5, Role: "auditor", ExpiresAt: &future},
		},
	}
	dir := fakeDirectory{5: {ID: 5, Role: "analyst"}, 6: {ID: 6, Role: "analyst"}}
	svc := newAuthzService(repo, dir)
	svc.WithNow(func() time.Time { return now })

	created, err := svc.BulkAssignRole(context.Background(), []int64{5, 6}, "auditor", nil, &future, 1)
	require.NoError(t, err)
	require.Len(t, created, 2)
	// bulk inserts blindly: user 5 now holds two identical assignments
	assignments, err := svc.ListAssignments(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
}

func TestBulkAssignRoleUnknownUserFails(t *testing.T) {
	dir := fakeDirectory{5: {ID: 5, Role: "analyst"}}
	svc := newAuthzService(&fakeRepo{}, dir)

	_, err := svc.BulkAssignRole(context.Background(), []int64{5, 99}, "auditor", nil, nil, 1)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestRevokeAssignment(t *testing.T) {
	repo := &fakeRepo{assignments: []RoleAssignment{{ID: 3, UserID: 5, Role: "auditor"}}}
	dir := fakeDirectory{5: {ID: 5, Role: "analyst"}}
	pub := &recordingPublisher{}
	svc := NewService(repo, dir, shared.NopRecorder{}, pub, slog.Default())

	require.NoError(t, svc.RevokeAssignment(context.Background(), 3, 1))
	require.Empty(t, repo.assignments)
	require.Equal(t, []string{shared.EventAssignmentRevoked}, pub.events)

	require.ErrorIs(t, svc.RevokeAssignment(context.Background(), 3, 1), httpx.ErrNotFound)
}

func TestCreateRuleRequiresRole(t *testing.T) {
	svc := newAuthzService(&fakeRepo{}, fakeDirectory{})

	_, err := svc.CreateRule(context.Background(), PermissionRule{Module: ModuleAssets, Action: ActionRead}, 1)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestTestUserPermissionsMatrix(t *testing.T) {
	repo := &fakeRepo{rules: []PermissionRule{
		{ID: 1, Role: "auditor", Module: ModuleEvidence, Action: ActionRead},
		{ID: 2, Role: "auditor", Module: ModuleControls, Action: ActionRead},
	}}
	dir := fakeDirectory{7: {ID: 7, Role: "auditor"}}
	svc := newAuthzService(repo, dir)

	matrix, err := svc.TestUserPermissions(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), matrix.UserID)
	require.Equal(t, []string{"auditor"}, matrix.Roles)
	require.Len(t, matrix.Matrix, len(Modules()))
	for _, row := range matrix.Matrix {
		require.Len(t, row, len(Actions()))
	}
	require.True(t, matrix.Matrix[ModuleEvidence][ActionRead])
	require.True(t, matrix.Matrix[ModuleControls][ActionRead])
	require.False(t, matrix.Matrix[ModuleEvidence][ActionDelete])
	require.False(t, matrix.Matrix[ModuleAssets][ActionRead])
}
