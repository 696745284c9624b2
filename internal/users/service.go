package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-grc/aegis/internal/authz"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Service handles account business logic.
type Service struct {
	repo   Repository
	audit  shared.Recorder
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, audit shared.Recorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopRecorder{}
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns a page of accounts.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]User, int, error) {
	return s.repo.List(ctx, filters)
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers an account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, u User, password string, actorID int64) (User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if len(password) < 8 {
		return User{}, fmt.Errorf("users: password must be at least 8 characters: %w", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	created, err := s.repo.Insert(ctx, u)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "user.created", created.ID)
	return created, nil
}

// Authenticate verifies email and password against a live account. A wrong
// password and an unknown email both come back as the same unauthorized
// error so the login form cannot be used to enumerate accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, fmt.Errorf("users: invalid credentials: %w", httpx.ErrUnauthorized)
	}
	if !u.IsActive {
		return User{}, fmt.Errorf("users: account disabled: %w", httpx.ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, fmt.Errorf("users: invalid credentials: %w", httpx.ErrUnauthorized)
	}
	return u, nil
}

// Deactivate disables an account. Tokens already issued keep working until
// they expire; permission checks fail earlier than that because Lookup
// rejects inactive users.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "user.deactivated", id)
	return nil
}

// Lookup implements authz.UserDirectory.
func (s *Service) Lookup(ctx context.Context, userID int64) (authz.UserInfo, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return authz.UserInfo{}, err
	}
	if !u.IsActive {
		return authz.UserInfo{}, fmt.Errorf("users: user %d inactive: %w", userID, httpx.ErrNotFound)
	}
	return authz.UserInfo{ID: u.ID, Role: u.Role, BusinessUnitID: u.BusinessUnitID}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, userID int64) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: fmt.Sprintf("%d", userID),
	})
	if err != nil && s.logger != nil {
		s.logger.Error("users record audit", slog.Any("error", err))
	}
}
