package busunits

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Service handles business unit logic.
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

// List returns all units.
func (s *Service) List(ctx context.Context) ([]BusinessUnit, error) {
	return s.repo.List(ctx)
}

// Get fetches one unit.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (BusinessUnit, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a unit. A parent, when given, must exist.
func (s *Service) Create(ctx context.Context, bu BusinessUnit, actorID int64) (BusinessUnit, error) {
	bu.Name = strings.TrimSpace(bu.Name)
	bu.Code = strings.ToUpper(strings.TrimSpace(bu.Code))
	if bu.Name == "" || bu.Code == "" {
		return BusinessUnit{}, fmt.Errorf("busunits: name and code are required: %w", httpx.ErrValidation)
	}
	if bu.ParentID != nil {
		if _, err := s.repo.Get(ctx, *bu.ParentID); err != nil {
			return BusinessUnit{}, err
		}
	}

	created, err := s.repo.Insert(ctx, bu)
	if err != nil {
		return BusinessUnit{}, err
	}
	s.recordAudit(ctx, actorID, "business_unit.created", created.ID)
	return created, nil
}

// Delete removes a unit.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "business_unit.deleted", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id uuid.UUID) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "business_unit",
		EntityID: id.String(),
	})
	if err != nil && s.logger != nil {
		s.logger.Error("busunits record audit", slog.Any("error", err))
	}
}
