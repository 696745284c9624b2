package influencers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Service handles influencer business logic.
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

// List returns a page of influencers.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Influencer, int, error) {
	return s.repo.List(ctx, filters)
}

// Get fetches one influencer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Influencer, error) {
	return s.repo.Get(ctx, id)
}

// Create registers an influencer.
func (s *Service) Create(ctx context.Context, inf Influencer, actorID int64) (Influencer, error) {
	if err := validate(&inf); err != nil {
		return Influencer{}, err
	}
	inf.CreatedBy = actorID

	created, err := s.repo.Insert(ctx, inf)
	if err != nil {
		return Influencer{}, err
	}
	s.recordAudit(ctx, actorID, "influencer.created", created.ID)
	return created, nil
}

// Update replaces an influencer's mutable fields.
func (s *Service) Update(ctx context.Context, inf Influencer, actorID int64) (Influencer, error) {
	if err := validate(&inf); err != nil {
		return Influencer{}, err
	}
	updated, err := s.repo.Update(ctx, inf)
	if err != nil {
		return Influencer{}, err
	}
	s.recordAudit(ctx, actorID, "influencer.updated", updated.ID)
	return updated, nil
}

// Delete removes an influencer.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "influencer.deleted", id)
	return nil
}

func validate(inf *Influencer) error {
	inf.Name = strings.TrimSpace(inf.Name)
	if inf.Name == "" {
		return fmt.Errorf("influencers: name is required: %w", httpx.ErrValidation)
	}
	switch inf.Category {
	case CategoryExternal, CategoryInternal:
		return nil
	default:
		return fmt.Errorf("influencers: unknown category %q: %w", inf.Category, httpx.ErrValidation)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id uuid.UUID) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "influencer",
		EntityID: id.String(),
	})
	if err != nil && s.logger != nil {
		s.logger.Error("influencers record audit", slog.Any("error", err))
	}
}
