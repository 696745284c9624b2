package assets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Service manages the five asset inventories.
type Service struct {
	repo   *Repository
	audit  shared.Recorder
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo *Repository, audit shared.Recorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopRecorder{}
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns a page of one inventory.
func (s *Service) List(ctx context.Context, kind Kind, filters shared.ListFilters) ([]Asset, int, error) {
	return s.repo.List(ctx, kind, filters)
}

// Get fetches one live asset.
func (s *Service) Get(ctx context.Context, kind Kind, id uuid.UUID) (Asset, error) {
	return s.repo.Get(ctx, kind, id)
}

// Create registers a new asset. Physical assets and suppliers carry their
// own business identifier; the remaining kinds are identified by row id.
func (s *Service) Create(ctx context.Context, asset Asset, actorID int64) (Asset, error) {
	asset.Name = strings.TrimSpace(asset.Name)
	asset.Identifier = strings.TrimSpace(asset.Identifier)
	if asset.Name == "" {
		return Asset{}, fmt.Errorf("assets: name is required: %w", httpx.ErrValidation)
	}
	if requiresIdentifier(asset.Kind) && asset.Identifier == "" {
		return Asset{}, fmt.Errorf("assets: identifier is required for %s assets: %w", asset.Kind, httpx.ErrValidation)
	}

	created, err := s.repo.Create(ctx, asset)
	if err != nil {
		return Asset{}, err
	}
	s.recordAudit(ctx, actorID, "asset.created", created)
	return created, nil
}

// Delete soft-deletes an asset. Dependency edges referencing it are left in
// place; the dashboard calls the dependency check endpoint first to warn.
func (s *Service) Delete(ctx context.Context, kind Kind, id uuid.UUID, actorID int64) error {
	if err := s.repo.SoftDelete(ctx, kind, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "asset.deleted", Asset{ID: id, Kind: kind})
	return nil
}

func requiresIdentifier(kind Kind) bool {
	return kind == KindPhysical || kind == KindSupplier
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, asset Asset) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   string(asset.Kind) + "_asset",
		EntityID: asset.ID.String(),
	})
	if err != nil && s.logger != nil {
		s.logger.Error("assets record audit", slog.Any("error", err))
	}
}
