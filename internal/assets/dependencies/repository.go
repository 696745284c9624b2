package dependencies

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-grc/aegis/internal/assets"
	"github.com/aegis-grc/aegis/internal/platform/db"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
)

// Repository persists dependency edges.
type Repository interface {
	Insert(ctx context.Context, dep Dependency) (Dependency, error)
	Exists(ctx context.Context, source, target assets.Ref) (bool, error)
	ListFrom(ctx context.Context, source assets.Ref, limit int) ([]Dependency, error)
	ListTo(ctx context.Context, target assets.Ref, limit int) ([]Dependency, error)
	CountFrom(ctx context.Context, source assets.Ref) (int, error)
	CountTo(ctx context.Context, target assets.Ref) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const dependencyColumns = `id, source_asset_type, source_asset_id, target_asset_type, target_asset_id, relationship_type, description, created_by, created_at, updated_at`

func (r *repository) Insert(ctx context.Context, dep Dependency) (Dependency, error) {
	if dep.ID == uuid.Nil {
		dep.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO asset_dependencies
		(id, source_asset_type, source_asset_id, target_asset_type, target_asset_id, relationship_type, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`,
		dep.ID, dep.SourceKind, dep.SourceID, dep.TargetKind, dep.TargetID, dep.Relationship, dep.Description, dep.CreatedBy).
		Scan(&dep.CreatedAt, &dep.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Dependency{}, fmt.Errorf("dependencies: edge already exists: %w", httpx.ErrConflict)
		}
		return Dependency{}, fmt.Errorf("dependencies: insert: %w", err)
	}
	return dep, nil
}

func (r *repository) Exists(ctx context.Context, source, target assets.Ref) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM asset_dependencies
		WHERE source_asset_type = $1 AND source_asset_id = $2 AND target_asset_type = $3 AND target_asset_id = $4)`,
		source.Kind, source.ID, target.Kind, target.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dependencies: exists: %w", err)
	}
	return exists, nil
}

func (r *repository) ListFrom(ctx context.Context, source assets.Ref, limit int) ([]Dependency, error) {
	return r.list(ctx, `source_asset_type = $1 AND source_asset_id = $2`, source, limit)
}

func (r *repository) ListTo(ctx context.Context, target assets.Ref, limit int) ([]Dependency, error) {
	return r.list(ctx, `target_asset_type = $1 AND target_asset_id = $2`, target, limit)
}

func (r *repository) list(ctx context.Context, where string, ref assets.Ref, limit int) ([]Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM asset_dependencies WHERE ` + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}
	rows, err := r.pool.Query(ctx, query, ref.Kind, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("dependencies: list: %w", err)
	}
	defer rows.Close()

	var deps []Dependency
	for rows.Next() {
		var d Dependency
		if err := rows.Scan(&d.ID, &d.SourceKind, &d.SourceID, &d.TargetKind, &d.TargetID, &d.Relationship, &d.Description, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

func (r *repository) CountFrom(ctx context.Context, source assets.Ref) (int, error) {
	return r.count(ctx, `source_asset_type = $1 AND source_asset_id = $2`, source)
}

func (r *repository) CountTo(ctx context.Context, target assets.Ref) (int, error) {
	return r.count(ctx, `target_asset_type = $1 AND target_asset_id = $2`, target)
}

func (r *repository) count(ctx context.Context, where string, ref assets.Ref) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM asset_dependencies WHERE `+where, ref.Kind, ref.ID).Scan(&total); err != nil {
		return 0, fmt.Errorf("dependencies: count: %w", err)
	}
	return total, nil
}

// Delete removes an edge unconditionally; nothing downstream is revalidated.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM asset_dependencies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("dependencies: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dependencies: dependency %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}
