package busunits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-grc/aegis/internal/platform/db"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
)

// Repository defines data access for business units.
type Repository interface {
	List(ctx context.Context) ([]BusinessUnit, error)
	Get(ctx context.Context, id uuid.UUID) (BusinessUnit, error)
	Insert(ctx context.Context, bu BusinessUnit) (BusinessUnit, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const buColumns = `id, name, code, parent_id, created_at, updated_at`

func (r *repository) List(ctx context.Context) ([]BusinessUnit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+buColumns+` FROM business_units ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("busunits: list: %w", err)
	}
	defer rows.Close()

	var items []BusinessUnit
	for rows.Next() {
		var bu BusinessUnit
		if err := rows.Scan(&bu.ID, &bu.Name, &bu.Code, &bu.ParentID, &bu.CreatedAt, &bu.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, bu)
	}
	return items, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (BusinessUnit, error) {
	var bu BusinessUnit
	err := r.pool.QueryRow(ctx, `SELECT `+buColumns+` FROM business_units WHERE id = $1`, id).
		Scan(&bu.ID, &bu.Name, &bu.Code, &bu.ParentID, &bu.CreatedAt, &bu.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BusinessUnit{}, fmt.Errorf("busunits: unit %s: %w", id, httpx.ErrNotFound)
	}
	if err != nil {
		return BusinessUnit{}, fmt.Errorf("busunits: get: %w", err)
	}
	return bu, nil
}

func (r *repository) Insert(ctx context.Context, bu BusinessUnit) (BusinessUnit, error) {
	if bu.ID == uuid.Nil {
		bu.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO business_units (id, name, code, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING created_at, updated_at`,
		bu.ID, bu.Name, bu.Code, bu.ParentID).
		Scan(&bu.CreatedAt, &bu.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return BusinessUnit{}, fmt.Errorf("busunits: code already used: %w", httpx.ErrConflict)
		}
		return BusinessUnit{}, fmt.Errorf("busunits: insert: %w", err)
	}
	return bu, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM business_units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("busunits: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("busunits: unit %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}
