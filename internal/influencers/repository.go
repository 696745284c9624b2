package influencers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// Repository defines data access for influencers.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Influencer, int, error)
	Get(ctx context.Context, id uuid.UUID) (Influencer, error)
	Insert(ctx context.Context, inf Influencer) (Influencer, error)
	Update(ctx context.Context, inf Influencer) (Influencer, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const influencerColumns = `id, category, name, description, jurisdiction, reference, business_unit_id, created_by, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Influencer, int, error) {
	where := ``
	args := []any{}
	if filters.Search != "" {
		where = ` WHERE (name ILIKE $1 OR reference ILIKE $1)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM influencers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("influencers: count: %w", err)
	}

	query := `SELECT ` + influencerColumns + ` FROM influencers` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, filters.Limit, filters.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("influencers: list: %w", err)
	}
	defer rows.Close()

	var items []Influencer
	for rows.Next() {
		inf, err := scanInfluencer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inf)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Influencer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+influencerColumns+` FROM influencers WHERE id = $1`, id)
	inf, err := scanInfluencer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Influencer{}, fmt.Errorf("influencers: influencer %s: %w", id, httpx.ErrNotFound)
	}
	return inf, err
}

func (r *repository) Insert(ctx context.Context, inf Influencer) (Influencer, error) {
	if inf.ID == uuid.Nil {
		inf.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO influencers
		(id, category, name, description, jurisdiction, reference, business_unit_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`,
		inf.ID, inf.Category, inf.Name, inf.Description, inf.Jurisdiction, inf.Reference, inf.BusinessUnitID, inf.CreatedBy).
		Scan(&inf.CreatedAt, &inf.UpdatedAt)
	if err != nil {
		return Influencer{}, fmt.Errorf("influencers: insert: %w", err)
	}
	return inf, nil
}

func (r *repository) Update(ctx context.Context, inf Influencer) (Influencer, error) {
	err := r.pool.QueryRow(ctx, `UPDATE influencers SET
		category = $2, name = $3, description = $4, jurisdiction = $5, reference = $6, business_unit_id = $7, updated_at = NOW()
		WHERE id = $1 RETURNING created_by, created_at, updated_at`,
		inf.ID, inf.Category, inf.Name, inf.Description, inf.Jurisdiction, inf.Reference, inf.BusinessUnitID).
		Scan(&inf.CreatedBy, &inf.CreatedAt, &inf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Influencer{}, fmt.Errorf("influencers: influencer %s: %w", inf.ID, httpx.ErrNotFound)
	}
	if err != nil {
		return Influencer{}, fmt.Errorf("influencers: update: %w", err)
	}
	return inf, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM influencers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("influencers: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("influencers: influencer %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func scanInfluencer(row pgx.Row) (Influencer, error) {
	var inf Influencer
	err := row.Scan(&inf.ID, &inf.Category, &inf.Name, &inf.Description, &inf.Jurisdiction, &inf.Reference, &inf.BusinessUnitID, &inf.CreatedBy, &inf.CreatedAt, &inf.UpdatedAt)
	return inf, err
}
