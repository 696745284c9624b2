package webhooks

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

// Repository persists webhook endpoints.
type Repository interface {
	List(ctx context.Context) ([]Endpoint, error)
	Get(ctx context.Context, id uuid.UUID) (Endpoint, error)
	ListForEvent(ctx context.Context, event string) ([]Endpoint, error)
	Insert(ctx context.Context, ep Endpoint) (Endpoint, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const endpointColumns = `id, url, secret, events, active, created_by, created_at, updated_at`

func (r *repository) List(ctx context.Context) ([]Endpoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("webhooks: list: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	ep, err := scanEndpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, fmt.Errorf("webhooks: endpoint %s: %w", id, httpx.ErrNotFound)
	}
	return ep, err
}

func (r *repository) ListForEvent(ctx context.Context, event string) ([]Endpoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE active AND $1 = ANY(events)`, event)
	if err != nil {
		return nil, fmt.Errorf("webhooks: list for event: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

func (r *repository) Insert(ctx context.Context, ep Endpoint) (Endpoint, error) {
	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO webhook_endpoints (id, url, secret, events, active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, NOW(), NOW())
		RETURNING active, created_at, updated_at`,
		ep.ID, ep.URL, ep.Secret, ep.Events, ep.CreatedBy).
		Scan(&ep.Active, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Endpoint{}, fmt.Errorf("webhooks: endpoint already registered: %w", httpx.ErrConflict)
		}
		return Endpoint{}, fmt.Errorf("webhooks: insert: %w", err)
	}
	return ep, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("webhooks: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhooks: endpoint %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Events, &ep.Active, &ep.CreatedBy, &ep.CreatedAt, &ep.UpdatedAt)
	return ep, err
}

func scanEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var items []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ep)
	}
	return items, rows.Err()
}
