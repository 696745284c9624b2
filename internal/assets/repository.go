package assets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-grc/aegis/internal/platform/db"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// kindMeta maps an asset kind onto its backing table. identifierExpr is the
// column (or expression) exposed as the business identifier; for kinds
// without a dedicated identifier column the row id doubles as one.
type kindMeta struct {
	table          string
	nameCol        string
	identifierExpr string
}

var kindTables = map[Kind]kindMeta{
	KindPhysical:    {table: "physical_assets", nameCol: "asset_description", identifierExpr: "unique_identifier"},
	KindInformation: {table: "information_assets", nameCol: "name", identifierExpr: "id::text"},
	KindApplication: {table: "business_applications", nameCol: "application_name", identifierExpr: "id::text"},
	KindSoftware:    {table: "software_assets", nameCol: "software_name", identifierExpr: "id::text"},
	KindSupplier:    {table: "suppliers", nameCol: "supplier_name", identifierExpr: "unique_identifier"},
}

// Repository provides PostgreSQL backed persistence for all five inventories
// through a single kind-dispatched implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Resolve returns the display name and identifier of a live asset.
// Blank names fall back to the identifier, matching what the dashboard shows.
func (r *Repository) Resolve(ctx context.Context, kind Kind, id uuid.UUID) (Info, error) {
	meta, ok := kindTables[kind]
	if !ok {
		return Info{}, fmt.Errorf("assets: unknown asset type %q: %w", kind, httpx.ErrInvalidOperation)
	}
	query := fmt.Sprintf(
		`SELECT COALESCE(NULLIF(%s, ''), %s), %s FROM %s WHERE id = $1 AND deleted_at IS NULL`,
		meta.nameCol, meta.identifierExpr, meta.identifierExpr, meta.table,
	)
	var info Info
	if err := r.pool.QueryRow(ctx, query, id).Scan(&info.Name, &info.Identifier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Info{}, fmt.Errorf("assets: %s asset %s: %w", kind, id, httpx.ErrNotFound)
		}
		return Info{}, fmt.Errorf("assets: resolve %s %s: %w", kind, id, err)
	}
	return info, nil
}

// List returns a page of one inventory.
func (r *Repository) List(ctx context.Context, kind Kind, filters shared.ListFilters) ([]Asset, int, error) {
	meta, ok := kindTables[kind]
	if !ok {
		return nil, 0, fmt.Errorf("assets: unknown asset type %q: %w", kind, httpx.ErrInvalidOperation)
	}

	where := ` WHERE deleted_at IS NULL`
	args := []any{}
	if filters.Search != "" {
		where += fmt.Sprintf(` AND (%s ILIKE $1 OR %s ILIKE $1)`, meta.nameCol, meta.identifierExpr)
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+meta.table+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("assets: count %s: %w", kind, err)
	}

	query := fmt.Sprintf(
		`SELECT id, COALESCE(NULLIF(%s, ''), %s), %s, COALESCE(description, ''), business_unit_id, owner_id, created_at, updated_at FROM %s`,
		meta.nameCol, meta.identifierExpr, meta.identifierExpr, meta.table,
	) + where + ` ORDER BY ` + sortOrder(meta, filters.SortBy, filters.SortDir)

	argCount := len(args)
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("assets: list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a := Asset{Kind: kind}
		if err := rows.Scan(&a.ID, &a.Name, &a.Identifier, &a.Description, &a.BusinessUnitID, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Get fetches one live asset.
func (r *Repository) Get(ctx context.Context, kind Kind, id uuid.UUID) (Asset, error) {
	meta, ok := kindTables[kind]
	if !ok {
		return Asset{}, fmt.Errorf("assets: unknown asset type %q: %w", kind, httpx.ErrInvalidOperation)
	}
	query := fmt.Sprintf(
		`SELECT id, COALESCE(NULLIF(%s, ''), %s), %s, COALESCE(description, ''), business_unit_id, owner_id, created_at, updated_at FROM %s WHERE id = $1 AND deleted_at IS NULL`,
		meta.nameCol, meta.identifierExpr, meta.identifierExpr, meta.table,
	)
	a := Asset{Kind: kind}
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Identifier, &a.Description, &a.BusinessUnitID, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, fmt.Errorf("assets: %s asset %s: %w", kind, id, httpx.ErrNotFound)
		}
		return Asset{}, fmt.Errorf("assets: get %s %s: %w", kind, id, err)
	}
	return a, nil
}

// Create inserts a new inventory record. Kinds without an identifier column
// use the generated row id as their identifier.
func (r *Repository) Create(ctx context.Context, asset Asset) (Asset, error) {
	meta, ok := kindTables[asset.Kind]
	if !ok {
		return Asset{}, fmt.Errorf("assets: unknown asset type %q: %w", asset.Kind, httpx.ErrInvalidOperation)
	}
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	now := time.Now().UTC()

	var query string
	args := []any{asset.ID, asset.Name, asset.Description, asset.BusinessUnitID, asset.OwnerID, now}
	if hasIdentifierColumn(meta) {
		query = fmt.Sprintf(
			`INSERT INTO %s (id, %s, description, business_unit_id, owner_id, created_at, updated_at, %s) VALUES ($1, $2, $3, $4, $5, $6, $6, $7)`,
			meta.table, meta.nameCol, meta.identifierExpr,
		)
		args = append(args, asset.Identifier)
	} else {
		query = fmt.Sprintf(
			`INSERT INTO %s (id, %s, description, business_unit_id, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			meta.table, meta.nameCol,
		)
		asset.Identifier = asset.ID.String()
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return Asset{}, fmt.Errorf("assets: %s identifier %q already exists: %w", asset.Kind, asset.Identifier, httpx.ErrConflict)
		}
		return Asset{}, fmt.Errorf("assets: create %s: %w", asset.Kind, err)
	}
	asset.CreatedAt = now
	asset.UpdatedAt = now
	return asset, nil
}

// SoftDelete marks an asset deleted without removing the row. Dependency
// edges referencing it survive; resolution simply starts failing.
func (r *Repository) SoftDelete(ctx context.Context, kind Kind, id uuid.UUID) error {
	meta, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("assets: unknown asset type %q: %w", kind, httpx.ErrInvalidOperation)
	}
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, meta.table), id)
	if err != nil {
		return fmt.Errorf("assets: delete %s %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assets: %s asset %s: %w", kind, id, httpx.ErrNotFound)
	}
	return nil
}

func hasIdentifierColumn(meta kindMeta) bool {
	return meta.identifierExpr != "id::text"
}

func sortOrder(meta kindMeta, sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "identifier":
		return meta.identifierExpr + " " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return meta.nameCol + " " + dir
	}
}
