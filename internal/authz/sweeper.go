package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sweeper removes long-expired role assignments. Evaluation already ignores
// expired rows; the sweep keeps the table from growing without bound while
// leaving a retention window for audit review.
type Sweeper struct {
	pool *pgxpool.Pool
}

// NewSweeper constructs a Sweeper.
func NewSweeper(pool *pgxpool.Pool) *Sweeper {
	return &Sweeper{pool: pool}
}

// PurgeExpired deletes assignments whose expiry is older than the retention
// window and reports how many rows went away.
func (s *Sweeper) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM role_assignments WHERE expires_at IS NOT NULL AND expires_at < $1`,
		time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("authz: purge expired assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}
