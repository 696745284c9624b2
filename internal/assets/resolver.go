package assets

import (
	"context"

	"github.com/google/uuid"
)

// Resolver turns an asset reference into its display name and identifier.
// Implementations must fail with a not-found error when the asset is absent
// or soft-deleted; callers rely on that to validate references before use.
type Resolver interface {
	Resolve(ctx context.Context, kind Kind, id uuid.UUID) (Info, error)
}
