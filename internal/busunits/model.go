package busunits

import (
	"time"

	"github.com/google/uuid"
)

// BusinessUnit is an organizational scope. Row-level conditions on
// permission rules and scoped role assignments both reference these IDs.
type BusinessUnit struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	ParentID  *uuid.UUID `json:"parentId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
