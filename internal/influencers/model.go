package influencers

import (
	"time"

	"github.com/google/uuid"
)

// Category separates external drivers (laws, regulations, contracts) from
// internal ones (policies, strategy).
type Category string

const (
	CategoryExternal Category = "external"
	CategoryInternal Category = "internal"
)

// Influencer is a governance driver that obligations trace back to.
type Influencer struct {
	ID             uuid.UUID  `json:"id"`
	Category       Category   `json:"category"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Jurisdiction   string     `json:"jurisdiction,omitempty"`
	Reference      string     `json:"reference,omitempty"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId,omitempty"`
	CreatedBy      int64      `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
