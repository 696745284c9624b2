// Package assets maintains the five asset inventories and resolves asset
// references for the rest of the platform. An asset reference is always a
// (kind, id) pair; there is no unified asset table.
package assets

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/platform/httpx"
)

// Kind partitions all asset records into five disjoint inventories.
type Kind string

const (
	KindPhysical    Kind = "physical"
	KindInformation Kind = "information"
	KindApplication Kind = "application"
	KindSoftware    Kind = "software"
	KindSupplier    Kind = "supplier"
)

// Kinds lists every asset kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindPhysical, KindInformation, KindApplication, KindSoftware, KindSupplier}
}

// ParseKind validates a raw asset kind string.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindPhysical, KindInformation, KindApplication, KindSoftware, KindSupplier:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("assets: unknown asset type %q: %w", raw, httpx.ErrInvalidOperation)
}

// Ref points at one asset record.
type Ref struct {
	Kind Kind      `json:"assetType"`
	ID   uuid.UUID `json:"assetId"`
}

// Info carries the display name and business identifier resolved for a reference.
type Info struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// Asset is the uniform projection served by the inventory endpoints. The
// backing tables differ per kind; resolution dispatches on Kind.
type Asset struct {
	ID             uuid.UUID  `json:"id"`
	Kind           Kind       `json:"assetType"`
	Name           string     `json:"name"`
	Identifier     string     `json:"identifier"`
	Description    string     `json:"description,omitempty"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId,omitempty"`
	OwnerID        *int64     `json:"ownerId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
