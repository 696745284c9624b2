// Package dependencies maintains the directed dependency graph between
// asset records and answers impact-analysis queries over it.
package dependencies

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-grc/aegis/internal/assets"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
)

// RelationshipType qualifies a directed edge: source <relationship> target.
type RelationshipType string

const (
	RelDependsOn  RelationshipType = "depends_on"
	RelUses       RelationshipType = "uses"
	RelContains   RelationshipType = "contains"
	RelHosts      RelationshipType = "hosts"
	RelProcesses  RelationshipType = "processes"
	RelStores     RelationshipType = "stores"
	RelConnectsTo RelationshipType = "connects_to"
)

// ParseRelationshipType validates a raw relationship string.
func ParseRelationshipType(raw string) (RelationshipType, error) {
	switch RelationshipType(raw) {
	case RelDependsOn, RelUses, RelContains, RelHosts, RelProcesses, RelStores, RelConnectsTo:
		return RelationshipType(raw), nil
	}
	return "", fmt.Errorf("dependencies: unknown relationship type %q: %w", raw, httpx.ErrValidation)
}

// Dependency is a persisted directed edge. The 4-tuple (source kind, source
// id, target kind, target id) is unique regardless of relationship type.
type Dependency struct {
	ID           uuid.UUID
	SourceKind   assets.Kind
	SourceID     uuid.UUID
	TargetKind   assets.Kind
	TargetID     uuid.UUID
	Relationship RelationshipType
	Description  string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Source returns the edge's source reference.
func (d Dependency) Source() assets.Ref {
	return assets.Ref{Kind: d.SourceKind, ID: d.SourceID}
}

// Target returns the edge's target reference.
func (d Dependency) Target() assets.Ref {
	return assets.Ref{Kind: d.TargetKind, ID: d.TargetID}
}

// Edge is a dependency enriched with both endpoints' resolved display data.
// The names are denormalized at read time, never stored.
type Edge struct {
	ID                    uuid.UUID        `json:"id"`
	SourceAssetType       assets.Kind      `json:"sourceAssetType"`
	SourceAssetID         uuid.UUID        `json:"sourceAssetId"`
	SourceAssetName       string           `json:"sourceAssetName"`
	SourceAssetIdentifier string           `json:"sourceAssetIdentifier"`
	TargetAssetType       assets.Kind      `json:"targetAssetType"`
	TargetAssetID         uuid.UUID        `json:"targetAssetId"`
	TargetAssetName       string           `json:"targetAssetName"`
	TargetAssetIdentifier string           `json:"targetAssetIdentifier"`
	RelationshipType      RelationshipType `json:"relationshipType"`
	Description           string           `json:"description,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

// CheckResult summarizes an asset's graph attachment before delete/update.
// Sample edges are capped for display; counts are exact.
type CheckResult struct {
	HasDependencies bool   `json:"hasDependencies"`
	OutgoingCount   int    `json:"outgoingCount"`
	IncomingCount   int    `json:"incomingCount"`
	TotalCount      int    `json:"totalCount"`
	Outgoing        []Edge `json:"outgoing"`
	Incoming        []Edge `json:"incoming"`
}

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// ChainNode is one asset reached by a bounded traversal, with the path taken
// to reach it.
type ChainNode struct {
	AssetType       assets.Kind  `json:"assetType"`
	AssetID         uuid.UUID    `json:"assetId"`
	AssetName       string       `json:"assetName"`
	AssetIdentifier string       `json:"assetIdentifier"`
	Depth           int          `json:"depth"`
	Path            []assets.Ref `json:"path"`
}

// ChainResult is the outcome of a dependency chain traversal.
type ChainResult struct {
	Chain           []ChainNode `json:"chain"`
	TotalCount      int         `json:"totalCount"`
	MaxDepthReached int         `json:"maxDepthReached"`
}
