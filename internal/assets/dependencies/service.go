package dependencies

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aegis-grc/aegis/internal/assets"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// checkSampleLimit caps the sample edges returned by Check per direction.
const checkSampleLimit = 10

// resolveConcurrency bounds parallel resolver calls during enrichment.
const resolveConcurrency = 8

// Service implements graph operations over the dependency edge set.
type Service struct {
	repo     Repository
	resolver assets.Resolver
	audit    shared.Recorder
	events   shared.Publisher
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, resolver assets.Resolver, audit shared.Recorder, events shared.Publisher, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopRecorder{}
	}
	if events == nil {
		events = shared.NopPublisher{}
	}
	return &Service{repo: repo, resolver: resolver, audit: audit, events: events, logger: logger}
}

// CreateInput describes a new edge from an already-identified source asset.
type CreateInput struct {
	TargetKind   assets.Kind
	TargetID     uuid.UUID
	Relationship RelationshipType
	Description  string
}

// Create adds a directed edge after verifying both endpoints resolve to
// real, non-deleted assets. Self-dependencies and duplicate edges are
// rejected. The duplicate check races with concurrent creates; the unique
// index backs it up and the repository reports that as the same conflict.
func (s *Service) Create(ctx context.Context, sourceKind assets.Kind, sourceID uuid.UUID, input CreateInput, userID int64) (Edge, error) {
	source := assets.Ref{Kind: sourceKind, ID: sourceID}
	target := assets.Ref{Kind: input.TargetKind, ID: input.TargetID}

	if source == target {
		return Edge{}, fmt.Errorf("dependencies: an asset cannot depend on itself: %w", httpx.ErrInvalidOperation)
	}

	exists, err := s.repo.Exists(ctx, source, target)
	if err != nil {
		return Edge{}, err
	}
	if exists {
		return Edge{}, fmt.Errorf("dependencies: this dependency already exists: %w", httpx.ErrConflict)
	}

	sourceInfo, err := s.resolver.Resolve(ctx, source.Kind, source.ID)
	if err != nil {
		return Edge{}, err
	}
	targetInfo, err := s.resolver.Resolve(ctx, target.Kind, target.ID)
	if err != nil {
		return Edge{}, err
	}

	dep, err := s.repo.Insert(ctx, Dependency{
		SourceKind:   source.Kind,
		SourceID:     source.ID,
		TargetKind:   target.Kind,
		TargetID:     target.ID,
		Relationship: input.Relationship,
		Description:  input.Description,
		CreatedBy:    userID,
	})
	if err != nil {
		return Edge{}, err
	}

	s.recordAudit(ctx, userID, "dependency.created", dep.ID, map[string]any{
		"source": source, "target": target, "relationship": dep.Relationship,
	})
	edge := newEdge(dep, sourceInfo, targetInfo)
	s.publish(ctx, shared.EventDependencyCreated, edge)
	return edge, nil
}

// FindAll lists the outgoing edges of an asset, each enriched with the
// target's resolved display data. Fails with not-found when the asset itself
// does not resolve.
func (s *Service) FindAll(ctx context.Context, kind assets.Kind, id uuid.UUID) ([]Edge, error) {
	ref := assets.Ref{Kind: kind, ID: id}
	sourceInfo, err := s.resolver.Resolve(ctx, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	deps, err := s.repo.ListFrom(ctx, ref, 0)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, deps, ref, sourceInfo)
}

// FindIncoming lists the incoming edges of an asset, each enriched with the
// source's resolved display data.
func (s *Service) FindIncoming(ctx context.Context, kind assets.Kind, id uuid.UUID) ([]Edge, error) {
	ref := assets.Ref{Kind: kind, ID: id}
	targetInfo, err := s.resolver.Resolve(ctx, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	deps, err := s.repo.ListTo(ctx, ref, 0)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, deps, ref, targetInfo)
}

// Check reports whether an asset participates in the graph, with exact
// counts and up to ten sample edges per direction. Unlike FindAll, an asset
// that fails to resolve yields an all-zero result instead of an error: the
// dashboard calls this before delete, where "gone" and "unattached" read the
// same. Known asymmetry, keep unless product says otherwise.
func (s *Service) Check(ctx context.Context, kind assets.Kind, id uuid.UUID) (CheckResult, error) {
	ref := assets.Ref{Kind: kind, ID: id}
	info, err := s.resolver.Resolve(ctx, ref.Kind, ref.ID)
	if err != nil {
		return CheckResult{Outgoing: []Edge{}, Incoming: []Edge{}}, nil
	}

	outgoing, err := s.repo.ListFrom(ctx, ref, checkSampleLimit)
	if err != nil {
		return CheckResult{}, err
	}
	incoming, err := s.repo.ListTo(ctx, ref, checkSampleLimit)
	if err != nil {
		return CheckResult{}, err
	}
	outgoingCount, err := s.repo.CountFrom(ctx, ref)
	if err != nil {
		return CheckResult{}, err
	}
	incomingCount, err := s.repo.CountTo(ctx, ref)
	if err != nil {
		return CheckResult{}, err
	}

	outgoingEdges, err := s.enrich(ctx, outgoing, ref, info)
	if err != nil {
		return CheckResult{}, err
	}
	incomingEdges, err := s.enrich(ctx, incoming, ref, info)
	if err != nil {
		return CheckResult{}, err
	}

	return CheckResult{
		HasDependencies: outgoingCount > 0 || incomingCount > 0,
		OutgoingCount:   outgoingCount,
		IncomingCount:   incomingCount,
		TotalCount:      outgoingCount + incomingCount,
		Outgoing:        outgoingEdges,
		Incoming:        incomingEdges,
	}, nil
}

// Chain performs a bounded breadth-first traversal from an asset, following
// edges in the requested direction. Each visited asset is recorded once per
// traversal (global visited set keyed by kind and id) with the path taken to
// reach it first; the edge set is not guaranteed acyclic, so the visited set
// is what terminates cycles.
func (s *Service) Chain(ctx context.Context, kind assets.Kind, id uuid.UUID, maxDepth int, direction Direction) (ChainResult, error) {
	start := assets.Ref{Kind: kind, ID: id}
	if _, err := s.resolver.Resolve(ctx, start.Kind, start.ID); err != nil {
		return ChainResult{}, err
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	type frame struct {
		ref   assets.Ref
		depth int
		path  []assets.Ref
	}

	visited := map[assets.Ref]struct{}{}
	chain := []ChainNode{}
	queue := []frame{{ref: start}}
	maxReached := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if _, seen := visited[current.ref]; seen || current.depth > maxDepth {
			continue
		}
		visited[current.ref] = struct{}{}
		if current.depth > maxReached {
			maxReached = current.depth
		}

		if current.depth > 0 {
			info, err := s.resolver.Resolve(ctx, current.ref.Kind, current.ref.ID)
			if err != nil {
				return ChainResult{}, err
			}
			chain = append(chain, ChainNode{
				AssetType:       current.ref.Kind,
				AssetID:         current.ref.ID,
				AssetName:       info.Name,
				AssetIdentifier: info.Identifier,
				Depth:           current.depth,
				Path:            append([]assets.Ref(nil), current.path...),
			})
		}

		if current.depth >= maxDepth {
			continue
		}

		nextPath := append(append([]assets.Ref(nil), current.path...), current.ref)

		if direction == DirectionOutgoing || direction == DirectionBoth {
			deps, err := s.repo.ListFrom(ctx, current.ref, 0)
			if err != nil {
				return ChainResult{}, err
			}
			for _, dep := range deps {
				if _, seen := visited[dep.Target()]; !seen {
					queue = append(queue, frame{ref: dep.Target(), depth: current.depth + 1, path: nextPath})
				}
			}
		}
		if direction == DirectionIncoming || direction == DirectionBoth {
			deps, err := s.repo.ListTo(ctx, current.ref, 0)
			if err != nil {
				return ChainResult{}, err
			}
			for _, dep := range deps {
				if _, seen := visited[dep.Source()]; !seen {
					queue = append(queue, frame{ref: dep.Source(), depth: current.depth + 1, path: nextPath})
				}
			}
		}
	}

	return ChainResult{Chain: chain, TotalCount: len(chain), MaxDepthReached: maxReached}, nil
}

// Remove deletes an edge by id. No cascade, no revalidation of what remains.
func (s *Service) Remove(ctx context.Context, id uuid.UUID, userID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "dependency.deleted", id, nil)
	s.publish(ctx, shared.EventDependencyDeleted, map[string]any{"dependencyId": id})
	return nil
}

func (s *Service) publish(ctx context.Context, event string, payload any) {
	if err := s.events.Publish(ctx, event, payload); err != nil && s.logger != nil {
		s.logger.Error("dependencies publish "+event, slog.Any("error", err))
	}
}

// enrich resolves the counterpart endpoint of each edge relative to ref.
// One resolver call per edge, fanned out like the dashboard's original
// parallel fetch but bounded.
func (s *Service) enrich(ctx context.Context, deps []Dependency, ref assets.Ref, refInfo assets.Info) ([]Edge, error) {
	edges := make([]Edge, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for i, dep := range deps {
		i, dep := i, dep
		g.Go(func() error {
			other := dep.Target()
			if other == ref {
				other = dep.Source()
			}
			otherInfo, err := s.resolver.Resolve(gctx, other.Kind, other.ID)
			if err != nil {
				return err
			}
			if dep.Source() == ref {
				edges[i] = newEdge(dep, refInfo, otherInfo)
			} else {
				edges[i] = newEdge(dep, otherInfo, refInfo)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return edges, nil
}

func newEdge(dep Dependency, sourceInfo, targetInfo assets.Info) Edge {
	return Edge{
		ID:                    dep.ID,
		SourceAssetType:       dep.SourceKind,
		SourceAssetID:         dep.SourceID,
		SourceAssetName:       sourceInfo.Name,
		SourceAssetIdentifier: sourceInfo.Identifier,
		TargetAssetType:       dep.TargetKind,
		TargetAssetID:         dep.TargetID,
		TargetAssetName:       targetInfo.Name,
		TargetAssetIdentifier: targetInfo.Identifier,
		RelationshipType:      dep.Relationship,
		Description:           dep.Description,
		CreatedAt:             dep.CreatedAt,
		UpdatedAt:             dep.UpdatedAt,
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "asset_dependency", EntityID: id.String(), Meta: meta}); err != nil && s.logger != nil {
		s.logger.Error("dependencies record audit", slog.Any("error", err))
	}
}
