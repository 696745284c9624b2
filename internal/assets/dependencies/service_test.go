package dependencies

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegis-grc/aegis/internal/assets"
	"github.com/aegis-grc/aegis/internal/platform/httpx"
	"github.com/aegis-grc/aegis/internal/shared"
)

// fakeGraph is an in-memory Repository over a plain edge slice.
type fakeGraph struct {
	deps []Dependency
}

func (g *fakeGraph) Insert(_ context.Context, dep Dependency) (Dependency, error) {
	dep.ID = uuid.New()
	dep.CreatedAt = time.Now()
	dep.UpdatedAt = dep.CreatedAt
	g.deps = append(g.deps, dep)
	return dep, nil
}

func (g *fakeGraph) Exists(_ context.Context, source, target assets.Ref) (bool, error) {
	for _, d := range g.deps {
		if d.Source() == source && d.Target() == target {
			return true, nil
		}
	}
	return false, nil
}

func (g *fakeGraph) ListFrom(_ context.Context, source assets.Ref, limit int) ([]Dependency, error) {
	var out []Dependency
	for _, d := range g.deps {
		if d.Source() == source {
			out = append(out, d)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (g *fakeGraph) ListTo(_ context.Context, target assets.Ref, limit int) ([]Dependency, error) {
	var out []Dependency
	for _, d := range g.deps {
		if d.Target() == target {
			out = append(out, d)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (g *fakeGraph) CountFrom(ctx context.Context, source assets.Ref) (int, error) {
	deps, _ := g.ListFrom(ctx, source, 0)
	return len(deps), nil
}

func (g *fakeGraph) CountTo(ctx context.Context, target assets.Ref) (int, error) {
	deps, _ := g.ListTo(ctx, target, 0)
	return len(deps), nil
}

func (g *fakeGraph) Delete(_ context.Context, id uuid.UUID) error {
	for i, d := range g.deps {
		if d.ID == id {
			g.deps = append(g.deps[:i], g.deps[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dependencies: dependency %s: %w", id, httpx.ErrNotFound)
}

// fakeResolver resolves only the refs it was seeded with.
type fakeResolver map[assets.Ref]assets.Info

func (f fakeResolver) Resolve(_ context.Context, kind assets.Kind, id uuid.UUID) (assets.Info, error) {
	info, ok := f[assets.Ref{Kind: kind, ID: id}]
	if !ok {
		return assets.Info{}, fmt.Errorf("assets: %s asset %s: %w", kind, id, httpx.ErrNotFound)
	}
	return info, nil
}

type capturedEvent struct {
	name    string
	payload any
}

type recordingPublisher struct {
	events []capturedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event string, payload any) error {
	p.events = append(p.events, capturedEvent{name: event, payload: payload})
	return nil
}

func newGraphService(repo Repository, resolver assets.Resolver, events shared.Publisher) *Service {
	return NewService(repo, resolver, shared.NopRecorder{}, events, slog.Default())
}

func seedEdge(g *fakeGraph, source, target assets.Ref, rel RelationshipType) Dependency {
	dep, _ := g.Insert(context.Background(), Dependency{
		SourceKind:   source.Kind,
		SourceID:     source.ID,
		TargetKind:   target.Kind,
		TargetID:     target.ID,
		Relationship: rel,
		CreatedBy:    1,
	})
	return dep
}

func TestCreateRejectsSelfDependency(t *testing.T) {
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	repo := &fakeGraph{}
	svc := newGraphService(repo, fakeResolver{app: {Name: "Billing"}}, nil)

	_, err := svc.Create(context.Background(), app.Kind, app.ID, CreateInput{
		TargetKind:   app.Kind,
		TargetID:     app.ID,
		Relationship: RelDependsOn,
	}, 1)

	require.ErrorIs(t, err, httpx.ErrInvalidOperation)
	require.Empty(t, repo.deps)
}

func TestCreateRejectsDuplicateEdge(t *testing.T) {
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	sw := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	repo := &fakeGraph{}
	seedEdge(repo, app, sw, RelUses)
	svc := newGraphService(repo, fakeResolver{app: {Name: "Billing"}, sw: {Name: "PostgreSQL"}}, nil)

	_, err := svc.Create(context.Background(), app.Kind, app.ID, CreateInput{
		TargetKind:   sw.Kind,
		TargetID:     sw.ID,
		Relationship: RelDependsOn,
	}, 1)

	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Len(t, repo.deps, 1)
}

func TestCreateRequiresResolvableEndpoints(t *testing.T) {
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	repo := &fakeGraph{}
	svc := newGraphService(repo, fakeResolver{app: {Name: "Billing"}}, nil)

	_, err := svc.Create(context.Background(), app.Kind, app.ID, CreateInput{
		TargetKind:   assets.KindSoftware,
		TargetID:     uuid.New(),
		Relationship: RelUses,
	}, 1)

	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.Empty(t, repo.deps, "nothing is inserted when an endpoint does not resolve")
}

func TestCreateEnrichesAndPublishes(t *testing.T) {
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	sup := assets.Ref{Kind: assets.KindSupplier, ID: uuid.New()}
	repo := &fakeGraph{}
	events := &recordingPublisher{}
	svc := newGraphService(repo, fakeResolver{
		app: {Name: "Billing"},
		sup: {Name: "Acme Hosting", Identifier: "SUP-001"},
	}, events)

	edge, err := svc.Create(context.Background(), app.Kind, app.ID, CreateInput{
		TargetKind:   sup.Kind,
		TargetID:     sup.ID,
		Relationship: RelDependsOn,
		Description:  "hosting contract",
	}, 9)

	require.NoError(t, err)
	require.Equal(t, "Billing", edge.SourceAssetName)
	require.Equal(t, "Acme Hosting", edge.TargetAssetName)
	require.Equal(t, "SUP-001", edge.TargetAssetIdentifier)
	require.Equal(t, RelDependsOn, edge.RelationshipType)
	require.Len(t, repo.deps, 1)
	require.Equal(t, int64(9), repo.deps[0].CreatedBy)

	require.Len(t, events.events, 1)
	require.Equal(t, shared.EventDependencyCreated, events.events[0].name)
	require.Equal(t, edge, events.events[0].payload)
}

func TestFindAllResolvesCounterparts(t *testing.T) {
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	sw := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	info := assets.Ref{Kind: assets.KindInformation, ID: uuid.New()}
	repo := &fakeGraph{}
	seedEdge(repo, app, sw, RelUses)
	seedEdge(repo, app, info, RelProcesses)
	svc := newGraphService(repo, fakeResolver{
		app:  {Name: "Billing"},
		sw:   {Name: "PostgreSQL"},
		info: {Name: "Customer PII"},
	}, nil)

	edges, err := svc.FindAll(context.Background(), app.Kind, app.ID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	names := map[string]bool{}
	for _, e := range edges {
		require.Equal(t, "Billing", e.SourceAssetName)
		names[e.TargetAssetName] = true
	}
	require.True(t, names["PostgreSQL"])
	require.True(t, names["Customer PII"])
}

func TestFindAllUnknownAssetFails(t *testing.T) {
	svc := newGraphService(&fakeGraph{}, fakeResolver{}, nil)

	_, err := svc.FindAll(context.Background(), assets.KindPhysical, uuid.New())
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestFindIncomingResolvesSources(t *testing.T) {
	sw := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	repo := &fakeGraph{}
	seedEdge(repo, app, sw, RelUses)
	svc := newGraphService(repo, fakeResolver{
		app: {Name: "Billing"},
		sw:  {Name: "PostgreSQL"},
	}, nil)

	edges, err := svc.FindIncoming(context.Background(), sw.Kind, sw.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "Billing", edges[0].SourceAssetName)
	require.Equal(t, "PostgreSQL", edges[0].TargetAssetName)
}

func TestCheckUnknownAssetReadsUnattached(t *testing.T) {
	svc := newGraphService(&fakeGraph{}, fakeResolver{}, nil)

	result, err := svc.Check(context.Background(), assets.KindSupplier, uuid.New())
	require.NoError(t, err)
	require.False(t, result.HasDependencies)
	require.Zero(t, result.TotalCount)
	require.NotNil(t, result.Outgoing)
	require.NotNil(t, result.Incoming)
	require.Empty(t, result.Outgoing)
	require.Empty(t, result.Incoming)
}

func TestCheckCountsBothDirections(t *testing.T) {
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	sw := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	phys := assets.Ref{Kind: assets.KindPhysical, ID: uuid.New()}
	repo := &fakeGraph{}
	seedEdge(repo, app, sw, RelUses)
	seedEdge(repo, phys, app, RelHosts)
	svc := newGraphService(repo, fakeResolver{
		app:  {Name: "Billing"},
		sw:   {Name: "PostgreSQL"},
		phys: {Name: "Rack 12", Identifier: "DC-12"},
	}, nil)

	result, err := svc.Check(context.Background(), app.Kind, app.ID)
	require.NoError(t, err)
	require.True(t, result.HasDependencies)
	require.Equal(t, 1, result.OutgoingCount)
	require.Equal(t, 1, result.IncomingCount)
	require.Equal(t, 2, result.TotalCount)
	require.Len(t, result.Outgoing, 1)
	require.Equal(t, "PostgreSQL", result.Outgoing[0].TargetAssetName)
	require.Len(t, result.Incoming, 1)
	require.Equal(t, "Rack 12", result.Incoming[0].SourceAssetName)
}

func TestChainTerminatesOnCycle(t *testing.T) {
	a := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	b := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	c := assets.Ref{Kind: assets.KindPhysical, ID: uuid.New()}
	repo := &fakeGraph{}
	seedEdge(repo, a, b, RelUses)
	seedEdge(repo, b, c, RelHosts)
	seedEdge(repo, c, a, RelDependsOn)
	svc := newGraphService(repo, fakeResolver{
		a: {Name: "A"}, b: {Name: "B"}, c: {Name: "C"},
	}, nil)

	result, err := svc.Chain(context.Background(), a.Kind, a.ID, 10, DirectionOutgoing)
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalCount, "the cycle back to the start is not revisited")
	require.Equal(t, 2, result.MaxDepthReached)

	require.Equal(t, "B", result.Chain[0].AssetName)
	require.Equal(t, 1, result.Chain[0].Depth)
	require.Equal(t, []assets.Ref{a}, result.Chain[0].Path)

	require.Equal(t, "C", result.Chain[1].AssetName)
	require.Equal(t, 2, result.Chain[1].Depth)
	require.Equal(t, []assets.Ref{a, b}, result.Chain[1].Path)
}

func TestChainRespectsDepthBound(t *testing.T) {
	a := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	b := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	c := assets.Ref{Kind: assets.KindPhysical, ID: uuid.New()}
	repo := &fakeGraph{}
	seedEdge(repo, a, b, RelUses)
	seedEdge(repo, b, c, RelHosts)
	svc := newGraphService(repo, fakeResolver{
		a: {Name: "A"}, b: {Name: "B"}, c: {Name: "C"},
	}, nil)

	result, err := svc.Chain(context.Background(), a.Kind, a.ID, 1, DirectionOutgoing)
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalCount)
	require.Equal(t, 1, result.MaxDepthReached)
	require.Equal(t, "B", result.Chain[0].AssetName)
}

func TestChainFollowsIncomingDirection(t *testing.T) {
	a := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	b := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	repo := &fakeGraph{}
	seedEdge(repo, a, b, RelUses)
	svc := newGraphService(repo, fakeResolver{a: {Name: "A"}, b: {Name: "B"}}, nil)

	result, err := svc.Chain(context.Background(), b.Kind, b.ID, 3, DirectionIncoming)
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalCount)
	require.Equal(t, "A", result.Chain[0].AssetName)
}

func TestChainUnknownStartFails(t *testing.T) {
	svc := newGraphService(&fakeGraph{}, fakeResolver{}, nil)

	_, err := svc.Chain(context.Background(), assets.KindInformation, uuid.New(), 3, DirectionBoth)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestRemovePublishesDeletion(t *testing.T) {
	app := assets.Ref{Kind: assets.KindApplication, ID: uuid.New()}
	sw := assets.Ref{Kind: assets.KindSoftware, ID: uuid.New()}
	repo := &fakeGraph{}
	dep := seedEdge(repo, app, sw, RelUses)
	events := &recordingPublisher{}
	svc := newGraphService(repo, fakeResolver{app: {Name: "A"}, sw: {Name: "B"}}, events)

	require.NoError(t, svc.Remove(context.Background(), dep.ID, 1))
	require.Empty(t, repo.deps)
	require.Len(t, events.events, 1)
	require.Equal(t, shared.EventDependencyDeleted, events.events[0].name)

	err := svc.Remove(context.Background(), dep.ID, 1)
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.Len(t, events.events, 1, "a failed delete publishes nothing")
}
