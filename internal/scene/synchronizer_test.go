package scene

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadcore/internal/layer"
	"cadcore/internal/store"
	"cadcore/pkg/domain"
)

// fakeLoader blocks each load until released and caches successful results.
type fakeLoader struct {
	mu      sync.Mutex
	gate    chan struct{}
	calls   map[string]int
	cache   map[string]Asset
	fail    map[string]error
	started chan string
	peeking bool
}

func newFakeLoader(peeking bool) *fakeLoader {
	return &fakeLoader{
		gate:    make(chan struct{}),
		calls:   make(map[string]int),
		cache:   make(map[string]Asset),
		fail:    make(map[string]error),
		started: make(chan string, 16),
		peeking: peeking,
	}
}

func (f *fakeLoader) Load(ctx context.Context, path string) (Asset, error) {
	f.mu.Lock()
	f.calls[path]++
	gate := f.gate
	f.mu.Unlock()
	select {
	case f.started <- path:
	default:
	}
	select {
	case <-gate:
	case <-ctx.Done():
		return Asset{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[path]; err != nil {
		return Asset{}, err
	}
	a := Asset{Path: path, Root: "root:" + path, Format: domain.ModelGLB, Bounds: Box{Min: domain.Vec3{-1, -1, -1}, Max: domain.Vec3{1, 1, 1}, Valid: true}}
	f.cache[path] = a
	return a, nil
}

// waitStarted blocks until a Load call for path has begun.
func (f *fakeLoader) waitStarted(t *testing.T, path string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p := <-f.started:
			if p == path {
				return
			}
		case <-timeout:
			t.Fatalf("load of %s never started", path)
		}
	}
}

func (f *fakeLoader) Peek(path string) (Asset, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.peeking {
		return Asset{}, false
	}
	a, ok := f.cache[path]
	return a, ok
}

func (f *fakeLoader) release() { close(f.gate) }

func (f *fakeLoader) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

type fixture struct {
	store  *store.Store
	layers *layer.Registry
	scene  *Synchronizer
	loader *fakeLoader
	errs   []error
}

func newFixture(t *testing.T, peeking bool) *fixture {
	t.Helper()
	f := &fixture{store: store.New(), layers: layer.New(), loader: newFakeLoader(peeking)}
	f.scene = New(f.store, f.layers, WithAssetLoader(f.loader), WithErrorHandler(func(err error) { f.errs = append(f.errs, err) }))
	t.Cleanup(f.scene.Close)
	return f
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSyncLineBuildsIndependentCopy(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	l, err := f.store.CreateLine(domain.Line{Points: []domain.Vec3{{0, 0, 0}, {2, 1, 0}}, Color: "#f00", Width: 2, LayerID: domain.DefaultLayerID})
	require.NoError(t, err)

	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(l)))
	n, ok := f.scene.GetNode(l.ID)
	require.True(t, ok)
	assert.Equal(t, domain.KindLine, n.Kind)
	assert.True(t, n.Visible)
	assert.Equal(t, 1.0, n.Opacity)
	assert.Equal(t, domain.Vec3{2, 1, 0}, n.Bounds.Max)
	require.NotNil(t, n.Polyline)
	n.Polyline.Vertices[0] = domain.Vec3{5, 5, 5}

	again, _ := f.scene.GetNode(l.ID)
	assert.Equal(t, domain.Vec3{0, 0, 0}, again.Polyline.Vertices[0])
	assert.Equal(t, 2, f.scene.Stats().Resources)

	require.True(t, f.store.RemoveLine(l.ID))
	assert.Equal(t, []string{l.ID}, f.scene.Orphans(nil))
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(l)))
	_, ok = f.scene.GetNode(l.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, f.scene.Stats().Resources)
	assert.Empty(t, f.scene.Orphans(nil))
}

func TestLayerVisibilityAndOpacity(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	l, _ := f.store.CreateLine(domain.Line{LayerID: domain.DefaultLayerID})
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(l)))

	require.True(t, f.layers.SetVisibility(domain.DefaultLayerID, false))
	half := 0.5
	require.True(t, f.layers.Update(domain.DefaultLayerID, func(l *domain.Layer) { l.Opacity = &half }))
	require.NoError(t, f.scene.RefreshLayer(ctx, domain.DefaultLayerID))

	n, ok := f.scene.GetNode(l.ID)
	require.True(t, ok)
	assert.False(t, n.Visible)
	assert.Equal(t, 0.5, n.Opacity)
}

func TestModelLoadsAsynchronously(t *testing.T) {
	f := newFixture(t, false)
	ctx := awaitCtx(t)
	m, _ := f.store.CreateModel(domain.Model{Path: "chair.glb", Transform: domain.Transform{Position: domain.Vec3{10, 0, 0}, Scale: domain.Vec3{1, 1, 1}}, Visible: true})

	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(m)))
	_, ok := f.scene.GetNode(m.ID)
	assert.False(t, ok, "entity is nodeless while its asset loads")
	assert.True(t, f.scene.Pending(m.ID))

	f.loader.release()
	require.NoError(t, f.scene.Await(ctx))
	n, ok := f.scene.GetNode(m.ID)
	require.True(t, ok)
	require.NotNil(t, n.Mesh)
	require.NotNil(t, n.Mesh.Asset)
	assert.Equal(t, "root:chair.glb", n.Mesh.Asset.Root)
	assert.True(t, n.Bounds.Min.ApproxEqual(domain.Vec3{9, -1, -1}))
	assert.Equal(t, 0, f.scene.Stats().PendingLoads)
}

func TestInFlightGuardResyncsOnCompletion(t *testing.T) {
	f := newFixture(t, true)
	ctx := awaitCtx(t)
	m, _ := f.store.CreateModel(domain.Model{Path: "desk.glb", Transform: domain.IdentityTransform(), Visible: true})
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(m)))
	f.loader.waitStarted(t, "desk.glb")

	require.True(t, f.store.UpdateModel(m.ID, func(m *domain.Model) { m.Position = domain.Vec3{3, 0, 0} }))
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(m)))
	assert.Equal(t, 1, f.loader.callCount("desk.glb"), "second sync must not start another load")

	f.loader.release()
	require.NoError(t, f.scene.Await(ctx))
	n, ok := f.scene.GetNode(m.ID)
	require.True(t, ok)
	assert.Equal(t, 3.0, n.Matrix.At(0, 3), "completion re-syncs with current data")
	assert.Equal(t, 1, f.loader.callCount("desk.glb"))
}

func TestRemoveCancelsPendingLoad(t *testing.T) {
	f := newFixture(t, false)
	ctx := awaitCtx(t)
	m, _ := f.store.CreateModel(domain.Model{Path: "lamp.glb", Visible: true})
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(m)))

	f.scene.Remove(m.ID)
	assert.False(t, f.scene.Pending(m.ID))
	require.NoError(t, f.scene.Await(ctx))
	f.scene.Close()
	f.scene.Pump(ctx)

	_, ok := f.scene.GetNode(m.ID)
	assert.False(t, ok)
	st := f.scene.Stats()
	assert.Equal(t, 1, st.Cancelled)
	assert.Equal(t, 0, st.Resources)
	assert.Empty(t, f.errs)
}

func TestBuildFailureLeavesGap(t *testing.T) {
	f := newFixture(t, true)
	ctx := awaitCtx(t)
	f.loader.fail["missing.glb"] = errors.New("no such asset")
	bad, _ := f.store.CreateModel(domain.Model{Path: "missing.glb", Visible: true})
	good, _ := f.store.CreateModel(domain.Model{Path: "ok.glb", Visible: true})
	l, _ := f.store.CreateLine(domain.Line{Points: []domain.Vec3{{0, 0, 0}}})

	f.loader.release()
	rep := f.scene.ResyncAll(ctx)
	assert.Empty(t, rep.Failed)
	require.NoError(t, f.scene.Await(ctx))

	_, ok := f.scene.GetNode(bad.ID)
	assert.False(t, ok)
	_, ok = f.scene.GetNode(good.ID)
	assert.True(t, ok)
	_, ok = f.scene.GetNode(l.ID)
	assert.True(t, ok)
	require.Len(t, f.errs, 1)
	var bf domain.ErrBuildFailure
	require.ErrorAs(t, f.errs[0], &bf)
	assert.Equal(t, bad.ID, bf.Ref.ID)
}

func TestResyncAllIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := awaitCtx(t)
	f.loader.release()
	_, _ = f.store.CreateLine(domain.Line{Points: []domain.Vec3{{0, 0, 0}, {1, 1, 1}}, LayerID: domain.DefaultLayerID})
	_, _ = f.store.CreateModel(domain.Model{Path: "a.glb", Transform: domain.IdentityTransform(), Visible: true})
	f.scene.ResyncAll(ctx)
	require.NoError(t, f.scene.Await(ctx))

	first := f.scene.Nodes()
	rep := f.scene.ResyncAll(ctx)
	assert.Equal(t, 2, rep.Built, "cached assets attach synchronously")
	second := f.scene.Nodes()
	assert.Equal(t, first, second)
	assert.Equal(t, 2+1, f.scene.Stats().Resources)
}

func TestReentrantSyncRejected(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	l, _ := f.store.CreateLine(domain.Line{})
	var inner error
	f.scene.Subscribe(func(ev Event) {
		if ev.Kind == EventUpsert && inner == nil {
			inner = f.scene.Sync(ctx, domain.RefOf(l))
		}
	})
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(l)))
	assert.ErrorIs(t, inner, domain.ErrReentrant)
}

func TestMaterialChangeResyncsModels(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	mat, _ := f.store.CreateMaterial(domain.Material{Name: "steel", Properties: map[string]any{"roughness": 0.2}})
	m, _ := f.store.CreateModel(domain.Model{MaterialID: mat.ID, Visible: true})
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(m)))

	var events []Event
	f.scene.Subscribe(func(ev Event) { events = append(events, ev) })
	require.True(t, f.store.UpdateMaterial(mat.ID, func(m *domain.Material) { m.Properties["roughness"] = 0.9 }))
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(mat)))

	n, ok := f.scene.GetNode(m.ID)
	require.True(t, ok)
	require.NotNil(t, n.Mesh.Material)
	assert.Equal(t, 0.9, n.Mesh.Material.Properties["roughness"])
	require.Len(t, events, 1)
	assert.Equal(t, EventUpsert, events[0].Kind)
}

func TestModelWithoutLoaderFails(t *testing.T) {
	s := store.New()
	sc := New(s, layer.New())
	m, _ := s.CreateModel(domain.Model{Path: "x.glb"})
	err := sc.Sync(context.Background(), domain.RefOf(m))
	var bf domain.ErrBuildFailure
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, 1, sc.Stats().Failures)
}

func TestPendingRebuildEmitsRemove(t *testing.T) {
	f := newFixture(t, true)
	ctx := awaitCtx(t)
	f.loader.release()
	m, _ := f.store.CreateModel(domain.Model{Path: "a.glb", Transform: domain.IdentityTransform(), Visible: true})
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(m)))
	require.NoError(t, f.scene.Await(ctx))

	var events []Event
	unsub := f.scene.Subscribe(func(ev Event) { events = append(events, ev) })
	defer unsub()

	require.True(t, f.store.UpdateModel(m.ID, func(m *domain.Model) { m.Path = "b.glb" }))
	require.NoError(t, f.scene.Sync(ctx, domain.RefOf(m)))
	require.Len(t, events, 1)
	assert.Equal(t, EventRemove, events[0].Kind)

	require.NoError(t, f.scene.Await(ctx))
	require.Len(t, events, 2)
	assert.Equal(t, EventUpsert, events[1].Kind)
	assert.Equal(t, "b.glb", events[1].Node.Mesh.Asset.Path)
}
