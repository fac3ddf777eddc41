package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadcore/internal/assets"
	"cadcore/internal/commands"
	memblob "cadcore/internal/infra/blob/memory"
	"cadcore/internal/observability"
	"cadcore/pkg/domain"
)

const gltfCube = `{"asset":{"version":"2.0"},"accessors":[{"min":[0,0,0],"max":[1,1,1]}],"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}]}`

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newLoader(t *testing.T) *assets.Loader {
	t.Helper()
	l, err := assets.New(memblob.New())
	require.NoError(t, err)
	_, err = l.Put(context.Background(), "models/cube.gltf", []byte(gltfCube), false)
	require.NoError(t, err)
	return l
}

func newDoc(t *testing.T, opts ...Option) *Document {
	t.Helper()
	opts = append([]Option{WithIDGenerator(sequentialIDs()), WithAssetLoader(newLoader(t))}, opts...)
	d := NewDocument("doc-1", "Test", opts...)
	t.Cleanup(d.Close)
	return d
}

func line(x float64) domain.Line {
	return domain.Line{Points: []domain.Vec3{{0, 0, 0}, {x, 0, 0}}, Color: "#000000", Width: 1}
}

func TestExecuteMarksDirtyAndUndoRestores(t *testing.T) {
	ctx := context.Background()
	d := newDoc(t)
	assert.False(t, d.Dirty())

	add := commands.NewAddObject(d.Env(), line(1), domain.DefaultLayerID)
	require.NoError(t, d.Execute(ctx, add))
	assert.True(t, d.Dirty())
	_, ok := d.Scene().GetNode(add.Ref().ID)
	assert.True(t, ok)

	d.MarkClean()
	require.True(t, d.Undo(ctx))
	assert.True(t, d.Dirty())
	assert.Equal(t, 0, d.Store().Len())
	assert.Equal(t, 0, d.Scene().Len())

	require.True(t, d.Redo(ctx))
	assert.Equal(t, 1, d.Scene().Len())
	require.NoError(t, d.Check())
}

func TestStateRoundTripThroughLoadDocument(t *testing.T) {
	ctx := context.Background()
	d := newDoc(t)
	env := d.Env()

	addLayer := commands.NewAddLayer(env, domain.Layer{Name: "Furniture", Color: "#00ff00", Visible: true})
	require.NoError(t, d.Execute(ctx, addLayer))
	require.NoError(t, d.Execute(ctx, commands.NewAddObject(env, line(2), domain.DefaultLayerID)))
	model := domain.Model{Path: "models/cube.gltf", Type: domain.ModelGLTF, Transform: domain.IdentityTransform(), Visible: true}
	addModel := commands.NewAddObject(env, model, addLayer.Layer().ID)
	require.NoError(t, d.Execute(ctx, addModel))
	require.NoError(t, d.Scene().Await(ctx))

	state := d.State()
	assert.Equal(t, "doc-1", state.ID)
	assert.Len(t, state.Layers, 2)
	assert.Equal(t, 2, state.Entities.Len())

	loaded, err := LoadDocument(ctx, state, WithAssetLoader(newLoader(t)))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Scene().Await(ctx))

	assert.True(t, domain.Equal(state, loaded.State()))
	assert.False(t, loaded.Dirty(), "loading must not dirty the document")
	assert.False(t, loaded.History().CanUndo())
	node, ok := loaded.Scene().GetNode(addModel.Ref().ID)
	require.True(t, ok)
	require.NotNil(t, node.Mesh)
	require.NotNil(t, node.Mesh.Asset)
	assert.Equal(t, domain.Vec3{1, 1, 1}, node.Bounds.Max)
	require.NoError(t, loaded.Check())
}

func TestLoadDocumentRejectsBadState(t *testing.T) {
	ctx := context.Background()
	_, err := LoadDocument(ctx, domain.DocumentState{})
	require.Error(t, err)

	dup := domain.DocumentState{ID: "x", Entities: domain.EntitySet{Lines: []domain.Line{
		{Base: domain.Base{ID: "a"}}, {Base: domain.Base{ID: "a"}},
	}}}
	_, err = LoadDocument(ctx, dup)
	assert.True(t, domain.IsInvariant(err, domain.RuleDuplicateID))

	sys := domain.DocumentState{ID: "y", Layers: []domain.Layer{{ID: domain.SystemLayerID, Name: "sys"}}}
	_, err = LoadDocument(ctx, sys)
	assert.True(t, domain.IsInvariant(err, domain.RuleSystemLayer))
}

func TestCheckReportsDanglingLayer(t *testing.T) {
	ctx := context.Background()
	state := domain.DocumentState{
		ID:       "z",
		Layers:   []domain.Layer{{ID: domain.DefaultLayerID, Name: "Layer 1", Visible: true}},
		Entities: domain.EntitySet{Lines: []domain.Line{{Base: domain.Base{ID: "l"}, LayerID: "gone"}}},
	}
	d, err := LoadDocument(ctx, state)
	require.NoError(t, err)
	defer d.Close()
	err = d.Check()
	require.Error(t, err)
	assert.True(t, domain.IsInvariant(err, domain.RuleDanglingLayer))
}

func TestSceneGaugeTracksNodes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec, err := observability.NewPrometheusRecorder(reg)
	require.NoError(t, err)
	d := newDoc(t, WithMetrics(rec), WithClock(func() time.Time { return time.Unix(0, 0) }))

	require.NoError(t, d.Execute(ctx, commands.NewAddObject(d.Env(), line(1), "")))
	require.NoError(t, d.Execute(ctx, commands.NewAddObject(d.Env(), line(2), "")))
	assert.Equal(t, 2.0, gaugeValue(t, reg, "cadcore_scene_nodes"))
	require.True(t, d.Undo(ctx))
	assert.Equal(t, 1.0, gaugeValue(t, reg, "cadcore_scene_nodes"))
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}
