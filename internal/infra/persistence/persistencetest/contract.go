// Package persistencetest holds the behaviour every domain.DocumentStore must
// share, run against each backend from its own tests.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"cadcore/pkg/domain"
)

// Fixture returns a small document with one entity of every kind.
func Fixture(id string, updated time.Time) domain.DocumentState {
	opacity := 0.5
	return domain.DocumentState{
		ID:        id,
		Name:      "doc " + id,
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
		Layers: []domain.Layer{
			{ID: domain.DefaultLayerID, Name: "Layer 1", Color: "#ffffff", Visible: true},
			{ID: "walls", Name: "Walls", Color: "#ff0000", Visible: false, Locked: true, Opacity: &opacity},
		},
		Entities: domain.EntitySet{
			Lines: []domain.Line{{
				Base:    domain.Base{ID: "l1"},
				Points:  []domain.Vec3{{0, 0, 0}, {1, 2, 3}},
				Color:   "#00ff00",
				Width:   2,
				LayerID: domain.DefaultLayerID,
			}},
			Models: []domain.Model{{
				Base:       domain.Base{ID: "m1"},
				Path:       "models/chair.glb",
				Type:       domain.ModelGLB,
				Transform:  domain.Transform{Position: domain.Vec3{1, 0, 0}, Scale: domain.Vec3{1, 1, 1}},
				Visible:    true,
				LayerID:    "walls",
				MaterialID: "mat1",
				GeometryID: "g1",
				Metadata:   domain.Metadata{"vendor": "acme", "weight": 4.5},
			}},
			Materials:  []domain.Material{{Base: domain.Base{ID: "mat1"}, Name: "Oak", Type: "standard", Properties: map[string]any{"map": "t1", "roughness": 0.8}}},
			Textures:   []domain.Texture{{Base: domain.Base{ID: "t1"}, Name: "Grain", Type: "image", Properties: map[string]any{"path": "tex/oak.png"}}},
			Geometries: []domain.Geometry{{Base: domain.Base{ID: "g1"}, Name: "Box", Type: "box", Parameters: map[string]any{"width": 1.0}}},
		},
	}
}

// Run exercises save, load, list and delete against store. The store must be
// empty on entry.
func Run(t *testing.T, store domain.DocumentStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := store.Load(ctx, "nope")
		var nf domain.ErrDocumentNotFound
		if !errors.As(err, &nf) || nf.ID != "nope" {
			t.Fatalf("expected ErrDocumentNotFound, got %v", err)
		}
	})

	t.Run("SaveRequiresID", func(t *testing.T) {
		if err := store.Save(ctx, domain.DocumentState{Name: "anon"}); err == nil {
			t.Fatalf("expected error for empty id")
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		want := Fixture("a", base)
		if err := store.Save(ctx, want); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := store.Load(ctx, "a")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if !domain.Equal(want, got) {
			t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
		}
		if !got.UpdatedAt.Equal(want.UpdatedAt) || !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("timestamps not preserved: %v %v", got.CreatedAt, got.UpdatedAt)
		}
	})

	t.Run("LoadReturnsCopy", func(t *testing.T) {
		got, err := store.Load(ctx, "a")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		got.Entities.Lines[0].Points[0] = domain.Vec3{9, 9, 9}
		again, err := store.Load(ctx, "a")
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if again.Entities.Lines[0].Points[0] != (domain.Vec3{}) {
			t.Fatalf("mutation leaked into store")
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		next := Fixture("a", base.Add(time.Minute))
		next.Name = "renamed"
		next.Entities.Lines = nil
		next.Layers = next.Layers[:1]
		if err := store.Save(ctx, next); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := store.Load(ctx, "a")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.Name != "renamed" || len(got.Entities.Lines) != 0 || len(got.Layers) != 1 {
			t.Fatalf("state not replaced: %+v", got)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		if err := store.Save(ctx, Fixture("b", base.Add(time.Hour))); err != nil {
			t.Fatalf("save b: %v", err)
		}
		sums, err := store.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(sums) != 2 || sums[0].ID != "b" || sums[1].ID != "a" {
			t.Fatalf("unexpected order %+v", sums)
		}
		if sums[0].Entities != 5 || sums[0].Layers != 2 {
			t.Fatalf("unexpected counts %+v", sums[0])
		}
		if sums[1].Name != "renamed" || sums[1].Entities != 4 {
			t.Fatalf("stale summary %+v", sums[1])
		}
	})

	t.Run("Delete", func(t *testing.T) {
		ok, err := store.Delete(ctx, "a")
		if err != nil || !ok {
			t.Fatalf("delete a: %v %v", ok, err)
		}
		ok, err = store.Delete(ctx, "a")
		if err != nil || ok {
			t.Fatalf("second delete should report false: %v %v", ok, err)
		}
		if _, err := store.Load(ctx, "a"); err == nil {
			t.Fatalf("deleted document still loads")
		}
		if got, err := store.Load(ctx, "b"); err != nil || got.ID != "b" {
			t.Fatalf("sibling document lost: %v", err)
		}
	})
}
