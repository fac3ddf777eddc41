// Package scene projects the entity store onto a renderable node index. Nodes
// are derived and disposable; every node can be rebuilt from the entity it
// mirrors.
package scene

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"cadcore/pkg/domain"
)

// Box is an axis-aligned bounding box. The zero Box is empty.
type Box struct {
	Min   domain.Vec3 `json:"min"`
	Max   domain.Vec3 `json:"max"`
	Valid bool        `json:"valid"`
}

// Extend grows the box to include p.
func (b Box) Extend(p domain.Vec3) Box {
	if !b.Valid {
		return Box{Min: p, Max: p, Valid: true}
	}
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
	return b
}

// Transform returns the bounds of the eight transformed corners.
func (b Box) Transform(m mgl64.Mat4) Box {
	if !b.Valid {
		return b
	}
	var out Box
	for i := 0; i < 8; i++ {
		c := domain.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			c[0] = b.Max[0]
		}
		if i&2 != 0 {
			c[1] = b.Max[1]
		}
		if i&4 != 0 {
			c[2] = b.Max[2]
		}
		out = out.Extend(mgl64.TransformCoordinate(c, m))
	}
	return out
}

// Asset is a loaded model asset. Root is an opaque handle owned by the loader.
type Asset struct {
	Path        string           `json:"path"`
	Root        string           `json:"root"`
	Format      domain.ModelType `json:"format"`
	ContentType string           `json:"contentType"`
	Size        int64            `json:"size"`
	Bounds      Box              `json:"bounds"`
}

// AssetLoader resolves a model path to a loaded asset.
type AssetLoader interface {
	Load(ctx context.Context, path string) (Asset, error)
}

// AssetPeeker is implemented by loaders with a cache; hits attach synchronously.
type AssetPeeker interface {
	Peek(path string) (Asset, bool)
}

// AssetLoaderFunc adapts a function to AssetLoader.
type AssetLoaderFunc func(ctx context.Context, path string) (Asset, error)

// Load implements AssetLoader.
func (f AssetLoaderFunc) Load(ctx context.Context, path string) (Asset, error) { return f(ctx, path) }

// Polyline is the render data of a line node.
type Polyline struct {
	Vertices []domain.Vec3 `json:"vertices"`
	Color    string        `json:"color"`
	Width    float64       `json:"width"`
}

// Mesh is the render data of a model node.
type Mesh struct {
	Asset    *Asset           `json:"asset,omitempty"`
	Type     domain.ModelType `json:"type"`
	Material *domain.Material `json:"material,omitempty"`
	Geometry *domain.Geometry `json:"geometry,omitempty"`
}

// Node is an opaque value copy of a live scene node. ID is the only link back
// to the entity.
type Node struct {
	ID       string            `json:"id"`
	Kind     domain.EntityKind `json:"kind"`
	LayerID  string            `json:"layerId,omitempty"`
	Visible  bool              `json:"visible"`
	Opacity  float64           `json:"opacity"`
	Matrix   mgl64.Mat4        `json:"matrix"`
	Bounds   Box               `json:"bounds"`
	Polyline *Polyline         `json:"polyline,omitempty"`
	Mesh     *Mesh             `json:"mesh,omitempty"`
}

// Ref returns the entity ref the node mirrors.
func (n Node) Ref() domain.Ref { return domain.Ref{Kind: n.Kind, ID: n.ID} }

// clone deep-copies the node so callers never share internal state.
func (n Node) clone() Node {
	cp := n
	if n.Polyline != nil {
		p := *n.Polyline
		p.Vertices = append([]domain.Vec3(nil), n.Polyline.Vertices...)
		cp.Polyline = &p
	}
	if n.Mesh != nil {
		m := *n.Mesh
		if n.Mesh.Asset != nil {
			a := *n.Mesh.Asset
			m.Asset = &a
		}
		if n.Mesh.Material != nil {
			mat := domain.CloneMaterial(*n.Mesh.Material)
			m.Material = &mat
		}
		if n.Mesh.Geometry != nil {
			geo := domain.CloneGeometry(*n.Mesh.Geometry)
			m.Geometry = &geo
		}
		cp.Mesh = &m
	}
	return cp
}

// EventKind classifies synchronizer notifications.
type EventKind string

// Synchronizer event kinds.
const (
	EventUpsert EventKind = "upsert"
	EventRemove EventKind = "remove"
)

// Event reports a node change to renderer feeds. Node is zero for removals.
type Event struct {
	Kind EventKind
	ID   string
	Node Node
}
