package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"cadcore/pkg/domain"
)

var errNoLoader = errors.New("no asset loader configured")

// resourceKind names the GPU-side allocations a node owns.
type resourceKind string

const (
	resVertexBuffer resourceKind = "vertex-buffer"
	resStroke       resourceKind = "stroke-material"
	resMeshInstance resourceKind = "mesh-instance"
	resMaterial     resourceKind = "material"
)

// liveNode is the internal node record with the resources it holds.
type liveNode struct {
	node      Node
	resources []resourceKind
}

// display resolves layer-derived visibility and opacity.
func (s *Synchronizer) display(layerID string, visible bool) (bool, float64) {
	if layerID == "" {
		return visible, 1
	}
	l, ok := s.layers.Get(layerID)
	if !ok {
		return visible, 1
	}
	return visible && l.Visible, l.EffectiveOpacity()
}

func (s *Synchronizer) buildLine(l domain.Line) liveNode {
	visible, opacity := s.display(l.LayerID, true)
	var bounds Box
	for _, p := range l.Points {
		bounds = bounds.Extend(p)
	}
	return liveNode{
		node: Node{
			ID:      l.ID,
			Kind:    domain.KindLine,
			LayerID: l.LayerID,
			Visible: visible,
			Opacity: opacity,
			Matrix:  mgl64.Ident4(),
			Bounds:  bounds,
			Polyline: &Polyline{
				Vertices: append([]domain.Vec3(nil), l.Points...),
				Color:    l.Color,
				Width:    l.Width,
			},
		},
		resources: []resourceKind{resVertexBuffer, resStroke},
	}
}

// buildModel assembles a model node. asset is nil for models without a path.
func (s *Synchronizer) buildModel(m domain.Model, asset *Asset) liveNode {
	visible, opacity := s.display(m.LayerID, m.Visible)
	matrix := m.Transform.Matrix()
	mesh := &Mesh{Type: m.Type}
	resources := []resourceKind{resMeshInstance}
	var bounds Box
	if asset != nil {
		a := *asset
		mesh.Asset = &a
		bounds = a.Bounds.Transform(matrix)
	}
	if m.MaterialID != "" {
		if e, ok := s.source.Get(domain.KindMaterial, m.MaterialID); ok {
			mat := domain.CloneMaterial(e.(domain.Material))
			mesh.Material = &mat
			resources = append(resources, resMaterial)
		} else {
			s.logger.Debug("model references missing material", "model", m.ID, "material", m.MaterialID)
		}
	}
	if m.GeometryID != "" {
		if e, ok := s.source.Get(domain.KindGeometry, m.GeometryID); ok {
			geo := domain.CloneGeometry(e.(domain.Geometry))
			mesh.Geometry = &geo
		} else {
			s.logger.Debug("model references missing geometry", "model", m.ID, "geometry", m.GeometryID)
		}
	}
	return liveNode{
		node: Node{
			ID:      m.ID,
			Kind:    domain.KindModel,
			LayerID: m.LayerID,
			Visible: visible,
			Opacity: opacity,
			Matrix:  matrix,
			Bounds:  bounds,
			Mesh:    mesh,
		},
		resources: resources,
	}
}

func buildError(ref domain.Ref, err error) error {
	return domain.ErrBuildFailure{Ref: ref, Err: err}
}

func assetError(path string, err error) error {
	return fmt.Errorf("load asset %q: %w", path, err)
}
