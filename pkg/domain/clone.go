package domain

import "fmt"

// CloneLine returns a deep copy of l.
func CloneLine(l Line) Line {
	cp := l
	if l.Points != nil {
		cp.Points = append([]Vec3(nil), l.Points...)
	}
	return cp
}

// CloneModel returns a deep copy of m.
func CloneModel(m Model) Model {
	cp := m
	if m.Metadata != nil {
		cp.Metadata = Metadata{}
		cp.Metadata.Copy(m.Metadata)
	}
	return cp
}

// CloneMaterial returns a deep copy of m.
func CloneMaterial(m Material) Material {
	cp := m
	cp.Properties = cloneBag(m.Properties)
	return cp
}

// CloneTexture returns a deep copy of t.
func CloneTexture(t Texture) Texture {
	cp := t
	cp.Properties = cloneBag(t.Properties)
	return cp
}

// CloneGeometry returns a deep copy of g.
func CloneGeometry(g Geometry) Geometry {
	cp := g
	cp.Parameters = cloneBag(g.Parameters)
	return cp
}

// CloneLayer returns a deep copy of l.
func CloneLayer(l Layer) Layer {
	cp := l
	if l.Opacity != nil {
		v := *l.Opacity
		cp.Opacity = &v
	}
	return cp
}

// Clone deep-copies any entity value.
func Clone(e Entity) Entity {
	switch v := e.(type) {
	case Line:
		return CloneLine(v)
	case Model:
		return CloneModel(v)
	case Material:
		return CloneMaterial(v)
	case Texture:
		return CloneTexture(v)
	case Geometry:
		return CloneGeometry(v)
	case nil:
		return nil
	default:
		panic(fmt.Errorf("domain: clone unsupported entity %T", e))
	}
}

// WithID returns a copy of e carrying the given id and cleared timestamps.
func WithID(e Entity, id string) Entity {
	switch v := Clone(e).(type) {
	case Line:
		v.Base = Base{ID: id}
		return v
	case Model:
		v.Base = Base{ID: id}
		return v
	case Material:
		v.Base = Base{ID: id}
		return v
	case Texture:
		v.Base = Base{ID: id}
		return v
	case Geometry:
		v.Base = Base{ID: id}
		return v
	}
	return e
}

// WithLayer returns a copy of e placed on layerID. Kinds without a layer are returned unchanged.
func WithLayer(e Entity, layerID string) Entity {
	switch v := Clone(e).(type) {
	case Line:
		v.LayerID = layerID
		return v
	case Model:
		v.LayerID = layerID
		return v
	default:
		return v
	}
}

func cloneBag(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneBag(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []float64:
		return append([]float64(nil), t...)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
