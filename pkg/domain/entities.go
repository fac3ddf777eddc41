// Package domain defines the CAD document entities, value types, change
// records and error taxonomy shared by cadcore packages.
package domain

import (
	"time"

	"cogentcore.org/core/base/metadata"
	"github.com/go-gl/mathgl/mgl64"
)

// EntityKind identifies the type of record stored in the entity store.
type EntityKind string

// Supported entity kinds used in Change records, refs and persistence buckets.
const (
	// KindLine identifies a polyline record.
	KindLine EntityKind = "line"
	// KindModel identifies a placed model record referencing an external asset.
	KindModel EntityKind = "model"
	// KindMaterial identifies a material property bag.
	KindMaterial EntityKind = "material"
	// KindTexture identifies a texture property bag.
	KindTexture EntityKind = "texture"
	// KindGeometry identifies a geometry parameter bag.
	KindGeometry EntityKind = "geometry"
)

// Kinds returns every entity kind in persistence order.
func Kinds() []EntityKind {
	return []EntityKind{KindLine, KindModel, KindMaterial, KindTexture, KindGeometry}
}

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindLine, KindModel, KindMaterial, KindTexture, KindGeometry:
		return true
	}
	return false
}

// HasScenePresence reports whether entities of this kind own a scene node.
func (k EntityKind) HasScenePresence() bool {
	return k == KindLine || k == KindModel
}

// ModelType tags the interchange format of a model asset.
type ModelType string

// Recognised model asset formats.
const (
	ModelGLB   ModelType = "glb"
	ModelGLTF  ModelType = "gltf"
	ModelOBJ   ModelType = "obj"
	ModelSTL   ModelType = "stl"
	ModelIFC   ModelType = "ifc"
	ModelDWG   ModelType = "dwg"
	ModelOther ModelType = "other"
)

// Vec3 is a 3D point or direction. It encodes to JSON as [x,y,z].
type Vec3 = mgl64.Vec3

// Transform holds the position, rotation (Euler XYZ, radians) and scale triples of a model.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

// IdentityTransform returns a transform at the origin with unit scale.
func IdentityTransform() Transform {
	return Transform{Scale: Vec3{1, 1, 1}}
}

// Matrix composes the transform into a world matrix (T * Rx * Ry * Rz * S).
func (t Transform) Matrix() mgl64.Mat4 {
	m := mgl64.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	m = m.Mul4(mgl64.HomogRotate3DX(t.Rotation.X()))
	m = m.Mul4(mgl64.HomogRotate3DY(t.Rotation.Y()))
	m = m.Mul4(mgl64.HomogRotate3DZ(t.Rotation.Z()))
	return m.Mul4(mgl64.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// Base contains common fields for all entity records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EntityID returns the record identifier.
func (b Base) EntityID() string { return b.ID }

// Stamp assigns the identifier when unset and refreshes timestamps.
func (b *Base) Stamp(id string, now time.Time) {
	if b.ID == "" {
		b.ID = id
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Touch refreshes the modification timestamp.
func (b *Base) Touch(now time.Time) { b.UpdatedAt = now }

// Line is an ordered polyline drawn on a layer.
type Line struct {
	Base
	Points  []Vec3  `json:"points"`
	Color   string  `json:"color"`
	Width   float64 `json:"width"`
	LayerID string  `json:"layerId,omitempty"`
}

// Model places an external asset in the document.
type Model struct {
	Base
	Path string    `json:"path"`
	Type ModelType `json:"type"`
	Transform
	Visible    bool     `json:"visible"`
	LayerID    string   `json:"layerId,omitempty"`
	MaterialID string   `json:"materialId,omitempty"`
	GeometryID string   `json:"geometryId,omitempty"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// Material is a typed property bag referenced by models.
type Material struct {
	Base
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Texture is a typed property bag referenced by materials.
type Texture struct {
	Base
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Geometry is a typed parameter bag referenced by models.
type Geometry struct {
	Base
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Metadata is the typed free-form map attached to models.
type Metadata = metadata.Data

// Entity is implemented by every entity kind.
type Entity interface {
	Kind() EntityKind
	EntityID() string
	// Layer returns the referenced layer id, empty for kinds without a layer.
	Layer() string
}

// Kind implements Entity.
func (Line) Kind() EntityKind { return KindLine }

// Layer implements Entity.
func (l Line) Layer() string { return l.LayerID }

// Kind implements Entity.
func (Model) Kind() EntityKind { return KindModel }

// Layer implements Entity.
func (m Model) Layer() string { return m.LayerID }

// Kind implements Entity.
func (Material) Kind() EntityKind { return KindMaterial }

// Layer implements Entity.
func (Material) Layer() string { return "" }

// Kind implements Entity.
func (Texture) Kind() EntityKind { return KindTexture }

// Layer implements Entity.
func (Texture) Layer() string { return "" }

// Kind implements Entity.
func (Geometry) Kind() EntityKind { return KindGeometry }

// Layer implements Entity.
func (Geometry) Layer() string { return "" }

// Ref names an entity by kind and id.
type Ref struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// RefOf returns the ref for an entity.
func RefOf(e Entity) Ref { return Ref{Kind: e.Kind(), ID: e.EntityID()} }

// String implements fmt.Stringer.
func (r Ref) String() string { return string(r.Kind) + "/" + r.ID }

// SystemLayerID is the reserved, always-present, locked layer.
const SystemLayerID = "__system__"

// DefaultLayerID names the user layer every new document starts with.
const DefaultLayerID = "layer1"

// Layer is a named display group; entities reference layers by id.
type Layer struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Color       string   `json:"color"`
	Visible     bool     `json:"visible"`
	Locked      bool     `json:"locked"`
	Opacity     *float64 `json:"opacity,omitempty"`
	Description string   `json:"description,omitempty"`
}

// IsSystem reports whether the layer is the reserved system layer.
func (l Layer) IsSystem() bool { return l.ID == SystemLayerID }

// EffectiveOpacity returns the opacity with the unset default of 1.
func (l Layer) EffectiveOpacity() float64 {
	if l.Opacity == nil {
		return 1
	}
	return *l.Opacity
}

// Change describes a mutation applied to an entity in the store.
type Change struct {
	Kind   EntityKind
	ID     string
	Action Action
	Before Entity
	After  Entity
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
