package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// EntitySet groups every entity of a document by kind, each in insertion order.
type EntitySet struct {
	Lines      []Line     `json:"lines"`
	Models     []Model    `json:"models"`
	Materials  []Material `json:"materials"`
	Textures   []Texture  `json:"textures"`
	Geometries []Geometry `json:"geometries"`
}

// Len returns the total number of entities in the set.
func (s EntitySet) Len() int {
	return len(s.Lines) + len(s.Models) + len(s.Materials) + len(s.Textures) + len(s.Geometries)
}

// Counts returns the number of entities per kind.
func (s EntitySet) Counts() map[EntityKind]int {
	return map[EntityKind]int{
		KindLine:     len(s.Lines),
		KindModel:    len(s.Models),
		KindMaterial: len(s.Materials),
		KindTexture:  len(s.Textures),
		KindGeometry: len(s.Geometries),
	}
}

// Clone returns a deep copy of the set with non-nil slices.
func (s EntitySet) Clone() EntitySet {
	out := EntitySet{
		Lines:      make([]Line, 0, len(s.Lines)),
		Models:     make([]Model, 0, len(s.Models)),
		Materials:  make([]Material, 0, len(s.Materials)),
		Textures:   make([]Texture, 0, len(s.Textures)),
		Geometries: make([]Geometry, 0, len(s.Geometries)),
	}
	for _, v := range s.Lines {
		out.Lines = append(out.Lines, CloneLine(v))
	}
	for _, v := range s.Models {
		out.Models = append(out.Models, CloneModel(v))
	}
	for _, v := range s.Materials {
		out.Materials = append(out.Materials, CloneMaterial(v))
	}
	for _, v := range s.Textures {
		out.Textures = append(out.Textures, CloneTexture(v))
	}
	for _, v := range s.Geometries {
		out.Geometries = append(out.Geometries, CloneGeometry(v))
	}
	return out
}

// DocumentState is the persisted layout of a document. Layers exclude the
// system layer.
type DocumentState struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Entities  EntitySet `json:"entities"`
	Layers    []Layer   `json:"layers"`
}

// Clone returns a deep copy of the state.
func (s DocumentState) Clone() DocumentState {
	out := s
	out.Entities = s.Entities.Clone()
	out.Layers = make([]Layer, 0, len(s.Layers))
	for _, l := range s.Layers {
		out.Layers = append(out.Layers, CloneLayer(l))
	}
	return out
}

// Summary returns the listing view of the state.
func (s DocumentState) Summary() DocumentSummary {
	return DocumentSummary{
		ID:        s.ID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Entities:  s.Entities.Len(),
		Layers:    len(s.Layers),
	}
}

// DocumentSummary is a lightweight listing record for stored documents.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Entities  int       `json:"entities"`
	Layers    int       `json:"layers"`
}

// SortSummaries orders summaries by UpdatedAt descending, then id.
func SortSummaries(out []DocumentSummary) {
	slices.SortFunc(out, func(a, b DocumentSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Equal compares two document states structurally, ignoring timestamps.
// Values are compared through their JSON encoding so decoded metadata numbers
// match their in-memory originals.
func Equal(a, b DocumentState) bool {
	ea, err := normalized(a)
	if err != nil {
		return false
	}
	eb, err := normalized(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// EqualEntities compares two entity sets structurally, ignoring timestamps.
func EqualEntities(a, b EntitySet) bool {
	return Equal(DocumentState{Entities: a}, DocumentState{Entities: b})
}

func normalized(s DocumentState) ([]byte, error) {
	c := s.Clone()
	c.CreatedAt, c.UpdatedAt = time.Time{}, time.Time{}
	for i := range c.Entities.Lines {
		c.Entities.Lines[i].Base = Base{ID: c.Entities.Lines[i].ID}
		if len(c.Entities.Lines[i].Points) == 0 {
			c.Entities.Lines[i].Points = nil
		}
	}
	for i := range c.Entities.Models {
		c.Entities.Models[i].Base = Base{ID: c.Entities.Models[i].ID}
		if len(c.Entities.Models[i].Metadata) == 0 {
			c.Entities.Models[i].Metadata = nil
		}
	}
	for i := range c.Entities.Materials {
		c.Entities.Materials[i].Base = Base{ID: c.Entities.Materials[i].ID}
	}
	for i := range c.Entities.Textures {
		c.Entities.Textures[i].Base = Base{ID: c.Entities.Textures[i].ID}
	}
	for i := range c.Entities.Geometries {
		c.Entities.Geometries[i].Base = Base{ID: c.Entities.Geometries[i].ID}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	// Re-decode so map key order and number representations are canonical.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
