package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func mustNoError(t *testing.T, label string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", label, err)
	}
}

func TestSetFieldReturnsCopy(t *testing.T) {
	line := Line{Base: Base{ID: "l1"}, Points: []Vec3{{0, 0, 0}, {1, 0, 0}}, Color: "#fff", Width: 1}
	updated, err := SetField(line, FieldColor, "#000")
	mustNoError(t, "set color", err)
	if got := updated.(Line).Color; got != "#000" {
		t.Fatalf("expected updated color, got %q", got)
	}
	if line.Color != "#fff" {
		t.Fatalf("original mutated: %q", line.Color)
	}

	updated, err = SetField(line, FieldPoints, []any{[]any{1.0, 2.0, 3.0}})
	mustNoError(t, "set points", err)
	pts := updated.(Line).Points
	if len(pts) != 1 || pts[0] != (Vec3{1, 2, 3}) {
		t.Fatalf("unexpected points %v", pts)
	}
	if _, err := SetField(line, FieldWidth, "wide"); err == nil {
		t.Fatalf("expected type error for width")
	}
	if _, err := SetField(line, "nope", 1); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestModelFieldsRoundTrip(t *testing.T) {
	model := Model{Base: Base{ID: "m1"}, Path: "a.glb", Type: ModelGLB, Transform: IdentityTransform(), Visible: true}
	cases := []struct {
		field string
		value any
	}{
		{FieldPosition, Vec3{1, 2, 3}},
		{FieldRotation, []float64{0, 1, 0}},
		{FieldScale, Vec3{2, 2, 2}},
		{FieldVisible, false},
		{FieldMaterialID, "mat"},
		{FieldGeometryID, "geo"},
		{FieldType, "obj"},
		{"metadata.tag", "door"},
	}
	var current Entity = model
	for _, tc := range cases {
		next, err := SetField(current, tc.field, tc.value)
		mustNoError(t, tc.field, err)
		if _, err := GetField(next, tc.field); err != nil {
			t.Fatalf("get %s: %v", tc.field, err)
		}
		current = next
	}
	got := current.(Model)
	if got.Rotation != (Vec3{0, 1, 0}) || got.Type != ModelOBJ || got.Metadata["tag"] != "door" {
		t.Fatalf("unexpected model %+v", got)
	}
	if model.Metadata != nil {
		t.Fatalf("original metadata mutated")
	}
	cleared, err := SetField(current, "metadata.tag", nil)
	mustNoError(t, "clear metadata", err)
	if v, _ := GetField(cleared, "metadata.tag"); v != nil {
		t.Fatalf("expected metadata removed, got %v", v)
	}
}

func TestBagFields(t *testing.T) {
	mat := Material{Base: Base{ID: "m"}, Name: "steel", Type: "pbr", Properties: map[string]any{"roughness": 0.4}}
	next, err := SetField(mat, "properties.metalness", 1.0)
	mustNoError(t, "set property", err)
	if v, _ := GetField(next, "properties.metalness"); v != 1.0 {
		t.Fatalf("unexpected property %v", v)
	}
	if _, ok := mat.Properties["metalness"]; ok {
		t.Fatalf("original properties mutated")
	}
	geo := Geometry{Base: Base{ID: "g"}, Name: "box", Type: "box"}
	next, err = SetField(geo, "parameters.width", 2)
	mustNoError(t, "set parameter", err)
	if v, _ := GetField(next, "parameters.width"); v != 2 {
		t.Fatalf("unexpected parameter %v", v)
	}
	if _, err := SetField(geo, "properties.width", 2); err == nil {
		t.Fatalf("geometry should reject properties prefix")
	}
}

func TestLayerFields(t *testing.T) {
	l := Layer{ID: "a", Name: "A", Visible: true}
	mustNoError(t, "opacity", SetLayerField(&l, FieldOpacity, 0.5))
	if l.EffectiveOpacity() != 0.5 {
		t.Fatalf("expected opacity 0.5, got %v", l.EffectiveOpacity())
	}
	if err := SetLayerField(&l, FieldOpacity, 2.0); err == nil {
		t.Fatalf("expected range error")
	}
	mustNoError(t, "clear opacity", SetLayerField(&l, FieldOpacity, nil))
	if v, _ := GetLayerField(l, FieldOpacity); v != nil {
		t.Fatalf("expected nil opacity, got %v", v)
	}
	mustNoError(t, "locked", SetLayerField(&l, FieldLocked, true))
	if !l.Locked {
		t.Fatalf("expected locked")
	}
	if _, err := GetLayerField(l, "points"); err == nil {
		t.Fatalf("expected unknown layer field error")
	}
}

func TestMetadataSchema(t *testing.T) {
	schema := MetadataSchema{"tag": ValueString, "mass": ValueNumber, "anchor": ValueVec3, "hidden": ValueBool}
	mustNoError(t, "valid", schema.Validate(Metadata{"tag": "x", "mass": 3, "anchor": []any{1.0, 2.0, 3.0}, "hidden": true}))
	err := schema.Validate(Metadata{"color": "red"})
	if !IsInvariant(err, RuleMetadataShape) {
		t.Fatalf("expected schema invariant for unknown key, got %v", err)
	}
	err = schema.Validate(Metadata{"mass": "heavy"})
	if !IsInvariant(err, RuleMetadataShape) {
		t.Fatalf("expected schema invariant for wrong type, got %v", err)
	}
	if err := schema.ValidateValue("mass", "heavy"); err == nil {
		t.Fatalf("expected type mismatch")
	}
	if err := schema.ValidateValue("colour", "red"); err == nil {
		t.Fatalf("unknown key accepted")
	}
	var open MetadataSchema
	mustNoError(t, "nil schema", open.Validate(Metadata{"anything": struct{}{}}))
}

func TestErrorTaxonomy(t *testing.T) {
	wrapped := fmt.Errorf("remove: %w", ErrInvariant{Rule: RuleLayerFloor, Message: "last layer"})
	if !IsInvariant(wrapped, RuleLayerFloor) || IsInvariant(wrapped, RuleLayerLocked) || !IsInvariant(wrapped, "") {
		t.Fatalf("unexpected IsInvariant results for %v", wrapped)
	}
	cause := errors.New("disk")
	if IsInvariant(cause, "") {
		t.Fatalf("plain error is not an invariant")
	}
	build := ErrBuildFailure{Ref: Ref{Kind: KindModel, ID: "m1"}, Err: cause}
	if !errors.Is(build, cause) || build.Error() != "build model/m1: disk" {
		t.Fatalf("unexpected build failure %q", build.Error())
	}
	corrupt := ErrHistoryCorruption{Op: "undo", Label: "Add line", Err: cause}
	if !errors.Is(corrupt, cause) || corrupt.Error() == "" {
		t.Fatalf("history corruption should unwrap")
	}
	if (ErrNotFound{Kind: KindLine, ID: "x"}).Error() != "line x not found" {
		t.Fatalf("unexpected not found message")
	}
	if (ErrNotFound{Kind: LayerKind, ID: "x"}).Error() != "layer x not found" {
		t.Fatalf("unexpected layer not found message")
	}
}

func TestDocumentEqualIgnoresTimestamps(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := DocumentState{
		ID: "doc", Name: "Doc", CreatedAt: now,
		Entities: EntitySet{
			Lines:  []Line{{Base: Base{ID: "l", CreatedAt: now}, Points: []Vec3{{1, 2, 3}}, Color: "#f00", Width: 2, LayerID: DefaultLayerID}},
			Models: []Model{{Base: Base{ID: "m"}, Path: "a.glb", Transform: IdentityTransform(), Metadata: Metadata{"count": 3}}},
		},
		Layers: []Layer{{ID: DefaultLayerID, Name: "Layer 1", Visible: true}},
	}
	raw, err := json.Marshal(a)
	mustNoError(t, "marshal", err)
	var b DocumentState
	mustNoError(t, "unmarshal", json.Unmarshal(raw, &b))
	b.UpdatedAt = now.Add(time.Hour)
	b.Entities.Lines[0].UpdatedAt = now.Add(time.Minute)
	if !Equal(a, b) {
		t.Fatalf("expected decoded state to equal original")
	}
	b.Entities.Lines[0].Width = 3
	if Equal(a, b) {
		t.Fatalf("expected width change to break equality")
	}
}

func TestTransformMatrix(t *testing.T) {
	tr := Transform{Position: Vec3{1, 2, 3}, Scale: Vec3{2, 2, 2}}
	p := tr.Matrix().Mul4x1(Vec3{1, 0, 0}.Vec4(1)).Vec3()
	if !p.ApproxEqual(Vec3{3, 2, 3}) {
		t.Fatalf("unexpected transformed point %v", p)
	}
	tr.Rotation = Vec3{0, 0, math.Pi / 2}
	p = tr.Matrix().Mul4x1(Vec3{1, 0, 0}.Vec4(1)).Vec3()
	if want := (Vec3{1, 4, 3}); !p.ApproxEqualThreshold(want, 1e-9) {
		t.Fatalf("got %v want %v", p, want)
	}
	if id := IdentityTransform().Matrix().Mul4x1(Vec3{5, 6, 7}.Vec4(1)).Vec3(); !id.ApproxEqual(Vec3{5, 6, 7}) {
		t.Fatalf("identity moved point to %v", id)
	}
}

func TestWithIDAndLayer(t *testing.T) {
	line := Line{Base: Base{ID: "a", CreatedAt: time.Now()}, Points: []Vec3{{0, 0, 0}}, LayerID: "x"}
	moved := WithLayer(WithID(line, "b"), "y").(Line)
	if moved.ID != "b" || moved.LayerID != "y" || !moved.CreatedAt.IsZero() {
		t.Fatalf("unexpected copy %+v", moved)
	}
	moved.Points[0] = Vec3{9, 9, 9}
	if line.Points[0] != (Vec3{}) {
		t.Fatalf("points aliased with original")
	}
	mat := Material{Base: Base{ID: "m"}}
	if WithLayer(mat, "y").Layer() != "" {
		t.Fatalf("materials have no layer")
	}
}
