package domain

import (
	"fmt"
	"strings"
)

// Field names accepted by GetField and SetField. Keyed bag entries use a
// prefix: "metadata.<key>", "properties.<key>" or "parameters.<key>".
const (
	FieldColor      = "color"
	FieldWidth      = "width"
	FieldPoints     = "points"
	FieldLayerID    = "layerId"
	FieldPath       = "path"
	FieldType       = "type"
	FieldPosition   = "position"
	FieldRotation   = "rotation"
	FieldScale      = "scale"
	FieldVisible    = "visible"
	FieldMaterialID = "materialId"
	FieldGeometryID = "geometryId"
	FieldName       = "name"
	FieldLocked     = "locked"
	FieldOpacity    = "opacity"
	FieldDesc       = "description"

	prefixMetadata   = "metadata."
	prefixProperties = "properties."
	prefixParameters = "parameters."
)

// GetField reads a single named field from an entity. Absent bag keys return (nil, nil).
//
//nolint:gocyclo // one switch arm per field keeps the accessor table readable.
func GetField(e Entity, field string) (any, error) {
	switch v := e.(type) {
	case Line:
		switch field {
		case FieldColor:
			return v.Color, nil
		case FieldWidth:
			return v.Width, nil
		case FieldPoints:
			return append([]Vec3(nil), v.Points...), nil
		case FieldLayerID:
			return v.LayerID, nil
		}
	case Model:
		switch field {
		case FieldPath:
			return v.Path, nil
		case FieldType:
			return v.Type, nil
		case FieldPosition:
			return v.Position, nil
		case FieldRotation:
			return v.Rotation, nil
		case FieldScale:
			return v.Scale, nil
		case FieldVisible:
			return v.Visible, nil
		case FieldLayerID:
			return v.LayerID, nil
		case FieldMaterialID:
			return v.MaterialID, nil
		case FieldGeometryID:
			return v.GeometryID, nil
		}
		if key, ok := strings.CutPrefix(field, prefixMetadata); ok {
			return v.Metadata[key], nil
		}
	case Material:
		if val, ok, err := bagField(v.Name, v.Type, v.Properties, prefixProperties, field); ok {
			return val, err
		}
	case Texture:
		if val, ok, err := bagField(v.Name, v.Type, v.Properties, prefixProperties, field); ok {
			return val, err
		}
	case Geometry:
		if val, ok, err := bagField(v.Name, v.Type, v.Parameters, prefixParameters, field); ok {
			return val, err
		}
	default:
		return nil, fmt.Errorf("unsupported entity %T", e)
	}
	return nil, fmt.Errorf("%s has no field %q", e.Kind(), field)
}

func bagField(name, typ string, bag map[string]any, prefix, field string) (any, bool, error) {
	switch field {
	case FieldName:
		return name, true, nil
	case FieldType:
		return typ, true, nil
	}
	if key, ok := strings.CutPrefix(field, prefix); ok {
		return cloneValue(bag[key]), true, nil
	}
	return nil, false, nil
}

// SetField returns a copy of e with the named field set to value. A nil value
// deletes a keyed bag entry.
//
//nolint:gocyclo // mirrors GetField.
func SetField(e Entity, field string, value any) (Entity, error) {
	switch v := Clone(e).(type) {
	case Line:
		var err error
		switch field {
		case FieldColor:
			v.Color, err = asString(value)
		case FieldWidth:
			v.Width, err = asFloat(value)
		case FieldPoints:
			v.Points, err = AsPoints(value)
		case FieldLayerID:
			v.LayerID, err = asString(value)
		default:
			return nil, fmt.Errorf("line has no field %q", field)
		}
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", field, err)
		}
		return v, nil
	case Model:
		var err error
		switch field {
		case FieldPath:
			v.Path, err = asString(value)
		case FieldType:
			var s string
			s, err = asString(value)
			v.Type = ModelType(s)
		case FieldPosition:
			v.Position, err = AsVec3(value)
		case FieldRotation:
			v.Rotation, err = AsVec3(value)
		case FieldScale:
			v.Scale, err = AsVec3(value)
		case FieldVisible:
			v.Visible, err = asBool(value)
		case FieldLayerID:
			v.LayerID, err = asString(value)
		case FieldMaterialID:
			v.MaterialID, err = asString(value)
		case FieldGeometryID:
			v.GeometryID, err = asString(value)
		default:
			key, ok := strings.CutPrefix(field, prefixMetadata)
			if !ok || key == "" {
				return nil, fmt.Errorf("model has no field %q", field)
			}
			if value == nil {
				delete(v.Metadata, key)
			} else {
				v.Metadata.Set(key, value)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", field, err)
		}
		return v, nil
	case Material:
		err := setBagField(&v.Name, &v.Type, &v.Properties, prefixProperties, field, value)
		return v, err
	case Texture:
		err := setBagField(&v.Name, &v.Type, &v.Properties, prefixProperties, field, value)
		return v, err
	case Geometry:
		err := setBagField(&v.Name, &v.Type, &v.Parameters, prefixParameters, field, value)
		return v, err
	}
	return nil, fmt.Errorf("unsupported entity %T", e)
}

func setBagField(name, typ *string, bag *map[string]any, prefix, field string, value any) error {
	var err error
	switch field {
	case FieldName:
		*name, err = asString(value)
		return err
	case FieldType:
		*typ, err = asString(value)
		return err
	}
	key, ok := strings.CutPrefix(field, prefix)
	if !ok || key == "" {
		return fmt.Errorf("no field %q", field)
	}
	if value == nil {
		delete(*bag, key)
		return nil
	}
	if *bag == nil {
		*bag = make(map[string]any)
	}
	(*bag)[key] = cloneValue(value)
	return nil
}

// GetLayerField reads a named layer attribute.
func GetLayerField(l Layer, field string) (any, error) {
	switch field {
	case FieldName:
		return l.Name, nil
	case FieldColor:
		return l.Color, nil
	case FieldVisible:
		return l.Visible, nil
	case FieldLocked:
		return l.Locked, nil
	case FieldOpacity:
		if l.Opacity == nil {
			return nil, nil
		}
		return *l.Opacity, nil
	case FieldDesc:
		return l.Description, nil
	}
	return nil, fmt.Errorf("layer has no field %q", field)
}

// SetLayerField sets a named layer attribute in place. A nil opacity clears it.
func SetLayerField(l *Layer, field string, value any) error {
	var err error
	switch field {
	case FieldName:
		l.Name, err = asString(value)
	case FieldColor:
		l.Color, err = asString(value)
	case FieldVisible:
		l.Visible, err = asBool(value)
	case FieldLocked:
		l.Locked, err = asBool(value)
	case FieldOpacity:
		if value == nil {
			l.Opacity = nil
			return nil
		}
		var f float64
		if f, err = asFloat(value); err == nil {
			if f < 0 || f > 1 {
				return fmt.Errorf("opacity %v out of range [0,1]", f)
			}
			l.Opacity = &f
		}
	case FieldDesc:
		l.Description, err = asString(value)
	default:
		return fmt.Errorf("layer has no field %q", field)
	}
	if err != nil {
		return fmt.Errorf("layer %s: %w", field, err)
	}
	return nil
}

func asString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case ModelType:
		return string(s), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// AsVec3 converts Vec3, [3]float64, []float64 or a decoded JSON []any into a Vec3.
func AsVec3(v any) (Vec3, error) {
	switch t := v.(type) {
	case Vec3:
		return t, nil
	case []float64:
		if len(t) != 3 {
			return Vec3{}, fmt.Errorf("expected 3 components, got %d", len(t))
		}
		return Vec3{t[0], t[1], t[2]}, nil
	case []any:
		if len(t) != 3 {
			return Vec3{}, fmt.Errorf("expected 3 components, got %d", len(t))
		}
		var out Vec3
		for i, c := range t {
			f, err := asFloat(c)
			if err != nil {
				return Vec3{}, err
			}
			out[i] = f
		}
		return out, nil
	}
	return Vec3{}, fmt.Errorf("expected vec3, got %T", v)
}

// AsPoints converts a point list value into []Vec3.
func AsPoints(v any) ([]Vec3, error) {
	switch t := v.(type) {
	case []Vec3:
		return append([]Vec3(nil), t...), nil
	case []any:
		out := make([]Vec3, 0, len(t))
		for _, item := range t {
			p, err := AsVec3(item)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("expected point list, got %T", v)
}
