package domain

import (
	"fmt"
	"sort"
)

// ValueType enumerates the value shapes a metadata key may hold.
type ValueType string

// Supported metadata value types.
const (
	ValueString ValueType = "string"
	ValueNumber ValueType = "number"
	ValueBool   ValueType = "bool"
	ValueVec3   ValueType = "vec3"
)

// MetadataSchema maps metadata keys to their expected value type. A nil schema
// accepts any key.
type MetadataSchema map[string]ValueType

// Validate checks md against the schema. Unknown keys are rejected.
func (s MetadataSchema) Validate(md Metadata) error {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.ValidateValue(k, md[k]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateValue checks a single key/value pair.
func (s MetadataSchema) ValidateValue(key string, value any) error {
	if s == nil {
		return nil
	}
	want, ok := s[key]
	if !ok {
		return ErrInvariant{Rule: RuleMetadataShape, Message: fmt.Sprintf("unknown metadata key %q", key)}
	}
	if value == nil {
		return nil
	}
	var valid bool
	switch want {
	case ValueString:
		_, valid = value.(string)
	case ValueBool:
		_, valid = value.(bool)
	case ValueNumber:
		_, err := asFloat(value)
		valid = err == nil
	case ValueVec3:
		_, err := AsVec3(value)
		valid = err == nil
	}
	if !valid {
		return ErrInvariant{Rule: RuleMetadataShape, Message: fmt.Sprintf("metadata %q expects %s, got %T", key, want, value)}
	}
	return nil
}
