// Package ai provides the agent-output parsing and invocation layer.
//
// Agent transports return free-form text. Everything downstream of this
// package operates on schema-validated objects, never on raw text.
package ai

import (
	"fmt"
	"sort"
	"strings"
)

// FieldKind is the expected JSON type of a schema field
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindArray  FieldKind = "array"
	KindObject FieldKind = "object"
)

// Field describes one schema entry
type Field struct {
	Kind     FieldKind
	Required bool
}

// Schema maps field names to their expected kinds. It is deliberately
// shallow: nested validation belongs to the typed decode step, not the
// extraction boundary.
type Schema map[string]Field

// Required returns the schema's required field names in sorted order
func (s Schema) Required() []string {
	var names []string
	for name, f := range s {
		if f.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Describe renders the schema as a prompt-friendly field list
func (s Schema) Describe() string {
	var parts []string
	for _, name := range s.Required() {
		parts = append(parts, fmt.Sprintf("%s (%s)", name, s[name].Kind))
	}
	return strings.Join(parts, ", ")
}

// Validate checks obj against the schema. It reports the first missing
// required field or kind mismatch; optional fields are checked only when
// present.
func (s Schema) Validate(obj map[string]any) error {
	for _, name := range sortedKeys(s) {
		field := s[name]
		value, ok := obj[name]
		if !ok || value == nil {
			if field.Required {
				return fmt.Errorf("missing required field %q", name)
			}
			continue
		}
		if err := checkKind(name, field.Kind, value); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(name string, kind FieldKind, value any) error {
	ok := false
	switch kind {
	case KindString:
		_, ok = value.(string)
	case KindNumber:
		// encoding/json decodes all JSON numbers as float64
		_, ok = value.(float64)
	case KindBool:
		_, ok = value.(bool)
	case KindArray:
		_, ok = value.([]any)
	case KindObject:
		_, ok = value.(map[string]any)
	default:
		return fmt.Errorf("field %q has unknown schema kind %q", name, kind)
	}
	if !ok {
		return fmt.Errorf("field %q: expected %s, got %T", name, kind, value)
	}
	return nil
}

func sortedKeys(s Schema) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
