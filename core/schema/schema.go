// Package schema defines the declarative description of a single entity:
// an ordered set of typed fields plus the identifier field.
// A Schema is built once and never mutated, so it is safe for concurrent reads.
package schema

import (
	"fmt"
	"strings"
)

// DefaultIDField is the identifier field name used when none is declared.
const DefaultIDField = "id"

// Schema is an ordered mapping from field name to Field.
type Schema struct {
	entity string
	id     string
	fields []Field
	index  map[string]int
}

// New builds a schema for entity from fields in declaration order.
// The identifier defaults to DefaultIDField when id is empty.
func New(entity, id string, fields ...Field) (*Schema, error) {
	if id == "" {
		id = DefaultIDField
	}

	s := &Schema{
		entity: entity,
		id:     id,
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}

	var errs []string

	if !isValidIdentifier(entity) {
		errs = append(errs, fmt.Sprintf("entity name %q is not a valid identifier", entity))
	}
	if len(fields) == 0 {
		errs = append(errs, "schema must have at least one field")
	}

	for _, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			errs = append(errs, fmt.Sprintf("field %q declared twice", f.Name))
			continue
		}
		if err := validateField(f); err != nil {
			errs = append(errs, err.Error())
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	if len(fields) > 0 {
		if _, ok := s.index[id]; !ok {
			errs = append(errs, fmt.Sprintf("identifier field %q is not declared", id))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return s, nil
}

// MustNew is like New but panics on error. Intended for tests and
// package-level schema declarations.
func MustNew(entity, id string, fields ...Field) *Schema {
	s, err := New(entity, id, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Entity returns the entity (table) name.
func (s *Schema) Entity() string {
	return s.entity
}

// IDField returns the identifier field name.
func (s *Schema) IDField() string {
	return s.id
}

// Fields returns the fields in declaration order. The slice is a copy.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether name is a declared field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

func validateField(f Field) error {
	if !isValidIdentifier(f.Name) {
		return fmt.Errorf("field name %q is not a valid identifier", f.Name)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
	}
	if f.Values != nil && len(f.Values) == 0 {
		return fmt.Errorf("field %q: values must not be empty", f.Name)
	}
	if f.Default != nil {
		if !f.Type.PassThrough() && !f.Type.Check(f.Default) {
			return fmt.Errorf("field %q: default %v does not match type %s", f.Name, f.Default, f.Type)
		}
		if f.IsEnum() && !f.Allows(f.Default) {
			return fmt.Errorf("field %q: default %v is not one of the allowed values", f.Name, f.Default)
		}
	}
	return nil
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else if !isLetter(c) && !isDigit(c) && c != '_' {
			return false
		}
	}
	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
