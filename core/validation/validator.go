// Package validation checks request payloads against a schema.
// Validation runs before any storage call and reports the first violation
// found in field-declaration order.
package validation

import (
	"fmt"
	"strings"

	"github.com/artpar/tablecrud/core/schema"
)

// Kind classifies a validation failure.
type Kind string

const (
	KindEnumViolation   Kind = "enum_violation"
	KindMissingRequired Kind = "missing_required"
	KindTypeMismatch    Kind = "type_mismatch"
)

// Failure describes the first violation found in a payload.
// It is serialized as the body of a 400 response.
type Failure struct {
	Kind     Kind   `json:"kind"`
	Property string `json:"property"`
	Received any    `json:"received"`
	Message  string `json:"error"`
	Allowed  []any  `json:"allowed,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Property, f.Message)
}

// Validate checks payload against every field of s in declaration order
// and returns the first violation, or nil when the payload is valid.
//
// For each field: an enumerated field must hold one of its values (an
// absent value is not one of them), a required field must be present and
// non-null, and a present value must satisfy the field type unless the
// type is auto.
func Validate(s *schema.Schema, payload map[string]any) *Failure {
	for _, field := range s.Fields() {
		value, present := payload[field.Name]
		if value == nil {
			present = false
		}

		if field.IsEnum() && !field.Allows(value) {
			return &Failure{
				Kind:     KindEnumViolation,
				Property: field.Name,
				Received: payload,
				Message:  fmt.Sprintf("must be one of: %s", joinValues(field.Values)),
				Allowed:  field.Values,
			}
		}

		if field.Required && !present {
			return &Failure{
				Kind:     KindMissingRequired,
				Property: field.Name,
				Received: payload,
				Message:  "field is required",
			}
		}

		if !present || field.Type.PassThrough() {
			continue
		}

		if !field.Type.Check(value) {
			return &Failure{
				Kind:     KindTypeMismatch,
				Property: field.Name,
				Received: payload,
				Message:  fmt.Sprintf("must be of type %s", field.Type),
			}
		}
	}

	return nil
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ", ")
}
