package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field describes one attribute of the entity.
type Field struct {
	// Name is the column and payload key.
	Name string `yaml:"-"`

	// Type is the semantic type. See FieldType constants.
	Type FieldType `yaml:"type"`

	// Default is filled in by storage when an insert omits the field.
	Default any `yaml:"default,omitempty"`

	// Required fields must be present in create and update payloads.
	Required bool `yaml:"required,omitempty"`

	// Values, when set, enumerates the only accepted values.
	Values []any `yaml:"values,omitempty"`

	// Description for documentation.
	Description string `yaml:"description,omitempty"`
}

// IsEnum reports whether the field restricts its values to Values.
func (f Field) IsEnum() bool {
	return f.Values != nil
}

// Allows reports whether v is one of the field's enumerated values.
// Values are compared by their printed form so that 1 and 1.0 decoded
// from different sources still match.
func (f Field) Allows(v any) bool {
	if v == nil {
		return false
	}
	s := printable(v)
	for _, allowed := range f.Values {
		if printable(allowed) == s {
			return true
		}
	}
	return false
}

func printable(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case json.Number:
		return n.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FieldType is the closed set of semantic types a field can have.
type FieldType string

const (
	// FieldTypeAuto marks backend-computed values such as an auto-assigned
	// identifier. Payload values of this type are never type checked.
	FieldTypeAuto FieldType = "auto"

	FieldTypeText    FieldType = "text"
	FieldTypeInteger FieldType = "integer"
	FieldTypeReal    FieldType = "real"
	FieldTypeBool    FieldType = "bool"
	FieldTypeDate    FieldType = "date"
	FieldTypeUUID    FieldType = "uuid"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeAuto, FieldTypeText, FieldTypeInteger, FieldTypeReal,
		FieldTypeBool, FieldTypeDate, FieldTypeUUID:
		return true
	default:
		return false
	}
}

// PassThrough reports whether values of this type skip type checking.
func (t FieldType) PassThrough() bool {
	return t == FieldTypeAuto
}

// Check reports whether v is an acceptable payload value for the type.
// v is expected to come from encoding/json, so numbers are float64.
func (t FieldType) Check(v any) bool {
	switch t {
	case FieldTypeAuto:
		return true
	case FieldTypeText:
		_, ok := v.(string)
		return ok
	case FieldTypeInteger:
		f, ok := number(v)
		return ok && f == math.Trunc(f) && inInt64Range(f)
	case FieldTypeReal:
		f, ok := number(v)
		return ok && !math.IsNaN(f)
	case FieldTypeBool:
		_, ok := v.(bool)
		return ok
	case FieldTypeDate:
		if s, ok := v.(string); ok {
			_, err := ParseDate(s)
			return err == nil
		}
		f, ok := number(v)
		return ok && inInt64Range(f)
	case FieldTypeUUID:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := uuid.Parse(s)
		return err == nil
	default:
		return false
	}
}

// Coerce converts a raw string, as found in a filter expression or query
// string, into a value of the type suitable for binding to a query.
func (t FieldType) Coerce(raw string) (any, error) {
	switch t {
	case FieldTypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil || f != math.Trunc(f) || !inInt64Range(f) {
				return nil, fmt.Errorf("%q is not an integer", raw)
			}
			return int64(f), nil
		}
		return n, nil
	case FieldTypeReal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case FieldTypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	case FieldTypeDate:
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return FormatDate(time.UnixMilli(ms)), nil
		}
		d, err := ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date", raw)
		}
		return FormatDate(d), nil
	case FieldTypeAuto:
		// Identifiers are numeric in every backend we ship; anything else
		// is compared as text.
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// Normalize converts a decoded payload value into the form storage keeps.
func (t FieldType) Normalize(v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case FieldTypeInteger:
		if f, ok := number(v); ok {
			return int64(f)
		}
	case FieldTypeReal:
		if f, ok := number(v); ok {
			return f
		}
	case FieldTypeDate:
		if f, ok := number(v); ok && inInt64Range(f) {
			return FormatDate(time.UnixMilli(int64(f)))
		}
		if s, ok := v.(string); ok {
			if d, err := ParseDate(s); err == nil {
				return FormatDate(d)
			}
		}
	}
	return v
}

// SQLType returns the column type used when creating tables.
func (t FieldType) SQLType() string {
	switch t {
	case FieldTypeInteger, FieldTypeBool:
		return "INTEGER"
	case FieldTypeReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// DateLayout is the fixed-width UTC form dates are stored in, so that text
// comparison orders dates chronologically.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses the date formats accepted by FieldTypeDate.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// inInt64Range reports whether f converts to int64 without overflow.
// 1<<63 is exact in float64; MaxInt64 is not.
func inInt64Range(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
