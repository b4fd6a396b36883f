// Package filter parses the comparison mini-language used by the `where`
// request parameter:
//
//	where  := clause ("," clause)*
//	clause := field op value
//	op     := "<=" | ">=" | "<>" | "<" | "=" | ">"
//
// Parsing is pure and produces backend-agnostic predicates. Storage decides
// how to execute them.
package filter

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator. The set is closed; see Operators.
type Operator string

const (
	OpEq Operator = "="
	OpLt Operator = "<"
	OpGt Operator = ">"
	OpLe Operator = "<="
	OpGe Operator = ">="
	OpNe Operator = "<>"
)

// Operators lists every supported operator.
var Operators = []Operator{OpEq, OpLt, OpGt, OpLe, OpGe, OpNe}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpLt, OpGt, OpLe, OpGe, OpNe:
		return true
	default:
		return false
	}
}

// Predicate is one comparison: Field Operator Value.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Eq builds an equality predicate.
func Eq(field, value string) Predicate {
	return Predicate{Field: field, Operator: OpEq, Value: value}
}

// String renders the predicate as "<field> <op> <value>".
func (p Predicate) String() string {
	return p.Field + " " + string(p.Operator) + " " + p.Value
}

// Literal returns the value with one level of single quotes removed and
// doubled quotes unescaped, so 'it''s' yields it's. Unquoted values are
// returned unchanged.
func (p Predicate) Literal() (string, bool) {
	v := p.Value
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'"), true
	}
	return v, false
}

// ParseError reports a clause that does not contain a usable comparison.
type ParseError struct {
	// Clause is the offending clause text.
	Clause string `json:"clause"`

	// Index is the zero-based position of the clause in the where string.
	Index int `json:"index"`

	// Reason describes what is wrong.
	Reason string `json:"reason"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("where clause %d %q: %s", e.Index, e.Clause, e.Reason)
}

// Strings renders predicates in order.
func Strings(preds []Predicate) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.String()
	}
	return out
}
