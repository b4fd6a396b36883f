package filter

import (
	"strings"
)

// Two-character operators are matched before single-character ones so that
// "a<=1" is never read as "a" < "=1".
var (
	doubleOps = []Operator{OpLe, OpGe, OpNe}
	singleOps = []Operator{OpLt, OpEq, OpGt}
)

// ParseWhere splits where on commas and parses every clause in order.
// An empty string yields an empty, non-nil slice.
// The first malformed clause aborts parsing with a *ParseError.
func ParseWhere(where string) ([]Predicate, error) {
	preds := []Predicate{}
	if where == "" {
		return preds, nil
	}

	for i, clause := range strings.Split(where, ",") {
		p, err := parseClause(clause)
		if err != nil {
			err.Index = i
			return nil, err
		}
		preds = append(preds, p)
	}

	return preds, nil
}

// parseClause parses a single "field<op>value" clause.
func parseClause(clause string) (Predicate, *ParseError) {
	op, at := firstOperator(clause, doubleOps)
	if at < 0 {
		op, at = firstOperator(clause, singleOps)
	}
	if at < 0 {
		return Predicate{}, &ParseError{Clause: clause, Reason: "no comparison operator"}
	}

	field := strings.TrimSpace(clause[:at])
	value := strings.TrimSpace(clause[at+len(op):])
	if field == "" {
		return Predicate{}, &ParseError{Clause: clause, Reason: "missing field name"}
	}

	return Predicate{Field: field, Operator: op, Value: value}, nil
}

// firstOperator returns whichever of ops occurs earliest in s, or -1.
func firstOperator(s string, ops []Operator) (Operator, int) {
	best, at := Operator(""), -1
	for _, op := range ops {
		if i := strings.Index(s, string(op)); i >= 0 && (at < 0 || i < at) {
			best, at = op, i
		}
	}
	return best, at
}
