// Package query turns request parameter sets into storage query arguments.
// It holds the per-operation parameter policies, the field projector and
// the Args builder. Everything here is pure.
package query

import (
	"github.com/artpar/tablecrud/core/filter"
)

// Control parameter names that are not schema fields.
const (
	ParamWhere  = "where"
	ParamLimit  = "limit"
	ParamOffset = "offset"
	ParamOrder  = "order"
)

// Args bundles filter predicates with pagination and ordering.
// It is built per request and passed to storage by value.
type Args struct {
	// Where holds predicates that must all match.
	Where []filter.Predicate `json:"where"`

	// Limit caps the number of affected records. Nil means no limit.
	Limit *int `json:"limit,omitempty"`

	// Offset skips records. Nil means no offset.
	Offset *int `json:"offset,omitempty"`

	// Order is "field [asc|desc][, field [asc|desc]...]".
	Order string `json:"order,omitempty"`
}

// Scoped reports whether the arguments restrict which records are affected.
func (a Args) Scoped() bool {
	return len(a.Where) > 0
}

// Policy lists the control parameters an operation accepts besides
// schema fields.
type Policy struct {
	// AllowRange permits limit, offset and order.
	AllowRange bool

	// AllowWhere permits where.
	AllowWhere bool
}

// Operation policies. Create accepts pure field data; update and delete
// additionally accept where.
var (
	CreatePolicy = Policy{}
	UpdatePolicy = Policy{AllowWhere: true}
	DeletePolicy = Policy{AllowWhere: true}
	ReadPolicy   = Policy{AllowRange: true, AllowWhere: true}
)

// Allows reports whether key is a control parameter accepted by the policy.
func (p Policy) Allows(key string) bool {
	switch key {
	case ParamLimit, ParamOffset, ParamOrder:
		return p.AllowRange
	case ParamWhere:
		return p.AllowWhere
	default:
		return false
	}
}
