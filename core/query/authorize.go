package query

import (
	"sort"

	"github.com/artpar/tablecrud/core/schema"
)

// Authorized reports whether every key in params is either a schema field
// or a control parameter allowed by the policy. It fails closed on the first
// unrecognized key and returns that key. Keys are examined in sorted order
// so the reported key does not depend on map iteration.
func Authorized(s *schema.Schema, params map[string]any, p Policy) (unknown string, ok bool) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if p.Allows(k) || s.Has(k) {
			continue
		}
		return k, false
	}
	return "", true
}

// IsAuthorized is Authorized without the offending key.
func IsAuthorized(s *schema.Schema, params map[string]any, allowRange, allowWhere bool) bool {
	_, ok := Authorized(s, params, Policy{AllowRange: allowRange, AllowWhere: allowWhere})
	return ok
}
