package query

import (
	"github.com/artpar/tablecrud/core/schema"
)

// Project returns a new map holding only the payload keys that are schema
// fields. Values are copied unchanged. Project is idempotent.
func Project(s *schema.Schema, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if s.Has(k) {
			out[k] = v
		}
	}
	return out
}

// StripIdentifier removes the identifier field so request bodies can never
// set or overwrite it. fields is modified in place and returned.
func StripIdentifier(s *schema.Schema, fields map[string]any) map[string]any {
	delete(fields, s.IDField())
	return fields
}
