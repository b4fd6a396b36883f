// Package storage executes the four entity operations against a backend.
// Backends receive already authorized and validated input: projected field
// maps and query.Args built from parsed filter predicates.
package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/artpar/tablecrud/core/filter"
	"github.com/artpar/tablecrud/core/query"
	"github.com/artpar/tablecrud/core/schema"
)

// Record is one stored row keyed by field name.
type Record map[string]any

// Store provides the storage calls made by the operation handlers.
type Store interface {
	// Insert adds one record and returns it as stored, including the
	// identifier and filled-in defaults.
	Insert(ctx context.Context, fields map[string]any) (Record, error)

	// Select returns the records matching args. projection is "*" or a
	// comma separated list of field names.
	Select(ctx context.Context, projection string, args query.Args) ([]Record, error)

	// Update sets fields on every record matching args and returns the
	// updated records.
	Update(ctx context.Context, fields map[string]any, args query.Args) ([]Record, error)

	// Delete removes the records matching args and returns them.
	Delete(ctx context.Context, args query.Args) ([]Record, error)

	// Close releases the backend.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

// Drivers lists every driver name Open accepts.
var Drivers = []string{DriverMemory, DriverSQLite, DriverPostgres, DriverPGX}

// Open returns a ready store for s. SQL backends are pinged and the entity
// table is created if it does not exist.
func Open(ctx context.Context, driver, dsn string, s *schema.Schema) (Store, error) {
	if driver == DriverMemory {
		return NewMemoryStore(s), nil
	}

	st, err := NewSQLStore(driver, dsn, s)
	if err != nil {
		return nil, err
	}
	if err := st.DB().PingContext(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// QueryError is returned by every Store operation that fails.
// Op is the storage operation name.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// prepareInsert returns the normalized values to insert: the given fields,
// absent fields with a declared default, and a generated identifier when
// the identifier is a uuid.
func prepareInsert(s *schema.Schema, fields map[string]any) map[string]any {
	out := make(map[string]any, s.Len())
	for _, f := range s.Fields() {
		v, ok := fields[f.Name]
		if !ok {
			if f.Default == nil {
				continue
			}
			v = f.Default
		}
		out[f.Name] = f.Type.Normalize(v)
	}

	if id, ok := s.Field(s.IDField()); ok && id.Type == schema.FieldTypeUUID {
		if _, set := out[id.Name]; !set {
			out[id.Name] = uuid.NewString()
		}
	}
	return out
}

// normalizeFields normalizes update values by field type.
func normalizeFields(s *schema.Schema, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		f, ok := s.Field(name)
		if !ok {
			continue
		}
		out[name] = f.Type.Normalize(v)
	}
	return out
}

// resolvePredicate looks up the predicate field and converts its value to
// the field type. Single-quoted values are always compared as text.
func resolvePredicate(s *schema.Schema, p filter.Predicate) (schema.Field, any, error) {
	f, ok := s.Field(p.Field)
	if !ok {
		return schema.Field{}, nil, fmt.Errorf("unknown field %q in filter %q", p.Field, p.String())
	}
	if !p.Operator.Valid() {
		return schema.Field{}, nil, fmt.Errorf("unsupported operator %q in filter %q", p.Operator, p.String())
	}
	if lit, quoted := p.Literal(); quoted {
		return f, lit, nil
	}
	v, err := f.Type.Coerce(p.Value)
	if err != nil {
		return schema.Field{}, nil, fmt.Errorf("filter %q: %w", p.String(), err)
	}
	return f, v, nil
}
