package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/tablecrud/core/filter"
	"github.com/artpar/tablecrud/core/query"
	"github.com/artpar/tablecrud/core/schema"
)

// MemoryStore implements Store with an in-memory table kept in insertion
// order. It follows SQL semantics: null values never match a comparison
// and sort first.
type MemoryStore struct {
	mu     sync.RWMutex
	schema *schema.Schema
	rows   []Record
	nextID int64
}

// NewMemoryStore creates an empty store for s.
func NewMemoryStore(s *schema.Schema) *MemoryStore {
	return &MemoryStore{schema: s, nextID: 1}
}

// Insert adds one record.
func (m *MemoryStore) Insert(ctx context.Context, fields map[string]any) (Record, error) {
	values := prepareInsert(m.schema, fields)

	m.mu.Lock()
	defer m.mu.Unlock()

	idField := m.schema.IDField()
	if f, ok := m.schema.Field(idField); ok && f.Type == schema.FieldTypeAuto {
		values[idField] = m.nextID
		m.nextID++
	}

	if id, ok := values[idField]; ok {
		for _, row := range m.rows {
			if compareEqual(row[idField], id) {
				return nil, &QueryError{Op: "insert", Err: fmt.Errorf("duplicate %s %v", idField, id)}
			}
		}
	}

	record := m.complete(values)
	m.rows = append(m.rows, record)
	return copyRecord(record), nil
}

// complete returns a record holding every schema field.
func (m *MemoryStore) complete(values map[string]any) Record {
	record := make(Record, m.schema.Len())
	for _, name := range m.schema.Names() {
		record[name] = values[name]
	}
	return record
}

// Select returns matching records.
func (m *MemoryStore) Select(ctx context.Context, projection string, args query.Args) ([]Record, error) {
	cols, err := m.columns(projection)
	if err != nil {
		return nil, &QueryError{Op: "select", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.match(args)
	if err != nil {
		return nil, &QueryError{Op: "select", Err: err}
	}

	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		row := m.rows[i]
		rec := make(Record, len(cols))
		for _, c := range cols {
			rec[c] = row[c]
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update sets fields on matching records.
func (m *MemoryStore) Update(ctx context.Context, fields map[string]any, args query.Args) ([]Record, error) {
	values := normalizeFields(m.schema, fields)

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.match(args)
	if err != nil {
		return nil, &QueryError{Op: "update", Err: err}
	}

	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		for k, v := range values {
			m.rows[i][k] = v
		}
		out = append(out, copyRecord(m.rows[i]))
	}
	return out, nil
}

// Delete removes matching records.
func (m *MemoryStore) Delete(ctx context.Context, args query.Args) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.match(args)
	if err != nil {
		return nil, &QueryError{Op: "delete", Err: err}
	}

	removed := make(map[int]bool, len(idx))
	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		removed[i] = true
		out = append(out, m.rows[i])
	}

	kept := m.rows[:0]
	for i, row := range m.rows {
		if !removed[i] {
			kept = append(kept, row)
		}
	}
	for i := len(kept); i < len(m.rows); i++ {
		m.rows[i] = nil
	}
	m.rows = kept
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *MemoryStore) columns(projection string) ([]string, error) {
	projection = strings.TrimSpace(projection)
	if projection == "" || projection == "*" {
		return m.schema.Names(), nil
	}

	var cols []string
	for _, name := range strings.Split(projection, ",") {
		name = strings.TrimSpace(name)
		if !m.schema.Has(name) {
			return nil, fmt.Errorf("unknown field %q in projection", name)
		}
		cols = append(cols, name)
	}
	return cols, nil
}

type resolved struct {
	field string
	op    filter.Operator
	value any
}

// match returns the indexes of the rows selected by args, ordered and
// ranged. Callers hold the lock.
func (m *MemoryStore) match(args query.Args) ([]int, error) {
	conds := make([]resolved, 0, len(args.Where))
	for _, p := range args.Where {
		f, v, err := resolvePredicate(m.schema, p)
		if err != nil {
			return nil, err
		}
		conds = append(conds, resolved{field: f.Name, op: p.Operator, value: v})
	}

	terms, err := query.ParseOrder(m.schema, args.Order)
	if err != nil {
		return nil, err
	}

	var idx []int
	for i, row := range m.rows {
		if matchesAll(row, conds) {
			idx = append(idx, i)
		}
	}

	if len(terms) > 0 {
		sort.SliceStable(idx, func(a, b int) bool {
			ra, rb := m.rows[idx[a]], m.rows[idx[b]]
			for _, t := range terms {
				c := compareOrder(ra[t.Field], rb[t.Field])
				if c == 0 {
					continue
				}
				if t.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if args.Offset != nil {
		if *args.Offset >= len(idx) {
			idx = nil
		} else {
			idx = idx[*args.Offset:]
		}
	}
	if args.Limit != nil && *args.Limit < len(idx) {
		idx = idx[:*args.Limit]
	}
	return idx, nil
}

func matchesAll(row Record, conds []resolved) bool {
	for _, c := range conds {
		cmp, ok := compareValues(row[c.field], c.value)
		if !ok {
			return false
		}
		switch c.op {
		case filter.OpEq:
			ok = cmp == 0
		case filter.OpNe:
			ok = cmp != 0
		case filter.OpLt:
			ok = cmp < 0
		case filter.OpGt:
			ok = cmp > 0
		case filter.OpLe:
			ok = cmp <= 0
		case filter.OpGe:
			ok = cmp >= 0
		default:
			ok = false
		}
		if !ok {
			return false
		}
	}
	return true
}

// compareValues compares a stored value with a filter value. ok is false
// when either side is null.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)), true
}

func compareEqual(a, b any) bool {
	c, ok := compareValues(a, b)
	return ok && c == 0
}

// compareOrder orders nulls first.
func compareOrder(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compareValues(a, b)
	return c
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
