package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/tablecrud/core/query"
	"github.com/artpar/tablecrud/core/schema"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string

	// Numbered selects $1, $2 placeholders instead of ?.
	Numbered bool

	// AutoID is the column definition of an auto identifier.
	AutoID string

	// OffsetNeedsLimit makes OFFSET emit a LIMIT -1 when no limit is set.
	OffsetNeedsLimit bool
}

var (
	SQLite = Dialect{
		Name:             DriverSQLite,
		AutoID:           "INTEGER PRIMARY KEY AUTOINCREMENT",
		OffsetNeedsLimit: true,
	}
	Postgres = Dialect{
		Name:     DriverPostgres,
		Numbered: true,
		AutoID:   "BIGSERIAL PRIMARY KEY",
	}
	PGX = Dialect{
		Name:     DriverPGX,
		Numbered: true,
		AutoID:   "BIGSERIAL PRIMARY KEY",
	}
)

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return SQLite, nil
	case DriverPostgres:
		return Postgres, nil
	case DriverPGX:
		return PGX, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// quote quotes an identifier. Names are validated by the schema so they
// never contain quotes.
func quote(name string) string {
	return `"` + name + `"`
}

// BuildCreateTableSQL generates the CREATE TABLE statement for s.
func BuildCreateTableSQL(d Dialect, s *schema.Schema) string {
	columns := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		columns = append(columns, buildColumnDef(d, s, f))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quote(s.Entity()), strings.Join(columns, ",\n  "))
}

func buildColumnDef(d Dialect, s *schema.Schema, f schema.Field) string {
	col := quote(f.Name) + " "
	if f.Name == s.IDField() {
		if f.Type == schema.FieldTypeAuto {
			return col + d.AutoID
		}
		return col + f.Type.SQLType() + " PRIMARY KEY"
	}
	col += f.Type.SQLType()
	if f.Required {
		col += " NOT NULL"
	}
	return col
}

// stmt accumulates SQL text and bound arguments.
type stmt struct {
	d    Dialect
	s    *schema.Schema
	sb   strings.Builder
	args []any
}

func newStmt(d Dialect, s *schema.Schema) *stmt {
	return &stmt{d: d, s: s}
}

func (b *stmt) write(format string, a ...any) {
	fmt.Fprintf(&b.sb, format, a...)
}

// bind records v and returns its placeholder.
func (b *stmt) bind(v any) string {
	b.args = append(b.args, v)
	if b.d.Numbered {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

func (b *stmt) String() string {
	return b.sb.String()
}

// toDB converts a normalized value into a driver value for f.
func toDB(f schema.Field, v any) any {
	if f.Type == schema.FieldTypeBool {
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	}
	return v
}

func (b *stmt) projection(projection string) error {
	projection = strings.TrimSpace(projection)
	if projection == "" || projection == "*" {
		b.write("*")
		return nil
	}

	var cols []string
	for _, name := range strings.Split(projection, ",") {
		name = strings.TrimSpace(name)
		if !b.s.Has(name) {
			return fmt.Errorf("unknown field %q in projection", name)
		}
		cols = append(cols, quote(name))
	}
	b.write("%s", strings.Join(cols, ", "))
	return nil
}

func (b *stmt) where(args query.Args) error {
	if len(args.Where) == 0 {
		return nil
	}

	conds := make([]string, 0, len(args.Where))
	for _, p := range args.Where {
		f, v, err := resolvePredicate(b.s, p)
		if err != nil {
			return err
		}
		conds = append(conds, fmt.Sprintf("%s %s %s", quote(f.Name), p.Operator, b.bind(toDB(f, v))))
	}
	b.write(" WHERE %s", strings.Join(conds, " AND "))
	return nil
}

func (b *stmt) orderAndRange(args query.Args) error {
	terms, err := query.ParseOrder(b.s, args.Order)
	if err != nil {
		return err
	}
	if len(terms) > 0 {
		parts := make([]string, len(terms))
		for i, t := range terms {
			parts[i] = quote(t.Field)
			if t.Desc {
				parts[i] += " DESC"
			}
		}
		b.write(" ORDER BY %s", strings.Join(parts, ", "))
	}

	switch {
	case args.Limit != nil:
		b.write(" LIMIT %d", *args.Limit)
	case args.Offset != nil && b.d.OffsetNeedsLimit:
		b.write(" LIMIT -1")
	}
	if args.Offset != nil {
		b.write(" OFFSET %d", *args.Offset)
	}
	return nil
}

// ranged reports whether args restrict the affected rows beyond where.
func ranged(args query.Args) bool {
	return args.Limit != nil || args.Offset != nil || strings.TrimSpace(args.Order) != ""
}

// scope writes the row selection of an UPDATE or DELETE. Ranged arguments
// go through an identifier sub-select since neither database accepts
// ORDER BY or LIMIT there.
func (b *stmt) scope(args query.Args) error {
	if !ranged(args) {
		return b.where(args)
	}

	id := quote(b.s.IDField())
	b.write(" WHERE %s IN (SELECT %s FROM %s", id, id, quote(b.s.Entity()))
	if err := b.where(args); err != nil {
		return err
	}
	if err := b.orderAndRange(args); err != nil {
		return err
	}
	b.write(")")
	return nil
}

// BuildSelectSQL builds a SELECT for projection and args.
func BuildSelectSQL(d Dialect, s *schema.Schema, projection string, args query.Args) (string, []any, error) {
	b := newStmt(d, s)
	b.write("SELECT ")
	if err := b.projection(projection); err != nil {
		return "", nil, err
	}
	b.write(" FROM %s", quote(s.Entity()))
	if err := b.where(args); err != nil {
		return "", nil, err
	}
	if err := b.orderAndRange(args); err != nil {
		return "", nil, err
	}
	return b.String(), b.args, nil
}

// BuildInsertSQL builds an INSERT of values, which must be normalized.
// Columns follow schema declaration order.
func BuildInsertSQL(d Dialect, s *schema.Schema, values map[string]any) (string, []any) {
	b := newStmt(d, s)
	b.write("INSERT INTO %s", quote(s.Entity()))

	var cols, placeholders []string
	for _, f := range s.Fields() {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, quote(f.Name))
		placeholders = append(placeholders, b.bind(toDB(f, v)))
	}

	if len(cols) == 0 {
		b.write(" DEFAULT VALUES")
	} else {
		b.write(" (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	}
	b.write(" RETURNING *")
	return b.String(), b.args
}

// BuildUpdateSQL builds an UPDATE setting values on the rows selected by
// args. values must be normalized and non-empty.
func BuildUpdateSQL(d Dialect, s *schema.Schema, values map[string]any, args query.Args) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, fmt.Errorf("no fields to update")
	}

	b := newStmt(d, s)
	b.write("UPDATE %s SET ", quote(s.Entity()))

	var sets []string
	for _, f := range s.Fields() {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", quote(f.Name), b.bind(toDB(f, v))))
	}
	b.write("%s", strings.Join(sets, ", "))

	if err := b.scope(args); err != nil {
		return "", nil, err
	}
	b.write(" RETURNING *")
	return b.String(), b.args, nil
}

// BuildDeleteSQL builds a DELETE of the rows selected by args.
func BuildDeleteSQL(d Dialect, s *schema.Schema, args query.Args) (string, []any, error) {
	b := newStmt(d, s)
	b.write("DELETE FROM %s", quote(s.Entity()))
	if err := b.scope(args); err != nil {
		return "", nil, err
	}
	b.write(" RETURNING *")
	return b.String(), b.args, nil
}
