package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/tablecrud/core/query"
	"github.com/artpar/tablecrud/core/schema"
)

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	schema  *schema.Schema
}

// NewSQLStore opens a database for s. driver is one of sqlite3, postgres
// or pgx.
func NewSQLStore(driver, dsn string, s *schema.Schema) (*SQLStore, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	if d.Name == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if d.Name == DriverSQLite {
		// One connection so that :memory: databases are shared.
		db.SetMaxOpenConns(1)

		pragmas := []string{
			"PRAGMA synchronous = NORMAL",
			"PRAGMA temp_store = MEMORY",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("set pragma: %w", err)
			}
		}
	}

	return NewSQLStoreFromDB(db, d, s), nil
}

// NewSQLStoreFromDB creates a store on an existing connection.
func NewSQLStoreFromDB(db *sql.DB, d Dialect, s *schema.Schema) *SQLStore {
	return &SQLStore{db: db, dialect: d, schema: s}
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = ":memory:"
	}
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

// Migrate creates the entity table if it does not exist.
func (st *SQLStore) Migrate(ctx context.Context) error {
	createSQL := BuildCreateTableSQL(st.dialect, st.schema)
	if _, err := st.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %s: %w", st.schema.Entity(), err)
	}
	return nil
}

// Insert adds one record.
func (st *SQLStore) Insert(ctx context.Context, fields map[string]any) (Record, error) {
	q, args := BuildInsertSQL(st.dialect, st.schema, prepareInsert(st.schema, fields))
	records, err := st.query(ctx, q, args)
	if err != nil {
		return nil, &QueryError{Op: "insert", Err: err}
	}
	if len(records) == 0 {
		return nil, &QueryError{Op: "insert", Err: fmt.Errorf("no row returned")}
	}
	return records[0], nil
}

// Select returns matching records.
func (st *SQLStore) Select(ctx context.Context, projection string, args query.Args) ([]Record, error) {
	q, params, err := BuildSelectSQL(st.dialect, st.schema, projection, args)
	if err != nil {
		return nil, &QueryError{Op: "select", Err: err}
	}
	records, err := st.query(ctx, q, params)
	if err != nil {
		return nil, &QueryError{Op: "select", Err: err}
	}
	return records, nil
}

// Update sets fields on matching records. With no fields the matching
// records are returned unchanged.
func (st *SQLStore) Update(ctx context.Context, fields map[string]any, args query.Args) ([]Record, error) {
	values := normalizeFields(st.schema, fields)
	if len(values) == 0 {
		records, err := st.Select(ctx, "*", args)
		if err != nil {
			return nil, &QueryError{Op: "update", Err: err}
		}
		return records, nil
	}

	q, params, err := BuildUpdateSQL(st.dialect, st.schema, values, args)
	if err != nil {
		return nil, &QueryError{Op: "update", Err: err}
	}
	records, err := st.query(ctx, q, params)
	if err != nil {
		return nil, &QueryError{Op: "update", Err: err}
	}
	return records, nil
}

// Delete removes matching records.
func (st *SQLStore) Delete(ctx context.Context, args query.Args) ([]Record, error) {
	q, params, err := BuildDeleteSQL(st.dialect, st.schema, args)
	if err != nil {
		return nil, &QueryError{Op: "delete", Err: err}
	}
	records, err := st.query(ctx, q, params)
	if err != nil {
		return nil, &QueryError{Op: "delete", Err: err}
	}
	return records, nil
}

// Close closes the database.
func (st *SQLStore) Close() error {
	return st.db.Close()
}

// DB returns the underlying connection.
func (st *SQLStore) DB() *sql.DB {
	return st.db
}

// query runs q and scans every returned row. The result is never nil.
func (st *SQLStore) query(ctx context.Context, q string, args []any) ([]Record, error) {
	rows, err := st.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanDest := make([]any, len(columns))
		for i := range values {
			scanDest[i] = &values[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			record[col] = st.fromDB(col, values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// fromDB converts a scanned value back to the field's Go type.
func (st *SQLStore) fromDB(column string, val any) any {
	if b, ok := val.([]byte); ok {
		val = string(b)
	}
	if val == nil {
		return nil
	}

	f, ok := st.schema.Field(column)
	if !ok {
		return val
	}

	switch f.Type {
	case schema.FieldTypeBool:
		switch v := val.(type) {
		case int64:
			return v != 0
		case bool:
			return v
		}
	case schema.FieldTypeReal:
		switch v := val.(type) {
		case float32:
			return float64(v)
		case int64:
			return float64(v)
		}
	case schema.FieldTypeInteger, schema.FieldTypeAuto:
		if v, ok := val.(int32); ok {
			return int64(v)
		}
	}
	return val
}
