package storage

import (
	"reflect"
	"strings"
	"testing"

	"github.com/artpar/tablecrud/core/query"
)

func TestBuildCreateTableSQL(t *testing.T) {
	s := testSchema()

	sqlite := BuildCreateTableSQL(SQLite, s)
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "test"`,
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"test" TEXT NOT NULL`,
		`"int" INTEGER`,
		`"real" REAL`,
		`"date" TEXT`,
		`"flag" INTEGER`,
	} {
		if !strings.Contains(sqlite, want) {
			t.Errorf("sqlite DDL missing %q:\n%s", want, sqlite)
		}
	}

	pg := BuildCreateTableSQL(Postgres, s)
	if !strings.Contains(pg, `"id" BIGSERIAL PRIMARY KEY`) {
		t.Errorf("postgres DDL = %s", pg)
	}

	// Column order follows declaration order.
	if strings.Index(sqlite, `"int"`) > strings.Index(sqlite, `"real"`) {
		t.Error("columns out of declaration order")
	}
}

func TestBuildSelectSQL(t *testing.T) {
	s := testSchema()
	args := where(t, "id<=10,real>2,flag=true")
	args.Order = "id desc"
	args.Limit = intPtr(5)

	tests := []struct {
		name     string
		dialect  Dialect
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "sqlite",
			dialect:  SQLite,
			wantSQL:  `SELECT * FROM "test" WHERE "id" <= ? AND "real" > ? AND "flag" = ? ORDER BY "id" DESC LIMIT 5`,
			wantArgs: []any{int64(10), 2.0, int64(1)},
		},
		{
			name:     "postgres",
			dialect:  Postgres,
			wantSQL:  `SELECT * FROM "test" WHERE "id" <= $1 AND "real" > $2 AND "flag" = $3 ORDER BY "id" DESC LIMIT 5`,
			wantArgs: []any{int64(10), 2.0, int64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, params, err := BuildSelectSQL(tt.dialect, s, "*", args)
			if err != nil {
				t.Fatalf("BuildSelectSQL failed: %v", err)
			}
			if q != tt.wantSQL {
				t.Errorf("sql =\n%s\nwant\n%s", q, tt.wantSQL)
			}
			if !reflect.DeepEqual(params, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", params, tt.wantArgs)
			}
		})
	}
}

func TestBuildSelectSQLOffsetOnly(t *testing.T) {
	s := testSchema()
	args := query.Args{Offset: intPtr(3)}

	q, _, err := BuildSelectSQL(SQLite, s, "*", args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(q, "LIMIT -1 OFFSET 3") {
		t.Errorf("sqlite sql = %s", q)
	}

	q, _, err = BuildSelectSQL(Postgres, s, "*", args)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(q, "LIMIT") || !strings.HasSuffix(q, "OFFSET 3") {
		t.Errorf("postgres sql = %s", q)
	}
}

func TestBuildSelectSQLLiteral(t *testing.T) {
	s := testSchema()
	_, params, err := BuildSelectSQL(SQLite, s, "*", where(t, "test='it''s'"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(params, []any{"it's"}) {
		t.Errorf("args = %#v", params)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	s := testSchema()

	q, params := BuildInsertSQL(Postgres, s, map[string]any{"real": 1.5, "test": "x"})
	want := `INSERT INTO "test" ("test", "real") VALUES ($1, $2) RETURNING *`
	if q != want {
		t.Errorf("sql = %s, want %s", q, want)
	}
	if !reflect.DeepEqual(params, []any{"x", 1.5}) {
		t.Errorf("args = %#v", params)
	}

	q, params = BuildInsertSQL(SQLite, s, map[string]any{})
	if q != `INSERT INTO "test" DEFAULT VALUES RETURNING *` || len(params) != 0 {
		t.Errorf("empty insert = %s %v", q, params)
	}
}

func TestBuildUpdateSQL(t *testing.T) {
	s := testSchema()

	q, params, err := BuildUpdateSQL(Postgres, s, map[string]any{"int": int64(4)}, where(t, "id=2"))
	if err != nil {
		t.Fatal(err)
	}
	want := `UPDATE "test" SET "int" = $1 WHERE "id" = $2 RETURNING *`
	if q != want {
		t.Errorf("sql = %s, want %s", q, want)
	}
	if !reflect.DeepEqual(params, []any{int64(4), int64(2)}) {
		t.Errorf("args = %#v", params)
	}

	args := where(t, "int>1")
	args.Order = "id desc"
	args.Limit = intPtr(1)
	q, _, err = BuildUpdateSQL(SQLite, s, map[string]any{"int": int64(0)}, args)
	if err != nil {
		t.Fatal(err)
	}
	want = `UPDATE "test" SET "int" = ? WHERE "id" IN (SELECT "id" FROM "test" WHERE "int" > ? ORDER BY "id" DESC LIMIT 1) RETURNING *`
	if q != want {
		t.Errorf("ranged sql =\n%s\nwant\n%s", q, want)
	}

	if _, _, err := BuildUpdateSQL(SQLite, s, map[string]any{}, args); err == nil {
		t.Error("empty update should fail")
	}
}

func TestBuildDeleteSQL(t *testing.T) {
	s := testSchema()

	q, params, err := BuildDeleteSQL(SQLite, s, where(t, "id=1"))
	if err != nil {
		t.Fatal(err)
	}
	if q != `DELETE FROM "test" WHERE "id" = ? RETURNING *` {
		t.Errorf("sql = %s", q)
	}
	if !reflect.DeepEqual(params, []any{int64(1)}) {
		t.Errorf("args = %#v", params)
	}

	if _, _, err := BuildDeleteSQL(SQLite, s, where(t, "nope=1")); err == nil {
		t.Error("unknown field should fail")
	}
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverPostgres, DriverPGX} {
		d, err := DialectFor(driver)
		if err != nil {
			t.Errorf("DialectFor(%s) failed: %v", driver, err)
		}
		if d.Name != driver {
			t.Errorf("Name = %s, want %s", d.Name, driver)
		}
	}
	if _, err := DialectFor(DriverMemory); err == nil {
		t.Error("memory is not an sql dialect")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ":memory:?_journal_mode=WAL&_busy_timeout=5000"},
		{"data.db", "data.db?_journal_mode=WAL&_busy_timeout=5000"},
		{"file:data.db?cache=shared", "file:data.db?cache=shared&_journal_mode=WAL&_busy_timeout=5000"},
		{"data.db?_busy_timeout=100", "data.db?_busy_timeout=100"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
