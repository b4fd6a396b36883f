package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/tablecrud/core/query"
	"github.com/artpar/tablecrud/core/schema"
	"github.com/artpar/tablecrud/core/storage"
	"github.com/artpar/tablecrud/core/validation"
)

func testSchema() *schema.Schema {
	return schema.MustNew("test", "",
		schema.Field{Name: "id", Type: schema.FieldTypeAuto},
		schema.Field{Name: "test", Type: schema.FieldTypeText, Required: true, Default: ""},
		schema.Field{Name: "int", Type: schema.FieldTypeInteger, Default: 0},
		schema.Field{Name: "real", Type: schema.FieldTypeReal, Default: 3.14},
		schema.Field{Name: "date", Type: schema.FieldTypeDate},
		schema.Field{Name: "kind", Type: schema.FieldTypeText, Values: []any{"a", "b"}, Default: "a"},
	)
}

// spyStore wraps a store and counts the calls that reach it.
type spyStore struct {
	storage.Store
	calls   int
	lastArg query.Args
	err     error
}

func (s *spyStore) Insert(ctx context.Context, fields map[string]any) (storage.Record, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Insert(ctx, fields)
}

func (s *spyStore) Select(ctx context.Context, projection string, args query.Args) ([]storage.Record, error) {
	s.calls++
	s.lastArg = args
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Select(ctx, projection, args)
}

func (s *spyStore) Update(ctx context.Context, fields map[string]any, args query.Args) ([]storage.Record, error) {
	s.calls++
	s.lastArg = args
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Update(ctx, fields, args)
}

func (s *spyStore) Delete(ctx context.Context, args query.Args) ([]storage.Record, error) {
	s.calls++
	s.lastArg = args
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Delete(ctx, args)
}

// spyRecorder collects recorder calls.
type spyRecorder struct {
	requests   map[string]int
	rejections []string
	storage    int
}

func newSpyRecorder() *spyRecorder {
	return &spyRecorder{requests: map[string]int{}}
}

func (r *spyRecorder) RecordRequest(operation string, status int) {
	r.requests[operation]++
}

func (r *spyRecorder) RecordRejection(operation, reason string) {
	r.rejections = append(r.rejections, operation+":"+reason)
}

func (r *spyRecorder) ObserveStorage(operation string, d time.Duration, err error) {
	r.storage++
}

func newTestChannel(t *testing.T) (*Channel, *spyStore) {
	t.Helper()
	s := testSchema()
	store := &spyStore{Store: storage.NewMemoryStore(s)}
	return New(NewHandlers(s, store), ""), store
}

func do(t *testing.T, c *Channel, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeRecords(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestNew(t *testing.T) {
	c, _ := newTestChannel(t)
	if c.BasePath() != "/api/test" {
		t.Errorf("BasePath() = %q, want /api/test", c.BasePath())
	}
	if c.Name() != "http" {
		t.Errorf("Name() = %q, want http", c.Name())
	}

	custom := New(NewHandlers(testSchema(), storage.NewMemoryStore(testSchema())), "v1/items/")
	if custom.BasePath() != "/v1/items" {
		t.Errorf("BasePath() = %q, want /v1/items", custom.BasePath())
	}
}

func TestCreate(t *testing.T) {
	c, store := newTestChannel(t)

	rec := do(t, c, "POST", "/api/test/create", map[string]any{"test": "hello", "int": 2, "kind": "a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	got := decodeObject(t, rec)
	if got["id"] != 1.0 || got["test"] != "hello" || got["int"] != 2.0 || got["real"] != 3.14 {
		t.Errorf("record = %v", got)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestCreate_IdentifierIgnored(t *testing.T) {
	c, _ := newTestChannel(t)

	rec := do(t, c, "POST", "/api/test/create", map[string]any{"test": "x", "id": 99, "kind": "a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeObject(t, rec); got["id"] != 1.0 {
		t.Errorf("id = %v, want backend assigned 1", got["id"])
	}
}

func TestCreate_UnknownArguments(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown field", map[string]any{"test": "x", "bogus": 1}},
		{"where", map[string]any{"test": "x", "where": "id=1"}},
		{"limit", map[string]any{"test": "x", "limit": 1}},
		{"order", map[string]any{"test": "x", "order": "id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newTestChannel(t)

			rec := do(t, c, "POST", "/api/test/create", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if rec.Body.String() != MsgUnknownArguments {
				t.Errorf("body = %q", rec.Body.String())
			}
			if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
				t.Errorf("Content-Type = %q, want text/plain", rec.Header().Get("Content-Type"))
			}
			if store.calls != 0 {
				t.Errorf("store called %d times", store.calls)
			}
		})
	}
}

func TestCreate_ValidationFailure(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		kind     validation.Kind
		property string
	}{
		{"missing required", map[string]any{"int": 1, "kind": "a"}, validation.KindMissingRequired, "test"},
		{"type mismatch", map[string]any{"test": "x", "int": "two", "kind": "a"}, validation.KindTypeMismatch, "int"},
		{"enum violation", map[string]any{"test": "x", "kind": "z"}, validation.KindEnumViolation, "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newTestChannel(t)

			rec := do(t, c, "POST", "/api/test/create", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			got := decodeObject(t, rec)
			if got["kind"] != string(tt.kind) {
				t.Errorf("kind = %v, want %s", got["kind"], tt.kind)
			}
			if got["property"] != tt.property {
				t.Errorf("property = %v, want %s", got["property"], tt.property)
			}
			if _, ok := got["error"]; !ok {
				t.Error("failure should carry an error message")
			}
			if store.calls != 0 {
				t.Errorf("store called %d times after validation failure", store.calls)
			}
		})
	}
}

func TestCreate_InvalidJSON(t *testing.T) {
	c, store := newTestChannel(t)

	for _, body := range []string{"{bad", "[1,2]", `"text"`} {
		rec := do(t, c, "POST", "/api/test/create", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
		if got := decodeObject(t, rec); got["error"] == nil {
			t.Errorf("body %q: missing error", body)
		}
	}
	if store.calls != 0 {
		t.Errorf("store called %d times", store.calls)
	}
}

func TestCreate_BackendFailure(t *testing.T) {
	s := testSchema()
	store := &spyStore{Store: storage.NewMemoryStore(s), err: &storage.QueryError{Op: "insert", Err: errors.New("disk full")}}
	c := New(NewHandlers(s, store), "")

	rec := do(t, c, "POST", "/api/test/create", map[string]any{"test": "x", "kind": "a"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeObject(t, rec); got["error"] != "insert: disk full" {
		t.Errorf("error = %v", got["error"])
	}
}

func TestRead(t *testing.T) {
	c, store := newTestChannel(t)
	for _, body := range []map[string]any{
		{"test": "a", "int": 1},
		{"test": "b", "int": 2},
		{"test": "b", "int": 3},
	} {
		body["kind"] = "a"
		if rec := do(t, c, "POST", "/api/test/create", body); rec.Code != http.StatusOK {
			t.Fatalf("create failed: %s", rec.Body.String())
		}
	}

	tests := []struct {
		name  string
		query string
		want  []float64
	}{
		{"all", "", []float64{1, 2, 3}},
		{"equality filter", "?test=b", []float64{2, 3}},
		{"where", "?where=int%3E%3D2", []float64{2, 3}},
		{"where and equality", "?where=int%3C3&test=b", []float64{2}},
		{"order limit", "?order=id%20desc&limit=1", []float64{3}},
		{"offset", "?offset=2", []float64{3}},
		{"unknown keys ignored", "?bogus=1&test=a", []float64{1}},
		{"no match", "?id=42", []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, c, "GET", "/api/test/read"+tt.query, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			records := decodeRecords(t, rec)
			if records == nil {
				t.Fatal("read returned null, want array")
			}
			if len(records) != len(tt.want) {
				t.Fatalf("records = %v, want ids %v", records, tt.want)
			}
			for i, r := range records {
				if r["id"] != tt.want[i] {
					t.Errorf("record %d id = %v, want %v", i, r["id"], tt.want[i])
				}
			}
		})
	}

	// Synthesized equality predicates follow the parsed where clauses.
	do(t, c, "GET", "/api/test/read?test=b&where=int%3E1", nil)
	if got := store.lastArg.Where; len(got) != 2 || got[0].String() != "int > 1" || got[1].String() != "test = b" {
		t.Errorf("where = %v", got)
	}
}

func TestRead_EmptyArray(t *testing.T) {
	c, _ := newTestChannel(t)

	rec := do(t, c, "GET", "/api/test/read", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}

func TestRead_BadQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"malformed where", "?where=id"},
		{"limit not a number", "?limit=ten"},
		{"negative offset", "?offset=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newTestChannel(t)
			rec := do(t, c, "GET", "/api/test/read"+tt.query, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := decodeObject(t, rec); got["error"] == nil {
				t.Error("missing error")
			}
			if store.calls != 0 {
				t.Errorf("store called %d times", store.calls)
			}
		})
	}
}

func TestRead_MalformedWhereReportsClause(t *testing.T) {
	c, _ := newTestChannel(t)

	rec := do(t, c, "GET", "/api/test/read?where=id%3D1,oops", nil)
	got := decodeObject(t, rec)
	if got["clause"] != "oops" || got["index"] != 1.0 {
		t.Errorf("response = %v", got)
	}
}

func TestRead_BackendFailure(t *testing.T) {
	c, _ := newTestChannel(t)

	// Unknown order fields are rejected by the store.
	rec := do(t, c, "GET", "/api/test/read?order=nope", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeObject(t, rec); !strings.HasPrefix(got["error"].(string), "select:") {
		t.Errorf("error = %v", got["error"])
	}
}

func TestUpdate(t *testing.T) {
	c, store := newTestChannel(t)
	do(t, c, "POST", "/api/test/create", map[string]any{"test": "a", "kind": "a"})
	do(t, c, "POST", "/api/test/create", map[string]any{"test": "b", "kind": "a"})

	rec := do(t, c, "POST", "/api/test/update", map[string]any{
		"test":  "z",
		"kind":  "b",
		"int":   7,
		"where": "id=2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	records := decodeRecords(t, rec)
	if len(records) != 1 || records[0]["id"] != 2.0 || records[0]["test"] != "z" || records[0]["int"] != 7.0 {
		t.Errorf("records = %v", records)
	}
	if len(store.lastArg.Where) != 1 || store.lastArg.Where[0].String() != "id = 2" {
		t.Errorf("where = %v", store.lastArg.Where)
	}

	rec = do(t, c, "GET", "/api/test/read?id=1", nil)
	if records := decodeRecords(t, rec); records[0]["test"] != "a" {
		t.Errorf("record 1 changed: %v", records[0])
	}
}

func TestUpdate_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]any
		plainText bool
	}{
		{"limit not allowed", map[string]any{"test": "x", "kind": "a", "where": "id=1", "limit": 1}, true},
		{"unknown field", map[string]any{"test": "x", "kind": "a", "nope": 1}, true},
		{"missing required", map[string]any{"kind": "a", "where": "id=1"}, false},
		{"malformed where", map[string]any{"test": "x", "kind": "a", "where": "id"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newTestChannel(t)

			rec := do(t, c, "POST", "/api/test/update", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if tt.plainText && rec.Body.String() != MsgUnknownArguments {
				t.Errorf("body = %q", rec.Body.String())
			}
			if store.calls != 0 {
				t.Errorf("store called %d times", store.calls)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	c, _ := newTestChannel(t)
	do(t, c, "POST", "/api/test/create", map[string]any{"test": "a", "kind": "a"})
	do(t, c, "POST", "/api/test/create", map[string]any{"test": "b", "kind": "a"})

	rec := do(t, c, "POST", "/api/test/delete", map[string]any{"where": "id=1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if records := decodeRecords(t, rec); len(records) != 1 || records[0]["id"] != 1.0 {
		t.Errorf("deleted = %v", records)
	}

	rec = do(t, c, "GET", "/api/test/read?where=id%3D1", nil)
	if records := decodeRecords(t, rec); len(records) != 0 {
		t.Errorf("read after delete = %v, want []", records)
	}

	rec = do(t, c, "GET", "/api/test/read", nil)
	if records := decodeRecords(t, rec); len(records) != 1 {
		t.Errorf("remaining = %v, want one record", records)
	}
}

func TestDelete_Unscoped(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"empty body", nil},
		{"empty object", map[string]any{}},
		{"empty where", map[string]any{"where": ""}},
		{"field data only", map[string]any{"test": "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newTestChannel(t)

			rec := do(t, c, "POST", "/api/test/delete", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if rec.Body.String() != MsgUnscopedDelete {
				t.Errorf("body = %q", rec.Body.String())
			}
			if store.calls != 0 {
				t.Errorf("store called %d times", store.calls)
			}
		})
	}
}

func TestDelete_UnknownArguments(t *testing.T) {
	c, store := newTestChannel(t)

	rec := do(t, c, "POST", "/api/test/delete", map[string]any{"where": "id=1", "order": "id"})
	if rec.Body.String() != MsgUnknownArguments {
		t.Errorf("body = %q", rec.Body.String())
	}
	if store.calls != 0 {
		t.Errorf("store called %d times", store.calls)
	}
}

func TestCreateThenReadLatest(t *testing.T) {
	c, _ := newTestChannel(t)

	var last map[string]any
	for _, name := range []string{"first", "second", "third"} {
		rec := do(t, c, "POST", "/api/test/create", map[string]any{"test": name, "kind": "b"})
		last = decodeObject(t, rec)
	}

	rec := do(t, c, "GET", "/api/test/read?order=id%20desc&limit=1", nil)
	records := decodeRecords(t, rec)
	if len(records) != 1 || records[0]["id"] != last["id"] || records[0]["test"] != "third" {
		t.Errorf("latest = %v, want %v", records, last)
	}
}

func TestRecorder(t *testing.T) {
	s := testSchema()
	r := newSpyRecorder()
	c := New(NewHandlers(s, storage.NewMemoryStore(s), WithRecorder(r)), "")

	do(t, c, "POST", "/api/test/create", map[string]any{"test": "x", "kind": "a"})
	do(t, c, "POST", "/api/test/delete", map[string]any{})
	do(t, c, "POST", "/api/test/create", map[string]any{"bogus": 1})

	if r.requests[OpCreate] != 2 || r.requests[OpDelete] != 1 {
		t.Errorf("requests = %v", r.requests)
	}
	want := []string{"delete:" + ReasonUnscoped, "create:" + ReasonUnauthorized}
	if strings.Join(r.rejections, ",") != strings.Join(want, ",") {
		t.Errorf("rejections = %v, want %v", r.rejections, want)
	}
	if r.storage != 1 {
		t.Errorf("storage observations = %d, want 1", r.storage)
	}
}

func TestSchemaHandler(t *testing.T) {
	c, _ := newTestChannel(t)

	rec := do(t, c, "GET", "/api/test/_schema", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got EntitySchema
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Entity != "test" || got.ID != "id" || len(got.Fields) != 6 {
		t.Errorf("schema = %+v", got)
	}
	if got.Fields[0].Name != "id" || !got.Fields[0].Identifier {
		t.Errorf("first field = %+v", got.Fields[0])
	}

	rec = do(t, c, "GET", "/api/test/_schema/kind", nil)
	var field FieldSchema
	if err := json.Unmarshal(rec.Body.Bytes(), &field); err != nil {
		t.Fatal(err)
	}
	if field.Type != "text" || len(field.Values) != 2 {
		t.Errorf("field = %+v", field)
	}

	rec = do(t, c, "GET", "/api/test/_schema/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
