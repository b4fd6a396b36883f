package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/tablecrud/core/filter"
	"github.com/artpar/tablecrud/core/query"
	"github.com/artpar/tablecrud/core/schema"
	"github.com/artpar/tablecrud/core/storage"
	"github.com/artpar/tablecrud/core/validation"
)

// Operation names used in logs and metrics.
const (
	OpCreate = "create"
	OpRead   = "read"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Plain-text rejection messages.
const (
	MsgUnknownArguments = "Invalid Form Data, unknown arguments."
	MsgUnscopedDelete   = "Full table deletion not allowed, must specify 'where' clause(s)."
)

// Rejection reasons reported to the Recorder.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonInvalid      = "invalid"
	ReasonBadQuery     = "bad_query"
	ReasonBadBody      = "bad_body"
	ReasonUnscoped     = "unscoped"
)

// Recorder receives per-request measurements. *metrics.Collector
// implements it.
type Recorder interface {
	RecordRequest(operation string, status int)
	RecordRejection(operation, reason string)
	ObserveStorage(operation string, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, int)                   {}
func (nopRecorder) RecordRejection(string, string)              {}
func (nopRecorder) ObserveStorage(string, time.Duration, error) {}

// Handlers serves the four entity operations for one schema and store.
// Both are fixed at construction and shared by all requests.
type Handlers struct {
	schema   *schema.Schema
	store    storage.Store
	logger   zerolog.Logger
	recorder Recorder
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Handlers) {
		if r != nil {
			h.recorder = r
		}
	}
}

// NewHandlers creates the operation handlers for s backed by store.
func NewHandlers(s *schema.Schema, store storage.Store, opts ...Option) *Handlers {
	h := &Handlers{
		schema:   s,
		store:    store,
		logger:   zerolog.Nop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Schema returns the schema the handlers serve.
func (h *Handlers) Schema() *schema.Schema {
	return h.schema
}

// Create handles create requests. The body holds field values only.
func (h *Handlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := h.begin(r, OpCreate)

		params, ok := rc.decodeBody(w, r)
		if !ok {
			return
		}
		if !rc.authorize(w, params, query.CreatePolicy) {
			return
		}
		if !rc.validate(w, params) {
			return
		}

		fields := query.StripIdentifier(h.schema, query.Project(h.schema, params))

		var record storage.Record
		err := rc.call(func(ctx context.Context) (err error) {
			record, err = h.store.Insert(ctx, fields)
			return err
		})
		if err != nil {
			rc.backendFailure(w, err)
			return
		}
		rc.ok(w, record)
	}
}

// Read handles read requests. Query keys naming schema fields become
// equality filters; unknown keys are ignored.
func (h *Handlers) Read() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := h.begin(r, OpRead)

		params := queryParams(r)
		args, err := query.BuildReadArgs(h.schema, params)
		if err != nil {
			rc.badQuery(w, err)
			return
		}

		var records []storage.Record
		err = rc.call(func(ctx context.Context) (err error) {
			records, err = h.store.Select(ctx, "*", args)
			return err
		})
		if err != nil {
			rc.backendFailure(w, err)
			return
		}
		if records == nil {
			records = []storage.Record{}
		}
		rc.ok(w, records)
	}
}

// Update handles update requests. The body holds the new field values
// and an optional where expression selecting the records to change.
func (h *Handlers) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := h.begin(r, OpUpdate)

		params, ok := rc.decodeBody(w, r)
		if !ok {
			return
		}
		if !rc.authorize(w, params, query.UpdatePolicy) {
			return
		}
		if !rc.validate(w, params) {
			return
		}

		fields := query.StripIdentifier(h.schema, query.Project(h.schema, params))
		args, err := query.BuildArgs(params)
		if err != nil {
			rc.badQuery(w, err)
			return
		}

		var records []storage.Record
		err = rc.call(func(ctx context.Context) (err error) {
			records, err = h.store.Update(ctx, fields, args)
			return err
		})
		if err != nil {
			rc.backendFailure(w, err)
			return
		}
		rc.ok(w, records)
	}
}

// Delete handles delete requests. A non-empty where expression is
// mandatory.
func (h *Handlers) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := h.begin(r, OpDelete)

		params, ok := rc.decodeBody(w, r)
		if !ok {
			return
		}
		if !rc.authorize(w, params, query.DeletePolicy) {
			return
		}

		args, err := query.BuildArgs(params)
		if err != nil {
			rc.badQuery(w, err)
			return
		}
		if !args.Scoped() {
			rc.reject(ReasonUnscoped)
			writeText(w, http.StatusBadRequest, MsgUnscopedDelete)
			return
		}

		var records []storage.Record
		err = rc.call(func(ctx context.Context) (err error) {
			records, err = h.store.Delete(ctx, args)
			return err
		})
		if err != nil {
			rc.backendFailure(w, err)
			return
		}
		rc.ok(w, records)
	}
}

// requestContext carries one request through an operation.
type requestContext struct {
	h      *Handlers
	op     string
	ctx    context.Context
	logger zerolog.Logger
}

func (h *Handlers) begin(r *http.Request, op string) *requestContext {
	return &requestContext{
		h:   h,
		op:  op,
		ctx: r.Context(),
		logger: h.logger.With().
			Str("operation", op).
			Str("entity", h.schema.Entity()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Logger(),
	}
}

// decodeBody reads a JSON object body. An empty body is an empty payload.
func (rc *requestContext) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	params := map[string]any{}
	if r.Body == nil {
		return params, true
	}

	err := json.NewDecoder(r.Body).Decode(&params)
	if err != nil && !errors.Is(err, io.EOF) {
		rc.reject(ReasonBadBody)
		rc.logger.Debug().Err(err).Msg("invalid request body")
		writeError(w, fmt.Errorf("invalid JSON: %w", err), http.StatusBadRequest)
		return nil, false
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, true
}

func (rc *requestContext) authorize(w http.ResponseWriter, params map[string]any, p query.Policy) bool {
	unknown, ok := query.Authorized(rc.h.schema, params, p)
	if ok {
		return true
	}
	rc.reject(ReasonUnauthorized)
	rc.logger.Debug().Str("parameter", unknown).Msg("unknown argument")
	writeText(w, http.StatusBadRequest, MsgUnknownArguments)
	return false
}

func (rc *requestContext) validate(w http.ResponseWriter, params map[string]any) bool {
	failure := validation.Validate(rc.h.schema, params)
	if failure == nil {
		return true
	}
	rc.reject(ReasonInvalid)
	rc.logger.Debug().
		Str("kind", string(failure.Kind)).
		Str("property", failure.Property).
		Msg("validation failed")
	writeJSONStatus(w, http.StatusBadRequest, failure)
	return false
}

// badQuery rejects a malformed where, limit, offset or order parameter.
func (rc *requestContext) badQuery(w http.ResponseWriter, err error) {
	rc.reject(ReasonBadQuery)
	rc.logger.Debug().Err(err).Msg("invalid query arguments")

	var pe *filter.ParseError
	if errors.As(err, &pe) {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{
			"error":  pe.Error(),
			"clause": pe.Clause,
			"index":  pe.Index,
		})
		return
	}
	writeError(w, err, http.StatusBadRequest)
}

// reject records a request that ends before the storage call. The caller
// writes the response.
func (rc *requestContext) reject(reason string) {
	rc.h.recorder.RecordRejection(rc.op, reason)
	rc.h.recorder.RecordRequest(rc.op, http.StatusBadRequest)
}

// call runs the single storage call of the operation.
func (rc *requestContext) call(fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(rc.ctx)
	rc.h.recorder.ObserveStorage(rc.op, time.Since(start), err)
	return err
}

func (rc *requestContext) backendFailure(w http.ResponseWriter, err error) {
	rc.logger.Error().Err(err).Msg("storage call failed")
	rc.h.recorder.RecordRequest(rc.op, http.StatusBadRequest)
	writeError(w, err, http.StatusBadRequest)
}

func (rc *requestContext) ok(w http.ResponseWriter, data any) {
	rc.h.recorder.RecordRequest(rc.op, http.StatusOK)
	writeJSONStatus(w, http.StatusOK, data)
}

// queryParams flattens the query string, keeping the first value of each key.
func queryParams(r *http.Request) map[string]any {
	values := r.URL.Query()
	params := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}
