// Package http exposes the entity operations over HTTP.
// It mounts read, create, update and delete endpoints for one schema on a
// chi router, plus schema introspection.
package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Channel implements the HTTP channel for one entity.
type Channel struct {
	router   chi.Router
	handlers *Handlers
	basePath string
}

// DefaultBasePath returns the base path used when none is configured.
func DefaultBasePath(entity string) string {
	return "/api/" + entity
}

// New creates a new HTTP channel serving h under basePath. An empty
// basePath means DefaultBasePath.
func New(h *Handlers, basePath string) *Channel {
	if basePath == "" {
		basePath = DefaultBasePath(h.Schema().Entity())
	}
	basePath = "/" + strings.Trim(basePath, "/")

	c := &Channel{
		router:   chi.NewRouter(),
		handlers: h,
		basePath: basePath,
	}

	c.router.Route(basePath, func(r chi.Router) {
		r.Get("/read", h.Read())
		r.Post("/create", h.Create())
		r.Post("/update", h.Update())
		r.Post("/delete", h.Delete())
		r.Mount("/_schema", NewSchemaHandler(h.Schema()).Routes())
	})

	return c
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "http"
}

// BasePath returns the path the operations are mounted under.
func (c *Channel) BasePath() string {
	return c.basePath
}

// Handler returns the HTTP handler.
func (c *Channel) Handler() http.Handler {
	return c.router
}

// writeJSONStatus writes data as a JSON response.
func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an {"error": ...} response.
func writeError(w http.ResponseWriter, err error, status int) {
	writeJSONStatus(w, status, map[string]string{
		"error": err.Error(),
	})
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
