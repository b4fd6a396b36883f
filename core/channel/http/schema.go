package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/tablecrud/core/schema"
)

// SchemaHandler handles schema introspection requests.
type SchemaHandler struct {
	schema *schema.Schema
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(s *schema.Schema) *SchemaHandler {
	return &SchemaHandler{schema: s}
}

// Routes returns a router with all schema routes.
func (h *SchemaHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.getSchema)
	r.Get("/{field}", h.getField)
	return r
}

// FieldSchema is the introspection view of one field.
type FieldSchema struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Values      []any  `json:"values,omitempty"`
	Description string `json:"description,omitempty"`
	Identifier  bool   `json:"identifier,omitempty"`
}

// EntitySchema is the introspection view of the schema.
type EntitySchema struct {
	Entity     string        `json:"entity"`
	ID         string        `json:"id"`
	Fields     []FieldSchema `json:"fields"`
	Operations []string      `json:"operations"`
}

// getSchema handles GET <base>/_schema
func (h *SchemaHandler) getSchema(w http.ResponseWriter, r *http.Request) {
	resp := EntitySchema{
		Entity:     h.schema.Entity(),
		ID:         h.schema.IDField(),
		Operations: []string{OpRead, OpCreate, OpUpdate, OpDelete},
	}
	for _, f := range h.schema.Fields() {
		resp.Fields = append(resp.Fields, h.buildFieldSchema(f))
	}
	writeJSONStatus(w, http.StatusOK, resp)
}

// getField handles GET <base>/_schema/{field}
func (h *SchemaHandler) getField(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "field")

	f, ok := h.schema.Field(name)
	if !ok {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{
			"error": "field not found: " + name,
		})
		return
	}
	writeJSONStatus(w, http.StatusOK, h.buildFieldSchema(f))
}

func (h *SchemaHandler) buildFieldSchema(f schema.Field) FieldSchema {
	return FieldSchema{
		Name:        f.Name,
		Type:        string(f.Type),
		Required:    f.Required,
		Default:     f.Default,
		Values:      f.Values,
		Description: f.Description,
		Identifier:  f.Name == h.schema.IDField(),
	}
}
