package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-playground/validator/v10"
)

// Handler is the function every tool registers. args is the raw JSON
// arguments object as the client sent it; the handler decodes and
// validates it into its own concrete type via Registry.ValidateArgs.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Tool is one entry in the registry: its advertised schema (built with
// kin-openapi per SPEC_FULL.md's Tool Registry & Dispatcher row) and its
// handler.
type Tool struct {
	Name        string
	Description string
	Schema      *openapi3.Schema
	Handler     Handler
}

// Registry is the immutable-after-startup tool table. Registration happens
// once at startup under the write lock; lookups afterward never write, but
// each Get and List still takes the shared read lock, so reads are not
// lock-free.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*Tool
	toolOrder []string
	validate  *validator.Validate
}

func NewRegistry() *Registry {
	return &Registry{
		tools:    map[string]*Tool{},
		validate: validator.New(),
	}
}

// Register adds a tool. Registering the same name twice is a programmer
// error and panics, mirroring the registry pattern this is grounded on.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("mcp: tool %q already registered", t.Name))
	}
	tool := t
	r.tools[t.Name] = &tool
	r.toolOrder = append(r.toolOrder, t.Name)
}

func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns tool definitions in registration order for "tools/list".
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		t := r.tools[name]
		schema, _ := json.Marshal(t.Schema)
		defs = append(defs, ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return defs
}

// ValidateArgs decodes raw into dst and runs struct-tag validation (spec
// §4.F step 3: "failure -> ErrorKind.InvalidArgs with the offending field").
func (r *Registry) ValidateArgs(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	if err := r.validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("field %q failed %q validation", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// objectSchema is a small helper over kin-openapi's schema builders so
// each tool registration reads as a flat property list instead of
// repeating NewSchemaRef boilerplate.
func objectSchema(props map[string]*openapi3.Schema, required ...string) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{}
	for name, p := range props {
		s.Properties[name] = openapi3.NewSchemaRef("", p)
	}
	s.Required = required
	return s
}

func stringProp(description string) *openapi3.Schema {
	s := openapi3.NewStringSchema()
	s.Description = description
	return s
}

func intProp(description string) *openapi3.Schema {
	s := openapi3.NewIntegerSchema()
	s.Description = description
	return s
}

func boolProp(description string) *openapi3.Schema {
	s := openapi3.NewBoolSchema()
	s.Description = description
	return s
}

func numberProp(description string) *openapi3.Schema {
	s := openapi3.NewFloat64Schema()
	s.Description = description
	return s
}

func objectProp(description string) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Description = description
	return s
}

func arrayProp(description string, items *openapi3.Schema) *openapi3.Schema {
	s := openapi3.NewArraySchema()
	s.Description = description
	s.Items = openapi3.NewSchemaRef("", items)
	return s
}

func enumStringProp(description string, values ...string) *openapi3.Schema {
	s := openapi3.NewStringSchema()
	s.Description = description
	s.Enum = make([]interface{}, len(values))
	for i, v := range values {
		s.Enum[i] = v
	}
	return s
}
