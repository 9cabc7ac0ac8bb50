package tools

import (
	"context"
	"strings"
	"sync"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Format selects the wire shape a backend expects for tool declarations.
type Format int

const (
	// FormatInputSchema nests the schema under "input_schema" (Anthropic, Bedrock).
	FormatInputSchema Format = iota
	// FormatParameters nests the schema under "parameters" (OpenAI, Gemini).
	FormatParameters
)

func (f Format) schemaKey() string {
	if f == FormatInputSchema {
		return "input_schema"
	}
	return "parameters"
}

// Spec is the backend-neutral declaration of one capability.
type Spec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Registry is the catalog of invocable tools. It is populated at startup and
// only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	schemas map[string]*gojsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool. Names are unique; a second registration is refused.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.Parameters().Map()))
	if err != nil {
		return errors.Wrapf(err, "tool '%s' has an invalid parameter schema", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return errors.Wrapf(errors.ErrDuplicateCapability, "tool '%s'", name)
	}
	r.tools[name] = t
	r.schemas[name] = schema
	r.order = append(r.order, name)
	log.Debug().Str("tool", name).Msg("Registered tool")
	return nil
}

func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) Specs() []Spec {
	var specs []Spec
	for _, t := range r.List() {
		specs = append(specs, Spec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return specs
}

// BackendSchema projects every tool into the declaration shape of format.
// Each call builds fresh maps.
func (r *Registry) BackendSchema(format Format) []map[string]interface{} {
	return ProjectSpecs(r.Specs(), format)
}

// ProjectSpecs renders specs as the generic tool declarations of format.
func ProjectSpecs(specs []Spec, format Format) []map[string]interface{} {
	out := []map[string]interface{}{}
	for _, s := range specs {
		out = append(out, map[string]interface{}{
			"name":             s.Name,
			"description":      s.Description,
			format.schemaKey(): s.Parameters.Map(),
		})
	}
	return out
}

// Validate checks args against the declared schema of the named tool.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrapf(errors.ErrUnknownCapability, "'%s'", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidArguments, "'%s': %v", name, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Wrapf(errors.ErrInvalidArguments, "'%s': %s", name, strings.Join(msgs, "; "))
	}
	return nil
}

// Invoke looks up, validates and runs a tool. Failures are reported as
// ErrUnknownCapability, ErrInvalidArguments or *errors.ExecutionError.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t, ok := r.GetTool(name)
	if !ok {
		return "", errors.Wrapf(errors.ErrUnknownCapability, "'%s'", name)
	}
	if err := r.Validate(name, args); err != nil {
		return "", err
	}
	out, err := t.Execute(ctx, args)
	if err != nil {
		return "", &errors.ExecutionError{Capability: name, Cause: err}
	}
	return out, nil
}

// IsDestructive reports whether running name with args needs user approval.
// Unknown tools are treated as destructive.
func (r *Registry) IsDestructive(name string, args map[string]interface{}) bool {
	t, ok := r.GetTool(name)
	if !ok {
		return true
	}
	d, ok := t.(Destructive)
	return ok && d.IsDestructive(args)
}

// Subset returns a registry holding only the tools named by the toolset.
// Entries may be glob patterns such as "git_*". A nil or empty toolset keeps everything.
func (r *Registry) Subset(ts *config.Toolset) (*Registry, error) {
	if ts == nil || len(ts.Tools) == 0 {
		return r, nil
	}
	sub := NewRegistry()
	for _, pattern := range ts.Tools {
		matched := false
		for _, t := range r.List() {
			ok, err := doublestar.Match(pattern, t.Name())
			if err != nil {
				return nil, errors.Wrapf(err, "invalid tool pattern '%s' in toolset '%s'", pattern, ts.Name)
			}
			if !ok {
				continue
			}
			matched = true
			if _, exists := sub.GetTool(t.Name()); exists {
				continue
			}
			if err := sub.Register(t); err != nil {
				return nil, err
			}
		}
		if !matched {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", pattern, ts.Name)
		}
	}
	return sub, nil
}
