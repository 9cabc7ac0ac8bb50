// Package tools holds the capability registry, the executor that runs
// invocations requested by a backend, and the built-in capabilities.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	// Parameters describes the expected arguments as a JSON schema object.
	Parameters() *Schema
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Destructive is implemented by tools that change state outside the conversation.
// Interactive front ends ask for confirmation before running them.
type Destructive interface {
	IsDestructive(args map[string]interface{}) bool
}

// Schema is the subset of JSON schema used to describe tool arguments.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Object builds an object schema from its properties and required names.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

func String(desc string) *Schema  { return &Schema{Type: "string", Description: desc} }
func Integer(desc string) *Schema { return &Schema{Type: "integer", Description: desc} }
func Boolean(desc string) *Schema { return &Schema{Type: "boolean", Description: desc} }

// Map renders the schema as a generic JSON object.
func (s *Schema) Map() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Schema only holds strings, slices and maps of itself.
		panic(fmt.Sprintf("tools: schema not encodable: %v", err))
	}
	m := map[string]interface{}{}
	_ = json.Unmarshal(data, &m)
	if m["type"] == "object" {
		if _, ok := m["properties"]; !ok {
			m["properties"] = map[string]interface{}{}
		}
	}
	return m
}

// SchemaFromMap converts a decoded JSON schema (for example one advertised by an
// MCP server) into a Schema. Unknown keywords are dropped.
func SchemaFromMap(m map[string]interface{}) (*Schema, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := &Schema{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.Type == "" {
		s.Type = "object"
	}
	return s, nil
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// matchesAny reports whether command matches one of the regular expressions.
// Patterns that fail to compile are compared literally.
func matchesAny(command string, patterns []string) bool {
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// intArg accepts the float64 produced by encoding/json as well as Go ints.
func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
