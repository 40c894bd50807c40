// Package toolbox provides the tool registry and the fixed capability set
// the model may invoke: file and shell operations, plus tools loaded from
// user-supplied script sources and named catalog specs.
package toolbox

import (
	"encoding/json"
	"fmt"

	"github.com/martinemde/llmloop/backend"
)

// Runner executes a tool against parsed named arguments.
type Runner func(args map[string]interface{}) (string, error)

// Descriptor is the immutable identity of a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON Schema
	Run         Runner
}

// Registry maps tool names to descriptors, preserving registration order.
// It is built once during session startup on a single goroutine and is
// read-only afterwards.
type Registry struct {
	order    []string
	tools    map[string]Descriptor
	warnings []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds a tool. A name collision overwrites the earlier registration
// (last wins) and is recorded as a warning, never an error.
func (r *Registry) Register(d Descriptor) {
	if _, exists := r.tools[d.Name]; exists {
		r.warnings = append(r.warnings,
			fmt.Sprintf("tool %q registered more than once; the later registration wins", d.Name))
	} else {
		r.order = append(r.order, d.Name)
	}
	r.tools[d.Name] = d
}

// RegisterAll registers each descriptor in order.
func (r *Registry) RegisterAll(descriptors []Descriptor) {
	for _, d := range descriptors {
		r.Register(d)
	}
}

// Resolve returns the descriptor for a name.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// All returns descriptors in registration order.
func (r *Registry) All() []Descriptor {
	result := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int { return len(r.tools) }

// Warnings returns collision warnings accumulated during registration.
func (r *Registry) Warnings() []string {
	w := make([]string, len(r.warnings))
	copy(w, r.warnings)
	return w
}

// Specs returns the registry as backend tool specs, in registration order.
func (r *Registry) Specs() []backend.ToolSpec {
	specs := make([]backend.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		d := r.tools[name]
		specs = append(specs, backend.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return specs
}

// ParseArguments unmarshals raw tool call arguments into a named map.
func ParseArguments(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// StringArg extracts a string argument.
func StringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg extracts an integer argument.
func IntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// BoolArg extracts a boolean argument.
func BoolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
