package extension

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is the immutable name-keyed lookup table for a loaded
// extension's capabilities. It is built once at load time and never
// mutated, so concurrent reads need no locking.
type Registry struct {
	nodes        map[string]*Node
	integrations map[string]*Integration
}

// NewRegistry indexes the extension's capabilities by their declared
// canonical names. Registering two capabilities with the same name is
// a load-time error, not a silent override.
func NewRegistry(ext *Extension) (*Registry, error) {
	r := &Registry{
		nodes:        make(map[string]*Node, len(ext.Nodes)),
		integrations: make(map[string]*Integration, len(ext.Integrations)),
	}

	for _, n := range ext.Nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("node with empty name cannot be registered")
		}
		if _, ok := r.nodes[n.Name]; ok {
			return nil, fmt.Errorf("duplicate node name %q", n.Name)
		}
		r.nodes[n.Name] = n
	}

	for _, i := range ext.Integrations {
		if i.Type == "" {
			return nil, fmt.Errorf("integration with empty type cannot be registered")
		}
		if _, ok := r.integrations[i.Type]; ok {
			return nil, fmt.Errorf("duplicate integration type %q", i.Type)
		}
		r.integrations[i.Type] = i
	}

	return r, nil
}

// NotFoundError reports a registry miss. It carries the full set of
// known names so callers can see what is actually registered.
type NotFoundError struct {
	Kind  string // "node" or "integration"
	Name  string
	Known []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found, available %ss: [%s]",
		e.Kind, e.Name, e.Kind, strings.Join(e.Known, ", "))
}

// Node looks up a node capability by name.
func (r *Registry) Node(name string) (*Node, error) {
	n, ok := r.nodes[name]
	if !ok {
		return nil, &NotFoundError{Kind: "node", Name: name, Known: r.NodeNames()}
	}
	return n, nil
}

// Integration looks up an integration capability by type.
func (r *Registry) Integration(name string) (*Integration, error) {
	i, ok := r.integrations[name]
	if !ok {
		return nil, &NotFoundError{Kind: "integration", Name: name, Known: r.IntegrationNames()}
	}
	return i, nil
}

// NodeNames returns the sorted names of all registered nodes.
func (r *Registry) NodeNames() []string {
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntegrationNames returns the sorted types of all registered
// integrations.
func (r *Registry) IntegrationNames() []string {
	names := make([]string, 0, len(r.integrations))
	for name := range r.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
