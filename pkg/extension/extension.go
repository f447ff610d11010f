// Package extension defines the capability model: the records an
// extension registers at load time and the per-request execution
// context its handlers receive.
package extension

import (
	"context"
	"fmt"

	"github.com/plugkit/plugkit/pkg/manifest"
)

// Mode tags how a node handler is invoked. Dispatch is by this
// explicit tag, never by runtime inspection of the handler.
type Mode int

const (
	// ModeBlocking handlers run to completion via Call.
	ModeBlocking Mode = iota
	// ModeSuspending handlers receive a context.Context via
	// CallContext and may yield control while awaiting I/O.
	ModeSuspending
)

// InputType describes the declared type of a node input slot. Only
// file-typed slots receive coercion; everything else passes through.
type InputType string

const (
	// InputTypeAny is an untyped slot.
	InputTypeAny InputType = ""
	// InputTypeFile marks a slot carrying a file reference (or a list
	// of them).
	InputTypeFile InputType = "file"
)

// InputSpec declares one input slot on a node.
type InputSpec struct {
	Name string    `json:"name"`
	Type InputType `json:"type,omitempty"`
}

// Node is a named, independently invocable capability. Records are
// created once when an extension is loaded and never mutated after
// registration.
type Node struct {
	Name        string
	Description string

	Inputs []InputSpec
	Config Schema

	// Mode selects which handler field is used.
	Mode Mode

	// Call is the blocking handler (ModeBlocking).
	Call func(ec *ExecutionContext, inputs map[string]any) (any, error)
	// CallContext is the suspension-capable handler (ModeSuspending).
	CallContext func(ctx context.Context, ec *ExecutionContext, inputs map[string]any) (any, error)

	// GetConfig optionally computes the node's configuration document
	// for a caller, e.g. filling option lists from an external system.
	// config is the caller's current document; skipCache asks the hook
	// to bypass any cached lookups. When nil, the declared config shape
	// is served as-is.
	GetConfig func(ctx context.Context, ec *ExecutionContext, config map[string]any, skipCache bool) (map[string]any, error)
}

// Invoke runs the node's handler according to its mode tag.
func (n *Node) Invoke(ctx context.Context, ec *ExecutionContext, inputs map[string]any) (any, error) {
	switch n.Mode {
	case ModeSuspending:
		if n.CallContext == nil {
			return nil, fmt.Errorf("node %q declares a suspending handler but CallContext is nil", n.Name)
		}
		return n.CallContext(ctx, ec, inputs)
	default:
		if n.Call == nil {
			return nil, fmt.Errorf("node %q has no handler", n.Name)
		}
		return n.Call(ec, inputs)
	}
}

// Integration is a credentialed connection to an external system. Type
// is its canonical registry key.
type Integration struct {
	Type        string
	DisplayName string
	Image       string
	Scopes      []string
	Properties  map[string]string

	// Credentials is the declared credential shape.
	Credentials Schema

	// Ready optionally performs an integration-specific readiness
	// check beyond the credential shape.
	Ready func(creds map[string]any) bool
}

// IsReady reports whether the supplied credentials satisfy the
// integration: they must exist, match the declared shape, and pass the
// integration's own check when one is set.
func (i *Integration) IsReady(creds map[string]any) bool {
	if creds == nil {
		return false
	}
	if errs := i.Credentials.Validate(creds); len(errs) > 0 {
		return false
	}
	if i.Ready != nil {
		return i.Ready(creds)
	}
	return true
}

// Definition renders the integration for the manifest.
func (i *Integration) Definition() manifest.IntegrationDefinition {
	return manifest.IntegrationDefinition{
		Type:        i.Type,
		DisplayName: i.DisplayName,
		Image:       i.Image,
		Scopes:      i.Scopes,
		Properties:  i.Properties,
		Config:      i.Credentials.Definition(),
	}
}

// Extension bundles everything an extension declares: identity plus
// its node and integration capabilities.
type Extension struct {
	Name        string
	Version     string
	Description string

	// Config is the extension-level configuration shape, validated by
	// the platform before deploying the extension.
	Config Schema

	Nodes        []*Node
	Integrations []*Integration
}

// Manifest renders the extension's declarative manifest document.
func (e *Extension) Manifest() *manifest.Manifest {
	m := &manifest.Manifest{
		Name:        e.Name,
		Version:     e.Version,
		Description: e.Description,
	}
	for _, n := range e.Nodes {
		m.Nodes = append(m.Nodes, manifest.NodeDefinition{
			Name:        n.Name,
			Description: n.Description,
		})
	}
	for _, i := range e.Integrations {
		m.Integrations = append(m.Integrations, i.Definition())
	}
	return m
}
