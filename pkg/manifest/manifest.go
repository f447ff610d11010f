// Package manifest parses and validates extension manifests. A
// manifest declares an extension's identity and its capability list;
// the core only parses and forwards it.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"sigs.k8s.io/yaml"
)

// Filename is the manifest file name at the root of an extension tree.
const Filename = "manifest.json"

var validNameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// Manifest describes an extension package.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`

	Nodes        []NodeDefinition        `json:"nodes,omitempty"`
	Integrations []IntegrationDefinition `json:"integrations,omitempty"`
}

// NodeDefinition declares a node capability in the manifest.
type NodeDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// IntegrationDefinition declares an integration capability in the
// manifest.
type IntegrationDefinition struct {
	Type        string            `json:"type"`
	DisplayName string            `json:"display_name"`
	Image       string            `json:"image,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	Config      map[string]any    `json:"config,omitempty"`
}

// Parse decodes and validates a manifest document. Manifests are
// JSON-shaped; going through sigs.k8s.io/yaml additionally accepts a
// YAML rendering of the same document.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}

// Load reads and parses the manifest file at the root of dir.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks the manifest's identity fields, joining all field
// errors.
func (m *Manifest) Validate() error {
	var err error

	if !validNameRegex.MatchString(m.Name) {
		err = errors.Join(err, fmt.Errorf("name must be max 64 characters with only lowercase letters, numbers, and hyphens, and must not start or end with a hyphen"))
	}
	if m.Version == "" {
		err = errors.Join(err, fmt.Errorf("version must be provided"))
	}

	return err
}
