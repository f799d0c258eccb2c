// Package manifest discovers installed plugins and validates what they
// declare about themselves. Each plugin lives in its own directory under the
// plugins root with a manifest.yaml next to its entrypoint executable.
package manifest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const manifestFilename = "manifest.yaml"

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Manifest defines the structure of a plugin's manifest.yaml file.
type Manifest struct {
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version"`
	Description string        `yaml:"description,omitempty"`
	Entrypoint  string        `yaml:"entrypoint"`
	Methods     []string      `yaml:"methods"`
	Env         []string      `yaml:"env,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// Plugin represents a discovered and validated plugin.
type Plugin struct {
	Name        string        // Plugin name from manifest
	Version     string        // Plugin version
	Description string        // Human-readable description
	Path        string        // Absolute path to plugin directory
	Entrypoint  string        // Absolute path to entrypoint executable
	Methods     []string      // Methods the plugin declares
	Env         []string      // Names of env vars the plugin wants passed through
	Timeout     time.Duration // Declared per-call timeout, 0 means host default
}

// SupportsMethod checks if the plugin declares a given method. The declaration
// is advisory: the plugin itself is the authority and answers unsupported
// methods on the wire.
func (p *Plugin) SupportsMethod(method string) bool {
	for _, m := range p.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("invalid name %q (must be lowercase letters, digits, '-' or '_')", m.Name)
	}

	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}

	// Check for path traversal in entrypoint
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}

	if len(m.Methods) == 0 {
		return fmt.Errorf("at least one method must be declared")
	}

	seen := make(map[string]bool, len(m.Methods))
	for _, method := range m.Methods {
		if strings.TrimSpace(method) == "" {
			return fmt.Errorf("method name is required")
		}
		if seen[method] {
			return fmt.Errorf("duplicate method %q", method)
		}
		seen[method] = true
	}

	if m.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	return nil
}
