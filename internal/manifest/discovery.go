package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry holds discovered plugins indexed by name.
type Registry struct {
	plugins map[string]*Plugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin),
	}
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// All returns all registered plugins.
func (r *Registry) All() map[string]*Plugin {
	return r.plugins
}

// Names returns registered plugin names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add registers a plugin in the registry.
func (r *Registry) Add(plugin *Plugin) error {
	if _, exists := r.plugins[plugin.Name]; exists {
		return fmt.Errorf("plugin %q already registered", plugin.Name)
	}
	r.plugins[plugin.Name] = plugin
	return nil
}

// Discover scans pluginsDir for directories holding a manifest.yaml and
// validates each. Invalid plugins are logged and skipped, not fatal; a host
// with one broken plugin can still serve the others.
func Discover(pluginsDir string, logger func(level, msg string, args ...any)) (*Registry, error) {
	if logger == nil {
		logger = func(level, msg string, args ...any) {}
	}

	absRoot, err := filepath.Abs(strings.TrimSpace(pluginsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugins dir %q: %w", pluginsDir, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plugins dir does not exist: %s", absRoot)
		}
		return nil, fmt.Errorf("failed to stat plugins dir %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugins dir is not a directory: %s", absRoot)
	}

	registry := NewRegistry()
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != manifestFilename {
			return nil
		}

		pluginPath := filepath.Dir(path)

		plugin, err := loadPlugin(pluginPath, absRoot)
		if err != nil {
			logger("warn", "failed to load plugin", "path", pluginPath, "error", err.Error())
			return nil
		}

		if err := registry.Add(plugin); err != nil {
			if existing, ok := registry.Get(plugin.Name); ok {
				logger(
					"warn",
					"duplicate plugin ignored (keeping first discovered)",
					"plugin", plugin.Name,
					"ignored_path", plugin.Path,
					"kept_path", existing.Path,
				)
			} else {
				logger("warn", "duplicate plugin", "plugin", plugin.Name, "error", err.Error())
			}
			return nil
		}

		logger("info", "loaded plugin", "plugin", plugin.Name, "path", plugin.Path, "version", plugin.Version)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan plugins dir %s: %w", absRoot, err)
	}

	return registry, nil
}

// loadPlugin reads and validates a single plugin.
func loadPlugin(pluginPath, pluginsDir string) (*Plugin, error) {
	manifestPath := filepath.Join(pluginPath, manifestFilename)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	entrypointPath := filepath.Join(pluginPath, manifest.Entrypoint)

	if err := validateTrust(entrypointPath, pluginPath, pluginsDir); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	return &Plugin{
		Name:        manifest.Name,
		Version:     manifest.Version,
		Description: manifest.Description,
		Path:        pluginPath,
		Entrypoint:  entrypointPath,
		Methods:     manifest.Methods,
		Env:         manifest.Env,
		Timeout:     manifest.Timeout,
	}, nil
}

// validateTrust enforces constraints on what the host will execute: the
// entrypoint must resolve inside its own plugin directory under the
// configured root, be executable, and not live in a world-writable directory.
func validateTrust(entrypointPath, pluginPath, pluginsDir string) error {
	// Resolve symlinks
	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypointPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}

	resolvedPluginPath, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path symlink: %w", err)
	}

	resolvedRoot, err := filepath.EvalSymlinks(pluginsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve plugins dir symlink: %w", err)
	}

	if !strings.HasPrefix(resolvedEntrypoint, resolvedRoot+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under the plugins dir", resolvedEntrypoint)
	}

	if !strings.HasPrefix(resolvedEntrypoint, resolvedPluginPath+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under plugin directory %s", resolvedEntrypoint, resolvedPluginPath)
	}

	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}

	mode := info.Mode()
	if mode&0111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	pluginInfo, err := os.Stat(resolvedPluginPath)
	if err != nil {
		return fmt.Errorf("plugin directory not found: %w", err)
	}

	if pluginInfo.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("plugin directory is world-writable: %s", resolvedPluginPath)
	}

	return nil
}
