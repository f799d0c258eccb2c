// Package doctor validates markhor configuration and plugin setup.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/manifest"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against discovered plugins.
type Doctor struct {
	cfg      *config.Config
	registry *manifest.Registry
}

// New creates a Doctor from a loaded config and plugin registry.
func New(cfg *config.Config, registry *manifest.Registry) *Doctor {
	return &Doctor{cfg: cfg, registry: registry}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validatePluginsDir(r)
	d.validatePluginRefs(r)
	d.validateAPIConfig(r)
	d.validateJournalConfig(r)
	d.validateLockfile(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.PluginsDir == "" {
		d.addError(r, "service", "plugins_dir", "plugins_dir is required")
	}
	if d.cfg.Journal.Path == "" {
		d.addError(r, "service", "journal.path", "journal.path is required")
	}
	if d.cfg.Call.Timeout <= 0 {
		d.addError(r, "service", "call.timeout", "call.timeout must be positive")
	}

	switch d.cfg.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q (expected debug, info, warn, or error)", d.cfg.Service.LogLevel))
	}
	switch d.cfg.Service.LogFormat {
	case "text", "json":
	default:
		d.addError(r, "service", "service.log_format",
			fmt.Sprintf("unknown log format %q (expected text or json)", d.cfg.Service.LogFormat))
	}
}

// validatePluginsDir checks that the plugins root exists and is a directory.
func (d *Doctor) validatePluginsDir(r *Result) {
	if d.cfg.PluginsDir == "" {
		return
	}
	info, err := os.Stat(d.cfg.PluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			d.addError(r, "plugins_dir", "plugins_dir",
				fmt.Sprintf("plugins dir does not exist: %s", d.cfg.PluginsDir))
			return
		}
		d.addError(r, "plugins_dir", "plugins_dir",
			fmt.Sprintf("cannot stat plugins dir %s: %v", d.cfg.PluginsDir, err))
		return
	}
	if !info.IsDir() {
		d.addError(r, "plugins_dir", "plugins_dir",
			fmt.Sprintf("plugins dir is not a directory: %s", d.cfg.PluginsDir))
	}
}

// validatePluginRefs checks that configured plugins are discoverable and
// their overrides are sane.
func (d *Doctor) validatePluginRefs(r *Result) {
	for name, pc := range d.cfg.Plugins {
		if !pc.IsEnabled() {
			continue
		}
		if _, ok := d.registry.Get(name); !ok {
			d.addError(r, "plugin_refs", fmt.Sprintf("plugins.%s", name),
				fmt.Sprintf("plugin %q in config but not found in plugins_dir", name))
		}

		if pc.Timeout < 0 {
			d.addError(r, "plugin_refs", fmt.Sprintf("plugins.%s.timeout", name),
				fmt.Sprintf("plugin %q timeout must not be negative", name))
		} else if pc.Timeout > 0 && pc.Timeout < time.Second {
			d.addWarning(r, "plugin_refs", fmt.Sprintf("plugins.%s.timeout", name),
				fmt.Sprintf("plugin %q timeout %s is very short (< 1s)", name, pc.Timeout))
		}
	}
}

// validateAPIConfig checks API server settings. The API carries no
// authentication, so a non-loopback listen address exposes every plugin to
// the network.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}

	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen",
			fmt.Sprintf("invalid api.listen %q: %v", d.cfg.API.Listen, err))
		return
	}
	if !isLoopbackHost(host) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("api.listen %q is not a loopback address; the API has no authentication", d.cfg.API.Listen))
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// validateJournalConfig checks retention bounds.
func (d *Doctor) validateJournalConfig(r *Result) {
	if d.cfg.Journal.Retention < 0 {
		d.addError(r, "journal", "journal.retention", "journal.retention must not be negative")
		return
	}
	if d.cfg.Journal.Retention > 0 && d.cfg.Journal.Retention < time.Hour {
		d.addWarning(r, "journal", "journal.retention",
			fmt.Sprintf("journal.retention %s is very short (< 1h)", d.cfg.Journal.Retention))
	}
}

// validateLockfile verifies discovered plugins against the checksum lockfile
// when one exists. Plugins that are not locked at all get a warning, a hash
// mismatch is an error.
func (d *Doctor) validateLockfile(r *Result) {
	if len(d.registry.All()) == 0 {
		return
	}

	if _, err := manifest.LoadLockfile(d.cfg.PluginsDir); err != nil {
		d.addWarning(r, "integrity", "plugins_dir",
			"plugins are not locked; run 'markhor plugins lock' to pin checksums")
		return
	}

	if err := manifest.Verify(d.cfg.PluginsDir, d.registry); err != nil {
		d.addError(r, "integrity", "plugins_dir", err.Error())
	}
}

// warnMissingEnvVars warns when an enabled plugin declares an environment
// variable that is neither set in the host environment nor provided by the
// plugin's config env block.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	for name, p := range d.registry.All() {
		if !d.cfg.PluginEnabled(name) {
			continue
		}
		configured := d.cfg.Plugins[name].Env
		for _, envName := range p.Env {
			if v, ok := configured[envName]; ok {
				if v == "" {
					d.addWarning(r, "env_vars", fmt.Sprintf("plugins.%s.env.%s", name, envName),
						fmt.Sprintf("env var %s is empty (possibly unresolved environment variable)", envName))
				}
				continue
			}
			if os.Getenv(envName) == "" {
				d.addWarning(r, "env_vars", fmt.Sprintf("plugins.%s.env.%s", name, envName),
					fmt.Sprintf("plugin %q declares env var %s which is not set", name, envName))
			}
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
