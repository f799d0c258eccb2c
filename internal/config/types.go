package config

import (
	"sort"
	"time"
)

// Config represents the complete markhor configuration.
type Config struct {
	Service    ServiceConfig         `yaml:"service"`
	Journal    JournalConfig         `yaml:"journal"`
	API        APIConfig             `yaml:"api,omitempty"`
	Call       CallConfig            `yaml:"call,omitempty"`
	PluginsDir string                `yaml:"plugins_dir"`
	Plugins    map[string]PluginConf `yaml:"plugins,omitempty"`
}

// ServiceConfig defines host-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// JournalConfig defines where the exchange history database lives and how
// long entries are kept.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines the optional HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// CallConfig defines invocation limits applied when neither the plugin's
// manifest nor a per-plugin override sets one.
type CallConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// PluginConf overrides behavior for a single discovered plugin. Plugins
// absent from this map run with defaults.
type PluginConf struct {
	Enabled *bool             `yaml:"enabled,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// IsEnabled reports whether the plugin may be invoked. A missing enabled
// key means enabled.
func (p PluginConf) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// PluginEnabled reports whether calls to the named plugin are allowed.
func (c *Config) PluginEnabled(name string) bool {
	p, ok := c.Plugins[name]
	if !ok {
		return true
	}
	return p.IsEnabled()
}

// CallTimeout resolves the timeout for one call to the named plugin.
// Precedence: per-plugin config override, the timeout the plugin's manifest
// declares, then the global call.timeout.
func (c *Config) CallTimeout(name string, declared time.Duration) time.Duration {
	if p, ok := c.Plugins[name]; ok && p.Timeout > 0 {
		return p.Timeout
	}
	if declared > 0 {
		return declared
	}
	return c.Call.Timeout
}

// PluginEnv returns the configured extra environment for a plugin as
// KEY=VALUE pairs, sorted so repeated invocations see the same order.
func (c *Config) PluginEnv(name string) []string {
	p, ok := c.Plugins[name]
	if !ok || len(p.Env) == 0 {
		return nil
	}

	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+p.Env[k])
	}
	return pairs
}

// Defaults returns a Config with sensible defaults. A missing config file
// is not an error; this is what runs in its place.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "markhor",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Journal: JournalConfig{
			Path:      "./data/journal.db",
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Call: CallConfig{
			Timeout: 60 * time.Second,
		},
		PluginsDir: "./plugins",
		Plugins:    make(map[string]PluginConf),
	}
}
