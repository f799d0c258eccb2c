package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvConfigPath names the environment variable consulted when no --config
// flag is given.
const EnvConfigPath = "MARKHOR_CONFIG"

// envOverrides are applied on top of the loaded file so a single invocation
// can be redirected without editing markhor.yaml.
type envOverrides struct {
	LogLevel    string `env:"MARKHOR_LOG_LEVEL"`
	LogFormat   string `env:"MARKHOR_LOG_FORMAT"`
	PluginsDir  string `env:"MARKHOR_PLUGINS_DIR"`
	JournalPath string `env:"MARKHOR_JOURNAL_PATH"`
	Listen      string `env:"MARKHOR_LISTEN"`
}

// Resolve produces the effective configuration for a command invocation.
// flagPath, when non-empty, must name an existing file. Otherwise the first
// of $MARKHOR_CONFIG, ./markhor.yaml, and ~/.config/markhor/markhor.yaml
// that exists is loaded; when none exists, Defaults() apply. Environment
// overrides are applied last. The returned path is "" when no file was read.
func Resolve(flagPath string) (*Config, string, error) {
	path := flagPath
	if path == "" {
		path = Discover()
	}

	var cfg *Config
	if path == "" {
		cfg = Defaults()
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, "", err
	}
	if err := validate(cfg); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, path, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: $MARKHOR_CONFIG, ./markhor.yaml, ~/.config/markhor/markhor.yaml.
// Returns "" when none exists; running without a config file is supported.
func Discover() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	if _, err := os.Stat("./markhor.yaml"); err == nil {
		return "./markhor.yaml"
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".config", "markhor", "markhor.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}

	return ""
}

// Load reads and parses configuration from a single file. Values are
// interpolated against the environment, defaults fill anything the file
// leaves unset, and the result is validated.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent error messages
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg = applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides overlays MARKHOR_* environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := envdecode.Decode(&ov); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("read environment overrides: %w", err)
	}

	if ov.LogLevel != "" {
		cfg.Service.LogLevel = ov.LogLevel
	}
	if ov.LogFormat != "" {
		cfg.Service.LogFormat = ov.LogFormat
	}
	if ov.PluginsDir != "" {
		cfg.PluginsDir = ov.PluginsDir
	}
	if ov.JournalPath != "" {
		cfg.Journal.Path = ov.JournalPath
	}
	if ov.Listen != "" {
		cfg.API.Listen = ov.Listen
	}

	return nil
}

// applyDefaults merges default values into config where not explicitly set.
func applyDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = defaults.Journal.Retention
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}

	if cfg.Call.Timeout == 0 {
		cfg.Call.Timeout = defaults.Call.Timeout
	}

	if cfg.PluginsDir == "" {
		cfg.PluginsDir = defaults.PluginsDir
	}
	if cfg.Plugins == nil {
		cfg.Plugins = make(map[string]PluginConf)
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[cfg.Service.LogFormat] {
		return fmt.Errorf("service.log_format must be one of: json, text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.PluginsDir == "" {
		return fmt.Errorf("plugins_dir is required")
	}

	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	if cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}

	if cfg.Call.Timeout <= 0 {
		return fmt.Errorf("call.timeout must be positive")
	}

	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api.enabled is true")
	}

	// Check for unresolved env vars in plugin env (security: a placeholder
	// passed through to a subprocess is worse than failing here).
	for name, plugin := range cfg.Plugins {
		if err := checkUnresolvedEnvVars(plugin.Env, name); err != nil {
			return err
		}
	}

	return nil
}

// checkUnresolvedEnvVars rejects ${VAR} placeholders left in plugin env values.
func checkUnresolvedEnvVars(env map[string]string, pluginName string) error {
	for key, value := range env {
		if envVarPattern.MatchString(value) {
			matches := envVarPattern.FindStringSubmatch(value)
			if len(matches) > 1 {
				return fmt.Errorf("plugin %q: environment variable ${%s} is not set", pluginName, matches[1])
			}
			return fmt.Errorf("plugin %q: unresolved environment variable in env.%s", pluginName, key)
		}
	}
	return nil
}
