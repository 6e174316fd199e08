package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the curator console configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	API       APIConfig       `yaml:"api"`
	Search    SearchConfig    `yaml:"search"`
	Polling   PollingConfig   `yaml:"polling"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Bookmarks BookmarksConfig `yaml:"bookmarks"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Messages  MessagesConfig  `yaml:"messages"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// APIConfig holds the content API client settings.
type APIConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Token             string  `yaml:"token"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	Burst             int     `yaml:"burst"`
}

// SortOption is one entry of the sort menu.
type SortOption struct {
	Field string `yaml:"field"`
	Label string `yaml:"label"`
}

// SearchConfig holds search view settings.
type SearchConfig struct {
	PageSize    int          `yaml:"page_size"`
	SortOptions []SortOption `yaml:"sort_options"` // first entry is the default
}

// PollingConfig holds job polling intervals.
type PollingConfig struct {
	ExportIntervalMS int `yaml:"export_interval_ms"`
	ImportIntervalMS int `yaml:"import_interval_ms"`
}

// ExportInterval returns the export status polling interval.
func (p PollingConfig) ExportInterval() time.Duration {
	return time.Duration(p.ExportIntervalMS) * time.Millisecond
}

// ImportInterval returns the import listing interval.
func (p PollingConfig) ImportInterval() time.Duration {
	return time.Duration(p.ImportIntervalMS) * time.Millisecond
}

// SessionsConfig holds view session settings.
type SessionsConfig struct {
	EventBuffer       int `yaml:"event_buffer"`
	MaxClampRefreshes int `yaml:"max_clamp_refreshes"`
}

// BookmarksConfig holds the optional bookmark store. Empty addrs disable it.
type BookmarksConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLHours         int      `yaml:"ttl_hours"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a bookmark store is configured.
func (b BookmarksConfig) Enabled() bool { return len(b.Addrs) > 0 }

// TTL returns the bookmark lifetime.
func (b BookmarksConfig) TTL() time.Duration { return time.Duration(b.TTLHours) * time.Hour }

// MessagesConfig overrides user-visible export messages. Empty keeps defaults.
type MessagesConfig struct {
	SubmitFailed  string `yaml:"submit_failed"`
	StatusFailed  string `yaml:"status_failed"`
	CleanupFailed string `yaml:"cleanup_failed"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = 15
	}
	if c.API.RequestsPerSecond > 0 && c.API.Burst <= 0 {
		c.API.Burst = 1
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 20
	}
	if c.Polling.ExportIntervalMS <= 0 {
		c.Polling.ExportIntervalMS = 1000
	}
	if c.Polling.ImportIntervalMS <= 0 {
		c.Polling.ImportIntervalMS = 3000
	}
	if c.Sessions.EventBuffer <= 0 {
		c.Sessions.EventBuffer = 64
	}
	if c.Sessions.MaxClampRefreshes <= 0 {
		c.Sessions.MaxClampRefreshes = 2
	}
	if c.Bookmarks.TTLHours <= 0 {
		c.Bookmarks.TTLHours = 24 * 30
	}
	if c.Bookmarks.KeyPrefix == "" {
		c.Bookmarks.KeyPrefix = "curator:"
	}
	if c.Bookmarks.ReadinessTimeout <= 0 {
		c.Bookmarks.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("api.requests_per_second must not be negative")
	}
	seen := make(map[string]bool, len(c.Search.SortOptions))
	for i, o := range c.Search.SortOptions {
		if o.Field == "" {
			return fmt.Errorf("search.sort_options[%d].field is required", i)
		}
		if seen[o.Field] {
			return fmt.Errorf("search.sort_options: duplicate field %q", o.Field)
		}
		seen[o.Field] = true
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
