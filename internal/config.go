package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeAPIKey   = "apikey"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Audit  AuditConfig       `yaml:"audit"`
	Cache  CacheConfig       `yaml:"cache"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	return c.Cache.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// UnmarshalYAML accepts slog level names ("DEBUG", "INFO", "WARN",
// "ERROR") for log_level, which slog.Level itself cannot decode from
// YAML. An absent field keeps the current value.
func (c *ApplicationConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		LogLevel string     `yaml:"log_level"`
		HTTP     HTTPConfig `yaml:"http"`
	}{LogLevel: c.LogLevel.String(), HTTP: c.HTTP}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.HTTP = raw.HTTP
	return c.LogLevel.UnmarshalText([]byte(raw.LogLevel))
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the read-only HTTP surface configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database and pool configuration.
type SQLiteConfig struct {
	Path          string `yaml:"path"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	MaxIdleConns  int    `yaml:"max_idle_conns"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxOpenConns, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxIdleConns, validation.Min(0), validation.Max(c.MaxOpenConns)),
		validation.Field(&c.BusyTimeoutMS, validation.Required, validation.Min(100)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how callers are identified:
//   - "disabled" (default): no authentication, suitable for local dev.
//   - "apikey": the configured API key is resolved to a user identity on
//     every tool invocation; APIKey must be non-empty.
type AuthConfig struct {
	Mode      string          `yaml:"mode"`
	APIKey    string          `yaml:"api_key"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// BootstrapConfig describes the initial admin created when the user
// table is empty.
type BootstrapConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeAPIKey)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeAPIKey && c.APIKey == "" {
		return fmt.Errorf("auth: mode is %q but api_key is empty", AuthModeAPIKey)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeAPIKey
}

// AuditConfig holds audit trail configuration. Data-change entries are
// always written; ToolCalls gates per-invocation logging, and
// RetentionDays > 0 enables the daily cleanup pass.
type AuditConfig struct {
	ToolCalls     bool `yaml:"tool_calls"`
	QueueSize     int  `yaml:"queue_size"`
	RetentionDays int  `yaml:"retention_days"`
}

// Validate validates the audit configuration.
func (c *AuditConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.QueueSize, validation.Min(0)),
		validation.Field(&c.RetentionDays, validation.Min(0)),
	)
}

// CacheConfig holds the in-memory read cache configuration.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
	MaxEntries int  `yaml:"max_entries"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTLSeconds, validation.Min(0)),
		validation.Field(&c.MaxEntries, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path:          "./muninn.db",
			MaxOpenConns:  10,
			MaxIdleConns:  2,
			BusyTimeoutMS: 5000,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
			Bootstrap: BootstrapConfig{
				Username: "admin",
				Email:    "admin@localhost",
			},
		},
		Audit: AuditConfig{
			ToolCalls:     true,
			QueueSize:     256,
			RetentionDays: 90,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 60,
			MaxEntries: 1024,
		},
	}
}
