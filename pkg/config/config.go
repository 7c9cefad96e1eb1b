// Package config loads the server configuration from, in order of
// precedence, command-line flags, environment variables (optionally read
// from a .env file), a YAML config file, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/session"
)

// Config is the complete server configuration.
type Config struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	StaticDir      string        `mapstructure:"static_dir" yaml:"static_dir,omitempty"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	Model   Model          `mapstructure:"model" yaml:"model"`
	Session session.Config `mapstructure:"session" yaml:"session"`

	// WorkspaceDir enables the file_read and file_write tools.
	WorkspaceDir string `mapstructure:"workspace_dir" yaml:"workspace_dir,omitempty"`

	// StateDir enables persistence of model settings, system prompt and
	// tool selection.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir,omitempty"`

	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds"`

	Log Log `mapstructure:"log" yaml:"log"`
}

// Model configures the OpenAI-compatible endpoint.
type Model struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	ModelID string `mapstructure:"model_id" yaml:"model_id"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	SiteURL string `mapstructure:"site_url" yaml:"site_url,omitempty"`
	AppName string `mapstructure:"app_name" yaml:"app_name,omitempty"`

	// ExtraBody is merged into every model request body. It is read from
	// the config file only; viper lowercases its keys.
	ExtraBody map[string]any `mapstructure:"extra_body" yaml:"extra_body,omitempty"`
}

// Endpoint returns the registry endpoint of m.
func (m Model) Endpoint() registry.Endpoint {
	return registry.Endpoint{APIKey: m.APIKey, SiteURL: m.SiteURL, AppName: m.AppName, ExtraBody: m.ExtraBody}
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// envBindings maps config keys to environment variables. When a key has
// several variables the first one set wins.
var envBindings = map[string][]string{
	"addr":                 {"PLAYGROUND_ADDR"},
	"static_dir":           {"STATIC_DIR"},
	"request_timeout":      {"REQUEST_TIMEOUT"},
	"model.base_url":       {"OPENROUTER_BASE_URL"},
	"model.model_id":       {"OPENROUTER_MODEL"},
	"model.api_key":        {"OPENROUTER_API_KEY", "OPENAI_API_KEY"},
	"model.site_url":       {"OPENROUTER_SITE_URL"},
	"model.app_name":       {"OPENROUTER_APP_NAME"},
	"session.table_name":   {"TABLE_NAME"},
	"session.table_region": {"TABLE_REGION"},
	"session.primary_key":  {"PRIMARY_KEY"},
	"session.dir":          {"SESSION_DIR"},
	"session.bucket":       {"SESSION_BUCKET"},
	"session.prefix":       {"SESSION_PREFIX"},
	"workspace_dir":        {"WORKSPACE_DIR"},
	"state_dir":            {"STATE_DIR"},
	"max_rounds":           {"MAX_ROUNDS"},
	"log.level":            {"LOG_LEVEL"},
	"log.format":           {"LOG_FORMAT"},
}

// flagBindings maps flag names to config keys.
var flagBindings = map[string]string{
	"addr":          "addr",
	"static-dir":    "static_dir",
	"model":         "model.model_id",
	"base-url":      "model.base_url",
	"session-dir":   "session.dir",
	"workspace-dir": "workspace_dir",
	"state-dir":     "state_dir",
	"max-rounds":    "max_rounds",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8000")
	v.SetDefault("static_dir", "static")
	v.SetDefault("request_timeout", 2*time.Minute)
	v.SetDefault("model.base_url", registry.DefaultBaseURL)
	v.SetDefault("model.model_id", registry.DefaultModelID)
	v.SetDefault("session.dir", session.DefaultDir)
	v.SetDefault("max_rounds", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Options tells Load where to look.
type Options struct {
	// File is an optional YAML config file.
	File string

	// EnvFile is loaded into the process environment if it exists.
	// Variables already set are not overridden. Defaults to ".env".
	EnvFile string

	// Flags are bound by the names in flagBindings. Only flags the user
	// set take precedence.
	Flags *pflag.FlagSet
}

// Load builds the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}
	if opts.Flags != nil {
		for name, key := range flagBindings {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("config: max_rounds must be positive, got %d", c.MaxRounds)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("config: negative request_timeout %s", c.RequestTimeout)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Model.APIKey != "" {
		c.Model.APIKey = redact(c.Model.APIKey)
	}
	return c
}

func redact(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// Settings returns the startup model settings.
func (c *Config) Settings() registry.ModelSettings {
	return registry.DefaultSettings(c.Model.ModelID, c.Model.BaseURL)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return l, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger returns a logger writing to w (stderr when nil) with the
// configured level and format.
func (l Log) NewLogger(w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}
