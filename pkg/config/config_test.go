package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/session"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, e := range envs {
			t.Setenv(e, "")
			os.Unsetenv(e)
		}
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(Options{EnvFile: noEnvFile(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Model.BaseURL != registry.DefaultBaseURL || cfg.Model.ModelID != registry.DefaultModelID {
		t.Errorf("Model = %+v", cfg.Model)
	}
	if cfg.Session.Dir != session.DefaultDir || cfg.Session.Kind() != session.BackendFile {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.RequestTimeout != 2*time.Minute || cfg.MaxRounds != 8 {
		t.Errorf("timeout = %s, rounds = %d", cfg.RequestTimeout, cfg.MaxRounds)
	}
	if cfg.Settings() != registry.DefaultSettings("", "") {
		t.Errorf("Settings() = %+v", cfg.Settings())
	}
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("OPENROUTER_MODEL", "openai/gpt-4o")
	t.Setenv("TABLE_NAME", "sessions")
	t.Setenv("TABLE_REGION", "us-east-1")
	t.Setenv("PRIMARY_KEY", "user_id")
	t.Setenv("REQUEST_TIMEOUT", "30s")

	cfg, err := Load(Options{EnvFile: noEnvFile(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.APIKey != "sk-fallback" {
		t.Errorf("APIKey = %q", cfg.Model.APIKey)
	}
	if cfg.Model.ModelID != "openai/gpt-4o" {
		t.Errorf("ModelID = %q", cfg.Model.ModelID)
	}
	if cfg.Session.Kind() != session.BackendDynamoDB {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %s", cfg.RequestTimeout)
	}

	t.Setenv("OPENROUTER_API_KEY", "sk-primary")
	cfg, err = Load(Options{EnvFile: noEnvFile(t)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.APIKey != "sk-primary" {
		t.Errorf("OPENROUTER_API_KEY should win, got %q", cfg.Model.APIKey)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("OPENROUTER_APP_NAME=Playground\nPLAYGROUND_ADDR=:9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLAYGROUND_ADDR", ":7000")
	t.Cleanup(func() { os.Unsetenv("OPENROUTER_APP_NAME") })

	cfg, err := Load(Options{EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.AppName != "Playground" {
		t.Errorf("AppName = %q", cfg.Model.AppName)
	}
	if cfg.Addr != ":7000" {
		t.Errorf(".env overrode the environment: Addr = %q", cfg.Addr)
	}
}

func TestLoadFileAndFlags(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "playground.yaml")
	yaml := `
addr: ":8100"
model:
  model_id: from-file
  site_url: https://example.com
  extra_body:
    provider:
      order: [deepinfra]
session:
  bucket: chats
  prefix: prod
log:
  level: debug
  format: json
`
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENROUTER_MODEL", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":8000", "")
	fs.String("model", "", "")
	fs.String("log-level", "info", "")
	if err := fs.Parse([]string{"--addr", ":8200"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Options{File: file, EnvFile: noEnvFile(t), Flags: fs})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8200" {
		t.Errorf("flag should win: Addr = %q", cfg.Addr)
	}
	if cfg.Model.ModelID != "from-env" {
		t.Errorf("env should beat file: ModelID = %q", cfg.Model.ModelID)
	}
	if cfg.Model.SiteURL != "https://example.com" || cfg.Session.Bucket != "chats" || cfg.Session.Prefix != "prod" {
		t.Errorf("file values missing: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unset flag default should not beat file: Log = %+v", cfg.Log)
	}
	provider, _ := cfg.Model.Endpoint().ExtraBody["provider"].(map[string]any)
	if order, _ := provider["order"].([]any); len(order) != 1 || order[0] != "deepinfra" {
		t.Errorf("extra_body = %v", cfg.Model.ExtraBody)
	}
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := Load(Options{EnvFile: noEnvFile(t)}); err == nil {
		t.Error("expected error for bad log level")
	}

	clearEnv(t)
	if _, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml"), EnvFile: noEnvFile(t)}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{Model: Model{APIKey: "sk-or-v1-abcdef123456"}}
	r := cfg.Redacted()
	if r.Model.APIKey != "sk-o****3456" {
		t.Errorf("redacted = %q", r.Model.APIKey)
	}
	if cfg.Model.APIKey != "sk-or-v1-abcdef123456" {
		t.Error("Redacted modified the receiver")
	}
	if got := (Config{Model: Model{APIKey: "short"}}).Redacted().Model.APIKey; got != "****" {
		t.Errorf("short key = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := Log{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("output = %s", out)
	}
}
