package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Name    string        `yaml:"name" env:"APP_NAME"`
	Port    int           `yaml:"port" env:"APP_PORT"`
	Debug   bool          `yaml:"debug" env:"APP_DEBUG"`
	Timeout time.Duration `yaml:"timeout" env:"APP_TIMEOUT"`
	News    struct {
		APIKey string `yaml:"api_key" env:"NEWS_KEY"`
	} `yaml:"news"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `
name: test-app
port: 8080
timeout: 45s
news:
  api_key: abc
`)

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "test-app" {
		t.Fatalf("expected 'test-app', got '%s'", cfg.Name)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected 8080, got %d", cfg.Port)
	}
	if cfg.Timeout != 45*time.Second {
		t.Fatalf("expected 45s, got %v", cfg.Timeout)
	}
	if cfg.News.APIKey != "abc" {
		t.Fatalf("expected nested key, got %q", cfg.News.APIKey)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SECRET_FROM_ENV", "s3cr3t")
	path := writeFile(t, "config.yaml", "news:\n  api_key: ${SECRET_FROM_ENV}\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.News.APIKey != "s3cr3t" {
		t.Fatalf("expected expanded value, got %q", cfg.News.APIKey)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", "name: default\nport: 3000\n")

	t.Setenv("APP_NAME", "from-env")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("APP_TIMEOUT", "2m")
	t.Setenv("NEWS_KEY", "nested")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "from-env" || cfg.Port != 9090 || !cfg.Debug {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", cfg.Timeout)
	}
	if cfg.News.APIKey != "nested" {
		t.Fatalf("expected nested override, got %q", cfg.News.APIKey)
	}
}

func TestEnvOverride_BadValue(t *testing.T) {
	t.Setenv("APP_PORT", "not-a-number")
	var cfg testConfig
	if err := ApplyEnv(&cfg); err == nil {
		t.Fatal("expected error for malformed int")
	}
}

func TestLoadOrDefault_MissingFileKeepsDefaults(t *testing.T) {
	cfg := testConfig{Name: "preset"}
	if err := LoadOrDefault("/nonexistent/config.yaml", &cfg); err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Name != "preset" {
		t.Fatalf("expected preset name to survive, got '%s'", cfg.Name)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "DOTENV_ONLY=loaded\n")
	t.Setenv("DOTENV_ONLY", "")
	os.Unsetenv("DOTENV_ONLY")

	if err := LoadDotEnv("/nonexistent/.env", path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("DOTENV_ONLY"); got != "loaded" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}
