// Package config loads and validates newsbrief settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/fetcher"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/summarizer"
	"github.com/RobinCoderZhao/newsbrief/pkg/config"
	"github.com/RobinCoderZhao/newsbrief/pkg/llm"
	"github.com/RobinCoderZhao/newsbrief/pkg/notify"
	"github.com/RobinCoderZhao/newsbrief/pkg/storage"
)

// DefaultPath is read when no --config flag or NEWSBRIEF_CONFIG is given.
const DefaultPath = "newsbrief.yaml"

// Config is the complete newsbrief configuration.
type Config struct {
	News     NewsConfig        `yaml:"news"`
	Fetch    fetcher.Config    `yaml:"fetch"`
	Pipeline summarizer.Config `yaml:"pipeline"`
	Run      RunConfig         `yaml:"run"`
	Storage  storage.Config    `yaml:"storage"`
	Server   ServerConfig      `yaml:"server"`
	Notify   NotifyConfig      `yaml:"notify"`
}

// NewsConfig configures the search API and the standing query.
type NewsConfig struct {
	APIKey  string        `yaml:"api_key" env:"NEWSAPI_KEY"`
	BaseURL string        `yaml:"base_url" env:"NEWSAPI_BASE_URL"`
	Timeout time.Duration `yaml:"timeout"`
	Query   sources.Query `yaml:",inline"`
}

// RunConfig bounds a run.
type RunConfig struct {
	Topic   string        `yaml:"topic" env:"NEWSBRIEF_TOPIC"`
	Timeout time.Duration `yaml:"timeout" env:"NEWSBRIEF_RUN_TIMEOUT"`
}

// ServerConfig configures `newsbrief serve`.
type ServerConfig struct {
	Addr      string        `yaml:"addr" env:"NEWSBRIEF_ADDR"`
	JWTSecret string        `yaml:"jwt_secret" env:"NEWSBRIEF_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Refresh   time.Duration `yaml:"refresh" env:"NEWSBRIEF_REFRESH"`
}

// NotifyConfig configures where finished briefings are published.
type NotifyConfig struct {
	Telegram notify.TelegramConfig `yaml:"telegram"`
	Webhook  notify.WebhookConfig  `yaml:"webhook"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		News: NewsConfig{
			BaseURL: "https://newsapi.org/v2",
			Timeout: 15 * time.Second,
			Query:   sources.DefaultQuery(),
		},
		Fetch:    fetcher.DefaultConfig(),
		Pipeline: summarizer.DefaultConfig(),
		Run: RunConfig{
			Topic:   summarizer.DefaultTopic,
			Timeout: 3 * time.Minute,
		},
		Storage: storage.Config{Path: "data/newsbrief.db"},
		Server: ServerConfig{
			Addr:     ":8080",
			TokenTTL: 30 * 24 * time.Hour,
		},
	}
}

// Load reads .env, then the YAML file at path (skipped when missing), then
// environment overrides. An empty path means NEWSBRIEF_CONFIG or DefaultPath.
func Load(path string) (*Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv("NEWSBRIEF_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	if err := config.LoadOrDefault(path, &cfg); err != nil {
		return nil, err
	}
	applyLLMEnv(&cfg.Pipeline)
	return &cfg, nil
}

// applyLLMEnv maps the LLM_* variables onto the draft stage and
// LLM_POLISH_* onto the polish stage.
func applyLLMEnv(p *summarizer.Config) {
	if v := getenv("LLM_PROVIDER"); v != "" {
		p.Draft.Provider = llm.Provider(strings.ToLower(v))
	}
	if v := getenv("LLM_MODEL"); v != "" {
		p.Draft.Model = v
	}
	if v := getenv("LLM_BASE_URL"); v != "" {
		p.Draft.BaseURL = v
	}
	if v := getenv("LLM_API_KEY"); v != "" {
		p.Draft.APIKey = v
	}
	if p.Draft.APIKey == "" {
		p.Draft.APIKey = providerKey(p.Draft.Provider)
	}

	if v := getenv("LLM_POLISH_PROVIDER"); v != "" {
		p.Polish.Provider = llm.Provider(strings.ToLower(v))
	}
	if v := getenv("LLM_POLISH_MODEL"); v != "" {
		p.Polish.Model = v
	}
	if v := getenv("LLM_POLISH_API_KEY"); v != "" {
		p.Polish.APIKey = v
	}
	if p.Polish.APIKey == "" && p.Polish.Provider != "" && p.Polish.Provider != p.Draft.Provider {
		p.Polish.APIKey = providerKey(p.Polish.Provider)
	}
}

// providerKey reads the vendor's conventional key variable.
func providerKey(p llm.Provider) string {
	switch p {
	case llm.Gemini:
		if v := getenv("GOOGLE_API_KEY"); v != "" {
			return v
		}
		return getenv("GEMINI_API_KEY")
	case llm.OpenAI:
		return getenv("OPENAI_API_KEY")
	case llm.MiniMax:
		return getenv("MINIMAX_API_KEY")
	}
	return ""
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// Validate reports every setting a run cannot start without.
func (c *Config) Validate() error {
	var errs []error
	missing := func(field, env string) {
		errs = append(errs, fmt.Errorf("%s is required (set %s)", field, env))
	}

	if c.News.APIKey == "" {
		missing("news.api_key", "NEWSAPI_KEY")
	}
	if err := c.News.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("news.sort_by: %w", err))
	}

	draft := c.Pipeline.Draft
	errs = append(errs, validateLLM("pipeline.draft", draft, "LLM_API_KEY")...)
	errs = append(errs, validateLLM("pipeline.polish", c.Pipeline.PolishConfig(), "LLM_POLISH_API_KEY")...)

	if c.Fetch.Concurrency > 10 {
		errs = append(errs, fmt.Errorf("fetch.concurrency must be at most 10, got %d", c.Fetch.Concurrency))
	}
	if c.Server.Refresh != 0 && c.Server.Refresh < time.Minute {
		errs = append(errs, fmt.Errorf("server.refresh must be at least 1m, got %s", c.Server.Refresh))
	}
	return errors.Join(errs...)
}

func validateLLM(prefix string, c llm.Config, keyEnv string) []error {
	var errs []error
	switch c.Provider {
	case llm.Gemini, llm.OpenAI, llm.MiniMax, llm.Ollama:
	case "":
		return []error{fmt.Errorf("%s.provider is required (set LLM_PROVIDER)", prefix)}
	default:
		return []error{fmt.Errorf("%s.provider %q is not supported", prefix, c.Provider)}
	}
	if c.Provider.NeedsAPIKey() && c.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s.api_key is required for %s (set %s)", prefix, c.Provider, keyEnv))
	}
	if c.Model == "" && c.Provider != llm.Ollama {
		errs = append(errs, fmt.Errorf("%s.model is required", prefix))
	}
	return errs
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.News.APIKey = mask(c.News.APIKey)
	c.Pipeline.Draft.APIKey = mask(c.Pipeline.Draft.APIKey)
	c.Pipeline.Polish.APIKey = mask(c.Pipeline.Polish.APIKey)
	c.Server.JWTSecret = mask(c.Server.JWTSecret)
	c.Notify.Telegram.BotToken = mask(c.Notify.Telegram.BotToken)
	c.Notify.Webhook.Secret = mask(c.Notify.Webhook.Secret)
	return c
}
