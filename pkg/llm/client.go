// Package llm provides a unified interface for interacting with generative text models.
// It supports Gemini and OpenAI-compatible endpoints (OpenAI, MiniMax, Ollama) with
// automatic retries and cost tracking.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	Gemini  Provider = "gemini"
	OpenAI  Provider = "openai"
	MiniMax Provider = "minimax"
	Ollama  Provider = "ollama"
)

// Config holds configuration for an LLM client.
type Config struct {
	Provider    Provider      `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	APIKey      string        `yaml:"api_key" json:"-"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	// Temperature nil means unset; 0 is a valid value.
	Temperature *float64      `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// DefaultConfig returns the settings the news summaries were tuned against.
func DefaultConfig() Config {
	return Config{
		Provider:    Gemini,
		Model:       "gemini-2.5-flash",
		MaxRetries:  3,
		Timeout:     60 * time.Second,
		MaxTokens:   500,
		Temperature: Temp(0.2),
	}
}

// Temp returns a pointer to a sampling temperature.
func Temp(v float64) *float64 { return &v }

// NeedsAPIKey reports whether the provider requires an API key.
func (p Provider) NeedsAPIKey() bool {
	return p != Ollama
}

// Client is the unified interface for LLM interactions.
type Client interface {
	// Generate sends a prompt and returns the LLM response.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Provider returns the name of the provider.
	Provider() Provider

	// Close releases any resources held by the client.
	Close() error
}

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request holds the parameters for an LLM generation request.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string) *Request {
	return &Request{
		System:   system,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
}

// Response holds the result of an LLM generation.
type Response struct {
	Content      string  `json:"content"`
	FinishReason string  `json:"finish_reason,omitempty"`
	TokensIn     int     `json:"tokens_in"`
	TokensOut    int     `json:"tokens_out"`
	Cost         float64 `json:"cost"`
	Model        string  `json:"model"`
	LatencyMs    int64   `json:"latency_ms"`
}

// APIError is a non-success answer from a provider endpoint.
type APIError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// NewClient creates a new LLM client based on the provided config.
func NewClient(cfg Config) (Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	switch cfg.Provider {
	case Gemini:
		return newGeminiClient(cfg)
	case OpenAI:
		return newOpenAIClient(cfg)
	case MiniMax:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.minimax.io/v1"
		}
		return newOpenAIClient(cfg)
	case Ollama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		if cfg.Model == "" {
			cfg.Model = "llama3.2"
		}
		// Local models: no key, no retry.
		cfg.MaxRetries = 1
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
