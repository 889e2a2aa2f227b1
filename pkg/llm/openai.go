package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// openaiClient talks to any endpoint speaking the OpenAI chat completions protocol.
type openaiClient struct {
	cfg      Config
	provider Provider
	http     *http.Client
	base     string
}

func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.Provider.NeedsAPIKey() && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}
	base := "https://api.openai.com/v1"
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	client := &openaiClient{
		cfg:      cfg,
		provider: cfg.Provider,
		base:     base,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
	return wrapWithRetry(client, cfg.MaxRetries), nil
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openaiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	messages := make([]openaiMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openaiMessage{Role: m.Role, Content: m.Content})
	}

	oReq := openaiRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   pickInt(req.MaxTokens, c.cfg.MaxTokens),
		Temperature: pickTemp(req.Temperature, c.cfg.Temperature),
	}

	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp openaiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &APIError{Provider: c.provider, StatusCode: httpResp.StatusCode, Message: msg}
	}

	var oResp openaiResponse
	if err := json.Unmarshal(respBody, &oResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(oResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in %s response", c.provider)
	}

	model := oResp.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &Response{
		Content:      stripThinkTags(oResp.Choices[0].Message.Content),
		FinishReason: oResp.Choices[0].FinishReason,
		TokensIn:     oResp.Usage.PromptTokens,
		TokensOut:    oResp.Usage.CompletionTokens,
		Cost:         EstimateCost(model, oResp.Usage.PromptTokens, oResp.Usage.CompletionTokens),
		Model:        model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (c *openaiClient) Provider() Provider { return c.provider }
func (c *openaiClient) Close() error       { return nil }

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThinkTags removes <think>...</think> reasoning blocks that MiniMax and
// some Ollama models emit ahead of the answer.
func stripThinkTags(content string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(content, ""))
}

func pickInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func pickTemp(v, fallback *float64) *float64 {
	if v != nil {
		return v
	}
	return fallback
}
