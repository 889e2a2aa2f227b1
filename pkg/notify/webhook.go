package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EventBriefingPublished is the event name of every webhook delivery.
const EventBriefingPublished = "briefing.published"

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Newsbrief-Signature"

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	URL     string            `yaml:"url" json:"url" env:"NEWSBRIEF_WEBHOOK_URL"`
	Secret  string            `yaml:"secret" json:"-" env:"NEWSBRIEF_WEBHOOK_SECRET"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// WebhookPayload is the JSON document posted for each briefing.
type WebhookPayload struct {
	Event         string     `json:"event"`
	SentAt        time.Time  `json:"sent_at"`
	Topic         string     `json:"topic"`
	Status        string     `json:"status"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary"`
	Format        string     `json:"format"`
	HeadlineCount int        `json:"headline_count"`
	Headlines     []Headline `json:"headlines"`
}

// WebhookNotifier posts briefings as JSON to a webhook URL.
type WebhookNotifier struct {
	config WebhookConfig
	http   *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Channel() Channel { return ChannelWebhook }

func (w *WebhookNotifier) payload(msg Message) WebhookPayload {
	headlines := msg.Headlines
	if headlines == nil {
		headlines = []Headline{}
	}
	return WebhookPayload{
		Event:         EventBriefingPublished,
		SentAt:        w.now().UTC(),
		Topic:         msg.Topic,
		Status:        msg.Status,
		Title:         msg.Title,
		Summary:       msg.Body,
		Format:        msg.Format,
		HeadlineCount: len(headlines),
		Headlines:     headlines,
	}
}

// Sign returns the signature a receiver should find in SignatureHeader.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send posts the briefing to the webhook URL.
func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(w.payload(msg))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "NewsBrief-Webhook/1.0")
	if w.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.config.Secret, body))
	}
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook %s returned status %d: %s", w.config.URL, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
