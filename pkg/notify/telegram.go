package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Telegram caps message text at 4096 characters.
const telegramMaxLen = 4096

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BotToken  string `yaml:"bot_token" json:"-" env:"TELEGRAM_BOT_TOKEN"`
	ChannelID string `yaml:"channel_id" json:"channel_id" env:"TELEGRAM_CHANNEL_ID"`
}

// TelegramNotifier sends messages via Telegram Bot API.
type TelegramNotifier struct {
	config  TelegramConfig
	http    *http.Client
	baseURL string
}

// NewTelegramNotifier creates a new Telegram notifier.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		config:  cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://api.telegram.org",
	}
}

func (t *TelegramNotifier) Channel() Channel { return ChannelTelegram }

// Send sends a message via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"chat_id":    t.config.ChannelID,
		"text":       formatTelegram(msg),
		"parse_mode": "MarkdownV2",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// formatTelegram renders msg as MarkdownV2 with a bold title.
func formatTelegram(msg Message) string {
	var sb strings.Builder
	if msg.Title != "" {
		sb.WriteString("*" + escapeMarkdown(msg.Title) + "*\n\n")
	}
	sb.WriteString(escapeMarkdown(msg.Body))
	if msg.URL != "" {
		sb.WriteString(fmt.Sprintf("\n\n[Read more](%s)", escapeLinkURL(msg.URL)))
	}

	text := sb.String()
	if r := []rune(text); len(r) > telegramMaxLen {
		text = strings.TrimRight(string(r[:telegramMaxLen-2]), `\`) + "…"
	}
	return text
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// Inside (...) of a link only ")" and "\" need escaping.
func escapeLinkURL(u string) string {
	return strings.NewReplacer(`\`, `\\`, ")", `\)`).Replace(u)
}
