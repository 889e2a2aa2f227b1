package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type recordingNotifier struct {
	ch   Channel
	err  error
	sent []Message
}

func (r *recordingNotifier) Channel() Channel { return r.ch }

func (r *recordingNotifier) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestDispatcher_SendAll(t *testing.T) {
	tg := &recordingNotifier{ch: ChannelTelegram}
	wh := &recordingNotifier{ch: ChannelWebhook, err: errors.New("down")}

	d := NewDispatcher()
	d.Register(tg)
	d.Register(wh)

	err := d.SendAll(context.Background(), Message{Title: "t", Body: "b"})
	if err == nil || !strings.Contains(err.Error(), "1/2") {
		t.Fatalf("expected one failure of two, got %v", err)
	}
	if len(tg.sent) != 1 || len(wh.sent) != 1 {
		t.Fatalf("every channel must be attempted: tg=%d wh=%d", len(tg.sent), len(wh.sent))
	}
}

func TestDispatcher_UnregisteredChannelSkipped(t *testing.T) {
	d := NewDispatcher()
	if err := d.Dispatch(context.Background(), []Channel{ChannelTelegram}, Message{}); err != nil {
		t.Fatalf("unregistered channel should be skipped, got %v", err)
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got WebhookPayload
	var raw []byte
	var signature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "abc" {
			t.Errorf("missing custom header")
		}
		signature = r.Header.Get(SignatureHeader)
		raw, _ = io.ReadAll(r.Body)
		json.Unmarshal(raw, &got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Secret: "hook-secret", Headers: map[string]string{"X-Token": "abc"}})
	n.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	msg := Message{
		Title:  "Tollywood news, Mar 10, 2025",
		Body:   "summary",
		Format: "markdown",
		Topic:  "Tollywood",
		Status: "ok",
		Headlines: []Headline{
			{Title: "First", Source: "A", URL: "https://a/1"},
			{Title: "Second", Source: "B", URL: "https://b/2"},
		},
	}
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if got.Event != EventBriefingPublished || got.Topic != "Tollywood" || got.Status != "ok" || got.Summary != "summary" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.HeadlineCount != 2 || len(got.Headlines) != 2 || got.Headlines[1].URL != "https://b/2" {
		t.Errorf("unexpected headlines: %+v", got.Headlines)
	}
	if !got.SentAt.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("sent_at = %v", got.SentAt)
	}
	if signature != Sign("hook-secret", raw) {
		t.Errorf("signature %q does not match body", signature)
	}
}

func TestWebhookNotifier_NoSecretNoSignature(t *testing.T) {
	var signature string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(SignatureHeader)
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(WebhookConfig{URL: srv.URL}).Send(context.Background(), Message{Title: "t"}); err != nil {
		t.Fatal(err)
	}
	if signature != "" {
		t.Errorf("unexpected signature %q", signature)
	}
	if hs, ok := body["headlines"].([]any); !ok || len(hs) != 0 {
		t.Errorf("headlines should be an empty list, got %v", body["headlines"])
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(WebhookConfig{URL: srv.URL}).Send(context.Background(), Message{}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(TelegramConfig{BotToken: "TOKEN", ChannelID: "@news"})
	n.baseURL = srv.URL
	if err := n.Send(context.Background(), Message{Title: "Weekly news", Body: "Box office up 20%."}); err != nil {
		t.Fatal(err)
	}
	if payload["chat_id"] != "@news" {
		t.Errorf("chat_id = %v", payload["chat_id"])
	}
	if text := payload["text"].(string); text != "*Weekly news*\n\nBox office up 20%\\." {
		t.Errorf("text = %q", text)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b*c (d) e.f!"); got != `a\_b\*c \(d\) e\.f\!` {
		t.Errorf("got %q", got)
	}
}

func TestFormatTelegram_Truncates(t *testing.T) {
	text := formatTelegram(Message{Body: strings.Repeat("word ", 2000)})
	if n := utf8.RuneCountInString(text); n > telegramMaxLen {
		t.Fatalf("message too long: %d runes", n)
	}
	if !strings.HasSuffix(text, "…") {
		t.Error("expected ellipsis on truncated text")
	}
}
