// Package publisher formats briefings and distributes them.
package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	"github.com/RobinCoderZhao/newsbrief/pkg/notify"
)

// Publisher formats briefings and sends them via notification channels.
type Publisher struct {
	dispatcher *notify.Dispatcher
	channels   []notify.Channel
}

// NewPublisher creates a new publisher with the given dispatcher and target channels.
// An empty channel list means every registered channel.
func NewPublisher(dispatcher *notify.Dispatcher, channels []notify.Channel) *Publisher {
	if len(channels) == 0 {
		channels = dispatcher.Channels()
	}
	return &Publisher{
		dispatcher: dispatcher,
		channels:   channels,
	}
}

// Enabled reports whether there is anywhere to publish to.
func (p *Publisher) Enabled() bool {
	return p != nil && len(p.channels) > 0
}

// Publish sends a briefing's summary. Briefings without articles are skipped.
func (p *Publisher) Publish(ctx context.Context, b *newsbrief.Briefing) error {
	if b.NoArticles() {
		return nil
	}
	msg := notify.Message{
		Title:  Title(b),
		Body:   FormatDigest(b),
		Format: "markdown",
		Topic:  b.Topic,
		Status: b.Status(),
	}
	for _, h := range b.Headlines {
		msg.Headlines = append(msg.Headlines, notify.Headline{Title: h.Title, Source: h.SourceName, URL: h.URL})
	}
	if len(b.Headlines) > 0 {
		msg.URL = b.Headlines[0].URL
	}
	return p.dispatcher.Dispatch(ctx, p.channels, msg)
}

// Title names a briefing, e.g. "Tollywood news, Mar 10, 2025".
func Title(b *newsbrief.Briefing) string {
	topic := b.Topic
	if topic == "" {
		topic = "News"
	}
	return fmt.Sprintf("%s news, %s", topic, b.FinishedAt.Format("Jan 2, 2006"))
}

// FormatDigest renders the summary followed by the headline list.
func FormatDigest(b *newsbrief.Briefing) string {
	var sb strings.Builder
	if s := b.SummaryText(); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	for i, h := range b.Headlines {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, h.Title, h.SourceName))
	}
	return strings.TrimSpace(sb.String())
}

// FormatMarkdown renders a full briefing as a Markdown document for the
// terminal and the dashboard.
func FormatMarkdown(b *newsbrief.Briefing) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", Title(b)))

	if b.NoArticles() {
		sb.WriteString(NoArticlesMessage(b.Query.Days))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString("## Top headlines\n\n")
	for i, h := range b.Headlines {
		sb.WriteString(fmt.Sprintf("%d. **%s**  \n", i+1, h.Title))
		sb.WriteString(fmt.Sprintf("   Source: %s | [%s](%s)\n", h.SourceName, h.URL, h.URL))
	}
	sb.WriteString("\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString(b.SummaryText())
	sb.WriteString("\n\n")

	if b.PolishError != "" {
		sb.WriteString("> The summary could not be polished; showing the first draft.\n\n")
	}

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("*%d of %d articles read in full", b.Stats.Extracted, len(b.Headlines)))
	if b.Summary != nil {
		sb.WriteString(fmt.Sprintf(" | tokens: %d | cost: $%.4f", b.Summary.TokensIn+b.Summary.TokensOut, b.Summary.Cost))
	}
	sb.WriteString("*\n")
	return sb.String()
}

// NoArticlesMessage is shown when the search returned nothing.
func NoArticlesMessage(days int) string {
	return fmt.Sprintf("No articles found in the last %d days.", days)
}
