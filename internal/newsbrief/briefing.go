// Package newsbrief holds the types shared by the retrieval, summarization,
// storage and presentation packages.
package newsbrief

import (
	"time"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/corpus"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/fetcher"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/summarizer"
)

// Status values of a finished briefing.
const (
	StatusOK         = "ok"
	StatusNoArticles = "no_articles"
	// StatusDraftOnly marks a briefing whose polish stage failed and that
	// shows the draft instead.
	StatusDraftOnly = "draft_only"
)

// Request is one run of the dashboard.
type Request struct {
	// Topic labels the news in prompts and titles, e.g. "Tollywood".
	Topic string        `json:"topic"`
	Query sources.Query `json:"query"`
}

// Briefing is the full report of one run.
type Briefing struct {
	ID           int64                 `json:"id,omitempty"`
	Topic        string                `json:"topic"`
	Query        sources.Query         `json:"query"`
	TotalResults int                   `json:"total_results"`
	Headlines    []sources.ArticleRef  `json:"headlines"`
	Texts        []fetcher.ArticleText `json:"texts,omitempty"`
	Corpus       string                `json:"-"`
	Stats        corpus.Stats          `json:"stats"`
	Summary      *summarizer.Result    `json:"summary,omitempty"`
	PolishError  string                `json:"polish_error,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}

// NoArticles reports whether the search returned nothing to summarize.
func (b *Briefing) NoArticles() bool {
	return len(b.Headlines) == 0
}

// Status classifies the briefing.
func (b *Briefing) Status() string {
	switch {
	case b.NoArticles():
		return StatusNoArticles
	case b.PolishError != "":
		return StatusDraftOnly
	default:
		return StatusOK
	}
}

// SummaryText returns the text to show readers.
func (b *Briefing) SummaryText() string {
	return b.Summary.Final()
}

// Duration is how long the run took.
func (b *Briefing) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}
