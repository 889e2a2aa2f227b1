// Package fetcher downloads the pages behind search hits and extracts their
// text. A failing article never fails the batch.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/pkg/scraper"
)

// Config controls article fetching.
type Config struct {
	Concurrency   int           `yaml:"concurrency" json:"concurrency"`
	MinChars      int           `yaml:"min_chars" json:"min_chars"`
	MaxChars      int           `yaml:"max_chars" json:"max_chars"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryCount    int           `yaml:"retry_count" json:"retry_count"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	RespectRobots bool          `yaml:"respect_robots" json:"respect_robots"`
	UseJina       bool          `yaml:"use_jina" json:"use_jina"`
}

// DefaultConfig returns the fetch defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		MinChars:    200,
		MaxChars:    8000,
		Timeout:     15 * time.Second,
		RetryCount:  1,
	}
}

// ErrTooShort marks pages whose extracted text is too short to be an article.
var ErrTooShort = errors.New("extracted text too short, not an article page")

// FetchError describes why one article could not be turned into text.
type FetchError struct {
	URL   string
	Title string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch article %q (%s): %v", e.Title, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ArticleText is the fetch outcome for one ArticleRef. Body is set only when
// Err is nil.
type ArticleText struct {
	Ref  sources.ArticleRef
	Body string
	Err  error
}

// OK reports whether the article body was extracted.
func (a ArticleText) OK() bool { return a.Err == nil }

type articleTextJSON struct {
	Ref   sources.ArticleRef `json:"ref"`
	Body  string             `json:"body,omitempty"`
	Error string             `json:"error,omitempty"`
}

func (a ArticleText) MarshalJSON() ([]byte, error) {
	v := articleTextJSON{Ref: a.Ref, Body: a.Body}
	if a.Err != nil {
		v.Error = a.Err.Error()
	}
	return json.Marshal(v)
}

func (a *ArticleText) UnmarshalJSON(data []byte) error {
	var v articleTextJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	a.Ref, a.Body, a.Err = v.Ref, v.Body, nil
	if v.Error != "" {
		a.Err = &FetchError{URL: v.Ref.URL, Title: v.Ref.Title, Err: errors.New(v.Error)}
	}
	return nil
}

// Fetcher turns ArticleRefs into ArticleTexts.
type Fetcher struct {
	pages  scraper.Fetcher
	cfg    Config
	logger *slog.Logger
}

// New creates a Fetcher backed by an HTTP page scraper.
func New(cfg Config) *Fetcher {
	pages := scraper.NewHTTPFetcher(scraper.FetchOptions{
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.Timeout,
		RetryCount:    cfg.RetryCount,
		RespectRobots: cfg.RespectRobots,
		UseJina:       cfg.UseJina,
	})
	return NewWithScraper(pages, cfg)
}

// NewWithScraper creates a Fetcher over any page fetcher.
func NewWithScraper(pages scraper.Fetcher, cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Concurrency > 10 {
		cfg.Concurrency = 10
	}
	if cfg.MinChars < 0 {
		cfg.MinChars = 0
	}
	if cfg.MaxChars < 0 {
		cfg.MaxChars = 0
	}
	return &Fetcher{pages: pages, cfg: cfg, logger: slog.Default()}
}

// Fetch downloads one article. Failures are reported in ArticleText.Err as
// a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, ref sources.ArticleRef) ArticleText {
	fail := func(err error) ArticleText {
		return ArticleText{Ref: ref, Err: &FetchError{URL: ref.URL, Title: ref.Title, Err: err}}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	page, err := f.pages.Fetch(ctx, ref.URL)
	if err != nil {
		return fail(err)
	}

	body := strings.TrimSpace(page.CleanText)
	if utf8.RuneCountInString(body) < f.cfg.MinChars {
		return fail(ErrTooShort)
	}
	return ArticleText{Ref: ref, Body: truncateRunes(body, f.cfg.MaxChars)}
}

// FetchAll fetches refs in parallel, at most Config.Concurrency at a time.
// The result has one entry per ref, in the same order.
func (f *Fetcher) FetchAll(ctx context.Context, refs []sources.ArticleRef) []ArticleText {
	out := make([]ArticleText, len(refs))

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			out[i] = f.Fetch(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, a := range out {
		if a.OK() {
			ok++
			continue
		}
		f.logger.Warn("article skipped", "url", a.Ref.URL, "error", a.Err)
	}
	f.logger.Info("articles fetched", "total", len(refs), "ok", ok, "failed", len(refs)-ok)
	return out
}

// truncateRunes cuts s to at most max runes. max <= 0 means no limit.
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
