// Package scraper fetches web pages and extracts their readable text.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

var (
	// ErrBlocked is returned for captcha, bot-check and paywall interstitials.
	ErrBlocked = errors.New("page is behind a captcha or paywall")
	// ErrDisallowed is returned when robots.txt forbids the path.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// FetchOptions configures an HTTPFetcher.
type FetchOptions struct {
	UserAgent     string            `yaml:"user_agent"`
	Timeout       time.Duration     `yaml:"timeout"`
	RetryCount    int               `yaml:"retry_count"`
	Headers       map[string]string `yaml:"headers"`
	MaxBodyBytes  int64             `yaml:"max_body_bytes"`
	RespectRobots bool              `yaml:"respect_robots"`
	// UseJina retries thin pages through the Jina Reader renderer.
	UseJina bool `yaml:"use_jina"`
}

// DefaultFetchOptions returns sensible defaults for fetching news pages.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		UserAgent:    "Mozilla/5.0 (compatible; NewsBrief/1.0; +https://github.com/RobinCoderZhao/newsbrief)",
		Timeout:      15 * time.Second,
		RetryCount:   1,
		MaxBodyBytes: 5 << 20,
	}
}

// FetchResult holds the result of fetching a URL.
type FetchResult struct {
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code"`
	Title      string        `json:"title"`
	CleanText  string        `json:"clean_text"`
	FetchedAt  time.Time     `json:"fetched_at"`
	Duration   time.Duration `json:"duration"`
}

// Fetcher defines the interface for fetching web content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// HTTPFetcher implements Fetcher using plain HTTP plus readability extraction.
type HTTPFetcher struct {
	client   *http.Client
	opts     FetchOptions
	robots   *RobotsPolicy
	jinaBase string
	logger   *slog.Logger
}

// NewHTTPFetcher creates a new HTTP-based fetcher. Zero option fields take
// their DefaultFetchOptions value.
func NewHTTPFetcher(opts FetchOptions) *HTTPFetcher {
	def := DefaultFetchOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}

	client := &http.Client{Timeout: opts.Timeout}
	f := &HTTPFetcher{
		client:   client,
		opts:     opts,
		jinaBase: "https://r.jina.ai/",
		logger:   slog.Default(),
	}
	if opts.RespectRobots {
		f.robots = NewRobotsPolicy(client, opts.UserAgent)
	}
	return f
}

// Fetch retrieves a URL and extracts the article text from the HTML.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid article URL %q", rawURL)
	}

	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrDisallowed)
	}

	body, status, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title, text, err := ExtractArticle(body, u)
	if err != nil {
		f.logger.Debug("readability failed, using plain text walker", "url", rawURL, "error", err)
		title = extractTitle(body)
		text = ExtractText(body)
	}

	if looksBlocked(text) {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrBlocked)
	}

	// JS-rendered pages come back nearly empty; let Jina render them.
	if f.opts.UseJina && len(text) < 500 {
		if rendered, jinaErr := f.fetchViaJina(ctx, rawURL); jinaErr == nil && len(rendered) > len(text) {
			text = rendered
		} else if jinaErr != nil {
			f.logger.Debug("jina fallback failed", "url", rawURL, "error", jinaErr)
		}
	}

	return &FetchResult{
		URL:        rawURL,
		StatusCode: status,
		Title:      title,
		CleanText:  text,
		FetchedAt:  time.Now(),
		Duration:   time.Since(start),
	}, nil
}

// get downloads rawURL, retrying transport failures and 5xx answers.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		body, status, err := f.getOnce(ctx, rawURL)
		if err == nil {
			return body, status, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", 0, lastErr
}

func (f *HTTPFetcher) getOnce(ctx context.Context, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") && !strings.HasPrefix(ct, "text/") {
		return "", resp.StatusCode, fmt.Errorf("fetch %s: unsupported content type %q", rawURL, ct)
	}

	limited := io.LimitReader(resp.Body, f.opts.MaxBodyBytes)
	reader, err := charset.NewReader(limited, ct)
	if err != nil {
		reader = limited
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return string(body), resp.StatusCode, nil
}

// fetchViaJina uses the Jina Reader API to render JS pages and extract content.
func (f *HTTPFetcher) fetchViaJina(ctx context.Context, targetURL string) (string, error) {
	client := &http.Client{Timeout: f.opts.Timeout + 15*time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.jinaBase+targetURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Return-Format", "text")
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("jina fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("jina returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

var blockMarkers = []string{
	"captcha",
	"verify you are human",
	"are you a robot",
	"enable javascript and cookies to continue",
	"subscribe to continue reading",
	"this content is for subscribers only",
}

// looksBlocked reports whether a short page is an interstitial rather than an article.
func looksBlocked(text string) bool {
	if len(text) > 1500 {
		return false
	}
	lower := strings.ToLower(text)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
