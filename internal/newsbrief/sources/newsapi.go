package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// NewsAPIConfig configures the NewsAPI retriever.
type NewsAPIConfig struct {
	APIKey  string        `yaml:"api_key" json:"-"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// NewsAPI searches https://newsapi.org/v2/everything.
type NewsAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
	policy  *bluemonday.Policy
	now     func() time.Time
	logger  *slog.Logger
}

// NewNewsAPI creates a NewsAPI retriever.
func NewNewsAPI(cfg NewsAPIConfig) *NewsAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://newsapi.org/v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &NewsAPI{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  bluemonday.StrictPolicy(),
		now:     time.Now,
		logger:  slog.Default(),
	}
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Search runs q against the everything endpoint.
func (n *NewsAPI) Search(ctx context.Context, q Query) (*SearchResult, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, &RetrievalError{Err: err}
	}

	from := n.now().UTC().AddDate(0, 0, -q.Days).Format("2006-01-02T15:04:05")
	params := url.Values{}
	params.Set("q", q.Expression)
	params.Set("from", from)
	params.Set("language", q.Language)
	params.Set("sortBy", q.SortBy)
	params.Set("pageSize", strconv.Itoa(q.PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, &RetrievalError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("X-Api-Key", n.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &RetrievalError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	var parsed newsAPIResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rerr := &RetrievalError{StatusCode: resp.StatusCode, Code: parsed.Code, Message: parsed.Message}
		if decodeErr != nil || rerr.Message == "" {
			rerr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, rerr
	}
	if decodeErr != nil {
		return nil, &RetrievalError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if parsed.Status != "ok" {
		return nil, &RetrievalError{StatusCode: resp.StatusCode, Code: parsed.Code, Message: parsed.Message}
	}

	result := &SearchResult{TotalResults: parsed.TotalResults, Articles: make([]ArticleRef, 0, len(parsed.Articles))}
	for _, a := range parsed.Articles {
		ref, ok := n.toRef(a)
		if !ok {
			continue
		}
		result.Articles = append(result.Articles, ref)
		if len(result.Articles) == q.PageSize {
			break
		}
	}

	n.logger.Debug("news search done",
		"query", q.Expression,
		"total", parsed.TotalResults,
		"returned", len(result.Articles),
		"latency", time.Since(start))
	return result, nil
}

// toRef converts an API entry, dropping ones without a usable link.
func (n *NewsAPI) toRef(a newsAPIArticle) (ArticleRef, bool) {
	u := strings.TrimSpace(a.URL)
	if u == "" || a.Title == "[Removed]" || strings.Contains(u, "removed.com") {
		return ArticleRef{}, false
	}
	ref := ArticleRef{
		Title:       n.clean(a.Title),
		SourceName:  n.clean(a.Source.Name),
		URL:         u,
		Description: n.clean(a.Description),
	}
	if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
		ref.PublishedAt = t
	}
	return ref, true
}

// clean strips markup and decodes the entities bluemonday escapes.
func (n *NewsAPI) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(n.policy.Sanitize(s)))
}
