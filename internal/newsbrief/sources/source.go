// Package sources finds recent news articles for a topic through a news
// search API.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default search parameters.
const (
	DefaultExpression = `"Tollywood" OR "Telugu cinema" OR "Telugu movies"`
	DefaultDays       = 7
	DefaultLanguage   = "en"
	DefaultSortBy     = "relevancy"
	DefaultPageSize   = 5
	MaxPageSize       = 100
)

// ArticleRef is one search hit. Refs keep the rank order of the search API.
type ArticleRef struct {
	Title       string    `json:"title"`
	SourceName  string    `json:"source"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Query describes one search.
type Query struct {
	// Expression is the search API query, e.g. `"Telugu cinema" OR Tollywood`.
	Expression string `yaml:"query" json:"query"`
	Days       int    `yaml:"days" json:"days"`
	Language   string `yaml:"language" json:"language"`
	SortBy     string `yaml:"sort_by" json:"sort_by"`
	PageSize   int    `yaml:"page_size" json:"page_size"`
}

// DefaultQuery returns the dashboard's standing query.
func DefaultQuery() Query {
	return Query{
		Expression: DefaultExpression,
		Days:       DefaultDays,
		Language:   DefaultLanguage,
		SortBy:     DefaultSortBy,
		PageSize:   DefaultPageSize,
	}
}

// Normalize fills zero fields from DefaultQuery and clamps the page size.
func (q Query) Normalize() Query {
	def := DefaultQuery()
	q.Expression = strings.TrimSpace(q.Expression)
	if q.Expression == "" {
		q.Expression = def.Expression
	}
	if q.Days <= 0 {
		q.Days = def.Days
	}
	if q.Language == "" {
		q.Language = def.Language
	}
	if q.SortBy == "" {
		q.SortBy = def.SortBy
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = def.PageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return q
}

// Validate rejects sort orders the search API does not know.
func (q Query) Validate() error {
	switch q.SortBy {
	case "", "relevancy", "popularity", "publishedAt":
		return nil
	}
	return fmt.Errorf("unknown sort order %q (want relevancy, popularity or publishedAt)", q.SortBy)
}

// TopicExpression turns a free-text topic into a phrase query. Input that
// already uses quotes or boolean operators is passed through.
func TopicExpression(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.ContainsAny(topic, `"()`) || strings.Contains(topic, " OR ") || strings.Contains(topic, " AND ") {
		return topic
	}
	return `"` + topic + `"`
}

// GenericTopic labels searches whose expression yields no usable term.
const GenericTopic = "latest"

// ExpressionTopic derives a readable topic from a query expression: the
// first search term with quotes, parentheses and +/- prefixes removed.
func ExpressionTopic(expr string) string {
	term := strings.TrimSpace(expr)
	for _, op := range []string{" OR ", " AND ", " NOT "} {
		if i := strings.Index(term, op); i >= 0 {
			term = term[:i]
		}
	}
	term = strings.Trim(term, `"()+- `)
	term = strings.TrimSpace(strings.Trim(term, `"`))
	if term == "" {
		return GenericTopic
	}
	return term
}

// SearchResult is the outcome of a successful search. Articles may be empty.
type SearchResult struct {
	TotalResults int          `json:"total_results"`
	Articles     []ArticleRef `json:"articles"`
}

// Retriever searches for articles.
type Retriever interface {
	Search(ctx context.Context, q Query) (*SearchResult, error)
}

// RetrievalError reports that the search API could not be used: it was
// unreachable, rejected the request, or answered with something unreadable.
type RetrievalError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *RetrievalError) Error() string {
	var sb strings.Builder
	sb.WriteString("news search failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (HTTP %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&sb, " [%s]", e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// IsRetrievalError reports whether err is or wraps a *RetrievalError.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}
