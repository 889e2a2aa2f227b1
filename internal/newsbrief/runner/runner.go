// Package runner drives one dashboard run: search, fetch, aggregate and
// summarize, then archive and publish the result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/corpus"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/fetcher"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/summarizer"
)

// ErrRunInProgress is returned by TryRun while another run is active.
var ErrRunInProgress = errors.New("a briefing run is already in progress")

// ArticleFetcher fetches article texts in rank order.
type ArticleFetcher interface {
	FetchAll(ctx context.Context, refs []sources.ArticleRef) []fetcher.ArticleText
}

// Summarizer turns a corpus into a summary.
type Summarizer interface {
	Run(ctx context.Context, in summarizer.Input) (*summarizer.Result, error)
}

// Archive stores finished briefings.
type Archive interface {
	Save(ctx context.Context, b *newsbrief.Briefing) (int64, error)
}

// Publisher distributes finished briefings.
type Publisher interface {
	Publish(ctx context.Context, b *newsbrief.Briefing) error
}

// Options tunes a Runner.
type Options struct {
	// Timeout bounds a whole run. Zero means DefaultTimeout.
	Timeout time.Duration
	// FallbackToDraft shows the draft when the polish stage fails instead
	// of failing the run.
	FallbackToDraft bool
	// Topic and Query fill in what a Request leaves empty.
	Topic string
	Query sources.Query
}

// DefaultTimeout bounds a run when Options.Timeout is zero.
const DefaultTimeout = 3 * time.Minute

// Runner executes runs one at a time.
type Runner struct {
	retriever sources.Retriever
	fetcher   ArticleFetcher
	pipeline  Summarizer
	archive   Archive
	publisher Publisher
	opts      Options

	mu     sync.Mutex
	lastMu sync.RWMutex
	last   *newsbrief.Briefing

	now    func() time.Time
	logger *slog.Logger
}

// New creates a Runner.
func New(retriever sources.Retriever, f ArticleFetcher, pipeline Summarizer, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Topic == "" {
		opts.Topic = summarizer.DefaultTopic
	}
	opts.Query = opts.Query.Normalize()
	return &Runner{
		retriever: retriever,
		fetcher:   f,
		pipeline:  pipeline,
		opts:      opts,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// SetArchive makes the runner save every finished briefing.
func (r *Runner) SetArchive(a Archive) { r.archive = a }

// SetPublisher makes the runner publish every finished briefing.
func (r *Runner) SetPublisher(p Publisher) { r.publisher = p }

// Last returns the most recent briefing produced by this runner, or nil.
func (r *Runner) Last() *newsbrief.Briefing {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.last
}

// Run waits for any active run to finish and then executes req.
func (r *Runner) Run(ctx context.Context, req newsbrief.Request) (*newsbrief.Briefing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx, req)
}

// TryRun executes req unless another run is active, in which case it
// returns ErrRunInProgress.
func (r *Runner) TryRun(ctx context.Context, req newsbrief.Request) (*newsbrief.Briefing, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.run(ctx, req)
}

// resolve fills the request from the runner defaults.
func (r *Runner) resolve(req newsbrief.Request) newsbrief.Request {
	q := req.Query
	if req.Topic == "" {
		// The configured topic only describes the configured query.
		if q.Expression == "" || q.Expression == r.opts.Query.Expression {
			req.Topic = r.opts.Topic
		} else {
			req.Topic = sources.ExpressionTopic(q.Expression)
		}
	}
	def := r.opts.Query
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
	if q.PageSize <= 0 {
		q.PageSize = def.PageSize
	}
	req.Query = q.Normalize()
	return req
}

func (r *Runner) run(ctx context.Context, req newsbrief.Request) (*newsbrief.Briefing, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req = r.resolve(req)
	b := &newsbrief.Briefing{
		Topic:     req.Topic,
		Query:     req.Query,
		StartedAt: r.now(),
	}
	log := r.logger.With("topic", req.Topic)
	log.Info("run started", "query", req.Query.Expression, "days", req.Query.Days)

	found, err := r.retriever.Search(ctx, req.Query)
	if err != nil {
		log.Error("news search failed", "error", err)
		return nil, err
	}
	b.TotalResults = found.TotalResults
	b.Headlines = found.Articles

	if b.NoArticles() {
		b.FinishedAt = r.now()
		log.Info("no articles found", "days", req.Query.Days)
		r.finish(ctx, b)
		return b, nil
	}

	b.Texts = r.fetcher.FetchAll(ctx, b.Headlines)
	b.Corpus = corpus.Build(b.Texts)
	b.Stats = corpus.Count(b.Texts)
	if corpus.IsPlaceholder(b.Corpus) {
		log.Warn("no article text extracted, summarizing placeholder", "articles", len(b.Headlines))
	}

	res, err := r.pipeline.Run(ctx, summarizer.Input{Topic: req.Topic, Corpus: b.Corpus})
	if err != nil {
		var ge *summarizer.GenerationError
		if !r.opts.FallbackToDraft || res == nil || res.Draft == "" || !errors.As(err, &ge) || ge.Stage != summarizer.StagePolish {
			return nil, err
		}
		log.Warn("polish failed, falling back to draft", "error", err)
		b.PolishError = err.Error()
	}
	b.Summary = res
	b.FinishedAt = r.now()

	log.Info("run finished",
		"headlines", len(b.Headlines),
		"extracted", b.Stats.Extracted,
		"status", b.Status(),
		"duration", b.Duration())
	r.finish(ctx, b)
	return b, nil
}

// finish records, archives and publishes b. Failures here never fail the run.
func (r *Runner) finish(ctx context.Context, b *newsbrief.Briefing) {
	if r.archive != nil {
		if _, err := r.archive.Save(ctx, b); err != nil {
			r.logger.Error("archive briefing failed", "error", err)
		}
	}

	// Save writes b.ID, so b is shared with readers only afterwards.
	r.lastMu.Lock()
	r.last = b
	r.lastMu.Unlock()

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, b); err != nil {
			r.logger.Error("publish briefing failed", "error", err)
		}
	}
}

// Describe returns a one-line summary of err for users.
func Describe(err error) string {
	var re *sources.RetrievalError
	var ge *summarizer.GenerationError
	switch {
	case errors.Is(err, ErrRunInProgress):
		return "A briefing is already being generated. Try again shortly."
	case errors.As(err, &re):
		return fmt.Sprintf("Could not fetch news: %s", re.Error())
	case errors.As(err, &ge):
		return fmt.Sprintf("Could not generate the summary (%s stage): %v", ge.Stage, ge.Err)
	case errors.Is(err, context.DeadlineExceeded):
		return "The briefing took too long and was cancelled."
	default:
		return err.Error()
	}
}
