// Package summarizer runs the two-stage draft and polish generation over a
// news corpus.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/RobinCoderZhao/newsbrief/pkg/llm"
)

// Stage names.
const (
	StageDraft  = "draft"
	StagePolish = "polish"
)

// DefaultTopic labels the corpus in the draft prompt.
const DefaultTopic = "Tollywood"

// ErrEmptyOutput is returned when a model answers with no text.
var ErrEmptyOutput = errors.New("model returned empty output")

// GenerationError reports a failed stage.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Config configures the pipeline. Polish fields left unset inherit from Draft.
type Config struct {
	Draft           llm.Config `yaml:"draft" json:"draft"`
	Polish          llm.Config `yaml:"polish" json:"polish"`
	DraftPrompt     string     `yaml:"draft_prompt" json:"-"`
	PolishPrompt    string     `yaml:"polish_prompt" json:"-"`
	FallbackToDraft bool       `yaml:"fallback_to_draft" json:"fallback_to_draft"`
}

// DefaultConfig returns a Gemini-backed pipeline config.
func DefaultConfig() Config {
	return Config{Draft: llm.DefaultConfig()}
}

// PolishConfig returns the effective polish stage config.
func (c Config) PolishConfig() llm.Config {
	return c.Polish.Inherit(c.Draft)
}

// Result holds both stage outputs and what they cost.
type Result struct {
	Draft       string  `json:"draft"`
	Polished    string  `json:"polished"`
	DraftModel  string  `json:"draft_model,omitempty"`
	PolishModel string  `json:"polish_model,omitempty"`
	TokensIn    int     `json:"tokens_in"`
	TokensOut   int     `json:"tokens_out"`
	Cost        float64 `json:"cost"`
}

// Final returns the polished text, or the draft when polishing never completed.
func (r *Result) Final() string {
	if r == nil {
		return ""
	}
	if r.Polished != "" {
		return r.Polished
	}
	return r.Draft
}

// Input is one pipeline run.
type Input struct {
	Topic  string
	Corpus string
}

// stage is one prompt/response round trip.
type stage struct {
	name        string
	client      llm.Client
	system      string
	prompt      *template.Template
	maxTokens   int
	temperature *float64
}

func (s *stage) generate(ctx context.Context, data promptData) (*llm.Response, error) {
	prompt, err := render(s.prompt, data)
	if err != nil {
		return nil, &GenerationError{Stage: s.name, Err: err}
	}

	req := llm.UserPrompt(s.system, prompt)
	req.MaxTokens = s.maxTokens
	req.Temperature = s.temperature

	resp, err := s.client.Generate(ctx, req)
	if err != nil {
		return nil, &GenerationError{Stage: s.name, Err: err}
	}
	resp.Content = strings.TrimSpace(resp.Content)
	if resp.Content == "" {
		return nil, &GenerationError{Stage: s.name, Err: ErrEmptyOutput}
	}
	return resp, nil
}

// Pipeline runs draft then polish. Polish only ever sees the draft text.
type Pipeline struct {
	draft  *stage
	polish *stage
	logger *slog.Logger
}

// New builds the LLM clients for both stages.
func New(cfg Config) (*Pipeline, error) {
	draftClient, err := llm.NewClient(cfg.Draft)
	if err != nil {
		return nil, fmt.Errorf("draft client: %w", err)
	}
	polishClient, err := llm.NewClient(cfg.PolishConfig())
	if err != nil {
		draftClient.Close()
		return nil, fmt.Errorf("polish client: %w", err)
	}
	return NewWithClients(draftClient, polishClient, cfg)
}

// NewWithClients builds a pipeline over existing clients. The same client
// may serve both stages.
func NewWithClients(draftClient, polishClient llm.Client, cfg Config) (*Pipeline, error) {
	draftText, polishText := cfg.DraftPrompt, cfg.PolishPrompt
	if draftText == "" {
		draftText = DefaultDraftPrompt
	}
	if polishText == "" {
		polishText = DefaultPolishPrompt
	}
	draftTmpl, err := parsePrompt(StageDraft, draftText)
	if err != nil {
		return nil, err
	}
	polishTmpl, err := parsePrompt(StagePolish, polishText)
	if err != nil {
		return nil, err
	}

	polishCfg := cfg.PolishConfig()
	return &Pipeline{
		draft: &stage{
			name:        StageDraft,
			client:      draftClient,
			system:      draftSystem,
			prompt:      draftTmpl,
			maxTokens:   cfg.Draft.MaxTokens,
			temperature: cfg.Draft.Temperature,
		},
		polish: &stage{
			name:        StagePolish,
			client:      polishClient,
			system:      polishSystem,
			prompt:      polishTmpl,
			maxTokens:   polishCfg.MaxTokens,
			temperature: polishCfg.Temperature,
		},
		logger: slog.Default(),
	}, nil
}

// Run drafts a summary of in.Corpus and then polishes the draft.
//
// A draft failure returns a nil Result. A polish failure returns the Result
// with Draft set alongside the *GenerationError, so callers may fall back.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	topic := in.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	start := time.Now()
	d, err := p.draft.generate(ctx, promptData{Topic: topic, Content: in.Corpus})
	if err != nil {
		p.logger.Error("draft failed", "error", err)
		return nil, err
	}
	res := &Result{
		Draft:      d.Content,
		DraftModel: d.Model,
		TokensIn:   d.TokensIn,
		TokensOut:  d.TokensOut,
		Cost:       d.Cost,
	}
	p.logger.Info("draft generated",
		"model", d.Model,
		"tokens_in", d.TokensIn,
		"tokens_out", d.TokensOut,
		"latency", time.Since(start))

	start = time.Now()
	pol, err := p.polish.generate(ctx, promptData{Topic: topic, Content: res.Draft})
	if err != nil {
		p.logger.Error("polish failed", "error", err)
		return res, err
	}
	res.Polished = pol.Content
	res.PolishModel = pol.Model
	res.TokensIn += pol.TokensIn
	res.TokensOut += pol.TokensOut
	res.Cost += pol.Cost
	p.logger.Info("summary polished",
		"model", pol.Model,
		"tokens_in", pol.TokensIn,
		"tokens_out", pol.TokensOut,
		"latency", time.Since(start))

	return res, nil
}

// Close releases both clients.
func (p *Pipeline) Close() error {
	err := p.draft.client.Close()
	if p.polish.client != p.draft.client {
		err = errors.Join(err, p.polish.client.Close())
	}
	return err
}
