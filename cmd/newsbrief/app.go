package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	nbconfig "github.com/RobinCoderZhao/newsbrief/internal/newsbrief/config"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/fetcher"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/publisher"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/runner"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/store"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/summarizer"
	"github.com/RobinCoderZhao/newsbrief/pkg/notify"
)

// app is a fully wired runner with the resources it owns.
type app struct {
	runner   *runner.Runner
	pipeline *summarizer.Pipeline
	store    *store.Store
}

func loadConfig() (*nbconfig.Config, error) {
	cfg, err := nbconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *nbconfig.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	retriever := sources.NewNewsAPI(sources.NewsAPIConfig{
		APIKey:  cfg.News.APIKey,
		BaseURL: cfg.News.BaseURL,
		Timeout: cfg.News.Timeout,
	})

	pipeline, err := summarizer.New(cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}

	r := runner.New(retriever, fetcher.New(cfg.Fetch), pipeline, runner.Options{
		Timeout:         cfg.Run.Timeout,
		FallbackToDraft: cfg.Pipeline.FallbackToDraft,
		Topic:           cfg.Run.Topic,
		Query:           cfg.News.Query,
	})
	a := &app{runner: r, pipeline: pipeline}

	if cfg.Storage.Path != "" {
		st, err := store.Open(ctx, cfg.Storage.Path, 0)
		if err != nil {
			pipeline.Close()
			return nil, err
		}
		a.store = st
		r.SetArchive(st)
	}

	if pub := newPublisher(cfg.Notify); pub.Enabled() {
		r.SetPublisher(pub)
	}
	return a, nil
}

func newPublisher(cfg nbconfig.NotifyConfig) *publisher.Publisher {
	d := notify.NewDispatcher()
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChannelID != "" {
		d.Register(notify.NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Webhook.URL != "" {
		d.Register(notify.NewWebhookNotifier(cfg.Webhook))
	}
	pub := publisher.NewPublisher(d, nil)
	if pub.Enabled() {
		slog.Info("publishing briefings", "channels", d.Channels())
	}
	return pub
}

func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.pipeline.Close())
	return errors.Join(errs...)
}
