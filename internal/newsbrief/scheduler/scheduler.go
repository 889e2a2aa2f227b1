// Package scheduler refreshes briefings on a fixed interval while the
// dashboard is serving.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job represents a scheduled task.
type Job struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Scheduler runs jobs at a fixed interval.
type Scheduler struct {
	jobs     []Job
	logger   *slog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
}

// Add registers a job with the scheduler.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// RunOnce executes every registered job once. A failing job does not stop
// the others; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, job := range s.jobs {
		s.logger.Info("running job", "name", job.Name)
		start := time.Now()
		if err := job.Fn(ctx); err != nil {
			s.logger.Error("job failed", "name", job.Name, "error", err, "duration", time.Since(start))
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
			continue
		}
		s.logger.Info("job completed", "name", job.Name, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}

// Start runs the jobs every interval until ctx is done or Stop is called.
// With immediate set, the first round runs right away. Start blocks.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, immediate bool) {
	if interval <= 0 {
		s.logger.Warn("scheduler disabled, non-positive interval", "interval", interval)
		return
	}
	s.logger.Info("scheduler started", "interval", interval, "jobs", len(s.jobs))

	if immediate {
		_ = s.RunOnce(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-s.done:
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
