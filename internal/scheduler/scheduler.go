// Package scheduler repeats ingestion cycles on a fixed interval or a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"ingestor/internal/ingest"
)

// DefaultInterval is the pause between cycles when no schedule is set.
const DefaultInterval = time.Hour

// CycleRunner runs one ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*ingest.Result, error)
}

// Reporter is told about every finished cycle.
type Reporter interface {
	ReportCycle(ctx context.Context, res *ingest.Result)
}

// Scheduler drives a CycleRunner.
type Scheduler struct {
	runner   CycleRunner
	reporter Reporter
	log      *slog.Logger
	next     func(time.Time) time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithInterval waits d after the end of each cycle before the next one.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %s", d)
		}
		s.next = func(t time.Time) time.Time { return t.Add(d) }
		return nil
	}
}

// WithCron starts cycles at the times of a standard five-field cron
// expression. A cycle still running at the next slot delays it; missed
// slots are not replayed.
func WithCron(spec string) Option {
	return func(s *Scheduler) error {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return fmt.Errorf("parse cron %q: %w", spec, err)
		}
		s.next = sched.Next
		return nil
	}
}

// WithReporter sends every cycle result to r.
func WithReporter(r Reporter) Option {
	return func(s *Scheduler) error {
		s.reporter = r
		return nil
	}
}

// New creates a Scheduler that runs every DefaultInterval unless an option
// says otherwise.
func New(runner CycleRunner, log *slog.Logger, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		log:    log,
		next:   func(t time.Time) time.Time { return t.Add(DefaultInterval) },
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RunOnce runs a single cycle and reports it.
func (s *Scheduler) RunOnce(ctx context.Context) (*ingest.Result, error) {
	res, err := s.runner.RunCycle(ctx)
	if err != nil {
		s.log.Error("ingestion cycle", "error", err)
		return nil, err
	}

	s.log.Info("ingestion cycle finished",
		"items", res.Total(),
		"sources", len(res.Sources),
		"failed", len(res.Failed()),
		"duration", res.Duration.Round(time.Millisecond),
	)
	if err := res.Err(); err != nil {
		s.log.Warn("sources failed", "count", len(res.Failed()), "error", err)
	}
	if s.reporter != nil {
		s.reporter.ReportCycle(ctx, res)
	}
	return res, nil
}

// Run starts with an immediate cycle and repeats until ctx is cancelled.
// A failed cycle is logged and the loop carries on.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		_, _ = s.RunOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		now := time.Now()
		wait := s.next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		s.log.Debug("next ingestion cycle", "in", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
