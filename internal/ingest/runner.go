// Package ingest runs ingestion cycles over all active sources.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"ingestor/internal/metrics"
	"ingestor/internal/model"
	"ingestor/internal/storage"
)

// Dispatcher turns a source into items.
type Dispatcher interface {
	Dispatch(ctx context.Context, src model.Source) ([]model.Item, error)
}

// Classifier labels an item from its title and summary.
type Classifier interface {
	Classify(title string, summary *string) []string
}

// SourceResult is the outcome of one source within a cycle.
type SourceResult struct {
	Source  model.Source
	Fetched int
	Stored  int
	Err     error
	// Skipped is set when the cycle was cancelled before the source started.
	Skipped bool
}

// Result summarizes a cycle.
type Result struct {
	Sources  []SourceResult
	Duration time.Duration
}

// Total is the number of items successfully stored during the cycle.
func (r *Result) Total() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Stored
	}
	return n
}

// Failed returns the sources whose fetch or decode failed.
func (r *Result) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Err combines the per-source failures, or returns nil.
func (r *Result) Err() error {
	var err error
	for _, s := range r.Failed() {
		err = multierr.Append(err, fmt.Errorf("source %q: %w", s.Source.Name, s.Err))
	}
	return err
}

// Runner executes ingestion cycles.
type Runner struct {
	store       storage.Storage
	dispatch    Dispatcher
	classify    Classifier
	metrics     *metrics.Metrics
	log         *slog.Logger
	concurrency int
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets how many sources are processed at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMetrics records cycle activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner that processes one source at a time.
func NewRunner(store storage.Storage, d Dispatcher, c Classifier, log *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		dispatch:    d,
		classify:    c,
		log:         log,
		concurrency: 1,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RunCycle ingests every active source once. A failing source is logged and
// recorded in the result; it never stops the others. The returned error is
// non-nil only when the source list itself cannot be read.
func (r *Runner) RunCycle(ctx context.Context) (*Result, error) {
	start := time.Now()

	sources, err := r.store.ListActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	res := &Result{Sources: make([]SourceResult, len(sources))}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, src := range sources {
		res.Sources[i].Source = src
		g.Go(func() error {
			r.runSource(ctx, &res.Sources[i])
			return nil
		})
	}
	_ = g.Wait()

	res.Duration = time.Since(start)
	r.metrics.ObserveCycle(res.Duration)
	return res, nil
}

func (r *Runner) runSource(ctx context.Context, sr *SourceResult) {
	if ctx.Err() != nil {
		sr.Skipped = true
		return
	}
	src := sr.Source

	items, err := r.dispatch.Dispatch(ctx, src)
	if err != nil {
		sr.Err = err
		r.metrics.SourceFailed(src.Name)
		r.log.Error("ingest source", "source", src.Name, "type", src.Type, "error", err)
		return
	}
	sr.Fetched = len(items)

	for i := range items {
		item := &items[i]
		if err := r.store.UpsertItem(ctx, item); err != nil {
			r.metrics.ItemFailed(src.Name)
			r.log.Warn("upsert item", "source", src.Name, "url", item.URL, "error", err)
			continue
		}
		sr.Stored++
		r.metrics.ItemUpserted(src.Name)

		for _, topic := range r.classify.Classify(item.Title, item.Summary) {
			if err := r.store.AddItemTopic(ctx, item.ID, topic); err != nil {
				r.log.Warn("add item topic", "item_id", item.ID, "topic", topic, "error", err)
				continue
			}
			r.metrics.TopicAdded(topic)
		}
	}

	r.log.Info("ingested source", "source", src.Name, "fetched", sr.Fetched, "stored", sr.Stored)
}
