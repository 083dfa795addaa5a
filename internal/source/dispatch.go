// Package source turns configured sources into normalized items.
package source

import (
	"context"
	"log/slog"

	"ingestor/internal/model"
)

// Parser fetches a source and returns its items in feed order.
// Entries that cannot be normalized are dropped, not reported.
type Parser interface {
	Parse(ctx context.Context, src model.Source) ([]model.Item, error)
}

// Dispatcher routes a source to the parser registered for its kind.
type Dispatcher struct {
	parsers map[model.SourceKind]Parser
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher with no parsers registered.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		parsers: make(map[model.SourceKind]Parser),
		log:     log,
	}
}

// Register installs p for kind, replacing any previous parser.
func (d *Dispatcher) Register(kind model.SourceKind, p Parser) {
	d.parsers[kind] = p
}

// Dispatch parses src with its registered parser. Kinds without a parser
// and sources lacking an ingest URL yield no items and no error.
func (d *Dispatcher) Dispatch(ctx context.Context, src model.Source) ([]model.Item, error) {
	kind := src.Kind()
	p, ok := d.parsers[kind]
	if !ok {
		if kind == model.KindUnknown {
			d.log.Warn("unknown source type, skipping", "source", src.Name, "type", src.Type)
		} else {
			d.log.Info("source type not implemented yet, skipping", "source", src.Name, "type", src.Type)
		}
		return nil, nil
	}

	if src.IngestURL == "" {
		d.log.Warn("source has no ingest url, skipping", "source", src.Name, "type", src.Type)
		return nil, nil
	}

	return p.Parse(ctx, src)
}
