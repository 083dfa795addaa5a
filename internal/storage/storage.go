// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"ingestor/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ItemFilter narrows ListItems. Zero fields are ignored.
type ItemFilter struct {
	SourceID int64
	Medium   model.Medium
	Topic    string
	Since    time.Time
	Limit    int
}

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListActiveSources(ctx context.Context) ([]model.Source, error)
	SetSourceActive(ctx context.Context, id int64, active bool) error

	UpsertItem(ctx context.Context, item *model.Item) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context, f ItemFilter) ([]model.Item, error)

	AddItemTopic(ctx context.Context, itemID, topic string) error
	ListItemTopics(ctx context.Context, itemID string) ([]model.ItemTopic, error)

	SetItemLike(ctx context.Context, userID, itemID string, score int) error
	ListItemLikes(ctx context.Context, itemID string) ([]model.ItemLike, error)

	Close() error
}
