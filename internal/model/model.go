// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"time"
)

// SourceKind is the closed set of source types the ingestor knows about.
type SourceKind int

// Known source kinds. KindUnknown covers any type string not listed here.
const (
	KindUnknown SourceKind = iota
	KindArxiv
	KindRSS
	KindAPIStream
	KindManual
)

// Stored type strings for each kind.
const (
	TypeArxiv     = "arxiv"
	TypeRSS       = "rss"
	TypeAPIStream = "twitter_api"
	TypeManual    = "manual"
)

// ParseSourceKind maps a stored type string to its kind.
// Unrecognized strings map to KindUnknown.
func ParseSourceKind(s string) SourceKind {
	switch s {
	case TypeArxiv:
		return KindArxiv
	case TypeRSS:
		return KindRSS
	case TypeAPIStream:
		return KindAPIStream
	case TypeManual:
		return KindManual
	default:
		return KindUnknown
	}
}

func (k SourceKind) String() string {
	switch k {
	case KindArxiv:
		return TypeArxiv
	case KindRSS:
		return TypeRSS
	case KindAPIStream:
		return TypeAPIStream
	case KindManual:
		return TypeManual
	default:
		return "unknown"
	}
}

// Medium describes the kind of content a source produces.
type Medium string

// Supported media.
const (
	MediumPaper      Medium = "paper"
	MediumNewsletter Medium = "newsletter"
	MediumBlog       Medium = "blog"
	MediumTweet      Medium = "tweet"
)

// Metadata is a free-form JSON object.
type Metadata map[string]any

// Source is a configured origin of content.
type Source struct {
	ID        int64
	Name      string
	Type      string
	Medium    Medium
	IngestURL string
	Active    bool
	Frequency string
	Meta      Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kind returns the parsed source type.
func (s Source) Kind() SourceKind {
	return ParseSourceKind(s.Type)
}

// MetaString returns a string value from Meta, or "" if absent or not a string.
func (s Source) MetaString(key string) string {
	v, _ := s.Meta[key].(string)
	return v
}

// Item is a normalized piece of content produced by a source.
// Medium mirrors the owning source's medium and is stored as source_type.
type Item struct {
	ID          string
	SourceID    int64
	Medium      Medium
	Title       string
	URL         string
	Summary     *string
	Body        *string
	PublishedAt time.Time
	RawMetadata Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemTopic associates an item with a topic label.
type ItemTopic struct {
	ID        int64
	ItemID    string
	Topic     string
	CreatedAt time.Time
}

// ItemLike is a user's score for an item.
type ItemLike struct {
	ID        int64
	UserID    string
	ItemID    string
	Score     int
	CreatedAt time.Time
}

// ErrInvalidScore is returned for like scores outside {-1, 0, 1}.
var ErrInvalidScore = errors.New("score must be -1, 0 or 1")

// ValidateScore checks that score is one of -1, 0, 1.
func ValidateScore(score int) error {
	switch score {
	case -1, 0, 1:
		return nil
	}
	return ErrInvalidScore
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
