package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"

	"ingestor/internal/model"
)

const (
	summaryLimit = 500
	bodyLimit    = 10000
	metaLinks    = 3
)

// Feed parses generic RSS, Atom and JSON feeds.
type Feed struct {
	get Getter
	log *slog.Logger
	now func() time.Time
}

// NewFeed creates a generic feed parser.
func NewFeed(get Getter, log *slog.Logger) *Feed {
	return &Feed{get: get, log: log, now: time.Now}
}

type feedLink struct {
	href      string
	rel       string
	mediaType string
}

// feedEntry is the format-independent view of one feed entry.
type feedEntry struct {
	id         string
	title      string
	summary    string
	content    string
	links      []feedLink
	published  *time.Time
	updated    *time.Time
	authors    []string
	categories []string
}

// Parse fetches the source's feed and normalizes every usable entry.
func (f *Feed) Parse(ctx context.Context, src model.Source) ([]model.Item, error) {
	body, err := f.get.Get(ctx, src.IngestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	entries, err := decodeFeed(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]model.Item, 0, len(entries))
	for _, e := range entries {
		item, ok := f.item(src, e)
		if !ok {
			f.log.Debug("drop feed entry without url", "source", src.Name, "title", e.title)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeFeed(body []byte) ([]feedEntry, error) {
	if gofeed.DetectFeedType(bytes.NewReader(body)) == gofeed.FeedTypeAtom {
		feed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		entries := make([]feedEntry, 0, len(feed.Entries))
		for _, e := range feed.Entries {
			entries = append(entries, atomEntry(e))
		}
		return entries, nil
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	entries := make([]feedEntry, 0, len(feed.Items))
	for _, it := range feed.Items {
		entries = append(entries, universalEntry(it))
	}
	return entries, nil
}

// atomEntry keeps link relations and media types, which the universal
// gofeed model drops.
func atomEntry(e *atom.Entry) feedEntry {
	fe := feedEntry{
		id:        e.ID,
		title:     e.Title,
		summary:   e.Summary,
		published: e.PublishedParsed,
		updated:   e.UpdatedParsed,
	}
	if e.Content != nil {
		fe.content = e.Content.Value
	}
	for _, l := range e.Links {
		fe.links = append(fe.links, feedLink{href: l.Href, rel: l.Rel, mediaType: l.Type})
	}
	for _, p := range e.Authors {
		fe.authors = append(fe.authors, p.Name)
	}
	for _, c := range e.Categories {
		fe.categories = append(fe.categories, c.Term)
	}
	return fe
}

func universalEntry(it *gofeed.Item) feedEntry {
	fe := feedEntry{
		id:         it.GUID,
		title:      it.Title,
		summary:    it.Description,
		content:    it.Content,
		published:  it.PublishedParsed,
		updated:    it.UpdatedParsed,
		categories: it.Categories,
	}
	hrefs := it.Links
	if len(hrefs) == 0 && it.Link != "" {
		hrefs = []string{it.Link}
	}
	for _, h := range hrefs {
		fe.links = append(fe.links, feedLink{href: h})
	}
	for _, p := range it.Authors {
		fe.authors = append(fe.authors, p.Name)
	}
	return fe
}

func (f *Feed) item(src model.Source, e feedEntry) (model.Item, bool) {
	link := entryURL(e)
	if link == "" {
		return model.Item{}, false
	}

	title := strings.TrimSpace(e.title)
	if title == "" {
		title = "Untitled (" + f.now().Local().Format("2006-01-02 15:04:05") + ")"
	}

	item := model.Item{
		ID:          uuid.NewString(),
		SourceID:    src.ID,
		Medium:      src.Medium,
		Title:       title,
		URL:         link,
		PublishedAt: f.published(e),
		RawMetadata: entryMetadata(e),
	}

	switch {
	case strings.TrimSpace(e.summary) != "":
		item.Summary = model.StringPtr(e.summary)
	case e.content != "":
		item.Summary = model.StringPtr(Truncate(e.content, summaryLimit))
	}
	if e.content != "" {
		item.Body = model.StringPtr(Truncate(e.content, bodyLimit))
	}
	return item, true
}

// entryURL is the first alternate link, else the entry id.
// A link without a relation counts as alternate.
func entryURL(e feedEntry) string {
	for _, l := range e.links {
		if l.href != "" && (l.rel == "" || l.rel == "alternate") {
			return l.href
		}
	}
	return strings.TrimSpace(e.id)
}

func (f *Feed) published(e feedEntry) time.Time {
	switch {
	case e.published != nil:
		return *e.published
	case e.updated != nil:
		return *e.updated
	default:
		return f.now()
	}
}

func entryMetadata(e feedEntry) model.Metadata {
	authors := []string{}
	for _, a := range e.authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	categories := []string{}
	for _, c := range e.categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}

	meta := model.Metadata{
		"feed_id":    e.id,
		"authors":    authors,
		"categories": categories,
	}
	if len(e.links) > 0 {
		links := make([]map[string]any, 0, metaLinks)
		for _, l := range e.links[:min(metaLinks, len(e.links))] {
			links = append(links, map[string]any{
				"href":       l.href,
				"rel":        nullable(l.rel),
				"media_type": nullable(l.mediaType),
			})
		}
		meta["links"] = links
	}
	return meta
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
