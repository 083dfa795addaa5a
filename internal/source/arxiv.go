package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed/atom"

	"ingestor/internal/model"
)

// DefaultArxivQuery is the search used when a source does not set its own.
const DefaultArxivQuery = "cat:q-fin.GN"

const arxivMaxResults = 100

// Getter downloads a URL.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Arxiv parses the arXiv Atom query API.
type Arxiv struct {
	get   Getter
	query string
	log   *slog.Logger
}

// NewArxiv creates an arXiv parser. query is used for sources whose meta
// has no "search_query"; an empty query falls back to DefaultArxivQuery.
func NewArxiv(get Getter, query string, log *slog.Logger) *Arxiv {
	if query == "" {
		query = DefaultArxivQuery
	}
	return &Arxiv{get: get, query: query, log: log}
}

// Parse fetches the newest submissions for the source's query.
func (a *Arxiv) Parse(ctx context.Context, src model.Source) ([]model.Item, error) {
	query := src.MetaString("search_query")
	if query == "" {
		query = a.query
	}

	body, err := a.get.Get(ctx, ArxivQueryURL(src.IngestURL, query))
	if err != nil {
		return nil, fmt.Errorf("fetch arxiv feed: %w", err)
	}

	feed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}

	items := make([]model.Item, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		item, ok := arxivItem(src, e)
		if !ok {
			a.log.Debug("drop arxiv entry", "source", src.Name, "id", e.ID)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// ArxivQueryURL builds the query request for base, newest submissions first.
func ArxivQueryURL(base, query string) string {
	q := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=submittedDate&sortOrder=descending",
		base, q, arxivMaxResults)
}

func arxivItem(src model.Source, e *atom.Entry) (model.Item, bool) {
	published, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	if err != nil {
		return model.Item{}, false
	}

	link, pdf := arxivLinks(e.Links)
	if link == "" {
		return model.Item{}, false
	}

	var categories []string
	if p := primaryCategory(e); p != "" {
		categories = append(categories, p)
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	var authors []string
	for _, p := range e.Authors {
		if name := strings.TrimSpace(p.Name); name != "" {
			authors = append(authors, name)
		}
	}

	var pdfURL any
	if pdf != "" {
		pdfURL = pdf
	}

	item := model.Item{
		ID:          uuid.NewString(),
		SourceID:    src.ID,
		Medium:      model.MediumPaper,
		Title:       strings.TrimSpace(e.Title),
		URL:         link,
		PublishedAt: published,
		RawMetadata: model.Metadata{
			"arxiv_id":   arxivID(e.ID),
			"categories": orEmpty(categories),
			"authors":    orEmpty(authors),
			"pdf_url":    pdfURL,
		},
	}
	if s := strings.TrimSpace(e.Summary); s != "" {
		item.Summary = &s
	}
	return item, true
}

// arxivLinks picks the item URL and PDF URL from an entry's links.
// The last pdf-titled link wins the PDF slot; the first other link is the URL.
// The abstract page is not preferred over other links: whichever comes first wins.
func arxivLinks(links []*atom.Link) (link, pdf string) {
	for _, l := range links {
		href := strings.TrimSpace(l.Href)
		if href == "" {
			continue
		}
		switch {
		case l.Title == "pdf":
			pdf = href
		case link == "":
			link = href
		}
	}
	return link, pdf
}

// primaryCategory reads <arxiv:primary_category term="...">. gofeed keys
// extensions by the prefix the document declares, so any prefix is
// accepted, with "arxiv" checked first.
func primaryCategory(e *atom.Entry) string {
	prefixes := make([]string, 0, len(e.Extensions))
	for p := range e.Extensions {
		if p != "arxiv" {
			prefixes = append(prefixes, p)
		}
	}
	slices.Sort(prefixes)
	prefixes = slices.Insert(prefixes, 0, "arxiv")

	for _, p := range prefixes {
		for _, x := range e.Extensions[p]["primary_category"] {
			if term := x.Attrs["term"]; term != "" {
				return term
			}
		}
	}
	return ""
}

func arxivID(id string) string {
	id = strings.TrimSpace(id)
	return id[strings.LastIndex(id, "/")+1:]
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
