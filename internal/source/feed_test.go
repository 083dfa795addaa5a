package source

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ingestor/internal/model"
)

var fixedNow = time.Date(2024, 4, 1, 15, 30, 45, 0, time.Local)

func newTestFeed(body string) *Feed {
	f := NewFeed(&staticGetter{body: body}, discardLogger())
	f.now = func() time.Time { return fixedNow }
	return f
}

func blogSource() model.Source {
	return model.Source{
		ID:        3,
		Name:      "ML Weekly",
		Type:      model.TypeRSS,
		Medium:    model.MediumNewsletter,
		IngestURL: "https://mlweekly.example.com/feed.xml",
		Active:    true,
	}
}

func TestFeedParseRSS(t *testing.T) {
	f := newTestFeed(loadFixture(t, "../../testdata/rss.xml"))

	items, err := f.Parse(context.Background(), blogSource())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	link := func(href string) []map[string]any {
		return []map[string]any{{"href": href, "rel": nil, "media_type": nil}}
	}
	want := []model.Item{
		{
			SourceID:    3,
			Medium:      model.MediumNewsletter,
			Title:       "Issue 42: Retrieval at scale",
			URL:         "https://mlweekly.example.com/42",
			Summary:     model.StringPtr("RAG systems in production."),
			Body:        model.StringPtr("<p>Full issue text.</p>"),
			PublishedAt: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
			RawMetadata: model.Metadata{
				"feed_id":    "mlweekly-42",
				"authors":    []string{"Jane Doe"},
				"categories": []string{"search", "systems"},
				"links":      link("https://mlweekly.example.com/42"),
			},
		},
		{
			SourceID:    3,
			Medium:      model.MediumNewsletter,
			Title:       "Untitled (2024-04-01 15:30:45)",
			URL:         "https://mlweekly.example.com/41",
			Summary:     model.StringPtr("An issue without a title."),
			PublishedAt: time.Date(2024, 2, 26, 10, 0, 0, 0, time.UTC),
			RawMetadata: model.Metadata{
				"feed_id":    "mlweekly-41",
				"authors":    []string{},
				"categories": []string{},
				"links":      link("https://mlweekly.example.com/41"),
			},
		},
		{
			SourceID:    3,
			Medium:      model.MediumNewsletter,
			Title:       "Linkless issue",
			URL:         "urn:mlweekly:40",
			Summary:     model.StringPtr("Only a guid identifies this one."),
			PublishedAt: time.Date(2024, 2, 19, 10, 0, 0, 0, time.UTC),
			RawMetadata: model.Metadata{
				"feed_id":    "urn:mlweekly:40",
				"authors":    []string{},
				"categories": []string{},
			},
		},
	}
	if diff := cmp.Diff(want, items, ignoreItemID); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedParseAtom(t *testing.T) {
	f := newTestFeed(loadFixture(t, "../../testdata/atom.xml"))
	src := blogSource()
	src.Medium = model.MediumBlog

	items, err := f.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []model.Item{
		{
			SourceID:    3,
			Medium:      model.MediumBlog,
			Title:       "Agents that use tools",
			URL:         "https://blog.example.com/posts/7",
			Summary:     model.StringPtr("How agents call functions."),
			Body:        model.StringPtr("Long form body."),
			PublishedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
			RawMetadata: model.Metadata{
				"feed_id":    "tag:blog.example.com,2024:post-7",
				"authors":    []string{"Sam Smith", "Alex Kim"},
				"categories": []string{"agents"},
				"links": []map[string]any{
					{"href": "https://blog.example.com/edit/7", "rel": "edit", "media_type": nil},
					{"href": "https://blog.example.com/posts/7", "rel": "alternate", "media_type": "text/html"},
					{"href": "https://blog.example.com/posts/7.mp3", "rel": "enclosure", "media_type": "audio/mpeg"},
				},
			},
		},
		{
			SourceID:    3,
			Medium:      model.MediumBlog,
			Title:       "Only updated",
			URL:         "tag:blog.example.com,2024:post-6",
			Summary:     model.StringPtr("Body without a summary."),
			Body:        model.StringPtr("Body without a summary."),
			PublishedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			RawMetadata: model.Metadata{
				"feed_id":    "tag:blog.example.com,2024:post-6",
				"authors":    []string{},
				"categories": []string{},
				"links": []map[string]any{
					{"href": "https://blog.example.com/api/6", "rel": "self", "media_type": nil},
				},
			},
		},
		{
			SourceID:    3,
			Medium:      model.MediumBlog,
			Title:       "Untitled (2024-04-01 15:30:45)",
			URL:         "https://blog.example.com/posts/5",
			PublishedAt: time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC),
			RawMetadata: model.Metadata{
				"feed_id":    "https://blog.example.com/posts/5",
				"authors":    []string{},
				"categories": []string{},
			},
		},
	}
	if diff := cmp.Diff(want, items, ignoreItemID); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedPublishedFallsBackToNow(t *testing.T) {
	body := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>Undated</title><link>https://example.com/undated</link></item>
</channel></rss>`

	items, err := newTestFeed(body).Parse(context.Background(), blogSource())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !items[0].PublishedAt.Equal(fixedNow) {
		t.Errorf("published = %v, want %v", items[0].PublishedAt, fixedNow)
	}
	if items[0].Summary != nil || items[0].Body != nil {
		t.Error("entry without summary or content should have neither")
	}
}

func TestFeedContentTruncation(t *testing.T) {
	tests := []struct {
		name        string
		contentLen  int
		wantSummary int
		wantBody    int
		summaryCut  bool
		bodyCut     bool
	}{
		{name: "short", contentLen: 100, wantSummary: 100, wantBody: 100},
		{name: "over summary limit", contentLen: 501, wantSummary: 500, wantBody: 501, summaryCut: true},
		{name: "exactly body limit", contentLen: 10000, wantSummary: 500, wantBody: 10000, summaryCut: true},
		{name: "over body limit", contentLen: 10050, wantSummary: 500, wantBody: 10000, summaryCut: true, bodyCut: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Multi-byte runes: limits count characters, not bytes.
			content := strings.Repeat("é", tt.contentLen)
			body := fmt.Sprintf(`<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>t</title><id>f</id>
<entry><title>Long</title><id>e1</id><link href="https://example.com/long"/>
<updated>2024-01-01T00:00:00Z</updated><content type="text">%s</content></entry>
</feed>`, content)

			items, err := newTestFeed(body).Parse(context.Background(), blogSource())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(items))
			}
			it := items[0]

			checkText(t, "summary", *it.Summary, tt.wantSummary, tt.summaryCut)
			checkText(t, "body", *it.Body, tt.wantBody, tt.bodyCut)
		})
	}
}

func checkText(t *testing.T, field, got string, wantRunes int, cut bool) {
	t.Helper()
	text := got
	if cut {
		if !strings.HasSuffix(got, Ellipsis) {
			t.Errorf("%s should end with %q", field, Ellipsis)
		}
		text = strings.TrimSuffix(got, Ellipsis)
	} else if strings.HasSuffix(got, Ellipsis) {
		t.Errorf("%s should not be marked truncated", field)
	}
	if n := len([]rune(text)); n != wantRunes {
		t.Errorf("%s has %d characters, want %d", field, n, wantRunes)
	}
}

func TestFeedParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		getter *staticGetter
	}{
		{name: "fetch failure", getter: &staticGetter{err: fmt.Errorf("connection refused")}},
		{name: "not a feed", getter: &staticGetter{body: "<html><body>hello</body></html>"}},
		{name: "garbage", getter: &staticGetter{body: "plain text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFeed(tt.getter, discardLogger())
			if _, err := f.Parse(context.Background(), blogSource()); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestFeedRequestsIngestURL(t *testing.T) {
	getter := &staticGetter{body: loadFixture(t, "../../testdata/rss.xml")}
	f := NewFeed(getter, discardLogger())

	if _, err := f.Parse(context.Background(), blogSource()); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"https://mlweekly.example.com/feed.xml"}, getter.urls); diff != "" {
		t.Errorf("requested urls mismatch (-want +got):\n%s", diff)
	}
}
