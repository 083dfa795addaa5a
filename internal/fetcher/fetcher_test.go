package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type response struct {
	body       string
	statusCode int
	err        error
}

// mockTransport replays responses in order; the last one repeats.
type mockTransport struct {
	mu        sync.Mutex
	responses []response
	calls     int
	agents    []string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agents = append(m.agents, req.Header.Get("User-Agent"))
	r := m.responses[min(m.calls, len(m.responses)-1)]
	m.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
	}, nil
}

func TestGet(t *testing.T) {
	tests := []struct {
		name       string
		responses  []response
		wantBody   string
		wantStatus int
		wantCalls  int
		wantErr    bool
	}{
		{
			name:      "success",
			responses: []response{{body: "<rss/>", statusCode: 200}},
			wantBody:  "<rss/>",
			wantCalls: 1,
		},
		{
			name:       "not found is not retried",
			responses:  []response{{body: "nope", statusCode: 404}},
			wantStatus: 404,
			wantCalls:  1,
			wantErr:    true,
		},
		{
			name: "server error then success",
			responses: []response{
				{statusCode: 503},
				{body: "ok", statusCode: 200},
			},
			wantBody:  "ok",
			wantCalls: 2,
		},
		{
			name: "network error then success",
			responses: []response{
				{err: io.ErrUnexpectedEOF},
				{body: "ok", statusCode: 200},
			},
			wantBody:  "ok",
			wantCalls: 2,
		},
		{
			name:       "retries exhausted",
			responses:  []response{{statusCode: 500}},
			wantStatus: 500,
			wantCalls:  3,
			wantErr:    true,
		},
		{
			name:       "rate limited",
			responses:  []response{{statusCode: 429}, {statusCode: 429}, {statusCode: 429}},
			wantStatus: 429,
			wantCalls:  3,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{responses: tt.responses}
			f := New(transport, WithRetries(2), WithBackoff(time.Millisecond))

			body, err := f.Get(context.Background(), "https://example.com/feed")
			if diff := cmp.Diff(tt.wantCalls, transport.calls); diff != "" {
				t.Errorf("call count mismatch (-want +got):\n%s", diff)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var se *StatusError
				if tt.wantStatus != 0 && (!errors.As(err, &se) || se.StatusCode != tt.wantStatus) {
					t.Errorf("expected status %d, got %v", tt.wantStatus, err)
				}
				if tt.wantStatus != 0 && !errors.Is(err, ErrUnexpectedStatus) {
					t.Errorf("expected ErrUnexpectedStatus, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantBody, string(body)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetUserAgent(t *testing.T) {
	transport := &mockTransport{responses: []response{{statusCode: 502}, {body: "x", statusCode: 200}}}

	if _, err := New(transport, WithBackoff(time.Millisecond)).Get(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{DefaultUserAgent, DefaultUserAgent}
	if diff := cmp.Diff(want, transport.agents); diff != "" {
		t.Errorf("user agent mismatch (-want +got):\n%s", diff)
	}

	transport = &mockTransport{responses: []response{{body: "x", statusCode: 200}}}
	if _, err := New(transport, WithUserAgent("custom/1.0")).Get(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff([]string{"custom/1.0"}, transport.agents); diff != "" {
		t.Errorf("user agent mismatch (-want +got):\n%s", diff)
	}
}

type blockingTransport struct{}

func (blockingTransport) Do(req *http.Request) (*http.Response, error) {
	<-req.Context().Done()
	return nil, req.Context().Err()
}

func TestGetTimeout(t *testing.T) {
	f := New(blockingTransport{}, WithTimeout(20*time.Millisecond), WithBackoff(time.Millisecond))

	start := time.Now()
	_, err := f.Get(context.Background(), "https://example.com")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not honoured, took %v", elapsed)
	}
}

func TestGetInvalidURL(t *testing.T) {
	transport := &mockTransport{responses: []response{{statusCode: 200}}}
	if _, err := New(transport).Get(context.Background(), "://bad"); err == nil {
		t.Fatal("expected error for invalid url")
	}
	if transport.calls != 0 {
		t.Errorf("invalid url should not reach the client, got %d calls", transport.calls)
	}
}

func TestGetBodyLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "at limit", size: maxBodySize},
		{name: "over limit", size: maxBodySize + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{responses: []response{{body: strings.Repeat("a", tt.size), statusCode: 200}}}
			f := New(transport, WithRetries(2), WithBackoff(time.Millisecond))

			body, err := f.Get(context.Background(), "https://example.com/huge.xml")
			if diff := cmp.Diff(1, transport.calls); diff != "" {
				t.Errorf("oversized bodies are not retried (-want +got):\n%s", diff)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Fatalf("expected ErrTooLarge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.size, len(body)); diff != "" {
				t.Errorf("body length mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
