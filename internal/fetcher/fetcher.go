// Package fetcher downloads source documents over HTTP.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultUserAgent identifies the ingestor to upstream servers.
const DefaultUserAgent = "AI-Dashboard-Ingestor/0.1"

const maxBodySize = 10 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrTooLarge is returned when a response body exceeds the size cap.
var ErrTooLarge = errors.New("response too large")

// ErrUnexpectedStatus matches every *StatusError.
var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError reports a non-200 response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Fetcher performs bounded, retried GET requests.
type Fetcher struct {
	client    HTTPClient
	userAgent string
	timeout   time.Duration
	retries   uint64
	backoff   time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithTimeout bounds each Get call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(f *Fetcher) {
		if n < 0 {
			n = 0
		}
		f.retries = uint64(n)
	}
}

// WithBackoff sets the base delay of the exponential backoff.
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) { f.backoff = d }
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    client,
		userAgent: DefaultUserAgent,
		timeout:   30 * time.Second,
		retries:   2,
		backoff:   500 * time.Millisecond,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Get downloads url and returns the response body.
// Network errors, 429 and 5xx responses are retried; other statuses are not.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	b := retry.WithMaxRetries(f.retries, retry.NewExponential(f.backoff))
	return retry.DoValue(ctx, b, func(ctx context.Context) ([]byte, error) {
		body, err := f.do(req.Clone(ctx))
		if err != nil && retryable(ctx, err) {
			return nil, retry.RetryableError(err)
		}
		return body, err
	})
}

func (f *Fetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("read body: %w (limit %d bytes)", ErrTooLarge, maxBodySize)
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
