package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Client wraps an HTTP client with rate limiting and bounded retries.
// Shared by all read-only context source clients.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
}

// ClientOptions holds options for creating a new Client.
type ClientOptions struct {
	Timeout        time.Duration
	RequestsPerSec int
	APIKey         string
	ProxyURL       string
}

// NewClient creates a rate-limited HTTP client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}

	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if u, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), opts.RequestsPerSec),
		apiKey:  opts.APIKey,
	}
}

// HTTPStatusError represents a non-2xx HTTP status.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return "unexpected status: " + http.StatusText(e.StatusCode)
}

// ErrNotFound is returned by GetJSON for a 404 response so callers can
// distinguish "no data yet" from a real failure.
var ErrNotFound = fmt.Errorf("not found")

// GetJSON fetches the URL and decodes the JSON body into out.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff until the context deadline; 4xx responses fail immediately.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return &HTTPStatusError{StatusCode: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(&HTTPStatusError{StatusCode: resp.StatusCode})
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(operation, b)
}
