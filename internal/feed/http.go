package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"SignalDesk/internal/model"
)

// HTTPFeed implements Feed against the scanner's REST API.
type HTTPFeed struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPFeed creates a feed client with optional proxy support.
func NewHTTPFeed(baseURL, apiKey, proxyURL string) *HTTPFeed {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPFeed{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

func (f *HTTPFeed) Name() string { return "scanner" }

// wireSignal is the expected JSON shape from the feed API.
type wireSignal struct {
	ID         string            `json:"id"`
	Instrument string            `json:"instrument"`
	Direction  string            `json:"direction"`
	Score      float64           `json:"score"`
	Category   string            `json:"category"`
	CreatedAt  int64             `json:"created_at"` // unix seconds
	Attributes map[string]string `json:"attributes"`
}

func (f *HTTPFeed) FetchPending(ctx context.Context) ([]model.Signal, error) {
	endpoint := fmt.Sprintf("%s/api/v1/signals/pending", f.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pending signals: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("feed API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var wire []wireSignal
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}

	signals := make([]model.Signal, 0, len(wire))
	for _, w := range wire {
		signals = append(signals, model.Signal{
			ID:         w.ID,
			Instrument: w.Instrument,
			Direction:  model.Direction(w.Direction),
			Score:      w.Score,
			Category:   model.SourceCategory(w.Category),
			CreatedAt:  time.Unix(w.CreatedAt, 0).UTC(),
			Attributes: w.Attributes,
		})
	}
	return signals, nil
}

func (f *HTTPFeed) MarkProcessed(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/api/v1/signals/%s/processed", f.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("feed API error: status %d", resp.StatusCode)
	}
	return nil
}
