package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPTransport posts requests to an issuer HTTP endpoint.
type HTTPTransport struct {
	URL         string
	Client      *http.Client
	MaxResponse int64 // defaults to DefaultMaxResponse
}

// NewHTTPTransport returns a transport posting to url with the given timeout.
func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// RoundTrip posts req as JSON and returns the response body
func (t *HTTPTransport) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post to issuer: %w", err)
	}
	defer resp.Body.Close()

	max := t.MaxResponse
	if max <= 0 {
		max = DefaultMaxResponse
	}
	body, err := readCapped(ctx, resp.Body, max)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}
