package uploader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPTransport posts each encoded segment to a collector endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport posting to the given URL.
func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Send uploads one segment as the request body with segment metadata in headers.
func (t *HTTPTransport) Send(ctx context.Context, seg Segment) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(seg.Data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/"+seg.Format)
	req.Header.Set("X-Session-ID", seg.SessionID)
	req.Header.Set("X-Channel", strconv.Itoa(seg.Channel))
	req.Header.Set("X-Sequence", strconv.FormatUint(seg.Sequence, 10))
	req.Header.Set("X-Sample-Rate", strconv.Itoa(seg.SampleRate))

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector rejected segment: %s", resp.Status)
	}
	return nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
