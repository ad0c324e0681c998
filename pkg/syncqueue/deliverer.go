package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDeliverer replays mutations by POSTing them as JSON to a remote sync
// endpoint. Any non-2xx response counts as a failed attempt.
type HTTPDeliverer struct {
	endpoint string
	client   *http.Client
}

var _ Deliverer = (*HTTPDeliverer)(nil)

// NewHTTPDeliverer creates a deliverer for the given endpoint.
func NewHTTPDeliverer(endpoint string, timeout time.Duration) *HTTPDeliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDeliverer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Deliver implements Deliverer.
func (d *HTTPDeliverer) Deliver(ctx context.Context, item *Item) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", item.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Stride-Item-ID", item.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sync endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
