/**
 * @description
 * This package provides the outbound client for the downstream automation
 * webhook. Settled bot-channel orders are forwarded here so external
 * automations (CRM flows, follow-up messaging) can react without polling.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 */
package webhookclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client posts enriched order payloads to a fixed automation endpoint.
type Client struct {
	EndpointURL string
	HTTPClient  *http.Client
}

// NewClient creates a new automation webhook client.
func NewClient(endpointURL string) *Client {
	return &Client{
		EndpointURL: endpointURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Forward posts the payload and reports non-2xx responses as errors. Callers
// treat any failure as log-only: the committed order state is authoritative
// regardless of downstream delivery.
func (c *Client) Forward(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal automation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.EndpointURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create automation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute automation request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("automation webhook answered status %d", resp.StatusCode)
	}
	return nil
}
