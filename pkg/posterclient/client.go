/**
 * @description
 * This package provides a client for interacting with the Poster POS API.
 * It encapsulates the logic for making authenticated HTTP requests to Poster's
 * endpoints, handling request body construction, and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package posterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client is a client for the Poster POS API. Requests are authenticated with
// the venue's access token, passed per call because the service is
// multi-tenant.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Poster API client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IncomingOrderRequest represents the payload for creating an incoming order
// in Poster.
type IncomingOrderRequest struct {
	SpotID       string                 `json:"spot_id,omitempty"`
	Phone        string                 `json:"phone"`
	ServiceMode  int                    `json:"service_mode"`
	Comment      string                 `json:"comment,omitempty"`
	Payment      IncomingOrderPayment   `json:"payment"`
	Products     []IncomingOrderProduct `json:"products,omitempty"`
}

// IncomingOrderPayment marks the order as already paid online.
type IncomingOrderPayment struct {
	Type     int    `json:"type"` // 1 = paid online
	Sum      int64  `json:"sum"`
	Currency string `json:"currency,omitempty"`
}

// IncomingOrderProduct is one order line forwarded to the POS.
type IncomingOrderProduct struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
	Price     int64  `json:"price"`
}

// IncomingOrder is the accepted-order view returned by Poster. ClientID
// identifies the POS-side client record Poster matched or created by phone.
type IncomingOrder struct {
	IncomingOrderID string `json:"incoming_order_id"`
	ClientID        string `json:"client_id"`
	Status          int    `json:"status"`
}

// PosClient is Poster's client record, used to upsert our local Client.
type PosClient struct {
	ClientID  string `json:"client_id"`
	Phone     string `json:"phone"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// ErrorResponse represents an error from the Poster API.
type ErrorResponse struct {
	ErrorCode int    `json:"error"`
	Message   string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("poster api error %d: %s", e.ErrorCode, e.Message)
}

type incomingOrderEnvelope struct {
	Response *IncomingOrder `json:"response"`
}

type clientEnvelope struct {
	Response []PosClient `json:"response"`
}

// SubmitOrder creates an incoming order in Poster for the venue identified by
// token. A nil response or a Poster-side error is a hard failure: the caller
// must roll back the settlement so the provider retries.
func (c *Client) SubmitOrder(ctx context.Context, token string, order IncomingOrderRequest) (*IncomingOrder, error) {
	body, err := c.doPost(ctx, token, "/api/incomingOrders.createIncomingOrder", order)
	if err != nil {
		return nil, err
	}

	var envelope incomingOrderEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode incoming order response: %w", err)
	}
	if envelope.Response == nil || envelope.Response.IncomingOrderID == "" {
		return nil, fmt.Errorf("poster accepted nothing: empty incoming order response")
	}
	return envelope.Response, nil
}

// GetClient fetches a Poster client record by its POS-side id.
func (c *Client) GetClient(ctx context.Context, token, clientID string) (*PosClient, error) {
	endpoint := fmt.Sprintf("%s/api/clients.getClient?token=%s&client_id=%s",
		c.BaseURL, url.QueryEscape(token), url.QueryEscape(clientID))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create client request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute client request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read client response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(body, resp.StatusCode, "get_client")
	}

	var envelope clientEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode client response: %w", err)
	}
	if len(envelope.Response) == 0 {
		return nil, fmt.Errorf("poster client %s not found", clientID)
	}
	return &envelope.Response[0], nil
}

// doPost executes an authenticated POST against the Poster API.
func (c *Client) doPost(ctx context.Context, token, path string, payload interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal poster request: %w", err)
	}

	endpoint := fmt.Sprintf("%s%s?token=%s", c.BaseURL, path, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create poster request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute poster request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read poster response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(body, resp.StatusCode, path)
	}
	return body, nil
}

func decodeError(body []byte, status int, op string) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		log.Printf("level=warn component=poster_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, status)
		return fmt.Errorf("poster request failed with status %d", status)
	}
	log.Printf("level=warn component=poster_client op=%s status=%d code=%d detail=%q", op, status, errResp.ErrorCode, errResp.Message)
	return &errResp
}
