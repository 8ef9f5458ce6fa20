// Package exchange talks to the external execution venue.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is the outbound side of the venue. Placement confirmations and
// fills arrive later through callbacks.
type Client interface {
	// PlaceOrder submits one order and returns the exchange order id.
	PlaceOrder(ctx context.Context, jobID string, call Call) (string, error)
	// CancelOrder asks the venue to delete an order. It reports false when
	// the venue no longer knows the order.
	CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error)
}

// HTTPClient is a Client speaking JSON over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an HTTPClient for the venue at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// placeOrderPayload is the JSON body for POST /orders/{kind}.
type placeOrderPayload struct {
	JobID    string           `json:"jobId"`
	ShareID  string           `json:"shareId"`
	Amount   int64            `json:"amount"`
	Limit    *decimal.Decimal `json:"limit,omitempty"`
	Stop     *decimal.Decimal `json:"stop,omitempty"`
	Validity *time.Time       `json:"validity,omitempty"`
}

type placeOrderResponse struct {
	ID string `json:"id"`
}

// PlaceOrder implements Client.
func (c *HTTPClient) PlaceOrder(ctx context.Context, jobID string, call Call) (string, error) {
	body, err := json.Marshal(placeOrderPayload{
		JobID:    jobID,
		ShareID:  call.ShareID,
		Amount:   call.Amount,
		Limit:    call.Limit,
		Stop:     call.Stop,
		Validity: call.Validity,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, "/orders/"+string(call.Kind), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError(resp)
	}

	var out placeOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode placement response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("placement response without order id")
	}
	return out.ID, nil
}

// CancelOrder implements Client.
func (c *HTTPClient) CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/orders/"+url.PathEscape(exchangeOrderID), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound, http.StatusConflict:
		return false, nil
	default:
		return false, statusError(resp)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.New().String())

	return c.client.Do(req)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
