package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to the wallet service over its JSON API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type debitRequest struct {
	UserID int   `json:"user_id"`
	Amount int64 `json:"amount"`
}

type debitResponse struct {
	Status string `json:"status"`
}

func (c *HTTPClient) Debit(ctx context.Context, userID int, amount int64) (Outcome, error) {
	var resp debitResponse
	if err := c.post(ctx, "/v1/debit", debitRequest{UserID: userID, Amount: amount}, &resp); err != nil {
		return OutcomeFailed, err
	}
	switch resp.Status {
	case "confirmed":
		return OutcomeConfirmed, nil
	case "insufficient_funds":
		return OutcomeInsufficient, nil
	default:
		return OutcomeFailed, nil
	}
}

func (c *HTTPClient) Refund(ctx context.Context, userID int, amount int64) error {
	return c.post(ctx, "/v1/refund", debitRequest{UserID: userID, Amount: amount}, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("wallet request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return fmt.Errorf("wallet service returned %d", httpResp.StatusCode)
	}
	if out == nil {
		if httpResp.StatusCode >= 400 {
			return fmt.Errorf("wallet service returned %d", httpResp.StatusCode)
		}
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode wallet response: %w", err)
	}
	return nil
}
