// Package wallet talks to the external staking/payout subsystem. It is a
// boundary client only; escrow mechanics live on the other side.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Reserve asks the staking subsystem to lock the stake before a join is
// accepted. With no URL configured the client runs permissive, for local and
// demo setups without a wallet backend.
func (c *Client) Reserve(ctx context.Context, userID, challengeID string, stake decimal.Decimal) error {
	if c == nil || c.baseURL == "" {
		return nil
	}
	return c.post(ctx, "/stakes/reserve", map[string]any{
		"user_id":      userID,
		"challenge_id": challengeID,
		"amount":       stake,
	})
}

// Payout triggers the external transfer after a cash-out has been recorded.
func (c *Client) Payout(ctx context.Context, userID string, amount decimal.Decimal) error {
	if c == nil || c.baseURL == "" {
		return nil
	}
	return c.post(ctx, "/payouts", map[string]any{
		"user_id": userID,
		"amount":  amount,
	})
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wallet request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wallet status %d", resp.StatusCode)
	}
	return nil
}
