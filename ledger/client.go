// Package ledger talks to the balance-transfer service that actually
// moves credits between accounts.
//
// The engine decides amounts and records events; this package only
// carries transfers across the wire. Calls are deliberately not retried
// here - the settlement engine's chunk protocol and the on-demand error
// path own failure handling, and a hidden retry would turn their
// compensation logic into double payment.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/credit-engine/reward"
)

// Client is the HTTP client for the balance ledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ reward.Ledger = (*Client)(nil)

// NewClient creates a client for the ledger service at the given address.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// creditRequest is the wire shape of a transfer. The ledger side deals in
// decimal currency amounts; credits map onto them one to one.
type creditRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
}

// Credit transfers amount credits to the account.
func (c *Client) Credit(ctx context.Context, toAccount string, amount int64, description string, details reward.TransferDetails) (reward.TransactionID, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("ledger client not configured")
	}

	body := creditRequest{
		Amount:      decimal.NewFromInt(amount),
		Description: description,
		Details: map[string]string{
			"reward_type": details.RewardType,
			"for_id":      details.ForID,
			"by_user_id":  details.ByUserID,
		},
	}
	url := fmt.Sprintf("%s/api/accounts/%s/credits", c.baseURL, toAccount)

	resp, err := c.post(ctx, url, body)
	if err != nil {
		return "", fmt.Errorf("credit %s: %w", toAccount, err)
	}
	return resp, nil
}

// Refund reverses a prior transfer.
func (c *Client) Refund(ctx context.Context, id reward.TransactionID, reason string) (reward.TransactionID, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("ledger client not configured")
	}

	url := fmt.Sprintf("%s/api/transactions/%s/refund", c.baseURL, id)
	resp, err := c.post(ctx, url, refundRequest{Reason: reason})
	if err != nil {
		return "", fmt.Errorf("refund %s: %w", id, err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, body any) (reward.TransactionID, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.TransactionID == "" {
		return "", fmt.Errorf("ledger returned no transaction id")
	}
	return reward.TransactionID(result.TransactionID), nil
}
