// Package bank talks to the transaction aggregation API and, when no
// credentials are configured, to a local simulator producing the same shapes.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/domuslabs/domus/internal/domain"
)

// Source supplies account and transaction data for a linked user. Both the
// live client and the simulator satisfy it.
type Source interface {
	Accounts(ctx context.Context, accessToken string) ([]domain.Account, error)
	Transactions(ctx context.Context, accessToken string, days int) ([]domain.Transaction, error)
}

// Sentinel tokens used in simulation mode so the rest of the service does not
// need to know whether a real aggregator is behind the Source.
const (
	FakeAccessToken = "fake-access-token"
	FakeItemID      = "fake-item-id"
	FakePublicToken = "fake-public-token"
	FakeLinkToken   = "fake-link-token-for-testing"
)

// Hosts for the supported aggregator environments.
var Hosts = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

const (
	pageSize = 500
	// maxPages caps pagination; a window longer than maxPages*pageSize
	// transactions is truncated with a warning instead of looping forever.
	maxPages = 20
)

// Client is an HTTP client for the aggregation API.
type Client struct {
	baseURL  string
	clientID string
	secret   string
	httpc    *http.Client
	log      zerolog.Logger
}

// NewClient builds a live aggregator client for the given environment host.
func NewClient(baseURL, clientID, secret string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

// post sends a JSON request with credentials merged in and decodes the
// response into out. Non-200 responses are decoded into an *APIError.
func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload := map[string]any{
		"client_id": c.clientID,
		"secret":    c.secret,
	}
	for k, v := range body {
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bank: marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("bank: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("bank: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("bank: read %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{ErrorType: "API_ERROR", ErrorCode: "UNKNOWN", ErrorMessage: "aggregator request failed"}
		if err := json.Unmarshal(data, apiErr); err != nil {
			c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("Unparsable aggregator error body")
		}
		c.log.Error().
			Str("path", path).
			Str("error_type", apiErr.ErrorType).
			Str("error_code", apiErr.ErrorCode).
			Str("error_message", apiErr.ErrorMessage).
			Msg("Aggregator error")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bank: decode %s response: %w", path, err)
	}
	return nil
}

// CreateLinkToken starts the link flow for a user.
func (c *Client) CreateLinkToken(ctx context.Context, userID, clientName string) (string, error) {
	var resp struct {
		LinkToken string `json:"link_token"`
	}
	err := c.post(ctx, "/link/token/create", map[string]any{
		"user":          map[string]string{"client_user_id": userID},
		"client_name":   clientName,
		"products":      []string{"transactions"},
		"country_codes": []string{"US"},
		"language":      "en",
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

// ExchangePublicToken trades the public token from the link flow for a
// long-lived access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	err = c.post(ctx, "/item/public_token/exchange", map[string]any{
		"public_token": publicToken,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.AccessToken, resp.ItemID, nil
}

// SandboxPublicToken creates a public token for a sandbox institution,
// bypassing the interactive link flow.
func (c *Client) SandboxPublicToken(ctx context.Context, institutionID string) (string, error) {
	var resp struct {
		PublicToken string `json:"public_token"`
	}
	err := c.post(ctx, "/sandbox/public_token/create", map[string]any{
		"institution_id":   institutionID,
		"initial_products": []string{"transactions"},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.PublicToken, nil
}

// Accounts implements Source.
func (c *Client) Accounts(ctx context.Context, accessToken string) ([]domain.Account, error) {
	var resp struct {
		Accounts []domain.Account `json:"accounts"`
	}
	err := c.post(ctx, "/accounts/get", map[string]any{
		"access_token": accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

type transactionsResponse struct {
	Transactions      []domain.Transaction `json:"transactions"`
	TotalTransactions int                  `json:"total_transactions"`
}

// Transactions implements Source. It fetches the full lookback window in
// pages of pageSize, capped at maxPages.
func (c *Client) Transactions(ctx context.Context, accessToken string, days int) ([]domain.Transaction, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	fetch := func(offset int) (*transactionsResponse, error) {
		var resp transactionsResponse
		err := c.post(ctx, "/transactions/get", map[string]any{
			"access_token": accessToken,
			"start_date":   start.Format("2006-01-02"),
			"end_date":     end.Format("2006-01-02"),
			"options":      map[string]int{"count": pageSize, "offset": offset},
		}, &resp)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	}

	first, err := fetch(0)
	if err != nil {
		return nil, err
	}
	all := first.Transactions
	total := first.TotalTransactions

	pages := 0
	for len(all) < total {
		pages++
		if pages > maxPages {
			c.log.Warn().
				Int("fetched", len(all)).
				Int("total", total).
				Msg("Pagination cap reached, truncating transaction window")
			break
		}
		page, err := fetch(len(all))
		if err != nil {
			return nil, err
		}
		if len(page.Transactions) == 0 {
			break
		}
		all = append(all, page.Transactions...)
	}

	return all, nil
}
