package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domuslabs/domus/internal/domain"
)

func TestClientTransactionsPaginates(t *testing.T) {
	const total = 7
	const page = 3

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/get", r.URL.Path)

		var req struct {
			ClientID    string `json:"client_id"`
			Secret      string `json:"secret"`
			AccessToken string `json:"access_token"`
			Options     struct {
				Count  int `json:"count"`
				Offset int `json:"offset"`
			} `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cid", req.ClientID)
		assert.Equal(t, "sec", req.Secret)
		assert.Equal(t, "tok", req.AccessToken)

		var txs []domain.Transaction
		for i := req.Options.Offset; i < total && len(txs) < page; i++ {
			txs = append(txs, domain.Transaction{ID: fmt.Sprintf("tx_%d", i), Date: "2024-01-01"})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"transactions":       txs,
			"total_transactions": total,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec", zerolog.Nop())
	txs, err := c.Transactions(context.Background(), "tok", 30)
	require.NoError(t, err)
	require.Len(t, txs, total)
	assert.Equal(t, "tx_0", txs[0].ID)
	assert.Equal(t, "tx_6", txs[6].ID)
}

func TestClientMapsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error_type":    "ITEM_ERROR",
			"error_code":    "ITEM_LOGIN_REQUIRED",
			"error_message": "the login details of this item have changed",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec", zerolog.Nop())
	_, err := c.Accounts(context.Background(), "tok")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ITEM_LOGIN_REQUIRED", apiErr.ErrorCode)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus())
	assert.True(t, apiErr.RequiresRelink())
}

func TestClientExchangePublicToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/item/public_token/exchange", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "access-123",
			"item_id":      "item-456",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "sec", zerolog.Nop())
	access, item, err := c.ExchangePublicToken(context.Background(), "public-xyz")
	require.NoError(t, err)
	assert.Equal(t, "access-123", access)
	assert.Equal(t, "item-456", item)
}
