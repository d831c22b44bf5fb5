package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"structured object", `{"category": {"primary": "Food and Drink"}}`, "Food and Drink"},
		{"legacy list", `{"category": ["Travel", "Taxi"]}`, "Travel"},
		{"bare string", `{"category": "Shopping"}`, "Shopping"},
		{"null", `{"category": null}`, "Other"},
		{"absent", `{}`, "Other"},
		{"empty list", `{"category": []}`, "Other"},
		{"empty string", `{"category": ""}`, "Other"},
		{"empty object", `{"category": {}}`, "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tx Transaction
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &tx))
			assert.Equal(t, tt.want, tx.CategoryLabel())
		})
	}
}

func TestCategoryUnmarshalRejectsNumbers(t *testing.T) {
	var tx Transaction
	err := json.Unmarshal([]byte(`{"category": 12}`), &tx)
	assert.Error(t, err)
}

func TestMerchantFallback(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want string
	}{
		{"merchant name wins", Transaction{MerchantName: "Starbucks", Name: "STARBUCKS #123"}, "Starbucks"},
		{"raw name fallback", Transaction{Name: "STARBUCKS #123"}, "STARBUCKS #123"},
		{"both absent", Transaction{}, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tx.Merchant())
		})
	}
}

func TestMonth(t *testing.T) {
	tx := Transaction{Date: "2024-03-15"}
	month, ok := tx.Month()
	require.True(t, ok)
	assert.Equal(t, "2024-03", month)

	bad := Transaction{Date: "2024"}
	_, ok = bad.Month()
	assert.False(t, ok)
}
