package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CategoryOther is the label assigned when no category can be resolved.
const CategoryOther = "Other"

// UnknownMerchant is the label assigned when a transaction carries no
// merchant name at all.
const UnknownMerchant = "Unknown"

// Category is a normalized category label. Aggregator payloads emit it in
// several shapes: a structured {"primary": "..."} object, a legacy list of
// strings, a bare string, or nothing. UnmarshalJSON resolves whichever shape
// arrives; a zero-value Category means "absent" and resolves to Other.
type Category string

// UnmarshalJSON resolves the closed set of upstream category shapes.
func (c *Category) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}

	switch data[0] {
	case '{':
		var obj struct {
			Primary string `json:"primary"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("category object: %w", err)
		}
		*c = Category(obj.Primary)
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("category list: %w", err)
		}
		if len(list) > 0 {
			*c = Category(list[0])
		} else {
			*c = ""
		}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("category string: %w", err)
		}
		*c = Category(s)
	default:
		return fmt.Errorf("category: unsupported JSON shape %s", data)
	}
	return nil
}

// Transaction is one signed monetary movement as delivered by the
// aggregation API (or the simulator). Positive amounts are money spent,
// negative amounts are money received. Date stays a plain YYYY-MM-DD string;
// the calendar month bucket is its first seven characters.
type Transaction struct {
	ID             string          `json:"transaction_id"`
	AccountID      string          `json:"account_id,omitempty"`
	Date           string          `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"iso_currency_code,omitempty"`
	MerchantName   string          `json:"merchant_name,omitempty"`
	Name           string          `json:"name,omitempty"`
	Category       Category        `json:"category,omitempty"`
	PaymentChannel string          `json:"payment_channel,omitempty"`
	Pending        bool            `json:"pending,omitempty"`
}

// Merchant returns the display name, falling back from merchant_name to the
// raw name and finally to Unknown.
func (t Transaction) Merchant() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	if t.Name != "" {
		return t.Name
	}
	return UnknownMerchant
}

// CategoryLabel returns the resolved category, defaulting to Other.
func (t Transaction) CategoryLabel() string {
	if t.Category == "" {
		return CategoryOther
	}
	return string(t.Category)
}

// Month returns the YYYY-MM bucket of the transaction date, or false when the
// date is too short to carry one.
func (t Transaction) Month() (string, bool) {
	if len(t.Date) < 7 {
		return "", false
	}
	return t.Date[:7], true
}

// Balances is the balance block of an account as reported by the aggregator.
type Balances struct {
	Available       *decimal.Decimal `json:"available"`
	Current         *decimal.Decimal `json:"current"`
	Limit           *decimal.Decimal `json:"limit"`
	ISOCurrencyCode string           `json:"iso_currency_code"`
}

// Account is a linked bank account.
type Account struct {
	AccountID    string   `json:"account_id"`
	Balances     Balances `json:"balances"`
	Mask         string   `json:"mask"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Subtype      string   `json:"subtype"`
	Type         string   `json:"type"`
}
