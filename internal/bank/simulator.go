package bank

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/domuslabs/domus/internal/domain"
)

// priceRange is one merchant with its typical charge interval. Fixed-price
// merchants (lo == hi) end up classified as subscriptions downstream.
type priceRange struct {
	name string
	lo   float64
	hi   float64
}

var simMerchants = map[string][]priceRange{
	"Food and Drink": {
		{"Starbucks", 4.5, 8}, {"McDonald's", 8, 15}, {"Chipotle", 10, 18},
		{"Whole Foods", 30, 120}, {"Trader Joe's", 25, 80}, {"Pizza Hut", 15, 35}, {"Subway", 7, 12},
	},
	"Transportation": {
		{"Uber", 8, 35}, {"Lyft", 7, 30}, {"Shell Gas Station", 30, 60},
		{"Chevron", 35, 65}, {"Parking Meter", 2, 10}, {"Public Transit", 2.5, 5},
	},
	"Shopping": {
		{"Amazon", 10, 200}, {"Target", 15, 150}, {"Walmart", 20, 180},
		{"Best Buy", 25, 500}, {"Nike Store", 50, 200}, {"Apple Store", 20, 2000},
	},
	"Entertainment": {
		{"Netflix", 15.99, 15.99}, {"Spotify", 9.99, 9.99}, {"AMC Theaters", 12, 30},
		{"Steam Games", 5, 60}, {"PlayStation Store", 10, 70},
	},
	"Bills & Utilities": {
		{"Electric Company", 80, 150}, {"Internet Provider", 59.99, 59.99},
		{"Water Company", 30, 50}, {"Phone Bill", 45, 85}, {"Insurance", 100, 200},
	},
	"Healthcare": {
		{"CVS Pharmacy", 10, 50}, {"Walgreens", 8, 45},
		{"Doctor's Office", 25, 200}, {"Dentist", 50, 300},
	},
	"Transfer": {
		{"Venmo", 10, 100}, {"PayPal", 5, 200}, {"Zelle Payment", 20, 150},
	},
}

var simChannels = []string{"in store", "online", "other"}

// Simulator is a Source that fabricates plausible accounts and transactions.
// It backs simulation mode, which is active whenever aggregator credentials
// are missing or a user holds the fake sentinel token.
type Simulator struct {
	// Transactions generated per request unless overridden by the caller.
	Count int
	rng   *rand.Rand
}

// NewSimulator returns a simulator producing count transactions per fetch.
func NewSimulator(count int) *Simulator {
	return &Simulator{
		Count: count,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Accounts implements Source with a fixed set of demo accounts.
func (s *Simulator) Accounts(ctx context.Context, accessToken string) ([]domain.Account, error) {
	dec := func(v float64) *decimal.Decimal {
		d := decimal.NewFromFloat(v)
		return &d
	}
	return []domain.Account{
		{
			AccountID:    "fake_checking_001",
			Balances:     domain.Balances{Available: dec(2500.50), Current: dec(2500.50), ISOCurrencyCode: "USD"},
			Mask:         "4321",
			Name:         "Demo Checking",
			OfficialName: "Silver Standard 0.1% Interest Checking",
			Subtype:      "checking",
			Type:         "depository",
		},
		{
			AccountID:    "fake_savings_001",
			Balances:     domain.Balances{Available: dec(10000.00), Current: dec(10000.00), ISOCurrencyCode: "USD"},
			Mask:         "5678",
			Name:         "Demo Saving",
			OfficialName: "Bronze Standard 0.2% Interest Saving",
			Subtype:      "savings",
			Type:         "depository",
		},
		{
			AccountID:    "fake_credit_001",
			Balances:     domain.Balances{Available: dec(3500.00), Current: dec(1500.00), Limit: dec(5000), ISOCurrencyCode: "USD"},
			Mask:         "9012",
			Name:         "Demo Credit Card",
			OfficialName: "Diamond 12.5% APR Interest Credit Card",
			Subtype:      "credit card",
			Type:         "credit",
		},
	}, nil
}

// Transactions implements Source, generating s.Count transactions spread over
// the lookback window, newest first.
func (s *Simulator) Transactions(ctx context.Context, accessToken string, days int) ([]domain.Transaction, error) {
	return s.Generate(days, s.Count), nil
}

// Generate produces n fake transactions over the past days days.
func (s *Simulator) Generate(days, n int) []domain.Transaction {
	categories := make([]string, 0, len(simMerchants))
	for cat := range simMerchants {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	now := time.Now().UTC()
	txs := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		daysAgo := s.rng.Intn(days + 1)
		date := now.AddDate(0, 0, -daysAgo).Format("2006-01-02")
		category := categories[s.rng.Intn(len(categories))]
		m := simMerchants[category][s.rng.Intn(len(simMerchants[category]))]

		amount := m.lo + s.rng.Float64()*(m.hi-m.lo)
		accountID := "fake_checking_001"
		if s.rng.Intn(2) == 1 {
			accountID = "fake_credit_001"
		}

		txs = append(txs, domain.Transaction{
			ID:             fmt.Sprintf("fake_tx_%04d", i),
			AccountID:      accountID,
			Date:           date,
			Amount:         decimal.NewFromFloat(amount).Round(2),
			Currency:       "USD",
			MerchantName:   m.name,
			Name:           strings.ToUpper(m.name),
			Category:       domain.Category(category),
			PaymentChannel: simChannels[s.rng.Intn(len(simChannels))],
			Pending:        daysAgo <= 2 && s.rng.Float64() < 0.3,
		})
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].Date > txs[j].Date })
	return txs
}
