// Package analytics computes spending statistics, recurring-charge candidates
// and anomalous transactions from a raw transaction batch. Every function is a
// pure single pass over its input: no state is kept between calls and the
// input slice is never retained, so concurrent use from request handlers needs
// no coordination. Amounts are accumulated at full decimal precision and only
// rounded to two places when the result snapshot is assembled.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/domuslabs/domus/internal/domain"
)

// CategoryAmount is one entry of the category breakdown: the summed signed
// amount for a category, income included.
type CategoryAmount struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MerchantVisits aggregates visits to a single merchant display name.
type MerchantVisits struct {
	Name   string          `json:"name"`
	Visits int             `json:"visits"`
	Total  decimal.Decimal `json:"total"`
}

// Statistics is the aggregate snapshot for one transaction batch. All
// currency fields are rounded to two decimal places.
type Statistics struct {
	TotalSpent        decimal.Decimal  `json:"total_spent"`
	TotalIncome       decimal.Decimal  `json:"total_income"`
	NetCashFlow       decimal.Decimal  `json:"net_cash_flow"`
	TransactionCount  int              `json:"transaction_count"`
	AvgDailySpend     decimal.Decimal  `json:"avg_daily_spend"`
	AvgTransaction    decimal.Decimal  `json:"avg_transaction"`
	CategoryBreakdown []CategoryAmount `json:"category_breakdown"`
	TopCategory       string           `json:"top_category"`
	TopCategoryAmount decimal.Decimal  `json:"top_category_amount"`
	TopMerchants      []MerchantVisits `json:"top_merchants"`
	BiggestExpenseDay string           `json:"biggest_expense_day"`
}

// Compute aggregates a transaction batch into a Statistics snapshot. It
// returns nil for an empty batch, which callers must treat as "no data for
// the period" rather than a failure. Positive amounts count as spending,
// negative amounts as income (absolute value). Tied categories and merchants
// keep their first-encountered order; a tie for the biggest expense day goes
// to the earliest date.
func Compute(txs []domain.Transaction) *Statistics {
	if len(txs) == 0 {
		return nil
	}

	totalSpent := decimal.Zero
	totalIncome := decimal.Zero

	catIndex := make(map[string]int)
	var cats []CategoryAmount

	merchIndex := make(map[string]int)
	var merchants []MerchantVisits

	daily := make(map[string]decimal.Decimal)

	for _, tx := range txs {
		amount := tx.Amount
		merchant := tx.Merchant()
		category := tx.CategoryLabel()

		if amount.IsPositive() {
			totalSpent = totalSpent.Add(amount)
		} else {
			totalIncome = totalIncome.Add(amount.Abs())
		}

		if i, ok := catIndex[category]; ok {
			cats[i].Amount = cats[i].Amount.Add(amount)
		} else {
			catIndex[category] = len(cats)
			cats = append(cats, CategoryAmount{Category: category, Amount: amount})
		}

		if i, ok := merchIndex[merchant]; ok {
			merchants[i].Visits++
			merchants[i].Total = merchants[i].Total.Add(amount)
		} else {
			merchIndex[merchant] = len(merchants)
			merchants = append(merchants, MerchantVisits{Name: merchant, Visits: 1, Total: amount})
		}

		if tx.Date != "" {
			daily[tx.Date] = daily[tx.Date].Add(amount)
		}
	}

	// Stable sorts so that ties keep first-encountered order.
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Amount.GreaterThan(cats[j].Amount)
	})
	sort.SliceStable(merchants, func(i, j int) bool {
		return merchants[i].Visits > merchants[j].Visits
	})
	if len(merchants) > 5 {
		merchants = merchants[:5]
	}

	nDays := len(daily)
	if nDays == 0 {
		nDays = 1
	}
	nTx := len(txs)

	biggestDay := ""
	biggestSum := decimal.Zero
	for date, sum := range daily {
		switch {
		case biggestDay == "", sum.GreaterThan(biggestSum):
			biggestDay, biggestSum = date, sum
		case sum.Equal(biggestSum) && date < biggestDay:
			biggestDay = date
		}
	}

	stats := &Statistics{
		TotalSpent:        totalSpent.Round(2),
		TotalIncome:       totalIncome.Round(2),
		NetCashFlow:       totalIncome.Sub(totalSpent).Round(2),
		TransactionCount:  nTx,
		AvgDailySpend:     totalSpent.Div(decimal.NewFromInt(int64(nDays))).Round(2),
		AvgTransaction:    totalSpent.Div(decimal.NewFromInt(int64(nTx))).Round(2),
		TopMerchants:      merchants,
		BiggestExpenseDay: biggestDay,
	}

	stats.CategoryBreakdown = make([]CategoryAmount, len(cats))
	for i, c := range cats {
		stats.CategoryBreakdown[i] = CategoryAmount{Category: c.Category, Amount: c.Amount.Round(2)}
	}
	if len(stats.CategoryBreakdown) > 0 {
		stats.TopCategory = stats.CategoryBreakdown[0].Category
		stats.TopCategoryAmount = stats.CategoryBreakdown[0].Amount
	}
	for i := range stats.TopMerchants {
		stats.TopMerchants[i].Total = stats.TopMerchants[i].Total.Round(2)
	}

	return stats
}
