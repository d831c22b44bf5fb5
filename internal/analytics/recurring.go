package analytics

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/domuslabs/domus/internal/domain"
)

// RecurringCharge is one merchant group that appears at least twice across at
// least two distinct calendar months.
type RecurringCharge struct {
	Merchant       string          `json:"merchant"`
	Count          int             `json:"count"`
	MonthsSeen     []string        `json:"months_seen"`
	AvgAmount      decimal.Decimal `json:"avg_amount"`
	Total          decimal.Decimal `json:"total"`
	Category       string          `json:"category"`
	IsSubscription bool            `json:"is_subscription"`
}

// subscriptionTolerance is the maximum relative deviation from the average
// amount for a recurring merchant to still count as a fixed-price
// subscription.
var subscriptionTolerance = decimal.RequireFromString("0.05")

// trailingJunk matches the store-number suffix of a merchant display name,
// e.g. the " #1234" in "Amazon #1234".
var trailingJunk = regexp.MustCompile(`[\s\d#*]+$`)

// MerchantKey normalizes a display name into the grouping key used for
// recurring detection: lowercase with any trailing run of whitespace, digits,
// '#' and '*' stripped. An empty key means the name carries no usable signal.
func MerchantKey(name string) string {
	key := trailingJunk.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
	return strings.TrimSpace(key)
}

// DetectRecurring groups transactions by normalized merchant key and returns
// the groups seen at least twice across at least two distinct months, ordered
// by total amount descending. Averages consider positive amounts only; a
// group whose occurrences are all refunds is dropped. A record with a
// malformed date simply contributes nothing to the month set.
func DetectRecurring(txs []domain.Transaction) []RecurringCharge {
	type group struct {
		key string
		txs []domain.Transaction
	}

	index := make(map[string]int)
	var groups []*group
	for _, tx := range txs {
		name := tx.MerchantName
		if name == "" {
			name = tx.Name
		}
		key := MerchantKey(name)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			groups[i].txs = append(groups[i].txs, tx)
		} else {
			index[key] = len(groups)
			groups = append(groups, &group{key: key, txs: []domain.Transaction{tx}})
		}
	}

	var recurring []RecurringCharge
	for _, g := range groups {
		if len(g.txs) < 2 {
			continue
		}

		monthSet := make(map[string]struct{})
		for _, tx := range g.txs {
			if m, ok := tx.Month(); ok {
				monthSet[m] = struct{}{}
			}
		}
		if len(monthSet) < 2 {
			continue
		}

		var amounts []decimal.Decimal
		total := decimal.Zero
		for _, tx := range g.txs {
			if tx.Amount.IsPositive() {
				amounts = append(amounts, tx.Amount)
				total = total.Add(tx.Amount)
			}
		}
		if len(amounts) == 0 {
			// Only refunds; not recurring spend.
			continue
		}

		avg := total.Div(decimal.NewFromInt(int64(len(amounts))))
		maxDeviation := decimal.Zero
		for _, a := range amounts {
			if d := a.Sub(avg).Abs(); d.GreaterThan(maxDeviation) {
				maxDeviation = d
			}
		}

		months := make([]string, 0, len(monthSet))
		for m := range monthSet {
			months = append(months, m)
		}
		sort.Strings(months)

		first := g.txs[0]
		display := first.MerchantName
		if display == "" {
			display = first.Name
		}
		if display == "" {
			display = g.key
		}

		recurring = append(recurring, RecurringCharge{
			Merchant:       display,
			Count:          len(g.txs),
			MonthsSeen:     months,
			AvgAmount:      avg.Round(2),
			Total:          total.Round(2),
			Category:       first.CategoryLabel(),
			IsSubscription: maxDeviation.Div(avg).LessThan(subscriptionTolerance),
		})
	}

	sort.SliceStable(recurring, func(i, j int) bool {
		return recurring[i].Total.GreaterThan(recurring[j].Total)
	})
	return recurring
}
