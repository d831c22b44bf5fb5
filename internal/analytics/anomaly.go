package analytics

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/domuslabs/domus/internal/domain"
)

// DefaultAnomalyThreshold is the multiplier applied to a category's mean
// amount when the caller does not supply one.
const DefaultAnomalyThreshold = 2.0

// Anomaly is a debit whose amount exceeds a multiple of its category's mean.
type Anomaly struct {
	TransactionID string          `json:"transaction_id"`
	Merchant      string          `json:"merchant"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Date          string          `json:"date"`
	CategoryAvg   decimal.Decimal `json:"category_avg"`
	Ratio         decimal.Decimal `json:"ratio"`
	Flag          string          `json:"flag"`
}

// DetectAnomalies flags positive-amount transactions whose amount exceeds
// threshold times the mean positive amount of their category, ordered by
// ratio descending. Income and refunds are never anomalous spending and are
// excluded before grouping, so a category containing only non-positive
// amounts produces no anomalies.
func DetectAnomalies(txs []domain.Transaction, threshold float64) []Anomaly {
	type member struct {
		amount decimal.Decimal
		tx     domain.Transaction
	}
	type group struct {
		category string
		members  []member
	}

	index := make(map[string]int)
	var groups []*group
	for _, tx := range txs {
		if !tx.Amount.IsPositive() {
			continue
		}
		category := tx.CategoryLabel()
		if i, ok := index[category]; ok {
			groups[i].members = append(groups[i].members, member{amount: tx.Amount, tx: tx})
		} else {
			index[category] = len(groups)
			groups = append(groups, &group{category: category, members: []member{{amount: tx.Amount, tx: tx}}})
		}
	}

	mult := decimal.NewFromFloat(threshold)

	var anomalies []Anomaly
	for _, g := range groups {
		sum := decimal.Zero
		for _, m := range g.members {
			sum = sum.Add(m.amount)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(g.members))))
		if !avg.IsPositive() {
			continue
		}

		for _, m := range g.members {
			if !m.amount.GreaterThan(avg.Mul(mult)) {
				continue
			}
			ratio := m.amount.Div(avg).Round(1)
			anomalies = append(anomalies, Anomaly{
				TransactionID: m.tx.ID,
				Merchant:      m.tx.Merchant(),
				Amount:        m.amount.Round(2),
				Category:      g.category,
				Date:          m.tx.Date,
				CategoryAvg:   avg.Round(2),
				Ratio:         ratio,
				Flag: fmt.Sprintf("$%s is %sx the $%s average for %s",
					m.amount.StringFixed(2), ratio.String(), avg.StringFixed(2), g.category),
			})
		}
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Ratio.GreaterThan(anomalies[j].Ratio)
	})
	return anomalies
}
