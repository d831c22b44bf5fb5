// Package analyzer runs background spending checks over a user's recent
// transactions and persists anything suspicious as alerts. It is driven by
// the jobs queue so sweeps never block API requests.
package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/domuslabs/domus/internal/domain"
	"github.com/domuslabs/domus/internal/store"
)

// zScoreThreshold flags debits more than two sample standard deviations
// above the category mean.
const zScoreThreshold = 2.0

// SweepResult summarizes a completed sweep.
type SweepResult struct {
	UserID           string `json:"user_id"`
	TransactionCount int    `json:"transaction_count"`
	BudgetAlerts     int    `json:"budget_alerts"`
	StatAlerts       int    `json:"stat_alerts"`
}

// Analyzer checks spending against budgets and statistical baselines.
type Analyzer struct {
	store *store.Store
	log   zerolog.Logger
}

func New(st *store.Store, log zerolog.Logger) *Analyzer {
	return &Analyzer{store: st, log: log}
}

// Sweep runs every check over the supplied transactions and persists the
// resulting alerts. It returns a summary of what was flagged.
func (a *Analyzer) Sweep(ctx context.Context, userID string, txs []domain.Transaction) (*SweepResult, error) {
	result := &SweepResult{UserID: userID, TransactionCount: len(txs)}
	if len(txs) == 0 {
		return result, nil
	}

	budgets, err := a.store.LoadBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}

	budgetAlerts, err := a.checkBudgets(ctx, userID, txs, budgets)
	if err != nil {
		return nil, err
	}
	result.BudgetAlerts = budgetAlerts

	statAlerts, err := a.checkOutliers(ctx, userID, txs)
	if err != nil {
		return nil, err
	}
	result.StatAlerts = statAlerts

	a.log.Info().
		Str("user_id", userID).
		Int("transactions", result.TransactionCount).
		Int("budget_alerts", result.BudgetAlerts).
		Int("stat_alerts", result.StatAlerts).
		Msg("alert sweep finished")

	return result, nil
}

// checkBudgets raises a CRITICAL alert for every category whose debits
// exceed the stored limit.
func (a *Analyzer) checkBudgets(ctx context.Context, userID string, txs []domain.Transaction, budgets map[string]store.Budget) (int, error) {
	if len(budgets) == 0 {
		return 0, nil
	}

	spent := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.Amount.Sign() <= 0 {
			continue
		}
		category := tx.CategoryLabel()
		spent[category] = spent[category].Add(tx.Amount)
	}

	raised := 0
	for category, budget := range budgets {
		total, ok := spent[category]
		if !ok || total.LessThanOrEqual(budget.Limit) {
			continue
		}
		reason := fmt.Sprintf("Spent $%s in %s, over the $%s budget",
			total.StringFixed(2), category, budget.Limit.StringFixed(2))
		if err := a.store.SaveAlert(ctx, userID, "", reason, store.SeverityCritical); err != nil {
			return raised, fmt.Errorf("save budget alert: %w", err)
		}
		raised++
	}
	return raised, nil
}

// checkOutliers raises a HIGH alert for every debit whose amount sits more
// than zScoreThreshold sample standard deviations above its category mean.
// Categories with fewer than two debits have no meaningful deviation and
// are skipped.
func (a *Analyzer) checkOutliers(ctx context.Context, userID string, txs []domain.Transaction) (int, error) {
	byCategory := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		if tx.Amount.Sign() <= 0 {
			continue
		}
		category := tx.CategoryLabel()
		byCategory[category] = append(byCategory[category], tx)
	}

	raised := 0
	for category, group := range byCategory {
		if len(group) < 2 {
			continue
		}

		amounts := make([]float64, len(group))
		var sum float64
		for i, tx := range group {
			v, _ := tx.Amount.Float64()
			amounts[i] = v
			sum += v
		}
		mean := sum / float64(len(amounts))

		var variance float64
		for _, v := range amounts {
			d := v - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(len(amounts)-1))
		if std == 0 {
			continue
		}

		for i, tx := range group {
			z := (amounts[i] - mean) / std
			if z <= zScoreThreshold {
				continue
			}
			reason := fmt.Sprintf("$%s at %s is %.1f standard deviations above the %s average",
				tx.Amount.StringFixed(2), tx.Merchant(), z, category)
			if err := a.store.SaveAlert(ctx, userID, tx.ID, reason, store.SeverityHigh); err != nil {
				return raised, fmt.Errorf("save outlier alert: %w", err)
			}
			raised++
		}
	}
	return raised, nil
}
