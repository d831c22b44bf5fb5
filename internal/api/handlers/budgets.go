package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/domuslabs/domus/internal/advisor"
	"github.com/domuslabs/domus/internal/analytics"
	"github.com/domuslabs/domus/internal/api/middleware"
	"github.com/domuslabs/domus/internal/store"
)

// BudgetsHandler manages per-category monthly limits.
type BudgetsHandler struct {
	bank    *Bank
	store   *store.Store
	advisor *advisor.Advisor
	log     zerolog.Logger
}

func NewBudgetsHandler(b *Bank, st *store.Store, adv *advisor.Advisor, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{bank: b, store: st, advisor: adv, log: log}
}

// List handles GET /budgets
func (h *BudgetsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	budgets, err := h.store.LoadBudgets(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load budgets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load budgets")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"budgets": budgets,
		"count":   len(budgets),
	})
}

// Set handles POST /budgets/set
func (h *BudgetsHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req struct {
		Category string          `json:"category"`
		Limit    decimal.Decimal `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	category := advisor.SanitizeText(req.Category, 100)
	if category == "" {
		middleware.WriteError(w, http.StatusBadRequest, "category is required")
		return
	}
	if req.Limit.Sign() <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive number")
		return
	}

	if err := h.store.SaveBudget(r.Context(), userID, category, req.Limit, store.SetByUser); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to save budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save budget")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"limit":    req.Limit.Round(2),
		"set_by":   store.SetByUser,
	})
}

// Auto handles POST /budgets/auto. The advisor recommends limits from real
// spending; whatever parses cleanly is saved. Budgets the user set by hand
// are never overwritten unless the request says so explicitly.
func (h *BudgetsHandler) Auto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(r)

	var req struct {
		Days                 *int `json:"days"`
		OverwriteUserBudgets bool `json:"overwrite_user_budgets"`
	}
	// An empty body means the defaults.
	_ = json.NewDecoder(r.Body).Decode(&req)

	days, err := intBody(req.Days, "days", defaultPeriodDays, 1, maxPeriodDays)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.bank.Transactions(ctx, userID, days)
	if err != nil {
		writeBankError(w, h.log, err)
		return
	}

	stats := analytics.Compute(txs)
	if stats == nil {
		middleware.WriteError(w, http.StatusBadRequest, "No transaction data available")
		return
	}

	recommended := h.advisor.BudgetRecommendations(ctx, stats)
	if len(recommended) == 0 {
		middleware.WriteError(w, http.StatusBadGateway, "Could not generate budget recommendations")
		return
	}

	existing, err := h.store.LoadBudgets(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load budgets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load budgets")
		return
	}

	saved := make(map[string]decimal.Decimal, len(recommended))
	skipped := []string{}
	for category, limit := range recommended {
		if existing[category].SetBy == store.SetByUser && !req.OverwriteUserBudgets {
			skipped = append(skipped, category)
			continue
		}
		if err := h.store.SaveBudget(ctx, userID, category, limit, store.SetByAI); err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Str("category", category).Msg("Failed to save recommended budget")
			continue
		}
		saved[category] = limit
	}
	sort.Strings(skipped)

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"budgets":     saved,
		"skipped":     skipped,
		"count":       len(saved),
		"set_by":      store.SetByAI,
		"recommended": recommended,
	})
}
