package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/domuslabs/domus/internal/advisor"
	"github.com/domuslabs/domus/internal/analytics"
	"github.com/domuslabs/domus/internal/api/middleware"
	"github.com/domuslabs/domus/internal/bank"
	"github.com/domuslabs/domus/internal/store"
)

// InsightsHandler serves transaction data and everything computed from it.
type InsightsHandler struct {
	bank    *Bank
	store   *store.Store
	advisor *advisor.Advisor
	sim     *bank.Simulator
	log     zerolog.Logger
}

func NewInsightsHandler(b *Bank, st *store.Store, adv *advisor.Advisor, sim *bank.Simulator, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{bank: b, store: st, advisor: adv, sim: sim, log: log}
}

// Accounts handles GET /accounts
func (h *InsightsHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	accounts, err := h.bank.Accounts(r.Context(), userID)
	if err != nil {
		writeBankError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// Transactions handles GET /transactions
func (h *InsightsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	days, err := intParam(r, "days", defaultPeriodDays, 1, maxPeriodDays)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := intParam(r, "page_size", 20, 1, 500)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0, 0, 100_000)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.bank.Transactions(r.Context(), userID, days)
	if err != nil {
		writeBankError(w, h.log, err)
		return
	}

	// Stats cover the whole window; only the transaction list is paged.
	page := txs[min(offset, len(txs)):min(offset+pageSize, len(txs))]
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"transactions":       page,
		"total_transactions": len(txs),
		"offset":             offset,
		"page_size":          pageSize,
		"has_more":           offset+pageSize < len(txs),
		"stats":              analytics.Compute(txs),
	})
}

// Report handles GET /report
func (h *InsightsHandler) Report(w http.ResponseWriter, r *http.Request) {
	h.narrative(w, r, "report")
}

// Alert handles GET /alert
func (h *InsightsHandler) Alert(w http.ResponseWriter, r *http.Request) {
	h.narrative(w, r, "alert")
}

// narrative runs the shared fetch-compute-generate-persist path behind
// /report and /alert.
func (h *InsightsHandler) narrative(w http.ResponseWriter, r *http.Request, kind string) {
	ctx := r.Context()
	userID := middleware.UserID(r)

	days, err := intParam(r, "days", defaultPeriodDays, 1, maxPeriodDays)
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
		middleware.WriteError(w, http.StatusBadRequest, "No transaction data available for the requested period")
		return
	}

	budgets, err := h.store.LoadBudgets(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load budgets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load budgets")
		return
	}

	var text string
	switch kind {
	case "alert":
		text = h.advisor.Alert(ctx, stats, budgets)
	default:
		text = h.advisor.SpendingReport(ctx, stats, budgets, days)
	}

	if err := h.store.SaveReport(ctx, userID, kind, text, stats); err != nil {
		// The user still gets their report, history just has a gap.
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to persist report")
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		kind:    text,
		"stats": stats,
	})
}

// Recurring handles GET /recurring
func (h *InsightsHandler) Recurring(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	days, err := intParam(r, "days", 90, 1, maxPeriodDays)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.bank.Transactions(r.Context(), userID, days)
	if err != nil {
		writeBankError(w, h.log, err)
		return
	}

	charges := analytics.DetectRecurring(txs)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"recurring": charges,
		"count":     len(charges),
	})
}

// Anomalies handles GET /anomalies
func (h *InsightsHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	days, err := intParam(r, "days", defaultPeriodDays, 1, maxPeriodDays)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	threshold, err := floatParam(r, "threshold", analytics.DefaultAnomalyThreshold, 100)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.bank.Transactions(r.Context(), userID, days)
	if err != nil {
		writeBankError(w, h.log, err)
		return
	}

	anomalies := analytics.DetectAnomalies(txs, threshold)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"anomalies": anomalies,
		"count":     len(anomalies),
		"threshold": threshold,
	})
}

// Chat handles POST /chat
func (h *InsightsHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(r)

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		middleware.WriteError(w, http.StatusBadRequest, "message is required")
		return
	}

	txs, err := h.bank.Transactions(ctx, userID, defaultPeriodDays)
	if err != nil {
		writeBankError(w, h.log, err)
		return
	}

	stats := analytics.Compute(txs)
	if stats == nil {
		middleware.WriteError(w, http.StatusBadRequest, "No transaction data available")
		return
	}

	budgets, err := h.store.LoadBudgets(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load budgets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load budgets")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"response": h.advisor.Chat(ctx, req.Message, stats, budgets),
	})
}

// History handles GET /history
func (h *InsightsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	limit, err := intParam(r, "limit", 5, 1, 50)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports, err := h.store.ReportHistory(r.Context(), userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load report history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load report history")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// Simulate handles POST /simulate. It stores the fake sentinel token so the
// user counts as linked, then generates a demo transaction window. Every
// subsequent endpoint serves simulated data for that user.
func (h *InsightsHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req struct {
		Days            *int `json:"days"`
		NumTransactions *int `json:"num_transactions"`
	}
	// An empty body means the defaults.
	_ = json.NewDecoder(r.Body).Decode(&req)

	days, err := intBody(req.Days, "days", defaultPeriodDays, 1, maxPeriodDays)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := intBody(req.NumTransactions, "num_transactions", 90, 1, 500)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SaveToken(r.Context(), userID, bank.FakeAccessToken, bank.FakeItemID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to store access token")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store access token")
		return
	}

	txs := h.sim.Generate(days, count)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Simulation data generated",
		"stats": map[string]int{
			"accounts":     3,
			"transactions": len(txs),
		},
	})
}
