package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domuslabs/domus/internal/advisor"
	"github.com/domuslabs/domus/internal/api/middleware"
	"github.com/domuslabs/domus/internal/bank"
	"github.com/domuslabs/domus/internal/store"
)

// stubGenerator returns a canned answer so no model backend is needed.
type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

type fixture struct {
	store    *store.Store
	bank     *Bank
	insights *InsightsHandler
	budgets  *BudgetsHandler
	link     *LinkHandler
}

func newFixture(t *testing.T, gen advisor.Generator) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := zerolog.Nop()
	sim := bank.NewSimulator(40)
	b := NewBank(st, nil, sim, true)
	adv := advisor.New(gen, log)

	return &fixture{
		store:    st,
		bank:     b,
		insights: NewInsightsHandler(b, st, adv, sim, log),
		budgets:  NewBudgetsHandler(b, st, adv, log),
		link:     NewLinkHandler(st, nil, true, log),
	}
}

func (f *fixture) linkUser(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.store.SaveToken(context.Background(), userID, bank.FakeAccessToken, bank.FakeItemID))
}

// liveInsights builds an insights handler outside simulation mode, where an
// unlinked user is an error instead of a simulator fallthrough.
func (f *fixture) liveInsights() *InsightsHandler {
	sim := bank.NewSimulator(40)
	return NewInsightsHandler(NewBank(f.store, nil, sim, false), f.store, nil, sim, zerolog.Nop())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) middleware.Envelope {
	t.Helper()
	var env middleware.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func dataMap(t *testing.T, env middleware.Envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %T", env.Data)
	return m
}

func TestTransactionsRequiresLinkOutsideSimulation(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	live := f.liveInsights()

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rec := httptest.NewRecorder()
	live.Transactions(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "No bank account linked")
}

func TestTransactionsUnlinkedUserInSimulationGetsData(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	// No token stored; simulation mode serves generated data anyway.
	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rec := httptest.NewRecorder()
	f.insights.Transactions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.NotEmpty(t, data["transactions"])
}

func TestTransactionsReturnsStats(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodGet, "/transactions?days=30", nil)
	rec := httptest.NewRecorder()
	f.insights.Transactions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.NotEmpty(t, data["transactions"])
	assert.NotNil(t, data["stats"])
	assert.Equal(t, float64(40), data["total_transactions"])
}

func TestTransactionsPagination(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodGet, "/transactions?page_size=15&offset=30", nil)
	rec := httptest.NewRecorder()
	f.insights.Transactions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	page, ok := data["transactions"].([]any)
	require.True(t, ok)
	assert.Len(t, page, 10) // 40 total, offset 30
	assert.Equal(t, float64(40), data["total_transactions"])
	assert.Equal(t, float64(30), data["offset"])
	assert.Equal(t, float64(15), data["page_size"])
	assert.Equal(t, false, data["has_more"])

	req = httptest.NewRequest(http.MethodGet, "/transactions?page_size=15", nil)
	rec = httptest.NewRecorder()
	f.insights.Transactions(rec, req)
	data = dataMap(t, decode(t, rec))
	assert.Equal(t, true, data["has_more"])

	for _, q := range []string{"page_size=0", "page_size=501", "offset=-1"} {
		req = httptest.NewRequest(http.MethodGet, "/transactions?"+q, nil)
		rec = httptest.NewRecorder()
		f.insights.Transactions(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestTransactionsRejectsBadDays(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	for _, q := range []string{"days=0", "days=731", "days=9999", "days=soon"} {
		req := httptest.NewRequest(http.MethodGet, "/transactions?"+q, nil)
		rec := httptest.NewRecorder()
		f.insights.Transactions(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions?days=730", nil)
	rec := httptest.NewRecorder()
	f.insights.Transactions(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReportGeneratesAndPersists(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "You spent money."})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	rec := httptest.NewRecorder()
	f.insights.Report(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, "You spent money.", data["report"])
	assert.NotNil(t, data["stats"])

	history, err := f.store.ReportHistory(context.Background(), "default_user", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "report", history[0].Type)
}

func TestAlertUsesFallbackOnGeneratorError(t *testing.T) {
	f := newFixture(t, &stubGenerator{err: assert.AnError})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodGet, "/alert", nil)
	rec := httptest.NewRecorder()
	f.insights.Alert(rec, req)

	// Generator failures degrade to an apology, not an HTTP error.
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecurringAndAnomalies(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodGet, "/recurring?days=90", nil)
	rec := httptest.NewRecorder()
	f.insights.Recurring(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/anomalies?threshold=1.5", nil)
	rec = httptest.NewRecorder()
	f.insights.Anomalies(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, 1.5, data["threshold"])
}

func TestAnomaliesRejectsBadThreshold(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodGet, "/anomalies?threshold=-2", nil)
	rec := httptest.NewRecorder()
	f.insights.Anomalies(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRequiresMessage(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.insights.Chat(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatAnswers(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "Spend less on coffee."})
	f.linkUser(t, "default_user")

	body := strings.NewReader(`{"message":"where does my money go?"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	rec := httptest.NewRecorder()
	f.insights.Chat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, "Spend less on coffee.", data["response"])
}

func TestSimulateLinksUserWithFakeToken(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	body := strings.NewReader(`{"days":14,"num_transactions":25}`)
	req := httptest.NewRequest(http.MethodPost, "/simulate", body)
	req.Header.Set("X-User-Id", "alice")
	rec := httptest.NewRecorder()
	f.insights.Simulate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, "Simulation data generated", data["message"])
	stats, ok := data["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(25), stats["transactions"])
	assert.Equal(t, float64(3), stats["accounts"])

	accessToken, itemID, err := f.store.LoadToken(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, bank.FakeAccessToken, accessToken)
	assert.Equal(t, bank.FakeItemID, itemID)
}

func TestSimulateDefaultsAndValidation(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	// Empty body takes the defaults.
	req := httptest.NewRequest(http.MethodPost, "/simulate", nil)
	rec := httptest.NewRecorder()
	f.insights.Simulate(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	stats, ok := data["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(90), stats["transactions"])

	req = httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(`{"num_transactions":0}`))
	rec = httptest.NewRecorder()
	f.insights.Simulate(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExchangeTokenSimulation(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	body := strings.NewReader(`{"public_token":"` + bank.FakePublicToken + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/exchange_token", body)
	req.Header.Set("X-User-Id", "alice")
	rec := httptest.NewRecorder()
	f.link.ExchangeToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, bank.FakeItemID, data["item_id"])

	accessToken, itemID, err := f.store.LoadToken(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, bank.FakeAccessToken, accessToken)
	assert.Equal(t, bank.FakeItemID, itemID)
}

func TestExchangeTokenValidation(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/exchange_token", strings.NewReader(`{"public_token":""}`))
	rec := httptest.NewRecorder()
	f.link.ExchangeToken(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLinkTokenSimulation(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/create_link_token", nil)
	rec := httptest.NewRecorder()
	f.link.CreateLinkToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, bank.FakeLinkToken, data["link_token"])
}

func TestResetForgetsLink(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	rec := httptest.NewRecorder()
	f.link.Reset(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, _, err := f.store.LoadToken(context.Background(), "default_user")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Outside simulation mode the unlinked user is back to square one.
	req = httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rec = httptest.NewRecorder()
	f.liveInsights().Transactions(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBudgetSetAndList(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	body := strings.NewReader(`{"category":"Food","limit":400}`)
	req := httptest.NewRequest(http.MethodPost, "/budgets/set", body)
	rec := httptest.NewRecorder()
	f.budgets.Set(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/budgets", nil)
	rec = httptest.NewRecorder()
	f.budgets.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	data := dataMap(t, decode(t, rec))
	assert.Equal(t, float64(1), data["count"])
	budgets, ok := data["budgets"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, budgets, "Food")
}

func TestBudgetSetValidation(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})

	tests := []struct {
		name string
		body string
	}{
		{"missing category", `{"limit":100}`},
		{"zero limit", `{"category":"Food","limit":0}`},
		{"negative limit", `{"category":"Food","limit":-5}`},
		{"malformed", `not json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/budgets/set", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			f.budgets.Set(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestBudgetAutoSavesRecommendations(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: `{"Food and Drink": 400, "Travel": 150}`})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodPost, "/budgets/auto", nil)
	rec := httptest.NewRecorder()
	f.budgets.Auto(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, float64(2), data["count"])
	assert.Equal(t, store.SetByAI, data["set_by"])
	assert.Empty(t, data["skipped"])

	saved, err := f.store.LoadBudgets(context.Background(), "default_user")
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	assert.Equal(t, store.SetByAI, saved["Travel"].SetBy)
}

func TestBudgetAutoProtectsUserBudgets(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: `{"Food and Drink": 400, "Travel": 150}`})
	f.linkUser(t, "default_user")
	ctx := context.Background()

	require.NoError(t, f.store.SaveBudget(ctx, "default_user", "Food and Drink", decimal.NewFromInt(900), store.SetByUser))

	req := httptest.NewRequest(http.MethodPost, "/budgets/auto", nil)
	rec := httptest.NewRecorder()
	f.budgets.Auto(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Equal(t, float64(1), data["count"])
	skipped, ok := data["skipped"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Food and Drink"}, skipped)

	saved, err := f.store.LoadBudgets(ctx, "default_user")
	require.NoError(t, err)
	assert.Equal(t, store.SetByUser, saved["Food and Drink"].SetBy)
	assert.True(t, saved["Food and Drink"].Limit.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, store.SetByAI, saved["Travel"].SetBy)
}

func TestBudgetAutoOverwriteFlag(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: `{"Food and Drink": 400}`})
	f.linkUser(t, "default_user")
	ctx := context.Background()

	require.NoError(t, f.store.SaveBudget(ctx, "default_user", "Food and Drink", decimal.NewFromInt(900), store.SetByUser))

	body := strings.NewReader(`{"overwrite_user_budgets":true}`)
	req := httptest.NewRequest(http.MethodPost, "/budgets/auto", body)
	rec := httptest.NewRecorder()
	f.budgets.Auto(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decode(t, rec))
	assert.Empty(t, data["skipped"])

	saved, err := f.store.LoadBudgets(ctx, "default_user")
	require.NoError(t, err)
	assert.Equal(t, store.SetByAI, saved["Food and Drink"].SetBy)
	assert.True(t, saved["Food and Drink"].Limit.Equal(decimal.NewFromInt(400)))
}

func TestReportEmptyPeriodIsBadRequest(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "default_user")

	emptySim := bank.NewSimulator(0)
	insights := NewInsightsHandler(NewBank(f.store, nil, emptySim, true), f.store,
		advisor.New(&stubGenerator{response: "ok"}, zerolog.Nop()), emptySim, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	rec := httptest.NewRecorder()
	insights.Report(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Contains(t, env.Error, "No transaction data available")
}

func TestBudgetAutoRejectsUnusableAnswer(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "I cannot help with that."})
	f.linkUser(t, "default_user")

	req := httptest.NewRequest(http.MethodPost, "/budgets/auto", nil)
	rec := httptest.NewRecorder()
	f.budgets.Auto(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUserIsolation(t *testing.T) {
	f := newFixture(t, &stubGenerator{response: "ok"})
	f.linkUser(t, "alice")
	live := f.liveInsights()

	// bob has no link even though alice does.
	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set("X-User-Id", "bob")
	rec := httptest.NewRecorder()
	live.Transactions(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set("X-User-Id", "alice")
	rec = httptest.NewRecorder()
	live.Transactions(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
