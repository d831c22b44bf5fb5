package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/domuslabs/domus/internal/analytics"
	"github.com/domuslabs/domus/internal/store"
)

const (
	maxCategoryLen    = 100
	maxChatMessageLen = 1000

	// fallbackMessage is returned when the model backend errors; the user
	// gets an apology rather than a 500.
	fallbackMessage = "AI temporarily unavailable. Please try again."
)

var maxBudgetValue = decimal.NewFromInt(100_000)

// Advisor builds prompts from computed statistics and budgets and hands them
// to the injected Generator.
type Advisor struct {
	gen Generator
	log zerolog.Logger
}

// New creates an Advisor on top of any Generator.
func New(gen Generator, log zerolog.Logger) *Advisor {
	return &Advisor{gen: gen, log: log}
}

// generate calls the backend, degrading to a fixed apology on failure.
func (a *Advisor) generate(ctx context.Context, prompt string) string {
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		a.log.Error().Err(err).Msg("Narrative generation failed")
		return fallbackMessage
	}
	return text
}

func formatCategories(stats *analytics.Statistics) string {
	var b strings.Builder
	for _, c := range stats.CategoryBreakdown {
		fmt.Fprintf(&b, "  - %s: $%s\n", c.Category, c.Amount.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMerchants(stats *analytics.Statistics) string {
	var b strings.Builder
	for _, m := range stats.TopMerchants {
		fmt.Fprintf(&b, "  - %s: %d visits, $%s total\n", m.Name, m.Visits, m.Total.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBudgets(budgets map[string]store.Budget) string {
	if len(budgets) == 0 {
		return "  No budgets set yet."
	}
	categories := make([]string, 0, len(budgets))
	for c := range budgets {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var b strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&b, "  - %s: $%s/month (set by %s)\n", c, budgets[c].Limit.StringFixed(2), budgets[c].SetBy)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SpendingReport produces the full narrative report for a period.
func (a *Advisor) SpendingReport(ctx context.Context, stats *analytics.Statistics, budgets map[string]store.Budget, periodDays int) string {
	var b strings.Builder
	b.WriteString("You are Domus, a personal financial advisor writing a report directly to the user.\n")
	b.WriteString("Be warm, direct, and specific. Use actual dollar amounts from their data.\n")
	b.WriteString("Do NOT give generic advice -- reference THEIR specific spending habits.\n")
	b.WriteString("Use clear sections with emoji headers. Keep it under 400 words.\n\n")
	fmt.Fprintf(&b, "THEIR SPENDING DATA -- last %d days:\n", periodDays)
	b.WriteString("SUMMARY:\n")
	fmt.Fprintf(&b, "  - Total spent: $%s\n", stats.TotalSpent.StringFixed(2))
	fmt.Fprintf(&b, "  - Total income recorded: $%s\n", stats.TotalIncome.StringFixed(2))
	fmt.Fprintf(&b, "  - Net cash flow: $%s\n", stats.NetCashFlow.StringFixed(2))
	fmt.Fprintf(&b, "  - Number of transactions: %d\n", stats.TransactionCount)
	fmt.Fprintf(&b, "  - Average daily spend: $%s\n", stats.AvgDailySpend.StringFixed(2))
	fmt.Fprintf(&b, "  - Biggest spending day: %s\n", stats.BiggestExpenseDay)
	fmt.Fprintf(&b, "SPENDING BY CATEGORY:\n%s\n", formatCategories(stats))
	fmt.Fprintf(&b, "TOP MERCHANTS VISITED:\n%s\n", formatMerchants(stats))
	fmt.Fprintf(&b, "CURRENT BUDGETS:\n%s\n", formatBudgets(budgets))
	b.WriteString("Write a report that:\n")
	b.WriteString("1. Opens with a one-line verdict on their financial health\n")
	b.WriteString("2. Names exactly what they spent the most on and whether that is a concern\n")
	b.WriteString("3. Calls out any categories where they blew their budget\n")
	b.WriteString("4. Gives 3 specific, actionable things they should do THIS WEEK\n")
	b.WriteString("5. Ends with a short encouraging note")

	return a.generate(ctx, b.String())
}

// Overage is one category whose spend exceeds its monthly limit.
type Overage struct {
	Category string          `json:"category"`
	Spent    decimal.Decimal `json:"spent"`
	Limit    decimal.Decimal `json:"limit"`
	OverBy   decimal.Decimal `json:"over_by"`
}

// Overages lists the categories whose signed spend exceeds their budget.
func Overages(stats *analytics.Statistics, budgets map[string]store.Budget) []Overage {
	var over []Overage
	for _, c := range stats.CategoryBreakdown {
		budget, ok := budgets[c.Category]
		if !ok || !c.Amount.GreaterThan(budget.Limit) {
			continue
		}
		over = append(over, Overage{
			Category: c.Category,
			Spent:    c.Amount.Round(2),
			Limit:    budget.Limit.Round(2),
			OverBy:   c.Amount.Sub(budget.Limit).Round(2),
		})
	}
	return over
}

// Alert produces a short overspend alert, or an all-clear message when
// nothing is over budget and cash flow is non-negative.
func (a *Advisor) Alert(ctx context.Context, stats *analytics.Statistics, budgets map[string]store.Budget) string {
	over := Overages(stats, budgets)
	if len(over) == 0 && !stats.NetCashFlow.IsNegative() {
		return "All budgets on track! You're managing your money well this period."
	}

	overText := "  No individual category overages."
	if len(over) > 0 {
		var lines []string
		for _, o := range over {
			lines = append(lines, fmt.Sprintf("  - %s: spent $%s vs limit $%s (over by $%s)",
				o.Category, o.Spent.StringFixed(2), o.Limit.StringFixed(2), o.OverBy.StringFixed(2)))
		}
		overText = strings.Join(lines, "\n")
	}

	cashNote := "positive"
	if stats.NetCashFlow.IsNegative() {
		cashNote = "NEGATIVE -- spending more than income recorded!"
	}

	var b strings.Builder
	b.WriteString("You are Domus sending an urgent but caring spending alert to a user.\n")
	b.WriteString("Be specific, direct, and helpful. Under 150 words. Use emoji.\n")
	fmt.Fprintf(&b, "OVERSPENT CATEGORIES:\n%s\n", overText)
	fmt.Fprintf(&b, "NET CASH FLOW: $%s (%s)\n", stats.NetCashFlow.StringFixed(2), cashNote)
	b.WriteString("Write a short alert that:\n")
	b.WriteString("1. Directly names which categories they overspent in and by how much\n")
	b.WriteString("2. If overall cash flow is negative, flag that clearly\n")
	b.WriteString("3. Gives one concrete action they can take TODAY to fix it")

	return a.generate(ctx, b.String())
}

var (
	codeFence  = regexp.MustCompile("```[a-z]*")
	jsonObject = regexp.MustCompile(`(?s)\{[^{}]+\}`)
)

// BudgetRecommendations asks the model for per-category monthly limits and
// parses its strict-JSON answer defensively. An empty map means the model
// produced nothing usable.
func (a *Advisor) BudgetRecommendations(ctx context.Context, stats *analytics.Statistics) map[string]decimal.Decimal {
	var b strings.Builder
	b.WriteString("You are a personal AI financial advisor.\n")
	b.WriteString("Based on this user's real spending, recommend sensible monthly budgets for each category.\n")
	fmt.Fprintf(&b, "Their spending:\n%s\n", formatCategories(stats))
	fmt.Fprintf(&b, "Average daily spend: $%s\n", stats.AvgDailySpend.StringFixed(2))
	fmt.Fprintf(&b, "Net cash flow: $%s\n", stats.NetCashFlow.StringFixed(2))
	b.WriteString("Rules:\n")
	b.WriteString("- If net cash flow is negative (overspending), cut budgets 10-20% below current spend\n")
	b.WriteString("- If net cash flow is positive (saving), set budgets close to current spend\n")
	b.WriteString("- Only include categories from the data above\n")
	b.WriteString("- Never cut any budget by more than 30% at once\n")
	b.WriteString("- All values must be positive numbers\n")
	b.WriteString("Respond ONLY with valid JSON -- no explanation, no markdown, no code fences.\n")
	b.WriteString(`Example: {"Food and Drink": 400, "Transportation": 150}`)

	raw := a.generate(ctx, b.String())
	return a.parseBudgetJSON(raw)
}

func (a *Advisor) parseBudgetJSON(raw string) map[string]decimal.Decimal {
	clean := strings.TrimSpace(strings.ReplaceAll(codeFence.ReplaceAllString(raw, ""), "```", ""))
	match := jsonObject.FindString(clean)
	if match == "" {
		a.log.Warn().Str("raw", truncate(raw, 200)).Msg("Budget response had no JSON object")
		return map[string]decimal.Decimal{}
	}

	var parsed map[string]json.Number
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		a.log.Warn().Err(err).Str("raw", truncate(raw, 200)).Msg("Budget response JSON did not parse")
		return map[string]decimal.Decimal{}
	}

	result := make(map[string]decimal.Decimal, len(parsed))
	for category, value := range parsed {
		clean := SanitizeText(category, maxCategoryLen)
		if clean == "" {
			continue
		}
		amount, err := decimal.NewFromString(value.String())
		if err != nil {
			a.log.Warn().Str("category", clean).Str("value", value.String()).Msg("Non-numeric budget value")
			continue
		}
		if amount.IsNegative() || amount.GreaterThan(maxBudgetValue) {
			a.log.Warn().Str("category", clean).Str("value", amount.String()).Msg("Out-of-range budget value")
			continue
		}
		result[clean] = amount.Round(2)
	}
	return result
}

// Chat answers a free-form question grounded in the user's data. The message
// is sanitized and screened for prompt injection first.
func (a *Advisor) Chat(ctx context.Context, message string, stats *analytics.Statistics, budgets map[string]store.Budget) string {
	safe := GuardPromptInjection(SanitizeText(message, maxChatMessageLen))

	var b strings.Builder
	b.WriteString("You are Domus, a friendly personal financial advisor.\n")
	b.WriteString("Answer the user's question using their actual spending data below.\n")
	b.WriteString("Be conversational and specific. Under 200 words.\n")
	b.WriteString("Only discuss topics related to personal finance and the data provided.\n")
	b.WriteString("USER'S DATA:\n")
	fmt.Fprintf(&b, "- Total spent: $%s\n", stats.TotalSpent.StringFixed(2))
	fmt.Fprintf(&b, "- Net cash flow: $%s\n", stats.NetCashFlow.StringFixed(2))
	fmt.Fprintf(&b, "- Avg daily spend: $%s\n", stats.AvgDailySpend.StringFixed(2))
	fmt.Fprintf(&b, "- Top category: %s ($%s)\n", stats.TopCategory, stats.TopCategoryAmount.StringFixed(2))
	fmt.Fprintf(&b, "SPENDING BY CATEGORY:\n%s\n", formatCategories(stats))
	fmt.Fprintf(&b, "THEIR BUDGETS:\n%s\n", formatBudgets(budgets))
	fmt.Fprintf(&b, "USER'S QUESTION: %s", safe)

	return a.generate(ctx, b.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
