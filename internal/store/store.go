// Package store persists the small amount of service state: aggregator
// access tokens, per-category budgets, generated report history and spending
// alerts. Everything lives in a single embedded SQLite file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Budget setters.
const (
	SetByAI   = "ai"
	SetByUser = "user"
)

// Alert severities, matching what the analyzer writes.
const (
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

const schema = `
CREATE TABLE IF NOT EXISTS bank_items (
    user_id      TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    item_id      TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS budgets (
    user_id       TEXT NOT NULL,
    category      TEXT NOT NULL,
    monthly_limit REAL NOT NULL CHECK(monthly_limit >= 0),
    set_by        TEXT NOT NULL DEFAULT 'ai' CHECK(set_by IN ('ai','user')),
    updated_at    TEXT NOT NULL,
    PRIMARY KEY (user_id, category)
);
CREATE INDEX IF NOT EXISTS idx_budgets_user ON budgets(user_id);
CREATE TABLE IF NOT EXISTS reports (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     TEXT NOT NULL,
    report_type TEXT NOT NULL,
    report_text TEXT NOT NULL,
    stats_json  TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_user_date ON reports(user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS spending_alerts (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id        TEXT NOT NULL,
    transaction_id TEXT,
    reason         TEXT NOT NULL,
    severity       TEXT NOT NULL CHECK(severity IN ('HIGH','CRITICAL')),
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_user_date ON spending_alerts(user_id, created_at DESC);
`

// Store wraps the SQLite handle. It is safe for concurrent use; SQLite
// serializes writers and busy_timeout covers contention.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SaveToken stores or replaces a user's aggregator access token.
func (s *Store) SaveToken(ctx context.Context, userID, accessToken, itemID string) error {
	ts := now()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO bank_items (user_id, access_token, item_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            access_token = excluded.access_token,
            item_id      = excluded.item_id,
            updated_at   = excluded.updated_at`,
		userID, accessToken, itemID, ts, ts)
	if err != nil {
		return fmt.Errorf("store: save token for %s: %w", userID, err)
	}
	return nil
}

// LoadToken returns the stored access token and item ID, or ErrNotFound.
func (s *Store) LoadToken(ctx context.Context, userID string) (accessToken, itemID string, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT access_token, item_id FROM bank_items WHERE user_id = ?`, userID)
	if err := row.Scan(&accessToken, &itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("store: load token for %s: %w", userID, err)
	}
	return accessToken, itemID, nil
}

// DeleteToken disconnects a user's bank link.
func (s *Store) DeleteToken(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM bank_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("store: delete token for %s: %w", userID, err)
	}
	return nil
}

// Budget is one category's monthly limit and who set it.
type Budget struct {
	Limit decimal.Decimal `json:"limit"`
	SetBy string          `json:"set_by"`
}

// SaveBudget stores or replaces a monthly limit for one category.
func (s *Store) SaveBudget(ctx context.Context, userID, category string, limit decimal.Decimal, setBy string) error {
	if setBy != SetByAI && setBy != SetByUser {
		return fmt.Errorf("store: set_by must be %q or %q, got %q", SetByAI, SetByUser, setBy)
	}
	if limit.IsNegative() {
		return fmt.Errorf("store: monthly limit must be >= 0, got %s", limit)
	}
	lf, _ := limit.Float64()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO budgets (user_id, category, monthly_limit, set_by, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(user_id, category) DO UPDATE SET
            monthly_limit = excluded.monthly_limit,
            set_by        = excluded.set_by,
            updated_at    = excluded.updated_at`,
		userID, category, lf, setBy, now())
	if err != nil {
		return fmt.Errorf("store: save budget %s/%s: %w", userID, category, err)
	}
	return nil
}

// LoadBudgets returns all budgets for a user keyed by category. An empty map
// means no budgets are set.
func (s *Store) LoadBudgets(ctx context.Context, userID string) (map[string]Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, monthly_limit, set_by FROM budgets WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: load budgets for %s: %w", userID, err)
	}
	defer rows.Close()

	budgets := make(map[string]Budget)
	for rows.Next() {
		var category, setBy string
		var limit float64
		if err := rows.Scan(&category, &limit, &setBy); err != nil {
			return nil, fmt.Errorf("store: scan budget row: %w", err)
		}
		budgets[category] = Budget{Limit: decimal.NewFromFloat(limit), SetBy: setBy}
	}
	return budgets, rows.Err()
}

// Report is a persisted narrative with the statistics snapshot it was
// generated from.
type Report struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Report    string          `json:"report"`
	Stats     json.RawMessage `json:"stats"`
	CreatedAt string          `json:"created_at"`
}

// SaveReport appends a generated narrative to the report history.
func (s *Store) SaveReport(ctx context.Context, userID, reportType, reportText string, stats any) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("store: marshal stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO reports (user_id, report_type, report_text, stats_json, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		userID, reportType, reportText, string(statsJSON), now())
	if err != nil {
		return fmt.Errorf("store: save report for %s: %w", userID, err)
	}
	return nil
}

// ReportHistory returns up to limit most recent reports, newest first. A
// report whose stats column fails to parse is returned with empty stats
// rather than dropped.
func (s *Store) ReportHistory(ctx context.Context, userID string, limit int) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, report_type, report_text, stats_json, created_at
        FROM reports WHERE user_id = ?
        ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: report history for %s: %w", userID, err)
	}
	defer rows.Close()

	var history []Report
	for rows.Next() {
		var r Report
		var statsJSON string
		if err := rows.Scan(&r.ID, &r.Type, &r.Report, &statsJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan report row: %w", err)
		}
		if json.Valid([]byte(statsJSON)) {
			r.Stats = json.RawMessage(statsJSON)
		} else {
			r.Stats = json.RawMessage(`{}`)
		}
		history = append(history, r)
	}
	return history, rows.Err()
}

// Alert is one persisted spending alert.
type Alert struct {
	ID            int64  `json:"id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason"`
	Severity      string `json:"severity"`
	CreatedAt     string `json:"created_at"`
}

// SaveAlert records a spending alert. transactionID may be empty for alerts
// that concern a category rather than a single transaction.
func (s *Store) SaveAlert(ctx context.Context, userID, transactionID, reason, severity string) error {
	var txID sql.NullString
	if transactionID != "" {
		txID = sql.NullString{String: transactionID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO spending_alerts (user_id, transaction_id, reason, severity, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		userID, txID, reason, severity, now())
	if err != nil {
		return fmt.Errorf("store: save alert for %s: %w", userID, err)
	}
	return nil
}

// Alerts returns up to limit most recent alerts, newest first.
func (s *Store) Alerts(ctx context.Context, userID string, limit int) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, transaction_id, reason, severity, created_at
        FROM spending_alerts WHERE user_id = ?
        ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: alerts for %s: %w", userID, err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var txID sql.NullString
		if err := rows.Scan(&a.ID, &txID, &a.Reason, &a.Severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan alert row: %w", err)
		}
		a.TransactionID = txID.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
