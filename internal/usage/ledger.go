package usage

import (
	"context"
	"database/sql"
	"fmt"
)

// Ledger is the port the admission front-end writes usage records
// through. An implementation may write synchronously to the relational
// store, or hand off to an async transport (see Publisher).
type Ledger interface {
	Record(ctx context.Context, rec Record) error
}

// sqlDriver mirrors identity/internal/repo's placeholder dialect switch,
// duplicated here rather than imported to keep usage independent of the
// identity module's internal package boundary.
type sqlDriver int

const (
	DriverSQLite sqlDriver = iota
	DriverPostgres
)

// SQLLedger writes usage records directly to the shared relational
// store's usage table. This is the synchronous path; on the decoupled
// path a Publisher sends records to NATS JetStream and a Consumer drains
// them into this same writer.
type SQLLedger struct {
	db     *sql.DB
	driver sqlDriver
}

// NewSQLLedger creates a SQLLedger. driver selects placeholder syntax:
// DriverSQLite ("?") or DriverPostgres ("$1").
func NewSQLLedger(db *sql.DB, driver sqlDriver) *SQLLedger {
	return &SQLLedger{db: db, driver: driver}
}

func (l *SQLLedger) placeholder(n int) string {
	if l.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// EnsureSchema creates the usage table if absent.
func (l *SQLLedger) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage (
			name TEXT NOT NULL,
			time DOUBLE PRECISION NOT NULL,
			tokens INTEGER NOT NULL,
			type TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_name ON usage (name)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_type ON usage (type)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure usage schema: %w", err)
		}
	}
	return nil
}

// Record appends one row to the usage table.
func (l *SQLLedger) Record(ctx context.Context, rec Record) error {
	query := fmt.Sprintf(
		`INSERT INTO usage (name, time, tokens, type) VALUES (%s, %s, %s, %s)`,
		l.placeholder(1), l.placeholder(2), l.placeholder(3), l.placeholder(4),
	)
	_, err := l.db.ExecContext(ctx, query, rec.Caller, rec.Time, rec.Tokens, string(rec.Kind))
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Totals holds one caller's aggregate token counts. It is used by the leaderboard report and the apikeytool
// CLI's usage command.
type Totals struct {
	Caller           string
	PromptTokens     int64
	CompletionTokens int64
}

// Leaderboard returns aggregate token totals for every caller flagged
// leaderboard=true in api_keys, ordered by total tokens descending.
func (l *SQLLedger) Leaderboard(ctx context.Context) ([]Totals, error) {
	query := `
		SELECT u.name,
			COALESCE(SUM(CASE WHEN u.type = 'prompt' THEN u.tokens ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN u.type = 'completion' THEN u.tokens ELSE 0 END), 0)
		FROM usage u
		JOIN api_keys k ON k.name = u.name
		WHERE k.leaderboard = true
		GROUP BY u.name
		ORDER BY (SUM(u.tokens)) DESC
	`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []Totals
	for rows.Next() {
		var t Totals
		if err := rows.Scan(&t.Caller, &t.PromptTokens, &t.CompletionTokens); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Matured returns every usage row with time < beforeUnix. Used by the
// archiver to select rows eligible for cold storage.
func (l *SQLLedger) Matured(ctx context.Context, beforeUnix float64) ([]Record, error) {
	query := fmt.Sprintf(`SELECT name, time, tokens, type FROM usage WHERE time < %s ORDER BY time`, l.placeholder(1))
	rows, err := l.db.QueryContext(ctx, query, beforeUnix)
	if err != nil {
		return nil, fmt.Errorf("query matured usage: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var kind string
		if err := rows.Scan(&r.Caller, &r.Time, &r.Tokens, &kind); err != nil {
			return nil, fmt.Errorf("scan matured usage row: %w", err)
		}
		r.Kind = Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteMatured removes every row with time < beforeUnix, called by the
// archiver after a successful cold-storage write.
func (l *SQLLedger) DeleteMatured(ctx context.Context, beforeUnix float64) error {
	query := fmt.Sprintf(`DELETE FROM usage WHERE time < %s`, l.placeholder(1))
	_, err := l.db.ExecContext(ctx, query, beforeUnix)
	if err != nil {
		return fmt.Errorf("delete matured usage: %w", err)
	}
	return nil
}
