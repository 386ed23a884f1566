// Package repo provides the relational implementation of the identity
// store's KeyStore port, with both a pure-Go sqlite driver and a
// PostgreSQL driver behind the same queries (placeholders aside).
package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/domain"
)

// Driver selects which SQL placeholder dialect to emit.
type Driver int

const (
	// DriverSQLite emits "?" placeholders (modernc.org/sqlite).
	DriverSQLite Driver = iota
	// DriverPostgres emits "$1"-style placeholders (github.com/lib/pq).
	DriverPostgres
)

// KeyRepository implements the KeyStore port over database/sql. It works
// unmodified against either driver; only placeholder syntax differs.
type KeyRepository struct {
	db     *sql.DB
	driver Driver
}

// NewKeyRepository creates a KeyRepository. Callers open db with the
// driver matching driver (DATABASE_DRIVER in configuration).
func NewKeyRepository(db *sql.DB, driver Driver) *KeyRepository {
	return &KeyRepository{db: db, driver: driver}
}

// EnsureSchema creates the api_keys and usage tables if absent. It uses
// driver-portable DDL so it runs unmodified against sqlite or postgres.
func (r *KeyRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			name TEXT PRIMARY KEY,
			api_key TEXT NOT NULL UNIQUE,
			leaderboard BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_api_key ON api_keys (api_key)`,
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
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *KeyRepository) ph(n int) string {
	if r.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// FindByToken retrieves an api_keys row by its plaintext token. Returns
// nil, nil if no matching row exists.
func (r *KeyRepository) FindByToken(ctx context.Context, token string) (*domain.APIKey, error) {
	query := fmt.Sprintf(`SELECT name, api_key, leaderboard FROM api_keys WHERE api_key = %s`, r.ph(1))

	var key domain.APIKey
	err := r.db.QueryRowContext(ctx, query, token).Scan(&key.Name, &key.Token, &key.Leaderboard)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query api key by token: %w", err)
	}
	return &key, nil
}

// Create inserts a new api_keys row.
func (r *KeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	query := fmt.Sprintf(`INSERT INTO api_keys (name, api_key, leaderboard) VALUES (%s, %s, %s)`,
		r.ph(1), r.ph(2), r.ph(3))
	_, err := r.db.ExecContext(ctx, query, key.Name, key.Token, key.Leaderboard)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// Rotate replaces the token for the named caller, matching the original
// CLI's update_key semantics (rotate-in-place, not revoke-then-reissue).
func (r *KeyRepository) Rotate(ctx context.Context, name, newToken string) error {
	query := fmt.Sprintf(`UPDATE api_keys SET api_key = %s WHERE name = %s`, r.ph(1), r.ph(2))
	result, err := r.db.ExecContext(ctx, query, newToken, name)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("api key not found: %s", name)
	}
	return nil
}

// Delete removes the named caller's key entirely.
func (r *KeyRepository) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM api_keys WHERE name = %s`, r.ph(1))
	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("api key not found: %s", name)
	}
	return nil
}

// List returns every api_keys row, ordered by name.
func (r *KeyRepository) List(ctx context.Context) ([]domain.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, api_key, leaderboard FROM api_keys ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.Name, &key.Token, &key.Leaderboard); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// AllTokens returns every active token, used to seed the bloom negative
// cache on startup and on each periodic refresh.
func (r *KeyRepository) AllTokens(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT api_key FROM api_keys`)
	if err != nil {
		return nil, fmt.Errorf("list api key tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan api key token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
