package usage

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLLedger_RecordAndMatured(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLLedger(db, DriverSQLite)
	if err := ledger.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	if err := ledger.Record(context.Background(), Record{Caller: "alice", Time: 100, Tokens: 5, Kind: KindPrompt}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ledger.Record(context.Background(), Record{Caller: "alice", Time: 200, Tokens: 7, Kind: KindCompletion}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	matured, err := ledger.Matured(context.Background(), 150)
	if err != nil {
		t.Fatalf("Matured: %v", err)
	}
	if len(matured) != 1 || matured[0].Tokens != 5 {
		t.Fatalf("unexpected matured rows: %+v", matured)
	}

	if err := ledger.DeleteMatured(context.Background(), 150); err != nil {
		t.Fatalf("DeleteMatured: %v", err)
	}

	remaining, err := ledger.Matured(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Matured: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Tokens != 7 {
		t.Fatalf("expected only the completion row to remain, got %+v", remaining)
	}
}

func TestSQLLedger_Leaderboard(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLLedger(db, DriverSQLite)
	if err := ledger.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS api_keys (name TEXT PRIMARY KEY, api_key TEXT, leaderboard BOOLEAN)`); err != nil {
		t.Fatalf("create api_keys: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO api_keys (name, api_key, leaderboard) VALUES ('alice', 'tok', true)`); err != nil {
		t.Fatalf("seed api_keys: %v", err)
	}

	ledger.Record(context.Background(), Record{Caller: "alice", Time: 1, Tokens: 10, Kind: KindPrompt})
	ledger.Record(context.Background(), Record{Caller: "alice", Time: 2, Tokens: 20, Kind: KindCompletion})

	totals, err := ledger.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(totals) != 1 || totals[0].Caller != "alice" || totals[0].PromptTokens != 10 || totals[0].CompletionTokens != 20 {
		t.Fatalf("unexpected leaderboard: %+v", totals)
	}
}
