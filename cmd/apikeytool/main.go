// Command apikeytool manages identity-store API keys and reports usage
// totals directly against the relational store, without going through
// the HTTP admin surface. Subcommands mirror the original Typer CLI's
// add_key/update_key/delete_key/list_keys/usage commands.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v10"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity"
	"github.com/FergusFettes/openai-cd2-proxy/internal/usage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: apikeytool <add|rotate|revoke|list|usage> [flags]")
	}

	var identityCfg identity.Config
	if err := env.Parse(&identityCfg); err != nil {
		return err
	}

	sqlDriverName := "sqlite"
	if identityCfg.Driver == "postgres" {
		sqlDriverName = "postgres"
	}
	db, err := sql.Open(sqlDriverName, identityCfg.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	identityModule, err := identity.New(ctx, identityCfg, nil, logger)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}

	ledger := usage.NewSQLLedger(db, usage.DriverFromName(identityCfg.Driver))
	if err := ledger.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure usage schema: %w", err)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		return cmdAdd(ctx, identityModule, rest)
	case "rotate":
		return cmdRotate(ctx, identityModule, rest)
	case "revoke":
		return cmdRevoke(ctx, identityModule, rest)
	case "list":
		return cmdList(ctx, identityModule, rest)
	case "usage":
		return cmdUsage(ctx, ledger, rest)
	default:
		return fmt.Errorf("unknown subcommand %q", cmd)
	}
}

func cmdAdd(ctx context.Context, m *identity.Module, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "caller name (required)")
	token := fs.String("token", "", "token to assign; generated if empty")
	leaderboard := fs.Bool("leaderboard", false, "opt this caller into the usage leaderboard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	issued, err := m.IssueKey(ctx, *name, *token, *leaderboard)
	if err != nil {
		return err
	}
	fmt.Printf("name=%s token=%s\n", *name, issued)
	return nil
}

func cmdRotate(ctx context.Context, m *identity.Module, args []string) error {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	name := fs.String("name", "", "caller name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	newToken, err := m.RotateKey(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("name=%s token=%s\n", *name, newToken)
	return nil
}

func cmdRevoke(ctx context.Context, m *identity.Module, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	name := fs.String("name", "", "caller name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	return m.RevokeKey(ctx, *name)
}

func cmdList(ctx context.Context, m *identity.Module, args []string) error {
	keys, err := m.ListKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Printf("%s\tleaderboard=%t\n", k.Name, k.Leaderboard)
	}
	return nil
}

func cmdUsage(ctx context.Context, ledger *usage.SQLLedger, args []string) error {
	totals, err := ledger.Leaderboard(ctx)
	if err != nil {
		return err
	}
	for _, t := range totals {
		fmt.Printf("%s\tprompt=%d\tcompletion=%d\ttotal=%d\n",
			t.Caller, t.PromptTokens, t.CompletionTokens, t.PromptTokens+t.CompletionTokens)
	}
	return nil
}
