package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/FergusFettes/openai-cd2-proxy/internal/nats"
	"github.com/FergusFettes/openai-cd2-proxy/internal/usage/internal/archiver"
)

// DriverFromName maps a DATABASE_DRIVER string to the sqlDriver enum.
func DriverFromName(name string) sqlDriver {
	if name == "postgres" {
		return DriverPostgres
	}
	return DriverSQLite
}

// Module wires the usage ledger's storage, optional async transport, and
// archival job behind a single facade, mirroring internal/identity's
// New-then-Start split.
type Module struct {
	sqlLedger *SQLLedger
	ledger    Ledger

	natsClient *nats.Client
	consumer   *Consumer
	archiver   *archiver.Archiver

	logger *slog.Logger
}

// New opens the relational ledger store and, if cfg.Async is set and a
// NATS URL is configured, wires the JetStream publish/consume split in
// front of it. Otherwise the admission front-end writes synchronously.
func New(ctx context.Context, cfg Config, db *sql.DB, driver sqlDriver, natsCfg nats.Config, archiverCfg archiver.Config, s3Client *s3.Client, logger *slog.Logger) (*Module, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "usage-module")

	sqlLedger := NewSQLLedger(db, driver)
	if err := sqlLedger.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure usage schema: %w", err)
	}

	m := &Module{sqlLedger: sqlLedger, ledger: sqlLedger, logger: logger}

	if !cfg.Async || natsCfg.URL == "" {
		m.archiver = archiver.New(sqlLedger, s3Client, archiverCfg, logger)
		return m, nil
	}

	natsClient, err := nats.NewClient(ctx, natsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS for usage ledger: %w", err)
	}

	streamMgr := nats.NewStreamManager(natsClient.JetStream(), natsCfg.Stream, logger)
	stream, err := streamMgr.EnsureStream(ctx)
	if err != nil {
		natsClient.Close()
		return nil, fmt.Errorf("ensure usage stream: %w", err)
	}
	jsConsumer, err := streamMgr.EnsureConsumer(ctx, stream, cfg.ConsumerName)
	if err != nil {
		natsClient.Close()
		return nil, fmt.Errorf("ensure usage consumer: %w", err)
	}

	m.natsClient = natsClient
	m.ledger = NewPublisher(natsClient.JetStream(), cfg.Subject, logger)
	m.consumer = NewConsumer(sqlLedger, cfg, logger)
	m.archiver = archiver.New(sqlLedger, s3Client, archiverCfg, logger)

	if err := m.consumer.Start(ctx, jsConsumer); err != nil {
		natsClient.Close()
		return nil, fmt.Errorf("start usage consumer: %w", err)
	}

	return m, nil
}

// Start launches the archival scheduled job. The consumer fetch loop, if
// any, is already running by the time New returns.
func (m *Module) Start(ctx context.Context) {
	m.archiver.Start(ctx)
}

// Stop halts the consumer and archiver, and closes the NATS connection
// if one was opened.
func (m *Module) Stop(ctx context.Context) {
	if m.consumer != nil {
		m.consumer.Stop(ctx)
	}
	m.archiver.Stop()
	if m.natsClient != nil {
		if err := m.natsClient.Drain(); err != nil {
			m.logger.Error("NATS drain error", "error", err)
		}
	}
}

// Ledger returns the port the admission front-end writes usage records
// through: a Publisher when async, the SQLLedger directly otherwise.
func (m *Module) Ledger() Ledger {
	return m.ledger
}

// Leaderboard reports aggregate usage for leaderboard-opted-in callers.
func (m *Module) Leaderboard(ctx context.Context) ([]Totals, error) {
	return m.sqlLedger.Leaderboard(ctx)
}
