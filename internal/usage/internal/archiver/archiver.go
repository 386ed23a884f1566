// Package archiver periodically moves matured usage-ledger rows out of
// the hot relational table into Parquet files on S3-compatible cold
// storage, adapted from the warehouse sink's Parquet/S3 write path.
package archiver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/FergusFettes/openai-cd2-proxy/internal/usage"
)

// Config configures the archiver.
type Config struct {
	// Enabled controls whether archival runs at all.
	Enabled bool `env:"ARCHIVER_ENABLED" envDefault:"false"`

	// Schedule is the interval between archival runs.
	Schedule time.Duration `env:"ARCHIVER_SCHEDULE" envDefault:"1h"`

	// MaturityWindow is how long a usage row must sit in the hot table
	// before it becomes eligible for archival.
	MaturityWindow time.Duration `env:"ARCHIVER_MATURITY_WINDOW" envDefault:"24h"`

	// Bucket is the destination S3 bucket.
	Bucket string `env:"ARCHIVER_S3_BUCKET" envDefault:"usage-ledger-archive"`

	// Prefix is the object key prefix.
	Prefix string `env:"ARCHIVER_S3_PREFIX" envDefault:"usage"`
}

// usageRow is the flattened Parquet schema for one archived usage
// record.
type usageRow struct {
	Name   string  `parquet:"name,snappy,dict"`
	Time   float64 `parquet:"time"`
	Tokens int64   `parquet:"tokens"`
	Type   string  `parquet:"type,snappy,dict"`
}

// Ledger is the slice of SQLLedger the archiver needs: selecting and
// deleting matured rows.
type Ledger interface {
	Matured(ctx context.Context, beforeUnix float64) ([]usage.Record, error)
	DeleteMatured(ctx context.Context, beforeUnix float64) error
}

// Archiver runs the scheduled archival job.
type Archiver struct {
	ledger   Ledger
	s3Client *s3.Client
	cfg      Config
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates an Archiver.
func New(ledger Ledger, s3Client *s3.Client, cfg Config, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		ledger:   ledger,
		s3Client: s3Client,
		cfg:      cfg,
		logger:   logger.With("component", "usage-archiver"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the scheduled archival loop. A no-op if disabled.
func (a *Archiver) Start(ctx context.Context) {
	if !a.cfg.Enabled {
		a.logger.Info("archiver disabled, skipping start")
		close(a.doneCh)
		return
	}

	go func() {
		defer close(a.doneCh)
		ticker := time.NewTicker(a.cfg.Schedule)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			case <-ticker.C:
				if err := a.RunOnce(ctx); err != nil {
					a.logger.Error("archival run failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the scheduled loop.
func (a *Archiver) Stop() {
	if !a.cfg.Enabled {
		return
	}
	close(a.stopCh)
	<-a.doneCh
}

// RunOnce performs one archival pass: select matured rows, write them as
// a single Parquet object, upload it, then delete the archived rows from
// the hot table. Rows are only deleted after a successful upload, so a
// failed run leaves the hot table untouched for the next attempt.
func (a *Archiver) RunOnce(ctx context.Context) error {
	cutoff := float64(time.Now().Add(-a.cfg.MaturityWindow).Unix())

	rows, err := a.ledger.Matured(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("select matured rows: %w", err)
	}
	if len(rows) == 0 {
		a.logger.Debug("no matured usage rows to archive")
		return nil
	}

	data, err := writeParquet(rows)
	if err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}

	key := fmt.Sprintf("%s/archived_before=%d/usage_%s.parquet", a.cfg.Prefix, int64(cutoff), uuid.New().String())
	if _, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-parquet"),
	}); err != nil {
		return fmt.Errorf("upload archive object: %w", err)
	}

	if err := a.ledger.DeleteMatured(ctx, cutoff); err != nil {
		return fmt.Errorf("delete matured rows after upload: %w", err)
	}

	a.logger.Info("usage rows archived", "count", len(rows), "key", key, "size_bytes", len(data))
	return nil
}

func writeParquet(records []usage.Record) ([]byte, error) {
	rows := make([]usageRow, len(records))
	for i, r := range records {
		rows[i] = usageRow{Name: r.Caller, Time: r.Time, Tokens: int64(r.Tokens), Type: string(r.Kind)}
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[usageRow](&buf,
		parquet.Compression(&parquet.Snappy),
		parquet.CreatedBy("openai-cd2-proxy-usage-archiver", "1.0.0", ""),
	)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
