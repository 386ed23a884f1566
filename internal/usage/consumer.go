package usage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// trackedRecord pairs a deserialized Record with its originating NATS
// message so ack/nak can be deferred until after the SQL write succeeds
// or fails.
type trackedRecord struct {
	rec Record
	msg jetstream.Msg
}

// Consumer drains the usage-records NATS stream into a SQLLedger in
// batches, matching the warehouse sink's batch-then-flush shape but
// against the relational store instead of Parquet/S3.
type Consumer struct {
	ledger *SQLLedger
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	batch     []trackedRecord
	lastFlush time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewConsumer creates a Consumer.
func NewConsumer(ledger *SQLLedger, cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		ledger:    ledger,
		cfg:       cfg,
		logger:    logger.With("component", "usage-consumer"),
		batch:     make([]trackedRecord, 0, cfg.BatchMaxRecords),
		lastFlush: time.Now(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the fetch/flush loop against an already-provisioned
// durable consumer (see nats.StreamManager.EnsureConsumer).
func (c *Consumer) Start(ctx context.Context, consumer jetstream.Consumer) error {
	go c.flushTimer(ctx)
	go c.fetchLoop(ctx, consumer)
	return nil
}

func (c *Consumer) fetchLoop(ctx context.Context, consumer jetstream.Consumer) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
			msgs, err := consumer.Fetch(100, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if !errors.Is(err, context.DeadlineExceeded) {
					c.logger.Error("fetch failed", "error", err)
					time.Sleep(time.Second)
				}
				continue
			}

			for msg := range msgs.Messages() {
				c.processMessage(ctx, msg)
			}
			if err := msgs.Error(); err != nil {
				c.logger.Error("message iteration error", "error", err)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) {
	var wire wireRecord
	if err := json.Unmarshal(msg.Data(), &wire); err != nil {
		c.logger.Error("poison usage message, terminating", "error", err)
		_ = msg.Term()
		return
	}

	rec := Record{Caller: wire.Caller, Time: wire.Time, Tokens: wire.Tokens, Kind: Kind(wire.Kind)}

	c.mu.Lock()
	c.batch = append(c.batch, trackedRecord{rec: rec, msg: msg})
	shouldFlush := len(c.batch) >= c.cfg.BatchMaxRecords
	c.mu.Unlock()

	if shouldFlush {
		c.flush(ctx)
	}
}

func (c *Consumer) flushTimer(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.BatchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// flush writes the current batch to the ledger one record at a time,
// acking each message whose write succeeds and nak-ing each one whose
// write fails so NATS redelivers it.
func (c *Consumer) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.batch) == 0 {
		c.mu.Unlock()
		return
	}
	tracked := c.batch
	c.batch = make([]trackedRecord, 0, c.cfg.BatchMaxRecords)
	c.lastFlush = time.Now()
	c.mu.Unlock()

	for _, t := range tracked {
		if err := c.ledger.Record(ctx, t.rec); err != nil {
			c.logger.Error("failed to write usage record, nak-ing for redelivery", "error", err)
			if nakErr := t.msg.Nak(); nakErr != nil {
				c.logger.Error("failed to nak usage message", "error", nakErr)
			}
			continue
		}
		if err := t.msg.Ack(); err != nil {
			c.logger.Error("failed to ack usage message", "error", err)
		}
	}
}

// Stop halts the fetch loop, waits for it to exit, and performs a final
// flush of any partial batch.
func (c *Consumer) Stop(ctx context.Context) {
	close(c.stopCh)
	<-c.doneCh
	c.flush(ctx)
}
