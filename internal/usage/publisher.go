package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// wireRecord is the JSON payload published to NATS: the same fields as
// Record, just with exported JSON tags for cross-version stability.
type wireRecord struct {
	Caller string  `json:"caller"`
	Time   float64 `json:"time"`
	Tokens int     `json:"tokens"`
	Kind   string  `json:"kind"`
}

// Publisher publishes usage records to NATS JetStream, decoupling the
// write from the hot admission path.
type Publisher struct {
	js      jetstream.JetStream
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(js jetstream.JetStream, subject string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{js: js, subject: subject, logger: logger.With("component", "usage-publisher")}
}

// Record implements the Ledger port by publishing instead of writing
// synchronously.
func (p *Publisher) Record(ctx context.Context, rec Record) error {
	data, err := json.Marshal(wireRecord{
		Caller: rec.Caller,
		Time:   rec.Time,
		Tokens: rec.Tokens,
		Kind:   string(rec.Kind),
	})
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}

	ack, err := p.js.Publish(ctx, p.subject, data)
	if err != nil {
		return fmt.Errorf("publish usage record: %w", err)
	}

	p.logger.Debug("usage record published",
		"caller", rec.Caller,
		"kind", rec.Kind,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
	)
	return nil
}
