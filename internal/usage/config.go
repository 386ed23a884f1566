package usage

import "time"

// Config selects and tunes the usage-ledger write path.
type Config struct {
	// Async enables the NATS JetStream decoupled write path. When
	// false, the admission front-end writes directly and synchronously
	// to the relational store.
	Async bool `env:"USAGE_ASYNC" envDefault:"false"`

	// Subject is the NATS subject usage records are published to.
	Subject string `env:"USAGE_NATS_SUBJECT" envDefault:"usage.records"`

	// ConsumerName is the durable JetStream consumer name for draining
	// the usage stream into the relational store.
	ConsumerName string `env:"USAGE_NATS_CONSUMER" envDefault:"usage-ledger-writer"`

	// BatchMaxRecords caps how many records the consumer accumulates
	// before forcing a flush to the store.
	BatchMaxRecords int `env:"USAGE_BATCH_MAX_RECORDS" envDefault:"500"`

	// BatchFlushInterval is the maximum time the consumer holds a
	// partial batch before flushing.
	BatchFlushInterval time.Duration `env:"USAGE_BATCH_FLUSH_INTERVAL" envDefault:"2s"`
}
