// Package nats provides NATS JetStream connection and stream management,
// shared infrastructure for the usage ledger's async write path.
package nats

import (
	"time"
)

// Config holds NATS connection and stream configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222"). Empty
	// disables the async path entirely; usage falls back to synchronous
	// SQL writes.
	URL string `env:"NATS_URL"`

	// Name is the client connection name for monitoring.
	Name string `env:"NATS_CLIENT_NAME" envDefault:"openai-cd2-proxy"`

	// MaxReconnects is the maximum number of reconnection attempts.
	MaxReconnects int `env:"NATS_MAX_RECONNECTS" envDefault:"60"`

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`

	// Timeout is the connection timeout.
	Timeout time.Duration `env:"NATS_TIMEOUT" envDefault:"5s"`

	// Stream configuration for the usage-records stream.
	Stream StreamConfig `envPrefix:"NATS_STREAM_"`
}

// StreamConfig holds JetStream stream configuration.
type StreamConfig struct {
	// Name is the stream name.
	Name string `env:"NAME" envDefault:"USAGE_RECORDS"`

	// Subjects are the subjects captured by the stream.
	Subjects []string `env:"SUBJECTS" envDefault:"usage.>"`

	// MaxAge is the maximum age of messages in the stream.
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"168h"`

	// MaxBytes is the maximum size of the stream in bytes.
	MaxBytes int64 `env:"MAX_BYTES" envDefault:"1073741824"`

	// Replicas is the number of replicas for the stream.
	Replicas int `env:"REPLICAS" envDefault:"1"`

	// Storage is the storage type (file or memory).
	Storage string `env:"STORAGE" envDefault:"file"`
}
