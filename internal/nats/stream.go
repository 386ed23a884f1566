package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamManager handles JetStream stream creation and management.
type StreamManager struct {
	js     jetstream.JetStream
	config StreamConfig
	logger *slog.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(js jetstream.JetStream, cfg StreamConfig, logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		js:     js,
		config: cfg,
		logger: logger.With("component", "stream-manager"),
	}
}

// EnsureStream creates or updates the stream with the configured settings.
func (m *StreamManager) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	storage := jetstream.FileStorage
	if strings.ToLower(m.config.Storage) == "memory" {
		storage = jetstream.MemoryStorage
	}

	streamCfg := jetstream.StreamConfig{
		Name:        m.config.Name,
		Subjects:    m.config.Subjects,
		Storage:     storage,
		MaxAge:      m.config.MaxAge,
		MaxBytes:    m.config.MaxBytes,
		Replicas:    m.config.Replicas,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	_, err := m.js.Stream(ctx, m.config.Name)
	if err == nil {
		m.logger.Info("updating existing stream", "name", m.config.Name)
		stream, err := m.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to update stream: %w", err)
		}
		m.logger.Info("stream updated", "name", m.config.Name)
		return stream, nil
	}

	m.logger.Info("creating new stream", "name", m.config.Name, "subjects", m.config.Subjects)
	stream, err := m.js.CreateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	m.logger.Info("stream created",
		"name", m.config.Name,
		"storage", m.config.Storage,
		"max_age", m.config.MaxAge,
		"max_bytes", m.config.MaxBytes,
	)

	return stream, nil
}

// EnsureConsumer creates or updates the durable consumer the usage
// ledger's Consumer drains. It sets no subject filter, so it receives
// every subject the stream captures.
func (m *StreamManager) EnsureConsumer(ctx context.Context, stream jetstream.Stream, name string) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxAckPending: 10000,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}

	if _, err := stream.Consumer(ctx, name); err == nil {
		m.logger.Info("updating existing consumer", "name", name)
		return stream.UpdateConsumer(ctx, cfg)
	}

	m.logger.Info("creating new consumer", "name", name)
	return stream.CreateConsumer(ctx, cfg)
}

// GetStreamInfo returns information about the stream.
func (m *StreamManager) GetStreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	stream, err := m.js.Stream(ctx, m.config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	return info, nil
}
