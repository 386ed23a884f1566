// Package config defines the root environment-driven configuration for
// the proxy server, assembling each module's Config. Every sub-config
// carries fully-qualified env tags, so each is embedded with an empty
// envPrefix.
package config

import (
	"github.com/FergusFettes/openai-cd2-proxy/internal/gateway"
	"github.com/FergusFettes/openai-cd2-proxy/internal/identity"
	"github.com/FergusFettes/openai-cd2-proxy/internal/nats"
	"github.com/FergusFettes/openai-cd2-proxy/internal/upstream"
	"github.com/FergusFettes/openai-cd2-proxy/internal/usage"
	"github.com/FergusFettes/openai-cd2-proxy/internal/usage/internal/archiver"
)

// Config holds all server configuration, loaded with
// github.com/caarlos0/env/v10.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text).
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Model is the deployment-fixed model value forced onto every
	// completion request.
	Model string `env:"MODEL" envDefault:"code-davinci-002"`

	// FlushIntervalMS paces the scheduler's upstream dispatch rate in
	// milliseconds. Zero disables pacing. At 3000ms this bounds the
	// scheduler to at most 20 dispatches/min regardless of request volume.
	FlushIntervalMS int `env:"FLUSH_INTERVAL_MS" envDefault:"3000"`

	Gateway  gateway.Config  `envPrefix:""`
	Upstream upstream.Config `envPrefix:""`
	Identity identity.Config `envPrefix:""`
	Usage    usage.Config    `envPrefix:""`
	NATS     nats.Config     `envPrefix:""`
	Archiver archiver.Config `envPrefix:""`
}
