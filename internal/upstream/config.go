// Package upstream implements the HTTP client for the remote completion
// service. It performs one HTTP POST per batch with a list-of-prompts
// payload and parses the resulting choices array.
package upstream

import "time"

// Config holds upstream connection configuration.
type Config struct {
	// BaseURL is the base URL for the upstream endpoint, e.g.
	// "https://api.openai.com".
	BaseURL string `env:"UPSTREAM_BASE_URL" envDefault:"https://api.openai.com"`

	// APIKey is the bearer credential sent upstream.
	APIKey string `env:"UPSTREAM_API_KEY"`

	// Org is an optional organisation header.
	Org string `env:"UPSTREAM_ORG"`

	// Timeout bounds a single upstream HTTP call.
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`
}
