// Package gateway provides the HTTP admission front-end for the
// completion proxy: authentication, request validation, submission to
// the scheduler, and response shaping.
package gateway

import "time"

// Config holds HTTP server configuration for the admission front-end.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string `env:"BIND_ADDR" envDefault:":8080"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Kept generous: a request may sit in a batch for up
	// to FLUSH_INTERVAL before its upstream call even starts.
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request on a keep-alive connection.
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// MaxHeaderBytes is the maximum size of request headers.
	MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight requests to finish.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}
