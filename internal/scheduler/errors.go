package scheduler

import "errors"

// Sentinel and kind errors surfaced by the scheduler. BadRequest and
// Unauthorised never reach the core; they are front-end concerns.
var (
	// ErrShuttingDown is returned by Submit once shutdown has begun.
	ErrShuttingDown = errors.New("scheduler: shutting down")

	// ErrUpstreamTransport marks a network error or non-2xx response
	// from the upstream client.
	ErrUpstreamTransport = errors.New("scheduler: upstream transport error")

	// ErrUpstreamShape marks a response that parsed but whose choice
	// count did not equal n * len(prompts).
	ErrUpstreamShape = errors.New("scheduler: upstream response shape mismatch")
)
