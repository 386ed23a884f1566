package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UpstreamClient is the port through which the scheduler dispatches one
// batch to the remote completion service. Implementations must be safe
// for concurrent use; the scheduler only ever has one call in flight at
// a time (I5), but the port itself makes no such assumption.
type UpstreamClient interface {
	// Complete sends shared (the batch's non-prompt parameters) and
	// prompts (in order) to the upstream and returns its choices array,
	// or an error on network/HTTP failure. The scheduler wraps any such
	// error in ErrUpstreamTransport before handing it to the waiters.
	Complete(ctx context.Context, shared SharedParams, prompts []string) ([]Choice, error)
}

// Metrics is the optional observability port the scheduler reports
// batch-level measurements through. A nil Metrics disables reporting.
type Metrics interface {
	ObserveBatchSize(n int)
	ObserveFlushLatency(d time.Duration)
	IncUpstreamError()
}

// Config holds scheduler tuning knobs, sourced from the environment via
// the caller (see internal/config for the env-tagged struct that feeds
// this; cmd/server converts FLUSH_INTERVAL_MS to FlushInterval).
type Config struct {
	// Model is the deployment-fixed value forced onto every
	// SharedParams, overriding whatever the caller requested.
	Model string

	// FlushInterval paces upstream calls at roughly 1/FlushInterval.
	// Zero disables pacing entirely (used against trusted local mocks).
	FlushInterval time.Duration
}

// Scheduler is the request-coalescing scheduler: a process-lifetime
// singleton, constructed explicitly and passed to HTTP handlers by
// dependency injection rather than through global mutable state.
type Scheduler struct {
	cfg      Config
	upstream UpstreamClient
	metrics  Metrics
	logger   *slog.Logger
	limiter  *rate.Limiter

	mu       sync.Mutex
	table    *batchTable
	notifyCh chan struct{}
	closed   bool

	doneCh chan struct{}
}

// New constructs a Scheduler. metrics may be nil to disable reporting.
func New(cfg Config, upstream UpstreamClient, metrics Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.FlushInterval > 0 {
		// Burst of 1 and a full initial token: the first-ever flush
		// dispatches as soon as a batch is non-empty, with no cold-start
		// wait. Pacing only governs the gap between that dispatch and
		// the next one.
		limiter = rate.NewLimiter(rate.Every(cfg.FlushInterval), 1)
	}

	return &Scheduler{
		cfg:      cfg,
		upstream: upstream,
		metrics:  metrics,
		logger:   logger.With("component", "scheduler"),
		limiter:  limiter,
		table:    newBatchTable(),
		notifyCh: make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}
}

// Submit performs intake and fingerprinting: it never performs I/O and
// never calls upstream; it returns ErrShuttingDown if the scheduler has
// begun shutting down.
func (s *Scheduler) Submit(params CompletionParams, caller string) (*Waiter, error) {
	shared := deriveSharedParams(params, s.cfg.Model)
	fp := fingerprint(shared)
	w := newWaiter(params.Prompt, caller)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}

	batch, created := s.table.getOrCreate(fp, shared)
	batch.Waiters = append(batch.Waiters, w)
	s.mu.Unlock()

	if created {
		s.notify()
	}

	return w, nil
}

// notify wakes the flush loop if it is waiting for a non-empty table.
// The channel is buffered by one slot so this never blocks: a pending
// notification is enough, since the loop only ever needs to know "there
// is at least one Batch", not how many signals arrived.
func (s *Scheduler) notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Run starts the flush loop and blocks until ctx is cancelled, draining
// any still-batched Waiters with a failure marker before returning. Call
// this in its own goroutine; bind its lifetime to the server's lifetime.
//
// Pacing is applied before each dispatch rather than after. The limiter
// starts with one token, so the first batch dispatches as soon as it is
// non-empty; every later dispatch waits until FlushInterval has passed
// since the previous one, and batches keep accepting Waiters while they
// wait. The net effect is at most one dispatch per FlushInterval.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		if !s.waitNonEmpty(ctx) {
			s.shutdown()
			return
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.shutdown()
				return
			}
		}

		batch, ok := s.popOldestOrShutdown(ctx)
		if !ok {
			s.shutdown()
			return
		}

		start := time.Now()
		s.dispatch(ctx, batch)
		if s.metrics != nil {
			s.metrics.ObserveFlushLatency(time.Since(start))
		}
	}
}

// waitNonEmpty blocks, without busy-waiting, until the BatchTable holds
// at least one Batch. It returns false only if ctx is cancelled first.
func (s *Scheduler) waitNonEmpty(ctx context.Context) bool {
	for {
		s.mu.Lock()
		empty := s.table.empty()
		s.mu.Unlock()
		if !empty {
			return true
		}

		select {
		case <-s.notifyCh:
		case <-ctx.Done():
			return false
		}
	}
}

// popOldestOrShutdown removes and returns the insertion-order head of
// the BatchTable, implementing the fairness guarantee that a Batch is
// never bypassed in favour of a newer one. If ctx has been cancelled
// since waitNonEmpty returned, it declines to pop at all: the caller
// falls through to shutdown draining instead of dispatching once more.
func (s *Scheduler) popOldestOrShutdown(ctx context.Context) (*Batch, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.popOldest()
}

// dispatch sends one upstream call per Batch and partitions the result
// back to each Waiter in order.
func (s *Scheduler) dispatch(ctx context.Context, b *Batch) {
	prompts := make([]string, len(b.Waiters))
	for i, w := range b.Waiters {
		prompts[i] = w.Prompt.Text()
	}

	if s.metrics != nil {
		s.metrics.ObserveBatchSize(len(prompts))
	}

	choices, err := s.upstream.Complete(ctx, b.SharedParams, prompts)
	if err != nil {
		s.failAll(b, fmt.Errorf("%w: %v", ErrUpstreamTransport, err))
		return
	}

	n := b.SharedParams.n()
	if len(choices) != n*len(prompts) {
		s.failAll(b, fmt.Errorf("%w: got %d choices, want %d (n=%d, prompts=%d)",
			ErrUpstreamShape, len(choices), n*len(prompts), n, len(prompts)))
		return
	}

	for i, w := range b.Waiters {
		group := choices[i*n : (i+1)*n]
		w.resolve(Result{Choices: group})
	}
}

func (s *Scheduler) failAll(b *Batch, err error) {
	if s.metrics != nil {
		s.metrics.IncUpstreamError()
	}
	s.logger.Error("batch dispatch failed", "fingerprint", b.Fingerprint, "waiters", len(b.Waiters), "error", err)
	for _, w := range b.Waiters {
		w.resolve(Result{Err: err})
	}
}

// shutdown refuses further submissions and drains every currently-
// batched Waiter with a failure marker. It does not make a final
// upstream call; any Batch still accumulating at shutdown is failed
// rather than dispatched.
func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.closed = true
	batches := s.table.drain()
	s.mu.Unlock()

	for _, b := range batches {
		s.failAll(b, ErrShuttingDown)
	}
}

// Shutdown blocks until Run has finished draining, or ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
