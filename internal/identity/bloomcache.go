package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// negativeCache is a periodically-rebuilt bloom filter over every
// currently-valid token. A miss against it means the token is
// definitely not valid, letting the auth middleware skip a store lookup
// entirely on the (common, under abuse/scanning traffic) unknown-token
// path. A hit is only ever a "maybe": the real KeyStore lookup still
// runs, since bloom filters have false positives but never false
// negatives.
type negativeCache struct {
	store  KeyStore
	logger *slog.Logger

	refresh  time.Duration
	capacity uint
	fpRate   float64

	mu     sync.RWMutex
	filter *bloom.BloomFilter

	stopCh chan struct{}
	doneCh chan struct{}
}

func newNegativeCache(store KeyStore, refresh time.Duration, capacity uint, fpRate float64, logger *slog.Logger) *negativeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &negativeCache{
		store:    store,
		logger:   logger.With("component", "identity-bloom-cache"),
		refresh:  refresh,
		capacity: capacity,
		fpRate:   fpRate,
		filter:   bloom.NewWithEstimates(capacity, fpRate),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// mightBeValid reports whether token could possibly be a known key.
// False means definitely unknown; true means "ask the store".
func (c *negativeCache) mightBeValid(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.TestString(token)
}

// rebuild reloads the filter from the store's current token set.
func (c *negativeCache) rebuild(ctx context.Context) error {
	tokens, err := c.store.AllTokens(ctx)
	if err != nil {
		return err
	}

	f := bloom.NewWithEstimates(c.capacity, c.fpRate)
	for _, t := range tokens {
		f.AddString(t)
	}

	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()

	c.logger.Debug("negative cache rebuilt", "tokens", len(tokens))
	return nil
}

// start performs an initial synchronous load, then refreshes on a ticker
// until ctx is cancelled or stop is called.
func (c *negativeCache) start(ctx context.Context) error {
	if err := c.rebuild(ctx); err != nil {
		return err
	}

	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.refresh)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.rebuild(ctx); err != nil {
					c.logger.Error("negative cache refresh failed", "error", err)
				}
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}()
	return nil
}

func (c *negativeCache) stop() {
	close(c.stopCh)
	<-c.doneCh
}
