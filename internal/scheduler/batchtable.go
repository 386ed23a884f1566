package scheduler

import (
	"github.com/elliotchance/orderedmap/v3"
)

// batchTable maps Fingerprint to Batch with insertion-order iteration, so
// the flush loop can always pop the oldest Batch first (FIFO by
// creation). Go's built-in map gives no iteration-order guarantee, so
// plain map[string]*Batch cannot satisfy this on its own; orderedmap
// keeps insertion order for free.
type batchTable struct {
	entries *orderedmap.OrderedMap[string, *Batch]
}

func newBatchTable() *batchTable {
	return &batchTable{entries: orderedmap.NewOrderedMap[string, *Batch]()}
}

// getOrCreate returns the existing Batch for fp, or creates and inserts
// a new one at the tail. The created flag tells the caller whether this
// was a fresh insertion (so it can decide whether to signal the flush
// loop).
func (t *batchTable) getOrCreate(fp string, shared SharedParams) (b *Batch, created bool) {
	if existing, ok := t.entries.Get(fp); ok {
		return existing, false
	}
	b = &Batch{Fingerprint: fp, SharedParams: shared}
	t.entries.Set(fp, b)
	return b, true
}

// popOldest removes and returns the insertion-order head of the table,
// or (nil, false) if the table is empty.
func (t *batchTable) popOldest() (*Batch, bool) {
	el := t.entries.Front()
	if el == nil {
		return nil, false
	}
	t.entries.Delete(el.Key)
	return el.Value, true
}

func (t *batchTable) empty() bool {
	return t.entries.Len() == 0
}

// drain removes and returns every currently-batched Batch, oldest first.
// Used only during shutdown.
func (t *batchTable) drain() []*Batch {
	out := make([]*Batch, 0, t.entries.Len())
	for {
		b, ok := t.popOldest()
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out
}
