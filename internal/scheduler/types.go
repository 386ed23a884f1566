// Package scheduler implements the request-coalescing scheduler: the
// component that accepts individual completion requests from many
// concurrent client sessions, groups them by parameter fingerprint into
// batches, dispatches one upstream call per batch on a paced schedule,
// and fans the composite upstream response back to the originating
// waiters.
package scheduler

// CompletionParams is the fully-specified call to the upstream, as
// submitted by a single caller. Prompt may represent either a single
// string or an ordered list of strings; the scheduler stores whatever
// the caller sent, verbatim, as the Waiter's prompt and always sends a
// list upstream.
type CompletionParams struct {
	Prompt      Prompt
	Model       string
	MaxTokens   *int
	N           *int
	Stop        []string
	Temperature *float64
}

// Prompt holds either a single prompt string or an ordered sequence of
// prompt strings, preserving which form the caller used.
type Prompt struct {
	Single   string
	Multiple []string
	IsList   bool
}

// Text returns the prompt text to send upstream for this single Waiter.
// Each Waiter contributes exactly one string to its batch's prompt list:
// for a list-form prompt that is the first element (or "" for an empty
// list); the remaining elements are not sent upstream.
func (p Prompt) Text() string {
	if p.IsList {
		if len(p.Multiple) == 0 {
			return ""
		}
		return p.Multiple[0]
	}
	return p.Single
}

// SharedParams is CompletionParams with Prompt removed, every absent
// option dropped, and Model forced to the deployment value. It is the
// coalescing key's content before encoding.
type SharedParams struct {
	Model       string
	MaxTokens   *int
	N           *int
	Stop        []string
	HasStop     bool
	Temperature *float64
}

// n returns the effective choice count per prompt: the configured value,
// or 1 if absent.
func (s SharedParams) n() int {
	if s.N != nil {
		return *s.N
	}
	return 1
}

// deriveSharedParams drops Prompt, forces Model, and keeps every other
// field exactly as given (including an explicit-but-empty Stop list,
// which is distinct from an absent one).
func deriveSharedParams(p CompletionParams, model string) SharedParams {
	return SharedParams{
		Model:       model,
		MaxTokens:   p.MaxTokens,
		N:           p.N,
		Stop:        p.Stop,
		HasStop:     p.Stop != nil,
		Temperature: p.Temperature,
	}
}

// Choice is one upstream-returned completion choice. Its shape is
// intentionally opaque to the scheduler: upstream.Client decodes it and
// the scheduler only ever counts, groups, and forwards it.
type Choice = map[string]any

// Result is what a Waiter's signal eventually carries: either a
// contiguous group of Choices or an error.
type Result struct {
	Choices []Choice
	Err     error
}

// Waiter is a single outstanding client request: its prompt, a one-shot
// signal, and a result slot written exactly once before the signal
// fires.
type Waiter struct {
	Prompt Prompt
	Caller string

	done chan struct{}
	res  Result
}

func newWaiter(prompt Prompt, caller string) *Waiter {
	return &Waiter{
		Prompt: prompt,
		Caller: caller,
		done:   make(chan struct{}),
	}
}

// Done returns the channel that closes exactly once, when the Waiter's
// result becomes available.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Result returns the Waiter's result. It must only be read after Done()
// has closed.
func (w *Waiter) Result() Result {
	return w.res
}

// resolve stores the result and fires the signal. It must be called at
// most once per Waiter; callers within this package guarantee that by
// construction (each Waiter belongs to exactly one Batch, and a Batch is
// resolved exactly once).
func (w *Waiter) resolve(res Result) {
	w.res = res
	close(w.done)
}

// Batch groups Waiters sharing a Fingerprint that have not yet been
// dispatched. The Waiters slice preserves insertion order, which defines
// both the upstream prompt order and the fan-out order (I2).
type Batch struct {
	Fingerprint  string
	SharedParams SharedParams
	Waiters      []*Waiter
}
