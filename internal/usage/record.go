// Package usage implements the usage ledger: an append-only record of
// (caller, timestamp, token_count, kind). The admission front-end
// writes one record per prompt-count and one per completion-count, per
// successful request; a count of zero is not recorded.
package usage

// Kind distinguishes the two record types the persistent usage table
// carries: type INDEXED ∈ {'prompt','completion'}.
type Kind string

const (
	KindPrompt     Kind = "prompt"
	KindCompletion Kind = "completion"
)

// Record is one row of the usage table: name INDEXED, time FLOAT,
// tokens INT, type INDEXED.
type Record struct {
	Caller string
	Time   float64
	Tokens int
	Kind   Kind
}
