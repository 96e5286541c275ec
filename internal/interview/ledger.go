package interview

import (
	"fmt"
	"sync"
)

// Ledger is the append-only, order-preserving record of per-question
// results for the current session. Index i always corresponds to question i.
type Ledger struct {
	mu      sync.Mutex
	results []Result
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records the result for the question at position. The ledger length
// must equal position; anything else is a sequence violation.
func (l *Ledger) Append(position int, r Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.results) != position {
		return fmt.Errorf("%w: ledger length %d, appending position %d", ErrSequenceViolation, len(l.results), position)
	}
	l.results = append(l.results, r)
	return nil
}

// Reset clears the ledger. Called exactly when a new session begins.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = l.results[:0]
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}

// Snapshot returns a copy of the results in question order. Safe for live
// display of a partially-completed session; persisted report generation
// should only consume a completed ledger.
func (l *Ledger) Snapshot() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Result(nil), l.results...)
}
