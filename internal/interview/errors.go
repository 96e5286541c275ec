package interview

import "errors"

var (
	// ErrInvalidTransition means an operation was requested in a phase that
	// does not permit it.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrSequenceViolation means a ledger append would break the strict
	// question-order invariant. It indicates a programming error, never a
	// recoverable runtime condition.
	ErrSequenceViolation = errors.New("result ledger out of sequence")

	// ErrNoPendingSample means Submit was called without a finalized sample.
	ErrNoPendingSample = errors.New("no pending sample to submit")

	// ErrNoQuestions means the session has no question set loaded.
	ErrNoQuestions = errors.New("no questions loaded")

	// ErrSessionClosed means the session was torn down or replaced while an
	// operation was in flight; the operation's outcome is discarded.
	ErrSessionClosed = errors.New("session closed")
)
