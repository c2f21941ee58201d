package types

import "errors"

// Engine error taxonomy. Only ErrExecutionTransient is ever retried
// automatically; everything else surfaces as a risk event or halts the
// session for the operator layer.
var (
	// ErrDataUnavailable means a snapshot could not be built this cycle.
	// The symbol is skipped and retried next cycle with no state change.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrExecutionTransient is a network/timeout class failure. Retried
	// with bounded backoff, then counted against the circuit breaker.
	ErrExecutionTransient = errors.New("transient execution failure")

	// ErrExecutionFatal is a non-retryable broker failure (e.g.
	// insufficient margin). Raises an emergency risk event and halts
	// signal generation for the session.
	ErrExecutionFatal = errors.New("fatal execution failure")

	// ErrLedgerMismatch means open position quantities diverged from the
	// net of non-cancelled orders. Fatal; requires external
	// reconciliation and is never silently auto-corrected.
	ErrLedgerMismatch = errors.New("position ledger mismatch")
)
