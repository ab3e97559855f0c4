// Package enginerr defines the closed set of error kinds the engine and its
// collaborators report. Every sentinel is meant to be wrapped with call-site
// context via fmt.Errorf("...: %w", err) and unwrapped with errors.Is.
package enginerr

import "errors"

var (
	// ErrBadSubscription covers subscription requests the handler cannot
	// satisfy: a derived feed with no primary feed, or no raw feed, to build
	// it from, or the removal of a subscription that is not active. A
	// duplicate add of an identical subscription is a no-op, not an error.
	ErrBadSubscription = errors.New("enginerr: bad subscription")

	// ErrNoMarketPrice is returned when the matching engine is asked to
	// value or fill against a symbol it has never observed a price for.
	ErrNoMarketPrice = errors.New("enginerr: no market price available")

	// ErrInsufficientFunds covers both a margin-commit failure and a
	// risk-policy rejection at order acceptance time.
	ErrInsufficientFunds = errors.New("enginerr: insufficient funds")

	// ErrInvalidOrderState is returned when an operation is attempted
	// against an order that is not in a state that permits it (e.g.
	// cancelling an already-filled order).
	ErrInvalidOrderState = errors.New("enginerr: invalid order state")

	// ErrVendorUnavailable covers vendor I/O failure after retry budget
	// and circuit-breaker exhaustion.
	ErrVendorUnavailable = errors.New("enginerr: vendor unavailable")

	// ErrStorageError covers historical-storage read/write failures.
	ErrStorageError = errors.New("enginerr: storage error")

	// ErrShutdownRequested is returned by the engine loop once a guardrail
	// halt or operator override has been observed; it is not itself a
	// failure, only a sentinel the loop's caller can match on.
	ErrShutdownRequested = errors.New("enginerr: shutdown requested")
)
