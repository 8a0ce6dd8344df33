// Package errs defines the sentinel errors shared across the harness engine.
// Call sites wrap these with fmt.Errorf("...: %w", ...) so callers can
// classify failures with errors.Is while still seeing full context.
package errs

import "errors"

// Validation errors — returned synchronously by the failing call.
var (
	// ErrInvalidParameter is returned when a domain parameter is out of range,
	// such as a negative sigma, a non-positive lambda, or a correlation
	// coefficient outside [-1, 1].
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrEmptyResponseSequence is returned when a stub rule is registered
	// without any response generator.
	ErrEmptyResponseSequence = errors.New("empty response sequence")

	// ErrMissingCorrelationKey is returned when a trade record carries neither
	// a request key nor a venue order id.
	ErrMissingCorrelationKey = errors.New("missing correlation key")
)

// Correlation errors.
var (
	// ErrDuplicateKey is returned when a request key is already awaiting a
	// response.
	ErrDuplicateKey = errors.New("duplicate request key")

	// ErrNoSession is returned when a send is attempted with no transport
	// session bound.
	ErrNoSession = errors.New("no active session")

	// ErrTimeout is returned when a response never arrived within the
	// deadline.
	ErrTimeout = errors.New("timed out awaiting response")
)

// Transport errors.
var (
	// ErrTransportFailure is returned when the downstream transport could not
	// deliver a message. It is reported and logged, never fatal to the
	// interceptor loop.
	ErrTransportFailure = errors.New("transport failure")
)

// Assertion errors.
var (
	// ErrAssertionFailure is returned by the ledger assertion surface when a
	// reconciliation check does not hold. The message names the key, the
	// field, and the values from all three sources.
	ErrAssertionFailure = errors.New("assertion failure")
)
