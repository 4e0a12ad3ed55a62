package oracle

import "errors"

var (
	// ErrTransient marks failures that are worth retrying: timeouts, rate
	// limits, connection resets, 5xx responses.
	ErrTransient = errors.New("transient model failure")

	// ErrMalformedOutput marks replies that violated the requested output
	// contract and could not be repaired.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrUnavailable marks calls rejected locally, for example by an open
	// circuit breaker. Retrying immediately will not help.
	ErrUnavailable = errors.New("model backend unavailable")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
