package gateway

import "errors"

var (
	// ErrUnavailable marks a transient gateway failure. Safe to retry with
	// the same idempotency key.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrRejected marks a terminal payment failure, e.g. insufficient
	// captured funds. Retrying will not succeed.
	ErrRejected = errors.New("payment rejected")
)
