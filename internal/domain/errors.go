package domain

import "errors"

// Sentinel errors surfaced by the core pipeline. Handlers unwrap these with
// errors.Is/errors.As to pick an HTTP status; no error message below ever
// carries a token.
var (
	// ErrBadPattern is returned when a field-pattern expression fails to parse.
	ErrBadPattern = errors.New("bad field pattern")

	// ErrBadTemplate is returned when a message template has an odd number of
	// '$' delimiters.
	ErrBadTemplate = errors.New("bad template")

	// ErrTokenCollision is returned when a token is already bound to a record.
	ErrTokenCollision = errors.New("token collision")

	// ErrNotFound is returned when a (service, token) pair has no record, or
	// an admin lookup names a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadConfig is returned when a configuration record fails validation.
	ErrBadConfig = errors.New("bad config")

	// ErrSinkRejected is returned when the sink answers with a terminal
	// failure (4xx, or a redirect, which this gateway treats as terminal).
	ErrSinkRejected = errors.New("sink rejected message")

	// ErrSinkUnavailable is returned when retries against the sink are
	// exhausted without a non-5xx, non-network response.
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrExhausted is returned by the token mint when no unique token could
	// be produced within the retry budget.
	ErrExhausted = errors.New("token space exhausted")

	// ErrLogIOFailure is returned by the payload logger on disk errors. It is
	// always logged and never propagated into a failed webhook response.
	ErrLogIOFailure = errors.New("payload log io failure")
)
