package fetcher

import "errors"

var (
	// ErrIdentityNotFound is terminal for the current call: the upstream
	// source does not resolve the handle to a non-empty book list right
	// now. The identity may still resolve on a later attempt.
	ErrIdentityNotFound = errors.New("identity not found upstream")

	// ErrUpstreamUnreachable and ErrUpstreamMalformed are retryable on
	// the next scheduled or manual trigger.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamMalformed   = errors.New("upstream response malformed")
)
