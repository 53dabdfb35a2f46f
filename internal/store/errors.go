package store

import "errors"

var (
	ErrNotRegistered = errors.New("identity not registered")

	// ErrStoreUnavailable degrades caching but must never block serving:
	// readers fall back to always-fetch, writers surface the error and
	// the freshly fetched list is still served.
	ErrStoreUnavailable = errors.New("cache store unavailable")
)
