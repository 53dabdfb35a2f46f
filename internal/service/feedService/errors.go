package feedService

import "errors"

var (
	ErrNotRegistered     = errors.New("identity not registered")
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrDisabled          = errors.New("identity disabled")
)
