package authz

import "errors"

var (
	// ErrNotInitialized is returned by gated operations before initialize.
	ErrNotInitialized = errors.New("contract not initialized")
	// ErrAlreadyInitialized is returned by a second initialize.
	ErrAlreadyInitialized = errors.New("contract already initialized")
	// ErrNotAuthorized is returned when the caller fails the predicate the
	// operation requires.
	ErrNotAuthorized = errors.New("caller not authorized")
)
