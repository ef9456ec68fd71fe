package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrConflict = errors.New("transaction conflict")
	ErrClosed   = errors.New("store closed")
	ErrCorrupt  = errors.New("stored value is corrupt")
)
