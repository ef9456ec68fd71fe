package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthenticated = errors.New("unauthenticated")
)

func errMissing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrBadRequest, field)
}
