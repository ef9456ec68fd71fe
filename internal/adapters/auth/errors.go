package auth

import "errors"

var (
	// ErrInvalidToken reports a token that failed parsing, signature or
	// claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingToken reports a request that carried no token at all.
	ErrMissingToken = errors.New("missing token")
	// ErrTokenReplayed reports a token whose id was already accepted.
	ErrTokenReplayed = errors.New("token already used")
)
