package service

import (
	"errors"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/authz"
	"github.com/okian/scorenft/internal/domain/ledger"
	"github.com/okian/scorenft/internal/domain/scoring"
)

// Contract errors surfaced to callers. Match them with errors.Is.
var (
	ErrNotInitialized     = authz.ErrNotInitialized
	ErrAlreadyInitialized = authz.ErrAlreadyInitialized
	ErrNotAuthorized      = authz.ErrNotAuthorized
	ErrAlreadyMinted      = ledger.ErrAlreadyMinted
	ErrNoRecord           = ledger.ErrNoRecord
	ErrScoreOverflow      = scoring.ErrScoreOverflow
	ErrConflict           = repository.ErrConflict

	// ErrInvalidArgument reports malformed input such as a bad identity.
	ErrInvalidArgument = errors.New("invalid argument")
)

// resultOf classifies err for metrics labels.
func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrAlreadyMinted):
		return "already_minted"
	case errors.Is(err, ErrNoRecord):
		return "no_record"
	case errors.Is(err, ErrScoreOverflow):
		return "score_overflow"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}
