package client

import (
	"fmt"

	"github.com/okian/scorenft/internal/domain/authz"
	"github.com/okian/scorenft/internal/domain/ledger"
	"github.com/okian/scorenft/internal/domain/scoring"
)

// APIError is a non-2xx answer from the ledger API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps well-known error codes back onto the contract errors so
// callers can match them with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_initialized":
		return authz.ErrNotInitialized
	case "already_initialized":
		return authz.ErrAlreadyInitialized
	case "not_authorized":
		return authz.ErrNotAuthorized
	case "already_minted":
		return ledger.ErrAlreadyMinted
	case "no_record":
		return ledger.ErrNoRecord
	case "score_overflow":
		return scoring.ErrScoreOverflow
	default:
		return nil
	}
}
