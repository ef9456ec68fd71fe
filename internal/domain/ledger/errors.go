package ledger

import "errors"

var (
	// ErrAlreadyMinted is returned when minting an identity that has a record.
	ErrAlreadyMinted = errors.New("record already minted")
	// ErrNoRecord is returned when updating an identity without a record.
	ErrNoRecord = errors.New("no record")
)
