// Package dedupe keeps the receipts of applied repayments so a retried
// repayment is applied at most once. Receipts live in the contract store and
// are written in the same transaction as the score change they describe.
package dedupe

import (
	"fmt"
	"strings"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/model"
)

const (
	keyPrefix = "repayment/"

	// MaxRepaymentIDLen bounds client supplied repayment ids.
	MaxRepaymentIDLen = 128
)

// Receipt records one applied repayment.
type Receipt struct {
	Amount uint64 `json:"amount"`
	Delta  uint64 `json:"delta"`
	Score  uint64 `json:"score"`
}

// Key scopes a repayment id to the identity it was submitted for.
func Key(id model.Identity, repaymentID string) string {
	return keyPrefix + id.String() + "/" + repaymentID
}

// Validate rejects repayment ids that cannot be used as a store key suffix.
func Validate(repaymentID string) error {
	if len(repaymentID) > MaxRepaymentIDLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidRepaymentID, MaxRepaymentIDLen)
	}
	if strings.ContainsAny(repaymentID, "/\x00") {
		return fmt.Errorf("%w: must not contain '/' or NUL", ErrInvalidRepaymentID)
	}
	return nil
}

// Lookup returns the receipt of repaymentID for id, if one was committed.
func Lookup(r repository.Reader, id model.Identity, repaymentID string) (Receipt, bool, error) {
	var rc Receipt
	ok, err := repository.GetJSON(r, Key(id, repaymentID), &rc)
	if err != nil || !ok {
		return Receipt{}, false, err
	}
	return rc, true, nil
}

// Record stages the receipt of repaymentID for id.
func Record(tx repository.Txn, id model.Identity, repaymentID string, rc Receipt) error {
	return repository.PutJSON(tx, Key(id, repaymentID), rc)
}
