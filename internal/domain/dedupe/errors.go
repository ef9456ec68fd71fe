package dedupe

import "errors"

// ErrInvalidRepaymentID reports a repayment id that is too long or carries
// reserved characters.
var ErrInvalidRepaymentID = errors.New("invalid repayment id")
