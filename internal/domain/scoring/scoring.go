// Package scoring defines how repayments turn into score points.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/okian/scorenft/internal/domain/model"
)

// RepaymentUnit is the repayment amount worth one score point. Downstream
// score consumers depend on this exact value.
const RepaymentUnit = 100

// ErrScoreOverflow is returned when adding a delta would exceed uint64.
var ErrScoreOverflow = errors.New("score overflow")

// Input carries the current record state and the repayment being applied.
type Input struct {
	Identity  model.Identity
	Current   uint64
	Repayment uint64
}

// Result contains the new score and the points added.
type Result struct {
	Identity model.Identity
	Score    uint64
	Delta    uint64
}

// Scorer computes the score that results from a repayment.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

// RepaymentScorer adds floor(repayment / RepaymentUnit) points and fails
// closed on overflow.
type RepaymentScorer struct{}

// NewRepaymentScorer returns the ledger's scoring policy.
func NewRepaymentScorer() *RepaymentScorer {
	return &RepaymentScorer{}
}

// Delta returns the points a repayment is worth.
func Delta(repayment uint64) uint64 {
	return repayment / RepaymentUnit
}

// Apply adds the repayment's delta to current.
func Apply(current, repayment uint64) (score, delta uint64, err error) {
	delta = Delta(repayment)
	sum, carry := bits.Add64(current, delta, 0)
	if carry != 0 {
		return current, delta, fmt.Errorf("%w: %d + %d", ErrScoreOverflow, current, delta)
	}
	return sum, delta, nil
}

// Score implements Scorer.
func (s *RepaymentScorer) Score(_ context.Context, in Input) (Result, error) {
	score, delta, err := Apply(in.Current, in.Repayment)
	if err != nil {
		return Result{}, err
	}
	return Result{Identity: in.Identity, Score: score, Delta: delta}, nil
}
