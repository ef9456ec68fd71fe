// Package ledger holds the score records. Records are created once, their
// score only grows through repayments and their history hash is replaced
// wholesale. Records are never deleted.
//
// Authorization is the caller's job; these functions assume it was checked
// inside the same transaction.
package ledger

import (
	"context"
	"fmt"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/scoring"
)

const recordKeyPrefix = "record/"

// RecordKey is the store key of id's record.
func RecordKey(id model.Identity) string {
	return recordKeyPrefix + id.String()
}

// Get returns id's record and whether it exists.
func Get(r repository.Reader, id model.Identity) (model.ScoreRecord, bool, error) {
	var rec model.ScoreRecord
	ok, err := repository.GetJSON(r, RecordKey(id), &rec)
	if err != nil || !ok {
		return model.ScoreRecord{}, false, err
	}
	return rec, true, nil
}

// Score returns id's score, or 0 when it has no record.
func Score(r repository.Reader, id model.Identity) (uint64, error) {
	rec, _, err := Get(r, id)
	return rec.Score, err
}

// Mint creates id's record.
func Mint(tx repository.Txn, id model.Identity, score uint64, hash model.HistoryHash) (model.ScoreRecord, error) {
	_, ok, err := Get(tx, id)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if ok {
		return model.ScoreRecord{}, fmt.Errorf("%w: %s", ErrAlreadyMinted, id)
	}
	rec := model.ScoreRecord{Score: score, HistoryHash: hash}
	if err := repository.PutJSON(tx, RecordKey(id), rec); err != nil {
		return model.ScoreRecord{}, err
	}
	return rec, nil
}

// UpdateScore applies a repayment to id's record through scorer.
func UpdateScore(ctx context.Context, tx repository.Txn, scorer scoring.Scorer, id model.Identity, repayment uint64) (scoring.Result, error) {
	rec, ok, err := Get(tx, id)
	if err != nil {
		return scoring.Result{}, err
	}
	if !ok {
		return scoring.Result{}, fmt.Errorf("%w: %s", ErrNoRecord, id)
	}
	res, err := scorer.Score(ctx, scoring.Input{Identity: id, Current: rec.Score, Repayment: repayment})
	if err != nil {
		return scoring.Result{}, err
	}
	rec.Score = res.Score
	if err := repository.PutJSON(tx, RecordKey(id), rec); err != nil {
		return scoring.Result{}, err
	}
	return res, nil
}

// UpdateHistoryHash replaces id's history hash. The score is untouched.
func UpdateHistoryHash(tx repository.Txn, id model.Identity, hash model.HistoryHash) (model.ScoreRecord, error) {
	rec, ok, err := Get(tx, id)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if !ok {
		return model.ScoreRecord{}, fmt.Errorf("%w: %s", ErrNoRecord, id)
	}
	rec.HistoryHash = hash
	if err := repository.PutJSON(tx, RecordKey(id), rec); err != nil {
		return model.ScoreRecord{}, err
	}
	return rec, nil
}
