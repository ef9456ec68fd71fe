package ledger_test

import (
	"context"
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/ledger"
	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/scoring"
)

const alice = model.Identity("IDalice")

func hashOf(b byte) model.HistoryHash {
	var h model.HistoryHash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestLedger(t *testing.T) {
	Convey("Given an empty ledger", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		scorer := scoring.NewRepaymentScorer()

		get := func() (model.ScoreRecord, bool) {
			var rec model.ScoreRecord
			var ok bool
			So(store.View(ctx, func(r repository.Reader) error {
				var err error
				rec, ok, err = ledger.Get(r, alice)
				return err
			}), ShouldBeNil)
			return rec, ok
		}

		Convey("Then an absent identity scores 0 and has no record", func() {
			var score uint64
			So(store.View(ctx, func(r repository.Reader) error {
				var err error
				score, err = ledger.Score(r, alice)
				return err
			}), ShouldBeNil)
			So(score, ShouldEqual, uint64(0))
			_, ok := get()
			So(ok, ShouldBeFalse)
		})

		Convey("Then updating an absent record fails with ErrNoRecord", func() {
			err := store.Update(ctx, func(tx repository.Txn) error {
				_, err := ledger.UpdateScore(ctx, tx, scorer, alice, 200)
				return err
			})
			So(errors.Is(err, ledger.ErrNoRecord), ShouldBeTrue)

			err = store.Update(ctx, func(tx repository.Txn) error {
				_, err := ledger.UpdateHistoryHash(tx, alice, hashOf(1))
				return err
			})
			So(errors.Is(err, ledger.ErrNoRecord), ShouldBeTrue)
			So(store.Snapshot(), ShouldBeEmpty)
		})

		Convey("When a record is minted at 500", func() {
			So(store.Update(ctx, func(tx repository.Txn) error {
				_, err := ledger.Mint(tx, alice, 500, hashOf(1))
				return err
			}), ShouldBeNil)

			Convey("Then minting again fails and the record is unchanged", func() {
				err := store.Update(ctx, func(tx repository.Txn) error {
					_, err := ledger.Mint(tx, alice, 9, hashOf(2))
					return err
				})
				So(errors.Is(err, ledger.ErrAlreadyMinted), ShouldBeTrue)
				rec, _ := get()
				So(rec.Score, ShouldEqual, uint64(500))
				So(rec.HistoryHash, ShouldResemble, hashOf(1))
			})

			Convey("Then repayments of 200, 1000 and 99 give 502, 512, 512", func() {
				var scores []uint64
				for _, amount := range []uint64{200, 1000, 99} {
					So(store.Update(ctx, func(tx repository.Txn) error {
						res, err := ledger.UpdateScore(ctx, tx, scorer, alice, amount)
						scores = append(scores, res.Score)
						return err
					}), ShouldBeNil)
				}
				So(scores, ShouldResemble, []uint64{502, 512, 512})
				rec, _ := get()
				So(rec.HistoryHash, ShouldResemble, hashOf(1))
			})

			Convey("Then replacing the hash keeps the score", func() {
				So(store.Update(ctx, func(tx repository.Txn) error {
					_, err := ledger.UpdateHistoryHash(tx, alice, hashOf(2))
					return err
				}), ShouldBeNil)
				rec, _ := get()
				So(rec.Score, ShouldEqual, uint64(500))
				So(rec.HistoryHash, ShouldResemble, hashOf(2))
			})
		})

		Convey("When a record sits near the uint64 limit", func() {
			So(store.Update(ctx, func(tx repository.Txn) error {
				_, err := ledger.Mint(tx, alice, math.MaxUint64, hashOf(1))
				return err
			}), ShouldBeNil)

			Convey("Then an overflowing repayment fails and leaves the score", func() {
				err := store.Update(ctx, func(tx repository.Txn) error {
					_, err := ledger.UpdateScore(ctx, tx, scorer, alice, 100)
					return err
				})
				So(errors.Is(err, scoring.ErrScoreOverflow), ShouldBeTrue)
				rec, _ := get()
				So(rec.Score, ShouldEqual, uint64(math.MaxUint64))
			})

			Convey("Then a repayment below one unit still succeeds", func() {
				So(store.Update(ctx, func(tx repository.Txn) error {
					_, err := ledger.UpdateScore(ctx, tx, scorer, alice, 99)
					return err
				}), ShouldBeNil)
			})
		})
	})
}
