package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/adapters/repository/storetest"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store {
		return repository.NewMemoryStore()
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	Convey("Given a closed memory store", t, func() {
		store := repository.NewMemoryStore()
		So(store.Close(), ShouldBeNil)
		ctx := context.Background()

		Convey("Then reads and updates should fail with ErrClosed", func() {
			err := store.View(ctx, func(repository.Reader) error { return nil })
			So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			err = store.Update(ctx, func(repository.Txn) error { return nil })
			So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_Snapshot(t *testing.T) {
	Convey("Given a store with one committed key", t, func() {
		store := repository.NewMemoryStore()
		ctx := context.Background()
		So(store.Update(ctx, func(tx repository.Txn) error {
			return tx.Put("k", []byte("v"))
		}), ShouldBeNil)

		Convey("When mutating the snapshot copy", func() {
			snap := store.Snapshot()
			snap["k"][0] = 'x'

			Convey("Then the store should be unaffected", func() {
				So(string(store.Snapshot()["k"]), ShouldEqual, "v")
			})
		})
	})
}

func TestGetJSON_Corrupt(t *testing.T) {
	Convey("Given a key holding invalid JSON", t, func() {
		store := repository.NewMemoryStore()
		ctx := context.Background()
		So(store.Update(ctx, func(tx repository.Txn) error {
			return tx.Put("bad", []byte("{"))
		}), ShouldBeNil)

		Convey("Then GetJSON should report ErrCorrupt", func() {
			err := store.View(ctx, func(r repository.Reader) error {
				var v map[string]any
				_, err := repository.GetJSON(r, "bad", &v)
				return err
			})
			So(errors.Is(err, repository.ErrCorrupt), ShouldBeTrue)
		})
	})
}
