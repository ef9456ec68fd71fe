// Package storetest holds the behavioural suite every repository.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/scorenft/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

var errAbort = errors.New("abort")

// Run exercises store semantics against a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()

	Convey("Given an empty "+t.Name()+" store", t, func() {
		store := newStore(t)
		ctx := context.Background()

		Convey("When reading a missing key", func() {
			var found bool
			err := store.View(ctx, func(r repository.Reader) error {
				_, ok, err := r.Get("missing")
				found = ok
				return err
			})

			Convey("Then it should report absence without error", func() {
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)
			})
		})

		Convey("When an update commits", func() {
			err := store.Update(ctx, func(tx repository.Txn) error {
				if err := tx.Put("a", []byte("1")); err != nil {
					return err
				}
				v, ok, err := tx.Get("a")
				if err != nil {
					return err
				}
				if !ok || string(v) != "1" {
					return fmt.Errorf("staged write not visible: %q %v", v, ok)
				}
				return tx.Put("b", []byte("2"))
			})

			Convey("Then both writes should be visible afterwards", func() {
				So(err, ShouldBeNil)
				So(read(ctx, store, "a"), ShouldEqual, "1")
				So(read(ctx, store, "b"), ShouldEqual, "2")
			})
		})

		Convey("When an update only reads", func() {
			So(store.Update(ctx, func(tx repository.Txn) error {
				return tx.Put("a", []byte("1"))
			}), ShouldBeNil)

			var seen string
			calls := 0
			err := store.Update(ctx, func(tx repository.Txn) error {
				calls++
				v, _, err := tx.Get("a")
				seen = string(v)
				return err
			})

			Convey("Then it should succeed once and change nothing", func() {
				So(err, ShouldBeNil)
				So(calls, ShouldEqual, 1)
				So(seen, ShouldEqual, "1")
				So(read(ctx, store, "a"), ShouldEqual, "1")
			})
		})

		Convey("When an update fails after staging writes", func() {
			So(store.Update(ctx, func(tx repository.Txn) error {
				return tx.Put("a", []byte("before"))
			}), ShouldBeNil)

			err := store.Update(ctx, func(tx repository.Txn) error {
				if err := tx.Put("a", []byte("after")); err != nil {
					return err
				}
				if err := tx.Put("c", []byte("new")); err != nil {
					return err
				}
				return errAbort
			})

			Convey("Then nothing should be written and the error should surface", func() {
				So(errors.Is(err, errAbort), ShouldBeTrue)
				So(read(ctx, store, "a"), ShouldEqual, "before")
				So(read(ctx, store, "c"), ShouldEqual, "")
			})
		})

		Convey("When JSON helpers round-trip a value", func() {
			type payload struct {
				N int `json:"n"`
			}
			So(store.Update(ctx, func(tx repository.Txn) error {
				return repository.PutJSON(tx, "json", payload{N: 7})
			}), ShouldBeNil)

			var got payload
			var ok bool
			err := store.View(ctx, func(r repository.Reader) error {
				var err error
				ok, err = repository.GetJSON(r, "json", &got)
				return err
			})

			Convey("Then the decoded value should match", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.N, ShouldEqual, 7)
			})
		})

		Convey("When many updates increment one counter concurrently", func() {
			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- store.Update(ctx, func(tx repository.Txn) error {
						var count int
						if _, err := repository.GetJSON(tx, "counter", &count); err != nil {
							return err
						}
						return repository.PutJSON(tx, "counter", count+1)
					})
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then no increment should be lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				So(read(ctx, store, "counter"), ShouldEqual, fmt.Sprint(n))
			})
		})

		Reset(func() {
			_ = store.Close()
		})
	})
}

func read(ctx context.Context, store repository.Store, key string) string {
	var out string
	err := store.View(ctx, func(r repository.Reader) error {
		v, ok, err := r.Get(key)
		if ok {
			out = string(v)
		}
		return err
	})
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}
