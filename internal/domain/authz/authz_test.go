package authz_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/authz"
	"github.com/okian/scorenft/internal/domain/model"
)

const (
	admin  = model.Identity("IDadmin")
	minter = model.Identity("IDminter")
	other  = model.Identity("IDother")
)

func update(store repository.Store, fn func(repository.Txn) error) error {
	return store.Update(context.Background(), fn)
}

func isAuthorized(store repository.Store, id model.Identity) bool {
	var ok bool
	_ = store.View(context.Background(), func(r repository.Reader) error {
		var err error
		ok, err = authz.IsAuthorized(r, id)
		return err
	})
	return ok
}

func TestRegistryBeforeInitialize(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := repository.NewMemoryStore()

		Convey("Then nobody is authorized", func() {
			So(isAuthorized(store, admin), ShouldBeFalse)
		})

		Convey("Then gated checks report not initialized", func() {
			err := update(store, func(tx repository.Txn) error { return authz.RequireMinter(tx, admin) })
			So(errors.Is(err, authz.ErrNotInitialized), ShouldBeTrue)

			err = update(store, func(tx repository.Txn) error { return authz.RequireAdmin(tx, admin) })
			So(errors.Is(err, authz.ErrNotInitialized), ShouldBeTrue)

			err = update(store, func(tx repository.Txn) error {
				_, err := authz.Authorize(tx, minter)
				return err
			})
			So(errors.Is(err, authz.ErrNotInitialized), ShouldBeTrue)
		})

		Convey("Then the minter list is empty, not nil", func() {
			var minters []model.Identity
			So(store.View(context.Background(), func(r repository.Reader) error {
				var err error
				minters, err = authz.Minters(r)
				return err
			}), ShouldBeNil)
			So(minters, ShouldNotBeNil)
			So(minters, ShouldBeEmpty)
		})
	})
}

func TestRegistryLifecycle(t *testing.T) {
	Convey("Given an initialized registry", t, func() {
		store := repository.NewMemoryStore()
		So(update(store, func(tx repository.Txn) error { return authz.Initialize(tx, admin) }), ShouldBeNil)

		Convey("When initializing again", func() {
			before := store.Snapshot()
			err := update(store, func(tx repository.Txn) error { return authz.Initialize(tx, other) })

			Convey("Then it fails and the admin is unchanged", func() {
				So(errors.Is(err, authz.ErrAlreadyInitialized), ShouldBeTrue)
				So(store.Snapshot(), ShouldResemble, before)
			})
		})

		Convey("Then the admin is implicitly authorized", func() {
			So(isAuthorized(store, admin), ShouldBeTrue)
			So(isAuthorized(store, minter), ShouldBeFalse)
		})

		Convey("When a minter is authorized twice", func() {
			var first, second bool
			So(update(store, func(tx repository.Txn) error {
				var err error
				first, err = authz.Authorize(tx, minter)
				return err
			}), ShouldBeNil)
			So(update(store, func(tx repository.Txn) error {
				var err error
				second, err = authz.Authorize(tx, minter)
				return err
			}), ShouldBeNil)

			Convey("Then only the first call changes the set", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(isAuthorized(store, minter), ShouldBeTrue)
			})

			Convey("And revoking removes it idempotently", func() {
				var removed, again bool
				So(update(store, func(tx repository.Txn) error {
					var err error
					removed, err = authz.Revoke(tx, minter)
					return err
				}), ShouldBeNil)
				So(update(store, func(tx repository.Txn) error {
					var err error
					again, err = authz.Revoke(tx, minter)
					return err
				}), ShouldBeNil)
				So(removed, ShouldBeTrue)
				So(again, ShouldBeFalse)
				So(isAuthorized(store, minter), ShouldBeFalse)
			})
		})

		Convey("When the admin is authorized and revoked", func() {
			So(update(store, func(tx repository.Txn) error {
				_, err := authz.Authorize(tx, admin)
				return err
			}), ShouldBeNil)
			So(update(store, func(tx repository.Txn) error {
				_, err := authz.Revoke(tx, admin)
				return err
			}), ShouldBeNil)

			Convey("Then the admin stays authorized and never appears in the set", func() {
				So(isAuthorized(store, admin), ShouldBeTrue)
				var minters []model.Identity
				So(store.View(context.Background(), func(r repository.Reader) error {
					var err error
					minters, err = authz.Minters(r)
					return err
				}), ShouldBeNil)
				So(minters, ShouldBeEmpty)
			})
		})

		Convey("When several minters are added out of order", func() {
			for _, id := range []model.Identity{"IDc", "IDa", "IDb"} {
				So(update(store, func(tx repository.Txn) error {
					_, err := authz.Authorize(tx, id)
					return err
				}), ShouldBeNil)
			}

			Convey("Then the set is kept sorted", func() {
				var minters []model.Identity
				So(store.View(context.Background(), func(r repository.Reader) error {
					var err error
					minters, err = authz.Minters(r)
					return err
				}), ShouldBeNil)
				So(minters, ShouldResemble, []model.Identity{"IDa", "IDb", "IDc"})
			})
		})

		Convey("Then predicate checks enforce their roles", func() {
			err := update(store, func(tx repository.Txn) error { return authz.RequireAdmin(tx, other) })
			So(errors.Is(err, authz.ErrNotAuthorized), ShouldBeTrue)

			err = update(store, func(tx repository.Txn) error { return authz.RequireMinter(tx, other) })
			So(errors.Is(err, authz.ErrNotAuthorized), ShouldBeTrue)

			err = update(store, func(tx repository.Txn) error { return authz.RequireMinter(tx, "") })
			So(errors.Is(err, authz.ErrNotAuthorized), ShouldBeTrue)

			So(update(store, func(tx repository.Txn) error { return authz.RequireAdmin(tx, admin) }), ShouldBeNil)
			So(update(store, func(tx repository.Txn) error { return authz.RequireMinter(tx, admin) }), ShouldBeNil)
		})
	})
}
