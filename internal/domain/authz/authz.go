// Package authz is the authorization registry: the init-once admin and the
// set of identities allowed to mint and update score records.
//
// All functions operate inside a caller-supplied store transaction so that a
// precondition check and the mutation it guards commit together.
package authz

import (
	"fmt"
	"slices"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/model"
)

// Store keys owned by the registry.
const (
	AdminKey   = "contract/admin"
	MintersKey = "contract/minters"
)

// Admin returns the installed admin. It reports false before initialize.
func Admin(r repository.Reader) (model.Identity, bool, error) {
	var state model.AdminState
	ok, err := repository.GetJSON(r, AdminKey, &state)
	if err != nil || !ok {
		return "", false, err
	}
	return state.Admin, true, nil
}

// Initialize installs admin. It fails if an admin already exists.
func Initialize(tx repository.Txn, admin model.Identity) error {
	_, ok, err := Admin(tx)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	return repository.PutJSON(tx, AdminKey, model.AdminState{Admin: admin})
}

// RequireInitialized returns the admin or ErrNotInitialized.
func RequireInitialized(r repository.Reader) (model.Identity, error) {
	admin, ok, err := Admin(r)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotInitialized
	}
	return admin, nil
}

// Minters returns the explicit minter set in sorted order. The admin is
// never part of it.
func Minters(r repository.Reader) ([]model.Identity, error) {
	var minters []model.Identity
	if _, err := repository.GetJSON(r, MintersKey, &minters); err != nil {
		return nil, err
	}
	if minters == nil {
		minters = []model.Identity{}
	}
	return minters, nil
}

// IsAuthorized reports whether id is the admin or an explicit minter. It is
// false before initialize.
func IsAuthorized(r repository.Reader, id model.Identity) (bool, error) {
	admin, ok, err := Admin(r)
	if err != nil || !ok {
		return false, err
	}
	if id == admin {
		return true, nil
	}
	minters, err := Minters(r)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(minters, id)
	return found, nil
}

// RequireMinter checks initialization and then the minter predicate for
// caller.
func RequireMinter(r repository.Reader, caller model.Identity) error {
	if _, err := RequireInitialized(r); err != nil {
		return err
	}
	if caller.IsZero() {
		return ErrNotAuthorized
	}
	ok, err := IsAuthorized(r, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a minter", ErrNotAuthorized, caller)
	}
	return nil
}

// RequireAdmin checks initialization and that caller is the admin.
func RequireAdmin(r repository.Reader, caller model.Identity) error {
	admin, err := RequireInitialized(r)
	if err != nil {
		return err
	}
	if caller.IsZero() || caller != admin {
		return fmt.Errorf("%w: admin required", ErrNotAuthorized)
	}
	return nil
}

// Authorize adds id to the minter set. Adding the admin or an existing
// minter changes nothing and reports false.
func Authorize(tx repository.Txn, id model.Identity) (bool, error) {
	admin, err := RequireInitialized(tx)
	if err != nil {
		return false, err
	}
	if id == admin {
		return false, nil
	}
	minters, err := Minters(tx)
	if err != nil {
		return false, err
	}
	i, found := slices.BinarySearch(minters, id)
	if found {
		return false, nil
	}
	minters = slices.Insert(minters, i, id)
	return true, repository.PutJSON(tx, MintersKey, minters)
}

// Revoke removes id from the minter set. The admin stays authorized
// regardless; removing an absent identity reports false.
func Revoke(tx repository.Txn, id model.Identity) (bool, error) {
	if _, err := RequireInitialized(tx); err != nil {
		return false, err
	}
	minters, err := Minters(tx)
	if err != nil {
		return false, err
	}
	i, found := slices.BinarySearch(minters, id)
	if !found {
		return false, nil
	}
	minters = slices.Delete(minters, i, i+1)
	return true, repository.PutJSON(tx, MintersKey, minters)
}
