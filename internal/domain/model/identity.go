// Package model contains domain models passed between layers.
package model

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// identityPrefix marks the textual form of an identity.
const identityPrefix = "ID"

// ErrInvalidIdentity reports an identity string that is not a prefixed
// hex-encoded Ed25519 public key.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is an authenticable principal. Its text form is "ID" followed by
// the lower-case hex of an Ed25519 public key, so the identity itself names
// the key that must sign for it.
type Identity string

// IdentityFromPublicKey derives the identity for pub.
func IdentityFromPublicKey(pub ed25519.PublicKey) Identity {
	return Identity(identityPrefix + hex.EncodeToString(pub))
}

// ParseIdentity validates s and returns it in canonical form.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	raw, ok := strings.CutPrefix(s, identityPrefix)
	if !ok {
		return "", fmt.Errorf("%w: missing %q prefix", ErrInvalidIdentity, identityPrefix)
	}
	if len(raw) != hex.EncodedLen(ed25519.PublicKeySize) {
		return "", fmt.Errorf("%w: want %d hex chars", ErrInvalidIdentity, hex.EncodedLen(ed25519.PublicKeySize))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return IdentityFromPublicKey(b), nil
}

// PublicKey decodes the Ed25519 key named by the identity.
func (id Identity) PublicKey() (ed25519.PublicKey, error) {
	canonical, err := ParseIdentity(string(id))
	if err != nil {
		return nil, err
	}
	b, _ := hex.DecodeString(strings.TrimPrefix(string(canonical), identityPrefix))
	return ed25519.PublicKey(b), nil
}

func (id Identity) String() string { return string(id) }

// IsZero reports whether the identity is empty.
func (id Identity) IsZero() bool { return id == "" }
