package model

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HistoryHashSize is the length of an opaque history reference.
const HistoryHashSize = 32

// ErrInvalidHistoryHash reports a history reference that is not 32 bytes of hex.
var ErrInvalidHistoryHash = errors.New("invalid history hash")

// HistoryHash points at an externally stored repayment history document.
// The ledger never interprets it.
type HistoryHash [HistoryHashSize]byte

// ParseHistoryHash decodes a 64-char hex string.
func ParseHistoryHash(s string) (HistoryHash, error) {
	var h HistoryHash
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != hex.EncodedLen(HistoryHashSize) {
		return h, fmt.Errorf("%w: want %d hex chars", ErrInvalidHistoryHash, hex.EncodedLen(HistoryHashSize))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHistoryHash, err)
	}
	return h, nil
}

func (h HistoryHash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText encodes the hash as lower-case hex.
func (h HistoryHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex hash.
func (h *HistoryHash) UnmarshalText(b []byte) error {
	parsed, err := ParseHistoryHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ScoreRecord is the per-identity score NFT.
type ScoreRecord struct {
	Score       uint64      `json:"score"`
	HistoryHash HistoryHash `json:"history_hash"`
}

// AdminState is the init-once contract configuration.
type AdminState struct {
	Admin Identity `json:"admin"`
}

// EventKind names a committed ledger mutation.
type EventKind string

const (
	EventInitialized       EventKind = "initialized"
	EventMinted            EventKind = "minted"
	EventScoreUpdated      EventKind = "score_updated"
	EventHistoryHashUpdate EventKind = "history_hash_updated"
	EventMinterAuthorized  EventKind = "minter_authorized"
	EventMinterRevoked     EventKind = "minter_revoked"
)

// Event describes one committed mutation. Events are published after the
// store transaction commits and never influence the call outcome.
type Event struct {
	EventID     string      `json:"event_id"`
	Kind        EventKind   `json:"kind"`
	Identity    Identity    `json:"identity"`
	Caller      Identity    `json:"caller,omitempty"`
	Score       uint64      `json:"score,omitempty"`
	Delta       uint64      `json:"delta,omitempty"`
	HistoryHash HistoryHash `json:"history_hash"`
	At          time.Time   `json:"at"`
}
