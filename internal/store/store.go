// Package store implements the durable tier of the content store.
//
// A Backend is a keyed store of immutable entries:
// - Get/PutIfAbsent/Delete for point operations
// - Scan for full enumeration (retention sweeps, replication, listing)
// - Entries are never updated in place; a key is written at most once
//
// Two backends are provided: badger (default) and a sharded filesystem
// layout. Both persist entries through the same CBOR Codec.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Backend.Get when the key is absent.
	ErrNotFound = errors.New("store: entry not found")
	// ErrCorrupt marks a stored value that could not be decoded.
	ErrCorrupt = errors.New("store: corrupt entry")
)

// KeySize is the width of a Key in bytes.
const KeySize = 32

// Key is the content digest an entry is stored under.
type Key [KeySize]byte

// Hex returns the lowercase hex encoding of k without prefix.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// ParseHexKey decodes a key previously produced by Hex.
func ParseHexKey(s string) (Key, error) {
	var k Key
	if len(s) != KeySize*2 {
		return k, errors.New("store: bad key length")
	}
	_, err := hex.Decode(k[:], []byte(s))
	return k, err
}

// Entry is a stored content body.
type Entry struct {
	Key      Key
	Body     []byte
	StoredAt time.Time
}

// Backend handles durable entry storage.
type Backend interface {
	// Get retrieves an entry by key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key Key) (Entry, error)

	// PutIfAbsent stores e unless its key already exists.
	// created is false when an entry was already present.
	PutIfAbsent(ctx context.Context, e Entry) (created bool, err error)

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// Scan calls fn for every stored entry. A non-nil error from fn stops
	// the scan and is returned. Undecodable entries do not stop the scan;
	// they are reported afterwards as errors wrapping ErrCorrupt.
	Scan(ctx context.Context, fn func(Entry) error) error

	// Close releases the backend.
	Close() error
}

// Compactor is implemented by backends that can reclaim space after
// deletions.
type Compactor interface {
	Compact() error
}
