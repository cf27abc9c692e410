package wallcas

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// AddressSize is the width of an Address in bytes.
	AddressSize = 32

	addressPrefix = "0x"
)

// Address is the keccak-256 digest of a content body. It is the only
// content-identifying value recorded on the ledger.
type Address [AddressSize]byte

// Digest computes the address of body: keccak-256 over its UTF-8 bytes.
func Digest(body string) Address {
	var a Address
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(body))
	h.Sum(a[:0])
	return a
}

// Verify reports whether body hashes to a.
func Verify(body string, a Address) bool {
	return Digest(body) == a
}

// String returns the 0x-prefixed lowercase hex form used by the ledger.
func (a Address) String() string {
	return addressPrefix + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the absent placeholder.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses the hex form of an address. The 0x prefix is optional
// and hex digits may be either case.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(s, addressPrefix), "0X")
	if len(raw) != AddressSize*2 {
		return a, fmt.Errorf("%w: %q: want %d hex characters, got %d", ErrMalformedAddress, s, AddressSize*2, len(raw))
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrMalformedAddress, s, err)
	}
	return a, nil
}

// ParseAddresses parses a list of hex addresses as handed over by a ledger
// query. Empty strings are absent placeholders and are skipped. Malformed
// entries are skipped too and reported together in the returned error.
func ParseAddresses(in []string) ([]Address, error) {
	out := make([]Address, 0, len(in))
	var errs []error
	for _, s := range in {
		if s == "" {
			continue
		}
		a, err := ParseAddress(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}

// shard returns the lock stripe for a.
func (a Address) shard() int {
	return int(a[0])
}
