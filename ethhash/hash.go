// Package ethhash defines Hash, the 32-byte digest type used for block
// hashes and transaction hashes.
package ethhash

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Length is the fixed byte length of a Hash.
const Length = 32

// Hash is an immutable 32-byte digest.
type Hash struct {
	b [Length]byte
}

// Zero is the all-zero Hash.
var Zero = Hash{}

// FromBytes constructs a Hash from exactly 32 bytes.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Length {
		return h, fmt.Errorf("ethhash: want %d bytes, got %d", Length, len(b))
	}
	copy(h.b[:], b)
	return h, nil
}

// FromHex parses a 0x-optional, 64-hex-character string.
func FromHex(s string) (Hash, error) {
	var h Hash
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) != Length*2 {
		return h, fmt.Errorf("ethhash: expected %d hex chars, got %d", Length*2, len(trimmed))
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return h, fmt.Errorf("ethhash: %w", err)
	}
	copy(h.b[:], raw)
	return h, nil
}

// Bytes returns a copy of the 32-byte digest.
func (h Hash) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, h.b[:])
	return out
}

// Hex returns the "0x"-prefixed lowercase hex form.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h.b[:])
}

// Equal reports whether two hashes are identical.
func (h Hash) Equal(o Hash) bool {
	return h.b == o.b
}

// IsZero reports whether this is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}
