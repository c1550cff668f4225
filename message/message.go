// Package message implements Ethereum's "personal_sign" message signing
// convention: a fixed prefix plus the decimal-ASCII length of the message,
// hashed with Keccak-256 and signed as a legacy (chainId=0) signature.
package message

import (
	"fmt"
	"strconv"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/hashing"
	"github.com/olehkaliuzhnyi/ethwallet/signing"
)

const prefix = "\x19Ethereum Signed Message:\n"

// Digest computes the personal-sign digest of m:
// Keccak256(prefix || len10(len(m)) || m).
func Digest(m []byte) []byte {
	header := prefix + strconv.Itoa(len(m))
	return hashing.Keccak256([]byte(header), m)
}

// Signature is the (r, s, v) triplet produced by Sign, always using legacy
// v encoding (27 or 28) since personal-sign is not chain-bound.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// Sign signs m with privKey32, returning a legacy-encoded signature.
func Sign(privKey32, m []byte) (*Signature, error) {
	digest := Digest(m)
	sig, err := signing.Sign(privKey32, digest)
	if err != nil {
		return nil, err
	}
	return &Signature{R: sig.R, S: sig.S, V: 27 + sig.RecID}, nil
}

// Verify recovers the signer address from sig over m and reports whether it
// matches want.
func Verify(m []byte, sig *Signature, want addr.Address) (bool, error) {
	got, err := RecoverAddress(m, sig)
	if err != nil {
		return false, err
	}
	return got.Equal(want), nil
}

// RecoverAddress recovers the address that produced sig over m.
func RecoverAddress(m []byte, sig *Signature) (addr.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return addr.Zero, fmt.Errorf("message: unrecognized v %d", sig.V)
	}
	digest := Digest(m)
	recID := sig.V - 27
	pub, err := signing.Recover(digest, &signing.Signature{R: sig.R, S: sig.S, RecID: recID})
	if err != nil {
		return addr.Zero, err
	}
	h := hashing.Keccak256(pub[1:])
	return addr.FromBytes(h[12:])
}
