// Package hashing collects the primitive digest functions used throughout
// the custody and serialization cores: Keccak-256 (the original,
// pre-standardization SHA-3 candidate Ethereum actually uses), SHA-256,
// SHA-1, and HMAC-SHA-512. All are deterministic; Keccak-256 is also
// available as a streaming hash.Hash via NewKeccak256.
package hashing

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // SHA-1 is required for legacy BIP-32/44 compatibility checks, not used for security here
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/sha3"
)

// NewKeccak256 returns a streaming Keccak-256 hasher using the legacy
// (pre-NIST) padding, golang.org/x/crypto/sha3's LegacyKeccak256.
func NewKeccak256() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// Keccak256 hashes data in one call.
func Keccak256(data ...[]byte) []byte {
	h := NewKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// SHA256 hashes data with SHA-256, used for the BIP-39 checksum and for
// Bitcoin-style double hashing elsewhere in the ecosystem.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SHA1 hashes data with SHA-1. Present only because some legacy wallet
// formats key derivation metadata off it; never used for anything
// security-sensitive in this module.
func SHA1(data []byte) []byte {
	sum := sha1.Sum(data) //nolint:gosec
	return sum[:]
}

// HMACSHA512 computes HMAC-SHA-512(key, data), the primitive BIP-32 uses to
// derive a master key and child keys.
func HMACSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
