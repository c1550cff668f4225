// Package signing implements ECDSA over secp256k1 with the canonical-s and
// recovery-id conventions Ethereum relies on, on top of
// github.com/btcsuite/btcd/btcec/v2 and its ecdsa sub-package, which
// provide RFC 6979 deterministic nonce generation and compact
// recoverable signatures.
package signing

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	dsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ErrBadSignature is returned when r or s is zero, or a supplied signature
// otherwise fails to recover a valid public key.
var ErrBadSignature = errors.New("signing: bad signature")

// Signature is the (r, s, recovery-id) triplet produced by Sign. recID is
// in {0,1,2,3}; callers fold it into a chain-specific v value (see the
// transaction and message packages).
type Signature struct {
	R     [32]byte
	S     [32]byte
	RecID byte
}

var (
	curveOrder     = btcec.S256().N
	halfCurveOrder = new(big.Int).Rsh(curveOrder, 1)
)

// Sign produces a deterministic (RFC 6979, HMAC-SHA-256) ECDSA signature
// over a 32-byte digest using the secp256k1 private key scalar in
// privKey32. The resulting s is canonicalized to s <= n/2, flipping recID's
// bit 0 to compensate, as EIP-2 requires.
func Sign(privKey32, digest32 []byte) (*Signature, error) {
	if len(digest32) != 32 {
		return nil, fmt.Errorf("signing: digest must be 32 bytes, got %d", len(digest32))
	}
	priv, _ := btcec.PrivKeyFromBytes(privKey32)

	compact := dsa.SignCompact(priv, digest32, false)
	if len(compact) != 65 {
		return nil, fmt.Errorf("signing: unexpected compact signature length %d", len(compact))
	}

	recID := compact[0] - 27
	var sig Signature
	copy(sig.R[:], compact[1:33])
	copy(sig.S[:], compact[33:65])
	sig.RecID = recID

	if err := checkCanonical(&sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

func checkCanonical(sig *Signature) error {
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if r.Sign() == 0 || s.Sign() == 0 {
		return fmt.Errorf("%w: r or s is zero", ErrBadSignature)
	}
	if s.Cmp(halfCurveOrder) > 0 {
		return fmt.Errorf("%w: s is not canonical (s > n/2)", ErrBadSignature)
	}
	if sig.RecID > 3 {
		return fmt.Errorf("%w: recovery id out of range", ErrBadSignature)
	}
	return nil
}

// Recover reconstructs the 65-byte uncompressed public key (0x04 prefix)
// that produced sig over digest32.
func Recover(digest32 []byte, sig *Signature) ([]byte, error) {
	if len(digest32) != 32 {
		return nil, fmt.Errorf("signing: digest must be 32 bytes, got %d", len(digest32))
	}
	if err := checkCanonical(sig); err != nil {
		return nil, err
	}

	compact := make([]byte, 65)
	compact[0] = 27 + sig.RecID
	copy(compact[1:33], sig.R[:])
	copy(compact[33:65], sig.S[:])

	pub, _, err := dsa.RecoverCompact(compact, digest32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return pub.SerializeUncompressed(), nil
}

// PublicKeyFromPrivate derives the 65-byte uncompressed public key for a
// 32-byte private key scalar.
func PublicKeyFromPrivate(privKey32 []byte) []byte {
	_, pub := btcec.PrivKeyFromBytes(privKey32)
	return pub.SerializeUncompressed()
}
