// Package account implements the Account type: a private scalar held in a
// secure buffer, with a cached derived address and optional retained
// mnemonic material, tying together the mnemonic, signing, keystore,
// transaction, and message packages.
package account

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/hashing"
	"github.com/olehkaliuzhnyi/ethwallet/keystore"
	"github.com/olehkaliuzhnyi/ethwallet/message"
	"github.com/olehkaliuzhnyi/ethwallet/mnemonic"
	"github.com/olehkaliuzhnyi/ethwallet/securemem"
	"github.com/olehkaliuzhnyi/ethwallet/signing"
	"github.com/olehkaliuzhnyi/ethwallet/transaction"
)

// ErrInvalidPrivateKey is returned when a supplied private key is not a
// 32-byte scalar.
var ErrInvalidPrivateKey = errors.New("account: invalid private key")

// ErrMnemonicMismatch is returned by FromMnemonicForAddress when the
// derived account does not match the address the caller expected.
var ErrMnemonicMismatch = errors.New("account: mnemonic does not reproduce the expected address")

// Account holds a 32-byte private scalar in a SecureBytes buffer. The
// derived address is computed once at construction and cached; the private
// scalar itself is never copied onto unsecured storage outside of the
// narrow, stack-local windows signing operations need.
type Account struct {
	key     *securemem.SecureBytes
	address addr.Address

	// mnemonicPhrase and mnemonicEntropy are retained only when the
	// account was constructed from a mnemonic, for display purposes; both
	// are empty/nil for accounts constructed from a raw private key.
	mnemonicPhrase  string
	mnemonicEntropy []byte
}

// FromPrivateKey constructs an Account directly from a 32-byte private
// scalar.
func FromPrivateKey(privKey32 []byte) (*Account, error) {
	if len(privKey32) != 32 {
		return nil, fmt.Errorf("%w: want 32 bytes, got %d", ErrInvalidPrivateKey, len(privKey32))
	}
	address, err := addressFromPrivateKey(privKey32)
	if err != nil {
		return nil, err
	}
	return &Account{key: securemem.FromBytes(privKey32), address: address}, nil
}

// FromMnemonic derives the account-path private key from phrase and an
// optional BIP-39 passphrase, retaining the phrase for later display.
func FromMnemonic(phrase, passphrase string) (*Account, error) {
	privKey, err := mnemonic.DeriveAccountKey(phrase, passphrase)
	if err != nil {
		return nil, err
	}
	acc, err := FromPrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	acc.mnemonicPhrase = phrase
	return acc, nil
}

// FromMnemonicForAddress derives as FromMnemonic does, then checks the
// derived address against want — the restore path for a wallet whose
// address is already known (from a keystore document or a watch list).
// A phrase that validates but derives a different address fails with
// ErrMnemonicMismatch.
func FromMnemonicForAddress(phrase, passphrase string, want addr.Address) (*Account, error) {
	acc, err := FromMnemonic(phrase, passphrase)
	if err != nil {
		return nil, err
	}
	if !acc.address.Equal(want) {
		return nil, fmt.Errorf("%w: derived %s, want %s", ErrMnemonicMismatch, acc.address.Hex(), want.Hex())
	}
	return acc, nil
}

// FromMnemonicEntropy rebuilds the phrase from raw entropy bytes, then
// derives as FromMnemonic does.
func FromMnemonicEntropy(entropy []byte, passphrase string) (*Account, error) {
	phrase, err := mnemonic.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	acc, err := FromMnemonic(phrase, passphrase)
	if err != nil {
		return nil, err
	}
	acc.mnemonicEntropy = append([]byte(nil), entropy...)
	return acc, nil
}

// Random generates a new account from fresh 128-bit (12-word) entropy.
func Random() (*Account, error) {
	entropy, err := mnemonic.NewEntropy(128)
	if err != nil {
		return nil, err
	}
	return FromMnemonicEntropy(entropy, "")
}

func addressFromPrivateKey(privKey32 []byte) (addr.Address, error) {
	pub := signing.PublicKeyFromPrivate(privKey32)
	if len(pub) != 65 || pub[0] != 0x04 {
		return addr.Zero, fmt.Errorf("account: unexpected public key encoding")
	}
	h := hashing.Keccak256(pub[1:])
	return addr.FromBytes(h[12:])
}

// Address returns the account's cached derived address.
func (a *Account) Address() addr.Address {
	return a.address
}

// Mnemonic returns the retained phrase and whether one was retained: true
// for accounts built from FromMnemonic/FromMnemonicEntropy/Random, false
// for accounts built directly from a private key.
func (a *Account) Mnemonic() (string, bool) {
	return a.mnemonicPhrase, a.mnemonicPhrase != ""
}

// withPrivateKey exposes the private scalar to fn for the duration of the
// call only; fn must not retain the slice it is given.
func (a *Account) withPrivateKey(fn func(privKey32 []byte) error) error {
	view, err := a.key.View()
	if err != nil {
		return fmt.Errorf("account: key unavailable: %w", err)
	}
	return fn(view)
}

// SignDigest signs an arbitrary 32-byte digest, returning the raw
// (r, s, recId) signature with no chain-bound v encoding applied.
func (a *Account) SignDigest(digest32 []byte) (*signing.Signature, error) {
	var sig *signing.Signature
	err := a.withPrivateKey(func(priv []byte) error {
		var signErr error
		sig, signErr = signing.Sign(priv, digest32)
		return signErr
	})
	return sig, err
}

// SignTransaction signs tx in place using this account's private key.
func (a *Account) SignTransaction(tx *transaction.Transaction) error {
	return a.withPrivateKey(func(priv []byte) error {
		return tx.Sign(priv)
	})
}

// SignMessage signs m under the personal-sign convention.
func (a *Account) SignMessage(m []byte) (*message.Signature, error) {
	var sig *message.Signature
	err := a.withPrivateKey(func(priv []byte) error {
		var signErr error
		sig, signErr = message.Sign(priv, m)
		return signErr
	})
	return sig, err
}

// EncryptSecretStorageJSON encrypts the account's private key into a v3
// keystore Document under password.
func (a *Account) EncryptSecretStorageJSON(password string, params keystore.ScryptParams, cancel *keystore.Cancellable) (*keystore.Document, error) {
	var doc *keystore.Document
	err := a.withPrivateKey(func(priv []byte) error {
		var encErr error
		doc, encErr = keystore.Encrypt(priv, a.address.Hex()[2:], password, params, cancel)
		return encErr
	})
	return doc, err
}

// DecryptSecretStorageJSON reconstructs an Account from a v3 keystore
// Document and its password.
func DecryptSecretStorageJSON(doc *keystore.Document, password string, cancel *keystore.Cancellable) (*Account, error) {
	privKey, err := keystore.Decrypt(doc, password, cancel)
	if err != nil {
		return nil, err
	}
	defer zero(privKey)

	acc, err := FromPrivateKey(privKey)
	if err != nil {
		return nil, err
	}

	if want, err := addr.FromHex("0x" + doc.Address); err == nil && !want.Equal(acc.address) {
		slog.Default().With("component", "account").Warn(
			"decrypted address does not match keystore document", "document", doc.Address, "derived", acc.address.Hex())
	}
	return acc, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
