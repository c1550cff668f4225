// Package keystore implements the Ethereum JSON keystore v3 ("Web3 Secret
// Storage") format: scrypt or PBKDF2 key derivation, AES-128-CTR encryption,
// and a Keccak-256 MAC over the derived key material and ciphertext.
// Encrypt and Decrypt are cancellable mid-derivation through Cancellable.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/olehkaliuzhnyi/ethwallet/hashing"
)

// Error kinds returned by Encrypt/Decrypt, matching the Web3 Secret Storage
// failure taxonomy.
var (
	ErrUnsupportedVersion = errors.New("keystore: unsupported version")
	ErrUnsupportedKDF     = errors.New("keystore: unsupported kdf")
	ErrUnsupportedCipher  = errors.New("keystore: unsupported cipher")
	ErrInvalidParameter   = errors.New("keystore: invalid parameter")
	ErrWrongPassword      = errors.New("keystore: wrong password")
	ErrCancelled          = errors.New("keystore: operation cancelled")
)

const (
	version       = 3
	cipherAES     = "aes-128-ctr"
	kdfScrypt     = "scrypt"
	kdfPBKDF2     = "pbkdf2"
	prfHMACSHA256 = "hmac-sha256"
)

// ScryptParams configures the scrypt KDF. Default returns the parameters the
// Web3 Secret Storage Definition recommends for interactive unlocking.
type ScryptParams struct {
	N     int
	R     int
	P     int
	DKLen int
}

// Default returns the standard interactive-strength scrypt parameters:
// N=2^17, r=8, p=1, a 32-byte derived key.
func Default() ScryptParams {
	return ScryptParams{N: 1 << 17, R: 8, P: 1, DKLen: 32}
}

// FromEnv overrides Default() with ETHWALLET_SCRYPT_N / _R / _P when set,
// following the same override convention as the internal/config package.
func FromEnv(getenv func(string) string) ScryptParams {
	p := Default()
	if v := getenv("ETHWALLET_SCRYPT_N"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			p.N = n
		}
	}
	if v := getenv("ETHWALLET_SCRYPT_R"); v != "" {
		if r, err := parsePositiveInt(v); err == nil {
			p.R = r
		}
	}
	if v := getenv("ETHWALLET_SCRYPT_P"); v != "" {
		if pp, err := parsePositiveInt(v); err == nil {
			p.P = pp
		}
	}
	return p
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidParameter)
	}
	return n, nil
}

// cryptoJSON is the "crypto" sub-object of a v3 keystore document.
type cryptoJSON struct {
	Cipher       string           `json:"cipher"`
	CipherParams cipherParamsJSON `json:"cipherparams"`
	CipherText   string           `json:"ciphertext"`
	KDF          string           `json:"kdf"`
	KDFParams    json.RawMessage  `json:"kdfparams"`
	MAC          string           `json:"mac"`
}

type cipherParamsJSON struct {
	IV string `json:"iv"`
}

type scryptParamsJSON struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

type pbkdf2ParamsJSON struct {
	C     int    `json:"c"`
	PRF   string `json:"prf"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

// Document is the full on-disk JSON v3 keystore representation.
type Document struct {
	Version int        `json:"version"`
	ID      string     `json:"id"`
	Address string     `json:"address"`
	Crypto  cryptoJSON `json:"crypto"`
}

// Cancellable is returned by long-running encrypt/decrypt calls so a caller
// can request early termination. Observed only between scrypt's outer-loop
// iterations; PBKDF2 decrypts are not interruptible mid-call.
type Cancellable struct {
	cancelled atomic.Bool
}

// Cancel requests that the in-flight KDF stop at its next check point.
func (c *Cancellable) Cancel() {
	if c != nil {
		c.cancelled.Store(true)
	}
}

func (c *Cancellable) isCancelled() bool {
	return c != nil && c.cancelled.Load()
}

// Encrypt produces a v3 keystore Document for privateKey (32 bytes),
// deriving the key with scrypt under params and encrypting with
// AES-128-CTR. addressHex is the 40-char lowercase hex address (no 0x
// prefix) to embed verbatim in the document.
func Encrypt(privateKey []byte, addressHex string, password string, params ScryptParams, cancel *Cancellable) (*Document, error) {
	log := slog.Default().With("component", "keystore")

	if len(privateKey) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes", ErrInvalidParameter)
	}
	if err := validateScryptParams(params); err != nil {
		return nil, err
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: reading salt: %w", err)
	}

	derivedKey, err := cancellableScrypt([]byte(password), salt, params, cancel)
	if err != nil {
		return nil, err
	}
	defer zero(derivedKey)

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("keystore: reading iv: %w", err)
	}

	ciphertext, err := aesCTR(derivedKey[:16], iv, privateKey)
	if err != nil {
		return nil, err
	}

	mac := hashing.Keccak256(derivedKey[16:32], ciphertext)

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("keystore: generating id: %w", err)
	}

	kdfParams, err := json.Marshal(scryptParamsJSON{
		N: params.N, R: params.R, P: params.P, DKLen: params.DKLen, Salt: hex.EncodeToString(salt),
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: marshaling kdfparams: %w", err)
	}

	log.Info("encrypted private key", "kdf", kdfScrypt, "n", params.N)

	return &Document{
		Version: version,
		ID:      id.String(),
		Address: strings.ToLower(addressHex),
		Crypto: cryptoJSON{
			Cipher:       cipherAES,
			CipherParams: cipherParamsJSON{IV: hex.EncodeToString(iv)},
			CipherText:   hex.EncodeToString(ciphertext),
			KDF:          kdfScrypt,
			KDFParams:    kdfParams,
			MAC:          hex.EncodeToString(mac),
		},
	}, nil
}

// Decrypt recovers the 32-byte private key from doc given password,
// supporting both "scrypt" and "pbkdf2" kdf values.
func Decrypt(doc *Document, password string, cancel *Cancellable) ([]byte, error) {
	log := slog.Default().With("component", "keystore")

	if doc.Version != version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	if doc.Crypto.Cipher != cipherAES {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCipher, doc.Crypto.Cipher)
	}

	iv, err := hex.DecodeString(doc.Crypto.CipherParams.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: bad iv", ErrInvalidParameter)
	}
	ciphertext, err := hex.DecodeString(doc.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrInvalidParameter)
	}
	wantMAC, err := hex.DecodeString(doc.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad mac", ErrInvalidParameter)
	}

	var derivedKey []byte
	switch doc.Crypto.KDF {
	case kdfScrypt:
		var p scryptParamsJSON
		if err := json.Unmarshal(doc.Crypto.KDFParams, &p); err != nil {
			return nil, fmt.Errorf("%w: bad scrypt params", ErrInvalidParameter)
		}
		salt, err := hex.DecodeString(p.Salt)
		if err != nil {
			return nil, fmt.Errorf("%w: bad salt", ErrInvalidParameter)
		}
		derivedKey, err = cancellableScrypt([]byte(password), salt, ScryptParams{N: p.N, R: p.R, P: p.P, DKLen: p.DKLen}, cancel)
		if err != nil {
			return nil, err
		}
	case kdfPBKDF2:
		var p pbkdf2ParamsJSON
		if err := json.Unmarshal(doc.Crypto.KDFParams, &p); err != nil {
			return nil, fmt.Errorf("%w: bad pbkdf2 params", ErrInvalidParameter)
		}
		if p.PRF != prfHMACSHA256 && p.PRF != "" {
			return nil, fmt.Errorf("%w: prf %q", ErrUnsupportedKDF, p.PRF)
		}
		salt, err := hex.DecodeString(p.Salt)
		if err != nil {
			return nil, fmt.Errorf("%w: bad salt", ErrInvalidParameter)
		}
		if p.C <= 0 || p.DKLen <= 0 {
			return nil, fmt.Errorf("%w: bad pbkdf2 params", ErrInvalidParameter)
		}
		derivedKey = pbkdf2.Key([]byte(password), salt, p.C, p.DKLen, sha256.New)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKDF, doc.Crypto.KDF)
	}
	defer zero(derivedKey)

	if len(derivedKey) < 32 {
		return nil, fmt.Errorf("%w: derived key too short", ErrInvalidParameter)
	}

	gotMAC := hashing.Keccak256(derivedKey[16:32], ciphertext)
	if subtle.ConstantTimeCompare(gotMAC, wantMAC) != 1 {
		log.Warn("keystore mac mismatch")
		return nil, ErrWrongPassword
	}

	privateKey, err := aesCTR(derivedKey[:16], iv, ciphertext)
	if err != nil {
		return nil, err
	}

	log.Info("decrypted private key", "kdf", doc.Crypto.KDF)
	return privateKey, nil
}

func validateScryptParams(p ScryptParams) error {
	if p.N <= 1 || p.R <= 0 || p.P <= 0 || p.DKLen <= 0 {
		return fmt.Errorf("%w: scrypt params must be positive, n > 1", ErrInvalidParameter)
	}
	return nil
}

func aesCTR(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: aes cipher: %w", err)
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
