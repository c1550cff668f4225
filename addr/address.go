// Package addr implements the 20-byte Ethereum Address type: raw hex,
// EIP-55 checksummed hex, and ICAP/IBAN form.
package addr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/olehkaliuzhnyi/ethwallet/hashing"
)

// Length is the fixed byte length of an Address.
const Length = 20

// ErrInvalidFormat is returned for malformed address strings.
var ErrInvalidFormat = errors.New("addr: invalid format")

// ErrBadChecksum is returned when a mixed-case hex address fails EIP-55
// validation.
var ErrBadChecksum = errors.New("addr: bad checksum")

// Address is an immutable 20-byte account or contract identity.
type Address struct {
	b [Length]byte
}

// Zero is the distinguished zero address.
var Zero = Address{}

// FromBytes constructs an Address from exactly 20 bytes.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Length {
		return a, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidFormat, Length, len(b))
	}
	copy(a.b[:], b)
	return a, nil
}

// FromHex parses a 0x-prefixed 42-character hex string in any case. If the
// string is mixed case, it must be a valid EIP-55 checksum or parsing fails
// with ErrBadChecksum. All-lowercase or all-uppercase input is accepted
// without checksum validation.
func FromHex(s string) (Address, error) {
	var a Address
	trimmed := strings.TrimPrefix(s, "0x")
	trimmed = strings.TrimPrefix(trimmed, "0X")
	if len(trimmed) != Length*2 {
		return a, fmt.Errorf("%w: expected %d hex chars, got %d", ErrInvalidFormat, Length*2, len(trimmed))
	}
	raw, err := hex.DecodeString(strings.ToLower(trimmed))
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	copy(a.b[:], raw)

	isLower := trimmed == strings.ToLower(trimmed)
	isUpper := trimmed == strings.ToUpper(trimmed)
	if !isLower && !isUpper {
		want := checksumHex(a.b[:])
		if want != trimmed {
			return Address{}, ErrBadChecksum
		}
	}
	return a, nil
}

// Bytes returns a copy of the 20-byte identity.
func (a Address) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, a.b[:])
	return out
}

// Hex returns the lowercase "0x"-prefixed form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a.b[:])
}

// checksumHex computes the EIP-55 mixed-case rendering (without "0x") of a
// 20-byte address: lowercase hex of the bytes, hashed with Keccak-256; a hex
// digit is uppercased iff the corresponding nibble of the hash is >= 8.
func checksumHex(b []byte) string {
	lower := hex.EncodeToString(b)
	digest := hashing.Keccak256([]byte(lower))

	out := make([]byte, len(lower))
	for i, c := range []byte(lower) {
		if c < 'a' || c > 'f' {
			out[i] = c
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - 'a' + 'A'
		} else {
			out[i] = c
		}
	}
	return string(out)
}

// Checksum returns the "0x"-prefixed EIP-55 mixed-case address.
func (a Address) Checksum() string {
	return "0x" + checksumHex(a.b[:])
}

// Equal reports whether two addresses denote the same 20 bytes.
func (a Address) Equal(b Address) bool {
	return a.b == b.b
}

// IsZero reports whether this is the distinguished zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

// icapNumericString maps each base-36 digit to the value used for the ISO 7064
// mod-97-10 checksum: digits 0-9 keep their value, letters A-Z map to 10-35.
func icapNumericString(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			sb.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			sb.WriteString(fmt.Sprintf("%d", c-'A'+10))
		}
	}
	return sb.String()
}

// mod9710 implements the ISO 7064 mod-97-10 check used by IBAN/ICAP on a
// string whose first four characters the caller has already moved to the
// end: it expands letters to two-digit numbers and reduces mod 97.
func mod9710(rearranged string) *big.Int {
	numeric := icapNumericString(rearranged)
	n := new(big.Int)
	n.SetString(numeric, 10)
	return n.Mod(n, big.NewInt(97))
}

// ICAP renders the address as an IBAN-shaped string: "XE" plus two check
// digits plus the 20-byte magnitude encoded in base-36 and left-padded to
// 30 characters. Addresses below 36^30 give 34 characters; larger ones need
// 31 base-36 digits and give 35.
func (a Address) ICAP() string {
	body := new(big.Int).SetBytes(a.b[:])
	digits := strings.ToUpper(body.Text(36))
	if len(digits) < 30 {
		digits = strings.Repeat("0", 30-len(digits)) + digits
	}

	// Checksum is computed over "XE00" + digits, rearranged per ISO 7064
	// (move "XE00" to the end), then 98 - (mod97 result).
	rearranged := digits + "XE00"
	remainder := mod9710(rearranged)
	check := 98 - remainder.Int64()

	return fmt.Sprintf("XE%02d%s", check, digits)
}

// FromICAP parses a 34- or 35-character "XE" + 2 check digits + 30 or 31
// base-36 chars IBAN-shaped address, validating the ISO 7064 mod-97-10
// checksum.
func FromICAP(s string) (Address, error) {
	var a Address
	s = strings.ToUpper(strings.TrimSpace(s))
	if (len(s) != 34 && len(s) != 35) || !strings.HasPrefix(s, "XE") {
		return a, fmt.Errorf("%w: ICAP address must be 34 or 35 chars starting with XE", ErrInvalidFormat)
	}
	checkDigits := s[2:4]
	digits := s[4:]

	rearranged := digits + "XE" + checkDigits
	remainder := mod9710(rearranged)
	if remainder.Int64() != 1 {
		return a, fmt.Errorf("%w: ICAP checksum mismatch", ErrBadChecksum)
	}

	body, ok := new(big.Int).SetString(digits, 36)
	if !ok {
		return a, fmt.Errorf("%w: ICAP body is not base-36", ErrInvalidFormat)
	}
	raw := body.Bytes()
	if len(raw) > Length {
		return a, fmt.Errorf("%w: ICAP body exceeds 20 bytes", ErrInvalidFormat)
	}
	copy(a.b[Length-len(raw):], raw)
	return a, nil
}
