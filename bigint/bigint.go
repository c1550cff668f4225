// Package bigint implements BigInt256, a signed integer with a magnitude
// bounded to 256 bits, matching the semantics Ethereum tooling expects from
// wei/gas/nonce values: exact decimal and hex round-tripping, truncated
// division, and a canonical minimal byte form.
package bigint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ErrInvalidFormat is returned when a string cannot be parsed as an integer
// in the requested base, or when a value's magnitude exceeds 256 bits.
var ErrInvalidFormat = errors.New("bigint: invalid format")

// ErrDivideByZero is returned by Div and Mod when the divisor is zero.
var ErrDivideByZero = errors.New("bigint: division by zero")

// Int is an immutable signed integer with |value| <= 2^256-1. The zero value
// represents 0, the same value Zero() returns.
type Int struct {
	neg bool
	mag uint256.Int
}

var (
	zero = Int{}
	one  = mustFromInt64(1)

	// WeiPerEther is the constant 10^18, the number of wei in one ether.
	WeiPerEther = mustFromDecimal("1000000000000000000")
)

func mustFromInt64(v int64) *Int {
	n, err := FromInt64(v)
	if err != nil {
		panic(err)
	}
	return n
}

func mustFromDecimal(s string) *Int {
	n, err := FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Zero returns the additive identity.
func Zero() *Int {
	z := zero
	return &z
}

// One returns the multiplicative identity.
func One() *Int {
	v := *one
	return &v
}

// normalize clears the sign bit on a zero magnitude so -0 and +0 compare equal.
func normalize(neg bool, mag uint256.Int) *Int {
	if mag.IsZero() {
		neg = false
	}
	return &Int{neg: neg, mag: mag}
}

func fromBig(b *big.Int) (*Int, error) {
	neg := b.Sign() < 0
	abs := new(big.Int).Abs(b)
	var mag uint256.Int
	if overflow := mag.SetFromBig(abs); overflow {
		return nil, fmt.Errorf("%w: magnitude exceeds 256 bits", ErrInvalidFormat)
	}
	return normalize(neg, mag), nil
}

// toBig converts the value to an unbounded math/big.Int for arithmetic that
// is easier to reason about correctly than hand-rolled 256-bit routines
// (truncated division, in particular); the result is always reduced back
// through uint256.Int.SetFromBig so overflow is still detected.
func (a *Int) toBig() *big.Int {
	b := a.mag.ToBig()
	if a.neg {
		b.Neg(b)
	}
	return b
}

// FromInt64 constructs an Int from a signed host integer.
func FromInt64(v int64) (*Int, error) {
	return fromBig(big.NewInt(v))
}

// FromUint64 constructs an Int from an unsigned host integer.
func FromUint64(v uint64) (*Int, error) {
	var mag uint256.Int
	mag.SetUint64(v)
	return normalize(false, mag), nil
}

// FromDecimalString parses an optionally signed base-10 string.
func FromDecimalString(s string) (*Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty decimal string", ErrInvalidFormat)
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a decimal integer", ErrInvalidFormat, s)
	}
	return fromBig(b)
}

// FromHexString parses a hex string, with or without a "0x" prefix, with or
// without a leading "-" sign. Odd-length input is accepted with an implicit
// leading zero nibble.
func FromHexString(s string) (*Int, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return Zero(), nil
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hexDecode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	var mag uint256.Int
	b := new(big.Int).SetBytes(raw)
	if overflow := mag.SetFromBig(b); overflow {
		return nil, fmt.Errorf("%w: magnitude exceeds 256 bits", ErrInvalidFormat)
	}
	return normalize(neg, mag), nil
}

func hexDecode(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, ok1 := hexNibble(s[2*i])
		lo, ok2 := hexNibble(s[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("invalid hex digit in %q", s)
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// FromBase36String parses an uppercase (case-insensitive) base-36 string.
func FromBase36String(s string) (*Int, error) {
	b, ok := new(big.Int).SetString(s, 36)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not base-36", ErrInvalidFormat, s)
	}
	return fromBig(b)
}

// FromBytes interprets buf as an unsigned big-endian magnitude.
func FromBytes(buf []byte) (*Int, error) {
	b := new(big.Int).SetBytes(buf)
	return fromBig(b)
}

// Add returns a+b.
func (a *Int) Add(b *Int) (*Int, error) {
	return fromBig(new(big.Int).Add(a.toBig(), b.toBig()))
}

// Sub returns a-b.
func (a *Int) Sub(b *Int) (*Int, error) {
	return fromBig(new(big.Int).Sub(a.toBig(), b.toBig()))
}

// Mul returns a*b.
func (a *Int) Mul(b *Int) (*Int, error) {
	return fromBig(new(big.Int).Mul(a.toBig(), b.toBig()))
}

// Div returns a/b, truncated toward zero.
func (a *Int) Div(b *Int) (*Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	return fromBig(new(big.Int).Quo(a.toBig(), b.toBig()))
}

// Mod returns a%b; the sign of the result follows the dividend a, satisfying
// a == (a/b)*b + a%b with |a%b| < |b|.
func (a *Int) Mod(b *Int) (*Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	return fromBig(new(big.Int).Rem(a.toBig(), b.toBig()))
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a *Int) Cmp(b *Int) int {
	return a.toBig().Cmp(b.toBig())
}

// Equal reports whether a and b denote the same value.
func (a *Int) Equal(b *Int) bool {
	return a.Cmp(b) == 0
}

// IsZero reports whether the value is zero.
func (a *Int) IsZero() bool {
	return a.mag.IsZero()
}

// IsNegative reports whether the value is strictly less than zero.
func (a *Int) IsNegative() bool {
	return a.neg && !a.mag.IsZero()
}

// Hash is a stable FNV-1a digest of the sign and 32-byte magnitude, usable
// as a map key surrogate.
func (a *Int) Hash() uint64 {
	words := a.mag.Bytes32()
	var h uint64 = 14695981039346656037
	for _, w := range words {
		h ^= uint64(w)
		h *= 1099511628211
	}
	if a.neg {
		h ^= 0x9e3779b97f4a7c15
	}
	return h
}

// DecimalString renders a signed base-10 string.
func (a *Int) DecimalString() string {
	return a.toBig().String()
}

// HexString renders the magnitude as lowercase hex. When withPrefix is true
// the result carries a "0x" prefix; a leading "-" is added for negative
// values. Zero renders as "0x0" (or "0" without the prefix).
func (a *Int) HexString(withPrefix bool) string {
	var sb strings.Builder
	if a.IsNegative() {
		sb.WriteByte('-')
	}
	if withPrefix {
		sb.WriteString("0x")
	}
	raw := a.mag.Bytes()
	if len(raw) == 0 {
		sb.WriteByte('0')
		return sb.String()
	}
	h := strings.TrimLeft(hex.EncodeToString(raw), "0")
	if h == "" {
		h = "0"
	}
	sb.WriteString(h)
	return sb.String()
}

// Base36String renders the magnitude in uppercase base-36, left-padded with
// '0' to padWidth characters (used by ICAP encoding); padWidth of 0 means no
// padding.
func (a *Int) Base36String(padWidth int) string {
	s := strings.ToUpper(a.mag.ToBig().Text(36))
	if len(s) < padWidth {
		s = strings.Repeat("0", padWidth-len(s)) + s
	}
	return s
}

// Bytes returns the canonical minimal big-endian magnitude: no leading zero
// bytes, except that zero itself is represented by the single byte 0x00.
func (a *Int) Bytes() []byte {
	b := a.mag.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}
