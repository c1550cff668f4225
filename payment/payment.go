// Package payment implements Ethereum payment URIs
// ("ethereum:<address>[?amount=...][&gas=...]") and ether<->wei string
// formatting, built on the addr and bigint packages.
package payment

import (
	"net/url"
	"strings"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
)

// FormatOption controls optional cosmetic transforms applied by FormatEther.
type FormatOption uint

const (
	// FormatNone applies no cosmetic transform.
	FormatNone FormatOption = 0
	// FormatCommify groups the integer part by thousands with commas.
	FormatCommify FormatOption = 1 << 0
	// FormatApproximate allows trailing fractional digits to be dropped,
	// appending "~" to signal the value is approximate.
	FormatApproximate FormatOption = 1 << 1
)

func (o FormatOption) has(flag FormatOption) bool { return o&flag != 0 }

// Payment is a parsed "ethereum:" URI: a recipient address with an optional
// amount in ether and an optional gas price in gwei.
type Payment struct {
	Address addr.Address
	Amount  *bigint.Int // wei; nil if the URI carried no amount
	GasGwei *bigint.Int // nil if the URI carried no gas parameter
	Firm    bool        // true when Amount came from the URI verbatim
}

// ParseURI parses an "ethereum:<address>[?amount=<decimal ether>][&gas=<gwei>]"
// URI. Unknown query keys are ignored. A malformed URI or address returns
// (nil, false) rather than an error.
func ParseURI(uri string) (*Payment, bool) {
	const scheme = "ethereum:"
	if !strings.HasPrefix(uri, scheme) {
		return nil, false
	}
	rest := uri[len(scheme):]

	addrPart := rest
	var query string
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		addrPart = rest[:idx]
		query = rest[idx+1:]
	}

	address, err := addr.FromHex(addrPart)
	if err != nil {
		return nil, false
	}

	p := &Payment{Address: address}
	if query == "" {
		return p, true
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, false
	}

	if amountStr := values.Get("amount"); amountStr != "" {
		wei, err := ParseEther(amountStr)
		if err != nil {
			return nil, false
		}
		p.Amount = wei
		p.Firm = true
	}
	if gasStr := values.Get("gas"); gasStr != "" {
		gas, err := bigint.FromDecimalString(gasStr)
		if err != nil {
			return nil, false
		}
		p.GasGwei = gas
	}
	return p, true
}

// FormatEther renders wei as a decimal ether string with no cosmetic
// options applied.
func FormatEther(wei *bigint.Int) string {
	return FormatEtherWithOptions(wei, FormatNone)
}

// FormatEtherWithOptions renders wei as a decimal ether string with
// trailing fractional zeros removed, optionally grouping the integer part
// by thousands (FormatCommify) or truncating the fraction to 6 digits and
// signaling any dropped nonzero digits (FormatApproximate).
func FormatEtherWithOptions(wei *bigint.Int, options FormatOption) string {
	neg := wei.IsNegative()
	abs := wei
	if neg {
		zero := bigint.Zero()
		abs, _ = zero.Sub(wei)
	}

	whole, _ := abs.Div(bigint.WeiPerEther)
	remainder, _ := abs.Mod(bigint.WeiPerEther)

	frac := remainder.DecimalString()
	frac = strings.Repeat("0", 18-len(frac)) + frac

	approximated := false
	if options.has(FormatApproximate) {
		trimmed := strings.TrimRight(frac, "0")
		if len(trimmed) > 6 {
			approximated = trimmed[6:] != ""
			trimmed = trimmed[:6]
		}
		frac = trimmed
	} else {
		frac = strings.TrimRight(frac, "0")
	}

	integerPart := whole.DecimalString()
	if options.has(FormatCommify) {
		integerPart = commify(integerPart)
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(integerPart)
	if frac != "" {
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	if approximated {
		sb.WriteString("~")
	}
	return sb.String()
}

func commify(s string) string {
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}

// ParseEther parses a decimal ether string (optional sign, integer part,
// optional fractional part up to 18 digits, trailing zeros tolerated) into
// wei. More than 18 fractional digits fails.
func ParseEther(s string) (*bigint.Int, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 18 {
		return nil, bigint.ErrInvalidFormat
	}
	fracPart = fracPart + strings.Repeat("0", 18-len(fracPart))

	whole, err := bigint.FromDecimalString(intPart)
	if err != nil {
		return nil, err
	}
	frac, err := bigint.FromDecimalString(fracPart)
	if err != nil {
		return nil, err
	}

	wholeWei, err := whole.Mul(bigint.WeiPerEther)
	if err != nil {
		return nil, err
	}
	total, err := wholeWei.Add(frac)
	if err != nil {
		return nil, err
	}
	if neg {
		zero := bigint.Zero()
		total, err = zero.Sub(total)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

// weiPerGwei scales between the URI's gas-in-gwei field and wei, at 10^9.
var weiPerGwei = mustDecimal("1000000000")

func mustDecimal(s string) *bigint.Int {
	v, err := bigint.FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// GasWei converts the URI's gas-in-gwei field to wei, or nil if the URI
// carried no gas parameter.
func (p *Payment) GasWei() (*bigint.Int, error) {
	if p.GasGwei == nil {
		return nil, nil
	}
	return p.GasGwei.Mul(weiPerGwei)
}
