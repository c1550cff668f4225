// Package rlp implements canonical Recursive-Length Prefix encoding and
// decoding, the binary serialization Ethereum uses for transactions and
// other consensus-critical structures.
package rlp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode when the input is not valid, minimal
// RLP: a non-canonical length prefix, a truncated payload, or trailing
// bytes are all treated as malformed.
var ErrMalformed = errors.New("rlp: malformed encoding")

// Item is either a Bytes string or a List of Items; it is the decoded shape
// RLP produces and the shape Encode consumes.
type Item interface {
	isItem()
}

// Bytes is a byte-string RLP item.
type Bytes []byte

func (Bytes) isItem() {}

// List is an ordered sequence of RLP items.
type List []Item

func (List) isItem() {}

// Encode serializes item to canonical RLP.
func Encode(item Item) []byte {
	switch v := item.(type) {
	case Bytes:
		return encodeBytes(v)
	case List:
		return encodeList(v)
	default:
		panic(fmt.Sprintf("rlp: unknown item type %T", item))
	}
}

func encodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(encodeLengthPrefix(len(b), 0x80, 0xb7), b...)
}

func encodeList(items List) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, Encode(it)...)
	}
	return append(encodeLengthPrefix(len(payload), 0xc0, 0xf7), payload...)
}

// encodeLengthPrefix builds the prefix for a string (shortBase=0x80,
// longBase=0xb7) or list (shortBase=0xc0, longBase=0xf7).
func encodeLengthPrefix(length int, shortBase, longBase byte) []byte {
	if length <= 55 {
		return []byte{shortBase + byte(length)}
	}
	lenBytes := minimalBigEndian(uint64(length))
	prefix := make([]byte, 1+len(lenBytes))
	prefix[0] = longBase + byte(len(lenBytes))
	copy(prefix[1:], lenBytes)
	return prefix
}

func minimalBigEndian(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// Decode parses buf as exactly one canonical RLP item, failing with
// ErrMalformed if any trailing bytes remain or the encoding is non-minimal.
func Decode(buf []byte) (Item, error) {
	item, rest, err := decodeItem(buf)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after top-level item", ErrMalformed)
	}
	return item, nil
}

func decodeItem(buf []byte) (Item, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	first := buf[0]

	switch {
	case first < 0x80:
		return Bytes{first}, buf[1:], nil

	case first <= 0xb7:
		length := int(first - 0x80)
		return decodeShortString(buf, length)

	case first <= 0xbf:
		lenOfLen := int(first - 0xb7)
		return decodeLongString(buf, lenOfLen)

	case first <= 0xf7:
		length := int(first - 0xc0)
		return decodeShortList(buf, length)

	default:
		lenOfLen := int(first - 0xf7)
		return decodeLongList(buf, lenOfLen)
	}
}

func decodeShortString(buf []byte, length int) (Item, []byte, error) {
	if 1+length > len(buf) {
		return nil, nil, fmt.Errorf("%w: truncated short string", ErrMalformed)
	}
	if length == 1 && buf[1] < 0x80 {
		return nil, nil, fmt.Errorf("%w: single byte < 0x80 must use the direct encoding", ErrMalformed)
	}
	return Bytes(buf[1 : 1+length]), buf[1+length:], nil
}

func decodeLongString(buf []byte, lenOfLen int) (Item, []byte, error) {
	length, rest, err := decodeLength(buf, lenOfLen)
	if err != nil {
		return nil, nil, err
	}
	if length <= 55 {
		return nil, nil, fmt.Errorf("%w: long string form used for length <= 55", ErrMalformed)
	}
	if len(rest) < length {
		return nil, nil, fmt.Errorf("%w: truncated long string", ErrMalformed)
	}
	return Bytes(rest[:length]), rest[length:], nil
}

func decodeShortList(buf []byte, length int) (Item, []byte, error) {
	if 1+length > len(buf) {
		return nil, nil, fmt.Errorf("%w: truncated short list", ErrMalformed)
	}
	items, err := decodeListPayload(buf[1 : 1+length])
	if err != nil {
		return nil, nil, err
	}
	return List(items), buf[1+length:], nil
}

func decodeLongList(buf []byte, lenOfLen int) (Item, []byte, error) {
	length, rest, err := decodeLength(buf, lenOfLen)
	if err != nil {
		return nil, nil, err
	}
	if length <= 55 {
		return nil, nil, fmt.Errorf("%w: long list form used for length <= 55", ErrMalformed)
	}
	if len(rest) < length {
		return nil, nil, fmt.Errorf("%w: truncated long list", ErrMalformed)
	}
	items, err := decodeListPayload(rest[:length])
	if err != nil {
		return nil, nil, err
	}
	return List(items), rest[length:], nil
}

// decodeLength reads the lenOfLen-byte big-endian length that follows the
// prefix byte in buf[0], rejecting a leading zero byte (non-minimal length).
func decodeLength(buf []byte, lenOfLen int) (int, []byte, error) {
	if lenOfLen == 0 || 1+lenOfLen > len(buf) {
		return 0, nil, fmt.Errorf("%w: truncated length field", ErrMalformed)
	}
	lenBytes := buf[1 : 1+lenOfLen]
	if lenBytes[0] == 0 {
		return 0, nil, fmt.Errorf("%w: non-canonical length encoding", ErrMalformed)
	}
	var v uint64
	for _, b := range lenBytes {
		v = v<<8 | uint64(b)
	}
	return int(v), buf[1+lenOfLen:], nil
}

func decodeListPayload(payload []byte) ([]Item, error) {
	items := []Item{}
	for len(payload) > 0 {
		item, rest, err := decodeItem(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		payload = rest
	}
	return items, nil
}
