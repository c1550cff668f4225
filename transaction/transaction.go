// Package transaction implements Ethereum legacy and EIP-155
// replay-protected transaction encoding, hashing, signing, and recovery,
// built on the rlp, hashing, addr, bigint, and signing packages.
package transaction

import (
	"errors"
	"fmt"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
	"github.com/olehkaliuzhnyi/ethwallet/hashing"
	"github.com/olehkaliuzhnyi/ethwallet/rlp"
	"github.com/olehkaliuzhnyi/ethwallet/signing"
)

// ErrMalformed is returned when parsing an RLP-encoded transaction that
// does not have the shape of a 6-field unsigned or 9-field signed list.
var ErrMalformed = errors.New("transaction: malformed encoding")

// Signature carries the r, s, v triplet attached to a signed transaction.
// v follows legacy (27/28) or EIP-155 (35+2*chainId+recId) encoding
// depending on the transaction's ChainID.
type Signature struct {
	R [32]byte
	S [32]byte
	V uint64
}

// Transaction is a mutable builder until Sign freezes its Signature; other
// fields remain mutable afterward, which makes any cached hash stale until
// recomputed.
type Transaction struct {
	Nonce    uint64
	GasPrice *bigint.Int
	GasLimit uint64
	To       *addr.Address // nil denotes contract creation
	Value    *bigint.Int
	Data     []byte
	ChainID  uint64

	Signature *Signature
}

// bigIntBytes returns the RLP wire encoding of a big integer field: its
// minimal big-endian bytes, with zero mapped to the empty byte string
// rather than bigint.Int.Bytes()'s canonical single 0x00 byte.
func bigIntBytes(v *bigint.Int) []byte {
	if v == nil || v.IsZero() {
		return nil
	}
	b := v.Bytes()
	if len(b) == 1 && b[0] == 0 {
		return nil
	}
	return b
}

func uint64Bytes(v uint64) []byte {
	if v == 0 {
		return nil
	}
	n := 8
	for (v>>uint((n-1)*8))&0xff == 0 {
		n--
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(v >> uint((n-1-i)*8))
	}
	return out
}

func (tx *Transaction) toField() []byte {
	if tx.To == nil {
		return nil
	}
	b := tx.To.Bytes()
	return b[:]
}

// unsignedFields returns the ordered RLP field list shared by both the
// signing digest and, for chainId==0, the base of the signed encoding.
func (tx *Transaction) unsignedFields() rlp.List {
	return rlp.List{
		rlp.Bytes(uint64Bytes(tx.Nonce)),
		rlp.Bytes(bigIntBytes(tx.GasPrice)),
		rlp.Bytes(uint64Bytes(tx.GasLimit)),
		rlp.Bytes(tx.toField()),
		rlp.Bytes(bigIntBytes(tx.Value)),
		rlp.Bytes(tx.Data),
	}
}

// UnsignedSerialize returns the RLP encoding used to compute the signing
// digest: 6 fields for ChainID==0, or 9 fields with chainId/0/0 appended
// per EIP-155 when ChainID>0.
func (tx *Transaction) UnsignedSerialize() []byte {
	fields := tx.unsignedFields()
	if tx.ChainID > 0 {
		fields = append(fields, rlp.Bytes(uint64Bytes(tx.ChainID)), rlp.Bytes(nil), rlp.Bytes(nil))
	}
	return rlp.Encode(fields)
}

// SigningDigest is Keccak256(UnsignedSerialize()).
func (tx *Transaction) SigningDigest() []byte {
	return hashing.Keccak256(tx.UnsignedSerialize())
}

// Serialize returns the RLP encoding of the signed transaction:
// [..., v, r, s]. Fails if the transaction has not been signed.
func (tx *Transaction) Serialize() ([]byte, error) {
	if tx.Signature == nil {
		return nil, fmt.Errorf("transaction: not signed")
	}
	fields := tx.unsignedFields()
	fields = append(fields,
		rlp.Bytes(uint64Bytes(tx.Signature.V)),
		rlp.Bytes(trimLeadingZeros(tx.Signature.R[:])),
		rlp.Bytes(trimLeadingZeros(tx.Signature.S[:])),
	)
	return rlp.Encode(fields), nil
}

// trimLeadingZeros strips leading zero bytes from a fixed-width big-endian
// field, matching RLP's minimal-encoding rule (an all-zero field becomes
// the empty byte string).
func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// TransactionHash is Keccak256(Serialize()); only meaningful once signed.
func (tx *Transaction) TransactionHash() ([]byte, error) {
	ser, err := tx.Serialize()
	if err != nil {
		return nil, err
	}
	return hashing.Keccak256(ser), nil
}

// Sign computes the signing digest, signs it with privKey32, and stores the
// resulting Signature with chain-bound v encoding.
func (tx *Transaction) Sign(privKey32 []byte) error {
	digest := tx.SigningDigest()
	sig, err := signing.Sign(privKey32, digest)
	if err != nil {
		return err
	}

	var v uint64
	if tx.ChainID > 0 {
		v = 35 + 2*tx.ChainID + uint64(sig.RecID)
	} else {
		v = 27 + uint64(sig.RecID)
	}

	tx.Signature = &Signature{R: sig.R, S: sig.S, V: v}
	return nil
}

// FromAddress recovers the sender address from Signature over
// UnsignedSerialize(). Returns an error if the transaction is unsigned.
func (tx *Transaction) FromAddress() (addr.Address, error) {
	if tx.Signature == nil {
		return addr.Zero, fmt.Errorf("transaction: not signed")
	}
	recID, err := recoveryID(tx.ChainID, tx.Signature.V)
	if err != nil {
		return addr.Zero, err
	}

	digest := tx.SigningDigest()
	sig := &signing.Signature{R: tx.Signature.R, S: tx.Signature.S, RecID: recID}
	pub, err := signing.Recover(digest, sig)
	if err != nil {
		return addr.Zero, err
	}
	return addressFromPublicKey(pub)
}

func recoveryID(chainID, v uint64) (byte, error) {
	switch {
	case chainID > 0 && v >= 35:
		recID := (v - 35 - 2*chainID)
		if recID > 3 {
			return 0, fmt.Errorf("%w: v %d inconsistent with chainId %d", ErrMalformed, v, chainID)
		}
		return byte(recID), nil
	case v == 27 || v == 28:
		return byte(v - 27), nil
	default:
		return 0, fmt.Errorf("%w: unrecognized v %d", ErrMalformed, v)
	}
}

// addressFromPublicKey derives the 20-byte address from an uncompressed
// (0x04-prefixed, 65-byte) secp256k1 public key: Keccak256 of the 64-byte
// X||Y coordinate, last 20 bytes.
func addressFromPublicKey(pub []byte) (addr.Address, error) {
	if len(pub) != 65 || pub[0] != 0x04 {
		return addr.Zero, fmt.Errorf("transaction: unexpected public key encoding")
	}
	h := hashing.Keccak256(pub[1:])
	return addr.FromBytes(h[12:])
}

// Parse decodes an RLP-encoded transaction. A 6-element list is unsigned;
// a 9-element list is signed.
func Parse(data []byte) (*Transaction, error) {
	item, err := rlp.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	list, ok := item.(rlp.List)
	if !ok {
		return nil, fmt.Errorf("%w: top-level item is not a list", ErrMalformed)
	}

	switch len(list) {
	case 6:
		return parseFields(list, nil)
	case 9:
		return parseSignedFields(list)
	default:
		return nil, fmt.Errorf("%w: expected 6 or 9 fields, got %d", ErrMalformed, len(list))
	}
}

func parseFields(list rlp.List, chainID *uint64) (*Transaction, error) {
	tx := &Transaction{}
	var err error
	if tx.Nonce, err = fieldUint64(list[0]); err != nil {
		return nil, err
	}
	if tx.GasPrice, err = fieldBigInt(list[1]); err != nil {
		return nil, err
	}
	if tx.GasLimit, err = fieldUint64(list[2]); err != nil {
		return nil, err
	}
	if tx.To, err = fieldAddress(list[3]); err != nil {
		return nil, err
	}
	if tx.Value, err = fieldBigInt(list[4]); err != nil {
		return nil, err
	}
	b, ok := list[5].(rlp.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: data field is not bytes", ErrMalformed)
	}
	tx.Data = []byte(b)
	if chainID != nil {
		tx.ChainID = *chainID
	}
	return tx, nil
}

func parseSignedFields(list rlp.List) (*Transaction, error) {
	tx, err := parseFields(list[:6], nil)
	if err != nil {
		return nil, err
	}
	v, err := fieldUint64(list[6])
	if err != nil {
		return nil, err
	}
	r, err := fieldFixed32(list[7])
	if err != nil {
		return nil, err
	}
	s, err := fieldFixed32(list[8])
	if err != nil {
		return nil, err
	}
	tx.Signature = &Signature{R: r, S: s, V: v}
	if v >= 35 {
		tx.ChainID = (v - 35) / 2
	}
	return tx, nil
}

func fieldUint64(item rlp.Item) (uint64, error) {
	b, ok := item.(rlp.Bytes)
	if !ok {
		return 0, fmt.Errorf("%w: expected bytes field", ErrMalformed)
	}
	if len(b) > 8 {
		return 0, fmt.Errorf("%w: integer field overflows uint64", ErrMalformed)
	}
	var v uint64
	for _, byteVal := range b {
		v = v<<8 | uint64(byteVal)
	}
	return v, nil
}

func fieldBigInt(item rlp.Item) (*bigint.Int, error) {
	b, ok := item.(rlp.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: expected bytes field", ErrMalformed)
	}
	if len(b) == 0 {
		return bigint.Zero(), nil
	}
	v, err := bigint.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

func fieldAddress(item rlp.Item) (*addr.Address, error) {
	b, ok := item.(rlp.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: expected bytes field", ErrMalformed)
	}
	if len(b) == 0 {
		return nil, nil
	}
	a, err := addr.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &a, nil
}

func fieldFixed32(item rlp.Item) ([32]byte, error) {
	var out [32]byte
	b, ok := item.(rlp.Bytes)
	if !ok {
		return out, fmt.Errorf("%w: expected bytes field", ErrMalformed)
	}
	if len(b) > 32 {
		return out, fmt.Errorf("%w: field longer than 32 bytes", ErrMalformed)
	}
	copy(out[32-len(b):], b)
	return out, nil
}
