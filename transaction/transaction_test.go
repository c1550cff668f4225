package transaction

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
)

func mustBigInt(s string) *bigint.Int {
	v, err := bigint.FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func samplePrivateKey() []byte {
	k, err := hex.DecodeString("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil || len(k) != 32 {
		panic("bad test fixture")
	}
	return k
}

func sampleTx(chainID uint64) *Transaction {
	to, _ := addr.FromHex("0x52908400098527886E0F7030069857D2E4169EE7")
	return &Transaction{
		Nonce:    9,
		GasPrice: mustBigInt("20000000000"),
		GasLimit: 21000,
		To:       &to,
		Value:    mustBigInt("1000000000000000000"),
		Data:     nil,
		ChainID:  chainID,
	}
}

func TestSignRecoverRoundTripLegacy(t *testing.T) {
	priv := samplePrivateKey()
	tx := sampleTx(0)

	require.NoError(t, tx.Sign(priv))
	require.True(t, tx.Signature.V == 27 || tx.Signature.V == 28)

	from, err := tx.FromAddress()
	require.NoError(t, err)

	wantPub := addrFromPriv(t, priv)
	require.Equal(t, wantPub.Hex(), from.Hex())
}

func TestSignRecoverRoundTripEIP155(t *testing.T) {
	priv := samplePrivateKey()
	tx := sampleTx(1)

	require.NoError(t, tx.Sign(priv))
	require.GreaterOrEqual(t, tx.Signature.V, uint64(35+2*1))

	from, err := tx.FromAddress()
	require.NoError(t, err)

	wantPub := addrFromPriv(t, priv)
	require.Equal(t, wantPub.Hex(), from.Hex())
}

func TestSerializeParseRoundTrip(t *testing.T) {
	priv := samplePrivateKey()
	tx := sampleTx(1)
	require.NoError(t, tx.Sign(priv))

	encoded, err := tx.Serialize()
	require.NoError(t, err)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, tx.Nonce, parsed.Nonce)
	require.Equal(t, tx.GasLimit, parsed.GasLimit)
	require.Equal(t, tx.ChainID, parsed.ChainID)
	require.NotNil(t, parsed.Signature)
	require.Equal(t, tx.Signature.V, parsed.Signature.V)

	from, err := parsed.FromAddress()
	require.NoError(t, err)
	wantPub := addrFromPriv(t, priv)
	require.Equal(t, wantPub.Hex(), from.Hex())
}

// TestEIP155Example reproduces the worked example from the EIP-155
// specification: a deterministic signature over the 9-field signing
// payload, serialized bit-exactly, recovering the expected sender.
func TestEIP155Example(t *testing.T) {
	priv, err := hex.DecodeString("4646464646464646464646464646464646464646464646464646464646464646")
	require.NoError(t, err)

	to, err := addr.FromHex("0x3535353535353535353535353535353535353535")
	require.NoError(t, err)
	tx := &Transaction{
		Nonce:    9,
		GasPrice: mustBigInt("20000000000"),
		GasLimit: 21000,
		To:       &to,
		Value:    mustBigInt("1000000000000000000"),
		ChainID:  1,
	}

	require.Equal(t,
		"daf5a779ae972f972197303d7b574746c7ef83eadac0f2791ad23db92e4c8e53",
		hex.EncodeToString(tx.SigningDigest()))

	require.NoError(t, tx.Sign(priv))
	require.Equal(t, uint64(37), tx.Signature.V)

	raw, err := tx.Serialize()
	require.NoError(t, err)
	require.Equal(t,
		"f86c098504a817c800825208943535353535353535353535353535353535353535880"+
			"de0b6b3a76400008025a028ef61340bd939bc2195fe537567866003e1a15d3c71ff63e"+
			"1590620aa636276a067cbe9d8997f761aecb703304b3800ccf555c9f3dc64214b297fb"+
			"1966a3b6d83",
		hex.EncodeToString(raw))

	from, err := tx.FromAddress()
	require.NoError(t, err)
	require.Equal(t, "0x9d8A62f656a8d1615C1294fd71e9CFb3E4855A4F", from.Checksum())
}

func TestChainIDAloneChangesSigningDigest(t *testing.T) {
	a := sampleTx(1)
	b := sampleTx(2)
	require.NotEqual(t, a.SigningDigest(), b.SigningDigest())
}

func TestUnsignedSerializeContractCreation(t *testing.T) {
	tx := &Transaction{
		Nonce:    0,
		GasPrice: mustBigInt("1"),
		GasLimit: 100000,
		To:       nil,
		Value:    bigint.Zero(),
		Data:     []byte{0xde, 0xad, 0xbe, 0xef},
		ChainID:  0,
	}
	encoded := tx.UnsignedSerialize()
	require.NotEmpty(t, encoded)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Nil(t, parsed.To)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, parsed.Data)
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := Parse([]byte{0xc1, 0x01})
	require.ErrorIs(t, err, ErrMalformed)
}

func addrFromPriv(t *testing.T, priv []byte) addr.Address {
	t.Helper()
	tx := sampleTx(0)
	require.NoError(t, tx.Sign(priv))
	from, err := tx.FromAddress()
	require.NoError(t, err)
	return from
}
