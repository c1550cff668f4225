package provider

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
	"github.com/olehkaliuzhnyi/ethwallet/ethhash"
)

func TestBlockTagString(t *testing.T) {
	cases := []struct {
		tag  BlockTag
		want string
	}{
		{BlockTagEarliest, "earliest"},
		{BlockTagLatest, "latest"},
		{BlockTagPending, "pending"},
		{BlockTag(1), "0x1"},
		{BlockTag(255), "0xff"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.tag.String())
	}
}

func TestErrorIsKind(t *testing.T) {
	cause := errors.New("boom")
	err := NewError("getBalance", ErrThrottled, cause)

	require.True(t, IsKind(err, ErrThrottled))
	require.False(t, IsKind(err, ErrTimeout))
	require.ErrorIs(t, err, cause)
}

func TestErrorWithoutCause(t *testing.T) {
	err := NewError("getBlockNumber", ErrNotFound, nil)
	require.True(t, IsKind(err, ErrNotFound))
	require.Contains(t, err.Error(), "not_found")
}

func TestBlockInfoJSONRoundTrip(t *testing.T) {
	hash, err := ethhash.FromHex("0x" + "11" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	miner, err := addr.FromHex("0x52908400098527886e0f7030069857d2e4169ee7")
	require.NoError(t, err)
	gas, err := bigint.FromDecimalString("30000000")
	require.NoError(t, err)

	info := &BlockInfo{
		Number:       123456,
		Hash:         hash,
		ParentHash:   hash,
		Timestamp:    1700000000,
		GasLimit:     gas,
		GasUsed:      gas,
		Miner:        miner,
		Transactions: []ethhash.Hash{hash},
	}

	raw, err := json.Marshal(info)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"number":"123456"`)
	require.Contains(t, string(raw), `"gasLimit":"30000000"`)

	var back BlockInfo
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, info.Number, back.Number)
	require.True(t, info.Hash.Equal(back.Hash))
	require.True(t, info.Miner.Equal(back.Miner))
	require.Equal(t, "30000000", back.GasUsed.DecimalString())
	require.Len(t, back.Transactions, 1)
}

func TestTransactionInfoJSONRoundTrip(t *testing.T) {
	hash, err := ethhash.FromHex("0x" + "22" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	from, err := addr.FromHex("0x52908400098527886e0f7030069857d2e4169ee7")
	require.NoError(t, err)
	value, err := bigint.FromDecimalString("1000000000000000000")
	require.NoError(t, err)
	blockNumber := int64(42)

	info := &TransactionInfo{
		Hash:        hash,
		BlockNumber: &blockNumber,
		From:        from,
		Value:       value,
		GasPrice:    value,
		Gas:         value,
		Nonce:       7,
		Data:        []byte{0xde, 0xad},
	}

	raw, err := json.Marshal(info)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"nonce":"7"`)
	require.Contains(t, string(raw), `"data":"0xdead"`)
	require.NotContains(t, string(raw), `"to"`)

	var back TransactionInfo
	require.NoError(t, json.Unmarshal(raw, &back))
	require.True(t, info.Hash.Equal(back.Hash))
	require.Equal(t, info.Nonce, back.Nonce)
	require.Equal(t, info.Data, back.Data)
	require.NotNil(t, back.BlockNumber)
	require.Equal(t, blockNumber, *back.BlockNumber)
	require.Nil(t, back.To)
}
