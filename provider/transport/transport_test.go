package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	body, err := EncodeRequest(7, "eth_blockNumber", nil)
	require.NoError(t, err)
	require.Contains(t, string(body), `"method":"eth_blockNumber"`)
	require.Contains(t, string(body), `"id":7`)
}

func TestDecodeResponseSuccess(t *testing.T) {
	result, rpcErr, err := DecodeResponse([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	require.NoError(t, err)
	require.Nil(t, rpcErr)
	require.Equal(t, "0x10", result)
}

func TestDecodeResponseError(t *testing.T) {
	result, rpcErr, err := DecodeResponse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`))
	require.NoError(t, err)
	require.Nil(t, result)
	require.NotNil(t, rpcErr)
	require.Equal(t, -32000, rpcErr.Code)
	require.Equal(t, "boom", rpcErr.Message)
	require.Contains(t, rpcErr.Error(), "boom")
}

func TestDecodeResponseMalformed(t *testing.T) {
	_, _, err := DecodeResponse([]byte(`not json`))
	require.Error(t, err)
}
