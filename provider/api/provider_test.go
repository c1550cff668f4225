package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/promise"
	"github.com/olehkaliuzhnyi/ethwallet/provider"
	"github.com/olehkaliuzhnyi/ethwallet/provider/transport"
)

// fakeTransport answers JSON-RPC requests from a method->responder table,
// recording every call it receives.
type fakeTransport struct {
	responders map[string]func(params []any) (any, *transport.RPCError)
	calls      []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responders: make(map[string]func([]any) (any, *transport.RPCError))}
}

func (f *fakeTransport) on(method string, fn func(params []any) (any, *transport.RPCError)) {
	f.responders[method] = fn
}

func (f *fakeTransport) Do(_ context.Context, _ string, _ string, body []byte, _ map[string]string) ([]byte, int, error) {
	var req transport.RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, 0, err
	}
	f.calls = append(f.calls, req.Method)

	responder, ok := f.responders[req.Method]
	if !ok {
		return nil, 500, nil
	}
	result, rpcErr := responder(req.Params)

	resp := transport.RPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, 0, err
		}
		resp.Result = raw
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, 0, err
	}
	return data, 200, nil
}

func await[T any](t *testing.T, p *promise.Promise[T]) (T, error) {
	t.Helper()
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	p.OnCompletion(func(v T, err error) { ch <- outcome{v, err} })
	select {
	case o := <-ch:
		return o.v, o.err
	case <-time.After(2 * time.Second):
		t.Fatal("promise never settled")
		var zero T
		return zero, nil
	}
}

func testAddress(t *testing.T) addr.Address {
	t.Helper()
	a, err := addr.FromHex("0x52908400098527886E0F7030069857D2E4169EE7")
	require.NoError(t, err)
	return a
}

func TestGetBlockNumber(t *testing.T) {
	ft := newFakeTransport()
	ft.on("eth_blockNumber", func(_ []any) (any, *transport.RPCError) {
		return "0x10", nil
	})
	p := New(1, Config{URL: "http://node"}, ft)

	num, err := await[int64](t, p.GetBlockNumber())
	require.NoError(t, err)
	require.Equal(t, int64(16), num)
}

func TestGetBalance(t *testing.T) {
	ft := newFakeTransport()
	ft.on("eth_getBalance", func(params []any) (any, *transport.RPCError) {
		require.Len(t, params, 2)
		require.Equal(t, "latest", params[1])
		return "0xde0b6b3a7640000", nil
	})
	p := New(1, Config{URL: "http://node"}, ft)

	bal, err := await(t, p.GetBalance(testAddress(t), provider.BlockTagLatest))
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", bal.DecimalString())
}

func TestCallTranslatesRPCError(t *testing.T) {
	ft := newFakeTransport()
	ft.on("eth_getTransactionCount", func(_ []any) (any, *transport.RPCError) {
		return nil, &transport.RPCError{Code: -32000, Message: "boom"}
	})
	p := New(1, Config{URL: "http://node"}, ft)

	_, err := await[uint64](t, p.GetTransactionCount(testAddress(t), provider.BlockTagLatest))
	require.Error(t, err)
	require.True(t, provider.IsKind(err, provider.ErrServerUnknownError))
}

func TestGetTransactionsNotImplemented(t *testing.T) {
	p := New(1, Config{URL: "http://node"}, newFakeTransport())
	_, err := await(t, p.GetTransactions(testAddress(t), provider.BlockTagEarliest))
	require.True(t, provider.IsKind(err, provider.ErrNotImplemented))
}

func TestLookupNameNotImplemented(t *testing.T) {
	p := New(1, Config{URL: "http://node"}, newFakeTransport())
	_, err := await(t, p.LookupName("vitalik.eth"))
	require.True(t, provider.IsKind(err, provider.ErrNotImplemented))
}

func TestRequestCountIncrements(t *testing.T) {
	ft := newFakeTransport()
	ft.on("eth_blockNumber", func(_ []any) (any, *transport.RPCError) { return "0x1", nil })
	p := New(1, Config{URL: "http://node"}, ft)

	_, err := await[int64](t, p.GetBlockNumber())
	require.NoError(t, err)
	_, err = await[int64](t, p.GetBlockNumber())
	require.NoError(t, err)
	require.Equal(t, int64(2), p.RequestCount())
}
