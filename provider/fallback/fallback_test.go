package fallback

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
	"github.com/olehkaliuzhnyi/ethwallet/ethhash"
	"github.com/olehkaliuzhnyi/ethwallet/promise"
	"github.com/olehkaliuzhnyi/ethwallet/provider"
	"github.com/olehkaliuzhnyi/ethwallet/transaction"
)

// stubProvider is a minimal provider.Provider whose GetBalance and
// SendTransaction behavior is configurable per test; every other method
// rejects with ErrNotImplemented since no test here exercises them.
type stubProvider struct {
	chainID uint64

	balance    *bigint.Int
	balanceErr error

	sendHash  ethhash.Hash
	sendErr   error
	sendDelay time.Duration
	sendCalls *atomic.Int32
}

func (s *stubProvider) ChainID() uint64 { return s.chainID }

func (s *stubProvider) GetBalance(addr.Address, provider.BlockTag) *promise.Promise[*bigint.Int] {
	return promise.New(func(resolve func(*bigint.Int), reject func(error)) {
		if s.balanceErr != nil {
			reject(s.balanceErr)
			return
		}
		resolve(s.balance)
	})
}

func (s *stubProvider) SendTransaction(signed []byte) *promise.Promise[ethhash.Hash] {
	return promise.New(func(resolve func(ethhash.Hash), reject func(error)) {
		go func() {
			if s.sendCalls != nil {
				s.sendCalls.Add(1)
			}
			if s.sendDelay > 0 {
				time.Sleep(s.sendDelay)
			}
			if s.sendErr != nil {
				reject(s.sendErr)
				return
			}
			resolve(s.sendHash)
		}()
	})
}

func (s *stubProvider) GetTransactionCount(addr.Address, provider.BlockTag) *promise.Promise[uint64] {
	return notImplemented[uint64]()
}
func (s *stubProvider) GetCode(addr.Address) *promise.Promise[[]byte] { return notImplemented[[]byte]() }
func (s *stubProvider) GetStorageAt(addr.Address, *bigint.Int) *promise.Promise[ethhash.Hash] {
	return notImplemented[ethhash.Hash]()
}
func (s *stubProvider) GetBlockNumber() *promise.Promise[int64] { return notImplemented[int64]() }
func (s *stubProvider) GetGasPrice() *promise.Promise[*bigint.Int] {
	return notImplemented[*bigint.Int]()
}
func (s *stubProvider) Call(*transaction.Transaction) *promise.Promise[[]byte] {
	return notImplemented[[]byte]()
}
func (s *stubProvider) EstimateGas(*transaction.Transaction) *promise.Promise[*bigint.Int] {
	return notImplemented[*bigint.Int]()
}
func (s *stubProvider) GetBlockByHash(ethhash.Hash) *promise.Promise[*provider.BlockInfo] {
	return notImplemented[*provider.BlockInfo]()
}
func (s *stubProvider) GetBlockByTag(provider.BlockTag) *promise.Promise[*provider.BlockInfo] {
	return notImplemented[*provider.BlockInfo]()
}
func (s *stubProvider) GetTransaction(ethhash.Hash) *promise.Promise[*provider.TransactionInfo] {
	return notImplemented[*provider.TransactionInfo]()
}
func (s *stubProvider) GetTransactions(addr.Address, provider.BlockTag) *promise.Promise[[]*provider.TransactionInfo] {
	return notImplemented[[]*provider.TransactionInfo]()
}
func (s *stubProvider) GetEtherPrice() *promise.Promise[float64] { return notImplemented[float64]() }
func (s *stubProvider) LookupName(string) *promise.Promise[*addr.Address] {
	return notImplemented[*addr.Address]()
}
func (s *stubProvider) LookupAddress(addr.Address) *promise.Promise[string] {
	return notImplemented[string]()
}

func notImplemented[T any]() *promise.Promise[T] {
	return promise.New(func(_ func(T), reject func(error)) {
		reject(provider.NewError("stub", provider.ErrNotImplemented, nil))
	})
}

func settle[T any](t *testing.T, p *promise.Promise[T]) (T, error) {
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

func mustInt(t *testing.T, s string) *bigint.Int {
	t.Helper()
	v, err := bigint.FromDecimalString(s)
	require.NoError(t, err)
	return v
}

func TestMismatchedChainIDRejected(t *testing.T) {
	a := &stubProvider{chainID: 1}
	b := &stubProvider{chainID: 2}

	_, err := NewFallback(a, b)
	require.ErrorIs(t, err, ErrChainIDMismatch)

	_, err = NewRoundRobin(a, b)
	require.ErrorIs(t, err, ErrChainIDMismatch)
}

func TestRoundRobinCyclesChildren(t *testing.T) {
	a := &stubProvider{chainID: 1, balance: mustInt(t, "1")}
	b := &stubProvider{chainID: 1, balance: mustInt(t, "2")}
	rr, err := NewRoundRobin(a, b)
	require.NoError(t, err)

	v1, err := settle(t, rr.GetBalance(addr.Zero, provider.BlockTagLatest))
	require.NoError(t, err)
	v2, err := settle(t, rr.GetBalance(addr.Zero, provider.BlockTagLatest))
	require.NoError(t, err)
	v3, err := settle(t, rr.GetBalance(addr.Zero, provider.BlockTagLatest))
	require.NoError(t, err)

	require.Equal(t, "1", v1.DecimalString())
	require.Equal(t, "2", v2.DecimalString())
	require.Equal(t, "1", v3.DecimalString())
}

func TestFallbackTriesNextOnFailure(t *testing.T) {
	a := &stubProvider{chainID: 1, balanceErr: provider.NewError("getBalance", provider.ErrConnectionFailed, errors.New("down"))}
	b := &stubProvider{chainID: 1, balance: mustInt(t, "42")}
	fb, err := NewFallback(a, b)
	require.NoError(t, err)

	v, err := settle(t, fb.GetBalance(addr.Zero, provider.BlockTagLatest))
	require.NoError(t, err)
	require.Equal(t, "42", v.DecimalString())
}

func TestFallbackDoesNotRetryInvalidParameters(t *testing.T) {
	a := &stubProvider{chainID: 1, balanceErr: provider.NewError("getBalance", provider.ErrInvalidParameters, nil)}
	b := &stubProvider{chainID: 1, balance: mustInt(t, "42")}
	fb, err := NewFallback(a, b)
	require.NoError(t, err)

	_, err = settle(t, fb.GetBalance(addr.Zero, provider.BlockTagLatest))
	require.True(t, provider.IsKind(err, provider.ErrInvalidParameters))
}

func TestFallbackReturnsLastErrorWhenAllFail(t *testing.T) {
	errA := provider.NewError("getBalance", provider.ErrConnectionFailed, errors.New("a down"))
	errB := provider.NewError("getBalance", provider.ErrTimeout, errors.New("b down"))
	a := &stubProvider{chainID: 1, balanceErr: errA}
	b := &stubProvider{chainID: 1, balanceErr: errB}
	fb, err := NewFallback(a, b)
	require.NoError(t, err)

	_, err = settle(t, fb.GetBalance(addr.Zero, provider.BlockTagLatest))
	require.True(t, provider.IsKind(err, provider.ErrTimeout))
}

func TestFallbackBroadcastFirstSuccessWins(t *testing.T) {
	hash, err := ethhash.FromBytes(make([]byte, 32))
	require.NoError(t, err)

	var calls atomic.Int32
	slow := &stubProvider{chainID: 1, sendHash: hash, sendDelay: 50 * time.Millisecond, sendCalls: &calls}
	fast := &stubProvider{chainID: 1, sendHash: hash, sendCalls: &calls}
	fb, err := NewFallback(slow, fast)
	require.NoError(t, err)

	got, err := settle(t, fb.SendTransaction([]byte("signed")))
	require.NoError(t, err)
	require.Equal(t, hash, got)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
