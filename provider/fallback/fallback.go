// Package fallback implements two multi-backend composers: RoundRobin,
// which load-balances queries across an ordered list of child providers,
// and Fallback, which tries children in order and masks all but a
// terminal failure. Both wrap provider.Provider values and are themselves
// a provider.Provider, so composers nest.
package fallback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
	"github.com/olehkaliuzhnyi/ethwallet/ethhash"
	"github.com/olehkaliuzhnyi/ethwallet/promise"
	"github.com/olehkaliuzhnyi/ethwallet/provider"
	"github.com/olehkaliuzhnyi/ethwallet/transaction"
)

// ErrNoChildren is returned by the constructors when given an empty list.
var ErrNoChildren = errors.New("fallback: at least one child provider is required")

// ErrChainIDMismatch is returned when the child providers disagree on
// chain ID.
var ErrChainIDMismatch = errors.New("fallback: child providers disagree on chain id")

func checkChildren(children []provider.Provider) (uint64, error) {
	if len(children) == 0 {
		return 0, ErrNoChildren
	}
	chainID := children[0].ChainID()
	for _, c := range children[1:] {
		if c.ChainID() != chainID {
			return 0, fmt.Errorf("%w: %d vs %d", ErrChainIDMismatch, chainID, c.ChainID())
		}
	}
	return chainID, nil
}

// await blocks the calling goroutine on p's eventual result. Safe to call
// from any goroutine that is not itself the promise executor.
func await[T any](p *promise.Promise[T]) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	p.OnCompletion(func(v T, err error) { ch <- outcome{v, err} })
	o := <-ch
	return o.v, o.err
}

// retryable reports whether Fallback should try the next child after
// this error, or give up immediately: InvalidParameters and NotFound are
// request-shaped failures every child would reproduce.
func retryable(err error) bool {
	return !provider.IsKind(err, provider.ErrInvalidParameters) && !provider.IsKind(err, provider.ErrNotFound)
}

// -----------------------------------------------------------------------
// RoundRobin
// -----------------------------------------------------------------------

// RoundRobin dispatches each call to the next child in sequence,
// wrapping around. A child's failure is surfaced verbatim; there is no
// retry.
type RoundRobin struct {
	children []provider.Provider
	chainID  uint64
	counter  atomic.Uint64
	logger   *slog.Logger
}

// NewRoundRobin constructs a RoundRobin over children, which must all
// share one chain ID.
func NewRoundRobin(children ...provider.Provider) (*RoundRobin, error) {
	chainID, err := checkChildren(children)
	if err != nil {
		return nil, err
	}
	return &RoundRobin{
		children: children,
		chainID:  chainID,
		logger:   slog.Default().With("component", "provider_roundrobin", "chain_id", chainID),
	}, nil
}

func (r *RoundRobin) ChainID() uint64 { return r.chainID }

func (r *RoundRobin) next() provider.Provider {
	idx := r.counter.Add(1) - 1
	return r.children[idx%uint64(len(r.children))]
}

func (r *RoundRobin) GetBalance(address addr.Address, tag provider.BlockTag) *promise.Promise[*bigint.Int] {
	return r.next().GetBalance(address, tag)
}

func (r *RoundRobin) GetTransactionCount(address addr.Address, tag provider.BlockTag) *promise.Promise[uint64] {
	return r.next().GetTransactionCount(address, tag)
}

func (r *RoundRobin) GetCode(address addr.Address) *promise.Promise[[]byte] {
	return r.next().GetCode(address)
}

func (r *RoundRobin) GetStorageAt(address addr.Address, position *bigint.Int) *promise.Promise[ethhash.Hash] {
	return r.next().GetStorageAt(address, position)
}

func (r *RoundRobin) GetBlockNumber() *promise.Promise[int64] {
	return r.next().GetBlockNumber()
}

func (r *RoundRobin) GetGasPrice() *promise.Promise[*bigint.Int] {
	return r.next().GetGasPrice()
}

func (r *RoundRobin) Call(tx *transaction.Transaction) *promise.Promise[[]byte] {
	return r.next().Call(tx)
}

func (r *RoundRobin) EstimateGas(tx *transaction.Transaction) *promise.Promise[*bigint.Int] {
	return r.next().EstimateGas(tx)
}

func (r *RoundRobin) SendTransaction(signed []byte) *promise.Promise[ethhash.Hash] {
	return r.next().SendTransaction(signed)
}

func (r *RoundRobin) GetBlockByHash(hash ethhash.Hash) *promise.Promise[*provider.BlockInfo] {
	return r.next().GetBlockByHash(hash)
}

func (r *RoundRobin) GetBlockByTag(tag provider.BlockTag) *promise.Promise[*provider.BlockInfo] {
	return r.next().GetBlockByTag(tag)
}

func (r *RoundRobin) GetTransaction(hash ethhash.Hash) *promise.Promise[*provider.TransactionInfo] {
	return r.next().GetTransaction(hash)
}

func (r *RoundRobin) GetTransactions(address addr.Address, startTag provider.BlockTag) *promise.Promise[[]*provider.TransactionInfo] {
	return r.next().GetTransactions(address, startTag)
}

func (r *RoundRobin) GetEtherPrice() *promise.Promise[float64] {
	return r.next().GetEtherPrice()
}

func (r *RoundRobin) LookupName(name string) *promise.Promise[*addr.Address] {
	return r.next().LookupName(name)
}

func (r *RoundRobin) LookupAddress(address addr.Address) *promise.Promise[string] {
	return r.next().LookupAddress(address)
}

// -----------------------------------------------------------------------
// Fallback
// -----------------------------------------------------------------------

// Fallback tries children in order, returning the first success. On any
// ProviderError other than InvalidParameters or NotFound it moves to the
// next child; if every child fails it returns the last error.
// SendTransaction instead broadcasts to all children in parallel.
type Fallback struct {
	children []provider.Provider
	chainID  uint64
	logger   *slog.Logger
}

// NewFallback constructs a Fallback over children, which must all share
// one chain ID.
func NewFallback(children ...provider.Provider) (*Fallback, error) {
	chainID, err := checkChildren(children)
	if err != nil {
		return nil, err
	}
	return &Fallback{
		children: children,
		chainID:  chainID,
		logger:   slog.Default().With("component", "provider_fallback", "chain_id", chainID),
	}, nil
}

func (f *Fallback) ChainID() uint64 { return f.chainID }

// tryInOrder calls fn against each child in order on a background
// goroutine, stopping at the first success, a non-retryable error, or the
// end of the list (in which case the last error is returned).
func tryInOrder[T any](f *Fallback, op string, fn func(provider.Provider) *promise.Promise[T]) *promise.Promise[T] {
	return promise.New(func(resolve func(T), reject func(error)) {
		go func() {
			var lastErr error
			for i, child := range f.children {
				v, err := await(fn(child))
				if err == nil {
					resolve(v)
					return
				}
				lastErr = err
				if !retryable(err) {
					reject(err)
					return
				}
				f.logger.Warn("child failed, trying next", "op", op, "child", i, "error", err)
			}
			reject(lastErr)
		}()
	})
}

func (f *Fallback) GetBalance(address addr.Address, tag provider.BlockTag) *promise.Promise[*bigint.Int] {
	return tryInOrder(f, "getBalance", func(p provider.Provider) *promise.Promise[*bigint.Int] {
		return p.GetBalance(address, tag)
	})
}

func (f *Fallback) GetTransactionCount(address addr.Address, tag provider.BlockTag) *promise.Promise[uint64] {
	return tryInOrder(f, "getTransactionCount", func(p provider.Provider) *promise.Promise[uint64] {
		return p.GetTransactionCount(address, tag)
	})
}

func (f *Fallback) GetCode(address addr.Address) *promise.Promise[[]byte] {
	return tryInOrder(f, "getCode", func(p provider.Provider) *promise.Promise[[]byte] {
		return p.GetCode(address)
	})
}

func (f *Fallback) GetStorageAt(address addr.Address, position *bigint.Int) *promise.Promise[ethhash.Hash] {
	return tryInOrder(f, "getStorageAt", func(p provider.Provider) *promise.Promise[ethhash.Hash] {
		return p.GetStorageAt(address, position)
	})
}

func (f *Fallback) GetBlockNumber() *promise.Promise[int64] {
	return tryInOrder(f, "getBlockNumber", func(p provider.Provider) *promise.Promise[int64] {
		return p.GetBlockNumber()
	})
}

func (f *Fallback) GetGasPrice() *promise.Promise[*bigint.Int] {
	return tryInOrder(f, "getGasPrice", func(p provider.Provider) *promise.Promise[*bigint.Int] {
		return p.GetGasPrice()
	})
}

func (f *Fallback) Call(tx *transaction.Transaction) *promise.Promise[[]byte] {
	return tryInOrder(f, "call", func(p provider.Provider) *promise.Promise[[]byte] {
		return p.Call(tx)
	})
}

func (f *Fallback) EstimateGas(tx *transaction.Transaction) *promise.Promise[*bigint.Int] {
	return tryInOrder(f, "estimateGas", func(p provider.Provider) *promise.Promise[*bigint.Int] {
		return p.EstimateGas(tx)
	})
}

func (f *Fallback) GetBlockByHash(hash ethhash.Hash) *promise.Promise[*provider.BlockInfo] {
	return tryInOrder(f, "getBlockByHash", func(p provider.Provider) *promise.Promise[*provider.BlockInfo] {
		return p.GetBlockByHash(hash)
	})
}

func (f *Fallback) GetBlockByTag(tag provider.BlockTag) *promise.Promise[*provider.BlockInfo] {
	return tryInOrder(f, "getBlockByTag", func(p provider.Provider) *promise.Promise[*provider.BlockInfo] {
		return p.GetBlockByTag(tag)
	})
}

func (f *Fallback) GetTransaction(hash ethhash.Hash) *promise.Promise[*provider.TransactionInfo] {
	return tryInOrder(f, "getTransaction", func(p provider.Provider) *promise.Promise[*provider.TransactionInfo] {
		return p.GetTransaction(hash)
	})
}

func (f *Fallback) GetTransactions(address addr.Address, startTag provider.BlockTag) *promise.Promise[[]*provider.TransactionInfo] {
	return tryInOrder(f, "getTransactions", func(p provider.Provider) *promise.Promise[[]*provider.TransactionInfo] {
		return p.GetTransactions(address, startTag)
	})
}

func (f *Fallback) GetEtherPrice() *promise.Promise[float64] {
	return tryInOrder(f, "getEtherPrice", func(p provider.Provider) *promise.Promise[float64] {
		return p.GetEtherPrice()
	})
}

func (f *Fallback) LookupName(name string) *promise.Promise[*addr.Address] {
	return tryInOrder(f, "lookupName", func(p provider.Provider) *promise.Promise[*addr.Address] {
		return p.LookupName(name)
	})
}

func (f *Fallback) LookupAddress(address addr.Address) *promise.Promise[string] {
	return tryInOrder(f, "lookupAddress", func(p provider.Provider) *promise.Promise[string] {
		return p.LookupAddress(address)
	})
}

// SendTransaction broadcasts signed to every child in parallel. The first
// success settles the promise; any error from a child that reports after
// a success has already settled the promise is logged and discarded, not
// surfaced.
func (f *Fallback) SendTransaction(signed []byte) *promise.Promise[ethhash.Hash] {
	return promise.New(func(resolve func(ethhash.Hash), reject func(error)) {
		go func() {
			var (
				mu       sync.Mutex
				resolved bool
				firstErr error
			)

			var g errgroup.Group
			for i, child := range f.children {
				i, child := i, child
				g.Go(func() error {
					hash, err := await(child.SendTransaction(signed))

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						if firstErr == nil {
							firstErr = err
						}
						f.logger.Warn("broadcast child failed", "child", i, "error", err, "already_resolved", resolved)
						return nil
					}
					if !resolved {
						resolved = true
						resolve(hash)
					}
					return nil
				})
			}
			_ = g.Wait()

			mu.Lock()
			defer mu.Unlock()
			if !resolved {
				if firstErr == nil {
					firstErr = provider.NewError("sendTransaction", provider.ErrServerUnknownError, nil)
				}
				reject(firstErr)
			}
		}()
	})
}
