// Package provider defines the uniform asynchronous query contract that
// fronts heterogeneous remote Ethereum node backends: every public
// operation returns a typed promise.Promise, errors are reported through a
// small closed taxonomy rather than raw transport failures, and BlockInfo /
// TransactionInfo are read-only snapshots of on-chain data.
package provider

import (
	"errors"
	"fmt"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
	"github.com/olehkaliuzhnyi/ethwallet/ethhash"
	"github.com/olehkaliuzhnyi/ethwallet/promise"
	"github.com/olehkaliuzhnyi/ethwallet/transaction"
)

// ErrorKind enumerates the closed provider error taxonomy.
type ErrorKind int

const (
	ErrNotImplemented ErrorKind = iota
	ErrInvalidParameters
	ErrUnsupportedNetwork
	ErrBadRequest
	ErrBadResponse
	ErrNotAuthorized
	ErrThrottled
	ErrTimeout
	ErrConnectionFailed
	ErrNotFound
	ErrServerUnknownError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotImplemented:
		return "not_implemented"
	case ErrInvalidParameters:
		return "invalid_parameters"
	case ErrUnsupportedNetwork:
		return "unsupported_network"
	case ErrBadRequest:
		return "bad_request"
	case ErrBadResponse:
		return "bad_response"
	case ErrNotAuthorized:
		return "not_authorized"
	case ErrThrottled:
		return "throttled"
	case ErrTimeout:
		return "timeout"
	case ErrConnectionFailed:
		return "connection_failed"
	case ErrNotFound:
		return "not_found"
	default:
		return "server_unknown_error"
	}
}

// Error is the typed error every Provider operation rejects its promise
// with. Callers branch on Kind via errors.As, never on the message text.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a provider Error, wrapping an optional underlying
// cause.
func NewError(op string, kind ErrorKind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// IsKind reports whether err is a provider Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// BlockTag selects a point in the chain's history: a positive value names
// a block number, while the three reserved values below name the genesis
// block (earliest, 0) or a moving reference point (latest, pending).
type BlockTag int64

const (
	BlockTagEarliest BlockTag = 0
	BlockTagLatest   BlockTag = -1
	BlockTagPending  BlockTag = -2
)

// String renders the tag the way a JSON-RPC backend expects it on the
// wire: the reserved tags as their keyword, anything else as a 0x-prefixed
// hex block number.
func (t BlockTag) String() string {
	switch t {
	case BlockTagEarliest:
		return "earliest"
	case BlockTagLatest:
		return "latest"
	case BlockTagPending:
		return "pending"
	default:
		return fmt.Sprintf("0x%x", int64(t))
	}
}

// BlockInfo is a read-only snapshot of a mined block.
type BlockInfo struct {
	Number       int64
	Hash         ethhash.Hash
	ParentHash   ethhash.Hash
	Timestamp    int64
	GasLimit     *bigint.Int
	GasUsed      *bigint.Int
	Miner        addr.Address
	Transactions []ethhash.Hash
}

// TransactionInfo is a read-only snapshot of a transaction as reported by
// a backend, including the fields only known once mined (BlockNumber,
// BlockHash, TransactionIndex) alongside the signed fields from
// transaction.Transaction.
type TransactionInfo struct {
	Hash             ethhash.Hash
	BlockHash        *ethhash.Hash
	BlockNumber      *int64
	TransactionIndex *int64
	From             addr.Address
	To               *addr.Address
	Value            *bigint.Int
	GasPrice         *bigint.Int
	Gas              *bigint.Int
	Nonce            uint64
	Data             []byte
}

// NewBlockEvent is delivered by a polling notifier whenever getBlockNumber
// strictly increases.
type NewBlockEvent struct {
	Number int64
}

// EtherPriceChangedEvent is delivered whenever getEtherPrice returns a
// value different from the last observed one.
type EtherPriceChangedEvent struct {
	USD float64
}

// Provider is the uniform query contract every backend (and composer)
// implements. Every method returns a promise.Promise so callers never
// block the calling goroutine; failures settle the promise with an *Error.
type Provider interface {
	ChainID() uint64

	GetBalance(address addr.Address, tag BlockTag) *promise.Promise[*bigint.Int]
	GetTransactionCount(address addr.Address, tag BlockTag) *promise.Promise[uint64]
	GetCode(address addr.Address) *promise.Promise[[]byte]
	GetStorageAt(address addr.Address, position *bigint.Int) *promise.Promise[ethhash.Hash]
	GetBlockNumber() *promise.Promise[int64]
	GetGasPrice() *promise.Promise[*bigint.Int]
	Call(tx *transaction.Transaction) *promise.Promise[[]byte]
	EstimateGas(tx *transaction.Transaction) *promise.Promise[*bigint.Int]
	SendTransaction(signed []byte) *promise.Promise[ethhash.Hash]
	GetBlockByHash(hash ethhash.Hash) *promise.Promise[*BlockInfo]
	GetBlockByTag(tag BlockTag) *promise.Promise[*BlockInfo]
	GetTransaction(hash ethhash.Hash) *promise.Promise[*TransactionInfo]
	GetTransactions(address addr.Address, startTag BlockTag) *promise.Promise[[]*TransactionInfo]
	GetEtherPrice() *promise.Promise[float64]
	LookupName(name string) *promise.Promise[*addr.Address]
	LookupAddress(address addr.Address) *promise.Promise[string]
}
