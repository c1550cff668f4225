// Package api implements a concrete JSON-RPC-backed Provider: every
// public method builds a request, fetches it through a
// transport.Transport, and coerces the raw JSON result with jsonpath
// instead of hand-rolled type assertions. A running request counter
// tracks outbound JSON-RPC requests; GetEtherPrice's ticker requests are
// not counted.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
	"github.com/olehkaliuzhnyi/ethwallet/ethhash"
	"github.com/olehkaliuzhnyi/ethwallet/jsonpath"
	"github.com/olehkaliuzhnyi/ethwallet/promise"
	"github.com/olehkaliuzhnyi/ethwallet/provider"
	"github.com/olehkaliuzhnyi/ethwallet/provider/transport"
	"github.com/olehkaliuzhnyi/ethwallet/transaction"
)

// Config holds the fixed connection parameters for a Provider.
type Config struct {
	// URL is the JSON-RPC endpoint, e.g. "https://mainnet.infura.io/v3/...".
	URL string
	// PriceURL, if set, is queried by GetEtherPrice and must respond with
	// a JSON object coercible via jsonpath's "float" directive at
	// PricePath. Left empty, GetEtherPrice rejects with ErrNotImplemented
	// (no ticker backend configured).
	PriceURL  string
	PricePath string
	Headers   map[string]string
}

// Provider is the default Provider backend: a single JSON-RPC endpoint
// reached over HTTP.
type Provider struct {
	cfg          Config
	chainID      uint64
	transport    transport.Transport
	requestCount atomic.Int64
	logger       *slog.Logger

	*Poller
}

// New constructs a Provider bound to chainID, issuing requests through t
// (transport.New() if the caller has no custom Transport).
func New(chainID uint64, cfg Config, t transport.Transport) *Provider {
	p := &Provider{
		cfg:       cfg,
		chainID:   chainID,
		transport: t,
		logger:    slog.Default().With("component", "provider_api", "chain_id", chainID),
	}
	p.Poller = newPoller(p, p.logger)
	return p
}

// ChainID returns the chain this Provider was constructed for.
func (p *Provider) ChainID() uint64 { return p.chainID }

// RequestCount returns the total number of RPC requests issued so far.
func (p *Provider) RequestCount() int64 { return p.requestCount.Load() }

// call issues a single JSON-RPC request and returns its decoded result,
// translating transport and RPC-level failures into the provider error
// taxonomy.
func (p *Provider) call(ctx context.Context, op, method string, params []any) (any, error) {
	id := p.requestCount.Add(1)

	body, err := transport.EncodeRequest(id, method, params)
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadRequest, err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range p.cfg.Headers {
		headers[k] = v
	}

	data, status, err := p.transport.Do(ctx, "POST", p.cfg.URL, body, headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewError(op, provider.ErrTimeout, err)
		}
		return nil, provider.NewError(op, provider.ErrConnectionFailed, err)
	}

	switch {
	case status == 401 || status == 403:
		return nil, provider.NewError(op, provider.ErrNotAuthorized, fmt.Errorf("http %d", status))
	case status == 429:
		return nil, provider.NewError(op, provider.ErrThrottled, fmt.Errorf("http %d", status))
	case status == 408:
		return nil, provider.NewError(op, provider.ErrTimeout, fmt.Errorf("http %d", status))
	case status >= 500:
		return nil, provider.NewError(op, provider.ErrServerUnknownError, fmt.Errorf("http %d", status))
	case status >= 400:
		return nil, provider.NewError(op, provider.ErrBadRequest, fmt.Errorf("http %d", status))
	}

	result, rpcErr, err := transport.DecodeResponse(data)
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	if rpcErr != nil {
		return nil, provider.NewError(op, provider.ErrServerUnknownError, rpcErr)
	}
	return result, nil
}

func (p *Provider) GetBalance(address addr.Address, tag provider.BlockTag) *promise.Promise[*bigint.Int] {
	return promise.New(func(resolve func(*bigint.Int), reject func(error)) {
		go func() {
			ctx := context.Background()
			result, err := p.call(ctx, "getBalance", "eth_getBalance", []any{address.Hex(), tag.String()})
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "bigNumberHex")
			if err != nil {
				reject(provider.NewError("getBalance", provider.ErrBadResponse, err))
				return
			}
			resolve(v.(*bigint.Int))
		}()
	})
}

func (p *Provider) GetTransactionCount(address addr.Address, tag provider.BlockTag) *promise.Promise[uint64] {
	return promise.New(func(resolve func(uint64), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getTransactionCount", "eth_getTransactionCount", []any{address.Hex(), tag.String()})
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "integerHex")
			if err != nil {
				reject(provider.NewError("getTransactionCount", provider.ErrBadResponse, err))
				return
			}
			resolve(uint64(v.(int64)))
		}()
	})
}

func (p *Provider) GetCode(address addr.Address) *promise.Promise[[]byte] {
	return promise.New(func(resolve func([]byte), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getCode", "eth_getCode", []any{address.Hex(), provider.BlockTagLatest.String()})
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "data")
			if err != nil {
				reject(provider.NewError("getCode", provider.ErrBadResponse, err))
				return
			}
			resolve(v.([]byte))
		}()
	})
}

func (p *Provider) GetStorageAt(address addr.Address, position *bigint.Int) *promise.Promise[ethhash.Hash] {
	return promise.New(func(resolve func(ethhash.Hash), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getStorageAt", "eth_getStorageAt",
				[]any{address.Hex(), "0x" + position.HexString(false), provider.BlockTagLatest.String()})
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "hash")
			if err != nil {
				reject(provider.NewError("getStorageAt", provider.ErrBadResponse, err))
				return
			}
			resolve(v.(ethhash.Hash))
		}()
	})
}

func (p *Provider) GetBlockNumber() *promise.Promise[int64] {
	return promise.New(func(resolve func(int64), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getBlockNumber", "eth_blockNumber", nil)
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "integerHex")
			if err != nil {
				reject(provider.NewError("getBlockNumber", provider.ErrBadResponse, err))
				return
			}
			resolve(v.(int64))
		}()
	})
}

func (p *Provider) GetGasPrice() *promise.Promise[*bigint.Int] {
	return promise.New(func(resolve func(*bigint.Int), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getGasPrice", "eth_gasPrice", nil)
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "bigNumberHex")
			if err != nil {
				reject(provider.NewError("getGasPrice", provider.ErrBadResponse, err))
				return
			}
			resolve(v.(*bigint.Int))
		}()
	})
}

func callObject(tx *transaction.Transaction) map[string]any {
	obj := map[string]any{
		"gas":      "0x" + fmt.Sprintf("%x", tx.GasLimit),
		"gasPrice": "0x" + tx.GasPrice.HexString(false),
		"value":    "0x" + tx.Value.HexString(false),
	}
	if tx.To != nil {
		obj["to"] = tx.To.Hex()
	}
	if len(tx.Data) > 0 {
		obj["data"] = "0x" + fmt.Sprintf("%x", tx.Data)
	}
	return obj
}

func (p *Provider) Call(tx *transaction.Transaction) *promise.Promise[[]byte] {
	return promise.New(func(resolve func([]byte), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "call", "eth_call", []any{callObject(tx), provider.BlockTagLatest.String()})
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "data")
			if err != nil {
				reject(provider.NewError("call", provider.ErrBadResponse, err))
				return
			}
			resolve(v.([]byte))
		}()
	})
}

func (p *Provider) EstimateGas(tx *transaction.Transaction) *promise.Promise[*bigint.Int] {
	return promise.New(func(resolve func(*bigint.Int), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "estimateGas", "eth_estimateGas", []any{callObject(tx)})
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "bigNumberHex")
			if err != nil {
				reject(provider.NewError("estimateGas", provider.ErrBadResponse, err))
				return
			}
			resolve(v.(*bigint.Int))
		}()
	})
}

func (p *Provider) SendTransaction(signed []byte) *promise.Promise[ethhash.Hash] {
	return promise.New(func(resolve func(ethhash.Hash), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "sendTransaction", "eth_sendRawTransaction",
				[]any{"0x" + fmt.Sprintf("%x", signed)})
			if err != nil {
				reject(err)
				return
			}
			v, err := jsonpath.Query(result, "hash")
			if err != nil {
				reject(provider.NewError("sendTransaction", provider.ErrBadResponse, err))
				return
			}
			resolve(v.(ethhash.Hash))
		}()
	})
}

func parseBlockInfo(op string, result any) (*provider.BlockInfo, error) {
	if result == nil {
		return nil, provider.NewError(op, provider.ErrNotFound, nil)
	}
	number, err := jsonpath.Query(result, "dictionary:number/integerHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	hash, err := jsonpath.Query(result, "dictionary:hash/hash")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	parentHash, err := jsonpath.Query(result, "dictionary:parentHash/hash")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	timestamp, err := jsonpath.Query(result, "dictionary:timestamp/integerHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	gasLimit, err := jsonpath.Query(result, "dictionary:gasLimit/bigNumberHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	gasUsed, err := jsonpath.Query(result, "dictionary:gasUsed/bigNumberHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	miner, err := jsonpath.Query(result, "dictionary:miner/address")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}

	txs, err := jsonpath.Query(result, "dictionary:transactions/object")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	var hashes []ethhash.Hash
	if arr, ok := txs.([]any); ok {
		for _, item := range arr {
			if s, ok := item.(string); ok {
				h, err := ethhash.FromHex(s)
				if err == nil {
					hashes = append(hashes, h)
				}
			}
		}
	}

	return &provider.BlockInfo{
		Number:       number.(int64),
		Hash:         hash.(ethhash.Hash),
		ParentHash:   parentHash.(ethhash.Hash),
		Timestamp:    timestamp.(int64),
		GasLimit:     gasLimit.(*bigint.Int),
		GasUsed:      gasUsed.(*bigint.Int),
		Miner:        miner.(addr.Address),
		Transactions: hashes,
	}, nil
}

func (p *Provider) GetBlockByHash(hash ethhash.Hash) *promise.Promise[*provider.BlockInfo] {
	return promise.New(func(resolve func(*provider.BlockInfo), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getBlockByHash", "eth_getBlockByHash", []any{hash.Hex(), false})
			if err != nil {
				reject(err)
				return
			}
			info, err := parseBlockInfo("getBlockByHash", result)
			if err != nil {
				reject(err)
				return
			}
			resolve(info)
		}()
	})
}

func (p *Provider) GetBlockByTag(tag provider.BlockTag) *promise.Promise[*provider.BlockInfo] {
	return promise.New(func(resolve func(*provider.BlockInfo), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getBlockByTag", "eth_getBlockByNumber", []any{tag.String(), false})
			if err != nil {
				reject(err)
				return
			}
			info, err := parseBlockInfo("getBlockByTag", result)
			if err != nil {
				reject(err)
				return
			}
			resolve(info)
		}()
	})
}

func parseTransactionInfo(op string, result any) (*provider.TransactionInfo, error) {
	if result == nil {
		return nil, provider.NewError(op, provider.ErrNotFound, nil)
	}
	hash, err := jsonpath.Query(result, "dictionary:hash/hash")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	from, err := jsonpath.Query(result, "dictionary:from/address")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	value, err := jsonpath.Query(result, "dictionary:value/bigNumberHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	gasPrice, err := jsonpath.Query(result, "dictionary:gasPrice/bigNumberHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	gas, err := jsonpath.Query(result, "dictionary:gas/bigNumberHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	nonce, err := jsonpath.Query(result, "dictionary:nonce/integerHex")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}
	data, err := jsonpath.Query(result, "dictionary:input/data")
	if err != nil {
		return nil, provider.NewError(op, provider.ErrBadResponse, err)
	}

	info := &provider.TransactionInfo{
		Hash:     hash.(ethhash.Hash),
		From:     from.(addr.Address),
		Value:    value.(*bigint.Int),
		GasPrice: gasPrice.(*bigint.Int),
		Gas:      gas.(*bigint.Int),
		Nonce:    uint64(nonce.(int64)),
		Data:     data.([]byte),
	}

	if to, err := jsonpath.Query(result, "dictionary:to/address"); err == nil {
		a := to.(addr.Address)
		info.To = &a
	}
	if bh, err := jsonpath.Query(result, "dictionary:blockHash/hash"); err == nil {
		h := bh.(ethhash.Hash)
		info.BlockHash = &h
	}
	if bn, err := jsonpath.Query(result, "dictionary:blockNumber/integerHex"); err == nil {
		n := bn.(int64)
		info.BlockNumber = &n
	}
	if ti, err := jsonpath.Query(result, "dictionary:transactionIndex/integerHex"); err == nil {
		n := ti.(int64)
		info.TransactionIndex = &n
	}

	return info, nil
}

func (p *Provider) GetTransaction(hash ethhash.Hash) *promise.Promise[*provider.TransactionInfo] {
	return promise.New(func(resolve func(*provider.TransactionInfo), reject func(error)) {
		go func() {
			result, err := p.call(context.Background(), "getTransaction", "eth_getTransactionByHash", []any{hash.Hex()})
			if err != nil {
				reject(err)
				return
			}
			info, err := parseTransactionInfo("getTransaction", result)
			if err != nil {
				reject(err)
				return
			}
			resolve(info)
		}()
	})
}

// GetTransactions enumerates an address's transaction history from
// startTag onward. A bare JSON-RPC endpoint has no indexed-by-address
// query; this operation requires a backend-specific explorer API, which
// this package does not implement. Callers needing history should
// compose a dedicated explorer-backed Provider and combine it through
// provider/fallback.
func (p *Provider) GetTransactions(address addr.Address, startTag provider.BlockTag) *promise.Promise[[]*provider.TransactionInfo] {
	return promise.New(func(_ func([]*provider.TransactionInfo), reject func(error)) {
		reject(provider.NewError("getTransactions", provider.ErrNotImplemented, nil))
	})
}

// GetEtherPrice queries cfg.PriceURL for a USD/ETH ticker price. Left
// unconfigured, it rejects with ErrNotImplemented rather than guessing at
// an unvetted default ticker backend.
func (p *Provider) GetEtherPrice() *promise.Promise[float64] {
	return promise.New(func(resolve func(float64), reject func(error)) {
		if p.cfg.PriceURL == "" {
			reject(provider.NewError("getEtherPrice", provider.ErrNotImplemented, nil))
			return
		}
		go func() {
			data, status, err := p.transport.Do(context.Background(), "GET", p.cfg.PriceURL, nil, nil)
			if err != nil {
				reject(provider.NewError("getEtherPrice", provider.ErrConnectionFailed, err))
				return
			}
			if status >= 400 {
				reject(provider.NewError("getEtherPrice", provider.ErrServerUnknownError, fmt.Errorf("http %d", status)))
				return
			}
			var result any
			if err := json.Unmarshal(data, &result); err != nil {
				reject(provider.NewError("getEtherPrice", provider.ErrBadResponse, err))
				return
			}
			v, err := jsonpath.Query(result, p.cfg.PricePath)
			if err != nil {
				reject(provider.NewError("getEtherPrice", provider.ErrBadResponse, err))
				return
			}
			resolve(v.(float64))
		}()
	})
}

// LookupName and LookupAddress would resolve the on-chain naming registry
// via Call. Doing so needs ABI encoding of the resolver's
// `resolver(bytes32)` / `addr(bytes32)` selectors, which this library
// does not provide. Both therefore reject with ErrNotImplemented.
func (p *Provider) LookupName(name string) *promise.Promise[*addr.Address] {
	return promise.New(func(_ func(*addr.Address), reject func(error)) {
		reject(provider.NewError("lookupName", provider.ErrNotImplemented, nil))
	})
}

func (p *Provider) LookupAddress(address addr.Address) *promise.Promise[string] {
	return promise.New(func(_ func(string), reject func(error)) {
		reject(provider.NewError("lookupAddress", provider.ErrNotImplemented, nil))
	})
}
