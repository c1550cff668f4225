package provider

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olehkaliuzhnyi/ethwallet/addr"
	"github.com/olehkaliuzhnyi/ethwallet/bigint"
	"github.com/olehkaliuzhnyi/ethwallet/ethhash"
)

// The interchange form of both snapshot types stringifies every integer
// in decimal and renders hashes, addresses, and data 0x-prefixed.

type blockInfoJSON struct {
	Number       string   `json:"number"`
	Hash         string   `json:"hash"`
	ParentHash   string   `json:"parentHash"`
	Timestamp    string   `json:"timestamp"`
	GasLimit     string   `json:"gasLimit"`
	GasUsed      string   `json:"gasUsed"`
	Miner        string   `json:"miner"`
	Transactions []string `json:"transactions"`
}

func bigIntString(v *bigint.Int) string {
	if v == nil {
		return "0"
	}
	return v.DecimalString()
}

func parseBigIntString(s string) (*bigint.Int, error) {
	if s == "" {
		return bigint.Zero(), nil
	}
	return bigint.FromDecimalString(s)
}

func (b *BlockInfo) MarshalJSON() ([]byte, error) {
	txs := make([]string, len(b.Transactions))
	for i, h := range b.Transactions {
		txs[i] = h.Hex()
	}
	return json.Marshal(blockInfoJSON{
		Number:       strconv.FormatInt(b.Number, 10),
		Hash:         b.Hash.Hex(),
		ParentHash:   b.ParentHash.Hex(),
		Timestamp:    strconv.FormatInt(b.Timestamp, 10),
		GasLimit:     bigIntString(b.GasLimit),
		GasUsed:      bigIntString(b.GasUsed),
		Miner:        b.Miner.Hex(),
		Transactions: txs,
	})
}

func (b *BlockInfo) UnmarshalJSON(data []byte) error {
	var raw blockInfoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("provider: block info: %w", err)
	}

	var parsed BlockInfo
	var err error
	if parsed.Number, err = strconv.ParseInt(raw.Number, 10, 64); err != nil {
		return fmt.Errorf("provider: block info number: %w", err)
	}
	if parsed.Hash, err = ethhash.FromHex(raw.Hash); err != nil {
		return fmt.Errorf("provider: block info hash: %w", err)
	}
	if parsed.ParentHash, err = ethhash.FromHex(raw.ParentHash); err != nil {
		return fmt.Errorf("provider: block info parent hash: %w", err)
	}
	if parsed.Timestamp, err = strconv.ParseInt(raw.Timestamp, 10, 64); err != nil {
		return fmt.Errorf("provider: block info timestamp: %w", err)
	}
	if parsed.GasLimit, err = parseBigIntString(raw.GasLimit); err != nil {
		return fmt.Errorf("provider: block info gas limit: %w", err)
	}
	if parsed.GasUsed, err = parseBigIntString(raw.GasUsed); err != nil {
		return fmt.Errorf("provider: block info gas used: %w", err)
	}
	if parsed.Miner, err = addr.FromHex(raw.Miner); err != nil {
		return fmt.Errorf("provider: block info miner: %w", err)
	}
	for _, s := range raw.Transactions {
		h, err := ethhash.FromHex(s)
		if err != nil {
			return fmt.Errorf("provider: block info transaction hash: %w", err)
		}
		parsed.Transactions = append(parsed.Transactions, h)
	}

	*b = parsed
	return nil
}

type transactionInfoJSON struct {
	Hash             string  `json:"hash"`
	BlockHash        *string `json:"blockHash,omitempty"`
	BlockNumber      *string `json:"blockNumber,omitempty"`
	TransactionIndex *string `json:"transactionIndex,omitempty"`
	From             string  `json:"from"`
	To               *string `json:"to,omitempty"`
	Value            string  `json:"value"`
	GasPrice         string  `json:"gasPrice"`
	Gas              string  `json:"gas"`
	Nonce            string  `json:"nonce"`
	Data             string  `json:"data"`
}

func (t *TransactionInfo) MarshalJSON() ([]byte, error) {
	raw := transactionInfoJSON{
		Hash:     t.Hash.Hex(),
		From:     t.From.Hex(),
		Value:    bigIntString(t.Value),
		GasPrice: bigIntString(t.GasPrice),
		Gas:      bigIntString(t.Gas),
		Nonce:    strconv.FormatUint(t.Nonce, 10),
		Data:     "0x" + hex.EncodeToString(t.Data),
	}
	if t.BlockHash != nil {
		s := t.BlockHash.Hex()
		raw.BlockHash = &s
	}
	if t.BlockNumber != nil {
		s := strconv.FormatInt(*t.BlockNumber, 10)
		raw.BlockNumber = &s
	}
	if t.TransactionIndex != nil {
		s := strconv.FormatInt(*t.TransactionIndex, 10)
		raw.TransactionIndex = &s
	}
	if t.To != nil {
		s := t.To.Hex()
		raw.To = &s
	}
	return json.Marshal(raw)
}

func (t *TransactionInfo) UnmarshalJSON(data []byte) error {
	var raw transactionInfoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("provider: transaction info: %w", err)
	}

	var parsed TransactionInfo
	var err error
	if parsed.Hash, err = ethhash.FromHex(raw.Hash); err != nil {
		return fmt.Errorf("provider: transaction info hash: %w", err)
	}
	if parsed.From, err = addr.FromHex(raw.From); err != nil {
		return fmt.Errorf("provider: transaction info from: %w", err)
	}
	if parsed.Value, err = parseBigIntString(raw.Value); err != nil {
		return fmt.Errorf("provider: transaction info value: %w", err)
	}
	if parsed.GasPrice, err = parseBigIntString(raw.GasPrice); err != nil {
		return fmt.Errorf("provider: transaction info gas price: %w", err)
	}
	if parsed.Gas, err = parseBigIntString(raw.Gas); err != nil {
		return fmt.Errorf("provider: transaction info gas: %w", err)
	}
	if parsed.Nonce, err = strconv.ParseUint(raw.Nonce, 10, 64); err != nil {
		return fmt.Errorf("provider: transaction info nonce: %w", err)
	}
	dataHex := raw.Data
	if len(dataHex) >= 2 && dataHex[:2] == "0x" {
		dataHex = dataHex[2:]
	}
	if parsed.Data, err = hex.DecodeString(dataHex); err != nil {
		return fmt.Errorf("provider: transaction info data: %w", err)
	}

	if raw.BlockHash != nil {
		h, err := ethhash.FromHex(*raw.BlockHash)
		if err != nil {
			return fmt.Errorf("provider: transaction info block hash: %w", err)
		}
		parsed.BlockHash = &h
	}
	if raw.BlockNumber != nil {
		n, err := strconv.ParseInt(*raw.BlockNumber, 10, 64)
		if err != nil {
			return fmt.Errorf("provider: transaction info block number: %w", err)
		}
		parsed.BlockNumber = &n
	}
	if raw.TransactionIndex != nil {
		n, err := strconv.ParseInt(*raw.TransactionIndex, 10, 64)
		if err != nil {
			return fmt.Errorf("provider: transaction info transaction index: %w", err)
		}
		parsed.TransactionIndex = &n
	}
	if raw.To != nil {
		a, err := addr.FromHex(*raw.To)
		if err != nil {
			return fmt.Errorf("provider: transaction info to: %w", err)
		}
		parsed.To = &a
	}

	*t = parsed
	return nil
}
