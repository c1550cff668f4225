// Package config holds process-wide defaults for the provider and
// keystore subsystems: the chain ID to sign for plus a poller/HTTP/scrypt
// tuning surface, with a Default()/FromEnv() split.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/olehkaliuzhnyi/ethwallet/keystore"
)

// ChainIDAny is the legacy (pre-EIP-155) signing escape hatch: a
// transaction signed with it replays on every chain. Kept only for
// compatibility with pre-2016 tooling; FromEnv never selects it.
const ChainIDAny uint64 = 0

// ChainIDMainnet is Ethereum mainnet's chain ID.
const ChainIDMainnet uint64 = 1

// Config holds the configurable parameters that matter across the
// module: which chain to sign for, how the block-tip poller and HTTP
// transport are paced, and the scrypt strength new keystores are
// encrypted with.
type Config struct {
	// ChainID is folded into EIP-155 transaction signing digests.
	ChainID uint64

	// PollInterval is the block-tip poll cadence once caught up and
	// healthy. provider/api's Poller does not read this field; it uses its
	// own 4s default.
	PollInterval time.Duration

	// HTTPTimeout is the per-request HTTP timeout. provider/transport does
	// not read this field; transport.New uses transport.DefaultTimeout.
	HTTPTimeout time.Duration

	// Scrypt overrides the keystore KDF's work factor.
	Scrypt keystore.ScryptParams
}

// Default returns a Config populated with mainnet, production-strength
// defaults.
func Default() Config {
	return Config{
		ChainID:      ChainIDMainnet,
		PollInterval: 4 * time.Second,
		HTTPTimeout:  30 * time.Second,
		Scrypt:       keystore.Default(),
	}
}

// FromEnv returns a Config populated from environment variables, falling
// back to Default for unset values.
func FromEnv() Config {
	cfg := Default()

	if v := os.Getenv("ETHWALLET_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n != ChainIDAny {
			cfg.ChainID = n
		}
	}
	if v := os.Getenv("ETHWALLET_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("ETHWALLET_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if v := os.Getenv("ETHWALLET_SCRYPT_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scrypt.N = n
		}
	}

	return cfg
}
