// Package policy defines the block policy: the network rules every block and
// transaction must satisfy before a chain accepts it.
//
// This package provides:
//   - Network identification constants (MainNet, FakeNet)
//   - Block limits (transactions per block and per signer, encoded size)
//   - The native-token set that restricts which currencies actions may move
//   - BlockPolicy, the interface the chain consults on every append
//
// Rules is a plain value. A BlockPolicy built from it with New never
// changes, so it can be shared between the chain and the production loop.
package policy

import (
	"encoding/json"

	"github.com/rony4d/go-planet-node/inter"
)

// Network identification constants
const (
	// MainNetworkID identifies the production planet network.
	MainNetworkID uint64 = 0x504e

	// FakeNetworkID identifies local networks used in tests and development.
	FakeNetworkID uint64 = 0x5046
)

// KeyCurrency is the network's native token.
var KeyCurrency = inter.Currency{
	Ticker:        "PNG",
	DecimalPlaces: 18,
}

// BlocksRules bounds the contents of a single block.
type BlocksRules struct {
	// MaxTransactionsPerBlock caps the number of transactions a proposer
	// may include. Zero means unlimited.
	MaxTransactionsPerBlock int

	// MaxTransactionsPerSignerPerBlock caps how many transactions of the
	// same signer fit into one block, so a single account cannot crowd out
	// the others. Zero means unlimited.
	MaxTransactionsPerSignerPerBlock int

	// MaxBlockBytes caps the RLP-encoded size of a block. Zero means
	// unlimited.
	MaxBlockBytes int
}

// Rules describes the complete configuration of a planet network.
type Rules struct {
	// Name is a human-readable network name (e.g. "main", "fake").
	Name string

	// NetworkID distinguishes networks sharing the same software.
	NetworkID uint64

	// Blocks holds the block limits.
	Blocks BlocksRules

	// NativeTokens lists the currencies actions may move. An empty list
	// accepts any currency.
	NativeTokens []inter.Currency
}

// MainNetRules returns the rules of the production network.
func MainNetRules() Rules {
	return Rules{
		Name:      "main",
		NetworkID: MainNetworkID,
		Blocks: BlocksRules{
			MaxTransactionsPerBlock:          100,
			MaxTransactionsPerSignerPerBlock: 10,
			MaxBlockBytes:                    1 << 20, // 1 MiB
		},
		NativeTokens: []inter.Currency{KeyCurrency},
	}
}

// FakeNetRules returns the rules of a local network. Limits are relaxed so
// that tests can stuff blocks freely.
func FakeNetRules() Rules {
	return Rules{
		Name:      "fake",
		NetworkID: FakeNetworkID,
		Blocks: BlocksRules{
			MaxTransactionsPerBlock:          1000,
			MaxTransactionsPerSignerPerBlock: 0,
			MaxBlockBytes:                    0,
		},
		NativeTokens: []inter.Currency{KeyCurrency},
	}
}

// Copy creates a deep copy of Rules. The native-token list is not shared.
func (r Rules) Copy() Rules {
	cp := r
	cp.NativeTokens = make([]inter.Currency, len(r.NativeTokens))
	copy(cp.NativeTokens, r.NativeTokens)
	return cp
}

// String returns a JSON representation of Rules for logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
