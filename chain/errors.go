package chain

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	// ErrNoCanonicalChain is returned by Open on a store without a chain.
	ErrNoCanonicalChain = errors.New("store has no canonical chain")

	// ErrChainExists is returned by Create on a store that already has one.
	ErrChainExists = errors.New("store already has a canonical chain")
)

// InvalidBlockError is returned when Append rejects a block or its commit.
type InvalidBlockError struct {
	Index  idx.Block
	Hash   hash.Hash
	Reason error
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("invalid block #%d (%s): %v", e.Index, e.Hash.String(), e.Reason)
}

func (e *InvalidBlockError) Unwrap() error { return e.Reason }

func invalid(index idx.Block, h hash.Hash, format string, args ...interface{}) *InvalidBlockError {
	return &InvalidBlockError{Index: index, Hash: h, Reason: errors.Errorf(format, args...)}
}

// GenesisMismatchError is returned when a store is resumed with a genesis
// block other than the one it was created from.
type GenesisMismatchError struct {
	Stored   hash.Hash
	Supplied hash.Hash
}

func (e *GenesisMismatchError) Error() string {
	return fmt.Sprintf("genesis mismatch: store was created from %s, configuration supplies %s", e.Stored.String(), e.Supplied.String())
}

// InvalidTxNonceError is returned when staging a transaction whose nonce
// was already used.
type InvalidTxNonceError struct {
	Signer   common.Address
	Expected uint64
	Nonce    uint64
}

func (e *InvalidTxNonceError) Error() string {
	return fmt.Sprintf("transaction nonce %d from %s is stale, expected at least %d", e.Nonce, e.Signer.Hex(), e.Expected)
}
