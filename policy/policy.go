package policy

import (
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/inter"
)

// BlockPolicy is consulted by the chain before it stages a transaction and
// before it appends a block.
type BlockPolicy interface {
	// ValidateNextTransaction rejects transactions that must never be
	// staged: bad signatures, undecodable actions.
	ValidateNextTransaction(tx *inter.Transaction) error

	// ValidateNextBlock checks block-level limits. Chain linkage (index,
	// previous hash, commit) is the chain's job, not the policy's.
	ValidateNextBlock(block *inter.Block) error

	// MaxTransactionsPerBlock is the proposer's cap at the given height.
	MaxTransactionsPerBlock(index idx.Block) int

	// MaxTransactionsPerSignerPerBlock is the per-signer cap at the given
	// height.
	MaxTransactionsPerSignerPerBlock(index idx.Block) int

	// NativeTokens lists the currencies actions may move.
	NativeTokens() []inter.Currency
}

type rulesPolicy struct {
	rules Rules
}

// New returns a policy enforcing rules.
func New(rules Rules) BlockPolicy {
	return &rulesPolicy{rules: rules.Copy()}
}

// Default returns the main network policy parameterized by nativeTokens.
// It is the policy the bootstrapper uses when none is supplied, and the
// token set is its only customization point.
func Default(nativeTokens []inter.Currency) BlockPolicy {
	rules := MainNetRules()
	rules.NativeTokens = nativeTokens
	return New(rules)
}

func (p *rulesPolicy) ValidateNextTransaction(tx *inter.Transaction) error {
	if err := tx.Verify(); err != nil {
		return errors.Wrapf(err, "transaction %s", tx.ID())
	}
	for i, raw := range tx.Actions {
		if _, err := actions.Decode(raw); err != nil {
			return errors.Wrapf(err, "transaction %s action %d", tx.ID(), i)
		}
	}
	return nil
}

func (p *rulesPolicy) ValidateNextBlock(block *inter.Block) error {
	limits := p.rules.Blocks
	if n := limits.MaxTransactionsPerBlock; n > 0 && len(block.Transactions) > n {
		return errors.Errorf("block %d has %d transactions, limit %d", block.Index(), len(block.Transactions), n)
	}
	if n := limits.MaxTransactionsPerSignerPerBlock; n > 0 {
		perSigner := make(map[common.Address]int)
		for _, tx := range block.Transactions {
			perSigner[tx.Signer]++
			if perSigner[tx.Signer] > n {
				return errors.Errorf("block %d has more than %d transactions from %s", block.Index(), n, tx.Signer.Hex())
			}
		}
	}
	if n := limits.MaxBlockBytes; n > 0 {
		if size := block.Size(); size > n {
			return errors.Errorf("block %d is %d bytes, limit %d", block.Index(), size, n)
		}
	}
	for _, tx := range block.Transactions {
		if err := p.ValidateNextTransaction(tx); err != nil {
			return err
		}
	}
	return nil
}

func (p *rulesPolicy) MaxTransactionsPerBlock(idx.Block) int {
	return p.rules.Blocks.MaxTransactionsPerBlock
}

func (p *rulesPolicy) MaxTransactionsPerSignerPerBlock(idx.Block) int {
	return p.rules.Blocks.MaxTransactionsPerSignerPerBlock
}

func (p *rulesPolicy) NativeTokens() []inter.Currency {
	out := make([]inter.Currency, len(p.rules.NativeTokens))
	copy(out, p.rules.NativeTokens)
	return out
}
