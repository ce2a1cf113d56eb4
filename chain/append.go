package chain

import (
	"crypto/ecdsa"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/inter"
)

// evaluate runs the block's transactions against the current state.
//
// Nonces must be consecutive per signer, otherwise the whole block is
// invalid. A transaction whose actions fail is still part of the block and
// still consumes its nonce, but its state changes are discarded.
func (bc *BlockChain) evaluate(b *inter.Block) (*actions.Delta, map[common.Address]uint64, error) {
	delta := actions.NewDelta(bc.state)
	nonces := make(map[common.Address]uint64)
	ctx := actions.ExecutionContext{
		Miner:        b.Header.Miner,
		BlockIndex:   b.Index(),
		NativeTokens: bc.policy.NativeTokens(),
	}

	for i, tx := range b.Transactions {
		expected, ok := nonces[tx.Signer]
		if !ok {
			n, err := bc.store.GetTxNonce(tx.Signer)
			if err != nil {
				return nil, nil, err
			}
			expected = n
		}
		if tx.Nonce != expected {
			return nil, nil, errors.Errorf("transaction %d from %s has nonce %d, expected %d", i, tx.Signer.Hex(), tx.Nonce, expected)
		}
		nonces[tx.Signer] = expected + 1

		txDelta := actions.NewDelta(delta)
		if err := actions.Evaluate(tx, ctx, txDelta); err != nil {
			bc.log.WithError(err).WithFields(logrus.Fields{
				"block": b.Index(),
				"tx":    tx.ID().String(),
			}).Warn("Transaction failed, state changes discarded")
			continue
		}
		delta.Merge(txDelta)
	}
	return delta, nonces, nil
}

func (bc *BlockChain) writeBlock(w ethdb.KeyValueWriter, b *inter.Block, commit *inter.BlockCommit, delta *actions.Delta, nonces map[common.Address]uint64) error {
	if err := bc.store.PutBlock(w, b); err != nil {
		return err
	}
	if commit != nil {
		if err := bc.store.PutCommit(w, commit); err != nil {
			return err
		}
	}
	if err := bc.store.SetTip(w, b.Index()); err != nil {
		return err
	}
	for addr, n := range nonces {
		if err := bc.store.SetTxNonce(w, addr, n); err != nil {
			return err
		}
	}
	return bc.state.WriteDelta(w, delta)
}

// validate checks b and commit against the current tip. Callers hold mu.
func (bc *BlockChain) validate(b *inter.Block, commit *inter.BlockCommit) error {
	tip := bc.tip
	h := b.Hash()

	if b.Index() != tip.Index()+1 {
		return invalid(b.Index(), h, "expected index %d", tip.Index()+1)
	}
	if b.Header.PreviousHash != tip.Hash() {
		return invalid(b.Index(), h, "previous hash %s does not match tip %s", b.Header.PreviousHash.String(), tip.Hash().String())
	}
	if b.Header.Timestamp < tip.Header.Timestamp {
		return invalid(b.Index(), h, "timestamp %s is before the tip's %s", b.Header.Timestamp, tip.Header.Timestamp)
	}
	if b.Header.ProtocolVersion != inter.ProtocolVersion {
		return invalid(b.Index(), h, "unsupported protocol version %d", b.Header.ProtocolVersion)
	}
	if err := b.Verify(); err != nil {
		return &InvalidBlockError{Index: b.Index(), Hash: h, Reason: err}
	}
	if err := bc.policy.ValidateNextBlock(b); err != nil {
		return &InvalidBlockError{Index: b.Index(), Hash: h, Reason: err}
	}

	set, err := bc.state.ValidatorSet()
	if err != nil {
		return err
	}

	// Genesis is never voted on, so block 1 carries no last commit.
	if b.Index() == 1 {
		if b.LastCommit != nil {
			return invalid(b.Index(), h, "block 1 must not carry a last commit")
		}
	} else {
		lc := b.LastCommit
		if lc == nil {
			return invalid(b.Index(), h, "missing last commit")
		}
		if lc.BlockHash != tip.Hash() || lc.Height != tip.Index() {
			return invalid(b.Index(), h, "last commit does not reference the tip")
		}
		if err := lc.Verify(set); err != nil {
			return &InvalidBlockError{Index: b.Index(), Hash: h, Reason: errors.Wrap(err, "last commit")}
		}
	}

	if commit == nil {
		return invalid(b.Index(), h, "missing commit")
	}
	if commit.BlockHash != h || commit.Height != b.Index() {
		return invalid(b.Index(), h, "commit does not reference the block")
	}
	if err := commit.Verify(set); err != nil {
		return &InvalidBlockError{Index: b.Index(), Hash: h, Reason: errors.Wrap(err, "commit")}
	}
	return nil
}

// Append validates b with its commit, evaluates it and writes block,
// commit and state in one batch. Included transactions leave the stage.
// Subscribers are notified after the write, outside the chain lock.
func (bc *BlockChain) Append(b *inter.Block, commit *inter.BlockCommit) error {
	bc.mu.Lock()
	if err := bc.validate(b, commit); err != nil {
		bc.mu.Unlock()
		return err
	}
	delta, nonces, err := bc.evaluate(b)
	if err != nil {
		bc.mu.Unlock()
		return &InvalidBlockError{Index: b.Index(), Hash: b.Hash(), Reason: err}
	}

	batch := bc.store.NewBatch()
	if err := bc.writeBlock(batch, b, commit, delta, nonces); err != nil {
		bc.mu.Unlock()
		return err
	}
	if err := batch.Write(); err != nil {
		bc.mu.Unlock()
		return errors.Wrapf(err, "write block #%d", b.Index())
	}
	bc.tip = b
	bc.blocks.Add(b.Hash(), b)
	bc.mu.Unlock()

	for _, tx := range b.Transactions {
		bc.stage.Unstage(tx.ID())
	}
	bc.log.WithFields(logrus.Fields{
		"index": b.Index(),
		"hash":  b.Hash().String(),
		"txs":   len(b.Transactions),
	}).Debug("Appended block")

	bc.notify(b)
	return nil
}

// ProposeBlock builds and signs a block on top of the tip, filled from the
// stage within the policy's limits. lastCommit must be the tip's commit;
// it is dropped when proposing block 1.
func (bc *BlockChain) ProposeBlock(key *ecdsa.PrivateKey, lastCommit *inter.BlockCommit) (*inter.Block, error) {
	bc.mu.RLock()
	tip := bc.tip
	bc.mu.RUnlock()

	index := tip.Index() + 1
	if index == 1 {
		lastCommit = nil
	}

	txs, err := bc.gatherTransactions(index)
	if err != nil {
		return nil, err
	}

	ts := inter.TimestampOf(bc.clock.Now())
	if ts < tip.Header.Timestamp {
		ts = tip.Header.Timestamp
	}
	b := &inter.Block{
		Header: inter.Header{
			ProtocolVersion: inter.ProtocolVersion,
			Index:           index,
			Timestamp:       ts,
			PreviousHash:    tip.Hash(),
		},
		Transactions: txs,
		LastCommit:   lastCommit,
	}
	for {
		if err := b.Sign(key); err != nil {
			return nil, err
		}
		// Trimming from the tail keeps every signer's nonces consecutive.
		if len(b.Transactions) == 0 || bc.policy.ValidateNextBlock(b) == nil {
			return b, nil
		}
		b.Transactions = b.Transactions[:len(b.Transactions)-1]
	}
}

// gatherTransactions picks staged transactions in signer/nonce order,
// taking for each signer only the run of consecutive nonces starting at
// the stored one. Transactions the policy rejects are ignored for good.
func (bc *BlockChain) gatherTransactions(index idx.Block) ([]*inter.Transaction, error) {
	maxTotal := bc.policy.MaxTransactionsPerBlock(index)
	maxSigner := bc.policy.MaxTransactionsPerSignerPerBlock(index)

	var (
		out      []*inter.Transaction
		next     = make(map[common.Address]uint64)
		perCount = make(map[common.Address]int)
	)
	for _, tx := range bc.stage.Iterate() {
		if maxTotal > 0 && len(out) >= maxTotal {
			break
		}
		if err := bc.policy.ValidateNextTransaction(tx); err != nil {
			bc.stage.Ignore(tx.ID())
			bc.log.WithError(err).WithField("tx", tx.ID().String()).Warn("Ignoring staged transaction")
			continue
		}
		n, ok := next[tx.Signer]
		if !ok {
			stored, err := bc.store.GetTxNonce(tx.Signer)
			if err != nil {
				return nil, err
			}
			n = stored
		}
		if tx.Nonce < n {
			bc.stage.Unstage(tx.ID())
			continue
		}
		if tx.Nonce > n {
			continue
		}
		if maxSigner > 0 && perCount[tx.Signer] >= maxSigner {
			continue
		}
		out = append(out, tx)
		next[tx.Signer] = n + 1
		perCount[tx.Signer]++
	}
	return out, nil
}
