// Package chain is the ledger engine surface the node drives: it validates
// and appends blocks, evaluates their actions into the state store, keeps
// the pending transaction stage, and builds block proposals.
//
// A BlockChain is safe for concurrent use. Appends are serialized; readers
// see either the tip before an append or the tip after it, never a partial
// state.
package chain

import (
	"crypto/ecdsa"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/policy"
	"github.com/rony4d/go-planet-node/stage"
	"github.com/rony4d/go-planet-node/store"
)

const blockCacheSize = 256

// Options are the collaborators of a BlockChain. Policy and Stage are
// required.
type Options struct {
	Policy policy.BlockPolicy
	Stage  *stage.VolatileStagePolicy
	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// BlockChain is a handle on the canonical chain of a store.
type BlockChain struct {
	store  *store.Store
	state  *store.StateStore
	policy policy.BlockPolicy
	stage  *stage.VolatileStagePolicy
	clock  clock.Clock
	log    logrus.FieldLogger
	blocks *lru.Cache

	id      uuid.UUID
	genesis *inter.Block

	mu  sync.RWMutex
	tip *inter.Block

	subsMu sync.Mutex
	subs   map[int]func(*inter.Block)
	txSubs map[int]func(*inter.Transaction)
	nextID int
}

func newChain(st *store.Store, opts Options) (*BlockChain, error) {
	if opts.Policy == nil || opts.Stage == nil {
		return nil, errors.New("chain needs a block policy and a stage policy")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	cache, err := lru.New(blockCacheSize)
	if err != nil {
		return nil, err
	}
	return &BlockChain{
		store:  st,
		state:  st.State(),
		policy: opts.Policy,
		stage:  opts.Stage,
		clock:  opts.Clock,
		log:    opts.Logger,
		blocks: cache,
		subs:   make(map[int]func(*inter.Block)),
		txSubs: make(map[int]func(*inter.Transaction)),
	}, nil
}

// Create seeds a new canonical chain in st with genesis. The store must not
// hold a chain yet.
func Create(st *store.Store, genesis *inter.Block, opts Options) (*BlockChain, error) {
	bc, err := newChain(st, opts)
	if err != nil {
		return nil, err
	}
	if _, has, err := st.CanonicalChainID(); err != nil {
		return nil, err
	} else if has {
		return nil, ErrChainExists
	}
	if err := bc.checkGenesis(genesis); err != nil {
		return nil, err
	}

	delta, nonces, err := bc.evaluate(genesis)
	if err != nil {
		return nil, &InvalidBlockError{Index: 0, Hash: genesis.Hash(), Reason: err}
	}

	bc.id = uuid.New()
	batch := st.NewBatch()
	if err := bc.writeBlock(batch, genesis, nil, delta, nonces); err != nil {
		return nil, err
	}
	if err := st.SetCanonicalChainID(batch, bc.id); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, errors.Wrap(err, "write genesis")
	}

	bc.genesis = genesis
	bc.tip = genesis
	bc.blocks.Add(genesis.Hash(), genesis)
	bc.log.WithFields(logrus.Fields{
		"chain":   bc.id,
		"genesis": genesis.Hash().String(),
	}).Info("Created new chain")
	return bc, nil
}

// Open attaches to the canonical chain of st. When genesis is not nil it
// must be the block the chain was created from.
func Open(st *store.Store, genesis *inter.Block, opts Options) (*BlockChain, error) {
	bc, err := newChain(st, opts)
	if err != nil {
		return nil, err
	}
	id, has, err := st.CanonicalChainID()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNoCanonicalChain
	}
	bc.id = id

	stored, err := bc.BlockByIndex(0)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.New("canonical chain has no genesis block")
	}
	if genesis != nil && genesis.Hash() != stored.Hash() {
		return nil, &GenesisMismatchError{Stored: stored.Hash(), Supplied: genesis.Hash()}
	}
	bc.genesis = stored

	tipIndex, ok, err := st.Tip()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("canonical chain has no tip")
	}
	tip, err := bc.BlockByIndex(tipIndex)
	if err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, errors.Errorf("tip block #%d is missing", tipIndex)
	}
	bc.tip = tip
	bc.log.WithFields(logrus.Fields{
		"chain": bc.id,
		"tip":   tip.Index(),
		"hash":  tip.Hash().String(),
	}).Info("Opened existing chain")
	return bc, nil
}

func (bc *BlockChain) checkGenesis(g *inter.Block) error {
	if g == nil {
		return errors.New("genesis block is nil")
	}
	h := g.Hash()
	if g.Index() != 0 {
		return invalid(g.Index(), h, "genesis index must be 0")
	}
	if g.Header.PreviousHash != (hash.Hash{}) {
		return invalid(0, h, "genesis must not have a previous hash")
	}
	if g.LastCommit != nil {
		return invalid(0, h, "genesis must not carry a last commit")
	}
	if err := g.Verify(); err != nil {
		return &InvalidBlockError{Index: 0, Hash: h, Reason: err}
	}
	return nil
}

// ID is the canonical chain id.
func (bc *BlockChain) ID() uuid.UUID {
	return bc.id
}

// Genesis returns block 0.
func (bc *BlockChain) Genesis() *inter.Block {
	return bc.genesis
}

// Tip returns the last appended block.
func (bc *BlockChain) Tip() *inter.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Count is the number of blocks, genesis included.
func (bc *BlockChain) Count() uint64 {
	return uint64(bc.Tip().Index()) + 1
}

// Policy returns the block policy in force.
func (bc *BlockChain) Policy() policy.BlockPolicy {
	return bc.policy
}

// Stage returns the pending transaction stage.
func (bc *BlockChain) Stage() *stage.VolatileStagePolicy {
	return bc.stage
}

// BlockByHash returns nil for unknown blocks.
func (bc *BlockChain) BlockByHash(h hash.Hash) (*inter.Block, error) {
	if v, ok := bc.blocks.Get(h); ok {
		return v.(*inter.Block), nil
	}
	b, err := bc.store.GetBlock(h)
	if err != nil || b == nil {
		return nil, err
	}
	bc.blocks.Add(h, b)
	return b, nil
}

// BlockByIndex returns nil above the tip.
func (bc *BlockChain) BlockByIndex(n idx.Block) (*inter.Block, error) {
	h, ok, err := bc.store.GetBlockHash(n)
	if err != nil || !ok {
		return nil, err
	}
	return bc.BlockByHash(h)
}

// GetBlockCommit returns the commit stored for block h. Genesis has none.
func (bc *BlockChain) GetBlockCommit(h hash.Hash) (*inter.BlockCommit, error) {
	return bc.store.GetCommit(h)
}

// GetValidatorSet returns the validator set after the tip.
func (bc *BlockChain) GetValidatorSet() (*inter.ValidatorSet, error) {
	return bc.state.ValidatorSet()
}

// GetBalance returns addr's balance of c after the tip.
func (bc *BlockChain) GetBalance(addr common.Address, c inter.Currency) (inter.FungibleAssetValue, error) {
	raw, err := bc.state.Balance(addr, c)
	if err != nil {
		return inter.FungibleAssetValue{}, err
	}
	return inter.FungibleAssetValue{Currency: c, RawValue: raw}, nil
}

// GetNextTxNonce is the nonce the signer's next transaction should use,
// counting transactions already staged.
func (bc *BlockChain) GetNextTxNonce(addr common.Address) (uint64, error) {
	n, err := bc.store.GetTxNonce(addr)
	if err != nil {
		return 0, err
	}
	for _, tx := range bc.stage.Iterate() {
		if tx.Signer == addr && tx.Nonce == n {
			n++
		}
	}
	return n, nil
}

// StageTransaction validates tx against the policy and the stored nonce,
// then adds it to the stage.
func (bc *BlockChain) StageTransaction(tx *inter.Transaction) error {
	if err := bc.policy.ValidateNextTransaction(tx); err != nil {
		return err
	}
	next, err := bc.store.GetTxNonce(tx.Signer)
	if err != nil {
		return err
	}
	if tx.Nonce < next {
		return &InvalidTxNonceError{Signer: tx.Signer, Expected: next, Nonce: tx.Nonce}
	}
	return bc.stage.Stage(tx)
}

// MakeTransaction signs the actions with key at the next nonce and stages
// the result. Transaction subscribers are told about it.
func (bc *BlockChain) MakeTransaction(key *ecdsa.PrivateKey, aa ...actions.Action) (*inter.Transaction, error) {
	raw, err := actions.EncodeAll(aa...)
	if err != nil {
		return nil, err
	}
	nonce, err := bc.GetNextTxNonce(crypto.PubkeyToAddress(key.PublicKey))
	if err != nil {
		return nil, err
	}
	tx, err := inter.NewTransaction(key, nonce, raw, bc.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := bc.StageTransaction(tx); err != nil {
		return nil, err
	}
	bc.notifyTx(tx)
	return tx, nil
}

// Subscribe registers fn to be called after every successful append. The
// returned function unregisters it.
func (bc *BlockChain) Subscribe(fn func(*inter.Block)) func() {
	bc.subsMu.Lock()
	defer bc.subsMu.Unlock()
	id := bc.nextID
	bc.nextID++
	bc.subs[id] = fn
	return func() {
		bc.subsMu.Lock()
		defer bc.subsMu.Unlock()
		delete(bc.subs, id)
	}
}

func (bc *BlockChain) notify(b *inter.Block) {
	bc.subsMu.Lock()
	fns := make([]func(*inter.Block), 0, len(bc.subs))
	for _, fn := range bc.subs {
		fns = append(fns, fn)
	}
	bc.subsMu.Unlock()
	for _, fn := range fns {
		fn(b)
	}
}

// SubscribeTransactions registers fn to be called for every transaction
// made and staged by MakeTransaction. Transactions staged from peers are
// not reported. The returned function unregisters fn.
func (bc *BlockChain) SubscribeTransactions(fn func(*inter.Transaction)) func() {
	bc.subsMu.Lock()
	defer bc.subsMu.Unlock()
	id := bc.nextID
	bc.nextID++
	bc.txSubs[id] = fn
	return func() {
		bc.subsMu.Lock()
		defer bc.subsMu.Unlock()
		delete(bc.txSubs, id)
	}
}

func (bc *BlockChain) notifyTx(tx *inter.Transaction) {
	bc.subsMu.Lock()
	fns := make([]func(*inter.Transaction), 0, len(bc.txSubs))
	for _, fn := range bc.txSubs {
		fns = append(fns, fn)
	}
	bc.subsMu.Unlock()
	for _, fn := range fns {
		fn(tx)
	}
}
