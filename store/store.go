// Package store persists blocks, commits and account state on top of a
// lachesis kvdb.Store.
//
// Store and StateStore are two views over the same key-value database,
// separated by key prefix. Keeping them in one database lets the chain write
// a block, its commit and the resulting state changes in a single batch, so
// an append either lands completely or not at all.
//
// Key layout:
//
//	m/chain            canonical chain id (16-byte uuid)
//	m/tip              index of the last appended block
//	b/<hash>           RLP block
//	i/<index>          block hash at a height
//	c/<hash>           RLP commit of a block
//	n/<address>        next transaction nonce
//	s/b/<addr><cur>    balance, big-endian bytes
//	s/v                RLP validator list
package store

import (
	"encoding/binary"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
)

var (
	keyChainID = []byte("m/chain")
	keyTip     = []byte("m/tip")

	prefixBlock  = []byte("b/")
	prefixIndex  = []byte("i/")
	prefixCommit = []byte("c/")
	prefixNonce  = []byte("n/")
)

func withPrefix(prefix []byte, parts ...[]byte) []byte {
	k := append([]byte{}, prefix...)
	for _, p := range parts {
		k = append(k, p...)
	}
	return k
}

func indexKey(n idx.Block) []byte {
	return withPrefix(prefixIndex, n.Bytes())
}

// get returns nil when the key is absent.
func get(db ethdb.KeyValueReader, key []byte) ([]byte, error) {
	ok, err := db.Has(key)
	if err != nil || !ok {
		return nil, err
	}
	return db.Get(key)
}

// Store holds the chain: blocks, commits, the height index, nonces and the
// canonical chain id.
type Store struct {
	db kvdb.Store
}

// NewStore wraps db. The StateStore for the same database is returned by
// State.
func NewStore(db kvdb.Store) *Store {
	return &Store{db: db}
}

// State returns the state view sharing this store's database.
func (s *Store) State() *StateStore {
	return &StateStore{db: s.db}
}

// NewBatch starts an atomic write covering both the chain and the state.
func (s *Store) NewBatch() kvdb.Batch {
	return s.db.NewBatch()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CanonicalChainID returns the id of the canonical chain, if one was set.
func (s *Store) CanonicalChainID() (uuid.UUID, bool, error) {
	raw, err := get(s.db, keyChainID)
	if err != nil || raw == nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, "corrupt canonical chain id")
	}
	return id, true, nil
}

// SetCanonicalChainID designates id as the canonical chain.
func (s *Store) SetCanonicalChainID(w ethdb.KeyValueWriter, id uuid.UUID) error {
	return w.Put(keyChainID, id[:])
}

// Tip returns the index of the last appended block.
func (s *Store) Tip() (idx.Block, bool, error) {
	raw, err := get(s.db, keyTip)
	if err != nil || raw == nil {
		return 0, false, err
	}
	return idx.BytesToBlock(raw), true, nil
}

// SetTip records the last appended block index.
func (s *Store) SetTip(w ethdb.KeyValueWriter, n idx.Block) error {
	return w.Put(keyTip, n.Bytes())
}

// GetBlock returns nil when the block is unknown.
func (s *Store) GetBlock(h hash.Hash) (*inter.Block, error) {
	raw, err := get(s.db, withPrefix(prefixBlock, h.Bytes()))
	if err != nil || raw == nil {
		return nil, err
	}
	b, err := inter.DecodeBlock(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt block %s", h)
	}
	return b, nil
}

// GetBlockHash returns the hash of the block at height n.
func (s *Store) GetBlockHash(n idx.Block) (hash.Hash, bool, error) {
	raw, err := get(s.db, indexKey(n))
	if err != nil || raw == nil {
		return hash.Hash{}, false, err
	}
	return hash.BytesToHash(raw), true, nil
}

// PutBlock stores b and indexes it by height.
func (s *Store) PutBlock(w ethdb.KeyValueWriter, b *inter.Block) error {
	raw, err := inter.EncodeBlock(b)
	if err != nil {
		return err
	}
	h := b.Hash()
	if err := w.Put(withPrefix(prefixBlock, h.Bytes()), raw); err != nil {
		return err
	}
	return w.Put(indexKey(b.Index()), h.Bytes())
}

// GetCommit returns the commit of block h, or nil.
func (s *Store) GetCommit(h hash.Hash) (*inter.BlockCommit, error) {
	raw, err := get(s.db, withPrefix(prefixCommit, h.Bytes()))
	if err != nil || raw == nil {
		return nil, err
	}
	c := new(inter.BlockCommit)
	if err := rlp.DecodeBytes(raw, c); err != nil {
		return nil, errors.Wrapf(err, "corrupt commit of %s", h)
	}
	return c, nil
}

// PutCommit stores the commit of a block.
func (s *Store) PutCommit(w ethdb.KeyValueWriter, c *inter.BlockCommit) error {
	raw, err := rlp.EncodeToBytes(c)
	if err != nil {
		return err
	}
	return w.Put(withPrefix(prefixCommit, c.BlockHash.Bytes()), raw)
}

// GetTxNonce returns the next nonce expected from addr.
func (s *Store) GetTxNonce(addr common.Address) (uint64, error) {
	raw, err := get(s.db, withPrefix(prefixNonce, addr.Bytes()))
	if err != nil || raw == nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.Errorf("corrupt nonce of %s", addr.Hex())
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetTxNonce records the next nonce expected from addr.
func (s *Store) SetTxNonce(w ethdb.KeyValueWriter, addr common.Address, nonce uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return w.Put(withPrefix(prefixNonce, addr.Bytes()), buf[:])
}
