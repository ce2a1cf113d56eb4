// Package inter defines the planet node's core chain data structures: blocks,
// transactions, votes, commits and validator sets. Every type here encodes
// with RLP and hashes with keccak256 (lachesis-base hash.Of), so the same
// bytes are used on disk, on the wire and in the genesis file.
//
// Key concepts:
//   - Block: a signed header plus its transactions and the commit of the
//     previous block
//   - BlockCommit: the bundle of precommit votes attesting a block is final
//   - ValidatorSet: the roster of commit signers and their voting power
//
// Usage:
//
//	block := &inter.Block{Header: inter.Header{Index: tip.Index() + 1, ...}}
//	if err := block.Sign(key); err != nil { ... }
//	raw, _ := inter.EncodeBlock(block)
package inter

import (
	"crypto/ecdsa"
	"errors"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

// ProtocolVersion is the block format produced by this node.
const ProtocolVersion uint32 = 1

// ErrMinerMismatch is returned when the header's miner address is not
// derived from the header's public key.
var ErrMinerMismatch = errors.New("miner does not match public key")

// Header carries everything a block's signature covers except the last
// commit, which is hashed in separately.
type Header struct {
	// ProtocolVersion is the block format version.
	ProtocolVersion uint32

	// Index is the block height. The genesis block has index 0.
	Index idx.Block

	// Timestamp is when the proposer built the block.
	Timestamp Timestamp

	// Miner is the proposer's address, derived from PublicKey.
	Miner common.Address

	// PublicKey is the proposer's key, used to verify Signature.
	PublicKey validatorpk.PubKey

	// PreviousHash links to the parent block. It is zero for genesis.
	PreviousHash hash.Hash

	// TxHash commits to the ordered list of transaction ids.
	TxHash hash.Hash
}

// Block is a signed unit of the chain.
//
// The block's hash covers the header, the last commit and the signature,
// so two blocks built by different proposers at the same height never
// collide even with identical contents.
type Block struct {
	Header Header

	// Transactions are executed in order.
	Transactions []*Transaction

	// LastCommit attests the previous block. It is nil for the genesis
	// block and for block 1, whose parent (genesis) is never voted on.
	LastCommit *BlockCommit `rlp:"nil"`

	// Signature is the proposer's 65-byte secp256k1 signature.
	Signature []byte
}

type blockPreimage struct {
	Header     Header
	LastCommit *BlockCommit `rlp:"nil"`
}

// Index is a shortcut for Header.Index.
func (b *Block) Index() idx.Block {
	return b.Header.Index
}

func (b *Block) digest() hash.Hash {
	return hash.Of(mustEncode(&blockPreimage{Header: b.Header, LastCommit: b.LastCommit}))
}

// Hash identifies the signed block.
func (b *Block) Hash() hash.Hash {
	return hash.Of(b.digest().Bytes(), b.Signature)
}

// Sign fills in the proposer fields and signs the block with key.
func (b *Block) Sign(key *ecdsa.PrivateKey) error {
	b.Header.Miner = crypto.PubkeyToAddress(key.PublicKey)
	b.Header.PublicKey = validatorpk.FromECDSA(&key.PublicKey)
	b.Header.TxHash = TxHashOf(b.Transactions)
	sig, err := crypto.Sign(b.digest().Bytes(), key)
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

// Verify checks the header's self-consistency and the proposer signature.
// It does not look at the chain; see chain.BlockChain.Append for that.
func (b *Block) Verify() error {
	if b.Header.PublicKey.Address() != b.Header.Miner {
		return ErrMinerMismatch
	}
	if b.Header.TxHash != TxHashOf(b.Transactions) {
		return errors.New("transaction hash mismatch")
	}
	return verifySignature(b.Header.PublicKey, b.digest(), b.Signature)
}

// Size is the encoded size in bytes.
func (b *Block) Size() int {
	return len(mustEncode(b))
}

// TxHashOf commits to an ordered list of transactions. An empty list
// hashes to zero.
func TxHashOf(txs []*Transaction) hash.Hash {
	if len(txs) == 0 {
		return hash.Hash{}
	}
	ids := make([][]byte, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID().Bytes()
	}
	return hash.Of(ids...)
}

// EncodeBlock returns the RLP encoding of b.
func EncodeBlock(b *Block) ([]byte, error) {
	return rlp.EncodeToBytes(b)
}

// DecodeBlock parses the RLP encoding of a block.
func DecodeBlock(raw []byte) (*Block, error) {
	b := new(Block)
	if err := rlp.DecodeBytes(raw, b); err != nil {
		return nil, err
	}
	return b, nil
}
