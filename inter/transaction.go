package inter

import (
	"crypto/ecdsa"
	"errors"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

var (
	// ErrInvalidSignature is returned when a signature does not match the
	// embedded public key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrSignerMismatch is returned when the declared signer address is not
	// derived from the embedded public key.
	ErrSignerMismatch = errors.New("signer does not match public key")
)

// Transaction is a signed, ordered batch of encoded actions.
//
// Actions are kept as opaque bytes here; package actions owns their closed
// set of variants. Keeping them encoded lets the transaction id stay stable
// regardless of how a node decodes them.
type Transaction struct {
	// Nonce orders the transactions of one signer, starting at zero.
	Nonce uint64

	// Signer is the account that authored the transaction.
	Signer common.Address

	// PublicKey is the signer's key; Signer must be derived from it.
	PublicKey validatorpk.PubKey

	// Timestamp is the creation time, used for staging lifetime checks.
	Timestamp Timestamp

	// Actions are encoded action envelopes executed in order.
	Actions [][]byte

	// Signature is a 65-byte secp256k1 signature over the other fields.
	Signature []byte
}

type unsignedTransaction struct {
	Nonce     uint64
	Signer    common.Address
	PublicKey validatorpk.PubKey
	Timestamp Timestamp
	Actions   [][]byte
}

// NewTransaction builds and signs a transaction.
func NewTransaction(key *ecdsa.PrivateKey, nonce uint64, actions [][]byte, now time.Time) (*Transaction, error) {
	tx := &Transaction{
		Nonce:     nonce,
		Signer:    crypto.PubkeyToAddress(key.PublicKey),
		PublicKey: validatorpk.FromECDSA(&key.PublicKey),
		Timestamp: TimestampOf(now),
		Actions:   actions,
	}
	sig, err := crypto.Sign(tx.digest().Bytes(), key)
	if err != nil {
		return nil, err
	}
	tx.Signature = sig
	return tx, nil
}

func (tx *Transaction) digest() hash.Hash {
	return hash.Of(mustEncode(&unsignedTransaction{
		Nonce:     tx.Nonce,
		Signer:    tx.Signer,
		PublicKey: tx.PublicKey,
		Timestamp: tx.Timestamp,
		Actions:   tx.Actions,
	}))
}

// ID is the hash of the full signed encoding.
func (tx *Transaction) ID() hash.Hash {
	return hash.Of(mustEncode(tx))
}

// Verify checks the signer binding and the signature.
func (tx *Transaction) Verify() error {
	if tx.PublicKey.Address() != tx.Signer {
		return ErrSignerMismatch
	}
	return verifySignature(tx.PublicKey, tx.digest(), tx.Signature)
}

// Size is the encoded size in bytes.
func (tx *Transaction) Size() int {
	return len(mustEncode(tx))
}

func verifySignature(pub validatorpk.PubKey, digest hash.Hash, sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}
	if pub.Type != validatorpk.Types.Secp256k1 {
		return ErrInvalidSignature
	}
	if !crypto.VerifySignature(pub.Raw, digest.Bytes(), sig[:crypto.RecoveryIDOffset]) {
		return ErrInvalidSignature
	}
	return nil
}

func mustEncode(v interface{}) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(err)
	}
	return b
}
