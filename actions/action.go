// Package actions holds the closed set of state transitions a transaction
// can carry. The set of kinds is fixed at build time: every variant is a
// plain struct with its own RLP payload and a pure Execute function over a
// Delta, and Decode dispatches on the kind tag with a switch. There is no
// runtime registration of new kinds.
package actions

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
)

// Kind tags an encoded action.
type Kind uint8

const (
	KindInitializeStates Kind = iota + 1
	KindTransferAsset
	KindMintAsset
	KindSetValidator
)

func (k Kind) String() string {
	switch k {
	case KindInitializeStates:
		return "InitializeStates"
	case KindTransferAsset:
		return "TransferAsset"
	case KindMintAsset:
		return "MintAsset"
	case KindSetValidator:
		return "SetValidator"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ExecutionContext is what an action can see about the transaction and
// block it is executed in.
type ExecutionContext struct {
	// Signer is the transaction's author.
	Signer common.Address

	// Miner is the block proposer.
	Miner common.Address

	// BlockIndex is the height of the block being evaluated.
	BlockIndex idx.Block

	// NativeTokens restricts the currencies actions may move. Empty means
	// any currency is accepted.
	NativeTokens []inter.Currency
}

// Action is one closed variant.
type Action interface {
	Kind() Kind
	Execute(ctx *ExecutionContext, delta *Delta) error
}

type envelope struct {
	Kind    Kind
	Payload []byte
}

// Encode wraps an action into its tagged envelope.
func Encode(a Action) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(a)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", a.Kind())
	}
	return rlp.EncodeToBytes(&envelope{Kind: a.Kind(), Payload: payload})
}

// EncodeAll encodes a list of actions for a transaction.
func EncodeAll(aa ...Action) ([][]byte, error) {
	out := make([][]byte, len(aa))
	for i, a := range aa {
		raw, err := Encode(a)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

// Decode parses an envelope back into its concrete action.
func Decode(raw []byte) (Action, error) {
	var env envelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decode action envelope")
	}

	var a Action
	switch env.Kind {
	case KindInitializeStates:
		a = new(InitializeStates)
	case KindTransferAsset:
		a = new(TransferAsset)
	case KindMintAsset:
		a = new(MintAsset)
	case KindSetValidator:
		a = new(SetValidator)
	default:
		return nil, errors.Errorf("unknown action kind %d", uint8(env.Kind))
	}
	if err := rlp.DecodeBytes(env.Payload, a); err != nil {
		return nil, errors.Wrapf(err, "decode %s", env.Kind)
	}
	return a, nil
}

// Evaluate decodes and executes every action of tx against delta. The
// first failure aborts the transaction; delta may then hold partial writes
// and must be discarded by the caller.
func Evaluate(tx *inter.Transaction, ctx ExecutionContext, delta *Delta) error {
	ctx.Signer = tx.Signer
	for i, raw := range tx.Actions {
		a, err := Decode(raw)
		if err != nil {
			return errors.Wrapf(err, "action %d", i)
		}
		if err := a.Execute(&ctx, delta); err != nil {
			return errors.Wrapf(err, "action %d (%s)", i, a.Kind())
		}
	}
	return nil
}

func checkNative(ctx *ExecutionContext, c inter.Currency) error {
	if len(ctx.NativeTokens) == 0 {
		return nil
	}
	h := c.Hash()
	for _, n := range ctx.NativeTokens {
		if n.Hash() == h {
			return nil
		}
	}
	return &NonNativeCurrencyError{Currency: c}
}
