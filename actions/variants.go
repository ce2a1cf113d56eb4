package actions

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
)

// Allocation is one genesis credit.
type Allocation struct {
	Address common.Address
	Amount  inter.FungibleAssetValue
}

// InitializeStates mints the genesis allocations. Outside of the genesis
// block it does nothing.
type InitializeStates struct {
	Allocations []Allocation
}

func (a *InitializeStates) Kind() Kind { return KindInitializeStates }

func (a *InitializeStates) Execute(ctx *ExecutionContext, delta *Delta) error {
	if ctx.BlockIndex != 0 {
		return nil
	}
	for _, alloc := range a.Allocations {
		if nonPositive(alloc.Amount.RawValue) {
			return errors.Errorf("allocation to %s must be positive", alloc.Address.Hex())
		}
		if err := checkNative(ctx, alloc.Amount.Currency); err != nil {
			return err
		}
		if err := delta.Mint(alloc.Address, alloc.Amount); err != nil {
			return err
		}
	}
	return nil
}

// TransferAsset moves an amount between two accounts. Only the sender may
// sign it.
type TransferAsset struct {
	Sender    common.Address
	Recipient common.Address
	Amount    inter.FungibleAssetValue
}

func (a *TransferAsset) Kind() Kind { return KindTransferAsset }

func (a *TransferAsset) Execute(ctx *ExecutionContext, delta *Delta) error {
	if a.Sender != ctx.Signer {
		return &InvalidTransferSignerError{Signer: ctx.Signer, Sender: a.Sender, Recipient: a.Recipient}
	}
	if nonPositive(a.Amount.RawValue) {
		return errors.New("transfer amount must be positive")
	}
	if err := checkNative(ctx, a.Amount.Currency); err != nil {
		return err
	}
	return delta.Transfer(a.Sender, a.Recipient, a.Amount)
}

// MintAsset credits new units to a recipient. The signer must be one of the
// currency's minters.
type MintAsset struct {
	Recipient common.Address
	Amount    inter.FungibleAssetValue
}

func (a *MintAsset) Kind() Kind { return KindMintAsset }

func (a *MintAsset) Execute(ctx *ExecutionContext, delta *Delta) error {
	if !a.Amount.Currency.IsMinter(ctx.Signer) {
		return &UnauthorizedMinterError{Signer: ctx.Signer, Currency: a.Amount.Currency}
	}
	if nonPositive(a.Amount.RawValue) {
		return errors.New("mint amount must be positive")
	}
	if err := checkNative(ctx, a.Amount.Currency); err != nil {
		return err
	}
	return delta.Mint(a.Recipient, a.Amount)
}

// SetValidator seeds the validator roster. It is only accepted in the
// genesis block; later roster changes belong to a consensus protocol this
// node does not run.
type SetValidator struct {
	Validator inter.Validator
}

func (a *SetValidator) Kind() Kind { return KindSetValidator }

func (a *SetValidator) Execute(ctx *ExecutionContext, delta *Delta) error {
	if ctx.BlockIndex != 0 {
		return errors.New("validators can only be set in the genesis block")
	}
	if a.Validator.PubKey.Empty() {
		return errors.New("validator public key is empty")
	}
	return delta.SetValidator(a.Validator)
}
