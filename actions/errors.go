package actions

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-planet-node/inter"
)

// InvalidTransferSignerError is returned when a transfer moves funds out of
// an account other than the transaction signer's.
type InvalidTransferSignerError struct {
	Signer    common.Address
	Sender    common.Address
	Recipient common.Address
}

func (e *InvalidTransferSignerError) Error() string {
	return fmt.Sprintf("transfer signed by %s cannot spend from %s (recipient %s)", e.Signer.Hex(), e.Sender.Hex(), e.Recipient.Hex())
}

// InsufficientBalanceError is returned when an account cannot cover a debit.
type InsufficientBalanceError struct {
	Address common.Address
	Balance inter.FungibleAssetValue
	Amount  inter.FungibleAssetValue
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance at %s: have %s, need %s", e.Address.Hex(), e.Balance, e.Amount)
}

// NonNativeCurrencyError is returned when an action touches a currency the
// block policy does not accept.
type NonNativeCurrencyError struct {
	Currency inter.Currency
}

func (e *NonNativeCurrencyError) Error() string {
	return "currency is not a native token: " + e.Currency.String()
}

// UnauthorizedMinterError is returned when a signer mints a currency it is
// not listed as a minter of.
type UnauthorizedMinterError struct {
	Signer   common.Address
	Currency inter.Currency
}

func (e *UnauthorizedMinterError) Error() string {
	return fmt.Sprintf("%s is not a minter of %s", e.Signer.Hex(), e.Currency)
}

func nonPositive(v *big.Int) bool {
	return v == nil || v.Sign() <= 0
}
