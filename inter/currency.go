package inter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Currency describes a fungible asset tracked by the state store.
//
// Two currencies are the same asset iff their hashes match: the ticker alone
// is not an identity, a second currency sharing a ticker but with other
// minters is a different asset.
type Currency struct {
	// Ticker is the short display symbol, e.g. "NCG".
	Ticker string

	// DecimalPlaces is the number of fractional digits a RawValue carries.
	DecimalPlaces uint8

	// Minters are the addresses allowed to mint at genesis. An empty list
	// means nobody may mint outside of genesis initialization.
	Minters []common.Address
}

// Hash identifies the currency.
func (c Currency) Hash() hash.Hash {
	b, err := rlp.EncodeToBytes(&c)
	if err != nil {
		panic(err)
	}
	return hash.Of(b)
}

// IsMinter reports whether addr may mint this currency.
func (c Currency) IsMinter(addr common.Address) bool {
	for _, m := range c.Minters {
		if m == addr {
			return true
		}
	}
	return false
}

func (c Currency) String() string {
	return fmt.Sprintf("%s(%s)", c.Ticker, c.Hash().String()[:10])
}

// FungibleAssetValue is an amount of a currency in its smallest unit.
type FungibleAssetValue struct {
	Currency Currency
	RawValue *big.Int
}

// NewFungibleAssetValue returns major*10^decimals + minor in raw units.
func NewFungibleAssetValue(c Currency, major, minor int64) FungibleAssetValue {
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.DecimalPlaces)), nil)
	v.Mul(v, big.NewInt(major))
	v.Add(v, big.NewInt(minor))
	return FungibleAssetValue{Currency: c, RawValue: v}
}

// Sign returns -1, 0 or +1. A nil value counts as zero.
func (v FungibleAssetValue) Sign() int {
	if v.RawValue == nil {
		return 0
	}
	return v.RawValue.Sign()
}

// String renders the value with its decimal point, e.g. "12.50 NCG".
func (v FungibleAssetValue) String() string {
	raw := new(big.Int)
	if v.RawValue != nil {
		raw.Set(v.RawValue)
	}
	neg := raw.Sign() < 0
	raw.Abs(raw)

	digits := raw.String()
	dp := int(v.Currency.DecimalPlaces)
	if dp > 0 {
		if len(digits) <= dp {
			digits = strings.Repeat("0", dp-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-dp] + "." + digits[len(digits)-dp:]
	}
	if neg {
		digits = "-" + digits
	}
	return digits + " " + v.Currency.Ticker
}
