package actions

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-planet-node/inter"
)

// StateReader is read access to account balances and the validator set.
type StateReader interface {
	Balance(addr common.Address, c inter.Currency) (*big.Int, error)
	ValidatorSet() (*inter.ValidatorSet, error)
}

type balanceKey struct {
	addr     common.Address
	currency hash.Hash
}

// BalanceEntry is one changed balance.
type BalanceEntry struct {
	Address  common.Address
	Currency inter.Currency
	Amount   *big.Int
}

// Delta records state changes on top of a StateReader without touching it.
// A Delta is itself a StateReader, so one can be stacked per transaction
// on top of a per-block Delta and merged back only on success.
type Delta struct {
	base       StateReader
	balances   map[balanceKey]*big.Int
	currencies map[hash.Hash]inter.Currency
	validators *inter.ValidatorSet
}

// NewDelta starts an empty overlay on base.
func NewDelta(base StateReader) *Delta {
	return &Delta{
		base:       base,
		balances:   make(map[balanceKey]*big.Int),
		currencies: make(map[hash.Hash]inter.Currency),
	}
}

// Balance returns the overlaid balance, never nil.
func (d *Delta) Balance(addr common.Address, c inter.Currency) (*big.Int, error) {
	h := c.Hash()
	if v, ok := d.balances[balanceKey{addr, h}]; ok {
		return new(big.Int).Set(v), nil
	}
	v, err := d.base.Balance(addr, c)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}

// ValidatorSet returns the overlaid set.
func (d *Delta) ValidatorSet() (*inter.ValidatorSet, error) {
	if d.validators != nil {
		return d.validators, nil
	}
	return d.base.ValidatorSet()
}

func (d *Delta) setBalance(addr common.Address, c inter.Currency, v *big.Int) {
	h := c.Hash()
	d.balances[balanceKey{addr, h}] = v
	d.currencies[h] = c
}

// Mint credits value to addr.
func (d *Delta) Mint(addr common.Address, value inter.FungibleAssetValue) error {
	cur, err := d.Balance(addr, value.Currency)
	if err != nil {
		return err
	}
	d.setBalance(addr, value.Currency, cur.Add(cur, value.RawValue))
	return nil
}

// Transfer moves value from sender to recipient, failing with
// InsufficientBalanceError when the sender cannot cover it.
func (d *Delta) Transfer(sender, recipient common.Address, value inter.FungibleAssetValue) error {
	from, err := d.Balance(sender, value.Currency)
	if err != nil {
		return err
	}
	if from.Cmp(value.RawValue) < 0 {
		return &InsufficientBalanceError{
			Address: sender,
			Balance: inter.FungibleAssetValue{Currency: value.Currency, RawValue: from},
			Amount:  value,
		}
	}
	d.setBalance(sender, value.Currency, from.Sub(from, value.RawValue))

	to, err := d.Balance(recipient, value.Currency)
	if err != nil {
		return err
	}
	d.setBalance(recipient, value.Currency, to.Add(to, value.RawValue))
	return nil
}

// SetValidator adds, replaces or (with zero power) removes a validator.
func (d *Delta) SetValidator(v inter.Validator) error {
	cur, err := d.ValidatorSet()
	if err != nil {
		return err
	}
	next, err := cur.Update(v)
	if err != nil {
		return err
	}
	d.validators = next
	return nil
}

// Merge applies the changes of child, which must have been stacked on d.
func (d *Delta) Merge(child *Delta) {
	for k, v := range child.balances {
		d.balances[k] = v
		d.currencies[k.currency] = child.currencies[k.currency]
	}
	if child.validators != nil {
		d.validators = child.validators
	}
}

// Balances lists the changed balances ordered by address then currency.
func (d *Delta) Balances() []BalanceEntry {
	out := make([]BalanceEntry, 0, len(d.balances))
	for k, v := range d.balances {
		out = append(out, BalanceEntry{Address: k.addr, Currency: d.currencies[k.currency], Amount: new(big.Int).Set(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Address[:], out[j].Address[:]); c != 0 {
			return c < 0
		}
		hi, hj := out[i].Currency.Hash(), out[j].Currency.Hash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})
	return out
}

// UpdatedValidators returns the new validator set, or nil if unchanged.
func (d *Delta) UpdatedValidators() *inter.ValidatorSet {
	return d.validators
}
