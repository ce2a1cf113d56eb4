package store

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/inter"
)

var (
	prefixBalance = []byte("s/b/")
	keyValidators = []byte("s/v")
)

// StateStore holds the latest account state: balances and the validator
// set. Only the state after the tip is kept.
type StateStore struct {
	db kvdb.Store
}

func balanceKey(addr common.Address, c inter.Currency) []byte {
	h := c.Hash()
	return withPrefix(prefixBalance, addr.Bytes(), h.Bytes())
}

// Balance returns the stored balance, zero if none.
func (s *StateStore) Balance(addr common.Address, c inter.Currency) (*big.Int, error) {
	raw, err := get(s.db, balanceKey(addr, c))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// ValidatorSet returns the stored set, empty if none was ever written.
func (s *StateStore) ValidatorSet() (*inter.ValidatorSet, error) {
	raw, err := get(s.db, keyValidators)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return inter.EmptyValidatorSet(), nil
	}
	var list []inter.Validator
	if err := rlp.DecodeBytes(raw, &list); err != nil {
		return nil, errors.Wrap(err, "corrupt validator set")
	}
	return inter.NewValidatorSet(list)
}

// WriteDelta persists the changes recorded in d.
func (s *StateStore) WriteDelta(w ethdb.KeyValueWriter, d *actions.Delta) error {
	for _, e := range d.Balances() {
		if e.Amount.Sign() < 0 {
			return errors.Errorf("negative balance for %s", e.Address.Hex())
		}
		key := balanceKey(e.Address, e.Currency)
		if e.Amount.Sign() == 0 {
			if err := w.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(key, e.Amount.Bytes()); err != nil {
			return err
		}
	}
	if set := d.UpdatedValidators(); set != nil {
		raw, err := rlp.EncodeToBytes(set.Validators())
		if err != nil {
			return err
		}
		if err := w.Put(keyValidators, raw); err != nil {
			return err
		}
	}
	return nil
}

var _ actions.StateReader = (*StateStore)(nil)
