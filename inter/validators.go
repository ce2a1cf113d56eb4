package inter

import (
	"bytes"
	"math"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

// MaxTotalPower bounds the summed power of a validator set. It matches the
// weight limit of lachesis pos.Validators.
const MaxTotalPower = math.MaxUint32 / 2

// Validator is a commit signer and its voting power.
type Validator struct {
	PubKey validatorpk.PubKey
	Power  uint64
}

// QuorumPower is the power strictly above two thirds of total:
// floor(total*2/3) + 1. Computed without overflow for any uint64 total.
func QuorumPower(total uint64) uint64 {
	return total/3*2 + (total%3)*2/3 + 1
}

// ValidatorSet is an immutable roster of validators.
//
// Members are kept sorted by key so that the lachesis validator ids
// (1-based positions in that order) are deterministic across nodes.
type ValidatorSet struct {
	list    []Validator
	weights *pos.Validators
}

// NewValidatorSet builds a set. Keys must be unique, powers positive and
// their sum at most MaxTotalPower.
func NewValidatorSet(vv []Validator) (*ValidatorSet, error) {
	list := make([]Validator, len(vv))
	for i, v := range vv {
		list[i] = Validator{PubKey: v.PubKey.Copy(), Power: v.Power}
	}
	sort.Slice(list, func(i, j int) bool {
		return bytes.Compare(list[i].PubKey.Bytes(), list[j].PubKey.Bytes()) < 0
	})

	var total uint64
	builder := pos.NewBuilder()
	for i, v := range list {
		if v.PubKey.Empty() {
			return nil, errors.Errorf("validator %d has no public key", i)
		}
		if v.Power == 0 {
			return nil, errors.Errorf("validator %s has zero power", v.PubKey)
		}
		if i > 0 && list[i-1].PubKey.Equal(v.PubKey) {
			return nil, errors.Errorf("duplicate validator %s", v.PubKey)
		}
		total += v.Power
		if v.Power > MaxTotalPower || total > MaxTotalPower {
			return nil, errors.Errorf("validator set power exceeds %d", uint64(MaxTotalPower))
		}
		builder.Set(idx.ValidatorID(i+1), pos.Weight(v.Power))
	}
	return &ValidatorSet{list: list, weights: builder.Build()}, nil
}

// EmptyValidatorSet has no members and zero power.
func EmptyValidatorSet() *ValidatorSet {
	return &ValidatorSet{weights: pos.NewBuilder().Build()}
}

// Len returns the number of validators. A nil set is empty.
func (s *ValidatorSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.list)
}

// TotalPower sums the power of all validators.
func (s *ValidatorSet) TotalPower() uint64 {
	if s == nil || s.weights == nil {
		return 0
	}
	return uint64(s.weights.TotalWeight())
}

// GetValidator looks a member up by key.
func (s *ValidatorSet) GetValidator(pub validatorpk.PubKey) (Validator, bool) {
	if s == nil {
		return Validator{}, false
	}
	i := sort.Search(len(s.list), func(i int) bool {
		return bytes.Compare(s.list[i].PubKey.Bytes(), pub.Bytes()) >= 0
	})
	if i < len(s.list) && s.list[i].PubKey.Equal(pub) {
		id := idx.ValidatorID(i + 1)
		return Validator{PubKey: s.list[i].PubKey, Power: uint64(s.weights.Get(id))}, true
	}
	return Validator{}, false
}

// Validators returns a copy of the members in key order.
func (s *ValidatorSet) Validators() []Validator {
	if s == nil {
		return nil
	}
	out := make([]Validator, len(s.list))
	copy(out, s.list)
	return out
}

// Update returns a new set with v added, replaced, or removed when its
// power is zero.
func (s *ValidatorSet) Update(v Validator) (*ValidatorSet, error) {
	next := make([]Validator, 0, s.Len()+1)
	for _, cur := range s.Validators() {
		if !cur.PubKey.Equal(v.PubKey) {
			next = append(next, cur)
		}
	}
	if v.Power > 0 {
		next = append(next, v)
	}
	return NewValidatorSet(next)
}
