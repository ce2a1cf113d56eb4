// Package producer drives block production on a single node: an
// unthrottled miner and a paced solo validator that signs its own
// commits. Neither tallies votes from other validators.
package producer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

// RequiredPower is floor(total*2/3) + 1.
func RequiredPower(total uint64) uint64 {
	return inter.QuorumPower(total)
}

// IneligibleValidatorError is returned when a key cannot validate alone.
type IneligibleValidatorError struct {
	Validator validatorpk.PubKey
	Present   bool
	Current   uint64
	Required  uint64
	Total     uint64
}

func (e *IneligibleValidatorError) Error() string {
	current := fmt.Sprint(e.Current)
	if !e.Present {
		current = "(not in the validator set)"
	}
	return fmt.Sprintf("validator %s cannot validate alone: it needs more than 2/3 of the total power %d, "+
		"current power %s, required power %d", e.Validator, e.Total, current, e.Required)
}

// CheckEligibility accepts pub when it is in set with at least the
// required power.
func CheckEligibility(set *inter.ValidatorSet, pub validatorpk.PubKey) error {
	if set == nil {
		return errors.New("no validator set")
	}
	total := set.TotalPower()
	required := RequiredPower(total)
	v, ok := set.GetValidator(pub)
	if ok && v.Power >= required {
		return nil
	}
	return &IneligibleValidatorError{
		Validator: pub,
		Present:   ok,
		Current:   v.Power,
		Required:  required,
		Total:     total,
	}
}
