package producer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-planet-node/genesis"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

func pubOf(n int) validatorpk.PubKey {
	return validatorpk.FromECDSA(&genesis.FakeKey(n).PublicKey)
}

func TestRequiredPower(t *testing.T) {
	for total, want := range map[uint64]uint64{
		1:  1,
		2:  2,
		3:  3,
		4:  3,
		30: 21,
		31: 21,
		32: 22,
	} {
		if got := RequiredPower(total); got != want {
			t.Errorf("RequiredPower(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestCheckEligibility(t *testing.T) {
	tests := []struct {
		name     string
		powers   []uint64
		key      int
		eligible bool
	}{
		{"20 of 30", []uint64{20, 10}, 1, false},
		{"21 of 30", []uint64{21, 9}, 1, true},
		{"only validator", []uint64{1}, 1, true},
		{"absent", []uint64{29, 1}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			var vv []inter.Validator
			for i, p := range tt.powers {
				vv = append(vv, inter.Validator{PubKey: pubOf(i + 1), Power: p})
			}
			set, err := inter.NewValidatorSet(vv)
			require.NoError(err)

			err = CheckEligibility(set, pubOf(tt.key))
			if tt.eligible {
				require.NoError(err)
				return
			}
			var inel *IneligibleValidatorError
			require.True(errors.As(err, &inel))
			require.Equal(RequiredPower(set.TotalPower()), inel.Required)
			_, present := set.GetValidator(pubOf(tt.key))
			require.Equal(present, inel.Present)
		})
	}
}

func TestIneligibleValidatorErrorMessage(t *testing.T) {
	set, err := inter.NewValidatorSet([]inter.Validator{
		{PubKey: pubOf(1), Power: 20},
		{PubKey: pubOf(2), Power: 10},
	})
	require.NoError(t, err)

	msg := CheckEligibility(set, pubOf(1)).Error()
	require.Contains(t, msg, "current power 20")
	require.Contains(t, msg, "required power 21")

	msg = CheckEligibility(set, pubOf(3)).Error()
	require.Contains(t, msg, "not in the validator set")
}
