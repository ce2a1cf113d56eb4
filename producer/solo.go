package producer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

// State is the solo validator's position in its cycle.
type State int32

const (
	Idle State = iota
	WaitingForSlot
	CheckingEligibility
	Proposing
	Committing
	Appended
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForSlot:
		return "waiting-for-slot"
	case CheckingEligibility:
		return "checking-eligibility"
	case Proposing:
		return "proposing"
	case Committing:
		return "committing"
	case Appended:
		return "appended"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SoloValidator proposes, commits and appends blocks on its own, at most
// one per MinimumBlockInterval. Its key must hold more than two thirds of
// the validator power.
type SoloValidator struct {
	producer
	pub      validatorpk.PubKey
	interval time.Duration

	mu     sync.Mutex
	state  State
	reason error
}

// NewSoloValidator checks that key may validate alone and returns the
// validator. Ineligibility is an IneligibleValidatorError.
func NewSoloValidator(c Chain, key *ecdsa.PrivateKey, minimumBlockInterval time.Duration, opts Options) (*SoloValidator, error) {
	if key == nil {
		return nil, errors.New("solo validator needs a validator key")
	}
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	v := &SoloValidator{
		producer: producer{
			chain: c,
			key:   key,
			opts:  opts,
			log:   opts.Logger.WithField("module", "solo-validator"),
		},
		pub:      validatorpk.FromECDSA(&key.PublicKey),
		interval: minimumBlockInterval,
	}
	if err := v.checkValidator(); err != nil {
		return nil, err
	}
	return v, nil
}

// State is the current state.
func (v *SoloValidator) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err is why the validator terminated, nil while running or after a
// cancellation.
func (v *SoloValidator) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reason
}

func (v *SoloValidator) setState(s State) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

func (v *SoloValidator) terminate(err error) error {
	v.mu.Lock()
	v.state = Terminated
	v.reason = err
	v.mu.Unlock()
	if err != nil {
		v.log.WithError(err).Error("Solo validator terminated")
	} else {
		v.log.Info("Solo validator stopped")
	}
	return err
}

func (v *SoloValidator) checkValidator() error {
	set, err := v.chain.GetValidatorSet()
	if err != nil {
		return err
	}
	return CheckEligibility(set, v.pub)
}

// Run produces blocks until ctx is done, the key becomes ineligible or the
// chain rejects a block. The first block is proposed right away. A
// cancellation while waiting for the next slot returns nil without
// producing anything; an append in progress is finished first.
func (v *SoloValidator) Run(ctx context.Context) error {
	clk := v.opts.Clock
	next := time.Unix(0, 0)

	v.log.WithFields(logrus.Fields{
		"validator": v.pub.String(),
		"interval":  v.interval,
	}).Info("Solo validator started")
	for {
		if ctx.Err() != nil {
			return v.terminate(nil)
		}

		if wait := next.Sub(clk.Now()); wait > 0 {
			timer := clk.Timer(wait)
			v.setState(WaitingForSlot)
			select {
			case <-ctx.Done():
				timer.Stop()
				return v.terminate(nil)
			case <-timer.C:
			}
		} else {
			v.setState(WaitingForSlot)
		}

		v.setState(CheckingEligibility)
		if err := v.checkValidator(); err != nil {
			return v.terminate(err)
		}

		v.setState(Proposing)
		b, err := v.propose()
		if err != nil {
			return v.terminate(err)
		}

		v.setState(Committing)
		commit, err := BuildCommit(b, v.key, clk.Now())
		if err != nil {
			return v.terminate(err)
		}
		if err := v.appendBlock(b, commit); err != nil {
			return v.terminate(err)
		}
		v.setState(Appended)

		next = clk.Now().Add(v.interval)
		v.setState(Idle)
	}
}
