package producer

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

// Chain is what the loops need from the ledger. *chain.BlockChain
// implements it.
type Chain interface {
	Tip() *inter.Block
	GetBlockCommit(hash.Hash) (*inter.BlockCommit, error)
	GetValidatorSet() (*inter.ValidatorSet, error)
	ProposeBlock(key *ecdsa.PrivateKey, lastCommit *inter.BlockCommit) (*inter.Block, error)
	Append(b *inter.Block, commit *inter.BlockCommit) error
}

// Options are shared by both loops. All fields may be left zero.
type Options struct {
	Clock   clock.Clock
	Metrics *Metrics
	Logger  logrus.FieldLogger
}

func (o *Options) defaults() error {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return err
		}
		o.Metrics = m
	}
	return nil
}

// BuildCommit signs a round 0 precommit for b at now and wraps it in a
// commit holding that single vote.
func BuildCommit(b *inter.Block, key *ecdsa.PrivateKey, now time.Time) (*inter.BlockCommit, error) {
	vote, err := inter.VoteMetadata{
		Height:    b.Index(),
		Round:     0,
		BlockHash: b.Hash(),
		Timestamp: inter.TimestampOf(now),
		Validator: validatorpk.FromECDSA(&key.PublicKey),
		Flag:      inter.VotePreCommit,
	}.Sign(key)
	if err != nil {
		return nil, err
	}
	return &inter.BlockCommit{
		Height:    b.Index(),
		Round:     0,
		BlockHash: b.Hash(),
		Votes:     []inter.Vote{vote},
	}, nil
}

// producer is the step both loops share.
type producer struct {
	chain Chain
	key   *ecdsa.PrivateKey
	opts  Options
	log   logrus.FieldLogger
}

func (p *producer) propose() (*inter.Block, error) {
	last, err := p.chain.GetBlockCommit(p.chain.Tip().Hash())
	if err != nil {
		return nil, errors.Wrap(err, "last commit")
	}
	b, err := p.chain.ProposeBlock(p.key, last)
	if err != nil {
		return nil, errors.Wrap(err, "propose block")
	}
	p.opts.Metrics.proposed.Inc()
	return b, nil
}

// appendBlock never retries: a rejected block means this node's view of
// the chain is no longer the chain's.
func (p *producer) appendBlock(b *inter.Block, commit *inter.BlockCommit) error {
	start := time.Now()
	err := p.chain.Append(b, commit)
	p.opts.Metrics.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		p.opts.Metrics.failures.Inc()
		return errors.Wrapf(err, "append block #%d", b.Index())
	}
	p.opts.Metrics.appended.Inc()
	p.opts.Metrics.tip.Set(float64(b.Index()))
	p.log.WithFields(logrus.Fields{
		"index": b.Index(),
		"hash":  b.Hash().String(),
		"txs":   len(b.Transactions),
	}).Info("Block appended")
	return nil
}

// Miner proposes and appends blocks back to back.
type Miner struct {
	producer
}

// NewMiner creates a miner signing with key.
func NewMiner(c Chain, key *ecdsa.PrivateKey, opts Options) (*Miner, error) {
	if key == nil {
		return nil, errors.New("miner needs a proposer key")
	}
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &Miner{producer{
		chain: c,
		key:   key,
		opts:  opts,
		log:   opts.Logger.WithField("module", "miner"),
	}}, nil
}

// Run mines until ctx is done or the chain rejects a block. It returns nil
// on cancellation.
func (m *Miner) Run(ctx context.Context) error {
	m.log.Info("Miner started")
	for ctx.Err() == nil {
		b, err := m.propose()
		if err != nil {
			return err
		}
		commit, err := BuildCommit(b, m.key, m.opts.Clock.Now())
		if err != nil {
			return err
		}
		if err := m.appendBlock(b, commit); err != nil {
			return err
		}
	}
	m.log.Info("Miner stopped")
	return nil
}
