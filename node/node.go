// Package node runs a bootstrapped node: the swarm service, the block
// production loop and the broadcast of appended blocks.
package node

import (
	"context"
	"crypto/ecdsa"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/go-planet-node/integration"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/network"
	"github.com/rony4d/go-planet-node/producer"
)

const broadcastQueue = 64

// Options are Run's collaborators. All fields may be left zero.
type Options struct {
	Clock   clock.Clock
	Metrics *producer.Metrics
	Logger  logrus.FieldLogger
}

// Run serves n until ctx is done or a service fails. A node with a
// validator key runs the solo validator, otherwise a node with a proposer
// key runs the miner. A networked node produces only after it has
// bootstrapped and preloaded. Blocks it appends and transactions it makes
// are gossiped.
//
// The validator key is checked again before the swarm starts. Run returns
// nil when ctx is cancelled.
func Run(ctx context.Context, n *integration.InstantiatedNode, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	log := opts.Logger.WithField("module", "node")
	loopOpts := producer.Options{Clock: opts.Clock, Metrics: opts.Metrics, Logger: opts.Logger}

	var loop interface{ Run(context.Context) error }
	switch {
	case n.ValidatorKey != nil:
		v, err := producer.NewSoloValidator(n.Chain, n.ValidatorKey, n.ValidatorDriver.MinimumBlockInterval, loopOpts)
		if err != nil {
			return err
		}
		loop = v
	case n.ProposerKey != nil:
		m, err := producer.NewMiner(n.Chain, n.ProposerKey, loopOpts)
		if err != nil {
			return err
		}
		loop = m
	default:
		log.Info("No proposer or validator key, not producing blocks")
	}

	local := make(map[common.Address]bool)
	for _, k := range []*ecdsa.PrivateKey{n.ProposerKey, n.ValidatorKey} {
		if k != nil {
			local[crypto.PubkeyToAddress(k.PublicKey)] = true
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	ready := make(chan struct{})

	if n.Swarm != nil {
		queue := make(chan *inter.Block, broadcastQueue)
		unsubscribe := n.Chain.Subscribe(func(b *inter.Block) {
			// Blocks from peers were gossiped already.
			if !local[b.Header.Miner] {
				return
			}
			select {
			case queue <- b:
			default:
				log.WithField("index", b.Index()).Warn("Broadcast queue full, block not broadcast")
			}
		})
		defer unsubscribe()

		txQueue := make(chan *inter.Transaction, broadcastQueue)
		unsubscribeTxs := n.Chain.SubscribeTransactions(func(tx *inter.Transaction) {
			select {
			case txQueue <- tx:
			default:
				log.WithField("tx", tx.ID().String()).Warn("Broadcast queue full, transaction not broadcast")
			}
		})
		defer unsubscribeTxs()

		g.Go(func() error {
			broadcast(gctx, n.Swarm, queue, txQueue, log)
			return nil
		})
		g.Go(func() error {
			return runSwarm(gctx, n.Swarm, n.BootstrapRole, ready, log)
		})
	} else {
		close(ready)
	}

	if loop != nil {
		g.Go(func() error {
			select {
			case <-ready:
			case <-gctx.Done():
				return nil
			}
			return loop.Run(gctx)
		})
	}

	if loop == nil && n.Swarm == nil {
		<-ctx.Done()
		return nil
	}
	return stopped(ctx, g.Wait())
}

// stopped drops err when it only reports that ctx was cancelled. Failures
// racing with the cancellation are still returned.
func stopped(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// runSwarm bootstraps a participant, preloads, marks the node ready and
// serves gossip until ctx is done.
func runSwarm(ctx context.Context, s *network.Swarm, role network.BootstrapRole, ready chan<- struct{}, log logrus.FieldLogger) error {
	if role == network.Participant {
		if err := s.Bootstrap(ctx); err != nil {
			return err
		}
	}
	if err := s.Preload(ctx); err != nil {
		return err
	}
	close(ready)
	log.WithField("role", role.String()).Info("Swarm ready")
	return s.Start(ctx)
}

// broadcast publishes locally appended blocks and locally made
// transactions. Failures are logged, they never reach the production loop.
func broadcast(ctx context.Context, s *network.Swarm, blocks <-chan *inter.Block, txs <-chan *inter.Transaction, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-blocks:
			if err := s.BroadcastBlock(ctx, b); err != nil {
				log.WithError(err).WithField("index", b.Index()).Warn("Block broadcast failed")
			}
		case tx := <-txs:
			if err := s.BroadcastTransaction(ctx, tx); err != nil {
				log.WithError(err).WithField("tx", tx.ID().String()).Warn("Transaction broadcast failed")
			}
		}
	}
}
