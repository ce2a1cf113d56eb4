package integration

import (
	"context"
	"crypto/ecdsa"
	"math/rand"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-planet-node/chain"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/network"
	"github.com/rony4d/go-planet-node/producer"
	"github.com/rony4d/go-planet-node/stage"
	"github.com/rony4d/go-planet-node/store"
)

// Keys are the node's private keys. Any of them may be nil.
type Keys struct {
	// Node identifies the data transport.
	Node *ecdsa.PrivateKey

	// Proposer signs blocks produced by the miner.
	Proposer *ecdsa.PrivateKey

	// Validator signs solo-validated blocks and the consensus transport.
	Validator *ecdsa.PrivateKey
}

// Options are Bootstrap's collaborators. Zero values pick the defaults.
type Options struct {
	Keys Keys

	// Registry resolves the store URI, store.DefaultRegistry when nil.
	Registry *store.Registry

	// Genesis loads the genesis block, a plain GenesisResolver when nil.
	Genesis *GenesisResolver

	Clock  clock.Clock
	Logger logrus.FieldLogger

	DifferentVersionEncountered network.DifferentVersionFunc

	// Random orders the ICE servers.
	Random *rand.Rand
}

// InstantiatedNode holds what Bootstrap built. Swarm is nil for a node
// without network settings.
type InstantiatedNode struct {
	Store      *store.Store
	StateStore *store.StateStore
	Chain      *chain.BlockChain

	Swarm         *network.Swarm
	BootstrapRole network.BootstrapRole

	ProposerKey  *ecdsa.PrivateKey
	ValidatorKey *ecdsa.PrivateKey

	ValidatorDriver ValidatorDriverSettings
}

// Close stops the swarm and releases the store.
func (n *InstantiatedNode) Close() error {
	var err error
	if n.Swarm != nil {
		err = n.Swarm.Close()
	}
	if n.Store != nil {
		if serr := n.Store.Close(); err == nil {
			err = serr
		}
	}
	return err
}

// Bootstrap builds a node from cfg. Every configuration error, including
// those of the network settings, is reported before the store or the
// genesis block is touched.
//
// A store that already holds a canonical chain is resumed, and its genesis
// must be the configured one. Otherwise a new chain is created from the
// configured genesis.
func Bootstrap(ctx context.Context, cfg Configuration, opts Options) (*InstantiatedNode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Network != nil {
		if err := cfg.Network.Validate(opts.Keys.Validator != nil); err != nil {
			return nil, err
		}
	}
	if opts.Registry == nil {
		opts.Registry = store.DefaultRegistry
	}
	if opts.Genesis == nil {
		opts.Genesis = &GenesisResolver{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	log := opts.Logger.WithField("module", "bootstrap")

	st, state, hasChain, err := opts.Registry.Resolve(cfg.StoreURI)
	if err != nil {
		return nil, err
	}
	node := &InstantiatedNode{
		Store:           st,
		StateStore:      state,
		ProposerKey:     opts.Keys.Proposer,
		ValidatorKey:    opts.Keys.Validator,
		ValidatorDriver: cfg.ValidatorDriver,
	}
	fail := func(err error) (*InstantiatedNode, error) {
		if cerr := node.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to release the store")
		}
		return nil, err
	}

	genesis, err := opts.Genesis.Resolve(ctx, cfg.GenesisBlockPath)
	if err != nil {
		return fail(err)
	}

	chainOpts := chain.Options{
		Policy: cfg.BlockPolicy(),
		Stage:  stage.NewVolatileStagePolicy(cfg.TxLifetime, opts.Clock),
		Clock:  opts.Clock,
		Logger: opts.Logger,
	}
	if hasChain {
		node.Chain, err = chain.Open(st, genesis, chainOpts)
	} else {
		node.Chain, err = chain.Create(st, genesis, chainOpts)
	}
	if err != nil {
		return fail(err)
	}
	log.WithFields(logrus.Fields{
		"store":   cfg.StoreURI,
		"resumed": hasChain,
		"tip":     node.Chain.Tip().Index(),
	}).Info("Chain ready")

	if key := opts.Keys.Validator; key != nil {
		set, err := node.Chain.GetValidatorSet()
		if err != nil {
			return fail(err)
		}
		if err := producer.CheckEligibility(set, validatorpk.FromECDSA(&key.PublicKey)); err != nil {
			return fail(err)
		}
	}

	if cfg.Network == nil {
		log.Info("No network settings, running without peers")
		return node, nil
	}
	node.Swarm, node.BootstrapRole, err = network.Assemble(ctx, *cfg.Network, node.Chain, network.Keys{
		Node:      opts.Keys.Node,
		Validator: opts.Keys.Validator,
	}, network.Options{
		Random:                      opts.Random,
		DifferentVersionEncountered: opts.DifferentVersionEncountered,
		Logger:                      opts.Logger,
	})
	if err != nil {
		return fail(errors.Wrap(err, "assemble network"))
	}
	return node, nil
}
