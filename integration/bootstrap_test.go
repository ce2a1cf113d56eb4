package integration

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-planet-node/chain"
	"github.com/rony4d/go-planet-node/genesis"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/network"
	"github.com/rony4d/go-planet-node/policy"
	"github.com/rony4d/go-planet-node/producer"
	"github.com/rony4d/go-planet-node/store"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

// countingRegistry counts store opens.
func countingRegistry(t *testing.T) (*Options, *int32) {
	var opened int32
	reg := newRegistry(t, func(*url.URL) (kvdb.Store, error) {
		atomic.AddInt32(&opened, 1)
		return memorydb.New(), nil
	})
	return &Options{Registry: reg}, &opened
}

func newRegistry(t *testing.T, open store.Provider) *store.Registry {
	r := store.NewRegistry()
	require.NoError(t, r.Register("counting", "counting store", open))
	return r
}

func singleCommit(t *testing.T, b *inter.Block, key *ecdsa.PrivateKey) *inter.BlockCommit {
	vote, err := inter.VoteMetadata{
		Height:    b.Index(),
		BlockHash: b.Hash(),
		Timestamp: b.Header.Timestamp,
		Validator: validatorpk.FromECDSA(&key.PublicKey),
		Flag:      inter.VotePreCommit,
	}.Sign(key)
	require.NoError(t, err)
	return &inter.BlockCommit{Height: b.Index(), BlockHash: b.Hash(), Votes: []inter.Vote{vote}}
}

func testConfiguration(genesisPath, storeURI string) Configuration {
	cfg := DefaultConfiguration()
	cfg.GenesisBlockPath = genesisPath
	cfg.StoreURI = storeURI
	return cfg
}

func TestConfigurationValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Configuration)
		field  string
	}{
		{"missing store", func(c *Configuration) { c.StoreURI = "" }, "StoreUri"},
		{"missing genesis", func(c *Configuration) { c.GenesisBlockPath = "" }, "GenesisBlockPath"},
		{"policy and tokens", func(c *Configuration) {
			c.Policy = policy.Default(nil)
			c.NativeTokens = []inter.Currency{policy.KeyCurrency}
		}, "BlockPolicy"},
		{"negative lifetime", func(c *Configuration) { c.TxLifetime = -time.Second }, "TxLifetime"},
		{"zero lifetime", func(c *Configuration) { c.TxLifetime = 0 }, "TxLifetime"},
		{"negative interval", func(c *Configuration) { c.ValidatorDriver.MinimumBlockInterval = -time.Second }, "MinimumBlockInterval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfiguration("genesis.rlp", "memory://")
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, configerr.ErrInvalidConfiguration) {
				t.Fatalf("expected a configuration error, got %v", err)
			}
			var (
				missing  *configerr.MissingFieldError
				conflict *configerr.ConflictError
				invalid  *configerr.InvalidFieldError
			)
			switch {
			case errors.As(err, &missing):
				require.Equal(t, tt.field, missing.Field)
			case errors.As(err, &conflict):
				require.Equal(t, tt.field, conflict.Field)
			case errors.As(err, &invalid):
				require.Equal(t, tt.field, invalid.Field)
			default:
				t.Fatalf("unexpected error type %T", err)
			}
		})
	}

	cfg := testConfiguration("genesis.rlp", "memory://")
	require.NoError(t, cfg.Validate())
	require.Equal(t, 180*time.Minute, cfg.TxLifetime)
	require.Equal(t, 10*time.Second, cfg.ValidatorDriver.MinimumBlockInterval)
}

func TestBootstrapConflictBeforeIO(t *testing.T) {
	require := require.New(t)
	srv, hits := genesisServer(t, fakeGenesisBlock(t, 1))
	opts, opened := countingRegistry(t)
	opts.Genesis = &GenesisResolver{Client: srv.Client()}

	cfg := testConfiguration(srv.URL+"/genesis", "counting://")
	cfg.Policy = policy.Default(nil)
	cfg.NativeTokens = []inter.Currency{policy.KeyCurrency}

	_, err := Bootstrap(context.Background(), cfg, *opts)
	var conflict *configerr.ConflictError
	require.True(errors.As(err, &conflict))
	require.Equal("NativeTokens", conflict.OtherField)
	require.Zero(atomic.LoadInt32(opened))
	require.Zero(atomic.LoadInt32(hits))
}

func TestBootstrapNetworkErrorsBeforeIO(t *testing.T) {
	path := writeGenesis(t, fakeGenesisBlock(t, 1))
	apv, err := network.SignAppProtocolVersion(genesis.FakeKey(100), 1, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(*network.Settings)
		check  func(error) bool
	}{
		{"no consensus host", func(s *network.Settings) {}, func(err error) bool {
			var e *configerr.MissingFieldError
			return errors.As(err, &e) && e.Field == "ConsensusHost"
		}},
		{"same ports", func(s *network.Settings) { s.ConsensusHost = "127.0.0.1" }, func(err error) bool {
			var e *configerr.ConflictError
			return errors.As(err, &e) && e.Field == "ConsensusPort" && e.OtherField == "Port"
		}},
		{"malformed version", func(s *network.Settings) {
			s.ConsensusHost = "127.0.0.1"
			s.ConsensusPort = 1
			s.AppProtocolVersion = "garbage"
		}, func(err error) bool {
			var e *network.MalformedProtocolVersionError
			return errors.As(err, &e)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, opened := countingRegistry(t)
			opts.Keys.Validator = genesis.FakeKey(1)

			settings := network.DefaultSettings()
			settings.AppProtocolVersion = apv.Token()
			tt.modify(&settings)
			cfg := testConfiguration(path, "counting://")
			cfg.Network = &settings

			_, err := Bootstrap(context.Background(), cfg, *opts)
			if !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			require.Zero(t, atomic.LoadInt32(opened))
		})
	}
}

func TestBootstrapUnsupportedStore(t *testing.T) {
	path := writeGenesis(t, fakeGenesisBlock(t, 1))
	opts, _ := countingRegistry(t)

	_, err := Bootstrap(context.Background(), testConfiguration(path, "rocksdb:///data"), *opts)
	require.Error(t, err)
	require.Contains(t, err.Error(), "counting")
}

func TestBootstrapCreatesThenResumes(t *testing.T) {
	require := require.New(t)
	g := fakeGenesisBlock(t, 100)
	path := writeGenesis(t, g)
	storeURI := "leveldb://" + filepath.ToSlash(filepath.Join(t.TempDir(), "chain"))
	cfg := testConfiguration(path, storeURI)

	proposer := genesis.FakeKey(1)
	node, err := Bootstrap(context.Background(), cfg, Options{Keys: Keys{Proposer: proposer}})
	require.NoError(err)
	require.Nil(node.Swarm)
	require.Equal(g.Hash(), node.Chain.Genesis().Hash())
	require.Same(proposer, node.ProposerKey)

	b, err := node.Chain.ProposeBlock(proposer, nil)
	require.NoError(err)
	require.NoError(node.Chain.Append(b, singleCommit(t, b, proposer)))
	id := node.Chain.ID()
	require.NoError(node.Close())

	node, err = Bootstrap(context.Background(), cfg, Options{})
	require.NoError(err)
	defer node.Close()
	require.Equal(id, node.Chain.ID())
	require.Equal(b.Hash(), node.Chain.Tip().Hash())
}

func TestBootstrapRejectsOtherGenesisOnResume(t *testing.T) {
	require := require.New(t)
	storeURI := "leveldb://" + filepath.ToSlash(filepath.Join(t.TempDir(), "chain"))

	node, err := Bootstrap(context.Background(), testConfiguration(writeGenesis(t, fakeGenesisBlock(t, 100)), storeURI), Options{})
	require.NoError(err)
	require.NoError(node.Close())

	_, err = Bootstrap(context.Background(), testConfiguration(writeGenesis(t, fakeGenesisBlock(t, 200)), storeURI), Options{})
	var mismatch *chain.GenesisMismatchError
	require.True(errors.As(err, &mismatch))

	// The store was released, so it can be opened again.
	node, err = Bootstrap(context.Background(), testConfiguration(writeGenesis(t, fakeGenesisBlock(t, 100)), storeURI), Options{})
	require.NoError(err)
	require.NoError(node.Close())
}

func TestBootstrapMemoryStoreIsAlwaysFresh(t *testing.T) {
	path := writeGenesis(t, fakeGenesisBlock(t, 100))
	cfg := testConfiguration(path, "memory://")

	a, err := Bootstrap(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()
	b, err := Bootstrap(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer b.Close()
	require.NotEqual(t, a.Chain.ID(), b.Chain.ID())
}

func TestBootstrapAssemblesNetwork(t *testing.T) {
	if testing.Short() {
		t.Skip("opens local libp2p hosts")
	}
	require := require.New(t)
	apv, err := network.SignAppProtocolVersion(genesis.FakeKey(100), 1, nil)
	require.NoError(err)

	settings := network.DefaultSettings()
	settings.Host = "127.0.0.1"
	settings.AppProtocolVersion = apv.Token()

	cfg := testConfiguration(writeGenesis(t, fakeGenesisBlock(t, 100)), "memory://")
	cfg.Network = &settings

	node, err := Bootstrap(context.Background(), cfg, Options{Keys: Keys{Node: genesis.FakeKey(10)}})
	require.NoError(err)
	defer node.Close()
	require.NotNil(node.Swarm)
	require.Equal(network.Seed, node.BootstrapRole)
	require.Empty(node.Swarm.ConsensusID())
}

func TestBootstrapRejectsIneligibleValidatorBeforeNetwork(t *testing.T) {
	require := require.New(t)
	g, err := genesis.FakeGenesis(3, big.NewInt(100)).Build(genesis.FakeKey(1))
	require.NoError(err)
	apv, err := network.SignAppProtocolVersion(genesis.FakeKey(100), 1, nil)
	require.NoError(err)

	settings := network.DefaultSettings()
	settings.Host = "127.0.0.1"
	settings.ConsensusHost = "127.0.0.1"
	settings.ConsensusPort = 1
	settings.AppProtocolVersion = apv.Token()
	cfg := testConfiguration(writeGenesis(t, g), "memory://")
	cfg.Network = &settings

	node, err := Bootstrap(context.Background(), cfg, Options{Keys: Keys{Validator: genesis.FakeKey(1)}})
	var inel *producer.IneligibleValidatorError
	require.True(errors.As(err, &inel), "got %v", err)
	require.Equal(uint64(1), inel.Current)
	require.Equal(uint64(3), inel.Required)
	require.Nil(node)

	// A key holding the whole power passes the same check.
	node, err = Bootstrap(context.Background(), testConfiguration(writeGenesis(t, fakeGenesisBlock(t, 100)), "memory://"),
		Options{Keys: Keys{Validator: genesis.FakeKey(1)}})
	require.NoError(err)
	require.Nil(node.Swarm)
	require.NoError(node.Close())
}
