package launcher

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-planet-node/flags"
	"github.com/rony4d/go-planet-node/genesis"
	"github.com/rony4d/go-planet-node/network"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

// runConfigFromArgs runs makeAllConfigs inside a synthetic app carrying
// every node flag. env replaces the process environment.
func runConfigFromArgs(t *testing.T, args []string, env map[string]string) (Config, error) {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true
	app.Flags = flags.AllFlags()

	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	var (
		got    Config
		cfgErr error
	)
	app.Action = func(c *cli.Context) error {
		got, cfgErr = makeAllConfigs(c, lookup)
		return nil
	}
	if err := app.Run(append([]string{"planetnode"}, args...)); err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
	return got, cfgErr
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planetnode.yaml")
	if err := ioutil.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMakeAllConfigs_defaults(t *testing.T) {
	cfg, err := runConfigFromArgs(t, nil, nil)
	require.NoError(t, err)

	if cfg.Network != nil {
		t.Fatalf("Network = %+v, want nil without network settings", cfg.Network)
	}
	if cfg.TxLifetimeMins != 180 {
		t.Fatalf("TxLifetimeMins = %d, want 180", cfg.TxLifetimeMins)
	}
	if cfg.ValidatorDriver.MinimumBlockIntervalSecs != 10 {
		t.Fatalf("MinimumBlockIntervalSecs = %d, want 10", cfg.ValidatorDriver.MinimumBlockIntervalSecs)
	}
	if cfg.Log.Verbosity != 4 || cfg.Log.Format != "text" {
		t.Fatalf("Log = %+v, want verbosity 4 and text format", cfg.Log)
	}
}

// TestMakeAllConfigs_flagOverrides checks that each declared flag lands in
// the matching Config field.
func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "genesis and store",
			args: []string{"--genesis", "https://example.com/genesis.rlp", "--store", "leveldb:///var/lib/planet"},
			want: func(t *testing.T, cfg Config) {
				if cfg.GenesisBlockPath != "https://example.com/genesis.rlp" {
					t.Fatalf("GenesisBlockPath = %q", cfg.GenesisBlockPath)
				}
				if cfg.StoreURI != "leveldb:///var/lib/planet" {
					t.Fatalf("StoreURI = %q", cfg.StoreURI)
				}
			},
		},
		{
			name: "stage and validator",
			args: []string{"--txpool.lifetime", "5", "--validator.interval", "3", "--validator.key", "abcd"},
			want: func(t *testing.T, cfg Config) {
				if cfg.TxLifetimeMins != 5 {
					t.Fatalf("TxLifetimeMins = %d, want 5", cfg.TxLifetimeMins)
				}
				if cfg.ValidatorDriver.MinimumBlockIntervalSecs != 3 {
					t.Fatalf("MinimumBlockIntervalSecs = %d, want 3", cfg.ValidatorDriver.MinimumBlockIntervalSecs)
				}
				if cfg.Keys.Validator != "abcd" {
					t.Fatalf("Keys.Validator = %q", cfg.Keys.Validator)
				}
			},
		},
		{
			name: "network flags enable networking",
			args: []string{"--host", "10.0.0.1", "--port", "31234", "--peers", "a,1.2.3.4,5", "--peers", "b,5.6.7.8,9"},
			want: func(t *testing.T, cfg Config) {
				if cfg.Network == nil {
					t.Fatal("Network is nil, want settings")
				}
				if cfg.Network.Host != "10.0.0.1" || cfg.Network.Port != 31234 {
					t.Fatalf("Host:Port = %s:%d", cfg.Network.Host, cfg.Network.Port)
				}
				if len(cfg.Network.Peers) != 2 || cfg.Network.Peers[1] != "b,5.6.7.8,9" {
					t.Fatalf("Peers = %#v, want two entries", cfg.Network.Peers)
				}
				// Untouched settings keep their defaults.
				if cfg.Network.BucketSize != network.DefaultBucketSize {
					t.Fatalf("BucketSize = %d, want %d", cfg.Network.BucketSize, network.DefaultBucketSize)
				}
			},
		},
		{
			name: "logging and metrics",
			args: []string{"--log.verbosity", "6", "--log.format", "json", "--metrics", "--metrics.port", "9100"},
			want: func(t *testing.T, cfg Config) {
				if cfg.Log.Verbosity != 6 || cfg.Log.Format != "json" {
					t.Fatalf("Log = %+v", cfg.Log)
				}
				if !cfg.Metrics.Enable || cfg.Metrics.HTTPPort != 9100 {
					t.Fatalf("Metrics = %+v", cfg.Metrics)
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := runConfigFromArgs(t, test.args, nil)
			if err != nil {
				t.Fatalf("makeAllConfigs: %v", err)
			}
			test.want(t, cfg)
		})
	}
}

func TestMakeAllConfigs_precedence(t *testing.T) {
	require := require.New(t)
	file := writeConfigFile(t, `
genesisBlockPath: /from/file.rlp
storeUri: memory://
txLifetimeMins: 30
network:
  host: 192.168.1.1
  port: 4000
  peers:
    - from-file
`)

	// File only.
	cfg, err := runConfigFromArgs(t, []string{"--config", file}, nil)
	require.NoError(err)
	require.Equal("/from/file.rlp", cfg.GenesisBlockPath)
	require.Equal(30, cfg.TxLifetimeMins)
	require.NotNil(cfg.Network)
	require.Equal(uint16(4000), cfg.Network.Port)
	require.Equal(network.DefaultBroadcastTarget, cfg.Network.MinimumBroadcastTarget)

	// The environment beats the file, flags beat both.
	env := map[string]string{
		"PN_GENESIS_BLOCK_PATH": "/from/env.rlp",
		"PN_TX_LIFETIME_MINS":   "60",
		"PN_PEERS":              "env-a env-b",
	}
	cfg, err = runConfigFromArgs(t, []string{"--config", file, "--txpool.lifetime", "90"}, env)
	require.NoError(err)
	require.Equal("/from/env.rlp", cfg.GenesisBlockPath)
	require.Equal(90, cfg.TxLifetimeMins)
	require.Equal([]string{"env-a", "env-b"}, cfg.Network.Peers)
	require.Equal("192.168.1.1", cfg.Network.Host)
}

func TestMakeAllConfigs_configFileFromEnv(t *testing.T) {
	file := writeConfigFile(t, "storeUri: memory://\n")
	cfg, err := runConfigFromArgs(t, nil, map[string]string{ConfigFileEnv: file})
	require.NoError(t, err)
	require.Equal(t, "memory://", cfg.StoreURI)
	require.Nil(t, cfg.Network)
}

func TestMakeAllConfigs_errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"unknown field", []string{"--config", writeConfigFile(t, "storUri: memory://\n")}, nil},
		{"missing file", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, nil},
		{"bad env int", nil, map[string]string{"PN_TX_LIFETIME_MINS": "soon"}},
		{"bad env port", nil, map[string]string{"PN_PORT": "70000"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := runConfigFromArgs(t, test.args, test.env); err == nil {
				t.Fatalf("makeAllConfigs(%v) succeeded, want error", test.args)
			}
		})
	}
}

func TestConfigIntegration(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	minerFile := filepath.Join(dir, "miner.key")
	require.NoError(crypto.SaveECDSA(minerFile, genesis.FakeKey(2)))
	minter := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	cfg := defaultConfig()
	cfg.GenesisBlockPath = "genesis.rlp"
	cfg.StoreURI = "memory://"
	cfg.TxLifetimeMins = 2
	cfg.ValidatorDriver.MinimumBlockIntervalSecs = 7
	cfg.NativeTokens = []string{"PNG:18", "GOLD:2:" + minter.Hex()}
	cfg.Keys.Validator = "0x" + common.Bytes2Hex(crypto.FromECDSA(genesis.FakeKey(1)))
	cfg.Keys.MinerFile = minerFile

	out, keys, err := cfg.Integration()
	require.NoError(err)
	require.Equal(2*time.Minute, out.TxLifetime)
	require.Equal(7*time.Second, out.ValidatorDriver.MinimumBlockInterval)
	require.Len(out.NativeTokens, 2)
	require.Equal(uint8(18), out.NativeTokens[0].DecimalPlaces)
	require.Equal([]common.Address{minter}, out.NativeTokens[1].Minters)
	require.Nil(keys.Node)
	require.Equal(genesis.FakeKey(1).D, keys.Validator.D)
	require.Equal(genesis.FakeKey(2).D, keys.Proposer.D)
	require.NoError(out.Validate())
}

func TestConfigIntegrationRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		setup func(cfg *Config)
	}{
		{"token without decimals", func(cfg *Config) { cfg.NativeTokens = []string{"PNG"} }},
		{"token with bad minter", func(cfg *Config) { cfg.NativeTokens = []string{"PNG:2:nobody"} }},
		{"malformed key", func(cfg *Config) { cfg.Keys.Node = "zz" }},
		{"key inline and in file", func(cfg *Config) {
			cfg.Keys.Miner = "01"
			cfg.Keys.MinerFile = "miner.key"
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := defaultConfig()
			test.setup(&cfg)
			_, _, err := cfg.Integration()
			if !errors.Is(err, configerr.ErrInvalidConfiguration) {
				t.Fatalf("Integration() error = %v, want invalid configuration", err)
			}
		})
	}
}
