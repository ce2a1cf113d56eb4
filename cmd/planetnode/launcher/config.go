package launcher

import (
	"crypto/ecdsa"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"
	"gopkg.in/yaml.v2"

	"github.com/rony4d/go-planet-node/flags"
	"github.com/rony4d/go-planet-node/integration"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/network"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

const (
	// ConfigFileEnv names the YAML file read when --config is not given.
	ConfigFileEnv = "PN_CONFIG_FILE"

	envPrefix = "PN_"
)

// Config is the launcher's view of the configuration, as written in the
// YAML file.
type Config struct {
	GenesisBlockPath string                `yaml:"genesisBlockPath"`
	StoreURI         string                `yaml:"storeUri"`
	TxLifetimeMins   int                   `yaml:"txLifetimeMins"`
	NativeTokens     []string              `yaml:"nativeTokens"`
	ValidatorDriver  ValidatorDriverConfig `yaml:"validatorDriver"`

	// Network is nil unless a network block, a PN_ network variable or a
	// network flag is present.
	Network *network.Settings `yaml:"network"`

	Keys    KeysConfig    `yaml:"keys"`
	Log     LoggingConfig `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ValidatorDriverConfig struct {
	MinimumBlockIntervalSecs int `yaml:"minimumBlockIntervalSecs"`
}

// KeysConfig holds hex private keys, inline or in files.
type KeysConfig struct {
	Node          string `yaml:"node"`
	NodeFile      string `yaml:"nodeFile"`
	Miner         string `yaml:"miner"`
	MinerFile     string `yaml:"minerFile"`
	Validator     string `yaml:"validator"`
	ValidatorFile string `yaml:"validatorFile"`
}

type LoggingConfig struct {
	Verbosity int    `yaml:"verbosity"`
	Format    string `yaml:"format"`
	Color     bool   `yaml:"color"`
	Sentry    string `yaml:"sentry"`
}

type MetricsConfig struct {
	Enable   bool   `yaml:"enable"`
	HTTPAddr string `yaml:"addr"`
	HTTPPort int    `yaml:"port"`
}

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		TxLifetimeMins: d.Stage.TxLifetimeMins,
		ValidatorDriver: ValidatorDriverConfig{
			MinimumBlockIntervalSecs: d.Validator.MinimumBlockIntervalSecs,
		},
		Log: LoggingConfig{
			Verbosity: d.Logging.Verbosity,
			Format:    d.Logging.Format,
			Color:     d.Logging.Color,
		},
		Metrics: MetricsConfig{
			Enable:   d.Metrics.Enable,
			HTTPAddr: d.Metrics.HTTPAddr,
			HTTPPort: d.Metrics.HTTPPort,
		},
	}
}

func defaultNetwork() *network.Settings {
	d := DefaultConfig().Network
	s := network.DefaultSettings()
	s.MinimumBroadcastTarget = d.MinimumBroadcastTarget
	s.BucketSize = d.BucketSize
	return &s
}

func (c *Config) network() *network.Settings {
	if c.Network == nil {
		c.Network = defaultNetwork()
	}
	return c.Network
}

// MakeAllConfigs merges the defaults, the YAML file, the PN_ environment
// and the command line flags, in that order.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	return makeAllConfigs(ctx, os.LookupEnv)
}

func makeAllConfigs(ctx *cli.Context, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaultConfig()

	file := ctx.GlobalString(flags.ConfigFlag)
	if file == "" {
		file, _ = lookup(ConfigFileEnv)
	}
	if file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "load config file %s", file)
		}
	}
	if err := applyEnvOverrides(lookup, &cfg); err != nil {
		return Config{}, err
	}
	applyCLIOverrides(ctx, &cfg)
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	var peek struct {
		Network interface{} `yaml:"network"`
	}
	if err := yaml.Unmarshal(raw, &peek); err != nil {
		return err
	}
	if peek.Network != nil {
		cfg.network()
	}
	return yaml.UnmarshalStrict(raw, cfg)
}

type envOverride struct {
	name  string
	apply func(cfg *Config, value string) error
}

func envInt(field string, set func(*Config, int)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return configerr.Invalid(field, v, err)
		}
		set(cfg, n)
		return nil
	}
}

func envPort(field string, set func(*Config, uint16)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 16)
		if err != nil {
			return configerr.Invalid(field, v, err)
		}
		set(cfg, uint16(n))
		return nil
	}
}

// envOverrides are read in this order. Lists are whitespace separated.
var envOverrides = []envOverride{
	{"GENESIS_BLOCK_PATH", func(c *Config, v string) error { c.GenesisBlockPath = v; return nil }},
	{"STORE_URI", func(c *Config, v string) error { c.StoreURI = v; return nil }},
	{"TX_LIFETIME_MINS", envInt("TxLifetimeMins", func(c *Config, n int) { c.TxLifetimeMins = n })},
	{"NATIVE_TOKENS", func(c *Config, v string) error { c.NativeTokens = strings.Fields(v); return nil }},
	{"MINIMUM_BLOCK_INTERVAL_SECS", envInt("MinimumBlockIntervalSecs", func(c *Config, n int) {
		c.ValidatorDriver.MinimumBlockIntervalSecs = n
	})},
	{"HOST", func(c *Config, v string) error { c.network().Host = v; return nil }},
	{"PORT", envPort("Port", func(c *Config, p uint16) { c.network().Port = p })},
	{"CONSENSUS_HOST", func(c *Config, v string) error { c.network().ConsensusHost = v; return nil }},
	{"CONSENSUS_PORT", envPort("ConsensusPort", func(c *Config, p uint16) { c.network().ConsensusPort = p })},
	{"APP_PROTOCOL_VERSION", func(c *Config, v string) error { c.network().AppProtocolVersion = v; return nil }},
	{"TRUSTED_APP_PROTOCOL_VERSION_SIGNERS", func(c *Config, v string) error {
		c.network().TrustedAppProtocolVersionSigners = strings.Fields(v)
		return nil
	}},
	{"ICE_SERVERS", func(c *Config, v string) error { c.network().IceServers = strings.Fields(v); return nil }},
	{"PEERS", func(c *Config, v string) error { c.network().Peers = strings.Fields(v); return nil }},
	{"STATIC_PEERS", func(c *Config, v string) error { c.network().StaticPeers = strings.Fields(v); return nil }},
	{"MINIMUM_BROADCAST_TARGET", envInt("MinimumBroadcastTarget", func(c *Config, n int) { c.network().MinimumBroadcastTarget = n })},
	{"BUCKET_SIZE", envInt("BucketSize", func(c *Config, n int) { c.network().BucketSize = n })},
	{"NODE_KEY", func(c *Config, v string) error { c.Keys.Node = v; return nil }},
	{"MINER_KEY", func(c *Config, v string) error { c.Keys.Miner = v; return nil }},
	{"VALIDATOR_KEY", func(c *Config, v string) error { c.Keys.Validator = v; return nil }},
	{"LOG_VERBOSITY", envInt("LogVerbosity", func(c *Config, n int) { c.Log.Verbosity = n })},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"LOG_SENTRY", func(c *Config, v string) error { c.Log.Sentry = v; return nil }},
}

func applyEnvOverrides(lookup func(string) (string, bool), cfg *Config) error {
	for _, o := range envOverrides {
		v, ok := lookup(envPrefix + o.name)
		if !ok {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return errors.Wrapf(err, "%s%s", envPrefix, o.name)
		}
	}
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet(flags.GenesisFlag) {
		cfg.GenesisBlockPath = ctx.GlobalString(flags.GenesisFlag)
	}
	if ctx.GlobalIsSet(flags.StoreFlag) {
		cfg.StoreURI = ctx.GlobalString(flags.StoreFlag)
	}
	if ctx.GlobalIsSet(flags.TxLifetimeFlag) {
		cfg.TxLifetimeMins = ctx.GlobalInt(flags.TxLifetimeFlag)
	}
	if ctx.GlobalIsSet(flags.NativeTokenFlag) {
		cfg.NativeTokens = ctx.GlobalStringSlice(flags.NativeTokenFlag)
	}
	if ctx.GlobalIsSet(flags.ValidatorIntervalFlag) {
		cfg.ValidatorDriver.MinimumBlockIntervalSecs = ctx.GlobalInt(flags.ValidatorIntervalFlag)
	}

	if ctx.GlobalIsSet(flags.NodeKeyFlag) {
		cfg.Keys.Node = ctx.GlobalString(flags.NodeKeyFlag)
	}
	if ctx.GlobalIsSet(flags.NodeKeyFileFlag) {
		cfg.Keys.NodeFile = ctx.GlobalString(flags.NodeKeyFileFlag)
	}
	if ctx.GlobalIsSet(flags.MinerKeyFlag) {
		cfg.Keys.Miner = ctx.GlobalString(flags.MinerKeyFlag)
	}
	if ctx.GlobalIsSet(flags.MinerKeyFileFlag) {
		cfg.Keys.MinerFile = ctx.GlobalString(flags.MinerKeyFileFlag)
	}
	if ctx.GlobalIsSet(flags.ValidatorKeyFlag) {
		cfg.Keys.Validator = ctx.GlobalString(flags.ValidatorKeyFlag)
	}
	if ctx.GlobalIsSet(flags.ValidatorKeyFileFlag) {
		cfg.Keys.ValidatorFile = ctx.GlobalString(flags.ValidatorKeyFileFlag)
	}

	for _, name := range flags.NetworkFlagNames() {
		if ctx.GlobalIsSet(name) {
			cfg.network()
			break
		}
	}
	if cfg.Network != nil {
		s := cfg.Network
		if ctx.GlobalIsSet(flags.HostFlag) {
			s.Host = ctx.GlobalString(flags.HostFlag)
		}
		if ctx.GlobalIsSet(flags.PortFlag) {
			s.Port = uint16(ctx.GlobalInt(flags.PortFlag))
		}
		if ctx.GlobalIsSet(flags.ConsensusHostFlag) {
			s.ConsensusHost = ctx.GlobalString(flags.ConsensusHostFlag)
		}
		if ctx.GlobalIsSet(flags.ConsensusPortFlag) {
			s.ConsensusPort = uint16(ctx.GlobalInt(flags.ConsensusPortFlag))
		}
		if ctx.GlobalIsSet(flags.APVFlag) {
			s.AppProtocolVersion = ctx.GlobalString(flags.APVFlag)
		}
		if ctx.GlobalIsSet(flags.TrustedSignersFlag) {
			s.TrustedAppProtocolVersionSigners = ctx.GlobalStringSlice(flags.TrustedSignersFlag)
		}
		if ctx.GlobalIsSet(flags.IceServersFlag) {
			s.IceServers = ctx.GlobalStringSlice(flags.IceServersFlag)
		}
		if ctx.GlobalIsSet(flags.PeersFlag) {
			s.Peers = ctx.GlobalStringSlice(flags.PeersFlag)
		}
		if ctx.GlobalIsSet(flags.StaticPeersFlag) {
			s.StaticPeers = ctx.GlobalStringSlice(flags.StaticPeersFlag)
		}
		if ctx.GlobalIsSet(flags.BroadcastTargetFlag) {
			s.MinimumBroadcastTarget = ctx.GlobalInt(flags.BroadcastTargetFlag)
		}
		if ctx.GlobalIsSet(flags.BucketSizeFlag) {
			s.BucketSize = ctx.GlobalInt(flags.BucketSizeFlag)
		}
	}

	if ctx.GlobalIsSet(flags.LogFormatFlag) {
		cfg.Log.Format = ctx.GlobalString(flags.LogFormatFlag)
	}
	if ctx.GlobalIsSet(flags.LogVerbosityFlag) {
		cfg.Log.Verbosity = ctx.GlobalInt(flags.LogVerbosityFlag)
	}
	if ctx.GlobalIsSet(flags.LogColorFlag) {
		cfg.Log.Color = ctx.GlobalBool(flags.LogColorFlag)
	}
	if ctx.GlobalIsSet(flags.LogSentryFlag) {
		cfg.Log.Sentry = ctx.GlobalString(flags.LogSentryFlag)
	}
	if ctx.GlobalIsSet(flags.MetricsFlag) {
		cfg.Metrics.Enable = ctx.GlobalBool(flags.MetricsFlag)
	}
	if ctx.GlobalIsSet(flags.MetricsAddrFlag) {
		cfg.Metrics.HTTPAddr = ctx.GlobalString(flags.MetricsAddrFlag)
	}
	if ctx.GlobalIsSet(flags.MetricsPortFlag) {
		cfg.Metrics.HTTPPort = ctx.GlobalInt(flags.MetricsPortFlag)
	}
}

// Integration converts the launcher configuration into the bootstrap
// configuration and keys.
func (c *Config) Integration() (integration.Configuration, integration.Keys, error) {
	out := integration.DefaultConfiguration()
	out.GenesisBlockPath = c.GenesisBlockPath
	out.StoreURI = c.StoreURI
	out.Network = c.Network
	out.TxLifetime = time.Duration(c.TxLifetimeMins) * time.Minute
	out.ValidatorDriver.MinimumBlockInterval = time.Duration(c.ValidatorDriver.MinimumBlockIntervalSecs) * time.Second

	for _, s := range c.NativeTokens {
		token, err := ParseNativeToken(s)
		if err != nil {
			return integration.Configuration{}, integration.Keys{}, configerr.Invalid("NativeTokens", s, err)
		}
		out.NativeTokens = append(out.NativeTokens, token)
	}

	var (
		keys integration.Keys
		err  error
	)
	if keys.Node, err = loadKey("NodeKey", c.Keys.Node, c.Keys.NodeFile); err != nil {
		return integration.Configuration{}, integration.Keys{}, err
	}
	if keys.Proposer, err = loadKey("MinerKey", c.Keys.Miner, c.Keys.MinerFile); err != nil {
		return integration.Configuration{}, integration.Keys{}, err
	}
	if keys.Validator, err = loadKey("ValidatorKey", c.Keys.Validator, c.Keys.ValidatorFile); err != nil {
		return integration.Configuration{}, integration.Keys{}, err
	}
	return out, keys, nil
}

// ParseNativeToken reads TICKER:DECIMALS[:MINTER...].
func ParseNativeToken(s string) (inter.Currency, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || parts[0] == "" {
		return inter.Currency{}, errors.New("want TICKER:DECIMALS[:MINTER...]")
	}
	decimals, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return inter.Currency{}, errors.Wrap(err, "decimals")
	}
	c := inter.Currency{Ticker: parts[0], DecimalPlaces: uint8(decimals)}
	for _, m := range parts[2:] {
		if !common.IsHexAddress(m) {
			return inter.Currency{}, errors.Errorf("minter %q is not an address", m)
		}
		c.Minters = append(c.Minters, common.HexToAddress(m))
	}
	return c, nil
}

// loadKey reads a hex private key given inline or in a file. Both at once
// is a conflict, neither gives nil.
func loadKey(field, hex, file string) (*ecdsa.PrivateKey, error) {
	switch {
	case hex != "" && file != "":
		return nil, configerr.Conflict(field, field+"File", "give the key inline or in a file, not both")
	case hex != "":
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hex), "0x"))
		if err != nil {
			return nil, configerr.Invalid(field, "(hidden)", err)
		}
		return key, nil
	case file != "":
		key, err := crypto.LoadECDSA(file)
		if err != nil {
			return nil, configerr.Invalid(field+"File", file, err)
		}
		return key, nil
	default:
		return nil, nil
	}
}
