// Package integration turns a node configuration into a running chain: it
// resolves the store and the genesis block, picks the block and staging
// policies, attaches to or creates the canonical chain and, when network
// settings are present, assembles the swarm.
package integration

import (
	"time"

	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/network"
	"github.com/rony4d/go-planet-node/policy"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

const (
	// DefaultTxLifetime is how long a staged transaction stays pending.
	DefaultTxLifetime = 180 * time.Minute

	// DefaultMinimumBlockInterval paces the solo validator.
	DefaultMinimumBlockInterval = 10 * time.Second
)

// ValidatorDriverSettings tune the solo validator.
type ValidatorDriverSettings struct {
	MinimumBlockInterval time.Duration
}

// Configuration is everything Bootstrap needs. It is built once and then
// only read.
type Configuration struct {
	// GenesisBlockPath is a file path or a file://, http:// or https:// URI.
	GenesisBlockPath string

	// StoreURI selects a registered store provider by scheme.
	StoreURI string

	// Network is nil for an embedded node without peers.
	Network *network.Settings

	TxLifetime      time.Duration
	ValidatorDriver ValidatorDriverSettings

	// NativeTokens parameterize the default block policy. They cannot be
	// combined with Policy.
	NativeTokens []inter.Currency
	Policy       policy.BlockPolicy
}

// DefaultConfiguration has the default lifetimes and no locations.
func DefaultConfiguration() Configuration {
	return Configuration{
		TxLifetime: DefaultTxLifetime,
		ValidatorDriver: ValidatorDriverSettings{
			MinimumBlockInterval: DefaultMinimumBlockInterval,
		},
	}
}

// Validate checks the configuration as a whole. Network settings are
// checked by network.Assemble, which also needs to know the node's keys.
func (c *Configuration) Validate() error {
	if c.StoreURI == "" {
		return configerr.Missing("StoreUri")
	}
	if c.GenesisBlockPath == "" {
		return configerr.Missing("GenesisBlockPath")
	}
	if c.Policy != nil && len(c.NativeTokens) > 0 {
		return configerr.Conflict("BlockPolicy", "NativeTokens",
			"a block policy and native tokens cannot be set together, the default policy takes the native tokens")
	}
	if c.TxLifetime <= 0 {
		return configerr.Invalid("TxLifetime", c.TxLifetime.String(), errors.New("must be positive"))
	}
	if c.ValidatorDriver.MinimumBlockInterval < 0 {
		return configerr.Invalid("MinimumBlockInterval", c.ValidatorDriver.MinimumBlockInterval.String(), errors.New("must not be negative"))
	}
	return nil
}

// BlockPolicy is the configured policy, or the default one over the
// native tokens.
func (c *Configuration) BlockPolicy() policy.BlockPolicy {
	if c.Policy != nil {
		return c.Policy
	}
	return policy.Default(c.NativeTokens)
}
