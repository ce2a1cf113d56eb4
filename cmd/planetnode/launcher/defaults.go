package launcher

import (
	"github.com/rony4d/go-planet-node/integration"
	"github.com/rony4d/go-planet-node/network"
)

// Defaults bundles the baseline values used before the config file, the
// environment and the flags override them.
type Defaults struct {
	Stage     StageDefaults
	Validator ValidatorDefaults
	Network   NetworkDefaults
	Metrics   MetricsDefaults
	Logging   LoggingDefaults
}

// StageDefaults tune the pending transaction stage.
type StageDefaults struct {
	TxLifetimeMins int // How long a staged transaction waits for a block before it is dropped.
}

// ValidatorDefaults configure the solo validator.
type ValidatorDefaults struct {
	MinimumBlockIntervalSecs int // Lower bound between two blocks proposed by this node.
}

// NetworkDefaults apply once networking is turned on.
type NetworkDefaults struct {
	MinimumBroadcastTarget int // Peers a block or transaction is pushed to at least.
	BucketSize             int // Kademlia k of the routing table.
}

type MetricsDefaults struct {
	Enable   bool   // Serve Prometheus metrics.
	HTTPAddr string // Interface the metrics server binds to.
	HTTPPort int    // Port the metrics server listens on.
}

// LoggingDefaults control log verbosity and format.
type LoggingDefaults struct {
	Verbosity int    // 0=panic, 1=fatal, 2=error, 3=warn, 4=info, 5=debug, 6=trace.
	Format    string // text or json.
	Color     bool   // ANSI colors, best disabled when piping to files.
}

// DefaultConfig returns the launcher defaults.
func DefaultConfig() Defaults {
	return Defaults{
		Stage: StageDefaults{
			TxLifetimeMins: int(integration.DefaultTxLifetime.Minutes()),
		},
		Validator: ValidatorDefaults{
			MinimumBlockIntervalSecs: int(integration.DefaultMinimumBlockInterval.Seconds()),
		},
		Network: NetworkDefaults{
			MinimumBroadcastTarget: network.DefaultBroadcastTarget,
			BucketSize:             network.DefaultBucketSize,
		},
		Metrics: MetricsDefaults{
			Enable:   false,
			HTTPAddr: "127.0.0.1",
			HTTPPort: 6060,
		},
		Logging: LoggingDefaults{
			Verbosity: 4,
			Format:    "text",
			Color:     false,
		},
	}
}
