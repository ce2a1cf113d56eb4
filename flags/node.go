package flags

import (
	"gopkg.in/urfave/cli.v1"
)

const (
	GenesisFlag      = "genesis"
	StoreFlag        = "store"
	NodeKeyFlag      = "node.key"
	NodeKeyFileFlag  = "node.keyfile"
	MinerKeyFlag     = "miner.key"
	MinerKeyFileFlag = "miner.keyfile"
	NativeTokenFlag  = "nativetoken"
)

// NodeFlags hold the chain location and the node's keys.
func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  GenesisFlag,
			Usage: "Genesis block location (path, file://, http:// or https://)",
		},
		cli.StringFlag{
			Name:  StoreFlag,
			Usage: "Store URI (memory:// or leveldb:///path?preset=default)",
		},
		cli.StringFlag{
			Name:  NodeKeyFlag,
			Usage: "Hex private key identifying the data transport (random when unset)",
		},
		cli.StringFlag{
			Name:  NodeKeyFileFlag,
			Usage: "File holding the hex node key",
		},
		cli.StringFlag{
			Name:  MinerKeyFlag,
			Usage: "Hex private key the miner signs blocks with",
		},
		cli.StringFlag{
			Name:  MinerKeyFileFlag,
			Usage: "File holding the hex miner key",
		},
		cli.StringSliceFlag{
			Name:  NativeTokenFlag,
			Usage: "Native token as TICKER:DECIMALS[:MINTER...], repeatable",
		},
	}
}
