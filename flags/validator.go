package flags

import (
	"gopkg.in/urfave/cli.v1"
)

const (
	ValidatorKeyFlag      = "validator.key"
	ValidatorKeyFileFlag  = "validator.keyfile"
	ValidatorIntervalFlag = "validator.interval"
	TxLifetimeFlag        = "txpool.lifetime"
)

// ValidatorFlags configure the solo validator.
func ValidatorFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  ValidatorKeyFlag,
			Usage: "Hex private key of the solo validator",
		},
		cli.StringFlag{
			Name:  ValidatorKeyFileFlag,
			Usage: "File holding the hex validator key",
		},
		cli.IntFlag{
			Name:  ValidatorIntervalFlag,
			Usage: "Minimum seconds between blocks proposed by the solo validator",
			Value: 10,
		},
	}
}

// StageFlags tune the pending transaction stage.
func StageFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  TxLifetimeFlag,
			Usage: "Minutes a staged transaction stays pending",
			Value: 180,
		},
	}
}
