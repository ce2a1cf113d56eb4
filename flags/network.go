package flags

import (
	"gopkg.in/urfave/cli.v1"
)

const (
	HostFlag            = "host"
	PortFlag            = "port"
	ConsensusHostFlag   = "consensus.host"
	ConsensusPortFlag   = "consensus.port"
	APVFlag             = "apv"
	TrustedSignersFlag  = "apv.signers"
	IceServersFlag      = "ice"
	PeersFlag           = "peers"
	StaticPeersFlag     = "staticpeers"
	BroadcastTargetFlag = "broadcast.target"
	BucketSizeFlag      = "bucketsize"
)

// NetworkFlags covers P2P and networking configuration. Setting any of them
// turns networking on.
func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  HostFlag,
			Usage: "Data transport listening interface",
		},
		cli.IntFlag{
			Name:  PortFlag,
			Usage: "Data transport listening port (0 picks one)",
		},
		cli.StringFlag{
			Name:  ConsensusHostFlag,
			Usage: "Consensus transport listening interface (validators only)",
		},
		cli.IntFlag{
			Name:  ConsensusPortFlag,
			Usage: "Consensus transport listening port, must differ from --port",
		},
		cli.StringFlag{
			Name:  APVFlag,
			Usage: "Signed app protocol version token",
		},
		cli.StringSliceFlag{
			Name:  TrustedSignersFlag,
			Usage: "Hex public key trusted to sign protocol versions, repeatable",
		},
		cli.StringSliceFlag{
			Name:  IceServersFlag,
			Usage: "Relay peer used behind NAT, repeatable",
		},
		cli.StringSliceFlag{
			Name:  PeersFlag,
			Usage: "Bootstrap peer as a p2p multiaddr or pubkeyhex,host,port, repeatable",
		},
		cli.StringSliceFlag{
			Name:  StaticPeersFlag,
			Usage: "Peer kept connected, same format as --peers, repeatable",
		},
		cli.IntFlag{
			Name:  BroadcastTargetFlag,
			Usage: "Minimum number of peers a message is pushed to",
			Value: 10,
		},
		cli.IntFlag{
			Name:  BucketSizeFlag,
			Usage: "Routing table bucket size",
			Value: 16,
		},
	}
}

// NetworkFlagNames lists the flags that enable networking when set.
func NetworkFlagNames() []string {
	return []string{
		HostFlag, PortFlag, ConsensusHostFlag, ConsensusPortFlag, APVFlag,
		TrustedSignersFlag, IceServersFlag, PeersFlag, StaticPeersFlag,
		BroadcastTargetFlag, BucketSizeFlag,
	}
}
