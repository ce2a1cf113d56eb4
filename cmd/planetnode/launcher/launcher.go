package launcher

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"
	"gopkg.in/yaml.v2"

	"github.com/rony4d/go-planet-node/flags"
	"github.com/rony4d/go-planet-node/integration"
	"github.com/rony4d/go-planet-node/network"
	"github.com/rony4d/go-planet-node/node"
	"github.com/rony4d/go-planet-node/producer"
)

// Version is set at build time.
var Version = "0.1.0-dev"

var dumpConfigCommand = cli.Command{
	Name:     "dumpconfig",
	Usage:    "Print the merged configuration as YAML",
	Category: "MISCELLANEOUS COMMANDS",
	Action:   dumpConfig,
}

// NewApp builds the planetnode command line.
func NewApp() *cli.App {
	app := flags.NewApp(Version, "a blockchain node that bootstraps from a genesis block")
	app.Flags = flags.AllFlags()
	app.Action = runNode
	app.Commands = []cli.Command{
		keyCommand,
		apvCommand,
		genesisCommand,
		dumpConfigCommand,
	}
	return app
}

// Launch runs the command line with args, os.Args included.
func Launch(args []string) error {
	return NewApp().Run(args)
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	for _, k := range []*string{&cfg.Keys.Node, &cfg.Keys.Miner, &cfg.Keys.Validator} {
		if *k != "" {
			*k = "redacted"
		}
	}
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}

func runNode(ctx *cli.Context) error {
	if ctx.NArg() > 0 {
		return errors.Errorf("unknown command %q", ctx.Args().First())
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log, err := NewLogger(cfg.Log, ctx.App.ErrWriter)
	if err != nil {
		return err
	}
	nodeCfg, keys, err := cfg.Integration()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	differentVersion := func(p peer.ID, theirs, ours network.AppProtocolVersion) {
		log.WithFields(logrus.Fields{
			"peer":          p.String(),
			"peer_version":  theirs.Version,
			"local_version": ours.Version,
		}).Warn("Peer runs a different app protocol version, an upgrade may be available")
	}
	n, err := integration.Bootstrap(sigCtx, nodeCfg, integration.Options{
		Keys:                        keys,
		Logger:                      log,
		DifferentVersionEncountered: differentVersion,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.WithError(err).Error("Close node")
		}
	}()

	var metrics *producer.Metrics
	if cfg.Metrics.Enable {
		reg, m, err := NewMetricsRegistry()
		if err != nil {
			return err
		}
		srv, err := startMetrics(cfg.Metrics, reg, log)
		if err != nil {
			return errors.Wrap(err, "start metrics server")
		}
		defer srv.Close()
		metrics = m
	}

	fields := logrus.Fields{
		"tip":     n.Chain.Tip().Index(),
		"chain":   n.Chain.ID().String(),
		"genesis": n.Chain.Genesis().Hash().Hex(),
	}
	if n.Swarm != nil {
		fields["peer"] = n.Swarm.ID().String()
		fields["role"] = n.BootstrapRole.String()
	}
	log.WithFields(fields).Info("Node bootstrapped")

	err = node.Run(sigCtx, n, node.Options{Metrics: metrics, Logger: log})
	log.Info("Node stopped")
	return err
}
