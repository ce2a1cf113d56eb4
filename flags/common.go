package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// Flag names read by the launcher.
const (
	ConfigFlag       = "config"
	LogFormatFlag    = "log.format"
	LogVerbosityFlag = "log.verbosity"
	LogColorFlag     = "log.color"
	LogSentryFlag    = "log.sentry"
	MetricsFlag      = "metrics"
	MetricsAddrFlag  = "metrics.addr"
	MetricsPortFlag  = "metrics.port"
)

// CommonFlags returns the base set of CLI flags shared across commands.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  ConfigFlag,
			Usage: "YAML configuration file (also read from PN_CONFIG_FILE)",
		},
		cli.StringFlag{
			Name:  LogFormatFlag,
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  LogVerbosityFlag,
			Usage: "Logging verbosity (0=panic,1=fatal,2=error,3=warn,4=info,5=debug,6=trace)",
			Value: 4,
		},
		cli.BoolFlag{
			Name:  LogColorFlag,
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:  LogSentryFlag,
			Usage: "Sentry DSN receiving error logs",
		},
		cli.BoolFlag{
			Name:  MetricsFlag,
			Usage: "Enable collection of Prometheus-compatible metrics",
		},
		cli.StringFlag{
			Name:  MetricsAddrFlag,
			Usage: "Metrics server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  MetricsPortFlag,
			Usage: "Metrics server listening port",
			Value: 6060,
		},
	}
}
