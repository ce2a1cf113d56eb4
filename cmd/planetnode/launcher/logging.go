package launcher

import (
	"io"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// verbosityLevels maps --log.verbosity to logrus levels.
var verbosityLevels = []logrus.Level{
	logrus.PanicLevel,
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

func levelOf(verbosity int) logrus.Level {
	switch {
	case verbosity < 0:
		return verbosityLevels[0]
	case verbosity >= len(verbosityLevels):
		return verbosityLevels[len(verbosityLevels)-1]
	default:
		return verbosityLevels[verbosity]
	}
}

// NewLogger builds the node logger. Errors and worse are also reported to
// Sentry when a DSN is configured.
func NewLogger(cfg LoggingConfig, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(levelOf(cfg.Verbosity))

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:     cfg.Color,
			DisableColors:   !cfg.Color,
			FullTimestamp:   true,
			TimestampFormat: "01-02|15:04:05.000",
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return nil, errors.Errorf("unknown log format %q, want text or json", cfg.Format)
	}

	if cfg.Sentry != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.Sentry, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, errors.Wrap(err, "sentry hook")
		}
		hook.Timeout = 5 * time.Second
		hook.StacktraceConfiguration.Enable = true
		log.AddHook(hook)
	}
	return log, nil
}
