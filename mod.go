// Package masq implements a masked-message store: secrets are obscured with a
// one-time XOR key, the key is held encrypted by a vault that enforces
// per-handle permission sets, and authorized identities recover it through a
// signed, time-bounded decryption request.
package masq

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "MASQ_LOG"

const defaultLevel = zerolog.InfoLevel

func init() {
	switch os.Getenv(EnvLogLevel) {
	case "error":
		Logger = Logger.Level(zerolog.ErrorLevel)
	case "warn":
		Logger = Logger.Level(zerolog.WarnLevel)
	case "info":
		Logger = Logger.Level(zerolog.InfoLevel)
	case "debug":
		Logger = Logger.Level(zerolog.DebugLevel)
	case "trace":
		Logger = Logger.Level(zerolog.TraceLevel)
	case "":
		Logger = Logger.Level(defaultLevel)
	default:
		Logger = Logger.Level(zerolog.TraceLevel)
	}
}

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger()

// PromCollectors exposes the Prometheus collectors registered by the masq
// packages so that a frontend can serve them.
var PromCollectors []prometheus.Collector
