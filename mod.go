// Package eventz defines the global state shared by the eventz packages.
//
// The repository implements a type-preserving marshalling engine for
// event-sourced messaging: values are serialized into a canonical JSON
// representation and reconstructed as the exact original type, with the
// wire-visible type name decoupled from its location in the code.
package eventz

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "LLVL"

const defaultLevel = zerolog.ErrorLevel

func init() {
	switch os.Getenv(EnvLogLevel) {
	case "warn":
		Logger = Logger.Level(zerolog.WarnLevel)
	case "info":
		Logger = Logger.Level(zerolog.InfoLevel)
	case "debug":
		Logger = Logger.Level(zerolog.DebugLevel)
	case "trace":
		Logger = Logger.Level(zerolog.TraceLevel)
	}
}

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance. By default, it only prints
// error level messages but the level can be changed through the LLVL
// environment variable.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(defaultLevel)

// PromCollectors exposes the Prometheus collectors created by the packages so
// that the application can register them against its own registry.
var PromCollectors []prometheus.Collector
