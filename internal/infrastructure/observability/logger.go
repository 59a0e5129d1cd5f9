package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the service logger and installs it as the zerolog
// global, so packages that log through zerolog/log share its level and sink.
func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	logger := zerolog.New(output).
		Level(ParseLogLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = logger
	return logger
}

// ParseLogLevel maps a config level name to zerolog, defaulting to info.
// "warning" is accepted as an alias of warn.
func ParseLogLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// OrderLogger scopes a logger to one order and payment attempt.
func OrderLogger(logger zerolog.Logger, orderID int64, txRef string) zerolog.Logger {
	l := logger.With().Int64("order_id", orderID)
	if txRef != "" {
		l = l.Str("tx_ref", txRef)
	}
	return l.Logger()
}
