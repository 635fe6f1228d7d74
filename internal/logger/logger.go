package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Namespaces tag log lines with the subsystem that emitted them
const (
	APP        = "APP"
	CHAT       = "CHAT"
	CLI        = "CLI"
	CLIENT     = "CLIENT"
	CONFIG     = "CONFIG"
	HANDLER    = "HANDLER"
	MIDDLEWARE = "MIDDLEWARE"
	REDIS      = "REDIS"
	RUNTIME    = "RUNTIME"
	SERVICE    = "SERVICE"
	SESSION    = "SESSION"
	UI         = "UI"
)

func getLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Init configures the global zerolog logger from LOG_LEVEL and LOG_PRETTY.
func Init() {
	InitWithWriter(os.Stderr, os.Getenv("LOG_PRETTY") == "true")
}

// InitWithWriter configures the global logger to write to w.
func InitWithWriter(w io.Writer, pretty bool) {
	zerolog.SetGlobalLevel(getLogLevel())
	zerolog.TimeFieldFormat = time.RFC3339

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// For returns a child of the global logger tagged with namespace.
func For(namespace string) zerolog.Logger {
	return log.With().Str("namespace", namespace).Logger()
}
