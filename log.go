package wampc

import (
	"os"

	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

// setup logger for package, silent by default
func init() {
	if os.Getenv("DEBUG") != "" {
		Debug()
	}
}

// Debug sends log output to stderr at debug level.
func Debug() {
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}).
		With().Timestamp().Logger().Level(zerolog.DebugLevel)
}

// DebugOff silences the package logger.
func DebugOff() {
	log = zerolog.Nop()
}

// SetLogger allows users to inject their own logger instead of the default one.
// Sessions copy the package logger when they are created.
func SetLogger(l zerolog.Logger) {
	log = l
}
