// Package logger sets up the structured logger every other package in
// this module receives by injection rather than reaching for a global.
package logger

import (
	"log/slog"
	"os"
)

// Setup builds the slog.Logger used for the lifetime of the process.
// Text output goes to stdout at info level, or at debug level when debug
// is set so startup and handshake traces are visible on a console; swap
// to slog.NewJSONHandler for production log shipping.
func Setup(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
