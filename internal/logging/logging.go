package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the process-wide logger: a text handler writing to stderr,
// never stdout, since stdout carries the MCP JSON-RPC stream.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || envWantsDebug() {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// SetupDefault builds the logger via New and installs it as the slog
// default, so library code that calls slog.Info/slog.Error directly also
// lands on stderr at the right level.
func SetupDefault(debug bool) *slog.Logger {
	logger := New(debug)
	slog.SetDefault(logger)
	return logger
}

func envWantsDebug() bool {
	return strings.EqualFold(os.Getenv("MEMEX_LOG_LEVEL"), "debug")
}
