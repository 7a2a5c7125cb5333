// Package logutil provides slog helpers shared by the client packages.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// discard is the package-level no-op logger, created once.
var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Discard returns a logger that drops all records.
func Discard() *slog.Logger { return discard }

// OrDiscard returns l when non-nil, otherwise the discard logger.
// Intended as the first line in constructors that accept *slog.Logger.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return discard
}

// New builds a JSON logger writing to w at the named level.
// Accepted levels: debug, info, warn, error.
func New(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
