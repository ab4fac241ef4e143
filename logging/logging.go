// Package logging bootstraps the process-wide slog logger the way taskmesh
// hosts are expected to: handler format and level come from the
// environment, and every record carries the service name.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger and returns it. The handler is
// JSON when TASKMESH_JSON_LOG is 1/true/json, text otherwise; the level
// comes from TASKMESH_LOG_LEVEL.
func Init(service string) *slog.Logger {
	return InitWriter(service, os.Stdout)
}

// InitWriter is Init with an explicit destination, used by tests and hosts
// that redirect logs.
func InitWriter(service string, w io.Writer) *slog.Logger {
	jsonMode := isJSONMode()
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	var handler slog.Handler
	if jsonMode {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", jsonMode)
	return logger
}

func isJSONMode() bool {
	switch strings.ToLower(os.Getenv("TASKMESH_JSON_LOG")) {
	case "1", "true", "json":
		return true
	default:
		return false
	}
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("TASKMESH_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
