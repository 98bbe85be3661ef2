// Package obs carries the solver's ambient observability and configuration
// concerns: logging and environment-parsed limits. Neither participates in
// scheduling control flow — the event bus (internal/events) is the
// control-flow observation channel; this package is operational diagnostics
// only.
package obs

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// NewLogger builds a *slog.Logger scoped to "graphsolver", JSON if
// GRAPHSOLVER_JSON_LOG=1/true/json else text, level from GRAPHSOLVER_LOG_LEVEL.
// Grounded in the pack's service-scoped slog convention.
func NewLogger() *slog.Logger {
	mode := strings.ToLower(os.Getenv("GRAPHSOLVER_JSON_LOG"))
	opts := &slog.HandlerOptions{Level: levelFromEnv()}

	var handler slog.Handler
	if mode == "1" || mode == "true" || mode == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("component", "graphsolver")
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("GRAPHSOLVER_LOG_LEVEL")) {
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

// DefaultHardConcurrencyLimit is used when neither a constructor option nor
// the environment variable below supplies one.
const DefaultHardConcurrencyLimit = 50

// ConcurrencyLimitFromEnv parses GRAPHSOLVER_HARD_CONCURRENCY_LIMIT once, at
// construction time, per spec.md §9's re-architecture of process-wide
// environment parsing into an explicit collaborator. Invalid or absent
// values fall back to DefaultHardConcurrencyLimit.
func ConcurrencyLimitFromEnv() int {
	raw := os.Getenv("GRAPHSOLVER_HARD_CONCURRENCY_LIMIT")
	if raw == "" {
		return DefaultHardConcurrencyLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultHardConcurrencyLimit
	}
	return n
}
