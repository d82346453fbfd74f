package limiter

import (
	"log/slog"
	"strconv"

	"github.com/coverbot-io/sandbox-runner/internal/command"
)

// ResolveMaxConcurrency picks the concurrency bound, evaluated once at
// process start. Precedence: a valid positive integer from local
// configuration, then the server-side execution config, then
// DefaultMaxConcurrency. An invalid local value is logged and treated as
// absent.
func ResolveMaxConcurrency(local string, server *command.ExecutionConfig, logger *slog.Logger) int {
	if local != "" {
		n, err := strconv.Atoi(local)
		if err == nil && n > 0 {
			return n
		}
		logger.Warn("ignoring invalid local maxConcurrency", "value", local)
	}
	if server != nil && server.MaxConcurrency != nil && *server.MaxConcurrency > 0 {
		return *server.MaxConcurrency
	}
	return DefaultMaxConcurrency
}
