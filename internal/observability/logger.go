package observability

import (
	"log/slog"

	"github.com/couchcryptid/neo-radar-service/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const serviceName = "neo-radar"

// NewLogger builds the service logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	return withService(sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat))
}

// withService tags every record with the service name.
func withService(l *slog.Logger) *slog.Logger {
	return l.With("service", serviceName)
}
