package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/config"
)

// NewServiceLogger returns a child of the global logger tagged with the
// worker and service names
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

// WithStream tags a logger with the hive whose stream it reports on
func WithStream(base zerolog.Logger, hiveID string) zerolog.Logger {
	return base.With().Str("hive_id", hiveID).Logger()
}
