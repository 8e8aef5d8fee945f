package app

import (
	"github.com/tallerco/shopcore/pkg/logger"
)

// ConfigureLogging initialises the global zap logger from the configured level.
func ConfigureLogging(level string) error {
	if level == "" {
		level = "info"
	}
	return logger.Init(level)
}
