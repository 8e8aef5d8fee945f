package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds the process logger and installs it as zap's global. Until Init
// runs, zap.L() is a no-op logger, so packages may log during early start-up
// without ordering concerns. Unknown level strings fall back to info.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Warn-level stacktraces are noise for expected conditions like dropped
	// sessions or failed publishes.
	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(log)
	return nil
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	return zap.L()
}

// Sync flushes buffered log entries.
func Sync() error {
	return zap.L().Sync()
}

// WithModule returns a child logger tagged with the owning module, e.g.
// "realtime" or "scheduler". Every long-lived component holds one.
func WithModule(module string) *zap.Logger {
	return zap.L().With(zap.String("module", module))
}
