// Package applog wraps zap the way jeffrysusilo-order-service's internal/util logger does: a
// package-level global initialized once at startup, development-formatted outside production.
package applog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// Init builds the process logger. env is typically "production" or "development".
func Init(env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	built, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = built
	zap.ReplaceGlobals(logger)
	return nil
}

// L returns the process logger, falling back to a development logger if Init was never called
// (e.g. in unit tests).
func L() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// Sync flushes buffered log entries; call it once during graceful shutdown.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
