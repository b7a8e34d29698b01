package logging

import (
	"errors"
	"log"
	"syscall"

	"go.uber.org/zap"
)

// New builds the process logger and installs it as zap's global logger.
// The returned func flushes buffered entries and should be deferred by main.
func New(appEnv string) (*zap.Logger, func()) {
	var (
		logger *zap.Logger
		err    error
	)
	if appEnv == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil && !isIgnorableSyncError(err) {
			log.Printf("failed to sync logger: %v", err)
		}
	}
	return logger, cleanup
}

// Sync on a terminal stdout/stderr returns EINVAL or ENOTTY on most platforms.
func isIgnorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
