package pathoram

import "go.uber.org/zap"

// newLogger returns the default structured logger used by an engine
// when the caller does not supply one via the WithLogger option.
// Production deployments are expected to pass their own *zap.Logger
// to the Map/Queue constructors that way instead of relying on this
// default.
func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails if the default encoder config
		// is broken, which would be a build-time bug, not a runtime
		// condition callers can recover from.
		return zap.NewNop()
	}
	return logger
}
