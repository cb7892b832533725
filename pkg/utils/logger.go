package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger named "companion" carrying fields on every entry.
// Debug selects the development config (console, debug level); otherwise production (JSON, info level).
func NewLogger(debug bool, fields ...zap.Field) (*zap.Logger, error) {
	build := zap.NewProduction
	if debug {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		return nil, err
	}
	return logger.Named("companion").With(fields...), nil
}
