// Package logging builds the zap logger shared by every solcrawl command.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	level       *zapcore.Level
	outputPaths []string
}

// Option tunes the logger built by New.
type Option func(*options)

// WithLevel overrides the minimum enabled level.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) { o.level = &level }
}

// WithOutputPaths sends log records to the given zap sinks instead of stderr.
func WithOutputPaths(paths ...string) Option {
	return func(o *options) { o.outputPaths = paths }
}

// New builds a zap.Logger configured for development or production.
func New(development bool, opts ...Option) (*zap.Logger, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	if o.level != nil {
		cfg.Level = zap.NewAtomicLevelAt(*o.level)
	}
	if len(o.outputPaths) > 0 {
		cfg.OutputPaths = o.outputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("solcrawl"), nil
}
