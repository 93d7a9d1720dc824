// Package logger builds the service's zap loggers.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder, level and static fields of a logger.
type Options struct {
	Env     string // prod emits JSON; local, dev and docker emit console output
	Level   string // debug, info, warn or error; empty keeps the env default
	Service string // added as the "service" field when set
	Version string // added as the "version" field when set
	// Stderr routes output to stderr. CLI commands use it so stdout carries only results.
	Stderr bool
}

// New creates a zap logger from opts.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch opts.Env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", opts.Env)
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	if opts.Stderr {
		cfg.OutputPaths = []string{"stderr"}
	}

	fields := make(map[string]any, 2)
	if opts.Service != "" {
		fields["service"] = opts.Service
	}
	if opts.Version != "" {
		fields["version"] = opts.Version
	}
	if len(fields) > 0 {
		cfg.InitialFields = fields
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
