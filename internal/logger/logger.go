// Package logger builds the zap loggers used by the services and by the
// command line tools.
package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level  string
	Format string

	Caller       bool
	StackOnError bool
	// Sample caps repeated messages at 100 per second after the first 100.
	Sample bool
}

// Build returns a logger writing ISO8601 timestamps to stdout and registers it
// as the zap global.
func Build(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.Sampling = nil

	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "info"
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zapOpts []zap.Option
	if opts.Caller {
		zapOpts = append(zapOpts, zap.AddCaller())
	}
	if opts.StackOnError {
		zapOpts = append(zapOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if opts.Sample {
		zapOpts = append(zapOpts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
		}))
	}

	log, err := cfg.Build(zapOpts...)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

// New is the command line variant: no caller, no sampling.
func New(level, format string) (*zap.Logger, error) {
	return Build(Options{Level: level, Format: format})
}
