// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Options selects the level, encoder and output of the logger.
type Options struct {
	Level       string
	Development bool
	File        string
}

// ParseLevel maps "debug|info|warn|error" (any case) to a zap level. Unknown values return an error.
func ParseLevel(levelStr string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", levelStr)
	}
}

// New builds a zap logger. An invalid level falls back to info and is reported
// through the returned logger. Output goes to stdout and, if set, to opts.File.
func New(opts Options) (*zap.Logger, error) {
	level, levelErr := ParseLevel(opts.Level)

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableCaller = !opts.Development
	cfg.OutputPaths = []string{"stdout"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if levelErr != nil {
		l.Warn("Invalid log level, defaulting to INFO", zap.String("input", opts.Level))
	}
	return l, nil
}

// InstallSlog routes the log/slog default logger into l.
func InstallSlog(l *zap.Logger) {
	slog.SetDefault(slog.New(zapslog.NewHandler(l.Core(), zapslog.WithName("slog"))))
}
