// Package logging builds the process logger. Logs go to stderr so stdout
// carries only the command envelope.
package logging

import (
	"strings"

	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultLevel = "warn"

func New(level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build logger", err)
	}
	return logger, nil
}

func ParseLevel(level string) (zapcore.Level, error) {
	clean := strings.ToLower(strings.TrimSpace(level))
	if clean == "" {
		clean = DefaultLevel
	}
	lvl, err := zapcore.ParseLevel(clean)
	if err != nil {
		return zapcore.InfoLevel, clierr.New(clierr.CodeUsage, "log level must be one of debug|info|warn|error")
	}
	return lvl, nil
}
