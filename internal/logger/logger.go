// Package logger provides the structured logger every component of a
// run logs through. The logger is built once at startup and injected;
// no component configures its own sink.
package logger

import (
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the zap logger shared across one run.
type Logger struct {
	*zap.Logger
}

// NewLogger builds a production JSON logger writing to stdout, errors
// to stderr, at the given level ("debug", "info", "warn", "error").
// An empty level means info.
func NewLogger(level string) (*Logger, error) {
	parsed := zapcore.InfoLevel

	if level != "" {
		var err error

		parsed, err = zapcore.ParseLevel(level)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid log level %q", level)
		}
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(parsed)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := config.Build()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to build logger", err)
	}

	return &Logger{
		Logger: zapLogger,
	}, nil
}

// NewNopLogger returns a logger that discards all output. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a child logger tagged with the component name, e.g.
// "backtest" or "live".
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	if l.Logger != nil {
		return l.Logger.Sync()
	}
	return nil
}
