// Package logging builds the zap logger used by every stage.
package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger writing to stderr. format is "console" or "json".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	enc, err := newEncoder(format)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core), nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "console", "":
		return zapcore.NewConsoleEncoder(encoderCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encoderCfg), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// WithRunID tags every entry with a fresh run identifier.
func WithRunID(log *zap.Logger) (*zap.Logger, string) {
	id := uuid.NewString()
	return log.With(zap.String("run_id", id)), id
}

// Timing logs the start of op at debug level and returns a func that logs
// its completion with the elapsed time.
func Timing(log *zap.Logger, op string) func() {
	if !log.Core().Enabled(zapcore.DebugLevel) {
		return func() {}
	}
	start := time.Now()
	log.Debug("starting", zap.String("op", op))
	return func() {
		log.Debug("completed", zap.String("op", op), zap.Duration("took", time.Since(start)))
	}
}
