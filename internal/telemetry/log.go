package telemetry

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Format "console" gives the development
// encoder, anything else JSON with ISO8601 timestamps.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}

	var c zap.Config
	if format == "console" {
		c = zap.NewDevelopmentConfig()
	} else {
		c = zap.NewProductionConfig()
		c.EncoderConfig.TimeKey = "timestamp"
		c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	c.Level = zap.NewAtomicLevelAt(lvl)

	return c.Build()
}
