// Package logging builds the zap logger used across patchmirror from a
// configured level name.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conn-castle/patchmirror/internal/messages"
)

const (
	// LevelDebug logs everything.
	LevelDebug = "debug"

	// LevelInfo logs progress of each step.
	LevelInfo = "info"

	// LevelWarn is the default level.
	LevelWarn = "warn"

	// LevelError logs errors only.
	LevelError = "error"

	// LevelNone disables logging.
	LevelNone = "none"
)

// Valid reports whether level is a supported level name.
func Valid(level string) bool {
	switch level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelNone:
		return true
	}
	return false
}

// New returns a logger writing human-readable lines to w at the given level.
func New(level string, w io.Writer) (*zap.Logger, error) {
	if level == LevelNone {
		return zap.NewNop(), nil
	}
	if !Valid(level) {
		return nil, fmt.Errorf(messages.LoggingInvalidLevelFmt, level)
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core), nil
}
