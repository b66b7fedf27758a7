// Package log wraps zap with a logger constructor and typed field helpers.
package log

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger at the given level
// ("debug", "info", "warn", "error"; anything else falls back to info).
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	return cfg.Build()
}

// Typed field helpers, kept as thin aliases over the zap field
// constructors.
func String(k, v string) zap.Field                 { return zap.String(k, v) }
func Int(k string, v int) zap.Field                { return zap.Int(k, v) }
func Int64(k string, v int64) zap.Field            { return zap.Int64(k, v) }
func Bool(k string, v bool) zap.Field              { return zap.Bool(k, v) }
func Duration(k string, v time.Duration) zap.Field { return zap.Duration(k, v) }
func Err(err error) zap.Field                      { return zap.Error(err) }
