// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps zap to provide level-based filtering and either JSON or console output.
// Until Init is called every call is a no-op, so library packages can log freely
// without forcing tests to configure anything.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu            sync.RWMutex
	defaultLogger = zap.NewNop()
)

// ParseLevel maps a config level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes the default logger with the specified level and format.
// Format "text" selects the console encoder with caller info; anything else is JSON.
func Init(level string, format string) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	opts := []zap.Option{}
	if strings.ToLower(format) == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), ParseLevel(level))
	Set(zap.New(core, opts...))
}

// Set replaces the default logger. Passing nil restores the no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// L returns the underlying zap logger for structured call sites.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func sugar() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	sugar().Debugf(format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	sugar().Infof(format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	sugar().Warnf(format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	sugar().Errorf(format, args...)
}

// Fatal logs a message at FatalLevel and exits
func Fatal(format string, args ...interface{}) {
	l := L()
	if l.Core().Enabled(zapcore.FatalLevel) {
		l.Sugar().Fatalf(format, args...)
	}
	fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	os.Exit(1)
}
