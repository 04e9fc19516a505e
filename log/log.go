// Package log provides per-module structured loggers backed by zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	root    *zap.Logger
	loggers = map[string]*zap.SugaredLogger{}
)

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		panic(err)
	}
	root = logger
}

// NewModuleLogger returns the logger for a module, creating it on first use.
// Loggers are shared: repeated calls with the same name return the same
// instance.
func NewModuleLogger(module string) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}
	l := root.Sugar().Named(module)
	loggers[module] = l
	return l
}

// SetRoot replaces the root logger. Intended for tests and for the CLI to
// switch to development encoding.
func SetRoot(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = map[string]*zap.SugaredLogger{}
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = root.Sync()
}
