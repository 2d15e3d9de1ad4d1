// Package logger owns the process-wide zap logger.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Init builds the global logger: a colored console logger when isDev,
// JSON at info level otherwise.
func Init(isDev bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if isDev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, err = cfg.Build()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err = cfg.Build()
	}
	if err != nil {
		return err
	}

	mu.Lock()
	log = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
	return nil
}

// L returns the global logger. Before Init it is a no-op logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Sync flushes buffered entries; call it on shutdown.
func Sync() {
	_ = L().Sync()
}
