package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop().Sugar()
)

// Init initializes the logger. A disabled logger discards everything.
func Init(enabled bool, levelStr, logFile string, console bool) error {
	if !enabled {
		set(zap.NewNop().Sugar())
		return nil
	}

	var writers []zapcore.WriteSyncer
	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, zapcore.AddSync(f))
	}
	if console || len(writers) == 0 {
		writers = append(writers, zapcore.Lock(os.Stdout))
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(writers...),
		parseLevel(levelStr),
	)
	set(zap.New(core).Sugar())
	return nil
}

func set(l *zap.SugaredLogger) {
	mu.Lock()
	old := global
	global = l
	mu.Unlock()
	_ = old.Sync()
}

func parseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// L returns the underlying structured logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered output.
func Sync() error {
	return L().Sync()
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	L().Debugf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	L().Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	L().Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	L().Errorf(format, args...)
}
