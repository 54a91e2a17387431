package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	mu     sync.RWMutex
)

// Options controls how the process logger is built.
type Options struct {
	Env        string // "development" switches to the console encoder
	Level      string // debug, info, warn, error
	OutputPath string // file path; empty means stderr
}

// InitLogger builds the process logger and replaces the zap globals.
func InitLogger(opts Options) error {
	config := zap.NewProductionConfig()
	if opts.Env == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return err
		}
	}
	config.Level = zap.NewAtomicLevelAt(level)

	if opts.OutputPath != "" {
		config.OutputPaths = []string{opts.OutputPath}
		config.ErrorOutputPaths = []string{opts.OutputPath}
		// colour codes make no sense in a file
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	l, err := config.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	Logger = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
	return nil
}

// GetLogger returns the process logger, falling back to a production logger.
func GetLogger() *zap.Logger {
	mu.RLock()
	l := Logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if Logger == nil {
		Logger, _ = zap.NewProduction()
	}
	return Logger
}

// SetLogger swaps the process logger, mainly for tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	Logger = l
	mu.Unlock()
}

// With returns a child logger carrying the given fields.
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Fatal logs and exits the process.
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
