package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
)

type LoggerKey struct{}

func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

// FromContext returns the logger stored in ctx. Library callers that never
// set one get a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

type fileOptions struct {
	maxFiles int
	maxSize  int
}

type Option func(*fileOptions)

// WithRotation sets how many rotated files to keep and their size in MB.
// Zero files disables deleting old logs.
func WithRotation(maxFiles, maxSizeMB int) Option {
	return func(o *fileOptions) {
		o.maxFiles = maxFiles
		o.maxSize = maxSizeMB
	}
}

func New(level zapcore.LevelEnabler, logFileName string, json bool, opts ...Option) *zap.Logger {
	options := fileOptions{
		maxFiles: defaultMaxLogFiles,
		maxSize:  defaultMaxLogFileSize,
	}
	for _, opt := range opts {
		opt(&options)
	}

	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleSyncer := zapcore.Lock(os.Stdout)
	var cores []zapcore.Core
	cores = append(cores, zapcore.NewCore(encoder, consoleSyncer, level))

	if logFileName != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   logFileName,
			MaxSize:    options.maxSize,
			MaxBackups: options.maxFiles,
			MaxAge:     28,
			Compress:   true,
		}
		fs := zapcore.AddSync(fileLogger)
		cores = append(cores, zapcore.NewCore(encoder, fs, zap.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...))
}
