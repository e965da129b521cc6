package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.SugaredLogger

func init() {
	if err := Configure(false, "json"); err != nil {
		panic(err)
	}
}

// Configure rebuilds Log. Components capture named children of Log when they
// are constructed, so call it before wiring anything up.
func Configure(debug bool, encoding string) error {
	if encoding != "json" && encoding != "console" {
		return fmt.Errorf("unknown log format %q", encoding)
	}
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	config := zap.Config{
		Encoding:         encoding, // json or console
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	zapLogger, err := config.Build()
	if err != nil {
		return err
	}
	if Log != nil {
		_ = Log.Sync()
	}
	Log = zapLogger.Sugar()
	return nil
}

// Sync flushes buffered entries; call it on the way out.
func Sync() {
	_ = Log.Sync()
}

// Convenience functions
func Info(args ...interface{}) {
	Log.Info(args...)
}

func Infof(template string, args ...interface{}) {
	Log.Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	Log.Warnf(template, args...)
}

func Error(args ...interface{}) {
	Log.Error(args...)
}

func Errorf(template string, args ...interface{}) {
	Log.Errorf(template, args...)
}

func Debug(args ...interface{}) {
	Log.Debug(args...)
}

func Debugf(template string, args ...interface{}) {
	Log.Debugf(template, args...)
}
