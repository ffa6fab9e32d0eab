package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// FieldApp names the binary on every entry.
	FieldApp = "app"
	appName  = "jobmatch"
)

// New builds the application logger. Entries go to stderr so that reports on
// stdout stay machine readable. Debug enables caller and stack traces.
func New(json bool, debug bool) (*zap.Logger, error) {
	return build(encoderName(json), levelFor(debug), debug, []string{"stderr"})
}

func encoderName(json bool) string {
	if json {
		return "json"
	}
	return "console"
}

func levelFor(debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func encoderConfig(debug bool) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "step",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "component",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if debug {
		cfg.CallerKey = "caller"
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
		cfg.StacktraceKey = "stacktrace"
	}
	return cfg
}

func build(encoding string, level zapcore.Level, debug bool, outputs []string) (*zap.Logger, error) {
	cfg := zap.Config{
		Encoding:          encoding,
		Level:             zap.NewAtomicLevelAt(level),
		Development:       debug,
		DisableStacktrace: !debug,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		EncoderConfig:     encoderConfig(debug),
		InitialFields:     map[string]any{FieldApp: appName},
	}

	return cfg.Build()
}
