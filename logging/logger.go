// Package logging wraps a single process-wide zap logger with structured
// event helpers, validating each event's fields against a static schema
// before it is emitted.
package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's level/format and which sinks are active.
type Config struct {
	Level   string
	Format  string
	Outputs []string
}

// DefaultConfig matches the configuration table's ambient defaults.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Outputs: []string{"stdout"}}
}

// Logger wraps a *zap.Logger with the agent's structured event helpers.
type Logger struct {
	*zap.Logger
	config Config
}

// New builds a Logger tee-ing the configured outputs.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var cores []zapcore.Core
	if contains(cfg.Outputs, "stdout") {
		encoder := jsonOrConsole(cfg.Format, encoderConfig)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level))
	}

	core := zapcore.NewTee(cores...)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zapLogger, config: cfg}, nil
}

func jsonOrConsole(format string, cfg zapcore.EncoderConfig) zapcore.Encoder {
	if format == "console" {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WithFields returns a derived Logger carrying the given fields on every
// subsequent call.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{Logger: l.Logger.With(toZapFields(fields)...), config: l.config}
}

// LogEvent emits a structured event after validating its fields against
// the static schema registry. A schema mismatch is logged as a warning
// about the logger's own misuse, not propagated to the caller — a
// logging bug must never interrupt the hot path, so the event itself is
// still emitted (validation failures are caught by unit tests, not by
// blocking production traffic).
func (l *Logger) LogEvent(event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["event"] = event
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := Validate(event, fields); err != nil {
		l.Warn("log_schema_violation", zap.String("event", event), zap.Error(err))
	}
	l.Info(event, toZapFields(fields)...)
}

// LogError records an error with context at error level. It makes no retry
// and returns nothing, so a logging failure never fails the caller that
// emitted it.
func (l *Logger) LogError(err error, context map[string]any) {
	if context == nil {
		context = make(map[string]any)
	}
	context["error"] = err.Error()
	context["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Error("error_event", toZapFields(context)...)
}

// Close flushes buffered log entries; if the first Sync fails it tries once
// more and returns that second attempt's error.
func (l *Logger) Close() error {
	if err := l.Sync(); err != nil {
		return l.Sync()
	}
	return nil
}

func toZapFields(fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
