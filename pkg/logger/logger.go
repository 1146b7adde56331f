// Package logger provides the structured logger used across the worker.
// Attribute values for credential-like keys are masked before emission.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New creates a Logger from config. Unknown levels default to info and
// unknown formats to JSON.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: maskSensitive,
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewNop creates a logger that discards all output. For tests.
func NewNop() *Logger {
	return New(Config{Level: "error", Format: "json", Output: io.Discard})
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// sensitiveKeys are attribute keys whose values must never reach log
// output. The worker handles object-store credentials, database DSNs and
// Redis passwords; scanner artifacts can additionally carry detected
// secrets through finding payloads.
var sensitiveKeys = map[string]bool{
	"password":              true,
	"passwd":                true,
	"secret":                true,
	"token":                 true,
	"authorization":         true,
	"api_key":               true,
	"apikey":                true,
	"access_token":          true,
	"private_key":           true,
	"aws_access_key":        true,
	"aws_secret_key":        true,
	"aws_secret_access_key": true,
	"connection_string":     true,
	"dsn":                   true,
	"database_url":          true,
	"db_password":           true,
	"redis_password":        true,
	"redis_url":             true,
	"credential":            true,
	"credentials":           true,
	"evidence":              true,
}

// maskSensitive redacts values for sensitive attribute keys, including
// composite keys containing a sensitive fragment ("s3_secret_key").
func maskSensitive(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)

	if sensitiveKeys[key] {
		return slog.String(a.Key, "[REDACTED]")
	}
	for sensitive := range sensitiveKeys {
		if strings.Contains(key, sensitive) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
