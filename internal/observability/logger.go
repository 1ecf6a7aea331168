package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"
)

// Logger provides structured, leveled logging for the pipeline.
type Logger interface {
	LogDebug(ctx context.Context, message string, fields map[string]interface{})
	LogInfo(ctx context.Context, message string, fields map[string]interface{})
	LogWarning(ctx context.Context, message string, fields map[string]interface{})
	LogError(ctx context.Context, message string, fields map[string]interface{})
}

// LogLevel defines the logging verbosity level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarning
	LogLevelError
)

// ParseLevel maps a config string to a LogLevel; unknown values get info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarning
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogFormat defines the output format for logs.
type LogFormat int

const (
	LogFormatHuman LogFormat = iota
	LogFormatJSON
)

// ParseFormat maps a config string to a LogFormat; unknown values get JSON.
func ParseFormat(s string) LogFormat {
	if strings.ToLower(s) == "human" {
		return LogFormatHuman
	}
	return LogFormatJSON
}

// DefaultLogger writes structured records to the wrapped writer.
type DefaultLogger struct {
	level      LogLevel
	format     LogFormat
	redactKeys bool
	out        *log.Logger
}

// NewDefaultLogger creates a logger with the specified config.
func NewDefaultLogger(level LogLevel, format LogFormat, redactKeys bool, w io.Writer) *DefaultLogger {
	return &DefaultLogger{
		level:      level,
		format:     format,
		redactKeys: redactKeys,
		out:        log.New(w, "", 0),
	}
}

func (l *DefaultLogger) LogDebug(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelDebug, "debug", message, fields)
}

func (l *DefaultLogger) LogInfo(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelInfo, "info", message, fields)
}

func (l *DefaultLogger) LogWarning(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelWarning, "warning", message, fields)
}

func (l *DefaultLogger) LogError(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelError, "error", message, fields)
}

func (l *DefaultLogger) emit(level LogLevel, name, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	fields = l.redactFields(fields)

	if l.format == LogFormatJSON {
		record := map[string]interface{}{
			"level":     name,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"message":   message,
		}
		for k, v := range fields {
			record[k] = v
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			l.out.Printf(`{"level":"error","message":"log encode failed: %v"}`, err)
			return
		}
		l.out.Print(string(encoded))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", strings.ToUpper(name), message)
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&sb, " %s=%v", k, fields[k])
	}
	l.out.Print(sb.String())
}

// redactFields masks values of key-like fields to their last 4 characters.
func (l *DefaultLogger) redactFields(fields map[string]interface{}) map[string]interface{} {
	if !l.redactKeys || len(fields) == 0 {
		return fields
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if isSecretField(k) {
			if s, ok := v.(string); ok {
				out[k] = RedactAPIKey(s)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isSecretField(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "api_key") ||
		strings.Contains(lower, "apikey") ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret")
}

// RedactAPIKey shows only the last 4 characters of a key with explicit
// redaction markers.
func RedactAPIKey(key string) string {
	if len(key) <= 4 {
		return "[REDACTED]"
	}
	return fmt.Sprintf("[REDACTED-%s]", key[len(key)-4:])
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NopLogger discards all records. Useful as a default for optional
// dependencies.
type NopLogger struct{}

func (NopLogger) LogDebug(context.Context, string, map[string]interface{})   {}
func (NopLogger) LogInfo(context.Context, string, map[string]interface{})    {}
func (NopLogger) LogWarning(context.Context, string, map[string]interface{}) {}
func (NopLogger) LogError(context.Context, string, map[string]interface{})   {}
