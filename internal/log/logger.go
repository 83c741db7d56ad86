package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

var CorrelatedIDKey contextKey = "correlation_id"

const LoggerKeyForContext contextKey = "logger"

type Logger struct {
	*slog.Logger
}

// NewLoggerWithJSONOutput writes JSON lines to stdout at the level named by LOG_LEVEL.
func NewLoggerWithJSONOutput() *Logger {
	return NewLogger(os.Stdout, levelFromEnv())
}

func NewLogger(w io.Writer, level slog.Level) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// NewDiscardLogger is used by tests that do not assert on log output.
func NewDiscardLogger() *Logger {
	return NewLogger(io.Discard, slog.LevelError)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
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

// WithCorrelationID binds the request's correlation id and, when a span is
// recording on ctx, its trace and span ids.
func (l *Logger) WithCorrelationID(ctx context.Context) *Logger {
	args := []any{string(CorrelatedIDKey), GetOrGenerateCorrelationID(ctx)}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}

	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func GetOrGenerateCorrelationID(ctx context.Context) string {
	if id := ctx.Value(CorrelatedIDKey); id != nil {
		if s, ok := id.(string); ok {
			return s
		}
	}

	return GenerateCorrelationID()
}

func GenerateCorrelationID() string {
	return uuid.New().String()
}

func GetLoggerInstanceFromContext(ctx context.Context, fallbackLogger *Logger) *Logger {
	if ctx == nil {
		if fallbackLogger != nil {
			return fallbackLogger
		}
		return NewLoggerWithJSONOutput()
	}

	if logger := ctx.Value(LoggerKeyForContext); logger != nil {
		if l, ok := logger.(*Logger); ok {
			return l
		}
	}

	if fallbackLogger != nil {
		return fallbackLogger.WithCorrelationID(ctx)
	}
	return NewLoggerWithJSONOutput().WithCorrelationID(ctx)
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" becomes "jo***@example.com"; local parts of two
// characters or fewer are fully masked.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	// Runes, so a multi-byte first character is never split.
	name := []rune(parts[0])
	if len(name) > 2 {
		return string(name[:2]) + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
