package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"notanemail":           "***@***",
		"a@b@c":                "***@***",
		"żółw@example.pl":      "żó***@example.pl",
		"éa@example.com":       "***@example.com",
	}

	for in, want := range cases {
		got := RedactEmail(in)
		assert.Equal(t, want, got, in)
		assert.True(t, utf8.ValidString(got), in)
	}
}

func TestWithCorrelationID_UsesContextValue(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	ctx := context.WithValue(context.Background(), CorrelatedIDKey, "abc-123")
	logger.WithCorrelationID(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc-123", line["correlation_id"])
	assert.Equal(t, "hello", line["msg"])
}

func TestWithCorrelationID_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c, 0x01},
		SpanID:     trace.SpanID{0x01, 0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	logger.WithCorrelationID(ctx).Info("traced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, sc.TraceID().String(), line["trace_id"])
	assert.Equal(t, sc.SpanID().String(), line["span_id"])
	assert.NotEmpty(t, line["correlation_id"])
}

func TestGetLoggerInstanceFromContext_PrefersInjectedLogger(t *testing.T) {
	injected := NewDiscardLogger()
	ctx := context.WithValue(context.Background(), LoggerKeyForContext, injected)

	assert.Same(t, injected, GetLoggerInstanceFromContext(ctx, NewDiscardLogger()))
}

func TestGetLoggerInstanceFromContext_FallsBack(t *testing.T) {
	fallback := NewDiscardLogger()

	//nolint:staticcheck // nil context is a supported input
	assert.Same(t, fallback, GetLoggerInstanceFromContext(nil, fallback))
	assert.NotNil(t, GetLoggerInstanceFromContext(context.Background(), fallback))
}
