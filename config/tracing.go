package config

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	defaultOTLPEndpoint = "http://localhost:4318"
	defaultOTLPPath     = "/v1/traces"
)

// otlpTarget is the parsed form of OTEL_EXPORTER_OTLP_ENDPOINT.
type otlpTarget struct {
	hostport string
	path     string
	insecure bool
}

// SetupTracing installs a global tracer provider when OTEL_TRACES_ENABLED is
// true and returns its shutdown func. Spans are sampled by
// OTEL_TRACES_SAMPLER_ARG (0..1, default 1) unless the parent decided.
func SetupTracing(logger *log.Logger) (func(context.Context) error, error) {
	if !utils.IsTracingEnabled() {
		return nil, nil
	}

	endpoint := utils.GetEnvTrimmedOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", defaultOTLPEndpoint)
	target, err := parseOTLPEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	ratio, err := parseSampleRatio(utils.GetEnvTrimmed("OTEL_TRACES_SAMPLER_ARG"))
	if err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.hostport),
		otlptracehttp.WithURLPath(target.path),
	}
	if target.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("setup tracing exporter: %w", err)
	}

	serviceName := utils.OTelServiceName()
	res, err := resource.New(context.Background(), resource.WithAttributes(tracingAttributes(serviceName)...))
	if err != nil {
		return nil, fmt.Errorf("setup tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("OpenTelemetry tracing enabled", "service", serviceName, "endpoint", endpoint, "sample_ratio", ratio)

	return tp.Shutdown, nil
}

func tracingAttributes(serviceName string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}

	if env := GetAppEnv(); env != "" {
		attrs = append(attrs, attribute.String("deployment.environment", env))
	}
	if brand := utils.GetEnvTrimmed("WAITLIST_BRAND"); brand != "" {
		attrs = append(attrs, attribute.String("waitlist.brand", brand))
	}
	return attrs
}

func parseSampleRatio(raw string) (float64, error) {
	if raw == "" {
		return 1, nil
	}

	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 0, fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG %q: want a number between 0 and 1", raw)
	}
	return ratio, nil
}

// parseOTLPEndpoint accepts http(s)://host:port[/path] or a bare host:port,
// which is treated as plain HTTP.
func parseOTLPEndpoint(raw string) (otlpTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return otlpTarget{}, fmt.Errorf("empty OTLP endpoint")
	}

	if !strings.Contains(raw, "://") {
		// WithEndpoint wants host:port only.
		if strings.ContainsAny(raw, "/?#") {
			return otlpTarget{}, fmt.Errorf("invalid OTLP endpoint %q: a path or query needs a scheme, e.g. \"http://host:port/path\"", raw)
		}
		return otlpTarget{hostport: raw, path: defaultOTLPPath, insecure: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return otlpTarget{}, fmt.Errorf("invalid OTLP endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return otlpTarget{}, fmt.Errorf("invalid OTLP endpoint %q: missing host", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return otlpTarget{}, fmt.Errorf("unsupported OTLP endpoint scheme %q in %q", u.Scheme, raw)
	}

	path := u.EscapedPath()
	if path == "" || path == "/" {
		path = defaultOTLPPath
	}

	return otlpTarget{hostport: u.Host, path: path, insecure: scheme == "http"}, nil
}
