// Package telemetry wires optional OpenTelemetry trace export over OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and stops exporters.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

type target struct {
	endpoint string
	path     string
	insecure bool
}

// parseEndpoint accepts "host[:port]" (plain HTTP) or an http(s) URL with an
// optional path. The port defaults to 4318.
func parseEndpoint(raw string) (target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return target{}, fmt.Errorf("telemetry: empty endpoint")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return target{}, fmt.Errorf("telemetry: parse endpoint: %w", err)
	}
	t := target{endpoint: u.Host, path: strings.TrimSuffix(u.Path, "/")}
	switch strings.ToLower(u.Scheme) {
	case "http":
		t.insecure = true
	case "https":
	default:
		return target{}, fmt.Errorf("telemetry: unsupported scheme %q", u.Scheme)
	}
	if t.endpoint == "" {
		return target{}, fmt.Errorf("telemetry: endpoint %q has no host", raw)
	}
	if u.Port() == "" {
		t.endpoint = net.JoinHostPort(u.Hostname(), "4318")
	}
	return t, nil
}

// Setup installs a global tracer provider exporting to endpoint. An empty
// endpoint leaves the no-op provider in place and returns a no-op shutdown.
func Setup(ctx context.Context, endpoint, serviceName, version string, log *slog.Logger) (ShutdownFunc, error) {
	if strings.TrimSpace(endpoint) == "" {
		return noop, nil
	}
	if log == nil {
		log = slog.Default()
	}
	t, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(t.endpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if t.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if t.path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(t.path))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: start trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warn("telemetry.exporter.error", slog.String("err", err.Error()))
	}))
	log.Info("telemetry.tracing.enabled", slog.String("endpoint", t.endpoint), slog.Bool("insecure", t.insecure))

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: trace shutdown: %w", err)
		}
		return nil
	}, nil
}
