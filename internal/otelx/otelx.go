// Package otelx installs the global OpenTelemetry tracer provider and
// propagators. Spans are exported over OTLP/gRPC to a local collector.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

const (
	dialTimeout   = 3 * time.Second
	maxQueueSize  = 2048
	batchInterval = 5 * time.Second
)

type Options struct {
	Enabled  bool
	Endpoint string // host:port
	Insecure bool
	// Sample is the root sampling ratio; child spans follow their parent.
	Sample float64

	Service   string
	Component string
	Version   string
}

// Init sets the global provider and propagators and returns the flush
// func. Disabled still installs an SDK provider that never exports, so
// trace ids exist for logs and response headers.
func Init(ctx context.Context, o Options) (shutdown func(context.Context) error, err error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	// the exporter dial blocks without a deadline
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, exporterOptions(o)...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "otlp exporter for %s", o.Endpoint)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(maxQueueSize),
			sdktrace.WithBatchTimeout(batchInterval),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newResource describes this process. Detector errors are partial
// results, so whatever was detected is kept.
func newResource(ctx context.Context, o Options) *resource.Resource {
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName(o)),
			semconv.ServiceVersion(o.Version),
		),
	)
	return res
}

func exporterOptions(o Options) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent(o))),
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

// serviceName is "service.component", or just the service.
func serviceName(o Options) string {
	if o.Component == "" {
		return o.Service
	}
	return o.Service + "." + o.Component
}

// userAgent is the service name plus "/version", e.g. portfolio-web.server/v1.2.0.
func userAgent(o Options) string {
	if o.Version == "" {
		return serviceName(o)
	}
	return serviceName(o) + "/" + o.Version
}
