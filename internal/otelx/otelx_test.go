package otelx

import (
	"context"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_Disabled(t *testing.T) {
	// nonsense options are ignored when disabled
	shutdown, err := Init(context.Background(), Options{Sample: 99.9})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown %d: %v", i, err)
		}
	}

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider = %T, want the SDK provider", otel.GetTracerProvider())
	}

	fields := otel.GetTextMapPropagator().Fields()
	for _, want := range []string{"traceparent", "tracestate", "baggage"} {
		if !slices.Contains(fields, want) {
			t.Errorf("propagator fields %v missing %q", fields, want)
		}
	}

	// spans are real so ids reach logs and headers
	_, span := otel.Tracer("test").Start(context.Background(), "GET /")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Fatal("disabled tracing should still mint valid span contexts")
	}
}

func TestInit_EnabledUnreachableCollector(t *testing.T) {
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:   true,
		Endpoint:  "localhost:1",
		Insecure:  true,
		Sample:    1,
		Service:   "portfolio-web",
		Component: "test",
		Version:   "v0.0.0-test",
	})
	if elapsed := time.Since(start); elapsed > dialTimeout+5*time.Second {
		t.Fatalf("Init took %v", elapsed)
	}
	if err != nil {
		return
	}
	// grpc connects lazily; shutdown may report the failed export
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestNames(t *testing.T) {
	tests := []struct {
		o           Options
		service, ua string
	}{
		{Options{Service: "portfolio-web", Component: "server", Version: "v1.2.0"}, "portfolio-web.server", "portfolio-web.server/v1.2.0"},
		{Options{Service: "portfolio-web", Component: "server"}, "portfolio-web.server", "portfolio-web.server"},
		{Options{Service: "portfolio-web", Version: "dev"}, "portfolio-web", "portfolio-web/dev"},
	}
	for _, tt := range tests {
		if got := serviceName(tt.o); got != tt.service {
			t.Errorf("serviceName(%+v) = %q, want %q", tt.o, got, tt.service)
		}
		if got := userAgent(tt.o); got != tt.ua {
			t.Errorf("userAgent(%+v) = %q, want %q", tt.o, got, tt.ua)
		}
	}
}

func TestExporterOptions(t *testing.T) {
	if n := len(exporterOptions(Options{Endpoint: "otel:4317"})); n != 2 {
		t.Fatalf("secure options = %d, want 2", n)
	}
	if n := len(exporterOptions(Options{Endpoint: "localhost:4317", Insecure: true})); n != 3 {
		t.Fatalf("insecure options = %d, want 3", n)
	}
}
