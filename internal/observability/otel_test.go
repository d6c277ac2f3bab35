package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/go-promo-reco/internal/config"
)

func tracingConfig(insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: "promocode-service",
		SampleRatio: 1.0,
	}
}

// keepGlobals restores the OTel globals and test seams after t.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	exp, res := newOTLPExporterFn, newServiceResourceFn
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
		newOTLPExporterFn, newServiceResourceFn = exp, res
	})
}

// stopCounter wraps an OTLP client and counts Stop calls.
type stopCounter struct {
	otlptrace.Client
	stops *atomic.Int32
}

func (s stopCounter) Stop(ctx context.Context) error {
	s.stops.Add(1)
	return s.Client.Stop(ctx)
}

func TestSetupOTel_DisabledInstallsNothing(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	cfg := tracingConfig(true)
	cfg.Enabled = false
	shutdown, err := SetupOTel(context.Background(), cfg, "dev")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("tracer provider replaced while disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

func TestSetupOTel_EnabledInstallsProviderAndPropagators(t *testing.T) {
	for name, insecure := range map[string]bool{"insecure": true, "tls": false} {
		t.Run(name, func(t *testing.T) {
			keepGlobals(t)

			var buf bytes.Buffer
			ctx := zerolog.New(&buf).WithContext(context.Background())

			shutdown, err := SetupOTel(ctx, tracingConfig(insecure), "v1.0.0")
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("expected *sdktrace.TracerProvider, got %T", otel.GetTracerProvider())
			}
			fields := strings.Join(otel.GetTextMapPropagator().Fields(), ",")
			if !strings.Contains(fields, "traceparent") || !strings.Contains(fields, "baggage") {
				t.Fatalf("propagator fields = %q", fields)
			}
			if !strings.Contains(buf.String(), `"message":"tracing enabled"`) ||
				!strings.Contains(buf.String(), `"service":"promocode-service"`) {
				t.Fatalf("missing startup log: %s", buf.String())
			}

			sctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}

func TestSetupOTel_ExporterErrorIsWrapped(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	boom := errors.New("dial refused")
	newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, boom
	}

	_, err := SetupOTel(context.Background(), tracingConfig(true), "v0")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped exporter error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "otlp exporter: ") {
		t.Fatalf("unexpected message %q", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("tracer provider changed on failure")
	}
}

func TestSetupOTel_ResourceErrorStopsExporter(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	var stops atomic.Int32
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, stopCounter{Client: client, stops: &stops})
	}
	boom := errors.New("bad attributes")
	newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
		return nil, boom
	}

	_, err := SetupOTel(context.Background(), tracingConfig(true), "v0")
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "otel resource: ") {
		t.Fatalf("expected wrapped resource error, got %v", err)
	}
	if n := stops.Load(); n != 1 {
		t.Fatalf("exporter stopped %d times; want 1", n)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("tracer provider changed on failure")
	}
}

func TestServiceResource_CarriesNamespaceAndVersion(t *testing.T) {
	res, err := newServiceResourceFn(context.Background(), "promocode-service", "v1.4.0")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	want := map[string]string{
		"service.name":      "promocode-service",
		"service.namespace": ServiceNamespace,
		"service.version":   "v1.4.0",
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q; want %q", k, got[k], v)
		}
	}
}
