package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Settings{Endpoint: endpoint, ServiceName: "test-service"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatalf("providers = %+v", providers)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("second shutdown: %v", err)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		name         string
		endpoint     string
		force        bool
		wantTarget   string
		wantInsecure bool
		wantErr      bool
	}{
		{"empty", "", false, "", false, false},
		{"bare host port", "localhost:4317", false, "localhost:4317", true, false},
		{"http", "http://collector:4317", false, "collector:4317", true, false},
		{"https uses tls", "https://collector:4317", false, "collector:4317", false, false},
		{"https insecure override", "https://collector:4317", true, "collector:4317", true, false},
		{"path dropped", "http://localhost:4317/v1/traces", false, "localhost:4317", true, false},
		{"missing host", "http://", false, "", false, true},
		{"malformed", "http://[invalid", false, "", false, true},
		{"invalid characters", "://invalid", false, "", false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			target, insecure, err := parseEndpoint(tc.endpoint, tc.force)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if target != tc.wantTarget || insecure != tc.wantInsecure {
				t.Errorf("parseEndpoint(%q) = %q, %v; want %q, %v", tc.endpoint, target, insecure, tc.wantTarget, tc.wantInsecure)
			}
		})
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), Settings{Endpoint: "http://", ServiceName: "test-service"}); err == nil {
		t.Fatal("NewProviders with missing host should return error")
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(Settings{ServiceName: "backoffice-auth", Environment: "staging"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	found := map[string]string{}
	for _, kv := range res.Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found["service.name"] != "backoffice-auth" || found["deployment.environment.name"] != "staging" {
		t.Errorf("attributes = %v", found)
	}
}

func TestSetGlobal(t *testing.T) {
	ctx := context.Background()
	oldTracerProvider := otel.GetTracerProvider()
	oldMeterProvider := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTracerProvider)
		otel.SetMeterProvider(oldMeterProvider)
	}()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(ctx) }()
	(&Providers{TracerProvider: tp}).SetGlobal()
	if otel.GetTracerProvider() != tp {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() != oldMeterProvider {
		t.Error("MeterProvider should not be updated when nil")
	}

	(&Providers{}).SetGlobal()
}
