package telemetry

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{ServiceName: "tryonflow-test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("SetupTracing returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}

func TestSetupTracingRejectsBadConfig(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected missing endpoint error, got %v", err)
	}

	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "jaeger"}, zap.NewNop()); err == nil {
		t.Fatal("expected unsupported exporter error")
	}
}

func TestSamplerRatio(t *testing.T) {
	if got := sampler(0).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Fatalf("expected always-on root sampler, got %s", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Fatalf("expected ratio sampler, got %s", got)
	}
}
