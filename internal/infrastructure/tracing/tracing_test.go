package tracing

import (
	"context"
	"testing"

	"github.com/hilthontt/bingo/internal/infrastructure/configs"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(configs.TracingConfig{Enabled: false, Exporter: ExporterOTLP})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Expected no-op shutdown, got %v", err)
	}
}

func TestInitTracerUnknownExporter(t *testing.T) {
	if _, err := InitTracer(configs.TracingConfig{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Error("Expected error for unsupported exporter")
	}
}
