package ctxlogger

import (
	"context"
	"testing"

	"github.com/smallbiznis/directdebit/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationAndGateway(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := correlation.ContextWithCorrelationID(context.Background(), "01HZX")
	ctx = ContextWithGateway(ctx, "gocardless")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["correlation_id"] != "01HZX" {
		t.Fatalf("expected correlation id, got %v", fields["correlation_id"])
	}
	if fields["gateway_id"] != "gocardless" {
		t.Fatalf("expected gateway id, got %v", fields["gateway_id"])
	}
	if _, ok := fields["trace_id"]; ok {
		t.Fatalf("expected no trace fields without a span")
	}
}
