package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecordThroughReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(ProviderConfig{ServiceName: "directdebit"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordPaymentEvent(ctx, "gocardless", "confirmed")
	m.RecordPaymentEvent(ctx, "gocardless", "confirmed")
	m.RecordCheckout(ctx, "gocardless", "declined")
	m.RecordRateLimitDenied(ctx, "gocardless", "gocardless_webhook", "limit_exceeded")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	sums := map[string]metricdata.Sum[int64]{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				sums[metric.Name] = sum
			}
		}
	}

	events, ok := sums["directdebit_payment_events_total"]
	if !ok || len(events.DataPoints) != 1 {
		t.Fatalf("expected one payment event series, got %+v", events)
	}
	if events.DataPoints[0].Value != 2 {
		t.Fatalf("expected 2 payment events, got %d", events.DataPoints[0].Value)
	}
	if v, _ := events.DataPoints[0].Attributes.Value("event_type"); v.AsString() != "confirmed" {
		t.Fatalf("expected event_type attribute, got %v", v)
	}
	if _, ok := sums["directdebit_checkouts_total"]; !ok {
		t.Fatalf("expected checkout counter to be collected")
	}
	if _, ok := sums["directdebit_rate_limit_denied_total"]; !ok {
		t.Fatalf("expected rate limit counter to be collected")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPaymentEvent(context.Background(), "gocardless", "confirmed")
	m.RecordRateLimitAllowed(context.Background(), "gocardless", "gocardless_webhook")
}

func TestFilterAttributesDropsUnknownAndEmpty(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("gateway_id", "gocardless"),
		attribute.String("mandate_id", "MD123"),
		attribute.String("outcome", ""),
	)
	if len(attrs) != 1 || attrs[0].Key != "gateway_id" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestNewProviderDisabledIsNoop(t *testing.T) {
	provider, err := NewProvider(nil, ProviderConfig{}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := New(ProviderConfig{}, provider); err != nil {
		t.Fatalf("instruments on noop provider: %v", err)
	}
}
