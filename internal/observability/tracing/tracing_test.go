package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("gateway_id", "gocardless"),
		attribute.String("access_token", "live_xxx"),
		attribute.String("http.route", "/webhooks/gocardless/:gateway"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "access_token" {
			t.Fatalf("expected access_token to be dropped")
		}
	}
}

func TestSafeErrorRedacts(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
	if got := SafeError(errors.New("invalid access_token for gateway")); got.Error() != "redacted error" {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := SafeError(errors.New("timeout")); got.Error() != "timeout" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
