package tracing

import (
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/payments/webhook"),
		attribute.String("signature", "deadbeef"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
}

func TestSafeErrorFlattensChain(t *testing.T) {
	base := errors.New("boom")
	err := SafeError(fmt.Errorf("wrap: %w", base))
	if errors.Is(err, base) {
		t.Fatalf("expected wrapped chain to be dropped")
	}
	if err.Error() != "wrap: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
