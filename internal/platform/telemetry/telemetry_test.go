package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestSetup_RejectsBadRatio(t *testing.T) {
	if _, err := Setup(context.Background(), Config{Enabled: true, SampleRatio: 2}); err == nil {
		t.Fatal("expected error for sample ratio > 1")
	}
}

func TestTraceContext(t *testing.T) {
	if _, err := Setup(context.Background(), Config{}); err != nil {
		t.Fatal(err)
	}

	if tp, _ := TraceContext(context.Background()); tp != "" {
		t.Errorf("expected empty traceparent without a span, got %q", tp)
	}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tp, _ := TraceContext(ctx)
	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if tp != want {
		t.Errorf("traceparent = %q, want %q", tp, want)
	}
}
