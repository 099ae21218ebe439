package events

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNewKafkaPublisher_NoBrokersIsNoop(t *testing.T) {
	p := NewKafkaPublisher(nil, "inkbook")
	if _, ok := p.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", p)
	}
	if err := p.Publish(context.Background(), NewEvent("appointment.created", "a-1", nil)); err != nil {
		t.Errorf("noop publish returned %v", err)
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w, prefix: "inkbook"}

	evt := NewEvent("appointment.created", "a-1", map[string]string{"provider_id": "p-1"})
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "inkbook.appointment.created" {
		t.Errorf("unexpected topic %q", msg.Topic)
	}
	if string(msg.Key) != "a-1" {
		t.Errorf("unexpected key %q", msg.Key)
	}
	if header(msg, "event_id") != evt.ID || header(msg, "event_type") != "appointment.created" {
		t.Errorf("unexpected headers %v", msg.Headers)
	}

	var decoded struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Type != "appointment.created" || decoded.Payload["provider_id"] != "p-1" {
		t.Errorf("unexpected body %+v", decoded)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{w: w}
	if err := p.Publish(context.Background(), NewEvent("x", "k", nil)); err == nil {
		t.Fatal("expected error")
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w}
	_ = p.Close()
	if !w.closed {
		t.Error("expected writer to be closed")
	}
}

func TestTopic_NoPrefix(t *testing.T) {
	p := &KafkaPublisher{}
	if got := p.Topic("appointment.deleted"); got != "appointment.deleted" {
		t.Errorf("unexpected topic %q", got)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitBrokers = %v, want %v", got, want)
	}
	if SplitBrokers("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestInjectTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("e-1")}})
	msg := kafka.Message{Headers: headers}
	if header(msg, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}
	if header(msg, "event_id") != "e-1" {
		t.Error("existing headers must be preserved")
	}
}
