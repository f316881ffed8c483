package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"kvkk-permits/internal/telemetry"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.NewEvent("s", "test")); err != nil {
		t.Errorf("noop Emit(ctx, event): %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func attributes(rec otellog.Record) map[string]otellog.Value {
	attrs := make(map[string]otellog.Value)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	return attrs
}

func TestEmit_AttributeMapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	permitted := true
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event := &telemetry.Event{
		ID:         "ev-1",
		SessionID:  "sess-1",
		EventType:  telemetry.EventPermitUpdated,
		Source:     telemetry.SourceConsole,
		Operator:   "agent-42",
		PhoneHash:  "abc123",
		RecordCode: "C-001",
		Permitted:  &permitted,
		Operation:  "update",
		CreatedAt:  created,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec

	if !rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), created)
	}
	if rec.Body().AsString() != telemetry.EventPermitUpdated {
		t.Errorf("body = %q", rec.Body().AsString())
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want info", rec.Severity())
	}

	attrs := attributes(rec)
	want := map[string]string{
		"event_id": "ev-1", "session_id": "sess-1", "event_type": telemetry.EventPermitUpdated,
		"source": telemetry.SourceConsole, "operator": "agent-42", "phone_hash": "abc123",
		"record_code": "C-001", "operation": "update",
	}
	for k, v := range want {
		if got := attrs[k].AsString(); got != v {
			t.Errorf("attr %q = %q, want %q", k, got, v)
		}
	}
	if !attrs["permitted"].AsBool() {
		t.Error("permitted attribute should be true")
	}
	if _, ok := attrs["outcome"]; ok {
		t.Error("empty outcome must not be set")
	}
}

func TestEmit_FailureIsWarn(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	event := telemetry.NewEvent("s", telemetry.EventRequestFailed)
	event.Outcome = "timeout"
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if capture.rec.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want warn", capture.rec.Severity())
	}
	attrs := attributes(capture.rec)
	if _, ok := attrs["permitted"]; ok {
		t.Error("permitted must be omitted when unknown")
	}
	if attrs["outcome"].AsString() != "timeout" {
		t.Errorf("outcome = %q", attrs["outcome"].AsString())
	}
}

func TestEmit_ZeroTimestamp_SetsCurrentTime(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &telemetry.Event{EventType: "test"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	after := time.Now().UTC()
	ts := capture.rec.Timestamp()
	if ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp = %v, should be between %v and %v", ts, before, after)
	}
}
