package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	l, err := NewLogger(&Config{Level: DebugLevel, Format: format, AppName: "cargoride"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return l, buf
}

func TestJSONFormatterIncludesFields(t *testing.T) {
	l, buf := newBufferLogger(t, "json")

	l.WithServiceID("svc-1").WithDriverID("d-1").Info("accepted")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["service_id"] != "svc-1" || entry["driver_id"] != "d-1" {
		t.Fatalf("missing fields: %v", entry)
	}
	if entry["app"] != "cargoride" || entry["message"] != "accepted" {
		t.Fatalf("unexpected envelope: %v", entry)
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	l, buf := newBufferLogger(t, "text")

	child := l.WithField("service_id", "svc-1")
	l.Info("parent")
	if strings.Contains(buf.String(), "svc-1") {
		t.Fatalf("parent logger picked up child field: %s", buf.String())
	}
	buf.Reset()
	child.Info("child")
	if !strings.Contains(buf.String(), "service_id=svc-1") {
		t.Fatalf("child field missing: %s", buf.String())
	}
}

func TestWithContextExtractsKnownKeys(t *testing.T) {
	l, buf := newBufferLogger(t, "text")

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	l.WithContext(ctx).Warn("slow")

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Fatalf("request id missing: %s", buf.String())
	}
}

func TestLogSettlementEvent(t *testing.T) {
	l, buf := newBufferLogger(t, "json")

	l.LogSettlementEvent("svc-1", "d-1", 18.5, 0.93, 17.57, "USD")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["type"] != "settlement_event" || entry["net"] != 17.57 {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
