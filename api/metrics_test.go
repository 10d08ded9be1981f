package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return tp, exporter, func() { otel.SetTracerProvider(prev) }
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestBoardViewMetricsEmitsSpanAndLogEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetFormatter(&log.JSONFormatter{})

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newBoardViewMetrics(context.Background(), logger)
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.ObserveAuth(10 * time.Millisecond)
	metrics.ObserveFetch(15 * time.Millisecond)
	metrics.ObserveEncode(5 * time.Millisecond)
	metrics.SetListsReturned(3)

	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != "observability.event" {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if entry.Data["event.name"] != boardViewEventName {
		t.Fatalf("event name = %v", entry.Data["event.name"])
	}
	if entry.Data["severity_text"] != "INFO" {
		t.Fatalf("severity = %v", entry.Data["severity_text"])
	}
	if entry.Data["lists_returned"] != 3 {
		t.Fatalf("lists_returned = %v", entry.Data["lists_returned"])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("trace_id = %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != boardViewSpanName {
		t.Fatalf("span name = %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["http.route"] != boardViewRoute {
		t.Fatalf("route attribute = %#v", attrs["http.route"])
	}
	if code, ok := attrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("status attribute = %#v", attrs["http.status_code"])
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("span status = %v", span.Status.Code)
	}
}

func TestBoardViewMetricsErrorSetsSpanStatus(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newBoardViewMetrics(context.Background(), logger)
	metrics.SetErrorStage("storage")
	boom := errors.New("storage failure")

	metrics.Log(http.StatusInternalServerError, boom)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("span status = %v", span.Status.Code)
	}
	if span.Status.Description != boom.Error() {
		t.Fatalf("status description = %q", span.Status.Description)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["board.view.error_stage"] != "storage" {
		t.Fatalf("error stage attribute = %#v", attrs["board.view.error_stage"])
	}
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		err        error
		wantText   string
		wantNumber int
	}{
		{name: "ok", status: http.StatusOK, wantText: "INFO", wantNumber: 9},
		{name: "warn", status: http.StatusBadRequest, wantText: "WARN", wantNumber: 13},
		{name: "error", status: http.StatusInternalServerError, wantText: "ERROR", wantNumber: 17},
		{name: "errorFromErr", status: http.StatusOK, err: errors.New("boom"), wantText: "ERROR", wantNumber: 17},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, number := severityForStatus(tc.status, tc.err)
			if text != tc.wantText || number != tc.wantNumber {
				t.Fatalf("severity = %s/%d, want %s/%d", text, number, tc.wantText, tc.wantNumber)
			}
		})
	}
}
