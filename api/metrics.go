package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardViewRoute       = "/api/boards/:boardID"
	boardViewSpanName    = "board_view.fetch"
	boardViewEventName   = "board_view.fetched"
	boardViewEventDomain = "board-api"
)

// boardViewMetrics instruments the hot read path: one span plus one
// structured log event per board view request.
type boardViewMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	listsReturned  int
	errorStage     string
}

func newBoardViewMetrics(ctx context.Context, logger *log.Logger) (*boardViewMetrics, context.Context) {
	spanCtx, span := otel.Tracer(boardViewEventDomain).Start(ctx, boardViewSpanName)
	return &boardViewMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *boardViewMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *boardViewMetrics) ObserveFetch(duration time.Duration) {
	if duration > 0 {
		m.fetchDuration = duration
	}
}

func (m *boardViewMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *boardViewMetrics) SetListsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.listsReturned = count
}

func (m *boardViewMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *boardViewMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	total := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	fields := log.Fields{
		"event.name":      boardViewEventName,
		"event.domain":    boardViewEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"route":           boardViewRoute,
		"status":          status,
		"total_ms":        total,
		"lists_returned":  m.listsReturned,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if m.span != nil {
		attrs := []attribute.KeyValue{
			attribute.String("http.route", boardViewRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("board.view.total_ms", total),
			attribute.Int("board.view.lists_returned", m.listsReturned),
		}
		if m.errorStage != "" {
			attrs = append(attrs, attribute.String("board.view.error_stage", m.errorStage))
		}
		if err != nil {
			attrs = append(attrs, attribute.String("error.message", err.Error()))
		}
		m.span.SetAttributes(attrs...)

		eventAttrs := append(attrs,
			attribute.String("event.name", boardViewEventName),
			attribute.String("event.domain", boardViewEventDomain),
			attribute.String("severity_text", severityText),
		)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

		if err != nil || status >= http.StatusInternalServerError {
			desc := "request failed"
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
