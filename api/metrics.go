package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "todo-api/api"
	requestEventName   = "todo.request.metrics"
	requestEventDomain = "todo-api"
	metricsContextKey  = "todo.request.metrics"
)

type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	route         string
	method        string
	start         time.Time
	storeDuration time.Duration
	itemsReturned int
	todoID        int64
	errorStage    string
	err           error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	if route == "" {
		route = "unmatched"
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger:        logger,
		span:          span,
		route:         route,
		method:        method,
		start:         time.Now(),
		itemsReturned: -1,
	}, spanCtx
}

// RequestMetrics records one span and one structured log entry per request.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			m.Log(c.Response().Status, err)
			return nil
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func (m *requestMetrics) ObserveStore(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.storeDuration += duration
}

func (m *requestMetrics) SetItemsReturned(count int) {
	if m == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	m.itemsReturned = count
}

func (m *requestMetrics) SetTodoID(id int64) {
	if m == nil {
		return
	}
	m.todoID = id
}

func (m *requestMetrics) SetError(stage string, err error) {
	if m == nil {
		return
	}
	if stage != "" {
		m.errorStage = stage
	}
	if err != nil {
		m.err = err
	}
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}

	attrs := map[string]any{
		"http.route":                m.route,
		"http.request.method":       m.method,
		"http.response.status_code": status,
		"todo.total_ms":             durationToMillis(time.Since(m.start)),
	}
	if m.storeDuration > 0 {
		attrs["todo.store_ms"] = durationToMillis(m.storeDuration)
	}
	if m.itemsReturned >= 0 {
		attrs["todo.items_returned"] = m.itemsReturned
	}
	if m.todoID > 0 {
		attrs["todo.id"] = m.todoID
	}
	if m.errorStage != "" {
		attrs["todo.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}
	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		kvs := attributesFromMap(attrs)
		m.span.SetAttributes(kvs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(append(kvs,
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
		)...))
		if status >= http.StatusInternalServerError || (err != nil && status == 0) {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(severityText), "observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func levelForSeverity(text string) log.Level {
	switch text {
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func attributesFromMap(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		}
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
