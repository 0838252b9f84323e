package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/valri11/usagedecoder/parser"
)

const (
	MetricRequestCount    = "http.server.request.count"
	MetricRequestDuration = "http.server.request.duration"
	MetricLinesDecoded    = "usage.lines.decoded"
	MetricLinesFailed     = "usage.lines.failed"
)

type AppMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	linesDecoded    metric.Int64Counter
	linesFailed     metric.Int64Counter
}

var _ parser.Observer = (*AppMetrics)(nil)

func NewAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	requestCount, err := meter.Int64Counter(MetricRequestCount,
		metric.WithDescription("number of HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(MetricRequestDuration,
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	linesDecoded, err := meter.Int64Counter(MetricLinesDecoded,
		metric.WithDescription("usage lines decoded, by scheme"),
		metric.WithUnit("{line}"))
	if err != nil {
		return nil, err
	}

	linesFailed, err := meter.Int64Counter(MetricLinesFailed,
		metric.WithDescription("usage lines replaced by a placeholder, by reason"),
		metric.WithUnit("{line}"))
	if err != nil {
		return nil, err
	}

	m := AppMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		linesDecoded:    linesDecoded,
		linesFailed:     linesFailed,
	}
	return &m, nil
}

func (m *AppMetrics) LineDecoded(ctx context.Context, scheme parser.Scheme) {
	m.linesDecoded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("scheme", string(scheme))))
}

func (m *AppMetrics) LineFailed(ctx context.Context, err error) {
	m.linesFailed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", FailureReason(err))))
}

func FailureReason(err error) string {
	switch {
	case errors.Is(err, parser.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, parser.ErrFormatMismatch):
		return "format_mismatch"
	case errors.Is(err, parser.ErrConversion):
		return "conversion"
	default:
		return "unknown"
	}
}

func WithMetrics(m *AppMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snoop := httpsnoop.CaptureMetrics(next, w, r)

			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
				attribute.Int("status", snoop.Code),
			)
			m.requestCount.Add(r.Context(), 1, attrs)
			m.requestDuration.Record(r.Context(), snoop.Duration.Seconds(), attrs)
		})
	}
}
