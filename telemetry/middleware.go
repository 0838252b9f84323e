package telemetry

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/trace"
)

func WithOtelTracerContext(tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := NewContextWithTracer(r.Context(), tracer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestLog wraps the request in a span and logs it with its status
// and latency. It needs WithOtelTracerContext earlier in the chain.
func WithRequestLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tracer := MustTracerFromContext(ctx)
			ctx, span := tracer.Start(ctx, "request")
			defer span.End()

			m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ctx))

			slog.DebugContext(ctx,
				"request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"remoteAddr", r.RemoteAddr,
				"latency_us", float64(m.Duration)/float64(time.Microsecond),
			)
		})
	}
}
