package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func Test_TracerFromContext(t *testing.T) {
	_, ok := TracerFromContext(context.Background())
	assert.False(t, ok)

	assert.Panics(t, func() {
		MustTracerFromContext(context.Background())
	})

	tracer := noop.NewTracerProvider().Tracer("test")
	ctx := NewContextWithTracer(context.Background(), tracer)
	got, ok := TracerFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tracer, got)
}

func Test_RequestLogChain(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")

	var called bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := TracerFromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusTeapot)
	})

	chain := WithOtelTracerContext(tracer)(WithRequestLog()(h))

	w := httptest.NewRecorder()
	chain.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parse?input=1,2", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func Test_RequestLogKeepsWriterInterfaces(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")

	var flusher bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flusher = w.(http.Flusher)
		w.Write([]byte("ok"))
	})

	chain := WithOtelTracerContext(tracer)(WithRequestLog()(h))

	w := httptest.NewRecorder()
	chain.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.True(t, flusher)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
