package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Tsukikage7/jobhub/logger"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func TestHTTPMiddleware_RecordsRouteSpan(t *testing.T) {
	rec := installRecorder(t)

	var traceID string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/scheduler/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		traceID = logger.TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusBadRequest)
	})

	w := httptest.NewRecorder()
	HTTPMiddleware("jobhub")(mux).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/scheduler/jobs/daily-report", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "PUT /api/v1/scheduler/jobs/{id}", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
}

func TestInjectHTTPHeaders(t *testing.T) {
	installRecorder(t)

	ctx, span := StartSpan(context.Background(), "test", "outbound")
	defer span.End()

	req := httptest.NewRequest(http.MethodPost, "http://reports/daily", nil)
	InjectHTTPHeaders(ctx, req)

	assert.Contains(t, req.Header.Get("traceparent"), TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
}

func TestTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
	assert.Empty(t, SpanID(context.Background()))
	assert.Equal(t, context.Background(), WithLogContext(context.Background()))
}
