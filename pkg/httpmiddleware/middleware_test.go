package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mw("outer"), mw("middle"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "middle", "inner"}, calls)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "checkout-42")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, "checkout-42", seen)
		assert.Equal(t, "checkout-42", w.Header().Get(RequestIDHeader))
	})

	t.Run("malformed replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Len(t, seen, 36)
	})

	assert.Empty(t, RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
}

func TestInjectLoggerAndLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := zap.New(core)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/coupons/{id}", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Inside handler")
		w.WriteHeader(http.StatusTeapot)
	})

	h := Wrap(mux, RequestID(), InjectLogger(lg), LogRequests())

	req := httptest.NewRequest(http.MethodGet, "/api/coupons/abc", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusTeapot, w.Code)

	entries := logs.All()
	require.Len(t, entries, 2)

	inside := entries[0]
	assert.Equal(t, "Inside handler", inside.Message)
	assert.Equal(t, "req-1", inside.ContextMap()["request_id"])

	access := entries[1]
	assert.Equal(t, zapcore.WarnLevel, access.Level)
	fields := access.ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "GET /api/coupons/{id}", fields["route"])
	assert.Equal(t, "/api/coupons/abc", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
}

func TestInstrument(t *testing.T) {
	h := Instrument("coupons", tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInstrument_SpanNames(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	mux := http.NewServeMux()
	mux.Handle("GET /api/coupons/{id}", okHandler())
	mux.Handle("POST /api/coupons/reservations/{token}/commit", okHandler())
	h := Instrument("coupons", tp, metricnoop.NewMeterProvider())(mux)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/coupons/3f9c1e", nil),
		httptest.NewRequest(http.MethodGet, "/api/coupons/8a71d0", nil),
		httptest.NewRequest(http.MethodPost, "/api/coupons/reservations/tok-1/commit", nil),
		httptest.NewRequest(http.MethodGet, "/no/such/route/42", nil),
	} {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"GET /api/coupons/{id}",
		"GET /api/coupons/{id}",
		"POST /api/coupons/reservations/{token}/commit",
		"GET",
	}, names)
}

func TestRoute(t *testing.T) {
	for pattern, want := range map[string]string{
		"GET /api/coupons/{id}":       "/api/coupons/{id}",
		"/livez":                      "/livez",
		"POST example.com/api/apply":  "/api/apply",
		"example.com/api/coupons/{$}": "/api/coupons/{$}",
	} {
		assert.Equal(t, want, route(pattern), pattern)
	}
}
