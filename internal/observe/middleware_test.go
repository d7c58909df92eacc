package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const incomingTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

// instrument installs an in-memory tracer provider and returns metrics
// backed by a manual reader. It mutates the global tracer provider, so
// callers must not run in parallel.
func instrument(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	return m, reader, exp
}

func spanStatus(t *testing.T, exp *tracetest.InMemoryExporter) int64 {
	t.Helper()
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			return a.Value.AsInt64()
		}
	}
	t.Fatal("span has no http.response.status_code")
	return 0
}

func TestMiddlewareRequests(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		traceparent string
		handler     http.HandlerFunc
		wantStatus  int
		wantSpan    string
	}{
		{
			name:   "decision lookup",
			target: "/v1/decisions/abc",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantStatus: http.StatusOK,
			wantSpan:   "HTTP GET /v1/decisions/abc",
		},
		{
			name:   "unknown stream",
			target: "/audio/stream?file=nope",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "Invalid audio file", http.StatusNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantSpan:   "HTTP GET /audio/stream",
		},
		{
			name:   "late WriteHeader is ignored",
			target: "/audio/stream?file=vm1",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte{0, 0})
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusOK,
			wantSpan:   "HTTP GET /audio/stream",
		},
		{
			name:        "continues caller trace",
			target:      "/v1/streams",
			traceparent: "00-" + incomingTraceID + "-00f067aa0ba902b7-01",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Handler-Trace", CorrelationID(r.Context()))
			},
			wantStatus: http.StatusOK,
			wantSpan:   "HTTP GET /v1/streams",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader, exp := instrument(t)

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			Middleware(m)(tt.handler).ServeHTTP(rec, req)

			if got := spanStatus(t, exp); got != int64(tt.wantStatus) {
				t.Errorf("span status = %d, want %d", got, tt.wantStatus)
			}
			if name := exp.GetSpans()[0].Name; name != tt.wantSpan {
				t.Errorf("span name = %q, want %q", name, tt.wantSpan)
			}

			cid := rec.Header().Get("X-Correlation-ID")
			if len(cid) != 32 {
				t.Errorf("X-Correlation-ID = %q, want a 32-char trace ID", cid)
			}
			if tt.traceparent != "" {
				if cid != incomingTraceID {
					t.Errorf("X-Correlation-ID = %q, want %q", cid, incomingTraceID)
				}
				if got := rec.Header().Get("X-Handler-Trace"); got != incomingTraceID {
					t.Errorf("handler saw trace %q, want %q", got, incomingTraceID)
				}
			}

			met := findMetric(collect(t, reader), "beepwise.http.request.duration")
			if met == nil {
				t.Fatal("request duration metric not recorded")
			}
			hist := met.Data.(metricdata.Histogram[float64])
			if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
				t.Fatalf("data points = %+v, want one sample", hist.DataPoints)
			}
			attrs := hist.DataPoints[0].Attributes
			path, _ := attrs.Value(attribute.Key("path"))
			method, _ := attrs.Value(attribute.Key("method"))
			if want := strings.SplitN(tt.target, "?", 2)[0]; path.AsString() != want {
				t.Errorf("path attribute = %q, want %q", path.AsString(), want)
			}
			if method.AsString() != http.MethodGet {
				t.Errorf("method attribute = %q, want GET", method.AsString())
			}
		})
	}
}

func TestMiddlewareFlushesAudio(t *testing.T) {
	m, _, _ := instrument(t)

	var chunks int
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer is not an http.Flusher")
		}
		for range 3 {
			_, _ = w.Write(make([]byte, 320))
			f.Flush()
			chunks++
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/stream?file=vm1", nil))
	if chunks != 3 || !rec.Flushed {
		t.Errorf("chunks = %d flushed = %v, want 3 flushed chunks", chunks, rec.Flushed)
	}
	if rec.Body.Len() != 960 {
		t.Errorf("body = %d bytes, want 960", rec.Body.Len())
	}
}

func TestMiddlewareHijackUnsupported(t *testing.T) {
	m, _, _ := instrument(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer is not an http.Hijacker")
		}
		if _, _, err := hj.Hijack(); err == nil {
			t.Error("Hijack on a recorder: want error")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/audio/ws", nil))
}

func TestMiddlewareWebSocketUpgrade(t *testing.T) {
	m, _, exp := instrument(t)

	done := make(chan struct{})
	ws := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		_ = conn.Write(r.Context(), websocket.MessageBinary, make([]byte, 320))
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		ws.ServeHTTP(w, r)
	}))
	defer srv.Close()

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/audio/ws?file=vm1", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	typ, data, err := conn.Read(ctx)
	if err != nil || typ != websocket.MessageBinary || len(data) != 320 {
		t.Fatalf("Read = %v, %d bytes, %v; want one 320-byte binary frame", typ, len(data), err)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure", websocket.CloseStatus(err))
	}

	<-done
	if got := spanStatus(t, exp); got != http.StatusSwitchingProtocols {
		t.Errorf("span status = %d, want 101", got)
	}
}

func TestMiddlewareQuietProbes(t *testing.T) {
	m, _, _ := instrument(t)
	logs := captureLogs(t)

	h := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if strings.Contains(logs.String(), "request completed") {
		t.Errorf("probe requests logged at info: %s", logs.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/decisions", nil))
	if !strings.Contains(logs.String(), "path=/v1/decisions") {
		t.Errorf("decision request not logged: %s", logs.String())
	}
}
