package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace"
)

// site mounts the metrics middleware outside a chi router the way
// httpserver does.
func site(m *ServerMetrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/blog/{slug}", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("post body")) })
	r.Get("/api/content/{section}", func(w http.ResponseWriter, _ *http.Request) {})
	r.Get("/broken", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	})
	return m.Middleware(r)
}

func hit(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestMiddleware_Labels(t *testing.T) {
	m := New()
	h := site(m)
	hit(h, http.MethodGet, "/blog/aprendiendo-go")
	hit(h, http.MethodGet, "/blog/series-temporales")
	hit(h, http.MethodGet, "/api/content/work")
	hit(h, http.MethodGet, "/wp-login.php")
	hit(h, http.MethodGet, "/teapot")

	cases := []struct {
		method, route, status string
		want                  float64
	}{
		{"GET", "/blog/{slug}", "200", 2},
		{"GET", "/api/content/{section}", "200", 1},
		{"GET", unmatchedRoute, "404", 1},
		{"GET", "/teapot", "418", 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(m.reqTotal.WithLabelValues(tc.method, tc.route, tc.status)); got != tc.want {
			t.Errorf("%s %s %s = %v, want %v", tc.method, tc.route, tc.status, got, tc.want)
		}
	}
	if n := testutil.CollectAndCount(m.reqDur); n != 4 {
		t.Fatalf("duration series = %d, want 4", n)
	}
	if testutil.ToFloat64(m.inflight) != 0 {
		t.Fatal("inflight gauge not back to zero")
	}
}

func TestMiddleware_Errors(t *testing.T) {
	m := New()
	h := site(m)
	hit(h, http.MethodGet, "/broken")
	hit(h, http.MethodGet, "/missing")
	hit(h, http.MethodGet, "/blog/x")

	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("GET", "/broken")); got != 1 {
		t.Fatalf("5xx counter = %v", got)
	}
	if n := testutil.CollectAndCount(m.errorsTotal); n != 1 {
		t.Fatalf("error series = %d, 4xx and 2xx must not count", n)
	}
}

func TestMiddleware_ResponseSize(t *testing.T) {
	m := New()
	rec := hit(site(m), http.MethodGet, "/blog/x")
	if rec.Body.String() != "post body" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	var metric dto.Metric
	if err := m.respBytes.WithLabelValues("GET", "/blog/{slug}").(interface{ Write(*dto.Metric) error }).Write(&metric); err != nil {
		t.Fatal(err)
	}
	if got := metric.GetHistogram().GetSampleSum(); got != float64(len("post body")) {
		t.Fatalf("size sum = %v", got)
	}
}

func TestMiddleware_InflightDuringRequest(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		during = testutil.ToFloat64(m.inflight)
	}))
	hit(h, http.MethodGet, "/")
	if during != 1 || testutil.ToFloat64(m.inflight) != 0 {
		t.Fatalf("inflight during %v after %v", during, testutil.ToFloat64(m.inflight))
	}
}

func TestTraceExemplar(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctxWith := func(flags trace.TraceFlags) context.Context {
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: flags})
		return trace.ContextWithSpanContext(context.Background(), sc)
	}

	if ex := traceExemplar(ctxWith(trace.FlagsSampled)); ex["trace_id"] != tid.String() {
		t.Fatalf("sampled exemplar = %v", ex)
	}
	if ex := traceExemplar(ctxWith(0)); ex != nil {
		t.Fatalf("unsampled exemplar = %v", ex)
	}
	if ex := traceExemplar(context.Background()); ex != nil {
		t.Fatalf("no-trace exemplar = %v", ex)
	}
}

func TestMiddleware_RecordsExemplar(t *testing.T) {
	m := New()
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})

	req := httptest.NewRequest(http.MethodGet, "/blog/x", nil)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
	site(m).ServeHTTP(httptest.NewRecorder(), req)

	var metric dto.Metric
	if err := m.reqDur.WithLabelValues("GET", "/blog/{slug}").(interface{ Write(*dto.Metric) error }).Write(&metric); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, b := range metric.GetHistogram().GetBucket() {
		for _, l := range b.GetExemplar().GetLabel() {
			if l.GetName() == "trace_id" && l.GetValue() == tid.String() {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("latency sample has no trace exemplar")
	}
}

func TestRouteLabel(t *testing.T) {
	rctx := chi.NewRouteContext()
	if got := routeLabel(rctx); got != unmatchedRoute {
		t.Fatalf("empty context = %q", got)
	}
	rctx.RoutePatterns = []string{"/blog/{slug}"}
	if got := routeLabel(rctx); got != "/blog/{slug}" {
		t.Fatalf("matched = %q", got)
	}
}
