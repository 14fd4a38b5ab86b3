package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no chi route claimed. Those paths are
// unbounded, so they share one series.
const unmatchedRoute = "unmatched"

// Middleware records in-flight requests, then count, latency, response size
// and 5xx errors labelled by route. It wraps the chi router from outside,
// so it plants an empty route context for the router to fill in.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			rctx = chi.NewRouteContext()
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		m.record(r.Method, routeLabel(rctx), ww.Status(), ww.BytesWritten(), time.Since(start), traceExemplar(r.Context()))
	})
}

func routeLabel(rctx *chi.Context) string {
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

func (m *ServerMetrics) record(method, route string, code, size int, took time.Duration, exemplar prometheus.Labels) {
	if code == 0 {
		code = http.StatusOK
	}
	m.reqTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		m.errorsTotal.WithLabelValues(method, route).Inc()
	}
	observe(m.reqDur.WithLabelValues(method, route), took.Seconds(), exemplar)
	m.respBytes.WithLabelValues(method, route).Observe(float64(size))
}

func observe(o prometheus.Observer, v float64, exemplar prometheus.Labels) {
	if eo, ok := o.(prometheus.ExemplarObserver); ok && exemplar != nil {
		eo.ObserveWithExemplar(v, exemplar)
		return
	}
	o.Observe(v)
}

// traceExemplar links a latency sample to its trace when the request was
// sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
