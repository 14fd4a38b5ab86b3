package httpmw

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aleaurre/portfolio-web/internal/log"
)

// WithLogger derives a request logger from base, carrying the request id,
// client and target, and stores it on the context for handlers and
// AccessLog. The same attributes go on the server span.
func WithLogger(base log.Logger) Middleware {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			peer := peerAddr(r.RemoteAddr)
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = peer
			}
			scheme := requestScheme(r)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("server.address", r.Host),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"server.address", r.Host,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

func peerAddr(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// requestScheme trusts X-Forwarded-Proto only because ClientIP strips it
// from requests that did not come through a trusted proxy.
func requestScheme(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		p, _, _ = strings.Cut(p, ",")
		switch p = strings.ToLower(strings.TrimSpace(p)); p {
		case "http", "https":
			return p
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// quietExts are static files not worth an access log line.
var quietExts = map[string]bool{
	".css": true, ".js": true, ".map": true, ".ico": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".svg": true, ".gif": true,
	".woff": true, ".woff2": true,
}

// quietPaths are probe endpoints polled by the load balancer.
var quietPaths = map[string]bool{
	"/-/healthy": true,
	"/-/ready":   true,
	"/healthz":   true,
	"/readyz":    true,
}

// QuietRequest reports whether p is excluded from access logs and tracing.
func QuietRequest(p string) bool {
	return quietPaths[p] || strings.HasPrefix(p, "/assets/") || quietExts[strings.ToLower(path.Ext(p))]
}

// AccessLog writes one line per request through the request logger. It
// has to run inside the chi router so the route pattern is known.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, start: start}
			next.ServeHTTP(rec, r)

			if QuietRequest(r.URL.Path) {
				return
			}
			ctx := r.Context()
			fields := []any{
				"http.response.status_code", rec.Status(),
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", rec.bytes,
				"http.route", routePattern(r),
			}
			if rec.wrote {
				fields = append(fields, "http.server.ttfb", rec.ttfb.Seconds())
			}
			if r.ContentLength > 0 {
				fields = append(fields, "http.request.body.size", r.ContentLength)
			}
			if rec.err != nil {
				fields = append(fields, "write_error", rec.err.Error())
			}
			log.FromContext(ctx).Info(ctx, "http request", fields...)
		})
	}
}

// AnnotateHTTPRoute names the server span after the chi route pattern once
// the router has matched, so /blog/{slug} is one span name not hundreds.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		route := routePattern(r)
		span.SetAttributes(attribute.String("http.route", route))
		span.SetName(r.Method + " " + route)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusRecorder captures what the handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	start  time.Time
	status int
	bytes  int64
	wrote  bool
	ttfb   time.Duration
	err    error
}

// Status is the response code, 200 if the handler never set one.
func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func (s *statusRecorder) markWrite() {
	if !s.wrote {
		s.wrote = true
		s.ttfb = time.Since(s.start)
	}
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.markWrite()
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	s.markWrite()
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := s.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("httpmw: response writer cannot hijack")
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
