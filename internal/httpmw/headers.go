package httpmw

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// The site is read-only and cookieless, so there is no CSRF handling.
// ld+json blocks are data, not script, and pass script-src 'self'.
const contentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self'; " +
	"img-src 'self' data:; font-src 'self'; base-uri 'self'; form-action 'self'; " +
	"frame-ancestors 'none'; object-src 'none'; upgrade-insecure-requests"

var staticSecurityHeaders = [][2]string{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"},
	{"Content-Security-Policy", contentSecurityPolicy},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"Cross-Origin-Embedder-Policy", "require-corp"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
}

// SharedPaths are path prefixes other origins are expected to embed or
// fetch: generated og images and the feeds. They get a cross-origin
// resource policy, everything else stays same-origin.
var SharedPaths = []string{"/api/og/", "/rss.xml", "/sitemap.xml"}

// SecurityHeaders sets the browser hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range staticSecurityHeaders {
			h.Set(kv[0], kv[1])
		}
		corp := "same-origin"
		if isShared(r.URL.Path) {
			corp = "cross-origin"
		}
		h.Set("Cross-Origin-Resource-Policy", corp)
		next.ServeHTTP(w, r)
	})
}

func isShared(p string) bool {
	for _, prefix := range SharedPaths {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// ContentInfo reports the content snapshot being served.
type ContentInfo interface {
	ContentVersion() string
	ContentHash() string
}

// ContentSourcer is optionally implemented by a ContentInfo to name where
// the snapshot came from (seed, disk, bundle).
type ContentSourcer interface {
	ContentSource() string
}

const shortHashLen = 12

// ContentHeaders stamps responses with the active snapshot: version,
// a short hash and, when known, its source. The same values go on the
// current span.
func ContentHeaders(info ContentInfo) Middleware {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		src, _ := info.(ContentSourcer)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			version, hash := info.ContentVersion(), info.ContentHash()
			var source string
			if src != nil {
				source = src.ContentSource()
			}

			var attrs []attribute.KeyValue
			if version != "" {
				w.Header().Set("X-Content-Bundle-Version", version)
				attrs = append(attrs, attribute.String("content.version", version))
			}
			if hash != "" {
				w.Header().Set("X-Content-Hash", shortHash(hash))
				attrs = append(attrs, attribute.String("content.hash", hash))
			}
			if source != "" {
				w.Header().Set("X-Content-Source", source)
				attrs = append(attrs, attribute.String("content.source", source))
			}
			if span := trace.SpanFromContext(r.Context()); len(attrs) > 0 && span.IsRecording() {
				span.SetAttributes(attrs...)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func shortHash(h string) string {
	if len(h) > shortHashLen {
		return h[:shortHashLen]
	}
	return h
}

// TraceResponseHeaders echoes the trace and span ids of a sampled request
// so a visitor's bug report can be matched to its trace. Empty names
// default to X-Trace-Id and X-Span-Id.
func TraceResponseHeaders(traceHeader, spanHeader string) Middleware {
	if traceHeader == "" {
		traceHeader = "X-Trace-Id"
	}
	if spanHeader == "" {
		spanHeader = "X-Span-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				w.Header().Set(traceHeader, sc.TraceID().String())
				w.Header().Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
