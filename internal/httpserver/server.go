package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aleaurre/portfolio-web/internal/health"
	"github.com/aleaurre/portfolio-web/internal/httpmw"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// compressible content types; images other than svg are already compressed
var compressible = []string{
	"text/html",
	"text/css",
	"text/plain",
	"text/xml",
	"application/xml",
	"application/rss+xml",
	"application/javascript",
	"text/javascript",
	"application/json",
	"image/svg+xml",
	"image/x-icon",
}

// maxRequestBody caps bodies on a site that only serves GET and HEAD.
const maxRequestBody = 1 << 10

// NewHandler builds the public handler: the chi router with site routes and
// probes, wrapped in the middleware stack. main owns the *http.Server.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Compress(5, compressible...),
		httpmw.AnnotateHTTPRoute,
		httpmw.AccessLog(),
		httpmw.MaxBody(maxRequestBody),
	)

	if opts.Health != nil || opts.Readiness != nil {
		health.Routes{Health: opts.Health, Readiness: opts.Readiness}.RegisterRoutes(r)
	}
	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}
	if opts.SiteHandler != nil {
		r.NotFound(opts.SiteHandler.ServeHTTP)
		r.MethodNotAllowed(opts.SiteHandler.ServeHTTP)
	}

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}

	// outermost first
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		opts.RateLimitMW,
		tracing,
		httpmw.ContentHeaders(opts.ContentInfo),
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
	)
}

// tracing starts the server span. Probes and static files are not traced;
// AnnotateHTTPRoute renames the span once chi has matched a route.
func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !httpmw.QuietRequest(r.URL.Path) && r.URL.Path != "/-/ping" && r.URL.Path != "/robots.txt"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	DefaultShutdownTimeout   = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port (8080 when unset) and serves NewHandler(opts)
// in the background. The returned stop shuts the server down gracefully
// and is safe to call more than once.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	return Serve(ctx, opts.Logger, "site", fmt.Sprintf(":%d", port), NewHandler(opts), opts.ShutdownTimeout)
}

// Serve binds addr and runs handler on it until stop is called. name tags
// the log lines. shutdownTimeout bounds stop, DefaultShutdownTimeout if 0.
func Serve(ctx context.Context, L log.Logger, name, addr string, handler http.Handler, shutdownTimeout time.Duration) (func(context.Context) error, error) {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%s http server: listen on %s", name, addr)
	}
	srv := NewServer(addr, handler)
	L = L.With("server", name)

	go func() {
		L.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "http server stopped unexpectedly")
		}
	}()

	var once sync.Once
	var stopErr error
	stop := func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, shutdownTimeout)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}
	return stop, nil
}
