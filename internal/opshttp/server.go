package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aleaurre/portfolio-web/internal/health"
	"github.com/aleaurre/portfolio-web/internal/httpmw"
	"github.com/aleaurre/portfolio-web/internal/httpserver"
	"github.com/aleaurre/portfolio-web/internal/log"
)

// NewHandler builds the ops router: probes, metrics, content status and,
// when enabled, pprof. Only loopback and private peers get through.
func NewHandler(L log.Logger, opts *Options) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	r := chi.NewRouter()

	health.Routes{Health: opts.Health, Readiness: opts.Readiness, Kubernetes: true}.RegisterRoutes(r)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	if opts.Status != nil {
		r.Handle("/-/content", opts.Status)
	}
	if opts.EnablePprof {
		r.Mount("/debug", middleware.Profiler())
	}

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}
	return httpmw.Chain(r, recoverMW, internalOnly(L))
}

// Start serves NewHandler on opts.Port (9000 when unset).
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 9000
	}
	return httpserver.Serve(ctx, L, "ops", fmt.Sprintf(":%d", port), NewHandler(L, opts), opts.ShutdownTimeout)
}

// internalOnly rejects proxied requests and peers outside loopback,
// private and link-local ranges. The security group is the first fence.
func internalOnly(L log.Logger) httpmw.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := rejectReason(r); reason != "" {
				L.Warn(r.Context(), "ops request rejected", "reason", reason, "remote", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectReason(r *http.Request) string {
	if r.Header.Get("X-Forwarded-For") != "" {
		return "forwarded"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "bad remote address"
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return "bad remote address"
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return ""
	}
	return "public address"
}
