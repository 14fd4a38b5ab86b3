package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aleaurre/portfolio-web/internal/health"
	"github.com/aleaurre/portfolio-web/internal/httpmw"
	"github.com/aleaurre/portfolio-web/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int
	// ShutdownTimeout bounds graceful shutdown, DefaultShutdownTimeout if 0
	ShutdownTimeout time.Duration

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// probes mounted under /-/ when either is set
	Health    health.Probe
	Readiness health.Probe

	// ContentInfo stamps responses with the live snapshot, optional
	ContentInfo httpmw.ContentInfo

	// APIRoutes mounts explicit routes (site pages, content api)
	APIRoutes func(chi.Router)
	// SiteHandler serves anything APIRoutes does not match
	SiteHandler http.Handler
}
