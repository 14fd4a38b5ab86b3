package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aleaurre/portfolio-web/internal/cfg"
	"github.com/aleaurre/portfolio-web/internal/contentapi"
	"github.com/aleaurre/portfolio-web/internal/health"
	"github.com/aleaurre/portfolio-web/internal/httpmw"
	"github.com/aleaurre/portfolio-web/internal/httpserver"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/metrics"
	"github.com/aleaurre/portfolio-web/internal/ogimage"
	"github.com/aleaurre/portfolio-web/internal/opshttp"
	"github.com/aleaurre/portfolio-web/internal/otelx"
	"github.com/aleaurre/portfolio-web/internal/prof"
	"github.com/aleaurre/portfolio-web/internal/ratelimit"
	"github.com/aleaurre/portfolio-web/internal/render"
	"github.com/aleaurre/portfolio-web/internal/sitehandler"
	v "github.com/aleaurre/portfolio-web/internal/version"
	"github.com/aleaurre/portfolio-web/internal/webassets"
)

const envPrefix = "PORTFOLIO_"

func main() {
	conf, ok := parseConfig()
	if !ok {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, stop, conf))
}

// parseConfig handles -V, flags, env and validation. Problems go to stderr
// because the logger does not exist yet.
func parseConfig() (cfg.App, bool) {
	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(v.Get().String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return conf, false
	}
	return conf, true
}

func newLogger(conf cfg.App, vi v.Info) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		return nil, err
	}
	return log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
}

func run(ctx context.Context, stopSignals func(), conf cfg.App) int {
	vi := v.Get()
	lg, err := newLogger(conf, vi)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "starting",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_content_updates", conf.EnableContentUpdates,
		"content_dir", conf.ContentDir,
		"content_pattern", conf.ContentPattern,
		"site_config", conf.SiteConfig,
		"base_url", conf.BaseURL,
	)

	// registered before anything that reports into it
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	stopTelemetry := startTelemetry(ctx, L, conf, vi, m)

	site, err := loadSite(conf)
	if err != nil {
		L.Error(ctx, err, "load site resources", "site_config", conf.SiteConfig)
		return 1
	}
	renderer, err := render.New(site)
	if err != nil {
		L.Error(ctx, err, "build renderer")
		return 1
	}

	cs, err := startContent(ctx, L, conf, m)
	if err != nil {
		L.Error(ctx, err, "content setup failed")
		return 1
	}

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Content:    cs.manager,
		Renderer:   renderer,
		Lister:     cs.lister,
		OGImage:    ogimage.NewHandler(L, ogFooter(site), site.Person.Name),
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "create site handler")
		return 1
	}
	contentAPI := contentapi.NewAPI(cs.manager, cs.lister, L)

	var gate health.ShutdownGate
	// not draining and holding a snapshot
	readiness := health.All(gate.Probe(), cs.manager)

	limiter := newLimiter(ctx, L, m)
	m.RegisterRateLimitVisitors(limiter.Visitors)

	stopSite, err := httpserver.Start(ctx, httpserver.Options{
		Logger:          L,
		Port:            conf.HTTPPort,
		ShutdownTimeout: conf.ShutdownTimeout,
		Health:          health.Fixed(true, ""),
		Readiness:       readiness,
		APIRoutes: func(r chi.Router) {
			siteHandler.RegisterRoutes(r)
			contentAPI.RegisterRoutes(r)
		},
		SiteHandler:  siteHandler,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		ContentInfo:  cs.manager,
	})
	if err != nil {
		L.Error(ctx, err, "start site listener")
		return 1
	}

	stopOps, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:            conf.AdminPort,
		ShutdownTimeout: conf.ShutdownTimeout,
		Metrics:         m.Handler(),
		EnablePprof:     conf.EnablePprof,
		Health:          health.Fixed(true, ""),
		Readiness:       readiness,
		Status:          http.HandlerFunc(contentAPI.HandleStatus),
		UseRecoverMW:    true,
		OnPanic:         m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "start ops listener")
		_ = stopSite(context.Background())
		return 1
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	<-ctx.Done()
	stopSignals()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// readiness fails first so the load balancer stops routing here
	gate.Set("draining")
	drain(bg, L, conf.DrainPeriod)

	shutdownCtx, cancel := context.WithTimeout(bg, conf.ShutdownTimeout)
	defer cancel()
	for name, stop := range map[string]func(context.Context) error{
		"site": stopSite,
		"ops":  stopOps,
	} {
		if err := stop(shutdownCtx); err != nil {
			L.Error(bg, err, "listener shutdown", "server", name)
		}
	}
	stopTelemetry(shutdownCtx)

	L.Info(bg, "shutdown complete")
	return 0
}

// startTelemetry brings up profiling and tracing. Neither is fatal; the
// returned func flushes whatever started.
func startTelemetry(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info, m *metrics.ServerMetrics) func(context.Context) {
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Version:       vi.Version,
		Tags: map[string]string{
			"component": "server",
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
		stopProf = func() {}
	} else {
		m.SetProfilingActive(conf.EnablePyroscope)
	}

	// the collector is a local agent, plaintext is fine
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing off")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	return func(ctx context.Context) {
		if err := shutdownOTEL(ctx); err != nil {
			L.Error(ctx, err, "otel shutdown")
		}
		stopProf()
	}
}

func newLimiter(ctx context.Context, L log.Logger, m *metrics.ServerMetrics) *ratelimit.IPLimiter {
	return ratelimit.New(ctx,
		ratelimit.WithExempt(func(r *http.Request) bool { return httpmw.QuietRequest(r.URL.Path) }),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limiter full, new visitors rejected until eviction")
		}),
	)
}

// drain waits out period so in-flight requests finish and health checks
// notice. A second signal cuts it short.
func drain(ctx context.Context, L log.Logger, period time.Duration) {
	if period <= 0 {
		return
	}
	L.Info(ctx, "draining", "period", period.String())

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	t := time.NewTimer(period)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain complete")
	case <-force:
		L.Warn(ctx, "second signal, skipping drain")
	}
}
