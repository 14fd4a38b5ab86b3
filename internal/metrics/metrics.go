// Package metrics owns the Prometheus registry of the server: HTTP traffic,
// the active content snapshot, section listings, the bundle watcher and
// process health.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aleaurre/portfolio-web/internal/version"
)

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets    = prometheus.ExponentialBuckets(256, 4, 10) // 256B .. 64MiB
	listBuckets    = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
	bundleBuckets  = []float64{0.5, 1, 2.5, 5, 10, 30, 60}
)

// ServerMetrics labels requests by method, route pattern and status only;
// raw paths never become label values.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panicsTotal prometheus.Counter

	// rate limiter
	rlDenied   prometheus.Counter
	rlCapacity prometheus.Counter

	// content snapshot
	contentSource   *prometheus.GaugeVec
	contentBundle   *prometheus.GaugeVec
	contentSigned   prometheus.Gauge
	contentLoadedTs prometheus.Gauge
	listDuration    *prometheus.HistogramVec
	listItems       *prometheus.GaugeVec

	// bundle watcher
	watcherPolls     prometheus.Counter
	watcherSwaps     prometheus.Counter
	watcherErrors    *prometheus.CounterVec
	bundleLoad       prometheus.Histogram
	watcherSuccessTs prometheus.Gauge
	watcherStale     prometheus.Gauge

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
}

func histVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
}

// New builds a private registry with the Go and process collectors plus
// every server metric.
func New() *ServerMetrics {
	m := &ServerMetrics{
		reg: prometheus.NewRegistry(),

		inflight: gauge("http_inflight_requests", "Current number of in-flight HTTP requests"),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		reqDur:    histVec("http_request_duration_seconds", "Request latency by method and route", latencyBuckets, "method", "route"),
		respBytes: histVec("http_response_size_bytes", "Response size by method and route", sizeBuckets, "method", "route"),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "5xx responses by method and route",
		}, []string{"method", "route"}),
		panicsTotal: counter("http_panic_total", "Recovered handler panics"),

		rlDenied:   counter("http_requests_rate_limited_total", "Requests rejected by the rate limiter"),
		rlCapacity: counter("http_requests_rate_limited_capacity_total", "Times the rate limiter visitor table filled up"),

		contentSource:   gaugeVec("content_source_info", "Where the active content came from; value is always 1", "source"),
		contentBundle:   gaugeVec("content_bundle_info", "Hash of the active content; value is always 1", "sha256"),
		contentSigned:   gauge("content_bundle_signed", "1 when the active bundle passed signature verification"),
		contentLoadedTs: gauge("content_loaded_timestamp_seconds", "Unix time the active content was activated"),
		listDuration:    histVec("content_list_duration_seconds", "Time to read and parse one content section", listBuckets, "dir"),
		listItems:       gaugeVec("content_list_items", "Items returned by the last listing of a section", "dir"),

		watcherPolls: counter("content_watcher_polls_total", "Watcher poll cycles"),
		watcherSwaps: counter("content_watcher_swaps_total", "Content bundles swapped in"),
		watcherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_watcher_errors_total",
			Help: "Watcher errors by stage",
		}, []string{"type"}),
		bundleLoad: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "content_bundle_load_duration_seconds",
			Help:    "Time to download, verify and extract a bundle",
			Buckets: bundleBuckets,
		}),
		watcherSuccessTs: gauge("content_watcher_last_success_timestamp_seconds", "Unix time of the last successful poll"),
		watcherStale:     gauge("content_watcher_stale", "1 when the watcher has not succeeded within its stale threshold"),

		buildInfo: gaugeVec("build_info", "Build metadata; value is always 1",
			"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"),
		profilingActive: gauge("profiling_active", "1 when continuous profiling is running"),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inflight, m.reqTotal, m.reqDur, m.respBytes, m.errorsTotal, m.panicsTotal,
		m.rlDenied, m.rlCapacity,
		m.contentSource, m.contentBundle, m.contentSigned, m.contentLoadedTs, m.listDuration, m.listItems,
		m.watcherPolls, m.watcherSwaps, m.watcherErrors, m.bundleLoad, m.watcherSuccessTs, m.watcherStale,
		m.buildInfo, m.profilingActive,
	)
	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

// Handler serves the registry for scraping.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

// RegisterRateLimitVisitors exposes the rate limiter table size, read at
// scrape time.
func (m *ServerMetrics) RegisterRateLimitVisitors(fn func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "http_rate_limit_visitors",
		Help: "Client addresses tracked by the rate limiter",
	}, func() float64 { return float64(fn()) }))
}

func (m *ServerMetrics) IncHttpPanic()         { m.panicsTotal.Inc() }
func (m *ServerMetrics) IncRateLimitDenied()   { m.rlDenied.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.rlCapacity.Inc() }

// SetContentSnapshot publishes the identity of a newly activated content
// root. Old source and hash label values are dropped.
func (m *ServerMetrics) SetContentSnapshot(source, sha256 string, signed bool, loadedAt time.Time) {
	m.contentSource.Reset()
	m.contentSource.WithLabelValues(source).Set(1)
	m.contentBundle.Reset()
	m.contentBundle.WithLabelValues(sha256).Set(1)
	m.contentSigned.Set(boolFloat(signed))
	if !loadedAt.IsZero() {
		m.contentLoadedTs.Set(float64(loadedAt.Unix()))
	}
}

// ObserveContentList implements content.ListObserver.
func (m *ServerMetrics) ObserveContentList(dir string, items int, seconds float64) {
	m.listDuration.WithLabelValues(dir).Observe(seconds)
	m.listItems.WithLabelValues(dir).Set(float64(items))
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolFloat(active)) }

// content.WatcherMetrics

func (m *ServerMetrics) IncWatcherPolls()                      { m.watcherPolls.Inc() }
func (m *ServerMetrics) IncWatcherSwaps()                      { m.watcherSwaps.Inc() }
func (m *ServerMetrics) IncWatcherError(errType string)        { m.watcherErrors.WithLabelValues(errType).Inc() }
func (m *ServerMetrics) ObserveBundleLoadDuration(sec float64) { m.bundleLoad.Observe(sec) }
func (m *ServerMetrics) SetWatcherLastSuccess(unixSec float64) { m.watcherSuccessTs.Set(unixSec) }
func (m *ServerMetrics) SetWatcherStale(stale bool)            { m.watcherStale.Set(boolFloat(stale)) }

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
