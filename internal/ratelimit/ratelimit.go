// Package ratelimit keeps a token bucket per client address in front of the
// public site. The table lives in process memory, so with several replicas
// each one enforces its own budget.
//
// Idle addresses are swept in the background and the table has a hard cap,
// so a scan from many addresses cannot grow it without bound. Distributed
// floods are out of reach here; that is the edge's job.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aleaurre/portfolio-web/internal/httpmw"
)

const (
	defaultPerSecond   = 10
	defaultBurst       = 30
	defaultTTL         = 5 * time.Minute
	defaultMaxVisitors = 100000

	retryAfter   = "30"
	deniedBody   = `{"error":"too many requests"}`
	deniedCType  = "application/json; charset=utf-8"
	deniedCCache = "no-store"
)

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
	// reported flips on the first denial; eviction resets it with the entry
	reported bool
}

// verdict is what allow decided, computed under the lock and acted on
// after it is released.
type verdict int

const (
	admitted verdict = iota
	throttled
	throttledFirst
	tableFull
	tableFullFirst
)

type hooks struct {
	firstDenied func(ip string)
	denied      func(ip string)
	capacity    func()
}

func (h hooks) fire(v verdict, ip string) {
	switch v {
	case admitted:
		return
	case throttledFirst:
		if h.firstDenied != nil {
			h.firstDenied(ip)
		}
	case tableFullFirst:
		if h.capacity != nil {
			h.capacity()
		}
	}
	if h.denied != nil {
		h.denied(ip)
	}
}

// IPLimiter rate limits by client IP.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	// full latches the capacity hook until an eviction pass frees room
	full bool

	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int // 0 = unbounded

	hooks  hooks
	exempt func(*http.Request) bool
}

type Option func(*IPLimiter)

// WithRate sets the refill rate and bucket size: WithRate(10, 50) lets a
// client burst 50 requests and then sustain 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) { l.perSecond, l.burst = rate.Limit(perSecond), burst }
}

// WithTTL is how long an address may stay idle before it is forgotten.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) { l.ttl = d }
}

// WithMaxVisitors caps the table. At the cap, known addresses keep their
// buckets and new ones are refused until eviction makes room. 0 removes the cap.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxVisitors = n }
}

// WithOnFirstDenied runs once per table entry, the first time it is throttled.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.hooks.firstDenied = fn }
}

// WithOnDenied runs on every refused request.
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.hooks.denied = fn }
}

// WithOnCapacity runs when the table first fills up.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.hooks.capacity = fn }
}

// WithExempt passes matching requests through without spending a token.
func WithExempt(fn func(*http.Request) bool) Option {
	return func(l *IPLimiter) { l.exempt = fn }
}

// New returns a limiter whose sweeper runs until ctx is done.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:    map[string]*visitor{},
		perSecond:   defaultPerSecond,
		burst:       defaultBurst,
		ttl:         defaultTTL,
		maxVisitors: defaultMaxVisitors,
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.sweep(ctx)
	return l
}

func (l *IPLimiter) allow(ip string) bool {
	v := l.decide(ip, time.Now())
	l.hooks.fire(v, ip)
	return v == admitted
}

func (l *IPLimiter) decide(ip string, now time.Time) verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	vis, ok := l.visitors[ip]
	if !ok {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			if l.full {
				return tableFull
			}
			l.full = true
			return tableFullFirst
		}
		vis = &visitor{bucket: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[ip] = vis
	}
	vis.lastSeen = now

	switch {
	case vis.bucket.AllowN(now, 1):
		return admitted
	case vis.reported:
		return throttled
	default:
		vis.reported = true
		return throttledFirst
	}
}

func (l *IPLimiter) sweep(ctx context.Context) {
	t := time.NewTicker(l.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.evict(now)
		}
	}
}

// evict forgets addresses last seen more than ttl before now.
func (l *IPLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
	if l.maxVisitors <= 0 || len(l.visitors) < l.maxVisitors {
		l.full = false
	}
}

// Visitors reports how many addresses are tracked.
func (l *IPLimiter) Visitors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware answers 429 once a client's bucket is empty. It reads the
// address stored by httpmw's client IP middleware, so it must be mounted
// after it.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (l.exempt == nil || !l.exempt(r)) && !l.allow(httpmw.ClientIPFromContext(r.Context())) {
			h := w.Header()
			h.Set("Content-Type", deniedCType)
			h.Set("Cache-Control", deniedCCache)
			h.Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(deniedBody))
			return
		}
		next.ServeHTTP(w, r)
	})
}
