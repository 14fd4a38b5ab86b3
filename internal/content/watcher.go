package content

import (
	"context"
	"time"

	"github.com/aleaurre/portfolio-web/internal/cryptoutil"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

const (
	// DefaultPollInterval is how often the watcher reads the SSM hash.
	DefaultPollInterval = 30 * time.Second

	// DefaultStaleThreshold is how long SSM may be unreachable before the
	// served content is reported stale.
	DefaultStaleThreshold = 30 * time.Minute

	maxBackoff = 5 * time.Minute
)

// pollOutcome doubles as the error label reported to WatcherMetrics.
type pollOutcome string

const (
	outcomeUnchanged pollOutcome = "unchanged"
	outcomeSwapped   pollOutcome = "swapped"
	outcomeSSMError  pollOutcome = "ssm"
	outcomeLoadError pollOutcome = "load"
	outcomeRejected  pollOutcome = "validation"
)

// BundleFetcher is the part of BundleLoader the watcher polls.
type BundleFetcher interface {
	FetchCurrentBundleHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics is implemented by metrics.ServerMetrics.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveBundleLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type nopWatcherMetrics struct{}

func (nopWatcherMetrics) IncWatcherPolls()                  {}
func (nopWatcherMetrics) IncWatcherSwaps()                  {}
func (nopWatcherMetrics) IncWatcherError(string)            {}
func (nopWatcherMetrics) ObserveBundleLoadDuration(float64) {}
func (nopWatcherMetrics) SetWatcherLastSuccess(float64)     {}
func (nopWatcherMetrics) SetWatcherStale(bool)              {}

type WatcherOptions struct {
	Logger  log.Logger
	Loader  BundleFetcher
	Manager *Manager
	Metrics WatcherMetrics

	// PollInterval defaults to DefaultPollInterval. SSM errors back off
	// from it exponentially up to five minutes.
	PollInterval time.Duration
	// StaleThreshold defaults to DefaultStaleThreshold.
	StaleThreshold time.Duration

	// Validation gates every new bundle; nil means DefaultValidationOptions.
	Validation *ValidationOptions

	// OnSwap runs on the poll goroutine after each swap. A panic in it is
	// logged and does not undo the swap.
	OnSwap func(hash, version string)
}

// Watcher polls SSM for the active bundle hash and swaps a new bundle into
// the Manager once it downloads, verifies and validates. Anything short of
// that keeps the current content.
type Watcher struct {
	loader     BundleFetcher
	manager    *Manager
	logger     log.Logger
	metrics    WatcherMetrics
	validation ValidationOptions
	onSwap     func(hash, version string)
	interval   time.Duration
	staleAfter time.Duration

	// poll goroutine only
	hash         string
	errStreak    int
	lastSSM      time.Time
	stale        bool
	polls, swaps int
}

func NewWatcher(opts *WatcherOptions) *Watcher {
	w := &Watcher{
		loader:     opts.Loader,
		manager:    opts.Manager,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		validation: DefaultValidationOptions(),
		onSwap:     opts.OnSwap,
		interval:   opts.PollInterval,
		staleAfter: opts.StaleThreshold,
		lastSSM:    time.Now(),
	}
	if w.logger == nil {
		w.logger = log.Nop()
	}
	if w.metrics == nil {
		w.metrics = nopWatcherMetrics{}
	}
	if opts.Validation != nil {
		w.validation = *opts.Validation
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.staleAfter <= 0 {
		w.staleAfter = DefaultStaleThreshold
	}
	// the boot bundle is already live, don't fetch it again
	if snap, ok := w.manager.Get(); ok {
		w.hash = snap.Meta.SHA256
	}
	return w
}

// Run polls until ctx is done and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content watcher started",
		"poll_interval", w.interval.String(),
		"current_hash", shortHash(w.hash),
	)
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopped", "polls", w.polls, "swaps", w.swaps)
			return ctx.Err()
		case <-timer.C:
			out := w.poll(ctx)
			w.noteFreshness(ctx, out)
			timer.Reset(w.delay(ctx, out))
		}
	}
}

// delay picks the wait before the next poll. Only SSM failures back off;
// a bad bundle is retried at the normal pace.
func (w *Watcher) delay(ctx context.Context, out pollOutcome) time.Duration {
	if out == outcomeSSMError {
		w.errStreak++
		d := backoff(w.interval, w.errStreak)
		w.logger.Warn(ctx, "content watcher backing off", "consecutive_errors", w.errStreak, "next_poll_in", d.String())
		return d
	}
	if w.errStreak > 0 {
		w.logger.Info(ctx, "content watcher recovered", "consecutive_errors", w.errStreak)
		w.errStreak = 0
	}
	return w.interval
}

// backoff doubles base per consecutive error, capped at maxBackoff.
func backoff(base time.Duration, errs int) time.Duration {
	d := base
	for i := 0; i < errs && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// noteFreshness flips the stale flag when SSM has been unreachable for
// longer than the threshold, and back on the next good read.
func (w *Watcher) noteFreshness(ctx context.Context, out pollOutcome) {
	if out != outcomeSSMError {
		if w.stale {
			w.stale = false
			w.metrics.SetWatcherStale(false)
			w.logger.Info(ctx, "content freshness restored")
		}
		return
	}
	since := time.Since(w.lastSSM)
	if w.stale || since <= w.staleAfter {
		return
	}
	w.stale = true
	w.metrics.SetWatcherStale(true)
	w.logger.Error(ctx, xerrors.Newf("no successful SSM read for %s", since.Truncate(time.Second)),
		"content may be stale")
}

// poll is one read-compare-swap cycle.
func (w *Watcher) poll(ctx context.Context) pollOutcome {
	w.polls++
	w.metrics.IncWatcherPolls()

	hash, err := w.loader.FetchCurrentBundleHash(ctx)
	if err != nil {
		return w.fail(ctx, outcomeSSMError, err, "read bundle hash")
	}
	w.lastSSM = time.Now()
	w.metrics.SetWatcherLastSuccess(float64(w.lastSSM.Unix()))

	if cryptoutil.HashEqual(hash, w.hash) {
		return outcomeUnchanged
	}
	w.logger.Info(ctx, "new bundle hash", "old_hash", shortHash(w.hash), "new_hash", shortHash(hash))

	start := time.Now()
	snap, err := w.loader.LoadHash(ctx, hash)
	w.metrics.ObserveBundleLoadDuration(time.Since(start).Seconds())
	if err != nil {
		return w.fail(ctx, outcomeLoadError, err, "load bundle", "hash", shortHash(hash))
	}
	if err := ValidateSnapshot(ctx, snap, w.validation); err != nil {
		return w.fail(ctx, outcomeRejected, err, "bundle rejected, keeping current content",
			"hash", shortHash(hash), "current_hash", shortHash(w.hash))
	}

	prev := w.hash
	w.manager.Set(*snap)
	w.hash = hash
	w.swaps++
	w.metrics.IncWatcherSwaps()
	version := w.manager.ContentVersion()
	w.logger.Info(ctx, "bundle swapped",
		"old_hash", shortHash(prev),
		"new_hash", shortHash(hash),
		"version", version,
		"swaps", w.swaps,
	)
	w.notify(ctx, hash, version)
	return outcomeSwapped
}

func (w *Watcher) fail(ctx context.Context, out pollOutcome, err error, msg string, kv ...any) pollOutcome {
	w.metrics.IncWatcherError(string(out))
	w.logger.Error(ctx, err, "content watcher: "+msg, kv...)
	return out
}

func (w *Watcher) notify(ctx context.Context, hash, version string) {
	if w.onSwap == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, xerrors.Newf("OnSwap panic: %v", r), "swap callback panicked", "hash", shortHash(hash))
		}
	}()
	w.onSwap(hash, version)
}

// shortHash is the 12-char prefix used in logs and headers.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
