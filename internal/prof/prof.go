// Package prof pushes continuous profiles to Pyroscope.
package prof

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// profileTypes is everything pyroscope-go can collect. Mutex and block
// profiles stay empty unless their rates are set in Options.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	AuthToken     string
	TenantID      string
	// Version becomes the "version" tag unless Tags sets one.
	Version string
	Tags    map[string]string

	ProfileMutexFraction int
	BlockProfileRate     int
}

// Start begins profiling. The returned stop func is never nil, even with
// an error, and only the first call does anything.
func Start(ctx context.Context, opts Options) (stop func(), err error) {
	L := log.FromContext(ctx).With("component", "pyroscope")
	noop := func() {}

	if !opts.Enabled {
		L.Info(ctx, "profiling disabled")
		return noop, nil
	}
	if opts.ServerAddress == "" {
		return noop, xerrors.New("pyroscope: invalid server address (empty)")
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		AuthToken:       opts.AuthToken,
		TenantID:        opts.TenantID,
		Tags:            profileTags(opts),
		Logger:          pyroLogger{ctx: ctx, l: L},
		ProfileTypes:    profileTypes,
	})
	if err != nil {
		return noop, xerrors.Wrapf(err, "start pyroscope for %s", opts.ServerAddress)
	}
	L.Info(ctx, "profiling started", "server_address", opts.ServerAddress, "app_name", opts.AppName)

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = profiler.Stop()
			L.Info(context.Background(), "profiling stopped")
		})
	}, nil
}

// profileTags copies opts.Tags and fills in the version tag.
func profileTags(opts Options) map[string]string {
	out := maps.Clone(opts.Tags)
	if out == nil {
		out = map[string]string{}
	}
	if _, ok := out["version"]; !ok && opts.Version != "" {
		out["version"] = opts.Version
	}
	return out
}

// pyroLogger adapts the app logger to pyroscope.Logger. The client is
// chatty, so its info lines drop to debug and its errors to warn.
type pyroLogger struct {
	ctx context.Context
	l   log.Logger
}

func (p pyroLogger) Infof(format string, args ...any)  { p.l.Debug(p.ctx, fmt.Sprintf(format, args...)) }
func (p pyroLogger) Debugf(format string, args ...any) { p.l.Debug(p.ctx, fmt.Sprintf(format, args...)) }
func (p pyroLogger) Errorf(format string, args ...any) { p.l.Warn(p.ctx, fmt.Sprintf(format, args...)) }
